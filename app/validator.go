package peerchat

import (
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/putto11262002/peerchat/core"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
)

var validate *validator.Validate
var uniTrans *ut.UniversalTranslator

func registerMessage(trans ut.Translator, tag, text string, withParam bool) {
	validate.RegisterTranslation(tag, trans, func(ut ut.Translator) error {
		return ut.Add(tag, text, true)
	}, func(ut ut.Translator, fe validator.FieldError) string {
		if withParam {
			t, _ := ut.T(tag, fe.Field(), fe.Param())
			return t
		}
		t, _ := ut.T(tag, fe.Field())
		return t
	})
}

func init() {

	validate = validator.New()
	en := en.New()
	uniTrans = ut.New(en, en)
	enTrans, _ := uniTrans.GetTranslator("en")

	// prefer the json name, fall back to the lowercased field name
	validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		if name != "" {
			return name
		}
		return strings.ToLower(field.Name)
	})

	validate.RegisterValidation("port", func(fl validator.FieldLevel) bool {
		port, ok := fl.Field().Interface().(int)
		if !ok {
			return false
		}
		return port > 0 && port <= 65535
	})

	// emoji accepts a single emoji or the empty string
	validate.RegisterValidation("emoji", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		return s == "" || core.IsSingleEmoji(s)
	})

	validate.RegisterValidation("reaction", func(fl validator.FieldLevel) bool {
		return core.ValidateReaction(fl.Field().String()) == nil
	})

	registerMessage(enTrans, "hostname", "{0} must be a valid hostname", false)
	registerMessage(enTrans, "required", "{0} is a required field", false)
	registerMessage(enTrans, "required_with", "{0} is required when {1} is set", true)
	registerMessage(enTrans, "base64", "{0} must be a valid base64 encoded string", false)
	registerMessage(enTrans, "port", "{0} must be a valid port number", false)
	registerMessage(enTrans, "url", "{0} must be a valid URL", false)
	registerMessage(enTrans, "oneof", "{0} must be one of [{1}]", true)
	registerMessage(enTrans, "gt", "{0} must be greater than {1}", true)
	registerMessage(enTrans, "gte", "{0} must be at least {1}", true)
	registerMessage(enTrans, "gtefield", "{0} must not be less than {1}", true)
	registerMessage(enTrans, "max", "{0} must be at most {1} long", true)
	registerMessage(enTrans, "len", "{0} must have exactly {1} items", true)
	registerMessage(enTrans, "emoji", "{0} must be a single emoji", false)
	registerMessage(enTrans, "reaction", "{0} must be a single emoji or a :custom: emoji", false)
	registerMessage(enTrans, "min", "{0} must have at least {1} items", true)
}
