package peerchat

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/putto11262002/peerchat/core"
	"github.com/spf13/viper"
)

type Config struct {
	Backend struct {
		// URL is the websocket endpoint of the local backend.
		URL string `validate:"required,url"`
		// ConnectTimeout bounds a single dial attempt. The default is 5s.
		ConnectTimeout time.Duration `mapstructure:"connect_timeout" validate:"gt=0"`
		// HistoryTimeout bounds the wait for the first history page of a room before
		// the client considers itself ready anyway. The default is 10s.
		HistoryTimeout time.Duration `mapstructure:"history_timeout" validate:"gt=0"`
	}
	Reconnect struct {
		BaseDelay  time.Duration `mapstructure:"base_delay" validate:"gt=0"`
		MaxDelay   time.Duration `mapstructure:"max_delay" validate:"gtefield=BaseDelay"`
		Multiplier float64       `validate:"gte=1"`
	}
	API struct {
		// Port is the port the local API listens on. The default is 7070.
		Port int `validate:"required,port"`
		// Hostname is the hostname the local API listens on. The default is 127.0.0.1.
		Hostname       string   `validate:"required"`
		AllowedOrigins []string `mapstructure:"allowed_origins"`
		TLS            struct {
			Crt string
			Key string `validate:"required_with=Crt"`
		}
	}
	Auth struct {
		// Secret is the key used to sign local API tokens.
		// The secret must be a base64 encoded string. The default is a random 32 byte string.
		Secret   Base64Encoded `validate:"required"`
		TokenTTL time.Duration `mapstructure:"token_ttl" validate:"gt=0"`
	}
	SQLite struct {
		// File is the path to the SQLite cache file.
		File string `validate:"required"`
	}
	Call struct {
		ICEGatheringTimeout time.Duration `mapstructure:"ice_gathering_timeout" validate:"gt=0"`
		DisconnectGrace     time.Duration `mapstructure:"disconnect_grace" validate:"gt=0"`
		MaxICERestarts      int           `mapstructure:"max_ice_restarts" validate:"gte=0"`
	}
	Log struct {
		Level string `validate:"oneof=debug info warn error"`
	}
	valid bool
}

type Base64Encoded []byte

func (b *Base64Encoded) UnmarshalText(text []byte) error {
	dec, err := base64.StdEncoding.DecodeString(string(text))
	if err != nil {
		return fmt.Errorf("base64 decode: %w", err)
	}
	*b = dec
	return nil
}

func (c *Config) Validate() error {
	if c.valid {
		return nil
	}
	err := validate.Struct(c)
	if err != nil {
		return err
	}
	c.valid = true
	return nil
}

func (c *Config) LogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return slog.LevelInfo
	}
	return level
}

func (c *Config) ReconnectConfig() core.ReconnectConfig {
	return core.ReconnectConfig{
		BaseDelay:  c.Reconnect.BaseDelay,
		MaxDelay:   c.Reconnect.MaxDelay,
		Multiplier: c.Reconnect.Multiplier,
	}
}

func (c *Config) CallConfig() core.CallConfig {
	return core.CallConfig{
		ICEGatheringTimeout: c.Call.ICEGatheringTimeout,
		DisconnectGrace:     c.Call.DisconnectGrace,
		MaxICERestarts:      c.Call.MaxICERestarts,
	}
}

func setDefaults(v *viper.Viper) error {
	v.SetDefault("backend.url", "ws://127.0.0.1:8787/ws")
	v.SetDefault("backend.connect_timeout", 5*time.Second)
	v.SetDefault("backend.history_timeout", 10*time.Second)

	v.SetDefault("reconnect.base_delay", 500*time.Millisecond)
	v.SetDefault("reconnect.max_delay", 30*time.Second)
	v.SetDefault("reconnect.multiplier", 2.0)

	v.SetDefault("api.port", 7070)
	v.SetDefault("api.hostname", "127.0.0.1")
	v.SetDefault("api.allowed_origins", []string{"*"})
	v.SetDefault("api.tls.crt", "")
	v.SetDefault("api.tls.key", "")

	// generate a random secret key
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return fmt.Errorf("generate secret: %w", err)
	}
	v.SetDefault("auth.secret", base64.StdEncoding.EncodeToString(secret))
	v.SetDefault("auth.token_ttl", 24*time.Hour)

	v.SetDefault("sqlite.file", "./peerchat.db")

	defaults := core.DefaultCallConfig()
	v.SetDefault("call.ice_gathering_timeout", defaults.ICEGatheringTimeout)
	v.SetDefault("call.disconnect_grace", defaults.DisconnectGrace)
	v.SetDefault("call.max_ice_restarts", defaults.MaxICERestarts)

	v.SetDefault("log.level", "info")
	return nil
}

// newViper returns a viper instance reading PEERCHAT_* environment variables on top
// of the defaults.
func newViper() (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix("peerchat")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := setDefaults(v); err != nil {
		return nil, err
	}
	return v, nil
}

// decode unmarshals v into a Config. Values that fail to decode are left at their
// zero value so the validation step reports them.
func decode(v *viper.Viper) *Config {
	config := &Config{}
	if err := v.Unmarshal(config,
		viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
			mapstructure.TextUnmarshallerHookFunc(),
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(",")),
		),
	); err != nil {
		// defer error to validation step
		return config
	}
	return config
}

func FormatValidationErrors(err error) string {
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) {
		if err == nil {
			return ""
		}
		return err.Error()
	}
	trans, _ := uniTrans.GetTranslator("en")
	translated := errs.Translate(trans)

	lines := make([]string, 0, len(translated))
	for v := range maps.Values(translated) {
		lines = append(lines, v)
	}
	sort.Strings(lines)
	return strings.Join(lines, "\n")
}
