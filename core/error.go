package core

import "fmt"

// Error is an error whose message may be shown to API clients unless it is sensitive.
type Error struct {
	msg string
	// Sensitive is a flag to indicate if the error is sensitive or not.
	// If it is not, it can be returned to the client.
	Sensitive bool
	cause     error
}

func NewError(msg string, sensitive bool) *Error {
	return &Error{msg: msg, Sensitive: sensitive}
}

func NewErrorf(format string, args ...interface{}) *Error {
	err := fmt.Errorf(format, args...)
	return &Error{msg: err.Error(), cause: unwrapOnce(err)}
}

func NewSensitiveError(msg string) *Error {
	return &Error{msg: msg, Sensitive: true}
}

func NewInsensitiveError(msg string) *Error {
	return &Error{msg: msg, Sensitive: false}
}

func (e *Error) Error() string {
	return e.msg
}

func (e *Error) Unwrap() error {
	return e.cause
}

func unwrapOnce(err error) error {
	u, ok := err.(interface{ Unwrap() error })
	if !ok {
		return nil
	}
	return u.Unwrap()
}
