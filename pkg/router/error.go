package router

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// Error is an error that knows how to render itself as a response.
type Error interface {
	error
	StatusCode() int
	Encode(w io.Writer) error
}

// JsonError is rendered as {"code": ..., "error": ...}.
type JsonError struct {
	Code int    `json:"code"`
	Err  string `json:"error"`
}

// Status classes. A JsonError matches one of these with errors.Is when the codes are
// equal, whatever its message.
var (
	ErrBadRequest   = JsonError{Code: http.StatusBadRequest}
	ErrUnauthorized = JsonError{Code: http.StatusUnauthorized}
	ErrForbidden    = JsonError{Code: http.StatusForbidden}
	ErrNotFound     = JsonError{Code: http.StatusNotFound}
	ErrConflict     = JsonError{Code: http.StatusConflict}
)

func NewJsonError(code int, err string) JsonError {
	return JsonError{
		Code: code,
		Err:  err,
	}
}

// Errorf is NewJsonError with a formatted message.
func Errorf(code int, format string, args ...any) JsonError {
	return NewJsonError(code, fmt.Sprintf(format, args...))
}

func (e JsonError) StatusCode() int {
	return e.Code
}

// Error falls back to the status text when no message was given.
func (e JsonError) Error() string {
	if e.Err == "" {
		return http.StatusText(e.Code)
	}
	return e.Err
}

// Is reports whether target is a JsonError with the same code and either no message
// or the same message.
func (e JsonError) Is(target error) bool {
	t, ok := target.(JsonError)
	if !ok {
		return false
	}
	return t.Code == e.Code && (t.Err == "" || t.Err == e.Err)
}

func (e JsonError) Encode(w io.Writer) error {
	return json.NewEncoder(w).Encode(JsonError{Code: e.Code, Err: e.Error()})
}
