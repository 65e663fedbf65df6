package router

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errCustom = errors.New("custom error")

func Test_ErrorMapper(t *testing.T) {
	router := New()
	router.RegisterErrorMapper(errCustom, func(err error) JsonError {
		return JsonError{Code: 400, Err: err.Error()}
	})

	t.Run("registered error", func(t *testing.T) {
		assert.Equal(t, JsonError{Code: 400, Err: "custom error"}, router.mapError(errCustom))
	})

	t.Run("wrapped registered error", func(t *testing.T) {
		err := fmt.Errorf("doing something: %w", errCustom)
		assert.Equal(t, JsonError{Code: 400, Err: err.Error()}, router.mapError(err))
	})

	t.Run("unknown error", func(t *testing.T) {
		assert.Equal(t, router.defaultError, router.mapError(errors.New("random error")))
	})

	t.Run("api error", func(t *testing.T) {
		err := JsonError{Code: 400, Err: "API Error"}
		assert.Equal(t, err, router.mapError(err))
	})
}

func TestSubRouterKeepsMappers(t *testing.T) {
	router := New()
	router.RegisterErrorMapper(errCustom, func(err error) JsonError {
		return NewJsonError(http.StatusConflict, "conflict")
	})
	router.Route("/api", func(r *Router) {
		r.Get("/fail", func(w http.ResponseWriter, r *http.Request) error {
			return errCustom
		})
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/fail", nil))
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.JSONEq(t, `{"code":409,"error":"conflict"}`, rec.Body.String())
}

func TestDecodeJSON(t *testing.T) {
	var body struct {
		Name string `json:"name"`
	}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"x","extra":1}`))
	err := DecodeJSON(req, &body)
	require.ErrorIs(t, err, ErrBadRequest)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), "invalid request body")
}

func TestJsonErrorMatching(t *testing.T) {
	err := fmt.Errorf("lookup: %w", NewJsonError(http.StatusNotFound, "room not found"))
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, err, NewJsonError(http.StatusNotFound, "room not found"))
	assert.NotErrorIs(t, err, NewJsonError(http.StatusNotFound, "profile not found"))
	assert.NotErrorIs(t, err, ErrConflict)

	t.Run("JsonError values skip status class mappers", func(t *testing.T) {
		router := New()
		router.RegisterErrorMapper(ErrNotFound, func(err error) JsonError {
			return NewJsonError(http.StatusGone, "gone")
		})
		router.Get("/", func(w http.ResponseWriter, r *http.Request) error {
			return errors.Join(errCustom, ErrNotFound)
		})
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("empty message renders the status text", func(t *testing.T) {
		rec := httptest.NewRecorder()
		require.NoError(t, ErrConflict.Encode(rec))
		assert.JSONEq(t, `{"code":409,"error":"Conflict"}`, rec.Body.String())
	})
}
