package core

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/putto11262002/peerchat/pkg/router"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToken(t *testing.T) {
	secret := []byte("secret")

	t.Run("valid token", func(t *testing.T) {
		before := time.Now()
		token, expiresAt, err := NewToken("cli", time.Hour, secret)
		require.Nil(t, err)
		require.NotEmpty(t, token)
		require.True(t, expiresAt.After(before.Add(time.Hour-time.Second)))

		claims, err := VerifyToken(token, secret)
		require.Nil(t, err)
		assert.Equal(t, "cli", claims.Subject)
	})

	t.Run("wrong secret", func(t *testing.T) {
		token, _, err := NewToken("cli", time.Hour, secret)
		require.NoError(t, err)
		_, err = VerifyToken(token, []byte("other"))
		assert.ErrorIs(t, err, ErrTokenInvalid)
	})

	t.Run("expired", func(t *testing.T) {
		token, _, err := NewToken("cli", -time.Minute, secret)
		require.NoError(t, err)
		_, err = VerifyToken(token, secret)
		assert.ErrorIs(t, err, ErrTokenExpired)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := VerifyToken("not-a-token", secret)
		assert.ErrorIs(t, err, ErrTokenInvalid)
	})
}

func TestJWTMiddleware(t *testing.T) {
	auth := NewTokenAuth([]byte("secret"))
	session, err := auth.Issue("cli", time.Hour)
	require.NoError(t, err)

	r := router.New()
	r.With(JWTMiddleware(auth)).Get("/me", func(w http.ResponseWriter, r *http.Request) error {
		return router.WriteJSON(w, http.StatusOK, SessionFromRequest(r))
	})

	t.Run("bearer token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.Header.Set("Authorization", "Bearer "+session.Token)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"subject":"cli"`)
	})

	t.Run("cookie", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.AddCookie(&http.Cookie{Name: AuthCookieName, Value: session.Token})
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("missing token", func(t *testing.T) {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/me", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("session lookup", func(t *testing.T) {
		_, err := auth.Session(context.Background(), "bad")
		assert.ErrorIs(t, err, ErrUnauthenticated)
	})
}
