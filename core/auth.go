package core

import (
	"context"
	"errors"
	"time"
)

// Session is an authenticated local API client.
type Session struct {
	Subject   string    `json:"subject"`
	Token     string    `json:"-"`
	ExpiresAt time.Time `json:"expires_at"`
}

var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrUnauthorized    = errors.New("unauthorized")
)

type AuthStore interface {
	// Session returns ErrUnauthenticated if token does not identify a session.
	Session(ctx context.Context, token string) (*Session, error)
}

// TokenAuth authenticates stateless JWTs signed with a shared secret.
type TokenAuth struct {
	secret []byte
}

func NewTokenAuth(secret []byte) *TokenAuth {
	return &TokenAuth{secret: secret}
}

// Issue signs a token for subject valid for ttl.
func (a *TokenAuth) Issue(subject string, ttl time.Duration) (*Session, error) {
	token, exp, err := NewToken(subject, ttl, a.secret)
	if err != nil {
		return nil, err
	}
	return &Session{Subject: subject, Token: token, ExpiresAt: exp}, nil
}

func (a *TokenAuth) Session(_ context.Context, token string) (*Session, error) {
	claims, err := VerifyToken(token, a.secret)
	if err != nil {
		return nil, ErrUnauthenticated
	}
	s := &Session{Subject: claims.Subject, Token: token}
	if claims.ExpiresAt != nil {
		s.ExpiresAt = claims.ExpiresAt.Time
	}
	return s, nil
}
