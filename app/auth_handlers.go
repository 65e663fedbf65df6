package peerchat

import (
	"net/http"
	"time"

	"github.com/putto11262002/peerchat/core"
	"github.com/putto11262002/peerchat/pkg/router"
)

type AuthHandler struct {
	auth *core.TokenAuth
}

func NewAuthHandler(auth *core.TokenAuth) *AuthHandler {
	return &AuthHandler{auth: auth}
}

// SessionHandler stores the bearer token of the request in a cookie so browsers can
// use the API without setting headers.
func (h *AuthHandler) SessionHandler(w http.ResponseWriter, r *http.Request) error {
	session := core.SessionFromRequest(r)
	http.SetCookie(w, &http.Cookie{
		Name:     core.AuthCookieName,
		Value:    session.Token,
		Expires:  session.ExpiresAt,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
		Path:     "/",
	})
	return router.WriteJSON(w, http.StatusOK, session)
}

func (h *AuthHandler) SignoutHandler(w http.ResponseWriter, r *http.Request) error {
	http.SetCookie(w, &http.Cookie{
		Name:     core.AuthCookieName,
		Value:    "",
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Path:     "/",
	})
	w.WriteHeader(http.StatusOK)
	return nil
}

func (h *AuthHandler) MeHandler(w http.ResponseWriter, r *http.Request) error {
	return router.WriteJSON(w, http.StatusOK, core.SessionFromRequest(r))
}
