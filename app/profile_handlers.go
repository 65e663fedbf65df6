package peerchat

import (
	"net/http"

	"github.com/putto11262002/peerchat/core"
	"github.com/putto11262002/peerchat/pkg/router"
)

type ProfileHandler struct {
	store    core.ProfileStore
	commands *Commands
}

func NewProfileHandler(store core.ProfileStore, commands *Commands) *ProfileHandler {
	return &ProfileHandler{store: store, commands: commands}
}

func (h *ProfileHandler) MeHandler(w http.ResponseWriter, r *http.Request) error {
	profile, err := h.store.LocalProfile(r.Context())
	if err != nil {
		return err
	}
	if profile == nil {
		return router.NewJsonError(http.StatusNotFound, "identity not received yet")
	}
	return router.WriteJSON(w, http.StatusOK, profile)
}

func (h *ProfileHandler) GetProfileHandler(w http.ResponseWriter, r *http.Request) error {
	profile, err := h.store.GetProfile(r.Context(), r.PathValue("publicKey"))
	if err != nil {
		return err
	}
	if profile == nil {
		return router.NewJsonError(http.StatusNotFound, "profile not found")
	}
	return router.WriteJSON(w, http.StatusOK, profile)
}

func (h *ProfileHandler) SetProfileHandler(w http.ResponseWriter, r *http.Request) error {
	var payload SetProfilePayload
	if err := router.DecodeJSON(r, &payload); err != nil {
		return err
	}
	if err := h.commands.SetProfile(payload); err != nil {
		return err
	}
	w.WriteHeader(http.StatusAccepted)
	return nil
}

func (h *ProfileHandler) SetPresenceHandler(w http.ResponseWriter, r *http.Request) error {
	var payload SetPresencePayload
	if err := router.DecodeJSON(r, &payload); err != nil {
		return err
	}
	if err := h.commands.SetPresence(payload); err != nil {
		return err
	}
	w.WriteHeader(http.StatusAccepted)
	return nil
}
