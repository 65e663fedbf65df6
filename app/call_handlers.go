package peerchat

import (
	"net/http"
	"sort"

	"github.com/putto11262002/peerchat/core"
	"github.com/putto11262002/peerchat/pkg/router"
)

type CallsResponse struct {
	Current core.CallSnapshot `json:"current"`
	Ongoing []OngoingCall     `json:"ongoing"`
}

func (a *App) CallsHandler(w http.ResponseWriter, r *http.Request) error {
	var res CallsResponse
	err := a.onLoop(r.Context(), func() error {
		res.Current = a.calls.Snapshot()
		res.Ongoing = make([]OngoingCall, 0, len(a.state.ongoing))
		for _, c := range a.state.ongoing {
			res.Ongoing = append(res.Ongoing, c)
		}
		return nil
	})
	if err != nil {
		return err
	}
	sort.Slice(res.Ongoing, func(i, j int) bool {
		return res.Ongoing[i].StartedAt.Before(res.Ongoing[j].StartedAt)
	})
	return router.WriteJSON(w, http.StatusOK, res)
}

func (a *App) StartCallHandler(w http.ResponseWriter, r *http.Request) error {
	var req StartCallRequest
	if err := router.DecodeJSON(r, &req); err != nil {
		return err
	}
	if err := validate.Struct(req); err != nil {
		return router.NewJsonError(http.StatusBadRequest, FormatValidationErrors(err))
	}
	var scope core.CallScope
	err := a.onLoop(r.Context(), func() error {
		var err error
		scope, err = a.startCall(req)
		return err
	})
	if err != nil {
		return err
	}
	return router.WriteJSON(w, http.StatusAccepted, scope)
}

// JoinCallHandler joins an announced call without waiting for it to ring.
func (a *App) JoinCallHandler(w http.ResponseWriter, r *http.Request) error {
	callID := r.PathValue("callId")
	err := a.onLoop(r.Context(), func() error {
		call, ok := a.state.ongoing[callID]
		if !ok {
			return router.NewJsonError(http.StatusNotFound, "call not found")
		}
		return a.joinCall(call.Scope)
	})
	return accepted(w, err)
}

func (a *App) EndCallHandler(w http.ResponseWriter, r *http.Request) error {
	return accepted(w, a.onLoop(r.Context(), a.calls.End))
}

func (a *App) FocusHandler(w http.ResponseWriter, r *http.Request) error {
	var focus core.Focus
	err := a.onLoop(r.Context(), func() error {
		focus = a.state.focus
		return nil
	})
	if err != nil {
		return err
	}
	return router.WriteJSON(w, http.StatusOK, focus)
}

func (a *App) SetFocusHandler(w http.ResponseWriter, r *http.Request) error {
	var focus core.Focus
	if err := router.DecodeJSON(r, &focus); err != nil {
		return err
	}
	err := a.onLoop(r.Context(), func() error {
		if focus.RoomKey != "" {
			if _, ok := a.state.records[focus.RoomKey]; !ok {
				return core.ErrUnknownRoom
			}
		}
		a.setFocus(focus)
		return nil
	})
	if err != nil {
		return err
	}
	return router.WriteJSON(w, http.StatusOK, focus)
}

type DialogsResponse struct {
	Active  *core.Dialog  `json:"active"`
	Pending []core.Dialog `json:"pending"`
}

func (a *App) DialogsHandler(w http.ResponseWriter, r *http.Request) error {
	var res DialogsResponse
	err := a.onLoop(r.Context(), func() error {
		if d, ok := a.dialogs.Active(); ok {
			res.Active = &d
		}
		res.Pending = a.dialogs.Pending()
		return nil
	})
	if err != nil {
		return err
	}
	return router.WriteJSON(w, http.StatusOK, res)
}

type ResolveDialogRequest struct {
	Accepted bool `json:"accepted"`
}

func (a *App) ResolveDialogHandler(w http.ResponseWriter, r *http.Request) error {
	var req ResolveDialogRequest
	if err := router.DecodeJSON(r, &req); err != nil {
		return err
	}
	id := r.PathValue("dialogId")
	err := a.onLoop(r.Context(), func() error {
		return a.resolveDialog(id, req.Accepted)
	})
	if err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

type StatusResponse struct {
	Connected bool          `json:"connected"`
	Ready     bool          `json:"ready"`
	Waiting   []string      `json:"waitingForHistory"`
	Identity  *core.Profile `json:"identity"`
	Peers     int           `json:"peers"`
	RTC       *RTCConfig    `json:"rtcConfig,omitempty"`
}

func (a *App) StatusHandler(w http.ResponseWriter, r *http.Request) error {
	res := StatusResponse{Connected: a.client.Connected()}
	err := a.onLoop(r.Context(), func() error {
		res.Ready = a.boot.Ready()
		res.Waiting = a.boot.Waiting()
		res.Identity = a.state.identity
		res.Peers = len(a.state.peers)
		res.RTC = a.state.rtc
		return nil
	})
	if err != nil {
		return err
	}
	return router.WriteJSON(w, http.StatusOK, res)
}

func (a *App) HealthHandler(w http.ResponseWriter, r *http.Request) error {
	return router.WriteJSON(w, http.StatusOK, map[string]bool{"connected": a.client.Connected()})
}
