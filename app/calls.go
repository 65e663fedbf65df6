package peerchat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/putto11262002/peerchat/core"
)

var ErrCallBlocked = errors.New("call not allowed")

func (a *App) decodeCallScope(f *core.Frame, v interface{ scope() core.CallScope }) (core.CallScope, error) {
	if err := f.Decode(v); err != nil {
		return core.CallScope{}, err
	}
	scope := v.scope().Normalize()
	if err := scope.Validate(); err != nil {
		return core.CallScope{}, fmt.Errorf("%s: %w", f.Type, err)
	}
	return scope, nil
}

func (p *CallFramePayload) scope() core.CallScope       { return p.CallScope }
func (p *CallSignalFramePayload) scope() core.CallScope { return p.CallScope }

// handleCallAnnounce handles call-start and call-join. Inside the call we offer the
// newcomer a connection; outside it the call is remembered and rings when it
// concerns what the user is looking at.
func (a *App) handleCallAnnounce(_ context.Context, f *core.Frame) error {
	var p CallFramePayload
	scope, err := a.decodeCallScope(f, &p)
	if err != nil {
		return err
	}
	if p.From == "" || p.From == a.state.localKey() {
		return nil
	}
	if current, ok := a.calls.Scope(); ok {
		if current.Equal(scope) {
			a.calls.HandleParticipant(scope, p.From)
		}
		return nil
	}
	if _, ok := a.state.ongoing[scope.CallID]; !ok {
		a.state.ongoing[scope.CallID] = OngoingCall{Scope: scope, From: p.From, StartedAt: time.Now()}
	}
	if f.Type == CallStartFrame {
		a.ring(scope, p.From)
	}
	return nil
}

func (a *App) ring(scope core.CallScope, from string) {
	if !scope.MatchesFocus(a.state.focus) {
		return
	}
	if _, ringing := a.state.rings[scope.CallID]; ringing {
		return
	}
	caller := from
	if p, err := a.profiles.GetProfile(a.ctx, from); err == nil && p != nil && p.Name != "" {
		caller = p.Name
	}
	id := a.enqueueDialog(core.Dialog{
		Kind:    core.DialogIncomingCall,
		Title:   "Incoming call",
		Message: fmt.Sprintf("%s is calling", caller),
		Data:    OngoingCall{Scope: scope, From: from, StartedAt: time.Now()},
	}, func(accepted bool) {
		delete(a.state.rings, scope.CallID)
		if !accepted {
			return
		}
		// the call may have ended while the dialog was queued
		if _, ok := a.state.ongoing[scope.CallID]; !ok {
			return
		}
		if err := a.joinCall(scope); err != nil {
			a.logger.Warn("failed to join call", "error", err, "call", scope.CallID)
		}
	})
	if id != "" {
		a.state.rings[scope.CallID] = id
	}
}

func (a *App) handleCallSignal(_ context.Context, f *core.Frame) error {
	var p CallSignalFramePayload
	scope, err := a.decodeCallScope(f, &p)
	if err != nil {
		return err
	}
	if p.To != "" && p.To != a.state.localKey() {
		return nil
	}
	a.calls.HandleSignal(scope, p.From, p.Signal)
	return nil
}

func (a *App) handleCallEnd(_ context.Context, f *core.Frame) error {
	var p CallFramePayload
	scope, err := a.decodeCallScope(f, &p)
	if err != nil {
		return err
	}
	if a.calls.HandleRemoteEnd(scope, p.From) {
		return nil
	}
	// a voice channel stays open while anyone is in it
	if scope.Kind != core.ScopeVoice {
		a.dropOngoing(scope.CallID)
	}
	return nil
}

// dropOngoing forgets an announced call and stops it ringing.
func (a *App) dropOngoing(callID string) {
	delete(a.state.ongoing, callID)
	id, ok := a.state.rings[callID]
	if !ok {
		return
	}
	if active, ok := a.dialogs.Active(); ok && active.ID == id {
		a.resolveDialog(id, false)
	}
}

// StartCallRequest is a request to start a call from the current focus.
type StartCallRequest struct {
	Voice          bool          `json:"voice"`
	VoiceChannelID string        `json:"voiceChannelId"`
	Mode           core.CallMode `json:"mode" validate:"omitempty,oneof=audio video"`
}

// startCall resolves the scope of a new call from the focus and checks that the
// user may call there.
func (a *App) startCall(req StartCallRequest) (core.CallScope, error) {
	focus := a.state.focus
	if focus.RoomKey == "" {
		return core.CallScope{}, core.NewErrorf("%w: no room focused", ErrCallBlocked)
	}
	scope := core.ResolveCallScope(core.CallIntent{
		RoomKey:        focus.RoomKey,
		Voice:          req.Voice,
		VoiceChannelID: req.VoiceChannelID,
		Mode:           req.Mode,
	}, focus)
	if err := a.checkCallAccess(scope); err != nil {
		return scope, err
	}
	return scope, a.calls.Start(a.ctx, scope)
}

func (a *App) joinCall(scope core.CallScope) error {
	if err := a.checkCallAccess(scope); err != nil {
		return err
	}
	return a.calls.Join(a.ctx, scope)
}

func (a *App) checkCallAccess(scope core.CallScope) error {
	view, _ := a.rooms.View(scope.RoomKey)
	req := core.AccessRequest{
		View:     view,
		Writable: a.state.writable(scope.RoomKey),
		LocalKey: a.state.localKey(),
		Scope:    core.ViewScope{ChannelID: scope.ChannelID, DMKey: scope.DMKey},
		Purpose:  core.PurposeCall,
	}
	if scope.Kind == core.ScopeVoice {
		req.Scope.ChannelID = ""
		req.VoiceChannelID = scope.ChannelID
	}
	if access := core.CheckAccess(req); access.Blocked {
		return core.NewErrorf("%w: %s", ErrCallBlocked, access.Message)
	}
	return nil
}

// setFocus moves the user and ends a call that does not survive the move.
func (a *App) setFocus(focus core.Focus) {
	a.state.focus = focus
	if a.calls.Navigate(focus) {
		a.logger.Info("call ended by navigation", "room", focus.RoomKey)
	}
}

func (a *App) onCallEvent(e core.CallEvent) {
	a.metrics.CallEvent(string(e))
	a.logger.Info("call event", "event", e, "state", a.calls.State())
}
