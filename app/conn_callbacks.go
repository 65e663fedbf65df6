package peerchat

import (
	"maps"
	"slices"

	"github.com/putto11262002/peerchat/core"
)

// onFrame runs on the websocket read goroutine. Frames of a connection that has
// since been replaced are dropped on the loop.
func (a *App) onFrame(token uint64, f *core.Frame) {
	a.metrics.FrameReceived(f.Type)
	a.loop.Post(func() {
		if token != a.client.Token() {
			a.logger.Debug("dropping frame of a stale connection", "type", f.Type)
			return
		}
		a.frames.Dispatch(a.ctx, f)
	})
}

func (a *App) onConnected(token uint64) {
	a.metrics.Connected(true)
	a.loop.Post(func() {
		if token != a.client.Token() {
			return
		}
		a.boot.Reset()
		a.state.resetSession()
		// The backend forgets what we watched when the connection drops.
		for _, key := range slices.Sorted(maps.Keys(a.state.records)) {
			if err := a.watchRoom(key, nil); err != nil {
				a.logger.Warn("failed to watch room", "room", key, "error", err)
			}
		}
		a.logger.Info("waiting for identity and history", "rooms", len(a.state.records))
	})
}

// onDisconnected resets everything tied to the connection. Room logs are rebuilt
// from the cache so that the views stay what a refold of the durable log yields.
func (a *App) onDisconnected(token uint64, err error) {
	a.metrics.Connected(false)
	a.loop.Post(func() {
		if token != a.client.Token() {
			return
		}
		if a.calls.Active() {
			a.calls.End()
		}
		a.boot.Reset()
		a.state.resetSession()
		a.rooms.Reset()
		if _, err := a.rooms.Restore(a.ctx); err != nil {
			a.logger.Error("failed to restore cached rooms", "error", err)
		}
		a.logger.Info("connection lost, state reset", "error", err)
	})
}

func (a *App) onReady() {
	a.logger.Info("client ready", "rooms", len(a.state.records))
}

func (a *App) onDialogChange(active *core.Dialog) {
	if active == nil {
		return
	}
	a.logger.Info("dialog shown", "kind", active.Kind, "title", active.Title)
}

// enqueueDialog returns the dialog id, or an empty string if the queue is closed.
func (a *App) enqueueDialog(d core.Dialog, onResolve func(accepted bool)) string {
	id, err := a.dialogs.Enqueue(d, onResolve)
	if err != nil {
		a.logger.Warn("dropping dialog", "kind", d.Kind, "error", err)
		return ""
	}
	a.metrics.Dialogs(a.dialogs.Len())
	return id
}

func (a *App) resolveDialog(id string, accepted bool) error {
	if err := a.dialogs.Resolve(id, accepted); err != nil {
		return err
	}
	a.metrics.Dialogs(a.dialogs.Len())
	return nil
}
