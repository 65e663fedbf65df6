package peerchat

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/putto11262002/peerchat/core"
	"github.com/stretchr/testify/require"
)

// appFixture is an App without a backend connection. Its event loop runs for the
// lifetime of the test and outbound frames are recorded.
type appFixture struct {
	t      *testing.T
	ctx    context.Context
	app    *App
	sender *recordingSender
}

func newAppFixture(t *testing.T, opts ...Option) *appFixture {
	t.Helper()
	config, err := (&DefaultConfigLoader{}).Load()
	require.NoError(t, err)
	config.SQLite.File = filepath.Join(t.TempDir(), "peerchat.db")
	config.Backend.HistoryTimeout = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	sender := &recordingSender{}
	opts = append([]Option{WithLogger(discardLogger()), withSender(sender)}, opts...)
	app, err := New(ctx, config, opts...)
	require.NoError(t, err)

	go app.loop.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-app.loop.Done()
		app.Close()
	})
	return &appFixture{t: t, ctx: ctx, app: app, sender: sender}
}

// do runs fn on the event loop and waits for it.
func (f *appFixture) do(fn func()) {
	f.t.Helper()
	require.NoError(f.t, f.app.loop.Do(f.ctx, fn))
}

// dispatch delivers a backend frame as if it was read from the connection.
func (f *appFixture) dispatch(frameType string, payload any) error {
	f.t.Helper()
	frame, err := core.NewFrame(frameType, payload)
	require.NoError(f.t, err)
	var dispatchErr error
	f.do(func() {
		dispatchErr = f.app.frames.Dispatch(f.ctx, frame)
	})
	return dispatchErr
}

func (f *appFixture) mustDispatch(frameType string, payload any) {
	f.t.Helper()
	require.NoError(f.t, f.dispatch(frameType, payload))
}

// connect delivers the identity and an empty first history page of every room.
func (f *appFixture) connect(localKey string, rooms ...string) {
	f.t.Helper()
	for _, room := range rooms {
		f.mustDispatch(RoomJoinedFrame, map[string]any{"roomKey": room, "name": room})
	}
	f.mustDispatch(IdentityFrame, core.Profile{PublicKey: localKey, Name: localKey})
	for _, room := range rooms {
		f.mustDispatch(HistoryFrame, HistoryPayload{RoomKey: room})
	}
}

func seqOf(n int64) *int64 {
	return &n
}

func textMessage(id, sender string, seq, ts int64) core.Message {
	return core.Message{
		ID:        id,
		Sender:    sender,
		Type:      core.KindText,
		Timestamp: ts,
		Data:      json.RawMessage(`{"text":"hello"}`),
		Seq:       seqOf(seq),
	}
}

func systemMessage(t *testing.T, id, sender string, seq int64, action core.SystemAction, data any) core.Message {
	t.Helper()
	b, err := json.Marshal(data)
	require.NoError(t, err)
	return core.Message{
		ID:        id,
		Sender:    sender,
		Type:      core.KindSystem,
		Action:    action,
		Timestamp: seq,
		Data:      b,
		Seq:       seqOf(seq),
	}
}
