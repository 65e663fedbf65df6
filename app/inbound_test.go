package peerchat

import (
	"testing"

	"github.com/putto11262002/peerchat/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBootSequence(t *testing.T) {
	f := newAppFixture(t)

	f.mustDispatch(RoomJoinedFrame, map[string]any{"roomKey": "r1", "name": "Room one"})
	watch := f.sender.sent(t, WatchRoomCommand)
	require.Len(t, watch, 1)
	assert.Equal(t, "r1", watch[0]["roomKey"])

	f.mustDispatch(IdentityFrame, core.Profile{PublicKey: "me", Name: "Me"})
	f.do(func() {
		assert.False(t, f.app.boot.Ready())
		assert.Equal(t, []string{"r1"}, f.app.boot.Waiting())
	})

	f.mustDispatch(HistoryFrame, HistoryPayload{
		RoomKey:       "r1",
		Messages:      []core.Message{textMessage("m1", "alice", 1, 10), textMessage("m2", "me", 2, 20)},
		NextBeforeSeq: seqOf(1),
	})

	f.do(func() {
		assert.True(t, f.app.boot.Ready())

		record := f.app.state.records["r1"]
		assert.True(t, record.Writable)
		assert.Equal(t, "Room one", record.Name)
		require.NotNil(t, record.NextBeforeSeq)
		assert.Equal(t, int64(1), *record.NextBeforeSeq)

		view, ok := f.app.rooms.View("r1")
		require.True(t, ok)
		assert.Equal(t, 2, view.Messages)
		assert.Equal(t, "alice", view.Owner)
	})

	local, err := f.app.profiles.LocalProfile(f.ctx)
	require.NoError(t, err)
	require.NotNil(t, local)
	assert.Equal(t, "me", local.PublicKey)

	cached, err := f.app.logStore.GetRoom(f.ctx, "r1")
	require.NoError(t, err)
	require.NotNil(t, cached)
	assert.Equal(t, "Room one", cached.Name)
}

func TestHistoryForUnknownRoomIsReadOnly(t *testing.T) {
	f := newAppFixture(t)
	f.mustDispatch(HistoryFrame, HistoryPayload{RoomKey: "lurk", Messages: []core.Message{textMessage("m1", "alice", 1, 1)}})

	f.do(func() {
		record, ok := f.app.state.records["lurk"]
		require.True(t, ok)
		assert.False(t, record.Writable)
	})
}

func TestMessageIngest(t *testing.T) {
	f := newAppFixture(t)
	f.connect("me", "r1")

	msg := textMessage("m1", "alice", 1, 100)
	f.mustDispatch(MessageFrame, MessagePayload{RoomKey: "r1", Msg: msg})
	// redelivery of the same sequence number is ignored
	f.mustDispatch(MessageFrame, MessagePayload{RoomKey: "r1", Msg: msg})
	f.mustDispatch(MessageFrame, MessagePayload{RoomKey: "r1",
		Msg: systemMessage(t, "m2", "alice", 2, core.ActionRoomNameSet, core.RoomNameSet{Name: "Renamed"})})

	f.do(func() {
		view, ok := f.app.rooms.View("r1")
		require.True(t, ok)
		assert.Equal(t, 2, view.Messages)
		assert.Equal(t, "Renamed", view.Name)
	})

	log, err := f.app.logStore.LoadLog(f.ctx, "r1")
	require.NoError(t, err)
	assert.Len(t, log, 2)
}

func TestMalformedFrames(t *testing.T) {
	f := newAppFixture(t)

	err := f.dispatch(MessageFrame, map[string]any{"msg": map[string]any{"id": "m1"}})
	require.ErrorIs(t, err, core.ErrMalformedFrame)

	err = f.dispatch(IdentityFrame, map[string]any{"name": "nobody"})
	require.ErrorIs(t, err, core.ErrMalformedFrame)

	// unknown frames are ignored
	require.NoError(t, f.dispatch("something-new", map[string]any{}))
}

func TestErrorFrame(t *testing.T) {
	f := newAppFixture(t)
	f.mustDispatch(RoomJoinedFrame, map[string]any{"roomKey": "r1"})
	f.mustDispatch(IdentityFrame, core.Profile{PublicKey: "me"})

	f.mustDispatch(ErrorFrame, ErrorPayload{Message: "room r1 is unavailable"})
	f.do(func() {
		active, ok := f.app.dialogs.Active()
		require.True(t, ok)
		assert.Equal(t, core.DialogError, active.Kind)
		assert.Equal(t, "room r1 is unavailable", active.Message)
		assert.True(t, f.app.boot.Ready())
	})
}

func TestRoomPermissionAndInfo(t *testing.T) {
	f := newAppFixture(t)
	f.connect("me", "r1")

	f.mustDispatch(RoomPermissionFrame, RoomPermissionPayload{RoomKey: "r1", Writable: false})
	f.mustDispatch(RoomInfoFrame, map[string]any{"roomKey": "r1", "iconEmoji": "🎉"})

	f.do(func() {
		record := f.app.state.records["r1"]
		assert.False(t, record.Writable)
		assert.Equal(t, "🎉", record.IconEmoji)
		assert.Equal(t, "r1", record.Name)
	})
}

func TestRoomDeleted(t *testing.T) {
	f := newAppFixture(t)
	f.connect("me", "r1", "r2")
	f.mustDispatch(MessageFrame, MessagePayload{RoomKey: "r1", Msg: textMessage("m1", "alice", 1, 1)})

	f.mustDispatch(RoomDeletedFrame, map[string]any{"roomKey": "r1"})
	f.do(func() {
		_, ok := f.app.state.records["r1"]
		assert.False(t, ok)
		_, ok = f.app.rooms.View("r1")
		assert.False(t, ok)
		_, ok = f.app.state.records["r2"]
		assert.True(t, ok)
	})

	log, err := f.app.logStore.LoadLog(f.ctx, "r1")
	require.NoError(t, err)
	assert.Empty(t, log)
}

func TestFileData(t *testing.T) {
	f := newAppFixture(t)
	f.mustDispatch(FileDataFrame, map[string]any{"fileId": "f1", "name": "a.txt", "mimeType": "text/plain", "data": "aGVsbG8="})

	f.do(func() {
		file, ok := f.app.state.files["f1"]
		require.True(t, ok)
		assert.Equal(t, []byte("hello"), file.Data)
	})

	for i := 0; i < maxFiles+5; i++ {
		f.mustDispatch(FileDataFrame, map[string]any{"fileId": string(rune('A' + i)), "data": ""})
	}
	f.do(func() {
		assert.Len(t, f.app.state.files, maxFiles)
	})
}

func TestSeedPhraseDialogs(t *testing.T) {
	f := newAppFixture(t)
	f.mustDispatch(AccountSeedCreatedFrame, SeedPhrasePayload{SeedPhrase: "one two three"})
	f.mustDispatch(SeedPhraseImportedFrame, PeerPayload{PublicKey: "me"})

	f.do(func() {
		active, ok := f.app.dialogs.Active()
		require.True(t, ok)
		assert.Equal(t, core.DialogSeedPhrase, active.Kind)
		assert.Equal(t, 2, f.app.dialogs.Len())

		require.NoError(t, f.app.resolveDialog(active.ID, true))
		next, ok := f.app.dialogs.Active()
		require.True(t, ok)
		assert.Equal(t, core.DialogInfo, next.Kind)
	})
}

func TestRTCConfigAndPeers(t *testing.T) {
	f := newAppFixture(t)
	f.mustDispatch(RTCConfigFrame, map[string]any{
		"iceServers": []map[string]any{
			{"urls": "stun:stun.example.org"},
			{"urls": []string{"turn:a.example.org", "turn:b.example.org"}, "username": "u"},
		},
		"peerServerPort": 9000,
	})
	f.mustDispatch(PeerConnectedFrame, PeerPayload{PublicKey: "bob"})

	f.do(func() {
		require.NotNil(t, f.app.state.rtc)
		require.Len(t, f.app.state.rtc.ICEServers, 2)
		assert.Equal(t, StringList{"stun:stun.example.org"}, f.app.state.rtc.ICEServers[0].URLs)
		assert.Len(t, f.app.state.rtc.ICEServers[1].URLs, 2)
		assert.Equal(t, 9000, f.app.state.rtc.PeerServerPort)
		assert.True(t, f.app.state.peers.Has("bob"))
	})
}

func TestLocalDBReset(t *testing.T) {
	f := newAppFixture(t)
	f.connect("me", "r1")
	f.mustDispatch(MessageFrame, MessagePayload{RoomKey: "r1", Msg: textMessage("m1", "alice", 1, 1)})

	f.mustDispatch(LocalDBResetReadyFrame, map[string]any{})
	f.do(func() {
		assert.Empty(t, f.app.state.records)
		assert.Empty(t, f.app.rooms.Views())
		assert.False(t, f.app.boot.Ready())
	})

	rooms, err := f.app.logStore.ListRooms(f.ctx)
	require.NoError(t, err)
	assert.Empty(t, rooms)
}

func TestStaleConnectionFramesDropped(t *testing.T) {
	f := newAppFixture(t)
	frame, err := core.NewFrame(PeerConnectedFrame, PeerPayload{PublicKey: "bob"})
	require.NoError(t, err)

	stale := f.app.client.Token() + 1
	f.app.onFrame(stale, frame)
	f.do(func() {
		assert.False(t, f.app.state.peers.Has("bob"))
	})

	f.app.onFrame(f.app.client.Token(), frame)
	f.do(func() {
		assert.True(t, f.app.state.peers.Has("bob"))
	})
}

func TestReconnectWatchesKnownRooms(t *testing.T) {
	f := newAppFixture(t)
	f.connect("me", "r1")
	require.Len(t, f.sender.sent(t, WatchRoomCommand), 1)

	token := f.app.client.Token()
	f.app.onDisconnected(token, nil)
	f.app.onConnected(token)
	f.do(func() {
		assert.False(t, f.app.boot.Ready())
		assert.Equal(t, []string{"r1"}, f.app.boot.Waiting())
	})
	watch := f.sender.sent(t, WatchRoomCommand)
	require.Len(t, watch, 2)
	assert.Equal(t, "r1", watch[1]["roomKey"])
	assert.NotContains(t, watch[1], "beforeSeq")

	f.mustDispatch(IdentityFrame, core.Profile{PublicKey: "me", Name: "me"})
	f.do(func() {
		assert.False(t, f.app.boot.Ready(), "history of r1 is still missing")
	})

	f.mustDispatch(HistoryFrame, HistoryPayload{RoomKey: "r1"})
	f.do(func() {
		assert.True(t, f.app.boot.Ready())
	})
}
