package peerchat

import (
	"context"
	"fmt"
	"time"

	"github.com/putto11262002/peerchat/core"
)

// Frames received from the backend.
const (
	IdentityFrame           = "identity"
	ProfileUpdatedFrame     = "profile-updated"
	RoomCreatedFrame        = "room-created"
	RoomJoinedFrame         = "room-joined"
	RoomInfoFrame           = "room-info"
	RoomPermissionFrame     = "room-permission"
	RoomDeletedFrame        = "room-deleted"
	HistoryFrame            = "history"
	MessageFrame            = "message"
	FileDataFrame           = "file-data"
	AccountSeedCreatedFrame = "account-seed-created"
	SeedPhraseDownloadFrame = "seed-phrase-download"
	SeedPhraseImportedFrame = "seed-phrase-imported"
	PeerConnectedFrame      = "peer-connected"
	LocalDBResetReadyFrame  = "local-db-reset-ready"
	ErrorFrame              = "error"
	RTCConfigFrame          = "rtc-config"
	CallStartFrame          = "call-start"
	CallJoinFrame           = "call-join"
	CallSignalFrame         = "call-signal"
	CallEndFrame            = "call-end"
)

// maxFiles bounds the number of file bodies kept in memory.
const maxFiles = 64

// RoomFramePayload is carried by room-created, room-joined and room-info. Absent
// fields leave the record unchanged.
type RoomFramePayload struct {
	RoomKey   string  `json:"roomKey"`
	Name      *string `json:"name"`
	IconEmoji *string `json:"iconEmoji"`
	IconImage *string `json:"iconImage"`
	Writable  *bool   `json:"writable"`
}

type RoomPermissionPayload struct {
	RoomKey  string `json:"roomKey"`
	Writable bool   `json:"writable"`
}

type HistoryPayload struct {
	RoomKey       string         `json:"roomKey"`
	Messages      []core.Message `json:"messages"`
	NextBeforeSeq *int64         `json:"nextBeforeSeq"`
}

type MessagePayload struct {
	RoomKey string       `json:"roomKey"`
	Msg     core.Message `json:"msg"`
}

type SeedPhrasePayload struct {
	SeedPhrase string `json:"seedPhrase"`
}

type PeerPayload struct {
	PublicKey string `json:"publicKey"`
}

type ErrorPayload struct {
	Message string `json:"message"`
	RoomKey string `json:"roomKey,omitempty"`
}

// CallFramePayload is carried by call-start, call-join and call-end.
type CallFramePayload struct {
	core.CallScope
	From string `json:"from"`
}

type CallSignalFramePayload struct {
	core.CallScope
	From   string      `json:"from"`
	To     string      `json:"to"`
	Signal core.Signal `json:"signal"`
}

func malformed(frameType, reason string) error {
	return fmt.Errorf("%w: %s: %s", core.ErrMalformedFrame, frameType, reason)
}

func (a *App) registerFrameHandlers() {
	a.frames.On(IdentityFrame, a.handleIdentity)
	a.frames.On(ProfileUpdatedFrame, a.handleProfileUpdated)
	a.frames.On(RoomCreatedFrame, a.handleRoomJoined)
	a.frames.On(RoomJoinedFrame, a.handleRoomJoined)
	a.frames.On(RoomInfoFrame, a.handleRoomInfo)
	a.frames.On(RoomPermissionFrame, a.handleRoomPermission)
	a.frames.On(RoomDeletedFrame, a.handleRoomDeleted)
	a.frames.On(HistoryFrame, a.handleHistory)
	a.frames.On(MessageFrame, a.handleMessage)
	a.frames.On(FileDataFrame, a.handleFileData)
	a.frames.On(AccountSeedCreatedFrame, a.handleSeedPhrase)
	a.frames.On(SeedPhraseDownloadFrame, a.handleSeedPhrase)
	a.frames.On(SeedPhraseImportedFrame, a.handleSeedImported)
	a.frames.On(PeerConnectedFrame, a.handlePeerConnected)
	a.frames.On(LocalDBResetReadyFrame, a.handleLocalDBReset)
	a.frames.On(ErrorFrame, a.handleError)
	a.frames.On(RTCConfigFrame, a.handleRTCConfig)
	a.frames.On(CallStartFrame, a.handleCallAnnounce)
	a.frames.On(CallJoinFrame, a.handleCallAnnounce)
	a.frames.On(CallSignalFrame, a.handleCallSignal)
	a.frames.On(CallEndFrame, a.handleCallEnd)
}

func (a *App) handleIdentity(ctx context.Context, f *core.Frame) error {
	var p core.Profile
	if err := f.Decode(&p); err != nil {
		return err
	}
	if p.PublicKey == "" {
		return malformed(f.Type, "missing publicKey")
	}
	a.state.identity = &p
	a.calls.SetLocalKey(p.PublicKey)
	if err := a.profiles.SaveProfile(ctx, p, true); err != nil {
		a.logger.Error("failed to cache identity", "error", err)
	}
	a.logger.Info("identity received", "publicKey", p.PublicKey)
	a.boot.Identity()
	return nil
}

func (a *App) handleProfileUpdated(ctx context.Context, f *core.Frame) error {
	var p core.Profile
	if err := f.Decode(&p); err != nil {
		return err
	}
	if p.PublicKey == "" {
		return malformed(f.Type, "missing publicKey")
	}
	local := p.PublicKey == a.state.localKey()
	if local {
		a.state.identity = &p
	}
	return a.profiles.SaveProfile(ctx, p, local)
}

func (p RoomFramePayload) apply(r core.Room) core.Room {
	r.Key = p.RoomKey
	if p.Name != nil {
		r.Name = *p.Name
	}
	if p.IconEmoji != nil {
		r.IconEmoji = *p.IconEmoji
	}
	if p.IconImage != nil {
		r.IconImage = *p.IconImage
	}
	if p.Writable != nil {
		r.Writable = *p.Writable
	}
	return r
}

func (a *App) saveRecord(ctx context.Context, r core.Room) {
	a.state.records[r.Key] = r
	if err := a.logStore.SaveRoom(ctx, r); err != nil {
		a.logger.Error("failed to cache room", "room", r.Key, "error", err)
	}
}

// handleRoomJoined records a room we created or joined and starts watching it.
func (a *App) handleRoomJoined(ctx context.Context, f *core.Frame) error {
	var p RoomFramePayload
	if err := f.Decode(&p); err != nil {
		return err
	}
	if p.RoomKey == "" {
		return malformed(f.Type, "missing roomKey")
	}
	r, known := a.state.records[p.RoomKey]
	if !known && p.Writable == nil {
		// members can post unless the backend says otherwise
		r.Writable = true
	}
	a.saveRecord(ctx, p.apply(r))
	return a.watchRoom(p.RoomKey, nil)
}

func (a *App) handleRoomInfo(ctx context.Context, f *core.Frame) error {
	var p RoomFramePayload
	if err := f.Decode(&p); err != nil {
		return err
	}
	if p.RoomKey == "" {
		return malformed(f.Type, "missing roomKey")
	}
	a.saveRecord(ctx, p.apply(a.state.records[p.RoomKey]))
	return nil
}

func (a *App) handleRoomPermission(ctx context.Context, f *core.Frame) error {
	var p RoomPermissionPayload
	if err := f.Decode(&p); err != nil {
		return err
	}
	if p.RoomKey == "" {
		return malformed(f.Type, "missing roomKey")
	}
	r := a.state.records[p.RoomKey]
	r.Key = p.RoomKey
	r.Writable = p.Writable
	a.saveRecord(ctx, r)
	return nil
}

func (a *App) handleRoomDeleted(ctx context.Context, f *core.Frame) error {
	var p RoomFramePayload
	if err := f.Decode(&p); err != nil {
		return err
	}
	if p.RoomKey == "" {
		return malformed(f.Type, "missing roomKey")
	}
	a.forgetRoom(ctx, p.RoomKey)
	return nil
}

func (a *App) forgetRoom(ctx context.Context, roomKey string) {
	if scope, ok := a.calls.Scope(); ok && scope.RoomKey == roomKey {
		a.calls.End()
	}
	for id, call := range a.state.ongoing {
		if call.Scope.RoomKey == roomKey {
			a.dropOngoing(id)
		}
	}
	a.rooms.Drop(ctx, roomKey)
	delete(a.state.records, roomKey)
	a.boot.Forget(roomKey)
	if a.state.focus.RoomKey == roomKey {
		a.state.focus = core.Focus{}
	}
	a.logger.Info("room removed", "room", roomKey)
}

// watchRoom asks for the newest history page, or the page before beforeSeq.
// Only the newest page holds the connection gate.
func (a *App) watchRoom(roomKey string, beforeSeq *int64) error {
	if beforeSeq == nil {
		a.boot.Expect(roomKey)
	}
	return a.commands.WatchRoom(WatchRoomPayload{RoomKey: roomKey, BeforeSeq: beforeSeq})
}

func (a *App) handleHistory(ctx context.Context, f *core.Frame) error {
	var p HistoryPayload
	if err := f.Decode(&p); err != nil {
		return err
	}
	if p.RoomKey == "" {
		return malformed(f.Type, "missing roomKey")
	}
	res := a.rooms.IngestHistory(ctx, p.RoomKey, p.Messages)
	a.metrics.Ingested(res.Accepted, res.Duplicates)

	r, ok := a.state.records[p.RoomKey]
	if !ok {
		a.logger.Debug("history for an unknown room", "room", p.RoomKey)
		r.Key = p.RoomKey
	}
	r.NextBeforeSeq = p.NextBeforeSeq
	a.saveRecord(ctx, r)

	a.logger.Debug("history page ingested", "room", p.RoomKey,
		"accepted", res.Accepted, "duplicates", res.Duplicates)
	a.boot.Loaded(p.RoomKey)
	return nil
}

func (a *App) handleMessage(ctx context.Context, f *core.Frame) error {
	var p MessagePayload
	if err := f.Decode(&p); err != nil {
		return err
	}
	if p.RoomKey == "" {
		return malformed(f.Type, "missing roomKey")
	}
	res := a.rooms.IngestMessage(ctx, p.RoomKey, p.Msg)
	a.metrics.Ingested(res.Accepted, res.Duplicates)
	return nil
}

func (a *App) handleFileData(_ context.Context, f *core.Frame) error {
	var p FileData
	if err := f.Decode(&p); err != nil {
		return err
	}
	if p.ID == "" {
		return malformed(f.Type, "missing fileId")
	}
	if _, ok := a.state.files[p.ID]; !ok && len(a.state.files) >= maxFiles {
		var oldest string
		for id, file := range a.state.files {
			if oldest == "" || file.ReceivedAt.Before(a.state.files[oldest].ReceivedAt) {
				oldest = id
			}
		}
		delete(a.state.files, oldest)
	}
	p.ReceivedAt = time.Now()
	a.state.files[p.ID] = p
	return nil
}

func (a *App) handleSeedPhrase(_ context.Context, f *core.Frame) error {
	var p SeedPhrasePayload
	if err := f.Decode(&p); err != nil {
		return err
	}
	if p.SeedPhrase == "" {
		return malformed(f.Type, "missing seedPhrase")
	}
	a.enqueueDialog(core.Dialog{
		Kind:    core.DialogSeedPhrase,
		Title:   "Recovery phrase",
		Message: "Write these words down and keep them somewhere safe. They are the only way to restore this account.",
		Data:    p,
	}, nil)
	return nil
}

func (a *App) handleSeedImported(_ context.Context, f *core.Frame) error {
	var p PeerPayload
	if err := f.Decode(&p); err != nil {
		return err
	}
	a.enqueueDialog(core.Dialog{
		Kind:    core.DialogInfo,
		Title:   "Account restored",
		Message: "Your account was restored from the recovery phrase.",
		Data:    p,
	}, nil)
	return nil
}

func (a *App) handlePeerConnected(_ context.Context, f *core.Frame) error {
	var p PeerPayload
	if err := f.Decode(&p); err != nil {
		return err
	}
	if p.PublicKey == "" {
		return malformed(f.Type, "missing publicKey")
	}
	a.state.peers.Add(p.PublicKey)
	a.metrics.Peers(len(a.state.peers))
	return nil
}

// handleLocalDBReset wipes every local copy and reconnects to download it again.
func (a *App) handleLocalDBReset(ctx context.Context, _ *core.Frame) error {
	a.logger.Warn("backend reset its database, dropping local state")
	if a.calls.Active() {
		a.calls.End()
	}
	a.rooms.Reset()
	if err := a.logStore.Reset(ctx); err != nil {
		a.logger.Error("failed to reset cache", "error", err)
	}
	a.state.records = make(map[string]core.Room)
	a.state.focus = core.Focus{}
	a.state.resetSession()
	a.boot.Reset()
	a.client.Reconnect()
	return nil
}

// handleError shows the error and releases the connection gate, since the history
// it waits for may never come.
func (a *App) handleError(_ context.Context, f *core.Frame) error {
	var p ErrorPayload
	if err := f.Decode(&p); err != nil {
		return err
	}
	if p.Message == "" {
		p.Message = "The backend reported an unknown error."
	}
	a.logger.Warn("backend error", "message", p.Message, "room", p.RoomKey)
	a.enqueueDialog(core.Dialog{
		Kind:    core.DialogError,
		Title:   "Error",
		Message: p.Message,
	}, nil)
	a.boot.ClearPending()
	return nil
}

func (a *App) handleRTCConfig(_ context.Context, f *core.Frame) error {
	var p RTCConfig
	if err := f.Decode(&p); err != nil {
		return err
	}
	a.state.rtc = &p
	return nil
}
