package peerchat

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"strconv"

	"github.com/putto11262002/peerchat/core"
	"github.com/putto11262002/peerchat/pkg/router"
)

var (
	ErrNotAdmin       = errors.New("only room admins can do this")
	ErrNotOwner       = errors.New("only the room owner can do this")
	ErrComposeBlocked = errors.New("cannot post here")
	ErrNoOlderHistory = errors.New("no older history")
	ErrFileNotFound   = errors.New("file not found")
	ErrUnknownMessage = errors.New("unknown message")
)

// RoomSummary is a cached room record with its folded view.
type RoomSummary struct {
	core.Room
	View *core.RoomView `json:"view,omitempty"`
}

// onLoop runs fn on the event loop and returns its error.
func (a *App) onLoop(ctx context.Context, fn func() error) error {
	var err error
	if loopErr := a.loop.Do(ctx, func() { err = fn() }); loopErr != nil {
		return loopErr
	}
	return err
}

func (a *App) summary(r core.Room) RoomSummary {
	s := RoomSummary{Room: r}
	if view, ok := a.rooms.View(r.Key); ok {
		s.View = view
		// the folded profile takes precedence over the backend defaults
		if view.Name != "" {
			s.Name = view.Name
		}
		if view.IconEmoji != "" {
			s.IconEmoji = view.IconEmoji
		}
		if view.IconImage != "" {
			s.IconImage = view.IconImage
		}
	}
	return s
}

func (a *App) ListRoomsHandler(w http.ResponseWriter, r *http.Request) error {
	var rooms []RoomSummary
	err := a.onLoop(r.Context(), func() error {
		rooms = make([]RoomSummary, 0, len(a.state.records))
		for _, rec := range a.state.records {
			rooms = append(rooms, a.summary(rec))
		}
		return nil
	})
	if err != nil {
		return err
	}
	sort.Slice(rooms, func(i, j int) bool { return rooms[i].Key < rooms[j].Key })
	return router.WriteJSON(w, http.StatusOK, rooms)
}

func (a *App) GetRoomHandler(w http.ResponseWriter, r *http.Request) error {
	roomKey := r.PathValue("roomKey")
	var room RoomSummary
	err := a.onLoop(r.Context(), func() error {
		rec, ok := a.state.records[roomKey]
		if !ok {
			return core.ErrUnknownRoom
		}
		room = a.summary(rec)
		return nil
	})
	if err != nil {
		return err
	}
	return router.WriteJSON(w, http.StatusOK, room)
}

func scopeFromQuery(r *http.Request) core.ViewScope {
	q := r.URL.Query()
	return core.ViewScope{
		ChannelID:    q.Get("channel"),
		DMKey:        q.Get("dm"),
		ThreadRootID: q.Get("thread"),
	}
}

// MessagesHandler lists the messages of a scope in presentation order. limit keeps
// the newest ones.
func (a *App) MessagesHandler(w http.ResponseWriter, r *http.Request) error {
	roomKey := r.PathValue("roomKey")
	scope := scopeFromQuery(r)
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	var msgs []core.Message
	err := a.onLoop(r.Context(), func() error {
		l, ok := a.rooms.Log(roomKey)
		if !ok {
			if _, known := a.state.records[roomKey]; !known {
				return core.ErrUnknownRoom
			}
			msgs = []core.Message{}
			return nil
		}
		msgs = l.Presentation(scope)
		return nil
	})
	if err != nil {
		return err
	}
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return router.WriteJSON(w, http.StatusOK, msgs)
}

func (a *App) accessRequest(roomKey string, scope core.ViewScope, voiceChannelID string, purpose core.AccessPurpose) core.AccessRequest {
	view, _ := a.rooms.View(roomKey)
	return core.AccessRequest{
		View:           view,
		Writable:       a.state.writable(roomKey),
		LocalKey:       a.state.localKey(),
		Scope:          scope,
		VoiceChannelID: voiceChannelID,
		Purpose:        purpose,
	}
}

func (a *App) AccessHandler(w http.ResponseWriter, r *http.Request) error {
	roomKey := r.PathValue("roomKey")
	scope := scopeFromQuery(r)
	voice := r.URL.Query().Get("voice")
	purpose := core.AccessPurpose(r.URL.Query().Get("purpose"))
	if purpose == "" {
		purpose = core.PurposeCompose
	}
	if purpose != core.PurposeCompose && purpose != core.PurposeCall {
		return router.NewJsonError(http.StatusBadRequest, "purpose must be compose or call")
	}

	var access core.Access
	err := a.onLoop(r.Context(), func() error {
		if _, ok := a.state.records[roomKey]; !ok {
			return core.ErrUnknownRoom
		}
		access = core.CheckAccess(a.accessRequest(roomKey, scope, voice, purpose))
		return nil
	})
	if err != nil {
		return err
	}
	return router.WriteJSON(w, http.StatusOK, access)
}

// checkCompose fails if the local user may not post in scope.
func (a *App) checkCompose(roomKey string, scope core.ViewScope) error {
	if _, ok := a.state.records[roomKey]; !ok {
		return core.ErrUnknownRoom
	}
	access := core.CheckAccess(a.accessRequest(roomKey, scope, "", core.PurposeCompose))
	if access.Blocked {
		return core.NewErrorf("%w: %s", ErrComposeBlocked, access.Message)
	}
	return nil
}

func (a *App) SendMessageHandler(w http.ResponseWriter, r *http.Request) error {
	var payload SendMessagePayload
	if err := router.DecodeJSON(r, &payload); err != nil {
		return err
	}
	payload.RoomKey = r.PathValue("roomKey")
	if payload.DMKey == "" && len(payload.DMParticipants) == 2 {
		payload.DMKey = core.DMKey(payload.DMParticipants[0], payload.DMParticipants[1])
	}

	err := a.onLoop(r.Context(), func() error {
		scope := core.ViewScope{ChannelID: payload.ChannelID, DMKey: payload.DMKey, ThreadRootID: payload.ThreadRootID}
		if err := a.checkCompose(payload.RoomKey, scope); err != nil {
			return err
		}
		return a.commands.SendMessage(payload)
	})
	if err != nil {
		return err
	}
	w.WriteHeader(http.StatusAccepted)
	return nil
}

type ReactionRequest struct {
	MessageID string `json:"messageId"`
	Emoji     string `json:"emoji"`
	On        *bool  `json:"on"`
}

func (a *App) ReactHandler(w http.ResponseWriter, r *http.Request) error {
	var req ReactionRequest
	if err := router.DecodeJSON(r, &req); err != nil {
		return err
	}
	payload := SendReactionPayload{
		RoomKey:   r.PathValue("roomKey"),
		MessageID: req.MessageID,
		Emoji:     req.Emoji,
		On:        req.On == nil || *req.On,
	}

	err := a.onLoop(r.Context(), func() error {
		l, ok := a.rooms.Log(payload.RoomKey)
		if !ok {
			return core.ErrUnknownRoom
		}
		target, ok := l.Find(payload.MessageID)
		if !ok {
			return ErrUnknownMessage
		}
		scope := core.ViewScope{ChannelID: target.Channel(), DMKey: target.DMKey}
		if err := a.checkCompose(payload.RoomKey, scope); err != nil {
			return err
		}
		return a.commands.SendReaction(payload)
	})
	if err != nil {
		return err
	}
	w.WriteHeader(http.StatusAccepted)
	return nil
}

// LoadOlderHandler asks for the history page before the oldest one received.
func (a *App) LoadOlderHandler(w http.ResponseWriter, r *http.Request) error {
	roomKey := r.PathValue("roomKey")
	err := a.onLoop(r.Context(), func() error {
		rec, ok := a.state.records[roomKey]
		if !ok {
			return core.ErrUnknownRoom
		}
		if rec.NextBeforeSeq == nil {
			return ErrNoOlderHistory
		}
		return a.watchRoom(roomKey, rec.NextBeforeSeq)
	})
	if err != nil {
		return err
	}
	w.WriteHeader(http.StatusAccepted)
	return nil
}

// moderate runs send on the loop if the local user administers the room.
func (a *App) moderate(ctx context.Context, roomKey string, ownerOnly bool, send func() error) error {
	return a.onLoop(ctx, func() error {
		if _, ok := a.state.records[roomKey]; !ok {
			return core.ErrUnknownRoom
		}
		if !a.state.writable(roomKey) {
			return core.NewErrorf("%w: %s", ErrComposeBlocked, core.ReasonReadOnly.Message())
		}
		view, ok := a.rooms.View(roomKey)
		local := a.state.localKey()
		if !ok || view.IsBanned(local) || !view.IsAdmin(local) {
			return ErrNotAdmin
		}
		if ownerOnly && view.Owner != local {
			return ErrNotOwner
		}
		return send()
	})
}

func accepted(w http.ResponseWriter, err error) error {
	if err != nil {
		return err
	}
	w.WriteHeader(http.StatusAccepted)
	return nil
}

func (a *App) SetRoomNameHandler(w http.ResponseWriter, r *http.Request) error {
	var payload SetRoomNamePayload
	if err := router.DecodeJSON(r, &payload); err != nil {
		return err
	}
	payload.RoomKey = r.PathValue("roomKey")
	return accepted(w, a.moderate(r.Context(), payload.RoomKey, false, func() error {
		return a.commands.SetRoomName(payload)
	}))
}

func (a *App) SetRoomProfileHandler(w http.ResponseWriter, r *http.Request) error {
	var payload SetRoomProfilePayload
	if err := router.DecodeJSON(r, &payload); err != nil {
		return err
	}
	payload.RoomKey = r.PathValue("roomKey")
	return accepted(w, a.moderate(r.Context(), payload.RoomKey, false, func() error {
		return a.commands.SetRoomProfile(payload)
	}))
}

func (a *App) SetRoomAdminsHandler(w http.ResponseWriter, r *http.Request) error {
	var payload SetRoomAdminsPayload
	if err := router.DecodeJSON(r, &payload); err != nil {
		return err
	}
	payload.RoomKey = r.PathValue("roomKey")
	return accepted(w, a.moderate(r.Context(), payload.RoomKey, false, func() error {
		return a.commands.SetRoomAdmins(payload)
	}))
}

func (a *App) SetRoomOwnerHandler(w http.ResponseWriter, r *http.Request) error {
	var payload SetRoomOwnerPayload
	if err := router.DecodeJSON(r, &payload); err != nil {
		return err
	}
	payload.RoomKey = r.PathValue("roomKey")
	return accepted(w, a.moderate(r.Context(), payload.RoomKey, true, func() error {
		return a.commands.SetRoomOwner(payload)
	}))
}

func (a *App) DisbandRoomHandler(w http.ResponseWriter, r *http.Request) error {
	payload := RoomPayload{RoomKey: r.PathValue("roomKey")}
	return accepted(w, a.moderate(r.Context(), payload.RoomKey, true, func() error {
		return a.commands.DisbandRoom(payload)
	}))
}

type AddChannelResponse struct {
	ID string `json:"id"`
}

func (a *App) AddChannelHandler(w http.ResponseWriter, r *http.Request) error {
	var payload AddChannelPayload
	if err := router.DecodeJSON(r, &payload); err != nil {
		return err
	}
	payload.RoomKey = r.PathValue("roomKey")
	var id string
	err := a.moderate(r.Context(), payload.RoomKey, false, func() error {
		var err error
		id, err = a.commands.AddChannel(payload)
		return err
	})
	if err != nil {
		return err
	}
	return router.WriteJSON(w, http.StatusAccepted, AddChannelResponse{ID: id})
}

func (a *App) BanHandler(w http.ResponseWriter, r *http.Request) error {
	var payload MemberPayload
	if err := router.DecodeJSON(r, &payload); err != nil {
		return err
	}
	payload.RoomKey = r.PathValue("roomKey")
	return accepted(w, a.moderate(r.Context(), payload.RoomKey, false, func() error {
		return a.commands.BanUser(payload)
	}))
}

func (a *App) UnbanHandler(w http.ResponseWriter, r *http.Request) error {
	payload := MemberPayload{RoomKey: r.PathValue("roomKey"), Target: r.PathValue("publicKey")}
	return accepted(w, a.moderate(r.Context(), payload.RoomKey, false, func() error {
		return a.commands.UnbanUser(payload)
	}))
}

func (a *App) KickFromChannelHandler(w http.ResponseWriter, r *http.Request) error {
	var payload KickUserChannelPayload
	if err := router.DecodeJSON(r, &payload); err != nil {
		return err
	}
	payload.RoomKey = r.PathValue("roomKey")
	return accepted(w, a.moderate(r.Context(), payload.RoomKey, false, func() error {
		return a.commands.KickUserChannel(payload)
	}))
}

func (a *App) PinHandler(w http.ResponseWriter, r *http.Request) error {
	var payload PinPayload
	if err := router.DecodeJSON(r, &payload); err != nil {
		return err
	}
	payload.RoomKey = r.PathValue("roomKey")
	return accepted(w, a.moderate(r.Context(), payload.RoomKey, false, func() error {
		return a.commands.PinMessage(payload)
	}))
}

func (a *App) UnpinHandler(w http.ResponseWriter, r *http.Request) error {
	payload := PinPayload{
		RoomKey:   r.PathValue("roomKey"),
		MessageID: r.PathValue("messageId"),
		ChannelID: r.URL.Query().Get("channel"),
	}
	return accepted(w, a.moderate(r.Context(), payload.RoomKey, false, func() error {
		return a.commands.UnpinMessage(payload)
	}))
}

func (a *App) AddCustomEmojiHandler(w http.ResponseWriter, r *http.Request) error {
	var payload AddCustomEmojiPayload
	if err := router.DecodeJSON(r, &payload); err != nil {
		return err
	}
	payload.RoomKey = r.PathValue("roomKey")
	return accepted(w, a.moderate(r.Context(), payload.RoomKey, false, func() error {
		return a.commands.AddCustomEmoji(payload)
	}))
}

func (a *App) RemoveCustomEmojiHandler(w http.ResponseWriter, r *http.Request) error {
	payload := RemoveCustomEmojiPayload{RoomKey: r.PathValue("roomKey"), Name: r.PathValue("name")}
	return accepted(w, a.moderate(r.Context(), payload.RoomKey, false, func() error {
		return a.commands.RemoveCustomEmoji(payload)
	}))
}

func (a *App) FriendAcceptHandler(w http.ResponseWriter, r *http.Request) error {
	payload := FriendAcceptPayload{RoomKey: r.PathValue("roomKey"), Target: r.PathValue("publicKey")}
	return accepted(w, a.onLoop(r.Context(), func() error {
		if _, ok := a.state.records[payload.RoomKey]; !ok {
			return core.ErrUnknownRoom
		}
		return a.commands.FriendAccept(payload)
	}))
}

func (a *App) FileHandler(w http.ResponseWriter, r *http.Request) error {
	id := r.PathValue("fileId")
	var file FileData
	err := a.onLoop(r.Context(), func() error {
		f, ok := a.state.files[id]
		if !ok {
			return ErrFileNotFound
		}
		file = f
		return nil
	})
	if err != nil {
		return err
	}
	mime := file.MimeType
	if mime == "" {
		mime = "application/octet-stream"
	}
	w.Header().Set("Content-Type", mime)
	w.Header().Set("Content-Length", strconv.Itoa(len(file.Data)))
	w.WriteHeader(http.StatusOK)
	_, err = w.Write(file.Data)
	return err
}
