package core

import (
	"encoding/json"
	"errors"
	"strings"
)

// MessageKind is the top level type of a message in a room feed.
type MessageKind string

const (
	KindText     MessageKind = "text"
	KindFile     MessageKind = "file"
	KindReaction MessageKind = "reaction"
	KindSystem   MessageKind = "system"
	KindVoice    MessageKind = "voice"
	// KindUnknown is returned by Message.Kind for any type the client does not understand.
	// Unknown messages are kept in the log but ignored by every fold.
	KindUnknown MessageKind = ""
)

// SystemAction identifies what a system message does to the room state.
type SystemAction string

const (
	ActionRoomNameSet       SystemAction = "room-name-set"
	ActionRoomProfileSet    SystemAction = "room-profile-set"
	ActionRoomAdminSet      SystemAction = "room-admin-set"
	ActionRoomOwnerSet      SystemAction = "room-owner-set"
	ActionRoomDisband       SystemAction = "room-disband"
	ActionChannelAdd        SystemAction = "channel-add"
	ActionMessagePin        SystemAction = "message-pin"
	ActionMessageUnpin      SystemAction = "message-unpin"
	ActionMessageReaction   SystemAction = "message-reaction"
	ActionMessageEdit       SystemAction = "message-edit"
	ActionRoomBan           SystemAction = "room-ban"
	ActionRoomUnban         SystemAction = "room-unban"
	ActionRoomKick          SystemAction = "room-kick"
	ActionRoomUnkick        SystemAction = "room-unkick"
	ActionChannelKick       SystemAction = "channel-kick"
	ActionChannelUnkick     SystemAction = "channel-unkick"
	ActionFriendRequest     SystemAction = "friend-request"
	ActionFriendAccept      SystemAction = "friend-accept"
	ActionCustomEmojiAdd    SystemAction = "custom-emoji-add"
	ActionCustomEmojiRemove SystemAction = "custom-emoji-remove"
	ActionCallStart         SystemAction = "call-start"
	ActionCallJoin          SystemAction = "call-join"
	ActionCallEnd           SystemAction = "call-end"
)

const (
	// DefaultTextChannel is the implicit text channel every room starts with.
	DefaultTextChannel = "general"
	// DefaultVoiceChannel is the implicit voice channel every room starts with.
	DefaultVoiceChannel = "voice-general"
)

var (
	// ErrMalformed is returned when a message lacks the fields its kind or action requires.
	ErrMalformed = errors.New("malformed message")
	// ErrUnknownAction is returned when the action of a system message is not recognised.
	ErrUnknownAction = errors.New("unknown system action")
)

// Message is a single entry of a room feed. Messages are never mutated once observed.
type Message struct {
	// ID is unique per message. Some legacy entries do not carry one.
	ID           string          `json:"id,omitempty"`
	Sender       string          `json:"sender"`
	SenderName   string          `json:"senderName,omitempty"`
	Type         MessageKind     `json:"type"`
	Timestamp    int64           `json:"timestamp"`
	ChannelID    string          `json:"channelId,omitempty"`
	DMKey        string          `json:"dmKey,omitempty"`
	ThreadRootID string          `json:"threadRootId,omitempty"`
	Action       SystemAction    `json:"action,omitempty"`
	Data         json.RawMessage `json:"data,omitempty"`
	// Seq is the per room sequence number assigned by the backend.
	Seq *int64 `json:"_seq,omitempty"`
}

// Kind normalises the message type, mapping anything unrecognised to KindUnknown.
func (m Message) Kind() MessageKind {
	switch m.Type {
	case KindText, KindFile, KindReaction, KindSystem, KindVoice:
		return m.Type
	default:
		return KindUnknown
	}
}

// Channel returns the text channel the message was posted to.
func (m Message) Channel() string {
	if m.ChannelID == "" {
		return DefaultTextChannel
	}
	return m.ChannelID
}

// Text returns data.text for text messages and an empty string otherwise.
func (m Message) Text() string {
	if len(m.Data) == 0 {
		return ""
	}
	var body struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(m.Data, &body); err != nil {
		return ""
	}
	return body.Text
}

// Payload decodes the data of a system message into the payload type of its action.
// It returns ErrMalformed if the data is absent or incomplete and ErrUnknownAction
// for actions the client does not know about.
func (m Message) Payload() (ActionPayload, error) {
	if m.Kind() != KindSystem {
		return nil, ErrMalformed
	}
	switch m.Action {
	case ActionRoomNameSet:
		return decodePayload[RoomNameSet](m.Data)
	case ActionRoomProfileSet:
		return decodePayload[RoomProfileSet](m.Data)
	case ActionRoomAdminSet:
		return decodePayload[RoomAdminSet](m.Data)
	case ActionRoomOwnerSet:
		return decodePayload[RoomOwnerSet](m.Data)
	case ActionRoomDisband:
		return RoomDisband{}, nil
	case ActionChannelAdd:
		return decodePayload[ChannelAdd](m.Data)
	case ActionMessagePin:
		p, err := decodePayload[PinChange](m.Data)
		p.Pinned = true
		return p, err
	case ActionMessageUnpin:
		return decodePayload[PinChange](m.Data)
	case ActionMessageReaction:
		return decodePayload[Reaction](m.Data)
	case ActionMessageEdit:
		return decodePayload[MessageEdit](m.Data)
	case ActionRoomBan, ActionRoomUnban, ActionRoomKick, ActionRoomUnkick:
		p, err := decodePayload[MemberModeration](m.Data)
		p.Kind = m.Action
		return p, err
	case ActionChannelKick, ActionChannelUnkick:
		p, err := decodePayload[ChannelModeration](m.Data)
		p.Kicked = m.Action == ActionChannelKick
		return p, err
	case ActionFriendRequest, ActionFriendAccept:
		p, err := decodePayload[FriendChange](m.Data)
		p.Accept = m.Action == ActionFriendAccept
		return p, err
	case ActionCustomEmojiAdd:
		p, err := decodePayload[CustomEmojiChange](m.Data)
		p.Added = true
		return p, err
	case ActionCustomEmojiRemove:
		return decodePayload[CustomEmojiChange](m.Data)
	case ActionCallStart, ActionCallJoin, ActionCallEnd:
		return decodePayload[CallNotice](m.Data)
	default:
		return nil, ErrUnknownAction
	}
}

// Reaction decodes a reaction carried either by a reaction-type message or by a
// message-reaction system event.
func (m Message) Reaction() (Reaction, error) {
	switch {
	case m.Kind() == KindReaction:
		return decodePayload[Reaction](m.Data)
	case m.Kind() == KindSystem && m.Action == ActionMessageReaction:
		return decodePayload[Reaction](m.Data)
	default:
		return Reaction{}, ErrMalformed
	}
}

// ActionPayload is implemented by every typed system message payload.
type ActionPayload interface {
	validate() error
}

type RoomNameSet struct {
	Name string `json:"name"`
}

func (p RoomNameSet) validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return ErrMalformed
	}
	return nil
}

// RoomProfileSet updates any subset of the room profile fields.
type RoomProfileSet struct {
	Name      *string `json:"name"`
	IconEmoji *string `json:"iconEmoji"`
	IconImage *string `json:"iconImage"`
}

func (p RoomProfileSet) validate() error {
	if p.Name == nil && p.IconEmoji == nil && p.IconImage == nil {
		return ErrMalformed
	}
	return nil
}

// RoomAdminSet is a full snapshot of the admin set.
type RoomAdminSet struct {
	Admins []string `json:"admins"`
}

func (p RoomAdminSet) validate() error {
	if p.Admins == nil {
		return ErrMalformed
	}
	return nil
}

type RoomOwnerSet struct {
	Owner string `json:"owner"`
}

func (p RoomOwnerSet) validate() error {
	if p.Owner == "" {
		return ErrMalformed
	}
	return nil
}

type RoomDisband struct{}

func (RoomDisband) validate() error { return nil }

type ChannelKind string

const (
	TextChannel  ChannelKind = "text"
	VoiceChannel ChannelKind = "voice"
)

type ChannelAdd struct {
	ID      string      `json:"id"`
	Name    string      `json:"name"`
	Kind    ChannelKind `json:"kind"`
	ModOnly bool        `json:"modOnly"`
}

func (p ChannelAdd) validate() error {
	if p.ID == "" {
		return ErrMalformed
	}
	if p.Kind != "" && p.Kind != TextChannel && p.Kind != VoiceChannel {
		return ErrMalformed
	}
	return nil
}

// PinChange is the payload of message-pin (Pinned true) and message-unpin.
type PinChange struct {
	MessageID string `json:"messageId"`
	ChannelID string `json:"channelId"`
	Pinned    bool   `json:"-"`
}

func (p PinChange) validate() error {
	if p.MessageID == "" {
		return ErrMalformed
	}
	return nil
}

// Channel returns the channel the pin applies to.
func (p PinChange) Channel() string {
	if p.ChannelID == "" {
		return DefaultTextChannel
	}
	return p.ChannelID
}

type Reaction struct {
	MessageID string `json:"messageId"`
	Emoji     string `json:"emoji"`
	// On toggles the reaction. A missing flag means on.
	On *bool `json:"on"`
}

func (p Reaction) validate() error {
	if p.MessageID == "" || p.Emoji == "" {
		return ErrMalformed
	}
	return nil
}

// Enabled reports whether the reaction is being added.
func (p Reaction) Enabled() bool {
	return p.On == nil || *p.On
}

type MessageEdit struct {
	MessageID string `json:"messageId"`
	Text      string `json:"text"`
}

func (p MessageEdit) validate() error {
	if p.MessageID == "" {
		return ErrMalformed
	}
	return nil
}

// MemberModeration is the payload of room-ban, room-unban, room-kick and room-unkick.
type MemberModeration struct {
	Target string       `json:"target"`
	Kind   SystemAction `json:"-"`
}

func (p MemberModeration) validate() error {
	if p.Target == "" {
		return ErrMalformed
	}
	return nil
}

type ChannelModeration struct {
	Target    string `json:"target"`
	ChannelID string `json:"channelId"`
	Kicked    bool   `json:"-"`
}

func (p ChannelModeration) validate() error {
	if p.Target == "" || p.ChannelID == "" {
		return ErrMalformed
	}
	return nil
}

// FriendChange is the payload of friend-request and friend-accept (Accept true).
type FriendChange struct {
	Target string `json:"target"`
	Accept bool   `json:"-"`
}

func (p FriendChange) validate() error {
	if p.Target == "" {
		return ErrMalformed
	}
	return nil
}

type CustomEmojiChange struct {
	Name  string `json:"name"`
	Image string `json:"image"`
	Added bool   `json:"-"`
}

func (p CustomEmojiChange) validate() error {
	if NormalizeEmojiName(p.Name) == "" {
		return ErrMalformed
	}
	return nil
}

// CallNotice is the payload of the call-* system messages some backends append to the feed.
type CallNotice struct {
	CallID    string `json:"callId"`
	ChannelID string `json:"channelId"`
	DMKey     string `json:"dmKey"`
	Mode      string `json:"mode"`
}

func (CallNotice) validate() error { return nil }

func decodePayload[T ActionPayload](data json.RawMessage) (T, error) {
	var p T
	if len(data) == 0 || string(data) == "null" {
		return p, ErrMalformed
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return p, ErrMalformed
	}
	if err := p.validate(); err != nil {
		return p, err
	}
	return p, nil
}

// Room is the backend supplied record of a room the local identity belongs to.
// Name and icon are only defaults; the folded RoomView takes precedence.
type Room struct {
	Key       string `json:"roomKey"`
	Name      string `json:"name"`
	IconEmoji string `json:"iconEmoji"`
	IconImage string `json:"iconImage,omitempty"`
	Writable  bool   `json:"writable"`
	// NextBeforeSeq is the cursor for the next older history page, if any.
	NextBeforeSeq *int64 `json:"nextBeforeSeq,omitempty"`
}
