package peerchat

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/putto11262002/peerchat/core"
)

// Frames sent to the backend.
const (
	SetProfileCommand        = "set-profile"
	SetPresenceCommand       = "set-presence-status"
	WatchRoomCommand         = "watch-room"
	SendMessageCommand       = "send-message"
	SendReactionCommand      = "send-reaction"
	StartCallCommand         = "start-call"
	JoinCallCommand          = "join-call"
	CallSignalCommand        = "call-signal"
	EndCallCommand           = "end-call"
	SetRoomNameCommand       = "set-room-name"
	SetRoomProfileCommand    = "set-room-profile"
	SetRoomAdminsCommand     = "set-room-admins"
	SetRoomOwnerCommand      = "set-room-owner"
	DisbandRoomCommand       = "disband-room"
	AddChannelCommand        = "add-channel"
	BanUserCommand           = "ban-user"
	UnbanUserCommand         = "unban-user"
	KickUserChannelCommand   = "kick-user-channel"
	PinMessageCommand        = "pin-message"
	UnpinMessageCommand      = "unpin-message"
	AddCustomEmojiCommand    = "add-custom-emoji"
	RemoveCustomEmojiCommand = "remove-custom-emoji"
	FriendAcceptCommand      = "friend-accept"
)

var ErrInvalidCommand = errors.New("invalid command")

type SetProfilePayload struct {
	Name string `json:"name" validate:"required,max=64"`
}

type SetPresencePayload struct {
	Status core.PresenceStatus `json:"status" validate:"required,oneof=online away busy offline"`
}

type WatchRoomPayload struct {
	RoomKey string `json:"roomKey" validate:"required"`
	// BeforeSeq asks for the page before this sequence number.
	BeforeSeq *int64 `json:"beforeSeq,omitempty"`
}

type SendMessagePayload struct {
	RoomKey        string   `json:"roomKey" validate:"required"`
	ChannelID      string   `json:"channelId"`
	Text           string   `json:"text" validate:"required,max=8000"`
	ThreadRootID   string   `json:"threadRootId,omitempty"`
	DMKey          string   `json:"dmKey,omitempty"`
	DMParticipants []string `json:"dmParticipants,omitempty" validate:"required_with=DMKey,omitempty,len=2,dive,required"`
}

type SendReactionPayload struct {
	RoomKey   string `json:"roomKey" validate:"required"`
	MessageID string `json:"messageId" validate:"required"`
	Emoji     string `json:"emoji" validate:"required,reaction"`
	On        bool   `json:"on"`
}

// CallPayload is shared by start-call, join-call and end-call.
type CallPayload struct {
	core.CallScope
}

type CallSignalPayload struct {
	core.CallScope
	To     string      `json:"to" validate:"required"`
	Signal core.Signal `json:"signal"`
}

type SetRoomNamePayload struct {
	RoomKey string `json:"roomKey" validate:"required"`
	Name    string `json:"name" validate:"required,max=100"`
}

type SetRoomProfilePayload struct {
	RoomKey   string  `json:"roomKey" validate:"required"`
	Name      *string `json:"name,omitempty" validate:"omitempty,max=100"`
	IconEmoji *string `json:"iconEmoji,omitempty" validate:"omitempty,emoji"`
	IconImage *string `json:"iconImage,omitempty"`
}

type SetRoomAdminsPayload struct {
	RoomKey string   `json:"roomKey" validate:"required"`
	Admins  []string `json:"admins" validate:"required,min=1,dive,required"`
}

type SetRoomOwnerPayload struct {
	RoomKey string `json:"roomKey" validate:"required"`
	Owner   string `json:"owner" validate:"required"`
}

type RoomPayload struct {
	RoomKey string `json:"roomKey" validate:"required"`
}

type AddChannelPayload struct {
	RoomKey string           `json:"roomKey" validate:"required"`
	ID      string           `json:"id"`
	Name    string           `json:"name" validate:"required,max=64"`
	Kind    core.ChannelKind `json:"kind" validate:"required,oneof=text voice"`
	ModOnly bool             `json:"modOnly"`
}

// MemberPayload is shared by ban-user and unban-user.
type MemberPayload struct {
	RoomKey string `json:"roomKey" validate:"required"`
	Target  string `json:"target" validate:"required"`
}

type KickUserChannelPayload struct {
	RoomKey   string `json:"roomKey" validate:"required"`
	Target    string `json:"target" validate:"required"`
	ChannelID string `json:"channelId" validate:"required"`
}

// PinPayload is shared by pin-message and unpin-message.
type PinPayload struct {
	RoomKey   string `json:"roomKey" validate:"required"`
	ChannelID string `json:"channelId"`
	MessageID string `json:"messageId" validate:"required"`
}

type AddCustomEmojiPayload struct {
	RoomKey string `json:"roomKey" validate:"required"`
	Name    string `json:"name" validate:"required,max=32"`
	Image   string `json:"image" validate:"required"`
}

type RemoveCustomEmojiPayload struct {
	RoomKey string `json:"roomKey" validate:"required"`
	Name    string `json:"name" validate:"required"`
}

type FriendAcceptPayload struct {
	RoomKey string `json:"roomKey" validate:"required"`
	Target  string `json:"target" validate:"required"`
}

type frameSender interface {
	Send(f *core.Frame) error
}

// Commands validates outbound payloads and writes them to the backend.
// It also carries call frames for the call session.
type Commands struct {
	sender  frameSender
	metrics *Metrics
	logger  *slog.Logger
}

func NewCommands(sender frameSender, metrics *Metrics, logger *slog.Logger) *Commands {
	return &Commands{sender: sender, metrics: metrics, logger: logger}
}

func (c *Commands) send(frameType string, payload any) error {
	if err := validate.Struct(payload); err != nil {
		return core.NewErrorf("%w: %s: %s", ErrInvalidCommand, frameType, FormatValidationErrors(err))
	}
	f, err := core.NewFrame(frameType, payload)
	if err != nil {
		return fmt.Errorf("encode %s: %w", frameType, err)
	}
	if err := c.sender.Send(f); err != nil {
		return fmt.Errorf("send %s: %w", frameType, err)
	}
	c.metrics.FrameSent(frameType)
	c.logger.Debug("frame sent", "type", frameType)
	return nil
}

func (c *Commands) SetProfile(p SetProfilePayload) error {
	return c.send(SetProfileCommand, p)
}

func (c *Commands) SetPresence(p SetPresencePayload) error {
	return c.send(SetPresenceCommand, p)
}

func (c *Commands) WatchRoom(p WatchRoomPayload) error {
	return c.send(WatchRoomCommand, p)
}

func (c *Commands) SendMessage(p SendMessagePayload) error {
	if p.ChannelID == "" && p.DMKey == "" {
		p.ChannelID = core.DefaultTextChannel
	}
	return c.send(SendMessageCommand, p)
}

func (c *Commands) SendReaction(p SendReactionPayload) error {
	return c.send(SendReactionCommand, p)
}

func (c *Commands) SetRoomName(p SetRoomNamePayload) error {
	return c.send(SetRoomNameCommand, p)
}

func (c *Commands) SetRoomProfile(p SetRoomProfilePayload) error {
	return c.send(SetRoomProfileCommand, p)
}

func (c *Commands) SetRoomAdmins(p SetRoomAdminsPayload) error {
	return c.send(SetRoomAdminsCommand, p)
}

func (c *Commands) SetRoomOwner(p SetRoomOwnerPayload) error {
	return c.send(SetRoomOwnerCommand, p)
}

func (c *Commands) DisbandRoom(p RoomPayload) error {
	return c.send(DisbandRoomCommand, p)
}

// AddChannel assigns a fresh channel id when none is given.
func (c *Commands) AddChannel(p AddChannelPayload) (string, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return p.ID, c.send(AddChannelCommand, p)
}

func (c *Commands) BanUser(p MemberPayload) error {
	return c.send(BanUserCommand, p)
}

func (c *Commands) UnbanUser(p MemberPayload) error {
	return c.send(UnbanUserCommand, p)
}

func (c *Commands) KickUserChannel(p KickUserChannelPayload) error {
	return c.send(KickUserChannelCommand, p)
}

func (c *Commands) PinMessage(p PinPayload) error {
	return c.send(PinMessageCommand, p)
}

func (c *Commands) UnpinMessage(p PinPayload) error {
	return c.send(UnpinMessageCommand, p)
}

func (c *Commands) AddCustomEmoji(p AddCustomEmojiPayload) error {
	p.Name = core.NormalizeEmojiName(p.Name)
	return c.send(AddCustomEmojiCommand, p)
}

func (c *Commands) RemoveCustomEmoji(p RemoveCustomEmojiPayload) error {
	p.Name = core.NormalizeEmojiName(p.Name)
	return c.send(RemoveCustomEmojiCommand, p)
}

func (c *Commands) FriendAccept(p FriendAcceptPayload) error {
	return c.send(FriendAcceptCommand, p)
}

func (c *Commands) StartCall(scope core.CallScope) error {
	return c.send(StartCallCommand, CallPayload{scope})
}

func (c *Commands) JoinCall(scope core.CallScope) error {
	return c.send(JoinCallCommand, CallPayload{scope})
}

func (c *Commands) SendSignal(scope core.CallScope, to string, sig core.Signal) error {
	return c.send(CallSignalCommand, CallSignalPayload{CallScope: scope, To: to, Signal: sig})
}

func (c *Commands) EndCall(scope core.CallScope) error {
	return c.send(EndCallCommand, CallPayload{scope})
}
