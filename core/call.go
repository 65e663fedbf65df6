package core

import (
	"errors"

	"github.com/google/uuid"
)

// CallScopeKind says where a call lives.
type CallScopeKind string

const (
	// ScopeVoice is an inline call in a voice channel.
	ScopeVoice CallScopeKind = "voice"
	// ScopeDM is a call inside a direct message conversation.
	ScopeDM CallScopeKind = "dm"
	// ScopeText is an ambient call tied to a text channel.
	ScopeText CallScopeKind = "text"
)

type CallMode string

const (
	ModeAudio CallMode = "audio"
	ModeVideo CallMode = "video"
)

var ErrInvalidScope = errors.New("invalid call scope")

// CallScope identifies a call. It travels with every call frame; there is no other
// session identifier.
type CallScope struct {
	Kind      CallScopeKind `json:"scope" validate:"required,oneof=voice dm text"`
	RoomKey   string        `json:"roomKey" validate:"required"`
	ChannelID string        `json:"channelId,omitempty"`
	DMKey     string        `json:"dmKey,omitempty"`
	CallID    string        `json:"callId" validate:"required"`
	Mode      CallMode      `json:"mode,omitempty" validate:"omitempty,oneof=audio video"`
}

// Equal reports whether two scopes identify the same call. Room key, channel id,
// DM key and call id must all match; mode is not part of the identity.
func (s CallScope) Equal(o CallScope) bool {
	return s.RoomKey == o.RoomKey &&
		s.ChannelID == o.ChannelID &&
		s.DMKey == o.DMKey &&
		s.CallID == o.CallID
}

// Validate checks that the scope is internally consistent.
func (s CallScope) Validate() error {
	if s.RoomKey == "" || s.CallID == "" {
		return ErrInvalidScope
	}
	switch s.Kind {
	case ScopeDM:
		if s.DMKey == "" {
			return ErrInvalidScope
		}
	case ScopeVoice, ScopeText:
		if s.ChannelID == "" || s.DMKey != "" {
			return ErrInvalidScope
		}
	default:
		return ErrInvalidScope
	}
	return nil
}

// Focus is what the user is currently looking at.
type Focus struct {
	RoomKey      string `json:"roomKey"`
	ChannelID    string `json:"channelId,omitempty"`
	DMKey        string `json:"dmKey,omitempty"`
	ThreadRootID string `json:"threadRootId,omitempty"`
	// VoiceChannelID is the voice channel the user has open, if any.
	VoiceChannelID string `json:"voiceChannelId,omitempty"`
}

func (f Focus) Channel() string {
	if f.ChannelID == "" {
		return DefaultTextChannel
	}
	return f.ChannelID
}

// ViewScope returns the message list scope of the focus.
func (f Focus) ViewScope() ViewScope {
	return ViewScope{ChannelID: f.ChannelID, DMKey: f.DMKey, ThreadRootID: f.ThreadRootID}
}

// CallIntent is what the user asked for when starting or joining a call.
type CallIntent struct {
	RoomKey string
	// Voice requests the inline call of VoiceChannelID.
	Voice          bool
	VoiceChannelID string
	CallID         string
	Mode           CallMode
}

// ResolveCallScope classifies a call request into exactly one scope. A voice intent
// wins, then an open DM, otherwise the call is tied to the focused text channel.
func ResolveCallScope(intent CallIntent, focus Focus) CallScope {
	scope := CallScope{
		RoomKey: intent.RoomKey,
		CallID:  intent.CallID,
		Mode:    intent.Mode,
	}
	if scope.RoomKey == "" {
		scope.RoomKey = focus.RoomKey
	}
	if scope.CallID == "" {
		scope.CallID = uuid.NewString()
	}
	if scope.Mode == "" {
		scope.Mode = ModeAudio
	}

	switch {
	case intent.Voice:
		scope.Kind = ScopeVoice
		scope.ChannelID = intent.VoiceChannelID
		if scope.ChannelID == "" {
			scope.ChannelID = DefaultVoiceChannel
		}
	case focus.DMKey != "":
		scope.Kind = ScopeDM
		scope.DMKey = focus.DMKey
	default:
		scope.Kind = ScopeText
		scope.ChannelID = focus.Channel()
	}
	return scope
}

// MatchesFocus reports whether an announced call concerns what the user is looking at,
// which decides whether it rings.
func (s CallScope) MatchesFocus(focus Focus) bool {
	if s.RoomKey != focus.RoomKey {
		return false
	}
	if s.DMKey != "" {
		return s.DMKey == focus.DMKey
	}
	if focus.DMKey != "" {
		return false
	}
	channel := s.ChannelID
	if channel == "" {
		channel = DefaultTextChannel
	}
	if s.Kind == ScopeVoice && focus.VoiceChannelID != "" {
		return channel == focus.VoiceChannelID
	}
	return channel == focus.Channel()
}

// Survives reports whether an active call should keep running after the user moved
// to focus. Voice calls follow the user around the room; other calls end as soon as
// their scope is left.
func (s CallScope) Survives(focus Focus) bool {
	if s.Kind == ScopeVoice {
		return s.RoomKey == focus.RoomKey
	}
	return s.MatchesFocus(focus)
}

// Normalize fills the kind of a scope received from the backend when it was omitted.
func (s CallScope) Normalize() CallScope {
	if s.Kind == "" {
		switch {
		case s.DMKey != "":
			s.Kind = ScopeDM
		case s.ChannelID == DefaultVoiceChannel:
			s.Kind = ScopeVoice
		default:
			s.Kind = ScopeText
		}
	}
	if s.Kind == ScopeText && s.ChannelID == "" {
		s.ChannelID = DefaultTextChannel
	}
	return s
}
