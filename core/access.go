package core

// AccessPurpose is what the local user is trying to do in a scope.
type AccessPurpose string

const (
	PurposeCompose AccessPurpose = "compose"
	PurposeCall    AccessPurpose = "call"
)

// AccessReason explains why an action is blocked. The zero value means allowed.
type AccessReason string

const (
	ReasonNone          AccessReason = ""
	ReasonReadOnly      AccessReason = "read-only"
	ReasonBanned        AccessReason = "banned"
	ReasonKicked        AccessReason = "kicked"
	ReasonChannelKicked AccessReason = "channel-kicked"
	ReasonModOnly       AccessReason = "mod-only"
)

func (r AccessReason) Message() string {
	switch r {
	case ReasonReadOnly:
		return "This room is read-only."
	case ReasonBanned:
		return "You are banned from this room."
	case ReasonKicked:
		return "You have been removed from this server."
	case ReasonChannelKicked:
		return "You have been removed from this channel."
	case ReasonModOnly:
		return "Only moderators can post in this channel."
	default:
		return ""
	}
}

type AccessRequest struct {
	View     *RoomView
	Writable bool
	LocalKey string
	Scope    ViewScope
	// VoiceChannelID is set when the request targets a voice channel.
	VoiceChannelID string
	Purpose        AccessPurpose
}

type Access struct {
	Blocked bool         `json:"blocked"`
	Reason  AccessReason `json:"reason,omitempty"`
	Message string       `json:"message,omitempty"`
}

func blocked(r AccessReason) Access {
	return Access{Blocked: true, Reason: r, Message: r.Message()}
}

// CheckAccess evaluates the gate in a fixed order: read-only room, room ban, server-wide
// kick, channel kick, then moderator-only channels. The first matching reason wins, so
// a banned admin is reported as banned.
func CheckAccess(req AccessRequest) Access {
	if !req.Writable {
		return blocked(ReasonReadOnly)
	}
	v := req.View
	if v == nil {
		return Access{}
	}
	if v.IsBanned(req.LocalKey) {
		return blocked(ReasonBanned)
	}
	if v.IsKicked(req.LocalKey) {
		return blocked(ReasonKicked)
	}

	// DMs and threads have no channel level rules.
	if req.Scope.DMKey != "" {
		return Access{}
	}
	channelID := req.VoiceChannelID
	if channelID == "" {
		channelID = req.Scope.Channel()
	}
	if v.IsChannelKicked(req.LocalKey, channelID) {
		return blocked(ReasonChannelKicked)
	}
	if ch, _, ok := v.Channels.Find(channelID); ok && ch.ModOnly && !v.IsAdmin(req.LocalKey) {
		return blocked(ReasonModOnly)
	}
	return Access{}
}
