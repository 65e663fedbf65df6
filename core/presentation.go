package core

import "sort"

// ViewScope selects the slice of a room log shown to the user. At most one of DMKey
// and ThreadRootID is expected to be set; an empty scope is the general channel.
type ViewScope struct {
	ChannelID    string `json:"channelId,omitempty"`
	DMKey        string `json:"dmKey,omitempty"`
	ThreadRootID string `json:"threadRootId,omitempty"`
}

func (s ViewScope) Channel() string {
	if s.ChannelID == "" {
		return DefaultTextChannel
	}
	return s.ChannelID
}

// universalActions are room level events shown in every text channel.
var universalActions = map[SystemAction]bool{
	ActionRoomNameSet:       true,
	ActionRoomProfileSet:    true,
	ActionRoomAdminSet:      true,
	ActionRoomOwnerSet:      true,
	ActionRoomDisband:       true,
	ActionChannelAdd:        true,
	ActionRoomBan:           true,
	ActionRoomUnban:         true,
	ActionRoomKick:          true,
	ActionRoomUnkick:        true,
	ActionCustomEmojiAdd:    true,
	ActionCustomEmojiRemove: true,
}

// BelongsToTextChannel reports whether m is listed in the given text channel.
func BelongsToTextChannel(m Message, channelID string) bool {
	if channelID == "" {
		channelID = DefaultTextChannel
	}
	switch m.Kind() {
	case KindText, KindFile:
		return m.Channel() == channelID
	case KindSystem:
		if universalActions[m.Action] {
			return true
		}
		switch m.Action {
		case ActionMessagePin, ActionMessageUnpin:
			p, err := m.Payload()
			if err != nil {
				return false
			}
			return p.(PinChange).Channel() == channelID
		case ActionChannelKick, ActionChannelUnkick:
			p, err := m.Payload()
			if err != nil {
				return false
			}
			return p.(ChannelModeration).ChannelID == channelID
		case ActionCallStart, ActionCallJoin, ActionCallEnd,
			ActionFriendRequest, ActionFriendAccept,
			ActionMessageEdit, ActionMessageReaction:
			return false
		default:
			return channelID == DefaultTextChannel
		}
	default:
		return false
	}
}

// Includes reports whether m is visible in the scope.
func (s ViewScope) Includes(m Message) bool {
	switch {
	case s.ThreadRootID != "":
		return m.ThreadRootID == s.ThreadRootID || (m.ID != "" && m.ID == s.ThreadRootID)
	case s.DMKey != "":
		k := m.Kind()
		return m.DMKey == s.DMKey && (k == KindText || k == KindFile)
	default:
		if m.DMKey != "" || m.ThreadRootID != "" {
			return false
		}
		return BelongsToTextChannel(m, s.ChannelID)
	}
}

// Presentation returns the messages of log visible in scope, stably sorted by
// timestamp. The log itself is left untouched.
func Presentation(log []Message, scope ViewScope) []Message {
	out := make([]Message, 0, len(log))
	for _, m := range log {
		if scope.Includes(m) {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp < out[j].Timestamp
	})
	return out
}
