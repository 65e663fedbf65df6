package core

import (
	"encoding/json"
	"sort"
	"strings"
)

// KeySet is a set of public keys (or message ids). It encodes as a sorted JSON array.
type KeySet map[string]struct{}

func NewKeySet(keys ...string) KeySet {
	s := make(KeySet, len(keys))
	for _, k := range keys {
		s.Add(k)
	}
	return s
}

func (s KeySet) Add(k string) {
	s[k] = struct{}{}
}

func (s KeySet) Remove(k string) {
	delete(s, k)
}

func (s KeySet) Has(k string) bool {
	_, ok := s[k]
	return ok
}

// Sorted returns the members of the set in lexical order.
func (s KeySet) Sorted() []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (s KeySet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Sorted())
}

func (s *KeySet) UnmarshalJSON(b []byte) error {
	var keys []string
	if err := json.Unmarshal(b, &keys); err != nil {
		return err
	}
	*s = NewKeySet(keys...)
	return nil
}

type Channel struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	ModOnly bool   `json:"modOnly"`
}

// Channels holds the channel list of a room per kind, in creation order.
type Channels struct {
	Text  []Channel `json:"text"`
	Voice []Channel `json:"voice"`
}

// Find looks a channel up by id across both kinds.
func (c Channels) Find(id string) (Channel, ChannelKind, bool) {
	for _, ch := range c.Text {
		if ch.ID == id {
			return ch, TextChannel, true
		}
	}
	for _, ch := range c.Voice {
		if ch.ID == id {
			return ch, VoiceChannel, true
		}
	}
	return Channel{}, "", false
}

type Edit struct {
	Text     string `json:"text"`
	EditedAt int64  `json:"editedAt"`
}

type CustomEmoji struct {
	Name    string `json:"name"`
	Image   string `json:"image"`
	AddedBy string `json:"addedBy"`
}

// RoomProfile is the folded room profile.
type RoomProfile struct {
	Name      string `json:"name"`
	IconEmoji string `json:"iconEmoji"`
	IconImage string `json:"iconImage,omitempty"`
}

// Moderation holds the ban and kick sets of a room.
type Moderation struct {
	Bans  KeySet `json:"bans"`
	Kicks KeySet `json:"kicks"`
	// ChannelKicks maps a channel id to the keys kicked from it.
	ChannelKicks map[string]KeySet `json:"channelKicks"`
}

// Friends holds friendship state. Pending maps a target key to the keys that sent
// it a request that has not been accepted yet.
type Friends struct {
	Pending map[string]KeySet `json:"pending"`
	Friends map[string]KeySet `json:"friends"`
}

// RoomView is the state of a room derived by folding its log.
type RoomView struct {
	RoomKey string `json:"roomKey"`
	RoomProfile
	Owner    string   `json:"owner"`
	Admins   KeySet   `json:"admins"`
	Channels Channels `json:"channels"`
	// Pins maps "channelId:messageId" to the pinned message id.
	Pins map[string]string `json:"pins"`
	// Reactions maps a message id to emoji to the keys that reacted with it.
	Reactions   map[string]map[string]KeySet `json:"reactions"`
	Edits       map[string]Edit              `json:"edits"`
	Moderation  Moderation                   `json:"moderation"`
	Friends     Friends                      `json:"friends"`
	CustomEmoji map[string]CustomEmoji       `json:"customEmoji"`
	Disbanded   bool                         `json:"disbanded"`
	// Messages is the number of log entries the view was folded from.
	Messages int `json:"messages"`
}

func (v *RoomView) IsAdmin(key string) bool {
	return v != nil && (v.Admins.Has(key) || (key != "" && v.Owner == key))
}

func (v *RoomView) IsBanned(key string) bool {
	return v != nil && v.Moderation.Bans.Has(key)
}

func (v *RoomView) IsKicked(key string) bool {
	return v != nil && v.Moderation.Kicks.Has(key)
}

func (v *RoomView) IsChannelKicked(key, channelID string) bool {
	if v == nil {
		return false
	}
	kicked, ok := v.Moderation.ChannelKicks[channelID]
	return ok && kicked.Has(key)
}

// PinnedIn returns the ids of the messages pinned in a channel, sorted.
func (v *RoomView) PinnedIn(channelID string) []string {
	if channelID == "" {
		channelID = DefaultTextChannel
	}
	prefix := channelID + ":"
	ids := make([]string, 0)
	for k, id := range v.Pins {
		if strings.HasPrefix(k, prefix) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

func (v *RoomView) AreFriends(a, b string) bool {
	set, ok := v.Friends.Friends[a]
	return ok && set.Has(b)
}

func pinKey(channelID, messageID string) string {
	return channelID + ":" + messageID
}
