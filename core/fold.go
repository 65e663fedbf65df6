package core

import (
	"errors"
)

// Fold rebuilds every view of a room from its log. The log must be in arrival order.
// Folding the same log twice always yields equal views.
func Fold(roomKey string, log []Message) *RoomView {
	admins := FoldAdmins(log)
	owner := FoldOwner(log)
	if owner != "" {
		admins.Add(owner)
	}
	return &RoomView{
		RoomKey:     roomKey,
		RoomProfile: FoldProfile(log),
		Owner:       owner,
		Admins:      admins,
		Channels:    FoldChannels(log),
		Pins:        FoldPins(log),
		Reactions:   FoldReactions(log),
		Edits:       FoldEdits(log),
		Moderation:  FoldModeration(log),
		Friends:     FoldFriends(log),
		CustomEmoji: FoldCustomEmoji(log),
		Disbanded:   foldDisbanded(log),
		Messages:    len(log),
	}
}

// firstSender returns the sender of the first message in the log that has one.
func firstSender(log []Message) string {
	for _, m := range log {
		if m.Sender != "" {
			return m.Sender
		}
	}
	return ""
}

// system calls fn for every well formed system message in log order.
// Malformed and unknown actions are skipped.
func system(log []Message, fn func(m Message, p ActionPayload)) {
	for _, m := range log {
		if m.Kind() != KindSystem {
			continue
		}
		p, err := m.Payload()
		if err != nil {
			continue
		}
		fn(m, p)
	}
}

// FoldAdmins returns the admin set. The last room-admin-set snapshot wins; without
// one the first sender of the log is the bootstrap admin. The owner is not included.
func FoldAdmins(log []Message) KeySet {
	var snapshot []string
	seen := false
	system(log, func(_ Message, p ActionPayload) {
		if s, ok := p.(RoomAdminSet); ok {
			snapshot = s.Admins
			seen = true
		}
	})
	if seen {
		admins := NewKeySet()
		for _, k := range snapshot {
			if k != "" {
				admins.Add(k)
			}
		}
		return admins
	}
	if first := firstSender(log); first != "" {
		return NewKeySet(first)
	}
	return NewKeySet()
}

// FoldOwner returns the last room-owner-set owner, falling back to the first sender.
func FoldOwner(log []Message) string {
	owner := ""
	system(log, func(_ Message, p ActionPayload) {
		if s, ok := p.(RoomOwnerSet); ok {
			owner = s.Owner
		}
	})
	if owner == "" {
		owner = firstSender(log)
	}
	return owner
}

// FoldProfile applies room-name-set and room-profile-set in log order, last write wins
// per field. Icon emojis that are not a single emoji are ignored.
func FoldProfile(log []Message) RoomProfile {
	var profile RoomProfile
	system(log, func(_ Message, p ActionPayload) {
		switch s := p.(type) {
		case RoomNameSet:
			profile.Name = s.Name
		case RoomProfileSet:
			if s.Name != nil && *s.Name != "" {
				profile.Name = *s.Name
			}
			if s.IconEmoji != nil && (*s.IconEmoji == "" || IsSingleEmoji(*s.IconEmoji)) {
				profile.IconEmoji = *s.IconEmoji
			}
			if s.IconImage != nil {
				profile.IconImage = *s.IconImage
			}
		}
	})
	return profile
}

// FoldChannels returns the channel list seeded with the implicit general channels.
// A channel id is defined by its first channel-add; later ones with the same id are ignored.
func FoldChannels(log []Message) Channels {
	channels := Channels{
		Text:  []Channel{{ID: DefaultTextChannel, Name: DefaultTextChannel}},
		Voice: []Channel{{ID: DefaultVoiceChannel, Name: "General"}},
	}
	seen := NewKeySet(DefaultTextChannel, DefaultVoiceChannel)
	system(log, func(_ Message, p ActionPayload) {
		add, ok := p.(ChannelAdd)
		if !ok || seen.Has(add.ID) {
			return
		}
		seen.Add(add.ID)
		name := add.Name
		if name == "" {
			name = add.ID
		}
		ch := Channel{ID: add.ID, Name: name, ModOnly: add.ModOnly}
		if add.Kind == VoiceChannel {
			channels.Voice = append(channels.Voice, ch)
		} else {
			channels.Text = append(channels.Text, ch)
		}
	})
	return channels
}

// FoldPins folds message-pin and message-unpin into "channelId:messageId" -> messageId.
func FoldPins(log []Message) map[string]string {
	pins := make(map[string]string)
	system(log, func(_ Message, p ActionPayload) {
		change, ok := p.(PinChange)
		if !ok {
			return
		}
		key := pinKey(change.Channel(), change.MessageID)
		if change.Pinned {
			pins[key] = change.MessageID
		} else {
			delete(pins, key)
		}
	})
	return pins
}

// FoldReactions folds reaction messages and message-reaction events.
// Emojis with no remaining reactors are dropped, as are messages with no emojis.
func FoldReactions(log []Message) map[string]map[string]KeySet {
	reactions := make(map[string]map[string]KeySet)
	for _, m := range log {
		if m.Sender == "" {
			continue
		}
		r, err := m.Reaction()
		if err != nil {
			continue
		}
		byEmoji, ok := reactions[r.MessageID]
		if r.Enabled() {
			if !ok {
				byEmoji = make(map[string]KeySet)
				reactions[r.MessageID] = byEmoji
			}
			if byEmoji[r.Emoji] == nil {
				byEmoji[r.Emoji] = NewKeySet()
			}
			byEmoji[r.Emoji].Add(m.Sender)
			continue
		}
		if !ok || byEmoji[r.Emoji] == nil {
			continue
		}
		byEmoji[r.Emoji].Remove(m.Sender)
		if len(byEmoji[r.Emoji]) == 0 {
			delete(byEmoji, r.Emoji)
		}
		if len(byEmoji) == 0 {
			delete(reactions, r.MessageID)
		}
	}
	return reactions
}

// FoldEdits folds message-edit events targeting text messages written by the same
// sender. The last edit in log order wins.
func FoldEdits(log []Message) map[string]Edit {
	authors := make(map[string]string)
	for _, m := range log {
		if m.Kind() == KindText && m.ID != "" {
			if _, ok := authors[m.ID]; !ok {
				authors[m.ID] = m.Sender
			}
		}
	}
	edits := make(map[string]Edit)
	system(log, func(m Message, p ActionPayload) {
		edit, ok := p.(MessageEdit)
		if !ok {
			return
		}
		author, ok := authors[edit.MessageID]
		if !ok || author != m.Sender {
			return
		}
		edits[edit.MessageID] = Edit{Text: edit.Text, EditedAt: m.Timestamp}
	})
	return edits
}

// FoldModeration folds the ban, kick and channel kick add/remove events.
func FoldModeration(log []Message) Moderation {
	mod := Moderation{
		Bans:         NewKeySet(),
		Kicks:        NewKeySet(),
		ChannelKicks: make(map[string]KeySet),
	}
	system(log, func(_ Message, p ActionPayload) {
		switch s := p.(type) {
		case MemberModeration:
			switch s.Kind {
			case ActionRoomBan:
				mod.Bans.Add(s.Target)
			case ActionRoomUnban:
				mod.Bans.Remove(s.Target)
			case ActionRoomKick:
				mod.Kicks.Add(s.Target)
			case ActionRoomUnkick:
				mod.Kicks.Remove(s.Target)
			}
		case ChannelModeration:
			kicked := mod.ChannelKicks[s.ChannelID]
			if s.Kicked {
				if kicked == nil {
					kicked = NewKeySet()
					mod.ChannelKicks[s.ChannelID] = kicked
				}
				kicked.Add(s.Target)
				return
			}
			if kicked != nil {
				kicked.Remove(s.Target)
				if len(kicked) == 0 {
					delete(mod.ChannelKicks, s.ChannelID)
				}
			}
		}
	})
	return mod
}

// FoldFriends folds friend-request and friend-accept. A request is pending under its
// target until either side accepts, which makes the friendship symmetric.
func FoldFriends(log []Message) Friends {
	f := Friends{
		Pending: make(map[string]KeySet),
		Friends: make(map[string]KeySet),
	}
	system(log, func(m Message, p ActionPayload) {
		change, ok := p.(FriendChange)
		if !ok || m.Sender == "" || m.Sender == change.Target {
			return
		}
		if !change.Accept {
			if f.Friends[m.Sender].Has(change.Target) {
				return
			}
			addToSetMap(f.Pending, change.Target, m.Sender)
			return
		}
		a, b := m.Sender, change.Target
		if !f.Pending[a].Has(b) && !f.Pending[b].Has(a) {
			return
		}
		removeFromSetMap(f.Pending, a, b)
		removeFromSetMap(f.Pending, b, a)
		addToSetMap(f.Friends, a, b)
		addToSetMap(f.Friends, b, a)
	})
	return f
}

// FoldCustomEmoji folds custom-emoji-add and custom-emoji-remove keyed by normalised name.
func FoldCustomEmoji(log []Message) map[string]CustomEmoji {
	emojis := make(map[string]CustomEmoji)
	system(log, func(m Message, p ActionPayload) {
		change, ok := p.(CustomEmojiChange)
		if !ok {
			return
		}
		name := NormalizeEmojiName(change.Name)
		if !change.Added {
			delete(emojis, name)
			return
		}
		if change.Image == "" {
			return
		}
		emojis[name] = CustomEmoji{Name: name, Image: change.Image, AddedBy: m.Sender}
	})
	return emojis
}

func foldDisbanded(log []Message) bool {
	disbanded := false
	system(log, func(_ Message, p ActionPayload) {
		if _, ok := p.(RoomDisband); ok {
			disbanded = true
		}
	})
	return disbanded
}

func addToSetMap(m map[string]KeySet, key, member string) {
	set, ok := m[key]
	if !ok {
		set = NewKeySet()
		m[key] = set
	}
	set.Add(member)
}

func removeFromSetMap(m map[string]KeySet, key, member string) {
	set, ok := m[key]
	if !ok {
		return
	}
	set.Remove(member)
	if len(set) == 0 {
		delete(m, key)
	}
}

// IsMalformed reports whether err came from decoding an incomplete message.
func IsMalformed(err error) bool {
	return errors.Is(err, ErrMalformed)
}
