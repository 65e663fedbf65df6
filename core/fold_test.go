package core

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleLog(t *testing.T) []Message {
	return []Message{
		textMsg("m1", "pub1", 100),
		sysMsg(t, "s1", "pub1", ActionRoomNameSet, map[string]any{"name": "Lounge"}),
		sysMsg(t, "s2", "pub1", ActionChannelAdd, map[string]any{"id": "dev", "name": "Dev", "kind": "text"}),
		sysMsg(t, "s3", "pub1", ActionChannelAdd, map[string]any{"id": "stage", "name": "Stage", "kind": "voice", "modOnly": true}),
		textMsg("m2", "pub2", 90),
		sysMsg(t, "s4", "pub1", ActionMessagePin, map[string]any{"messageId": "m2", "channelId": "general"}),
		reactionMsg(t, "r1", "pub2", "m1", "👍", true),
		sysMsg(t, "s5", "pub2", ActionMessageEdit, map[string]any{"messageId": "m2", "text": "edited"}),
		sysMsg(t, "s6", "pub1", ActionRoomBan, map[string]any{"target": "pub3"}),
		sysMsg(t, "s7", "pub2", ActionFriendRequest, map[string]any{"target": "pub1"}),
		sysMsg(t, "s8", "pub1", ActionFriendAccept, map[string]any{"target": "pub2"}),
		sysMsg(t, "s9", "pub1", ActionCustomEmojiAdd, map[string]any{"name": ":Party:", "image": "data:image/png;base64,AA=="}),
	}
}

func TestFoldIdempotent(t *testing.T) {
	log := sampleLog(t)

	first := Fold("room", log)
	second := Fold("room", log)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("refolding the same log changed the view (-first +second):\n%s", diff)
	}
}

func TestFoldAdmins(t *testing.T) {
	t.Run("first sender is bootstrap admin", func(t *testing.T) {
		log := []Message{{Sender: "pub1", Type: KindText}}
		view := Fold("room", log)
		assert.Equal(t, []string{"pub1"}, view.Admins.Sorted())
		assert.Equal(t, "pub1", view.Owner)
	})

	t.Run("last snapshot wins", func(t *testing.T) {
		log := []Message{
			textMsg("m1", "pub1", 1),
			sysMsg(t, "s1", "pub1", ActionRoomAdminSet, map[string]any{"admins": []string{"pub2", "pub3"}}),
			sysMsg(t, "s2", "pub1", ActionRoomAdminSet, map[string]any{"admins": []string{"pub4"}}),
		}
		assert.Equal(t, []string{"pub4"}, FoldAdmins(log).Sorted())
		// the owner is unioned in by Fold
		assert.Equal(t, []string{"pub1", "pub4"}, Fold("room", log).Admins.Sorted())
	})

	t.Run("malformed snapshot is skipped", func(t *testing.T) {
		log := []Message{
			textMsg("m1", "pub1", 1),
			{ID: "s1", Sender: "pub1", Type: KindSystem, Action: ActionRoomAdminSet},
		}
		assert.Equal(t, []string{"pub1"}, FoldAdmins(log).Sorted())
	})

	t.Run("empty log", func(t *testing.T) {
		view := Fold("room", nil)
		assert.Empty(t, view.Admins)
		assert.Empty(t, view.Owner)
	})
}

func TestFoldOwner(t *testing.T) {
	log := []Message{
		textMsg("m1", "pub1", 1),
		sysMsg(t, "s1", "pub1", ActionRoomOwnerSet, map[string]any{"owner": "pub2"}),
	}
	view := Fold("room", log)
	assert.Equal(t, "pub2", view.Owner)
	assert.True(t, view.IsAdmin("pub2"))
}

func TestFoldProfileLastWriteWins(t *testing.T) {
	a := sysMsg(t, "s1", "pub1", ActionRoomNameSet, map[string]any{"name": "A"})
	a.Timestamp = 2000
	b := sysMsg(t, "s2", "pub1", ActionRoomNameSet, map[string]any{"name": "B"})
	b.Timestamp = 1000

	assert.Equal(t, "B", FoldProfile([]Message{a, b}).Name)

	t.Run("profile fields are independent", func(t *testing.T) {
		log := []Message{
			sysMsg(t, "s1", "pub1", ActionRoomProfileSet, map[string]any{"name": "Lounge", "iconEmoji": "🎉"}),
			sysMsg(t, "s2", "pub1", ActionRoomProfileSet, map[string]any{"iconImage": "data:image/png;base64,AA=="}),
			sysMsg(t, "s3", "pub1", ActionRoomProfileSet, map[string]any{"iconEmoji": "not an emoji"}),
		}
		profile := FoldProfile(log)
		assert.Equal(t, "Lounge", profile.Name)
		assert.Equal(t, "🎉", profile.IconEmoji)
		assert.Equal(t, "data:image/png;base64,AA==", profile.IconImage)
	})
}

func TestFoldChannelsFirstWins(t *testing.T) {
	log := []Message{
		sysMsg(t, "s1", "pub1", ActionChannelAdd, map[string]any{"id": "dev", "name": "Dev"}),
		sysMsg(t, "s2", "pub1", ActionChannelAdd, map[string]any{"id": "dev", "name": "Other"}),
		sysMsg(t, "s3", "pub1", ActionChannelAdd, map[string]any{"id": "general", "name": "Renamed"}),
		sysMsg(t, "s4", "pub1", ActionChannelAdd, map[string]any{"id": "stage", "kind": "voice"}),
	}
	channels := FoldChannels(log)
	assert.Equal(t, []Channel{
		{ID: DefaultTextChannel, Name: DefaultTextChannel},
		{ID: "dev", Name: "Dev"},
	}, channels.Text)
	assert.Equal(t, []Channel{
		{ID: DefaultVoiceChannel, Name: "General"},
		{ID: "stage", Name: "stage"},
	}, channels.Voice)
}

func TestFoldPins(t *testing.T) {
	pin := func(id, msg string, pinned bool) Message {
		action := ActionMessagePin
		if !pinned {
			action = ActionMessageUnpin
		}
		return sysMsg(t, id, "pub1", action, map[string]any{"messageId": msg, "channelId": "chanA"})
	}
	log := []Message{pin("p1", "msg1", true), pin("p2", "msg2", true), pin("p3", "msg1", false)}

	view := Fold("room", log)
	assert.Equal(t, []string{"msg2"}, view.PinnedIn("chanA"))
	assert.Empty(t, view.PinnedIn(DefaultTextChannel))
}

func TestFoldReactions(t *testing.T) {
	t.Run("toggle off removes the reaction", func(t *testing.T) {
		log := []Message{
			reactionMsg(t, "r1", "pubX", "msg1", "👍", true),
			reactionMsg(t, "r2", "pubX", "msg1", "👍", false),
		}
		reactions := FoldReactions(log)
		assert.NotContains(t, reactions, "msg1")
	})

	t.Run("system reactions and missing flag", func(t *testing.T) {
		log := []Message{
			{ID: "r1", Sender: "pubX", Type: KindReaction, Data: json.RawMessage(`{"messageId":"msg1","emoji":"🔥"}`)},
			sysMsg(t, "r2", "pubY", ActionMessageReaction, map[string]any{"messageId": "msg1", "emoji": "🔥", "on": true}),
			reactionMsg(t, "r3", "pubZ", "msg1", "👍", false),
		}
		reactions := FoldReactions(log)
		require.Contains(t, reactions, "msg1")
		assert.Equal(t, []string{"pubX", "pubY"}, reactions["msg1"]["🔥"].Sorted())
		assert.NotContains(t, reactions["msg1"], "👍")
	})
}

func TestFoldEdits(t *testing.T) {
	edit := func(id, sender, target, text string, ts int64) Message {
		m := sysMsg(t, id, sender, ActionMessageEdit, map[string]any{"messageId": target, "text": text})
		m.Timestamp = ts
		return m
	}
	log := []Message{
		textMsg("m1", "pub1", 1),
		edit("e1", "pub1", "m1", "first", 5),
		edit("e2", "pub2", "m1", "hijack", 6),
		edit("e3", "pub1", "m1", "second", 3),
		edit("e4", "pub1", "missing", "nope", 7),
	}
	edits := FoldEdits(log)
	assert.Equal(t, map[string]Edit{"m1": {Text: "second", EditedAt: 3}}, edits)
}

func TestFoldModeration(t *testing.T) {
	log := []Message{
		sysMsg(t, "s1", "pub1", ActionRoomBan, map[string]any{"target": "pub2"}),
		sysMsg(t, "s2", "pub1", ActionRoomKick, map[string]any{"target": "pub3"}),
		sysMsg(t, "s3", "pub1", ActionChannelKick, map[string]any{"target": "pub4", "channelId": "dev"}),
		sysMsg(t, "s4", "pub1", ActionRoomUnkick, map[string]any{"target": "pub3"}),
		sysMsg(t, "s5", "pub1", ActionChannelKick, map[string]any{"target": "pub5", "channelId": "ops"}),
		sysMsg(t, "s6", "pub1", ActionChannelUnkick, map[string]any{"target": "pub5", "channelId": "ops"}),
	}
	view := Fold("room", log)
	assert.True(t, view.IsBanned("pub2"))
	assert.False(t, view.IsKicked("pub3"))
	assert.True(t, view.IsChannelKicked("pub4", "dev"))
	assert.False(t, view.IsChannelKicked("pub4", "general"))
	assert.NotContains(t, view.Moderation.ChannelKicks, "ops")
}

func TestFoldFriends(t *testing.T) {
	t.Run("accept promotes pending request", func(t *testing.T) {
		log := []Message{
			sysMsg(t, "f1", "alice", ActionFriendRequest, map[string]any{"target": "bob"}),
			sysMsg(t, "f2", "bob", ActionFriendAccept, map[string]any{"target": "alice"}),
		}
		view := Fold("room", log)
		assert.True(t, view.AreFriends("alice", "bob"))
		assert.True(t, view.AreFriends("bob", "alice"))
		assert.Empty(t, view.Friends.Pending)
	})

	t.Run("accept without request is ignored", func(t *testing.T) {
		log := []Message{
			sysMsg(t, "f1", "bob", ActionFriendAccept, map[string]any{"target": "alice"}),
		}
		view := Fold("room", log)
		assert.False(t, view.AreFriends("alice", "bob"))
	})

	t.Run("request stays pending", func(t *testing.T) {
		log := []Message{
			sysMsg(t, "f1", "alice", ActionFriendRequest, map[string]any{"target": "bob"}),
		}
		friends := FoldFriends(log)
		assert.Equal(t, []string{"alice"}, friends.Pending["bob"].Sorted())
	})
}

func TestFoldCustomEmoji(t *testing.T) {
	log := []Message{
		sysMsg(t, "c1", "pub1", ActionCustomEmojiAdd, map[string]any{"name": ":Party:", "image": "img1"}),
		sysMsg(t, "c2", "pub1", ActionCustomEmojiAdd, map[string]any{"name": "cat", "image": "img2"}),
		sysMsg(t, "c3", "pub1", ActionCustomEmojiRemove, map[string]any{"name": "cat"}),
	}
	emojis := FoldCustomEmoji(log)
	assert.Equal(t, map[string]CustomEmoji{
		"party": {Name: "party", Image: "img1", AddedBy: "pub1"},
	}, emojis)
}

func TestFoldSkipsUnknownAndMalformed(t *testing.T) {
	log := []Message{
		textMsg("m1", "pub1", 1),
		{ID: "u1", Sender: "pub1", Type: "sticker"},
		{ID: "u2", Sender: "pub1", Type: KindSystem, Action: "room-teleport", Data: json.RawMessage(`{}`)},
		{ID: "u3", Sender: "pub1", Type: KindSystem, Action: ActionRoomNameSet, Data: json.RawMessage(`"oops"`)},
		sysMsg(t, "s1", "pub1", ActionRoomNameSet, map[string]any{"name": "Kept"}),
	}
	view := Fold("room", log)
	assert.Equal(t, "Kept", view.Name)
	assert.Equal(t, 5, view.Messages)
}

func TestFoldDisband(t *testing.T) {
	log := []Message{
		textMsg("m1", "pub1", 1),
		sysMsg(t, "d1", "pub1", ActionRoomDisband, map[string]any{}),
	}
	assert.True(t, Fold("room", log).Disbanded)
}

func TestKeySetJSON(t *testing.T) {
	b, err := json.Marshal(NewKeySet("b", "a"))
	require.NoError(t, err)
	assert.JSONEq(t, `["a","b"]`, string(b))

	var s KeySet
	require.NoError(t, json.Unmarshal(b, &s))
	assert.True(t, s.Has("a"))
}
