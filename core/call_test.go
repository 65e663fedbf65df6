package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCallScopeMatchesFocus(t *testing.T) {
	announced := CallScope{Kind: ScopeText, RoomKey: "room", ChannelID: "general", CallID: "c1"}

	assert.True(t, announced.MatchesFocus(Focus{RoomKey: "room", ChannelID: "general"}))
	assert.True(t, announced.MatchesFocus(Focus{RoomKey: "room"}), "empty focus channel means general")
	assert.False(t, announced.MatchesFocus(Focus{RoomKey: "room", ChannelID: "dev"}))
	assert.False(t, announced.MatchesFocus(Focus{RoomKey: "other", ChannelID: "general"}))
	assert.False(t, announced.MatchesFocus(Focus{RoomKey: "room", ChannelID: "general", DMKey: "dm"}))

	dm := CallScope{Kind: ScopeDM, RoomKey: "room", DMKey: "dm", CallID: "c2"}
	assert.True(t, dm.MatchesFocus(Focus{RoomKey: "room", DMKey: "dm"}))
	assert.False(t, dm.MatchesFocus(Focus{RoomKey: "room"}))

	voice := CallScope{Kind: ScopeVoice, RoomKey: "room", ChannelID: "stage", CallID: "c3"}
	assert.True(t, voice.MatchesFocus(Focus{RoomKey: "room", VoiceChannelID: "stage"}))
}

func TestCallScopeEqual(t *testing.T) {
	a := CallScope{Kind: ScopeText, RoomKey: "room", ChannelID: "general", CallID: "c1", Mode: ModeAudio}
	b := a
	b.Mode = ModeVideo
	assert.True(t, a.Equal(b))

	for _, change := range []func(*CallScope){
		func(s *CallScope) { s.RoomKey = "x" },
		func(s *CallScope) { s.ChannelID = "x" },
		func(s *CallScope) { s.DMKey = "x" },
		func(s *CallScope) { s.CallID = "x" },
	} {
		c := a
		change(&c)
		assert.False(t, a.Equal(c))
	}
}

func TestResolveCallScope(t *testing.T) {
	t.Run("voice wins", func(t *testing.T) {
		s := ResolveCallScope(CallIntent{Voice: true}, Focus{RoomKey: "room", DMKey: "dm"})
		assert.Equal(t, ScopeVoice, s.Kind)
		assert.Equal(t, DefaultVoiceChannel, s.ChannelID)
		assert.Empty(t, s.DMKey)
		assert.NotEmpty(t, s.CallID)
		require.NoError(t, s.Validate())
	})

	t.Run("dm", func(t *testing.T) {
		s := ResolveCallScope(CallIntent{CallID: "c1"}, Focus{RoomKey: "room", ChannelID: "dev", DMKey: "dm"})
		assert.Equal(t, CallScope{Kind: ScopeDM, RoomKey: "room", DMKey: "dm", CallID: "c1", Mode: ModeAudio}, s)
	})

	t.Run("text", func(t *testing.T) {
		s := ResolveCallScope(CallIntent{Mode: ModeVideo}, Focus{RoomKey: "room"})
		assert.Equal(t, ScopeText, s.Kind)
		assert.Equal(t, DefaultTextChannel, s.ChannelID)
		assert.Equal(t, ModeVideo, s.Mode)
	})
}

func TestCallScopeSurvives(t *testing.T) {
	voice := CallScope{Kind: ScopeVoice, RoomKey: "room", ChannelID: "stage", CallID: "c"}
	assert.True(t, voice.Survives(Focus{RoomKey: "room", ChannelID: "dev"}))
	assert.False(t, voice.Survives(Focus{RoomKey: "other"}))

	text := CallScope{Kind: ScopeText, RoomKey: "room", ChannelID: "general", CallID: "c"}
	assert.False(t, text.Survives(Focus{RoomKey: "room", ChannelID: "dev"}))
}

func TestDMKey(t *testing.T) {
	assert.Equal(t, DMKey("a", "b"), DMKey("b", "a"))
	assert.NotEqual(t, DMKey("a", "b"), DMKey("a", "c"))
	assert.Len(t, DMKey("a", "b"), 64)
}
