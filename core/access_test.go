package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCheckAccess(t *testing.T) {
	log := []Message{
		textMsg("m1", "owner", 1),
		sysMsg(t, "s1", "owner", ActionChannelAdd, map[string]any{"id": "announcements", "modOnly": true}),
		sysMsg(t, "s2", "owner", ActionRoomBan, map[string]any{"target": "banned"}),
		sysMsg(t, "s3", "owner", ActionRoomKick, map[string]any{"target": "kicked"}),
		sysMsg(t, "s4", "owner", ActionChannelKick, map[string]any{"target": "muted", "channelId": "general"}),
	}
	view := Fold("room", log)
	req := func(key, channel string) AccessRequest {
		return AccessRequest{View: view, Writable: true, LocalKey: key, Scope: ViewScope{ChannelID: channel}, Purpose: PurposeCompose}
	}

	t.Run("ban takes precedence over mod-only", func(t *testing.T) {
		access := CheckAccess(req("banned", "announcements"))
		assert.True(t, access.Blocked)
		assert.Equal(t, ReasonBanned, access.Reason)
	})

	t.Run("read-only room", func(t *testing.T) {
		r := req("member", "general")
		r.Writable = false
		assert.Equal(t, ReasonReadOnly, CheckAccess(r).Reason)
	})

	t.Run("server kick", func(t *testing.T) {
		assert.Equal(t, ReasonKicked, CheckAccess(req("kicked", "general")).Reason)
	})

	t.Run("channel kick only applies to its channel", func(t *testing.T) {
		assert.Equal(t, ReasonChannelKicked, CheckAccess(req("muted", "general")).Reason)
		assert.False(t, CheckAccess(req("muted", "dev")).Blocked)
	})

	t.Run("mod-only channel", func(t *testing.T) {
		assert.Equal(t, ReasonModOnly, CheckAccess(req("member", "announcements")).Reason)
		assert.False(t, CheckAccess(req("owner", "announcements")).Blocked)
	})

	t.Run("dm ignores channel rules", func(t *testing.T) {
		r := req("muted", "")
		r.Scope = ViewScope{DMKey: DMKey("muted", "owner")}
		assert.False(t, CheckAccess(r).Blocked)
	})

	t.Run("voice channel for calls", func(t *testing.T) {
		r := req("member", "")
		r.Purpose = PurposeCall
		r.VoiceChannelID = DefaultVoiceChannel
		assert.False(t, CheckAccess(r).Blocked)
	})

	t.Run("reason message", func(t *testing.T) {
		assert.NotEmpty(t, CheckAccess(req("banned", "general")).Message)
	})
}
