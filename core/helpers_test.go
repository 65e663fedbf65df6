package core

import (
	"encoding/json"
	"testing"
)

func seq(n int64) *int64 {
	return &n
}

func boolPtr(b bool) *bool {
	return &b
}

func strPtr(s string) *string {
	return &s
}

func mustJSON(t *testing.T, v any) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func textMsg(id, sender string, ts int64) Message {
	return Message{
		ID:        id,
		Sender:    sender,
		Type:      KindText,
		Timestamp: ts,
		Data:      json.RawMessage(`{"text":"hello"}`),
	}
}

func sysMsg(t *testing.T, id, sender string, action SystemAction, data any) Message {
	t.Helper()
	return Message{
		ID:     id,
		Sender: sender,
		Type:   KindSystem,
		Action: action,
		Data:   mustJSON(t, data),
	}
}

func reactionMsg(t *testing.T, id, sender, target, emoji string, on bool) Message {
	t.Helper()
	return Message{
		ID:     id,
		Sender: sender,
		Type:   KindReaction,
		Data:   mustJSON(t, map[string]any{"messageId": target, "emoji": emoji, "on": on}),
	}
}
