package core

import "sync/atomic"

// SessionToken is a monotonically increasing generation counter. Asynchronous work
// captures the token when it starts and checks it before acting on its result; a
// continuation whose token is no longer current is stale and must do nothing.
type SessionToken struct {
	n atomic.Uint64
}

// Next invalidates every outstanding token and returns the new one.
func (t *SessionToken) Next() uint64 {
	return t.n.Add(1)
}

func (t *SessionToken) Current() uint64 {
	return t.n.Load()
}

func (t *SessionToken) Valid(token uint64) bool {
	return t.n.Load() == token
}
