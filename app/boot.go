package peerchat

import (
	"log/slog"
	"time"

	"github.com/putto11262002/peerchat/core"
)

// bootGate decides when a connection is ready: the identity has arrived and every
// watched room delivered its first history page. Each history wait is bounded so a
// backend that never answers cannot hold the gate closed.
// It belongs to the event loop.
type bootGate struct {
	sched   core.Scheduler
	timeout time.Duration
	logger  *slog.Logger
	// gen invalidates expiry timers of an earlier connection.
	gen core.SessionToken

	identity bool
	ready    bool
	pending  map[string]func() bool
	loaded   map[string]struct{}
	onReady  func()
}

func newBootGate(sched core.Scheduler, timeout time.Duration, logger *slog.Logger, onReady func()) *bootGate {
	g := &bootGate{
		sched:   sched,
		timeout: timeout,
		logger:  logger,
		onReady: onReady,
	}
	g.Reset()
	return g
}

// Reset closes the gate. It is called for every new connection.
func (g *bootGate) Reset() {
	g.gen.Next()
	for _, stop := range g.pending {
		stop()
	}
	g.identity = false
	g.ready = false
	g.pending = make(map[string]func() bool)
	g.loaded = make(map[string]struct{})
}

func (g *bootGate) Ready() bool {
	return g.ready
}

// Waiting returns the rooms whose first history page is still outstanding.
func (g *bootGate) Waiting() []string {
	keys := make([]string, 0, len(g.pending))
	for k := range g.pending {
		keys = append(keys, k)
	}
	return core.NewKeySet(keys...).Sorted()
}

func (g *bootGate) Identity() {
	g.identity = true
	g.check()
}

// Expect starts waiting for the first history page of roomKey. Rooms that already
// delivered one on this connection are not waited for again.
func (g *bootGate) Expect(roomKey string) {
	if _, ok := g.loaded[roomKey]; ok {
		return
	}
	if _, ok := g.pending[roomKey]; ok {
		return
	}
	gen := g.gen.Current()
	g.pending[roomKey] = g.sched.AfterFunc(g.timeout, func() {
		if !g.gen.Valid(gen) {
			return
		}
		if _, ok := g.pending[roomKey]; !ok {
			return
		}
		g.logger.Warn("timed out waiting for history", "room", roomKey, "timeout", g.timeout)
		delete(g.pending, roomKey)
		g.check()
	})
}

// Loaded records the first history page of roomKey.
func (g *bootGate) Loaded(roomKey string) {
	g.loaded[roomKey] = struct{}{}
	if stop, ok := g.pending[roomKey]; ok {
		stop()
		delete(g.pending, roomKey)
	}
	g.check()
}

// Forget stops waiting for a room that went away.
func (g *bootGate) Forget(roomKey string) {
	if stop, ok := g.pending[roomKey]; ok {
		stop()
		delete(g.pending, roomKey)
	}
	delete(g.loaded, roomKey)
	g.check()
}

// ClearPending gives up on every outstanding history wait.
func (g *bootGate) ClearPending() {
	for _, stop := range g.pending {
		stop()
	}
	g.pending = make(map[string]func() bool)
	g.check()
}

func (g *bootGate) check() {
	if g.ready || !g.identity || len(g.pending) > 0 {
		return
	}
	g.ready = true
	if g.onReady != nil {
		g.onReady()
	}
}
