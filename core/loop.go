package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"
)

var ErrLoopStopped = errors.New("event loop stopped")

// Scheduler runs closures on the goroutine that owns the client state.
type Scheduler interface {
	// Post queues fn. It returns false if fn will never run.
	Post(fn func()) bool
	// AfterFunc posts fn after d. The returned function cancels the timer and
	// reports whether it was still pending.
	AfterFunc(d time.Duration, fn func()) (stop func() bool)
}

// Loop is the single goroutine owning every room log, view, call session and dialog.
// Everything else talks to that state by posting closures.
type Loop struct {
	tasks  chan func()
	done   chan struct{}
	logger *slog.Logger
}

func NewLoop(logger *slog.Logger, backlog int) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		tasks:  make(chan func(), backlog),
		done:   make(chan struct{}),
		logger: logger,
	}
}

// Run drains the task queue until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) error {
	defer close(l.done)
	for {
		select {
		case <-ctx.Done():
			return nil
		case fn := <-l.tasks:
			l.run(fn)
		}
	}
}

func (l *Loop) run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("event loop task panicked", "panic", r, "stack", string(debug.Stack()))
		}
	}()
	fn()
}

func (l *Loop) Post(fn func()) bool {
	select {
	case <-l.done:
		return false
	default:
	}
	select {
	case l.tasks <- fn:
		return true
	case <-l.done:
		return false
	}
}

func (l *Loop) AfterFunc(d time.Duration, fn func()) func() bool {
	t := time.AfterFunc(d, func() {
		l.Post(fn)
	})
	return t.Stop
}

// Do runs fn on the loop and waits for it to return.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	ok := l.Post(func() {
		defer close(finished)
		fn()
	})
	if !ok {
		return ErrLoopStopped
	}
	select {
	case <-finished:
		return nil
	case <-l.done:
		return ErrLoopStopped
	case <-ctx.Done():
		return fmt.Errorf("waiting for event loop: %w", ctx.Err())
	}
}

// Done is closed once Run has returned.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}
