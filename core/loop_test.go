package core

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	loop := NewLoop(slog.New(slog.NewTextHandler(io.Discard, nil)), 8)
	go loop.Run(ctx)

	t.Run("tasks run in order", func(t *testing.T) {
		var order []int
		for i := 0; i < 5; i++ {
			i := i
			require.True(t, loop.Post(func() { order = append(order, i) }))
		}
		require.NoError(t, loop.Do(ctx, func() {}))
		assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
	})

	t.Run("panics do not stop the loop", func(t *testing.T) {
		loop.Post(func() { panic("boom") })
		ran := false
		require.NoError(t, loop.Do(ctx, func() { ran = true }))
		assert.True(t, ran)
	})

	t.Run("after func", func(t *testing.T) {
		fired := make(chan struct{})
		loop.AfterFunc(10*time.Millisecond, func() { close(fired) })
		select {
		case <-fired:
		case <-time.After(baseTimeout):
			t.Fatal("timer never fired")
		}

		stop := loop.AfterFunc(time.Hour, func() {})
		assert.True(t, stop())
	})

	cancel()
	<-loop.Done()
	assert.False(t, loop.Post(func() {}))
	assert.ErrorIs(t, loop.Do(context.Background(), func() {}), ErrLoopStopped)
}

func TestSessionToken(t *testing.T) {
	var token SessionToken
	first := token.Next()
	assert.True(t, token.Valid(first))
	second := token.Next()
	assert.False(t, token.Valid(first))
	assert.True(t, token.Valid(second))
	assert.Equal(t, second, token.Current())
}
