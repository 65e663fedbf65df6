package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDialogQueueFIFO(t *testing.T) {
	var shown []string
	q := NewDialogQueue(func(active *Dialog) {
		if active != nil {
			shown = append(shown, active.Title)
		}
	})

	var resolved []string
	resolve := func(name string) func(bool) {
		return func(accepted bool) {
			if accepted {
				resolved = append(resolved, name)
			}
		}
	}

	first, err := q.Enqueue(Dialog{Kind: DialogError, Title: "first"}, resolve("first"))
	require.NoError(t, err)
	second, _ := q.Enqueue(Dialog{Kind: DialogConfirm, Title: "second"}, resolve("second"))
	q.Enqueue(Dialog{Kind: DialogInfo, Title: "third"}, nil)

	active, ok := q.Active()
	require.True(t, ok)
	assert.Equal(t, first, active.ID)
	assert.Equal(t, 3, q.Len())
	assert.Len(t, q.Pending(), 2)

	t.Run("only the active dialog resolves", func(t *testing.T) {
		assert.ErrorIs(t, q.Resolve(second, true), ErrDialogNotActive)
	})

	require.NoError(t, q.Resolve(first, true))
	require.NoError(t, q.Resolve(second, true))
	active, _ = q.Active()
	assert.Equal(t, "third", active.Title)

	assert.Equal(t, []string{"first", "second", "third"}, shown)
	assert.Equal(t, []string{"first", "second"}, resolved)
}

func TestDialogQueueClose(t *testing.T) {
	q := NewDialogQueue(nil)
	var declined int
	q.Enqueue(Dialog{Title: "a"}, func(accepted bool) {
		if !accepted {
			declined++
		}
	})
	q.Enqueue(Dialog{Title: "b"}, func(accepted bool) {
		if !accepted {
			declined++
		}
	})

	q.Close()
	assert.Equal(t, 2, declined)
	assert.Equal(t, 0, q.Len())
	_, err := q.Enqueue(Dialog{Title: "c"}, nil)
	assert.ErrorIs(t, err, ErrDialogClosed)
}
