package services

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"canopy-backend/internal/models"
)

func TestDebouncedSaver(t *testing.T) {
	t.Run("bursts coalesce into one save", func(t *testing.T) {
		var (
			mu    sync.Mutex
			saves [][]models.ConversationMessage
		)
		saver := newDebouncedSaver(20*time.Millisecond, func(snapshot []models.ConversationMessage) {
			mu.Lock()
			saves = append(saves, snapshot)
			mu.Unlock()
		})

		for i := 0; i < 5; i++ {
			saver.Trigger([]models.ConversationMessage{{Content: "v"}, {Content: "w"}})
		}

		require.Eventually(t, func() bool {
			mu.Lock()
			defer mu.Unlock()
			return len(saves) == 1
		}, time.Second, time.Millisecond)

		// Quiet period: no further saves.
		time.Sleep(50 * time.Millisecond)
		mu.Lock()
		defer mu.Unlock()
		require.Len(t, saves, 1)
		assert.Len(t, saves[0], 2)
	})

	t.Run("a trigger after the window saves again", func(t *testing.T) {
		var (
			mu    sync.Mutex
			count int
		)
		saver := newDebouncedSaver(10*time.Millisecond, func([]models.ConversationMessage) {
			mu.Lock()
			count++
			mu.Unlock()
		})

		saver.Trigger([]models.ConversationMessage{{Content: "a"}})
		require.Eventually(t, func() bool {
			mu.Lock()
			defer mu.Unlock()
			return count == 1
		}, time.Second, time.Millisecond)

		saver.Trigger([]models.ConversationMessage{{Content: "b"}})
		require.Eventually(t, func() bool {
			mu.Lock()
			defer mu.Unlock()
			return count == 2
		}, time.Second, time.Millisecond)
	})

	t.Run("flush writes the pending snapshot immediately", func(t *testing.T) {
		var (
			mu    sync.Mutex
			saves int
		)
		saver := newDebouncedSaver(time.Hour, func([]models.ConversationMessage) {
			mu.Lock()
			saves++
			mu.Unlock()
		})

		saver.Trigger([]models.ConversationMessage{{Content: "a"}})
		saver.flush()

		mu.Lock()
		assert.Equal(t, 1, saves)
		mu.Unlock()

		// Nothing pending: flush is a no-op.
		saver.flush()
		mu.Lock()
		assert.Equal(t, 1, saves)
		mu.Unlock()
	})

	t.Run("non-positive delay falls back to a sane default", func(t *testing.T) {
		saver := newDebouncedSaver(0, func([]models.ConversationMessage) {})
		assert.Equal(t, 2*time.Second, saver.delay)
	})
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abc...", truncate("abcdef", 3))
}
