package chat

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"canopy-backend/internal/models"
)

func TestConversationStore(t *testing.T) {
	t.Run("append assigns ID and timestamp", func(t *testing.T) {
		s := NewConversationStore(nil)
		id := s.Append(models.ConversationMessage{Role: models.RoleUser, Content: "hi"})

		require.NotEqual(t, uuid.Nil, id)
		msg, ok := s.Message(id)
		require.True(t, ok)
		assert.Equal(t, "hi", msg.Content)
		assert.False(t, msg.Timestamp.IsZero())
	})

	t.Run("update mutates in place and unknown IDs are a no-op", func(t *testing.T) {
		s := NewConversationStore(nil)
		id := s.Append(models.ConversationMessage{Role: models.RoleAgent})

		s.Update(id, func(m *models.ConversationMessage) { m.Content = "done" })
		msg, _ := s.Message(id)
		assert.Equal(t, "done", msg.Content)

		s.Update(uuid.New(), func(m *models.ConversationMessage) { m.Content = "never" })
		assert.Equal(t, 1, s.Len())
	})

	t.Run("messages returns deep copies", func(t *testing.T) {
		s := NewConversationStore(nil)
		id := s.Append(models.ConversationMessage{
			Role:     models.RoleAgent,
			Thinking: &models.ThinkingState{IsThinking: true, Steps: []models.ToolCallStep{{ID: "s1"}}},
		})

		snapshot := s.Messages()
		snapshot[0].Thinking.Steps[0].ID = "mutated"
		snapshot[0].Thinking.IsThinking = false

		msg, _ := s.Message(id)
		assert.Equal(t, "s1", msg.Thinking.Steps[0].ID)
		assert.True(t, msg.Thinking.IsThinking)
	})

	t.Run("clear empties the whole log", func(t *testing.T) {
		s := NewConversationStore(nil)
		s.Append(models.ConversationMessage{Role: models.RoleUser, Content: "a"})
		s.Append(models.ConversationMessage{Role: models.RoleAgent, Content: "b"})

		s.Clear()
		assert.Equal(t, 0, s.Len())
		assert.Empty(t, s.Messages())
	})

	t.Run("onChange fires with a snapshot after every mutation", func(t *testing.T) {
		var calls [][]models.ConversationMessage
		s := NewConversationStore(func(snapshot []models.ConversationMessage) {
			calls = append(calls, snapshot)
		})

		id := s.Append(models.ConversationMessage{Role: models.RoleUser, Content: "a"})
		s.Update(id, func(m *models.ConversationMessage) { m.Content = "b" })
		s.Clear()

		require.Len(t, calls, 3)
		assert.Equal(t, "a", calls[0][0].Content)
		assert.Equal(t, "b", calls[1][0].Content)
		assert.Empty(t, calls[2])
	})

	t.Run("replace loads a persisted log without firing onChange", func(t *testing.T) {
		fired := 0
		s := NewConversationStore(func([]models.ConversationMessage) { fired++ })

		s.Replace([]models.ConversationMessage{
			{ID: uuid.New(), Role: models.RoleUser, Content: "restored"},
		})

		assert.Equal(t, 1, s.Len())
		assert.Zero(t, fired)
	})
}
