package chat

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"canopy-backend/internal/models"
)

// ConversationStore is the single shared mutable resource of a chat turn: an
// ordered log of conversation messages. All mutations go through its API so
// callers never hold aliases into live message state; Messages returns deep
// copies for the same reason.
type ConversationStore struct {
	mu       sync.RWMutex
	messages []models.ConversationMessage
	onChange func(snapshot []models.ConversationMessage)
}

// NewConversationStore creates an empty store. onChange, if non-nil, is
// invoked with a full snapshot after every mutation (used for debounced
// persistence); it must not call back into the store.
func NewConversationStore(onChange func([]models.ConversationMessage)) *ConversationStore {
	return &ConversationStore{onChange: onChange}
}

// Append adds a message to the end of the log and returns its ID.
func (s *ConversationStore) Append(msg models.ConversationMessage) uuid.UUID {
	s.mu.Lock()
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	s.messages = append(s.messages, msg)
	snapshot := s.copyLocked()
	s.mu.Unlock()

	s.notify(snapshot)
	return msg.ID
}

// Update applies mutate to the message with the given ID under the store
// lock. Unknown IDs are a no-op (the message may belong to a cleared
// session).
func (s *ConversationStore) Update(id uuid.UUID, mutate func(*models.ConversationMessage)) {
	s.mu.Lock()
	found := false
	for i := range s.messages {
		if s.messages[i].ID == id {
			mutate(&s.messages[i])
			found = true
			break
		}
	}
	var snapshot []models.ConversationMessage
	if found {
		snapshot = s.copyLocked()
	}
	s.mu.Unlock()

	if found {
		s.notify(snapshot)
	}
}

// Clear removes every message (whole-session clear; individual messages are
// never deleted).
func (s *ConversationStore) Clear() {
	s.mu.Lock()
	s.messages = nil
	snapshot := s.copyLocked()
	s.mu.Unlock()

	s.notify(snapshot)
}

// Messages returns a deep copy of the current log.
func (s *ConversationStore) Messages() []models.ConversationMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.copyLocked()
}

// Len returns the number of messages in the log.
func (s *ConversationStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

// Message returns a copy of one message by ID.
func (s *ConversationStore) Message(id uuid.UUID) (models.ConversationMessage, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := range s.messages {
		if s.messages[i].ID == id {
			return copyMessage(s.messages[i]), true
		}
	}
	return models.ConversationMessage{}, false
}

// Replace swaps the whole log, used when loading a persisted session.
func (s *ConversationStore) Replace(messages []models.ConversationMessage) {
	s.mu.Lock()
	s.messages = make([]models.ConversationMessage, len(messages))
	for i := range messages {
		s.messages[i] = copyMessage(messages[i])
	}
	s.mu.Unlock()
}

func (s *ConversationStore) copyLocked() []models.ConversationMessage {
	out := make([]models.ConversationMessage, len(s.messages))
	for i := range s.messages {
		out[i] = copyMessage(s.messages[i])
	}
	return out
}

func (s *ConversationStore) notify(snapshot []models.ConversationMessage) {
	if s.onChange != nil {
		s.onChange(snapshot)
	}
}

func copyMessage(m models.ConversationMessage) models.ConversationMessage {
	out := m
	if m.Thinking != nil {
		thinking := models.ThinkingState{
			IsThinking: m.Thinking.IsThinking,
			Steps:      append([]models.ToolCallStep(nil), m.Thinking.Steps...),
		}
		out.Thinking = &thinking
	}
	if m.Metadata != nil {
		meta := *m.Metadata
		meta.Extra = append([]byte(nil), m.Metadata.Extra...)
		out.Metadata = &meta
	}
	return out
}
