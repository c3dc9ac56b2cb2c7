package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryStore is a simple in-process window store for local/dev use.
type InMemoryStore struct {
	mu          sync.RWMutex
	windows     map[string][]Message
	maxMessages int
}

func NewInMemoryStore(maxMessages int) *InMemoryStore {
	if maxMessages <= 0 {
		maxMessages = 20
	}
	return &InMemoryStore{
		windows:     make(map[string][]Message),
		maxMessages: maxMessages,
	}
}

func (s *InMemoryStore) Append(_ context.Context, conversationID string, msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	msg.ConversationID = conversationID

	window := append(s.windows[conversationID], msg)
	if overflow := len(window) - s.maxMessages; overflow > 0 {
		window = append([]Message(nil), window[overflow:]...)
	}
	s.windows[conversationID] = window
	return nil
}

func (s *InMemoryStore) Read(_ context.Context, conversationID string) ([]Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	window := s.windows[conversationID]
	out := make([]Message, len(window))
	copy(out, window)
	return out, nil
}

func (s *InMemoryStore) Clear(_ context.Context, conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.windows, conversationID)
	return nil
}

func (s *InMemoryStore) Close() error { return nil }
