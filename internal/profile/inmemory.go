package profile

import (
	"context"
	"sync"
)

// InMemoryStore keeps profiles in process memory for local/dev use.
type InMemoryStore struct {
	mu       sync.RWMutex
	users    map[string]UserProfile
	personas map[string]Persona
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		users:    make(map[string]UserProfile),
		personas: make(map[string]Persona),
	}
}

func (s *InMemoryStore) GetUser(_ context.Context, userID string) (UserProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.users[userID]
	if !ok {
		return UserProfile{}, ErrNotFound
	}
	return p, nil
}

func (s *InMemoryStore) UpsertUser(_ context.Context, p UserProfile) (UserProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[p.UserID] = p
	return p, nil
}

func (s *InMemoryStore) GetPersona(_ context.Context, userID string) (Persona, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.personas[userID]
	if !ok {
		return Persona{}, ErrNotFound
	}
	return p, nil
}

func (s *InMemoryStore) UpsertPersona(_ context.Context, p Persona) (Persona, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.personas[p.UserID] = p
	return p, nil
}

func (s *InMemoryStore) Close() error { return nil }
