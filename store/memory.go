package store

import (
	"context"
	"sync"

	"github.com/c360/triggerkit/trigger"
)

// MemoryStore is an in-memory trigger.Store for tests and store-less
// deployments
type MemoryStore struct {
	mu       sync.RWMutex
	triggers map[string]trigger.MemoryTrigger
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		triggers: make(map[string]trigger.MemoryTrigger),
	}
}

// Load returns all stored triggers
func (s *MemoryStore) Load(_ context.Context) ([]trigger.MemoryTrigger, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]trigger.MemoryTrigger, 0, len(s.triggers))
	for _, t := range s.triggers {
		result = append(result, t.Clone())
	}
	return result, nil
}

// Save stores one trigger, overwriting any previous value
func (s *MemoryStore) Save(_ context.Context, t trigger.MemoryTrigger) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.triggers[t.ID] = t.Clone()
	return nil
}

// Delete removes a trigger. Deleting a missing id is not an error.
func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.triggers, id)
	return nil
}

// Count returns the number of stored triggers
func (s *MemoryStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.triggers)
}
