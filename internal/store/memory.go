package store

import (
	"context"
	"sync"
)

// MemoryStore keeps values in process memory
type MemoryStore struct {
	mu     sync.RWMutex
	values map[Key][]byte
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[Key][]byte)}
}

// Get returns a copy of the value stored under key
func (s *MemoryStore) Get(_ context.Context, key Key) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	value, ok := s.values[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), value...), true, nil
}

// Put stores a copy of value under key
func (s *MemoryStore) Put(_ context.Context, key Key, value []byte, expectAbsent bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.values[key]; exists && expectAbsent {
		return ErrAlreadyExists
	}
	s.values[key] = append([]byte(nil), value...)
	return nil
}
