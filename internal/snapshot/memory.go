package snapshot

import (
	"context"
	"sync"
)

// MemoryStore is a concurrency-safe in-memory Store. Used in tests and when
// no snapshot file is configured; contents are lost on exit, which is exactly
// a cold cache.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

// Put stores a copy of the blob under the key.
func (s *MemoryStore) Put(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dup := make([]byte, len(value))
	copy(dup, value)
	s.data[key] = dup
	return nil
}

// Get returns a copy of the blob for the key, or ErrNotFound.
func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	value, ok := s.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	dup := make([]byte, len(value))
	copy(dup, value)
	return dup, nil
}
