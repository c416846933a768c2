package cache

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	value     string
	expiresAt time.Time
}

// MemoryStore is an in-process Store used when no Redis URL is configured.
// It does not survive restarts and is not shared between replicas.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]memoryEntry), now: time.Now}
}

// Set stores value under key for ttl. Expired entries are swept on write.
func (s *MemoryStore) Set(_ context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for k, e := range s.entries {
		if now.After(e.expiresAt) {
			delete(s.entries, k)
		}
	}
	s.entries[key] = memoryEntry{value: value, expiresAt: now.Add(ttl)}
	return nil
}

// Take reads and deletes key.
func (s *MemoryStore) Take(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return "", ErrMiss
	}
	delete(s.entries, key)
	if s.now().After(e.expiresAt) {
		return "", ErrMiss
	}
	return e.value, nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }
