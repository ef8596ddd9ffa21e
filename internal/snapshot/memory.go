// Package snapshot provides quiz.SnapshotStore implementations.
package snapshot

import (
	"context"
	"sync"
	"time"

	"github.com/pavelanni/phishtrap/internal/quiz"
)

type memoryEntry struct {
	data    []byte
	expires time.Time
}

// MemoryStore is an in-process SnapshotStore. Entries expire after ttl;
// a zero ttl keeps them until cleared.
type MemoryStore struct {
	mu      sync.RWMutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]memoryEntry
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]memoryEntry),
	}
}

func (s *MemoryStore) Save(_ context.Context, key string, data []byte) error {
	e := memoryEntry{data: append([]byte(nil), data...)}
	if s.ttl > 0 {
		e.expires = s.now().Add(s.ttl)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = e
	return nil
}

func (s *MemoryStore) Load(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		return nil, quiz.ErrNoSnapshot
	}
	if !e.expires.IsZero() && !s.now().Before(e.expires) {
		s.mu.Lock()
		delete(s.entries, key)
		s.mu.Unlock()
		return nil, quiz.ErrNoSnapshot
	}
	return append([]byte(nil), e.data...), nil
}

func (s *MemoryStore) Clear(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}
