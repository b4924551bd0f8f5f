package cache

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps documents in a process-local map.
type MemoryStore struct {
	ttl time.Duration
	now func() time.Time

	mu   sync.RWMutex
	docs map[string]Document
}

// NewMemoryStore creates an empty store. A non-positive ttl selects DefaultTTL.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{
		ttl:  ttl,
		now:  time.Now,
		docs: make(map[string]Document),
	}
}

func (s *MemoryStore) Put(_ context.Context, doc Document) error {
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = s.now()
	}
	s.mu.Lock()
	s.docs[doc.ID] = doc
	s.mu.Unlock()
	return nil
}

// Get returns a stored document even if it is past its TTL but has not been
// swept yet. Eviction is the sweeper's job.
func (s *MemoryStore) Get(_ context.Context, id string) (Document, error) {
	s.mu.RLock()
	doc, ok := s.docs[id]
	s.mu.RUnlock()
	if !ok {
		return Document{}, ErrNotFound
	}
	return doc, nil
}

func (s *MemoryStore) Sweep(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, doc := range s.docs {
		if doc.Expired(now, s.ttl) {
			delete(s.docs, id)
			removed++
		}
	}
	return removed, nil
}

func (s *MemoryStore) Len(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs), nil
}
