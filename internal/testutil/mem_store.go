package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/hasancaglar07/usercomments-edge/pkg/edgecache"
)

// MemStore is an in-memory cache store for tests that don't need Redis.
type MemStore struct {
	mu      sync.Mutex
	entries map[string]*edgecache.Entry
	purges  []string
}

// NewMemStore returns an empty store.
func NewMemStore() *MemStore {
	return &MemStore{entries: make(map[string]*edgecache.Entry)}
}

func (s *MemStore) Get(ctx context.Context, key string) (*edgecache.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[key]
	if !ok || entry.IsExpired(time.Now()) {
		return nil, edgecache.ErrMiss
	}
	return entry, nil
}

func (s *MemStore) Set(ctx context.Context, key string, entry *edgecache.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = entry
	return nil
}

func (s *MemStore) Purge(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	s.purges = append(s.purges, key)
	return nil
}

// Has reports whether an entry is stored under key.
func (s *MemStore) Has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[key]
	return ok
}

// Len returns the number of stored entries.
func (s *MemStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Purged returns every key a purge was issued for, in order.
func (s *MemStore) Purged() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.purges...)
}

// WaitFor polls until the store holds at least n entries or the timeout
// elapses, covering the asynchronous store write behind a cache miss.
func (s *MemStore) WaitFor(n int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if s.Len() >= n {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return false
}
