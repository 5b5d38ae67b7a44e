package contextmgr

import (
	"sync"
)

// entry pairs a history with the lock that serializes turns for its user.
type entry struct {
	history History
	mu      sync.Mutex
}

// Store maps user ids to histories. Lookups for different users only contend on the
// map lock; each user's history has its own lock.
type Store struct {
	entries map[string]*entry
	mu      sync.RWMutex
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		entries: make(map[string]*entry),
	}
}

// entry returns the entry for userID, creating it on first use.
func (s *Store) entry(userID string) *entry {
	s.mu.RLock()
	e, ok := s.entries[userID]
	s.mu.RUnlock()
	if ok {
		return e
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok = s.entries[userID]; ok {
		return e
	}
	e = &entry{}
	s.entries[userID] = e
	return e
}

// Len returns the number of users with an entry.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Snapshot returns a copy of userID's history. It waits for any active turn for that user.
func (s *Store) Snapshot(userID string) ([]Message, bool) {
	s.mu.RLock()
	e, ok := s.entries[userID]
	s.mu.RUnlock()
	if !ok {
		return nil, false
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.history.Messages(), true
}
