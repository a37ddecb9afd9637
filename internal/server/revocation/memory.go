package revocation

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is a process-local registry. It does not survive a restart
// and is not shared between instances; use RedisStore for that.
type MemoryStore struct {
	mu      sync.RWMutex
	revoked map[string]*time.Timer

	// afterFunc schedules removal; replaced in tests.
	afterFunc func(d time.Duration, f func()) *time.Timer
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		revoked:   make(map[string]*time.Timer),
		afterFunc: time.AfterFunc,
	}
}

func (s *MemoryStore) Revoke(_ context.Context, credential string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.revoked[credential]; ok {
		t.Stop()
	}

	var timer *time.Timer
	timer = s.afterFunc(ttl, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		// a later Revoke may have replaced the entry
		if s.revoked[credential] == timer {
			delete(s.revoked, credential)
		}
	})
	s.revoked[credential] = timer

	return nil
}

func (s *MemoryStore) IsRevoked(_ context.Context, credential string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.revoked[credential]
	return ok, nil
}

// Len returns the number of tracked credentials.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.revoked)
}

// Close cancels all pending removals and forgets every entry.
func (s *MemoryStore) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for k, t := range s.revoked {
		t.Stop()
		delete(s.revoked, k)
	}
}
