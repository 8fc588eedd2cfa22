package sessionstore

import (
	"context"
	"sync"
	"time"

	"github.com/yanqian/cashtags/internal/domain/auth"
)

// MemoryStore keeps revoked session ids in process memory until they expire.
type MemoryStore struct {
	mu      sync.Mutex
	revoked map[string]time.Time
	now     func() time.Time
}

// NewMemoryStore constructs an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{revoked: make(map[string]time.Time), now: time.Now}
}

func (s *MemoryStore) Revoke(_ context.Context, sessionID string, until time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for id, exp := range s.revoked {
		if !exp.After(now) {
			delete(s.revoked, id)
		}
	}
	if until.After(now) {
		s.revoked[sessionID] = until
	}
	return nil
}

func (s *MemoryStore) Revoked(_ context.Context, sessionID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	exp, ok := s.revoked[sessionID]
	return ok && exp.After(s.now()), nil
}

var _ auth.SessionStore = (*MemoryStore)(nil)
