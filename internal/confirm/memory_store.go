package confirm

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory session registry for demo/development mode.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*PendingConfirmation // userID → at most one session
}

// NewMemoryStore creates a new in-memory session registry.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*PendingConfirmation)}
}

func (s *MemoryStore) Put(ctx context.Context, pc *PendingConfirmation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *pc
	s.sessions[pc.UserID] = &cp
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, userID string) (*PendingConfirmation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pc, ok := s.sessions[userID]
	if !ok {
		return nil, ErrNoSession
	}
	cp := *pc
	return &cp, nil
}

func (s *MemoryStore) Claim(ctx context.Context, userID, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pc, ok := s.sessions[userID]
	if !ok || pc.ID != id {
		return false, nil
	}
	delete(s.sessions, userID)
	return true, nil
}

func (s *MemoryStore) ListExpired(ctx context.Context, now time.Time, limit int) ([]*PendingConfirmation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*PendingConfirmation
	for _, pc := range s.sessions {
		if pc.Expired(now) {
			cp := *pc
			result = append(result, &cp)
			if len(result) >= limit {
				break
			}
		}
	}
	return result, nil
}

func (s *MemoryStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions), nil
}
