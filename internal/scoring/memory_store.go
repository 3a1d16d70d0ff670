package scoring

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory assessment store for demo/test use.
type MemoryStore struct {
	mu          sync.RWMutex
	assessments map[string][]*RiskAssessment // userID → assessments, oldest first
}

// NewMemoryStore creates an in-memory assessment store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{assessments: make(map[string][]*RiskAssessment)}
}

func (s *MemoryStore) Record(ctx context.Context, a *RiskAssessment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *a
	cp.Reasons = append([]Reason(nil), a.Reasons...)
	s.assessments[a.UserID] = append(s.assessments[a.UserID], &cp)
	return nil
}

func (s *MemoryStore) ListByUser(ctx context.Context, userID string, limit int) ([]*RiskAssessment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.assessments[userID]
	if len(all) == 0 {
		return nil, nil
	}

	start := len(all) - limit
	if start < 0 {
		start = 0
	}

	// Most recent first.
	result := make([]*RiskAssessment, 0, len(all)-start)
	for i := len(all) - 1; i >= start; i-- {
		cp := *all[i]
		cp.Reasons = append([]Reason(nil), all[i].Reasons...)
		result = append(result, &cp)
	}
	return result, nil
}
