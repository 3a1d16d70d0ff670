package history

import (
	"context"
	"sync"
	"time"

	"github.com/kbaffoe/momoguard/internal/confirm"
	"github.com/kbaffoe/momoguard/internal/sms"
)

// MemoryStore is the in-memory Store used in development and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string][]*Entry          // userID -> entries, append order
	byHash  map[string]map[string]*Entry // userID -> rawTextHash -> entry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string][]*Entry),
		byHash:  make(map[string]map[string]*Entry),
	}
}

func (s *MemoryStore) Add(ctx context.Context, e *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	hashes := s.byHash[e.UserID]
	if hashes == nil {
		hashes = make(map[string]*Entry)
		s.byHash[e.UserID] = hashes
	}
	if _, dup := hashes[e.RawTextHash]; dup {
		return nil
	}

	cp := *e
	hashes[e.RawTextHash] = &cp
	s.entries[e.UserID] = append(s.entries[e.UserID], &cp)
	return nil
}

func (s *MemoryStore) Seen(ctx context.Context, userID, rawTextHash string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.byHash[userID][rawTextHash]
	return ok, nil
}

func (s *MemoryStore) SetResolution(ctx context.Context, userID, rawTextHash, resolution string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.byHash[userID][rawTextHash]
	if !ok {
		return nil
	}
	e.Resolution = resolution
	return nil
}

func (s *MemoryStore) Recent(ctx context.Context, userID string, limit int) ([]*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.entries[userID]
	if limit <= 0 || limit > len(all) {
		limit = len(all)
	}

	// Newest first.
	out := make([]*Entry, 0, limit)
	for i := len(all) - 1; i >= 0 && len(out) < limit; i-- {
		cp := *all[i]
		out = append(out, &cp)
	}
	return out, nil
}

func (s *MemoryStore) SummarySince(ctx context.Context, userID string, since time.Time) (*Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sum := NewSummary()
	for _, e := range s.entries[userID] {
		if e.ObservedAt.Before(since) {
			continue
		}
		sum.Count++
		if e.Direction == sms.DirectionSent {
			sum.Sent = sum.Sent.Add(e.Amount)
		} else {
			sum.Received = sum.Received.Add(e.Amount)
		}
		if e.Flagged {
			sum.Flagged++
		}
	}
	return sum, nil
}

func (s *MemoryStore) Totals(ctx context.Context) (*Totals, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t := NewTotals()
	for _, list := range s.entries {
		for _, e := range list {
			t.Transactions++
			if e.Flagged {
				t.Flagged++
				t.AmountFlagged = t.AmountFlagged.Add(e.Amount)
			}
			switch e.Resolution {
			case string(confirm.ResolutionFraud), string(confirm.ResolutionBlock):
				t.FraudConfirmed++
				t.AmountProtected = t.AmountProtected.Add(e.Amount)
			}
		}
	}
	return t, nil
}
