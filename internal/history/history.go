// Package history keeps per-user transaction records.
//
// Exactly one entry exists per (user, raw text hash) pair, which doubles as
// the webhook dedup key: a redelivered notification hits Seen and is dropped
// before parsing. Raw message text is never stored, only its hash.
package history

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kbaffoe/momoguard/internal/scoring"
	"github.com/kbaffoe/momoguard/internal/sms"
)

// Entry is one recorded transaction with its scoring outcome.
type Entry struct {
	ID           string          `json:"id"`
	UserID       string          `json:"userId"`
	Provider     sms.Provider    `json:"provider"`
	Direction    sms.Direction   `json:"direction"`
	Amount       decimal.Decimal `json:"amount"`
	Counterparty string          `json:"counterparty,omitempty"`
	RawTextHash  string          `json:"rawTextHash"`
	ObservedAt   time.Time       `json:"observedAt"`
	Score        int             `json:"score"`
	Level        scoring.Level   `json:"level"`
	Flagged      bool            `json:"flagged"`
	Resolution   string          `json:"resolution,omitempty"`
}

// Summary aggregates a user's entries since some cutoff. Used by the /today
// and /stats commands.
type Summary struct {
	Count    int             `json:"count"`
	Sent     decimal.Decimal `json:"sent"`
	Received decimal.Decimal `json:"received"`
	Flagged  int             `json:"flagged"`
}

// Totals aggregates across all users, for the dashboard stats endpoint.
type Totals struct {
	Transactions    int             `json:"transactions"`
	Flagged         int             `json:"flagged"`
	FraudConfirmed  int             `json:"fraudConfirmed"`
	AmountFlagged   decimal.Decimal `json:"amountFlagged"`
	AmountProtected decimal.Decimal `json:"amountProtected"`
}

// Store persists transaction entries.
//
// Add must be idempotent on (user, hash): a second add of the same
// notification is a silent no-op. SetResolution stamps the confirmation
// outcome onto the entry after the user replies.
type Store interface {
	Add(ctx context.Context, e *Entry) error
	Seen(ctx context.Context, userID, rawTextHash string) (bool, error)
	SetResolution(ctx context.Context, userID, rawTextHash, resolution string) error
	Recent(ctx context.Context, userID string, limit int) ([]*Entry, error)
	SummarySince(ctx context.Context, userID string, since time.Time) (*Summary, error)
	Totals(ctx context.Context) (*Totals, error)
}

// NewSummary returns a zero-valued summary with decimals initialized, so
// JSON output shows "0" instead of a null.
func NewSummary() *Summary {
	return &Summary{Sent: decimal.Zero, Received: decimal.Zero}
}

// NewTotals returns a zero-valued totals record.
func NewTotals() *Totals {
	return &Totals{AmountFlagged: decimal.Zero, AmountProtected: decimal.Zero}
}
