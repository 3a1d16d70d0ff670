// Package profile holds per-user spending history and the store capability
// the engine mutates it through.
//
// A Profile is the only long-lived mutable state the risk engine touches.
// It is always read in full, mutated in memory, and written back with an
// optimistic version check so concurrent same-user writes cannot silently
// clobber each other.
package profile

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kbaffoe/momoguard/internal/sms"
)

var (
	// ErrNotFound is returned by Load for unknown users.
	ErrNotFound = errors.New("profile not found")
	// ErrConflict is returned by Save when the stored version has moved on.
	// Callers reload, reapply, and retry.
	ErrConflict = errors.New("profile version conflict")
	// ErrExists is returned by Create when the user already has a profile.
	ErrExists = errors.New("profile already exists")
)

// Defaults applied to freshly created profiles, in GHS.
var (
	DefaultDailyLimit    = decimal.NewFromInt(2000)
	DefaultAverageAmount = decimal.NewFromInt(50)
)

// DayEntry is one transaction inside the rolling daily window.
type DayEntry struct {
	Amount    decimal.Decimal `json:"amount"`
	Direction sms.Direction   `json:"direction"`
	At        time.Time       `json:"at"`
}

// Profile is the per-user state read before every scoring call.
type Profile struct {
	UserID            string
	Platform          string // "telegram" or "whatsapp"
	ChannelRef        string // chat id or phone number prompts are delivered to
	DailyLimit        decimal.Decimal
	AverageAmount     decimal.Decimal
	TransactionsToday []DayEntry
	Blocked           []string
	Trusted           []string
	FraudReports      int
	TotalTransactions int
	CreatedAt         time.Time
	LastActive        time.Time

	// Version backs the store's compare-and-swap update. Zero for profiles
	// that have never been saved.
	Version int64
}

// New returns a profile with default limits for a first-time user.
func New(userID, platform, channelRef string, now time.Time) *Profile {
	return &Profile{
		UserID:        userID,
		Platform:      platform,
		ChannelRef:    channelRef,
		DailyLimit:    DefaultDailyLimit,
		AverageAmount: DefaultAverageAmount,
		CreatedAt:     now,
		LastActive:    now,
	}
}

// Store is the external profile capability. Save must fail with ErrConflict
// when the persisted version differs from the loaded one.
type Store interface {
	Load(ctx context.Context, userID string) (*Profile, error)
	Create(ctx context.Context, p *Profile) error
	Save(ctx context.Context, p *Profile) error
	Count(ctx context.Context) (int, error)
}

// PruneDay drops window entries that fall outside the current calendar day
// in the given timezone. Called before every scoring pass so the daily and
// velocity windows are never stale.
func (p *Profile) PruneDay(now time.Time, loc *time.Location) {
	local := now.In(loc)
	dayStart := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)

	kept := p.TransactionsToday[:0]
	for _, e := range p.TransactionsToday {
		if !e.At.In(loc).Before(dayStart) {
			kept = append(kept, e)
		}
	}
	p.TransactionsToday = kept
}

// SentToday sums today's outgoing amounts, excluding any entry not yet
// appended for the transaction currently being scored.
func (p *Profile) SentToday() decimal.Decimal {
	total := decimal.Zero
	for _, e := range p.TransactionsToday {
		if e.Direction == sms.DirectionSent {
			total = total.Add(e.Amount)
		}
	}
	return total
}

// CountSince reports how many window entries fall after the cutoff.
func (p *Profile) CountSince(cutoff time.Time) int {
	n := 0
	for _, e := range p.TransactionsToday {
		if e.At.After(cutoff) {
			n++
		}
	}
	return n
}

// IsBlocked reports whether the counterparty fragment is on the blocklist.
func (p *Profile) IsBlocked(counterparty string) bool {
	return counterparty != "" && contains(p.Blocked, counterparty)
}

// IsTrusted reports whether the counterparty fragment is trusted.
func (p *Profile) IsTrusted(counterparty string) bool {
	return counterparty != "" && contains(p.Trusted, counterparty)
}

// Block adds a counterparty fragment to the blocklist. Returns false if it
// was already present.
func (p *Profile) Block(counterparty string) bool {
	if counterparty == "" || contains(p.Blocked, counterparty) {
		return false
	}
	p.Blocked = append(p.Blocked, counterparty)
	return true
}

// Trust adds a counterparty fragment to the trusted set.
func (p *Profile) Trust(counterparty string) bool {
	if counterparty == "" || contains(p.Trusted, counterparty) {
		return false
	}
	p.Trusted = append(p.Trusted, counterparty)
	return true
}

// Observe folds a scored transaction into the profile: the window entry is
// appended unconditionally, and outgoing amounts move the exponential
// average with the given smoothing factor. alpha = 0.5 reproduces the
// plain "midpoint" average the first deployment used.
func (p *Profile) Observe(tx *sms.Transaction, alpha float64) {
	p.TransactionsToday = append(p.TransactionsToday, DayEntry{
		Amount:    tx.Amount,
		Direction: tx.Direction,
		At:        tx.ObservedAt,
	})
	p.TotalTransactions++
	p.LastActive = tx.ObservedAt

	if tx.Direction != sms.DirectionSent {
		return
	}
	a := decimal.NewFromFloat(alpha)
	p.AverageAmount = tx.Amount.Mul(a).Add(p.AverageAmount.Mul(decimal.NewFromInt(1).Sub(a)))
}

// Clone returns a deep copy, used by the in-memory store to keep callers
// from sharing slices.
func (p *Profile) Clone() *Profile {
	cp := *p
	cp.TransactionsToday = append([]DayEntry(nil), p.TransactionsToday...)
	cp.Blocked = append([]string(nil), p.Blocked...)
	cp.Trusted = append([]string(nil), p.Trusted...)
	return &cp
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
