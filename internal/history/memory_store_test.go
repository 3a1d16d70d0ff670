package history

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kbaffoe/momoguard/internal/scoring"
	"github.com/kbaffoe/momoguard/internal/sms"
)

func entry(userID, hash string, amount int64, at time.Time) *Entry {
	return &Entry{
		ID:          "txn_" + hash,
		UserID:      userID,
		Provider:    sms.ProviderMTN,
		Direction:   sms.DirectionSent,
		Amount:      decimal.NewFromInt(amount),
		RawTextHash: hash,
		ObservedAt:  at,
		Score:       10,
		Level:       scoring.LevelLow,
	}
}

func TestAddAndSeen(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	now := time.Now()

	seen, err := s.Seen(ctx, "u1", "h1")
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, s.Add(ctx, entry("u1", "h1", 50, now)))

	seen, err = s.Seen(ctx, "u1", "h1")
	require.NoError(t, err)
	assert.True(t, seen)

	// Same hash for another user is a different notification.
	seen, err = s.Seen(ctx, "u2", "h1")
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestAddDuplicateIsNoOp(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, s.Add(ctx, entry("u1", "h1", 50, now)))
	require.NoError(t, s.Add(ctx, entry("u1", "h1", 50, now)))

	recent, err := s.Recent(ctx, "u1", 10)
	require.NoError(t, err)
	assert.Len(t, recent, 1)
}

func TestRecentNewestFirst(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	base := time.Now()

	for i := 0; i < 5; i++ {
		require.NoError(t, s.Add(ctx, entry("u1", string(rune('a'+i)), int64(i+1), base.Add(time.Duration(i)*time.Minute))))
	}

	recent, err := s.Recent(ctx, "u1", 3)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	assert.True(t, recent[0].Amount.Equal(decimal.NewFromInt(5)))
	assert.True(t, recent[2].Amount.Equal(decimal.NewFromInt(3)))
}

func TestSummarySince(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	now := time.Now()

	old := entry("u1", "old", 500, now.Add(-48*time.Hour))
	require.NoError(t, s.Add(ctx, old))

	e1 := entry("u1", "h1", 100, now)
	e1.Flagged = true
	require.NoError(t, s.Add(ctx, e1))

	e2 := entry("u1", "h2", 30, now)
	e2.Direction = sms.DirectionReceived
	require.NoError(t, s.Add(ctx, e2))

	sum, err := s.SummarySince(ctx, "u1", now.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Count)
	assert.True(t, sum.Sent.Equal(decimal.NewFromInt(100)))
	assert.True(t, sum.Received.Equal(decimal.NewFromInt(30)))
	assert.Equal(t, 1, sum.Flagged)
}

func TestTotals(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	now := time.Now()

	e1 := entry("u1", "h1", 1500, now)
	e1.Flagged = true
	require.NoError(t, s.Add(ctx, e1))
	require.NoError(t, s.SetResolution(ctx, "u1", "h1", "fraud"))

	e2 := entry("u2", "h2", 200, now)
	require.NoError(t, s.Add(ctx, e2))

	totals, err := s.Totals(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, totals.Transactions)
	assert.Equal(t, 1, totals.Flagged)
	assert.Equal(t, 1, totals.FraudConfirmed)
	assert.True(t, totals.AmountFlagged.Equal(decimal.NewFromInt(1500)))
	assert.True(t, totals.AmountProtected.Equal(decimal.NewFromInt(1500)))
}
