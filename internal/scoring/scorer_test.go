package scoring

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kbaffoe/momoguard/internal/profile"
	"github.com/kbaffoe/momoguard/internal/sms"
)

func at(hour int) time.Time {
	return time.Date(2025, 6, 15, hour, 30, 0, 0, time.UTC)
}

func sentTx(amount string, observedAt time.Time) *sms.Transaction {
	return &sms.Transaction{
		Provider:     sms.ProviderMTN,
		Direction:    sms.DirectionSent,
		Amount:       decimal.RequireFromString(amount),
		Counterparty: "4567",
		ObservedAt:   observedAt,
		RawTextHash:  "hash",
	}
}

func newProfile() *profile.Profile {
	return profile.New("user1", "telegram", "12345", at(12))
}

func reasonFactors(a *RiskAssessment) []string {
	out := make([]string, len(a.Reasons))
	for i, r := range a.Reasons {
		out[i] = r.Factor
	}
	return out
}

func TestScoreReceivedIsZero(t *testing.T) {
	s := NewScorer(time.UTC)
	tx := sentTx("5000.00", at(3))
	tx.Direction = sms.DirectionReceived

	a := s.Score(tx, newProfile())

	assert.Equal(t, 0, a.Score)
	assert.Equal(t, LevelLow, a.Level)
	assert.Empty(t, a.Reasons)
}

func TestScoreMidDaySmallAmount(t *testing.T) {
	s := NewScorer(time.UTC)

	a := s.Score(sentTx("20.00", at(14)), newProfile())

	assert.Equal(t, 0, a.Score)
	assert.Equal(t, LevelLow, a.Level)
}

func TestScoreLateNightWindow(t *testing.T) {
	s := NewScorer(time.UTC)

	for _, hour := range []int{2, 3, 4} {
		a := s.Score(sentTx("20.00", at(hour)), newProfile())
		assert.Equal(t, 40, a.Score, "hour %d", hour)
		assert.Contains(t, reasonFactors(a), FactorLateNight)
	}

	// 05:00 falls outside the window
	a := s.Score(sentTx("20.00", at(5)), newProfile())
	assert.Equal(t, 0, a.Score)
}

func TestScoreLateEveningWindow(t *testing.T) {
	s := NewScorer(time.UTC)

	for _, hour := range []int{22, 23, 0} {
		a := s.Score(sentTx("20.00", at(hour)), newProfile())
		assert.Equal(t, 20, a.Score, "hour %d", hour)
		assert.Contains(t, reasonFactors(a), FactorLateEvening)
	}

	// 01:00 scores nothing
	a := s.Score(sentTx("20.00", at(1)), newProfile())
	assert.Equal(t, 0, a.Score)
}

func TestScoreWindowsNeverStack(t *testing.T) {
	s := NewScorer(time.UTC)

	a := s.Score(sentTx("20.00", at(2)), newProfile())

	factors := reasonFactors(a)
	assert.Contains(t, factors, FactorLateNight)
	assert.NotContains(t, factors, FactorLateEvening)
}

func TestScoreTimezoneShiftsWindow(t *testing.T) {
	accra := time.FixedZone("GMT", 0)
	lagos := time.FixedZone("WAT", 3600)

	tx := sentTx("20.00", time.Date(2025, 6, 15, 1, 30, 0, 0, time.UTC))

	a := NewScorer(accra).Score(tx, newProfile())
	assert.Equal(t, 0, a.Score)

	// 01:30 UTC is 02:30 in WAT, inside the late-night window
	a = NewScorer(lagos).Score(tx, newProfile())
	assert.Equal(t, 40, a.Score)
}

func TestScoreLargeAmount(t *testing.T) {
	s := NewScorer(time.UTC)
	p := newProfile()
	p.AverageAmount = decimal.NewFromInt(1000) // keep the average factor quiet

	a := s.Score(sentTx("1000.01", at(14)), p)
	assert.Contains(t, reasonFactors(a), FactorLargeAmount)

	// Exactly 1000 is not "over 1000", but it is a round amount
	a = s.Score(sentTx("1000.00", at(14)), p)
	assert.NotContains(t, reasonFactors(a), FactorLargeAmount)
	assert.Contains(t, reasonFactors(a), FactorRoundAmount)
}

func TestScoreMultipleOfAverage(t *testing.T) {
	s := NewScorer(time.UTC)
	p := newProfile()
	p.AverageAmount = decimal.NewFromInt(50)

	a := s.Score(sentTx("150.00", at(14)), p)
	assert.Equal(t, 25, a.Score)
	assert.Contains(t, reasonFactors(a), FactorMultipleAvg)

	a = s.Score(sentTx("149.99", at(14)), p)
	assert.Equal(t, 0, a.Score)
}

func TestScoreDailyLimitCountsThisTransaction(t *testing.T) {
	s := NewScorer(time.UTC)
	p := newProfile()
	p.DailyLimit = decimal.NewFromInt(2000)
	p.AverageAmount = decimal.NewFromInt(1000)
	p.TransactionsToday = []profile.DayEntry{
		{Amount: decimal.NewFromInt(1950), Direction: sms.DirectionSent, At: at(10)},
	}

	// 1950 + 60 > 2000
	a := s.Score(sentTx("60.00", at(14)), p)
	assert.Contains(t, reasonFactors(a), FactorDailyLimit)

	// 1950 + 50 == 2000 stays within the limit
	a = s.Score(sentTx("50.00", at(14)), p)
	assert.NotContains(t, reasonFactors(a), FactorDailyLimit)
}

func TestScoreVelocity(t *testing.T) {
	s := NewScorer(time.UTC)
	p := newProfile()
	p.AverageAmount = decimal.NewFromInt(1000)
	p.TransactionsToday = []profile.DayEntry{
		{Amount: decimal.NewFromInt(10), Direction: sms.DirectionSent, At: at(14).Add(-30 * time.Minute)},
		{Amount: decimal.NewFromInt(10), Direction: sms.DirectionSent, At: at(14).Add(-10 * time.Minute)},
	}

	// Two prior in the hour plus this one makes three
	a := s.Score(sentTx("10.00", at(14)), p)
	assert.Contains(t, reasonFactors(a), FactorVelocity)

	// With one of them outside the window the count drops to two
	p.TransactionsToday[0].At = at(14).Add(-2 * time.Hour)
	a = s.Score(sentTx("10.00", at(14)), p)
	assert.NotContains(t, reasonFactors(a), FactorVelocity)
}

func TestScoreBlockedCounterparty(t *testing.T) {
	s := NewScorer(time.UTC)
	p := newProfile()
	p.Blocked = []string{"4567"}

	a := s.Score(sentTx("20.00", at(14)), p)
	assert.Equal(t, 50, a.Score)
	assert.Contains(t, reasonFactors(a), FactorBlocked)
}

func TestScoreTrustDoesNotOverrideBlock(t *testing.T) {
	s := NewScorer(time.UTC)
	p := newProfile()
	p.Blocked = []string{"4567"}
	p.Trusted = []string{"4567"}

	a := s.Score(sentTx("2000.00", at(14)), p)

	factors := reasonFactors(a)
	assert.Contains(t, factors, FactorBlocked)
	assert.NotContains(t, factors, FactorLargeAmount)
	assert.NotContains(t, factors, FactorRoundAmount)
}

func TestScoreTrustedSuppressesAmountFactors(t *testing.T) {
	s := NewScorer(time.UTC)
	p := newProfile()
	p.Trusted = []string{"4567"}

	a := s.Score(sentTx("2000.00", at(14)), p)

	assert.Equal(t, 0, a.Score)
	assert.Empty(t, a.Reasons)
}

func TestScoreRoundAmounts(t *testing.T) {
	s := NewScorer(time.UTC)
	p := newProfile()
	p.AverageAmount = decimal.NewFromInt(10000)

	for _, amt := range []string{"100.00", "200.00", "500.00", "1000.00", "2000.00", "5000.00", "10000.00"} {
		a := s.Score(sentTx(amt, at(14)), p)
		assert.Contains(t, reasonFactors(a), FactorRoundAmount, "amount %s", amt)
	}

	for _, amt := range []string{"100.50", "300.00", "150.00", "99.00"} {
		a := s.Score(sentTx(amt, at(14)), p)
		assert.NotContains(t, reasonFactors(a), FactorRoundAmount, "amount %s", amt)
	}
}

func TestScoreLowBalance(t *testing.T) {
	s := NewScorer(time.UTC)
	p := newProfile()

	tx := sentTx("20.00", at(14))
	bal := decimal.RequireFromString("49.99")
	tx.BalanceAfter = &bal
	a := s.Score(tx, p)
	assert.Contains(t, reasonFactors(a), FactorLowBalance)

	// Exactly 50 is not below the floor
	bal50 := decimal.NewFromInt(50)
	tx.BalanceAfter = &bal50
	a = s.Score(tx, p)
	assert.NotContains(t, reasonFactors(a), FactorLowBalance)

	// Unknown balance contributes nothing
	tx.BalanceAfter = nil
	a = s.Score(tx, p)
	assert.NotContains(t, reasonFactors(a), FactorLowBalance)
}

func TestScoreClampedAt100(t *testing.T) {
	s := NewScorer(time.UTC)
	p := newProfile()
	p.Blocked = []string{"4567"}
	p.DailyLimit = decimal.NewFromInt(100)
	p.TransactionsToday = []profile.DayEntry{
		{Amount: decimal.NewFromInt(10), Direction: sms.DirectionSent, At: at(3).Add(-30 * time.Minute)},
		{Amount: decimal.NewFromInt(10), Direction: sms.DirectionSent, At: at(3).Add(-10 * time.Minute)},
	}

	tx := sentTx("2000.00", at(3))
	bal := decimal.NewFromInt(5)
	tx.BalanceAfter = &bal

	a := s.Score(tx, p)

	assert.Equal(t, 100, a.Score)
	assert.Equal(t, LevelCritical, a.Level)

	// The reasons still itemize every triggered factor
	total := 0
	for _, r := range a.Reasons {
		total += r.Points
	}
	assert.Greater(t, total, 100)
}

func TestScoreReasonsFollowEvaluationOrder(t *testing.T) {
	s := NewScorer(time.UTC)
	p := newProfile()
	p.Blocked = []string{"4567"}

	a := s.Score(sentTx("2000.00", at(3)), p)

	require.True(t, len(a.Reasons) >= 3)
	assert.Equal(t, FactorLateNight, a.Reasons[0].Factor)
	assert.Equal(t, FactorBlocked, a.Reasons[len(a.Reasons)-2].Factor)
	assert.Equal(t, FactorRoundAmount, a.Reasons[len(a.Reasons)-1].Factor)
}

func TestLevelBuckets(t *testing.T) {
	cases := map[int]Level{
		0: LevelLow, 39: LevelLow,
		40: LevelMedium, 59: LevelMedium,
		60: LevelHigh, 79: LevelHigh,
		80: LevelCritical, 100: LevelCritical,
	}
	for score, want := range cases {
		assert.Equal(t, want, LevelFor(score), "score %d", score)
	}

	assert.False(t, LevelMedium.AtLeastHigh())
	assert.True(t, LevelHigh.AtLeastHigh())
	assert.True(t, LevelCritical.AtLeastHigh())
}

func TestScoreIsDeterministic(t *testing.T) {
	s := NewScorer(time.UTC)
	p := newProfile()

	a := s.Score(sentTx("1500.00", at(3)), p)
	b := s.Score(sentTx("1500.00", at(3)), p)

	assert.Equal(t, a.Score, b.Score)
	assert.Equal(t, a.Reasons, b.Reasons)
}
