package scoring

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kbaffoe/momoguard/internal/idgen"
	"github.com/kbaffoe/momoguard/internal/profile"
	"github.com/kbaffoe/momoguard/internal/sms"
)

// Factor weights. The table is fixed; tuning happens by redeploying, not by
// configuration, so that two assessments of the same inputs always agree.
const (
	pointsLateNight   = 40
	pointsLateEvening = 20
	pointsLargeAmount = 30
	pointsMultipleAvg = 25
	pointsDailyLimit  = 25
	pointsVelocity    = 20
	pointsBlocked     = 50
	pointsRoundAmount = 15
	pointsLowBalance  = 20

	velocityWindow    = time.Hour
	velocityThreshold = 3
)

var (
	largeAmountFloor = decimal.NewFromInt(1000)
	lowBalanceCeil   = decimal.NewFromInt(50)
	averageMultiple  = decimal.NewFromInt(3)

	// Round figures that recur in social-engineering asks.
	roundAmounts = map[string]struct{}{
		"100": {}, "200": {}, "500": {}, "1000": {},
		"2000": {}, "5000": {}, "10000": {},
	}
)

// Scorer evaluates transactions against a profile. The timezone fixes which
// local hour the time-of-day windows see.
type Scorer struct {
	loc *time.Location
}

// NewScorer creates a scorer that interprets observation times in loc.
func NewScorer(loc *time.Location) *Scorer {
	if loc == nil {
		loc = time.UTC
	}
	return &Scorer{loc: loc}
}

// Score evaluates every factor in fixed order and returns the clamped
// assessment. Incoming transfers carry no fraud exposure for the recipient
// and score zero.
func (s *Scorer) Score(tx *sms.Transaction, p *profile.Profile) *RiskAssessment {
	a := &RiskAssessment{
		ID:          idgen.WithPrefix("risk_"),
		UserID:      p.UserID,
		EvaluatedAt: tx.ObservedAt,
	}

	if tx.Direction == sms.DirectionReceived {
		a.Level = LevelFor(0)
		return a
	}

	trusted := p.IsTrusted(tx.Counterparty)
	raw := 0
	add := func(factor string, points int, detail string) {
		raw += points
		a.Reasons = append(a.Reasons, Reason{Factor: factor, Points: points, Detail: detail})
	}

	// 1 / 1b: time-of-day windows are non-overlapping; the stronger window
	// is checked first.
	hour := tx.ObservedAt.In(s.loc).Hour()
	switch {
	case hour >= 2 && hour < 5:
		add(FactorLateNight, pointsLateNight, fmt.Sprintf("%02d:00 local", hour))
	case hour >= 22 || hour == 0:
		add(FactorLateEvening, pointsLateEvening, fmt.Sprintf("%02d:00 local", hour))
	}

	// 2: large amount (suppressed for trusted counterparties)
	if !trusted && tx.Amount.GreaterThan(largeAmountFloor) {
		add(FactorLargeAmount, pointsLargeAmount, "GHS "+tx.Amount.StringFixed(2))
	}

	// 3: multiple of the learned average (suppressed for trusted)
	if !trusted && p.AverageAmount.IsPositive() &&
		tx.Amount.GreaterThanOrEqual(p.AverageAmount.Mul(averageMultiple)) {
		add(FactorMultipleAvg, pointsMultipleAvg,
			"3x average of GHS "+p.AverageAmount.StringFixed(2))
	}

	// 4: daily limit, counting this transaction
	if p.SentToday().Add(tx.Amount).GreaterThan(p.DailyLimit) {
		add(FactorDailyLimit, pointsDailyLimit,
			"limit GHS "+p.DailyLimit.StringFixed(2))
	}

	// 5: velocity over the trailing hour, counting this transaction
	if n := p.CountSince(tx.ObservedAt.Add(-velocityWindow)) + 1; n >= velocityThreshold {
		add(FactorVelocity, pointsVelocity, fmt.Sprintf("%d in the last hour", n))
	}

	// 6: blocklist; trust never overrides an explicit block
	if p.IsBlocked(tx.Counterparty) {
		add(FactorBlocked, pointsBlocked, "counterparty "+tx.Counterparty)
	}

	// 7: round amount (suppressed for trusted)
	if !trusted && isRoundAmount(tx.Amount) {
		add(FactorRoundAmount, pointsRoundAmount, "GHS "+tx.Amount.StringFixed(2))
	}

	// 8: draining the account
	if tx.BalanceAfter != nil && tx.BalanceAfter.LessThan(lowBalanceCeil) {
		add(FactorLowBalance, pointsLowBalance,
			"GHS "+tx.BalanceAfter.StringFixed(2)+" remaining")
	}

	if raw > 100 {
		raw = 100
	}
	a.Score = raw
	a.Level = LevelFor(raw)
	return a
}

func isRoundAmount(amount decimal.Decimal) bool {
	if !amount.Equal(amount.Truncate(0)) {
		return false
	}
	_, ok := roundAmounts[amount.Truncate(0).String()]
	return ok
}
