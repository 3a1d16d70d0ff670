// Package scoring turns a parsed transaction plus a user profile into a
// bounded risk score with an ordered list of triggered reasons.
//
// Scoring is deterministic and free of I/O. Factors are evaluated in a fixed
// order and are independent: every applicable factor contributes, so one
// transaction can carry several reasons at once. The raw sum is clamped to
// [0, 100] and bucketed into four levels.
package scoring

import (
	"context"
	"time"
)

// Level is the four-tier bucket derived from the numeric score.
type Level string

const (
	LevelLow      Level = "LOW"      // 0–39
	LevelMedium   Level = "MEDIUM"   // 40–59
	LevelHigh     Level = "HIGH"     // 60–79
	LevelCritical Level = "CRITICAL" // 80–100
)

// LevelFor maps a clamped score to its bucket.
func LevelFor(score int) Level {
	switch {
	case score >= 80:
		return LevelCritical
	case score >= 60:
		return LevelHigh
	case score >= 40:
		return LevelMedium
	default:
		return LevelLow
	}
}

// AtLeastHigh reports whether a level warrants a confirmation prompt.
func (l Level) AtLeastHigh() bool {
	return l == LevelHigh || l == LevelCritical
}

// Factor names, in evaluation order.
const (
	FactorLateNight   = "late_night"
	FactorLateEvening = "late_evening"
	FactorLargeAmount = "large_amount"
	FactorMultipleAvg = "multiple_of_average"
	FactorDailyLimit  = "daily_limit_exceeded"
	FactorVelocity    = "velocity"
	FactorBlocked     = "blocked_counterparty"
	FactorRoundAmount = "round_amount"
	FactorLowBalance  = "low_balance"
)

// Reason records one triggered factor. Insertion order in the assessment
// matches evaluation order.
type Reason struct {
	Factor string `json:"factor"`
	Points int    `json:"points"`
	Detail string `json:"detail,omitempty"`
}

// RiskAssessment is the scorer's verdict on a single transaction. It lives
// only as long as any pending confirmation that references it; the audit
// store keeps a copy for dashboard statistics.
type RiskAssessment struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId"`
	Score       int       `json:"score"`
	Level       Level     `json:"level"`
	Reasons     []Reason  `json:"reasons"`
	EvaluatedAt time.Time `json:"evaluatedAt"`
}

// Store persists assessments for the dashboard audit trail.
type Store interface {
	Record(ctx context.Context, a *RiskAssessment) error
	ListByUser(ctx context.Context, userID string, limit int) ([]*RiskAssessment, error)
}
