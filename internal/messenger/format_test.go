package messenger

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/kbaffoe/momoguard/internal/confirm"
	"github.com/kbaffoe/momoguard/internal/scoring"
	"github.com/kbaffoe/momoguard/internal/sms"
)

func sampleTx() *sms.Transaction {
	bal := decimal.NewFromFloat(12.50)
	return &sms.Transaction{
		Provider:     sms.ProviderMTN,
		Direction:    sms.DirectionSent,
		Amount:       decimal.NewFromInt(1500),
		Counterparty: "4567",
		BalanceAfter: &bal,
		ObservedAt:   time.Date(2026, 3, 14, 3, 12, 0, 0, time.UTC),
	}
}

func TestFormatAlertHighCarriesReplyInstructions(t *testing.T) {
	a := &scoring.RiskAssessment{
		Score: 85,
		Level: scoring.LevelCritical,
		Reasons: []scoring.Reason{
			{Factor: scoring.FactorLateNight, Points: 40, Detail: "03:00 local"},
			{Factor: scoring.FactorLargeAmount, Points: 30, Detail: "GHS 1500.00"},
		},
	}

	msg := FormatAlert(sampleTx(), a, time.UTC)

	assert.Contains(t, msg, "CRITICAL RISK ALERT")
	assert.Contains(t, msg, "GHS 1500.00")
	assert.Contains(t, msg, "To: 4567")
	assert.Contains(t, msg, "Risk Score: 85/100")
	assert.Contains(t, msg, "Reply YES if legitimate")
	assert.Contains(t, msg, "Reply NO to report fraud")
	assert.Contains(t, msg, "Reply BLOCK to block merchant")
}

func TestFormatAlertLowPointsAtCommands(t *testing.T) {
	a := &scoring.RiskAssessment{Score: 0, Level: scoring.LevelLow}

	msg := FormatAlert(sampleTx(), a, time.UTC)

	assert.Contains(t, msg, "LOW RISK ALERT")
	assert.Contains(t, msg, "Transaction looks normal")
	assert.Contains(t, msg, "/stats")
	assert.NotContains(t, msg, "Reply YES")
}

func TestFormatAlertCapsReasonsAtFive(t *testing.T) {
	a := &scoring.RiskAssessment{Score: 100, Level: scoring.LevelCritical}
	for i := 0; i < 7; i++ {
		a.Reasons = append(a.Reasons, scoring.Reason{Factor: scoring.FactorVelocity, Points: 20, Detail: "n in the last hour"})
	}

	msg := FormatAlert(sampleTx(), a, time.UTC)
	assert.Equal(t, 5, strings.Count(msg, "Rapid transactions"))
}

func TestFormatResolution(t *testing.T) {
	tx := sampleTx()

	assert.Contains(t, FormatResolution(confirm.ResolutionLegit, tx), "legitimate")
	assert.Contains(t, FormatResolution(confirm.ResolutionFraud, tx), "Fraud Report Initiated")
	assert.Contains(t, FormatResolution(confirm.ResolutionBlock, tx), "ending in 4567")
	assert.Contains(t, FormatResolution(confirm.ResolutionExpired, tx), "expired")
}
