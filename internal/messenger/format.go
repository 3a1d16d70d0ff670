package messenger

import (
	"fmt"
	"strings"
	"time"

	"github.com/kbaffoe/momoguard/internal/confirm"
	"github.com/kbaffoe/momoguard/internal/scoring"
	"github.com/kbaffoe/momoguard/internal/sms"
)

var levelEmoji = map[scoring.Level]string{
	scoring.LevelCritical: "🚨",
	scoring.LevelHigh:     "⚠️",
	scoring.LevelMedium:   "🔔",
	scoring.LevelLow:      "ℹ️",
}

var providerNames = map[sms.Provider]string{
	sms.ProviderMTN:        "MTN MoMo",
	sms.ProviderVodafone:   "Vodafone Cash",
	sms.ProviderAirtelTigo: "AirtelTigo Money",
}

// FormatAlert renders the risk alert sent after every scored transaction.
// HIGH and CRITICAL alerts carry the YES/NO/BLOCK reply instructions; lower
// levels get a pointer at the stats commands instead.
func FormatAlert(tx *sms.Transaction, a *scoring.RiskAssessment, loc *time.Location) string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s *%s RISK ALERT*\n\n", levelEmoji[a.Level], a.Level)
	fmt.Fprintf(&b, "💰 Amount: GHS %s\n", tx.Amount.StringFixed(2))
	if tx.Counterparty != "" {
		fmt.Fprintf(&b, "📱 To: %s\n", tx.Counterparty)
	}
	fmt.Fprintf(&b, "🕐 Time: %s\n", tx.ObservedAt.In(loc).Format("3:04PM"))
	if tx.BalanceAfter != nil {
		fmt.Fprintf(&b, "💳 Balance: GHS %s\n", tx.BalanceAfter.StringFixed(2))
	}
	if name, ok := providerNames[tx.Provider]; ok {
		fmt.Fprintf(&b, "🏦 Provider: %s\n", name)
	}

	fmt.Fprintf(&b, "\n*Risk Score: %d/100*\n", a.Score)

	if len(a.Reasons) > 0 {
		b.WriteString("\n*Detected Issues:*\n")
		for i, r := range a.Reasons {
			if i == 5 {
				break
			}
			fmt.Fprintf(&b, "• %s\n", reasonText(r))
		}
	} else {
		b.WriteString("\n✅ Transaction looks normal\n")
	}

	b.WriteString("\n*Commands:*\n")
	if a.Level.AtLeastHigh() {
		b.WriteString("• Reply YES if legitimate\n")
		b.WriteString("• Reply NO to report fraud\n")
		b.WriteString("• Reply BLOCK to block merchant\n")
	} else {
		b.WriteString("• /stats - View statistics\n")
		b.WriteString("• /help - Show all commands\n")
	}

	return b.String()
}

func reasonText(r scoring.Reason) string {
	switch r.Factor {
	case scoring.FactorLateNight:
		return "Very late night transaction (" + r.Detail + ")"
	case scoring.FactorLateEvening:
		return "Late night transaction (" + r.Detail + ")"
	case scoring.FactorLargeAmount:
		return "Large amount: " + r.Detail
	case scoring.FactorMultipleAvg:
		return "Much higher than your usual spending (" + r.Detail + ")"
	case scoring.FactorDailyLimit:
		return "Daily budget exceeded (" + r.Detail + ")"
	case scoring.FactorVelocity:
		return "Rapid transactions: " + r.Detail
	case scoring.FactorBlocked:
		return "Payment to a blocked merchant (" + r.Detail + ")"
	case scoring.FactorRoundAmount:
		return "Suspicious round amount: " + r.Detail
	case scoring.FactorLowBalance:
		return "Low balance remaining: " + r.Detail
	default:
		return r.Factor
	}
}

// FormatResolution renders the acknowledgement after a confirmation reply.
func FormatResolution(res confirm.Resolution, tx *sms.Transaction) string {
	switch res {
	case confirm.ResolutionLegit:
		return "✅ Marked as legitimate.\n\nWe'll learn from this to improve your security."
	case confirm.ResolutionFraud:
		return "🚨 *Fraud Report Initiated*\n\n" +
			"1. Contact your MoMo provider immediately\n" +
			"2. Report the transaction reference\n" +
			"3. Request account freeze if needed\n\n" +
			"*Hotlines:*\n" +
			"MTN: 100\n" +
			"Vodafone: 200\n" +
			"AirtelTigo: 111"
	case confirm.ResolutionBlock:
		if tx != nil && tx.Counterparty != "" {
			return "🚫 Blocked merchant ending in " + tx.Counterparty + ".\n\nFuture payments to this number will be flagged."
		}
		return "🚫 Merchant blocked.\n\nFuture payments will be flagged."
	case confirm.ResolutionExpired:
		return "⏰ Your previous alert expired without a reply."
	default:
		return ""
	}
}

// FormatParseFailure is the polite rejection for text that is neither a
// command, a confirmation reply, nor a recognizable MoMo notification.
func FormatParseFailure() string {
	return "❓ Not a valid MoMo SMS. Type /help for commands."
}
