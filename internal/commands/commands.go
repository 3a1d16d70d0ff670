// Package commands interprets the bot's slash commands over the profile and
// history stores. Commands are free: they never touch the scoring path and
// reply with plain text the boundary relays as-is.
package commands

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kbaffoe/momoguard/internal/engine"
	"github.com/kbaffoe/momoguard/internal/history"
	"github.com/kbaffoe/momoguard/internal/profile"
	"github.com/kbaffoe/momoguard/internal/retry"
)

// Budget bounds in GHS.
var (
	minBudget = decimal.NewFromInt(1)
	maxBudget = decimal.NewFromInt(100_000)
)

var digitsRe = regexp.MustCompile(`^[0-9]{1,15}$`)

// Interpreter executes bot commands for one user at a time.
type Interpreter struct {
	profiles profile.Store
	history  history.Store
	loc      *time.Location
	clock    engine.Clock
}

// New creates a command interpreter.
func New(profiles profile.Store, hist history.Store, loc *time.Location) *Interpreter {
	if loc == nil {
		loc = time.UTC
	}
	return &Interpreter{
		profiles: profiles,
		history:  hist,
		loc:      loc,
		clock:    engine.SystemClock(),
	}
}

// WithClock replaces the wall clock, for tests.
func (i *Interpreter) WithClock(c engine.Clock) *Interpreter {
	i.clock = c
	return i
}

// IsCommand reports whether the text should be routed here instead of the
// risk engine. Bare command words without the slash are accepted too, the
// way first-time users tend to type them.
func IsCommand(text string) bool {
	fields := strings.Fields(strings.ToUpper(text))
	if len(fields) == 0 {
		return false
	}
	if strings.HasPrefix(fields[0], "/") {
		return true
	}
	switch fields[0] {
	case "START", "HELP", "TODAY", "STATS":
		return true
	}
	return false
}

// Run executes one command and returns the reply text. Unknown commands get
// a pointer at /help rather than an error.
func (i *Interpreter) Run(ctx context.Context, platform, channelRef, text string) (string, error) {
	userID := engine.UserID(platform, channelRef)

	fields := strings.Fields(strings.TrimSpace(text))
	if len(fields) == 0 {
		return i.unknown(), nil
	}
	cmd := strings.ToUpper(strings.TrimPrefix(fields[0], "/"))
	arg := ""
	if len(fields) > 1 {
		arg = fields[1]
	}

	switch cmd {
	case "START":
		return i.start(ctx, userID, platform, channelRef)
	case "HELP":
		return i.help(), nil
	case "TODAY":
		return i.today(ctx, userID)
	case "STATS":
		return i.stats(ctx, userID)
	case "BUDGET":
		return i.budget(ctx, userID, arg)
	case "BLOCK":
		return i.block(ctx, userID, arg)
	case "TRUSTED":
		return i.trusted(ctx, userID, arg)
	default:
		return i.unknown(), nil
	}
}

func (i *Interpreter) start(ctx context.Context, userID, platform, channelRef string) (string, error) {
	// First contact creates the profile so /budget works before the first
	// forwarded SMS.
	p := profile.New(userID, platform, channelRef, i.clock.Now())
	if err := i.profiles.Create(ctx, p); err != nil && !errors.Is(err, profile.ErrExists) {
		return "", err
	}

	return `👋 *Welcome to MomoGuard!*

I protect your Mobile Money from fraud.

*How it works:*
1️⃣ Forward your MoMo SMS to me
2️⃣ I analyze it for fraud in seconds
3️⃣ You get instant risk alerts

*Supported Providers:*
🟢 MTN MoMo
🔴 Vodafone Cash
🔵 AirtelTigo Money

*Commands:*
/today - Today's spending
/stats - Your statistics
/budget 500 - Set daily limit (GHS)
/block 1234 - Block merchant
/help - All commands

Forward a MoMo SMS to start! 🚀`, nil
}

func (i *Interpreter) help() string {
	return `📱 *MomoGuard - Commands*

*Basic:*
/start - Welcome message
/help - This help
/today - Today's spending
/stats - Your statistics

*Budget Management:*
/budget 500 - Set daily limit to GHS 500

*Security:*
/block 1234 - Block merchant (last 4 digits)
/trusted 5678 - Mark merchant as trusted

*Currency:* Ghana Cedis (GHS)

Forward any MoMo SMS for instant fraud analysis!`
}

func (i *Interpreter) today(ctx context.Context, userID string) (string, error) {
	p, err := i.profiles.Load(ctx, userID)
	if errors.Is(err, profile.ErrNotFound) {
		return "No transaction history yet.", nil
	}
	if err != nil {
		return "", err
	}

	now := i.clock.Now().In(i.loc)
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, i.loc)

	sum, err := i.history.SummarySince(ctx, userID, dayStart)
	if err != nil {
		return "", err
	}

	remaining := p.DailyLimit.Sub(sum.Sent)
	if remaining.IsNegative() {
		remaining = decimal.Zero
	}

	return fmt.Sprintf(`📊 *Today's Activity*

💸 Spent: GHS %s
💰 Received: GHS %s
📈 Net: GHS %s

Transactions: %d
Daily Limit: GHS %s
Remaining: GHS %s

Keep tracking! 💪`,
		sum.Sent.StringFixed(2),
		sum.Received.StringFixed(2),
		sum.Received.Sub(sum.Sent).StringFixed(2),
		sum.Count,
		p.DailyLimit.StringFixed(2),
		remaining.StringFixed(2),
	), nil
}

func (i *Interpreter) stats(ctx context.Context, userID string) (string, error) {
	p, err := i.profiles.Load(ctx, userID)
	if errors.Is(err, profile.ErrNotFound) {
		return "No statistics yet.", nil
	}
	if err != nil {
		return "", err
	}

	sum, err := i.history.SummarySince(ctx, userID, time.Time{})
	if err != nil {
		return "", err
	}

	return fmt.Sprintf(`📈 *Your Statistics*

Total Transactions: %d
Total Spent: GHS %s
Total Received: GHS %s
Average per transaction: GHS %s

Daily Limit: GHS %s
Fraud Reports: %d
Blocked Merchants: %d
Trusted Merchants: %d

Member since: %s

Keep it up! 💰`,
		p.TotalTransactions,
		sum.Sent.StringFixed(2),
		sum.Received.StringFixed(2),
		p.AverageAmount.StringFixed(2),
		p.DailyLimit.StringFixed(2),
		p.FraudReports,
		len(p.Blocked),
		len(p.Trusted),
		p.CreatedAt.In(i.loc).Format("02 Jan 2006"),
	), nil
}

func (i *Interpreter) budget(ctx context.Context, userID, arg string) (string, error) {
	amount, err := decimal.NewFromString(arg)
	if err != nil {
		return "❌ Use: /budget 500", nil
	}
	if amount.LessThan(minBudget) || amount.GreaterThan(maxBudget) {
		return "❌ Budget must be between GHS 1 and GHS 100,000", nil
	}

	if err := i.updateProfile(ctx, userID, func(p *profile.Profile) {
		p.DailyLimit = amount
	}); err != nil {
		if errors.Is(err, profile.ErrNotFound) {
			return "Please send /start first to set up your profile.", nil
		}
		return "", err
	}
	return "✅ Daily budget set to GHS " + amount.StringFixed(2), nil
}

func (i *Interpreter) block(ctx context.Context, userID, arg string) (string, error) {
	digits := normalizeDigits(arg)
	if digits == "" {
		return "❌ Use: /block 1234", nil
	}

	if err := i.updateProfile(ctx, userID, func(p *profile.Profile) {
		p.Block(digits)
	}); err != nil {
		if errors.Is(err, profile.ErrNotFound) {
			return "Please send /start first to set up your profile.", nil
		}
		return "", err
	}
	return "🚫 Blocked merchant ending in " + digits, nil
}

func (i *Interpreter) trusted(ctx context.Context, userID, arg string) (string, error) {
	digits := normalizeDigits(arg)
	if digits == "" {
		return "❌ Use: /trusted 5678", nil
	}

	if err := i.updateProfile(ctx, userID, func(p *profile.Profile) {
		p.Trust(digits)
	}); err != nil {
		if errors.Is(err, profile.ErrNotFound) {
			return "Please send /start first to set up your profile.", nil
		}
		return "", err
	}
	return "✅ Merchant ending in " + digits + " marked as trusted", nil
}

func (i *Interpreter) unknown() string {
	return "❓ Unknown command. Type /help for all commands."
}

// updateProfile saves under the store's version check, reloading and
// reapplying on conflict.
func (i *Interpreter) updateProfile(ctx context.Context, userID string, apply func(*profile.Profile)) error {
	p, err := i.profiles.Load(ctx, userID)
	if err != nil {
		return err
	}
	return retry.Do(ctx, 3, 10*time.Millisecond, func() error {
		apply(p)
		err := i.profiles.Save(ctx, p)
		if err == nil {
			return nil
		}
		if errors.Is(err, profile.ErrConflict) {
			fresh, lerr := i.profiles.Load(ctx, userID)
			if lerr != nil {
				return retry.Permanent(lerr)
			}
			p = fresh
			return err
		}
		return retry.Permanent(err)
	})
}

// normalizeDigits keeps the blocklist keyed the same way the parser keys
// counterparties: the last 4 digits.
func normalizeDigits(arg string) string {
	arg = strings.TrimSpace(arg)
	if !digitsRe.MatchString(arg) {
		return ""
	}
	if len(arg) > 4 {
		arg = arg[len(arg)-4:]
	}
	return arg
}
