// Package messenger delivers alerts and prompts to users over their chat
// platform. Senders are thin HTTP clients around the Telegram Bot API and
// the Twilio WhatsApp API; the Service routes by platform and formats the
// engine's outcomes into user-facing text.
package messenger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kbaffoe/momoguard/internal/confirm"
	"github.com/kbaffoe/momoguard/internal/metrics"
	"github.com/kbaffoe/momoguard/internal/profile"
	"github.com/kbaffoe/momoguard/internal/scoring"
	"github.com/kbaffoe/momoguard/internal/sms"
)

// Sender delivers one text message to a channel reference on one platform.
type Sender interface {
	Platform() string
	Send(ctx context.Context, channelRef, text string) error
}

// Service routes messages to the right platform sender and applies the
// standard formatting.
type Service struct {
	senders map[string]Sender
	loc     *time.Location
	logger  *slog.Logger
}

// NewService creates a messenger over the given senders. Times in alert
// text are rendered in loc.
func NewService(loc *time.Location, logger *slog.Logger, senders ...Sender) *Service {
	if loc == nil {
		loc = time.UTC
	}
	m := &Service{
		senders: make(map[string]Sender, len(senders)),
		loc:     loc,
		logger:  logger,
	}
	for _, s := range senders {
		m.senders[s.Platform()] = s
	}
	return m
}

// SendTo delivers raw text to a channel on the given platform.
func (m *Service) SendTo(ctx context.Context, platform, channelRef, text string) error {
	sender, ok := m.senders[platform]
	if !ok {
		return fmt.Errorf("no sender for platform %q", platform)
	}
	err := sender.Send(ctx, channelRef, text)
	if err != nil {
		metrics.PromptDeliveriesTotal.WithLabelValues("error").Inc()
		m.logger.Error("message delivery failed",
			"platform", platform, "error", err)
		return err
	}
	metrics.PromptDeliveriesTotal.WithLabelValues("ok").Inc()
	return nil
}

// Send delivers raw text to the profile's channel.
func (m *Service) Send(ctx context.Context, p *profile.Profile, text string) error {
	return m.SendTo(ctx, p.Platform, p.ChannelRef, text)
}

// Alert sends the post-scoring risk alert. For HIGH and CRITICAL
// assessments the same message doubles as the confirmation prompt.
func (m *Service) Alert(ctx context.Context, p *profile.Profile, tx *sms.Transaction, a *scoring.RiskAssessment) error {
	return m.Send(ctx, p, FormatAlert(tx, a, m.loc))
}

// Prompt is the confirmation ask for flagged transactions. The alert text
// already carries the YES/NO/BLOCK instructions, so this is the same body.
func (m *Service) Prompt(ctx context.Context, p *profile.Profile, tx *sms.Transaction, a *scoring.RiskAssessment) error {
	return m.Send(ctx, p, FormatAlert(tx, a, m.loc))
}

// Acknowledge confirms a resolved confirmation back to the user.
func (m *Service) Acknowledge(ctx context.Context, p *profile.Profile, res confirm.Resolution, tx *sms.Transaction) error {
	return m.Send(ctx, p, FormatResolution(res, tx))
}
