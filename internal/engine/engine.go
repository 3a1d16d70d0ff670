// Package engine ties parsing, scoring, and the confirmation workflow into
// the single entry point the webhook boundary calls for every inbound
// message.
//
// All work for one user runs under that user's lock, so the
// read-score-observe-save cycle and reply resolution never interleave for
// the same profile. Profile writes go through the store's version check and
// are retried against a fresh copy on conflict.
package engine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"time"

	"github.com/kbaffoe/momoguard/internal/confirm"
	"github.com/kbaffoe/momoguard/internal/history"
	"github.com/kbaffoe/momoguard/internal/idgen"
	"github.com/kbaffoe/momoguard/internal/logging"
	"github.com/kbaffoe/momoguard/internal/metrics"
	"github.com/kbaffoe/momoguard/internal/profile"
	"github.com/kbaffoe/momoguard/internal/retry"
	"github.com/kbaffoe/momoguard/internal/scoring"
	"github.com/kbaffoe/momoguard/internal/sms"
	"github.com/kbaffoe/momoguard/internal/syncutil"
	"github.com/kbaffoe/momoguard/internal/traces"
)

// Clock abstracts time for deterministic tests.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns the wall clock.
func SystemClock() Clock { return systemClock{} }

// Messenger delivers alerts, confirmation prompts, and resolution
// acknowledgements to the user's chat channel.
type Messenger interface {
	Alert(ctx context.Context, p *profile.Profile, tx *sms.Transaction, a *scoring.RiskAssessment) error
	Prompt(ctx context.Context, p *profile.Profile, tx *sms.Transaction, a *scoring.RiskAssessment) error
	Acknowledge(ctx context.Context, p *profile.Profile, res confirm.Resolution, tx *sms.Transaction) error
}

// Emitter broadcasts engine activity to live dashboard clients. Optional.
type Emitter interface {
	TransactionScored(e *history.Entry)
	ConfirmationResolved(userID string, res confirm.Resolution)
}

// Config carries the tunable knobs.
type Config struct {
	Location   *time.Location
	AvgAlpha   float64
	ConfirmTTL time.Duration
}

// Service is the risk engine.
type Service struct {
	profiles profile.Store
	confirms confirm.Store
	history  history.Store
	audit    scoring.Store
	scorer   *scoring.Scorer
	msgr     Messenger
	emitter  Emitter
	locks    *syncutil.ContextShardedMutex
	clock    Clock
	cfg      Config
	logger   *slog.Logger
}

// New wires the engine. audit and emitter may be nil.
func New(profiles profile.Store, confirms confirm.Store, hist history.Store,
	audit scoring.Store, msgr Messenger, cfg Config, logger *slog.Logger) *Service {

	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.AvgAlpha <= 0 || cfg.AvgAlpha > 1 {
		cfg.AvgAlpha = 0.5
	}
	if cfg.ConfirmTTL <= 0 {
		cfg.ConfirmTTL = confirm.DefaultTTL
	}
	return &Service{
		profiles: profiles,
		confirms: confirms,
		history:  hist,
		audit:    audit,
		scorer:   scoring.NewScorer(cfg.Location),
		msgr:     msgr,
		locks:    syncutil.NewContextShardedMutex(),
		clock:    SystemClock(),
		cfg:      cfg,
		logger:   logger,
	}
}

// WithClock replaces the wall clock, for tests.
func (s *Service) WithClock(c Clock) *Service {
	s.clock = c
	return s
}

// WithEmitter attaches a live event emitter.
func (s *Service) WithEmitter(e Emitter) *Service {
	s.emitter = e
	return s
}

// UserID derives the stable pseudonymous user id for a chat channel. Only
// the hash ever reaches storage or logs.
func UserID(platform, channelRef string) string {
	sum := sha256.Sum256([]byte(platform + ":" + channelRef))
	return hex.EncodeToString(sum[:])
}

// OutcomeKind classifies what HandleMessage did with an inbound message.
type OutcomeKind string

const (
	OutcomeScored    OutcomeKind = "scored"
	OutcomeResolved  OutcomeKind = "resolved"
	OutcomeRejected  OutcomeKind = "rejected"
	OutcomeDuplicate OutcomeKind = "duplicate"
	OutcomeNoSession OutcomeKind = "no_session"
)

// Outcome reports the result of one inbound message.
type Outcome struct {
	Kind       OutcomeKind
	Entry      *history.Entry
	Assessment *scoring.RiskAssessment
	Resolution confirm.Resolution
	ParseErr   *sms.ParseError
}

// HandleMessage processes one inbound chat message: a confirmation reply if
// a session is open for this user, otherwise a forwarded MoMo notification.
// observedAt is the platform's message timestamp; it is stable across
// webhook redeliveries, unlike the processing time.
func (s *Service) HandleMessage(ctx context.Context, platform, channelRef, text string, observedAt time.Time) (*Outcome, error) {
	userID := UserID(platform, channelRef)

	ctx, span := traces.StartSpan(ctx, "engine.handle_message",
		traces.Platform(platform), traces.UserID(userID))
	defer span.End()

	unlock, err := s.locks.LockContext(ctx, userID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	now := s.clock.Now()
	if observedAt.IsZero() {
		observedAt = now
	}

	p, err := s.loadOrCreate(ctx, userID, platform, channelRef, now)
	if err != nil {
		return nil, err
	}

	pc, err := s.pendingFor(ctx, userID, now)
	if err != nil {
		return nil, err
	}

	if reply := confirm.ParseReply(text); reply != confirm.ReplyUnrecognized {
		if pc == nil {
			return &Outcome{Kind: OutcomeNoSession}, nil
		}
		return s.resolve(ctx, p, pc, reply)
	}

	hash := sms.HashText(text)
	seen, err := s.history.Seen(ctx, userID, hash)
	if err != nil {
		return nil, err
	}
	if seen {
		logging.L(ctx).Debug("duplicate notification dropped", "user", shortID(userID))
		return &Outcome{Kind: OutcomeDuplicate}, nil
	}

	tx, err := sms.Parse(text, observedAt)
	if err != nil {
		var pe *sms.ParseError
		if errors.As(err, &pe) {
			metrics.ParseFailuresTotal.WithLabelValues(string(pe.Reason)).Inc()
			return &Outcome{Kind: OutcomeRejected, ParseErr: pe}, nil
		}
		return nil, err
	}

	return s.score(ctx, p, tx, now)
}

// score runs the assessment and persists every side effect of one parsed
// transaction.
func (s *Service) score(ctx context.Context, p *profile.Profile, tx *sms.Transaction, now time.Time) (*Outcome, error) {
	ctx, span := traces.StartSpan(ctx, "engine.score",
		traces.UserID(p.UserID), traces.Provider(string(tx.Provider)))
	defer span.End()

	log := logging.L(ctx)

	p.PruneDay(now, s.cfg.Location)
	a := s.scorer.Score(tx, p)
	span.SetAttributes(traces.RiskScore(a.Score), traces.RiskLevel(string(a.Level)))

	metrics.TransactionsTotal.WithLabelValues(string(tx.Provider), string(tx.Direction)).Inc()
	metrics.AssessmentsTotal.WithLabelValues(string(a.Level)).Inc()
	metrics.RiskScore.Observe(float64(a.Score))

	if s.audit != nil {
		if err := s.audit.Record(ctx, a); err != nil {
			log.Warn("assessment audit write failed", "error", err)
		}
	}

	p, err := s.updateProfile(ctx, p, func(fresh *profile.Profile) {
		fresh.PruneDay(now, s.cfg.Location)
		fresh.Observe(tx, s.cfg.AvgAlpha)
	})
	if err != nil {
		return nil, err
	}

	flagged := a.Level.AtLeastHigh()
	entry := &history.Entry{
		ID:           idgen.WithPrefix("txn_"),
		UserID:       p.UserID,
		Provider:     tx.Provider,
		Direction:    tx.Direction,
		Amount:       tx.Amount,
		Counterparty: tx.Counterparty,
		RawTextHash:  tx.RawTextHash,
		ObservedAt:   tx.ObservedAt,
		Score:        a.Score,
		Level:        a.Level,
		Flagged:      flagged,
	}
	if err := s.history.Add(ctx, entry); err != nil {
		return nil, err
	}

	if flagged {
		pc := &confirm.PendingConfirmation{
			ID:         idgen.WithPrefix("conf_"),
			UserID:     p.UserID,
			Tx:         *tx,
			Assessment: *a,
			CreatedAt:  now,
			ExpiresAt:  now.Add(s.cfg.ConfirmTTL),
		}
		if err := s.confirms.Put(ctx, pc); err != nil {
			return nil, err
		}
		if n, err := s.confirms.Count(ctx); err == nil {
			metrics.PendingConfirmations.Set(float64(n))
		}
		if err := s.msgr.Prompt(ctx, p, tx, a); err != nil {
			log.Warn("confirmation prompt delivery failed", "error", err)
		}
	} else {
		if err := s.msgr.Alert(ctx, p, tx, a); err != nil {
			log.Warn("alert delivery failed", "error", err)
		}
	}

	if s.emitter != nil {
		s.emitter.TransactionScored(entry)
	}

	log.Info("transaction scored",
		"user", shortID(p.UserID),
		"provider", tx.Provider,
		"direction", tx.Direction,
		"score", a.Score,
		"level", a.Level,
		"flagged", flagged,
	)

	return &Outcome{Kind: OutcomeScored, Entry: entry, Assessment: a}, nil
}

// resolve settles an open confirmation with the user's reply. The Claim call
// arbitrates races: whichever caller removes the session applies the
// profile effects, everyone else is told there is nothing left to resolve.
func (s *Service) resolve(ctx context.Context, p *profile.Profile, pc *confirm.PendingConfirmation, reply confirm.Reply) (*Outcome, error) {
	ctx, span := traces.StartSpan(ctx, "engine.resolve", traces.UserID(pc.UserID))
	defer span.End()

	won, err := s.confirms.Claim(ctx, pc.UserID, pc.ID)
	if err != nil {
		return nil, err
	}
	if !won {
		return &Outcome{Kind: OutcomeNoSession}, nil
	}

	var res confirm.Resolution
	switch reply {
	case confirm.ReplyAffirm:
		res = confirm.ResolutionLegit
	case confirm.ReplyDeny:
		res = confirm.ResolutionFraud
	case confirm.ReplyBlock:
		res = confirm.ResolutionBlock
	}
	span.SetAttributes(traces.Resolution(string(res)))

	// An affirmative reply only closes the session. Counterparty trust is
	// granted through the explicit /trusted command, never inferred from a
	// confirmation.
	if res != confirm.ResolutionLegit {
		counterparty := pc.Tx.Counterparty
		p, err = s.updateProfile(ctx, p, func(fresh *profile.Profile) {
			switch res {
			case confirm.ResolutionFraud:
				fresh.FraudReports++
			case confirm.ResolutionBlock:
				fresh.Block(counterparty)
				fresh.FraudReports++
			}
		})
		if err != nil {
			return nil, err
		}
	}

	if err := s.history.SetResolution(ctx, pc.UserID, pc.Tx.RawTextHash, string(res)); err != nil {
		logging.L(ctx).Warn("history resolution write failed", "error", err)
	}

	metrics.ConfirmationsTotal.WithLabelValues(string(res)).Inc()
	if n, err := s.confirms.Count(ctx); err == nil {
		metrics.PendingConfirmations.Set(float64(n))
	}

	if err := s.msgr.Acknowledge(ctx, p, res, &pc.Tx); err != nil {
		logging.L(ctx).Warn("resolution ack delivery failed", "error", err)
	}

	if s.emitter != nil {
		s.emitter.ConfirmationResolved(pc.UserID, res)
	}

	logging.L(ctx).Info("confirmation resolved",
		"user", shortID(pc.UserID),
		"resolution", res,
	)

	return &Outcome{Kind: OutcomeResolved, Resolution: res}, nil
}

// pendingFor returns the user's open session, expiring it lazily if its
// reply window has passed.
func (s *Service) pendingFor(ctx context.Context, userID string, now time.Time) (*confirm.PendingConfirmation, error) {
	pc, err := s.confirms.Get(ctx, userID)
	if errors.Is(err, confirm.ErrNoSession) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !pc.Expired(now) {
		return pc, nil
	}

	won, err := s.confirms.Claim(ctx, userID, pc.ID)
	if err != nil {
		return nil, err
	}
	if won {
		metrics.ConfirmationsTotal.WithLabelValues(string(confirm.ResolutionExpired)).Inc()
		if err := s.history.SetResolution(ctx, userID, pc.Tx.RawTextHash, string(confirm.ResolutionExpired)); err != nil {
			logging.L(ctx).Warn("history resolution write failed", "error", err)
		}
		if s.emitter != nil {
			s.emitter.ConfirmationResolved(userID, confirm.ResolutionExpired)
		}
	}
	return nil, nil
}

// loadOrCreate fetches the profile, creating one with default limits on
// first contact. A create race falls back to a plain load.
func (s *Service) loadOrCreate(ctx context.Context, userID, platform, channelRef string, now time.Time) (*profile.Profile, error) {
	p, err := s.profiles.Load(ctx, userID)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, profile.ErrNotFound) {
		return nil, err
	}

	p = profile.New(userID, platform, channelRef, now)
	if err := s.profiles.Create(ctx, p); err != nil {
		if errors.Is(err, profile.ErrExists) {
			return s.profiles.Load(ctx, userID)
		}
		return nil, err
	}
	return p, nil
}

// updateProfile applies a mutation and saves under the store's version
// check, reloading and reapplying on conflict.
func (s *Service) updateProfile(ctx context.Context, p *profile.Profile, apply func(*profile.Profile)) (*profile.Profile, error) {
	cur := p
	err := retry.Do(ctx, 3, 10*time.Millisecond, func() error {
		apply(cur)
		err := s.profiles.Save(ctx, cur)
		if err == nil {
			return nil
		}
		if errors.Is(err, profile.ErrConflict) {
			fresh, lerr := s.profiles.Load(ctx, cur.UserID)
			if lerr != nil {
				return retry.Permanent(lerr)
			}
			cur = fresh
			return err
		}
		return retry.Permanent(err)
	})
	if err != nil {
		return nil, err
	}
	return cur, nil
}

func shortID(userID string) string {
	if len(userID) > 12 {
		return userID[:12]
	}
	return userID
}
