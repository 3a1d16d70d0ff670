package confirm

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/kbaffoe/momoguard/internal/metrics"
)

// Timer periodically sweeps expired confirmation sessions. Expiry is also
// checked lazily when a reply arrives, so the sweep only bounds how long a
// dead session can linger in the registry.
type Timer struct {
	store    Store
	interval time.Duration
	logger   *slog.Logger
	stop     chan struct{}
	running  atomic.Bool
}

// NewTimer creates a session expiry sweeper.
func NewTimer(store Store, logger *slog.Logger) *Timer {
	return &Timer{
		store:    store,
		interval: time.Minute,
		logger:   logger,
		stop:     make(chan struct{}),
	}
}

// Running reports whether the sweep loop is active.
func (t *Timer) Running() bool {
	return t.running.Load()
}

// Start begins the sweep loop. Call in a goroutine.
func (t *Timer) Start(ctx context.Context) {
	t.running.Store(true)
	defer t.running.Store(false)

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.stop:
			return
		case <-ticker.C:
			t.safeSweep(ctx)
		}
	}
}

// Stop signals the timer to stop.
func (t *Timer) Stop() {
	select {
	case t.stop <- struct{}{}:
	default:
	}
}

func (t *Timer) safeSweep(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("panic in confirmation sweeper", "panic", fmt.Sprint(r))
		}
	}()
	t.sweep(ctx)
}

func (t *Timer) sweep(ctx context.Context) {
	now := time.Now()

	expired, err := t.store.ListExpired(ctx, now, 100)
	if err != nil {
		t.logger.Warn("failed to list expired confirmations", "error", err)
		return
	}

	for _, pc := range expired {
		claimed, err := t.store.Claim(ctx, pc.UserID, pc.ID)
		if err != nil {
			t.logger.Warn("failed to expire confirmation",
				"user", pc.UserID, "error", err)
			continue
		}
		if !claimed {
			// A reply or a newer session got there first.
			continue
		}
		metrics.ConfirmationsTotal.WithLabelValues(string(ResolutionExpired)).Inc()
		t.logger.Info("confirmation expired without reply",
			"user", pc.UserID,
			"score", pc.Assessment.Score,
			"openFor", now.Sub(pc.CreatedAt).Round(time.Second).String(),
		)
	}

	if n, err := t.store.Count(ctx); err == nil {
		metrics.PendingConfirmations.Set(float64(n))
	}
}
