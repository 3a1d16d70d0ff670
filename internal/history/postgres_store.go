package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kbaffoe/momoguard/internal/confirm"
	"github.com/kbaffoe/momoguard/internal/scoring"
	"github.com/kbaffoe/momoguard/internal/sms"
)

// PostgresStore persists transaction entries in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the transactions table if it does not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS transactions (
			id            TEXT PRIMARY KEY,
			user_id       TEXT NOT NULL,
			provider      TEXT NOT NULL,
			direction     TEXT NOT NULL CHECK (direction IN ('sent', 'received')),
			amount        NUMERIC(12, 2) NOT NULL,
			counterparty  TEXT NOT NULL DEFAULT '',
			raw_text_hash TEXT NOT NULL,
			observed_at   TIMESTAMPTZ NOT NULL,
			score         INT NOT NULL CHECK (score >= 0 AND score <= 100),
			level         TEXT NOT NULL CHECK (level IN ('LOW', 'MEDIUM', 'HIGH', 'CRITICAL')),
			flagged       BOOLEAN NOT NULL DEFAULT FALSE,
			resolution    TEXT NOT NULL DEFAULT '',
			UNIQUE (user_id, raw_text_hash)
		);
		CREATE INDEX IF NOT EXISTS idx_transactions_user_observed
			ON transactions(user_id, observed_at DESC);
		CREATE INDEX IF NOT EXISTS idx_transactions_flagged
			ON transactions(flagged) WHERE flagged;
	`)
	if err != nil {
		return fmt.Errorf("migrate transactions: %w", err)
	}
	return nil
}

func (s *PostgresStore) Add(ctx context.Context, e *Entry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO transactions
			(id, user_id, provider, direction, amount, counterparty,
			 raw_text_hash, observed_at, score, level, flagged, resolution)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (user_id, raw_text_hash) DO NOTHING`,
		e.ID, e.UserID, string(e.Provider), string(e.Direction),
		e.Amount.String(), e.Counterparty, e.RawTextHash, e.ObservedAt,
		e.Score, string(e.Level), e.Flagged, e.Resolution,
	)
	if err != nil {
		return fmt.Errorf("add transaction: %w", err)
	}
	return nil
}

func (s *PostgresStore) Seen(ctx context.Context, userID, rawTextHash string) (bool, error) {
	var seen bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM transactions WHERE user_id = $1 AND raw_text_hash = $2
		)`, userID, rawTextHash).Scan(&seen)
	if err != nil {
		return false, fmt.Errorf("check seen: %w", err)
	}
	return seen, nil
}

func (s *PostgresStore) SetResolution(ctx context.Context, userID, rawTextHash, resolution string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE transactions SET resolution = $3
		WHERE user_id = $1 AND raw_text_hash = $2`,
		userID, rawTextHash, resolution,
	)
	if err != nil {
		return fmt.Errorf("set resolution: %w", err)
	}
	return nil
}

func (s *PostgresStore) Recent(ctx context.Context, userID string, limit int) ([]*Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, provider, direction, amount, counterparty,
		       raw_text_hash, observed_at, score, level, flagged, resolution
		FROM transactions
		WHERE user_id = $1
		ORDER BY observed_at DESC
		LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *PostgresStore) SummarySince(ctx context.Context, userID string, since time.Time) (*Summary, error) {
	sum := NewSummary()
	var sent, received string
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(amount) FILTER (WHERE direction = 'sent'), 0),
		       COALESCE(SUM(amount) FILTER (WHERE direction = 'received'), 0),
		       COUNT(*) FILTER (WHERE flagged)
		FROM transactions
		WHERE user_id = $1 AND observed_at >= $2`,
		userID, since,
	).Scan(&sum.Count, &sent, &received, &sum.Flagged)
	if err != nil {
		return nil, fmt.Errorf("summarize transactions: %w", err)
	}

	if sum.Sent, err = decimal.NewFromString(sent); err != nil {
		return nil, fmt.Errorf("parse sent total: %w", err)
	}
	if sum.Received, err = decimal.NewFromString(received); err != nil {
		return nil, fmt.Errorf("parse received total: %w", err)
	}
	return sum, nil
}

func (s *PostgresStore) Totals(ctx context.Context) (*Totals, error) {
	t := NewTotals()
	var flaggedAmt, protectedAmt string
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE flagged),
		       COUNT(*) FILTER (WHERE resolution IN ($1, $2)),
		       COALESCE(SUM(amount) FILTER (WHERE flagged), 0),
		       COALESCE(SUM(amount) FILTER (WHERE resolution IN ($1, $2)), 0)
		FROM transactions`,
		string(confirm.ResolutionFraud), string(confirm.ResolutionBlock),
	).Scan(&t.Transactions, &t.Flagged, &t.FraudConfirmed, &flaggedAmt, &protectedAmt)
	if err != nil {
		return nil, fmt.Errorf("aggregate totals: %w", err)
	}

	if t.AmountFlagged, err = decimal.NewFromString(flaggedAmt); err != nil {
		return nil, fmt.Errorf("parse flagged total: %w", err)
	}
	if t.AmountProtected, err = decimal.NewFromString(protectedAmt); err != nil {
		return nil, fmt.Errorf("parse protected total: %w", err)
	}
	return t, nil
}

func scanEntry(rows *sql.Rows) (*Entry, error) {
	var (
		e                          Entry
		provider, direction, level string
		amount                     string
	)
	err := rows.Scan(&e.ID, &e.UserID, &provider, &direction, &amount,
		&e.Counterparty, &e.RawTextHash, &e.ObservedAt, &e.Score, &level,
		&e.Flagged, &e.Resolution)
	if err != nil {
		return nil, fmt.Errorf("scan transaction: %w", err)
	}
	e.Provider = sms.Provider(provider)
	e.Direction = sms.Direction(direction)
	e.Level = scoring.Level(level)
	if e.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("parse amount: %w", err)
	}
	return &e, nil
}
