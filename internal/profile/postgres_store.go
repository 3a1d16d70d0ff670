package profile

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"
)

// PostgresStore persists profiles in PostgreSQL. Save uses a version-guarded
// UPDATE as the compare-and-swap the Store contract requires.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed profile store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the profiles table if it doesn't exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS profiles (
			user_id            VARCHAR(64) PRIMARY KEY,
			platform           VARCHAR(20) NOT NULL,
			channel_ref        VARCHAR(100) NOT NULL DEFAULT '',
			daily_limit        NUMERIC(12,2) NOT NULL,
			average_amount     NUMERIC(12,2) NOT NULL,
			transactions_today JSONB NOT NULL DEFAULT '[]',
			blocked            TEXT[] NOT NULL DEFAULT '{}',
			trusted            TEXT[] NOT NULL DEFAULT '{}',
			fraud_reports      INTEGER NOT NULL DEFAULT 0,
			total_transactions INTEGER NOT NULL DEFAULT 0,
			created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			last_active        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			version            BIGINT NOT NULL DEFAULT 1
		);
	`)
	return err
}

const profileColumns = `user_id, platform, channel_ref, daily_limit, average_amount,
	transactions_today, blocked, trusted, fraud_reports, total_transactions,
	created_at, last_active, version`

func (s *PostgresStore) Load(ctx context.Context, userID string) (*Profile, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+profileColumns+`
		FROM profiles WHERE user_id = $1`, userID)

	p, err := scanProfile(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return p, err
}

func (s *PostgresStore) Create(ctx context.Context, p *Profile) error {
	window, err := json.Marshal(p.TransactionsToday)
	if err != nil {
		return fmt.Errorf("failed to marshal day window: %w", err)
	}

	p.Version = 1
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO profiles (`+profileColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		p.UserID, p.Platform, p.ChannelRef, p.DailyLimit, p.AverageAmount,
		window, pq.Array(p.Blocked), pq.Array(p.Trusted),
		p.FraudReports, p.TotalTransactions, p.CreatedAt, p.LastActive, p.Version,
	)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return ErrExists
		}
		return fmt.Errorf("failed to create profile: %w", err)
	}
	return nil
}

func (s *PostgresStore) Save(ctx context.Context, p *Profile) error {
	window, err := json.Marshal(p.TransactionsToday)
	if err != nil {
		return fmt.Errorf("failed to marshal day window: %w", err)
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE profiles SET
			platform = $1, channel_ref = $2, daily_limit = $3, average_amount = $4,
			transactions_today = $5, blocked = $6, trusted = $7,
			fraud_reports = $8, total_transactions = $9, last_active = $10,
			version = version + 1
		WHERE user_id = $11 AND version = $12`,
		p.Platform, p.ChannelRef, p.DailyLimit, p.AverageAmount,
		window, pq.Array(p.Blocked), pq.Array(p.Trusted),
		p.FraudReports, p.TotalTransactions, p.LastActive,
		p.UserID, p.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to save profile: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		// Either the row is gone or someone else saved first.
		var exists bool
		if err := s.db.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM profiles WHERE user_id = $1)`, p.UserID,
		).Scan(&exists); err == nil && !exists {
			return ErrNotFound
		}
		return ErrConflict
	}
	p.Version++
	return nil
}

func (s *PostgresStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM profiles`).Scan(&n)
	return n, err
}

func scanProfile(row *sql.Row) (*Profile, error) {
	var p Profile
	var window []byte
	err := row.Scan(
		&p.UserID, &p.Platform, &p.ChannelRef, &p.DailyLimit, &p.AverageAmount,
		&window, pq.Array(&p.Blocked), pq.Array(&p.Trusted),
		&p.FraudReports, &p.TotalTransactions, &p.CreatedAt, &p.LastActive, &p.Version,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(window, &p.TransactionsToday); err != nil {
		return nil, fmt.Errorf("failed to unmarshal day window: %w", err)
	}
	return &p, nil
}
