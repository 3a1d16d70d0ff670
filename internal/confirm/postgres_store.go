package confirm

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// PostgresStore persists pending confirmations in PostgreSQL. The user id is
// the primary key, which enforces session exclusivity at the storage layer;
// Claim's conditional DELETE is the first-resolution-wins arbiter.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed session registry.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the pending_confirmations table if it doesn't exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS pending_confirmations (
			user_id     VARCHAR(64) PRIMARY KEY,
			id          VARCHAR(36) NOT NULL,
			tx          JSONB NOT NULL,
			assessment  JSONB NOT NULL,
			created_at  TIMESTAMPTZ NOT NULL,
			expires_at  TIMESTAMPTZ NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_pending_confirmations_expiry
			ON pending_confirmations (expires_at);
	`)
	return err
}

func (s *PostgresStore) Put(ctx context.Context, pc *PendingConfirmation) error {
	txJSON, err := json.Marshal(pc.Tx)
	if err != nil {
		return fmt.Errorf("failed to marshal transaction snapshot: %w", err)
	}
	assessmentJSON, err := json.Marshal(pc.Assessment)
	if err != nil {
		return fmt.Errorf("failed to marshal assessment snapshot: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO pending_confirmations (user_id, id, tx, assessment, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id) DO UPDATE SET
			id = EXCLUDED.id,
			tx = EXCLUDED.tx,
			assessment = EXCLUDED.assessment,
			created_at = EXCLUDED.created_at,
			expires_at = EXCLUDED.expires_at`,
		pc.UserID, pc.ID, txJSON, assessmentJSON, pc.CreatedAt, pc.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to store pending confirmation: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, userID string) (*PendingConfirmation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT user_id, id, tx, assessment, created_at, expires_at
		FROM pending_confirmations WHERE user_id = $1`, userID)

	pc, err := scanConfirmation(row.Scan)
	if err == sql.ErrNoRows {
		return nil, ErrNoSession
	}
	return pc, err
}

func (s *PostgresStore) Claim(ctx context.Context, userID, id string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM pending_confirmations WHERE user_id = $1 AND id = $2`,
		userID, id)
	if err != nil {
		return false, fmt.Errorf("failed to claim pending confirmation: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

func (s *PostgresStore) ListExpired(ctx context.Context, now time.Time, limit int) ([]*PendingConfirmation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, id, tx, assessment, created_at, expires_at
		FROM pending_confirmations
		WHERE expires_at < $1
		ORDER BY expires_at
		LIMIT $2`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list expired confirmations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []*PendingConfirmation
	for rows.Next() {
		pc, err := scanConfirmation(rows.Scan)
		if err != nil {
			continue
		}
		result = append(result, pc)
	}
	return result, rows.Err()
}

func (s *PostgresStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM pending_confirmations`).Scan(&n)
	return n, err
}

func scanConfirmation(scan func(...any) error) (*PendingConfirmation, error) {
	var pc PendingConfirmation
	var txJSON, assessmentJSON []byte
	if err := scan(&pc.UserID, &pc.ID, &txJSON, &assessmentJSON, &pc.CreatedAt, &pc.ExpiresAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(txJSON, &pc.Tx); err != nil {
		return nil, fmt.Errorf("failed to unmarshal transaction snapshot: %w", err)
	}
	if err := json.Unmarshal(assessmentJSON, &pc.Assessment); err != nil {
		return nil, fmt.Errorf("failed to unmarshal assessment snapshot: %w", err)
	}
	return &pc, nil
}
