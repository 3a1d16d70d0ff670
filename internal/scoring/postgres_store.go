package scoring

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// PostgresStore persists risk assessments in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed assessment store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the risk_assessments table if it doesn't exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS risk_assessments (
			id            VARCHAR(36) PRIMARY KEY,
			user_id       VARCHAR(64) NOT NULL,
			score         INTEGER NOT NULL CHECK (score >= 0 AND score <= 100),
			level         VARCHAR(10) NOT NULL CHECK (level IN ('LOW', 'MEDIUM', 'HIGH', 'CRITICAL')),
			reasons       JSONB NOT NULL DEFAULT '[]',
			evaluated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_risk_assessments_user
			ON risk_assessments (user_id, evaluated_at DESC);

		CREATE INDEX IF NOT EXISTS idx_risk_assessments_flagged
			ON risk_assessments (evaluated_at DESC) WHERE level IN ('HIGH', 'CRITICAL');
	`)
	return err
}

func (s *PostgresStore) Record(ctx context.Context, a *RiskAssessment) error {
	reasonsJSON, err := json.Marshal(a.Reasons)
	if err != nil {
		return fmt.Errorf("failed to marshal reasons: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO risk_assessments (id, user_id, score, level, reasons, evaluated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`,
		a.ID, a.UserID, a.Score, string(a.Level), reasonsJSON, a.EvaluatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record assessment: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListByUser(ctx context.Context, userID string, limit int) ([]*RiskAssessment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, score, level, reasons, evaluated_at
		FROM risk_assessments
		WHERE user_id = $1
		ORDER BY evaluated_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list assessments: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []*RiskAssessment
	for rows.Next() {
		var a RiskAssessment
		var reasonsJSON []byte
		if err := rows.Scan(&a.ID, &a.UserID, &a.Score, &a.Level, &reasonsJSON, &a.EvaluatedAt); err != nil {
			continue
		}
		_ = json.Unmarshal(reasonsJSON, &a.Reasons)
		result = append(result, &a)
	}
	return result, rows.Err()
}
