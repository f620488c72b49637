package progress

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Schema is the SQL DDL for the phase_completions table. Execute it via
// [PostgresStore.Migrate] or apply it manually during deployment.
const Schema = `
CREATE TABLE IF NOT EXISTS phase_completions (
    learner_id   TEXT NOT NULL,
    passage_id   TEXT NOT NULL,
    phase_label  TEXT NOT NULL,
    completed_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    PRIMARY KEY (learner_id, passage_id, phase_label)
);
CREATE INDEX IF NOT EXISTS idx_phase_completions_learner ON phase_completions(learner_id, passage_id);
`

// DB is the database interface used by [PostgresStore]. Both *pgxpool.Pool
// and *pgx.Conn satisfy this interface.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresStore is a [Store] backed by a PostgreSQL database.
type PostgresStore struct {
	db DB
}

// Compile-time interface check.
var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a PostgresStore over the given connection or
// pool. The caller is responsible for calling [PostgresStore.Migrate] to
// ensure the schema exists before issuing queries.
func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate executes the [Schema] DDL, creating the phase_completions table
// and index if they do not already exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("progress: migrate: %w", err)
	}
	return nil
}

// Ping verifies database connectivity; used by readiness checks.
func (s *PostgresStore) Ping(ctx context.Context) error {
	var one int
	if err := s.db.QueryRow(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("progress: ping: %w", err)
	}
	return nil
}

// MarkPhaseCompleted inserts the completion row. A conflicting row is left
// untouched so the original completion time is kept.
func (s *PostgresStore) MarkPhaseCompleted(ctx context.Context, learnerID, passageID, phaseLabel string) error {
	const query = `
		INSERT INTO phase_completions (learner_id, passage_id, phase_label)
		VALUES ($1, $2, $3)
		ON CONFLICT (learner_id, passage_id, phase_label) DO NOTHING`

	if _, err := s.db.Exec(ctx, query, learnerID, passageID, phaseLabel); err != nil {
		return fmt.Errorf("progress: mark completed: %w", err)
	}
	return nil
}

// IsPhaseCompleted reports whether a completion row exists.
func (s *PostgresStore) IsPhaseCompleted(ctx context.Context, learnerID, passageID, phaseLabel string) (bool, error) {
	const query = `
		SELECT 1 FROM phase_completions
		WHERE learner_id = $1 AND passage_id = $2 AND phase_label = $3`

	var one int
	err := s.db.QueryRow(ctx, query, learnerID, passageID, phaseLabel).Scan(&one)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("progress: is completed: %w", err)
	}
	return true, nil
}

// CompletedPhases lists completions for a learner and passage, ordered by
// completion time.
func (s *PostgresStore) CompletedPhases(ctx context.Context, learnerID, passageID string) ([]Record, error) {
	const query = `
		SELECT learner_id, passage_id, phase_label, completed_at
		FROM phase_completions
		WHERE learner_id = $1 AND passage_id = $2
		ORDER BY completed_at`

	rows, err := s.db.Query(ctx, query, learnerID, passageID)
	if err != nil {
		return nil, fmt.Errorf("progress: list completed: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.LearnerID, &r.PassageID, &r.PhaseLabel, &r.CompletedAt); err != nil {
			return nil, fmt.Errorf("progress: scan completion: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("progress: iterate completions: %w", err)
	}
	return out, nil
}
