package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/weblog-normalizer/internal/store"
)

const runsSchema = `
CREATE TABLE IF NOT EXISTS pipeline_runs (
	id            UUID PRIMARY KEY,
	input         TEXT NOT NULL DEFAULT '',
	started_at    TIMESTAMPTZ NOT NULL,
	finished_at   TIMESTAMPTZ,
	status        TEXT NOT NULL,
	row_count     BIGINT NOT NULL DEFAULT 0,
	batch_count   BIGINT NOT NULL DEFAULT 0,
	error_message TEXT
);
CREATE INDEX IF NOT EXISTS pipeline_runs_started_at_idx ON pipeline_runs (started_at DESC);
`

// RunStore implements store.RunRepository on the pipeline_runs table.
type RunStore struct {
	pool Pool
}

// NewRunStore wraps pool.
func NewRunStore(pool Pool) (*RunStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &RunStore{pool: pool}, nil
}

// EnsureSchema creates pipeline_runs when it does not exist.
func (s *RunStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, runsSchema); err != nil {
		return fmt.Errorf("create pipeline_runs: %w", err)
	}
	return nil
}

// Close releases the pool.
func (s *RunStore) Close() {
	s.pool.Close()
}

// StartRun inserts a running row; a repeated start is ignored.
func (s *RunStore) StartRun(ctx context.Context, id uuid.UUID, input string, startedAt time.Time) error {
	const q = `
		INSERT INTO pipeline_runs (id, input, started_at, status)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO NOTHING;
	`
	if _, err := s.pool.Exec(ctx, q, id, input, startedAt, store.RunRunning); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// AddBatches increments the run counters.
func (s *RunStore) AddBatches(ctx context.Context, id uuid.UUID, deltaRows, deltaBatches int64) error {
	const q = `
		UPDATE pipeline_runs
		SET row_count = row_count + $1, batch_count = batch_count + $2
		WHERE id = $3;
	`
	res, err := s.pool.Exec(ctx, q, deltaRows, deltaBatches, id)
	if err != nil {
		return fmt.Errorf("update run counters: %w", err)
	}
	if res.RowsAffected() == 0 {
		return fmt.Errorf("update run counters %s: %w", id, store.ErrNotFound)
	}
	return nil
}

// CompleteRun stores the terminal status, inserting the run when it was never started.
func (s *RunStore) CompleteRun(
	ctx context.Context,
	id uuid.UUID,
	finishedAt time.Time,
	status store.RunStatus,
	errMsg *string,
) error {
	const q = `
		INSERT INTO pipeline_runs (id, started_at, finished_at, status, error_message)
		VALUES ($1, $2, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE
		SET finished_at = EXCLUDED.finished_at,
			status = EXCLUDED.status,
			error_message = EXCLUDED.error_message;
	`
	if _, err := s.pool.Exec(ctx, q, id, finishedAt, status, errMsg); err != nil {
		return fmt.Errorf("complete run: %w", err)
	}
	return nil
}

const runColumns = `id, input, started_at, finished_at, status, row_count, batch_count, error_message`

func scanRun(row pgx.Row) (store.Run, error) {
	var run store.Run
	err := row.Scan(
		&run.ID,
		&run.Input,
		&run.StartedAt,
		&run.FinishedAt,
		&run.Status,
		&run.Rows,
		&run.Batches,
		&run.ErrorMessage,
	)
	return run, err
}

// GetRun loads one run.
func (s *RunStore) GetRun(ctx context.Context, id uuid.UUID) (store.Run, error) {
	run, err := scanRun(s.pool.QueryRow(ctx, `SELECT `+runColumns+` FROM pipeline_runs WHERE id = $1;`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Run{}, store.ErrNotFound
		}
		return store.Run{}, fmt.Errorf("get run: %w", err)
	}
	return run, nil
}

// ListRuns returns runs newest first with optional status filtering.
func (s *RunStore) ListRuns(ctx context.Context, status *store.RunStatus, limit, offset int) ([]store.Run, error) {
	const q = `
		SELECT ` + runColumns + `
		FROM pipeline_runs
		WHERE ($1::text IS NULL OR status = $1)
		ORDER BY started_at DESC
		LIMIT $2 OFFSET $3;
	`
	var filter *string
	if status != nil {
		v := string(*status)
		filter = &v
	}
	rows, err := s.pool.Query(ctx, q, filter, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	runs := []store.Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}
