package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound signals that the requested run does not exist.
var ErrNotFound = errors.New("run not found")

// RunStatus mirrors the pipeline_runs.status column.
type RunStatus string

// Run statuses persisted in pipeline_runs.status.
const (
	RunRunning RunStatus = "running"
	RunSuccess RunStatus = "success"
	RunEmpty   RunStatus = "empty"
	RunFailed  RunStatus = "failed"
)

// Run is one row of pipeline_runs.
type Run struct {
	ID    uuid.UUID
	Input string
	// StartedAt is when the run was first recorded.
	StartedAt time.Time
	// FinishedAt is nil while the run is in flight.
	FinishedAt *time.Time
	Status     RunStatus
	// Rows and Batches accumulate as batches are written.
	Rows    int64
	Batches int64
	// ErrorMessage holds the failure reason for failed runs.
	ErrorMessage *string
}

// RunRepository persists the run ledger.
type RunRepository interface {
	// StartRun inserts a running row; repeating it for the same id is a no-op.
	StartRun(ctx context.Context, id uuid.UUID, input string, startedAt time.Time) error
	// AddBatches applies row and batch deltas to a running run.
	AddBatches(ctx context.Context, id uuid.UUID, deltaRows, deltaBatches int64) error
	// CompleteRun records the terminal status.
	CompleteRun(ctx context.Context, id uuid.UUID, finishedAt time.Time, status RunStatus, errMsg *string) error

	// GetRun loads one run or returns ErrNotFound.
	GetRun(ctx context.Context, id uuid.UUID) (Run, error)
	// ListRuns returns runs newest first, optionally filtered by status.
	ListRuns(ctx context.Context, status *RunStatus, limit, offset int) ([]Run, error)
}
