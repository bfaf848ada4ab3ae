package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stage names a pipeline milestone.
type Stage string

// Pipeline stages reported through the hub.
const (
	StageRunStart         Stage = "RUN_START"
	StageBatchRead        Stage = "BATCH_READ"
	StageClassifyProgress Stage = "CLASSIFY_PROGRESS"
	StageBatchWritten     Stage = "BATCH_WRITTEN"
	StageRunDone          Stage = "RUN_DONE"
	StageRunEmpty         Stage = "RUN_EMPTY"
	StageRunError         Stage = "RUN_ERROR"
)

// Terminal reports whether the stage ends a run.
func (s Stage) Terminal() bool {
	switch s {
	case StageRunDone, StageRunEmpty, StageRunError:
		return true
	default:
		return false
	}
}

// Event is one progress observation for a normalization run.
type Event struct {
	// RunID identifies the run.
	RunID uuid.UUID
	// TS is when the emitter observed the milestone, in UTC.
	TS time.Time
	Stage Stage
	// Input is the path of the input store being drained.
	Input string
	// Offset is the batch offset within the input; zero for run-level events.
	Offset int64
	// Rows is the number of rows in the batch, or the run total on RUN_DONE.
	Rows int64
	// Done and Total describe classification progress within a batch.
	Done  int
	Total int
	// Dur is the batch or run duration.
	Dur time.Duration
	// Note carries low-volume context such as the failure message.
	Note string
}

// Validate rejects events that sinks cannot interpret.
func (e Event) Validate() error {
	if e.RunID == uuid.Nil {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageRunStart, StageRunDone, StageRunEmpty, StageRunError:
	case StageBatchRead, StageBatchWritten:
		if e.Offset < 0 || e.Rows < 0 {
			return fmt.Errorf("%s requires non-negative offset and rows", e.Stage)
		}
	case StageClassifyProgress:
		if e.Total <= 0 || e.Done < 0 || e.Done > e.Total {
			return fmt.Errorf("classify progress %d/%d out of range", e.Done, e.Total)
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// Percent is the classification completion ratio in [0, 100].
func (e Event) Percent() float64 {
	if e.Total <= 0 {
		return 0
	}
	return float64(e.Done) / float64(e.Total) * 100
}
