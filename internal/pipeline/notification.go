package pipeline

import (
	"time"

	"github.com/google/uuid"
)

// Notification is the payload published when a run ends.
type Notification struct {
	RunID      uuid.UUID `json:"run_id"`
	Status     Status    `json:"status"`
	Input      string    `json:"input,omitempty"`
	Output     string    `json:"output,omitempty"`
	Rows       int64     `json:"rows"`
	Batches    int       `json:"batches"`
	Stage      Stage     `json:"failed_stage,omitempty"`
	Offset     int64     `json:"failed_offset,omitempty"`
	Error      string    `json:"error,omitempty"`
	Deleted    []string  `json:"deleted,omitempty"`
	DurationMS int64     `json:"duration_ms"`
	FinishedAt time.Time `json:"finished_at"`
}

// NewNotification summarizes res.
func NewNotification(res Result, finishedAt time.Time) Notification {
	n := Notification{
		RunID:      res.RunID,
		Status:     res.Status,
		Input:      res.Input,
		Output:     res.Output,
		Rows:       res.Rows,
		Batches:    res.Batches,
		Deleted:    res.Deleted,
		DurationMS: res.Duration.Milliseconds(),
		FinishedAt: finishedAt.UTC(),
	}
	if res.Failure != nil {
		n.Stage = res.Failure.Stage
		n.Offset = res.Failure.Offset
		n.Error = res.Failure.Err.Error()
	}
	return n
}
