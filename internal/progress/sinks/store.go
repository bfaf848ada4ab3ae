package sinks

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/weblog-normalizer/internal/progress"
	"github.com/JakeFAU/weblog-normalizer/internal/store"
)

// StoreSink mirrors run progress into a store.RunRepository. Batch counters
// are collapsed per run before they are written.
type StoreSink struct {
	repo   store.RunRepository
	logger *zap.Logger
}

// NewStoreSink constructs a StoreSink for repo.
func NewStoreSink(repo store.RunRepository, logger *zap.Logger) *StoreSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StoreSink{repo: repo, logger: logger}
}

type runDelta struct {
	rows    int64
	batches int64
}

// Consume applies the batch in order. Pending counters for a run are written
// before its terminal status so the ledger never shows a finished run with
// stale totals.
func (s *StoreSink) Consume(ctx context.Context, batch []progress.Event) error {
	if s == nil || s.repo == nil {
		return nil
	}
	deltas := make(map[uuid.UUID]*runDelta)
	order := make([]uuid.UUID, 0, 1)

	for _, evt := range batch {
		switch evt.Stage {
		case progress.StageRunStart:
			if err := s.repo.StartRun(ctx, evt.RunID, evt.Input, evt.TS); err != nil {
				return fmt.Errorf("start run: %w", err)
			}
		case progress.StageBatchWritten:
			d, ok := deltas[evt.RunID]
			if !ok {
				d = &runDelta{}
				deltas[evt.RunID] = d
				order = append(order, evt.RunID)
			}
			d.rows += evt.Rows
			d.batches++
		case progress.StageRunDone, progress.StageRunEmpty, progress.StageRunError:
			if err := s.flush(ctx, evt.RunID, deltas); err != nil {
				return err
			}
			if err := s.complete(ctx, evt); err != nil {
				return err
			}
		}
	}
	for _, id := range order {
		if err := s.flush(ctx, id, deltas); err != nil {
			return err
		}
	}
	return nil
}

func (s *StoreSink) flush(ctx context.Context, id uuid.UUID, deltas map[uuid.UUID]*runDelta) error {
	d, ok := deltas[id]
	if !ok || d.batches == 0 {
		return nil
	}
	if err := s.repo.AddBatches(ctx, id, d.rows, d.batches); err != nil {
		return fmt.Errorf("add batches: %w", err)
	}
	delete(deltas, id)
	return nil
}

func (s *StoreSink) complete(ctx context.Context, evt progress.Event) error {
	status := store.RunSuccess
	var note *string
	switch evt.Stage {
	case progress.StageRunEmpty:
		status = store.RunEmpty
	case progress.StageRunError:
		status = store.RunFailed
		if evt.Note != "" {
			msg := evt.Note
			note = &msg
		}
	}
	if err := s.repo.CompleteRun(ctx, evt.RunID, evt.TS, status, note); err != nil {
		return fmt.Errorf("complete run: %w", err)
	}
	return nil
}

// Close implements progress.Sink.
func (s *StoreSink) Close(context.Context) error {
	return nil
}
