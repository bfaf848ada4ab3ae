package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JakeFAU/weblog-normalizer/internal/store"
)

// RunStore is an in-memory store.RunRepository used when no ledger database
// is configured.
type RunStore struct {
	mu   sync.RWMutex
	runs map[uuid.UUID]store.Run
}

// NewRunStore constructs an empty RunStore.
func NewRunStore() *RunStore {
	return &RunStore{runs: make(map[uuid.UUID]store.Run)}
}

// StartRun records a running run; repeated calls keep the first start.
func (s *RunStore) StartRun(_ context.Context, id uuid.UUID, input string, startedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[id]; ok {
		return nil
	}
	s.runs[id] = store.Run{ID: id, Input: input, StartedAt: startedAt.UTC(), Status: store.RunRunning}
	return nil
}

// AddBatches applies counter deltas.
func (s *RunStore) AddBatches(_ context.Context, id uuid.UUID, deltaRows, deltaBatches int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[id]
	if !ok {
		return fmt.Errorf("add batches %s: %w", id, store.ErrNotFound)
	}
	run.Rows += deltaRows
	run.Batches += deltaBatches
	s.runs[id] = run
	return nil
}

// CompleteRun records the terminal status. Runs never started are created so
// a failure before RUN_START still lands in the ledger.
func (s *RunStore) CompleteRun(
	_ context.Context,
	id uuid.UUID,
	finishedAt time.Time,
	status store.RunStatus,
	errMsg *string,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[id]
	if !ok {
		run = store.Run{ID: id, StartedAt: finishedAt.UTC()}
	}
	fin := finishedAt.UTC()
	run.FinishedAt = &fin
	run.Status = status
	run.ErrorMessage = errMsg
	s.runs[id] = run
	return nil
}

// GetRun fetches a run by ID.
func (s *RunStore) GetRun(_ context.Context, id uuid.UUID) (store.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[id]
	if !ok {
		return store.Run{}, store.ErrNotFound
	}
	return run, nil
}

// ListRuns returns runs newest first.
func (s *RunStore) ListRuns(_ context.Context, status *store.RunStatus, limit, offset int) ([]store.Run, error) {
	s.mu.RLock()
	runs := make([]store.Run, 0, len(s.runs))
	for _, r := range s.runs {
		if status != nil && r.Status != *status {
			continue
		}
		runs = append(runs, r)
	}
	s.mu.RUnlock()

	sort.Slice(runs, func(i, j int) bool { return runs[i].StartedAt.After(runs[j].StartedAt) })
	if offset >= len(runs) {
		return []store.Run{}, nil
	}
	runs = runs[offset:]
	if limit > 0 && limit < len(runs) {
		runs = runs[:limit]
	}
	return runs, nil
}
