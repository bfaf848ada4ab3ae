package pipeline

import (
	"context"

	"github.com/google/uuid"

	"github.com/JakeFAU/weblog-normalizer/internal/dispatcher"
	"github.com/JakeFAU/weblog-normalizer/internal/progress"
	"github.com/JakeFAU/weblog-normalizer/internal/weblog"
)

// ClassifyStage classifies the user agents of a batch on a bounded worker pool.
type ClassifyStage struct {
	classifier Classifier
	workers    int
	every      int
	emitter    progress.Emitter
	clock      Clock
}

// NewClassifyStage builds a stage. every is the progress checkpoint interval;
// a nil emitter discards progress.
func NewClassifyStage(c Classifier, workers, every int, emitter progress.Emitter, clock Clock) *ClassifyStage {
	if every <= 0 {
		every = dispatcher.DefaultProgressEvery
	}
	if emitter == nil {
		emitter = progress.Discard
	}
	if clock == nil {
		clock = utcClock{}
	}
	return &ClassifyStage{classifier: c, workers: max(1, workers), every: every, emitter: emitter, clock: clock}
}

// Run returns one classification per record, aligned with batch.Records.
// Classification never fails per item; an error means the context ended.
func (s *ClassifyStage) Run(ctx context.Context, runID uuid.UUID, input string, batch weblog.Batch) ([]weblog.Classification, error) {
	report := func(done, total int) {
		s.emitter.Emit(progress.Event{
			RunID:  runID,
			TS:     s.clock.Now(),
			Stage:  progress.StageClassifyProgress,
			Input:  input,
			Offset: batch.Offset,
			Done:   done,
			Total:  total,
		})
	}
	return dispatcher.Map(ctx, s.workers, batch.UserAgents(),
		func(_ context.Context, ua string) (weblog.Classification, error) {
			return s.classifier.Classify(ua), nil
		},
		dispatcher.WithProgress(s.every, report),
	)
}
