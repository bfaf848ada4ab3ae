package sinks

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/weblog-normalizer/internal/progress"
)

// LogSink writes one structured line per event.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event. Classification checkpoints are rendered as a
// percentage of the batch; failures are logged at error level.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.Stringer("run_id", evt.RunID),
			zap.String("stage", string(evt.Stage)),
		}
		switch evt.Stage {
		case progress.StageClassifyProgress:
			s.logger.Info(fmt.Sprintf("classified %.2f%% of batch", evt.Percent()),
				append(fields, zap.Int64("offset", evt.Offset), zap.Int("done", evt.Done), zap.Int("total", evt.Total))...)
		case progress.StageBatchRead, progress.StageBatchWritten:
			s.logger.Info("batch progress",
				append(fields, zap.Int64("offset", evt.Offset), zap.Int64("rows", evt.Rows), zap.Duration("dur", evt.Dur))...)
		case progress.StageRunError:
			s.logger.Error("run failed", append(fields, zap.String("input", evt.Input), zap.String("note", evt.Note))...)
		default:
			s.logger.Info("run progress",
				append(fields, zap.String("input", evt.Input), zap.Int64("rows", evt.Rows), zap.Duration("dur", evt.Dur))...)
		}
	}
	return nil
}

// Close implements progress.Sink.
func (s *LogSink) Close(context.Context) error {
	return nil
}
