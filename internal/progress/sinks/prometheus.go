package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/weblog-normalizer/internal/progress"
)

// PrometheusSink exports run and batch metrics.
type PrometheusSink struct {
	runsStarted   prometheus.Counter
	runsCompleted *prometheus.CounterVec
	runsRunning   prometheus.Gauge
	runDuration   *prometheus.HistogramVec

	batchesWritten prometheus.Counter
	rowsWritten    prometheus.Counter
	batchRows      prometheus.Histogram
	batchDuration  *prometheus.HistogramVec

	mu      sync.Mutex
	running map[uuid.UUID]struct{}
}

// NewPrometheusSink registers the collectors against reg, or the default
// registerer when reg is nil.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lognorm_runs_started_total",
			Help: "Normalization runs started.",
		}),
		runsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lognorm_runs_completed_total",
			Help: "Normalization runs finished, by terminal status.",
		}, []string{"status"}),
		runsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "lognorm_runs_running",
			Help: "Runs currently in flight.",
		}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "lognorm_run_duration_seconds",
			Help:    "Wall time per run, by terminal status.",
			Buckets: []float64{1, 5, 15, 30, 60, 300, 900, 1800, 3600},
		}, []string{"status"}),
		batchesWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lognorm_batches_written_total",
			Help: "Batches appended to the normalized store.",
		}),
		rowsWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lognorm_rows_written_total",
			Help: "Rows appended to the normalized store.",
		}),
		batchRows: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "lognorm_batch_rows",
			Help:    "Rows per batch.",
			Buckets: prometheus.ExponentialBuckets(1000, 4, 8),
		}),
		batchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "lognorm_batch_duration_seconds",
			Help:    "Time spent per batch, by stage.",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"stage"}),
		running: make(map[uuid.UUID]struct{}),
	}
	for _, c := range []prometheus.Collector{
		s.runsStarted, s.runsCompleted, s.runsRunning, s.runDuration,
		s.batchesWritten, s.rowsWritten, s.batchRows, s.batchDuration,
	} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates collectors from batch. Safe for concurrent use.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		switch evt.Stage {
		case progress.StageRunStart:
			s.runsStarted.Inc()
			if s.track(evt.RunID, true) {
				s.runsRunning.Inc()
			}
		case progress.StageBatchRead:
			s.observeStage("read", evt)
		case progress.StageBatchWritten:
			s.batchesWritten.Inc()
			s.rowsWritten.Add(float64(evt.Rows))
			s.batchRows.Observe(float64(evt.Rows))
			s.observeStage("write", evt)
		case progress.StageRunDone, progress.StageRunEmpty, progress.StageRunError:
			status := terminalStatus(evt.Stage)
			s.runsCompleted.WithLabelValues(status).Inc()
			if evt.Dur > 0 {
				s.runDuration.WithLabelValues(status).Observe(evt.Dur.Seconds())
			}
			if s.track(evt.RunID, false) {
				s.runsRunning.Dec()
			}
		}
	}
	return nil
}

func (s *PrometheusSink) observeStage(stage string, evt progress.Event) {
	if evt.Dur > 0 {
		s.batchDuration.WithLabelValues(stage).Observe(evt.Dur.Seconds())
	}
}

// track records a run as started (start=true) or finished and reports whether
// the running set changed.
func (s *PrometheusSink) track(id uuid.UUID, start bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.running[id]
	if start {
		if ok {
			return false
		}
		s.running[id] = struct{}{}
		return true
	}
	if !ok {
		return false
	}
	delete(s.running, id)
	return true
}

func terminalStatus(stage progress.Stage) string {
	switch stage {
	case progress.StageRunDone:
		return "success"
	case progress.StageRunEmpty:
		return "empty"
	default:
		return "failed"
	}
}

// Close implements progress.Sink.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}
