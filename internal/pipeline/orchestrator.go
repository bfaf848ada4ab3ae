package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/weblog-normalizer/internal/geo"
	"github.com/JakeFAU/weblog-normalizer/internal/planner"
	"github.com/JakeFAU/weblog-normalizer/internal/progress"
	"github.com/JakeFAU/weblog-normalizer/internal/weblog"
)

// ErrNoInput reports that no candidate input store exists.
var ErrNoInput = errors.New("no input store found")

// State is a step of the run state machine.
type State int32

// Run states. Error is reachable from every state.
const (
	StateIdle State = iota
	StateSelectingInput
	StateDraining
	StateFinalizing
	StateDone
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSelectingInput:
		return "selecting_input"
	case StateDraining:
		return "draining"
	case StateFinalizing:
		return "finalizing"
	case StateDone:
		return "done"
	case StateError:
		return "error"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Status is the terminal outcome of a run.
type Status string

// Run outcomes.
const (
	StatusSuccess Status = "success"
	StatusEmpty   Status = "empty"
	StatusFailed  Status = "failed"
)

// Stage names where a run failed.
type Stage string

// Failure stages.
const (
	StageSelect    Stage = "select"
	StageOpen      Stage = "open"
	StageCount     Stage = "count"
	StageReference Stage = "reference"
	StageRead      Stage = "read"
	StageClassify  Stage = "classify"
	StageEnrich    Stage = "enrich"
	StageWrite     Stage = "write"
	StageFinalize  Stage = "finalize"
)

// StageError is the fatal failure of a run.
type StageError struct {
	Stage Stage
	// Offset is the batch offset being processed when the run failed.
	Offset int64
	Err    error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s at offset %d: %v", e.Stage, e.Offset, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Result summarizes one run.
type Result struct {
	RunID     uuid.UUID
	Status    Status
	Input     string
	Output    string
	Rows      int64
	Batches   int
	BatchSize int
	Workers   int
	// GeoEntries is the size of the reference index; zero when it was absent.
	GeoEntries   int
	Failure      *StageError
	Deleted      []string
	DeleteErrors []error
	StartedAt    time.Time
	Duration     time.Duration
}

// Config wires an Orchestrator.
type Config struct {
	Locator    Locator
	OpenSource SourceOpener
	OpenWriter WriterOpener
	Classifier Classifier

	// GeoOpener and GeoName locate the reference geo file. A nil opener runs
	// without enrichment.
	GeoOpener geo.Opener
	GeoName   string

	Prober planner.Prober
	Policy planner.Policy

	Progress      progress.Emitter
	ProgressEvery int

	// Publisher receives a Notification after every run when set.
	Publisher      Publisher
	Topic          string
	PublishTimeout time.Duration

	// DeleteConsumed removes every candidate seen at selection after a successful run.
	DeleteConsumed bool

	Clock  Clock
	IDs    IDGenerator
	Logger *zap.Logger
}

// Orchestrator drives runs. Run may be called repeatedly but never concurrently;
// overlapping calls are serialized.
type Orchestrator struct {
	cfg    Config
	logger *zap.Logger
	state  atomic.Int32
	mu     sync.Mutex
}

// New validates cfg and fills in defaults.
func New(cfg Config) (*Orchestrator, error) {
	switch {
	case cfg.Locator == nil:
		return nil, errors.New("locator is required")
	case cfg.OpenSource == nil:
		return nil, errors.New("source opener is required")
	case cfg.OpenWriter == nil:
		return nil, errors.New("writer opener is required")
	case cfg.Classifier == nil:
		return nil, errors.New("classifier is required")
	}
	if cfg.Prober == nil {
		cfg.Prober = planner.SystemProber{}
	}
	if cfg.Policy == (planner.Policy{}) {
		cfg.Policy = planner.DefaultPolicy()
	}
	if err := cfg.Policy.Validate(); err != nil {
		return nil, fmt.Errorf("planner policy: %w", err)
	}
	if cfg.Progress == nil {
		cfg.Progress = progress.Discard
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = 10 * time.Second
	}
	if cfg.Clock == nil {
		cfg.Clock = utcClock{}
	}
	if cfg.IDs == nil {
		cfg.IDs = v7IDs{}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Orchestrator{cfg: cfg, logger: cfg.Logger}, nil
}

// State returns the current state.
func (o *Orchestrator) State() State {
	return State(o.state.Load())
}

func (o *Orchestrator) setState(s State) {
	prev := State(o.state.Swap(int32(s)))
	if prev != s {
		o.logger.Info("state transition", zap.Stringer("from", prev), zap.Stringer("to", s))
	}
}

// Run performs one normalization run. The returned error is the run's
// StageError when it failed and nil for success and empty runs; res is always
// populated.
func (o *Orchestrator) Run(ctx context.Context) (res Result, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.setState(StateIdle)
	runID, err := o.cfg.IDs.NewRawID()
	if err != nil {
		o.setState(StateError)
		return Result{Status: StatusFailed}, fmt.Errorf("run id: %w", err)
	}
	res = Result{RunID: runID, StartedAt: o.cfg.Clock.Now()}
	log := o.logger.With(zap.Stringer("run_id", runID))

	o.setState(StateSelectingInput)
	candidates, err := o.selectInput(ctx)
	switch {
	case errors.Is(err, ErrNoInput):
		res.Status = StatusEmpty
		o.setState(StateDone)
		log.Info("nothing to process")
		o.finish(ctx, log, &res)
		return res, nil
	case err != nil:
		return o.fail(ctx, log, &res, &StageError{Stage: StageSelect, Err: err})
	}
	res.Input = candidates[0].Path
	log = log.With(zap.String("input", res.Input))
	o.emit(progress.Event{RunID: runID, Stage: progress.StageRunStart, Input: res.Input})
	log.Info("run started", zap.Int("candidates", len(candidates)))

	if serr := o.drain(ctx, log, &res); serr != nil {
		return o.fail(ctx, log, &res, serr)
	}
	res.Status = StatusSuccess
	o.setState(StateDone)

	if o.cfg.DeleteConsumed {
		o.dispose(ctx, log, candidates, &res)
	}
	o.finish(ctx, log, &res)
	return res, nil
}

func (o *Orchestrator) selectInput(ctx context.Context) ([]weblog.InputStore, error) {
	candidates, err := o.cfg.Locator.Candidates(ctx)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, ErrNoInput
	}
	return candidates, nil
}

// drain moves the selected input through read, classify, enrich and write,
// one batch at a time, then finalizes the output.
func (o *Orchestrator) drain(ctx context.Context, log *zap.Logger, res *Result) *StageError {
	o.setState(StateDraining)

	src, err := o.cfg.OpenSource(ctx, res.Input)
	if err != nil {
		return &StageError{Stage: StageOpen, Err: err}
	}
	defer func() {
		if cerr := src.Close(); cerr != nil {
			log.Warn("close input", zap.Error(cerr))
		}
	}()

	total, err := src.Count(ctx)
	if err != nil {
		return &StageError{Stage: StageCount, Err: err}
	}
	plan := o.plan(ctx, log)
	res.BatchSize, res.Workers = plan.BatchSize, plan.Workers

	lookup, serr := o.loadGeo(ctx, log, res)
	if serr != nil {
		return serr
	}

	w, err := o.cfg.OpenWriter(ctx)
	if err != nil {
		return &StageError{Stage: StageWrite, Err: err}
	}
	defer func() {
		if cerr := w.Close(); cerr != nil {
			log.Warn("close output", zap.Error(cerr))
		}
	}()
	res.Output = w.Path()
	log.Info("draining input",
		zap.Int64("rows", total),
		zap.Int("batch_size", plan.BatchSize),
		zap.Int("workers", plan.Workers),
		zap.String("output", res.Output),
	)

	if total == 0 {
		empty := weblog.NormalizedBatch{Schema: src.Schema().Output()}
		if err := w.Write(ctx, empty, true); err != nil {
			return &StageError{Stage: StageWrite, Err: err}
		}
	}

	stage := NewClassifyStage(o.cfg.Classifier, plan.Workers, o.cfg.ProgressEvery, o.cfg.Progress, o.cfg.Clock)
	size := int64(plan.BatchSize)
	for offset := int64(0); offset < total; offset += size {
		if err := ctx.Err(); err != nil {
			return &StageError{Stage: StageRead, Offset: offset, Err: err}
		}
		n, serr := o.processBatch(ctx, log, batchIO{src: src, w: w, stage: stage, lookup: lookup}, res, offset, size)
		if serr != nil {
			return serr
		}
		res.Rows += n
		res.Batches++
	}

	o.setState(StateFinalizing)
	if res.Rows != total {
		return &StageError{Stage: StageFinalize, Offset: total,
			Err: fmt.Errorf("read %d of %d input rows", res.Rows, total)}
	}
	written, err := w.Finalize(ctx)
	if err != nil {
		return &StageError{Stage: StageFinalize, Offset: total, Err: err}
	}
	if written != total {
		return &StageError{Stage: StageFinalize, Offset: total,
			Err: fmt.Errorf("output holds %d rows, input has %d", written, total)}
	}
	return nil
}

// batchIO groups what every batch of a run shares.
type batchIO struct {
	src    Source
	w      Writer
	stage  *ClassifyStage
	lookup GeoLookup
}

func (o *Orchestrator) processBatch(
	ctx context.Context,
	log *zap.Logger,
	env batchIO,
	res *Result,
	offset, size int64,
) (int64, *StageError) {
	start := o.cfg.Clock.Now()
	batch, err := env.src.ReadBatch(ctx, offset, size)
	if err != nil {
		return 0, &StageError{Stage: StageRead, Offset: offset, Err: err}
	}
	rows := int64(len(batch.Records))
	o.emit(progress.Event{RunID: res.RunID, Stage: progress.StageBatchRead, Input: res.Input, Offset: offset, Rows: rows})

	classes, err := env.stage.Run(ctx, res.RunID, res.Input, batch)
	if err != nil {
		return 0, &StageError{Stage: StageClassify, Offset: offset, Err: err}
	}
	normalized, err := Enrich(batch, classes, env.lookup)
	if err != nil {
		return 0, &StageError{Stage: StageEnrich, Offset: offset, Err: err}
	}
	if err := env.w.Write(ctx, normalized, offset == 0); err != nil {
		return 0, &StageError{Stage: StageWrite, Offset: offset, Err: err}
	}

	dur := o.cfg.Clock.Now().Sub(start)
	o.emit(progress.Event{
		RunID:  res.RunID,
		Stage:  progress.StageBatchWritten,
		Input:  res.Input,
		Offset: offset,
		Rows:   rows,
		Dur:    max(dur, 0),
	})
	log.Info("batch written", zap.Int64("offset", offset), zap.Int64("rows", rows), zap.Duration("duration", dur))
	return rows, nil
}

func (o *Orchestrator) plan(ctx context.Context, log *zap.Logger) planner.Plan {
	resources, err := o.cfg.Prober.Probe(ctx)
	if err != nil {
		// The floor batch size applies when memory is unknown.
		log.Warn("resource probe failed, using minimum batch size", zap.Error(err))
		resources.AvailableMemoryBytes = 0
	}
	return planner.Compute(resources, o.cfg.Policy)
}

// loadGeo builds the reference index once per run. A missing or malformed
// reference file disables enrichment and is logged once.
func (o *Orchestrator) loadGeo(ctx context.Context, log *zap.Logger, res *Result) (GeoLookup, *StageError) {
	if o.cfg.GeoOpener == nil || o.cfg.GeoName == "" {
		log.Info("no reference geo file configured, enrichment disabled")
		return nil, nil
	}
	idx, err := geo.Load(ctx, o.cfg.GeoOpener, o.cfg.GeoName)
	switch {
	case errors.Is(err, geo.ErrReferenceMissing):
		log.Warn("reference geo file absent, enrichment disabled", zap.String("reference", o.cfg.GeoName))
		return nil, nil
	case errors.Is(err, geo.ErrReferenceInvalid):
		log.Warn("reference geo file unusable, enrichment disabled",
			zap.String("reference", o.cfg.GeoName), zap.Error(err))
		return nil, nil
	case err != nil:
		return nil, &StageError{Stage: StageReference, Err: err}
	}
	res.GeoEntries = idx.Len()
	log.Info("reference geo index loaded",
		zap.Int("entries", idx.Len()),
		zap.Int("duplicates", idx.Duplicates()),
		zap.Int("skipped", idx.Skipped()),
	)
	return idx, nil
}

// dispose removes the consumed input and every older candidate. Failures are
// recorded but never change the run status.
func (o *Orchestrator) dispose(ctx context.Context, log *zap.Logger, candidates []weblog.InputStore, res *Result) {
	for _, c := range candidates {
		if err := o.cfg.Locator.Remove(ctx, c.Path); err != nil {
			log.Warn("delete consumed input", zap.String("path", c.Path), zap.Error(err))
			res.DeleteErrors = append(res.DeleteErrors, err)
			continue
		}
		res.Deleted = append(res.Deleted, c.Path)
	}
	log.Info("consumed inputs deleted", zap.Int("deleted", len(res.Deleted)), zap.Int("failed", len(res.DeleteErrors)))
}

func (o *Orchestrator) fail(ctx context.Context, log *zap.Logger, res *Result, serr *StageError) (Result, error) {
	res.Status = StatusFailed
	res.Failure = serr
	o.setState(StateError)
	log.Error("run failed",
		zap.String("stage", string(serr.Stage)),
		zap.Int64("offset", serr.Offset),
		zap.Error(serr.Err),
	)
	o.finish(ctx, log, res)
	return *res, serr
}

// finish reports the terminal status. Notification failures are logged only.
func (o *Orchestrator) finish(ctx context.Context, log *zap.Logger, res *Result) {
	res.Duration = max(o.cfg.Clock.Now().Sub(res.StartedAt), 0)
	evt := progress.Event{RunID: res.RunID, Input: res.Input, Rows: res.Rows, Dur: res.Duration}
	switch res.Status {
	case StatusSuccess:
		evt.Stage = progress.StageRunDone
	case StatusEmpty:
		evt.Stage = progress.StageRunEmpty
	default:
		evt.Stage = progress.StageRunError
		if res.Failure != nil {
			evt.Note = res.Failure.Error()
		}
	}
	o.emit(evt)
	log.Info("run finished",
		zap.String("status", string(res.Status)),
		zap.Int64("rows", res.Rows),
		zap.Int("batches", res.Batches),
		zap.Duration("duration", res.Duration),
	)

	if o.cfg.Publisher == nil {
		return
	}
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.cfg.PublishTimeout)
	defer cancel()
	id, err := o.cfg.Publisher.Publish(pctx, o.cfg.Topic, NewNotification(*res, o.cfg.Clock.Now()))
	if err != nil {
		log.Warn("publish run notification", zap.Error(err))
		return
	}
	log.Debug("run notification published", zap.String("message_id", id))
}

func (o *Orchestrator) emit(evt progress.Event) {
	if evt.TS.IsZero() {
		evt.TS = o.cfg.Clock.Now()
	}
	o.cfg.Progress.Emit(evt)
}

type utcClock struct{}

func (utcClock) Now() time.Time { return time.Now().UTC() }

type v7IDs struct{}

func (v7IDs) NewRawID() (uuid.UUID, error) { return uuid.NewV7() }
