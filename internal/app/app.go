// Package app initializes and holds long-lived application services, acting as
// a dependency injection container.
package app

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/storage"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/JakeFAU/weblog-normalizer/internal/clock/system"
	"github.com/JakeFAU/weblog-normalizer/internal/config"
	"github.com/JakeFAU/weblog-normalizer/internal/geo"
	"github.com/JakeFAU/weblog-normalizer/internal/id/uuid"
	"github.com/JakeFAU/weblog-normalizer/internal/logging"
	"github.com/JakeFAU/weblog-normalizer/internal/metrics"
	"github.com/JakeFAU/weblog-normalizer/internal/pipeline"
	"github.com/JakeFAU/weblog-normalizer/internal/planner"
	"github.com/JakeFAU/weblog-normalizer/internal/progress"
	"github.com/JakeFAU/weblog-normalizer/internal/progress/sinks"
	pubsubpublisher "github.com/JakeFAU/weblog-normalizer/internal/publisher/pubsub"
	"github.com/JakeFAU/weblog-normalizer/internal/query"
	"github.com/JakeFAU/weblog-normalizer/internal/storage/gcs"
	"github.com/JakeFAU/weblog-normalizer/internal/storage/local"
	"github.com/JakeFAU/weblog-normalizer/internal/storage/postgres"
	"github.com/JakeFAU/weblog-normalizer/internal/storage/sqlite"
	"github.com/JakeFAU/weblog-normalizer/internal/store"
	"github.com/JakeFAU/weblog-normalizer/internal/useragent"
)

// Options overrides services New would otherwise build from Config.
type Options struct {
	Logger *zap.Logger
	// Registerer and Gatherer default to the Prometheus globals.
	Registerer prometheus.Registerer
	Gatherer   prometheus.Gatherer
	// Runs replaces the Postgres ledger named by ledger.dsn.
	Runs      store.RunRepository
	Publisher pipeline.Publisher
	Prober    planner.Prober
}

// App holds the shared, long-lived services for one process. It is built
// once at startup and closed by the command that created it.
type App struct {
	cfg      config.Config
	logger   *zap.Logger
	hub      *progress.Hub
	runs     store.RunRepository
	locator  *local.Dir
	orch     *pipeline.Orchestrator
	prober   planner.Prober
	gatherer prometheus.Gatherer
	closers  []closer
}

type closer struct {
	name string
	fn   func() error
}

// New creates the services described by cfg. It fails fast when a configured
// backend cannot be reached.
func New(ctx context.Context, cfg config.Config, opts Options) (a *App, err error) {
	logger := opts.Logger
	if logger == nil {
		logger, err = logging.New(cfg.Logging.Development, cfg.Logging.Level)
		if err != nil {
			return nil, err
		}
	}
	a = &App{
		cfg:      cfg,
		logger:   logger,
		runs:     opts.Runs,
		prober:   opts.Prober,
		gatherer: opts.Gatherer,
	}
	if a.prober == nil {
		a.prober = planner.SystemProber{}
	}
	if a.gatherer == nil {
		a.gatherer = prometheus.DefaultGatherer
	}
	defer func() {
		if err != nil {
			if a.hub != nil {
				_ = a.hub.Close(ctx) //nolint:errcheck // construction already failed
			}
			a.closeAll()
		}
	}()

	if a.runs == nil && cfg.Ledger.DSN != "" {
		if err := a.openLedger(ctx); err != nil {
			return nil, err
		}
	}

	hubSinks := []progress.Sink{sinks.NewLogSink(logger.Named("progress"))}
	promSink, err := sinks.NewPrometheusSink(opts.Registerer)
	if err != nil {
		return nil, err
	}
	hubSinks = append(hubSinks, promSink)
	if a.runs != nil {
		hubSinks = append(hubSinks, sinks.NewStoreSink(a.runs, logger.Named("ledger")))
	}
	a.hub = progress.NewHub(progress.Config{
		BufferSize:    cfg.Progress.BufferSize,
		FlushInterval: cfg.Progress.FlushInterval,
		Logger:        logger.Named("hub"),
	}, hubSinks...)

	exclude := []string{}
	if cfg.Output.Driver == config.DriverSQLite {
		exclude = append(exclude, cfg.Output.Path, cfg.Output.Path+sqlite.PartialSuffix)
	}
	a.locator, err = local.NewDir(local.DirConfig{
		Root:      cfg.Input.Dir,
		Extension: cfg.Input.Extension,
		Exclude:   exclude,
	})
	if err != nil {
		return nil, err
	}

	geoOpener, err := a.geoOpener(ctx)
	if err != nil {
		return nil, err
	}

	pcfg := pipeline.Config{
		Locator:        a.locator,
		OpenSource:     a.openSource,
		OpenWriter:     a.openWriter,
		Classifier:     useragent.New(logger.Named("useragent")),
		GeoOpener:      geoOpener,
		GeoName:        cfg.Reference.GeoPath,
		Prober:         a.prober,
		Policy:         cfg.Planner.Policy(),
		Progress:       a.hub,
		ProgressEvery:  cfg.Progress.Every,
		DeleteConsumed: cfg.Input.DeleteConsumed,
		Clock:          system.New(),
		IDs:            uuid.New(),
		Logger:         logger.Named("pipeline"),
	}
	switch {
	case opts.Publisher != nil:
		pcfg.Publisher = opts.Publisher
		pcfg.Topic = cfg.PubSub.TopicName
	case cfg.PubSub.TopicName != "":
		pub, err := pubsubpublisher.Connect(ctx, cfg.PubSub.ProjectID, cfg.PubSub.TopicName, logger.Named("pubsub"))
		if err != nil {
			return nil, err
		}
		a.addCloser("pubsub", pub.Close)
		pcfg.Publisher = pub
		pcfg.Topic = cfg.PubSub.TopicName
	}

	a.orch, err = pipeline.New(pcfg)
	if err != nil {
		return nil, err
	}
	logger.Info("application services initialized",
		zap.String("input_dir", a.locator.Root()),
		zap.String("output_driver", cfg.Output.Driver),
		zap.Bool("ledger", a.runs != nil),
		zap.Bool("notifications", pcfg.Publisher != nil),
	)
	return a, nil
}

func (a *App) openLedger(ctx context.Context) error {
	pool, err := postgres.Connect(ctx, postgres.PoolConfig{DSN: a.cfg.Ledger.DSN})
	if err != nil {
		return fmt.Errorf("connect run ledger: %w", err)
	}
	runs, err := postgres.NewRunStore(pool)
	if err != nil {
		pool.Close()
		return err
	}
	a.addCloser("ledger", func() error { runs.Close(); return nil })
	if err := runs.EnsureSchema(ctx); err != nil {
		return err
	}
	a.runs = runs
	return nil
}

func (a *App) geoOpener(ctx context.Context) (geo.Opener, error) {
	path := a.cfg.Reference.GeoPath
	if !gcs.IsURI(path) {
		return local.Opener{}, nil
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	opener, err := gcs.New(client)
	if err != nil {
		return nil, err
	}
	a.addCloser("gcs", opener.Close)
	return opener, nil
}

func (a *App) openSource(ctx context.Context, path string) (pipeline.Source, error) {
	src, err := sqlite.OpenSource(ctx, path, a.cfg.Input.Table)
	if err != nil {
		return nil, err
	}
	return src, nil
}

func (a *App) openWriter(ctx context.Context) (pipeline.Writer, error) {
	logger := a.logger.Named("writer")
	if a.cfg.Output.Driver == config.DriverPostgres {
		pool, err := postgres.Connect(ctx, postgres.PoolConfig{DSN: a.cfg.Output.DSN})
		if err != nil {
			return nil, err
		}
		w, err := postgres.NewWriter(pool, a.cfg.Output.Table, logger)
		if err != nil {
			pool.Close()
			return nil, err
		}
		return w, nil
	}
	w, err := sqlite.NewWriter(a.cfg.Output.Path, a.cfg.Output.Table, logger)
	if err != nil {
		return nil, err
	}
	return w, nil
}

func (a *App) addCloser(name string, fn func() error) {
	a.closers = append(a.closers, closer{name: name, fn: fn})
}

// Logger returns the shared zap logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// Config returns the configuration the App was built from.
func (a *App) Config() config.Config { return a.cfg }

// Runs returns the run ledger, or nil when none is configured.
func (a *App) Runs() store.RunRepository { return a.runs }

// Locator returns the input store locator.
func (a *App) Locator() *local.Dir { return a.locator }

// Orchestrator returns the pipeline orchestrator.
func (a *App) Orchestrator() *pipeline.Orchestrator { return a.orch }

// Run executes one pipeline run.
func (a *App) Run(ctx context.Context) (pipeline.Result, error) {
	res, err := a.orch.Run(ctx)
	if err != nil {
		return res, fmt.Errorf("run %s: %w", res.RunID, err)
	}
	return res, nil
}

// OpenReader opens the normalized store for the read API.
func (a *App) OpenReader(ctx context.Context) (*sqlite.Reader, error) {
	if a.cfg.Output.Driver != config.DriverSQLite {
		return nil, fmt.Errorf("the read API requires the %s output driver", config.DriverSQLite)
	}
	r, err := sqlite.OpenReader(ctx, a.cfg.Output.Path, a.cfg.Output.Table)
	if err != nil {
		return nil, err
	}
	return r, nil
}

// QueryOptions sizes grouped reads from the planner and current host resources.
func (a *App) QueryOptions(ctx context.Context) query.Options {
	res, err := a.prober.Probe(ctx)
	if err != nil {
		a.logger.Warn("resource probe failed; grouped reads use the floor chunk size", zap.Error(err))
	}
	return query.Options{
		ChunkSize: int64(a.cfg.Server.ReadChunkSize),
		Resources: res,
		Policy:    a.cfg.Planner.Policy(),
	}
}

// Close drains the progress hub, pushes metrics when a Pushgateway is
// configured and releases backends. Every step runs even if an earlier one
// fails.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.hub != nil {
		if err := a.hub.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close progress hub: %w", err))
		}
	}
	if a.cfg.Metrics.PushURL != "" {
		if err := metrics.Push(ctx, a.cfg.Metrics.PushURL, a.cfg.Metrics.JobName, a.gatherer); err != nil {
			a.logger.Warn("metrics push failed", zap.Error(err))
			errs = append(errs, err)
		}
	}
	errs = append(errs, a.closeAll()...)
	_ = a.logger.Sync() //nolint:errcheck // stderr sync fails on some terminals
	return errors.Join(errs...)
}

func (a *App) closeAll() []error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.fn(); err != nil {
			a.logger.Warn("close failed", zap.String("service", c.name), zap.Error(err))
			errs = append(errs, fmt.Errorf("close %s: %w", c.name, err))
		}
	}
	a.closers = nil
	return errs
}
