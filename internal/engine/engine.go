// Package engine assembles a runnable build from configuration: it registers
// one task per configured transform, composes the named pipelines, and connects
// the runner to the reload sink and its listeners.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"path/filepath"

	prom "github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/assetbuilder/internal/config"
	ferrors "git.home.luguber.info/inful/assetbuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/assetbuilder/internal/history"
	"git.home.luguber.info/inful/assetbuilder/internal/livereload"
	"git.home.luguber.info/inful/assetbuilder/internal/logfields"
	"git.home.luguber.info/inful/assetbuilder/internal/manifest"
	"git.home.luguber.info/inful/assetbuilder/internal/metrics"
	"git.home.luguber.info/inful/assetbuilder/internal/natsnotify"
	"git.home.luguber.info/inful/assetbuilder/internal/pipeline"
	"git.home.luguber.info/inful/assetbuilder/internal/runner"
	"git.home.luguber.info/inful/assetbuilder/internal/sink"
	"git.home.luguber.info/inful/assetbuilder/internal/task"
	"git.home.luguber.info/inful/assetbuilder/internal/transforms"
)

// Engine owns every long-lived component of a build session.
type Engine struct {
	cfg      *config.Config
	logger   *slog.Logger
	registry *task.Registry
	composer *pipeline.Composer
	sink     *sink.Sink
	runner   *runner.Runner

	promRegistry *prom.Registry
	recorder     metrics.Recorder

	hub     *livereload.Hub
	nats    *natsnotify.Publisher
	history *history.SQLiteStore
}

type options struct {
	logger     *slog.Logger
	liveReload bool
	listeners  []sink.Listener
}

// Option configures New.
type Option func(*options)

// WithLogger sets the logger shared by all components.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithLiveReload subscribes a live-reload hub to the sink.
func WithLiveReload(enabled bool) Option {
	return func(o *options) { o.liveReload = enabled }
}

// WithListener subscribes an extra reload listener.
func WithListener(l sink.Listener) Option {
	return func(o *options) { o.listeners = append(o.listeners, l) }
}

// New validates cfg's task and pipeline graph and builds the engine. Failing
// to reach NATS is logged and the listener skipped; every other error is fatal.
func New(cfg *config.Config, opts ...Option) (*Engine, error) {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	e := &Engine{
		cfg:          cfg,
		logger:       o.logger,
		registry:     task.NewRegistry(),
		promRegistry: prom.NewRegistry(),
	}
	e.recorder = metrics.NewPrometheusRecorder(e.promRegistry)

	if err := e.registerTasks(); err != nil {
		return nil, err
	}
	e.composer = pipeline.NewComposer(e.registry, cfg.PipelineSpecs())
	if err := e.composer.Validate(); err != nil {
		return nil, err
	}

	e.sink = sink.New(
		sink.WithLogger(e.logger),
		sink.WithRecorder(e.recorder),
		sink.WithNotifyTimeout(cfg.Notify.Timeout),
	)
	e.sink.Subscribe(sink.LogListener{Logger: e.logger})
	if cfg.Notify.Manifest {
		e.sink.Subscribe(manifest.NewWriter(cfg.OutputRoot(), cfg.SourceRoot()))
	}
	if cfg.Notify.NATS.URL != "" {
		pub, err := natsnotify.Connect(cfg.Notify.NATS.URL, cfg.Notify.NATS.Subject)
		if err != nil {
			e.logger.Warn("NATS notifications disabled", logfields.Error(err))
		} else {
			e.nats = pub
			e.sink.Subscribe(pub)
		}
	}
	if o.liveReload {
		e.hub = livereload.NewHub(livereload.WithRecorder(e.recorder), livereload.WithLogger(e.logger))
		e.sink.Subscribe(e.hub)
	}
	for _, l := range o.listeners {
		e.sink.Subscribe(l)
	}

	runnerOpts := []runner.Option{
		runner.WithMaxParallel(cfg.Runner.MaxParallel),
		runner.WithNotifier(e.sink),
		runner.WithRecorder(e.recorder),
		runner.WithLogger(e.logger),
	}
	if cfg.History.Enabled {
		store, err := history.Open(cfg.Resolve(cfg.History.Path))
		if err != nil {
			_ = e.Close()
			return nil, err
		}
		e.history = store
		runnerOpts = append(runnerOpts, runner.WithJournal(store))
	}
	e.runner = runner.New(e.registry, cfg.SourceRoot(), runnerOpts...)
	return e, nil
}

func (e *Engine) registerTasks() error {
	outputRoot := e.cfg.OutputRoot()
	for _, tc := range e.cfg.Tasks {
		fn, err := transforms.New(tc.Kind, tc.Options)
		if err != nil {
			return err
		}
		out := filepath.Join(outputRoot, filepath.FromSlash(tc.Output))
		if _, err := e.registry.Register(tc.Name, tc.Inputs, fn, out, task.WithLiveReload(tc.LiveReloadEnabled())); err != nil {
			return err
		}
	}
	return nil
}

// Config returns the configuration the engine was built from.
func (e *Engine) Config() *config.Config { return e.cfg }

// Registry returns the task registry.
func (e *Engine) Registry() *task.Registry { return e.registry }

// Runner returns the task runner.
func (e *Engine) Runner() *runner.Runner { return e.runner }

// Sink returns the reload sink.
func (e *Engine) Sink() *sink.Sink { return e.sink }

// LiveReload returns the live-reload hub, or nil when it is disabled.
func (e *Engine) LiveReload() *livereload.Hub { return e.hub }

// MetricsHandler serves the engine's Prometheus registry.
func (e *Engine) MetricsHandler() http.Handler { return metrics.HTTPHandler(e.promRegistry) }

// Plan resolves a named entry point.
func (e *Engine) Plan(entry string) (pipeline.Plan, error) {
	return e.composer.Entry(entry)
}

// Clean removes and recreates the output root.
func (e *Engine) Clean() error {
	return e.sink.Clean(e.cfg.OutputRoot())
}

// Execute runs entry. The output root is cleaned first when the entry asks for
// it or when clean is set. The returned error is the run's failure, if any.
func (e *Engine) Execute(ctx context.Context, entry string, clean bool) (runner.Result, error) {
	plan, err := e.composer.Entry(entry)
	if err != nil {
		return runner.Result{}, err
	}
	if plan.Clean || clean {
		if err := e.Clean(); err != nil {
			return runner.Result{}, err
		}
		e.logger.Info("Output cleaned", logfields.Path(e.cfg.OutputRoot()), logfields.Entry(entry))
	}
	if plan.Node == nil {
		return runner.Result{Node: entry}, nil
	}
	res := e.runner.Run(ctx, plan.Node)
	return res, res.Err
}

// Close releases the hub, the NATS connection and the history store.
func (e *Engine) Close() error {
	var errs []error
	if e.hub != nil {
		e.hub.Shutdown()
	}
	if e.nats != nil {
		if err := e.nats.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if e.history != nil {
		if err := e.history.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return ferrors.WrapError(errors.Join(errs...), ferrors.CategoryRuntime, "close engine").Build()
	}
	return nil
}
