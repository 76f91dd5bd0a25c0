// Package runner executes task graphs.
//
// Series composites run children in order and stop at the first failure. Parallel
// composites run every child on a bounded worker pool and wait for all of them, so
// sibling outputs are written even when one child fails. Exactly one reload event
// is emitted per successful top-level Run.
package runner

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/google/uuid"

	ferrors "git.home.luguber.info/inful/assetbuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/assetbuilder/internal/logfields"
	"git.home.luguber.info/inful/assetbuilder/internal/metrics"
	"git.home.luguber.info/inful/assetbuilder/internal/pipeline"
	"git.home.luguber.info/inful/assetbuilder/internal/sink"
	"git.home.luguber.info/inful/assetbuilder/internal/task"
)

// Notifier receives the reload event of a successful top-level run.
type Notifier interface {
	Notify(ctx context.Context, ev sink.ReloadEvent)
}

// Journal persists top-level run results.
type Journal interface {
	RecordRun(ctx context.Context, res Result) error
}

// Runner executes pipeline nodes against a source root.
type Runner struct {
	registry    *task.Registry
	sourceRoot  string
	maxParallel int
	notifier    Notifier
	journal     Journal
	recorder    metrics.Recorder
	logger      *slog.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithMaxParallel caps the workers of a parallel composite. Zero or less means
// runtime.NumCPU().
func WithMaxParallel(n int) Option {
	return func(r *Runner) { r.maxParallel = n }
}

// WithNotifier sets the receiver of reload events.
func WithNotifier(n Notifier) Option {
	return func(r *Runner) { r.notifier = n }
}

// WithJournal records every top-level run.
func WithJournal(j Journal) Option {
	return func(r *Runner) { r.journal = j }
}

// WithRecorder sets the metrics recorder.
func WithRecorder(m metrics.Recorder) Option {
	return func(r *Runner) { r.recorder = m }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// New returns a runner reading sources below sourceRoot. reg is used by RunTask and may be nil.
func New(reg *task.Registry, sourceRoot string, opts ...Option) *Runner {
	r := &Runner{
		registry:   reg,
		sourceRoot: sourceRoot,
		recorder:   metrics.NoopRecorder{},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SourceRoot returns the directory input patterns are resolved against.
func (r *Runner) SourceRoot() string { return r.sourceRoot }

// RunTask runs a single registered task as a top-level run.
func (r *Runner) RunTask(ctx context.Context, name string) (Result, error) {
	if r.registry == nil {
		return Result{}, ferrors.InternalError("runner has no task registry").Build()
	}
	t, err := r.registry.Lookup(name)
	if err != nil {
		return Result{}, err
	}
	return r.Run(ctx, pipeline.Leaf(t)), nil
}

// Run executes node to completion and returns its aggregated result. It is the
// top-level invocation: on success it emits one reload event and records the run.
func (r *Runner) Run(ctx context.Context, node *pipeline.Node) Result {
	runID := uuid.NewString()
	logger := r.logger.With(logfields.RunID(runID), logfields.Node(node.Name()))
	logger.Info("Run started", logfields.Mode(string(node.Mode())))

	res := r.exec(ctx, node, logger)
	res.RunID = runID

	outcome := metrics.ResultSuccess
	switch {
	case res.OK():
		logger.Info("Run completed",
			logfields.Outputs(res.OutputCount()),
			logfields.DurationMS(float64(res.Duration.Milliseconds())))
	case ctx.Err() != nil:
		outcome = metrics.ResultCanceled
		logger.Warn("Run canceled", logfields.Error(res.Err))
	default:
		outcome = metrics.ResultFailed
		logger.Error("Run failed", logfields.Error(res.Err))
	}
	r.recorder.ObserveRunDuration(node.Name(), res.Duration)
	r.recorder.IncRunOutcome(node.Name(), outcome)

	if res.OK() {
		r.emitReload(ctx, node, res)
	}
	if r.journal != nil {
		if err := r.journal.RecordRun(context.WithoutCancel(ctx), res); err != nil {
			logger.Warn("Failed to record run", logfields.Error(err))
		}
	}
	return res
}

func (r *Runner) exec(ctx context.Context, node *pipeline.Node, logger *slog.Logger) Result {
	switch node.Mode() {
	case pipeline.ModeLeaf:
		return r.runLeaf(ctx, node, logger)
	case pipeline.ModeSeries:
		return r.runSeries(ctx, node, logger)
	default:
		return r.runParallel(ctx, node, logger)
	}
}

func (r *Runner) runSeries(ctx context.Context, node *pipeline.Node, logger *slog.Logger) Result {
	res := Result{Node: node.Name(), Mode: node.Mode(), Started: time.Now()}
	for _, child := range node.Children() {
		cr := r.exec(ctx, child, logger)
		res.Children = append(res.Children, cr)
		res.Outputs = append(res.Outputs, cr.Outputs...)
		if !cr.OK() {
			res.Err = cr.Err
			break
		}
	}
	res.Duration = time.Since(res.Started)
	return res
}

func (r *Runner) runParallel(ctx context.Context, node *pipeline.Node, logger *slog.Logger) Result {
	res := Result{Node: node.Name(), Mode: node.Mode(), Started: time.Now()}
	children := node.Children()
	results := make([]Result, len(children))

	limit := r.maxParallel
	if limit <= 0 {
		limit = runtime.NumCPU()
	}
	workers := max(1, min(len(children), limit))
	sem := make(chan struct{}, workers)

	var wg sync.WaitGroup
	for i, child := range children {
		sem <- struct{}{}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			results[i] = r.exec(ctx, child, logger)
		}()
	}
	wg.Wait()

	var failures []error
	for _, cr := range results {
		res.Children = append(res.Children, cr)
		res.Outputs = append(res.Outputs, cr.Outputs...)
		if !cr.OK() {
			failures = append(failures, cr.Err)
		}
	}
	if len(failures) > 0 {
		res.Err = &ParallelError{Node: node.Name(), Failures: failures}
	}
	res.Duration = time.Since(res.Started)
	return res
}

func (r *Runner) runLeaf(ctx context.Context, node *pipeline.Node, logger *slog.Logger) (res Result) {
	t := node.Task()
	res = Result{Node: node.Name(), Mode: pipeline.ModeLeaf, Task: t.Name(), Started: time.Now()}
	logger = logger.With(logfields.Task(t.Name()))

	defer func() {
		if p := recover(); p != nil {
			res.Outputs = nil
			res.Err = &TaskError{Task: t.Name(), Err: ferrors.InternalError("transform panicked").
				WithContext("panic", fmt.Sprint(p)).
				Build()}
		}
		res.Duration = time.Since(res.Started)
		r.recorder.ObserveTaskDuration(t.Name(), res.Duration)
		switch {
		case res.Err != nil:
			r.recorder.IncTaskResult(t.Name(), metrics.ResultFailed)
			logger.Warn("Task failed", logfields.Error(res.Err))
		case len(res.Outputs) == 0:
			r.recorder.IncTaskResult(t.Name(), metrics.ResultEmpty)
		default:
			r.recorder.IncTaskResult(t.Name(), metrics.ResultSuccess)
		}
	}()

	if err := ctx.Err(); err != nil {
		res.Err = &TaskError{Task: t.Name(), Err: ferrors.WrapError(err, ferrors.CategoryRuntime, "run canceled before task started").Build()}
		return res
	}

	files, err := Match(r.sourceRoot, t.Patterns())
	if err != nil {
		res.Err = &TaskError{Task: t.Name(), Err: err}
		return res
	}
	if len(files) == 0 {
		logger.Debug("No input files matched; nothing to do")
		return res
	}

	logger.Debug("Task started", logfields.Files(len(files)))
	outputs, err := t.Transform()(ctx, task.Request{
		Task:       t.Name(),
		SourceRoot: r.sourceRoot,
		Patterns:   t.Patterns(),
		Files:      files,
		OutputDir:  t.OutputDir(),
	})
	if err != nil {
		res.Err = &TaskError{Task: t.Name(), Err: err}
		return res
	}
	res.Outputs = outputs
	logger.Debug("Task completed", logfields.Outputs(len(outputs)))
	return res
}

func (r *Runner) emitReload(ctx context.Context, node *pipeline.Node, res Result) {
	if r.notifier == nil {
		return
	}
	participating := map[string]bool{}
	for _, t := range node.Tasks() {
		if t.LiveReload() {
			participating[t.Name()] = true
		}
	}
	if len(participating) == 0 {
		return
	}
	var paths []string
	for _, leaf := range res.Leaves() {
		if participating[leaf.Task] {
			paths = append(paths, leaf.Outputs...)
		}
	}
	slices.Sort(paths)
	paths = slices.Compact(paths)
	if paths == nil {
		paths = []string{}
	}
	r.notifier.Notify(context.WithoutCancel(ctx), sink.ReloadEvent{
		RunID:     res.RunID,
		Entry:     node.Name(),
		Paths:     paths,
		Timestamp: time.Now(),
	})
}

// Match expands patterns below root. Patterns are slash-separated and may use "**";
// a leading "!" excludes matches of the remaining pattern. Results keep pattern
// order with duplicates removed. A missing root matches nothing.
func Match(root string, patterns []string) ([]string, error) {
	var includes, excludes []string
	for _, p := range patterns {
		p = filepath.ToSlash(strings.TrimSpace(p))
		if neg, ok := strings.CutPrefix(p, "!"); ok {
			excludes = append(excludes, cleanPattern(neg))
			continue
		}
		includes = append(includes, cleanPattern(p))
	}
	for _, p := range append(slices.Clone(includes), excludes...) {
		if !doublestar.ValidatePattern(p) {
			return nil, ferrors.ConfigError("invalid input pattern").WithContext("pattern", p).Build()
		}
	}

	fsys := os.DirFS(root)
	seen := map[string]bool{}
	var files []string
	for _, p := range includes {
		matches, err := doublestar.Glob(fsys, p, doublestar.WithFilesOnly())
		if err != nil {
			return nil, ferrors.WrapError(err, ferrors.CategoryFileSystem, "expand input pattern").
				WithContext("pattern", p).
				Build()
		}
		for _, m := range matches {
			if seen[m] || excluded(m, excludes) {
				continue
			}
			seen[m] = true
			files = append(files, m)
		}
	}
	return files, nil
}

func cleanPattern(p string) string {
	p = strings.TrimPrefix(path.Clean(p), "./")
	return strings.TrimPrefix(p, "/")
}

func excluded(name string, excludes []string) bool {
	for _, ex := range excludes {
		if ok, _ := doublestar.Match(ex, name); ok {
			return true
		}
	}
	return false
}
