// Package watch re-runs pipeline nodes when their source files change.
//
// Every binding is either Idle or Running and carries one pending flag. A change
// that arrives while the binding runs only sets the flag, so any number of changes
// during a run collapse into a single follow-up run that reads the tree afresh.
package watch

import (
	"context"
	"log/slog"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"golang.org/x/text/unicode/norm"

	ferrors "git.home.luguber.info/inful/assetbuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/assetbuilder/internal/logfields"
	"git.home.luguber.info/inful/assetbuilder/internal/metrics"
	"git.home.luguber.info/inful/assetbuilder/internal/pipeline"
	"git.home.luguber.info/inful/assetbuilder/internal/runner"
)

// State is a binding's run state.
type State int

const (
	Idle State = iota
	Running
)

func (s State) String() string {
	if s == Running {
		return "running"
	}
	return "idle"
}

// Runner executes a node. *runner.Runner satisfies it.
type Runner interface {
	Run(ctx context.Context, node *pipeline.Node) runner.Result
}

// Binding ties source patterns to the node that rebuilds them.
type Binding struct {
	Name     string
	Patterns []string
	Node     *pipeline.Node
}

type binding struct {
	Binding

	mu      sync.Mutex
	state   State
	pending bool
	runs    int
}

// Controller dispatches file changes to bindings.
type Controller struct {
	root     string
	runner   Runner
	bindings []*binding
	debounce time.Duration
	coalesce bool
	interval time.Duration
	rebuild  *binding
	recorder metrics.Recorder
	logger   *slog.Logger

	mu       sync.Mutex
	stopping bool
	runCtx   context.Context
	wg       sync.WaitGroup
	queued   map[*binding]struct{}
	timer    *time.Timer
}

// Option configures a Controller.
type Option func(*Controller)

// WithDebounce collects changes for d before dispatching them. Zero dispatches
// every change immediately.
func WithDebounce(d time.Duration) Option {
	return func(c *Controller) { c.debounce = d }
}

// WithCoalesceTargets runs a node once when several bindings that target the same
// node match one change or one debounce window.
func WithCoalesceTargets(enabled bool) Option {
	return func(c *Controller) { c.coalesce = enabled }
}

// WithPeriodicRebuild runs node every interval while watching.
func WithPeriodicRebuild(interval time.Duration, node *pipeline.Node) Option {
	return func(c *Controller) {
		c.interval = interval
		if node != nil {
			c.rebuild = &binding{Binding: Binding{Name: "periodic-rebuild", Node: node}}
		}
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r metrics.Recorder) Option {
	return func(c *Controller) { c.recorder = r }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// New returns a controller watching root. Binding patterns are relative to root.
func New(root string, r Runner, bindings []Binding, opts ...Option) (*Controller, error) {
	c := &Controller{
		root:     root,
		runner:   r,
		recorder: metrics.NoopRecorder{},
		logger:   slog.Default(),
		runCtx:   context.Background(),
		queued:   map[*binding]struct{}{},
	}
	seen := map[string]bool{}
	for _, b := range bindings {
		if b.Name == "" || b.Node == nil {
			return nil, ferrors.ConfigError("watch binding needs a name and a target").
				WithContext("binding", b.Name).
				Build()
		}
		if seen[b.Name] {
			return nil, ferrors.ConfigError("duplicate watch binding").WithContext("binding", b.Name).Build()
		}
		seen[b.Name] = true
		for _, p := range b.Patterns {
			if !doublestar.ValidatePattern(cleanPattern(p)) {
				return nil, ferrors.ConfigError("invalid watch pattern").
					WithContext("binding", b.Name).
					WithContext("pattern", p).
					Build()
			}
		}
		c.bindings = append(c.bindings, &binding{Binding: b})
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Bindings returns the configured binding names in order.
func (c *Controller) Bindings() []string {
	names := make([]string, 0, len(c.bindings))
	for _, b := range c.bindings {
		names = append(names, b.Name)
	}
	return names
}

// Trigger reports a change of the slash-separated path rel, relative to the root.
func (c *Controller) Trigger(rel string) {
	rel = norm.NFC.String(strings.TrimPrefix(path.Clean(filepath.ToSlash(rel)), "./"))
	var matched []*binding
	for _, b := range c.bindings {
		if matches(b.Patterns, rel) {
			matched = append(matched, b)
		}
	}
	if len(matched) == 0 {
		return
	}
	c.logger.Debug("Change detected", logfields.Path(rel), slog.Int("bindings", len(matched)))

	if c.debounce <= 0 {
		c.dispatch(matched)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopping {
		return
	}
	for _, b := range matched {
		c.queued[b] = struct{}{}
	}
	if c.timer == nil {
		c.timer = time.AfterFunc(c.debounce, c.flush)
	}
}

func (c *Controller) flush() {
	c.mu.Lock()
	c.timer = nil
	var batch []*binding
	for _, b := range c.bindings {
		if _, ok := c.queued[b]; ok {
			batch = append(batch, b)
		}
	}
	clear(c.queued)
	c.mu.Unlock()
	c.dispatch(batch)
}

// dispatch fires every binding of one change set, collapsing bindings that share
// a target node when coalescing is on.
func (c *Controller) dispatch(batch []*binding) {
	targets := map[string]bool{}
	for _, b := range batch {
		if c.coalesce {
			key := b.Node.Name()
			if targets[key] {
				c.logger.Debug("Skipping binding with an already triggered target", logfields.Binding(b.Name), logfields.Node(key))
				continue
			}
			targets[key] = true
		}
		c.fire(b)
	}
}

// fire moves an Idle binding to Running, or marks a Running binding pending.
func (c *Controller) fire(b *binding) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopping {
		return
	}

	b.mu.Lock()
	if b.state == Running {
		b.pending = true
		b.mu.Unlock()
		c.recorder.IncWatchTrigger(b.Name, true)
		return
	}
	b.state = Running
	b.mu.Unlock()
	c.recorder.IncWatchTrigger(b.Name, false)

	c.wg.Add(1)
	go c.loop(c.runCtx, b)
}

func (c *Controller) loop(ctx context.Context, b *binding) {
	defer c.wg.Done()
	for {
		logger := c.logger.With(logfields.Binding(b.Name), logfields.Node(b.Node.Name()))
		logger.Info("Running watch target")
		res := c.runner.Run(ctx, b.Node)
		if !res.OK() {
			logger.Warn("Watch target failed; waiting for the next change", logfields.Error(res.Err))
		}

		c.mu.Lock()
		stopping := c.stopping
		c.mu.Unlock()

		b.mu.Lock()
		b.runs++
		if b.pending && !stopping {
			b.pending = false
			b.mu.Unlock()
			continue
		}
		b.pending = false
		b.state = Idle
		b.mu.Unlock()
		return
	}
}

// State returns the state and pending flag of the named binding.
func (c *Controller) State(name string) (State, bool, error) {
	b := c.lookup(name)
	if b == nil {
		return Idle, false, ferrors.NotFoundError("unknown watch binding").WithContext("binding", name).Build()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state, b.pending, nil
}

// Runs returns how many runs of the named binding have completed.
func (c *Controller) Runs(name string) int {
	b := c.lookup(name)
	if b == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.runs
}

func (c *Controller) lookup(name string) *binding {
	for _, b := range c.bindings {
		if b.Name == name {
			return b
		}
	}
	if c.rebuild != nil && c.rebuild.Name == name {
		return c.rebuild
	}
	return nil
}

// Shutdown stops accepting changes, drops pending follow-ups and waits for
// in-flight runs to finish.
func (c *Controller) Shutdown() {
	c.mu.Lock()
	c.stopping = true
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	clear(c.queued)
	c.mu.Unlock()

	c.wg.Wait()
}

func cleanPattern(p string) string {
	p = strings.TrimPrefix(strings.TrimSpace(filepath.ToSlash(p)), "!")
	return strings.TrimPrefix(path.Clean(p), "./")
}

// matches applies the include and "!" exclude patterns to rel.
func matches(patterns []string, rel string) bool {
	included := false
	for _, p := range patterns {
		if strings.HasPrefix(strings.TrimSpace(p), "!") {
			if ok, _ := doublestar.Match(cleanPattern(p), rel); ok {
				return false
			}
			continue
		}
		if !included {
			included, _ = doublestar.Match(cleanPattern(p), rel)
		}
	}
	return included
}
