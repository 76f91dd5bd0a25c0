// Package sink receives completed-run artifacts: it owns the clean operation for the
// output root and fans reload events out to live-view listeners.
package sink

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	ferrors "git.home.luguber.info/inful/assetbuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/assetbuilder/internal/logfields"
	"git.home.luguber.info/inful/assetbuilder/internal/metrics"
)

// ReloadEvent is fired once per successful top-level run.
type ReloadEvent struct {
	RunID     string    `json:"run_id"`
	Entry     string    `json:"entry,omitempty"`
	Paths     []string  `json:"paths"`
	Timestamp time.Time `json:"timestamp"`
}

// Listener receives reload events. Delivery is at-most-once and best-effort.
type Listener interface {
	Name() string
	Notify(ctx context.Context, ev ReloadEvent) error
}

// ListenerFunc adapts a function into a Listener.
type ListenerFunc struct {
	ID string
	Fn func(ctx context.Context, ev ReloadEvent) error
}

func (l ListenerFunc) Name() string { return l.ID }

func (l ListenerFunc) Notify(ctx context.Context, ev ReloadEvent) error { return l.Fn(ctx, ev) }

// Sink fans reload events out to listeners. The zero value is not usable; call New.
type Sink struct {
	mu        sync.RWMutex
	nextID    int
	listeners map[int]Listener
	order     []int

	timeout  time.Duration
	logger   *slog.Logger
	recorder metrics.Recorder
}

// Option configures a Sink.
type Option func(*Sink)

// WithLogger sets the logger used for notification failures.
func WithLogger(l *slog.Logger) Option {
	return func(s *Sink) { s.logger = l }
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r metrics.Recorder) Option {
	return func(s *Sink) { s.recorder = r }
}

// WithNotifyTimeout bounds how long a single listener may take to accept an event.
func WithNotifyTimeout(d time.Duration) Option {
	return func(s *Sink) { s.timeout = d }
}

// New returns a sink without listeners.
func New(opts ...Option) *Sink {
	s := &Sink{
		listeners: make(map[int]Listener),
		timeout:   5 * time.Second,
		logger:    slog.Default(),
		recorder:  metrics.NoopRecorder{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Subscribe registers a listener and returns a function that removes it.
func (s *Sink) Subscribe(l Listener) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = l
	s.order = append(s.order, id)
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.listeners, id)
			s.order = slices.DeleteFunc(s.order, func(v int) bool { return v == id })
		})
	}
}

// Listeners returns the number of registered listeners.
func (s *Sink) Listeners() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.listeners)
}

// Notify delivers ev to every listener in subscription order. Failures are logged
// and counted; they never reach the caller.
func (s *Sink) Notify(ctx context.Context, ev ReloadEvent) {
	s.mu.RLock()
	targets := make([]Listener, 0, len(s.order))
	for _, id := range s.order {
		targets = append(targets, s.listeners[id])
	}
	s.mu.RUnlock()

	s.recorder.IncReloadEvent()
	for _, l := range targets {
		if err := s.deliver(ctx, l, ev); err != nil {
			s.recorder.IncNotificationFailure(l.Name())
			s.logger.Warn("Reload notification failed",
				logfields.Listener(l.Name()),
				logfields.RunID(ev.RunID),
				logfields.Error(err))
		}
	}
	s.logger.Debug("Reload event delivered",
		logfields.RunID(ev.RunID),
		logfields.Outputs(len(ev.Paths)),
		slog.Int("listeners", len(targets)))
}

func (s *Sink) deliver(ctx context.Context, l Listener, ev ReloadEvent) (err error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("listener panic: %v", r)
		}
		if err != nil {
			err = ferrors.WrapError(err, ferrors.CategoryNotification, "listener did not accept reload event").
				WithContext("listener", l.Name()).
				Warning().
				Build()
		}
	}()
	return l.Notify(ctx, ev)
}

// Clean removes and recreates root. See Clean.
func (s *Sink) Clean(root string) error {
	return Clean(root)
}
