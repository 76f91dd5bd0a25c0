// Package task holds the registry of named transform tasks.
//
// A Task is registered once at startup and never changes afterwards. The registry
// is append-only, so the runner and the watch controller can read it concurrently
// without coordination beyond the registry's own lock.
package task

import (
	"context"
	"slices"
)

// Request is what a transform receives for one invocation.
//
// Files are slash-separated paths relative to SourceRoot, in pattern order with
// duplicates removed. Patterns are the task's input patterns, which transforms use
// to find the base directory each file's output path is relative to. OutputDir is
// the task's output directory as registered.
type Request struct {
	Task       string
	SourceRoot string
	Patterns   []string
	Files      []string
	OutputDir  string
}

// TransformFunc turns the matched source files into output files and returns the
// paths it wrote. Errors are surfaced verbatim as the task's failure; the runner
// never retries.
//
// Implementations must not leave partially written files behind: write to a
// temporary file and rename.
type TransformFunc func(ctx context.Context, req Request) ([]string, error)

// Task is a registered, immutable unit of work.
type Task struct {
	name       string
	patterns   []string
	transform  TransformFunc
	outputDir  string
	liveReload bool
}

// Name returns the task's unique name.
func (t *Task) Name() string { return t.name }

// Patterns returns a copy of the ordered input glob patterns.
func (t *Task) Patterns() []string { return slices.Clone(t.patterns) }

// OutputDir returns the directory the task writes into.
func (t *Task) OutputDir() string { return t.outputDir }

// LiveReload reports whether the task's outputs are announced to live-reload clients.
func (t *Task) LiveReload() bool { return t.liveReload }

// Transform returns the transform bound to the task.
func (t *Task) Transform() TransformFunc { return t.transform }

// Option customises a Task at registration time.
type Option func(*Task)

// WithLiveReload sets whether the task's outputs participate in reload notifications.
func WithLiveReload(enabled bool) Option {
	return func(t *Task) { t.liveReload = enabled }
}
