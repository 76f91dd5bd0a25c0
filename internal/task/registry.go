package task

import (
	"errors"
	"slices"
	"sort"
	"strings"
	"sync"

	ferrors "git.home.luguber.info/inful/assetbuilder/internal/foundation/errors"
)

var (
	// ErrDuplicateName is the cause of the error returned when a task name is registered twice.
	ErrDuplicateName = errors.New("duplicate task name")
	// ErrNotFound is the cause of the error returned by Lookup for an unknown name.
	ErrNotFound = errors.New("task not found")
)

// Registry holds the set of named tasks. The zero value is not usable; call NewRegistry.
type Registry struct {
	mu    sync.RWMutex
	tasks map[string]*Task
	order []string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{tasks: make(map[string]*Task)}
}

// Register adds a task. Registering an existing name fails with ErrDuplicateName.
func (r *Registry) Register(name string, patterns []string, fn TransformFunc, outputDir string, opts ...Option) (*Task, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ferrors.ConfigError("task name is required").Build()
	}
	if fn == nil {
		return nil, ferrors.ConfigError("task transform is required").WithContext("task", name).Build()
	}
	if len(patterns) == 0 {
		return nil, ferrors.ConfigError("task needs at least one input pattern").WithContext("task", name).Build()
	}
	if outputDir == "" {
		return nil, ferrors.ConfigError("task output directory is required").WithContext("task", name).Build()
	}

	t := &Task{
		name:       name,
		patterns:   slices.Clone(patterns),
		transform:  fn,
		outputDir:  outputDir,
		liveReload: true,
	}
	for _, opt := range opts {
		opt(t)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tasks[name]; exists {
		return nil, ferrors.WrapError(ErrDuplicateName, ferrors.CategoryConfig, "task already registered").
			WithContext("task", name).
			Fatal().
			Build()
	}
	r.tasks[name] = t
	r.order = append(r.order, name)
	return t, nil
}

// Lookup returns the task registered under name.
func (r *Registry) Lookup(name string) (*Task, error) {
	r.mu.RLock()
	t, ok := r.tasks[name]
	r.mu.RUnlock()
	if !ok {
		return nil, ferrors.WrapError(ErrNotFound, ferrors.CategoryNotFound, "task not registered").
			WithContext("task", name).
			Build()
	}
	return t, nil
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tasks[name]
	return ok
}

// Names returns registered task names sorted alphabetically.
func (r *Registry) Names() []string {
	r.mu.RLock()
	names := slices.Clone(r.order)
	r.mu.RUnlock()
	sort.Strings(names)
	return names
}

// Tasks returns the registered tasks in registration order.
func (r *Registry) Tasks() []*Task {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Task, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tasks[name])
	}
	return out
}

// Len returns the number of registered tasks.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tasks)
}
