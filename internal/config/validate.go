package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	ferrors "git.home.luguber.info/inful/assetbuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/assetbuilder/internal/transforms"
)

// Validate reports every configuration problem found as one configuration error.
// Pipeline graphs (unknown references, cycles) are checked by the composer.
func (c *Config) Validate() error {
	var problems []error
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Errorf(format, args...))
	}

	if c.Version != CurrentVersion {
		add("unsupported version %q (want %q)", c.Version, CurrentVersion)
	}
	if c.Paths.Source == "" {
		add("paths.source is required")
	}
	if c.Paths.Output == "" {
		add("paths.output is required")
	}
	if c.Paths.Source != "" && c.Paths.Output != "" && overlaps(c.SourceRoot(), c.OutputRoot()) {
		add("paths.source %q and paths.output %q must not contain each other", c.Paths.Source, c.Paths.Output)
	}
	if c.Runner.MaxParallel < 0 {
		add("runner.max_parallel must not be negative")
	}

	tasks := make(map[string]bool, len(c.Tasks))
	for i, t := range c.Tasks {
		switch {
		case t.Name == "":
			add("tasks[%d]: name is required", i)
		case tasks[t.Name]:
			add("tasks[%d]: duplicate task name %q", i, t.Name)
		case t.Name == "clean":
			add("tasks[%d]: %q is reserved", i, t.Name)
		}
		tasks[t.Name] = true
		if !slices.Contains(transforms.Kinds(), t.Kind) {
			add("task %q: unknown kind %q", t.Name, t.Kind)
		}
		if len(t.Inputs) == 0 {
			add("task %q: at least one input pattern is required", t.Name)
		}
		for _, p := range t.Inputs {
			if !validPattern(p) {
				add("task %q: invalid input pattern %q", t.Name, p)
			}
		}
	}

	for name := range c.Pipelines {
		if name == "clean" {
			add("pipelines: %q is reserved", name)
		}
	}
	exists := func(name string) bool {
		_, ok := c.Pipelines[name]
		return ok || tasks[name]
	}

	bindings := make(map[string]bool, len(c.Watch.Bindings))
	for i, b := range c.Watch.Bindings {
		if b.Name == "" {
			add("watch.bindings[%d]: name is required", i)
		} else if bindings[b.Name] {
			add("watch.bindings[%d]: duplicate binding name %q", i, b.Name)
		}
		bindings[b.Name] = true
		if len(b.Patterns) == 0 {
			add("watch binding %q: at least one pattern is required", b.Name)
		}
		for _, p := range b.Patterns {
			if !validPattern(p) {
				add("watch binding %q: invalid pattern %q", b.Name, p)
			}
		}
		if !exists(b.Target) {
			add("watch binding %q: unknown target %q", b.Name, b.Target)
		}
	}
	if c.Watch.Debounce < 0 {
		add("watch.debounce must not be negative")
	}
	if c.Watch.RebuildInterval < 0 {
		add("watch.rebuild_interval must not be negative")
	}
	if c.Watch.RebuildInterval > 0 && !exists(c.Watch.RebuildTarget) {
		add("watch.rebuild_target: unknown target %q", c.Watch.RebuildTarget)
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		add("server.port %d out of range", c.Server.Port)
	}
	if c.Notify.Timeout < 0 {
		add("notify.timeout must not be negative")
	}
	switch NormalizeLogLevel(c.Logging.Level) {
	case LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError:
	default:
		add("logging.level: unknown level %q", c.Logging.Level)
	}
	switch NormalizeLogFormat(c.Logging.Format) {
	case LogFormatText, LogFormatJSON:
	default:
		add("logging.format: unknown format %q", c.Logging.Format)
	}

	if len(problems) == 0 {
		return nil
	}
	return ferrors.WrapError(errors.Join(problems...), ferrors.CategoryConfig, "invalid configuration").
		WithContext("path", c.source).
		WithContext("problems", len(problems)).
		UserAction().
		Build()
}

func validPattern(p string) bool {
	if len(p) > 0 && p[0] == '!' {
		p = p[1:]
	}
	return p != "" && doublestar.ValidatePattern(p)
}

// overlaps reports whether a and b are the same directory or one is inside the other.
// Cleaning the output root must never reach the sources.
func overlaps(a, b string) bool {
	return within(a, b) || within(b, a)
}

func within(parent, child string) bool {
	rel, err := filepath.Rel(parent, child)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}
