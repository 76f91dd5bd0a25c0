package pipeline

import (
	"errors"
	"maps"
	"slices"
	"strings"

	ferrors "git.home.luguber.info/inful/assetbuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/assetbuilder/internal/task"
)

// CleanEntry is the reserved entry point that only cleans the output root.
const CleanEntry = "clean"

var (
	ErrUnknownTask     = errors.New("unknown task")
	ErrUnknownPipeline = errors.New("unknown pipeline")
	ErrCycle           = errors.New("pipeline cycle")
	ErrInvalidSpec     = errors.New("invalid pipeline spec")
)

// Composer resolves specs against a task registry and a set of named pipelines.
type Composer struct {
	registry  *task.Registry
	pipelines map[string]Spec
}

// NewComposer returns a composer over reg. The pipelines map is copied.
func NewComposer(reg *task.Registry, pipelines map[string]Spec) *Composer {
	return &Composer{registry: reg, pipelines: maps.Clone(pipelines)}
}

// Pipelines returns the names of the configured pipelines, sorted.
func (c *Composer) Pipelines() []string {
	return slices.Sorted(maps.Keys(c.pipelines))
}

// Compose builds the graph for spec. It never runs a task.
func (c *Composer) Compose(spec Spec) (*Node, error) {
	return c.compose(spec, nil, "", true)
}

// Entry resolves a named entry point. Pipelines take precedence over tasks of the
// same name; "clean" without a pipeline of that name yields a clean-only plan.
func (c *Composer) Entry(name string) (Plan, error) {
	if spec, ok := c.pipelines[name]; ok {
		node, err := c.compose(spec, []string{name}, name, true)
		if err != nil {
			return Plan{}, err
		}
		return Plan{Name: name, Clean: spec.Clean, Node: node}, nil
	}
	if name == CleanEntry {
		return Plan{Name: name, Clean: true}, nil
	}
	if c.registry != nil && c.registry.Has(name) {
		t, err := c.registry.Lookup(name)
		if err != nil {
			return Plan{}, err
		}
		return Plan{Name: name, Node: Leaf(t)}, nil
	}
	return Plan{}, ferrors.WrapError(ErrUnknownPipeline, ferrors.CategoryConfig, "unknown entry point").
		WithContext("entry", name).
		Fatal().
		Build()
}

// Validate composes every named pipeline and joins all errors found.
func (c *Composer) Validate() error {
	var errs []error
	for _, name := range c.Pipelines() {
		if _, err := c.Entry(name); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// compose walks spec depth-first. stack holds the pipelines currently being
// composed; meeting one of them again is a cycle.
func (c *Composer) compose(spec Spec, stack []string, label string, root bool) (*Node, error) {
	if spec.kinds() != 1 {
		return nil, c.invalid("spec must set exactly one of task, pipeline, series or parallel", stack)
	}
	if spec.Clean && !root {
		return nil, c.invalid("clean is only allowed at the root of a pipeline", stack)
	}

	switch {
	case spec.Task != "":
		if c.registry == nil || !c.registry.Has(spec.Task) {
			return nil, ferrors.WrapError(ErrUnknownTask, ferrors.CategoryConfig, "pipeline references an unregistered task").
				WithContext("task", spec.Task).
				WithContext("pipeline", strings.Join(stack, " -> ")).
				Fatal().
				Build()
		}
		t, err := c.registry.Lookup(spec.Task)
		if err != nil {
			return nil, err
		}
		return Leaf(t), nil

	case spec.Pipeline != "":
		name := spec.Pipeline
		if idx := slices.Index(stack, name); idx >= 0 {
			path := append(slices.Clone(stack[idx:]), name)
			return nil, ferrors.WrapError(ErrCycle, ferrors.CategoryConfig, "pipeline references itself").
				WithContext("cycle", strings.Join(path, " -> ")).
				Fatal().
				Build()
		}
		ref, ok := c.pipelines[name]
		if !ok {
			return nil, ferrors.WrapError(ErrUnknownPipeline, ferrors.CategoryConfig, "pipeline references an unknown pipeline").
				WithContext("pipeline", name).
				Fatal().
				Build()
		}
		// A referenced pipeline's own clean flag is ignored: cleaning is an entry-point concern.
		ref.Clean = false
		return c.compose(ref, append(slices.Clone(stack), name), name, true)

	default:
		mode, specs := ModeSeries, spec.Series
		if spec.Parallel != nil {
			mode, specs = ModeParallel, spec.Parallel
		}
		children := make([]*Node, 0, len(specs))
		for _, child := range specs {
			n, err := c.compose(child, stack, "", false)
			if err != nil {
				return nil, err
			}
			children = append(children, n)
		}
		return composite(mode, label, children), nil
	}
}

func (c *Composer) invalid(msg string, stack []string) error {
	return ferrors.WrapError(ErrInvalidSpec, ferrors.CategoryConfig, msg).
		WithContext("pipeline", strings.Join(stack, " -> ")).
		Fatal().
		Build()
}
