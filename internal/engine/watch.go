package engine

import (
	ferrors "git.home.luguber.info/inful/assetbuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/assetbuilder/internal/pipeline"
	"git.home.luguber.info/inful/assetbuilder/internal/runner"
	"git.home.luguber.info/inful/assetbuilder/internal/watch"
)

// Watcher builds a watch controller over the source root from the configured
// bindings and, when an interval is set, the periodic rebuild.
func (e *Engine) Watcher() (*watch.Controller, error) {
	wc := e.cfg.Watch
	bindings := make([]watch.Binding, 0, len(wc.Bindings))
	for _, bc := range wc.Bindings {
		node, err := e.targetNode(bc.Target, bc.Name)
		if err != nil {
			return nil, err
		}
		bindings = append(bindings, watch.Binding{Name: bc.Name, Patterns: bc.Patterns, Node: node})
	}

	opts := []watch.Option{
		watch.WithDebounce(wc.Debounce),
		watch.WithCoalesceTargets(wc.CoalesceTargets),
		watch.WithRecorder(e.recorder),
		watch.WithLogger(e.logger),
	}
	if wc.RebuildInterval > 0 {
		node, err := e.targetNode(wc.RebuildTarget, "periodic-rebuild")
		if err != nil {
			return nil, err
		}
		opts = append(opts, watch.WithPeriodicRebuild(wc.RebuildInterval, node))
	}
	return watch.New(e.cfg.SourceRoot(), e.runner, bindings, opts...)
}

func (e *Engine) targetNode(target, binding string) (*pipeline.Node, error) {
	plan, err := e.composer.Entry(target)
	if err != nil {
		return nil, err
	}
	if plan.Node == nil || plan.Clean {
		return nil, ferrors.ConfigError("watch target must build without cleaning").
			WithContext("binding", binding).
			WithContext("target", target).
			UserAction().
			Build()
	}
	return plan.Node, nil
}

// EntryKind says what an entry point name resolves to.
type EntryKind string

const (
	EntryPipeline EntryKind = "pipeline"
	EntryTask     EntryKind = "task"
	EntryClean    EntryKind = "clean"
)

// Entry describes one entry point.
type Entry struct {
	Name  string
	Kind  EntryKind
	Clean bool
	Graph string
}

// Entries lists every entry point with its composed graph.
func (e *Engine) Entries() ([]Entry, error) {
	pipelines := e.cfg.Pipelines
	names := e.cfg.Entries()
	out := make([]Entry, 0, len(names))
	for _, name := range names {
		plan, err := e.composer.Entry(name)
		if err != nil {
			return nil, err
		}
		ent := Entry{Name: name, Clean: plan.Clean}
		switch _, isPipeline := pipelines[name]; {
		case isPipeline:
			ent.Kind = EntryPipeline
		case name == pipeline.CleanEntry:
			ent.Kind = EntryClean
		default:
			ent.Kind = EntryTask
		}
		if plan.Node != nil {
			ent.Graph = plan.Node.String()
		}
		out = append(out, ent)
	}
	return out, nil
}

var _ watch.Runner = (*runner.Runner)(nil)
