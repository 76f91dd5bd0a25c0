package config

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"git.home.luguber.info/inful/assetbuilder/internal/pipeline"
)

// PipelineSpec is the configuration form of a pipeline. It accepts:
//
//	build: styles                      # a task or pipeline name
//	build: [clean-css, styles]         # shorthand for series
//	build: {parallel: [html, styles]}  # explicit series/parallel
//	release: {clean: true, series: [build]}
//
// Names resolve to pipelines first and to tasks otherwise.
type PipelineSpec struct {
	Name     string
	Series   []PipelineSpec
	Parallel []PipelineSpec
	Clean    bool
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (p *PipelineSpec) UnmarshalYAML(node *yaml.Node) error {
	var raw any
	if err := node.Decode(&raw); err != nil {
		return err
	}
	spec, err := specFromAny(raw)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*p = spec
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (p PipelineSpec) MarshalYAML() (any, error) {
	return p.toAny(), nil
}

// UnmarshalTOML implements toml.Unmarshaler.
func (p *PipelineSpec) UnmarshalTOML(data any) error {
	spec, err := specFromAny(data)
	if err != nil {
		return err
	}
	*p = spec
	return nil
}

// MarshalTOML implements toml.Marshaler, rendering the pipeline as an inline value.
func (p PipelineSpec) MarshalTOML() ([]byte, error) {
	return []byte(p.tomlValue()), nil
}

func specFromAny(v any) (PipelineSpec, error) {
	switch val := v.(type) {
	case string:
		if strings.TrimSpace(val) == "" {
			return PipelineSpec{}, fmt.Errorf("empty pipeline step")
		}
		return PipelineSpec{Name: strings.TrimSpace(val)}, nil
	case []any:
		children, err := specsFromAny(val)
		if err != nil {
			return PipelineSpec{}, err
		}
		return PipelineSpec{Series: children}, nil
	case map[string]any:
		var spec PipelineSpec
		kinds := 0
		for key, raw := range val {
			switch key {
			case "task", "pipeline", "name":
				name, ok := raw.(string)
				if !ok || strings.TrimSpace(name) == "" {
					return PipelineSpec{}, fmt.Errorf("%s must be a non-empty string", key)
				}
				spec.Name = strings.TrimSpace(name)
				kinds++
			case "series", "parallel":
				list, ok := raw.([]any)
				if !ok {
					return PipelineSpec{}, fmt.Errorf("%s must be a list", key)
				}
				children, err := specsFromAny(list)
				if err != nil {
					return PipelineSpec{}, fmt.Errorf("%s: %w", key, err)
				}
				if key == "series" {
					spec.Series = children
				} else {
					spec.Parallel = children
				}
				kinds++
			case "clean":
				b, ok := raw.(bool)
				if !ok {
					return PipelineSpec{}, fmt.Errorf("clean must be a boolean")
				}
				spec.Clean = b
			default:
				return PipelineSpec{}, fmt.Errorf("unknown pipeline key %q", key)
			}
		}
		if kinds > 1 {
			return PipelineSpec{}, fmt.Errorf("pipeline step sets more than one of task, pipeline, series or parallel")
		}
		if kinds == 0 && !spec.Clean {
			return PipelineSpec{}, fmt.Errorf("pipeline step is empty")
		}
		return spec, nil
	case nil:
		return PipelineSpec{}, fmt.Errorf("empty pipeline step")
	default:
		return PipelineSpec{}, fmt.Errorf("unsupported pipeline step of type %T", v)
	}
}

func specsFromAny(list []any) ([]PipelineSpec, error) {
	out := make([]PipelineSpec, 0, len(list))
	for i, item := range list {
		spec, err := specFromAny(item)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", i+1, err)
		}
		out = append(out, spec)
	}
	return out, nil
}

func (p PipelineSpec) toAny() any {
	if p.Name != "" && !p.Clean {
		return p.Name
	}
	m := map[string]any{}
	switch {
	case p.Name != "":
		m["name"] = p.Name
	case p.Parallel != nil:
		m["parallel"] = childrenAny(p.Parallel)
	case p.Series != nil:
		m["series"] = childrenAny(p.Series)
	}
	if p.Clean {
		m["clean"] = true
	}
	return m
}

func childrenAny(specs []PipelineSpec) []any {
	out := make([]any, 0, len(specs))
	for _, s := range specs {
		out = append(out, s.toAny())
	}
	return out
}

func (p PipelineSpec) tomlValue() string {
	if p.Name != "" && !p.Clean {
		return strconv.Quote(p.Name)
	}
	var parts []string
	switch {
	case p.Name != "":
		parts = append(parts, "name = "+strconv.Quote(p.Name))
	case p.Parallel != nil:
		parts = append(parts, "parallel = "+tomlList(p.Parallel))
	case p.Series != nil:
		parts = append(parts, "series = "+tomlList(p.Series))
	}
	if p.Clean {
		parts = append(parts, "clean = true")
	}
	return "{ " + strings.Join(parts, ", ") + " }"
}

func tomlList(specs []PipelineSpec) string {
	items := make([]string, 0, len(specs))
	for _, s := range specs {
		items = append(items, s.tomlValue())
	}
	return "[" + strings.Join(items, ", ") + "]"
}

// Spec converts to the composer's form. Names found in pipelines become pipeline
// references, all other names task references.
func (p PipelineSpec) Spec(pipelines map[string]PipelineSpec) pipeline.Spec {
	var out pipeline.Spec
	switch {
	case p.Name != "":
		if _, ok := pipelines[p.Name]; ok {
			out = pipeline.Ref(p.Name)
		} else {
			out = pipeline.TaskSpec(p.Name)
		}
	case p.Parallel != nil:
		out = pipeline.ParallelOf(convert(p.Parallel, pipelines)...)
	default:
		out = pipeline.SeriesOf(convert(p.Series, pipelines)...)
	}
	out.Clean = p.Clean
	return out
}

func convert(specs []PipelineSpec, pipelines map[string]PipelineSpec) []pipeline.Spec {
	out := make([]pipeline.Spec, 0, len(specs))
	for _, s := range specs {
		out = append(out, s.Spec(pipelines))
	}
	return out
}

// PipelineSpecs converts every configured pipeline for the composer.
func (c *Config) PipelineSpecs() map[string]pipeline.Spec {
	out := make(map[string]pipeline.Spec, len(c.Pipelines))
	for name, p := range c.Pipelines {
		out[name] = p.Spec(c.Pipelines)
	}
	return out
}

// Entries returns the names usable as entry points: pipelines, tasks and clean.
func (c *Config) Entries() []string {
	var names []string
	for name := range c.Pipelines {
		names = append(names, name)
	}
	for _, t := range c.Tasks {
		if _, ok := c.Pipelines[t.Name]; !ok {
			names = append(names, t.Name)
		}
	}
	if !slices.Contains(names, pipeline.CleanEntry) {
		names = append(names, pipeline.CleanEntry)
	}
	slices.Sort(names)
	return names
}

// Step helpers for building specs in code.
func Step(name string) PipelineSpec { return PipelineSpec{Name: name} }

// SeriesSpec returns a series spec.
func SeriesSpec(children ...PipelineSpec) PipelineSpec {
	return PipelineSpec{Series: append([]PipelineSpec{}, children...)}
}

// ParallelSpec returns a parallel spec.
func ParallelSpec(children ...PipelineSpec) PipelineSpec {
	return PipelineSpec{Parallel: append([]PipelineSpec{}, children...)}
}
