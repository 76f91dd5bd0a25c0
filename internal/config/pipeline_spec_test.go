package config

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"git.home.luguber.info/inful/assetbuilder/internal/pipeline"
	"git.home.luguber.info/inful/assetbuilder/internal/task"
)

func TestPipelineSpecYAMLForms(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want PipelineSpec
	}{
		{"name", `styles`, Step("styles")},
		{"list is series", `[a, b]`, SeriesSpec(Step("a"), Step("b"))},
		{"parallel", `{parallel: [a, {series: [b, c]}]}`, ParallelSpec(Step("a"), SeriesSpec(Step("b"), Step("c")))},
		{"task key", `{task: a}`, Step("a")},
		{"clean only", `{clean: true}`, PipelineSpec{Clean: true}},
		{"clean with series", `{clean: true, series: [a]}`, PipelineSpec{Clean: true, Series: []PipelineSpec{Step("a")}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got PipelineSpec
			require.NoError(t, yaml.Unmarshal([]byte(tt.in), &got))
			require.Equal(t, tt.want, got)

			out, err := yaml.Marshal(got)
			require.NoError(t, err)
			var again PipelineSpec
			require.NoError(t, yaml.Unmarshal(out, &again))
			require.Equal(t, got, again)
		})
	}
}

func TestPipelineSpecYAMLErrors(t *testing.T) {
	for _, in := range []string{`{}`, `{bogus: a}`, `{series: a}`, `{task: a, parallel: [b]}`, `[a, ""]`, `{clean: yes-please}`} {
		var got PipelineSpec
		require.Error(t, yaml.Unmarshal([]byte(in), &got), in)
	}
}

func TestPipelineSpecsResolveNames(t *testing.T) {
	reg := task.NewRegistry()
	noop := func(context.Context, task.Request) ([]string, error) { return nil, nil }
	for _, name := range []string{"html", "styles"} {
		_, err := reg.Register(name, []string{"*"}, noop, "out")
		require.NoError(t, err)
	}

	cfg := &Config{
		Tasks: []TaskConfig{{Name: "html"}, {Name: "styles"}},
		Pipelines: map[string]PipelineSpec{
			"build":   ParallelSpec(Step("html"), Step("styles")),
			"release": {Clean: true, Series: []PipelineSpec{Step("build")}},
			"loop":    SeriesSpec(Step("html"), Step("loop")),
		},
	}
	specs := cfg.PipelineSpecs()
	require.Equal(t, pipeline.SeriesOf(pipeline.Ref("build")).Series, specs["release"].Series)
	require.True(t, specs["release"].Clean)
	require.Equal(t, pipeline.TaskSpec("html"), specs["build"].Parallel[0])

	c := pipeline.NewComposer(reg, specs)
	plan, err := c.Entry("release")
	require.NoError(t, err)
	require.True(t, plan.Clean)
	require.Equal(t, []string{"html", "styles"}, taskNamesOf(plan.Node.Tasks()))

	_, err = c.Entry("loop")
	require.ErrorIs(t, err, pipeline.ErrCycle)

	require.Equal(t, []string{"build", "clean", "html", "loop", "release", "styles"}, cfg.Entries())
}

func taskNamesOf(tasks []*task.Task) []string {
	out := make([]string, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, t.Name())
	}
	return out
}
