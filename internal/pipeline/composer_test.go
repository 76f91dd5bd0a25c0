package pipeline

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	ferrors "git.home.luguber.info/inful/assetbuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/assetbuilder/internal/task"
)

func newRegistry(t *testing.T, calls *atomic.Int32, names ...string) *task.Registry {
	t.Helper()
	reg := task.NewRegistry()
	for _, name := range names {
		_, err := reg.Register(name, []string{name + "/**/*"}, func(context.Context, task.Request) ([]string, error) {
			calls.Add(1)
			return nil, nil
		}, "build/"+name)
		require.NoError(t, err)
	}
	return reg
}

func TestCompose_DefaultBuild(t *testing.T) {
	var calls atomic.Int32
	reg := newRegistry(t, &calls, "html", "styles", "scripts", "images", "fonts")
	c := NewComposer(reg, map[string]Spec{
		"build": SeriesOf(ParallelOf(
			TaskSpec("html"), TaskSpec("styles"), TaskSpec("scripts"), TaskSpec("images"), TaskSpec("fonts"),
		)),
	})

	plan, err := c.Entry("build")
	require.NoError(t, err)
	require.False(t, plan.Clean)
	require.Equal(t, "build=series(parallel(html, styles, scripts, images, fonts))", plan.Node.String())
	require.Len(t, plan.Node.Tasks(), 5)
	require.Zero(t, calls.Load())
}

func TestCompose_UnknownTask(t *testing.T) {
	var calls atomic.Int32
	c := NewComposer(newRegistry(t, &calls, "html"), nil)

	_, err := c.Compose(ParallelOf(TaskSpec("html"), TaskSpec("sprites")))
	require.ErrorIs(t, err, ErrUnknownTask)
	require.True(t, ferrors.HasCategory(err, ferrors.CategoryConfig))
}

func TestCompose_CycleDetected(t *testing.T) {
	var calls atomic.Int32
	reg := newRegistry(t, &calls, "html", "styles")
	c := NewComposer(reg, map[string]Spec{
		"build":  ParallelOf(TaskSpec("html"), Ref("assets")),
		"assets": SeriesOf(TaskSpec("styles"), Ref("build")),
	})

	_, err := c.Entry("build")
	require.ErrorIs(t, err, ErrCycle)
	classified, ok := ferrors.AsClassified(err)
	require.True(t, ok)
	cycle, _ := classified.Context().GetString("cycle")
	require.Equal(t, "build -> assets -> build", cycle)
	require.Zero(t, calls.Load(), "composition must not execute tasks")

	require.ErrorIs(t, c.Validate(), ErrCycle)
}

func TestCompose_SelfReference(t *testing.T) {
	var calls atomic.Int32
	c := NewComposer(newRegistry(t, &calls, "html"), map[string]Spec{
		"loop": Ref("loop"),
	})
	_, err := c.Entry("loop")
	require.ErrorIs(t, err, ErrCycle)
}

func TestCompose_DiamondIsNotACycle(t *testing.T) {
	var calls atomic.Int32
	reg := newRegistry(t, &calls, "styles", "scripts")
	c := NewComposer(reg, map[string]Spec{
		"assets": ParallelOf(TaskSpec("styles"), TaskSpec("scripts")),
		"build":  SeriesOf(Ref("assets"), Ref("assets")),
	})
	plan, err := c.Entry("build")
	require.NoError(t, err)
	require.Equal(t, "build=series(assets=parallel(styles, scripts), assets=parallel(styles, scripts))", plan.Node.String())
	require.NoError(t, c.Validate())
}

func TestCompose_UnknownPipeline(t *testing.T) {
	var calls atomic.Int32
	c := NewComposer(newRegistry(t, &calls), map[string]Spec{"build": Ref("missing")})
	_, err := c.Entry("build")
	require.ErrorIs(t, err, ErrUnknownPipeline)

	_, err = c.Entry("nope")
	require.ErrorIs(t, err, ErrUnknownPipeline)
}

func TestCompose_InvalidSpecs(t *testing.T) {
	var calls atomic.Int32
	c := NewComposer(newRegistry(t, &calls, "html"), nil)

	_, err := c.Compose(Spec{})
	require.ErrorIs(t, err, ErrInvalidSpec)

	_, err = c.Compose(Spec{Task: "html", Series: []Spec{}})
	require.ErrorIs(t, err, ErrInvalidSpec)

	_, err = c.Compose(SeriesOf(Spec{Task: "html", Clean: true}))
	require.ErrorIs(t, err, ErrInvalidSpec)
}

func TestEntry_CleanAndSingleTask(t *testing.T) {
	var calls atomic.Int32
	reg := newRegistry(t, &calls, "styles")
	c := NewComposer(reg, map[string]Spec{
		"dist": {Clean: true, Parallel: []Spec{TaskSpec("styles")}},
	})

	plan, err := c.Entry(CleanEntry)
	require.NoError(t, err)
	require.True(t, plan.Clean)
	require.Nil(t, plan.Node)

	plan, err = c.Entry("dist")
	require.NoError(t, err)
	require.True(t, plan.Clean)
	require.Equal(t, "dist=parallel(styles)", plan.Node.String())

	plan, err = c.Entry("styles")
	require.NoError(t, err)
	require.True(t, plan.Node.IsLeaf())
	require.Equal(t, "styles", plan.Node.Name())
}

func TestNode_ChildrenAreCopied(t *testing.T) {
	var calls atomic.Int32
	reg := newRegistry(t, &calls, "html", "fonts")
	html, _ := reg.Lookup("html")
	fonts, _ := reg.Lookup("fonts")

	children := []*Node{Leaf(html)}
	n := Parallel("", children...)
	children[0] = Leaf(fonts)
	require.Equal(t, "html", n.Children()[0].Name())
	require.Equal(t, "parallel(html)", n.String())
}
