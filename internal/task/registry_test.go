package task

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ferrors "git.home.luguber.info/inful/assetbuilder/internal/foundation/errors"
)

func noop(context.Context, Request) ([]string, error) { return nil, nil }

func TestRegistry_RegisterAndLookup(t *testing.T) {
	reg := NewRegistry()

	tk, err := reg.Register("styles", []string{"css/**/*.scss"}, noop, "build/css")
	require.NoError(t, err)
	require.Equal(t, "styles", tk.Name())
	require.Equal(t, []string{"css/**/*.scss"}, tk.Patterns())
	require.Equal(t, "build/css", tk.OutputDir())
	require.True(t, tk.LiveReload())

	got, err := reg.Lookup("styles")
	require.NoError(t, err)
	require.Same(t, tk, got)
}

func TestRegistry_DuplicateName(t *testing.T) {
	reg := NewRegistry()
	_, err := reg.Register("html", []string{"*.html"}, noop, "build")
	require.NoError(t, err)

	_, err = reg.Register("html", []string{"*.htm"}, noop, "build")
	require.ErrorIs(t, err, ErrDuplicateName)
	require.True(t, ferrors.HasCategory(err, ferrors.CategoryConfig))

	tk, err := reg.Lookup("html")
	require.NoError(t, err)
	require.Equal(t, []string{"*.html"}, tk.Patterns(), "first registration wins")
}

func TestRegistry_LookupMissing(t *testing.T) {
	_, err := NewRegistry().Lookup("fonts")
	require.ErrorIs(t, err, ErrNotFound)
	require.True(t, ferrors.HasCategory(err, ferrors.CategoryNotFound))
}

func TestRegistry_RejectsIncompleteTasks(t *testing.T) {
	reg := NewRegistry()
	cases := []struct {
		name     string
		taskName string
		patterns []string
		fn       TransformFunc
		out      string
	}{
		{"empty name", " ", []string{"*"}, noop, "out"},
		{"nil transform", "a", []string{"*"}, nil, "out"},
		{"no patterns", "b", nil, noop, "out"},
		{"no output", "c", []string{"*"}, noop, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := reg.Register(tc.taskName, tc.patterns, tc.fn, tc.out)
			require.Error(t, err)
			require.True(t, ferrors.HasCategory(err, ferrors.CategoryConfig))
		})
	}
	require.Zero(t, reg.Len())
}

func TestRegistry_PatternsAreCopied(t *testing.T) {
	patterns := []string{"js/**/*.js"}
	tk, err := NewRegistry().Register("scripts", patterns, noop, "build/js", WithLiveReload(false))
	require.NoError(t, err)
	patterns[0] = "mutated"
	require.Equal(t, "js/**/*.js", tk.Patterns()[0])
	require.False(t, tk.LiveReload())
}

func TestRegistry_ConcurrentReads(t *testing.T) {
	reg := NewRegistry()
	for i := range 5 {
		_, err := reg.Register(fmt.Sprintf("t%d", i), []string{"*"}, noop, "out")
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for _, name := range reg.Names() {
				_, err := reg.Lookup(name)
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()
	require.Equal(t, []string{"t0", "t1", "t2", "t3", "t4"}, reg.Names())
	require.Len(t, reg.Tasks(), 5)
}
