package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/assetbuilder/internal/pipeline"
	"git.home.luguber.info/inful/assetbuilder/internal/runner"
	"git.home.luguber.info/inful/assetbuilder/internal/task"
)

// fakeRunner counts runs per node and optionally blocks each run until released.
type fakeRunner struct {
	mu      sync.Mutex
	calls   map[string]int
	started chan string
	gate    chan struct{}
	ctxErrs []error
}

func newFakeRunner(blocking bool) *fakeRunner {
	f := &fakeRunner{calls: map[string]int{}, started: make(chan string, 64)}
	if blocking {
		f.gate = make(chan struct{})
	}
	return f
}

func (f *fakeRunner) Run(ctx context.Context, node *pipeline.Node) runner.Result {
	f.mu.Lock()
	f.calls[node.Name()]++
	f.mu.Unlock()
	select {
	case f.started <- node.Name():
	default:
	}
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	f.ctxErrs = append(f.ctxErrs, ctx.Err())
	f.mu.Unlock()
	return runner.Result{Node: node.Name()}
}

func (f *fakeRunner) release() { f.gate <- struct{}{} }

func (f *fakeRunner) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func waitStarted(t *testing.T, f *fakeRunner, want string) {
	t.Helper()
	select {
	case got := <-f.started:
		require.Equal(t, want, got)
	case <-time.After(2 * time.Second):
		t.Fatalf("run of %s did not start", want)
	}
}

func node(t *testing.T, name string) *pipeline.Node {
	t.Helper()
	reg := task.NewRegistry()
	tk, err := reg.Register(name, []string{"**/*"}, func(context.Context, task.Request) ([]string, error) { return nil, nil }, "out")
	require.NoError(t, err)
	return pipeline.Leaf(tk)
}

func TestController_EventsWhileRunningCollapseToOneFollowUp(t *testing.T) {
	f := newFakeRunner(true)
	c, err := New(t.TempDir(), f, []Binding{{Name: "styles", Patterns: []string{"css/**/*.scss"}, Node: node(t, "styles")}})
	require.NoError(t, err)

	c.Trigger("css/main.scss")
	waitStarted(t, f, "styles")

	for range 5 {
		c.Trigger("css/main.scss")
	}
	state, pending, err := c.State("styles")
	require.NoError(t, err)
	require.Equal(t, Running, state)
	require.True(t, pending)

	f.release()
	waitStarted(t, f, "styles")
	f.release()

	c.Shutdown()
	require.Equal(t, 2, f.count("styles"))
	require.Equal(t, 2, c.Runs("styles"))
	state, pending, err = c.State("styles")
	require.NoError(t, err)
	require.Equal(t, Idle, state)
	require.False(t, pending)
}

func TestController_UnmatchedPathsAreIgnored(t *testing.T) {
	f := newFakeRunner(false)
	c, err := New(t.TempDir(), f, []Binding{{Name: "scripts", Patterns: []string{"js/**/*.js", "!js/vendor/**"}, Node: node(t, "scripts")}})
	require.NoError(t, err)

	c.Trigger("css/main.css")
	c.Trigger("js/vendor/lib.js")
	c.Shutdown()
	require.Zero(t, f.count("scripts"))
}

func TestController_AllMatchingBindingsRun(t *testing.T) {
	f := newFakeRunner(false)
	build := node(t, "build")
	c, err := New(t.TempDir(), f, []Binding{
		{Name: "html", Patterns: []string{"**/*.html"}, Node: build},
		{Name: "pages", Patterns: []string{"pages/**"}, Node: build},
	})
	require.NoError(t, err)

	c.Trigger("pages/index.html")
	c.Shutdown()
	require.Equal(t, 2, f.count("build"))
}

func TestController_CoalesceTargets(t *testing.T) {
	f := newFakeRunner(false)
	build := node(t, "build")
	c, err := New(t.TempDir(), f, []Binding{
		{Name: "html", Patterns: []string{"**/*.html"}, Node: build},
		{Name: "pages", Patterns: []string{"pages/**"}, Node: build},
	}, WithCoalesceTargets(true))
	require.NoError(t, err)

	c.Trigger("pages/index.html")
	c.Shutdown()
	require.Equal(t, 1, f.count("build"))
}

func TestController_DebounceBatchesChanges(t *testing.T) {
	f := newFakeRunner(false)
	c, err := New(t.TempDir(), f, []Binding{{Name: "styles", Patterns: []string{"css/*"}, Node: node(t, "styles")}},
		WithDebounce(50*time.Millisecond))
	require.NoError(t, err)

	for range 10 {
		c.Trigger("css/a.css")
	}
	waitStarted(t, f, "styles")
	require.Eventually(t, func() bool { return c.Runs("styles") == 1 }, 2*time.Second, 5*time.Millisecond)
	c.Shutdown()
	require.Equal(t, 1, f.count("styles"))
}

func TestController_ShutdownDropsPendingAndWaitsForInFlight(t *testing.T) {
	f := newFakeRunner(true)
	c, err := New(t.TempDir(), f, []Binding{{Name: "images", Patterns: []string{"img/*"}, Node: node(t, "images")}})
	require.NoError(t, err)

	c.Trigger("img/a.png")
	waitStarted(t, f, "images")
	c.Trigger("img/b.png")

	done := make(chan struct{})
	go func() {
		c.Shutdown()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("shutdown returned while a run was in flight")
	case <-time.After(50 * time.Millisecond):
	}

	f.release()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("shutdown did not return after the run finished")
	}
	require.Equal(t, 1, f.count("images"))

	c.Trigger("img/c.png")
	require.Equal(t, 1, f.count("images"))
}

func TestNew_RejectsInvalidBindings(t *testing.T) {
	n := node(t, "x")
	_, err := New(t.TempDir(), newFakeRunner(false), []Binding{{Name: "x", Patterns: []string{"[oops"}, Node: n}})
	require.Error(t, err)

	_, err = New(t.TempDir(), newFakeRunner(false), []Binding{{Name: "x", Node: n}, {Name: "x", Node: n}})
	require.Error(t, err)

	_, err = New(t.TempDir(), newFakeRunner(false), []Binding{{Name: "x"}})
	require.Error(t, err)
}

func TestMatches(t *testing.T) {
	require.True(t, matches([]string{"./css/**/*.scss"}, "css/a/b.scss"))
	require.False(t, matches([]string{"css/**/*.scss", "!**/_*.scss"}, "css/_vars.scss"))
	require.False(t, matches(nil, "anything"))
}

func TestWatch_RunsBindingOnFileChange(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "css"), 0o755))

	f := newFakeRunner(false)
	c, err := New(root, f, []Binding{{Name: "styles", Patterns: []string{"css/**/*.css"}, Node: node(t, "styles")}})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(t.Context())
	errc := make(chan error, 1)
	go func() { errc <- c.Watch(ctx) }()

	// writes are retried until the watcher is registered
	require.Eventually(t, func() bool {
		_ = os.WriteFile(filepath.Join(root, "css", "main.css"), []byte("a{}"), 0o600)
		return f.count("styles") > 0
	}, 5*time.Second, 50*time.Millisecond)

	// files in directories created after the watch started are seen too
	require.NoError(t, os.MkdirAll(filepath.Join(root, "css", "theme"), 0o755))
	before := f.count("styles")
	require.Eventually(t, func() bool {
		_ = os.WriteFile(filepath.Join(root, "css", "theme", "dark.css"), []byte("b{}"), 0o600)
		return f.count("styles") > before
	}, 5*time.Second, 50*time.Millisecond)

	cancel()
	require.NoError(t, <-errc)

	f.mu.Lock()
	defer f.mu.Unlock()
	for _, err := range f.ctxErrs {
		require.NoError(t, err)
	}
}

func TestWatch_PeriodicRebuild(t *testing.T) {
	f := newFakeRunner(false)
	c, err := New(t.TempDir(), f, nil, WithPeriodicRebuild(30*time.Millisecond, node(t, "build")))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(t.Context())
	errc := make(chan error, 1)
	go func() { errc <- c.Watch(ctx) }()

	require.Eventually(t, func() bool { return f.count("build") >= 2 }, 5*time.Second, 10*time.Millisecond)
	cancel()
	require.NoError(t, <-errc)
	require.GreaterOrEqual(t, c.Runs("periodic-rebuild"), 2)
}

func TestWatch_MissingRoot(t *testing.T) {
	c, err := New(filepath.Join(t.TempDir(), "absent"), newFakeRunner(false), nil)
	require.NoError(t, err)
	require.Error(t, c.Watch(t.Context()))
}

func TestShouldIgnore(t *testing.T) {
	for _, p := range []string{".hidden", "a.swp", "a~", "#a#", "x/.#lock", "main.css.123.tmp"} {
		require.True(t, shouldIgnore(p), p)
	}
	require.False(t, shouldIgnore("css/main.css"))
}
