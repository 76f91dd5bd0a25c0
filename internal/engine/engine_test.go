package engine

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/assetbuilder/internal/config"
	ferrors "git.home.luguber.info/inful/assetbuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/assetbuilder/internal/manifest"
	"git.home.luguber.info/inful/assetbuilder/internal/pipeline"
	"git.home.luguber.info/inful/assetbuilder/internal/runner"
	"git.home.luguber.info/inful/assetbuilder/internal/sink"
)

type recorder struct {
	mu     sync.Mutex
	events []sink.ReloadEvent
}

func (r *recorder) Name() string { return "test" }

func (r *recorder) Notify(_ context.Context, ev sink.ReloadEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recorder) Events() []sink.ReloadEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]sink.ReloadEvent(nil), r.events...)
}

func write(t *testing.T, root, rel string, data []byte) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o750))
	require.NoError(t, os.WriteFile(p, data, 0o600))
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for x := range 8 {
		for y := range 8 {
			img.Set(x, y, color.RGBA{R: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// siteConfig returns the default configuration over a populated source tree.
func siteConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	write(t, src, "index.html", []byte("<html>\n  <body>\n    <p>hi</p>\n  </body>\n</html>\n"))
	write(t, src, "css/main.scss", []byte("$accent: #c00;\nbody { color: $accent; }\n"))
	write(t, src, "css/_mixins.scss", []byte("$unused: 1px;\n"))
	write(t, src, "js/a.js", []byte("// first\nvar a = 1;\n"))
	write(t, src, "js/b.js", []byte("var b = 2;\n"))
	write(t, src, "img/logo.png", pngBytes(t))
	write(t, src, "fonts/body.woff2", []byte("wOF2 font data"))

	cfg := config.Default()
	cfg.Paths.Source = src
	cfg.Paths.Output = filepath.Join(dir, "build")
	require.NoError(t, cfg.Validate())
	return cfg
}

func TestExecuteBuildsAllCategoriesWithOneReloadEvent(t *testing.T) {
	cfg := siteConfig(t)
	cfg.Notify.Manifest = true
	rec := &recorder{}
	e, err := New(cfg, WithListener(rec))
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, e.Close()) })

	res, err := e.Execute(t.Context(), config.DefaultEntry, false)
	require.NoError(t, err)
	require.True(t, res.OK())

	out := cfg.OutputRoot()
	for _, rel := range []string{"index.html", "css/main.css", "css/main.css.map", "js/main.js", "img/logo.png", "fonts/body.woff2"} {
		require.FileExists(t, filepath.Join(out, filepath.FromSlash(rel)))
	}
	require.NoFileExists(t, filepath.Join(out, "css", "_mixins.css"))

	events := rec.Events()
	require.Len(t, events, 1)
	require.Equal(t, res.RunID, events[0].RunID)
	require.Len(t, events[0].Paths, 6)
	require.IsIncreasing(t, events[0].Paths)

	m, err := manifest.Load(out)
	require.NoError(t, err)
	require.Equal(t, res.RunID, m.RunID)
	require.Contains(t, m.Files, "js/main.js")
}

func TestExecuteFailureEmitsNoEvent(t *testing.T) {
	cfg := siteConfig(t)
	write(t, cfg.SourceRoot(), "css/broken.scss", []byte("a { color: red;\n"))
	rec := &recorder{}
	e, err := New(cfg, WithListener(rec))
	require.NoError(t, err)

	res, err := e.Execute(t.Context(), "build", false)
	require.Error(t, err)
	require.True(t, ferrors.HasCategory(err, ferrors.CategoryTransform))

	var pe *runner.ParallelError
	require.ErrorAs(t, err, &pe)
	require.Equal(t, []string{"styles"}, pe.FailedTasks())
	require.FileExists(t, filepath.Join(cfg.OutputRoot(), "js", "main.js"), "parallel siblings still complete")
	require.False(t, res.OK())
	require.Empty(t, rec.Events())
}

func TestExecuteClean(t *testing.T) {
	cfg := siteConfig(t)
	cfg.Pipelines["release"] = config.PipelineSpec{Clean: true, Series: []config.PipelineSpec{config.Step("scripts")}}
	e, err := New(cfg)
	require.NoError(t, err)

	stale := filepath.Join(cfg.OutputRoot(), "stale.txt")
	write(t, cfg.OutputRoot(), "stale.txt", []byte("old"))

	_, err = e.Execute(t.Context(), "release", false)
	require.NoError(t, err)
	require.NoFileExists(t, stale)
	require.FileExists(t, filepath.Join(cfg.OutputRoot(), "js", "main.js"))

	_, err = e.Execute(t.Context(), pipeline.CleanEntry, false)
	require.NoError(t, err)
	entries, err := os.ReadDir(cfg.OutputRoot())
	require.NoError(t, err)
	require.Empty(t, entries)

	write(t, cfg.OutputRoot(), "stale.txt", []byte("old"))
	_, err = e.Execute(t.Context(), "html", true)
	require.NoError(t, err)
	require.NoFileExists(t, stale)
	require.FileExists(t, filepath.Join(cfg.OutputRoot(), "index.html"))
}

func TestNewRejectsInvalidGraphs(t *testing.T) {
	cfg := siteConfig(t)
	cfg.Pipelines["a"] = config.Step("b")
	cfg.Pipelines["b"] = config.SeriesSpec(config.Step("html"), config.Step("a"))
	_, err := New(cfg)
	require.ErrorIs(t, err, pipeline.ErrCycle)

	cfg = siteConfig(t)
	cfg.Pipelines["typo"] = config.Step("stlyes")
	_, err = New(cfg)
	require.ErrorIs(t, err, pipeline.ErrUnknownTask)
}

func TestExecuteUnknownEntry(t *testing.T) {
	e, err := New(siteConfig(t))
	require.NoError(t, err)
	_, err = e.Execute(t.Context(), "deploy", false)
	require.ErrorIs(t, err, pipeline.ErrUnknownPipeline)
}

func TestEntries(t *testing.T) {
	e, err := New(siteConfig(t))
	require.NoError(t, err)
	entries, err := e.Entries()
	require.NoError(t, err)

	byName := map[string]Entry{}
	for _, ent := range entries {
		byName[ent.Name] = ent
	}
	require.Equal(t, EntryPipeline, byName["build"].Kind)
	require.Equal(t, "build=parallel(html, styles, scripts, images, fonts)", byName["build"].Graph)
	require.Equal(t, EntryTask, byName["styles"].Kind)
	require.Equal(t, EntryClean, byName["clean"].Kind)
	require.True(t, byName["clean"].Clean)
}

func TestHistoryJournal(t *testing.T) {
	cfg := siteConfig(t)
	cfg.History.Enabled = true
	cfg.History.Path = filepath.Join(t.TempDir(), "history.db")
	e, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, e.Close()) })

	res, err := e.Execute(t.Context(), "scripts", false)
	require.NoError(t, err)
	require.FileExists(t, cfg.History.Path)
	require.NotEmpty(t, res.RunID)
}

func TestWatcherRebuildsOnChange(t *testing.T) {
	cfg := siteConfig(t)
	cfg.Watch.Debounce = 20 * time.Millisecond
	rec := &recorder{}
	e, err := New(cfg, WithListener(rec))
	require.NoError(t, err)

	w, err := e.Watcher()
	require.NoError(t, err)
	require.Equal(t, []string{"html", "styles", "scripts", "images", "fonts"}, w.Bindings())

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- w.Watch(ctx) }()

	// give the watcher time to register its directories
	time.Sleep(100 * time.Millisecond)
	write(t, cfg.SourceRoot(), "js/c.js", []byte("console.log(\"from c\");\n"))

	require.Eventually(t, func() bool { return len(rec.Events()) > 0 }, 5*time.Second, 20*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	bundle, err := os.ReadFile(filepath.Join(cfg.OutputRoot(), "js", "main.js"))
	require.NoError(t, err)
	require.Contains(t, string(bundle), "from c")
}

func TestWatcherRejectsCleanTarget(t *testing.T) {
	cfg := siteConfig(t)
	cfg.Watch.Bindings = []config.BindingConfig{{Name: "all", Patterns: []string{"**"}, Target: "clean"}}
	e, err := New(cfg)
	require.NoError(t, err)
	_, err = e.Watcher()
	require.True(t, ferrors.HasCategory(err, ferrors.CategoryConfig))
}
