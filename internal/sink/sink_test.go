package sink

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	ferrors "git.home.luguber.info/inful/assetbuilder/internal/foundation/errors"
)

func TestClean_Idempotent(t *testing.T) {
	root := filepath.Join(t.TempDir(), "build")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "css"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "css", "main.css"), []byte("a{}"), 0o600))

	for range 2 {
		require.NoError(t, Clean(root))
		entries, err := os.ReadDir(root)
		require.NoError(t, err)
		require.Empty(t, entries)
	}
}

func TestClean_CreatesMissingRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "nested", "build")
	require.NoError(t, Clean(root))
	st, err := os.Stat(root)
	require.NoError(t, err)
	require.True(t, st.IsDir())
}

func TestClean_RejectsDangerousRoots(t *testing.T) {
	err := Clean("")
	require.True(t, ferrors.HasCategory(err, ferrors.CategoryValidation))

	err = Clean(string(filepath.Separator))
	require.True(t, ferrors.HasCategory(err, ferrors.CategoryValidation))
}

func TestClean_PermissionDenied(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permission checks do not apply to root")
	}
	parent := t.TempDir()
	root := filepath.Join(parent, "build")
	locked := filepath.Join(root, "locked")
	require.NoError(t, os.MkdirAll(locked, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(locked, "f"), []byte("x"), 0o600))
	require.NoError(t, os.Chmod(locked, 0o500))
	t.Cleanup(func() { _ = os.Chmod(locked, 0o755) })

	err := Clean(root)
	require.Error(t, err)
	require.True(t, ferrors.HasCategory(err, ferrors.CategoryFileSystem))
}

func TestSink_NotifyFansOutAndSwallowsFailures(t *testing.T) {
	var logBuf bytes.Buffer
	s := New(WithLogger(slog.New(slog.NewTextHandler(&logBuf, nil))))

	var got []string
	s.Subscribe(ListenerFunc{ID: "first", Fn: func(_ context.Context, ev ReloadEvent) error {
		got = append(got, "first:"+ev.RunID)
		return nil
	}})
	s.Subscribe(ListenerFunc{ID: "broken", Fn: func(context.Context, ReloadEvent) error {
		return errors.New("client went away")
	}})
	s.Subscribe(ListenerFunc{ID: "panicky", Fn: func(context.Context, ReloadEvent) error {
		panic("boom")
	}})
	s.Subscribe(ListenerFunc{ID: "last", Fn: func(_ context.Context, ev ReloadEvent) error {
		got = append(got, "last:"+ev.RunID)
		return nil
	}})

	s.Notify(context.Background(), ReloadEvent{RunID: "r1", Paths: []string{"build/index.html"}, Timestamp: time.Now()})

	require.Equal(t, []string{"first:r1", "last:r1"}, got)
	require.Contains(t, logBuf.String(), "client went away")
	require.Contains(t, logBuf.String(), "listener panic: boom")
}

func TestSink_Unsubscribe(t *testing.T) {
	s := New()
	calls := 0
	unsub := s.Subscribe(ListenerFunc{ID: "x", Fn: func(context.Context, ReloadEvent) error {
		calls++
		return nil
	}})
	require.Equal(t, 1, s.Listeners())

	s.Notify(context.Background(), ReloadEvent{RunID: "a"})
	unsub()
	unsub()
	s.Notify(context.Background(), ReloadEvent{RunID: "b"})

	require.Equal(t, 1, calls)
	require.Zero(t, s.Listeners())
}

func TestSink_NotifyTimeoutPerListener(t *testing.T) {
	s := New(WithNotifyTimeout(20 * time.Millisecond))
	s.Subscribe(ListenerFunc{ID: "slow", Fn: func(ctx context.Context, _ ReloadEvent) error {
		<-ctx.Done()
		return ctx.Err()
	}})

	start := time.Now()
	s.Notify(context.Background(), ReloadEvent{RunID: "t"})
	require.Less(t, time.Since(start), time.Second)
}

func TestLogListener(t *testing.T) {
	var buf bytes.Buffer
	l := LogListener{Logger: slog.New(slog.NewTextHandler(&buf, nil))}
	require.NoError(t, l.Notify(context.Background(), ReloadEvent{RunID: "r9", Entry: "build", Paths: []string{"a", "b"}}))
	require.Contains(t, buf.String(), "run_id=r9")
	require.Contains(t, buf.String(), "outputs=2")
}
