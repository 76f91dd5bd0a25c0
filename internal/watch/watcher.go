package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/go-co-op/gocron/v2"

	ferrors "git.home.luguber.info/inful/assetbuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/assetbuilder/internal/logfields"
)

// Watch follows file changes below the root until ctx is cancelled, then shuts
// down gracefully. Runs started by Watch use a context detached from ctx, so an
// in-flight run finishes its writes instead of being torn down.
func (c *Controller) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryRuntime, "create file watcher").Build()
	}
	defer func() { _ = watcher.Close() }()

	if err := c.addDirsRecursive(watcher, c.root); err != nil {
		return err
	}

	c.mu.Lock()
	c.runCtx = context.WithoutCancel(ctx)
	c.mu.Unlock()

	stopScheduler, err := c.startScheduler()
	if err != nil {
		return err
	}

	c.logger.Info("Watching for changes", logfields.Path(c.root), "bindings", len(c.bindings))
	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Stopping watch; waiting for running targets")
			stopScheduler()
			c.Shutdown()
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				stopScheduler()
				c.Shutdown()
				return nil
			}
			c.handleEvent(watcher, ev)
		case err, ok := <-watcher.Errors:
			if !ok {
				stopScheduler()
				c.Shutdown()
				return nil
			}
			c.logger.Warn("File watcher error", logfields.Error(err))
		}
	}
}

func (c *Controller) handleEvent(w *fsnotify.Watcher, ev fsnotify.Event) {
	if ev.Op == fsnotify.Chmod || shouldIgnore(ev.Name) {
		return
	}
	if ev.Has(fsnotify.Create) {
		if fi, err := os.Stat(ev.Name); err == nil && fi.IsDir() {
			_ = c.addDirsRecursive(w, ev.Name)
			c.triggerTree(ev.Name)
			return
		}
	}
	rel, err := filepath.Rel(c.root, ev.Name)
	if err != nil || strings.HasPrefix(rel, "..") {
		return
	}
	c.Trigger(rel)
}

// triggerTree reports every file below a newly created directory, since files
// moved in with it produce no events of their own.
func (c *Controller) triggerTree(dir string) {
	_ = filepath.WalkDir(dir, func(p string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() || shouldIgnore(p) {
			return nil
		}
		if rel, err := filepath.Rel(c.root, p); err == nil {
			c.Trigger(rel)
		}
		return nil
	})
}

func (c *Controller) addDirsRecursive(w *fsnotify.Watcher, root string) error {
	if _, err := os.Stat(root); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryFileSystem, "watch root is not accessible").
			WithContext("path", root).
			Build()
	}
	return filepath.WalkDir(root, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if p != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			if err := w.Add(p); err != nil {
				c.logger.Warn("Watch add failed", logfields.Path(p), logfields.Error(err))
			}
		}
		return nil
	})
}

func (c *Controller) startScheduler() (func(), error) {
	if c.interval <= 0 || c.rebuild == nil {
		return func() {}, nil
	}
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryRuntime, "create rebuild scheduler").Build()
	}
	_, err = s.NewJob(
		gocron.DurationJob(c.interval),
		gocron.NewTask(func() { c.fire(c.rebuild) }),
		gocron.WithName(c.rebuild.Name),
	)
	if err != nil {
		_ = s.Shutdown()
		return nil, ferrors.WrapError(err, ferrors.CategoryConfig, fmt.Sprintf("schedule periodic rebuild every %s", c.interval)).Build()
	}
	s.Start()
	c.logger.Info("Periodic rebuild scheduled", "interval", c.interval.String(), logfields.Node(c.rebuild.Node.Name()))
	return func() {
		if err := s.Shutdown(); err != nil {
			c.logger.Warn("Failed to stop rebuild scheduler", logfields.Error(err))
		}
	}, nil
}

// shouldIgnore skips hidden files and editor scratch files.
func shouldIgnore(p string) bool {
	base := filepath.Base(p)
	switch {
	case strings.HasPrefix(base, "."):
		return true
	case strings.HasSuffix(base, "~"), strings.HasSuffix(base, ".swp"), strings.HasSuffix(base, ".swx"), strings.HasSuffix(base, ".tmp"):
		return true
	case strings.HasPrefix(base, "#") && strings.HasSuffix(base, "#"):
		return true
	case base == "Thumbs.db", base == "4913":
		return true
	}
	return false
}
