package commands

import (
	"context"
	"log/slog"
	"time"

	"git.home.luguber.info/inful/assetbuilder/internal/engine"
	"git.home.luguber.info/inful/assetbuilder/internal/logfields"
	"git.home.luguber.info/inful/assetbuilder/internal/server"
)

// WatchCmd implements the 'watch' command.
type WatchCmd struct {
	Entry     string `arg:"" optional:"" default:"default" help:"Entry point built before watching"`
	NoInitial bool   `name:"no-initial" help:"Skip the initial build"`
}

func (w *WatchCmd) Run(g *Global, root *CLI) error {
	e, err := root.open()
	if err != nil {
		return err
	}
	defer func() { _ = e.Close() }()

	ctx, cancel := signalContext()
	defer cancel()
	return watchLoop(ctx, g, e, w.Entry, !w.NoInitial)
}

// watchLoop optionally builds entry once, then watches until ctx is done. A
// failing initial build is reported but does not stop watching.
func watchLoop(ctx context.Context, g *Global, e *engine.Engine, entry string, initial bool) error {
	ctrl, err := e.Watcher()
	if err != nil {
		return err
	}
	if initial {
		if err := runEntry(ctx, g, e, entry, false); err != nil {
			slog.Warn("Initial build failed; watching for fixes", logfields.Entry(entry), logfields.Error(err))
		}
	}
	return ctrl.Watch(ctx)
}

// ServeCmd implements the 'serve' command.
type ServeCmd struct {
	Entry        string `arg:"" optional:"" default:"default" help:"Entry point built before serving"`
	Host         string `help:"Listen host (default from config)"`
	Port         int    `short:"p" help:"Listen port (default from config)"`
	NoLiveReload bool   `name:"no-live-reload" help:"Disable live reload and script injection"`
}

func (s *ServeCmd) Run(g *Global, root *CLI) error {
	cfg, err := root.load()
	if err != nil {
		return err
	}
	if s.Host != "" {
		cfg.Server.Host = s.Host
	}
	if s.Port != 0 {
		cfg.Server.Port = s.Port
	}
	liveReload := cfg.Server.LiveReload && !s.NoLiveReload

	e, err := engine.New(cfg, engine.WithLogger(slog.Default()), engine.WithLiveReload(liveReload))
	if err != nil {
		return err
	}
	defer func() { _ = e.Close() }()

	opts := server.Options{
		Addr:       cfg.Server.Addr(),
		Root:       cfg.OutputRoot(),
		LiveReload: e.LiveReload(),
		Logger:     slog.Default(),
	}
	if cfg.Server.Metrics {
		opts.Metrics = e.MetricsHandler()
	}
	srv := server.New(opts)

	ctx, cancel := signalContext()
	defer cancel()
	if err := srv.Start(ctx); err != nil {
		return err
	}
	defer func() {
		stopCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
		defer stop()
		if err := srv.Stop(stopCtx); err != nil {
			slog.Warn("Server shutdown failed", logfields.Error(err))
		}
	}()
	return watchLoop(ctx, g, e, s.Entry, true)
}
