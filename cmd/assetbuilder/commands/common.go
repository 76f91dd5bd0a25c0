// Package commands implements the assetbuilder subcommands.
package commands

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/assetbuilder/internal/config"
	"git.home.luguber.info/inful/assetbuilder/internal/engine"
)

// Global carries state shared by all subcommands.
type Global struct {
	// Out receives user-facing output. Logs go to stderr.
	Out io.Writer
}

func (g *Global) out() io.Writer {
	if g == nil || g.Out == nil {
		return os.Stdout
	}
	return g.Out
}

// CLI definition & global flags.
type CLI struct {
	Config    string           `short:"c" help:"Configuration file path (default: assetbuilder.yaml, .yml or .toml when present)"`
	Verbose   bool             `short:"v" help:"Enable debug logging"`
	LogFormat string           `name:"log-format" help:"Log format (text or json)"`
	Version   kong.VersionFlag `name:"version" help:"Show version and exit"`

	Build   BuildCmd   `cmd:"" default:"withargs" help:"Run an entry point once (default: \"default\")"`
	Clean   CleanCmd   `cmd:"" help:"Remove and recreate the output directory"`
	Watch   WatchCmd   `cmd:"" help:"Build, then rebuild affected targets on source changes"`
	Serve   ServeCmd   `cmd:"" help:"Watch and serve the output with live reload"`
	Tasks   TasksCmd   `cmd:"" help:"List tasks and pipelines"`
	Init    InitCmd    `cmd:"" help:"Write the default configuration file"`
	History HistoryCmd `cmd:"" help:"Show recent runs"`

	logWriter io.Writer
}

// AfterApply runs after flag parsing; it sets up logging from the flags and
// environment. Loading the configuration may refine it.
// nolint:unparam // AfterApply currently never returns an error.
func (c *CLI) AfterApply() error {
	c.setupLogging(config.LoggingConfig{
		Level:  config.NormalizeLogLevel(os.Getenv("ASSETBUILDER_LOG_LEVEL")),
		Format: config.NormalizeLogFormat(os.Getenv("ASSETBUILDER_LOG_FORMAT")),
	})
	return nil
}

func (c *CLI) setupLogging(lc config.LoggingConfig) {
	if c.LogFormat != "" {
		lc.Format = c.LogFormat
	}
	level := lc.SlogLevel()
	if c.Verbose {
		level = slog.LevelDebug
	}
	w := c.logWriter
	if w == nil {
		w = os.Stderr
	}
	slog.SetDefault(slog.New(lc.Handler(w, level)))
}

// load reads the configuration and applies its logging settings.
func (c *CLI) load() (*config.Config, error) {
	cfg, err := config.Load(c.Config)
	if err != nil {
		return nil, err
	}
	c.setupLogging(cfg.Logging)
	slog.Debug("Configuration loaded", "path", cfg.Source(), "tasks", len(cfg.Tasks))
	return cfg, nil
}

// open loads the configuration and builds an engine from it.
func (c *CLI) open(opts ...engine.Option) (*engine.Engine, error) {
	cfg, err := c.load()
	if err != nil {
		return nil, err
	}
	return engine.New(cfg, append([]engine.Option{engine.WithLogger(slog.Default())}, opts...)...)
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}
