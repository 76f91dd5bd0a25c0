package commands

import (
	"context"
	"fmt"
	"time"

	"git.home.luguber.info/inful/assetbuilder/internal/config"
	"git.home.luguber.info/inful/assetbuilder/internal/engine"
	"git.home.luguber.info/inful/assetbuilder/internal/runner"
)

// BuildCmd implements the 'build' command.
type BuildCmd struct {
	Entry string `arg:"" optional:"" default:"default" help:"Task or pipeline to run"`
	Clean bool   `help:"Clean the output directory first"`
}

func (b *BuildCmd) Run(g *Global, root *CLI) error {
	e, err := root.open()
	if err != nil {
		return err
	}
	defer func() { _ = e.Close() }()

	ctx, cancel := signalContext()
	defer cancel()
	return runEntry(ctx, g, e, b.Entry, b.Clean)
}

func runEntry(ctx context.Context, g *Global, e *engine.Engine, entry string, clean bool) error {
	start := time.Now()
	res, err := e.Execute(ctx, entry, clean)
	if err != nil {
		printFailures(g, res)
		return err
	}
	_, _ = fmt.Fprintf(g.out(), "%s: %d file(s) written in %s\n",
		entry, len(outputs(res)), time.Since(start).Round(time.Millisecond))
	return nil
}

func outputs(res runner.Result) []string {
	var out []string
	for _, leaf := range res.Leaves() {
		out = append(out, leaf.Outputs...)
	}
	return out
}

func printFailures(g *Global, res runner.Result) {
	for _, f := range res.Failures() {
		_, _ = fmt.Fprintf(g.out(), "FAILED %s: %v\n", f.Task, f.Err)
	}
}

// CleanCmd implements the 'clean' command.
type CleanCmd struct{}

func (c *CleanCmd) Run(g *Global, root *CLI) error {
	cfg, err := root.load()
	if err != nil {
		return err
	}
	e, err := engine.New(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = e.Close() }()
	if err := e.Clean(); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(g.out(), "cleaned %s\n", cfg.OutputRoot())
	return nil
}

// InitCmd implements the 'init' command.
type InitCmd struct {
	Force bool `help:"Overwrite an existing configuration file"`
}

func (i *InitCmd) Run(g *Global, root *CLI) error {
	path := root.Config
	if path == "" {
		path = config.DefaultFiles[0]
	}
	if err := config.Init(path, i.Force); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(g.out(), "wrote %s\n", path)
	return nil
}
