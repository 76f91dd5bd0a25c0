package commands

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"git.home.luguber.info/inful/assetbuilder/internal/history"
)

// TasksCmd implements the 'tasks' command.
type TasksCmd struct{}

func (t *TasksCmd) Run(g *Global, root *CLI) error {
	e, err := root.open()
	if err != nil {
		return err
	}
	defer func() { _ = e.Close() }()

	entries, err := e.Entries()
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(g.out(), 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "NAME\tKIND\tGRAPH")
	for _, ent := range entries {
		graph := ent.Graph
		if ent.Clean {
			graph = strings.TrimSpace("clean " + graph)
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\n", ent.Name, ent.Kind, graph)
	}
	return tw.Flush()
}

// HistoryCmd implements the 'history' command.
type HistoryCmd struct {
	Limit int  `short:"n" default:"10" help:"Number of runs to show"`
	Tasks bool `help:"Show per-task results"`
}

func (h *HistoryCmd) Run(g *Global, root *CLI) error {
	cfg, err := root.load()
	if err != nil {
		return err
	}
	store, err := history.Open(cfg.Resolve(cfg.History.Path))
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	runs, err := store.Recent(context.Background(), h.Limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		_, _ = fmt.Fprintln(g.out(), "no runs recorded")
		return nil
	}
	tw := tabwriter.NewWriter(g.out(), 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "STARTED\tENTRY\tSTATUS\tOUTPUTS\tDURATION\tRUN")
	for _, r := range runs {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n",
			r.Started.Local().Format(time.DateTime), r.Entry, r.Status, r.Outputs, r.Duration.Round(time.Millisecond), r.ID)
		if !h.Tasks {
			continue
		}
		for _, tr := range r.Tasks {
			_, _ = fmt.Fprintf(tw, "\t  %s\t%s\t%d\t%s\t%s\n",
				tr.Task, tr.Status, tr.Outputs, tr.Duration.Round(time.Millisecond), tr.Error)
		}
	}
	return tw.Flush()
}
