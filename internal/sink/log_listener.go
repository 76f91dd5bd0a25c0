package sink

import (
	"context"
	"log/slog"

	"git.home.luguber.info/inful/assetbuilder/internal/logfields"
)

// LogListener reports reload events on the structured log.
type LogListener struct {
	Logger *slog.Logger
}

func (LogListener) Name() string { return "log" }

func (l LogListener) Notify(_ context.Context, ev ReloadEvent) error {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("Outputs updated",
		logfields.RunID(ev.RunID),
		logfields.Node(ev.Entry),
		logfields.Outputs(len(ev.Paths)))
	return nil
}
