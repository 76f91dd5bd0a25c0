// Package natsnotify publishes reload events to a NATS subject so remote
// tooling can react to finished builds.
package natsnotify

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	ferrors "git.home.luguber.info/inful/assetbuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/assetbuilder/internal/sink"
)

// DefaultSubject is used when no subject is configured.
const DefaultSubject = "assetbuilder.reload"

// Publisher is a sink.Listener that publishes each reload event as JSON.
type Publisher struct {
	conn    *nats.Conn
	subject string
}

// Connect dials url with automatic reconnection. An empty subject means DefaultSubject.
func Connect(url, subject string, opts ...nats.Option) (*Publisher, error) {
	if subject == "" {
		subject = DefaultSubject
	}
	defaults := []nats.Option{
		nats.Name("assetbuilder"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				slog.Warn("NATS disconnected", "error", err)
			}
		}),
	}
	nc, err := nats.Connect(url, append(defaults, opts...)...)
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryNotification, "connect to NATS").
			WithContext("url", url).
			UserAction().
			Build()
	}
	return &Publisher{conn: nc, subject: subject}, nil
}

// Name implements sink.Listener.
func (p *Publisher) Name() string { return "nats" }

// Subject returns the subject events are published to.
func (p *Publisher) Subject() string { return p.subject }

// Notify implements sink.Listener. It flushes so a broken connection surfaces
// as an error within ctx's deadline.
func (p *Publisher) Notify(ctx context.Context, ev sink.ReloadEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return ferrors.NotificationError("encode reload event").WithCause(err).Build()
	}
	if err := p.conn.Publish(p.subject, data); err != nil {
		return ferrors.NotificationError("publish reload event").
			WithCause(err).
			WithContext("subject", p.subject).
			Build()
	}
	if err := p.conn.FlushWithContext(ctx); err != nil {
		return ferrors.NotificationError("flush reload event").
			WithCause(err).
			WithContext("subject", p.subject).
			Build()
	}
	return nil
}

// Close drains pending messages and closes the connection.
func (p *Publisher) Close() error {
	if err := p.conn.Drain(); err != nil {
		p.conn.Close()
		return err
	}
	return nil
}
