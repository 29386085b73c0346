package events

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/nats-io/nats.go"

	"github.com/atmx/ledger-engine/internal/model"
)

// Publisher forwards events to NATS on subject {prefix}.{engine}.{type}.
type Publisher struct {
	conn   *nats.Conn
	prefix string
}

// NewPublisher creates a NATS sink. prefix defaults to "ledger".
func NewPublisher(conn *nats.Conn, prefix string) *Publisher {
	if prefix == "" {
		prefix = "ledger"
	}
	return &Publisher{conn: conn, prefix: prefix}
}

// Subject returns the subject an event is published on.
func (p *Publisher) Subject(ev model.Event) string {
	return p.prefix + "." + ev.Engine + "." + ev.Type
}

func (p *Publisher) Emit(_ context.Context, ev model.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		slog.Error("event marshal failed", "event_id", ev.ID, "err", err)
		return
	}
	if err := p.conn.Publish(p.Subject(ev), data); err != nil {
		slog.Warn("nats publish failed", "subject", p.Subject(ev), "err", err)
	}
}
