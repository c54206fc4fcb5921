// Package nats publishes location events to a NATS subject.
package nats

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	natsgo "github.com/nats-io/nats.go"

	"github.com/couchcryptid/wordloc/internal/domain"
)

// KeyHeader carries the event key, since core NATS messages have none.
const KeyHeader = "Wordloc-Key"

// conn is the subset of *natsgo.Conn the publisher uses.
type conn interface {
	PublishMsg(m *natsgo.Msg) error
	FlushWithContext(ctx context.Context) error
	Drain() error
}

// Publisher implements pipeline.BatchLoader over a NATS connection.
type Publisher struct {
	conn    conn
	subject string
	logger  *slog.Logger
}

// NewPublisher creates a publisher on an established connection.
func NewPublisher(nc *natsgo.Conn, subject string, logger *slog.Logger) *Publisher {
	return &Publisher{conn: nc, subject: subject, logger: logger}
}

// Connect dials url with reconnect handling that logs connection changes.
func Connect(url string, timeout time.Duration, logger *slog.Logger) (*natsgo.Conn, error) {
	options := []natsgo.Option{
		natsgo.Name("wordloc"),
		natsgo.MaxReconnects(-1),
		natsgo.ReconnectWait(2 * time.Second),
		natsgo.Timeout(timeout),
		natsgo.DisconnectErrHandler(func(_ *natsgo.Conn, err error) {
			logger.Warn("nats disconnected", "error", err)
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			logger.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
		natsgo.ClosedHandler(func(_ *natsgo.Conn) {
			logger.Info("nats connection closed")
		}),
	}

	nc, err := natsgo.Connect(url, options...)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	return nc, nil
}

// LoadBatch publishes every event and waits for the server to acknowledge
// the flush.
func (p *Publisher) LoadBatch(ctx context.Context, events []domain.OutputEvent) error {
	if len(events) == 0 {
		return nil
	}
	for _, e := range events {
		if err := p.conn.PublishMsg(toMsg(p.subject, e)); err != nil {
			return fmt.Errorf("publish to %s: %w", p.subject, err)
		}
	}
	if err := p.conn.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("flush nats: %w", err)
	}
	p.logger.Debug("location events published", "subject", p.subject, "count", len(events))
	return nil
}

// Close drains pending messages and closes the connection.
func (p *Publisher) Close() error {
	if err := p.conn.Drain(); err != nil {
		return fmt.Errorf("drain nats: %w", err)
	}
	return nil
}

func toMsg(subject string, e domain.OutputEvent) *natsgo.Msg {
	msg := natsgo.NewMsg(subject)
	msg.Data = e.Value
	msg.Header.Set(KeyHeader, string(e.Key))
	for k, v := range e.Headers {
		msg.Header.Set(k, v)
	}
	return msg
}
