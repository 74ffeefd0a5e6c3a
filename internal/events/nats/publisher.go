package nats

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/fastprodman/QuantumCredits/internal/events"
	"github.com/nats-io/nats.go"
)

type Publisher struct {
	nc      *nats.Conn
	subject string
}

var _ events.Publisher = (*Publisher)(nil)

// Connect dials url and keeps reconnecting for the life of the process.
func Connect(url, subject string) (*Publisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("quantum-credits"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("nats disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			slog.Info("nats reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	return &Publisher{nc: nc, subject: subject}, nil
}

func (p *Publisher) Publish(_ context.Context, e events.Event) error {
	data, err := events.Encode(e)
	if err != nil {
		return err
	}

	err = p.nc.Publish(p.subject, data)
	if err != nil {
		return fmt.Errorf("nats publish %s: %w", p.subject, err)
	}

	return nil
}

// Close flushes buffered messages and closes the connection.
func (p *Publisher) Close() error {
	return p.nc.Drain()
}
