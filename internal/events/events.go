// Package events forwards ledger changes to external sinks.
//
// The in-process notifier carries no payload, so the Forwarder turns each
// notification into an Event by reading the balance after the fact. Bursts
// of notifications collapse into one Event carrying the latest balance.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fastprodman/QuantumCredits/internal/services/notifier"
	"github.com/shopspring/decimal"
)

type Event struct {
	Name       string          `json:"name"`
	Balance    decimal.Decimal `json:"balance"`
	OccurredAt time.Time       `json:"occurredAt"`
}

// Encode is the wire form shared by every sink.
func Encode(e Event) ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal event: %w", err)
	}

	return data, nil
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, e Event) error

func (f PublisherFunc) Publish(ctx context.Context, e Event) error {
	return f(ctx, e)
}

type BalanceReader interface {
	Balance(ctx context.Context) (decimal.Decimal, error)
}

type Forwarder struct {
	ledger  BalanceReader
	sinks   []Publisher
	pending chan struct{}
	now     func() time.Time
}

func NewForwarder(ledger BalanceReader, buffer int, sinks ...Publisher) *Forwarder {
	if buffer < 1 {
		buffer = 1
	}

	return &Forwarder{
		ledger:  ledger,
		sinks:   sinks,
		pending: make(chan struct{}, buffer),
		now:     time.Now,
	}
}

// Attach subscribes the forwarder to n. The returned func detaches it.
func (f *Forwarder) Attach(n *notifier.Notifier) (detach func()) {
	return n.Subscribe(f.signal)
}

// signal never blocks the notifying mutation. A full buffer already holds
// a pending signal that will pick up this change too.
func (f *Forwarder) signal() {
	select {
	case f.pending <- struct{}{}:
	default:
	}
}

// Run publishes until ctx is done. Sink failures are logged and skipped.
func (f *Forwarder) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.pending:
			f.drain()
			f.forward(ctx)
		}
	}
}

func (f *Forwarder) drain() {
	for {
		select {
		case <-f.pending:
		default:
			return
		}
	}
}

func (f *Forwarder) forward(ctx context.Context) {
	balance, err := f.ledger.Balance(ctx)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			slog.ErrorContext(ctx, "read balance for event", "error", err)
		}

		return
	}

	e := Event{
		Name:       notifier.EventCreditsUpdated,
		Balance:    balance,
		OccurredAt: f.now().UTC(),
	}

	for _, sink := range f.sinks {
		err := sink.Publish(ctx, e)
		if err != nil {
			slog.WarnContext(ctx, "publish event failed", "event", e.Name, "error", err)
		}
	}
}
