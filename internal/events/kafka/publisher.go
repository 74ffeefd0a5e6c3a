package kafka

import (
	"context"
	"fmt"

	"github.com/fastprodman/QuantumCredits/internal/events"
	"github.com/segmentio/kafka-go"
)

type Publisher struct {
	writer *kafka.Writer
}

var _ events.Publisher = (*Publisher)(nil)

func NewPublisher(brokers []string, topic string) *Publisher {
	return &Publisher{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    topic,
			Balancer: &kafka.LeastBytes{},
		},
	}
}

func (p *Publisher) Publish(ctx context.Context, e events.Event) error {
	msg, err := message(e)
	if err != nil {
		return err
	}

	err = p.writer.WriteMessages(ctx, msg)
	if err != nil {
		return fmt.Errorf("kafka write %s: %w", p.writer.Topic, err)
	}

	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

func message(e events.Event) (kafka.Message, error) {
	data, err := events.Encode(e)
	if err != nil {
		return kafka.Message{}, err
	}

	return kafka.Message{
		Key:   []byte(e.Name),
		Value: data,
		Time:  e.OccurredAt,
	}, nil
}
