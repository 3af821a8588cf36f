package publisher

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/fekuna/omnipos-fiscal-service/internal/invoice"
)

// MessageWriter is the producing side of the broker.
type MessageWriter interface {
	Publish(ctx context.Context, topic, key string, value []byte) error
}

// KafkaPublisher emits invoice lifecycle events keyed by invoice id, so every
// event of one invoice lands on the same partition in order.
type KafkaPublisher struct {
	writer MessageWriter
	topic  string
}

func NewKafkaPublisher(writer MessageWriter, topic string) *KafkaPublisher {
	return &KafkaPublisher{writer: writer, topic: topic}
}

func (p *KafkaPublisher) PublishInvoiceEvent(ctx context.Context, ev invoice.Event) error {
	value, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", ev.Type, err)
	}
	if err := p.writer.Publish(ctx, p.topic, ev.InvoiceID, value); err != nil {
		return fmt.Errorf("failed to publish %s event: %w", ev.Type, err)
	}
	return nil
}
