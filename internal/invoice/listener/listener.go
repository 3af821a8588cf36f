package listener

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/fekuna/omnipos-fiscal-service/internal/invoice"
	"github.com/fekuna/omnipos-fiscal-service/internal/invoice/dto"
	"github.com/fekuna/omnipos-fiscal-service/pkg/logger"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const EventSaleRecorded = "SaleRecorded"

// MessageReader is the consuming side of the broker.
type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
}

// SaleListener turns sales recorded at the point of sale into invoices.
type SaleListener struct {
	consumer MessageReader
	uc       invoice.UseCase
	logger   logger.ZapLogger
	backoff  time.Duration
}

func NewSaleListener(consumer MessageReader, uc invoice.UseCase, logger logger.ZapLogger) *SaleListener {
	return &SaleListener{
		consumer: consumer,
		uc:       uc,
		logger:   logger,
		backoff:  time.Second,
	}
}

func (l *SaleListener) Start(ctx context.Context) {
	l.logger.Info("Starting sale Kafka listener")
	for {
		select {
		case <-ctx.Done():
			l.logger.Info("Stopping sale Kafka listener")
			return
		default:
			msg, err := l.consumer.ReadMessage(ctx)
			if err != nil {
				// Don't log context canceled error as error
				if ctx.Err() != nil {
					return
				}
				l.logger.Error("Failed to read kafka message", zap.Error(err))
				select {
				case <-ctx.Done():
					return
				case <-time.After(l.backoff):
				}
				continue
			}
			l.processMessage(ctx, msg.Value)
		}
	}
}

type SaleRecordedEvent struct {
	EventID   string          `json:"event_id"`
	EventType string          `json:"event_type"`
	Payload   dto.SaleRequest `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

func (l *SaleListener) processMessage(ctx context.Context, value []byte) {
	var event SaleRecordedEvent
	if err := json.Unmarshal(value, &event); err != nil {
		l.logger.Error("Failed to unmarshal event", zap.Error(err))
		return
	}

	if event.EventType != EventSaleRecorded {
		return
	}

	l.logger.Info("Processing SaleRecorded event",
		zap.String("event_id", event.EventID),
		zap.String("invoice_number", event.Payload.InvoiceNumber),
	)

	inv, err := l.uc.CreateInvoice(ctx, &event.Payload)
	switch {
	case err == nil:
		l.logger.Info("Invoice created from sale event",
			zap.String("event_id", event.EventID),
			zap.String("invoice_number", inv.InvoiceNumber),
			zap.String("sync_status", string(inv.SyncStatus)),
		)
	case errors.Is(err, invoice.ErrDuplicateInvoiceNumber):
		// Redelivery of an event we already turned into an invoice.
		l.logger.Info("Sale event already invoiced",
			zap.String("event_id", event.EventID),
			zap.String("invoice_number", event.Payload.InvoiceNumber),
		)
	default:
		l.logger.Error("Failed to create invoice for sale event",
			zap.String("event_id", event.EventID),
			zap.String("invoice_number", event.Payload.InvoiceNumber),
			zap.Error(err),
		)
	}
}
