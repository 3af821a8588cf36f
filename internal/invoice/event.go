package invoice

import (
	"context"
	"time"

	"github.com/fekuna/omnipos-fiscal-service/internal/model"
)

type EventType string

const (
	EventCreated        EventType = "invoice.created"
	EventSynced         EventType = "invoice.synced"
	EventFailed         EventType = "invoice.failed"
	EventQueued         EventType = "invoice.queued"
	EventRetryRequested EventType = "invoice.retry_requested"
)

// EventTypeFor names the event emitted after a sync attempt lands in status.
func EventTypeFor(status model.SyncStatus) EventType {
	switch status {
	case model.SyncStatusSynced:
		return EventSynced
	case model.SyncStatusFailed:
		return EventFailed
	case model.SyncStatusPending, model.SyncStatusDraft:
		return EventQueued
	default:
		panic("unhandled sync status " + string(status))
	}
}

type Event struct {
	Type          EventType        `json:"type"`
	InvoiceID     string           `json:"invoice_id"`
	InvoiceNumber string           `json:"invoice_number"`
	Status        model.SyncStatus `json:"sync_status"`
	FiscalID      string           `json:"fiscal_id,omitempty"`
	Message       string           `json:"message"`
	Attempts      int              `json:"sync_attempts"`
	TotalAmount   string           `json:"total_amount"`
	Chassis       []string         `json:"chassis,omitempty"`
	OccurredAt    time.Time        `json:"occurred_at"`
}

// NewEvent snapshots inv for publishing.
func NewEvent(t EventType, inv *model.Invoice, at time.Time) Event {
	ev := Event{
		Type:          t,
		InvoiceID:     inv.ID,
		InvoiceNumber: inv.InvoiceNumber,
		Status:        inv.SyncStatus,
		Message:       inv.SyncMessage,
		Attempts:      inv.SyncAttempts,
		TotalAmount:   inv.TotalAmount.String(),
		Chassis:       inv.ChassisNumbers(),
		OccurredAt:    at,
	}
	if inv.FiscalID != nil {
		ev.FiscalID = *inv.FiscalID
	}
	return ev
}

// EventPublisher receives invoice lifecycle events. Failures never affect invoice state.
type EventPublisher interface {
	PublishInvoiceEvent(ctx context.Context, ev Event) error
}
