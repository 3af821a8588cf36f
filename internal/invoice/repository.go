package invoice

import (
	"context"
	"time"

	"github.com/fekuna/omnipos-fiscal-service/internal/model"
)

type Repository interface {
	// Create inserts the invoice header and its line items.
	Create(ctx context.Context, inv *model.Invoice) error
	FindByID(ctx context.Context, id string) (*model.Invoice, error)
	ListByStatus(ctx context.Context, status model.SyncStatus, limit int) ([]model.Invoice, error)
	CountByStatus(ctx context.Context, status model.SyncStatus) (int, error)

	// FindLastNumber returns the highest invoice number carrying prefix, or "" when none exists.
	FindLastNumber(ctx context.Context, prefix string) (string, error)
	// CountChassisInvoices counts invoices in statuses referencing chassis, ignoring excludeID.
	CountChassisInvoices(ctx context.Context, chassis string, statuses []model.SyncStatus, excludeID string) (int, error)
	// LockChassis serializes writers on chassis until the surrounding transaction ends.
	LockChassis(ctx context.Context, chassis string) error

	// Sync lease
	ClaimSync(ctx context.Context, id, token string, now, staleBefore time.Time) (bool, error)
	RecordOutcome(ctx context.Context, id, token string, o Outcome) (bool, error)
	ResetToPending(ctx context.Context, id, message string, now time.Time) (bool, error)
}
