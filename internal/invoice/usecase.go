package invoice

import (
	"context"

	"github.com/fekuna/omnipos-fiscal-service/internal/invoice/dto"
	"github.com/fekuna/omnipos-fiscal-service/internal/model"
)

type UseCase interface {
	CreateInvoice(ctx context.Context, req *dto.SaleRequest) (*model.Invoice, error)
	// CreateInvoiceWithOverride is CreateInvoice for an operator allowed to bypass
	// the duplicate chassis guard.
	CreateInvoiceWithOverride(ctx context.Context, req *dto.SaleRequest, grant dto.OverrideGrant) (*model.Invoice, error)
	// SyncInvoice is the single submission path shared by creation and reconciliation.
	SyncInvoice(ctx context.Context, invoiceID string) (*model.Invoice, error)
	RetryFailed(ctx context.Context, invoiceID, operator string) (*model.Invoice, error)

	GetInvoice(ctx context.Context, id string) (*model.Invoice, error)
	ListPending(ctx context.Context, limit int) ([]model.Invoice, error)
	CountPending(ctx context.Context) (int, error)

	GenerateNextInvoiceNumber(ctx context.Context) (string, error)
	IsChassisUsedInPostedInvoice(ctx context.Context, chassis string) (bool, error)
}
