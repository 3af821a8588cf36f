package inventory

import (
	"context"

	"github.com/fekuna/omnipos-fiscal-service/internal/inventory/dto"
	"github.com/fekuna/omnipos-fiscal-service/internal/model"
)

type UseCase interface {
	FindByChassis(ctx context.Context, chassis string) (*model.InventoryUnit, error)
	ListUnits(ctx context.Context, filters *dto.UnitFilters) ([]model.InventoryUnit, int, error)
	ReceiveUnit(ctx context.Context, input *dto.ReceiveUnitInput) (*model.InventoryUnit, error)

	// ReserveForSale stages the SOLD flip inside the caller's transaction.
	ReserveForSale(ctx context.Context, chassis, invoiceID string) (*model.InventoryUnit, error)
	// RecordImplicitReceipt records a unit that is being sold without ever being received.
	RecordImplicitReceipt(ctx context.Context, input *dto.ImplicitReceiptInput) (*model.InventoryUnit, error)

	IsChassisEverInvoiced(ctx context.Context, chassis string) (bool, error)
}
