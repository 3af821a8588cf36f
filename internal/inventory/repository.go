package inventory

import (
	"context"
	"time"

	"github.com/fekuna/omnipos-fiscal-service/internal/inventory/dto"
	"github.com/fekuna/omnipos-fiscal-service/internal/model"
)

type Repository interface {
	// Units
	FindByChassis(ctx context.Context, chassis string) (*model.InventoryUnit, error)
	FindByChassisForUpdate(ctx context.Context, chassis string) (*model.InventoryUnit, error)
	FindAll(ctx context.Context, filters *dto.UnitFilters) ([]model.InventoryUnit, int, error)
	Create(ctx context.Context, unit *model.InventoryUnit) error

	// MarkSold flips IN_STOCK to SOLD. It reports false when the unit was no longer in stock.
	MarkSold(ctx context.Context, unitID, invoiceID string, at time.Time) (bool, error)

	// Fiscal history
	IsChassisEverInvoiced(ctx context.Context, chassis string) (bool, error)
}
