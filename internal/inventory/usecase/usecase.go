package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fekuna/omnipos-fiscal-service/internal/inventory"
	"github.com/fekuna/omnipos-fiscal-service/internal/inventory/dto"
	"github.com/fekuna/omnipos-fiscal-service/internal/model"
	"github.com/fekuna/omnipos-fiscal-service/pkg/database"
	"github.com/fekuna/omnipos-fiscal-service/pkg/logger"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ModelResolver creates product models on first use.
type ModelResolver interface {
	EnsureModel(ctx context.Context, name string) (*model.ProductModel, error)
}

type inventoryUseCase struct {
	repo   inventory.Repository
	models ModelResolver
	tx     database.Transactor
	logger logger.ZapLogger
	now    func() time.Time
}

func NewInventoryUseCase(repo inventory.Repository, models ModelResolver, tx database.Transactor, log logger.ZapLogger) inventory.UseCase {
	return &inventoryUseCase{
		repo:   repo,
		models: models,
		tx:     tx,
		logger: log,
		now:    time.Now,
	}
}

func (uc *inventoryUseCase) FindByChassis(ctx context.Context, chassis string) (*model.InventoryUnit, error) {
	chassis = inventory.NormalizeChassis(chassis)
	if chassis == "" {
		return nil, inventory.ErrChassisRequired
	}

	unit, err := uc.repo.FindByChassis(ctx, chassis)
	if err != nil {
		return nil, err
	}
	if unit == nil {
		return nil, inventory.ErrNotFound
	}
	return unit, nil
}

func (uc *inventoryUseCase) ListUnits(ctx context.Context, filters *dto.UnitFilters) ([]model.InventoryUnit, int, error) {
	return uc.repo.FindAll(ctx, filters)
}

func (uc *inventoryUseCase) ReceiveUnit(ctx context.Context, input *dto.ReceiveUnitInput) (*model.InventoryUnit, error) {
	chassis := inventory.NormalizeChassis(input.ChassisNumber)
	if chassis == "" {
		return nil, inventory.ErrChassisRequired
	}
	if input.CostPrice.IsNegative() || input.SalePrice.IsNegative() {
		return nil, inventory.ErrInvalidPrice
	}

	m, err := uc.models.EnsureModel(ctx, input.ModelName)
	if err != nil {
		return nil, err
	}

	now := uc.now().UTC()
	unit := &model.InventoryUnit{
		ID:             uuid.New().String(),
		ChassisNumber:  chassis,
		EngineNumber:   optionalEngine(input.EngineNumber),
		ProductModelID: &m.ID,
		Color:          strings.TrimSpace(input.Color),
		Status:         model.UnitStatusInStock,
		CostPrice:      input.CostPrice,
		SalePrice:      input.SalePrice,
		PurchaseDate:   input.PurchaseDate,
		ReceiptKind:    model.ReceiptKindIntake,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := uc.repo.Create(ctx, unit); err != nil {
		if database.IsUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %s", inventory.ErrDuplicateUnit, chassis)
		}
		return nil, fmt.Errorf("failed to receive unit: %w", err)
	}

	uc.logger.Info("inventory unit received",
		zap.String("chassis", chassis),
		zap.String("model", m.Name),
	)
	return unit, nil
}

func (uc *inventoryUseCase) ReserveForSale(ctx context.Context, chassis, invoiceID string) (*model.InventoryUnit, error) {
	chassis = inventory.NormalizeChassis(chassis)
	if chassis == "" {
		return nil, inventory.ErrChassisRequired
	}

	var unit *model.InventoryUnit
	err := uc.tx.WithinTx(ctx, func(ctx context.Context) error {
		u, err := uc.repo.FindByChassisForUpdate(ctx, chassis)
		if err != nil {
			return err
		}
		if u == nil {
			return inventory.ErrNotFound
		}
		if !u.IsSellable() {
			return fmt.Errorf("%w: %s is %s", inventory.ErrNotInStock, chassis, u.Status)
		}

		now := uc.now().UTC()
		ok, err := uc.repo.MarkSold(ctx, u.ID, invoiceID, now)
		if err != nil {
			return fmt.Errorf("failed to mark unit sold: %w", err)
		}
		if !ok {
			// Another writer flipped it between our read and update.
			return fmt.Errorf("%w: %s", inventory.ErrNotInStock, chassis)
		}

		u.Status = model.UnitStatusSold
		u.SoldInvoiceID = &invoiceID
		u.UpdatedAt = now
		unit = u
		return nil
	})
	if err != nil {
		return nil, err
	}
	return unit, nil
}

func (uc *inventoryUseCase) RecordImplicitReceipt(ctx context.Context, input *dto.ImplicitReceiptInput) (*model.InventoryUnit, error) {
	chassis := inventory.NormalizeChassis(input.ChassisNumber)
	if chassis == "" {
		return nil, inventory.ErrChassisRequired
	}

	var unit *model.InventoryUnit
	err := uc.tx.WithinTx(ctx, func(ctx context.Context) error {
		m, err := uc.models.EnsureModel(ctx, input.ModelName)
		if err != nil {
			return err
		}

		now := uc.now().UTC()
		u := &model.InventoryUnit{
			ID:             uuid.New().String(),
			ChassisNumber:  chassis,
			EngineNumber:   optionalEngine(input.EngineNumber),
			ProductModelID: &m.ID,
			Color:          strings.TrimSpace(input.Color),
			Status:         model.UnitStatusSold,
			CostPrice:      decimal.Zero,
			SalePrice:      decimal.Zero,
			ReceiptKind:    model.ReceiptKindImplicit,
			SoldInvoiceID:  &input.InvoiceID,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := uc.repo.Create(ctx, u); err != nil {
			if database.IsUniqueViolation(err) {
				return fmt.Errorf("%w: %s", inventory.ErrDuplicateUnit, chassis)
			}
			return fmt.Errorf("failed to record implicit receipt: %w", err)
		}
		unit = u
		return nil
	})
	if err != nil {
		return nil, err
	}

	uc.logger.Warn("implicit receipt recorded for unit never received into inventory",
		zap.String("chassis", chassis),
		zap.String("model", input.ModelName),
		zap.String("color", input.Color),
		zap.String("invoice_number", input.InvoiceNumber),
	)
	return unit, nil
}

func (uc *inventoryUseCase) IsChassisEverInvoiced(ctx context.Context, chassis string) (bool, error) {
	chassis = inventory.NormalizeChassis(chassis)
	if chassis == "" {
		return false, inventory.ErrChassisRequired
	}
	return uc.repo.IsChassisEverInvoiced(ctx, chassis)
}

func optionalEngine(engine string) *string {
	engine = strings.ToUpper(strings.TrimSpace(engine))
	if engine == "" {
		return nil
	}
	return &engine
}
