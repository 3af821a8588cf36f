package usecase_test

import (
	"context"
	"testing"
	"time"

	catalogrepo "github.com/fekuna/omnipos-fiscal-service/internal/catalog/repository"
	catalogusecase "github.com/fekuna/omnipos-fiscal-service/internal/catalog/usecase"
	"github.com/fekuna/omnipos-fiscal-service/internal/inventory"
	"github.com/fekuna/omnipos-fiscal-service/internal/inventory/dto"
	"github.com/fekuna/omnipos-fiscal-service/internal/inventory/repository"
	"github.com/fekuna/omnipos-fiscal-service/internal/inventory/usecase"
	"github.com/fekuna/omnipos-fiscal-service/internal/model"
	"github.com/fekuna/omnipos-fiscal-service/internal/testutil"
	"github.com/fekuna/omnipos-fiscal-service/pkg/database"
	"github.com/fekuna/omnipos-fiscal-service/pkg/logger"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func newInventory(t *testing.T, log logger.ZapLogger) (inventory.UseCase, *sqlx.DB) {
	t.Helper()
	db := testutil.NewSQLiteDB(t)
	tx := database.NewTxManager(db)
	models := catalogusecase.NewCatalogUseCase(catalogrepo.NewSQLRepository(db), tx, logger.NewNop())
	return usecase.NewInventoryUseCase(repository.NewSQLRepository(db), models, tx, log), db
}

func receive(t *testing.T, uc inventory.UseCase, chassis string) *model.InventoryUnit {
	t.Helper()
	unit, err := uc.ReceiveUnit(context.Background(), &dto.ReceiveUnitInput{
		ChassisNumber: chassis,
		ModelName:     "CD-70",
		Color:         "Red",
		CostPrice:     decimal.NewFromInt(95000),
		SalePrice:     decimal.NewFromInt(110000),
	})
	require.NoError(t, err)
	return unit
}

func TestReceiveUnit_NormalizesChassis(t *testing.T) {
	uc, _ := newInventory(t, logger.NewNop())

	unit := receive(t, uc, "  ch-001 ")
	assert.Equal(t, "CH-001", unit.ChassisNumber)
	assert.Equal(t, model.ReceiptKindIntake, unit.ReceiptKind)

	found, err := uc.FindByChassis(context.Background(), "Ch-001")
	require.NoError(t, err)
	assert.Equal(t, unit.ID, found.ID)
	assert.Equal(t, model.UnitStatusInStock, found.Status)
}

func TestReceiveUnit_Duplicate(t *testing.T) {
	uc, _ := newInventory(t, logger.NewNop())
	receive(t, uc, "CH-001")

	_, err := uc.ReceiveUnit(context.Background(), &dto.ReceiveUnitInput{ChassisNumber: "ch-001", ModelName: "CD-70"})
	assert.ErrorIs(t, err, inventory.ErrDuplicateUnit)
}

func TestReserveForSale(t *testing.T) {
	ctx := context.Background()
	uc, _ := newInventory(t, logger.NewNop())
	receive(t, uc, "CH-001")

	unit, err := uc.ReserveForSale(ctx, "ch-001", "inv-1")
	require.NoError(t, err)
	assert.Equal(t, model.UnitStatusSold, unit.Status)
	require.NotNil(t, unit.SoldInvoiceID)
	assert.Equal(t, "inv-1", *unit.SoldInvoiceID)

	_, err = uc.ReserveForSale(ctx, "CH-001", "inv-2")
	assert.ErrorIs(t, err, inventory.ErrNotInStock)

	_, err = uc.ReserveForSale(ctx, "CH-404", "inv-3")
	assert.ErrorIs(t, err, inventory.ErrNotFound)
}

func TestReserveForSale_RolledBackWithOuterTx(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewSQLiteDB(t)
	tx := database.NewTxManager(db)
	models := catalogusecase.NewCatalogUseCase(catalogrepo.NewSQLRepository(db), tx, logger.NewNop())
	uc := usecase.NewInventoryUseCase(repository.NewSQLRepository(db), models, tx, logger.NewNop())
	receive(t, uc, "CH-001")

	err := tx.WithinTx(ctx, func(ctx context.Context) error {
		_, err := uc.ReserveForSale(ctx, "CH-001", "inv-1")
		require.NoError(t, err)
		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)

	unit, err := uc.FindByChassis(ctx, "CH-001")
	require.NoError(t, err)
	assert.Equal(t, model.UnitStatusInStock, unit.Status)
}

func TestRecordImplicitReceipt(t *testing.T) {
	log, logs := testutil.ObservedLogger()
	uc, _ := newInventory(t, log)

	unit, err := uc.RecordImplicitReceipt(context.Background(), &dto.ImplicitReceiptInput{
		ChassisNumber: "ch-900",
		EngineNumber:  "eng-900",
		ModelName:     "CG-125",
		Color:         "Black",
		InvoiceID:     "inv-9",
		InvoiceNumber: "USIN0-0009",
	})
	require.NoError(t, err)

	assert.Equal(t, "CH-900", unit.ChassisNumber)
	assert.Equal(t, model.UnitStatusSold, unit.Status)
	assert.Equal(t, model.ReceiptKindImplicit, unit.ReceiptKind)
	assert.True(t, unit.CostPrice.IsZero())

	warns := logs.FilterLevelExact(zapcore.WarnLevel).FilterField(zap.String("chassis", "CH-900"))
	assert.Equal(t, 1, warns.Len())

	units, total, err := uc.ListUnits(context.Background(), &dto.UnitFilters{ReceiptKind: string(model.ReceiptKindImplicit)})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, units, 1)
	assert.Equal(t, unit.ID, units[0].ID)
}

func TestIsChassisEverInvoiced_OnlySynced(t *testing.T) {
	ctx := context.Background()
	uc, db := newInventory(t, logger.NewNop())

	insertInvoice(t, db, "inv-p", "USIN0-0001", model.SyncStatusPending, "CH-001")
	used, err := uc.IsChassisEverInvoiced(ctx, "ch-001")
	require.NoError(t, err)
	assert.False(t, used)

	insertInvoice(t, db, "inv-s", "USIN0-0002", model.SyncStatusSynced, "CH-001")
	used, err = uc.IsChassisEverInvoiced(ctx, "ch-001")
	require.NoError(t, err)
	assert.True(t, used)
}

func insertInvoice(t *testing.T, db *sqlx.DB, id, number string, status model.SyncStatus, chassis string) {
	t.Helper()
	now := time.Now().UTC()
	_, err := db.Exec(`INSERT INTO invoices (id, invoice_number, usin, total_quantity, sale_value, tax_charged,
		further_tax, total_amount, sync_status, status_updated_at, created_at)
		VALUES (?, ?, 'USIN0', '1', '100', '18', '0', '118', ?, ?, ?)`, id, number, status, now, now)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO invoice_line_items (id, invoice_id, line_no, quantity, tax_rate, sale_value,
		tax_charged, further_tax, total_amount, chassis_number)
		VALUES (?, ?, 1, '1', '18', '100', '18', '0', '118', ?)`, id+"-1", id, chassis)
	require.NoError(t, err)
}
