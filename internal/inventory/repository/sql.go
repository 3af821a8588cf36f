package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fekuna/omnipos-fiscal-service/internal/inventory/dto"
	"github.com/fekuna/omnipos-fiscal-service/internal/model"
	"github.com/fekuna/omnipos-fiscal-service/pkg/database"
	"github.com/jmoiron/sqlx"
)

const unitColumns = `
    id, chassis_number, engine_number, product_model_id, color, status,
    cost_price, sale_price, purchase_date, receipt_kind, sold_invoice_id,
    created_at, updated_at`

type SQLRepository struct {
	DB *sqlx.DB
}

func NewSQLRepository(db *sqlx.DB) *SQLRepository {
	return &SQLRepository{DB: db}
}

func (r *SQLRepository) FindByChassis(ctx context.Context, chassis string) (*model.InventoryUnit, error) {
	return r.findByChassis(ctx, chassis, false)
}

// FindByChassisForUpdate locks the row until the enclosing transaction ends.
func (r *SQLRepository) FindByChassisForUpdate(ctx context.Context, chassis string) (*model.InventoryUnit, error) {
	return r.findByChassis(ctx, chassis, true)
}

func (r *SQLRepository) findByChassis(ctx context.Context, chassis string, lock bool) (*model.InventoryUnit, error) {
	ext := database.Executor(ctx, r.DB)

	query := `SELECT` + unitColumns + ` FROM inventory_units WHERE chassis_number = ?`
	if lock {
		query += database.ForUpdate(ext)
	}

	var unit model.InventoryUnit
	err := sqlx.GetContext(ctx, ext, &unit, ext.Rebind(query), chassis)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &unit, nil
}

func (r *SQLRepository) FindAll(ctx context.Context, f *dto.UnitFilters) ([]model.InventoryUnit, int, error) {
	var items []model.InventoryUnit
	var count int

	conditions := []string{}
	args := map[string]interface{}{}

	if f.Status != "" {
		conditions = append(conditions, "status = :status")
		args["status"] = f.Status
	}
	if f.ProductModelID != "" {
		conditions = append(conditions, "product_model_id = :product_model_id")
		args["product_model_id"] = f.ProductModelID
	}
	if f.ReceiptKind != "" {
		conditions = append(conditions, "receipt_kind = :receipt_kind")
		args["receipt_kind"] = f.ReceiptKind
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = " WHERE " + strings.Join(conditions, " AND ")
	}

	countQuery := "SELECT count(*) FROM inventory_units" + whereClause
	rows, err := r.DB.NamedQueryContext(ctx, countQuery, args)
	if err != nil {
		return nil, 0, err
	}
	if rows.Next() {
		if err := rows.Scan(&count); err != nil {
			rows.Close()
			return nil, 0, err
		}
	}
	rows.Close()

	query := "SELECT" + unitColumns + " FROM inventory_units" + whereClause + " ORDER BY updated_at DESC"
	if f.PageSize > 0 {
		page := f.Page
		if page < 1 {
			page = 1
		}
		query += fmt.Sprintf(" LIMIT %d OFFSET %d", f.PageSize, (page-1)*f.PageSize)
	}

	nstmt, err := r.DB.PrepareNamedContext(ctx, query)
	if err != nil {
		return nil, 0, err
	}
	defer nstmt.Close()

	err = nstmt.SelectContext(ctx, &items, args)
	return items, count, err
}

func (r *SQLRepository) Create(ctx context.Context, unit *model.InventoryUnit) error {
	query := `
        INSERT INTO inventory_units (
            id, chassis_number, engine_number, product_model_id, color, status,
            cost_price, sale_price, purchase_date, receipt_kind, sold_invoice_id,
            created_at, updated_at
        )
        VALUES (
            :id, :chassis_number, :engine_number, :product_model_id, :color, :status,
            :cost_price, :sale_price, :purchase_date, :receipt_kind, :sold_invoice_id,
            :created_at, :updated_at
        )
    `
	_, err := sqlx.NamedExecContext(ctx, database.Executor(ctx, r.DB), query, unit)
	return err
}

func (r *SQLRepository) MarkSold(ctx context.Context, unitID, invoiceID string, at time.Time) (bool, error) {
	ext := database.Executor(ctx, r.DB)

	query := ext.Rebind(`
        UPDATE inventory_units
        SET status = ?, sold_invoice_id = ?, updated_at = ?
        WHERE id = ? AND status = ?`)

	res, err := ext.ExecContext(ctx, query,
		model.UnitStatusSold, invoiceID, at.UTC(), unitID, model.UnitStatusInStock)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// IsChassisEverInvoiced looks only at fiscalized invoices; current stock state is irrelevant.
func (r *SQLRepository) IsChassisEverInvoiced(ctx context.Context, chassis string) (bool, error) {
	ext := database.Executor(ctx, r.DB)

	query := ext.Rebind(`
        SELECT COUNT(*) FROM invoice_line_items li
        JOIN invoices i ON i.id = li.invoice_id
        WHERE li.chassis_number = ? AND i.sync_status = ?`)

	var n int
	if err := sqlx.GetContext(ctx, ext, &n, query, chassis, model.SyncStatusSynced); err != nil {
		return false, err
	}
	return n > 0, nil
}
