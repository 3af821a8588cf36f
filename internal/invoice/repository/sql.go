package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fekuna/omnipos-fiscal-service/internal/invoice"
	"github.com/fekuna/omnipos-fiscal-service/internal/model"
	"github.com/fekuna/omnipos-fiscal-service/pkg/database"
	"github.com/jmoiron/sqlx"
)

// chassisLockPrefix namespaces chassis advisory locks.
const chassisLockPrefix = "invoice.chassis:"

const invoiceColumns = `
    id, invoice_number, usin, customer_id, payment_mode, invoice_type, total_quantity,
    sale_value, tax_charged, further_tax, discount, total_amount, sync_status, fiscal_id,
    sync_message, raw_response, sync_attempts, sync_token, sync_claimed_at,
    status_updated_at, override_reason, created_at`

const lineItemColumns = `
    id, invoice_id, line_no, item_code, item_name, quantity, tax_rate, sale_value,
    tax_charged, further_tax, discount, total_amount, pct_code, chassis_number,
    engine_number, inventory_unit_id`

type SQLRepository struct {
	DB *sqlx.DB
}

func NewSQLRepository(db *sqlx.DB) *SQLRepository {
	return &SQLRepository{DB: db}
}

func (r *SQLRepository) Create(ctx context.Context, inv *model.Invoice) error {
	ext := database.Executor(ctx, r.DB)

	query := `
        INSERT INTO invoices (` + invoiceColumns + `)
        VALUES (
            :id, :invoice_number, :usin, :customer_id, :payment_mode, :invoice_type, :total_quantity,
            :sale_value, :tax_charged, :further_tax, :discount, :total_amount, :sync_status, :fiscal_id,
            :sync_message, :raw_response, :sync_attempts, :sync_token, :sync_claimed_at,
            :status_updated_at, :override_reason, :created_at
        )
    `
	if _, err := sqlx.NamedExecContext(ctx, ext, query, inv); err != nil {
		return fmt.Errorf("failed to insert invoice: %w", err)
	}

	itemQuery := `
        INSERT INTO invoice_line_items (` + lineItemColumns + `)
        VALUES (
            :id, :invoice_id, :line_no, :item_code, :item_name, :quantity, :tax_rate, :sale_value,
            :tax_charged, :further_tax, :discount, :total_amount, :pct_code, :chassis_number,
            :engine_number, :inventory_unit_id
        )
    `
	for i := range inv.Items {
		if _, err := sqlx.NamedExecContext(ctx, ext, itemQuery, &inv.Items[i]); err != nil {
			return fmt.Errorf("failed to insert line %d: %w", inv.Items[i].LineNo, err)
		}
	}
	return nil
}

func (r *SQLRepository) FindByID(ctx context.Context, id string) (*model.Invoice, error) {
	ext := database.Executor(ctx, r.DB)

	var inv model.Invoice
	query := ext.Rebind(`SELECT` + invoiceColumns + ` FROM invoices WHERE id = ?`)
	if err := sqlx.GetContext(ctx, ext, &inv, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	itemQuery := ext.Rebind(`SELECT` + lineItemColumns + ` FROM invoice_line_items WHERE invoice_id = ? ORDER BY line_no`)
	if err := sqlx.SelectContext(ctx, ext, &inv.Items, itemQuery, id); err != nil {
		return nil, fmt.Errorf("failed to load line items: %w", err)
	}
	return &inv, nil
}

// ListByStatus returns headers only, oldest first.
func (r *SQLRepository) ListByStatus(ctx context.Context, status model.SyncStatus, limit int) ([]model.Invoice, error) {
	ext := database.Executor(ctx, r.DB)

	query := `SELECT` + invoiceColumns + ` FROM invoices WHERE sync_status = ? ORDER BY created_at ASC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	var items []model.Invoice
	err := sqlx.SelectContext(ctx, ext, &items, ext.Rebind(query), status)
	return items, err
}

func (r *SQLRepository) CountByStatus(ctx context.Context, status model.SyncStatus) (int, error) {
	ext := database.Executor(ctx, r.DB)

	var n int
	err := sqlx.GetContext(ctx, ext, &n, ext.Rebind(`SELECT COUNT(*) FROM invoices WHERE sync_status = ?`), status)
	return n, err
}

func (r *SQLRepository) FindLastNumber(ctx context.Context, prefix string) (string, error) {
	ext := database.Executor(ctx, r.DB)

	// Longer numbers sort first so 10000 beats 9999.
	query := ext.Rebind(`
        SELECT invoice_number FROM invoices
        WHERE invoice_number LIKE ? ESCAPE '\'
        ORDER BY LENGTH(invoice_number) DESC, invoice_number DESC
        LIMIT 1`)

	var number string
	err := sqlx.GetContext(ctx, ext, &number, query, escapeLike(prefix)+"%")
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", err
	}
	return number, nil
}

func (r *SQLRepository) LockChassis(ctx context.Context, chassis string) error {
	return database.AdvisoryLock(ctx, database.Executor(ctx, r.DB), chassisLockPrefix+chassis)
}

func (r *SQLRepository) CountChassisInvoices(ctx context.Context, chassis string, statuses []model.SyncStatus, excludeID string) (int, error) {
	ext := database.Executor(ctx, r.DB)

	query, args, err := sqlx.In(`
        SELECT COUNT(DISTINCT i.id) FROM invoice_line_items li
        JOIN invoices i ON i.id = li.invoice_id
        WHERE li.chassis_number = ? AND i.sync_status IN (?) AND i.id <> ?`,
		chassis, statuses, excludeID)
	if err != nil {
		return 0, err
	}

	var n int
	err = sqlx.GetContext(ctx, ext, &n, ext.Rebind(query), args...)
	return n, err
}

// ClaimSync takes the per-invoice sync lease. It succeeds only while the invoice is
// PENDING and no live lease exists; a lease older than staleBefore is taken over.
func (r *SQLRepository) ClaimSync(ctx context.Context, id, token string, now, staleBefore time.Time) (bool, error) {
	ext := database.Executor(ctx, r.DB)

	query := ext.Rebind(`
        UPDATE invoices
        SET sync_token = ?, sync_claimed_at = ?, sync_attempts = sync_attempts + 1
        WHERE id = ? AND sync_status = ?
          AND (sync_token IS NULL OR sync_claimed_at < ?)`)

	res, err := ext.ExecContext(ctx, query, token, now.UTC(), id, model.SyncStatusPending, staleBefore.UTC())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// RecordOutcome writes the result of an attempt and releases the lease. It reports
// false when the lease was lost to another worker.
func (r *SQLRepository) RecordOutcome(ctx context.Context, id, token string, o invoice.Outcome) (bool, error) {
	ext := database.Executor(ctx, r.DB)

	query := ext.Rebind(`
        UPDATE invoices
        SET sync_status = ?, fiscal_id = ?, sync_message = ?, raw_response = COALESCE(?, raw_response),
            status_updated_at = ?, sync_token = NULL, sync_claimed_at = NULL
        WHERE id = ? AND sync_token = ?`)

	res, err := ext.ExecContext(ctx, query, o.Status, o.FiscalID, o.Message, o.Raw, o.At.UTC(), id, token)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *SQLRepository) ResetToPending(ctx context.Context, id, message string, now time.Time) (bool, error) {
	ext := database.Executor(ctx, r.DB)

	query := ext.Rebind(`
        UPDATE invoices
        SET sync_status = ?, sync_message = ?, status_updated_at = ?, sync_token = NULL, sync_claimed_at = NULL
        WHERE id = ? AND sync_status = ?`)

	res, err := ext.ExecContext(ctx, query, model.SyncStatusPending, message, now.UTC(), id, model.SyncStatusFailed)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
