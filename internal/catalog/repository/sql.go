package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/fekuna/omnipos-fiscal-service/internal/model"
	"github.com/fekuna/omnipos-fiscal-service/pkg/database"
	"github.com/jmoiron/sqlx"
)

const priceColumns = `
    p.id, p.product_model_id, m.name AS model_name, p.base_amount, p.tax_amount,
    p.levy_amount, p.total_amount, p.colors, p.color_key, p.effective_at,
    p.expires_at, p.created_at`

type SQLRepository struct {
	DB *sqlx.DB
}

func NewSQLRepository(db *sqlx.DB) *SQLRepository {
	return &SQLRepository{DB: db}
}

func (r *SQLRepository) FindModelByName(ctx context.Context, name string) (*model.ProductModel, error) {
	ext := database.Executor(ctx, r.DB)

	var m model.ProductModel
	query := ext.Rebind(`SELECT id, name, make, tax_code, created_at FROM product_models WHERE name = ?`)
	err := sqlx.GetContext(ctx, ext, &m, query, name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &m, nil
}

func (r *SQLRepository) CreateModel(ctx context.Context, m *model.ProductModel) error {
	query := `
        INSERT INTO product_models (id, name, make, tax_code, created_at)
        VALUES (:id, :name, :make, :tax_code, :created_at)
        ON CONFLICT (name) DO NOTHING
    `
	_, err := sqlx.NamedExecContext(ctx, database.Executor(ctx, r.DB), query, m)
	return err
}

// FindActivePrices returns the open-ended prices of a model, oldest first.
func (r *SQLRepository) FindActivePrices(ctx context.Context, modelID string) ([]model.Price, error) {
	ext := database.Executor(ctx, r.DB)

	query := ext.Rebind(`SELECT` + priceColumns + `
        FROM prices p JOIN product_models m ON m.id = p.product_model_id
        WHERE p.product_model_id = ? AND p.expires_at IS NULL
        ORDER BY p.effective_at ASC, p.created_at ASC`)

	var prices []model.Price
	err := sqlx.SelectContext(ctx, ext, &prices, query, modelID)
	return prices, err
}

func (r *SQLRepository) FindPriceAt(ctx context.Context, modelID string, at time.Time) (*model.Price, error) {
	ext := database.Executor(ctx, r.DB)

	query := ext.Rebind(`SELECT` + priceColumns + `
        FROM prices p JOIN product_models m ON m.id = p.product_model_id
        WHERE p.product_model_id = ?
          AND p.effective_at <= ?
          AND (p.expires_at IS NULL OR p.expires_at > ?)
        ORDER BY p.effective_at DESC, p.created_at DESC
        LIMIT 1`)

	var p model.Price
	err := sqlx.GetContext(ctx, ext, &p, query, modelID, at.UTC(), at.UTC())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

func (r *SQLRepository) ListPrices(ctx context.Context, modelID string) ([]model.Price, error) {
	ext := database.Executor(ctx, r.DB)

	query := ext.Rebind(`SELECT` + priceColumns + `
        FROM prices p JOIN product_models m ON m.id = p.product_model_id
        WHERE p.product_model_id = ?
        ORDER BY p.effective_at DESC, p.created_at DESC`)

	var prices []model.Price
	err := sqlx.SelectContext(ctx, ext, &prices, query, modelID)
	return prices, err
}

func (r *SQLRepository) CreatePrice(ctx context.Context, p *model.Price) error {
	query := `
        INSERT INTO prices (
            id, product_model_id, base_amount, tax_amount, levy_amount, total_amount,
            colors, color_key, effective_at, expires_at, created_at
        )
        VALUES (
            :id, :product_model_id, :base_amount, :tax_amount, :levy_amount, :total_amount,
            :colors, :color_key, :effective_at, :expires_at, :created_at
        )
    `
	_, err := sqlx.NamedExecContext(ctx, database.Executor(ctx, r.DB), query, p)
	return err
}

// ExpireActivePrice soft-closes the active price of a (model, color set) slot.
func (r *SQLRepository) ExpireActivePrice(ctx context.Context, modelID, colorKey string, at time.Time) (int64, error) {
	ext := database.Executor(ctx, r.DB)

	query := ext.Rebind(`
        UPDATE prices SET expires_at = ?
        WHERE product_model_id = ? AND color_key = ? AND expires_at IS NULL`)

	res, err := ext.ExecContext(ctx, query, at.UTC(), modelID, colorKey)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
