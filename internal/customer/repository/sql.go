package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/fekuna/omnipos-fiscal-service/internal/model"
	"github.com/fekuna/omnipos-fiscal-service/pkg/database"
	"github.com/jmoiron/sqlx"
)

const customerColumns = `
    id, national_id, customer_type, name, business_name_key, ntn, phone, address,
    created_at, updated_at`

type SQLRepository struct {
	DB *sqlx.DB
}

func NewSQLRepository(db *sqlx.DB) *SQLRepository {
	return &SQLRepository{DB: db}
}

func (r *SQLRepository) FindByID(ctx context.Context, id string) (*model.Customer, error) {
	return r.findOne(ctx, "id", id)
}

func (r *SQLRepository) FindByNationalID(ctx context.Context, nationalID string) (*model.Customer, error) {
	return r.findOne(ctx, "national_id", nationalID)
}

func (r *SQLRepository) FindByBusinessNameKey(ctx context.Context, key string) (*model.Customer, error) {
	return r.findOne(ctx, "business_name_key", key)
}

func (r *SQLRepository) findOne(ctx context.Context, column, value string) (*model.Customer, error) {
	ext := database.Executor(ctx, r.DB)

	var c model.Customer
	query := ext.Rebind(`SELECT` + customerColumns + ` FROM customers WHERE ` + column + ` = ?`)
	err := sqlx.GetContext(ctx, ext, &c, query, value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

func (r *SQLRepository) Create(ctx context.Context, c *model.Customer) error {
	query := `
        INSERT INTO customers (
            id, national_id, customer_type, name, business_name_key, ntn, phone, address,
            created_at, updated_at
        )
        VALUES (
            :id, :national_id, :customer_type, :name, :business_name_key, :ntn, :phone, :address,
            :created_at, :updated_at
        )
    `
	_, err := sqlx.NamedExecContext(ctx, database.Executor(ctx, r.DB), query, c)
	return err
}

func (r *SQLRepository) Update(ctx context.Context, c *model.Customer) error {
	query := `
        UPDATE customers SET
            name = :name,
            ntn = :ntn,
            phone = :phone,
            address = :address,
            updated_at = :updated_at
        WHERE id = :id
    `
	_, err := sqlx.NamedExecContext(ctx, database.Executor(ctx, r.DB), query, c)
	return err
}
