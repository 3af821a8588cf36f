package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/fekuna/omnipos-fiscal-service/pkg/database"
	"github.com/jmoiron/sqlx"
)

type SQLRepository struct {
	DB *sqlx.DB
}

func NewSQLRepository(db *sqlx.DB) *SQLRepository {
	return &SQLRepository{DB: db}
}

func (r *SQLRepository) Get(ctx context.Context, key string) (string, bool, error) {
	ext := database.Executor(ctx, r.DB)

	var value string
	err := sqlx.GetContext(ctx, ext, &value, ext.Rebind(`SELECT value FROM app_settings WHERE key = ?`), key)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, err
	}
	return value, true, nil
}

func (r *SQLRepository) Set(ctx context.Context, key, value string, at time.Time) error {
	ext := database.Executor(ctx, r.DB)

	query := ext.Rebind(`
        INSERT INTO app_settings (key, value, updated_at) VALUES (?, ?, ?)
        ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`)

	_, err := ext.ExecContext(ctx, query, key, value, at.UTC())
	return err
}
