package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

type txKey struct{}

// Transactor is the unit-of-work boundary usecases depend on.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// TxManager runs a unit of work in one local transaction. Repositories pick the
// transaction up from the context through Executor, so several repositories can
// share a single commit.
type TxManager struct {
	db *sqlx.DB
}

func NewTxManager(db *sqlx.DB) *TxManager {
	return &TxManager{db: db}
}

// WithinTx commits when fn returns nil and rolls back otherwise. Nested calls join
// the outer transaction.
func (m *TxManager) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*sqlx.Tx); ok {
		return fn(ctx)
	}

	tx, err := m.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Executor returns the transaction bound to ctx, falling back to db.
func Executor(ctx context.Context, db *sqlx.DB) sqlx.ExtContext {
	if tx, ok := ctx.Value(txKey{}).(*sqlx.Tx); ok {
		return tx
	}
	return db
}

// AdvisoryLock takes a transaction-scoped lock on key. On PostgreSQL it is
// pg_advisory_xact_lock; SQLite already holds the database write lock for the
// whole transaction, so nothing is needed there.
func AdvisoryLock(ctx context.Context, ext sqlx.ExtContext, key string) error {
	if ext.DriverName() == DriverSQLite {
		return nil
	}
	if _, err := ext.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, key); err != nil {
		return fmt.Errorf("failed to take advisory lock: %w", err)
	}
	return nil
}

// ForUpdate returns the row-locking suffix for drivers that support it. SQLite
// already holds the database write lock for the whole transaction.
func ForUpdate(ext sqlx.ExtContext) string {
	if ext.DriverName() == DriverSQLite {
		return ""
	}
	return " FOR UPDATE"
}
