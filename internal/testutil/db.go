package testutil

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/fekuna/omnipos-fiscal-service/pkg/database"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
)

// NewSQLiteDB returns a migrated SQLite store living in t.TempDir().
func NewSQLiteDB(t *testing.T) *sqlx.DB {
	t.Helper()

	cfg := &database.Config{
		Driver:     database.DriverSQLite,
		SQLitePath: filepath.Join(t.TempDir(), "fiscal.db"),
	}
	require.NoError(t, database.Migrate(cfg))

	db, err := database.Open(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return db
}
