package database

import (
	"embed"
	"errors"
	"fmt"
	"net/url"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations
var migrationsFS embed.FS

// Migrate applies the embedded schema migrations for the configured driver.
// It opens its own connection, so it is safe to run before or after Open.
func Migrate(cfg *Config) error {
	dir, dbURL, err := migrationTarget(cfg)
	if err != nil {
		return err
	}

	src, err := iofs.New(migrationsFS, dir)
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, dbURL)
	if err != nil {
		return fmt.Errorf("failed to init migrations: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}

func migrationTarget(cfg *Config) (string, string, error) {
	switch cfg.Driver {
	case DriverSQLite, "":
		if cfg.SQLitePath == "" {
			return "", "", fmt.Errorf("sqlite path is empty")
		}
		return "migrations/sqlite", "sqlite3://" + cfg.SQLitePath + "?_foreign_keys=on", nil
	case DriverPostgres, "postgres":
		u := url.URL{
			Scheme:   "pgx5",
			User:     url.UserPassword(cfg.User, cfg.Password),
			Host:     cfg.Host + ":" + cfg.Port,
			Path:     "/" + cfg.DBName,
			RawQuery: "sslmode=" + url.QueryEscape(cfg.SSLMode),
		}
		return "migrations/postgres", u.String(), nil
	default:
		return "", "", fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}
