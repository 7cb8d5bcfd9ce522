package main

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// MigrateBooksSchema applies all pending embedded migrations to the database.
// Having nothing to apply is not an error. It runs on its own short-lived pool
// since closing the migrator closes the database handle it was given.
func MigrateBooksSchema(logger *zap.Logger, pc *PostgresConfig) error {
	db, err := sql.Open(pc.Driver, pc.DSN())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		db.Close()
		return fmt.Errorf("failed to load migrations: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		db.Close()
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		driver.Close()
		return fmt.Errorf("failed to create migrator: %w", err)
	}
	defer func() {
		if serr, derr := m.Close(); serr != nil || derr != nil {
			logger.Warn("storage: failed to close migrator", zap.NamedError("source.error", serr), zap.NamedError("database.error", derr))
		}
	}()

	err = m.Up()
	if errors.Is(err, migrate.ErrNoChange) {
		logger.Info("storage: schema already up to date")
		return nil
	}
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	version, dirty, verr := m.Version()
	logger.Info("storage: schema migrated", zap.Uint("version", version), zap.Bool("dirty", dirty), zap.NamedError("version.error", verr))
	return nil
}
