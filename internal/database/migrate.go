package database

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
var MigrationFS embed.FS

// RunMigrations applies every pending embedded migration. A dirty state left
// by a crashed run is forced back one version and retried once.
func RunMigrations(db *sql.DB, logger *zap.Logger) error {
	source, err := iofs.New(MigrationFS, "migrations")
	if err != nil {
		return fmt.Errorf("migrate source: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			logger.Info("Database is up to date, no migrations to run")
			return nil
		}

		var dirtyErr migrate.ErrDirty
		if !errors.As(err, &dirtyErr) || dirtyErr.Version <= 0 {
			return fmt.Errorf("failed to run migrations: %w", err)
		}

		logger.Warn("Detected dirty migration state, forcing previous version to retry", zap.Int("version", dirtyErr.Version))
		if forceErr := m.Force(dirtyErr.Version - 1); forceErr != nil {
			return fmt.Errorf("failed to force migration version: %w", forceErr)
		}
		if retryErr := m.Up(); retryErr != nil && !errors.Is(retryErr, migrate.ErrNoChange) {
			return fmt.Errorf("failed to run migrations after dirty fix: %w", retryErr)
		}
	}

	version, dirty, _ := m.Version()
	logger.Info("Migrations completed successfully", zap.Uint("version", version), zap.Bool("dirty", dirty))

	return nil
}
