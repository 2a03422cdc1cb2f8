package database

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"go.uber.org/zap"
)

// RunMigrations brings the mapping store schema (mapping_plans,
// column_mappings, transform_results, lineage_records) up to date from the
// SQL files in migrationsPath. Idempotent: already-applied migrations are
// skipped.
func RunMigrations(db *sql.DB, migrationsPath string, logger *zap.Logger) error {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		fmt.Sprintf("file://%s", migrationsPath),
		"postgres", driver)
	if err != nil {
		return fmt.Errorf("failed to open migrations at %s: %w", migrationsPath, err)
	}

	defer func() {
		srcErr, dbErr := m.Close()
		if srcErr != nil {
			logger.Warn("Failed to close migration source", zap.Error(srcErr))
		}
		if dbErr != nil {
			logger.Warn("Failed to close migration database", zap.Error(dbErr))
		}
	}()

	err = m.Up()
	if errors.Is(err, migrate.ErrNoChange) {
		logger.Info("Mapping store schema up to date")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to migrate mapping store: %w", err)
	}

	version, dirty, _ := m.Version()
	logger.Info("Mapping store schema migrated",
		zap.Uint("version", version),
		zap.Bool("dirty", dirty))
	return nil
}
