package migrations

import (
	"fmt"

	"github.com/go-gormigrate/gormigrate/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// migrationsList holds all migrations in the order they are applied
var migrationsList = []*gormigrate.Migration{
	CreateUsersTable(),
	createJobsTableMigration(),
	createRewardTablesMigration(),
}

func newMigrator(db *gorm.DB) *gormigrate.Gormigrate {
	return gormigrate.New(db, gormigrate.DefaultOptions, migrationsList)
}

// RunMigrations runs all database migrations
func RunMigrations(db *gorm.DB, logger *zap.Logger) error {
	if err := newMigrator(db).Migrate(); err != nil {
		logger.Error("Could not migrate", zap.Error(err))
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	logger.Info("Migrations ran successfully", zap.Int("count", len(migrationsList)))
	return nil
}

// RollbackLast undoes the most recently applied migration
func RollbackLast(db *gorm.DB, logger *zap.Logger) error {
	if err := newMigrator(db).RollbackLast(); err != nil {
		logger.Error("Could not roll back", zap.Error(err))
		return fmt.Errorf("failed to roll back migration: %w", err)
	}
	logger.Info("Rolled back last migration")
	return nil
}
