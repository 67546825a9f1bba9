package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/revaspay/storefront/internal/queue"
	"gorm.io/gorm"
)

func createJobsTableMigration() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000002_create_jobs_table",
		Migrate: func(tx *gorm.DB) error {
			// Job rows back the redis queue; redis carries only the IDs
			return tx.AutoMigrate(&queue.Job{})
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&queue.Job{})
		},
	}
}
