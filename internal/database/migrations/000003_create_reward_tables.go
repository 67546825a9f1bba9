package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/revaspay/storefront/internal/models"
	"gorm.io/gorm"
)

func createRewardTablesMigration() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000003_create_reward_tables",
		Migrate: func(tx *gorm.DB) error {
			// Reward sources
			if err := tx.AutoMigrate(
				&models.Investment{},
				&models.Product{},
				&models.NFTHolding{},
				&models.NFTRewardRecord{},
			); err != nil {
				return err
			}

			// Payout log and per-period idempotency markers
			return tx.AutoMigrate(
				&models.PayoutLedgerEntry{},
				&models.PayoutMarker{},
			)
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(
				&models.PayoutMarker{},
				&models.PayoutLedgerEntry{},
				&models.NFTRewardRecord{},
				&models.NFTHolding{},
				&models.Product{},
				&models.Investment{},
			)
		},
	}
}
