package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/revaspay/storefront/internal/models"
	"gorm.io/gorm"
)

// CreateUsersTable creates the account tables: users, referral edges, wallets and operator settings
func CreateUsersTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000001_create_users_table",
		Migrate: func(tx *gorm.DB) error {
			return tx.AutoMigrate(
				&models.User{},
				&models.Referral{},
				&models.Wallet{},
				&models.Setting{},
			)
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(
				&models.Setting{},
				&models.Wallet{},
				&models.Referral{},
				&models.User{},
			)
		},
	}
}
