package main

import (
	"flag"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/revaspay/storefront/internal/config"
	"github.com/revaspay/storefront/internal/database/migrations"
	applog "github.com/revaspay/storefront/internal/logger"
)

func main() {
	rollback := flag.Bool("rollback", false, "roll back the most recently applied migration")
	flag.Parse()

	cfg := config.LoadConfig()
	log := applog.New(cfg.Environment, "storefront-migrate")
	defer func() { _ = log.Sync() }()

	db, err := gorm.Open(postgres.Open(cfg.Database.URL), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}

	if *rollback {
		if err := migrations.RollbackLast(db, log); err != nil {
			log.Fatal("Rollback failed", zap.Error(err))
		}
		return
	}

	if err := migrations.RunMigrations(db, log); err != nil {
		log.Fatal("Migration failed", zap.Error(err))
	}
}
