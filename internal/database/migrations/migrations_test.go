package migrations

import (
	"testing"

	"github.com/revaspay/storefront/internal/models"
	"github.com/revaspay/storefront/internal/queue"
	"github.com/revaspay/storefront/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRunMigrationsCreatesSchema(t *testing.T) {
	db := testutil.NewTestDB(t)

	require.NoError(t, RunMigrations(db, zap.NewNop()))
	// A second run is a no-op
	require.NoError(t, RunMigrations(db, zap.NewNop()))

	for _, model := range []interface{}{
		&models.User{}, &models.Referral{}, &models.Wallet{}, &models.Setting{},
		&queue.Job{},
		&models.Investment{}, &models.Product{}, &models.NFTHolding{}, &models.NFTRewardRecord{},
		&models.PayoutLedgerEntry{}, &models.PayoutMarker{},
	} {
		assert.True(t, db.Migrator().HasTable(model), "missing table for %T", model)
	}
	assert.True(t, db.Migrator().HasIndex(&models.PayoutMarker{}, "idx_payout_marker"))
}

func TestRollbackLastDropsRewardTables(t *testing.T) {
	db := testutil.NewTestDB(t)
	require.NoError(t, RunMigrations(db, zap.NewNop()))

	require.NoError(t, RollbackLast(db, zap.NewNop()))

	assert.False(t, db.Migrator().HasTable(&models.PayoutMarker{}))
	assert.False(t, db.Migrator().HasTable(&models.Investment{}))
	assert.True(t, db.Migrator().HasTable(&queue.Job{}))
	assert.True(t, db.Migrator().HasTable(&models.User{}))
}
