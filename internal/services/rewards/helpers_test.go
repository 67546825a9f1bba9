package rewards

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/revaspay/storefront/internal/models"
	"github.com/revaspay/storefront/internal/services/referral"
	"github.com/revaspay/storefront/internal/services/settings"
	"github.com/revaspay/storefront/internal/services/wallet"
	"github.com/revaspay/storefront/internal/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var testNow = time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)

func setupRewardsDB(t *testing.T) *gorm.DB {
	return testutil.NewTestDB(t,
		&models.User{},
		&models.Referral{},
		&models.Wallet{},
		&models.PayoutLedgerEntry{},
		&models.PayoutMarker{},
		&models.Investment{},
		&models.Product{},
		&models.NFTHolding{},
		&models.NFTRewardRecord{},
		&models.Setting{},
	)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func createUser(t *testing.T, db *gorm.DB, name string) models.User {
	t.Helper()
	user := models.User{Email: name + "@example.com", Username: name}
	require.NoError(t, db.Create(&user).Error)
	return user
}

func refer(t *testing.T, db *gorm.DB, referrer, referred models.User) {
	t.Helper()
	require.NoError(t, db.Create(&models.Referral{
		ReferrerID:     referrer.ID,
		ReferredUserID: referred.ID,
	}).Error)
}

func createInvestment(t *testing.T, db *gorm.DB, user models.User, principal, rate string) models.Investment {
	t.Helper()
	inv := models.Investment{
		UserID:           user.ID,
		Principal:        dec(principal),
		DailyRatePercent: dec(rate),
		Status:           models.InvestmentStatusActive,
	}
	require.NoError(t, db.Create(&inv).Error)
	return inv
}

func createHolding(t *testing.T, db *gorm.DB, user models.User, name, daily, max string) models.NFTHolding {
	t.Helper()
	product := models.Product{Name: name, DailyReward: dec(daily), MaxReward: dec(max)}
	require.NoError(t, db.Create(&product).Error)
	holding := models.NFTHolding{UserID: user.ID, ProductID: product.ID, AcquiredAt: testNow.Add(-48 * time.Hour)}
	require.NoError(t, db.Create(&holding).Error)
	holding.Product = product
	return holding
}

func balanceOf(t *testing.T, db *gorm.DB, userID uuid.UUID) decimal.Decimal {
	t.Helper()
	w, err := wallet.NewWalletService(db).GetWallet(context.Background(), userID)
	require.NoError(t, err)
	return w.Balance
}

func ledgerOf(t *testing.T, db *gorm.DB, userID uuid.UUID) []models.PayoutLedgerEntry {
	t.Helper()
	var entries []models.PayoutLedgerEntry
	require.NoError(t, db.Where("user_id = ?", userID).Order("created_at").Find(&entries).Error)
	return entries
}

func testRun() Run {
	return Run{
		ID:      uuid.New(),
		Trigger: TriggerManual,
		Mode:    PayoutModeInternal,
		Now:     testNow,
		Period:  testNow.Format(PeriodLayout),
	}
}

type engine struct {
	db           *gorm.DB
	clock        *clockwork.FakeClock
	store        *GormStore
	distributor  *Distributor
	orchestrator *Orchestrator
}

func newEngine(t *testing.T, db *gorm.DB, extra ...Source) *engine {
	t.Helper()
	store := NewGormStore(db)
	referrals := referral.NewReferralService(db)
	ledger := wallet.NewWalletService(db)
	clock := clockwork.NewFakeClockAt(testNow)

	sources := []Source{
		NewInvestmentSource(store),
		NewNFTSource(store),
		NewRankSource(referrals, store, nil),
	}
	sources = append(sources, extra...)

	policy := NewDirectReferrerPolicy(referrals, DefaultKickbackRate)
	distributor := NewDistributor(db, ledger, policy, zap.NewNop(), sources...)
	orchestrator := NewOrchestrator(OrchestratorConfig{
		Sources:     sources,
		Distributor: distributor,
		Settings:    settings.NewService(db),
		Addresses:   store,
		Clock:       clock,
		Logger:      zap.NewNop(),
	})

	return &engine{
		db:           db,
		clock:        clock,
		store:        store,
		distributor:  distributor,
		orchestrator: orchestrator,
	}
}

// stubSource emits fixed candidates and fails Finalize for references listed in failRefs
type stubSource struct {
	kind        SourceType
	candidates  []PendingReward
	evaluateErr error
	failRefs    map[string]bool
}

func (s *stubSource) Type() SourceType { return s.kind }

func (s *stubSource) Evaluate(ctx context.Context, run Run) ([]PendingReward, error) {
	if s.evaluateErr != nil {
		return nil, s.evaluateErr
	}
	return s.candidates, nil
}

func (s *stubSource) Finalize(ctx context.Context, tx *gorm.DB, run Run, reward PendingReward) error {
	if s.failRefs[reward.SourceRef] {
		return errors.New("finalize failed")
	}
	return nil
}
