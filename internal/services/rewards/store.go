package rewards

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/revaspay/storefront/internal/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// InvestmentStore reads active investments and stamps their payout time
type InvestmentStore interface {
	ListActive(ctx context.Context) ([]models.Investment, error)
	LoadActiveInvestment(ctx context.Context, tx *gorm.DB, investmentID, userID uuid.UUID) (*models.Investment, error)
	TouchLastPayout(ctx context.Context, tx *gorm.DB, investmentID, userID uuid.UUID, at time.Time) error
}

// NFTStore reads holdings and their reward history and writes daily reward records
type NFTStore interface {
	ListHoldings(ctx context.Context) ([]models.NFTHolding, error)
	RewardedOn(ctx context.Context, date string) (map[uuid.UUID]bool, error)
	EarnedTotals(ctx context.Context) (map[uuid.UUID]decimal.Decimal, error)
	LoadHolding(ctx context.Context, tx *gorm.DB, holdingID uuid.UUID) (*models.NFTHolding, decimal.Decimal, error)
	WriteReward(ctx context.Context, tx *gorm.DB, record *models.NFTRewardRecord) error
}

// RankStore persists a user's current rank
type RankStore interface {
	DirectReferralCount(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (int64, error)
	UpdateRank(ctx context.Context, tx *gorm.DB, userID uuid.UUID, rank string) (bool, error)
}

// AddressBook resolves users' external payout addresses
type AddressBook interface {
	WalletAddresses(ctx context.Context, userIDs []uuid.UUID) (map[uuid.UUID]string, error)
}

// GormStore implements the engine's stores on top of gorm
type GormStore struct {
	db *gorm.DB
}

// NewGormStore creates a store bound to db
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// ListActive returns every active investment
func (s *GormStore) ListActive(ctx context.Context) ([]models.Investment, error) {
	var investments []models.Investment
	err := s.db.WithContext(ctx).
		Where("status = ?", models.InvestmentStatusActive).
		Order("created_at, id").
		Find(&investments).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list active investments: %w", err)
	}
	return investments, nil
}

// LoadActiveInvestment loads an active investment owned by userID inside tx
func (s *GormStore) LoadActiveInvestment(ctx context.Context, tx *gorm.DB, investmentID, userID uuid.UUID) (*models.Investment, error) {
	var inv models.Investment
	err := tx.WithContext(ctx).
		Where("id = ? AND user_id = ? AND status = ?", investmentID, userID, models.InvestmentStatusActive).
		First(&inv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrInvestmentNotFound, investmentID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get investment: %w", err)
	}
	return &inv, nil
}

// TouchLastPayout sets last_payout_at on an active investment owned by userID
func (s *GormStore) TouchLastPayout(ctx context.Context, tx *gorm.DB, investmentID, userID uuid.UUID, at time.Time) error {
	result := tx.WithContext(ctx).
		Model(&models.Investment{}).
		Where("id = ? AND user_id = ? AND status = ?", investmentID, userID, models.InvestmentStatusActive).
		Update("last_payout_at", at)
	if result.Error != nil {
		return fmt.Errorf("failed to update investment payout time: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrInvestmentNotFound, investmentID)
	}
	return nil
}

// ListHoldings returns every holding with its product
func (s *GormStore) ListHoldings(ctx context.Context) ([]models.NFTHolding, error) {
	var holdings []models.NFTHolding
	err := s.db.WithContext(ctx).Preload("Product").Order("acquired_at, id").Find(&holdings).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list nft holdings: %w", err)
	}
	return holdings, nil
}

// RewardedOn returns the holdings that already have a reward record for date
func (s *GormStore) RewardedOn(ctx context.Context, date string) (map[uuid.UUID]bool, error) {
	var ids []uuid.UUID
	err := s.db.WithContext(ctx).
		Model(&models.NFTRewardRecord{}).
		Where("reward_date = ?", date).
		Pluck("nft_holding_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load nft reward records: %w", err)
	}

	rewarded := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		rewarded[id] = true
	}
	return rewarded, nil
}

type earnedRow struct {
	NFTHoldingID uuid.UUID
	Total        decimal.Decimal
}

// EarnedTotals returns the running total earned by each holding that was ever rewarded
func (s *GormStore) EarnedTotals(ctx context.Context) (map[uuid.UUID]decimal.Decimal, error) {
	var rows []earnedRow
	err := s.db.WithContext(ctx).
		Model(&models.NFTRewardRecord{}).
		Select("nft_holding_id, MAX(total_earned) AS total").
		Group("nft_holding_id").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to sum nft rewards: %w", err)
	}

	totals := make(map[uuid.UUID]decimal.Decimal, len(rows))
	for _, row := range rows {
		totals[row.NFTHoldingID] = row.Total
	}
	return totals, nil
}

// LoadHolding loads a holding with its product and its running total inside tx
func (s *GormStore) LoadHolding(ctx context.Context, tx *gorm.DB, holdingID uuid.UUID) (*models.NFTHolding, decimal.Decimal, error) {
	tx = tx.WithContext(ctx)

	var holding models.NFTHolding
	err := tx.Preload("Product").First(&holding, "id = ?", holdingID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, decimal.Zero, fmt.Errorf("%w: %s", ErrHoldingNotFound, holdingID)
	}
	if err != nil {
		return nil, decimal.Zero, fmt.Errorf("failed to get nft holding: %w", err)
	}

	var rows []earnedRow
	err = tx.Model(&models.NFTRewardRecord{}).
		Select("nft_holding_id, MAX(total_earned) AS total").
		Where("nft_holding_id = ?", holdingID).
		Group("nft_holding_id").
		Scan(&rows).Error
	if err != nil {
		return nil, decimal.Zero, fmt.Errorf("failed to sum nft rewards: %w", err)
	}
	if len(rows) == 0 {
		return &holding, decimal.Zero, nil
	}
	return &holding, rows[0].Total, nil
}

// WriteReward inserts the dated reward record. The unique (holding, date) index
// rejects a second record for the same day.
func (s *GormStore) WriteReward(ctx context.Context, tx *gorm.DB, record *models.NFTRewardRecord) error {
	if err := tx.WithContext(ctx).Create(record).Error; err != nil {
		return fmt.Errorf("failed to write nft reward record: %w", err)
	}
	return nil
}

// DirectReferralCount counts userID's direct referrals inside tx
func (s *GormStore) DirectReferralCount(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (int64, error) {
	var total int64
	err := tx.WithContext(ctx).Model(&models.Referral{}).Where("referrer_id = ?", userID).Count(&total).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count referrals: %w", err)
	}
	return total, nil
}

// UpdateRank stores rank on the user and reports whether it changed
func (s *GormStore) UpdateRank(ctx context.Context, tx *gorm.DB, userID uuid.UUID, rank string) (bool, error) {
	result := tx.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ? AND referral_rank <> ?", userID, rank).
		Update("referral_rank", rank)
	if result.Error != nil {
		return false, fmt.Errorf("failed to update rank: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// WalletAddresses returns the configured payout address for each user that has one
func (s *GormStore) WalletAddresses(ctx context.Context, userIDs []uuid.UUID) (map[uuid.UUID]string, error) {
	addresses := make(map[uuid.UUID]string)
	if len(userIDs) == 0 {
		return addresses, nil
	}

	var users []models.User
	err := s.db.WithContext(ctx).
		Select("id", "wallet_address").
		Where("id IN ? AND wallet_address IS NOT NULL AND wallet_address <> ''", userIDs).
		Find(&users).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load wallet addresses: %w", err)
	}

	for _, user := range users {
		addresses[user.ID] = *user.WalletAddress
	}
	return addresses, nil
}
