package wallet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/revaspay/storefront/internal/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrUserNotFound is returned when crediting an account that does not exist
	ErrUserNotFound = errors.New("user not found")
	// ErrInvalidAmount is returned for zero or negative credits
	ErrInvalidAmount = errors.New("credit amount must be positive")
)

// Credit describes one additive balance mutation and the ledger row that records it
type Credit struct {
	UserID     uuid.UUID
	Amount     decimal.Decimal
	SourceType string
	SourceRef  string
	Period     string
	MetaData   models.JSON
}

// WalletService is the balance ledger: account balances plus the append-only payout log
type WalletService struct {
	db *gorm.DB
}

// NewWalletService creates a new wallet service
func NewWalletService(db *gorm.DB) *WalletService {
	return &WalletService{db: db}
}

// CreditWithTx adds funds to a user's balance and appends the matching ledger entry
// using an existing transaction. The balance is incremented in a single statement,
// so concurrent credits to the same account never lose an update.
func (s *WalletService) CreditWithTx(ctx context.Context, tx *gorm.DB, c Credit) (*models.PayoutLedgerEntry, error) {
	if !c.Amount.IsPositive() {
		return nil, ErrInvalidAmount
	}

	tx = tx.WithContext(ctx)

	var count int64
	if err := tx.Model(&models.User{}).Where("id = ?", c.UserID).Count(&count).Error; err != nil {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	if count == 0 {
		return nil, fmt.Errorf("%w: %s", ErrUserNotFound, c.UserID)
	}

	wallet := models.Wallet{
		UserID:  c.UserID,
		Balance: c.Amount,
	}
	err := tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"balance":    gorm.Expr("wallets.balance + excluded.balance"),
			"updated_at": time.Now(),
		}),
	}).Create(&wallet).Error
	if err != nil {
		return nil, fmt.Errorf("error updating wallet balance: %w", err)
	}

	entry := models.PayoutLedgerEntry{
		UserID:     c.UserID,
		Amount:     c.Amount,
		SourceType: c.SourceType,
		SourceRef:  c.SourceRef,
		Period:     c.Period,
		MetaData:   c.MetaData,
	}
	if err := tx.Create(&entry).Error; err != nil {
		return nil, fmt.Errorf("error creating ledger entry: %w", err)
	}

	return &entry, nil
}

// Credit adds funds to a user's balance in its own transaction
func (s *WalletService) Credit(ctx context.Context, c Credit) (*models.PayoutLedgerEntry, error) {
	var entry *models.PayoutLedgerEntry
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		entry, err = s.CreditWithTx(ctx, tx, c)
		return err
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// GetWallet returns a user's wallet. Users that were never credited get a zero-balance wallet value.
func (s *WalletService) GetWallet(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	var wallet models.Wallet
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&wallet).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &models.Wallet{UserID: userID, Balance: decimal.Zero}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error finding wallet: %w", err)
	}
	return &wallet, nil
}

// GetLedger returns a page of a user's ledger entries, newest first
func (s *WalletService) GetLedger(ctx context.Context, userID uuid.UUID, page, pageSize int) ([]models.PayoutLedgerEntry, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}

	var entries []models.PayoutLedgerEntry
	var total int64

	db := s.db.WithContext(ctx)
	if err := db.Model(&models.PayoutLedgerEntry{}).Where("user_id = ?", userID).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("error counting ledger entries: %w", err)
	}

	offset := (page - 1) * pageSize
	if err := db.Where("user_id = ?", userID).Order("created_at DESC").Offset(offset).Limit(pageSize).Find(&entries).Error; err != nil {
		return nil, 0, fmt.Errorf("error finding ledger entries: %w", err)
	}

	return entries, total, nil
}
