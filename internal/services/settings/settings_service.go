package settings

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/revaspay/storefront/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Operator setting keys read by the distribution engine
const (
	KeyRewardSchedule   = "reward_schedule"
	KeyRewardTimezone   = "reward_timezone"
	KeyRewardPayoutMode = "reward_payout_mode"
)

// Defaults applied when a key is missing
const (
	DefaultRewardSchedule   = "0 0 * * *"
	DefaultRewardTimezone   = "UTC"
	DefaultRewardPayoutMode = "internal"
)

// Service reads and writes operator configuration stored in the settings table
type Service struct {
	db *gorm.DB
}

// NewService creates a new settings service
func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// Get returns the stored value for key, or defaultValue when the key is unset or empty.
// A read error is returned alongside the default so callers can log it and carry on.
func (s *Service) Get(ctx context.Context, key, defaultValue string) (string, error) {
	var setting models.Setting
	err := s.db.WithContext(ctx).Where("key = ?", key).First(&setting).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return defaultValue, nil
	}
	if err != nil {
		return defaultValue, fmt.Errorf("failed to read setting %s: %w", key, err)
	}
	if setting.Value == "" {
		return defaultValue, nil
	}
	return setting.Value, nil
}

// Set stores value under key, replacing any previous value
func (s *Service) Set(ctx context.Context, key, value string) error {
	setting := models.Setting{Key: key, Value: value, UpdatedAt: time.Now()}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&setting).Error
	if err != nil {
		return fmt.Errorf("failed to write setting %s: %w", key, err)
	}
	return nil
}
