package referral

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/revaspay/storefront/internal/models"
	"gorm.io/gorm"
)

// Count is the number of users directly referred by ReferrerID
type Count struct {
	ReferrerID uuid.UUID
	Total      int64
}

// ReferralService answers one-hop questions about the referral graph
type ReferralService struct {
	db *gorm.DB
}

// NewReferralService creates a new referral service
func NewReferralService(db *gorm.DB) *ReferralService {
	return &ReferralService{db: db}
}

// DirectReferrer returns the user who referred userID, or nil when there is none
func (s *ReferralService) DirectReferrer(ctx context.Context, userID uuid.UUID) (*uuid.UUID, error) {
	var edge models.Referral
	err := s.db.WithContext(ctx).Where("referred_user_id = ?", userID).First(&edge).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get referrer: %w", err)
	}
	if edge.ReferrerID == userID {
		return nil, nil
	}
	return &edge.ReferrerID, nil
}

// CountDirectReferrals returns how many users userID referred directly
func (s *ReferralService) CountDirectReferrals(ctx context.Context, userID uuid.UUID) (int64, error) {
	var total int64
	err := s.db.WithContext(ctx).Model(&models.Referral{}).Where("referrer_id = ?", userID).Count(&total).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count referrals: %w", err)
	}
	return total, nil
}

// DirectReferralCounts returns every referrer with at least minimum direct referrals,
// ordered by referrer ID so repeated calls over the same data give the same result.
func (s *ReferralService) DirectReferralCounts(ctx context.Context, minimum int64) ([]Count, error) {
	var rows []struct {
		ReferrerID uuid.UUID
		Total      int64
	}
	err := s.db.WithContext(ctx).
		Model(&models.Referral{}).
		Select("referrer_id, COUNT(*) AS total").
		Group("referrer_id").
		Having("COUNT(*) >= ?", minimum).
		Order("referrer_id").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count referrals: %w", err)
	}

	counts := make([]Count, 0, len(rows))
	for _, row := range rows {
		counts = append(counts, Count{ReferrerID: row.ReferrerID, Total: row.Total})
	}
	return counts, nil
}
