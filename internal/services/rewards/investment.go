package rewards

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/revaspay/storefront/internal/models"
	"gorm.io/gorm"
)

// InvestmentSource pays principal * dailyRatePercent / 100 on every active investment.
// Once-per-period protection comes from the payout marker claimed by the distributor.
type InvestmentSource struct {
	store InvestmentStore
}

// NewInvestmentSource creates the investment reward source
func NewInvestmentSource(store InvestmentStore) *InvestmentSource {
	return &InvestmentSource{store: store}
}

// Type implements Source
func (s *InvestmentSource) Type() SourceType {
	return SourceInvestment
}

// Evaluate emits one candidate per active investment with a positive daily reward
func (s *InvestmentSource) Evaluate(ctx context.Context, run Run) ([]PendingReward, error) {
	investments, err := s.store.ListActive(ctx)
	if err != nil {
		return nil, err
	}

	candidates := make([]PendingReward, 0, len(investments))
	for _, inv := range investments {
		if inv.Status != models.InvestmentStatusActive {
			continue
		}
		amount := inv.DailyReward()
		if !amount.IsPositive() {
			continue
		}
		candidates = append(candidates, PendingReward{
			UserID:     inv.UserID,
			Amount:     amount,
			SourceType: SourceInvestment,
			SourceRef:  inv.ID.String(),
			MetaData: models.JSON{
				"principal":          inv.Principal.String(),
				"daily_rate_percent": inv.DailyRatePercent.String(),
			},
		})
	}
	return candidates, nil
}

// Finalize checks the amount against the investment row and refreshes its last payout time
func (s *InvestmentSource) Finalize(ctx context.Context, tx *gorm.DB, run Run, reward PendingReward) error {
	investmentID, err := uuid.Parse(reward.SourceRef)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidSourceRef, reward.SourceRef)
	}

	inv, err := s.store.LoadActiveInvestment(ctx, tx, investmentID, reward.UserID)
	if err != nil {
		return err
	}
	if owed := inv.DailyReward(); !owed.Equal(reward.Amount) {
		return fmt.Errorf("%w: investment %s owes %s, got %s", ErrAmountMismatch, investmentID, owed, reward.Amount)
	}

	return s.store.TouchLastPayout(ctx, tx, investmentID, reward.UserID, run.Now)
}
