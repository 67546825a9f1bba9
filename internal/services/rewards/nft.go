package rewards

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/revaspay/storefront/internal/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// NFTSource pays each holding its product's daily reward until the product maximum is reached.
// A zero maximum means the product is uncapped.
type NFTSource struct {
	store NFTStore
}

// NewNFTSource creates the NFT holding reward source
func NewNFTSource(store NFTStore) *NFTSource {
	return &NFTSource{store: store}
}

// Type implements Source
func (s *NFTSource) Type() SourceType {
	return SourceNFTReward
}

// Evaluate emits a candidate for every holding not yet rewarded for the run's period
func (s *NFTSource) Evaluate(ctx context.Context, run Run) ([]PendingReward, error) {
	holdings, err := s.store.ListHoldings(ctx)
	if err != nil {
		return nil, err
	}
	if len(holdings) == 0 {
		return nil, nil
	}

	rewarded, err := s.store.RewardedOn(ctx, run.Period)
	if err != nil {
		return nil, err
	}
	totals, err := s.store.EarnedTotals(ctx)
	if err != nil {
		return nil, err
	}

	var candidates []PendingReward
	for _, holding := range holdings {
		if rewarded[holding.ID] {
			continue
		}
		earned := totals[holding.ID]
		amount := clampReward(holding.Product, earned)
		if !amount.IsPositive() {
			continue
		}
		candidates = append(candidates, PendingReward{
			UserID:     holding.UserID,
			Amount:     amount,
			SourceType: SourceNFTReward,
			SourceRef:  holding.ID.String(),
			MetaData: models.JSON{
				"product_id":   holding.ProductID.String(),
				"total_earned": earned.String(),
			},
		})
	}
	return candidates, nil
}

// Finalize writes the dated reward record with the new running total
func (s *NFTSource) Finalize(ctx context.Context, tx *gorm.DB, run Run, reward PendingReward) error {
	holdingID, err := uuid.Parse(reward.SourceRef)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidSourceRef, reward.SourceRef)
	}

	holding, earned, err := s.store.LoadHolding(ctx, tx, holdingID)
	if err != nil {
		return err
	}
	if holding.UserID != reward.UserID {
		return fmt.Errorf("%w: %s is not held by %s", ErrHoldingNotFound, holdingID, reward.UserID)
	}

	total := earned.Add(reward.Amount)
	if max := holding.Product.MaxReward; max.IsPositive() && total.GreaterThan(max) {
		return fmt.Errorf("%w: %s + %s > %s", ErrRewardCapExceeded, earned, reward.Amount, max)
	}
	if owed := clampReward(holding.Product, earned); !owed.Equal(reward.Amount) {
		return fmt.Errorf("%w: holding %s owes %s, got %s", ErrAmountMismatch, holdingID, owed, reward.Amount)
	}

	return s.store.WriteReward(ctx, tx, &models.NFTRewardRecord{
		NFTHoldingID: holdingID,
		RewardDate:   run.Period,
		Amount:       reward.Amount,
		TotalEarned:  total,
	})
}

// clampReward returns the day's reward for a holding that has already earned earned,
// limited to the headroom left under the product maximum
func clampReward(product models.Product, earned decimal.Decimal) decimal.Decimal {
	daily := product.DailyReward
	if !daily.IsPositive() {
		return decimal.Zero
	}
	max := product.MaxReward
	if !max.IsPositive() {
		return daily
	}
	headroom := max.Sub(earned)
	if !headroom.IsPositive() {
		return decimal.Zero
	}
	return decimal.Min(daily, headroom)
}
