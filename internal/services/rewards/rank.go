package rewards

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/revaspay/storefront/internal/models"
	"github.com/revaspay/storefront/internal/services/referral"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// RankTier maps a minimum number of direct referrals to a rank and its daily bonus
type RankTier struct {
	Name         string
	MinReferrals int64
	DailyBonus   decimal.Decimal
}

// DefaultRankTiers is the referral rank table, highest tier first
var DefaultRankTiers = []RankTier{
	{Name: "diamond", MinReferrals: 1000, DailyBonus: decimal.NewFromInt(50)},
	{Name: "platinum", MinReferrals: 200, DailyBonus: decimal.NewFromInt(20)},
	{Name: "gold", MinReferrals: 50, DailyBonus: decimal.NewFromInt(5)},
	{Name: "silver", MinReferrals: 10, DailyBonus: decimal.NewFromInt(1)},
}

// ReferralCounter aggregates direct referral counts
type ReferralCounter interface {
	DirectReferralCounts(ctx context.Context, minimum int64) ([]referral.Count, error)
}

// RankSource pays a daily bonus to users whose direct referral count reaches a tier
type RankSource struct {
	counter ReferralCounter
	store   RankStore
	tiers   []RankTier
}

// NewRankSource creates the rank bonus source. A nil tiers slice uses DefaultRankTiers.
func NewRankSource(counter ReferralCounter, store RankStore, tiers []RankTier) *RankSource {
	if tiers == nil {
		tiers = DefaultRankTiers
	}
	sorted := make([]RankTier, len(tiers))
	copy(sorted, tiers)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].MinReferrals > sorted[j].MinReferrals
	})
	return &RankSource{counter: counter, store: store, tiers: sorted}
}

// Type implements Source
func (s *RankSource) Type() SourceType {
	return SourceRankBonus
}

// MatchTier returns the highest tier whose threshold count reaches
func (s *RankSource) MatchTier(count int64) (RankTier, bool) {
	for _, tier := range s.tiers {
		if count >= tier.MinReferrals {
			return tier, true
		}
	}
	return RankTier{}, false
}

// Evaluate emits a candidate for each referrer whose tier carries a positive bonus
func (s *RankSource) Evaluate(ctx context.Context, run Run) ([]PendingReward, error) {
	if len(s.tiers) == 0 {
		return nil, nil
	}
	lowest := s.tiers[len(s.tiers)-1].MinReferrals

	counts, err := s.counter.DirectReferralCounts(ctx, lowest)
	if err != nil {
		return nil, err
	}

	var candidates []PendingReward
	for _, c := range counts {
		tier, ok := s.MatchTier(c.Total)
		if !ok || !tier.DailyBonus.IsPositive() {
			continue
		}
		candidates = append(candidates, PendingReward{
			UserID:     c.ReferrerID,
			Amount:     tier.DailyBonus,
			SourceType: SourceRankBonus,
			SourceRef:  c.ReferrerID.String(),
			MetaData: models.JSON{
				"new_rank":       tier.Name,
				"referral_count": c.Total,
			},
		})
	}
	return candidates, nil
}

// Finalize re-derives the tier from the current referral count, rejects candidates whose
// rank or bonus differ from it, and stores the rank when it changed
func (s *RankSource) Finalize(ctx context.Context, tx *gorm.DB, run Run, reward PendingReward) error {
	rank := reward.MetaData.String("new_rank")
	if rank == "" {
		return ErrMissingRank
	}
	if ref, err := uuid.Parse(reward.SourceRef); err != nil || ref != reward.UserID {
		return fmt.Errorf("%w: %s", ErrInvalidSourceRef, reward.SourceRef)
	}

	count, err := s.store.DirectReferralCount(ctx, tx, reward.UserID)
	if err != nil {
		return err
	}
	tier, ok := s.MatchTier(count)
	if !ok {
		return fmt.Errorf("%w: %d referrals reach no tier", ErrAmountMismatch, count)
	}
	if tier.Name != rank || !tier.DailyBonus.Equal(reward.Amount) {
		return fmt.Errorf("%w: %d referrals is %s at %s, got %s at %s",
			ErrAmountMismatch, count, tier.Name, tier.DailyBonus, rank, reward.Amount)
	}

	_, err = s.store.UpdateRank(ctx, tx, reward.UserID, rank)
	return err
}
