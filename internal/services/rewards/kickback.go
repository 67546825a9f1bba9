package rewards

import (
	"context"

	"github.com/google/uuid"
	"github.com/revaspay/storefront/internal/models"
	"github.com/shopspring/decimal"
)

// amountPlaces is the precision of every credited amount
const amountPlaces = 8

// DefaultKickbackRate is the share of each primary credit paid to the recipient's direct referrer
var DefaultKickbackRate = decimal.NewFromFloat(0.10)

// Kickback is a secondary credit derived from a primary reward
type Kickback struct {
	UserID   uuid.UUID
	Amount   decimal.Decimal
	MetaData models.JSON
}

// KickbackPolicy decides which secondary credits a primary reward generates
type KickbackPolicy interface {
	Compute(ctx context.Context, reward PendingReward) ([]Kickback, error)
}

// ReferralGraph resolves a user's direct referrer
type ReferralGraph interface {
	DirectReferrer(ctx context.Context, userID uuid.UUID) (*uuid.UUID, error)
}

// DirectReferrerPolicy pays a fixed share of every primary credit to the recipient's
// direct referrer. Deeper ancestors receive nothing.
type DirectReferrerPolicy struct {
	graph ReferralGraph
	rate  decimal.Decimal
}

// NewDirectReferrerPolicy creates the one-hop policy. A non-positive rate uses DefaultKickbackRate.
func NewDirectReferrerPolicy(graph ReferralGraph, rate decimal.Decimal) *DirectReferrerPolicy {
	if !rate.IsPositive() {
		rate = DefaultKickbackRate
	}
	return &DirectReferrerPolicy{graph: graph, rate: rate}
}

// Rate returns the configured share
func (p *DirectReferrerPolicy) Rate() decimal.Decimal {
	return p.rate
}

// Compute implements KickbackPolicy
func (p *DirectReferrerPolicy) Compute(ctx context.Context, reward PendingReward) ([]Kickback, error) {
	referrerID, err := p.graph.DirectReferrer(ctx, reward.UserID)
	if err != nil {
		return nil, err
	}
	if referrerID == nil || *referrerID == reward.UserID {
		return nil, nil
	}

	amount := reward.Amount.Mul(p.rate).Round(amountPlaces)
	if !amount.IsPositive() {
		return nil, nil
	}

	return []Kickback{{
		UserID: *referrerID,
		Amount: amount,
		MetaData: models.JSON{
			"referred_user_id": reward.UserID.String(),
			"origin_source":    string(reward.SourceType),
			"origin_ref":       reward.SourceRef,
			"origin_amount":    reward.Amount.String(),
			"rate":             p.rate.String(),
		},
	}}, nil
}

// NoKickbackPolicy never pays secondary credits
type NoKickbackPolicy struct{}

// Compute implements KickbackPolicy
func (NoKickbackPolicy) Compute(context.Context, PendingReward) ([]Kickback, error) {
	return nil, nil
}
