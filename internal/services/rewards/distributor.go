package rewards

import (
	"context"
	"fmt"

	"github.com/revaspay/storefront/internal/models"
	"github.com/revaspay/storefront/internal/services/wallet"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Ledger is the balance store's credit primitive
type Ledger interface {
	CreditWithTx(ctx context.Context, tx *gorm.DB, c wallet.Credit) (*models.PayoutLedgerEntry, error)
}

// Distributor applies one candidate at a time: it claims the period marker, credits the
// recipient, credits every kickback and runs the source's finalize step in a single transaction
type Distributor struct {
	db      *gorm.DB
	ledger  Ledger
	policy  KickbackPolicy
	sources map[SourceType]Source
	logger  *zap.Logger
}

// NewDistributor creates a distributor for the given sources
func NewDistributor(db *gorm.DB, ledger Ledger, policy KickbackPolicy, logger *zap.Logger, sources ...Source) *Distributor {
	if policy == nil {
		policy = NoKickbackPolicy{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	byType := make(map[SourceType]Source, len(sources))
	for _, src := range sources {
		byType[src.Type()] = src
	}
	return &Distributor{
		db:      db,
		ledger:  ledger,
		policy:  policy,
		sources: byType,
		logger:  logger,
	}
}

// Source returns the registered source for t
func (d *Distributor) Source(t SourceType) (Source, bool) {
	src, ok := d.sources[t]
	return src, ok
}

// Apply credits one candidate. ErrAlreadyPaid is returned without touching any balance
// when the candidate's (source, reference, period) slot was claimed before.
func (d *Distributor) Apply(ctx context.Context, run Run, reward PendingReward) (*Applied, error) {
	if err := reward.Validate(); err != nil {
		return nil, err
	}
	src, ok := d.sources[reward.SourceType]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSource, reward.SourceType)
	}

	kickbacks, err := d.policy.Compute(ctx, reward)
	if err != nil {
		return nil, fmt.Errorf("failed to compute kickback: %w", err)
	}

	applied := &Applied{Reward: reward}
	err = d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := claimMarker(tx, run, reward); err != nil {
			return err
		}

		entry, err := d.ledger.CreditWithTx(ctx, tx, wallet.Credit{
			UserID:     reward.UserID,
			Amount:     reward.Amount,
			SourceType: string(reward.SourceType),
			SourceRef:  reward.SourceRef,
			Period:     run.Period,
			MetaData:   withRunID(reward.MetaData, run),
		})
		if err != nil {
			return fmt.Errorf("failed to credit reward: %w", err)
		}
		applied.Entries = append(applied.Entries, *entry)

		for _, kb := range kickbacks {
			entry, err := d.ledger.CreditWithTx(ctx, tx, wallet.Credit{
				UserID:     kb.UserID,
				Amount:     kb.Amount,
				SourceType: string(SourceReferralKickback),
				SourceRef:  reward.SourceRef,
				Period:     run.Period,
				MetaData:   withRunID(kb.MetaData, run),
			})
			if err != nil {
				return fmt.Errorf("failed to credit kickback: %w", err)
			}
			applied.Entries = append(applied.Entries, *entry)
		}

		if err := src.Finalize(ctx, tx, run, reward); err != nil {
			return fmt.Errorf("failed to finalize %s reward: %w", reward.SourceType, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	d.logger.Debug("Reward applied",
		zap.String("user_id", reward.UserID.String()),
		zap.String("source_type", string(reward.SourceType)),
		zap.String("source_ref", reward.SourceRef),
		zap.String("period", run.Period),
		zap.String("amount", reward.Amount.String()),
		zap.Int("kickbacks", len(kickbacks)))

	return applied, nil
}

func claimMarker(tx *gorm.DB, run Run, reward PendingReward) error {
	marker := models.PayoutMarker{
		SourceType: string(reward.SourceType),
		SourceRef:  reward.SourceRef,
		Period:     run.Period,
		UserID:     reward.UserID,
	}
	result := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&marker)
	if result.Error != nil {
		return fmt.Errorf("failed to claim payout marker: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrAlreadyPaid
	}
	return nil
}

func withRunID(meta models.JSON, run Run) models.JSON {
	out := make(models.JSON, len(meta)+1)
	for k, v := range meta {
		out[k] = v
	}
	out["run_id"] = run.ID.String()
	return out
}
