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

// SourceType identifies where a reward comes from. The value is also the ledger tag
// written for the primary credit.
type SourceType string

const (
	SourceInvestment SourceType = "investment_daily"
	SourceNFTReward  SourceType = "nft_daily"
	SourceRankBonus  SourceType = "rank_daily"

	// SourceReferralKickback tags the secondary credit paid to a recipient's referrer
	SourceReferralKickback SourceType = "referral_kickback"
)

// Trigger names the entry point that started a run
type Trigger string

const (
	TriggerScheduled Trigger = "scheduled"
	TriggerManual    Trigger = "manual"
	TriggerSelected  Trigger = "selected"
)

var (
	ErrInvalidAmount      = errors.New("reward amount must be positive")
	ErrUnknownSource      = errors.New("unknown reward source")
	ErrAlreadyPaid        = errors.New("reward already paid for this period")
	ErrInvalidSourceRef   = errors.New("invalid reward source reference")
	ErrInvestmentNotFound = errors.New("active investment not found")
	ErrHoldingNotFound    = errors.New("nft holding not found")
	ErrRewardCapExceeded  = errors.New("reward would exceed the product maximum")
	ErrMissingRank        = errors.New("rank bonus candidate has no new_rank")
	ErrAmountMismatch     = errors.New("reward does not match what the source owes")
)

// PendingReward is a computed reward that has not been applied yet
type PendingReward struct {
	UserID        uuid.UUID       `json:"user_id"`
	WalletAddress *string         `json:"wallet_address,omitempty"`
	Amount        decimal.Decimal `json:"amount"`
	SourceType    SourceType      `json:"source_type"`
	SourceRef     string          `json:"source_ref"`
	MetaData      models.JSON     `json:"metadata,omitempty"`
}

// Validate checks the invariants every candidate must satisfy before money moves
func (r PendingReward) Validate() error {
	if r.UserID == uuid.Nil {
		return fmt.Errorf("%w: missing user", ErrInvalidSourceRef)
	}
	if !r.Amount.IsPositive() {
		return ErrInvalidAmount
	}
	switch r.SourceType {
	case SourceInvestment, SourceNFTReward, SourceRankBonus:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownSource, r.SourceType)
	}
	if r.SourceRef == "" {
		return fmt.Errorf("%w: empty", ErrInvalidSourceRef)
	}
	return nil
}

// Run carries the clock reading and payout period shared by every step of one distribution run
type Run struct {
	ID      uuid.UUID
	Trigger Trigger
	Mode    PayoutMode
	Now     time.Time
	Period  string
}

// Source is one reward kind. Evaluate is read-only; Finalize writes the
// source-specific marker inside the candidate's transaction.
type Source interface {
	Type() SourceType
	Evaluate(ctx context.Context, run Run) ([]PendingReward, error)
	Finalize(ctx context.Context, tx *gorm.DB, run Run, reward PendingReward) error
}

// Applied is a candidate that was fully credited
type Applied struct {
	Reward  PendingReward
	Entries []models.PayoutLedgerEntry
}

// SourceError records an evaluator that could not produce candidates
type SourceError struct {
	Source SourceType `json:"source"`
	Error  string     `json:"error"`
}

// CandidateFailure records a candidate that was not applied
type CandidateFailure struct {
	UserID     uuid.UUID  `json:"user_id"`
	SourceType SourceType `json:"source_type"`
	SourceRef  string     `json:"source_ref"`
	Error      string     `json:"error"`
}

// Preview is the read-only candidate list shown to operators before a manual run
type Preview struct {
	Period       string          `json:"period"`
	Candidates   []PendingReward `json:"candidates"`
	SourceErrors []SourceError   `json:"source_errors,omitempty"`
}

// RunReport summarises a distribution run
type RunReport struct {
	ID           uuid.UUID          `json:"id"`
	Trigger      Trigger            `json:"trigger"`
	Mode         PayoutMode         `json:"mode"`
	Period       string             `json:"period"`
	Candidates   int                `json:"candidates"`
	Applied      int                `json:"applied"`
	Skipped      int                `json:"skipped"`
	Failed       int                `json:"failed"`
	Credited     decimal.Decimal    `json:"credited"`
	SourceErrors []SourceError      `json:"source_errors,omitempty"`
	Failures     []CandidateFailure `json:"failures,omitempty"`
	StartedAt    time.Time          `json:"started_at"`
	FinishedAt   time.Time          `json:"finished_at"`
}
