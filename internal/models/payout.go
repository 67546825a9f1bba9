package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ErrImmutableLedger is returned when code tries to modify a written ledger entry
var ErrImmutableLedger = errors.New("payout ledger entries are immutable")

// PayoutLedgerEntry is an immutable record of a single credit to a user's balance
type PayoutLedgerEntry struct {
	ID         uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	UserID     uuid.UUID       `gorm:"type:uuid;not null;index" json:"user_id"`
	Amount     decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"amount"`
	SourceType string          `gorm:"type:varchar(50);not null;index" json:"source_type"`
	SourceRef  string          `gorm:"type:varchar(100)" json:"source_ref"`
	Period     string          `gorm:"type:varchar(10)" json:"period"`
	MetaData   JSON            `gorm:"type:jsonb" json:"metadata"`
	CreatedAt  time.Time       `json:"created_at"`
}

// BeforeCreate assigns the entry ID
func (e *PayoutLedgerEntry) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}

// BeforeUpdate rejects any attempt to rewrite a ledger entry
func (e *PayoutLedgerEntry) BeforeUpdate(tx *gorm.DB) error {
	return ErrImmutableLedger
}

// PayoutMarker claims a (source, reference, period) slot so a reward is paid at most once per period
type PayoutMarker struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	SourceType string    `gorm:"type:varchar(50);not null;uniqueIndex:idx_payout_marker" json:"source_type"`
	SourceRef  string    `gorm:"type:varchar(100);not null;uniqueIndex:idx_payout_marker" json:"source_ref"`
	Period     string    `gorm:"type:varchar(10);not null;uniqueIndex:idx_payout_marker" json:"period"`
	UserID     uuid.UUID `gorm:"type:uuid;not null" json:"user_id"`
	CreatedAt  time.Time `json:"created_at"`
}

// BeforeCreate assigns the marker ID
func (m *PayoutMarker) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}
