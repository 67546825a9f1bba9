package models

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Wallet holds a user's internal account balance.
// The distribution engine only ever adds to Balance.
type Wallet struct {
	Base
	UserID  uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex" json:"user_id"`
	Balance decimal.Decimal `gorm:"type:decimal(20,8);not null;default:0" json:"balance"`
}
