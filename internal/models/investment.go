package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// InvestmentStatus represents the lifecycle of a staking position
type InvestmentStatus string

const (
	InvestmentStatusActive InvestmentStatus = "active"
	InvestmentStatusClosed InvestmentStatus = "closed"
)

// Investment is a staking position that earns a fixed daily percentage of its principal
type Investment struct {
	Base
	UserID           uuid.UUID        `gorm:"type:uuid;not null;index" json:"user_id"`
	Principal        decimal.Decimal  `gorm:"type:decimal(20,8);not null" json:"principal"`
	DailyRatePercent decimal.Decimal  `gorm:"type:decimal(10,4);not null" json:"daily_rate_percent"`
	Status           InvestmentStatus `gorm:"type:varchar(20);not null;default:'active';index" json:"status"`
	LastPayoutAt     *time.Time       `json:"last_payout_at,omitempty"`
}

// DailyReward returns principal * dailyRatePercent / 100
func (i *Investment) DailyReward() decimal.Decimal {
	return i.Principal.Mul(i.DailyRatePercent).Div(decimal.NewFromInt(100))
}
