package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Product is a purchasable NFT collection item that pays a daily reward to holders
type Product struct {
	Base
	Name        string          `gorm:"type:varchar(255);not null" json:"name"`
	Slug        string          `gorm:"type:varchar(255);uniqueIndex" json:"slug"`
	DailyReward decimal.Decimal `gorm:"type:decimal(20,8);not null;default:0" json:"daily_reward"`
	MaxReward   decimal.Decimal `gorm:"type:decimal(20,8);not null;default:0" json:"max_reward"`
}

// BeforeCreate assigns the ID and derives the slug from the name
func (p *Product) BeforeCreate(tx *gorm.DB) error {
	if err := p.Base.BeforeCreate(tx); err != nil {
		return err
	}
	if p.Slug == "" {
		p.Slug = slug.Make(p.Name)
	}
	return nil
}

// NFTHolding is one unit of a product owned by a user
type NFTHolding struct {
	Base
	UserID     uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`
	ProductID  uuid.UUID `gorm:"type:uuid;not null;index" json:"product_id"`
	Product    Product   `gorm:"foreignKey:ProductID" json:"product"`
	AcquiredAt time.Time `json:"acquired_at"`
}

// NFTRewardRecord marks that a holding was paid for a calendar day
type NFTRewardRecord struct {
	Base
	NFTHoldingID uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_nft_reward_day" json:"nft_holding_id"`
	RewardDate   string          `gorm:"type:varchar(10);not null;uniqueIndex:idx_nft_reward_day" json:"reward_date"`
	Amount       decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"amount"`
	TotalEarned  decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"total_earned"`
}
