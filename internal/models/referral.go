package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Referral is the edge between a user and the single user who referred them.
// It is written once at account creation and never reassigned.
type Referral struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ReferrerID     uuid.UUID `gorm:"type:uuid;not null;index" json:"referrer_id"`
	ReferredUserID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex" json:"referred_user_id"`
	ReferralCode   string    `gorm:"type:varchar(50)" json:"referral_code"`
	CreatedAt      time.Time `json:"created_at"`
}

// BeforeCreate assigns the referral ID
func (r *Referral) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}
