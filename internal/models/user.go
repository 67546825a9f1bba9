package models

// User represents a storefront account
type User struct {
	Base
	Email         string  `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	Username      string  `gorm:"type:varchar(50);uniqueIndex" json:"username"`
	WalletAddress *string `gorm:"type:varchar(64)" json:"wallet_address"`
	Rank          string  `gorm:"column:referral_rank;type:varchar(20);not null;default:''" json:"rank"`
	IsAdmin       bool    `gorm:"default:false" json:"is_admin"`
}
