package models

import (
	"time"

	"github.com/google/uuid"
)

// Listing is a book offered for barter and, when TokenPrice > 0, for redemption.
type Listing struct {
	ID             uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	OwnerAccountID uuid.UUID  `gorm:"column:owner_account_id;type:uuid;not null"`
	Title          string     `gorm:"column:title;type:text;not null"`
	Description    *string    `gorm:"column:description;type:text"`
	TokenPrice     int64      `gorm:"column:token_price;not null;default:0"`
	IsWithdrawn    bool       `gorm:"column:is_withdrawn;not null;default:false"`
	WithdrawnAt    *time.Time `gorm:"column:withdrawn_at"`
	Version        int64      `gorm:"column:version;not null;default:0"`
	CreatedAt      time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

// Redeemable reports whether the listing can currently be bought with tokens.
func (l Listing) Redeemable() bool {
	return !l.IsWithdrawn && l.TokenPrice > 0
}
