package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/bukkus/bukkus-backend/pkg/enums"
)

// Offer is a barter proposal from one account to a listing owner.
type Offer struct {
	ID                uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	ListingID         uuid.UUID         `gorm:"column:listing_id;type:uuid;not null"`
	FromAccountID     uuid.UUID         `gorm:"column:from_account_id;type:uuid;not null"`
	ToAccountID       uuid.UUID         `gorm:"column:to_account_id;type:uuid;not null"`
	ProposedItem      string            `gorm:"column:proposed_item;type:text;not null"`
	ProposedListingID *uuid.UUID        `gorm:"column:proposed_listing_id;type:uuid"`
	Comment           *string           `gorm:"column:comment;type:text"`
	ImageURL          *string           `gorm:"column:image_url;type:text"`
	Status            enums.OfferStatus `gorm:"column:status;type:offer_status;not null"`
	ChatChannelID     *uuid.UUID        `gorm:"column:chat_channel_id;type:uuid"`
	ResolvedAt        *time.Time        `gorm:"column:resolved_at"`
	CreatedAt         time.Time         `gorm:"column:created_at;not null"`
	UpdatedAt         time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}
