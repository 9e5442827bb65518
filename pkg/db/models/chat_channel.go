package models

import (
	"time"

	"github.com/google/uuid"
)

// ChatChannel is the conversation opened when an offer is accepted.
// ParticipantA is always the lexically smaller account id.
type ChatChannel struct {
	ID           uuid.UUID `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	ListingID    uuid.UUID `gorm:"column:listing_id;type:uuid;not null" json:"listing_id"`
	ParticipantA uuid.UUID `gorm:"column:participant_a;type:uuid;not null" json:"participant_a"`
	ParticipantB uuid.UUID `gorm:"column:participant_b;type:uuid;not null" json:"participant_b"`
	OfferID      uuid.UUID `gorm:"column:offer_id;type:uuid;not null" json:"offer_id"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

// HasParticipant reports whether accountID belongs to the channel.
func (c ChatChannel) HasParticipant(accountID uuid.UUID) bool {
	return c.ParticipantA == accountID || c.ParticipantB == accountID
}
