package offers

import (
	"time"

	"github.com/google/uuid"

	"github.com/bukkus/bukkus-backend/pkg/db/models"
	"github.com/bukkus/bukkus-backend/pkg/enums"
	"github.com/bukkus/bukkus-backend/pkg/pagination"
)

// CreateOfferInput is what a sender proposes in exchange for a listing.
type CreateOfferInput struct {
	FromAccountID     uuid.UUID
	ListingID         uuid.UUID
	ProposedItem      string
	ProposedListingID *uuid.UUID
	Comment           *string
	ImageURL          *string
}

// ListOffersInput selects the caller's sent or received offers.
type ListOffersInput struct {
	AccountID  uuid.UUID
	Direction  enums.OfferDirection
	Status     *enums.OfferStatus
	Pagination pagination.Params
}

type OfferDTO struct {
	ID                uuid.UUID         `json:"id"`
	ListingID         uuid.UUID         `json:"listing_id"`
	FromAccountID     uuid.UUID         `json:"from_account_id"`
	ToAccountID       uuid.UUID         `json:"to_account_id"`
	ProposedItem      string            `json:"proposed_item"`
	ProposedListingID *uuid.UUID        `json:"proposed_listing_id,omitempty"`
	Comment           *string           `json:"comment,omitempty"`
	ImageURL          *string           `json:"image_url,omitempty"`
	Status            enums.OfferStatus `json:"status"`
	ChatChannelID     *uuid.UUID        `json:"chat_channel_id,omitempty"`
	ResolvedAt        *time.Time        `json:"resolved_at,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
}

// OfferPage is one page of offers, newest first.
type OfferPage struct {
	Offers     []OfferDTO `json:"offers"`
	NextCursor string     `json:"next_cursor,omitempty"`
}

func FromModel(m *models.Offer) OfferDTO {
	if m == nil {
		return OfferDTO{}
	}
	return OfferDTO{
		ID:                m.ID,
		ListingID:         m.ListingID,
		FromAccountID:     m.FromAccountID,
		ToAccountID:       m.ToAccountID,
		ProposedItem:      m.ProposedItem,
		ProposedListingID: m.ProposedListingID,
		Comment:           m.Comment,
		ImageURL:          m.ImageURL,
		Status:            m.Status,
		ChatChannelID:     m.ChatChannelID,
		ResolvedAt:        m.ResolvedAt,
		CreatedAt:         m.CreatedAt,
		UpdatedAt:         m.UpdatedAt,
	}
}
