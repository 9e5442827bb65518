package listings

import (
	"time"

	"github.com/google/uuid"

	"github.com/bukkus/bukkus-backend/pkg/db/models"
	"github.com/bukkus/bukkus-backend/pkg/pagination"
)

// CreateListingInput carries the fields an owner supplies when publishing.
type CreateListingInput struct {
	OwnerAccountID uuid.UUID
	Title          string
	Description    *string
	TokenPrice     int64
}

// UpdateListingInput edits an owner's listing. Nil fields are left unchanged;
// ClearDescription removes the description.
type UpdateListingInput struct {
	ListingID        uuid.UUID
	OwnerAccountID   uuid.UUID
	Title            *string
	Description      *string
	ClearDescription bool
	TokenPrice       *int64
}

func (in UpdateListingInput) empty() bool {
	return in.Title == nil && in.Description == nil && !in.ClearDescription && in.TokenPrice == nil
}

// ListListingsInput browses listings still on the market. A nil owner lists
// everyone's.
type ListListingsInput struct {
	OwnerAccountID *uuid.UUID
	Pagination     pagination.Params
}

type ListingPage struct {
	Listings   []ListingDTO `json:"listings"`
	NextCursor string       `json:"next_cursor,omitempty"`
}

// ListingDTO is the API projection of a listing.
type ListingDTO struct {
	ID             uuid.UUID  `json:"id"`
	OwnerAccountID uuid.UUID  `json:"owner_account_id"`
	Title          string     `json:"title"`
	Description    *string    `json:"description,omitempty"`
	TokenPrice     int64      `json:"token_price"`
	Redeemable     bool       `json:"redeemable"`
	IsWithdrawn    bool       `json:"is_withdrawn"`
	WithdrawnAt    *time.Time `json:"withdrawn_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

func FromModel(m *models.Listing) ListingDTO {
	if m == nil {
		return ListingDTO{}
	}
	return ListingDTO{
		ID:             m.ID,
		OwnerAccountID: m.OwnerAccountID,
		Title:          m.Title,
		Description:    m.Description,
		TokenPrice:     m.TokenPrice,
		Redeemable:     m.Redeemable(),
		IsWithdrawn:    m.IsWithdrawn,
		WithdrawnAt:    m.WithdrawnAt,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
}
