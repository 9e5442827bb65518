package listings

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/bukkus/bukkus-backend/pkg/db"
	"github.com/bukkus/bukkus-backend/pkg/db/models"
	pkgerrors "github.com/bukkus/bukkus-backend/pkg/errors"
	"github.com/bukkus/bukkus-backend/pkg/pagination"
)

const maxTitleLen = 200

// Service exposes the listing surface offers and redemptions rely on.
type Service interface {
	Create(ctx context.Context, input CreateListingInput) (*models.Listing, error)
	Get(ctx context.Context, listingID uuid.UUID) (*models.Listing, error)
	List(ctx context.Context, input ListListingsInput) (*ListingPage, error)
	Update(ctx context.Context, input UpdateListingInput) (*models.Listing, error)
	Withdraw(ctx context.Context, listingID, ownerAccountID uuid.UUID) (*models.Listing, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type service struct {
	repo Repository
	tx   txRunner
	now  func() time.Time
}

// NewService wires a listing service with its repository and transaction runner.
func NewService(repo Repository, tx txRunner) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("listing repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	return &service{repo: repo, tx: tx, now: time.Now}, nil
}

func (s *service) Create(ctx context.Context, input CreateListingInput) (*models.Listing, error) {
	if input.OwnerAccountID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "owner identity missing")
	}
	title, err := cleanTitle(input.Title)
	if err != nil {
		return nil, err
	}
	if err := checkPrice(input.TokenPrice); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	listing := &models.Listing{
		ID:             uuid.New(),
		OwnerAccountID: input.OwnerAccountID,
		Title:          title,
		Description:    input.Description,
		TokenPrice:     input.TokenPrice,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.repo.Create(ctx, listing); err != nil {
		return nil, db.StoreError(err, "create listing")
	}
	return listing, nil
}

func (s *service) Get(ctx context.Context, listingID uuid.UUID) (*models.Listing, error) {
	if listingID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "listing id required")
	}
	listing, err := s.repo.FindByID(ctx, listingID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "listing not found")
		}
		return nil, db.StoreError(err, "load listing")
	}
	return listing, nil
}

// List pages through listings still on the market, newest first.
func (s *service) List(ctx context.Context, input ListListingsInput) (*ListingPage, error) {
	window, err := input.Pagination.Resolve(pagination.DefaultLimit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, err := s.repo.ListAvailable(ctx, input.OwnerAccountID, window.After, window.Fetch())
	if err != nil {
		return nil, db.StoreError(err, "list listings")
	}
	rows, next := pagination.Cut(rows, window.Limit, func(l models.Listing) pagination.Cursor {
		return pagination.Cursor{CreatedAt: l.CreatedAt, ID: l.ID}
	})

	page := &ListingPage{Listings: make([]ListingDTO, 0, len(rows)), NextCursor: pagination.EncodeCursor(next)}
	for i := range rows {
		page.Listings = append(page.Listings, FromModel(&rows[i]))
	}
	return page, nil
}

// Update edits title, description or price. Withdrawn listings are frozen.
func (s *service) Update(ctx context.Context, input UpdateListingInput) (*models.Listing, error) {
	if input.ListingID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "listing id required")
	}
	if input.OwnerAccountID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "owner identity missing")
	}
	if input.empty() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "nothing to update")
	}
	var title string
	if input.Title != nil {
		cleaned, err := cleanTitle(*input.Title)
		if err != nil {
			return nil, err
		}
		title = cleaned
	}
	if input.TokenPrice != nil {
		if err := checkPrice(*input.TokenPrice); err != nil {
			return nil, err
		}
	}

	var out *models.Listing
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		listing, err := repo.FindForUpdate(ctx, input.ListingID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "listing not found")
			}
			return err
		}
		if listing.OwnerAccountID != input.OwnerAccountID {
			return pkgerrors.New(pkgerrors.CodeNotAuthorized, "only the owner can edit a listing")
		}
		if listing.IsWithdrawn {
			return pkgerrors.New(pkgerrors.CodeListingUnavailable, "withdrawn listings cannot be edited")
		}

		if input.Title != nil {
			listing.Title = title
		}
		switch {
		case input.ClearDescription:
			listing.Description = nil
		case input.Description != nil:
			listing.Description = input.Description
		}
		if input.TokenPrice != nil {
			listing.TokenPrice = *input.TokenPrice
		}
		if err := repo.UpdateDetails(ctx, listing, s.now()); err != nil {
			return err
		}
		out = listing
		return nil
	})
	if err != nil {
		return nil, db.StoreError(err, "update listing")
	}
	return out, nil
}

// Withdraw takes the listing off the market. Withdrawing twice is a no-op.
func (s *service) Withdraw(ctx context.Context, listingID, ownerAccountID uuid.UUID) (*models.Listing, error) {
	if listingID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "listing id required")
	}
	if ownerAccountID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "owner identity missing")
	}

	var out *models.Listing
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		listing, err := repo.FindForUpdate(ctx, listingID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "listing not found")
			}
			return err
		}
		if listing.OwnerAccountID != ownerAccountID {
			return pkgerrors.New(pkgerrors.CodeNotAuthorized, "only the owner can withdraw a listing")
		}
		if !listing.IsWithdrawn {
			if err := repo.MarkWithdrawn(ctx, listing, s.now()); err != nil {
				return err
			}
		}
		out = listing
		return nil
	})
	if err != nil {
		return nil, db.StoreError(err, "withdraw listing")
	}
	return out, nil
}

func cleanTitle(raw string) (string, error) {
	title := strings.TrimSpace(raw)
	if title == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "title is required")
	}
	if len(title) > maxTitleLen {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "title is too long")
	}
	return title, nil
}

func checkPrice(price int64) error {
	if price < 0 {
		return pkgerrors.New(pkgerrors.CodeInvalidAmount, "token price must not be negative")
	}
	return nil
}
