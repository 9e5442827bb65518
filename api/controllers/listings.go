package controllers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/bukkus/bukkus-backend/api/responses"
	"github.com/bukkus/bukkus-backend/api/validators"
	"github.com/bukkus/bukkus-backend/internal/ledger"
	"github.com/bukkus/bukkus-backend/internal/listings"
	pkgerrors "github.com/bukkus/bukkus-backend/pkg/errors"
	"github.com/bukkus/bukkus-backend/pkg/logger"
)

type createListingRequest struct {
	Title       string       `json:"title" validate:"required,notblank,max=200"`
	Description *string      `json:"description" validate:"omitempty,max=2000"`
	TokenPrice  *json.Number `json:"token_price"`
}

type updateListingRequest struct {
	Title       *string      `json:"title" validate:"omitempty,max=200"`
	Description *string      `json:"description" validate:"omitempty,max=2000"`
	TokenPrice  *json.Number `json:"token_price"`
}

// CreateListing publishes a book owned by the caller. Without a token price
// the listing can only be bartered.
func CreateListing(svc listings.Service, logg *logger.Logger) http.HandlerFunc {
	return responses.Handle(logg, func(r *http.Request) (responses.Reply, error) {
		accountID, err := callerAccount(r)
		if err != nil {
			return responses.Reply{}, err
		}
		var body createListingRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			return responses.Reply{}, err
		}

		input := listings.CreateListingInput{
			OwnerAccountID: accountID,
			Title:          body.Title,
			Description:    validators.SanitizeOptional(body.Description),
		}
		if body.TokenPrice != nil {
			price, err := tokenPrice(*body.TokenPrice)
			if err != nil {
				return responses.Reply{}, err
			}
			input.TokenPrice = price
		}

		listing, err := svc.Create(r.Context(), input)
		if err != nil {
			return responses.Reply{}, err
		}
		return responses.Created(listings.FromModel(listing)), nil
	})
}

func GetListing(svc listings.Service, logg *logger.Logger) http.HandlerFunc {
	return responses.Handle(logg, func(r *http.Request) (responses.Reply, error) {
		listingID, err := validators.ParseUUIDParam(r, "listingId")
		if err != nil {
			return responses.Reply{}, err
		}
		listing, err := svc.Get(r.Context(), listingID)
		if err != nil {
			return responses.Reply{}, err
		}
		return responses.OK(listings.FromModel(listing)), nil
	})
}

// ListListings browses listings still on the market. ?owner=me narrows to the
// caller's own, ?owner=<id> to another account's.
func ListListings(svc listings.Service, logg *logger.Logger) http.HandlerFunc {
	return responses.Handle(logg, func(r *http.Request) (responses.Reply, error) {
		params, err := pageParams(r)
		if err != nil {
			return responses.Reply{}, err
		}
		input := listings.ListListingsInput{Pagination: params}
		switch raw := strings.TrimSpace(r.URL.Query().Get("owner")); raw {
		case "":
		case "me":
			accountID, err := callerAccount(r)
			if err != nil {
				return responses.Reply{}, err
			}
			input.OwnerAccountID = &accountID
		default:
			owner, err := uuid.Parse(raw)
			if err != nil {
				return responses.Reply{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid owner").
					WithDetails(map[string]string{"owner": "must be me or an account id"})
			}
			input.OwnerAccountID = &owner
		}

		page, err := svc.List(r.Context(), input)
		if err != nil {
			return responses.Reply{}, err
		}
		return responses.OK(page), nil
	})
}

// UpdateListing edits the caller's listing. A blank description removes it.
func UpdateListing(svc listings.Service, logg *logger.Logger) http.HandlerFunc {
	return responses.Handle(logg, func(r *http.Request) (responses.Reply, error) {
		accountID, err := callerAccount(r)
		if err != nil {
			return responses.Reply{}, err
		}
		listingID, err := validators.ParseUUIDParam(r, "listingId")
		if err != nil {
			return responses.Reply{}, err
		}
		var body updateListingRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			return responses.Reply{}, err
		}

		input := listings.UpdateListingInput{
			ListingID:      listingID,
			OwnerAccountID: accountID,
			Title:          body.Title,
		}
		if body.Description != nil {
			input.Description = validators.SanitizeOptional(body.Description)
			input.ClearDescription = input.Description == nil
		}
		if body.TokenPrice != nil {
			price, err := tokenPrice(*body.TokenPrice)
			if err != nil {
				return responses.Reply{}, err
			}
			input.TokenPrice = &price
		}

		listing, err := svc.Update(r.Context(), input)
		if err != nil {
			return responses.Reply{}, err
		}
		return responses.OK(listings.FromModel(listing)), nil
	})
}

// WithdrawListing takes the caller's listing off the market.
func WithdrawListing(svc listings.Service, logg *logger.Logger) http.HandlerFunc {
	return responses.Handle(logg, func(r *http.Request) (responses.Reply, error) {
		accountID, err := callerAccount(r)
		if err != nil {
			return responses.Reply{}, err
		}
		listingID, err := validators.ParseUUIDParam(r, "listingId")
		if err != nil {
			return responses.Reply{}, err
		}
		listing, err := svc.Withdraw(r.Context(), listingID, accountID)
		if err != nil {
			return responses.Reply{}, err
		}
		return responses.OK(listings.FromModel(listing)), nil
	})
}

// RedeemListing buys a listing at its token price.
func RedeemListing(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return responses.Handle(logg, func(r *http.Request) (responses.Reply, error) {
		accountID, err := callerAccount(r)
		if err != nil {
			return responses.Reply{}, err
		}
		listingID, err := validators.ParseUUIDParam(r, "listingId")
		if err != nil {
			return responses.Reply{}, err
		}
		result, err := svc.Redeem(r.Context(), ledger.RedeemInput{
			AccountID:      accountID,
			ListingID:      listingID,
			IdempotencyKey: idempotencyKey(r),
		})
		if err != nil {
			return responses.Reply{}, err
		}
		return responses.Stored(result, result.Replayed), nil
	})
}

func tokenPrice(raw json.Number) (int64, error) {
	price, err := raw.Int64()
	if err != nil || price < 0 {
		return 0, pkgerrors.New(pkgerrors.CodeInvalidAmount, "token price must be a whole number").
			WithDetails(map[string]string{"token_price": raw.String()})
	}
	return price, nil
}
