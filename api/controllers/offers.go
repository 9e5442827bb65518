package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/bukkus/bukkus-backend/api/responses"
	"github.com/bukkus/bukkus-backend/api/validators"
	"github.com/bukkus/bukkus-backend/internal/offers"
	"github.com/bukkus/bukkus-backend/pkg/db/models"
	"github.com/bukkus/bukkus-backend/pkg/enums"
	pkgerrors "github.com/bukkus/bukkus-backend/pkg/errors"
	"github.com/bukkus/bukkus-backend/pkg/logger"
)

type createOfferRequest struct {
	ProposedItem      string     `json:"proposed_item" validate:"max=500"`
	ProposedListingID *uuid.UUID `json:"proposed_listing_id"`
	Comment           *string    `json:"comment" validate:"omitempty,max=1000"`
	ImageURL          *string    `json:"image_url" validate:"omitempty,http_url,max=2048"`
}

// CreateOffer proposes a barter for the listing in the path.
func CreateOffer(svc offers.Service, logg *logger.Logger) http.HandlerFunc {
	return responses.Handle(logg, func(r *http.Request) (responses.Reply, error) {
		accountID, err := callerAccount(r)
		if err != nil {
			return responses.Reply{}, err
		}
		listingID, err := validators.ParseUUIDParam(r, "listingId")
		if err != nil {
			return responses.Reply{}, err
		}
		var body createOfferRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			return responses.Reply{}, err
		}

		offer, err := svc.CreateOffer(r.Context(), offers.CreateOfferInput{
			FromAccountID:     accountID,
			ListingID:         listingID,
			ProposedItem:      body.ProposedItem,
			ProposedListingID: body.ProposedListingID,
			Comment:           validators.SanitizeOptional(body.Comment),
			ImageURL:          validators.SanitizeOptional(body.ImageURL),
		})
		if err != nil {
			return responses.Reply{}, err
		}
		return responses.Created(offers.FromModel(offer)), nil
	})
}

// ListOffers returns the caller's received (default) or sent offers.
func ListOffers(svc offers.Service, logg *logger.Logger) http.HandlerFunc {
	return responses.Handle(logg, func(r *http.Request) (responses.Reply, error) {
		accountID, err := callerAccount(r)
		if err != nil {
			return responses.Reply{}, err
		}
		input, err := offerFilter(r)
		if err != nil {
			return responses.Reply{}, err
		}
		input.AccountID = accountID

		page, err := svc.ListOffers(r.Context(), input)
		if err != nil {
			return responses.Reply{}, err
		}
		return responses.OK(page), nil
	})
}

// offerFilter reads ?direction=, ?status= and the page parameters.
func offerFilter(r *http.Request) (offers.ListOffersInput, error) {
	query := r.URL.Query()
	input := offers.ListOffersInput{Direction: enums.OfferDirectionReceived}

	if raw := strings.ToLower(strings.TrimSpace(query.Get("direction"))); raw != "" {
		direction, err := enums.ParseOfferDirection(raw)
		if err != nil {
			return input, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid direction").
				WithDetails(map[string]string{"direction": "must be received or sent"})
		}
		input.Direction = direction
	}
	if raw := strings.ToLower(strings.TrimSpace(query.Get("status"))); raw != "" {
		status, err := enums.ParseOfferStatus(raw)
		if err != nil {
			return input, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status").
				WithDetails(map[string]string{"status": "must be pending, accepted or rejected"})
		}
		input.Status = &status
	}

	page, err := pageParams(r)
	input.Pagination = page
	return input, err
}

func GetOffer(svc offers.Service, logg *logger.Logger) http.HandlerFunc {
	return offerAction(logg, svc.GetOffer)
}

// AcceptOffer lets the listing owner accept. The response carries the chat channel id.
func AcceptOffer(svc offers.Service, logg *logger.Logger) http.HandlerFunc {
	return offerAction(logg, svc.AcceptOffer)
}

func RejectOffer(svc offers.Service, logg *logger.Logger) http.HandlerFunc {
	return offerAction(logg, svc.RejectOffer)
}

// offerAction serves the endpoints addressed by /offers/{offerId} on behalf of the caller.
func offerAction(logg *logger.Logger, act func(ctx context.Context, offerID, accountID uuid.UUID) (*models.Offer, error)) http.HandlerFunc {
	return responses.Handle(logg, func(r *http.Request) (responses.Reply, error) {
		accountID, err := callerAccount(r)
		if err != nil {
			return responses.Reply{}, err
		}
		offerID, err := validators.ParseUUIDParam(r, "offerId")
		if err != nil {
			return responses.Reply{}, err
		}
		offer, err := act(r.Context(), offerID, accountID)
		if err != nil {
			return responses.Reply{}, err
		}
		return responses.OK(offers.FromModel(offer)), nil
	})
}
