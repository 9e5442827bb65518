// Package offers implements the barter offer lifecycle: pending offers resolve
// exactly once to accepted or rejected.
package offers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/bukkus/bukkus-backend/internal/listings"
	"github.com/bukkus/bukkus-backend/pkg/config"
	"github.com/bukkus/bukkus-backend/pkg/db"
	"github.com/bukkus/bukkus-backend/pkg/db/models"
	"github.com/bukkus/bukkus-backend/pkg/enums"
	pkgerrors "github.com/bukkus/bukkus-backend/pkg/errors"
	"github.com/bukkus/bukkus-backend/pkg/logger"
	"github.com/bukkus/bukkus-backend/pkg/metrics"
	"github.com/bukkus/bukkus-backend/pkg/outbox"
	"github.com/bukkus/bukkus-backend/pkg/outbox/payloads"
	"github.com/bukkus/bukkus-backend/pkg/pagination"
)

const (
	opCreate = "create"
	opAccept = "accept"
	opReject = "reject"

	maxProposedItemLen = 500
	maxCommentLen      = 1000
	maxImageURLLen     = 2048
)

// Service manages offers.
type Service interface {
	CreateOffer(ctx context.Context, input CreateOfferInput) (*models.Offer, error)
	AcceptOffer(ctx context.Context, offerID, acceptingAccountID uuid.UUID) (*models.Offer, error)
	RejectOffer(ctx context.Context, offerID, rejectingAccountID uuid.UUID) (*models.Offer, error)
	ListOffers(ctx context.Context, input ListOffersInput) (*OfferPage, error)
	GetOffer(ctx context.Context, offerID, accountID uuid.UUID) (*models.Offer, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) (uuid.UUID, error)
}

type channelProvisioner interface {
	EnsureChannel(ctx context.Context, tx *gorm.DB, participants [2]uuid.UUID, listingID, offerID uuid.UUID) (uuid.UUID, error)
}

// ServiceParams wires the offer service.
type ServiceParams struct {
	Repo     Repository
	Listings listings.Repository
	Chat     channelProvisioner
	Tx       txRunner
	Outbox   outboxEmitter
	Config   config.OffersConfig
	Metrics  *metrics.OfferMetrics
	Logger   *logger.Logger
}

type service struct {
	repo     Repository
	listings listings.Repository
	chat     channelProvisioner
	tx       txRunner
	outbox   outboxEmitter
	maxOpen  int64
	metrics  *metrics.OfferMetrics
	logg     *logger.Logger
	now      func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("offer repository required")
	}
	if params.Listings == nil {
		return nil, fmt.Errorf("listing repository required")
	}
	if params.Chat == nil {
		return nil, fmt.Errorf("chat provisioner required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	maxOpen := int64(params.Config.MaxActivePerListing)
	if maxOpen <= 0 {
		maxOpen = 3
	}
	return &service{
		repo:     params.Repo,
		listings: params.Listings,
		chat:     params.Chat,
		tx:       params.Tx,
		outbox:   params.Outbox,
		maxOpen:  maxOpen,
		metrics:  params.Metrics,
		logg:     params.Logger,
		now:      time.Now,
	}, nil
}

func (s *service) CreateOffer(ctx context.Context, input CreateOfferInput) (*models.Offer, error) {
	offer, err := s.createOffer(ctx, input)
	s.record(ctx, opCreate, offer, err)
	return offer, err
}

func (s *service) createOffer(ctx context.Context, input CreateOfferInput) (*models.Offer, error) {
	if input.FromAccountID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "sender identity missing")
	}
	if input.ListingID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "listing id required")
	}
	item := strings.TrimSpace(input.ProposedItem)
	if item == "" && input.ProposedListingID == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "proposed item is required")
	}
	if len(item) > maxProposedItemLen {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "proposed item is too long")
	}
	comment, err := optionalText(input.Comment, maxCommentLen, "comment")
	if err != nil {
		return nil, err
	}
	imageURL, err := optionalText(input.ImageURL, maxImageURLLen, "image url")
	if err != nil {
		return nil, err
	}

	var out *models.Offer
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		listingRepo := s.listings.WithTx(tx)

		// The lock serializes concurrent creates against the same listing so the
		// pending count below cannot be raced past the cap.
		listing, err := listingRepo.FindForUpdate(ctx, input.ListingID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeListingUnavailable, "listing not found")
		}
		if err != nil {
			return err
		}
		if listing.IsWithdrawn {
			return pkgerrors.New(pkgerrors.CodeListingUnavailable, "listing has been withdrawn")
		}
		if listing.OwnerAccountID == input.FromAccountID {
			return pkgerrors.New(pkgerrors.CodeSelfOffer, "cannot make an offer on your own listing")
		}

		pending, err := repo.CountPending(ctx, input.FromAccountID, listing.ID)
		if err != nil {
			return err
		}
		if pending >= s.maxOpen {
			return pkgerrors.New(pkgerrors.CodeOfferLimitReached, "offer limit reached").
				WithDetails(map[string]int64{"pending": pending, "max": s.maxOpen})
		}

		if input.ProposedListingID != nil {
			counter, err := listingRepo.FindByID(ctx, *input.ProposedListingID)
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeValidation, "proposed listing not found")
			}
			if err != nil {
				return err
			}
			if counter.OwnerAccountID != input.FromAccountID || counter.IsWithdrawn {
				return pkgerrors.New(pkgerrors.CodeValidation, "proposed listing is not yours to offer")
			}
			if item == "" {
				item = counter.Title
			}
		}

		now := s.now().UTC()
		offer := &models.Offer{
			ID:                uuid.New(),
			ListingID:         listing.ID,
			FromAccountID:     input.FromAccountID,
			ToAccountID:       listing.OwnerAccountID,
			ProposedItem:      item,
			ProposedListingID: input.ProposedListingID,
			Comment:           comment,
			ImageURL:          imageURL,
			Status:            enums.OfferStatusPending,
			CreatedAt:         now,
			UpdatedAt:         now,
		}
		if err := repo.Create(ctx, offer); err != nil {
			return err
		}

		if _, err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOfferCreated,
			AggregateType: enums.AggregateOffer,
			AggregateID:   offer.ID,
			Actor:         &outbox.ActorRef{AccountID: offer.FromAccountID, Role: string(enums.AccountRoleUser)},
			OccurredAt:    now,
			Data: payloads.OfferCreatedEvent{
				OfferID:       offer.ID,
				ListingID:     listing.ID,
				ListingTitle:  listing.Title,
				FromAccountID: offer.FromAccountID,
				ToAccountID:   offer.ToAccountID,
				ProposedItem:  offer.ProposedItem,
			},
		}); err != nil {
			return err
		}
		out = offer
		return nil
	})
	if err != nil {
		return nil, db.StoreError(err, "create offer")
	}
	return out, nil
}

func (s *service) AcceptOffer(ctx context.Context, offerID, acceptingAccountID uuid.UUID) (*models.Offer, error) {
	offer, err := s.resolve(ctx, offerID, acceptingAccountID, enums.OfferDecisionAccept)
	s.record(ctx, opAccept, offer, err)
	return offer, err
}

func (s *service) RejectOffer(ctx context.Context, offerID, rejectingAccountID uuid.UUID) (*models.Offer, error) {
	offer, err := s.resolve(ctx, offerID, rejectingAccountID, enums.OfferDecisionReject)
	s.record(ctx, opReject, offer, err)
	return offer, err
}

// resolve applies the recipient's decision. Other pending offers on the same
// listing are left as they are.
func (s *service) resolve(ctx context.Context, offerID, callerID uuid.UUID, decision enums.OfferDecision) (*models.Offer, error) {
	if offerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "offer id required")
	}
	if callerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "caller identity missing")
	}
	target, err := decision.TargetStatus()
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid decision")
	}

	var out *models.Offer
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		offer, err := repo.FindByID(ctx, offerID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeOfferNotFound, "offer not found")
		}
		if err != nil {
			return err
		}
		if offer.ToAccountID != callerID {
			return pkgerrors.New(pkgerrors.CodeNotAuthorized, "only the recipient can resolve an offer")
		}
		if offer.Status != enums.OfferStatusPending {
			return alreadyResolved(offer.Status)
		}

		var channelID *uuid.UUID
		if target == enums.OfferStatusAccepted {
			id, err := s.chat.EnsureChannel(ctx, tx, [2]uuid.UUID{offer.FromAccountID, offer.ToAccountID}, offer.ListingID, offer.ID)
			if err != nil {
				return err
			}
			channelID = &id
		}

		now := s.now().UTC()
		if err := repo.Resolve(ctx, offer, target, channelID, now); err != nil {
			if errors.Is(err, ErrNotPending) {
				return alreadyResolved("")
			}
			return err
		}

		title := ""
		if listing, err := s.listings.WithTx(tx).FindByID(ctx, offer.ListingID); err == nil {
			title = listing.Title
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		eventType := enums.EventOfferRejected
		if target == enums.OfferStatusAccepted {
			eventType = enums.EventOfferAccepted
		}
		if _, err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     eventType,
			AggregateType: enums.AggregateOffer,
			AggregateID:   offer.ID,
			Actor:         &outbox.ActorRef{AccountID: callerID, Role: string(enums.AccountRoleUser)},
			OccurredAt:    now,
			Data: payloads.OfferResolvedEvent{
				OfferID:       offer.ID,
				ListingID:     offer.ListingID,
				ListingTitle:  title,
				FromAccountID: offer.FromAccountID,
				ToAccountID:   offer.ToAccountID,
				Status:        target,
				ChatChannelID: channelID,
			},
		}); err != nil {
			return err
		}
		out = offer
		return nil
	})
	if err != nil {
		return nil, db.StoreError(err, "resolve offer")
	}
	return out, nil
}

func (s *service) ListOffers(ctx context.Context, input ListOffersInput) (*OfferPage, error) {
	if input.AccountID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "account identity missing")
	}
	if _, err := enums.ParseOfferDirection(string(input.Direction)); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid direction")
	}
	if input.Status != nil && !input.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid status filter")
	}
	window, err := input.Pagination.Resolve(pagination.DefaultLimit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	rows, err := s.repo.List(ctx, ListQuery{
		AccountID: input.AccountID,
		Direction: input.Direction,
		Status:    input.Status,
		Cursor:    window.After,
		Limit:     window.Fetch(),
	})
	if err != nil {
		return nil, db.StoreError(err, "list offers")
	}
	rows, next := pagination.Cut(rows, window.Limit, func(o models.Offer) pagination.Cursor {
		return pagination.Cursor{CreatedAt: o.CreatedAt, ID: o.ID}
	})

	page := &OfferPage{Offers: make([]OfferDTO, 0, len(rows)), NextCursor: pagination.EncodeCursor(next)}
	for i := range rows {
		page.Offers = append(page.Offers, FromModel(&rows[i]))
	}
	return page, nil
}

func (s *service) GetOffer(ctx context.Context, offerID, accountID uuid.UUID) (*models.Offer, error) {
	offer, err := s.repo.FindByID(ctx, offerID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeOfferNotFound, "offer not found")
		}
		return nil, db.StoreError(err, "load offer")
	}
	if offer.FromAccountID != accountID && offer.ToAccountID != accountID {
		return nil, pkgerrors.New(pkgerrors.CodeNotAuthorized, "not a participant of this offer")
	}
	return offer, nil
}

func (s *service) record(ctx context.Context, operation string, offer *models.Offer, err error) {
	if err == nil {
		s.metrics.IncTransition(string(offer.Status))
		return
	}
	code := pkgerrors.CodeOf(err)
	if code == pkgerrors.CodeStoreUnavailable || code == pkgerrors.CodeInternal {
		if s.logg != nil {
			logCtx := s.logg.WithField(ctx, "operation", operation)
			s.logg.Error(logCtx, "offers.operation.failed", err)
		}
		return
	}
	s.metrics.IncRefusal(operation, string(code))
}

func alreadyResolved(status enums.OfferStatus) error {
	e := pkgerrors.New(pkgerrors.CodeOfferAlreadyResolved, "offer already resolved")
	if status != "" {
		return e.WithDetails(map[string]string{"status": string(status)})
	}
	return e
}

func optionalText(value *string, maxLen int, field string) (*string, error) {
	if value == nil {
		return nil, nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil, nil
	}
	if len(trimmed) > maxLen {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, field+" is too long")
	}
	return &trimmed, nil
}
