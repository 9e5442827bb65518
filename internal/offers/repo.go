package offers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/bukkus/bukkus-backend/internal/repo"
	"github.com/bukkus/bukkus-backend/pkg/db/models"
	"github.com/bukkus/bukkus-backend/pkg/enums"
	"github.com/bukkus/bukkus-backend/pkg/pagination"
)

// ErrNotPending reports that a status update found the offer already resolved.
var ErrNotPending = errors.New("offer is no longer pending")

// ListQuery filters offers from one side of the conversation.
type ListQuery struct {
	AccountID uuid.UUID
	Direction enums.OfferDirection
	Status    *enums.OfferStatus
	Cursor    *pagination.Cursor
	Limit     int
}

// Repository persists offers.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, offer *models.Offer) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Offer, error)
	CountPending(ctx context.Context, fromAccountID, listingID uuid.UUID) (int64, error)
	Resolve(ctx context.Context, offer *models.Offer, status enums.OfferStatus, channelID *uuid.UUID, at time.Time) error
	List(ctx context.Context, query ListQuery) ([]models.Offer, error)
}

type repository struct {
	repo.Base
}

func NewRepository(conn *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(conn)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	return &repository{Base: r.Base.WithTx(tx)}
}

func (r *repository) Create(ctx context.Context, offer *models.Offer) error {
	if offer == nil {
		return fmt.Errorf("offer is required")
	}
	if offer.ID == uuid.Nil {
		offer.ID = uuid.New()
	}
	return r.DB(ctx).Create(offer).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Offer, error) {
	var offer models.Offer
	if err := r.DB(ctx).Where("id = ?", id).First(&offer).Error; err != nil {
		return nil, err
	}
	return &offer, nil
}

func (r *repository) CountPending(ctx context.Context, fromAccountID, listingID uuid.UUID) (int64, error) {
	var count int64
	err := r.DB(ctx).Model(&models.Offer{}).
		Where("from_account_id = ? AND listing_id = ? AND status = ?", fromAccountID, listingID, enums.OfferStatusPending).
		Count(&count).Error
	return count, err
}

// Resolve moves a pending offer to a terminal status. The update only matches
// pending rows, so the loser of two concurrent resolutions gets ErrNotPending.
func (r *repository) Resolve(ctx context.Context, offer *models.Offer, status enums.OfferStatus, channelID *uuid.UUID, at time.Time) error {
	if offer == nil {
		return fmt.Errorf("offer is required")
	}
	if !status.IsTerminal() {
		return fmt.Errorf("status %q is not terminal", status)
	}
	at = at.UTC()
	res := r.DB(ctx).Model(&models.Offer{}).
		Where("id = ? AND status = ?", offer.ID, enums.OfferStatusPending).
		Updates(map[string]any{
			"status":          status,
			"chat_channel_id": channelID,
			"resolved_at":     at,
			"updated_at":      at,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotPending
	}
	offer.Status = status
	offer.ChatChannelID = channelID
	offer.ResolvedAt = &at
	offer.UpdatedAt = at
	return nil
}

func (r *repository) List(ctx context.Context, query ListQuery) ([]models.Offer, error) {
	q := r.DB(ctx).Model(&models.Offer{})
	switch query.Direction {
	case enums.OfferDirectionSent:
		q = q.Where("from_account_id = ?", query.AccountID)
	case enums.OfferDirectionReceived:
		q = q.Where("to_account_id = ?", query.AccountID)
	default:
		return nil, fmt.Errorf("invalid offer direction %q", query.Direction)
	}
	if query.Status != nil {
		q = q.Where("status = ?", *query.Status)
	}
	var rows []models.Offer
	err := repo.Newest(q, query.Cursor, query.Limit).Find(&rows).Error
	return rows, err
}
