package listings

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/bukkus/bukkus-backend/internal/repo"
	"github.com/bukkus/bukkus-backend/pkg/db"
	"github.com/bukkus/bukkus-backend/pkg/db/models"
	"github.com/bukkus/bukkus-backend/pkg/pagination"
)

// Repository persists listings. The ledger and offer services share it to lock
// a listing inside their own transactions.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, listing *models.Listing) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Listing, error)
	FindForUpdate(ctx context.Context, id uuid.UUID) (*models.Listing, error)
	MarkWithdrawn(ctx context.Context, listing *models.Listing, at time.Time) error
	UpdateDetails(ctx context.Context, listing *models.Listing, at time.Time) error
	ListAvailable(ctx context.Context, owner *uuid.UUID, cursor *pagination.Cursor, limit int) ([]models.Listing, error)
}

type repository struct {
	repo.Base
}

// NewRepository returns a listing repository bound to the provided database.
func NewRepository(conn *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(conn)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	return &repository{Base: r.Base.WithTx(tx)}
}

func (r *repository) Create(ctx context.Context, listing *models.Listing) error {
	if listing == nil {
		return fmt.Errorf("listing is required")
	}
	if listing.ID == uuid.Nil {
		listing.ID = uuid.New()
	}
	return r.DB(ctx).Create(listing).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Listing, error) {
	var listing models.Listing
	if err := r.DB(ctx).Where("id = ?", id).First(&listing).Error; err != nil {
		return nil, err
	}
	return &listing, nil
}

func (r *repository) FindForUpdate(ctx context.Context, id uuid.UUID) (*models.Listing, error) {
	var listing models.Listing
	if err := r.ForUpdate(ctx).Where("id = ?", id).First(&listing).Error; err != nil {
		return nil, err
	}
	return &listing, nil
}

// MarkWithdrawn flips the listing to withdrawn if nobody else changed it since
// it was read. A lost race reports db.ErrConflict.
func (r *repository) MarkWithdrawn(ctx context.Context, listing *models.Listing, at time.Time) error {
	if listing == nil {
		return fmt.Errorf("listing is required")
	}
	at = at.UTC()
	res := r.DB(ctx).Model(&models.Listing{}).
		Where("id = ? AND version = ?", listing.ID, listing.Version).
		Updates(map[string]any{
			"is_withdrawn": true,
			"withdrawn_at": at,
			"version":      listing.Version + 1,
			"updated_at":   at,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return db.ErrConflict
	}
	listing.IsWithdrawn = true
	listing.WithdrawnAt = &at
	listing.Version++
	listing.UpdatedAt = at
	return nil
}

// UpdateDetails writes the listing's title, description and price under the
// same version check as MarkWithdrawn.
func (r *repository) UpdateDetails(ctx context.Context, listing *models.Listing, at time.Time) error {
	if listing == nil {
		return fmt.Errorf("listing is required")
	}
	at = at.UTC()
	res := r.DB(ctx).Model(&models.Listing{}).
		Where("id = ? AND version = ? AND is_withdrawn = ?", listing.ID, listing.Version, false).
		Updates(map[string]any{
			"title":       listing.Title,
			"description": listing.Description,
			"token_price": listing.TokenPrice,
			"version":     listing.Version + 1,
			"updated_at":  at,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return db.ErrConflict
	}
	listing.Version++
	listing.UpdatedAt = at
	return nil
}

// ListAvailable returns listings that are not withdrawn, newest first.
func (r *repository) ListAvailable(ctx context.Context, owner *uuid.UUID, cursor *pagination.Cursor, limit int) ([]models.Listing, error) {
	q := r.DB(ctx).Where("is_withdrawn = ?", false)
	if owner != nil {
		q = q.Where("owner_account_id = ?", *owner)
	}
	var rows []models.Listing
	if err := repo.Newest(q, cursor, limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
