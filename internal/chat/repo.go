package chat

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/bukkus/bukkus-backend/internal/repo"
	"github.com/bukkus/bukkus-backend/pkg/db/models"
)

// Repository persists chat channels.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateIfAbsent(ctx context.Context, channel *models.ChatChannel) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.ChatChannel, error)
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

// CreateIfAbsent inserts the channel; an existing row with the same key wins.
func (r *repository) CreateIfAbsent(ctx context.Context, channel *models.ChatChannel) error {
	if channel == nil || channel.ID == uuid.Nil {
		return fmt.Errorf("channel id is required")
	}
	return r.DB(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, DoNothing: true}).
		Create(channel).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.ChatChannel, error) {
	var channel models.ChatChannel
	if err := r.DB(ctx).Where("id = ?", id).First(&channel).Error; err != nil {
		return nil, err
	}
	return &channel, nil
}
