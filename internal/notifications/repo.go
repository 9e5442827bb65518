package notifications

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/bukkus/bukkus-backend/internal/repo"
	"github.com/bukkus/bukkus-backend/pkg/db"
	"github.com/bukkus/bukkus-backend/pkg/db/models"
	"github.com/bukkus/bukkus-backend/pkg/pagination"
)

type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, notification *models.Notification) (bool, error)
	List(ctx context.Context, q inboxQuery) ([]models.Notification, error)
	CountUnread(ctx context.Context, accountID uuid.UUID) (int64, error)
	MarkRead(ctx context.Context, accountID, notificationID uuid.UUID, now time.Time) (bool, error)
	MarkAllRead(ctx context.Context, accountID uuid.UUID, now time.Time) (int64, error)
	DeleteReadBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type repository struct {
	repo.Base
}

func NewRepository(conn *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(conn)}
}

// inboxQuery selects one page of an account's notifications.
type inboxQuery struct {
	AccountID  uuid.UUID
	UnreadOnly bool
	After      *pagination.Cursor
	Limit      int
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	return &repository{Base: r.Base.WithTx(tx)}
}

func (r *repository) inbox(ctx context.Context, accountID uuid.UUID) *gorm.DB {
	return r.DB(ctx).Model(&models.Notification{}).Where("account_id = ?", accountID)
}

// Create reports false, without error, when the account already has a
// notification for the same event. Redelivered events land here.
func (r *repository) Create(ctx context.Context, n *models.Notification) (bool, error) {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	err := r.DB(ctx).Create(n).Error
	switch {
	case err == nil:
		return true, nil
	case n.EventID != nil && db.IsUniqueViolation(err, ""):
		return false, nil
	default:
		return false, err
	}
}

func (r *repository) List(ctx context.Context, q inboxQuery) ([]models.Notification, error) {
	query := r.inbox(ctx, q.AccountID)
	if q.UnreadOnly {
		query = query.Where("read_at IS NULL")
	}
	var rows []models.Notification
	err := repo.Newest(query, q.After, q.Limit).Find(&rows).Error
	return rows, err
}

func (r *repository) CountUnread(ctx context.Context, accountID uuid.UUID) (int64, error) {
	var n int64
	err := r.inbox(ctx, accountID).Where("read_at IS NULL").Count(&n).Error
	return n, err
}

// MarkRead reports whether the notification exists for the account. Marking
// an already read notification keeps its first read_at.
func (r *repository) MarkRead(ctx context.Context, accountID, notificationID uuid.UUID, now time.Time) (bool, error) {
	res := r.inbox(ctx, accountID).
		Where("id = ? AND read_at IS NULL", notificationID).
		UpdateColumn("read_at", now)
	if res.Error != nil || res.RowsAffected > 0 {
		return res.RowsAffected > 0, res.Error
	}
	var n int64
	err := r.inbox(ctx, accountID).Where("id = ?", notificationID).Count(&n).Error
	return n > 0, err
}

func (r *repository) MarkAllRead(ctx context.Context, accountID uuid.UUID, now time.Time) (int64, error) {
	res := r.inbox(ctx, accountID).Where("read_at IS NULL").UpdateColumn("read_at", now)
	return res.RowsAffected, res.Error
}

// DeleteReadBefore leaves unread notifications alone however old they are.
func (r *repository) DeleteReadBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.DB(ctx).Where("read_at IS NOT NULL AND read_at < ?", cutoff).Delete(&models.Notification{})
	return res.RowsAffected, res.Error
}
