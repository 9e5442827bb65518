package notifications

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/bukkus/bukkus-backend/pkg/db"
	"github.com/bukkus/bukkus-backend/pkg/db/models"
	pkgerrors "github.com/bukkus/bukkus-backend/pkg/errors"
	"github.com/bukkus/bukkus-backend/pkg/pagination"
)

// Service is the read side of the inbox. Notifications are written by the
// Consumer, never through the API.
type Service interface {
	List(ctx context.Context, params ListParams) (*ListResult, error)
	MarkRead(ctx context.Context, accountID, notificationID uuid.UUID) error
	MarkAllRead(ctx context.Context, accountID uuid.UUID) (int64, error)
}

type ListParams struct {
	AccountID  uuid.UUID
	UnreadOnly bool
	Page       pagination.Params
}

type ListResult struct {
	Items  []models.Notification `json:"items"`
	Cursor string                `json:"cursor"`
	Unread int64                 `json:"unread"`
}

type service struct {
	repo Repository
	now  func() time.Time
}

var errNoAccount = pkgerrors.New(pkgerrors.CodeUnauthorized, "account identity missing")

func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, errors.New("notifications repository required")
	}
	return &service{repo: repo, now: time.Now}, nil
}

func (s *service) List(ctx context.Context, params ListParams) (*ListResult, error) {
	if params.AccountID == uuid.Nil {
		return nil, errNoAccount
	}
	window, err := params.Page.Resolve(pagination.DefaultLimit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	rows, err := s.repo.List(ctx, inboxQuery{
		AccountID:  params.AccountID,
		UnreadOnly: params.UnreadOnly,
		After:      window.After,
		Limit:      window.Fetch(),
	})
	if err != nil {
		return nil, db.StoreError(err, "list notifications")
	}
	unread, err := s.repo.CountUnread(ctx, params.AccountID)
	if err != nil {
		return nil, db.StoreError(err, "count unread notifications")
	}

	rows, next := pagination.Cut(rows, window.Limit, func(n models.Notification) pagination.Cursor {
		return pagination.Cursor{CreatedAt: n.CreatedAt, ID: n.ID}
	})
	if rows == nil {
		rows = []models.Notification{}
	}
	return &ListResult{Items: rows, Cursor: pagination.EncodeCursor(next), Unread: unread}, nil
}

func (s *service) MarkRead(ctx context.Context, accountID, notificationID uuid.UUID) error {
	switch {
	case accountID == uuid.Nil:
		return errNoAccount
	case notificationID == uuid.Nil:
		return pkgerrors.New(pkgerrors.CodeValidation, "notification id required")
	}
	found, err := s.repo.MarkRead(ctx, accountID, notificationID, s.now().UTC())
	if err != nil {
		return db.StoreError(err, "mark notification read")
	}
	if !found {
		return pkgerrors.New(pkgerrors.CodeNotFound, "notification not found")
	}
	return nil
}

func (s *service) MarkAllRead(ctx context.Context, accountID uuid.UUID) (int64, error) {
	if accountID == uuid.Nil {
		return 0, errNoAccount
	}
	n, err := s.repo.MarkAllRead(ctx, accountID, s.now().UTC())
	if err != nil {
		return 0, db.StoreError(err, "mark notifications read")
	}
	return n, nil
}
