package controllers

import (
	"net/http"

	"github.com/bukkus/bukkus-backend/api/responses"
	"github.com/bukkus/bukkus-backend/api/validators"
	"github.com/bukkus/bukkus-backend/internal/notifications"
	pkgerrors "github.com/bukkus/bukkus-backend/pkg/errors"
	"github.com/bukkus/bukkus-backend/pkg/logger"
)

// ListNotifications returns a page of the caller's inbox, newest first, with
// the total unread count.
func ListNotifications(svc notifications.Service, logg *logger.Logger) http.HandlerFunc {
	return responses.Handle(logg, func(r *http.Request) (responses.Reply, error) {
		if svc == nil {
			return responses.Reply{}, pkgerrors.New(pkgerrors.CodeInternal, "notifications service unavailable")
		}
		accountID, err := callerAccount(r)
		if err != nil {
			return responses.Reply{}, err
		}
		page, err := pageParams(r)
		if err != nil {
			return responses.Reply{}, err
		}
		unreadOnly, err := validators.ParseQueryBool(r, "unreadOnly")
		if err != nil {
			return responses.Reply{}, err
		}

		inbox, err := svc.List(r.Context(), notifications.ListParams{
			AccountID:  accountID,
			UnreadOnly: unreadOnly,
			Page:       page,
		})
		if err != nil {
			return responses.Reply{}, err
		}
		return responses.OK(inbox), nil
	})
}

func MarkNotificationRead(svc notifications.Service, logg *logger.Logger) http.HandlerFunc {
	return responses.Handle(logg, func(r *http.Request) (responses.Reply, error) {
		accountID, err := callerAccount(r)
		if err != nil {
			return responses.Reply{}, err
		}
		notificationID, err := validators.ParseUUIDParam(r, "notificationId")
		if err != nil {
			return responses.Reply{}, err
		}
		if err := svc.MarkRead(r.Context(), accountID, notificationID); err != nil {
			return responses.Reply{}, err
		}
		return responses.OK(map[string]bool{"read": true}), nil
	})
}

func MarkAllNotificationsRead(svc notifications.Service, logg *logger.Logger) http.HandlerFunc {
	return responses.Handle(logg, func(r *http.Request) (responses.Reply, error) {
		accountID, err := callerAccount(r)
		if err != nil {
			return responses.Reply{}, err
		}
		updated, err := svc.MarkAllRead(r.Context(), accountID)
		if err != nil {
			return responses.Reply{}, err
		}
		return responses.OK(map[string]int64{"updated": updated}), nil
	})
}
