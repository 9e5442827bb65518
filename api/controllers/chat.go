package controllers

import (
	"net/http"

	"github.com/bukkus/bukkus-backend/api/responses"
	"github.com/bukkus/bukkus-backend/api/validators"
	"github.com/bukkus/bukkus-backend/internal/chat"
	"github.com/bukkus/bukkus-backend/pkg/logger"
)

// GetChatChannel returns a channel to one of its two participants.
func GetChatChannel(svc chat.Service, logg *logger.Logger) http.HandlerFunc {
	return responses.Handle(logg, func(r *http.Request) (responses.Reply, error) {
		accountID, err := callerAccount(r)
		if err != nil {
			return responses.Reply{}, err
		}
		channelID, err := validators.ParseUUIDParam(r, "channelId")
		if err != nil {
			return responses.Reply{}, err
		}
		channel, err := svc.Get(r.Context(), channelID, accountID)
		if err != nil {
			return responses.Reply{}, err
		}
		return responses.OK(channel), nil
	})
}
