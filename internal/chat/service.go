// Package chat provisions the one-to-one conversation opened by an accepted offer.
package chat

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/bukkus/bukkus-backend/pkg/db"
	"github.com/bukkus/bukkus-backend/pkg/db/models"
	pkgerrors "github.com/bukkus/bukkus-backend/pkg/errors"
)

// channelNamespace scopes the name-based UUIDs used as channel keys.
var channelNamespace = uuid.MustParse("7c1f3c52-4a55-4d8e-9a0b-2a3f6a0f5b61")

// Service manages chat channels.
type Service interface {
	EnsureChannel(ctx context.Context, tx *gorm.DB, participants [2]uuid.UUID, listingID, offerID uuid.UUID) (uuid.UUID, error)
	Get(ctx context.Context, channelID, accountID uuid.UUID) (*models.ChatChannel, error)
}

type service struct {
	repo Repository
	now  func() time.Time
}

func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("chat repository required")
	}
	return &service{repo: repo, now: time.Now}, nil
}

// ChannelKey derives the channel id from the unordered participant pair and
// the listing, so both sides always land on the same conversation.
func ChannelKey(participants [2]uuid.UUID, listingID uuid.UUID) uuid.UUID {
	a, b := ordered(participants)
	name := make([]byte, 0, 48)
	name = append(name, a[:]...)
	name = append(name, b[:]...)
	name = append(name, listingID[:]...)
	return uuid.NewSHA1(channelNamespace, name)
}

// EnsureChannel creates the channel inside tx if it does not exist and returns its key.
func (s *service) EnsureChannel(ctx context.Context, tx *gorm.DB, participants [2]uuid.UUID, listingID, offerID uuid.UUID) (uuid.UUID, error) {
	if tx == nil {
		return uuid.Nil, fmt.Errorf("transaction required")
	}
	if participants[0] == uuid.Nil || participants[1] == uuid.Nil || participants[0] == participants[1] {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "a channel needs two distinct participants")
	}
	if listingID == uuid.Nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "listing id required")
	}

	a, b := ordered(participants)
	channel := &models.ChatChannel{
		ID:           ChannelKey(participants, listingID),
		ListingID:    listingID,
		ParticipantA: a,
		ParticipantB: b,
		OfferID:      offerID,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.repo.WithTx(tx).CreateIfAbsent(ctx, channel); err != nil {
		return uuid.Nil, err
	}
	return channel.ID, nil
}

func (s *service) Get(ctx context.Context, channelID, accountID uuid.UUID) (*models.ChatChannel, error) {
	channel, err := s.repo.FindByID(ctx, channelID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "chat channel not found")
		}
		return nil, db.StoreError(err, "load chat channel")
	}
	if !channel.HasParticipant(accountID) {
		return nil, pkgerrors.New(pkgerrors.CodeNotAuthorized, "not a participant of this channel")
	}
	return channel, nil
}

func ordered(p [2]uuid.UUID) (uuid.UUID, uuid.UUID) {
	if bytes.Compare(p[0][:], p[1][:]) > 0 {
		return p[1], p[0]
	}
	return p[0], p[1]
}
