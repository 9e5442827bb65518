package router

import (
	"fmt"

	"github.com/bukkus/bukkus-backend/internal/analytics/types"
	"github.com/bukkus/bukkus-backend/pkg/enums"
	"github.com/bukkus/bukkus-backend/pkg/outbox/payloads"
)

func offerCreatedRow(row *types.MarketplaceEventRow, payload any) error {
	event, ok := payload.(payloads.OfferCreatedEvent)
	if !ok {
		return fmt.Errorf("invalid payload for %s", enums.EventOfferCreated)
	}
	row.OfferID = types.ID(event.OfferID)
	row.ListingID = types.ID(event.ListingID)
	row.AccountID = types.ID(event.FromAccountID)
	row.CounterpartyAccountID = types.ID(event.ToAccountID)
	row.OfferStatus = types.Text(string(enums.OfferStatusPending))
	return nil
}

func offerResolvedRow(row *types.MarketplaceEventRow, payload any) error {
	event, ok := payload.(payloads.OfferResolvedEvent)
	if !ok {
		return fmt.Errorf("invalid payload for %s", row.EventType)
	}
	if !event.Status.IsTerminal() {
		return fmt.Errorf("offer %s resolved with non-terminal status %q", event.OfferID, event.Status)
	}
	row.OfferID = types.ID(event.OfferID)
	row.ListingID = types.ID(event.ListingID)
	row.AccountID = types.ID(event.ToAccountID)
	row.CounterpartyAccountID = types.ID(event.FromAccountID)
	row.OfferStatus = types.Text(string(event.Status))
	return nil
}
