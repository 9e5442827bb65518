package router

import (
	"fmt"

	"github.com/bukkus/bukkus-backend/internal/analytics/types"
	"github.com/bukkus/bukkus-backend/pkg/enums"
	"github.com/bukkus/bukkus-backend/pkg/outbox/payloads"
)

func ledgerCreditedRow(row *types.MarketplaceEventRow, payload any) error {
	event, ok := payload.(payloads.LedgerCreditedEvent)
	if !ok {
		return fmt.Errorf("invalid payload for %s", enums.EventLedgerCredited)
	}
	if event.Amount <= 0 {
		return fmt.Errorf("credit %s has non-positive amount %d", event.EntryID, event.Amount)
	}
	row.AccountID = types.ID(event.AccountID)
	row.CounterpartyAccountID = types.OptionalID(event.CounterpartyAccountID)
	row.ListingID = types.OptionalID(event.RelatedListingID)
	row.OperationID = types.ID(event.OperationID)
	row.EntryKind = types.Text(string(event.Kind))
	row.Amount = types.Int(event.Amount)
	return nil
}

func listingRedeemedRow(row *types.MarketplaceEventRow, payload any) error {
	event, ok := payload.(payloads.ListingRedeemedEvent)
	if !ok {
		return fmt.Errorf("invalid payload for %s", enums.EventListingRedeemed)
	}
	row.ListingID = types.ID(event.ListingID)
	row.AccountID = types.ID(event.BuyerAccountID)
	row.CounterpartyAccountID = types.ID(event.OwnerAccountID)
	row.OperationID = types.ID(event.OperationID)
	row.EntryKind = types.Text(string(enums.LedgerEntryRedemption))
	row.Amount = types.Int(event.TokenPrice)
	return nil
}
