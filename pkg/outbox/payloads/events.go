package payloads

import (
	"github.com/google/uuid"

	"github.com/bukkus/bukkus-backend/pkg/enums"
)

// Recipient is implemented by every payload that should reach an account inbox.
type Recipient interface {
	RecipientAccountID() uuid.UUID
}

// OfferCreatedEvent tells a listing owner they received a new offer.
type OfferCreatedEvent struct {
	OfferID       uuid.UUID `json:"offer_id"`
	ListingID     uuid.UUID `json:"listing_id"`
	ListingTitle  string    `json:"listing_title"`
	FromAccountID uuid.UUID `json:"from_account_id"`
	ToAccountID   uuid.UUID `json:"to_account_id"`
	ProposedItem  string    `json:"proposed_item"`
}

func (e OfferCreatedEvent) RecipientAccountID() uuid.UUID { return e.ToAccountID }

// OfferResolvedEvent tells the sender their offer was accepted or rejected.
type OfferResolvedEvent struct {
	OfferID       uuid.UUID         `json:"offer_id"`
	ListingID     uuid.UUID         `json:"listing_id"`
	ListingTitle  string            `json:"listing_title"`
	FromAccountID uuid.UUID         `json:"from_account_id"`
	ToAccountID   uuid.UUID         `json:"to_account_id"`
	Status        enums.OfferStatus `json:"status"`
	ChatChannelID *uuid.UUID        `json:"chat_channel_id,omitempty"`
}

func (e OfferResolvedEvent) RecipientAccountID() uuid.UUID { return e.FromAccountID }

// LedgerCreditedEvent reports tokens arriving in an account.
type LedgerCreditedEvent struct {
	EntryID               uuid.UUID             `json:"entry_id"`
	OperationID           uuid.UUID             `json:"operation_id"`
	AccountID             uuid.UUID             `json:"account_id"`
	Kind                  enums.LedgerEntryKind `json:"kind"`
	Amount                int64                 `json:"amount"`
	BalanceAfter          int64                 `json:"balance_after"`
	CounterpartyAccountID *uuid.UUID            `json:"counterparty_account_id,omitempty"`
	RelatedListingID      *uuid.UUID            `json:"related_listing_id,omitempty"`
}

func (e LedgerCreditedEvent) RecipientAccountID() uuid.UUID { return e.AccountID }

// ListingRedeemedEvent reports a listing bought with tokens.
type ListingRedeemedEvent struct {
	ListingID      uuid.UUID `json:"listing_id"`
	ListingTitle   string    `json:"listing_title"`
	OperationID    uuid.UUID `json:"operation_id"`
	BuyerAccountID uuid.UUID `json:"buyer_account_id"`
	OwnerAccountID uuid.UUID `json:"owner_account_id"`
	TokenPrice     int64     `json:"token_price"`
}

func (e ListingRedeemedEvent) RecipientAccountID() uuid.UUID { return e.OwnerAccountID }
