package ledger

import (
	"time"

	"github.com/google/uuid"

	"github.com/bukkus/bukkus-backend/pkg/db/models"
	"github.com/bukkus/bukkus-backend/pkg/enums"
	"github.com/bukkus/bukkus-backend/pkg/pagination"
)

// TransferInput moves Amount from one wallet to another. The recipient is
// addressed either by id or by alias.
type TransferInput struct {
	FromAccountID  uuid.UUID
	ToAccountID    uuid.UUID
	ToAlias        string
	Amount         int64
	IdempotencyKey string
}

// RedeemInput buys a listing with tokens.
type RedeemInput struct {
	AccountID      uuid.UUID
	ListingID      uuid.UUID
	IdempotencyKey string
}

// DepositInput is an administrative credit.
type DepositInput struct {
	AccountID      uuid.UUID
	Amount         int64
	AdminActorID   uuid.UUID
	IdempotencyKey string
}

// Entry is the read model of a ledger entry.
type Entry struct {
	ID                    uuid.UUID             `json:"id"`
	AccountID             uuid.UUID             `json:"account_id"`
	Kind                  enums.LedgerEntryKind `json:"kind"`
	Amount                int64                 `json:"amount"`
	BalanceAfter          int64                 `json:"balance_after"`
	CounterpartyAccountID *uuid.UUID            `json:"counterparty_account_id,omitempty"`
	RelatedListingID      *uuid.UUID            `json:"related_listing_id,omitempty"`
	OperationID           uuid.UUID             `json:"operation_id"`
	CreatedAt             time.Time             `json:"created_at"`
}

// TransferResult describes a committed transfer. Replayed is set when the
// result was served from a previous request with the same idempotency key.
type TransferResult struct {
	OperationID uuid.UUID `json:"operation_id"`
	Debit       Entry     `json:"debit"`
	Credit      Entry     `json:"credit"`
	Balance     int64     `json:"balance"`
	Replayed    bool      `json:"-"`
}

// RedemptionResult describes a committed redemption.
type RedemptionResult struct {
	OperationID uuid.UUID `json:"operation_id"`
	ListingID   uuid.UUID `json:"listing_id"`
	Price       int64     `json:"price"`
	Debit       Entry     `json:"debit"`
	Credit      Entry     `json:"credit"`
	Balance     int64     `json:"balance"`
	Replayed    bool      `json:"-"`
}

// DepositResult is the credited entry. Replayed marks a result served from an
// earlier deposit with the same idempotency key.
type DepositResult struct {
	Entry
	Replayed bool `json:"-"`
}

// HistoryPage is one page of an account's entries, newest first.
type HistoryPage struct {
	Entries    []Entry `json:"entries"`
	NextCursor string  `json:"next_cursor,omitempty"`
}

// AccountDTO is the API projection of a wallet.
type AccountDTO struct {
	ID        uuid.UUID `json:"id"`
	Alias     *string   `json:"alias,omitempty"`
	Balance   int64     `json:"balance"`
	CreatedAt time.Time `json:"created_at"`
}

func AccountFromModel(m *models.Account) AccountDTO {
	if m == nil {
		return AccountDTO{}
	}
	return AccountDTO{ID: m.ID, Alias: m.Alias, Balance: m.Balance, CreatedAt: m.CreatedAt}
}

func entryPosition(m models.LedgerEntry) pagination.Cursor {
	return pagination.Cursor{CreatedAt: m.CreatedAt, ID: m.ID}
}

func entryFromModel(m models.LedgerEntry) Entry {
	return Entry{
		ID:                    m.ID,
		AccountID:             m.AccountID,
		Kind:                  m.Kind,
		Amount:                m.Amount,
		BalanceAfter:          m.BalanceAfter,
		CounterpartyAccountID: m.CounterpartyAccountID,
		RelatedListingID:      m.RelatedListingID,
		OperationID:           m.OperationID,
		CreatedAt:             m.CreatedAt,
	}
}
