package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/bukkus/bukkus-backend/pkg/enums"
)

// LedgerEntry is an append-only record of one balance change.
// Entries written by the same operation share OperationID.
type LedgerEntry struct {
	ID                    uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	AccountID             uuid.UUID             `gorm:"column:account_id;type:uuid;not null"`
	Kind                  enums.LedgerEntryKind `gorm:"column:kind;type:ledger_entry_kind;not null"`
	Amount                int64                 `gorm:"column:amount;not null"`
	BalanceAfter          int64                 `gorm:"column:balance_after;not null"`
	CounterpartyAccountID *uuid.UUID            `gorm:"column:counterparty_account_id;type:uuid"`
	RelatedListingID      *uuid.UUID            `gorm:"column:related_listing_id;type:uuid"`
	OperationID           uuid.UUID             `gorm:"column:operation_id;type:uuid;not null"`
	ActorAccountID        *uuid.UUID            `gorm:"column:actor_account_id;type:uuid"`
	CreatedAt             time.Time             `gorm:"column:created_at;not null"`
}
