package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// LedgerRequest remembers the outcome of a keyed ledger mutation so retries replay it.
type LedgerRequest struct {
	ID             uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	AccountID      uuid.UUID       `gorm:"column:account_id;type:uuid;not null"`
	IdempotencyKey string          `gorm:"column:idempotency_key;type:text;not null"`
	Operation      string          `gorm:"column:operation;type:text;not null"`
	RequestHash    string          `gorm:"column:request_hash;type:text;not null"`
	OperationID    uuid.UUID       `gorm:"column:operation_id;type:uuid;not null"`
	Response       json.RawMessage `gorm:"column:response;type:jsonb;not null"`
	CreatedAt      time.Time       `gorm:"column:created_at;autoCreateTime"`
}
