package types

import (
	"encoding/json"
	"time"

	"github.com/bukkus/bukkus-backend/pkg/enums"
)

// Envelope is a domain event as the analytics worker sees it.
type Envelope struct {
	EventID        string                    `json:"event_id"`
	EventType      enums.OutboxEventType     `json:"event_type"`
	Version        int                       `json:"version"`
	AggregateType  enums.OutboxAggregateType `json:"aggregate_type"`
	AggregateID    string                    `json:"aggregate_id"`
	ActorAccountID string                    `json:"actor_account_id,omitempty"`
	OccurredAt     time.Time                 `json:"occurred_at"`
	Payload        json.RawMessage           `json:"payload"`
}
