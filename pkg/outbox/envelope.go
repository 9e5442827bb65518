package outbox

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/bukkus/bukkus-backend/pkg/db/models"
	"github.com/bukkus/bukkus-backend/pkg/enums"
)

// CurrentVersion is stamped on envelopes whose event does not set one.
const CurrentVersion = 1

type ActorRef struct {
	AccountID uuid.UUID `json:"account_id"`
	Role      string    `json:"role,omitempty"`
}

// PayloadEnvelope is stored in outbox_events.payload and published unchanged
// as the message body.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"event_id"`
	EventType  string          `json:"event_type"`
	OccurredAt time.Time       `json:"occurred_at"`
	Actor      *ActorRef       `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}

// DomainEvent is what a service hands to Emit. Data is marshaled to JSON.
type DomainEvent struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	AggregateID   uuid.UUID
	Actor         *ActorRef
	Data          any
	Version       int
	OccurredAt    time.Time
}

// row builds the outbox row for e under id, filling in version and time.
func (e DomainEvent) row(id uuid.UUID, now time.Time) (models.OutboxEvent, error) {
	if !e.EventType.IsValid() {
		return models.OutboxEvent{}, fmt.Errorf("unknown event type %q", e.EventType)
	}
	data, err := json.Marshal(e.Data)
	if err != nil {
		return models.OutboxEvent{}, fmt.Errorf("marshal %s data: %w", e.EventType, err)
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = now
	}
	if e.Version == 0 {
		e.Version = CurrentVersion
	}
	body, err := json.Marshal(PayloadEnvelope{
		Version:    e.Version,
		EventID:    id.String(),
		EventType:  string(e.EventType),
		OccurredAt: e.OccurredAt.UTC(),
		Actor:      e.Actor,
		Data:       data,
	})
	if err != nil {
		return models.OutboxEvent{}, err
	}
	return models.OutboxEvent{
		ID:            id,
		EventType:     e.EventType,
		AggregateType: e.AggregateType,
		AggregateID:   e.AggregateID,
		Payload:       body,
		CreatedAt:     e.OccurredAt.UTC(),
	}, nil
}
