package outbox

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/bukkus/bukkus-backend/pkg/db/models"
	"github.com/bukkus/bukkus-backend/pkg/enums"
)

// Message attributes stamped by the outbox publisher.
const (
	AttrEventID       = "event_id"
	AttrEventType     = "event_type"
	AttrAggregateType = "aggregate_type"
	AttrAggregateID   = "aggregate_id"
	AttrCreatedAt     = "created_at"
)

// Disposition is what a subscriber does with a message once it is handled.
type Disposition int

const (
	// Ack drops the message. Used on success and for messages a redelivery
	// cannot fix.
	Ack Disposition = iota
	// Nack asks Pub/Sub to redeliver.
	Nack
)

// NewMessage is the Pub/Sub form of a stored event: the envelope as body and
// the routing fields as attributes. Messages for one aggregate share an
// ordering key so subscribers see them in commit order.
func NewMessage(event models.OutboxEvent, eventID string) *pubsub.Message {
	if eventID == "" {
		eventID = event.ID.String()
	}
	return &pubsub.Message{
		Data:        event.Payload,
		OrderingKey: string(event.AggregateType) + ":" + event.AggregateID.String(),
		Attributes: map[string]string{
			AttrEventID:       eventID,
			AttrEventType:     string(event.EventType),
			AttrAggregateType: string(event.AggregateType),
			AttrAggregateID:   event.AggregateID.String(),
			AttrCreatedAt:     event.CreatedAt.UTC().Format(time.RFC3339Nano),
		},
	}
}

// ErrMalformedDelivery wraps every DecodeDelivery failure.
var ErrMalformedDelivery = errors.New("malformed delivery")

// Delivery is a domain event as it arrives on a subscription: the stored
// envelope completed with the publisher's message attributes.
type Delivery struct {
	EventID       uuid.UUID
	EventType     enums.OutboxEventType
	Version       int
	AggregateType enums.OutboxAggregateType
	AggregateID   string
	ActorID       uuid.UUID
	OccurredAt    time.Time
	Data          json.RawMessage
}

// DecodeDelivery parses a message body and its attributes. Envelope fields
// win over attributes. Aggregate attributes are optional and validated only
// when present.
func DecodeDelivery(body []byte, attrs map[string]string) (Delivery, error) {
	var env PayloadEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Delivery{}, fmt.Errorf("%w: envelope: %v", ErrMalformedDelivery, err)
	}
	attr := func(key string) string { return strings.TrimSpace(attrs[key]) }
	firstOf := func(values ...string) string {
		for _, v := range values {
			if v = strings.TrimSpace(v); v != "" {
				return v
			}
		}
		return ""
	}

	eventID, err := uuid.Parse(firstOf(env.EventID, attr(AttrEventID)))
	if err != nil {
		return Delivery{}, fmt.Errorf("%w: event id: %v", ErrMalformedDelivery, err)
	}
	eventType, err := enums.ParseOutboxEventType(firstOf(env.EventType, attr(AttrEventType)))
	if err != nil {
		return Delivery{}, fmt.Errorf("%w: %v", ErrMalformedDelivery, err)
	}

	d := Delivery{
		EventID:     eventID,
		EventType:   eventType,
		Version:     env.Version,
		AggregateID: attr(AttrAggregateID),
		OccurredAt:  env.OccurredAt.UTC(),
		Data:        env.Data,
	}
	if raw := attr(AttrAggregateType); raw != "" {
		if d.AggregateType, err = enums.ParseOutboxAggregateType(raw); err != nil {
			return Delivery{}, fmt.Errorf("%w: %v", ErrMalformedDelivery, err)
		}
	}
	if d.OccurredAt.IsZero() {
		if created, err := time.Parse(time.RFC3339Nano, attr(AttrCreatedAt)); err == nil {
			d.OccurredAt = created.UTC()
		}
	}
	if env.Actor != nil {
		d.ActorID = env.Actor.AccountID
	}
	return d, nil
}

// LogFields is the structured context subscribers attach to every log line.
func (d Delivery) LogFields() map[string]any {
	fields := map[string]any{
		"event_id":   d.EventID.String(),
		"event_type": d.EventType,
		"version":    d.Version,
	}
	if d.AggregateType != "" {
		fields["aggregate_type"] = d.AggregateType
		fields["aggregate_id"] = d.AggregateID
	}
	if !d.OccurredAt.IsZero() {
		fields["occurred_at"] = d.OccurredAt.Format(time.RFC3339Nano)
	}
	return fields
}
