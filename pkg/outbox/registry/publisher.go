package registry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/bukkus/bukkus-backend/pkg/config"
	"github.com/bukkus/bukkus-backend/pkg/db/models"
	"github.com/bukkus/bukkus-backend/pkg/outbox"
)

// EventDescriptor says where a resolved row is published.
type EventDescriptor struct {
	Schema
	Topic string
}

// ResolvedEvent is an outbox row that passed validation and is ready to publish.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    any
}

// NonRetryableError marks a row that will never publish, so the publisher
// dead-letters it instead of retrying.
type NonRetryableError struct {
	Err error
}

func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

func (e NonRetryableError) Unwrap() error {
	return e.Err
}

func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}

func nonRetryable(format string, args ...any) error {
	return NonRetryableError{Err: fmt.Errorf(format, args...)}
}

// EventRegistry checks outbox rows against the catalog before publishing.
// Every event goes to the one domain topic; notifications and analytics read
// it through their own subscriptions.
type EventRegistry struct {
	catalog *Catalog
	topic   string
}

func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	if cfg.DomainTopic == "" {
		return nil, errors.New("domain topic is required")
	}
	return &EventRegistry{catalog: NewCatalog(), topic: cfg.DomainTopic}, nil
}

// Resolve fails only with NonRetryableError: a row that does not decode now
// will not decode on the next poll either.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	s, ok := r.catalog.Lookup(event.EventType)
	switch {
	case !ok:
		return nil, nonRetryable("unsupported event type %s", event.EventType)
	case s.Aggregate != event.AggregateType:
		return nil, nonRetryable("aggregate mismatch: expected %s got %s", s.Aggregate, event.AggregateType)
	case event.AggregateID == uuid.Nil:
		return nil, nonRetryable("missing aggregate_id")
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(event.Payload, &envelope); err != nil {
		return nil, nonRetryable("decode envelope: %w", err)
	}
	if data := bytes.TrimSpace(envelope.Data); len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, nonRetryable("payload missing for %s", event.EventType)
	}
	payload, err := r.catalog.Decode(event.EventType, envelope.Version, envelope.Data)
	if err != nil {
		return nil, nonRetryable("decode %s payload: %w", event.EventType, err)
	}

	return &ResolvedEvent{
		Descriptor: EventDescriptor{Schema: s, Topic: r.topic},
		Envelope:   envelope,
		Payload:    payload,
	}, nil
}
