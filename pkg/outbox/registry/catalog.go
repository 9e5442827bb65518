// Package registry knows every event the outbox carries: its aggregate, its
// topic and how each payload version decodes.
package registry

import (
	"encoding/json"
	"fmt"

	"github.com/bukkus/bukkus-backend/pkg/enums"
	"github.com/bukkus/bukkus-backend/pkg/outbox/payloads"
)

type decoderFunc func(data json.RawMessage) (any, error)

// Schema is one event type. Versions maps envelope version to a decoder that
// returns the payload by value.
type Schema struct {
	EventType enums.OutboxEventType
	Aggregate enums.OutboxAggregateType
	Versions  map[int]decoderFunc
}

func schema[T any](eventType enums.OutboxEventType, aggregate enums.OutboxAggregateType) Schema {
	return Schema{
		EventType: eventType,
		Aggregate: aggregate,
		Versions:  map[int]decoderFunc{1: decodeInto[T]},
	}
}

func decodeInto[T any](data json.RawMessage) (any, error) {
	var out T
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Catalog is read-only after construction and safe to share between goroutines.
type Catalog struct {
	schemas map[enums.OutboxEventType]Schema
}

// NewCatalog lists what the ledger and offer services emit.
func NewCatalog() *Catalog {
	c := &Catalog{schemas: make(map[enums.OutboxEventType]Schema)}
	for _, s := range []Schema{
		schema[payloads.OfferCreatedEvent](enums.EventOfferCreated, enums.AggregateOffer),
		schema[payloads.OfferResolvedEvent](enums.EventOfferAccepted, enums.AggregateOffer),
		schema[payloads.OfferResolvedEvent](enums.EventOfferRejected, enums.AggregateOffer),
		schema[payloads.LedgerCreditedEvent](enums.EventLedgerCredited, enums.AggregateAccount),
		schema[payloads.ListingRedeemedEvent](enums.EventListingRedeemed, enums.AggregateListing),
	} {
		c.schemas[s.EventType] = s
	}
	return c
}

func (c *Catalog) Lookup(eventType enums.OutboxEventType) (Schema, bool) {
	s, ok := c.schemas[eventType]
	return s, ok
}

// Decode treats version 0 as 1, since envelopes written before versioning omit it.
func (c *Catalog) Decode(eventType enums.OutboxEventType, version int, data json.RawMessage) (any, error) {
	if version == 0 {
		version = 1
	}
	s, ok := c.schemas[eventType]
	if !ok {
		return nil, fmt.Errorf("no schema for %s", eventType)
	}
	decode, ok := s.Versions[version]
	if !ok {
		return nil, fmt.Errorf("no decoder for %s@v%d", eventType, version)
	}
	return decode(data)
}
