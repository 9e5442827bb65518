package router

import (
	"context"
	"errors"
	"fmt"

	"github.com/bukkus/bukkus-backend/internal/analytics/types"
	"github.com/bukkus/bukkus-backend/internal/analytics/writer"
	"github.com/bukkus/bukkus-backend/pkg/enums"
	"github.com/bukkus/bukkus-backend/pkg/logger"
	"github.com/bukkus/bukkus-backend/pkg/outbox/registry"
)

var ErrUnsupportedEventType = errors.New("unsupported analytics event type")

// Writer receives finished rows. writer.Writer batches them into BigQuery.
type Writer interface {
	InsertMarketplace(ctx context.Context, row types.MarketplaceEventRow) error
}

// Handler turns one decoded event into marketplace rows.
type Handler interface {
	Handle(ctx context.Context, envelope types.Envelope, payload any) error
}

// rowBuilder projects one decoded payload onto the marketplace_events schema.
type rowBuilder func(row *types.MarketplaceEventRow, payload any) error

// Router decodes an envelope's payload and hands it to the handler for its event type.
type Router struct {
	handlers map[enums.OutboxEventType]Handler
	decoders *registry.Catalog
	logg     *logger.Logger
}

// NewRouter installs a row builder for every marketplace event. overrides replace
// the builtin handler for a known event type; other entries are ignored.
func NewRouter(w Writer, decoders *registry.Catalog, logg *logger.Logger, overrides map[enums.OutboxEventType]Handler) (*Router, error) {
	if w == nil {
		return nil, errors.New("writer is required")
	}
	if decoders == nil {
		return nil, errors.New("decoder registry is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}

	handlers := map[enums.OutboxEventType]Handler{
		enums.EventOfferCreated:    &marketplaceHandler{writer: w, logg: logg, build: offerCreatedRow},
		enums.EventOfferAccepted:   &marketplaceHandler{writer: w, logg: logg, build: offerResolvedRow},
		enums.EventOfferRejected:   &marketplaceHandler{writer: w, logg: logg, build: offerResolvedRow},
		enums.EventLedgerCredited:  &marketplaceHandler{writer: w, logg: logg, build: ledgerCreditedRow},
		enums.EventListingRedeemed: &marketplaceHandler{writer: w, logg: logg, build: listingRedeemedRow},
	}
	for event, custom := range overrides {
		if _, ok := handlers[event]; !ok || custom == nil {
			continue
		}
		handlers[event] = custom
	}

	return &Router{
		handlers: handlers,
		decoders: decoders,
		logg:     logg,
	}, nil
}

// Handle wraps ErrUnsupportedEventType for events no handler covers, so the
// worker can ack them without a row.
func (r *Router) Handle(ctx context.Context, envelope types.Envelope) error {
	handler, ok := r.handlers[envelope.EventType]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnsupportedEventType, envelope.EventType)
	}
	if len(envelope.Payload) == 0 {
		return fmt.Errorf("empty payload for %s", envelope.EventType)
	}
	payload, err := r.decoders.Decode(envelope.EventType, envelope.Version, envelope.Payload)
	if err != nil {
		return fmt.Errorf("decode %s payload: %w", envelope.EventType, err)
	}
	return handler.Handle(ctx, envelope, payload)
}

type marketplaceHandler struct {
	writer Writer
	logg   *logger.Logger
	build  rowBuilder
}

func (h *marketplaceHandler) Handle(ctx context.Context, envelope types.Envelope, payload any) error {
	logCtx := h.logg.WithFields(ctx, map[string]any{
		"event_type":   envelope.EventType,
		"aggregate_id": envelope.AggregateID,
	})

	raw, err := writer.EncodeJSON(envelope.Payload)
	if err != nil {
		return err
	}
	row := types.MarketplaceEventRow{
		EventID:        envelope.EventID,
		EventType:      string(envelope.EventType),
		OccurredAt:     envelope.OccurredAt.UTC(),
		AggregateType:  string(envelope.AggregateType),
		AggregateID:    envelope.AggregateID,
		ActorAccountID: types.Text(envelope.ActorAccountID),
		Payload:        raw,
	}
	if err := h.build(&row, payload); err != nil {
		h.logg.Error(logCtx, "analytics.row.build_failed", err)
		return err
	}

	if err := h.writer.InsertMarketplace(logCtx, row); err != nil {
		h.logg.Error(logCtx, "analytics.row.insert_failed", err)
		return err
	}
	h.logg.Debug(logCtx, "analytics.row.queued")
	return nil
}
