package worker

import (
	"context"
	"errors"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/bukkus/bukkus-backend/internal/analytics/router"
	"github.com/bukkus/bukkus-backend/internal/analytics/types"
	"github.com/bukkus/bukkus-backend/pkg/logger"
	"github.com/bukkus/bukkus-backend/pkg/outbox"
)

const consumerName = "analytics"

// Handler turns one domain event into analytics rows.
type Handler interface {
	Handle(ctx context.Context, envelope types.Envelope) error
}

type HandlerFunc func(ctx context.Context, envelope types.Envelope) error

func (fn HandlerFunc) Handle(ctx context.Context, envelope types.Envelope) error {
	return fn(ctx, envelope)
}

type receiver interface {
	Receive(ctx context.Context, f func(context.Context, *gcppubsub.Message)) error
}

type claimer interface {
	Once(ctx context.Context, consumer string, eventID uuid.UUID, fn func(context.Context) error) (bool, error)
}

// Service drains the analytics subscription into BigQuery. Each event is
// handled at most once per Redis claim window.
type Service struct {
	subscription receiver
	handler      Handler
	claims       claimer
	logg         *logger.Logger
}

func NewService(subscription *gcppubsub.Subscriber, handler Handler, claims claimer, logg *logger.Logger) (*Service, error) {
	switch {
	case subscription == nil:
		return nil, errors.New("analytics subscription is required")
	case handler == nil:
		return nil, errors.New("analytics handler is required")
	case claims == nil:
		return nil, errors.New("idempotency manager is required")
	case logg == nil:
		return nil, errors.New("logger is required")
	}
	return &Service{subscription: subscription, handler: handler, claims: claims, logg: logg}, nil
}

// Run receives until ctx is canceled.
func (s *Service) Run(ctx context.Context) error {
	return s.subscription.Receive(ctx, func(ctx context.Context, msg *gcppubsub.Message) {
		if s.process(ctx, msg) == outbox.Nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

// process acks anything a redelivery cannot fix and nacks Redis or BigQuery
// failures.
func (s *Service) process(ctx context.Context, msg *gcppubsub.Message) outbox.Disposition {
	logCtx := s.logg.WithField(ctx, "message_id", msg.ID)

	delivery, err := outbox.DecodeDelivery(msg.Data, msg.Attributes)
	if err != nil {
		s.logg.Warn(s.logg.WithField(logCtx, "error", err.Error()), "analytics.message.malformed")
		return outbox.Ack
	}
	logCtx = s.logg.WithFields(logCtx, delivery.LogFields())
	if delivery.AggregateType == "" || delivery.AggregateID == "" {
		s.logg.Warn(logCtx, "analytics.message.missing_aggregate")
		return outbox.Ack
	}

	unrouted := false
	ran, err := s.claims.Once(logCtx, consumerName, delivery.EventID, func(ctx context.Context) error {
		err := s.handler.Handle(ctx, envelopeFrom(delivery))
		if errors.Is(err, router.ErrUnsupportedEventType) {
			unrouted = true
			return nil
		}
		return err
	})
	switch {
	case err != nil && !ran:
		s.logg.Error(logCtx, "analytics.claim.failed", err)
		return outbox.Nack
	case err != nil:
		s.logg.Error(logCtx, "analytics.event.failed", err)
		return outbox.Nack
	case !ran:
		s.logg.Info(logCtx, "analytics.event.duplicate")
	case unrouted:
		s.logg.Debug(logCtx, "analytics.event.unrouted")
	default:
		s.logg.Info(logCtx, "analytics.event.recorded")
	}
	return outbox.Ack
}

func envelopeFrom(d outbox.Delivery) types.Envelope {
	env := types.Envelope{
		EventID:       d.EventID.String(),
		EventType:     d.EventType,
		Version:       d.Version,
		AggregateType: d.AggregateType,
		AggregateID:   d.AggregateID,
		OccurredAt:    d.OccurredAt,
		Payload:       d.Data,
	}
	if d.ActorID != uuid.Nil {
		env.ActorAccountID = d.ActorID.String()
	}
	return env
}
