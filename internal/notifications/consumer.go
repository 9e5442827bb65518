package notifications

import (
	"context"
	"fmt"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/bukkus/bukkus-backend/pkg/db/models"
	"github.com/bukkus/bukkus-backend/pkg/logger"
	"github.com/bukkus/bukkus-backend/pkg/outbox"
	"github.com/bukkus/bukkus-backend/pkg/outbox/idempotency"
	"github.com/bukkus/bukkus-backend/pkg/outbox/registry"
)

const notificationConsumer = "inbox-notifications"

type creator interface {
	Create(ctx context.Context, notification *models.Notification) (bool, error)
}

type claimer interface {
	Once(ctx context.Context, consumer string, eventID uuid.UUID, fn func(context.Context) error) (bool, error)
}

// Consumer turns domain events into inbox notifications for their recipient.
type Consumer struct {
	repo         creator
	subscription *pubsub.Subscriber
	decoders     *registry.Catalog
	claims       claimer
	logg         *logger.Logger
	now          func() time.Time
}

// NewConsumer builds the inbox notification consumer.
func NewConsumer(repo creator, subscription *pubsub.Subscriber, decoders *registry.Catalog, claims *idempotency.Claims, logg *logger.Logger) (*Consumer, error) {
	if repo == nil {
		return nil, fmt.Errorf("notifications repository required")
	}
	if subscription == nil {
		return nil, fmt.Errorf("domain subscription required")
	}
	if decoders == nil {
		return nil, fmt.Errorf("decoder registry required")
	}
	if claims == nil {
		return nil, fmt.Errorf("idempotency claims required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{
		repo:         repo,
		subscription: subscription,
		decoders:     decoders,
		claims:       claims,
		logg:         logg,
		now:          time.Now,
	}, nil
}

// Run receives until ctx is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		if c.process(ctx, msg) == outbox.Nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

// process stores at most one inbox row per event. Messages a redelivery
// cannot fix are acked and dropped; Redis and database failures are nacked.
func (c *Consumer) process(ctx context.Context, msg *pubsub.Message) outbox.Disposition {
	logCtx := c.logg.WithField(ctx, "message_id", msg.ID)

	delivery, err := outbox.DecodeDelivery(msg.Data, msg.Attributes)
	if err != nil {
		c.logg.Warn(c.logg.WithField(logCtx, "error", err.Error()), "notifications.message.malformed")
		return outbox.Ack
	}
	logCtx = c.logg.WithFields(logCtx, delivery.LogFields())

	payload, err := c.decoders.Decode(delivery.EventType, delivery.Version, delivery.Data)
	if err != nil {
		c.logg.Warn(c.logg.WithField(logCtx, "error", err.Error()), "notifications.payload.invalid")
		return outbox.Ack
	}
	note, ok := render(payload)
	if !ok {
		c.logg.Debug(logCtx, "notifications.event.silent")
		return outbox.Ack
	}
	if note.recipient == uuid.Nil {
		c.logg.Warn(logCtx, "notifications.event.no_recipient")
		return outbox.Ack
	}
	logCtx = c.logg.WithAccountID(logCtx, note.recipient.String())

	eventID := delivery.EventID
	link := note.link
	inserted := false
	ran, err := c.claims.Once(logCtx, notificationConsumer, eventID, func(ctx context.Context) error {
		created, err := c.repo.Create(ctx, &models.Notification{
			ID:        uuid.New(),
			AccountID: note.recipient,
			EventID:   &eventID,
			Type:      note.kind,
			Title:     note.title,
			Message:   note.message,
			Link:      &link,
			CreatedAt: c.now().UTC(),
		})
		inserted = created
		return err
	})
	switch {
	case err != nil && !ran:
		c.logg.Error(logCtx, "notifications.claim.failed", err)
		return outbox.Nack
	case err != nil:
		c.logg.Error(logCtx, "notifications.insert.failed", err)
		return outbox.Nack
	case !ran, !inserted:
		c.logg.Info(logCtx, "notifications.event.duplicate")
	default:
		c.logg.Info(logCtx, "notifications.account.notified")
	}
	return outbox.Ack
}
