package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"gorm.io/gorm"

	"github.com/bukkus/bukkus-backend/pkg/config"
	"github.com/bukkus/bukkus-backend/pkg/db/models"
	"github.com/bukkus/bukkus-backend/pkg/enums"
	"github.com/bukkus/bukkus-backend/pkg/logger"
	"github.com/bukkus/bukkus-backend/pkg/metrics"
	"github.com/bukkus/bukkus-backend/pkg/outbox"
	"github.com/bukkus/bukkus-backend/pkg/outbox/registry"
	"github.com/bukkus/bukkus-backend/pkg/process"
)

const (
	defaultBatchSize      = 50
	defaultPollMs         = 500
	defaultPublishTimeout = 15 * time.Second
	defaultMaxAttempts    = 10
	maxIdleBackoff        = 10 * time.Second
)

type dbClient interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type pubSubClient interface {
	Ping(context.Context) error
	Publisher(name string) *gcppubsub.Publisher
}

type outboxRepository interface {
	ClaimBatch(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublished(tx *gorm.DB, id uuid.UUID, at time.Time) error
	RecordFailure(tx *gorm.DB, id uuid.UUID, cause error) error
	Park(tx *gorm.DB, id uuid.UUID, cause error, ceiling int) error
}

type dlqRepository interface {
	Record(tx *gorm.DB, entry models.OutboxDLQ) error
}

type registryResolver interface {
	Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error)
}

type ServiceParams struct {
	Config           *config.Config
	Logger           *logger.Logger
	DB               dbClient
	PubSub           pubSubClient
	Repository       outboxRepository
	Registry         registryResolver
	PublisherFactory publisherFactory
	DLQRepository    dlqRepository
	Metrics          *metrics.OutboxMetrics
}

// Service drains outbox_events onto Pub/Sub. Rows are locked per batch so
// several publishers can run side by side.
type Service struct {
	logg             *logger.Logger
	db               dbClient
	repo             outboxRepository
	pubsub           pubSubClient
	registry         registryResolver
	dlq              dlqRepository
	metrics          *metrics.OutboxMetrics
	publisherFactory publisherFactory
	batchSize        int
	maxAttempts      int
	pollInterval     time.Duration
	now              func() time.Time
}

// verdict is what publishing one row concluded. settle turns it into row
// updates inside the batch transaction.
type verdict struct {
	event  models.OutboxEvent
	fields map[string]any
	cause  error
	reason enums.OutboxDLQErrorReason
}

func (v verdict) published() bool { return v.cause == nil }

func (v verdict) deadLettered() bool { return v.reason != "" }

func NewService(params ServiceParams) (*Service, error) {
	for _, dep := range []struct {
		missing bool
		name    string
	}{
		{params.Config == nil, "config"},
		{params.Logger == nil, "logger"},
		{params.DB == nil, "database client"},
		{params.PubSub == nil, "pubsub client"},
		{params.Repository == nil, "outbox repository"},
		{params.Registry == nil, "event registry"},
		{params.DLQRepository == nil, "dlq repository"},
	} {
		if dep.missing {
			return nil, fmt.Errorf("%s is required", dep.name)
		}
	}

	factory := params.PublisherFactory
	if factory == nil {
		factory = topicPublishers(params.PubSub)
	}
	cfg := params.Config.Outbox

	return &Service{
		logg:             params.Logger,
		db:               params.DB,
		repo:             params.Repository,
		pubsub:           params.PubSub,
		registry:         params.Registry,
		dlq:              params.DLQRepository,
		metrics:          params.Metrics,
		publisherFactory: factory,
		batchSize:        orDefault(cfg.BatchSize, defaultBatchSize),
		maxAttempts:      orDefault(cfg.MaxAttempts, defaultMaxAttempts),
		pollInterval:     time.Duration(orDefault(cfg.PollIntervalMS, defaultPollMs)) * time.Millisecond,
		now:              time.Now,
	}, nil
}

func orDefault(v, fallback int) int {
	if v <= 0 {
		return fallback
	}
	return v
}

func (s *Service) ensureReadiness(ctx context.Context) error {
	err := process.Ready(ctx,
		process.Check{Name: "database", Ping: s.db.Ping},
		process.Check{Name: "pubsub", Ping: s.pubsub.Ping},
	)
	if err != nil {
		s.logg.Error(ctx, "outbox.publisher.not_ready", err)
	}
	return err
}

// Run polls until ctx is canceled. A full batch is followed immediately by
// the next one; an empty batch or an error waits with jittered backoff.
func (s *Service) Run(ctx context.Context) error {
	if err := s.ensureReadiness(ctx); err != nil {
		return err
	}

	backoff := s.newBackoff()
	for {
		if err := ctx.Err(); err != nil {
			s.logg.Info(ctx, "outbox.publisher.stopped")
			return err
		}

		processed, err := s.processBatch(ctx)
		wait := s.pollInterval
		switch {
		case err != nil:
			s.logg.Error(ctx, "outbox.publisher.batch_failed", err)
			wait, _ = backoff.Next()
		case processed:
			backoff = s.newBackoff()
			continue
		default:
			backoff = s.newBackoff()
		}
		if err := sleep(ctx, wait); err != nil {
			return err
		}
	}
}

func (s *Service) newBackoff() retry.Backoff {
	b := retry.NewExponential(s.pollInterval)
	b = retry.WithCappedDuration(maxIdleBackoff, b)
	return retry.WithJitterPercent(25, b)
}

// processBatch reports whether any row was claimed. A returned error means
// the transaction rolled back and every row in it stays claimable.
func (s *Service) processBatch(ctx context.Context) (bool, error) {
	started := s.now()
	defer func() { s.metrics.ObserveBatch(s.now().Sub(started)) }()

	processed := false
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		events, err := s.repo.ClaimBatch(tx, s.batchSize, s.maxAttempts)
		if err != nil {
			return err
		}
		processed = len(events) > 0
		for _, event := range events {
			if err := s.settle(ctx, tx, s.decide(ctx, event)); err != nil {
				return err
			}
		}
		return nil
	})
	return processed, err
}

// decide resolves and publishes one row without touching the database.
func (s *Service) decide(ctx context.Context, event models.OutboxEvent) verdict {
	v := verdict{event: event, fields: eventFields(event)}

	resolved, err := s.registry.Resolve(event)
	if err != nil {
		v.cause, v.reason = err, enums.OutboxDLQReasonNonRetryable
		return v
	}
	v.fields["event_id"] = resolved.Envelope.EventID
	v.fields["topic"] = resolved.Descriptor.Topic

	err = s.publish(ctx, resolved.Descriptor.Topic, outbox.NewMessage(event, resolved.Envelope.EventID))
	var nonRetry registry.NonRetryableError
	switch {
	case err == nil:
	case errors.As(err, &nonRetry):
		v.cause, v.reason = err, enums.OutboxDLQReasonNonRetryable
	case event.AttemptCount+1 >= s.maxAttempts:
		v.cause, v.reason = fmt.Errorf("max publish attempts reached: %w", err), enums.OutboxDLQReasonMaxAttempts
	default:
		v.cause = err
	}
	if err != nil {
		v.fields["attempt_count"] = event.AttemptCount + 1
	}
	return v
}

// settle records a verdict on the row. Its error aborts the batch.
func (s *Service) settle(ctx context.Context, tx *gorm.DB, v verdict) error {
	id, eventType := v.event.ID, string(v.event.EventType)
	logCtx := s.logg.WithFields(ctx, v.fields)

	switch {
	case v.published():
		if err := s.repo.MarkPublished(tx, id, s.now().UTC()); err != nil {
			return fmt.Errorf("mark published %s: %w", id, err)
		}
		s.metrics.IncPublished(eventType)
		s.logg.Info(logCtx, "outbox.event.published")

	case v.deadLettered():
		s.logg.Warn(s.logg.WithFields(logCtx, map[string]any{"error_reason": v.reason, "error": v.cause.Error()}), "outbox.event.dead_lettered")
		if err := s.dlq.Record(tx, v.event.Park(v.reason, v.cause.Error(), s.now().UTC())); err != nil {
			return fmt.Errorf("record dlq %s: %w", id, err)
		}
		if err := s.repo.Park(tx, id, v.cause, s.maxAttempts); err != nil {
			return fmt.Errorf("park %s: %w", id, err)
		}
		s.metrics.IncDeadLettered(eventType, string(v.reason))

	default:
		s.logg.Warn(s.logg.WithField(logCtx, "error", v.cause.Error()), "outbox.event.publish_failed")
		if err := s.repo.RecordFailure(tx, id, v.cause); err != nil {
			return fmt.Errorf("record failure %s: %w", id, err)
		}
		s.metrics.IncFailed(eventType)
	}
	return nil
}

func (s *Service) publish(ctx context.Context, topic string, msg *gcppubsub.Message) error {
	pub := s.publisherFactory(topic)
	if pub == nil {
		return registry.NewNonRetryableError(fmt.Errorf("publisher not configured for topic %s", topic))
	}

	ctx, cancel := context.WithTimeout(ctx, defaultPublishTimeout)
	defer cancel()
	result := pub.Publish(ctx, msg)
	if result == nil {
		return registry.NewNonRetryableError(fmt.Errorf("publisher returned nil for topic %s", topic))
	}
	_, err := result.Get(ctx)
	return err
}

func eventFields(event models.OutboxEvent) map[string]any {
	fields := map[string]any{
		"outbox_id":      event.ID.String(),
		"event_type":     event.EventType,
		"aggregate_type": event.AggregateType,
		"aggregate_id":   event.AggregateID.String(),
		"attempt_count":  event.AttemptCount,
	}
	if event.LastError != nil {
		fields["last_error"] = *event.LastError
	}
	return fields
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
