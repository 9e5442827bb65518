// Command notifications-worker turns domain events into inbox entries.
package main

import (
	"context"
	"fmt"

	"github.com/bukkus/bukkus-backend/internal/notifications"
	"github.com/bukkus/bukkus-backend/pkg/config"
	"github.com/bukkus/bukkus-backend/pkg/db"
	"github.com/bukkus/bukkus-backend/pkg/logger"
	"github.com/bukkus/bukkus-backend/pkg/outbox/idempotency"
	"github.com/bukkus/bukkus-backend/pkg/outbox/registry"
	"github.com/bukkus/bukkus-backend/pkg/process"
	"github.com/bukkus/bukkus-backend/pkg/pubsub"
	"github.com/bukkus/bukkus-backend/pkg/redis"
)

func main() {
	process.Run("notifications-worker", run)
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger, closers *process.Closers) error {
	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	closers.Add("database", dbClient.Close)

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	closers.Add("redis", redisClient.Close)

	pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
	if err != nil {
		return fmt.Errorf("pubsub: %w", err)
	}
	closers.Add("pubsub", pubsubClient.Close)

	claims, err := idempotency.NewClaims(redisClient, cfg.Eventing.OutboxIdempotencyTTL)
	if err != nil {
		return err
	}
	consumer, err := notifications.NewConsumer(
		notifications.NewRepository(dbClient.DB()),
		pubsubClient.NotificationSubscription(),
		registry.NewCatalog(),
		claims,
		logg,
	)
	if err != nil {
		return err
	}

	if err := process.Ready(ctx,
		process.Check{Name: "database", Ping: dbClient.Ping},
		process.Check{Name: "redis", Ping: redisClient.Ping},
		process.Check{Name: "pubsub", Ping: pubsubClient.Ping},
	); err != nil {
		return err
	}
	logg.Info(ctx, "notifications.worker.ready")
	return consumer.Run(ctx)
}
