// Command analytics-worker streams domain events from Pub/Sub into the
// marketplace_events BigQuery table.
package main

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/bukkus/bukkus-backend/internal/analytics/router"
	"github.com/bukkus/bukkus-backend/internal/analytics/types"
	"github.com/bukkus/bukkus-backend/internal/analytics/worker"
	"github.com/bukkus/bukkus-backend/internal/analytics/writer"
	"github.com/bukkus/bukkus-backend/pkg/bigquery"
	"github.com/bukkus/bukkus-backend/pkg/config"
	"github.com/bukkus/bukkus-backend/pkg/logger"
	"github.com/bukkus/bukkus-backend/pkg/outbox/idempotency"
	"github.com/bukkus/bukkus-backend/pkg/outbox/registry"
	"github.com/bukkus/bukkus-backend/pkg/process"
	"github.com/bukkus/bukkus-backend/pkg/pubsub"
	"github.com/bukkus/bukkus-backend/pkg/redis"
)

func main() {
	process.Run("analytics-worker", run)
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger, closers *process.Closers) error {
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

	bqClient, err := bigquery.NewClient(ctx, cfg.GCP, cfg.BigQuery, logg)
	if err != nil {
		return fmt.Errorf("bigquery: %w", err)
	}
	closers.Add("bigquery", bqClient.Close)

	subscription := pubsubClient.AnalyticsSubscription()
	if subscription == nil {
		return errors.New("analytics subscription not configured")
	}
	claims, err := idempotency.NewClaims(redisClient, cfg.Eventing.OutboxIdempotencyTTL)
	if err != nil {
		return err
	}

	table := bqClient.MarketplaceEventsTable()
	if err := bqClient.EnsureTable(ctx, bigquery.TableSpec{
		Name:           table,
		Schema:         types.MarketplaceEventsSchema(),
		PartitionField: "occurred_at",
		Clustering:     []string{"event_type", "listing_id"},
	}); err != nil {
		return fmt.Errorf("ensure %s: %w", table, err)
	}

	rows, err := writer.New(bqClient, writer.Config{
		MarketplaceTable: table,
		BatchSize:        cfg.BigQuery.WriterBatchSize,
		FlushInterval:    cfg.BigQuery.WriterFlushInterval,
	})
	if err != nil {
		return err
	}
	// Rows still buffered at shutdown are flushed before the client closes.
	closers.Add("analytics writer", func() error { return rows.Flush(context.WithoutCancel(ctx)) })

	handler, err := router.NewRouter(rows, registry.NewCatalog(), logg, nil)
	if err != nil {
		return err
	}
	service, err := worker.NewService(subscription, handler, claims, logg)
	if err != nil {
		return err
	}

	logg.Info(ctx, "analytics.worker.ready")
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error { return service.Run(groupCtx) })
	group.Go(func() error { return rows.Run(groupCtx) })
	return group.Wait()
}
