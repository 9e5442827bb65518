// Command cron-worker runs the housekeeping jobs on a fixed interval. A Redis
// lock keeps replicas from running the same tick twice.
package main

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/bukkus/bukkus-backend/internal/cron"
	"github.com/bukkus/bukkus-backend/internal/ledger"
	"github.com/bukkus/bukkus-backend/internal/notifications"
	"github.com/bukkus/bukkus-backend/pkg/config"
	"github.com/bukkus/bukkus-backend/pkg/db"
	"github.com/bukkus/bukkus-backend/pkg/logger"
	"github.com/bukkus/bukkus-backend/pkg/metrics"
	"github.com/bukkus/bukkus-backend/pkg/outbox"
	"github.com/bukkus/bukkus-backend/pkg/process"
	"github.com/bukkus/bukkus-backend/pkg/redis"
)

func main() {
	process.Run("cron-worker", run)
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

	env := cfg.App.Env
	if env == "" {
		env = "local"
	}
	// The lock expires a minute before the next tick so a crashed holder never
	// blocks it.
	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey("housekeeping", env), cfg.Housekeeping.Interval-time.Minute)
	if err != nil {
		return err
	}

	conn := dbClient.DB()
	keep := cfg.Housekeeping
	outboxJob, err := cron.NewOutboxRetentionJob(dbClient, outbox.NewRepository(conn), keep.OutboxRetention)
	if err != nil {
		return err
	}
	inboxJob, err := cron.NewNotificationRetentionJob(notifications.NewRepository(conn), keep.NotificationRetention)
	if err != nil {
		return err
	}
	auditJob, err := cron.NewLedgerAuditJob(ledger.NewRepository(conn), keep.LedgerAuditLimit, logg)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Jobs:     []cron.Job{auditJob, outboxJob, inboxJob},
		Lock:     lock,
		Metrics:  metrics.NewHousekeepingMetrics(reg),
		Interval: keep.Interval,
	})
	if err != nil {
		return err
	}

	logg.Info(ctx, "cron.worker.ready")
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error { return service.Run(groupCtx) })
	process.ServeMetrics(groupCtx, group, cfg.Service.MetricsAddr, reg)
	return group.Wait()
}
