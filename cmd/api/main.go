package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/bukkus/bukkus-backend/api/routes"
	"github.com/bukkus/bukkus-backend/internal/analytics"
	"github.com/bukkus/bukkus-backend/internal/chat"
	"github.com/bukkus/bukkus-backend/internal/ledger"
	"github.com/bukkus/bukkus-backend/internal/listings"
	"github.com/bukkus/bukkus-backend/internal/notifications"
	"github.com/bukkus/bukkus-backend/internal/offers"
	"github.com/bukkus/bukkus-backend/pkg/bigquery"
	"github.com/bukkus/bukkus-backend/pkg/config"
	"github.com/bukkus/bukkus-backend/pkg/db"
	"github.com/bukkus/bukkus-backend/pkg/logger"
	"github.com/bukkus/bukkus-backend/pkg/metrics"
	"github.com/bukkus/bukkus-backend/pkg/migrate"
	"github.com/bukkus/bukkus-backend/pkg/outbox"
	"github.com/bukkus/bukkus-backend/pkg/process"
	"github.com/bukkus/bukkus-backend/pkg/redis"
)

const shutdownTimeout = 15 * time.Second

func main() {
	process.Run("api", run)
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger, closers *process.Closers) error {
	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	closers.Add("database", dbClient.Close)

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return fmt.Errorf("dev migrations: %w", err)
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	closers.Add("redis", redisClient.Close)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	deps, err := buildDependencies(ctx, cfg, logg, dbClient, reg, closers)
	if err != nil {
		return err
	}
	deps.DB = dbClient
	deps.Cache = redisClient
	deps.Gatherer = reg
	deps.HTTPMetrics = metrics.NewHTTPMetrics(reg)

	// PORT and DYNO are set by the hosting platform.
	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	instance := os.Getenv("DYNO")
	if instance == "" {
		instance = "local"
	}
	server := &http.Server{
		Addr:              ":" + port,
		Handler:           routes.NewRouter(cfg, logg, deps),
		ReadHeaderTimeout: 10 * time.Second,
	}
	ctx = logg.WithFields(ctx, map[string]any{"addr": server.Addr, "instance": instance})
	logg.Info(ctx, "api.server.starting")

	group, groupCtx := errgroup.WithContext(ctx)
	process.Serve(groupCtx, group, server, shutdownTimeout)
	return group.Wait()
}

// buildDependencies wires repositories and services. Analytics is optional
// so the API still serves the ledger when BigQuery is unreachable.
func buildDependencies(ctx context.Context, cfg *config.Config, logg *logger.Logger, dbClient *db.Client, reg prometheus.Registerer, closers *process.Closers) (routes.Dependencies, error) {
	conn := dbClient.DB()
	emitter := outbox.NewService(outbox.NewRepository(conn), logg)
	listingRepo := listings.NewRepository(conn)

	listingService, err := listings.NewService(listingRepo, dbClient)
	if err != nil {
		return routes.Dependencies{}, fmt.Errorf("create listing service: %w", err)
	}

	ledgerService, err := ledger.NewService(ledger.ServiceParams{
		Repo:     ledger.NewRepository(conn),
		Listings: listingRepo,
		Tx:       dbClient,
		Outbox:   emitter,
		Config:   cfg.Ledger,
		Metrics:  metrics.NewLedgerMetrics(reg),
		Logger:   logg,
	})
	if err != nil {
		return routes.Dependencies{}, fmt.Errorf("create ledger service: %w", err)
	}

	chatService, err := chat.NewService(chat.NewRepository(conn))
	if err != nil {
		return routes.Dependencies{}, fmt.Errorf("create chat service: %w", err)
	}

	offerService, err := offers.NewService(offers.ServiceParams{
		Repo:     offers.NewRepository(conn),
		Listings: listingRepo,
		Chat:     chatService,
		Tx:       dbClient,
		Outbox:   emitter,
		Config:   cfg.Offers,
		Metrics:  metrics.NewOfferMetrics(reg),
		Logger:   logg,
	})
	if err != nil {
		return routes.Dependencies{}, fmt.Errorf("create offer service: %w", err)
	}

	notificationService, err := notifications.NewService(notifications.NewRepository(conn))
	if err != nil {
		return routes.Dependencies{}, fmt.Errorf("create notification service: %w", err)
	}

	deps := routes.Dependencies{
		Ledger:        ledgerService,
		Listings:      listingService,
		Offers:        offerService,
		Chat:          chatService,
		Notifications: notificationService,
	}

	bqClient, err := bigquery.NewClient(ctx, cfg.GCP, cfg.BigQuery, logg)
	if err != nil {
		logg.Warn(logg.WithField(ctx, "error", err.Error()), "analytics.disabled")
		return deps, nil
	}
	closers.Add("bigquery", bqClient.Close)
	analyticsService, err := analytics.NewService(bqClient, cfg.GCP.ProjectID, cfg.BigQuery.Dataset, cfg.BigQuery.MarketplaceEventsTable)
	if err != nil {
		return routes.Dependencies{}, fmt.Errorf("create analytics service: %w", err)
	}
	deps.Analytics = analyticsService
	return deps, nil
}
