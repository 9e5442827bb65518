// Package process holds the start-up and shutdown plumbing shared by every
// binary under cmd/.
package process

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/bukkus/bukkus-backend/pkg/config"
	"github.com/bukkus/bukkus-backend/pkg/logger"
)

const metricsShutdown = 5 * time.Second

// Main is a binary's body. Resources registered on closers are released in
// reverse order once it returns.
type Main func(ctx context.Context, cfg *config.Config, logg *logger.Logger, closers *Closers) error

// Run loads .env and the config, runs fn until SIGINT or SIGTERM, and exits
// non-zero when fn fails for any reason other than the shutdown itself.
func Run(service string, fn Main) {
	boot := logger.New(logger.Options{ServiceName: service})
	if err := godotenv.Load(); err != nil {
		boot.Warn(context.Background(), "process.dotenv.missing")
	}
	cfg, err := config.Load()
	if err != nil {
		boot.Error(context.Background(), "process.config.invalid", err)
		os.Exit(1)
	}
	cfg.Service.Kind = service

	logg := logger.New(logger.Options{
		ServiceName: service,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "service_kind": service})

	closers := &Closers{}
	runErr := fn(ctx, cfg, logg, closers)
	stop()

	if err := closers.Close(); err != nil {
		logg.Error(ctx, "process.close_failed", err)
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		logg.Error(ctx, "process.failed", runErr)
		os.Exit(1)
	}
	logg.Info(ctx, "process.stopped")
}

type closer struct {
	name string
	fn   func() error
}

// Closers releases resources last-in first-out.
type Closers struct {
	items []closer
}

func (c *Closers) Add(name string, fn func() error) {
	c.items = append(c.items, closer{name: name, fn: fn})
}

// Close runs every closer even when some fail and returns their combined errors.
func (c *Closers) Close() error {
	var err error
	for i := len(c.items) - 1; i >= 0; i-- {
		item := c.items[i]
		if cerr := item.fn(); cerr != nil {
			err = multierr.Append(err, fmt.Errorf("close %s: %w", item.name, cerr))
		}
	}
	c.items = nil
	return err
}

// Serve runs srv on group and shuts it down within grace once ctx is done.
func Serve(ctx context.Context, group *errgroup.Group, srv *http.Server, grace time.Duration) {
	group.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve %s: %w", srv.Addr, err)
		}
		return nil
	})
	group.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), grace)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}

// ServeMetrics exposes gatherer on addr/metrics. An empty addr disables it.
func ServeMetrics(ctx context.Context, group *errgroup.Group, addr string, gatherer prometheus.Gatherer) {
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	Serve(ctx, group, &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}, metricsShutdown)
}
