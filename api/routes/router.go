package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bukkus/bukkus-backend/api/controllers"
	analyticscontrollers "github.com/bukkus/bukkus-backend/api/controllers/analytics"
	"github.com/bukkus/bukkus-backend/api/middleware"
	"github.com/bukkus/bukkus-backend/internal/analytics"
	"github.com/bukkus/bukkus-backend/internal/chat"
	"github.com/bukkus/bukkus-backend/internal/ledger"
	"github.com/bukkus/bukkus-backend/internal/listings"
	"github.com/bukkus/bukkus-backend/internal/notifications"
	"github.com/bukkus/bukkus-backend/internal/offers"
	"github.com/bukkus/bukkus-backend/pkg/config"
	"github.com/bukkus/bukkus-backend/pkg/enums"
	pkgerrors "github.com/bukkus/bukkus-backend/pkg/errors"
	"github.com/bukkus/bukkus-backend/pkg/logger"
	"github.com/bukkus/bukkus-backend/pkg/metrics"
)

// Cache is the Redis surface used by request replay, rate limiting and readiness.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	IdempotencyKey(scope, id string) string
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
	Ping(ctx context.Context) error
}

// Dependencies carries everything the HTTP layer talks to. Analytics is optional.
type Dependencies struct {
	DB            controllers.Pinger
	Cache         Cache
	Gatherer      prometheus.Gatherer
	HTTPMetrics   *metrics.HTTPMetrics
	Ledger        ledger.Service
	Listings      listings.Service
	Offers        offers.Service
	Chat          chat.Service
	Notifications notifications.Service
	Analytics     analytics.Service
}

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(
		chimw.RealIP,
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Locale(pkgerrors.ParseLocale(cfg.App.DefaultLocale)),
		middleware.Logging(logg, deps.HTTPMetrics),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	replay := passthrough
	limit := passthrough
	readiness := map[string]controllers.Pinger{"db": deps.DB}
	if deps.Cache != nil {
		replay = middleware.Idempotency(deps.Cache, cfg.Eventing.RequestIdempotencyTTL, logg)
		limit = middleware.RateLimit(cfg.RateLimit, deps.Cache, logg)
		readiness["redis"] = deps.Cache
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, readiness))
	})
	if deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Get("/api/public/ping", controllers.Ping())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(limit)
		r.Use(replay)

		r.Get("/ping", controllers.Ping())

		r.Route("/wallet", func(r chi.Router) {
			r.Post("/", controllers.OpenWallet(deps.Ledger, logg))
			r.Get("/", controllers.WalletBalance(deps.Ledger, logg))
			r.Get("/history", controllers.WalletHistory(deps.Ledger, logg))
			r.Post("/transfers", controllers.WalletTransfer(deps.Ledger, logg))
		})

		r.Route("/listings", func(r chi.Router) {
			r.Post("/", controllers.CreateListing(deps.Listings, logg))
			r.Get("/", controllers.ListListings(deps.Listings, logg))
			r.Route("/{listingId}", func(r chi.Router) {
				r.Get("/", controllers.GetListing(deps.Listings, logg))
				r.Patch("/", controllers.UpdateListing(deps.Listings, logg))
				r.Post("/withdraw", controllers.WithdrawListing(deps.Listings, logg))
				r.Post("/redeem", controllers.RedeemListing(deps.Ledger, logg))
				r.Post("/offers", controllers.CreateOffer(deps.Offers, logg))
			})
		})

		r.Route("/offers", func(r chi.Router) {
			r.Get("/", controllers.ListOffers(deps.Offers, logg))
			r.Get("/{offerId}", controllers.GetOffer(deps.Offers, logg))
			r.Post("/{offerId}/accept", controllers.AcceptOffer(deps.Offers, logg))
			r.Post("/{offerId}/reject", controllers.RejectOffer(deps.Offers, logg))
		})

		r.Get("/chat/channels/{channelId}", controllers.GetChatChannel(deps.Chat, logg))

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", controllers.ListNotifications(deps.Notifications, logg))
			r.Post("/{notificationId}/read", controllers.MarkNotificationRead(deps.Notifications, logg))
			r.Post("/read-all", controllers.MarkAllNotificationsRead(deps.Notifications, logg))
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.RequireRole(enums.AccountRoleAdmin, logg))
			r.Post("/accounts/{accountId}/deposits", controllers.AdminDeposit(deps.Ledger, logg))
			r.Get("/ledger/deposits", controllers.AdminDeposits(deps.Ledger, logg))
			if deps.Analytics != nil {
				r.Get("/analytics/marketplace", analyticscontrollers.MarketplaceAnalytics(deps.Analytics, logg))
			}
		})
	})

	return r
}

func passthrough(next http.Handler) http.Handler {
	return next
}
