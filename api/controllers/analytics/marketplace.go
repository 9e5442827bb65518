package analytics

import (
	"net/http"
	"strings"
	"time"

	"github.com/bukkus/bukkus-backend/api/responses"
	"github.com/bukkus/bukkus-backend/api/validators"
	"github.com/bukkus/bukkus-backend/internal/analytics"
	"github.com/bukkus/bukkus-backend/internal/analytics/types"
	pkgerrors "github.com/bukkus/bukkus-backend/pkg/errors"
	"github.com/bukkus/bukkus-backend/pkg/logger"
)

const (
	day           = 24 * time.Hour
	defaultPreset = "30d"
)

var presets = map[string]time.Duration{
	"7d":   7 * day,
	"30d":  30 * day,
	"90d":  90 * day,
	"365d": 365 * day,
}

var clock = func() time.Time { return time.Now().UTC() }

// MarketplaceAnalytics serves the admin dashboard KPIs. Admin role is enforced by the router.
//
// The window is either ?from=&to= (both required) or a trailing ?preset=, 30d by default.
func MarketplaceAnalytics(service analytics.Service, logg *logger.Logger) http.HandlerFunc {
	return responses.Handle(logg, func(r *http.Request) (responses.Reply, error) {
		if service == nil {
			return responses.Reply{}, pkgerrors.New(pkgerrors.CodeInternal, "analytics service unavailable")
		}
		req, err := dashboardWindow(r, clock())
		if err != nil {
			return responses.Reply{}, err
		}
		kpis, err := service.Query(r.Context(), req)
		if err != nil {
			return responses.Reply{}, err
		}
		return responses.OK(kpis), nil
	})
}

func dashboardWindow(r *http.Request, now time.Time) (types.MarketplaceQueryRequest, error) {
	from, err := validators.ParseQueryTime(r, "from")
	if err != nil {
		return types.MarketplaceQueryRequest{}, err
	}
	to, err := validators.ParseQueryTime(r, "to")
	if err != nil {
		return types.MarketplaceQueryRequest{}, err
	}

	switch {
	case from.IsZero() && to.IsZero():
		preset := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("preset")))
		if preset == "" {
			preset = defaultPreset
		}
		span, ok := presets[preset]
		if !ok {
			return types.MarketplaceQueryRequest{}, pkgerrors.New(pkgerrors.CodeValidation, "unknown preset").
				WithDetails(map[string]any{"field": "preset"})
		}
		return types.MarketplaceQueryRequest{Start: now.Add(-span), End: now}, nil
	case from.IsZero() || to.IsZero():
		return types.MarketplaceQueryRequest{}, pkgerrors.New(pkgerrors.CodeValidation, "from and to must be provided together")
	case to.Before(from):
		return types.MarketplaceQueryRequest{}, pkgerrors.New(pkgerrors.CodeValidation, "to must not be before from")
	}
	return types.MarketplaceQueryRequest{Start: from, End: to}, nil
}
