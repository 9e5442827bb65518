package analytics

import (
	"context"
	"time"

	"github.com/bukkus/bukkus-backend/internal/analytics/query"
	"github.com/bukkus/bukkus-backend/internal/analytics/types"
	"github.com/bukkus/bukkus-backend/pkg/bigquery"
	pkgerrors "github.com/bukkus/bukkus-backend/pkg/errors"
)

const (
	defaultWindow = 30 * 24 * time.Hour
	maxWindow     = 366 * 24 * time.Hour
)

// Service answers the admin dashboard from the marketplace_events table.
type Service interface {
	// Query returns marketplace KPIs for req. Missing bounds default to the
	// 30 days ending now.
	Query(ctx context.Context, req types.MarketplaceQueryRequest) (*types.MarketplaceQueryResponse, error)
}

type service struct {
	marketplace query.MarketplaceService
	now         func() time.Time
}

func NewService(client *bigquery.Client, project, dataset, table string) (Service, error) {
	marketplace, err := query.NewMarketplaceService(client, project, dataset, table)
	if err != nil {
		return nil, err
	}
	return &service{marketplace: marketplace, now: time.Now}, nil
}

func (s *service) Query(ctx context.Context, req types.MarketplaceQueryRequest) (*types.MarketplaceQueryResponse, error) {
	req, err := s.bounded(req)
	if err != nil {
		return nil, err
	}
	return s.marketplace.Query(ctx, req)
}

// bounded fills missing window edges and refuses spans over a year, which
// would scan more partitions than the dashboard ever needs.
func (s *service) bounded(req types.MarketplaceQueryRequest) (types.MarketplaceQueryRequest, error) {
	if req.End.IsZero() {
		req.End = s.now().UTC()
	}
	if req.Start.IsZero() {
		req.Start = req.End.Add(-defaultWindow)
	}
	if req.End.Sub(req.Start) > maxWindow {
		return req, pkgerrors.New(pkgerrors.CodeValidation, "window must not exceed one year").
			WithDetails(map[string]string{"from": req.Start.Format(time.RFC3339), "to": req.End.Format(time.RFC3339)})
	}
	return req, nil
}
