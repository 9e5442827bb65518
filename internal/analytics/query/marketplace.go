// Package query reads the admin dashboard KPIs out of the marketplace_events table.
package query

import (
	"context"
	"errors"
	"fmt"

	cloudbigquery "cloud.google.com/go/bigquery"
	"golang.org/x/sync/errgroup"
	"google.golang.org/api/iterator"

	"github.com/bukkus/bukkus-backend/internal/analytics/types"
	"github.com/bukkus/bukkus-backend/pkg/bigquery"
	"github.com/bukkus/bukkus-backend/pkg/enums"
	pkgerrors "github.com/bukkus/bukkus-backend/pkg/errors"
)

// Every statement is formatted with the quoted table reference, so literal
// percent signs are doubled.
const (
	countSeriesSQL = `
SELECT FORMAT_DATE('%%F', DATE(occurred_at)) AS day, COUNT(*) AS value
FROM %s
WHERE event_type = @eventType
  AND occurred_at BETWEEN @start AND @end
GROUP BY day
ORDER BY day`

	// Redemption credits carry a listing id; they are counted as redemptions, not transfers.
	amountSeriesSQL = `
SELECT FORMAT_DATE('%%F', DATE(occurred_at)) AS day, SUM(COALESCE(amount, 0)) AS value
FROM %s
WHERE event_type = 'ledger_credited'
  AND entry_kind = @entryKind
  AND listing_id IS NULL
  AND occurred_at BETWEEN @start AND @end
GROUP BY day
ORDER BY day`

	topListingsSQL = `
SELECT listing_id AS label, COUNT(*) AS value
FROM %s
WHERE event_type IN ('offer_created', 'listing_redeemed')
  AND listing_id IS NOT NULL
  AND occurred_at BETWEEN @start AND @end
GROUP BY listing_id
ORDER BY value DESC
LIMIT 5`

	acceptanceRateSQL = `
SELECT SAFE_DIVIDE(
  COUNTIF(event_type = 'offer_accepted'),
  NULLIF(COUNTIF(event_type IN ('offer_accepted', 'offer_rejected')), 0)
) AS value
FROM %s
WHERE occurred_at BETWEEN @start AND @end`

	activeTradersSQL = `
SELECT COUNT(DISTINCT account_id) AS value
FROM %s
WHERE event_type IN ('offer_created', 'listing_redeemed')
  AND account_id IS NOT NULL
  AND occurred_at BETWEEN @start AND @end`
)

// maxParallelQueries bounds concurrent jobs per dashboard request.
const maxParallelQueries = 4

type MarketplaceService interface {
	Query(ctx context.Context, req types.MarketplaceQueryRequest) (*types.MarketplaceQueryResponse, error)
}

type rows interface {
	Next(dst any) error
}

type source interface {
	run(ctx context.Context, sql string, params []cloudbigquery.QueryParameter) (rows, error)
}

type clientSource struct {
	client *bigquery.Client
}

func (c clientSource) run(ctx context.Context, sql string, params []cloudbigquery.QueryParameter) (rows, error) {
	it, err := c.client.Query(ctx, sql, params)
	if err != nil {
		return nil, err
	}
	return it, nil
}

type seriesRow struct {
	Day   string `bigquery:"day"`
	Value int64  `bigquery:"value"`
}

type labelRow struct {
	Label string `bigquery:"label"`
	Value int64  `bigquery:"value"`
}

type ratioRow struct {
	Value cloudbigquery.NullFloat64 `bigquery:"value"`
}

type countRow struct {
	Value int64 `bigquery:"value"`
}

type marketplaceService struct {
	source source
	table  string
}

func NewMarketplaceService(client *bigquery.Client, project, dataset, table string) (MarketplaceService, error) {
	if client == nil {
		return nil, errors.New("bigquery client required")
	}
	return newMarketplaceService(clientSource{client: client}, project, dataset, table)
}

func newMarketplaceService(src source, project, dataset, table string) (*marketplaceService, error) {
	if project == "" || dataset == "" || table == "" {
		return nil, errors.New("project, dataset, and table are required")
	}
	return &marketplaceService{source: src, table: fmt.Sprintf("`%s.%s.%s`", project, dataset, table)}, nil
}

// Query runs one BigQuery job per KPI, a few at a time. The first failure
// cancels the rest.
func (s *marketplaceService) Query(ctx context.Context, req types.MarketplaceQueryRequest) (*types.MarketplaceQueryResponse, error) {
	switch {
	case req.Start.IsZero() || req.End.IsZero():
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "start and end are required")
	case req.End.Before(req.Start):
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "end must be after start")
	}
	window := []cloudbigquery.QueryParameter{
		{Name: "start", Value: req.Start.UTC()},
		{Name: "end", Value: req.End.UTC()},
	}
	with := func(name string, value any) []cloudbigquery.QueryParameter {
		return append(append([]cloudbigquery.QueryParameter(nil), window...), cloudbigquery.QueryParameter{Name: name, Value: value})
	}

	resp := &types.MarketplaceQueryResponse{}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelQueries)

	series := func(dst *[]types.TimeSeriesPoint, sql string, params []cloudbigquery.QueryParameter) {
		g.Go(func() error {
			got, err := readAll[seriesRow](ctx, s.source, s.sql(sql), params)
			for _, r := range got {
				*dst = append(*dst, types.TimeSeriesPoint{Date: r.Day, Value: r.Value})
			}
			return err
		})
	}
	series(&resp.OffersCreated, countSeriesSQL, with("eventType", string(enums.EventOfferCreated)))
	series(&resp.OffersAccepted, countSeriesSQL, with("eventType", string(enums.EventOfferAccepted)))
	series(&resp.Redemptions, countSeriesSQL, with("eventType", string(enums.EventListingRedeemed)))
	series(&resp.TokensTransferred, amountSeriesSQL, with("entryKind", string(enums.LedgerEntryTransferIn)))
	series(&resp.TokensDeposited, amountSeriesSQL, with("entryKind", string(enums.LedgerEntryDeposit)))

	g.Go(func() error {
		got, err := readAll[labelRow](ctx, s.source, s.sql(topListingsSQL), window)
		for _, r := range got {
			resp.TopListings = append(resp.TopListings, types.LabelValue{Label: r.Label, Value: r.Value})
		}
		return err
	})
	g.Go(func() error {
		got, err := readAll[ratioRow](ctx, s.source, s.sql(acceptanceRateSQL), window)
		if len(got) > 0 && got[0].Value.Valid {
			resp.AcceptanceRate = got[0].Value.Float64
		}
		return err
	})
	g.Go(func() error {
		got, err := readAll[countRow](ctx, s.source, s.sql(activeTradersSQL), window)
		if len(got) > 0 {
			resp.ActiveTraders = got[0].Value
		}
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return resp, nil
}

func (s *marketplaceService) sql(statement string) string {
	return fmt.Sprintf(statement, s.table)
}

func readAll[T any](ctx context.Context, src source, sql string, params []cloudbigquery.QueryParameter) ([]T, error) {
	it, err := src.run(ctx, sql, params)
	if err != nil {
		return nil, fmt.Errorf("run query: %w", err)
	}
	var out []T
	for {
		var row T
		err := it.Next(&row)
		if errors.Is(err, iterator.Done) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		out = append(out, row)
	}
}
