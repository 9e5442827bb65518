package query

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	cloudbigquery "cloud.google.com/go/bigquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/iterator"

	"github.com/bukkus/bukkus-backend/internal/analytics/types"
	pkgerrors "github.com/bukkus/bukkus-backend/pkg/errors"
)

// fakeSource answers by the statement's string parameter when it has one,
// otherwise by a fragment of the statement.
type fakeSource struct {
	mu      sync.Mutex
	byParam map[string][]any
	bySQL   map[string][]any
	fail    string
	seen    []string
}

func (f *fakeSource) run(_ context.Context, sql string, params []cloudbigquery.QueryParameter) (rows, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen = append(f.seen, sql)
	for _, p := range params {
		s, ok := p.Value.(string)
		if !ok {
			continue
		}
		if s == f.fail {
			return nil, errors.New("job failed")
		}
		return &sliceRows{items: f.byParam[s]}, nil
	}
	for fragment, answer := range f.bySQL {
		if strings.Contains(sql, fragment) {
			return &sliceRows{items: answer}, nil
		}
	}
	return &sliceRows{}, nil
}

type sliceRows struct {
	items []any
}

func (s *sliceRows) Next(dst any) error {
	if len(s.items) == 0 {
		return iterator.Done
	}
	next := s.items[0]
	s.items = s.items[1:]
	switch d := dst.(type) {
	case *seriesRow:
		*d = next.(seriesRow)
	case *labelRow:
		*d = next.(labelRow)
	case *ratioRow:
		*d = next.(ratioRow)
	case *countRow:
		*d = next.(countRow)
	}
	return nil
}

var window = types.MarketplaceQueryRequest{
	Start: time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC),
	End:   time.Date(2026, 5, 31, 0, 0, 0, 0, time.UTC),
}

func TestQueryCollectsEveryKPI(t *testing.T) {
	src := &fakeSource{
		byParam: map[string][]any{
			"offer_created":  {seriesRow{Day: "2026-05-02", Value: 4}},
			"offer_accepted": {seriesRow{Day: "2026-05-03", Value: 1}},
			"transfer_in":    {seriesRow{Day: "2026-05-02", Value: 30}},
		},
		bySQL: map[string][]any{
			"LIMIT 5":        {labelRow{Label: "lst-1", Value: 7}, labelRow{Label: "lst-2", Value: 2}},
			"SAFE_DIVIDE":    {ratioRow{Value: cloudbigquery.NullFloat64{Float64: 0.5, Valid: true}}},
			"COUNT(DISTINCT": {countRow{Value: 9}},
		},
	}
	svc, err := newMarketplaceService(src, "proj", "ds", "marketplace_events")
	require.NoError(t, err)

	resp, err := svc.Query(context.Background(), window)
	require.NoError(t, err)

	assert.Equal(t, []types.TimeSeriesPoint{{Date: "2026-05-02", Value: 4}}, resp.OffersCreated)
	assert.Equal(t, []types.TimeSeriesPoint{{Date: "2026-05-03", Value: 1}}, resp.OffersAccepted)
	assert.Equal(t, []types.TimeSeriesPoint{{Date: "2026-05-02", Value: 30}}, resp.TokensTransferred)
	assert.Empty(t, resp.TokensDeposited)
	assert.Empty(t, resp.Redemptions)
	assert.Len(t, resp.TopListings, 2)
	assert.Equal(t, "lst-1", resp.TopListings[0].Label)
	assert.InDelta(t, 0.5, resp.AcceptanceRate, 1e-9)
	assert.Equal(t, int64(9), resp.ActiveTraders)

	assert.Len(t, src.seen, 8)
	for _, sql := range src.seen {
		assert.Contains(t, sql, "`proj.ds.marketplace_events`")
	}
}

func TestQueryLeavesRateZeroWithoutDecisions(t *testing.T) {
	src := &fakeSource{bySQL: map[string][]any{
		"SAFE_DIVIDE": {ratioRow{}},
	}}
	svc, err := newMarketplaceService(src, "proj", "ds", "t")
	require.NoError(t, err)

	resp, err := svc.Query(context.Background(), window)
	require.NoError(t, err)
	assert.Zero(t, resp.AcceptanceRate)
}

func TestQueryFailsWhenAnyJobFails(t *testing.T) {
	svc, err := newMarketplaceService(&fakeSource{fail: "deposit"}, "proj", "ds", "t")
	require.NoError(t, err)

	resp, err := svc.Query(context.Background(), window)
	assert.ErrorContains(t, err, "job failed")
	assert.Nil(t, resp)
}

func TestQueryValidatesWindow(t *testing.T) {
	svc, err := newMarketplaceService(&fakeSource{}, "proj", "ds", "t")
	require.NoError(t, err)

	_, err = svc.Query(context.Background(), types.MarketplaceQueryRequest{})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))

	_, err = svc.Query(context.Background(), types.MarketplaceQueryRequest{Start: window.End, End: window.Start})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
}

func TestNewMarketplaceServiceRequiresTable(t *testing.T) {
	_, err := newMarketplaceService(&fakeSource{}, "proj", "", "t")
	assert.Error(t, err)
	_, err = NewMarketplaceService(nil, "proj", "ds", "t")
	assert.Error(t, err)
}
