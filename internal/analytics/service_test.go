package analytics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bukkus/bukkus-backend/internal/analytics/types"
	pkgerrors "github.com/bukkus/bukkus-backend/pkg/errors"
)

var dashboardNow = time.Date(2026, 6, 15, 10, 0, 0, 0, time.UTC)

type stubMarketplace struct {
	got   []types.MarketplaceQueryRequest
	reply *types.MarketplaceQueryResponse
	err   error
}

func (s *stubMarketplace) Query(_ context.Context, req types.MarketplaceQueryRequest) (*types.MarketplaceQueryResponse, error) {
	s.got = append(s.got, req)
	if s.err != nil {
		return nil, s.err
	}
	return s.reply, nil
}

func newDashboard(m *stubMarketplace) *service {
	return &service{marketplace: m, now: func() time.Time { return dashboardNow }}
}

func TestQueryForwardsExplicitWindow(t *testing.T) {
	stub := &stubMarketplace{reply: &types.MarketplaceQueryResponse{ActiveTraders: 3}}
	req := types.MarketplaceQueryRequest{Start: dashboardNow, End: dashboardNow.Add(2 * time.Hour)}

	resp, err := newDashboard(stub).Query(context.Background(), req)
	require.NoError(t, err)
	assert.Same(t, stub.reply, resp)
	require.Len(t, stub.got, 1)
	assert.Equal(t, req, stub.got[0])
}

func TestQueryDefaultsToLastThirtyDays(t *testing.T) {
	stub := &stubMarketplace{reply: &types.MarketplaceQueryResponse{}}

	_, err := newDashboard(stub).Query(context.Background(), types.MarketplaceQueryRequest{})
	require.NoError(t, err)
	require.Len(t, stub.got, 1)
	assert.True(t, stub.got[0].End.Equal(dashboardNow))
	assert.Equal(t, defaultWindow, stub.got[0].End.Sub(stub.got[0].Start))
}

func TestQueryRejectsWindowLongerThanAYear(t *testing.T) {
	stub := &stubMarketplace{}

	_, err := newDashboard(stub).Query(context.Background(), types.MarketplaceQueryRequest{
		Start: dashboardNow.AddDate(-2, 0, 0),
		End:   dashboardNow,
	})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
	assert.Empty(t, stub.got)
}

func TestQueryReturnsWarehouseError(t *testing.T) {
	boom := errors.New("query failed")
	stub := &stubMarketplace{err: boom}

	resp, err := newDashboard(stub).Query(context.Background(), types.MarketplaceQueryRequest{
		Start: dashboardNow,
		End:   dashboardNow.Add(time.Minute),
	})
	assert.ErrorIs(t, err, boom)
	assert.Nil(t, resp)
}
