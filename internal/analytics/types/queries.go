package types

import "time"

// MarketplaceQueryRequest bounds the dashboard window.
type MarketplaceQueryRequest struct {
	Start time.Time
	End   time.Time
}

// TimeSeriesPoint describes a single date/value pair returned by the query service.
type TimeSeriesPoint struct {
	Date  string `json:"date"`
	Value int64  `json:"value"`
}

// LabelValue represents a top-N entry such as a listing.
type LabelValue struct {
	Label string `json:"label"`
	Value int64  `json:"value"`
}

// MarketplaceQueryResponse wraps the marketplace KPIs for the admin dashboard.
type MarketplaceQueryResponse struct {
	OffersCreated     []TimeSeriesPoint `json:"offers_created"`
	OffersAccepted    []TimeSeriesPoint `json:"offers_accepted"`
	Redemptions       []TimeSeriesPoint `json:"redemptions"`
	TokensTransferred []TimeSeriesPoint `json:"tokens_transferred"`
	TokensDeposited   []TimeSeriesPoint `json:"tokens_deposited"`
	TopListings       []LabelValue      `json:"top_listings"`
	AcceptanceRate    float64           `json:"acceptance_rate"`
	ActiveTraders     int64             `json:"active_traders"`
}
