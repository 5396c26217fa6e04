package domain

import "context"

// OracleFeed fetches normalized markets from the external market-data
// oracle. Fetch/parse internals live behind this boundary.
type OracleFeed interface {
	FetchMarkets(ctx context.Context, limit int) ([]Market, error)
}

// HedgeOrder is a fire-and-forget order against a secondary liquidity venue,
// placed after a position is safely escrowed. Hedge failures never fail the
// player-facing response.
type HedgeOrder struct {
	MarketID string
	Side     Side
	Stake    float64
	Price    float64
}

// HedgeVenue places hedge orders.
type HedgeVenue interface {
	PlaceHedge(ctx context.Context, order HedgeOrder) error
}
