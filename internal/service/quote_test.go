package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sidebook/sidebook/internal/domain"
)

func TestQuote_RejectionLadder(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)

	// Unknown market.
	res, err := e.quotes.Quote(ctx, "nope", domain.SideYes, 10)
	require.NoError(t, err)
	assert.False(t, res.OK)
	assert.Equal(t, domain.ReasonMarketNotFound, res.Reason)

	// Known but never activated.
	e.openMarket(t, "mkt-1", 0.6)
	res, err = e.quotes.Quote(ctx, "mkt-1", domain.SideYes, 10)
	require.NoError(t, err)
	assert.Equal(t, domain.ReasonMarketInactive, res.Reason)

	// Active but past its close.
	e.activate(t, "mkt-1")
	closed := domain.Market{
		ID:           "mkt-1",
		Slug:         "mkt-1",
		CloseAt:      time.Now().Add(-time.Minute),
		Status:       domain.MarketStatusOpen,
		OracleSource: "polymarket",
		YesPrice:     0.6,
		NoPrice:      0.4,
	}
	require.NoError(t, e.marketStore.Upsert(ctx, closed))
	res, err = e.quotes.Quote(ctx, "mkt-1", domain.SideYes, 10)
	require.NoError(t, err)
	assert.Equal(t, domain.ReasonMarketClosed, res.Reason)

	// Playable again, but over the wager cap.
	e.openMarket(t, "mkt-1", 0.6)
	res, err = e.quotes.Quote(ctx, "mkt-1", domain.SideYes, e.cfg.DefaultMaxWager+1)
	require.NoError(t, err)
	assert.Equal(t, domain.ReasonWagerTooHigh, res.Reason)
}

func TestQuote_StakeClampedToMinimum(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)
	e.openMarket(t, "mkt-1", 0.5)
	e.activate(t, "mkt-1")

	res, err := e.quotes.Quote(ctx, "mkt-1", domain.SideYes, 0.25)
	require.NoError(t, err)
	require.True(t, res.OK)
	assert.Equal(t, 1.0, res.Quote.Stake)
	assert.Equal(t, 1.0, res.Quote.MinPayout)
}

func TestQuote_StaleOracle(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)

	// Market present but no sync has ever happened, so oracle prices are
	// untrusted.
	m := domain.Market{
		ID:           "mkt-stale",
		Slug:         "mkt-stale",
		CloseAt:      time.Now().Add(time.Hour),
		Status:       domain.MarketStatusOpen,
		OracleSource: "polymarket",
		YesPrice:     0.6,
		NoPrice:      0.4,
	}
	require.NoError(t, e.marketStore.Upsert(ctx, m))
	e.activate(t, "mkt-stale")

	res, err := e.quotes.Quote(ctx, "mkt-stale", domain.SideYes, 10)
	require.NoError(t, err)
	assert.False(t, res.OK)
	assert.Equal(t, domain.ReasonOracleUnavailable, res.Reason)
}

func TestQuote_LocalMarketIgnoresStaleness(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)

	m := domain.Market{
		ID:           "house-fallback",
		Slug:         "house-fallback",
		CloseAt:      time.Now().Add(time.Hour),
		Status:       domain.MarketStatusOpen,
		OracleSource: "local",
		YesPrice:     0.5,
		NoPrice:      0.5,
	}
	require.NoError(t, e.marketStore.Upsert(ctx, m))
	e.activate(t, "house-fallback")

	res, err := e.quotes.Quote(ctx, "house-fallback", domain.SideYes, 10)
	require.NoError(t, err)
	assert.True(t, res.OK)
}

func TestQuote_PriceIncludesHalfSpread(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)
	e.openMarket(t, "mkt-1", 0.6)
	e.activate(t, "mkt-1")

	res, err := e.quotes.Quote(ctx, "mkt-1", domain.SideYes, 10)
	require.NoError(t, err)
	require.True(t, res.OK)

	// 200 bps spread, half on each side: 0.60 + 0.01.
	assert.InDelta(t, 0.61, res.Quote.Price, 1e-9)
	assert.InDelta(t, domain.Round6(10/0.61), res.Quote.Shares, 1e-9)
	assert.Equal(t, 10.0, res.Quote.MinPayout)
}

func TestQuote_SpreadMonotonicity(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)
	e.openMarket(t, "mkt-1", 0.5)

	// A wider house spread can only make the price worse for the player.
	prevPrice, prevShares := 0.0, 0.0
	for i, bps := range []int{50, 100, 200, 400, 1000, 5000} {
		require.NoError(t, e.markets.ActivateMarket(ctx, domain.MarketActivation{
			MarketID:       "mkt-1",
			Active:         true,
			MaxWager:       e.cfg.DefaultMaxWager,
			HouseSpreadBps: bps,
			UpdatedBy:      "admin:test",
		}))

		res, err := e.quotes.Quote(ctx, "mkt-1", domain.SideYes, 10)
		require.NoError(t, err)
		require.True(t, res.OK)

		assert.InDelta(t, domain.ClampPrice(0.5+float64(bps)/2/10000), res.Quote.Price, 1e-9)
		if i > 0 {
			assert.GreaterOrEqual(t, res.Quote.Price, prevPrice)
			assert.LessOrEqual(t, res.Quote.Shares, prevShares)
		}
		prevPrice, prevShares = res.Quote.Price, res.Quote.Shares
	}
}

func TestQuote_EmptyOppositePoolWarns(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)
	e.openMarket(t, "mkt-1", 0.5)
	e.activate(t, "mkt-1")

	res, err := e.quotes.Quote(ctx, "mkt-1", domain.SideYes, 10)
	require.NoError(t, err)
	require.True(t, res.OK)

	// Nothing staked against: a win right now would only return the stake.
	assert.NotEmpty(t, res.Quote.LiquidityWarning)
	assert.InDelta(t, 10.0, res.Quote.ProjectedPayout, 1e-9)
}

func TestQuote_ProjectionUsesPools(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)
	e.openMarket(t, "mkt-1", 0.5)
	e.activate(t, "mkt-1")

	e.seedPosition(t, "p-yes", "mkt-1", "alice", domain.SideYes, 40, 0.5)
	e.seedPosition(t, "p-no", "mkt-1", "bob", domain.SideNo, 50, 0.5)

	res, err := e.quotes.Quote(ctx, "mkt-1", domain.SideYes, 10)
	require.NoError(t, err)
	require.True(t, res.OK)

	assert.InDelta(t, 40.0, res.Quote.SameSidePool, 1e-9)
	assert.InDelta(t, 50.0, res.Quote.OppositePool, 1e-9)
	// 10 + 50*10/(40+10) = 20, within the full-price cap of 10/0.51.
	assert.InDelta(t, domain.Round6(10/0.51), res.Quote.PotentialPayout, 1e-9)
	assert.InDelta(t, domain.Round6(10/0.51), res.Quote.ProjectedPayout, 1e-9)
	assert.Empty(t, res.Quote.LiquidityWarning)
}

func TestQuote_ProjectionMonotonicInStake(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)
	e.openMarket(t, "mkt-1", 0.5)
	e.activate(t, "mkt-1")

	e.seedPosition(t, "p-yes", "mkt-1", "alice", domain.SideYes, 60, 0.5)
	e.seedPosition(t, "p-no", "mkt-1", "bob", domain.SideNo, 30, 0.5)

	var prev float64
	for _, stake := range []float64{5, 10, 20, 40} {
		res, err := e.quotes.Quote(ctx, "mkt-1", domain.SideYes, stake)
		require.NoError(t, err)
		require.True(t, res.OK)
		assert.Greater(t, res.Quote.ProjectedPayout, prev,
			"projection must grow with stake")
		prev = res.Quote.ProjectedPayout
	}
}
