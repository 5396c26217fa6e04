package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sidebook/sidebook/internal/domain"
)

func TestEnsureActiveMarket_ConcurrentCallsWriteOnce(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)
	e.openMarket(t, "mkt-1", 0.5)

	const callers = 16
	var wg sync.WaitGroup
	results := make([]domain.MarketView, callers)
	errs := make([]error, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = e.markets.EnsureActiveMarket(ctx)
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, "mkt-1", results[i].ID)
		assert.True(t, results[i].Active)
	}

	// One activation row, written once, by the controller.
	assert.Equal(t, 1, e.activations.calls())
	overrides, err := e.markets.ActivationMap(ctx)
	require.NoError(t, err)
	require.Contains(t, overrides, "mkt-1")
	assert.Equal(t, domain.ActorAutoActivate, overrides["mkt-1"].UpdatedBy)
}

func TestEnsureActiveMarket_RefetchesOracleWhenStoreIsEmpty(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)

	// The market exists only at the oracle; nothing has been synced yet.
	e.oracle.markets = []domain.Market{{
		ID:           "mkt-live",
		Slug:         "live-market",
		Question:     "Will it happen?",
		CloseAt:      time.Now().Add(time.Hour),
		Status:       domain.MarketStatusOpen,
		OracleSource: "polymarket",
		YesPrice:     0.5, NoPrice: 0.5,
	}}

	v, err := e.markets.EnsureActiveMarket(ctx)
	require.NoError(t, err)
	assert.Equal(t, "mkt-live", v.ID)
	assert.True(t, v.Active)

	overrides, err := e.markets.ActivationMap(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.ActorAutoActivateOracle, overrides["mkt-live"].UpdatedBy)
}

func TestEnsureActiveMarket_CarriesOperatorLimits(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)

	// An operator tuned the limits on an earlier market that has since closed.
	old := e.openMarket(t, "mkt-old", 0.5)
	require.NoError(t, e.markets.ActivateMarket(ctx, domain.MarketActivation{
		MarketID:       "mkt-old",
		Active:         false,
		MaxWager:       250,
		HouseSpreadBps: 300,
		UpdatedBy:      "admin:api",
	}))
	old.CloseAt = time.Now().Add(-time.Minute)
	require.NoError(t, e.marketStore.Upsert(ctx, old))
	e.openMarket(t, "mkt-next", 0.5)

	v, err := e.markets.EnsureActiveMarket(ctx)
	require.NoError(t, err)
	assert.Equal(t, "mkt-next", v.ID)
	assert.Equal(t, 250.0, v.MaxWager)
	assert.Equal(t, 300, v.HouseSpreadBps)
}

func TestEnsureActiveMarket_NoopWhenActiveMarketExists(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)
	e.openMarket(t, "mkt-1", 0.5)
	e.activate(t, "mkt-1")
	before := e.activations.calls()

	v, err := e.markets.EnsureActiveMarket(ctx)
	require.NoError(t, err)
	assert.Equal(t, "mkt-1", v.ID)
	assert.Equal(t, before, e.activations.calls())
}

func TestEnsureActiveMarket_PrefersKeywordMatches(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)

	plain := domain.Market{
		ID:           "mkt-plain",
		Slug:         "celebrity-wedding",
		Question:     "Will the wedding happen?",
		CloseAt:      time.Now().Add(30 * time.Minute),
		Status:       domain.MarketStatusOpen,
		OracleSource: "polymarket",
		YesPrice:     0.5, NoPrice: 0.5,
	}
	crypto := domain.Market{
		ID:           "mkt-btc",
		Slug:         "btc-price-today",
		Question:     "Will the BTC price rise today?",
		CloseAt:      time.Now().Add(2 * time.Hour),
		Status:       domain.MarketStatusOpen,
		OracleSource: "polymarket",
		YesPrice:     0.5, NoPrice: 0.5,
	}
	e.oracle.markets = []domain.Market{plain, crypto}
	_, err := e.markets.SyncFromOracle(ctx)
	require.NoError(t, err)

	// The keyword market wins even though the other closes sooner.
	v, err := e.markets.EnsureActiveMarket(ctx)
	require.NoError(t, err)
	assert.Equal(t, "mkt-btc", v.ID)
}

func TestEnsureActiveMarket_FallbackWhenNothingQualifies(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)

	v, err := e.markets.EnsureActiveMarket(ctx)
	require.NoError(t, err)
	assert.Equal(t, e.cfg.Fallback.ID, v.ID)
	assert.True(t, v.Active)
	assert.Equal(t, "local", v.OracleSource)
	assert.True(t, v.Playable(time.Now()))

	overrides, err := e.markets.ActivationMap(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.ActorAutoFallback, overrides[v.ID].UpdatedBy)
}

func TestEnsureActiveMarket_CooldownThrottlesRetries(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)
	e.activations.failSet = true

	_, err := e.markets.EnsureActiveMarket(ctx)
	require.Error(t, err)
	firstAttempt := e.activations.calls()
	assert.Equal(t, 1, firstAttempt)

	// Within the cooldown the controller does not touch the store again.
	_, err = e.markets.EnsureActiveMarket(ctx)
	require.ErrorIs(t, err, domain.ErrNotFound)
	assert.Equal(t, firstAttempt, e.activations.calls())
}

func TestActivateMarket_Validation(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)
	e.openMarket(t, "mkt-1", 0.5)

	err := e.markets.ActivateMarket(ctx, domain.MarketActivation{
		MarketID:       "mkt-1",
		Active:         true,
		HouseSpreadBps: 9000,
	})
	require.Error(t, err)

	err = e.markets.ActivateMarket(ctx, domain.MarketActivation{
		MarketID: "missing",
		Active:   true,
	})
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestViews_DefaultsWithoutOverride(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)
	e.openMarket(t, "mkt-1", 0.5)

	views, err := e.markets.Views(ctx, 10)
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.False(t, views[0].Active)
	assert.Equal(t, e.cfg.DefaultMaxWager, views[0].MaxWager)
	assert.Equal(t, e.cfg.DefaultSpreadBps, views[0].HouseSpreadBps)
}
