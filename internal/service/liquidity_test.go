package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sidebook/sidebook/internal/domain"
)

func TestFoldPools(t *testing.T) {
	positions := []domain.MarketPosition{
		{MarketID: "m1", Side: domain.SideYes, Stake: 10, Status: domain.PositionStatusOpen},
		{MarketID: "m1", Side: domain.SideYes, Stake: 5.5, Status: domain.PositionStatusOpen},
		{MarketID: "m1", Side: domain.SideNo, Stake: 8, Status: domain.PositionStatusOpen},
		{MarketID: "m2", Side: domain.SideNo, Stake: 3, Status: domain.PositionStatusOpen},
		// Settled rows never contribute to a pool.
		{MarketID: "m1", Side: domain.SideNo, Stake: 100, Status: domain.PositionStatusWon},
	}

	pools := FoldPools(positions)
	require.Len(t, pools, 2)
	assert.InDelta(t, 15.5, pools["m1"].YesStaked, 1e-9)
	assert.InDelta(t, 8.0, pools["m1"].NoStaked, 1e-9)
	assert.InDelta(t, 3.0, pools["m2"].NoStaked, 1e-9)

	assert.False(t, pools["m1"].RefundOnlyRisk())
	assert.True(t, pools["m2"].RefundOnlyRisk())
}

func TestPoolFor_EmptyMarket(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)

	pool, err := e.liquidity.PoolFor(ctx, "unknown")
	require.NoError(t, err)
	assert.Zero(t, pool.YesStaked)
	assert.Zero(t, pool.NoStaked)
	assert.False(t, pool.RefundOnlyRisk())
}

func TestAdminState(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)
	e.openMarket(t, "mkt-1", 0.6)
	e.activate(t, "mkt-1")
	e.seedPosition(t, "pos-1", "mkt-1", "alice", domain.SideYes, 20, 0.6)

	state, err := e.admin.State(ctx)
	require.NoError(t, err)

	require.Len(t, state.Markets, 1)
	assert.True(t, state.Markets[0].Active)
	assert.InDelta(t, 20.0, state.Pools["mkt-1"].YesStaked, 1e-9)
	assert.Equal(t, []string{"mkt-1"}, state.RefundOnlyMarkets)
	assert.False(t, state.OracleLastSyncAt.IsZero())
	assert.Contains(t, state.Counters, MetricOracleSyncs)
}
