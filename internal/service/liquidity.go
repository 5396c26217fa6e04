package service

import (
	"context"
	"fmt"

	"github.com/sidebook/sidebook/internal/domain"
)

// LiquidityService derives per-market stake pools by folding over the
// currently open positions. Pools are never cached or persisted, so every
// reader sees the same fold the settlement pass would.
type LiquidityService struct {
	positions domain.PositionStore
	scanLimit int
}

// NewLiquidityService creates a LiquidityService. scanLimit caps how many
// open positions one fold reads.
func NewLiquidityService(positions domain.PositionStore, scanLimit int) *LiquidityService {
	return &LiquidityService{positions: positions, scanLimit: scanLimit}
}

// Pools returns the liquidity pool for every market with at least one open
// position.
func (s *LiquidityService) Pools(ctx context.Context) (map[string]domain.LiquidityPool, error) {
	open, err := s.positions.ListOpen(ctx, s.scanLimit)
	if err != nil {
		return nil, fmt.Errorf("liquidity: list open positions: %w", err)
	}
	return FoldPools(open), nil
}

// PoolFor returns the liquidity pool for a single market. A market with no
// open positions yields the zero pool.
func (s *LiquidityService) PoolFor(ctx context.Context, marketID string) (domain.LiquidityPool, error) {
	pools, err := s.Pools(ctx)
	if err != nil {
		return domain.LiquidityPool{}, err
	}
	return pools[marketID], nil
}

// FoldPools aggregates open positions into per-market pools. Exported so the
// settlement pass can fold the snapshot it already holds.
func FoldPools(positions []domain.MarketPosition) map[string]domain.LiquidityPool {
	pools := make(map[string]domain.LiquidityPool)
	for _, p := range positions {
		if p.Status != domain.PositionStatusOpen {
			continue
		}
		pool := pools[p.MarketID]
		switch p.Side {
		case domain.SideYes:
			pool.YesStaked = domain.Round6(pool.YesStaked + p.Stake)
		case domain.SideNo:
			pool.NoStaked = domain.Round6(pool.NoStaked + p.Stake)
		}
		pools[p.MarketID] = pool
	}
	return pools
}
