package service

import (
	"context"
	"fmt"
	"time"

	"github.com/sidebook/sidebook/internal/domain"
)

// AdminState is the operator dashboard snapshot: every known market with its
// activation, the live liquidity pools, the markets currently carrying
// refund-only risk, the trailing interaction funnel and the engine counters.
type AdminState struct {
	Markets           []domain.MarketView
	Pools             map[string]domain.LiquidityPool
	RefundOnlyMarkets []string
	Interactions      []domain.InteractionCount
	Counters          map[string]int64
	OracleLastSyncAt  time.Time
}

// AdminService assembles the operator state snapshot.
type AdminService struct {
	markets    *MarketService
	liquidity  *LiquidityService
	events     domain.InteractionEventStore
	metrics    *Metrics
	listLimit  int
	funnelSpan time.Duration
}

// NewAdminService creates an AdminService. funnelSpan is the trailing window
// for interaction counts.
func NewAdminService(
	markets *MarketService,
	liquidity *LiquidityService,
	events domain.InteractionEventStore,
	metrics *Metrics,
	listLimit int,
	funnelSpan time.Duration,
) *AdminService {
	if funnelSpan <= 0 {
		funnelSpan = 24 * time.Hour
	}
	return &AdminService{
		markets:    markets,
		liquidity:  liquidity,
		events:     events,
		metrics:    metrics,
		listLimit:  listLimit,
		funnelSpan: funnelSpan,
	}
}

// State returns the current operator snapshot.
func (s *AdminService) State(ctx context.Context) (AdminState, error) {
	views, err := s.markets.Views(ctx, s.listLimit)
	if err != nil {
		return AdminState{}, fmt.Errorf("admin: market views: %w", err)
	}

	pools, err := s.liquidity.Pools(ctx)
	if err != nil {
		return AdminState{}, fmt.Errorf("admin: pools: %w", err)
	}

	var refundOnly []string
	for marketID, pool := range pools {
		if pool.RefundOnlyRisk() {
			refundOnly = append(refundOnly, marketID)
		}
	}

	interactions, err := s.events.CountsSince(ctx, s.funnelSpan)
	if err != nil {
		return AdminState{}, fmt.Errorf("admin: interaction counts: %w", err)
	}

	return AdminState{
		Markets:           views,
		Pools:             pools,
		RefundOnlyMarkets: refundOnly,
		Interactions:      interactions,
		Counters:          s.metrics.Snapshot(),
		OracleLastSyncAt:  s.markets.LastSyncAt(),
	}, nil
}
