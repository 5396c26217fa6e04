package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/sidebook/sidebook/internal/domain"
	"github.com/sidebook/sidebook/internal/notify"
)

// SettlementSummary reports one settlement pass.
type SettlementSummary struct {
	Checked int // open positions examined
	Settled int // positions moved to a terminal status
	Failed  int // positions skipped after an escrow or store failure
}

// SettlementService drives open positions on terminal markets to their
// terminal status. Each position settles independently: money moves through
// escrow first, then the row is updated, and any failure leaves the position
// open for the next pass. Escrow idempotency on the bet ID is what makes the
// retry safe.
type SettlementService struct {
	positions domain.PositionStore
	markets   domain.MarketStore
	escrow    domain.EscrowAdapter
	wallets   domain.WalletResolver
	events    domain.InteractionEventStore
	bus       domain.SignalBus
	notifier  *notify.Notifier
	metrics   *Metrics
	scanLimit int
	logger    *slog.Logger
}

// NewSettlementService creates a SettlementService.
func NewSettlementService(
	positions domain.PositionStore,
	markets domain.MarketStore,
	escrow domain.EscrowAdapter,
	wallets domain.WalletResolver,
	events domain.InteractionEventStore,
	bus domain.SignalBus,
	notifier *notify.Notifier,
	metrics *Metrics,
	scanLimit int,
	logger *slog.Logger,
) *SettlementService {
	return &SettlementService{
		positions: positions,
		markets:   markets,
		escrow:    escrow,
		wallets:   wallets,
		events:    events,
		bus:       bus,
		notifier:  notifier,
		metrics:   metrics,
		scanLimit: scanLimit,
		logger:    logger.With(slog.String("component", "settlement_service")),
	}
}

// SettleResolvedMarkets runs one settlement pass over all open positions
// whose market has reached a terminal state.
func (s *SettlementService) SettleResolvedMarkets(ctx context.Context) (SettlementSummary, error) {
	var summary SettlementSummary

	open, err := s.positions.ListOpen(ctx, s.scanLimit)
	if err != nil {
		return summary, fmt.Errorf("settlement: list open positions: %w", err)
	}
	if len(open) == 0 {
		return summary, nil
	}

	// Pools are folded once from this snapshot; every position on a market
	// settles against the same pool the others do.
	pools := FoldPools(open)

	byMarket := make(map[string][]domain.MarketPosition)
	for _, p := range open {
		byMarket[p.MarketID] = append(byMarket[p.MarketID], p)
	}

	refundOnly := make(map[string]bool)

	for marketID, positions := range byMarket {
		market, err := s.markets.GetByID(ctx, marketID)
		if err != nil {
			s.logger.ErrorContext(ctx, "settlement: market lookup failed",
				slog.String("market_id", marketID),
				slog.String("error", err.Error()),
			)
			// The group was examined even though it could not settle, so
			// Failed never exceeds Checked.
			summary.Checked += len(positions)
			summary.Failed += len(positions)
			continue
		}
		if !market.Terminal() {
			continue
		}

		summary.Checked += len(positions)
		outcome, voidAll := settlementOutcome(market)
		if voidAll && market.Status == domain.MarketStatusResolved {
			s.logger.WarnContext(ctx, "settlement: resolved market without outcome, voiding",
				slog.String("market_id", marketID),
			)
		}

		pool := pools[marketID]
		for _, pos := range positions {
			reason, err := s.settleOne(ctx, pos, pool, outcome, voidAll)
			if err != nil {
				summary.Failed++
				s.metrics.Inc(MetricSettlementFailure)
				s.logger.ErrorContext(ctx, "settlement: position failed",
					slog.String("position_id", pos.ID),
					slog.String("market_id", marketID),
					slog.String("error", err.Error()),
				)
				continue
			}
			if reason == domain.ReasonWonRefundOnly {
				refundOnly[marketID] = true
			}
			summary.Settled++
			s.metrics.Inc(MetricPositionsSettled)
		}
	}

	for marketID := range refundOnly {
		_ = s.notifier.Notify(ctx, notify.EventLiquidityAlert,
			"Refund-only settlement",
			fmt.Sprintf("Market %s settled with no opposing stake; winners received refunds only.", marketID))
	}

	if summary.Settled > 0 || summary.Failed > 0 {
		s.logger.InfoContext(ctx, "settlement: pass complete",
			slog.Int("checked", summary.Checked),
			slog.Int("settled", summary.Settled),
			slog.Int("failed", summary.Failed),
		)
		_ = s.notifier.Notify(ctx, notify.EventSettlement,
			"Settlement pass",
			fmt.Sprintf("checked=%d settled=%d failed=%d", summary.Checked, summary.Settled, summary.Failed))
	}

	return summary, nil
}

// settlementOutcome maps a terminal market to the winning side, or to
// void-all. A cancelled market voids everything; so does the defensive case
// of a resolved market missing its outcome.
func settlementOutcome(m domain.Market) (domain.Side, bool) {
	if m.Status == domain.MarketStatusCancelled || m.Outcome == nil {
		return "", true
	}
	return *m.Outcome, false
}

// settleOne moves one position to its terminal state and reports the reason
// tag it settled under. The escrow call runs first; the row is only updated
// after money has moved, so a crash between the two is repaired by the
// idempotent retry on the next pass.
func (s *SettlementService) settleOne(
	ctx context.Context,
	pos domain.MarketPosition,
	pool domain.LiquidityPool,
	outcome domain.Side,
	voidAll bool,
) (string, error) {
	status, reason, payout := classify(pos, pool, outcome, voidAll)

	switch status {
	case domain.PositionStatusVoided:
		res, err := s.escrow.Refund(ctx, pos.EscrowBetID)
		if err != nil {
			return reason, fmt.Errorf("escrow refund: %w", err)
		}
		if !res.OK {
			return reason, fmt.Errorf("escrow refund declined for bet %s", pos.EscrowBetID)
		}

	case domain.PositionStatusWon:
		if reason == domain.ReasonWonRefundOnly {
			res, err := s.escrow.Refund(ctx, pos.EscrowBetID)
			if err != nil {
				return reason, fmt.Errorf("escrow refund: %w", err)
			}
			if !res.OK {
				return reason, fmt.Errorf("escrow refund declined for bet %s", pos.EscrowBetID)
			}
			break
		}
		res, err := s.escrow.Resolve(ctx, pos.EscrowBetID, pos.WalletID)
		if err != nil {
			return reason, fmt.Errorf("escrow resolve: %w", err)
		}
		if !res.OK {
			return reason, fmt.Errorf("escrow resolve declined for bet %s", pos.EscrowBetID)
		}
		// The adapter's payout reflects what actually moved.
		if res.Payout != nil {
			payout = domain.Round6(*res.Payout)
		}

	case domain.PositionStatusLost:
		houseWallet, ok := s.wallets.HouseWalletID()
		if !ok {
			return reason, fmt.Errorf("no house wallet to collect bet %s", pos.EscrowBetID)
		}
		res, err := s.escrow.Resolve(ctx, pos.EscrowBetID, houseWallet)
		if err != nil {
			return reason, fmt.Errorf("escrow resolve: %w", err)
		}
		if !res.OK {
			return reason, fmt.Errorf("escrow resolve declined for bet %s", pos.EscrowBetID)
		}
	}

	if err := s.positions.Settle(ctx, domain.PositionSettlement{
		PositionID: pos.ID,
		Status:     status,
		Payout:     payout,
		Reason:     reason,
	}); err != nil {
		return reason, fmt.Errorf("persist settlement: %w", err)
	}

	s.afterSettle(ctx, pos, status, reason, payout)
	return reason, nil
}

// classify decides the terminal status, reason tag and locally computed
// payout for one position.
//
// A winner is paid from the losing pool in proportion to their share of the
// winning pool, on top of their own stake back, capped at the full price
// payout stake/price. An empty losing pool degrades the win to a refund.
func classify(
	pos domain.MarketPosition,
	pool domain.LiquidityPool,
	outcome domain.Side,
	voidAll bool,
) (domain.PositionStatus, string, float64) {
	if voidAll {
		return domain.PositionStatusVoided, domain.ReasonVoided, pos.Stake
	}

	if pos.Side != outcome {
		return domain.PositionStatusLost, domain.ReasonLost, 0
	}

	winning := pool.SideStaked(pos.Side)
	losing := pool.Opposite(pos.Side)

	if losing == 0 {
		return domain.PositionStatusWon, domain.ReasonWonRefundOnly, pos.Stake
	}

	full := domain.Round6(pos.Stake / pos.Price)
	payout := domain.Round6(pos.Stake + losing*pos.Stake/winning)
	if payout >= full {
		return domain.PositionStatusWon, domain.ReasonWonProfit, full
	}
	return domain.PositionStatusWon, domain.ReasonWonPartial, payout
}

// afterSettle emits the best-effort telemetry for one settled position.
func (s *SettlementService) afterSettle(
	ctx context.Context,
	pos domain.MarketPosition,
	status domain.PositionStatus,
	reason string,
	payout float64,
) {
	event := domain.InteractionEvent{
		ID:       uuid.New().String(),
		PlayerID: pos.PlayerID,
		MarketID: pos.MarketID,
		Kind:     domain.EventPositionSettled,
		Detail: map[string]any{
			"position_id": pos.ID,
			"status":      string(status),
			"reason":      reason,
			"payout":      payout,
		},
		CreatedAt: time.Now(),
	}
	if err := s.events.Insert(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "settlement: event insert failed",
			slog.String("position_id", pos.ID),
			slog.String("error", err.Error()),
		)
	}

	if payload, err := json.Marshal(map[string]any{
		"type":        domain.EventPositionSettled,
		"position_id": pos.ID,
		"market_id":   pos.MarketID,
		"status":      string(status),
		"reason":      reason,
		"payout":      payout,
	}); err == nil {
		if err := s.bus.Publish(ctx, ChannelPositions, payload); err != nil {
			s.logger.WarnContext(ctx, "settlement: publish failed",
				slog.String("error", err.Error()),
			)
		}
		if err := s.bus.StreamAppend(ctx, StreamEvents, payload); err != nil {
			s.logger.WarnContext(ctx, "settlement: stream append failed",
				slog.String("error", err.Error()),
			)
		}
	}
}
