package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sidebook/sidebook/internal/domain"
	"github.com/sidebook/sidebook/internal/notify"
)

// Channel and stream names used for position fan-out.
const (
	ChannelPositions = "sidebook:positions"
	StreamEvents     = "sidebook:events"
)

// OpenPositionRequest is a player's request to stake on one side of a market.
type OpenPositionRequest struct {
	MarketID string
	PlayerID string
	WalletID string
	Side     domain.Side
	Stake    float64
}

// OpenPositionResult mirrors QuoteResult: rejections are values with a
// reason code, and Position is set only on success. AdapterCode carries the
// escrow adapter's own rejection code verbatim when it supplied one.
type OpenPositionResult struct {
	OK          bool
	Reason      domain.ReasonCode
	ReasonText  string
	AdapterCode string
	Position    *domain.MarketPosition
}

func openReject(code domain.ReasonCode, text string) OpenPositionResult {
	return OpenPositionResult{Reason: code, ReasonText: text}
}

// PositionService opens positions. The stake is locked in escrow before the
// position row exists; if the row cannot be written the lock is unwound, so
// no state ever claims money that escrow does not hold.
type PositionService struct {
	positions domain.PositionStore
	quotes    *QuoteService
	liquidity *LiquidityService
	escrow    domain.EscrowAdapter
	wallets   domain.WalletResolver
	events    domain.InteractionEventStore
	bus       domain.SignalBus
	hedge     domain.HedgeVenue // nil when hedging is disabled
	notifier  *notify.Notifier
	metrics   *Metrics
	maxOpen   int
	logger    *slog.Logger
}

// NewPositionService creates a PositionService. hedge may be nil.
func NewPositionService(
	positions domain.PositionStore,
	quotes *QuoteService,
	liquidity *LiquidityService,
	escrow domain.EscrowAdapter,
	wallets domain.WalletResolver,
	events domain.InteractionEventStore,
	bus domain.SignalBus,
	hedge domain.HedgeVenue,
	notifier *notify.Notifier,
	metrics *Metrics,
	maxOpen int,
	logger *slog.Logger,
) *PositionService {
	return &PositionService{
		positions: positions,
		quotes:    quotes,
		liquidity: liquidity,
		escrow:    escrow,
		wallets:   wallets,
		events:    events,
		bus:       bus,
		hedge:     hedge,
		notifier:  notifier,
		metrics:   metrics,
		maxOpen:   maxOpen,
		logger:    logger.With(slog.String("component", "position_service")),
	}
}

// Open quotes, escrows and persists a new position, in that order. Both
// wallets must exist before any money moves, so the wallet checks come first.
func (s *PositionService) Open(ctx context.Context, req OpenPositionRequest) (OpenPositionResult, error) {
	houseWallet, ok := s.wallets.HouseWalletID()
	if !ok {
		return openReject(domain.ReasonWalletRequired, "house wallet is not configured"), nil
	}
	if strings.TrimSpace(req.WalletID) == "" {
		return openReject(domain.ReasonWalletRequired, "player wallet is required"), nil
	}

	qr, err := s.quotes.Quote(ctx, req.MarketID, req.Side, req.Stake)
	if err != nil {
		return OpenPositionResult{}, err
	}
	if !qr.OK {
		return openReject(qr.Reason, qr.ReasonText), nil
	}
	quote := *qr.Quote

	openCount, err := s.openPositionCount(ctx, req.PlayerID)
	if err != nil {
		return OpenPositionResult{}, err
	}
	if openCount >= s.maxOpen {
		return openReject(domain.ReasonTooManyOpenPositions,
			fmt.Sprintf("player already has %d open positions", openCount)), nil
	}

	positionID := uuid.New().String()
	betID := EscrowBetID(req.MarketID, positionID)

	pf, err := s.escrow.PreflightStake(ctx, domain.EscrowPreflight{
		ChallengerWalletID: req.WalletID,
		OpponentWalletID:   houseWallet,
		Amount:             quote.Stake,
	})
	if err != nil {
		return OpenPositionResult{}, fmt.Errorf("positions: open preflight: %w", err)
	}
	if !pf.OK {
		// The adapter's own verdict reaches the player verbatim.
		text := pf.ReasonText
		if text == "" {
			text = pf.Reason
		}
		if text == "" {
			text = "escrow rejected the stake"
		}
		res := openReject(domain.ReasonEscrowRejected, text)
		res.AdapterCode = pf.ReasonCode
		return res, nil
	}

	lock, err := s.escrow.LockStake(ctx, domain.EscrowLock{
		BetID:              betID,
		ChallengerWalletID: req.WalletID,
		OpponentWalletID:   houseWallet,
		Amount:             quote.Stake,
	})
	if err != nil {
		return OpenPositionResult{}, fmt.Errorf("positions: open lock: %w", err)
	}
	if !lock.OK {
		text := lock.Reason
		if text == "" {
			text = "escrow could not lock the stake"
		}
		return openReject(domain.ReasonEscrowLockFailed, text), nil
	}

	pos := domain.MarketPosition{
		ID:                    positionID,
		MarketID:              req.MarketID,
		PlayerID:              req.PlayerID,
		WalletID:              req.WalletID,
		Side:                  req.Side,
		Stake:                 quote.Stake,
		Price:                 quote.Price,
		Shares:                quote.Shares,
		EscrowBetID:           betID,
		Status:                domain.PositionStatusOpen,
		EstimatedPayoutAtOpen: quote.ProjectedPayout,
		MinPayoutAtOpen:       quote.MinPayout,
		CreatedAt:             time.Now(),
	}

	created := s.positions.Create(ctx, pos) == nil
	if created {
		// Read back the row before declaring success; a write the store
		// cannot show us again is a write we cannot settle.
		_, readErr := s.positions.GetByID(ctx, positionID)
		created = readErr == nil
	}
	if !created {
		// Money is locked but the row is not durable; unwind before reporting.
		s.refundOrphan(ctx, betID)
		s.logger.ErrorContext(ctx, "positions: create failed after lock",
			slog.String("position_id", positionID),
			slog.String("bet_id", betID),
		)
		return openReject(domain.ReasonPositionCreateFailed, "could not record the position"), nil
	}

	s.metrics.Inc(MetricPositionsOpened)
	s.logger.InfoContext(ctx, "positions: opened",
		slog.String("position_id", positionID),
		slog.String("market_id", req.MarketID),
		slog.String("side", string(req.Side)),
		slog.Float64("stake", quote.Stake),
		slog.Float64("price", quote.Price),
	)

	s.afterOpen(ctx, pos, quote)
	return OpenPositionResult{OK: true, Position: &pos}, nil
}

// ListPlayerPositions returns a player's positions, newest first.
func (s *PositionService) ListPlayerPositions(ctx context.Context, playerID string, limit int) ([]domain.MarketPosition, error) {
	positions, err := s.positions.ListByPlayer(ctx, playerID, limit)
	if err != nil {
		return nil, fmt.Errorf("positions: list for player %s: %w", playerID, err)
	}
	return positions, nil
}

// openCountScan bounds the per-player query backing the open-position cap.
// Far above any reachable cap, so the count cannot be clipped.
const openCountScan = 1000

func (s *PositionService) openPositionCount(ctx context.Context, playerID string) (int, error) {
	positions, err := s.positions.ListByPlayer(ctx, playerID, openCountScan)
	if err != nil {
		return 0, fmt.Errorf("positions: count open for player %s: %w", playerID, err)
	}
	n := 0
	for _, p := range positions {
		if p.Status == domain.PositionStatusOpen {
			n++
		}
	}
	return n, nil
}

// refundOrphan tries to release a lock whose position row never existed.
// Best-effort: the refund is idempotent on the bet ID and a later settlement
// sweep cannot find the position, so a failure here only delays the release.
func (s *PositionService) refundOrphan(ctx context.Context, betID string) {
	if _, err := s.escrow.Refund(ctx, betID); err != nil {
		s.logger.ErrorContext(ctx, "positions: orphan refund failed",
			slog.String("bet_id", betID),
			slog.String("error", err.Error()),
		)
	}
}

// afterOpen runs the best-effort side effects of a successful open: funnel
// telemetry, bus fan-out, the refund-only liquidity alert and the hedge
// order. None of them can fail the open.
func (s *PositionService) afterOpen(ctx context.Context, pos domain.MarketPosition, quote domain.Quote) {
	event := domain.InteractionEvent{
		ID:       uuid.New().String(),
		PlayerID: pos.PlayerID,
		MarketID: pos.MarketID,
		Kind:     domain.EventPositionOpened,
		Detail: map[string]any{
			"position_id": pos.ID,
			"side":        string(pos.Side),
			"stake":       pos.Stake,
			"price":       pos.Price,
		},
		CreatedAt: time.Now(),
	}
	if err := s.events.Insert(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "positions: event insert failed",
			slog.String("position_id", pos.ID),
			slog.String("error", err.Error()),
		)
	}

	if payload, err := json.Marshal(map[string]any{
		"type":        domain.EventPositionOpened,
		"position_id": pos.ID,
		"market_id":   pos.MarketID,
		"side":        string(pos.Side),
		"stake":       pos.Stake,
	}); err == nil {
		if err := s.bus.Publish(ctx, ChannelPositions, payload); err != nil {
			s.logger.WarnContext(ctx, "positions: publish failed",
				slog.String("error", err.Error()),
			)
		}
		if err := s.bus.StreamAppend(ctx, StreamEvents, payload); err != nil {
			s.logger.WarnContext(ctx, "positions: stream append failed",
				slog.String("error", err.Error()),
			)
		}
	}

	if pool, err := s.liquidity.PoolFor(ctx, pos.MarketID); err == nil && pool.RefundOnlyRisk() {
		_ = s.notifier.Notify(ctx, notify.EventLiquidityAlert,
			"Refund-only liquidity",
			fmt.Sprintf("Market %s has stake on one side only (yes=%.2f no=%.2f).",
				pos.MarketID, pool.YesStaked, pool.NoStaked))
	}

	if s.hedge != nil {
		// Fire-and-forget; the player's response never waits on the venue.
		go func() {
			hctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
			defer cancel()
			if err := s.hedge.PlaceHedge(hctx, domain.HedgeOrder{
				MarketID: pos.MarketID,
				Side:     pos.Side,
				Stake:    pos.Stake,
				Price:    pos.Price,
			}); err != nil {
				s.logger.WarnContext(hctx, "positions: hedge failed",
					slog.String("position_id", pos.ID),
					slog.String("error", err.Error()),
				)
			}
		}()
	}
}

// EscrowBetID derives the immutable escrow correlation key for a position.
// Only alphanumerics survive, and the result is capped at 64 characters to
// satisfy adapter key limits.
func EscrowBetID(marketID, positionID string) string {
	key := sanitizeKey(marketID) + "-" + sanitizeKey(positionID)
	if len(key) > 64 {
		key = key[:64]
	}
	return key
}

func sanitizeKey(s string) string {
	var b strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func isNotFound(err error) bool {
	return errors.Is(err, domain.ErrNotFound)
}
