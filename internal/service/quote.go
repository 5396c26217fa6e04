package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sidebook/sidebook/internal/domain"
)

// QuoteService prices stakes against the house book. Every rejection carries
// a stable reason code; the checks run in a fixed order so a request failing
// several ways always reports the same one.
type QuoteService struct {
	markets   *MarketService
	liquidity *LiquidityService
	metrics   *Metrics
	logger    *slog.Logger
}

// NewQuoteService creates a QuoteService.
func NewQuoteService(markets *MarketService, liquidity *LiquidityService, metrics *Metrics, logger *slog.Logger) *QuoteService {
	return &QuoteService{
		markets:   markets,
		liquidity: liquidity,
		metrics:   metrics,
		logger:    logger.With(slog.String("component", "quote_service")),
	}
}

// Quote prices a stake on one side of a market. Rejections are values;
// the error return is reserved for infrastructure failures.
func (s *QuoteService) Quote(ctx context.Context, marketID string, side domain.Side, stake float64) (domain.QuoteResult, error) {
	res, err := s.quote(ctx, marketID, side, stake, time.Now())
	if err != nil {
		return res, err
	}
	if res.OK {
		s.metrics.Inc(MetricQuotesServed)
	} else {
		s.metrics.Inc(MetricQuotesRejected)
		s.logger.DebugContext(ctx, "quote: rejected",
			slog.String("market_id", marketID),
			slog.String("reason", string(res.Reason)),
		)
	}
	return res, nil
}

func (s *QuoteService) quote(ctx context.Context, marketID string, side domain.Side, stake float64, now time.Time) (domain.QuoteResult, error) {
	if !side.Valid() {
		return domain.QuoteResult{}, fmt.Errorf("quote: %w: %q", domain.ErrInvalidSide, side)
	}
	// Minimum wager is 1 unit; smaller requests are priced as if they staked 1.
	if stake < 1 {
		stake = 1
	}

	view, err := s.markets.ViewByID(ctx, marketID)
	if err != nil {
		if isNotFound(err) {
			return domain.Reject(domain.ReasonMarketNotFound, "market does not exist"), nil
		}
		return domain.QuoteResult{}, err
	}

	if !view.Active {
		return domain.Reject(domain.ReasonMarketInactive, "market is not accepting positions"), nil
	}
	if view.OracleSource != "local" && !s.markets.OracleFresh(now) {
		return domain.Reject(domain.ReasonOracleUnavailable, "oracle prices are stale"), nil
	}
	if !view.Playable(now) {
		return domain.Reject(domain.ReasonMarketClosed, "market is closed"), nil
	}
	if stake > view.MaxWager {
		return domain.Reject(domain.ReasonWagerTooHigh,
			fmt.Sprintf("stake exceeds the maximum wager of %.2f", view.MaxWager)), nil
	}

	pool, err := s.liquidity.PoolFor(ctx, marketID)
	if err != nil {
		return domain.QuoteResult{}, err
	}

	q := BuildQuote(view, pool, side, stake)
	return domain.QuoteResult{OK: true, Quote: &q}, nil
}

// BuildQuote computes the executable price and the liquidity-aware payout
// projection. The projection applies the same proportional-pool split that
// settlement uses, so the number shown at quote time and the number paid at
// settlement only diverge when the pools themselves move.
func BuildQuote(view domain.MarketView, pool domain.LiquidityPool, side domain.Side, stake float64) domain.Quote {
	halfSpread := float64(view.HouseSpreadBps) / 2 / 10000
	price := domain.ClampPrice(view.SidePrice(side) + halfSpread)

	shares := domain.Round6(stake / price)
	potential := domain.Round6(stake / price)

	samePool := pool.SideStaked(side)
	oppPool := pool.Opposite(side)

	projected := domain.Round6(stake + oppPool*stake/(samePool+stake))
	if projected > potential {
		projected = potential
	}

	q := domain.Quote{
		MarketID:        view.ID,
		Side:            side,
		Stake:           stake,
		Price:           price,
		Shares:          shares,
		PotentialPayout: potential,
		SameSidePool:    samePool,
		OppositePool:    oppPool,
		ProjectedPayout: projected,
		MinPayout:       stake,
	}
	if oppPool == 0 {
		q.LiquidityWarning = "no opposing stake yet; a win would currently pay back your stake only"
	}
	return q
}
