// Package service implements the engine's business logic: market activation,
// quoting, the position lifecycle and the settlement pass. Services depend on
// the domain store interfaces, never on concrete backends.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/sidebook/sidebook/internal/config"
	"github.com/sidebook/sidebook/internal/domain"
)

// MarketService syncs markets from the oracle, merges activation overrides
// into views, and keeps at least one playable market active.
type MarketService struct {
	markets     domain.MarketStore
	activations domain.ActivationStore
	oracle      domain.OracleFeed
	cfg         config.EngineConfig
	syncLimit   int
	metrics     *Metrics
	logger      *slog.Logger

	mu           sync.Mutex
	lastSyncAt   time.Time
	lastEnsureAt time.Time

	// ensureGroup collapses concurrent activation attempts into one.
	ensureGroup singleflight.Group
}

// NewMarketService creates a MarketService.
func NewMarketService(
	markets domain.MarketStore,
	activations domain.ActivationStore,
	oracle domain.OracleFeed,
	cfg config.EngineConfig,
	syncLimit int,
	metrics *Metrics,
	logger *slog.Logger,
) *MarketService {
	return &MarketService{
		markets:     markets,
		activations: activations,
		oracle:      oracle,
		cfg:         cfg,
		syncLimit:   syncLimit,
		metrics:     metrics,
		logger:      logger.With(slog.String("component", "market_service")),
	}
}

// SyncFromOracle fetches markets from the oracle feed and upserts them,
// returning how many were written. A successful sync refreshes the oracle
// staleness clock.
func (s *MarketService) SyncFromOracle(ctx context.Context) (int, error) {
	markets, err := s.oracle.FetchMarkets(ctx, s.syncLimit)
	if err != nil {
		return 0, fmt.Errorf("markets: oracle sync: %w", err)
	}

	if err := s.markets.UpsertBatch(ctx, markets); err != nil {
		return 0, fmt.Errorf("markets: oracle sync upsert: %w", err)
	}

	s.mu.Lock()
	s.lastSyncAt = time.Now()
	s.mu.Unlock()

	s.metrics.Inc(MetricOracleSyncs)
	s.logger.InfoContext(ctx, "markets: oracle sync complete",
		slog.Int("count", len(markets)),
	)
	return len(markets), nil
}

// LastSyncAt returns the time of the last successful oracle sync, zero if
// none has happened yet.
func (s *MarketService) LastSyncAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSyncAt
}

// OracleFresh reports whether oracle prices are recent enough to quote
// against at the given instant.
func (s *MarketService) OracleFresh(now time.Time) bool {
	last := s.LastSyncAt()
	if last.IsZero() {
		return false
	}
	return now.Sub(last) <= s.cfg.OracleStaleAfter.Duration
}

// ActivationMap returns all activation overrides keyed by market ID.
func (s *MarketService) ActivationMap(ctx context.Context) (map[string]domain.MarketActivation, error) {
	list, err := s.activations.List(ctx, s.cfg.ScanLimit)
	if err != nil {
		return nil, fmt.Errorf("markets: list activations: %w", err)
	}
	m := make(map[string]domain.MarketActivation, len(list))
	for _, a := range list {
		m[a.MarketID] = a
	}
	return m, nil
}

// Views returns up to limit markets merged with their activation overrides.
// Markets without an override are inactive and carry engine defaults.
func (s *MarketService) Views(ctx context.Context, limit int) ([]domain.MarketView, error) {
	markets, err := s.markets.List(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("markets: list: %w", err)
	}
	overrides, err := s.ActivationMap(ctx)
	if err != nil {
		return nil, err
	}

	views := make([]domain.MarketView, 0, len(markets))
	for _, m := range markets {
		views = append(views, s.view(m, overrides))
	}
	return views, nil
}

// ViewByID returns a single market merged with its activation override.
func (s *MarketService) ViewByID(ctx context.Context, id string) (domain.MarketView, error) {
	m, err := s.markets.GetByID(ctx, id)
	if err != nil {
		return domain.MarketView{}, fmt.Errorf("markets: get %s: %w", id, err)
	}
	overrides, err := s.ActivationMap(ctx)
	if err != nil {
		return domain.MarketView{}, err
	}
	return s.view(m, overrides), nil
}

func (s *MarketService) view(m domain.Market, overrides map[string]domain.MarketActivation) domain.MarketView {
	v := domain.MarketView{
		Market:         m,
		MaxWager:       s.cfg.DefaultMaxWager,
		HouseSpreadBps: s.cfg.DefaultSpreadBps,
	}
	if a, ok := overrides[m.ID]; ok {
		v.Active = a.Active
		if a.MaxWager > 0 {
			v.MaxWager = a.MaxWager
		}
		if a.HouseSpreadBps > 0 {
			v.HouseSpreadBps = a.HouseSpreadBps
		}
	}
	return v
}

// ActivateMarket writes an activation override. The market must exist;
// out-of-range overrides fall back to engine defaults at view time.
func (s *MarketService) ActivateMarket(ctx context.Context, activation domain.MarketActivation) error {
	if _, err := s.markets.GetByID(ctx, activation.MarketID); err != nil {
		return fmt.Errorf("markets: activate %s: %w", activation.MarketID, err)
	}
	if activation.HouseSpreadBps < 0 || activation.HouseSpreadBps > 5000 {
		return fmt.Errorf("markets: activate %s: spread bps out of range: %d", activation.MarketID, activation.HouseSpreadBps)
	}
	activation.UpdatedAt = time.Now()

	if err := s.activations.Set(ctx, activation); err != nil {
		return fmt.Errorf("markets: activate %s: %w", activation.MarketID, err)
	}
	s.logger.InfoContext(ctx, "markets: activation set",
		slog.String("market_id", activation.MarketID),
		slog.Bool("active", activation.Active),
		slog.String("updated_by", activation.UpdatedBy),
	)
	return nil
}

// EnsureActiveMarket guarantees at least one active, playable market and
// returns it. Concurrent callers share one underlying attempt; repeated
// attempts that would need to write are throttled by the ensure cooldown.
func (s *MarketService) EnsureActiveMarket(ctx context.Context) (domain.MarketView, error) {
	v, err, _ := s.ensureGroup.Do("ensure_active", func() (any, error) {
		return s.ensureActive(ctx)
	})
	if err != nil {
		return domain.MarketView{}, err
	}
	return v.(domain.MarketView), nil
}

func (s *MarketService) ensureActive(ctx context.Context) (domain.MarketView, error) {
	now := time.Now()

	views, err := s.Views(ctx, s.cfg.ScanLimit)
	if err != nil {
		return domain.MarketView{}, err
	}
	if v, ok := firstActivePlayable(views, now); ok {
		return v, nil
	}

	// No active market. Activation writes are throttled so a burst of
	// traffic during an oracle outage cannot storm the activation table.
	s.mu.Lock()
	inCooldown := !s.lastEnsureAt.IsZero() && now.Sub(s.lastEnsureAt) < s.cfg.EnsureCooldown.Duration
	if !inCooldown {
		s.lastEnsureAt = now
	}
	s.mu.Unlock()
	if inCooldown {
		return domain.MarketView{}, fmt.Errorf("markets: ensure active: no active market (cooldown): %w", domain.ErrNotFound)
	}

	maxWager, spreadBps := s.activationDefaults(ctx)

	// Prefer a market we already know about.
	if candidate, ok := s.pickCandidate(views, now); ok {
		if err := s.autoActivate(ctx, candidate.ID, domain.ActorAutoActivate, maxWager, spreadBps); err != nil {
			return domain.MarketView{}, err
		}
		return s.ViewByID(ctx, candidate.ID)
	}

	// Refresh from the oracle and look again. Fetch failures are logged and
	// swallowed; the fallback below keeps the system playable.
	if _, err := s.SyncFromOracle(ctx); err != nil {
		s.logger.WarnContext(ctx, "markets: ensure active: oracle refresh failed",
			slog.String("error", err.Error()),
		)
	} else if views, err = s.Views(ctx, s.cfg.ScanLimit); err == nil {
		if candidate, ok := s.pickCandidate(views, now); ok {
			if err := s.autoActivate(ctx, candidate.ID, domain.ActorAutoActivateOracle, maxWager, spreadBps); err != nil {
				return domain.MarketView{}, err
			}
			return s.ViewByID(ctx, candidate.ID)
		}
	}

	// Nothing from the oracle qualifies; synthesize the local fallback.
	fb := s.fallbackMarket(now)
	if err := s.markets.Upsert(ctx, fb); err != nil {
		return domain.MarketView{}, fmt.Errorf("markets: ensure active: upsert fallback: %w", err)
	}
	if err := s.autoActivate(ctx, fb.ID, domain.ActorAutoFallback, maxWager, spreadBps); err != nil {
		return domain.MarketView{}, err
	}
	s.logger.WarnContext(ctx, "markets: fallback market activated",
		slog.String("market_id", fb.ID),
	)
	return s.ViewByID(ctx, fb.ID)
}

// activationDefaults takes wager and spread limits from the most recently
// updated activation row, so operator tuning carries over to auto-activated
// markets. Engine defaults apply when no row exists.
func (s *MarketService) activationDefaults(ctx context.Context) (float64, int) {
	maxWager, spreadBps := s.cfg.DefaultMaxWager, s.cfg.DefaultSpreadBps

	overrides, err := s.ActivationMap(ctx)
	if err != nil {
		return maxWager, spreadBps
	}
	var latest *domain.MarketActivation
	for id := range overrides {
		a := overrides[id]
		if latest == nil || a.UpdatedAt.After(latest.UpdatedAt) {
			latest = &a
		}
	}
	if latest != nil {
		if latest.MaxWager > 0 {
			maxWager = latest.MaxWager
		}
		if latest.HouseSpreadBps > 0 {
			spreadBps = latest.HouseSpreadBps
		}
	}
	return maxWager, spreadBps
}

func (s *MarketService) autoActivate(ctx context.Context, marketID, actor string, maxWager float64, spreadBps int) error {
	return s.ActivateMarket(ctx, domain.MarketActivation{
		MarketID:       marketID,
		Active:         true,
		MaxWager:       maxWager,
		HouseSpreadBps: spreadBps,
		UpdatedBy:      actor,
	})
}

// pickCandidate chooses the best inactive market to auto-activate: keyword
// matches first, then the one closing soonest. The synthetic fallback never
// competes here; it is the explicit last resort.
func (s *MarketService) pickCandidate(views []domain.MarketView, now time.Time) (domain.MarketView, bool) {
	var candidates []domain.MarketView
	for _, v := range views {
		if v.Active || !v.Playable(now) || v.ID == s.cfg.Fallback.ID {
			continue
		}
		candidates = append(candidates, v)
	}
	if len(candidates) == 0 {
		return domain.MarketView{}, false
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		si, sj := s.keywordScore(candidates[i].Market), s.keywordScore(candidates[j].Market)
		if si != sj {
			return si > sj
		}
		return candidates[i].CloseAt.Before(candidates[j].CloseAt)
	})
	return candidates[0], true
}

func (s *MarketService) keywordScore(m domain.Market) int {
	haystack := strings.ToLower(m.Question + " " + m.Slug + " " + m.Category)
	score := 0
	for _, kw := range s.cfg.PreferredKeywords {
		if strings.Contains(haystack, strings.ToLower(kw)) {
			score++
		}
	}
	return score
}

// fallbackMarket synthesizes the deterministic house market. The ID is
// stable, so repeated synthesis upserts the same row with a fresh horizon.
func (s *MarketService) fallbackMarket(now time.Time) domain.Market {
	fb := s.cfg.Fallback
	return domain.Market{
		ID:           fb.ID,
		Slug:         fb.Slug,
		Question:     fb.Question,
		Category:     fb.Category,
		CloseAt:      now.Add(fb.Horizon.Duration),
		Status:       domain.MarketStatusOpen,
		OracleSource: "local",
		YesPrice:     0.5,
		NoPrice:      0.5,
	}
}

// PreviewLiveMarkets fetches playable markets straight from the oracle
// without persisting anything.
func (s *MarketService) PreviewLiveMarkets(ctx context.Context) ([]domain.Market, error) {
	markets, err := s.oracle.FetchMarkets(ctx, s.syncLimit)
	if err != nil {
		return nil, fmt.Errorf("markets: preview: %w", err)
	}

	now := time.Now()
	playable := markets[:0]
	for _, m := range markets {
		if m.Playable(now) {
			playable = append(playable, m)
		}
	}
	return playable, nil
}

// SyncAndAutoActivate runs an oracle sync followed by an activation check,
// the combination the scheduler and admin trigger both use.
func (s *MarketService) SyncAndAutoActivate(ctx context.Context) (domain.MarketView, error) {
	if _, err := s.SyncFromOracle(ctx); err != nil {
		return domain.MarketView{}, err
	}
	return s.EnsureActiveMarket(ctx)
}

func firstActivePlayable(views []domain.MarketView, now time.Time) (domain.MarketView, bool) {
	for _, v := range views {
		if v.Active && v.Playable(now) {
			return v, true
		}
	}
	return domain.MarketView{}, false
}
