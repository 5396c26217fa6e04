package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/sidebook/sidebook/internal/config"
	"github.com/sidebook/sidebook/internal/domain"
	"github.com/sidebook/sidebook/internal/notify"
)

// ---------------------------------------------------------------------------
// in-memory stores
// ---------------------------------------------------------------------------

type memMarketStore struct {
	mu      sync.Mutex
	markets map[string]domain.Market
}

func newMemMarketStore() *memMarketStore {
	return &memMarketStore{markets: make(map[string]domain.Market)}
}

func (s *memMarketStore) Upsert(_ context.Context, m domain.Market) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markets[m.ID] = m
	return nil
}

func (s *memMarketStore) UpsertBatch(ctx context.Context, markets []domain.Market) error {
	for _, m := range markets {
		if err := s.Upsert(ctx, m); err != nil {
			return err
		}
	}
	return nil
}

func (s *memMarketStore) GetByID(_ context.Context, id string) (domain.Market, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.markets[id]
	if !ok {
		return domain.Market{}, domain.ErrNotFound
	}
	return m, nil
}

func (s *memMarketStore) List(_ context.Context, limit int) ([]domain.Market, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Market, 0, len(s.markets))
	for _, m := range s.markets {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type memActivationStore struct {
	mu          sync.Mutex
	activations map[string]domain.MarketActivation
	setCalls    int
	failSet     bool
}

func newMemActivationStore() *memActivationStore {
	return &memActivationStore{activations: make(map[string]domain.MarketActivation)}
}

func (s *memActivationStore) Set(_ context.Context, a domain.MarketActivation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setCalls++
	if s.failSet {
		return fmt.Errorf("activation store unavailable")
	}
	s.activations[a.MarketID] = a
	return nil
}

func (s *memActivationStore) List(_ context.Context, limit int) ([]domain.MarketActivation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.MarketActivation, 0, len(s.activations))
	for _, a := range s.activations {
		out = append(out, a)
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memActivationStore) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setCalls
}

type memPositionStore struct {
	mu         sync.Mutex
	positions  map[string]domain.MarketPosition
	order      []string
	failCreate bool
}

func newMemPositionStore() *memPositionStore {
	return &memPositionStore{positions: make(map[string]domain.MarketPosition)}
}

func (s *memPositionStore) Create(_ context.Context, p domain.MarketPosition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failCreate {
		return fmt.Errorf("position store unavailable")
	}
	if _, ok := s.positions[p.ID]; ok {
		return domain.ErrAlreadyExists
	}
	s.positions[p.ID] = p
	s.order = append(s.order, p.ID)
	return nil
}

func (s *memPositionStore) GetByID(_ context.Context, id string) (domain.MarketPosition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.positions[id]
	if !ok {
		return domain.MarketPosition{}, domain.ErrNotFound
	}
	return p, nil
}

func (s *memPositionStore) ListOpen(_ context.Context, limit int) ([]domain.MarketPosition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.MarketPosition
	for _, id := range s.order {
		if p := s.positions[id]; p.Status == domain.PositionStatusOpen {
			out = append(out, p)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memPositionStore) ListByPlayer(_ context.Context, playerID string, limit int) ([]domain.MarketPosition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.MarketPosition
	for _, id := range s.order {
		if p := s.positions[id]; p.PlayerID == playerID {
			out = append(out, p)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memPositionStore) Settle(_ context.Context, st domain.PositionSettlement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.positions[st.PositionID]
	if !ok || p.Status != domain.PositionStatusOpen {
		return domain.ErrNotFound
	}
	now := time.Now()
	payout := st.Payout
	p.Status = st.Status
	p.Payout = &payout
	p.SettlementReason = st.Reason
	p.SettledAt = &now
	s.positions[st.PositionID] = p
	return nil
}

func (s *memPositionStore) mustGet(t *testing.T, id string) domain.MarketPosition {
	t.Helper()
	p, err := s.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("position %s not found", id)
	}
	return p
}

type memEventStore struct {
	mu     sync.Mutex
	events []domain.InteractionEvent
}

func (s *memEventStore) Insert(_ context.Context, e domain.InteractionEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

func (s *memEventStore) CountsSince(_ context.Context, _ time.Duration) ([]domain.InteractionCount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	byKind := make(map[string]int64)
	for _, e := range s.events {
		byKind[e.Kind]++
	}
	out := make([]domain.InteractionCount, 0, len(byKind))
	for kind, n := range byKind {
		out = append(out, domain.InteractionCount{Kind: kind, Count: n})
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// collaborator fakes
// ---------------------------------------------------------------------------

// fakeEscrow records every call per bet ID and returns configurable results.
type fakeEscrow struct {
	mu sync.Mutex

	preflightResult domain.EscrowPreflightResult
	preflightErr    error
	lockResult      domain.EscrowLockResult
	lockErr         error
	resolvePayout   *float64
	resolveErr      error
	refundErr       error

	preflightCalls int
	lockCalls      map[string]int
	resolveCalls   map[string]int
	resolveWallets map[string]string
	refundCalls    map[string]int
}

func newFakeEscrow() *fakeEscrow {
	return &fakeEscrow{
		preflightResult: domain.EscrowPreflightResult{OK: true},
		lockResult:      domain.EscrowLockResult{OK: true},
		lockCalls:       make(map[string]int),
		resolveCalls:    make(map[string]int),
		resolveWallets:  make(map[string]string),
		refundCalls:     make(map[string]int),
	}
}

func (f *fakeEscrow) PreflightStake(_ context.Context, _ domain.EscrowPreflight) (domain.EscrowPreflightResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.preflightCalls++
	return f.preflightResult, f.preflightErr
}

func (f *fakeEscrow) LockStake(_ context.Context, req domain.EscrowLock) (domain.EscrowLockResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lockCalls[req.BetID]++
	return f.lockResult, f.lockErr
}

func (f *fakeEscrow) Resolve(_ context.Context, betID, winnerWalletID string) (domain.EscrowResolveResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resolveCalls[betID]++
	if f.resolveErr != nil {
		return domain.EscrowResolveResult{}, f.resolveErr
	}
	f.resolveWallets[betID] = winnerWalletID
	return domain.EscrowResolveResult{OK: true, Payout: f.resolvePayout}, nil
}

func (f *fakeEscrow) Refund(_ context.Context, betID string) (domain.EscrowRefundResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refundCalls[betID]++
	if f.refundErr != nil {
		return domain.EscrowRefundResult{}, f.refundErr
	}
	return domain.EscrowRefundResult{OK: true}, nil
}

func (f *fakeEscrow) resolvedTo(betID string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.resolveWallets[betID]
}

func (f *fakeEscrow) refunds(betID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refundCalls[betID]
}

func (f *fakeEscrow) resolves(betID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.resolveCalls[betID]
}

type fakeOracle struct {
	mu      sync.Mutex
	markets []domain.Market
	err     error
}

func (f *fakeOracle) FetchMarkets(_ context.Context, _ int) ([]domain.Market, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.markets, f.err
}

type staticWallets struct {
	id string
}

func (w staticWallets) HouseWalletID() (string, bool) {
	return w.id, w.id != ""
}

type nopBus struct{}

func (nopBus) Publish(context.Context, string, []byte) error      { return nil }
func (nopBus) StreamAppend(context.Context, string, []byte) error { return nil }

// ---------------------------------------------------------------------------
// harness
// ---------------------------------------------------------------------------

const houseWallet = "0xHOUSE"

type engine struct {
	cfg config.EngineConfig

	marketStore *memMarketStore
	activations *memActivationStore
	posStore    *memPositionStore
	eventStore  *memEventStore
	escrow      *fakeEscrow
	oracle      *fakeOracle

	markets    *MarketService
	liquidity  *LiquidityService
	quotes     *QuoteService
	positions  *PositionService
	settlement *SettlementService
	admin      *AdminService
}

func newEngine(t *testing.T) *engine {
	t.Helper()
	return buildEngine(t, staticWallets{id: houseWallet})
}

func newEngineNoWallet(t *testing.T) *engine {
	t.Helper()
	return buildEngine(t, staticWallets{})
}

func buildEngine(t *testing.T, wallets staticWallets) *engine {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	notifier := notify.NewNotifier(nil, nil, logger)
	metrics := NewMetrics()
	cfg := config.Defaults().Engine

	e := &engine{
		cfg:         cfg,
		marketStore: newMemMarketStore(),
		activations: newMemActivationStore(),
		posStore:    newMemPositionStore(),
		eventStore:  &memEventStore{},
		escrow:      newFakeEscrow(),
		oracle:      &fakeOracle{},
	}

	e.markets = NewMarketService(e.marketStore, e.activations, e.oracle, cfg, 100, metrics, logger)
	e.liquidity = NewLiquidityService(e.posStore, cfg.ScanLimit)
	e.quotes = NewQuoteService(e.markets, e.liquidity, metrics, logger)
	e.positions = NewPositionService(
		e.posStore, e.quotes, e.liquidity, e.escrow, wallets,
		e.eventStore, nopBus{}, nil, notifier, metrics, cfg.MaxOpenPositions, logger,
	)
	e.settlement = NewSettlementService(
		e.posStore, e.marketStore, e.escrow, wallets,
		e.eventStore, nopBus{}, notifier, metrics, cfg.ScanLimit, logger,
	)
	e.admin = NewAdminService(e.markets, e.liquidity, e.eventStore, metrics, 100, 24*time.Hour)
	return e
}

// openMarket seeds an open oracle market and refreshes the staleness clock by
// syncing it through the fake feed.
func (e *engine) openMarket(t *testing.T, id string, yesPrice float64) domain.Market {
	t.Helper()
	m := domain.Market{
		ID:           id,
		Slug:         id,
		Question:     "Will it happen?",
		CloseAt:      time.Now().Add(time.Hour),
		Status:       domain.MarketStatusOpen,
		OracleSource: "polymarket",
		YesPrice:     yesPrice,
		NoPrice:      domain.Round6(1 - yesPrice),
	}
	e.oracle.markets = []domain.Market{m}
	if _, err := e.markets.SyncFromOracle(context.Background()); err != nil {
		t.Fatalf("sync: %v", err)
	}
	return m
}

// activate writes an operator activation with engine defaults.
func (e *engine) activate(t *testing.T, marketID string) {
	t.Helper()
	err := e.markets.ActivateMarket(context.Background(), domain.MarketActivation{
		MarketID:       marketID,
		Active:         true,
		MaxWager:       e.cfg.DefaultMaxWager,
		HouseSpreadBps: e.cfg.DefaultSpreadBps,
		UpdatedBy:      "admin:test",
	})
	if err != nil {
		t.Fatalf("activate: %v", err)
	}
}

// seedPosition inserts an open position directly into the store.
func (e *engine) seedPosition(t *testing.T, id, marketID, playerID string, side domain.Side, stake, price float64) domain.MarketPosition {
	t.Helper()
	p := domain.MarketPosition{
		ID:          id,
		MarketID:    marketID,
		PlayerID:    playerID,
		WalletID:    "0x" + playerID,
		Side:        side,
		Stake:       stake,
		Price:       price,
		Shares:      domain.Round6(stake / price),
		EscrowBetID: EscrowBetID(marketID, id),
		Status:      domain.PositionStatusOpen,
		CreatedAt:   time.Now(),
	}
	if err := e.posStore.Create(context.Background(), p); err != nil {
		t.Fatalf("seed position: %v", err)
	}
	return p
}

// seedTerminalMarket inserts a market already in a terminal state.
func (e *engine) seedTerminalMarket(t *testing.T, id string, status domain.MarketStatus, outcome *domain.Side) {
	t.Helper()
	err := e.marketStore.Upsert(context.Background(), domain.Market{
		ID:      id,
		Slug:    id,
		CloseAt: time.Now().Add(-time.Hour),
		Status:  status,
		Outcome: outcome,
	})
	if err != nil {
		t.Fatalf("seed market: %v", err)
	}
}

func sidePtr(s domain.Side) *domain.Side {
	return &s
}
