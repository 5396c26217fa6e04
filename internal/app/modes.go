package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sidebook/sidebook/internal/domain"
	"github.com/sidebook/sidebook/internal/server"
	"github.com/sidebook/sidebook/internal/server/handler"
	"github.com/sidebook/sidebook/internal/service"
)

// settlementLockKey guards the periodic settlement pass across processes.
const settlementLockKey = "settlement_pass"

// services bundles the constructed business services shared by the modes.
type services struct {
	metrics    *service.Metrics
	markets    *service.MarketService
	liquidity  *service.LiquidityService
	quotes     *service.QuoteService
	positions  *service.PositionService
	settlement *service.SettlementService
	admin      *service.AdminService
}

func (a *App) buildServices(deps *Dependencies) *services {
	engineCfg := a.cfg.Engine
	metrics := service.NewMetrics()

	markets := service.NewMarketService(
		deps.MarketStore, deps.ActivationStore, deps.Oracle,
		engineCfg, a.cfg.Oracle.SyncLimit, metrics, a.logger,
	)
	liquidity := service.NewLiquidityService(deps.PositionStore, engineCfg.ScanLimit)
	quotes := service.NewQuoteService(markets, liquidity, metrics, a.logger)
	positions := service.NewPositionService(
		deps.PositionStore, quotes, liquidity, deps.Escrow, deps.Wallets,
		deps.EventStore, deps.SignalBus, deps.Hedge, deps.Notifier,
		metrics, engineCfg.MaxOpenPositions, a.logger,
	)
	settlement := service.NewSettlementService(
		deps.PositionStore, deps.MarketStore, deps.Escrow, deps.Wallets,
		deps.EventStore, deps.SignalBus, deps.Notifier,
		metrics, engineCfg.ScanLimit, a.logger,
	)
	admin := service.NewAdminService(markets, liquidity, deps.EventStore, metrics, engineCfg.ScanLimit, 24*time.Hour)

	return &services{
		metrics:    metrics,
		markets:    markets,
		liquidity:  liquidity,
		quotes:     quotes,
		positions:  positions,
		settlement: settlement,
		admin:      admin,
	}
}

// ServerMode runs the HTTP API plus the oracle sync loop that keeps prices
// fresh and a market active.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies, svcs *services) error {
	a.logger.InfoContext(ctx, "starting server mode")

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.runServer(ctx, svcs) })
	g.Go(func() error { return a.syncLoop(ctx, svcs) })
	return g.Wait()
}

// SettleMode runs only the settlement scheduler (and the retention archiver
// when enabled), for deployments that separate money movement from the
// player-facing API.
func (a *App) SettleMode(ctx context.Context, deps *Dependencies, svcs *services) error {
	a.logger.InfoContext(ctx, "starting settle mode")

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.settleLoop(ctx, deps, svcs) })
	if deps.Archiver != nil {
		g.Go(func() error { return a.archiveLoop(ctx, deps) })
	}
	return g.Wait()
}

// FullMode runs everything in one process.
func (a *App) FullMode(ctx context.Context, deps *Dependencies, svcs *services) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.runServer(ctx, svcs) })
	g.Go(func() error { return a.syncLoop(ctx, svcs) })
	g.Go(func() error { return a.settleLoop(ctx, deps, svcs) })
	if deps.Archiver != nil {
		g.Go(func() error { return a.archiveLoop(ctx, deps) })
	}
	return g.Wait()
}

// runServer starts the HTTP API and shuts it down when the context ends.
func (a *App) runServer(ctx context.Context, svcs *services) error {
	if !a.cfg.Server.Enabled {
		<-ctx.Done()
		return ctx.Err()
	}

	srv := server.NewServer(
		server.Config{
			Port:        a.cfg.Server.Port,
			CORSOrigins: a.cfg.Server.CORSOrigins,
			APIKey:      a.cfg.Server.APIKey,
		},
		server.Handlers{
			Health:    handler.NewHealthHandler(),
			Markets:   handler.NewMarketHandler(svcs.markets, a.logger),
			Positions: handler.NewPositionHandler(svcs.quotes, svcs.positions, a.logger),
			Admin:     handler.NewAdminHandler(svcs.admin, svcs.settlement, a.logger),
		},
		a.logger,
	)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// syncLoop keeps oracle prices inside the staleness window and at least one
// market active. Failures are logged and retried on the next tick; the feed
// being down must not take the process with it.
func (a *App) syncLoop(ctx context.Context, svcs *services) error {
	interval := a.cfg.Engine.OracleStaleAfter.Duration / 3
	if interval < 15*time.Second {
		interval = 15 * time.Second
	}

	// Prime immediately so the first quotes do not wait a full tick.
	a.syncOnce(ctx, svcs)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			a.syncOnce(ctx, svcs)
		}
	}
}

func (a *App) syncOnce(ctx context.Context, svcs *services) {
	if _, err := svcs.markets.SyncAndAutoActivate(ctx); err != nil {
		a.logger.WarnContext(ctx, "sync loop: sync and activate failed",
			slog.String("error", err.Error()),
		)
	}
}

// settleLoop runs the settlement pass on a fixed interval, guarded by a
// best-effort distributed lock so two processes do not interleave passes.
func (a *App) settleLoop(ctx context.Context, deps *Dependencies, svcs *services) error {
	interval := a.cfg.Engine.SettleInterval.Duration
	if interval <= 0 {
		interval = 30 * time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			a.settleOnce(ctx, deps, svcs, interval)
		}
	}
}

func (a *App) settleOnce(ctx context.Context, deps *Dependencies, svcs *services, interval time.Duration) {
	unlock, err := deps.LockManager.Acquire(ctx, settlementLockKey, 2*interval)
	if err != nil {
		if errors.Is(err, domain.ErrLockHeld) {
			a.logger.DebugContext(ctx, "settle loop: pass already running elsewhere")
			return
		}
		a.logger.WarnContext(ctx, "settle loop: lock acquire failed",
			slog.String("error", err.Error()),
		)
		return
	}
	defer unlock()

	if _, err := svcs.settlement.SettleResolvedMarkets(ctx); err != nil {
		a.logger.ErrorContext(ctx, "settle loop: pass failed",
			slog.String("error", err.Error()),
		)
	}
}

// archiveLoop uploads aged settled positions and interaction events to
// object storage once a day.
func (a *App) archiveLoop(ctx context.Context, deps *Dependencies) error {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			cutoff := time.Now().AddDate(0, 0, -a.cfg.Archive.RetentionDays)

			if n, err := deps.Archiver.ArchiveSettledPositions(ctx, cutoff); err != nil {
				a.logger.ErrorContext(ctx, "archive loop: positions failed",
					slog.String("error", err.Error()),
				)
			} else if n > 0 {
				a.logger.InfoContext(ctx, "archive loop: positions archived",
					slog.Int64("count", n),
				)
			}

			if n, err := deps.Archiver.ArchiveInteractionEvents(ctx, cutoff); err != nil {
				a.logger.ErrorContext(ctx, "archive loop: events failed",
					slog.String("error", err.Error()),
				)
			} else if n > 0 {
				a.logger.InfoContext(ctx, "archive loop: events archived",
					slog.Int64("count", n),
				)
			}
		}
	}
}
