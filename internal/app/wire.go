package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/sidebook/sidebook/internal/blob/s3"
	"github.com/sidebook/sidebook/internal/cache/redis"
	"github.com/sidebook/sidebook/internal/config"
	"github.com/sidebook/sidebook/internal/domain"
	"github.com/sidebook/sidebook/internal/escrow"
	"github.com/sidebook/sidebook/internal/hedge"
	"github.com/sidebook/sidebook/internal/notify"
	"github.com/sidebook/sidebook/internal/oracle"
	"github.com/sidebook/sidebook/internal/store/postgres"
	"github.com/sidebook/sidebook/internal/wallet"
)

// Dependencies bundles every concrete dependency the modes need. Wire
// constructs it; the returned cleanup function tears it down.
type Dependencies struct {
	// Stores
	MarketStore     domain.MarketStore
	ActivationStore domain.ActivationStore
	PositionStore   domain.PositionStore
	EventStore      domain.InteractionEventStore

	// Archive-only store views
	PositionArchive s3blob.PositionArchiveStore
	EventArchive    s3blob.EventArchiveStore

	// Redis
	LockManager domain.LockManager
	SignalBus   domain.SignalBus

	// External adapters
	Oracle  domain.OracleFeed
	Escrow  domain.EscrowAdapter
	Wallets domain.WalletResolver
	Hedge   domain.HedgeVenue // nil when hedging is disabled

	// Blob storage
	Archiver *s3blob.Archiver // nil when archiving is disabled

	// Notifications
	Notifier *notify.Notifier
}

// Wire constructs all concrete implementations from the configuration.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	logger := slog.Default()

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- PostgreSQL ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Database.DSN,
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		Database: cfg.Database.Database,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		SSLMode:  cfg.Database.SSLMode,
		MaxConns: cfg.Database.PoolMaxConns,
		MinConns: cfg.Database.PoolMinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Database.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	pool := pgClient.Pool()
	marketStore := postgres.NewMarketStore(pool)
	activationStore := postgres.NewActivationStore(pool)
	positionStore := postgres.NewPositionStore(pool)
	eventStore := postgres.NewInteractionEventStore(pool)

	deps.MarketStore = marketStore
	deps.ActivationStore = activationStore
	deps.PositionStore = positionStore
	deps.EventStore = eventStore
	deps.PositionArchive = positionStore
	deps.EventArchive = eventStore

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	deps.LockManager = redis.NewLockManager(redisClient)
	deps.SignalBus = redis.NewSignalBus(redisClient, 0)

	// --- External adapters ---
	deps.Oracle = oracle.NewClient(cfg.Oracle.BaseURL, cfg.Oracle.Source)
	deps.Escrow = escrow.NewClient(cfg.Escrow.BaseURL, cfg.Escrow.APIKey)

	resolver, err := wallet.NewResolver(cfg.House.WalletID, cfg.House.PrivateKey)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: wallet: %w", err)
	}
	deps.Wallets = resolver

	if cfg.Hedge.Enabled {
		deps.Hedge = hedge.NewClient(cfg.Hedge.BaseURL, cfg.Hedge.APIKey)
	}

	// --- S3 retention archive ---
	if cfg.Archive.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.Archive.Endpoint,
			Region:         cfg.Archive.Region,
			Bucket:         cfg.Archive.Bucket,
			AccessKey:      cfg.Archive.AccessKey,
			SecretKey:      cfg.Archive.SecretKey,
			ForcePathStyle: cfg.Archive.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		deps.Archiver = s3blob.NewArchiver(
			s3blob.NewWriter(s3Client),
			deps.PositionArchive,
			deps.EventArchive,
			0,
		)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}
