package domain

import (
	"context"
	"time"
)

// MarketStore persists market records. All writes are upserts keyed by ID.
type MarketStore interface {
	Upsert(ctx context.Context, market Market) error
	UpsertBatch(ctx context.Context, markets []Market) error
	GetByID(ctx context.Context, id string) (Market, error)
	List(ctx context.Context, limit int) ([]Market, error)
}

// ActivationStore persists per-market activation overrides.
type ActivationStore interface {
	Set(ctx context.Context, activation MarketActivation) error
	List(ctx context.Context, limit int) ([]MarketActivation, error)
}

// PositionStore persists market positions. Settle is the only mutation after
// Create; rows are never deleted.
type PositionStore interface {
	Create(ctx context.Context, pos MarketPosition) error
	GetByID(ctx context.Context, id string) (MarketPosition, error)
	ListOpen(ctx context.Context, limit int) ([]MarketPosition, error)
	ListByPlayer(ctx context.Context, playerID string, limit int) ([]MarketPosition, error)
	Settle(ctx context.Context, settlement PositionSettlement) error
}

// InteractionEventStore persists the append-only telemetry funnel.
type InteractionEventStore interface {
	Insert(ctx context.Context, event InteractionEvent) error
	CountsSince(ctx context.Context, window time.Duration) ([]InteractionCount, error)
}

// SignalBus fans engine events out to external consumers (dashboards,
// feed renderers). Delivery is best-effort; callers log and continue on
// failure.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	StreamAppend(ctx context.Context, stream string, payload []byte) error
}

// LockManager provides best-effort cross-process mutual exclusion. The
// settlement pass takes a lock to avoid interleaving with another process,
// but its correctness never depends on holding it.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}
