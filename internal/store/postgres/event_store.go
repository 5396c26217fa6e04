package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sidebook/sidebook/internal/domain"
)

// InteractionEventStore implements domain.InteractionEventStore using
// PostgreSQL. Rows are append-only.
type InteractionEventStore struct {
	pool *pgxpool.Pool
}

// NewInteractionEventStore creates an event store backed by the given pool.
func NewInteractionEventStore(pool *pgxpool.Pool) *InteractionEventStore {
	return &InteractionEventStore{pool: pool}
}

// Insert appends one interaction event. The detail map is stored as JSONB.
func (s *InteractionEventStore) Insert(ctx context.Context, e domain.InteractionEvent) error {
	detailJSON, err := json.Marshal(e.Detail)
	if err != nil {
		return fmt.Errorf("postgres: marshal event detail: %w", err)
	}

	const query = `
		INSERT INTO market_interaction_events (id, player_id, market_id, kind, detail)
		VALUES ($1, $2, $3, $4, $5)`
	_, err = s.pool.Exec(ctx, query, e.ID, e.PlayerID, e.MarketID, e.Kind, detailJSON)
	if err != nil {
		return fmt.Errorf("postgres: insert interaction event %s: %w", e.Kind, err)
	}
	return nil
}

// CountsSince aggregates events by kind over the trailing window.
func (s *InteractionEventStore) CountsSince(ctx context.Context, window time.Duration) ([]domain.InteractionCount, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT kind, COUNT(*)
		FROM market_interaction_events
		WHERE created_at >= NOW() - make_interval(secs => $1)
		GROUP BY kind
		ORDER BY COUNT(*) DESC`, window.Seconds())
	if err != nil {
		return nil, fmt.Errorf("postgres: interaction counts: %w", err)
	}
	defer rows.Close()

	var counts []domain.InteractionCount
	for rows.Next() {
		var c domain.InteractionCount
		if err := rows.Scan(&c.Kind, &c.Count); err != nil {
			return nil, fmt.Errorf("postgres: scan interaction count: %w", err)
		}
		counts = append(counts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: interaction counts rows: %w", err)
	}
	return counts, nil
}

// ListBefore returns events created strictly before the cutoff. Used by the
// retention archiver.
func (s *InteractionEventStore) ListBefore(ctx context.Context, before time.Time, limit int) ([]domain.InteractionEvent, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, player_id, market_id, kind, detail, created_at
		FROM market_interaction_events
		WHERE created_at < $1
		ORDER BY created_at ASC
		LIMIT $2`, before, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list events before %s: %w", before, err)
	}
	defer rows.Close()

	var events []domain.InteractionEvent
	for rows.Next() {
		var e domain.InteractionEvent
		var detailJSON []byte
		if err := rows.Scan(&e.ID, &e.PlayerID, &e.MarketID, &e.Kind, &detailJSON, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan interaction event: %w", err)
		}
		if detailJSON != nil {
			if err := json.Unmarshal(detailJSON, &e.Detail); err != nil {
				return nil, fmt.Errorf("postgres: unmarshal event detail: %w", err)
			}
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list events rows: %w", err)
	}
	return events, nil
}

// Compile-time interface check.
var _ domain.InteractionEventStore = (*InteractionEventStore)(nil)
