package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sidebook/sidebook/internal/domain"
)

// ActivationStore implements domain.ActivationStore using PostgreSQL.
type ActivationStore struct {
	pool *pgxpool.Pool
}

// NewActivationStore creates an ActivationStore backed by the given pool.
func NewActivationStore(pool *pgxpool.Pool) *ActivationStore {
	return &ActivationStore{pool: pool}
}

// Set inserts or replaces the activation row for a market. Last writer wins.
func (s *ActivationStore) Set(ctx context.Context, a domain.MarketActivation) error {
	const query = `
		INSERT INTO market_activations (
			market_id, active, max_wager, house_spread_bps, updated_by, updated_at
		) VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (market_id) DO UPDATE SET
			active           = EXCLUDED.active,
			max_wager        = EXCLUDED.max_wager,
			house_spread_bps = EXCLUDED.house_spread_bps,
			updated_by       = EXCLUDED.updated_by,
			updated_at       = NOW()`

	_, err := s.pool.Exec(ctx, query,
		a.MarketID, a.Active, a.MaxWager, a.HouseSpreadBps, a.UpdatedBy,
	)
	if err != nil {
		return fmt.Errorf("postgres: set activation %s: %w", a.MarketID, err)
	}
	return nil
}

// List returns activation rows, bounded by limit.
func (s *ActivationStore) List(ctx context.Context, limit int) ([]domain.MarketActivation, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT market_id, active, max_wager, house_spread_bps, updated_by, updated_at
		FROM market_activations
		ORDER BY updated_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list activations: %w", err)
	}
	defer rows.Close()

	var activations []domain.MarketActivation
	for rows.Next() {
		var a domain.MarketActivation
		if err := rows.Scan(
			&a.MarketID, &a.Active, &a.MaxWager, &a.HouseSpreadBps,
			&a.UpdatedBy, &a.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan activation: %w", err)
		}
		activations = append(activations, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list activations rows: %w", err)
	}
	return activations, nil
}

// Compile-time interface check.
var _ domain.ActivationStore = (*ActivationStore)(nil)
