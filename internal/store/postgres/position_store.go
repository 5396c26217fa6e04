package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sidebook/sidebook/internal/domain"
)

// PositionStore implements domain.PositionStore using PostgreSQL.
type PositionStore struct {
	pool *pgxpool.Pool
}

// NewPositionStore creates a PositionStore backed by the given pool.
func NewPositionStore(pool *pgxpool.Pool) *PositionStore {
	return &PositionStore{pool: pool}
}

// Create inserts a new position row. The escrow lock must already be held;
// this is the durability step of the escrow-first ordering.
func (s *PositionStore) Create(ctx context.Context, p domain.MarketPosition) error {
	const query = `
		INSERT INTO market_positions (
			id, market_id, player_id, wallet_id, side,
			stake, price, shares, escrow_bet_id, status,
			estimated_payout_at_open, min_payout_at_open, created_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, $10,
			$11, $12, NOW()
		)`

	_, err := s.pool.Exec(ctx, query,
		p.ID, p.MarketID, p.PlayerID, p.WalletID, string(p.Side),
		p.Stake, p.Price, p.Shares, p.EscrowBetID, string(p.Status),
		p.EstimatedPayoutAtOpen, p.MinPayoutAtOpen,
	)
	if err != nil {
		return fmt.Errorf("postgres: create position %s: %w", p.ID, err)
	}
	return nil
}

const positionCols = `id, market_id, player_id, wallet_id, side,
	stake, price, shares, escrow_bet_id, status,
	payout, settlement_reason,
	estimated_payout_at_open, min_payout_at_open, created_at, settled_at`

func scanPosition(row pgx.Row) (domain.MarketPosition, error) {
	var p domain.MarketPosition
	var side, status string
	var reason *string
	err := row.Scan(
		&p.ID, &p.MarketID, &p.PlayerID, &p.WalletID, &side,
		&p.Stake, &p.Price, &p.Shares, &p.EscrowBetID, &status,
		&p.Payout, &reason,
		&p.EstimatedPayoutAtOpen, &p.MinPayoutAtOpen, &p.CreatedAt, &p.SettledAt,
	)
	if err != nil {
		return domain.MarketPosition{}, err
	}
	p.Side = domain.Side(side)
	p.Status = domain.PositionStatus(status)
	if reason != nil {
		p.SettlementReason = *reason
	}
	return p, nil
}

// GetByID retrieves a position by its primary key.
func (s *PositionStore) GetByID(ctx context.Context, id string) (domain.MarketPosition, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+positionCols+` FROM market_positions WHERE id = $1`, id)
	p, err := scanPosition(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.MarketPosition{}, domain.ErrNotFound
		}
		return domain.MarketPosition{}, fmt.Errorf("postgres: get position %s: %w", id, err)
	}
	return p, nil
}

// ListOpen returns currently-open positions, newest first, bounded by limit.
func (s *PositionStore) ListOpen(ctx context.Context, limit int) ([]domain.MarketPosition, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+positionCols+` FROM market_positions
		 WHERE status = 'open' ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list open positions: %w", err)
	}
	defer rows.Close()
	return collectPositions(rows)
}

// ListByPlayer returns a player's positions, newest first, bounded by limit.
func (s *PositionStore) ListByPlayer(ctx context.Context, playerID string, limit int) ([]domain.MarketPosition, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+positionCols+` FROM market_positions
		 WHERE player_id = $1 ORDER BY created_at DESC LIMIT $2`, playerID, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list positions for %s: %w", playerID, err)
	}
	defer rows.Close()
	return collectPositions(rows)
}

func collectPositions(rows pgx.Rows) ([]domain.MarketPosition, error) {
	var positions []domain.MarketPosition
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan position: %w", err)
		}
		positions = append(positions, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: position rows: %w", err)
	}
	return positions, nil
}

// Settle applies the terminal update to a position. The status guard makes
// the write idempotent: a position already settled is never touched again.
func (s *PositionStore) Settle(ctx context.Context, st domain.PositionSettlement) error {
	const query = `
		UPDATE market_positions
		SET status = $2, payout = $3, settlement_reason = $4, settled_at = NOW()
		WHERE id = $1 AND status = 'open'`

	tag, err := s.pool.Exec(ctx, query,
		st.PositionID, string(st.Status), st.Payout, st.Reason,
	)
	if err != nil {
		return fmt.Errorf("postgres: settle position %s: %w", st.PositionID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: settle position %s: %w", st.PositionID, domain.ErrNotFound)
	}
	return nil
}

// ListSettledBefore returns settled positions whose settlement happened
// strictly before the cutoff. Used by the retention archiver.
func (s *PositionStore) ListSettledBefore(ctx context.Context, before time.Time, limit int) ([]domain.MarketPosition, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+positionCols+` FROM market_positions
		 WHERE status <> 'open' AND settled_at < $1
		 ORDER BY settled_at ASC LIMIT $2`, before, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list settled positions before %s: %w", before, err)
	}
	defer rows.Close()
	return collectPositions(rows)
}

// Compile-time interface check.
var _ domain.PositionStore = (*PositionStore)(nil)
