package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sidebook/sidebook/internal/domain"
)

// MarketStore implements domain.MarketStore using PostgreSQL.
type MarketStore struct {
	pool *pgxpool.Pool
}

// NewMarketStore creates a new MarketStore backed by the given connection pool.
func NewMarketStore(pool *pgxpool.Pool) *MarketStore {
	return &MarketStore{pool: pool}
}

const marketUpsert = `
	INSERT INTO markets (
		id, slug, question, category, close_at, resolve_at,
		status, oracle_source, oracle_market_id, outcome,
		yes_price, no_price, raw, created_at, updated_at
	) VALUES (
		$1, $2, $3, $4, $5, $6,
		$7, $8, $9, $10,
		$11, $12, $13, NOW(), NOW()
	)
	ON CONFLICT (id) DO UPDATE SET
		slug             = EXCLUDED.slug,
		question         = EXCLUDED.question,
		category         = EXCLUDED.category,
		close_at         = EXCLUDED.close_at,
		resolve_at       = EXCLUDED.resolve_at,
		status           = EXCLUDED.status,
		oracle_source    = EXCLUDED.oracle_source,
		oracle_market_id = EXCLUDED.oracle_market_id,
		outcome          = EXCLUDED.outcome,
		yes_price        = EXCLUDED.yes_price,
		no_price         = EXCLUDED.no_price,
		raw              = EXCLUDED.raw,
		updated_at       = NOW()`

// Upsert inserts or updates a single market.
func (s *MarketStore) Upsert(ctx context.Context, m domain.Market) error {
	_, err := s.pool.Exec(ctx, marketUpsert, marketArgs(m)...)
	if err != nil {
		return fmt.Errorf("postgres: upsert market %s: %w", m.ID, err)
	}
	return nil
}

// UpsertBatch inserts or updates multiple markets in a single batch.
func (s *MarketStore) UpsertBatch(ctx context.Context, markets []domain.Market) error {
	if len(markets) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, m := range markets {
		batch.Queue(marketUpsert, marketArgs(m)...)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := range markets {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: upsert market batch item %d: %w", i, err)
		}
	}
	return nil
}

func marketArgs(m domain.Market) []any {
	var outcome *string
	if m.Outcome != nil {
		o := string(*m.Outcome)
		outcome = &o
	}
	return []any{
		m.ID, m.Slug, m.Question, m.Category, m.CloseAt, m.ResolveAt,
		string(m.Status), m.OracleSource, m.OracleMarketID, outcome,
		m.YesPrice, m.NoPrice, []byte(m.Raw),
	}
}

const marketCols = `id, slug, question, category, close_at, resolve_at,
	status, oracle_source, oracle_market_id, outcome,
	yes_price, no_price, raw, created_at, updated_at`

func scanMarket(row pgx.Row) (domain.Market, error) {
	var m domain.Market
	var status string
	var outcome *string
	var raw []byte
	err := row.Scan(
		&m.ID, &m.Slug, &m.Question, &m.Category, &m.CloseAt, &m.ResolveAt,
		&status, &m.OracleSource, &m.OracleMarketID, &outcome,
		&m.YesPrice, &m.NoPrice, &raw, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return domain.Market{}, err
	}
	m.Status = domain.MarketStatus(status)
	if outcome != nil {
		side := domain.Side(*outcome)
		m.Outcome = &side
	}
	m.Raw = raw
	return m, nil
}

// GetByID retrieves a market by its primary key.
func (s *MarketStore) GetByID(ctx context.Context, id string) (domain.Market, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+marketCols+` FROM markets WHERE id = $1`, id)
	m, err := scanMarket(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Market{}, domain.ErrNotFound
		}
		return domain.Market{}, fmt.Errorf("postgres: get market %s: %w", id, err)
	}
	return m, nil
}

// List returns markets most recently updated first, bounded by limit.
func (s *MarketStore) List(ctx context.Context, limit int) ([]domain.Market, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+marketCols+` FROM markets ORDER BY updated_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list markets: %w", err)
	}
	defer rows.Close()

	var markets []domain.Market
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan market: %w", err)
		}
		markets = append(markets, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list markets rows: %w", err)
	}
	return markets, nil
}

// Compile-time interface check.
var _ domain.MarketStore = (*MarketStore)(nil)
