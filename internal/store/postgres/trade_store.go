package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cryptostalker/cryptostalker/internal/domain"
)

// TradeStore implements domain.TradeStore using PostgreSQL.
type TradeStore struct {
	pool *pgxpool.Pool
}

// NewTradeStore creates a TradeStore backed by the given connection pool.
func NewTradeStore(pool *pgxpool.Pool) *TradeStore {
	return &TradeStore{pool: pool}
}

const tradeSelectCols = `id, position_id, symbol, side, amount, price,
	timestamp, exchange, order_id, is_auto, is_simulated, quote_source`

func scanTradeRows(rows pgx.Rows) ([]domain.Trade, error) {
	var trades []domain.Trade
	for rows.Next() {
		var t domain.Trade
		if err := rows.Scan(
			&t.ID, &t.PositionID, &t.Symbol, &t.Side, &t.Amount, &t.Price,
			&t.Timestamp, &t.Exchange, &t.OrderID, &t.IsAuto, &t.IsSimulated,
			&t.QuoteSource,
		); err != nil {
			return nil, err
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// Append persists one executed trade. Re-delivery of an already persisted
// trade ID is silently skipped via ON CONFLICT DO NOTHING, since trades are
// immutable once written.
func (s *TradeStore) Append(ctx context.Context, t domain.Trade) error {
	const query = `
		INSERT INTO trades (
			id, position_id, symbol, side, amount, price,
			timestamp, exchange, order_id, is_auto, is_simulated, quote_source
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10, $11, $12
		) ON CONFLICT (id) DO NOTHING`

	_, err := s.pool.Exec(ctx, query,
		t.ID, t.PositionID, t.Symbol, string(t.Side), t.Amount, t.Price,
		t.Timestamp, t.Exchange, t.OrderID, t.IsAuto, t.IsSimulated,
		t.QuoteSource,
	)
	if err != nil {
		return fmt.Errorf("postgres: append trade %s: %w", t.ID, err)
	}
	return nil
}

// ListRecent returns the most recent trades, newest first.
func (s *TradeStore) ListRecent(ctx context.Context, limit int) ([]domain.Trade, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT ` + tradeSelectCols + ` FROM trades ORDER BY timestamp DESC LIMIT $1`
	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list recent trades: %w", err)
	}
	defer rows.Close()

	trades, err := scanTradeRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan recent trades: %w", err)
	}
	return trades, nil
}

// ListBySymbol returns trades for one symbol with pagination, newest first.
func (s *TradeStore) ListBySymbol(ctx context.Context, symbol string, opts domain.ListOpts) ([]domain.Trade, error) {
	query := `SELECT ` + tradeSelectCols + ` FROM trades WHERE symbol = $1 ORDER BY timestamp DESC`
	args := []any{symbol}
	argIdx := 2

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list trades by symbol: %w", err)
	}
	defer rows.Close()

	trades, err := scanTradeRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan trades by symbol: %w", err)
	}
	return trades, nil
}

// ListBefore returns all trades with a timestamp strictly before the cutoff,
// oldest first (for archiving).
func (s *TradeStore) ListBefore(ctx context.Context, before time.Time) ([]domain.Trade, error) {
	query := `SELECT ` + tradeSelectCols + ` FROM trades WHERE timestamp < $1 ORDER BY timestamp ASC`
	rows, err := s.pool.Query(ctx, query, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list trades before: %w", err)
	}
	defer rows.Close()
	return scanTradeRows(rows)
}

// DeleteBefore deletes all trades with a timestamp before the cutoff and
// returns the number deleted. Called by the archiver after a successful
// upload.
func (s *TradeStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM trades WHERE timestamp < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete trades before: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Compile-time interface check.
var _ domain.TradeStore = (*TradeStore)(nil)
