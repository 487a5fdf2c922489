package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cryptostalker/cryptostalker/internal/domain"
)

// SnapshotStore implements domain.SnapshotStore using PostgreSQL. Each open
// position is stored as one JSONB row keyed by symbol; Save replaces the
// whole set so closed positions disappear from the snapshot.
type SnapshotStore struct {
	pool *pgxpool.Pool
}

// NewSnapshotStore creates a SnapshotStore backed by the given pool.
func NewSnapshotStore(pool *pgxpool.Pool) *SnapshotStore {
	return &SnapshotStore{pool: pool}
}

// Save replaces the stored snapshot with the given positions atomically.
func (s *SnapshotStore) Save(ctx context.Context, positions []domain.Position) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin snapshot tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM position_snapshots`); err != nil {
		return fmt.Errorf("postgres: clear snapshot: %w", err)
	}

	const query = `
		INSERT INTO position_snapshots (symbol, data, updated_at)
		VALUES ($1, $2, NOW())`
	for _, p := range positions {
		data, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("postgres: marshal position %s: %w", p.Symbol, err)
		}
		if _, err := tx.Exec(ctx, query, p.Symbol, data); err != nil {
			return fmt.Errorf("postgres: save position %s: %w", p.Symbol, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit snapshot: %w", err)
	}
	return nil
}

// Load returns the most recently saved positions.
func (s *SnapshotStore) Load(ctx context.Context) ([]domain.Position, error) {
	rows, err := s.pool.Query(ctx, `SELECT data FROM position_snapshots`)
	if err != nil {
		return nil, fmt.Errorf("postgres: load snapshot: %w", err)
	}
	defer rows.Close()

	var positions []domain.Position
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("postgres: scan snapshot row: %w", err)
		}
		var p domain.Position
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("postgres: unmarshal position: %w", err)
		}
		positions = append(positions, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: load snapshot rows: %w", err)
	}
	return positions, nil
}

// Compile-time interface check.
var _ domain.SnapshotStore = (*SnapshotStore)(nil)
