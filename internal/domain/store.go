package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination for list queries.
type ListOpts struct {
	Limit  int
	Offset int
}

// TradeStore persists the append-only trade log.
type TradeStore interface {
	Append(ctx context.Context, trade Trade) error
	ListRecent(ctx context.Context, limit int) ([]Trade, error)
	ListBySymbol(ctx context.Context, symbol string, opts ListOpts) ([]Trade, error)
	// ListBefore returns all trades with a timestamp strictly before the
	// cutoff; used by the archiver.
	ListBefore(ctx context.Context, before time.Time) ([]Trade, error)
}

// SnapshotStore persists point-in-time position snapshots so the ledger can
// survive a restart. Snapshots are opaque to the core: no particular on-disk
// format is required beyond round-tripping.
type SnapshotStore interface {
	Save(ctx context.Context, positions []Position) error
	Load(ctx context.Context) ([]Position, error)
}
