package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cryptostalker/cryptostalker/internal/domain"
)

// TradeArchiveStore provides read access to trades for archival. The
// archiver only requires the query method it actually calls, not the full
// trade store interface.
type TradeArchiveStore interface {
	// ListBefore returns all trades with a timestamp strictly before the
	// given cutoff time.
	ListBefore(ctx context.Context, before time.Time) ([]domain.Trade, error)
}

// Archiver uploads cold trade history and session results to object
// storage.
//
// Deletion of archived records from the primary store is intentionally NOT
// performed here; that is a separate, explicit step to be executed after the
// archive has been verified.
type Archiver struct {
	writer domain.BlobWriter
	trades TradeArchiveStore
}

// NewArchiver creates an Archiver.
func NewArchiver(writer domain.BlobWriter, trades TradeArchiveStore) *Archiver {
	return &Archiver{
		writer: writer,
		trades: trades,
	}
}

// ArchiveTrades queries all trades before the cutoff, serializes them to
// JSONL, and uploads the file at archive/trades/YYYY-MM.jsonl. It returns
// the number of records archived.
func (a *Archiver) ArchiveTrades(ctx context.Context, before time.Time) (int64, error) {
	trades, err := a.trades.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive trades query: %w", err)
	}
	if len(trades) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(trades)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive trades marshal: %w", err)
	}

	path := archivePath("trades", before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive trades upload: %w", err)
	}

	return int64(len(trades)), nil
}

// SessionResults is the exported end-of-session report: open positions,
// rolling statistics, and the trades that produced them.
type SessionResults struct {
	GeneratedAt time.Time           `json:"generated_at"`
	Positions   []domain.Position   `json:"positions"`
	Stats       domain.TradingStats `json:"stats"`
	Trades      []domain.Trade      `json:"trades"`
}

// ExportResults uploads a point-in-time results report at
// results/YYYY-MM-DD/HHMMSS.json and returns the object path.
func (a *Archiver) ExportResults(ctx context.Context, results SessionResults) (string, error) {
	if results.GeneratedAt.IsZero() {
		results.GeneratedAt = time.Now().UTC()
	}

	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return "", fmt.Errorf("s3blob: marshal results: %w", err)
	}

	path := fmt.Sprintf("results/%s/%s.json",
		results.GeneratedAt.Format("2006-01-02"),
		results.GeneratedAt.Format("150405"),
	)
	if err := a.writer.Put(ctx, path, bytes.NewReader(data), "application/json"); err != nil {
		return "", fmt.Errorf("s3blob: export results upload: %w", err)
	}

	return path, nil
}

// archivePath builds the object key for an archive file, partitioned by the
// year-month of the cutoff time.
//
//	archive/trades/2026-08.jsonl
func archivePath(kind string, before time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, before.Format("2006-01"))
}

// marshalJSONL serialises a slice of values as newline-delimited JSON.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
