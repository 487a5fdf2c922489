package domain

import (
	"context"
	"io"
	"time"
)

// PriceCache provides shared access to the latest quotes, keyed by symbol.
// The stored source tag preserves the live/simulated distinction across
// processes.
type PriceCache interface {
	SetPrice(ctx context.Context, symbol string, price float64, source string, ts time.Time) error
	GetPrice(ctx context.Context, symbol string) (price float64, source string, ts time.Time, err error)
}

// RateLimiter gates live order placement.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// SignalBus provides pub/sub for trade and position events.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

// BlobWriter uploads opaque objects to durable storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}
