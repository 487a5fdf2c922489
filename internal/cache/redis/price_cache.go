package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cryptostalker/cryptostalker/internal/domain"
)

// PriceCache implements domain.PriceCache using Redis hashes. Each symbol's
// quote is stored at "price:{symbol}" with fields "price", "source", and
// "ts" (Unix nanoseconds), so the live/simulated provenance survives the
// cache round trip.
type PriceCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewPriceCache creates a PriceCache backed by the given Client. ttl bounds
// quote staleness; <= 0 means quotes never expire.
func NewPriceCache(c *Client, ttl time.Duration) *PriceCache {
	return &PriceCache{rdb: c.Underlying(), ttl: ttl}
}

func priceKey(symbol string) string {
	return "price:" + symbol
}

// SetPrice stores the latest quote for a symbol.
func (pc *PriceCache) SetPrice(ctx context.Context, symbol string, price float64, source string, ts time.Time) error {
	key := priceKey(symbol)
	fields := map[string]interface{}{
		"price":  strconv.FormatFloat(price, 'f', -1, 64),
		"source": source,
		"ts":     strconv.FormatInt(ts.UnixNano(), 10),
	}

	pipe := pc.rdb.Pipeline()
	pipe.HSet(ctx, key, fields)
	if pc.ttl > 0 {
		pipe.Expire(ctx, key, pc.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set price %s: %w", symbol, err)
	}
	return nil
}

// GetPrice retrieves the latest quote for a symbol. It returns
// domain.ErrNotFound when no quote is cached.
func (pc *PriceCache) GetPrice(ctx context.Context, symbol string) (float64, string, time.Time, error) {
	vals, err := pc.rdb.HGetAll(ctx, priceKey(symbol)).Result()
	if err != nil {
		return 0, "", time.Time{}, fmt.Errorf("redis: get price %s: %w", symbol, err)
	}
	if len(vals) == 0 {
		return 0, "", time.Time{}, domain.ErrNotFound
	}

	priceStr, ok := vals["price"]
	if !ok {
		return 0, "", time.Time{}, domain.ErrNotFound
	}
	price, err := strconv.ParseFloat(priceStr, 64)
	if err != nil {
		return 0, "", time.Time{}, fmt.Errorf("redis: parse price %s: %w", symbol, err)
	}

	var ts time.Time
	if tsStr, ok := vals["ts"]; ok {
		tsNano, err := strconv.ParseInt(tsStr, 10, 64)
		if err != nil {
			return 0, "", time.Time{}, fmt.Errorf("redis: parse ts %s: %w", symbol, err)
		}
		ts = time.Unix(0, tsNano)
	}

	return price, vals["source"], ts, nil
}

// GetPrices retrieves the latest prices for multiple symbols using a
// pipeline. Symbols with no cached quote are omitted from the result map.
func (pc *PriceCache) GetPrices(ctx context.Context, symbols []string) (map[string]float64, error) {
	if len(symbols) == 0 {
		return map[string]float64{}, nil
	}

	pipe := pc.rdb.Pipeline()
	cmds := make(map[string]*redis.MapStringStringCmd, len(symbols))
	for _, sym := range symbols {
		cmds[sym] = pipe.HGetAll(ctx, priceKey(sym))
	}

	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis: get prices pipeline: %w", err)
	}

	result := make(map[string]float64, len(symbols))
	for sym, cmd := range cmds {
		vals, err := cmd.Result()
		if err != nil || len(vals) == 0 {
			continue
		}
		priceStr, ok := vals["price"]
		if !ok {
			continue
		}
		price, err := strconv.ParseFloat(priceStr, 64)
		if err != nil {
			continue
		}
		result[sym] = price
	}

	return result, nil
}

// Compile-time interface check.
var _ domain.PriceCache = (*PriceCache)(nil)
