// Package oracle resolves current prices. It prefers a live quote source and
// degrades to a deterministic per-symbol random walk when the live feed is
// unavailable, tagging every quote with its origin so a simulated fallback is
// never mistaken for market data.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/cryptostalker/cryptostalker/internal/domain"
)

// QuoteSource identifies where a price came from.
type QuoteSource string

const (
	QuoteSourceLive      QuoteSource = "live"
	QuoteSourceSimulated QuoteSource = "simulated"
)

// Quote is one resolved price.
type Quote struct {
	Symbol string
	Price  float64
	Source QuoteSource
	At     time.Time
}

// LiveSource is the external price query API. Implementations surface
// domain.ErrRateLimited on an HTTP 429-equivalent so the oracle can back off.
type LiveSource interface {
	GetPrice(ctx context.Context, symbol string) (float64, error)
}

// Config holds the oracle's retry and simulation parameters.
type Config struct {
	// MaxRetries bounds attempts against the live source before falling back
	// to the simulated walk.
	MaxRetries int
	// RetryDelay is the fixed delay between attempts.
	RetryDelay time.Duration
	// Volatility is the simulated walk's per-step percent volatility.
	Volatility float64
	// TrendShiftChance is the per-call probability that the walk re-rolls
	// its trend, keeping the path from running away monotonically.
	TrendShiftChance float64
}

func (c Config) withDefaults() Config {
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 500 * time.Millisecond
	}
	if c.Volatility <= 0 {
		c.Volatility = 2
	}
	if c.TrendShiftChance <= 0 {
		c.TrendShiftChance = 0.15
	}
	return c
}

// Oracle resolves prices for symbols. It is safe for concurrent use.
type Oracle struct {
	source LiveSource
	cache  domain.PriceCache
	cfg    Config
	logger *slog.Logger

	mu    sync.Mutex
	walks map[string]*walkState
	rng   *rand.Rand

	now func() time.Time
}

// New creates an Oracle. source and cache may be nil: without a source every
// quote is simulated, and without a cache quotes are not shared across
// processes. The seed makes the simulated walk reproducible.
func New(source LiveSource, cache domain.PriceCache, cfg Config, seed int64, logger *slog.Logger) *Oracle {
	return &Oracle{
		source: source,
		cache:  cache,
		cfg:    cfg.withDefaults(),
		logger: logger.With(slog.String("component", "oracle")),
		walks:  make(map[string]*walkState),
		rng:    rand.New(rand.NewSource(seed)),
		now:    time.Now,
	}
}

// GetPrice resolves a current price for symbol. anchor, when positive, seeds
// the simulated walk if the symbol has never been priced before; pass the
// last known price so the fallback stays anchored to reality. The returned
// Quote's Source tells the caller whether a live quote was used.
func (o *Oracle) GetPrice(ctx context.Context, symbol string, anchor float64) (Quote, error) {
	if o.source != nil {
		price, err := o.fetchLive(ctx, symbol)
		if err == nil {
			o.observeLive(ctx, symbol, price)
			return Quote{Symbol: symbol, Price: price, Source: QuoteSourceLive, At: o.now()}, nil
		}
		if ctx.Err() != nil {
			return Quote{}, fmt.Errorf("oracle: get price %s: %w", symbol, ctx.Err())
		}
		o.logger.Warn("live quote failed, using simulated walk",
			slog.String("symbol", symbol),
			slog.String("error", err.Error()),
		)
	}

	price, err := o.simulate(ctx, symbol, anchor)
	if err != nil {
		return Quote{}, err
	}
	return Quote{Symbol: symbol, Price: price, Source: QuoteSourceSimulated, At: o.now()}, nil
}

// fetchLive tries the live source with a fixed-delay bounded retry. Rate
// limiting and transient failures are retried; context cancellation is not.
func (o *Oracle) fetchLive(ctx context.Context, symbol string) (float64, error) {
	op := func() (float64, error) {
		price, err := o.source.GetPrice(ctx, symbol)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return 0, backoff.Permanent(err)
			}
			return 0, err
		}
		if price <= 0 {
			return 0, fmt.Errorf("non-positive quote %v: %w", price, domain.ErrInvalidPrice)
		}
		return price, nil
	}

	return backoff.Retry(ctx, op,
		backoff.WithBackOff(backoff.NewConstantBackOff(o.cfg.RetryDelay)),
		backoff.WithMaxTries(uint(o.cfg.MaxRetries)),
	)
}

// observeLive records a successful live quote: the shared cache is updated
// and the symbol's walk state is re-anchored so a later fallback continues
// from the last real price.
func (o *Oracle) observeLive(ctx context.Context, symbol string, price float64) {
	o.mu.Lock()
	st, ok := o.walks[symbol]
	if !ok {
		st = o.newWalk(price)
		o.walks[symbol] = st
	} else {
		st.lastPrice = price
	}
	o.mu.Unlock()

	if o.cache != nil {
		if err := o.cache.SetPrice(ctx, symbol, price, string(QuoteSourceLive), o.now()); err != nil {
			o.logger.Warn("price cache update failed",
				slog.String("symbol", symbol),
				slog.String("error", err.Error()),
			)
		}
	}
}

// simulate advances the symbol's random walk by one step. A walk that has
// never been seeded needs an anchor: the caller's, or a cached last price.
func (o *Oracle) simulate(ctx context.Context, symbol string, anchor float64) (float64, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	st, ok := o.walks[symbol]
	if !ok {
		seedPrice := anchor
		if seedPrice <= 0 && o.cache != nil {
			if cached, _, _, err := o.cache.GetPrice(ctx, symbol); err == nil && cached > 0 {
				seedPrice = cached
			}
		}
		if seedPrice <= 0 {
			return 0, fmt.Errorf("oracle: simulate %s with no anchor: %w", symbol, domain.ErrPriceUnavailable)
		}
		st = o.newWalk(seedPrice)
		o.walks[symbol] = st
	}

	return st.step(o.rng, o.cfg.TrendShiftChance), nil
}
