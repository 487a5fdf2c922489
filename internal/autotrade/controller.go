// Package autotrade runs the autonomous buy/sell decision loop. The loop is a
// small state machine: idle until a qualifying candidate appears, then
// monitoring one position until a trend-reversal heuristic triggers a
// full-balance sell.
package autotrade

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cryptostalker/cryptostalker/internal/domain"
	"github.com/cryptostalker/cryptostalker/internal/ledger"
	"github.com/cryptostalker/cryptostalker/internal/oracle"
)

// State is the controller's current phase.
type State string

const (
	StateIdle       State = "idle"
	StateMonitoring State = "monitoring"
)

// Executor places order intents. Implemented by the router.
type Executor interface {
	Execute(ctx context.Context, intent domain.OrderIntent) (domain.Trade, error)
}

// PriceSource resolves a current price. Implemented by the oracle.
type PriceSource interface {
	GetPrice(ctx context.Context, symbol string, anchor float64) (oracle.Quote, error)
}

// CandidateSource exposes the current window of newly observed symbols.
// Implemented by the feed.
type CandidateSource interface {
	Candidates() []domain.Candidate
}

// Config holds the controller's policy parameters. The defaults mirror the
// thresholds a candidate must clear to be worth a speculative buy, and the
// sell trigger is a policy parameter, not a constant.
type Config struct {
	// Interval is the poll cadence.
	Interval time.Duration
	// BuyAmount is the quote-currency budget per automatic buy.
	BuyAmount float64
	// SellThreshold is the number of consecutive strictly-decreasing marks
	// that triggers a full liquidation of the monitored position.
	SellThreshold int
	// MinMarketCap and MinVolume qualify a candidate when either is
	// exceeded.
	MinMarketCap float64
	MinVolume    float64
	// MaxListingAge bounds how recently a candidate must have listed.
	MaxListingAge time.Duration
	// Exchange is the venue automatic orders are routed to.
	Exchange string
	// Seed fixes the candidate-selection RNG; zero seeds from the clock.
	Seed int64
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = 30 * time.Second
	}
	if c.SellThreshold <= 0 {
		c.SellThreshold = 3
	}
	if c.MinMarketCap <= 0 {
		c.MinMarketCap = 1_000_000
	}
	if c.MinVolume <= 0 {
		c.MinVolume = 500_000
	}
	if c.MaxListingAge <= 0 {
		c.MaxListingAge = 24 * time.Hour
	}
	return c
}

// Status is a point-in-time view of the controller for reporting.
type Status struct {
	Enabled         bool    `json:"enabled"`
	Paused          bool    `json:"paused"`
	State           State   `json:"state"`
	MonitoredSymbol string  `json:"monitored_symbol,omitempty"`
	SellThreshold   int     `json:"sell_threshold"`
	BuyAmount       float64 `json:"buy_amount"`
}

// Controller is the auto-trading loop. It monitors at most one position at a
// time. Disabling prevents new candidate selection but never force-liquidates
// the monitored position; the sell trigger keeps working so an open position
// is not stranded.
type Controller struct {
	book       *ledger.Ledger
	exec       Executor
	prices     PriceSource
	candidates CandidateSource
	cfg        Config
	logger     *slog.Logger

	enabled atomic.Bool
	paused  atomic.Bool

	mu        sync.Mutex
	monitored string
	rng       *rand.Rand

	now func() time.Time
}

// New creates a Controller. It starts disabled; call Enable or drive it from
// config at wire-up.
func New(book *ledger.Ledger, exec Executor, prices PriceSource, candidates CandidateSource, cfg Config, logger *slog.Logger) *Controller {
	cfg = cfg.withDefaults()
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Controller{
		book:       book,
		exec:       exec,
		prices:     prices,
		candidates: candidates,
		cfg:        cfg,
		logger:     logger.With(slog.String("component", "autotrade")),
		rng:        rand.New(rand.NewSource(seed)),
		now:        time.Now,
	}
}

// Enable turns on candidate selection.
func (c *Controller) Enable() {
	if c.enabled.CompareAndSwap(false, true) {
		c.logger.Info("auto-trading enabled")
	}
}

// Disable stops new candidate selection. In-flight orders and the monitored
// position are untouched.
func (c *Controller) Disable() {
	if c.enabled.CompareAndSwap(true, false) {
		c.logger.Info("auto-trading disabled")
	}
}

// Pause suspends all ticks, including sell-trigger evaluation. In-flight
// orders are not cancelled.
func (c *Controller) Pause() { c.paused.Store(true) }

// Resume lifts a pause.
func (c *Controller) Resume() { c.paused.Store(false) }

// Paused reports whether ticks are suspended. Other polling loops consult
// this too: a pause suspends all marking, not just the auto-trade cycle.
func (c *Controller) Paused() bool { return c.paused.Load() }

// Enabled reports whether candidate selection is active.
func (c *Controller) Enabled() bool { return c.enabled.Load() }

// Monitoring returns the currently monitored symbol, if any.
func (c *Controller) Monitoring() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.monitored, c.monitored != ""
}

// Status returns the controller's current status.
func (c *Controller) Status() Status {
	sym, ok := c.Monitoring()
	st := StateIdle
	if ok {
		st = StateMonitoring
	}
	return Status{
		Enabled:         c.enabled.Load(),
		Paused:          c.paused.Load(),
		State:           st,
		MonitoredSymbol: sym,
		SellThreshold:   c.cfg.SellThreshold,
		BuyAmount:       c.cfg.BuyAmount,
	}
}

// Run drives the loop until ctx is done.
func (c *Controller) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.cfg.Interval)
	defer ticker.Stop()

	c.logger.Info("auto-trade loop started",
		slog.Duration("interval", c.cfg.Interval),
		slog.Int("sell_threshold", c.cfg.SellThreshold),
	)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			c.Tick(ctx)
		}
	}
}

// Tick runs one poll cycle. Exported so the loop is steppable in tests and
// so the server can force a cycle.
func (c *Controller) Tick(ctx context.Context) {
	if c.paused.Load() {
		return
	}

	if sym, ok := c.Monitoring(); ok {
		c.monitor(ctx, sym)
		return
	}

	if !c.enabled.Load() {
		return
	}
	c.scan(ctx)
}

// monitor marks the watched position and liquidates it once the
// consecutive-decrease counter reaches the sell threshold.
func (c *Controller) monitor(ctx context.Context, symbol string) {
	pos, err := c.book.Get(symbol)
	if err != nil {
		// Sold or removed out from under us; nothing left to watch.
		c.setMonitored("")
		return
	}

	quote, err := c.prices.GetPrice(ctx, symbol, pos.CurrentPrice)
	if err != nil {
		c.logger.WarnContext(ctx, "monitored price unavailable",
			slog.String("symbol", symbol),
			slog.String("error", err.Error()),
		)
		return
	}

	pos, err = c.book.MarkPrice(symbol, quote.Price, quote.At)
	if err != nil {
		c.setMonitored("")
		return
	}

	c.logger.Debug("monitoring tick",
		slog.String("symbol", symbol),
		slog.Float64("price", quote.Price),
		slog.Int("consecutive_decreases", pos.ConsecutiveDecreases),
	)

	if pos.ConsecutiveDecreases < c.cfg.SellThreshold {
		return
	}

	c.logger.InfoContext(ctx, "sell trigger reached",
		slog.String("symbol", symbol),
		slog.Int("consecutive_decreases", pos.ConsecutiveDecreases),
		slog.Int("threshold", c.cfg.SellThreshold),
	)

	trade, err := c.exec.Execute(ctx, domain.OrderIntent{
		Symbol:         symbol,
		Side:           domain.TradeSideSell,
		Amount:         pos.Balance,
		Exchange:       c.cfg.Exchange,
		Auto:           true,
		RequestedPrice: quote.Price,
	})
	if err != nil {
		c.logger.ErrorContext(ctx, "automatic sell failed",
			slog.String("symbol", symbol),
			slog.String("error", err.Error()),
		)
		return
	}

	c.setMonitored("")
	c.logger.InfoContext(ctx, "position liquidated",
		slog.String("symbol", symbol),
		slog.String("trade_id", trade.ID),
		slog.Float64("amount", trade.Amount),
		slog.Float64("price", trade.Price),
	)
}

// scan selects one qualifying candidate and buys it. Selection is driven by
// the seeded RNG so a fixed seed yields a reproducible pick.
func (c *Controller) scan(ctx context.Context) {
	if c.candidates == nil {
		return
	}

	qualifying := c.qualify(c.candidates.Candidates())
	if len(qualifying) == 0 {
		return
	}

	c.mu.Lock()
	pick := qualifying[c.rng.Intn(len(qualifying))]
	c.mu.Unlock()

	amount, err := c.sizeOrder(ctx, pick)
	if err != nil {
		c.logger.WarnContext(ctx, "cannot size buy",
			slog.String("symbol", pick.Symbol),
			slog.String("error", err.Error()),
		)
		return
	}

	trade, err := c.exec.Execute(ctx, domain.OrderIntent{
		Symbol:         pick.Symbol,
		Name:           pick.Name,
		Side:           domain.TradeSideBuy,
		Amount:         amount,
		Exchange:       c.cfg.Exchange,
		Auto:           true,
		RequestedPrice: pick.Price,
	})
	if err != nil {
		c.logger.ErrorContext(ctx, "automatic buy failed",
			slog.String("symbol", pick.Symbol),
			slog.String("error", err.Error()),
		)
		return
	}

	c.setMonitored(pick.Symbol)
	c.logger.InfoContext(ctx, "candidate bought",
		slog.String("symbol", pick.Symbol),
		slog.String("trade_id", trade.ID),
		slog.Float64("amount", trade.Amount),
		slog.Float64("price", trade.Price),
		slog.Float64("market_cap", pick.MarketCap),
		slog.Float64("volume_24h", pick.Volume24h),
	)
}

// qualify filters the candidate window down to symbols worth buying: listed
// recently enough, clearing the market-cap or volume bar, and not already
// held.
func (c *Controller) qualify(cands []domain.Candidate) []domain.Candidate {
	now := c.now()
	out := make([]domain.Candidate, 0, len(cands))
	for _, cand := range cands {
		if cand.Price <= 0 || cand.ListedAt.IsZero() {
			continue
		}
		if cand.Age(now) > c.cfg.MaxListingAge {
			continue
		}
		if cand.MarketCap <= c.cfg.MinMarketCap && cand.Volume24h <= c.cfg.MinVolume {
			continue
		}
		if _, err := c.book.Get(cand.Symbol); err == nil {
			continue
		}
		out = append(out, cand)
	}
	return out
}

// sizeOrder converts the quote-currency budget into base units at the
// candidate's price.
func (c *Controller) sizeOrder(_ context.Context, cand domain.Candidate) (float64, error) {
	if c.cfg.BuyAmount <= 0 {
		return 0, fmt.Errorf("autotrade: buy amount not configured: %w", domain.ErrInvalidAmount)
	}
	return c.cfg.BuyAmount / cand.Price, nil
}

func (c *Controller) setMonitored(symbol string) {
	c.mu.Lock()
	c.monitored = symbol
	c.mu.Unlock()
}
