// Package router executes buy/sell intents. An intent resolves either as a
// simulated fill (no external call) or as a live order routed through an
// ordered list of execution strategies, and always surfaces as one normalized
// Trade that is committed to the ledger and appended to the trade log.
package router

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cryptostalker/cryptostalker/internal/domain"
	"github.com/cryptostalker/cryptostalker/internal/ledger"
	"github.com/cryptostalker/cryptostalker/internal/oracle"
	"github.com/cryptostalker/cryptostalker/internal/tradelog"
)

// Venue places orders natively on one exchange, using that exchange's own
// symbol and payload conventions.
type Venue interface {
	CreateOrder(ctx context.Context, req domain.OrderRequest) (domain.Fill, error)
}

// Gateway is the generic multi-exchange order path tried first for every
// live intent.
type Gateway interface {
	CreateOrder(ctx context.Context, exchange string, req domain.OrderRequest) (domain.Fill, error)
}

// PriceSource resolves the reference price for an intent. Implemented by
// the oracle.
type PriceSource interface {
	GetPrice(ctx context.Context, symbol string, anchor float64) (oracle.Quote, error)
}

// execStrategy is one entry in the fallback chain. The chain is data, not
// control flow: each strategy declares its own precondition and is tried in
// order until one succeeds or all are exhausted.
type execStrategy struct {
	name      string
	available func(exchange string) bool
	run       func(ctx context.Context, exchange string, req domain.OrderRequest) (domain.Fill, error)
}

// Router turns intents into trades. It owns the paper/live mode flag, which
// is read once per execution and never re-checked mid-flight.
type Router struct {
	book    *ledger.Ledger
	log     *tradelog.Log
	prices  PriceSource
	gateway Gateway
	natives map[string]Venue
	limiter domain.RateLimiter
	quote   string
	cash    *ledger.Cash
	logger  *slog.Logger

	modeMu sync.RWMutex
	mode   domain.ExecMode
}

// New creates a Router. gateway, natives, and limiter may be nil/empty; a
// router without any live path can still execute simulated intents. quote is
// the quote currency all pairs trade against.
func New(
	book *ledger.Ledger,
	log *tradelog.Log,
	prices PriceSource,
	gateway Gateway,
	natives map[string]Venue,
	limiter domain.RateLimiter,
	quote string,
	mode domain.ExecMode,
	logger *slog.Logger,
) *Router {
	if natives == nil {
		natives = map[string]Venue{}
	}
	if mode == "" {
		mode = domain.ExecModeSimulated
	}
	return &Router{
		book:    book,
		log:     log,
		prices:  prices,
		gateway: gateway,
		natives: natives,
		limiter: limiter,
		quote:   quote,
		mode:    mode,
		logger:  logger.With(slog.String("component", "router")),
	}
}

// WithCash attaches the virtual cash account paper fills settle against.
// Without one, simulated trades skip cash bookkeeping entirely.
func (r *Router) WithCash(cash *ledger.Cash) *Router {
	r.cash = cash
	return r
}

// Mode returns the current execution mode.
func (r *Router) Mode() domain.ExecMode {
	r.modeMu.RLock()
	defer r.modeMu.RUnlock()
	return r.mode
}

// SetMode switches between paper and live execution. In-flight executions
// keep the mode they started with.
func (r *Router) SetMode(mode domain.ExecMode) error {
	if mode != domain.ExecModeSimulated && mode != domain.ExecModeLive {
		return fmt.Errorf("router: unknown mode %q", mode)
	}
	r.modeMu.Lock()
	r.mode = mode
	r.modeMu.Unlock()
	r.logger.Info("execution mode changed", slog.String("mode", string(mode)))
	return nil
}

// strategies returns the ordered fallback chain for live execution: the
// generic gateway first, then the exchange's native integration when one
// exists.
func (r *Router) strategies() []execStrategy {
	return []execStrategy{
		{
			name:      "gateway",
			available: func(string) bool { return r.gateway != nil },
			run: func(ctx context.Context, exchange string, req domain.OrderRequest) (domain.Fill, error) {
				return r.gateway.CreateOrder(ctx, exchange, req)
			},
		},
		{
			name: "native",
			available: func(exchange string) bool {
				_, ok := r.natives[exchange]
				return ok
			},
			run: func(ctx context.Context, exchange string, req domain.OrderRequest) (domain.Fill, error) {
				return r.natives[exchange].CreateOrder(ctx, req)
			},
		},
	}
}

// Execute resolves one intent into a Trade, commits it to the ledger, and
// appends it to the trade log. Amount is always in base units; the router
// translates to the wire convention (quote notional for buys) when calling
// out. Intent.Mode overrides the router's global mode when set.
//
// Precondition failures (invalid amount, insufficient balance) reject before
// any external call. A failed live order is never retried here: retrying a
// market order risks duplicate fills.
func (r *Router) Execute(ctx context.Context, intent domain.OrderIntent) (domain.Trade, error) {
	if intent.Amount <= 0 {
		return domain.Trade{}, fmt.Errorf("router: execute %s: %w", intent.Symbol, domain.ErrInvalidAmount)
	}
	if intent.Side != domain.TradeSideBuy && intent.Side != domain.TradeSideSell {
		return domain.Trade{}, fmt.Errorf("router: execute %s: unknown side %q", intent.Symbol, intent.Side)
	}
	if intent.ID == "" {
		intent.ID = uuid.New().String()
	}

	mode := intent.Mode
	if mode == "" {
		mode = r.Mode()
	}

	// Balance snapshot for sells, taken before any live order is placed so
	// we never hold a live fill the ledger cannot absorb.
	anchor := intent.RequestedPrice
	if pos, err := r.book.Get(intent.Symbol); err == nil {
		anchor = pos.CurrentPrice
		if intent.Side == domain.TradeSideSell && intent.Amount > pos.Balance {
			return domain.Trade{}, fmt.Errorf("router: sell %v of %s with balance %v: %w",
				intent.Amount, intent.Symbol, pos.Balance, domain.ErrInsufficientBalance)
		}
	} else if intent.Side == domain.TradeSideSell {
		return domain.Trade{}, fmt.Errorf("router: sell %s: %w", intent.Symbol, domain.ErrNotFound)
	}

	quote, err := r.prices.GetPrice(ctx, intent.Symbol, anchor)
	if err != nil {
		return domain.Trade{}, fmt.Errorf("router: price for %s: %w", intent.Symbol, err)
	}

	var fill domain.Fill
	simulated := mode == domain.ExecModeSimulated
	if simulated {
		fill = domain.Fill{
			Amount:    intent.Amount,
			Price:     quote.Price,
			Timestamp: quote.At,
		}
	} else {
		fill, err = r.executeLive(ctx, intent, quote)
		if err != nil {
			return domain.Trade{}, err
		}
	}

	normalizeFill(&fill, intent, quote)

	if mode == domain.ExecModeLive && quote.Source == oracle.QuoteSourceSimulated {
		r.logger.WarnContext(ctx, "live trade priced against simulated quote",
			slog.String("symbol", intent.Symbol),
			slog.String("exchange", intent.Exchange),
		)
	}

	trade := domain.Trade{
		ID:          intent.ID,
		Symbol:      intent.Symbol,
		Side:        intent.Side,
		Amount:      fill.Amount,
		Price:       fill.Price,
		Timestamp:   fill.Timestamp,
		Exchange:    intent.Exchange,
		OrderID:     fill.OrderID,
		IsAuto:      intent.Auto,
		IsSimulated: simulated,
		QuoteSource: string(quote.Source),
	}

	// Paper fills settle against the virtual cash account: debit the cost
	// before the buy lands in the book, refund if the book rejects it.
	settleCash := simulated && r.cash != nil
	if settleCash && trade.Side == domain.TradeSideBuy {
		if err := r.cash.Debit(trade.Amount * trade.Price); err != nil {
			return domain.Trade{}, fmt.Errorf("router: buy %s: %w", trade.Symbol, err)
		}
	}

	if err := r.commit(ctx, &trade, intent); err != nil {
		if settleCash && trade.Side == domain.TradeSideBuy {
			r.cash.Credit(trade.Amount * trade.Price)
		}
		return domain.Trade{}, err
	}

	if settleCash && trade.Side == domain.TradeSideSell {
		r.cash.Credit(trade.Amount * trade.Price)
	}

	r.log.Append(ctx, trade)
	r.logger.InfoContext(ctx, "trade executed",
		slog.String("trade_id", trade.ID),
		slog.String("symbol", trade.Symbol),
		slog.String("side", string(trade.Side)),
		slog.Float64("amount", trade.Amount),
		slog.Float64("price", trade.Price),
		slog.String("exchange", trade.Exchange),
		slog.Bool("simulated", trade.IsSimulated),
	)

	return trade, nil
}

// executeLive walks the fallback chain. Every attempted path and its error
// are folded into the final OrderFailed so the caller sees exactly what was
// tried.
func (r *Router) executeLive(ctx context.Context, intent domain.OrderIntent, quote oracle.Quote) (domain.Fill, error) {
	if r.limiter != nil {
		allowed, err := r.limiter.Allow(ctx, "orders:"+intent.Exchange, 10, time.Second)
		if err != nil {
			return domain.Fill{}, fmt.Errorf("router: rate limiter: %w", err)
		}
		if !allowed {
			return domain.Fill{}, fmt.Errorf("router: live order on %s: %w", intent.Exchange, domain.ErrRateLimited)
		}
	}

	req := domain.OrderRequest{
		Symbol: intent.Symbol,
		Quote:  r.quote,
		Side:   intent.Side,
		Amount: intent.Amount,
	}
	if intent.Side == domain.TradeSideBuy {
		// Wire convention: buys are specified as quote-currency notional.
		req.Amount = intent.Amount * quote.Price
	}

	var attempts []string
	for _, strat := range r.strategies() {
		if !strat.available(intent.Exchange) {
			continue
		}
		fill, err := strat.run(ctx, intent.Exchange, req)
		if err == nil {
			if strat.name != "gateway" {
				r.logger.InfoContext(ctx, "order filled via fallback path",
					slog.String("exchange", intent.Exchange),
					slog.String("path", strat.name),
				)
			}
			// A native fill reports base amount; a gateway buy fill does too.
			if fill.Amount <= 0 && intent.Side == domain.TradeSideBuy {
				fill.Amount = intent.Amount
			}
			return fill, nil
		}
		if ctx.Err() != nil {
			return domain.Fill{}, fmt.Errorf("router: live order on %s: %w", intent.Exchange, ctx.Err())
		}
		attempts = append(attempts, fmt.Sprintf("%s: %v", strat.name, err))
		r.logger.WarnContext(ctx, "execution path failed",
			slog.String("exchange", intent.Exchange),
			slog.String("path", strat.name),
			slog.String("error", err.Error()),
		)
	}

	if len(attempts) == 0 {
		return domain.Fill{}, fmt.Errorf("router: no execution path for exchange %s: %w",
			intent.Exchange, domain.ErrOrderFailed)
	}
	return domain.Fill{}, fmt.Errorf("router: %s order on %s (%s): %w",
		intent.Side, intent.Exchange, strings.Join(attempts, "; "), domain.ErrOrderFailed)
}

// commit applies the trade to the ledger and updates realized statistics.
func (r *Router) commit(ctx context.Context, trade *domain.Trade, intent domain.OrderIntent) error {
	switch trade.Side {
	case domain.TradeSideBuy:
		pos, err := r.book.ApplyBuy(trade.Symbol, intent.Name, trade.Amount, trade.Price, trade.Timestamp)
		if err != nil {
			return fmt.Errorf("router: commit buy: %w", err)
		}
		trade.PositionID = pos.ID
	case domain.TradeSideSell:
		res, err := r.book.ApplySell(trade.Symbol, trade.Amount, trade.Price, trade.Timestamp)
		if err != nil {
			// The balance moved between snapshot and commit; surface the
			// rejection rather than clamp.
			return fmt.Errorf("router: commit sell: %w", err)
		}
		trade.PositionID = res.Position.ID
		r.log.RecordRealized(res.RealizedPnL)
	}
	return nil
}

// normalizeFill substitutes the intent's requested values for anything the
// execution path did not report, so no Trade field is ever left undefined.
func normalizeFill(fill *domain.Fill, intent domain.OrderIntent, quote oracle.Quote) {
	if fill.Amount <= 0 {
		fill.Amount = intent.Amount
	}
	if fill.Price <= 0 {
		fill.Price = quote.Price
	}
	if fill.Timestamp.IsZero() {
		fill.Timestamp = time.Now().UTC()
	}
}
