// Package ledger implements the in-memory position book. It owns cost-basis
// and profit/loss arithmetic, bounded price-history retention, and extremum
// tracking for every held symbol.
package ledger

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cryptostalker/cryptostalker/internal/domain"
)

// DefaultHistoryCap bounds the per-position price history.
const DefaultHistoryCap = 500

// fullSellEpsilon absorbs float dust when deciding whether a sell empties
// the position.
const fullSellEpsilon = 1e-9

// SellResult reports the outcome of one sell leg.
type SellResult struct {
	// Position is the state after the sell. When Removed is true it is the
	// final state the position had just before deletion.
	Position    domain.Position
	Removed     bool
	RealizedPnL float64
}

// Ledger is the single owner of mutable position state. Mutations on one
// symbol serialize through a per-symbol lock; different symbols proceed in
// parallel. Cost-basis recomputation reads then writes balance and average
// buy price, so interleaving within a symbol is never allowed.
type Ledger struct {
	mu         sync.Mutex
	positions  map[string]*domain.Position
	locks      map[string]*sync.Mutex
	historyCap int
	logger     *slog.Logger
}

// New creates an empty ledger. historyCap bounds each position's price
// history; values <= 0 fall back to DefaultHistoryCap.
func New(historyCap int, logger *slog.Logger) *Ledger {
	if historyCap <= 0 {
		historyCap = DefaultHistoryCap
	}
	return &Ledger{
		positions:  make(map[string]*domain.Position),
		locks:      make(map[string]*sync.Mutex),
		historyCap: historyCap,
		logger:     logger.With(slog.String("component", "ledger")),
	}
}

// symbolLock returns the mutex serializing all mutations for one symbol.
// Locks persist for the life of the ledger even after a position is removed,
// so a re-buy of the same symbol contends on the same lock.
func (l *Ledger) symbolLock(symbol string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.locks[symbol]
	if !ok {
		m = &sync.Mutex{}
		l.locks[symbol] = m
	}
	return m
}

func (l *Ledger) get(symbol string) *domain.Position {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.positions[symbol]
}

func (l *Ledger) put(symbol string, p *domain.Position) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.positions[symbol] = p
}

func (l *Ledger) remove(symbol string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.positions, symbol)
}

// ApplyBuy records a purchase. The first buy of a symbol creates the
// position with an average buy price equal to the fill price; later buys
// recompute the quantity-weighted mean. A zero or negative price is rejected
// before any state changes, since it would poison the cost-basis math.
func (l *Ledger) ApplyBuy(symbol, name string, amount, price float64, ts time.Time) (domain.Position, error) {
	if price <= 0 {
		return domain.Position{}, fmt.Errorf("ledger: buy %s at %v: %w", symbol, price, domain.ErrInvalidPrice)
	}
	if amount <= 0 {
		return domain.Position{}, fmt.Errorf("ledger: buy %s amount %v: %w", symbol, amount, domain.ErrInvalidAmount)
	}

	mu := l.symbolLock(symbol)
	mu.Lock()
	defer mu.Unlock()

	p := l.get(symbol)
	if p == nil {
		p = &domain.Position{
			ID:              uuid.New().String(),
			Symbol:          symbol,
			Name:            name,
			AverageBuyPrice: price,
			CurrentPrice:    price,
			HighestPrice:    price,
			HighestPriceAt:  ts,
			OpenedAt:        ts,
		}
		l.put(symbol, p)
	} else {
		p.AverageBuyPrice = (p.Balance*p.AverageBuyPrice + amount*price) / (p.Balance + amount)
	}

	p.Balance += amount
	p.PurchaseHistory = append(p.PurchaseHistory, domain.PurchaseEvent{
		Amount:    amount,
		Price:     price,
		Timestamp: ts,
	})
	p.UpdatedAt = ts
	recomputePnL(p)

	l.logger.Info("buy applied",
		slog.String("symbol", symbol),
		slog.Float64("amount", amount),
		slog.Float64("price", price),
		slog.Float64("balance", p.Balance),
		slog.Float64("avg_buy_price", p.AverageBuyPrice),
	)

	return p.Clone(), nil
}

// ApplySell divests amount units at price. Selling more than the balance
// fails with ErrInsufficientBalance and leaves the position untouched; the
// ledger rejects rather than clamps, so an in-flight sell built on a stale
// balance snapshot surfaces as an error at commit time. Selling the full
// balance deletes the position. The average buy price never changes on a
// sell.
func (l *Ledger) ApplySell(symbol string, amount, price float64, ts time.Time) (SellResult, error) {
	if amount <= 0 {
		return SellResult{}, fmt.Errorf("ledger: sell %s amount %v: %w", symbol, amount, domain.ErrInvalidAmount)
	}

	mu := l.symbolLock(symbol)
	mu.Lock()
	defer mu.Unlock()

	p := l.get(symbol)
	if p == nil {
		return SellResult{}, fmt.Errorf("ledger: sell %s: %w", symbol, domain.ErrNotFound)
	}
	if amount > p.Balance {
		return SellResult{}, fmt.Errorf("ledger: sell %v of %s with balance %v: %w",
			amount, symbol, p.Balance, domain.ErrInsufficientBalance)
	}

	realized := (price - p.AverageBuyPrice) * amount

	removed := p.Balance-amount <= fullSellEpsilon
	if removed {
		p.Balance = 0
	} else {
		p.Balance -= amount
	}
	p.UpdatedAt = ts
	recomputePnL(p)

	res := SellResult{
		Position:    p.Clone(),
		Removed:     removed,
		RealizedPnL: realized,
	}
	if removed {
		l.remove(symbol)
	}

	l.logger.Info("sell applied",
		slog.String("symbol", symbol),
		slog.Float64("amount", amount),
		slog.Float64("price", price),
		slog.Float64("realized_pnl", realized),
		slog.Bool("closed", removed),
	)

	return res, nil
}

// MarkPrice records a fresh quote for symbol: it appends to the bounded
// price history, advances the running maximum, updates the
// consecutive-decrease counter, and recomputes profit/loss.
func (l *Ledger) MarkPrice(symbol string, price float64, ts time.Time) (domain.Position, error) {
	mu := l.symbolLock(symbol)
	mu.Lock()
	defer mu.Unlock()

	p := l.get(symbol)
	if p == nil {
		return domain.Position{}, fmt.Errorf("ledger: mark %s: %w", symbol, domain.ErrNotFound)
	}

	prior := p.CurrentPrice
	p.CurrentPrice = price

	p.PriceHistory = append(p.PriceHistory, domain.PricePoint{Price: price, Time: ts})
	if len(p.PriceHistory) > l.historyCap {
		p.PriceHistory = p.PriceHistory[len(p.PriceHistory)-l.historyCap:]
	}

	if price > p.HighestPrice {
		p.HighestPrice = price
		p.HighestPriceAt = ts
	}

	if price < prior {
		p.ConsecutiveDecreases++
	} else {
		p.ConsecutiveDecreases = 0
	}

	p.UpdatedAt = ts
	recomputePnL(p)

	return p.Clone(), nil
}

// Get returns a copy of the position for symbol.
func (l *Ledger) Get(symbol string) (domain.Position, error) {
	mu := l.symbolLock(symbol)
	mu.Lock()
	defer mu.Unlock()

	p := l.get(symbol)
	if p == nil {
		return domain.Position{}, fmt.Errorf("ledger: get %s: %w", symbol, domain.ErrNotFound)
	}
	return p.Clone(), nil
}

// List returns copies of all open positions. Ordering is unspecified.
func (l *Ledger) List() []domain.Position {
	l.mu.Lock()
	symbols := make([]string, 0, len(l.positions))
	for s := range l.positions {
		symbols = append(symbols, s)
	}
	l.mu.Unlock()

	out := make([]domain.Position, 0, len(symbols))
	for _, s := range symbols {
		if p, err := l.Get(s); err == nil {
			out = append(out, p)
		}
	}
	return out
}

// Snapshot is an alias of List used by the persistence layer.
func (l *Ledger) Snapshot() []domain.Position {
	return l.List()
}

// Restore replaces the book with previously snapshotted positions. Intended
// for startup only, before any concurrent access begins.
func (l *Ledger) Restore(positions []domain.Position) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.positions = make(map[string]*domain.Position, len(positions))
	for i := range positions {
		p := positions[i].Clone()
		l.positions[p.Symbol] = &p
	}
}

// recomputePnL refreshes the derived profit/loss fields. Caller holds the
// symbol lock.
func recomputePnL(p *domain.Position) {
	p.ProfitLoss = (p.CurrentPrice - p.AverageBuyPrice) * p.Balance
	if p.AverageBuyPrice > 0 {
		p.ProfitLossPct = (p.CurrentPrice - p.AverageBuyPrice) / p.AverageBuyPrice * 100
	} else {
		p.ProfitLossPct = 0
	}
}
