// Package tradelog keeps the append-only record of executed trades and the
// rolling trading statistics derived from realized sells.
package tradelog

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/cryptostalker/cryptostalker/internal/domain"
	"github.com/cryptostalker/cryptostalker/internal/notify"
)

// Log is the append-only trade record. Trades are held in memory in arrival
// order; when a TradeStore is attached they are persisted as well, and when
// a SignalBus is attached an event is published per trade.
type Log struct {
	mu     sync.RWMutex
	trades []domain.Trade
	stats  domain.TradingStats

	store    domain.TradeStore
	bus      domain.SignalBus
	notifier *notify.Notifier
	logger   *slog.Logger
}

// New creates a Log. store and bus may be nil for in-memory-only operation.
func New(store domain.TradeStore, bus domain.SignalBus, logger *slog.Logger) *Log {
	return &Log{
		store:  store,
		bus:    bus,
		logger: logger.With(slog.String("component", "tradelog")),
	}
}

// WithNotifier attaches a notifier that receives an alert per executed trade.
func (l *Log) WithNotifier(n *notify.Notifier) *Log {
	l.notifier = n
	return l
}

// Append records an executed trade. The in-memory record always succeeds;
// persistence and event publication are best-effort, since the trade has
// already executed and must not be lost to a storage hiccup.
func (l *Log) Append(ctx context.Context, trade domain.Trade) {
	l.mu.Lock()
	l.trades = append(l.trades, trade)
	l.stats.TotalTrades++
	l.mu.Unlock()

	if l.store != nil {
		if err := l.store.Append(ctx, trade); err != nil {
			l.logger.ErrorContext(ctx, "tradelog: persist trade failed",
				slog.String("trade_id", trade.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	if l.bus != nil {
		evt, _ := json.Marshal(map[string]any{
			"event":        "trade_executed",
			"trade_id":     trade.ID,
			"symbol":       trade.Symbol,
			"side":         string(trade.Side),
			"amount":       trade.Amount,
			"price":        trade.Price,
			"exchange":     trade.Exchange,
			"is_auto":      trade.IsAuto,
			"is_simulated": trade.IsSimulated,
		})
		if err := l.bus.Publish(ctx, "trades", evt); err != nil {
			l.logger.WarnContext(ctx, "tradelog: publish event failed",
				slog.String("trade_id", trade.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	if l.notifier != nil {
		title, message := notify.FormatTrade(trade)
		if err := l.notifier.Notify(ctx, notify.TradeEvent(trade), title, message); err != nil {
			l.logger.WarnContext(ctx, "tradelog: notification failed",
				slog.String("trade_id", trade.ID),
				slog.String("error", err.Error()),
			)
		}
	}
}

// RecordRealized folds one realized sell P/L into the rolling statistics.
// A break-even sell counts as neither win nor loss.
func (l *Log) RecordRealized(pnl float64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.stats.TotalProfit += pnl
	l.stats.LastTradeProfit = pnl
	switch {
	case pnl > 0:
		l.stats.Wins++
		if pnl > l.stats.LargestGain {
			l.stats.LargestGain = pnl
		}
	case pnl < 0:
		l.stats.Losses++
		if pnl < l.stats.LargestLoss {
			l.stats.LargestLoss = pnl
		}
	}
}

// Stats returns a copy of the rolling statistics.
func (l *Log) Stats() domain.TradingStats {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.stats
}

// Recent returns up to limit trades, newest first.
func (l *Log) Recent(limit int) []domain.Trade {
	if limit <= 0 {
		limit = 20
	}
	l.mu.RLock()
	defer l.mu.RUnlock()

	n := len(l.trades)
	if limit > n {
		limit = n
	}
	out := make([]domain.Trade, 0, limit)
	for i := n - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, l.trades[i])
	}
	return out
}

// Len returns the number of recorded trades.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.trades)
}
