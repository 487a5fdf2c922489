package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/cryptostalker/cryptostalker/internal/domain"
)

// TradeReader exposes the in-memory trade log.
type TradeReader interface {
	Recent(limit int) []domain.Trade
	Stats() domain.TradingStats
}

// TradeHandler serves trade-history and statistics endpoints. When a
// persistent store is attached, per-symbol queries go to it; the recent feed
// always comes from the in-memory log.
type TradeHandler struct {
	log    TradeReader
	store  domain.TradeStore // optional
	logger *slog.Logger
}

// NewTradeHandler creates a TradeHandler. store may be nil.
func NewTradeHandler(log TradeReader, store domain.TradeStore, logger *slog.Logger) *TradeHandler {
	return &TradeHandler{
		log:    log,
		store:  store,
		logger: logger,
	}
}

// listTradesResponse wraps the list trades response.
type listTradesResponse struct {
	Trades []domain.Trade `json:"trades"`
}

// ListTrades returns recent trades, optionally filtered by symbol.
// GET /api/trades?symbol=BTC&limit=50&offset=0
func (h *TradeHandler) ListTrades(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)
	symbol := r.URL.Query().Get("symbol")

	var trades []domain.Trade
	if symbol != "" {
		var err error
		trades, err = h.listBySymbol(r.Context(), symbol, opts)
		if err != nil {
			h.logger.ErrorContext(r.Context(), "handler: list trades failed",
				slog.String("symbol", symbol),
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, "failed to list trades")
			return
		}
	} else {
		trades = h.log.Recent(opts.Limit)
	}

	if trades == nil {
		trades = []domain.Trade{}
	}
	writeJSON(w, http.StatusOK, listTradesResponse{Trades: trades})
}

func (h *TradeHandler) listBySymbol(ctx context.Context, symbol string, opts domain.ListOpts) ([]domain.Trade, error) {
	if h.store != nil {
		return h.store.ListBySymbol(ctx, symbol, opts)
	}

	// No store: filter the in-memory log.
	all := h.log.Recent(500)
	out := make([]domain.Trade, 0, opts.Limit)
	for _, t := range all {
		if t.Symbol != symbol {
			continue
		}
		out = append(out, t)
		if opts.Limit > 0 && len(out) >= opts.Limit {
			break
		}
	}
	return out, nil
}

// GetStats returns the rolling trading statistics.
// GET /api/stats
func (h *TradeHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats := h.log.Stats()
	writeJSON(w, http.StatusOK, map[string]any{
		"total_trades":      stats.TotalTrades,
		"total_profit":      stats.TotalProfit,
		"wins":              stats.Wins,
		"losses":            stats.Losses,
		"win_rate":          stats.WinRate(),
		"largest_gain":      stats.LargestGain,
		"largest_loss":      stats.LargestLoss,
		"last_trade_profit": stats.LastTradeProfit,
	})
}
