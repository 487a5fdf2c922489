package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/cryptostalker/cryptostalker/internal/domain"
)

// OrderExecutor places order intents. Implemented by the router.
type OrderExecutor interface {
	Execute(ctx context.Context, intent domain.OrderIntent) (domain.Trade, error)
}

// OrderHandler serves manual order placement.
type OrderHandler struct {
	exec   OrderExecutor
	logger *slog.Logger
}

// NewOrderHandler creates an OrderHandler.
func NewOrderHandler(exec OrderExecutor, logger *slog.Logger) *OrderHandler {
	return &OrderHandler{
		exec:   exec,
		logger: logger,
	}
}

// placeOrderRequest is the JSON body for manual orders. Amount is in base
// units.
type placeOrderRequest struct {
	Symbol   string  `json:"symbol"`
	Name     string  `json:"name"`
	Side     string  `json:"side"`
	Amount   float64 `json:"amount"`
	Exchange string  `json:"exchange"`
}

// PlaceOrder executes a manual buy or sell.
// POST /api/orders
func (h *OrderHandler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req placeOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Symbol == "" {
		writeError(w, http.StatusBadRequest, "symbol is required")
		return
	}
	side := domain.TradeSide(req.Side)
	if side != domain.TradeSideBuy && side != domain.TradeSideSell {
		writeError(w, http.StatusBadRequest, "side must be buy or sell")
		return
	}

	trade, err := h.exec.Execute(r.Context(), domain.OrderIntent{
		Symbol:   req.Symbol,
		Name:     req.Name,
		Side:     side,
		Amount:   req.Amount,
		Exchange: req.Exchange,
	})
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidAmount), errors.Is(err, domain.ErrInvalidPrice):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, domain.ErrInsufficientBalance):
			writeError(w, http.StatusUnprocessableEntity, err.Error())
		case errors.Is(err, domain.ErrNotFound):
			writeError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, domain.ErrRateLimited):
			writeError(w, http.StatusTooManyRequests, "rate limited")
		default:
			h.logger.ErrorContext(r.Context(), "handler: place order failed",
				slog.String("symbol", req.Symbol),
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusBadGateway, err.Error())
		}
		return
	}

	writeJSON(w, http.StatusCreated, trade)
}
