package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/cryptostalker/cryptostalker/internal/domain"
)

// ModeSwitcher exposes the router's execution mode.
type ModeSwitcher interface {
	Mode() domain.ExecMode
	SetMode(mode domain.ExecMode) error
}

// CashReporter exposes the paper-trading cash balance.
type CashReporter interface {
	Balance() float64
}

// StatusHandler serves the backend status and the paper/live mode switch.
type StatusHandler struct {
	modes  ModeSwitcher
	cash   CashReporter
	logger *slog.Logger
}

// NewStatusHandler creates a StatusHandler.
func NewStatusHandler(modes ModeSwitcher, logger *slog.Logger) *StatusHandler {
	return &StatusHandler{
		modes:  modes,
		logger: logger,
	}
}

// WithCash includes the virtual cash balance in status responses.
func (h *StatusHandler) WithCash(cash CashReporter) *StatusHandler {
	h.cash = cash
	return h
}

// GetStatus responds with the current execution mode and, when cash
// bookkeeping is on, the paper balance.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"mode": h.modes.Mode(),
	}
	if h.cash != nil {
		resp["cash_balance"] = h.cash.Balance()
	}
	writeJSON(w, http.StatusOK, resp)
}

// setModeRequest is the JSON body for the mode switch.
type setModeRequest struct {
	Mode string `json:"mode"`
}

// SetMode switches between paper and live execution.
// PUT /api/mode
func (h *StatusHandler) SetMode(w http.ResponseWriter, r *http.Request) {
	var req setModeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	if err := h.modes.SetMode(domain.ExecMode(req.Mode)); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.logger.InfoContext(r.Context(), "execution mode switched",
		slog.String("mode", req.Mode),
	)
	writeJSON(w, http.StatusOK, map[string]any{"mode": h.modes.Mode()})
}
