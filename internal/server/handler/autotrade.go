package handler

import (
	"log/slog"
	"net/http"

	"github.com/cryptostalker/cryptostalker/internal/autotrade"
)

// AutoTradeHandler controls the auto-trading loop over HTTP.
type AutoTradeHandler struct {
	controller *autotrade.Controller
	logger     *slog.Logger
}

// NewAutoTradeHandler creates an AutoTradeHandler.
func NewAutoTradeHandler(controller *autotrade.Controller, logger *slog.Logger) *AutoTradeHandler {
	return &AutoTradeHandler{
		controller: controller,
		logger:     logger,
	}
}

// GetStatus returns the controller's current status.
// GET /api/autotrade/status
func (h *AutoTradeHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.controller.Status())
}

// Enable turns on candidate selection.
// POST /api/autotrade/enable
func (h *AutoTradeHandler) Enable(w http.ResponseWriter, r *http.Request) {
	h.controller.Enable()
	writeJSON(w, http.StatusOK, h.controller.Status())
}

// Disable stops new candidate selection without touching the monitored
// position.
// POST /api/autotrade/disable
func (h *AutoTradeHandler) Disable(w http.ResponseWriter, r *http.Request) {
	h.controller.Disable()
	writeJSON(w, http.StatusOK, h.controller.Status())
}

// Pause suspends all auto-trade ticks.
// POST /api/autotrade/pause
func (h *AutoTradeHandler) Pause(w http.ResponseWriter, r *http.Request) {
	h.controller.Pause()
	writeJSON(w, http.StatusOK, h.controller.Status())
}

// Resume lifts a pause.
// POST /api/autotrade/resume
func (h *AutoTradeHandler) Resume(w http.ResponseWriter, r *http.Request) {
	h.controller.Resume()
	writeJSON(w, http.StatusOK, h.controller.Status())
}
