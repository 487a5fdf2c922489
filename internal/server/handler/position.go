package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/cryptostalker/cryptostalker/internal/domain"
)

// PositionBook defines what the position handler needs from the ledger.
type PositionBook interface {
	List() []domain.Position
	Get(symbol string) (domain.Position, error)
}

// PositionHandler serves position-related HTTP endpoints.
type PositionHandler struct {
	book   PositionBook
	logger *slog.Logger
}

// NewPositionHandler creates a PositionHandler.
func NewPositionHandler(book PositionBook, logger *slog.Logger) *PositionHandler {
	return &PositionHandler{
		book:   book,
		logger: logger,
	}
}

// listPositionsResponse wraps the list positions response.
type listPositionsResponse struct {
	Positions []domain.Position `json:"positions"`
}

// ListPositions returns all open positions.
// GET /api/positions
func (h *PositionHandler) ListPositions(w http.ResponseWriter, r *http.Request) {
	positions := h.book.List()
	if positions == nil {
		positions = []domain.Position{}
	}
	writeJSON(w, http.StatusOK, listPositionsResponse{Positions: positions})
}

// GetPosition returns one open position by symbol.
// GET /api/positions/{symbol}
func (h *PositionHandler) GetPosition(w http.ResponseWriter, r *http.Request) {
	symbol := pathParam(r, "symbol")
	if symbol == "" {
		writeError(w, http.StatusBadRequest, "missing symbol")
		return
	}

	pos, err := h.book.Get(symbol)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "position not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get position failed",
			slog.String("symbol", symbol),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get position")
		return
	}

	writeJSON(w, http.StatusOK, pos)
}
