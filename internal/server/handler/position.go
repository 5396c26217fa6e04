package handler

import (
	"log/slog"
	"net/http"

	"github.com/sidebook/sidebook/internal/domain"
	"github.com/sidebook/sidebook/internal/service"
)

// PositionHandler serves quoting and the position lifecycle.
type PositionHandler struct {
	quotes    *service.QuoteService
	positions *service.PositionService
	logger    *slog.Logger
}

// NewPositionHandler creates a PositionHandler.
func NewPositionHandler(quotes *service.QuoteService, positions *service.PositionService, logger *slog.Logger) *PositionHandler {
	return &PositionHandler{
		quotes:    quotes,
		positions: positions,
		logger:    logger.With(slog.String("handler", "position")),
	}
}

type quoteRequest struct {
	MarketID string  `json:"marketId"`
	Side     string  `json:"side"`
	Stake    float64 `json:"stake"`
}

// Quote prices a stake without committing anything. Business rejections come
// back as 200 with ok=false and a reason code.
// POST /api/quote
func (h *PositionHandler) Quote(w http.ResponseWriter, r *http.Request) {
	var req quoteRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	side := domain.Side(req.Side)
	if !side.Valid() {
		writeError(w, http.StatusBadRequest, "side must be yes or no")
		return
	}

	res, err := h.quotes.Quote(r.Context(), req.MarketID, side, req.Stake)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "quote failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "could not quote")
		return
	}
	writeJSON(w, http.StatusOK, toQuoteResponse(res))
}

type openPositionRequest struct {
	MarketID string  `json:"marketId"`
	PlayerID string  `json:"playerId"`
	WalletID string  `json:"walletId"`
	Side     string  `json:"side"`
	Stake    float64 `json:"stake"`
}

// OpenPosition quotes, escrows and records a new position.
// POST /api/positions
func (h *PositionHandler) OpenPosition(w http.ResponseWriter, r *http.Request) {
	var req openPositionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	side := domain.Side(req.Side)
	if !side.Valid() {
		writeError(w, http.StatusBadRequest, "side must be yes or no")
		return
	}
	if req.PlayerID == "" {
		writeError(w, http.StatusBadRequest, "playerId is required")
		return
	}

	res, err := h.positions.Open(r.Context(), service.OpenPositionRequest{
		MarketID: req.MarketID,
		PlayerID: req.PlayerID,
		WalletID: req.WalletID,
		Side:     side,
		Stake:    req.Stake,
	})
	if err != nil {
		h.logger.ErrorContext(r.Context(), "open position failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "could not open position")
		return
	}

	status := http.StatusOK
	if res.OK {
		status = http.StatusCreated
	}
	writeJSON(w, status, toOpenPositionResponse(res))
}

// ListPlayerPositions returns a player's positions, newest first.
// GET /api/players/{id}/positions
func (h *PositionHandler) ListPlayerPositions(w http.ResponseWriter, r *http.Request) {
	positions, err := h.positions.ListPlayerPositions(r.Context(), pathParam(r, "id"), parseLimit(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list positions failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "could not list positions")
		return
	}

	out := make([]positionResponse, 0, len(positions))
	for _, p := range positions {
		out = append(out, toPositionResponse(p))
	}
	writeJSON(w, http.StatusOK, map[string]any{"positions": out})
}
