package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/sidebook/sidebook/internal/domain"
	"github.com/sidebook/sidebook/internal/service"
)

// MarketHandler serves the market listing, sync and activation endpoints.
type MarketHandler struct {
	markets *service.MarketService
	logger  *slog.Logger
}

// NewMarketHandler creates a MarketHandler.
func NewMarketHandler(markets *service.MarketService, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{
		markets: markets,
		logger:  logger.With(slog.String("handler", "market")),
	}
}

// ListMarkets returns known markets merged with their activation state.
// ?active=true narrows the list to active markets.
// GET /api/markets
func (h *MarketHandler) ListMarkets(w http.ResponseWriter, r *http.Request) {
	views, err := h.markets.Views(r.Context(), parseLimit(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list markets failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "could not list markets")
		return
	}

	activeOnly := r.URL.Query().Get("active") == "true"
	out := make([]marketResponse, 0, len(views))
	for _, v := range views {
		if activeOnly && !v.Active {
			continue
		}
		out = append(out, toMarketResponse(v))
	}
	writeJSON(w, http.StatusOK, map[string]any{"markets": out})
}

// GetMarket returns one market by ID.
// GET /api/markets/{id}
func (h *MarketHandler) GetMarket(w http.ResponseWriter, r *http.Request) {
	view, err := h.markets.ViewByID(r.Context(), pathParam(r, "id"))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "market not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "get market failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "could not load market")
		return
	}
	writeJSON(w, http.StatusOK, toMarketResponse(view))
}

// SyncMarkets pulls the latest markets from the oracle feed.
// POST /api/markets/sync
func (h *MarketHandler) SyncMarkets(w http.ResponseWriter, r *http.Request) {
	count, err := h.markets.SyncFromOracle(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "oracle sync failed", slog.String("error", err.Error()))
		writeError(w, http.StatusBadGateway, "oracle sync failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"synced": count})
}

// SyncAndActivate runs an oracle sync followed by the activation check.
// POST /api/markets/sync-activate
func (h *MarketHandler) SyncAndActivate(w http.ResponseWriter, r *http.Request) {
	view, err := h.markets.SyncAndAutoActivate(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "sync-activate failed", slog.String("error", err.Error()))
		writeError(w, http.StatusBadGateway, "sync and activate failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"active": toMarketResponse(view)})
}

// PreviewLiveMarkets fetches playable oracle markets without persisting.
// GET /api/markets/preview
func (h *MarketHandler) PreviewLiveMarkets(w http.ResponseWriter, r *http.Request) {
	markets, err := h.markets.PreviewLiveMarkets(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "preview failed", slog.String("error", err.Error()))
		writeError(w, http.StatusBadGateway, "oracle preview failed")
		return
	}

	out := make([]marketResponse, 0, len(markets))
	for _, m := range markets {
		out = append(out, toMarketResponse(domain.MarketView{Market: m}))
	}
	writeJSON(w, http.StatusOK, map[string]any{"markets": out})
}

type activateRequest struct {
	Active         bool    `json:"active"`
	MaxWager       float64 `json:"maxWager"`
	HouseSpreadBps int     `json:"houseSpreadBps"`
	UpdatedBy      string  `json:"updatedBy"`
}

// ActivateMarket writes an operator activation override.
// POST /api/markets/{id}/activate
func (h *MarketHandler) ActivateMarket(w http.ResponseWriter, r *http.Request) {
	var req activateRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UpdatedBy == "" {
		req.UpdatedBy = "admin:api"
	}

	err := h.markets.ActivateMarket(r.Context(), domain.MarketActivation{
		MarketID:       pathParam(r, "id"),
		Active:         req.Active,
		MaxWager:       req.MaxWager,
		HouseSpreadBps: req.HouseSpreadBps,
		UpdatedBy:      req.UpdatedBy,
	})
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "market not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "activate failed", slog.String("error", err.Error()))
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
