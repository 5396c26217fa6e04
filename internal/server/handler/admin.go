package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/sidebook/sidebook/internal/service"
)

// AdminHandler serves the operator surface: the state snapshot and the manual
// settlement trigger.
type AdminHandler struct {
	admin      *service.AdminService
	settlement *service.SettlementService
	logger     *slog.Logger
}

// NewAdminHandler creates an AdminHandler.
func NewAdminHandler(admin *service.AdminService, settlement *service.SettlementService, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{
		admin:      admin,
		settlement: settlement,
		logger:     logger.With(slog.String("handler", "admin")),
	}
}

// State returns the operator dashboard snapshot.
// GET /api/admin/state
func (h *AdminHandler) State(w http.ResponseWriter, r *http.Request) {
	state, err := h.admin.State(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "admin state failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "could not assemble state")
		return
	}

	markets := make([]marketResponse, 0, len(state.Markets))
	for _, v := range state.Markets {
		markets = append(markets, toMarketResponse(v))
	}

	pools := make(map[string]map[string]float64, len(state.Pools))
	for id, p := range state.Pools {
		pools[id] = map[string]float64{
			"yesStaked": p.YesStaked,
			"noStaked":  p.NoStaked,
		}
	}

	interactions := make(map[string]int64, len(state.Interactions))
	for _, c := range state.Interactions {
		interactions[c.Kind] = c.Count
	}

	var lastSync *string
	if !state.OracleLastSyncAt.IsZero() {
		s := state.OracleLastSyncAt.UTC().Format(time.RFC3339)
		lastSync = &s
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"markets":           markets,
		"pools":             pools,
		"refundOnlyMarkets": state.RefundOnlyMarkets,
		"interactions":      interactions,
		"counters":          state.Counters,
		"oracleLastSyncAt":  lastSync,
	})
}

// TriggerSettlement runs one settlement pass synchronously.
// POST /api/admin/settle
func (h *AdminHandler) TriggerSettlement(w http.ResponseWriter, r *http.Request) {
	summary, err := h.settlement.SettleResolvedMarkets(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "manual settlement failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "settlement pass failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"checked": summary.Checked,
		"settled": summary.Settled,
		"failed":  summary.Failed,
	})
}
