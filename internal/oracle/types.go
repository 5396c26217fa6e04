package oracle

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/sidebook/sidebook/internal/domain"
)

// apiMarket is the wire shape of one feed entry. Timestamps are epoch
// milliseconds; prices are probabilities in [0,1].
type apiMarket struct {
	ID          string   `json:"id"`
	Slug        string   `json:"slug"`
	Question    string   `json:"question"`
	Category    string   `json:"category"`
	CloseTime   int64    `json:"closeTime"`
	ResolveTime *int64   `json:"resolveTime"`
	Status      string   `json:"status"`
	Outcome     *string  `json:"outcome"`
	YesPrice    *float64 `json:"yesPrice"`
	NoPrice     *float64 `json:"noPrice"`
}

// toDomain normalizes a feed entry. Malformed fields degrade to safe values
// rather than failing the whole sync: an unknown status maps to closed and
// missing prices default to an even book.
func (am apiMarket) toDomain(source string, raw json.RawMessage) domain.Market {
	m := domain.Market{
		ID:             am.ID,
		Slug:           am.Slug,
		Question:       am.Question,
		Category:       am.Category,
		CloseAt:        time.UnixMilli(am.CloseTime).UTC(),
		Status:         normalizeStatus(am.Status),
		OracleSource:   source,
		OracleMarketID: am.ID,
		Raw:            raw,
	}

	if am.ResolveTime != nil {
		t := time.UnixMilli(*am.ResolveTime).UTC()
		m.ResolveAt = &t
	}

	m.YesPrice, m.NoPrice = normalizePrices(am.YesPrice, am.NoPrice)

	// Outcome only survives on a resolved market; anything else would
	// violate the resolved-implies-outcome invariant downstream.
	if m.Status == domain.MarketStatusResolved && am.Outcome != nil {
		side := domain.Side(strings.ToLower(*am.Outcome))
		if side.Valid() {
			m.Outcome = &side
		}
	}

	return m
}

func normalizeStatus(s string) domain.MarketStatus {
	switch strings.ToLower(s) {
	case "open", "active":
		return domain.MarketStatusOpen
	case "closed":
		return domain.MarketStatusClosed
	case "resolved", "settled":
		return domain.MarketStatusResolved
	case "cancelled", "canceled", "voided":
		return domain.MarketStatusCancelled
	default:
		// Unknown states are not tradable.
		return domain.MarketStatusClosed
	}
}

// normalizePrices fills missing sides from the complement and clamps both
// into [0,1]. A feed with neither price quotes an even book.
func normalizePrices(yes, no *float64) (float64, float64) {
	switch {
	case yes != nil && no != nil:
		return clamp01(*yes), clamp01(*no)
	case yes != nil:
		y := clamp01(*yes)
		return y, 1 - y
	case no != nil:
		n := clamp01(*no)
		return 1 - n, n
	default:
		return 0.5, 0.5
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
