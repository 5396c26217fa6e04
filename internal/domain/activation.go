package domain

import "time"

// Actor tags recorded on activations written by the activation controller.
// Admin-initiated writes carry the operator's own tag instead.
const (
	ActorAutoActivate       = "system:auto_activate"
	ActorAutoActivateOracle = "system:auto_activate_oracle"
	ActorAutoFallback       = "system:auto_fallback"
)

// MarketActivation is the per-market operator override, keyed by market ID.
// Absence of a record means the market is inactive and uses engine defaults.
// One record per market; last writer wins.
type MarketActivation struct {
	MarketID       string
	Active         bool
	MaxWager       float64
	HouseSpreadBps int // 0-5000
	UpdatedBy      string
	UpdatedAt      time.Time
}
