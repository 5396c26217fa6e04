package domain

import (
	"encoding/json"
	"time"
)

// MarketStatus represents the lifecycle state of a market.
type MarketStatus string

const (
	MarketStatusOpen      MarketStatus = "open"
	MarketStatusClosed    MarketStatus = "closed"
	MarketStatusResolved  MarketStatus = "resolved"
	MarketStatusCancelled MarketStatus = "cancelled"
)

// Side is one of the two outcomes of a binary market.
type Side string

const (
	SideYes Side = "yes"
	SideNo  Side = "no"
)

// Valid reports whether s is one of the two recognised sides.
func (s Side) Valid() bool {
	return s == SideYes || s == SideNo
}

// Market is a binary yes/no question, sourced from the oracle feed or
// synthesized locally as a fallback. Markets are upserted by ID and never
// deleted.
type Market struct {
	ID             string
	Slug           string
	Question       string
	Category       string
	CloseAt        time.Time // no new orders accepted after this instant
	ResolveAt      *time.Time
	Status         MarketStatus
	OracleSource   string
	OracleMarketID string
	Outcome        *Side   // non-nil only when Status is resolved
	YesPrice       float64 // oracle-quoted probability in [0,1]
	NoPrice        float64
	Raw            json.RawMessage // opaque oracle payload
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Terminal reports whether the market has reached a final state.
func (m Market) Terminal() bool {
	return m.Status == MarketStatusResolved || m.Status == MarketStatusCancelled
}

// Playable reports whether new positions may still be opened against the
// market at the given instant. CloseAt is authoritative even if the oracle
// later moves it.
func (m Market) Playable(now time.Time) bool {
	return !m.Terminal() && now.Before(m.CloseAt)
}

// SidePrice returns the oracle-quoted probability for the given side.
func (m Market) SidePrice(side Side) float64 {
	if side == SideYes {
		return m.YesPrice
	}
	return m.NoPrice
}

// MarketView is a market merged with its operator activation override (or
// engine defaults when no override exists). It is the unit consumed by
// quoting, listing, and admin reporting.
type MarketView struct {
	Market
	Active         bool
	MaxWager       float64
	HouseSpreadBps int
}
