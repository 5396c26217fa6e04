package domain

import "time"

// PositionStatus tracks a position through its lifecycle. A position moves
// from open to exactly one terminal status and is never deleted.
type PositionStatus string

const (
	PositionStatusOpen   PositionStatus = "open"
	PositionStatusWon    PositionStatus = "won"
	PositionStatusLost   PositionStatus = "lost"
	PositionStatusVoided PositionStatus = "voided"
)

// Terminal reports whether the status is final.
func (s PositionStatus) Terminal() bool {
	return s == PositionStatusWon || s == PositionStatusLost || s == PositionStatusVoided
}

// Settlement reason tags stored alongside the terminal status.
const (
	ReasonVoided        = "voided"
	ReasonWonRefundOnly = "won_refund_only"
	ReasonWonPartial    = "won_partial_liquidity"
	ReasonWonProfit     = "won_profit"
	ReasonLost          = "lost"
)

// MarketPosition is one player's stake on one side of one market. The stake
// is locked in escrow before the row is created, and the row is mutated
// exactly once, by settlement.
type MarketPosition struct {
	ID       string
	MarketID string
	PlayerID string
	WalletID string
	Side     Side
	Stake    float64 // > 0
	Price    float64 // execution price in [0.01, 0.99]
	Shares   float64 // stake / price, 6 decimals

	// EscrowBetID is the immutable correlation key for every escrow call made
	// on behalf of this position.
	EscrowBetID string

	Status           PositionStatus
	Payout           *float64 // set at settlement
	SettlementReason string   // empty while open

	// Snapshots taken at open time, for client display only. Settlement never
	// re-derives from these.
	EstimatedPayoutAtOpen float64
	MinPayoutAtOpen       float64

	CreatedAt time.Time
	SettledAt *time.Time
}

// PositionSettlement is the single-row terminal update applied by the
// settlement engine.
type PositionSettlement struct {
	PositionID string
	Status     PositionStatus
	Payout     float64
	Reason     string
}
