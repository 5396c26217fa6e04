package domain

// ReasonCode is a stable, user-displayable code explaining why a quote or
// position-open request was rejected. The set is closed so the client layer
// can map each code to localized copy.
type ReasonCode string

const (
	ReasonMarketNotFound       ReasonCode = "market_not_found"
	ReasonMarketInactive       ReasonCode = "market_inactive"
	ReasonOracleUnavailable    ReasonCode = "oracle_unavailable"
	ReasonMarketClosed         ReasonCode = "market_closed"
	ReasonWagerTooHigh         ReasonCode = "wager_too_high"
	ReasonTooManyOpenPositions ReasonCode = "too_many_open_positions"
	ReasonWalletRequired       ReasonCode = "wallet_required"
	ReasonEscrowRejected       ReasonCode = "escrow_rejected"
	ReasonEscrowLockFailed     ReasonCode = "escrow_lock_failed"
	ReasonPositionCreateFailed ReasonCode = "position_create_failed"
)

// Quote is an executable price for a stake on one side of a market, together
// with the liquidity-aware payout projection shown to the player. The
// projection uses the same proportional-pool formula as settlement so the
// number the player sees is never systematically misleading.
type Quote struct {
	MarketID string
	Side     Side
	Stake    float64
	Price    float64 // oracle price + half spread, clamped to [0.01, 0.99]
	Shares   float64 // stake / price, 6 decimals

	// PotentialPayout is the payout if counter-liquidity were infinite
	// (stake / price). Kept for backward compatibility with older clients.
	PotentialPayout float64

	SameSidePool     float64
	OppositePool     float64
	ProjectedPayout  float64 // proportional-pool projection, capped at PotentialPayout
	MinPayout        float64 // stake; a winner never nets less than a refund
	LiquidityWarning string  // non-empty when the opposite pool is currently zero
}

// QuoteResult is the structured outcome of a quote request. Rejections are
// values, not errors: OK is false and Reason carries the code.
type QuoteResult struct {
	OK         bool
	Reason     ReasonCode
	ReasonText string
	Quote      *Quote
}

// Reject builds a failed QuoteResult.
func Reject(code ReasonCode, text string) QuoteResult {
	return QuoteResult{Reason: code, ReasonText: text}
}
