package domain

import (
	"context"
	"encoding/json"
)

// EscrowPreflight is a dry-run balance/allowance check on both legs of a
// stake before anything is locked.
type EscrowPreflight struct {
	ChallengerWalletID string
	OpponentWalletID   string
	Amount             float64
}

// EscrowPreflightResult carries the adapter's verdict. Reason and ReasonCode
// are adapter-sourced and surfaced to the player verbatim where present.
type EscrowPreflightResult struct {
	OK         bool
	Reason     string
	ReasonCode string
	ReasonText string
	Raw        json.RawMessage
}

// EscrowLock asks the adapter to actually reserve the stake. BetID becomes
// the idempotency key for every later call about this position.
type EscrowLock struct {
	BetID              string
	ChallengerWalletID string
	OpponentWalletID   string
	Amount             float64
}

// EscrowLockResult is the outcome of a lock attempt.
type EscrowLockResult struct {
	OK     bool
	Reason string
	Raw    json.RawMessage
}

// EscrowResolveResult is the outcome of paying a winner. When the adapter
// reports a payout figure it is authoritative (it may include fees or
// on-chain rounding) and is preferred over the locally computed amount.
type EscrowResolveResult struct {
	OK     bool
	Payout *float64
}

// EscrowRefundResult is the outcome of returning a stake to its owner.
type EscrowRefundResult struct {
	OK bool
}

// EscrowAdapter is the settlement boundary. All four operations MUST be
// idempotent keyed by the bet ID: the settlement pass is re-run after
// partial failures, and a retried Resolve or Refund must never double-pay.
// This engine cannot enforce that locally; it is a hard contract on the
// adapter.
type EscrowAdapter interface {
	PreflightStake(ctx context.Context, req EscrowPreflight) (EscrowPreflightResult, error)
	LockStake(ctx context.Context, req EscrowLock) (EscrowLockResult, error)
	Resolve(ctx context.Context, betID, winnerWalletID string) (EscrowResolveResult, error)
	Refund(ctx context.Context, betID string) (EscrowRefundResult, error)
}

// WalletResolver supplies the house wallet. A missing house signer is a
// valid, expected state and must degrade to a wallet_required rejection, not
// a panic.
type WalletResolver interface {
	HouseWalletID() (string, bool)
}
