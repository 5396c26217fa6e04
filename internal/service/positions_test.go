package service

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sidebook/sidebook/internal/domain"
)

func openRequest(marketID string) OpenPositionRequest {
	return OpenPositionRequest{
		MarketID: marketID,
		PlayerID: "alice",
		WalletID: "0xalice",
		Side:     domain.SideYes,
		Stake:    10,
	}
}

func TestOpen_Success(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)
	e.openMarket(t, "mkt-1", 0.6)
	e.activate(t, "mkt-1")

	res, err := e.positions.Open(ctx, openRequest("mkt-1"))
	require.NoError(t, err)
	require.True(t, res.OK)
	require.NotNil(t, res.Position)

	pos := *res.Position
	assert.Equal(t, domain.PositionStatusOpen, pos.Status)
	assert.InDelta(t, 0.61, pos.Price, 1e-9)
	assert.Equal(t, EscrowBetID("mkt-1", pos.ID), pos.EscrowBetID)
	assert.Equal(t, 10.0, pos.MinPayoutAtOpen)

	// Escrow ran before the row was written, preflight before lock.
	assert.Equal(t, 1, e.escrow.preflightCalls)
	assert.Equal(t, 1, e.escrow.lockCalls[pos.EscrowBetID])

	// The row is durable and the funnel recorded the open.
	stored := e.posStore.mustGet(t, pos.ID)
	assert.Equal(t, pos.EscrowBetID, stored.EscrowBetID)
	counts, err := e.eventStore.CountsSince(ctx, 0)
	require.NoError(t, err)
	require.Len(t, counts, 1)
	assert.Equal(t, domain.EventPositionOpened, counts[0].Kind)
}

func TestOpen_QuoteRejectionPassesThrough(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)

	res, err := e.positions.Open(ctx, openRequest("missing"))
	require.NoError(t, err)
	assert.False(t, res.OK)
	assert.Equal(t, domain.ReasonMarketNotFound, res.Reason)
	assert.Zero(t, e.escrow.preflightCalls)
}

func TestOpen_TooManyOpenPositions(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)
	e.openMarket(t, "mkt-1", 0.5)
	e.activate(t, "mkt-1")

	for i := 0; i < e.cfg.MaxOpenPositions; i++ {
		e.seedPosition(t, fmt.Sprintf("pos-%d", i), "mkt-1", "alice", domain.SideYes, 1, 0.5)
	}

	res, err := e.positions.Open(ctx, openRequest("mkt-1"))
	require.NoError(t, err)
	assert.False(t, res.OK)
	assert.Equal(t, domain.ReasonTooManyOpenPositions, res.Reason)
	assert.Zero(t, e.escrow.preflightCalls)
}

func TestOpen_WalletRequired(t *testing.T) {
	ctx := context.Background()

	// No house wallet configured.
	e := newEngineNoWallet(t)
	e.openMarket(t, "mkt-1", 0.5)
	e.activate(t, "mkt-1")

	res, err := e.positions.Open(ctx, openRequest("mkt-1"))
	require.NoError(t, err)
	assert.Equal(t, domain.ReasonWalletRequired, res.Reason)

	// House configured but the player sent no wallet.
	e = newEngine(t)
	e.openMarket(t, "mkt-1", 0.5)
	e.activate(t, "mkt-1")

	req := openRequest("mkt-1")
	req.WalletID = "  "
	res, err = e.positions.Open(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, domain.ReasonWalletRequired, res.Reason)
	assert.Zero(t, e.escrow.preflightCalls)
}

func TestOpen_EscrowRejection(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)
	e.openMarket(t, "mkt-1", 0.5)
	e.activate(t, "mkt-1")

	e.escrow.preflightResult = domain.EscrowPreflightResult{
		OK:         false,
		ReasonCode: "insufficient_funds",
		ReasonText: "balance too low",
	}

	res, err := e.positions.Open(ctx, openRequest("mkt-1"))
	require.NoError(t, err)
	assert.Equal(t, domain.ReasonEscrowRejected, res.Reason)
	assert.Equal(t, "balance too low", res.ReasonText)
	assert.Equal(t, "insufficient_funds", res.AdapterCode)

	// Nothing was locked and nothing was stored.
	assert.Empty(t, e.escrow.lockCalls)
	open, _ := e.posStore.ListOpen(ctx, 0)
	assert.Empty(t, open)
}

func TestOpen_EscrowRejectionSurfacesAdapterVerdict(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)
	e.openMarket(t, "mkt-1", 0.5)
	e.activate(t, "mkt-1")

	// Some adapters only populate reason + reasonCode, not the display text.
	e.escrow.preflightResult = domain.EscrowPreflightResult{
		OK:         false,
		Reason:     "insufficient balance in challenger wallet",
		ReasonCode: "insufficient_funds",
	}

	res, err := e.positions.Open(ctx, openRequest("mkt-1"))
	require.NoError(t, err)
	assert.Equal(t, domain.ReasonEscrowRejected, res.Reason)
	assert.Equal(t, "insufficient balance in challenger wallet", res.ReasonText)
	assert.Equal(t, "insufficient_funds", res.AdapterCode)
}

func TestOpen_LockFailure(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)
	e.openMarket(t, "mkt-1", 0.5)
	e.activate(t, "mkt-1")

	e.escrow.lockResult = domain.EscrowLockResult{OK: false, Reason: "lock denied"}

	res, err := e.positions.Open(ctx, openRequest("mkt-1"))
	require.NoError(t, err)
	assert.Equal(t, domain.ReasonEscrowLockFailed, res.Reason)
	open, _ := e.posStore.ListOpen(ctx, 0)
	assert.Empty(t, open)
}

func TestOpen_CreateFailureRefundsLock(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)
	e.openMarket(t, "mkt-1", 0.5)
	e.activate(t, "mkt-1")

	e.posStore.failCreate = true

	res, err := e.positions.Open(ctx, openRequest("mkt-1"))
	require.NoError(t, err)
	assert.Equal(t, domain.ReasonPositionCreateFailed, res.Reason)

	// The locked stake was released; money never sits behind a row that
	// does not exist.
	totalRefunds := 0
	for betID := range e.escrow.lockCalls {
		totalRefunds += e.escrow.refunds(betID)
	}
	assert.Equal(t, 1, totalRefunds)
}

func TestEscrowBetID(t *testing.T) {
	assert.Equal(t, "mkt1-pos9", EscrowBetID("mkt-1", "pos 9"))

	// Long inputs are clipped to the adapter's 64-character key limit.
	long := EscrowBetID(strings.Repeat("a", 50), strings.Repeat("b", 50))
	assert.Len(t, long, 64)

	// Derivation is pure: the same inputs always produce the same key.
	assert.Equal(t,
		EscrowBetID("mkt-1", "0c1de2f3"),
		EscrowBetID("mkt-1", "0c1de2f3"),
	)
}
