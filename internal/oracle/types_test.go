package oracle

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sidebook/sidebook/internal/domain"
)

func decodeAPIMarket(t *testing.T, payload string) apiMarket {
	t.Helper()
	var am apiMarket
	require.NoError(t, json.Unmarshal([]byte(payload), &am))
	return am
}

func TestToDomain_OpenMarket(t *testing.T) {
	payload := `{
		"id": "mkt-1",
		"slug": "btc-above-open",
		"question": "Will BTC close above its opening price?",
		"category": "crypto",
		"closeTime": 1767225600000,
		"status": "active",
		"yesPrice": 0.62,
		"noPrice": 0.38
	}`
	am := decodeAPIMarket(t, payload)

	m := am.toDomain("polymarket", json.RawMessage(payload))

	assert.Equal(t, "mkt-1", m.ID)
	assert.Equal(t, domain.MarketStatusOpen, m.Status)
	assert.Equal(t, "polymarket", m.OracleSource)
	assert.Equal(t, time.UnixMilli(1767225600000).UTC(), m.CloseAt)
	assert.InDelta(t, 0.62, m.YesPrice, 1e-9)
	assert.InDelta(t, 0.38, m.NoPrice, 1e-9)
	assert.Nil(t, m.Outcome)
	assert.JSONEq(t, payload, string(m.Raw))
}

func TestToDomain_ResolvedCarriesOutcome(t *testing.T) {
	am := decodeAPIMarket(t, `{"id":"mkt-2","status":"resolved","outcome":"Yes","closeTime":1}`)

	m := am.toDomain("polymarket", nil)

	assert.Equal(t, domain.MarketStatusResolved, m.Status)
	require.NotNil(t, m.Outcome)
	assert.Equal(t, domain.SideYes, *m.Outcome)
}

func TestToDomain_OutcomeDroppedWhenNotResolved(t *testing.T) {
	// A feed bug attaching an outcome to an open market must not leak the
	// outcome into the domain record.
	am := decodeAPIMarket(t, `{"id":"mkt-3","status":"open","outcome":"yes","closeTime":1}`)

	m := am.toDomain("polymarket", nil)

	assert.Nil(t, m.Outcome)
}

func TestToDomain_UnknownStatusIsClosed(t *testing.T) {
	am := decodeAPIMarket(t, `{"id":"mkt-4","status":"suspended","closeTime":1}`)

	assert.Equal(t, domain.MarketStatusClosed, am.toDomain("polymarket", nil).Status)
}

func TestNormalizePrices(t *testing.T) {
	y, n := normalizePrices(nil, nil)
	assert.Equal(t, 0.5, y)
	assert.Equal(t, 0.5, n)

	yes := 0.7
	y, n = normalizePrices(&yes, nil)
	assert.InDelta(t, 0.7, y, 1e-9)
	assert.InDelta(t, 0.3, n, 1e-9)

	over := 1.4
	y, _ = normalizePrices(&over, nil)
	assert.Equal(t, 1.0, y)
}
