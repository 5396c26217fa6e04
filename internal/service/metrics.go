package service

import "sync"

// Metrics is an in-process counter set exposed through the admin surface.
// Counters only ever increase; a restart resets them.
type Metrics struct {
	mu       sync.Mutex
	counters map[string]int64
}

// Counter names incremented by the engine.
const (
	MetricQuotesServed      = "quotes_served"
	MetricQuotesRejected    = "quotes_rejected"
	MetricPositionsOpened   = "positions_opened"
	MetricPositionsSettled  = "positions_settled"
	MetricSettlementFailure = "settlement_failures"
	MetricOracleSyncs       = "oracle_syncs"
)

// NewMetrics creates an empty counter set.
func NewMetrics() *Metrics {
	return &Metrics{counters: make(map[string]int64)}
}

// Inc adds one to the named counter.
func (m *Metrics) Inc(name string) {
	m.Add(name, 1)
}

// Add adds delta to the named counter.
func (m *Metrics) Add(name string, delta int64) {
	m.mu.Lock()
	m.counters[name] += delta
	m.mu.Unlock()
}

// Snapshot returns a copy of all counters.
func (m *Metrics) Snapshot() map[string]int64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]int64, len(m.counters))
	for k, v := range m.counters {
		out[k] = v
	}
	return out
}
