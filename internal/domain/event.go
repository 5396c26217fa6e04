package domain

import "time"

// Interaction event kinds emitted by the engine. Telemetry only; settlement
// correctness never depends on these rows.
const (
	EventPositionOpened  = "position_opened"
	EventPositionSettled = "position_settled"
)

// InteractionEvent is one append-only row in the player-facing funnel log.
type InteractionEvent struct {
	ID        string
	PlayerID  string
	MarketID  string
	Kind      string
	Detail    map[string]any
	CreatedAt time.Time
}

// InteractionCount is an aggregate of events by kind over a trailing window.
type InteractionCount struct {
	Kind  string
	Count int64
}
