package domain

import "math"

// Round6 rounds a currency amount to 6 fractional digits, the settlement
// precision used throughout the engine.
func Round6(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}

// ClampPrice bounds an execution price to [0.01, 0.99] so a position can
// neither be free nor pay nothing.
func ClampPrice(p float64) float64 {
	if p < 0.01 {
		return 0.01
	}
	if p > 0.99 {
		return 0.99
	}
	return p
}
