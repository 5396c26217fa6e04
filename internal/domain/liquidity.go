package domain

// LiquidityPool is the aggregate open stake per side of one market. Pools are
// always re-derived from currently-open positions; nothing caches them, so a
// settlement pass can never observe a stale fold.
type LiquidityPool struct {
	YesStaked float64
	NoStaked  float64
}

// SideStaked returns the staked amount on the given side.
func (p LiquidityPool) SideStaked(side Side) float64 {
	if side == SideYes {
		return p.YesStaked
	}
	return p.NoStaked
}

// Opposite returns the staked amount on the other side.
func (p LiquidityPool) Opposite(side Side) float64 {
	if side == SideYes {
		return p.NoStaked
	}
	return p.YesStaked
}

// RefundOnlyRisk reports whether exactly one side holds stake, meaning a win
// on the staked side could only be paid as a refund.
func (p LiquidityPool) RefundOnlyRisk() bool {
	return (p.YesStaked > 0) != (p.NoStaked > 0)
}
