package ports

// RiskPolicy gates entries by timing and quantifies the fee hurdle.
type RiskPolicy interface {
	// CheckTimeWindow reports whether an entry is allowed at the given
	// distance (ms) from the next round's start, with a diagnostic reason
	// when it is not.
	CheckTimeWindow(timeToStartMs int64) (canTrade bool, reason string)

	// CalculateMinPriceMove returns the price move in cents needed to
	// clear both the profit target and round-trip fees at the given entry
	// price and size.
	CalculateMinPriceMove(price, profitTarget, size float64) float64
}
