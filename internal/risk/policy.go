package risk

import (
	"fmt"
	"math"
	"time"
)

const (
	defaultMinLead    = 30 * time.Second
	defaultMaxLead    = time.Hour
	defaultFeeRateBps = 100 // 1% taker fee on the cheaper side
)

// Config tunes the default risk policy.
type Config struct {
	// MinLead is the shortest distance to the round start at which an
	// entry is still allowed; inside it the exit rules own the book.
	MinLead time.Duration
	// MaxLead blocks entries placed absurdly early, before prices carry
	// any information about the round.
	MaxLead time.Duration
	// FeeRateBps is the taker fee in basis points of min(p, 1-p).
	FeeRateBps float64
}

// Policy is the default time-window and fee-breakeven policy.
type Policy struct {
	cfg Config
}

// New creates a Policy, filling unset fields with defaults.
func New(cfg Config) *Policy {
	if cfg.MinLead <= 0 {
		cfg.MinLead = defaultMinLead
	}
	if cfg.MaxLead <= 0 {
		cfg.MaxLead = defaultMaxLead
	}
	if cfg.FeeRateBps <= 0 {
		cfg.FeeRateBps = defaultFeeRateBps
	}
	return &Policy{cfg: cfg}
}

// CheckTimeWindow allows entries only in the band between MinLead and
// MaxLead before the next round starts.
func (p *Policy) CheckTimeWindow(timeToStartMs int64) (bool, string) {
	tts := time.Duration(timeToStartMs) * time.Millisecond
	switch {
	case tts <= p.cfg.MinLead:
		return false, fmt.Sprintf("too close to round start (%s ≤ %s)", tts.Round(time.Second), p.cfg.MinLead)
	case tts > p.cfg.MaxLead:
		return false, fmt.Sprintf("too early before round start (%s > %s)", tts.Round(time.Second), p.cfg.MaxLead)
	}
	return true, ""
}

// CalculateMinPriceMove returns the move in cents that clears both the
// profit target and the round-trip taker fee at the given entry price.
// The fee is charged on min(p, 1-p) per share on each leg, so it is
// independent of size; size only has to be positive for the trade to exist.
func (p *Policy) CalculateMinPriceMove(price, profitTarget, size float64) float64 {
	if size <= 0 {
		return 0
	}
	feePerShare := p.cfg.FeeRateBps / 10000 * math.Min(price, 100-price)
	return profitTarget + 2*feePerShare
}
