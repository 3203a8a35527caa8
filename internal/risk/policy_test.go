package risk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCheckTimeWindow_Band(t *testing.T) {
	p := New(Config{MinLead: 30 * time.Second, MaxLead: time.Hour})

	ok, reason := p.CheckTimeWindow((2 * time.Minute).Milliseconds())
	assert.True(t, ok)
	assert.Empty(t, reason)

	ok, reason = p.CheckTimeWindow((10 * time.Second).Milliseconds())
	assert.False(t, ok)
	assert.Contains(t, reason, "too close")

	ok, reason = p.CheckTimeWindow((2 * time.Hour).Milliseconds())
	assert.False(t, ok)
	assert.Contains(t, reason, "too early")
}

func TestCheckTimeWindow_BoundaryIsClosed(t *testing.T) {
	p := New(Config{MinLead: 30 * time.Second, MaxLead: time.Hour})
	ok, _ := p.CheckTimeWindow((30 * time.Second).Milliseconds())
	assert.False(t, ok, "exactly MinLead is still inside the exit window")
}

func TestCalculateMinPriceMove_AddsRoundTripFee(t *testing.T) {
	p := New(Config{FeeRateBps: 100})

	// price 40c: fee side is min(40, 60) = 40 → 0.40c per leg.
	move := p.CalculateMinPriceMove(40, 2, 10)
	assert.InDelta(t, 2.8, move, 0.001)

	// price 80c: fee side is 20 → 0.20c per leg.
	move = p.CalculateMinPriceMove(80, 2, 10)
	assert.InDelta(t, 2.4, move, 0.001)
}

func TestCalculateMinPriceMove_ZeroSize(t *testing.T) {
	p := New(Config{})
	assert.Equal(t, 0.0, p.CalculateMinPriceMove(40, 2, 0))
}
