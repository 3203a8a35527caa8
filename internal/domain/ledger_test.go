package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApply_CreatesPositionOnBuy(t *testing.T) {
	l := NewLedger()
	l.Apply("tok", OutcomeUp, 10, 45)

	pos, ok := l.Position("tok")
	require.True(t, ok)
	assert.Equal(t, 10.0, pos.Size)
	assert.Equal(t, 45.0, pos.AvgBuyPrice)
	assert.Equal(t, 45.0, pos.CurrentPrice)
}

func TestApply_NegativeDeltaWithoutPositionIsNoop(t *testing.T) {
	l := NewLedger()
	l.Apply("tok", OutcomeUp, -5, 45)

	_, ok := l.Position("tok")
	assert.False(t, ok)
}

func TestApply_WeightedAverageAcrossBuys(t *testing.T) {
	l := NewLedger()
	l.Apply("tok", OutcomeUp, 10, 40)
	l.Apply("tok", OutcomeUp, 10, 50)

	pos, _ := l.Position("tok")
	assert.Equal(t, 20.0, pos.Size)
	assert.InDelta(t, 45.0, pos.AvgBuyPrice, 0.001)
}

func TestApply_AverageIndependentOfSellInterleaving(t *testing.T) {
	// avgBuyPrice must equal the size-weighted mean of all buy fills no
	// matter how sells interleave.
	l := NewLedger()
	l.Apply("tok", OutcomeUp, 10, 40) // avg 40
	l.Apply("tok", OutcomeUp, -5, 42) // sell, avg untouched
	l.Apply("tok", OutcomeUp, 5, 60)  // (40×5 + 60×5)/10 = 50

	pos, _ := l.Position("tok")
	assert.Equal(t, 10.0, pos.Size)
	assert.InDelta(t, 50.0, pos.AvgBuyPrice, 0.001)
}

func TestApply_SellNeverChangesCostBasis(t *testing.T) {
	l := NewLedger()
	l.Apply("tok", OutcomeDown, 10, 40)
	l.Apply("tok", OutcomeDown, -3, 55)

	pos, _ := l.Position("tok")
	assert.Equal(t, 7.0, pos.Size)
	assert.Equal(t, 40.0, pos.AvgBuyPrice)
	assert.Equal(t, 55.0, pos.CurrentPrice)
}

func TestApply_ExactSellRemovesPosition(t *testing.T) {
	l := NewLedger()
	l.Apply("tok", OutcomeUp, 10, 40)
	l.Apply("tok", OutcomeUp, -10, 44)

	_, ok := l.Position("tok")
	assert.False(t, ok)
}

func TestApply_OversellRemovesPosition(t *testing.T) {
	// Size never persists negative.
	l := NewLedger()
	l.Apply("tok", OutcomeUp, 10, 40)
	l.Apply("tok", OutcomeUp, -25, 44)

	_, ok := l.Position("tok")
	assert.False(t, ok)
	assert.Empty(t, l.Positions())
}

func TestReconcile_DustBelowThresholdIsZero(t *testing.T) {
	l := NewLedger()
	l.Reconcile("tok", OutcomeUp, 0.05, 50)

	_, ok := l.Position("tok")
	assert.False(t, ok, "dust must not create a phantom position")
}

func TestReconcile_DustDeletesExistingEntry(t *testing.T) {
	l := NewLedger()
	l.Apply("tok", OutcomeUp, 10, 40)
	l.Reconcile("tok", OutcomeUp, 0.09, 50)

	_, ok := l.Position("tok")
	assert.False(t, ok)
}

func TestReconcile_FloorsSizeAndKeepsCostBasis(t *testing.T) {
	l := NewLedger()
	l.Apply("tok", OutcomeUp, 10, 40)
	l.Reconcile("tok", OutcomeUp, 7.8, 52)

	pos, ok := l.Position("tok")
	require.True(t, ok)
	assert.Equal(t, 7.0, pos.Size)
	assert.Equal(t, 52.0, pos.CurrentPrice)
	assert.Equal(t, 40.0, pos.AvgBuyPrice, "reconcile must not rewrite cost basis of a known position")
}

func TestReconcile_DiscoveredPositionGetsSyntheticBasis(t *testing.T) {
	l := NewLedger()
	l.Reconcile("tok", OutcomeDown, 12.4, 33)

	pos, ok := l.Position("tok")
	require.True(t, ok)
	assert.Equal(t, 12.0, pos.Size)
	assert.Equal(t, 33.0, pos.AvgBuyPrice)
}

func TestPendingOrder_AtMostOnePerToken(t *testing.T) {
	l := NewLedger()
	l.SetPendingOrder("tok", "order-1")
	l.SetPendingOrder("tok", "order-2")

	id, ok := l.PendingOrder("tok")
	assert.True(t, ok)
	assert.Equal(t, "order-2", id)

	l.ClearPendingOrder("tok")
	_, ok = l.PendingOrder("tok")
	assert.False(t, ok)
}

func TestPendingOrder_EmptyIDIsNotLive(t *testing.T) {
	l := NewLedger()
	l.SetPendingOrder("tok", "")
	_, ok := l.PendingOrder("tok")
	assert.False(t, ok)
}

func TestTotalRealizedPnL_SumsSellRecords(t *testing.T) {
	l := NewLedger()
	l.Record(TradeRecord{TokenID: "a", Side: SideBuy, Price: 40, Size: 10})
	l.Record(TradeRecord{TokenID: "a", Side: SideSell, Price: 44, Size: 10, PnL: 40})
	l.Record(TradeRecord{TokenID: "b", Side: SideSell, Price: 30, Size: 5, PnL: -25})

	assert.InDelta(t, 15.0, l.TotalRealizedPnL(), 0.001)
}

func TestSetCurrentPrice_OnlyTouchesHeldTokens(t *testing.T) {
	l := NewLedger()
	l.Apply("tok", OutcomeUp, 10, 40)
	l.SetCurrentPrice("tok", 43)
	l.SetCurrentPrice("other", 99)

	pos, _ := l.Position("tok")
	assert.Equal(t, 43.0, pos.CurrentPrice)
	_, ok := l.Position("other")
	assert.False(t, ok)
}
