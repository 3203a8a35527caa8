package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alvarohm/upbot/internal/domain"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestAppendAndHistory(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, store.Append(ctx, domain.TradeRecord{
		Timestamp: base, TokenID: "tok", Outcome: domain.OutcomeUp,
		Side: domain.SideBuy, Price: 45, Size: 10,
	}))
	require.NoError(t, store.Append(ctx, domain.TradeRecord{
		Timestamp: base.Add(5 * time.Minute), TokenID: "tok", Outcome: domain.OutcomeUp,
		Side: domain.SideSell, Price: 48, Size: 10, PnL: 30,
	}))

	trades, err := store.History(ctx, base, base.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, trades, 2)
	assert.Equal(t, domain.SideBuy, trades[0].Side)
	assert.Equal(t, domain.SideSell, trades[1].Side)
	assert.Equal(t, 30.0, trades[1].PnL)
	assert.Equal(t, domain.OutcomeUp, trades[1].Outcome)
}

func TestHistory_RangeExcludesOutside(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		require.NoError(t, store.Append(ctx, domain.TradeRecord{
			Timestamp: base.Add(time.Duration(i) * time.Hour),
			TokenID:   "tok", Outcome: domain.OutcomeDown, Side: domain.SideBuy, Price: 40, Size: 1,
		}))
	}

	trades, err := store.History(ctx, base.Add(30*time.Minute), base.Add(90*time.Minute))
	require.NoError(t, err)
	assert.Len(t, trades, 1)
}

func TestRealizedPnL_SumsOnlySells(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, domain.TradeRecord{TokenID: "a", Outcome: domain.OutcomeUp, Side: domain.SideBuy, Price: 40, Size: 10}))
	require.NoError(t, store.Append(ctx, domain.TradeRecord{TokenID: "a", Outcome: domain.OutcomeUp, Side: domain.SideSell, Price: 44, Size: 10, PnL: 40}))
	require.NoError(t, store.Append(ctx, domain.TradeRecord{TokenID: "b", Outcome: domain.OutcomeDown, Side: domain.SideSell, Price: 30, Size: 5, PnL: -25}))

	total, err := store.RealizedPnL(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 15.0, total, 0.001)
}

func TestRealizedPnL_EmptyJournal(t *testing.T) {
	store := openTestStore(t)
	total, err := store.RealizedPnL(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0.0, total)
}
