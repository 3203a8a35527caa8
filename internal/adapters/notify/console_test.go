package notify

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alvarohm/upbot/internal/domain"
)

func testState() domain.MarketState {
	return domain.MarketState{
		Current:   &domain.RoundMarket{Slug: "btc-1300", UpTokenID: "up", DownTokenID: "down", UpPrice: 55, DownPrice: 45},
		Next:      &domain.RoundMarket{Slug: "btc-1400", UpTokenID: "nup", DownTokenID: "ndown", UpPrice: 48, DownPrice: 52},
		TimeToEnd: 20 * time.Minute, TimeToStart: 20 * time.Minute,
	}
}

func TestNotify_CompactLine(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsoleWriter(&buf, false)

	positions := []domain.Position{
		{TokenID: "up", Outcome: domain.OutcomeUp, Size: 10, AvgBuyPrice: 45, CurrentPrice: 48},
	}
	require.NoError(t, c.Notify(context.Background(), testState(), positions, 120))

	out := buf.String()
	assert.Contains(t, out, "btc-1300")
	assert.Contains(t, out, "pos:1")
	assert.Contains(t, out, "+120.0c")
	assert.Contains(t, out, "+30.0c", "unrealized (48-45)×10")
}

func TestNotify_TableModeListsPositions(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsoleWriter(&buf, true)

	positions := []domain.Position{
		{TokenID: "very-long-token-id-xyz", Outcome: domain.OutcomeDown, Size: 5, AvgBuyPrice: 40, CurrentPrice: 38},
	}
	require.NoError(t, c.Notify(context.Background(), testState(), positions, 0))

	out := buf.String()
	assert.Contains(t, out, "Down")
	assert.Contains(t, out, "-10.0c")
	assert.NotContains(t, out, "very-long-token-id-xyz", "token IDs are truncated for display")
}

func TestNotify_NoRoundsNoPositions(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsoleWriter(&buf, true)

	require.NoError(t, c.Notify(context.Background(), domain.MarketState{}, nil, 0))
	assert.Contains(t, buf.String(), "no open rounds")
	assert.Contains(t, buf.String(), "no open positions")
}
