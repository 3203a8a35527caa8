package bot

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alvarohm/upbot/internal/domain"
	"github.com/alvarohm/upbot/internal/executor"
	"github.com/alvarohm/upbot/internal/risk"
	"github.com/alvarohm/upbot/internal/strategy"
)

type fakeMarkets struct {
	state domain.MarketState
}

func (f *fakeMarkets) FetchState(context.Context) (domain.MarketState, error) {
	return f.state, nil
}

type fakeExchange struct {
	mu       sync.Mutex
	balances map[string]domain.Balance
	placed   int
}

func (f *fakeExchange) PlaceOrder(context.Context, string, domain.Side, float64, float64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.placed++
	return "order-1", nil
}

func (f *fakeExchange) CancelAllOrders(context.Context) error { return nil }

func (f *fakeExchange) GetBalanceAndAllowance(_ context.Context, tokenID string) (domain.Balance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.balances[tokenID], nil
}

func (f *fakeExchange) GrantAllowance(context.Context, string) error { return nil }

func strategyConfig() strategy.Config {
	return strategy.Config{
		ProfitTarget:    2,
		MaxBuyPrice:     50,
		MaxPositionSize: 10,
		SellBeforeStart: time.Minute,
		MinTimeToTrade:  30 * time.Second,
	}
}

func paperBot(state domain.MarketState) (*Bot, *domain.Ledger) {
	ledger := domain.NewLedger()
	ex := &fakeExchange{balances: map[string]domain.Balance{}}
	exec := executor.New(ex, ledger, nil, executor.Config{Paper: true, ProfitTarget: 2})
	gen := strategy.New(strategyConfig(), risk.New(risk.Config{MinLead: 30 * time.Second, MaxLead: time.Hour}))
	b := New(&fakeMarkets{state: state}, ex, exec, gen, ledger, nil, Config{Paper: true})
	return b, ledger
}

func TestRunOnce_EntryFlowsThroughExecutor(t *testing.T) {
	state := domain.MarketState{
		Next:        &domain.RoundMarket{Slug: "r", UpTokenID: "up", DownTokenID: "down", UpPrice: 45, DownPrice: 55},
		TimeToStart: 2 * time.Minute,
	}
	b, ledger := paperBot(state)

	require.NoError(t, b.RunOnce(context.Background()))

	pos, ok := ledger.Position("up")
	require.True(t, ok)
	assert.Equal(t, 10.0, pos.Size)
	assert.Equal(t, 45.0, pos.AvgBuyPrice)
	_, live := ledger.PendingOrder("up")
	assert.True(t, live, "paper entry still records a protective order")
}

func TestRunOnce_ForcedExitBeforeStart(t *testing.T) {
	state := domain.MarketState{
		Next:        &domain.RoundMarket{Slug: "r", UpTokenID: "up", DownTokenID: "down", UpPrice: 45, DownPrice: 55},
		TimeToStart: 10 * time.Second,
	}
	b, ledger := paperBot(state)
	ledger.Apply("up", domain.OutcomeUp, 10, 45)

	require.NoError(t, b.RunOnce(context.Background()))

	assert.Empty(t, ledger.Positions(), "held position liquidated inside the exit window")
	trades := ledger.Trades()
	require.NotEmpty(t, trades)
	assert.Equal(t, domain.SideSell, trades[len(trades)-1].Side)
}

func TestRunOnce_RefreshesPricesBeforeEvaluating(t *testing.T) {
	state := domain.MarketState{
		Next:        &domain.RoundMarket{Slug: "r", UpTokenID: "up", DownTokenID: "down", UpPrice: 48, DownPrice: 52},
		TimeToStart: 2 * time.Minute,
	}
	b, ledger := paperBot(state)
	// Bought at 45, snapshot shows 48: profit rule must see the new price.
	ledger.Apply("up", domain.OutcomeUp, 10, 45)
	ledger.SetCurrentPrice("up", 45)

	require.NoError(t, b.RunOnce(context.Background()))

	assert.Empty(t, ledger.Positions(), "profit target hit after price refresh")
}

func TestReconcile_DropsPositionsTheExchangeDoesNotHold(t *testing.T) {
	state := domain.MarketState{
		Current:   &domain.RoundMarket{Slug: "r", UpTokenID: "up", DownTokenID: "down", UpPrice: 50, DownPrice: 50},
		TimeToEnd: 30 * time.Minute,
	}
	ledger := domain.NewLedger()
	ex := &fakeExchange{balances: map[string]domain.Balance{
		"up": {Total: 0.05, Allowance: 0.05}, // dust, locally booked as 10
	}}
	exec := executor.New(ex, ledger, nil, executor.Config{ProfitTarget: 2})
	gen := strategy.New(strategyConfig(), risk.New(risk.Config{}))
	b := New(&fakeMarkets{state: state}, ex, exec, gen, ledger, nil, Config{})

	ledger.Apply("up", domain.OutcomeUp, 10, 45)
	b.reconcile(context.Background(), state)

	_, ok := ledger.Position("up")
	assert.False(t, ok, "exchange truth wins: dust balance clears the local position")
	assert.Equal(t, 1, ex.placed, "sub-unit remainder swept by a dust sell")
}

func TestReconcile_RecoversUntrackedExchangeHoldings(t *testing.T) {
	// A restart empties the in-memory ledger while the exchange still
	// holds shares. Reconciliation must rediscover them so the exit
	// rules can act before settlement.
	state := domain.MarketState{
		Current:   &domain.RoundMarket{Slug: "r", UpTokenID: "up", DownTokenID: "down", UpPrice: 52, DownPrice: 48},
		TimeToEnd: 30 * time.Minute,
	}
	ledger := domain.NewLedger()
	ex := &fakeExchange{balances: map[string]domain.Balance{
		"up": {Total: 10, Allowance: 10},
	}}
	exec := executor.New(ex, ledger, nil, executor.Config{ProfitTarget: 2})
	gen := strategy.New(strategyConfig(), risk.New(risk.Config{}))
	b := New(&fakeMarkets{state: state}, ex, exec, gen, ledger, nil, Config{})

	b.reconcile(context.Background(), state)

	pos, ok := ledger.Position("up")
	require.True(t, ok, "exchange balance with no local entry recovered into the ledger")
	assert.Equal(t, domain.OutcomeUp, pos.Outcome)
	assert.Equal(t, 10.0, pos.Size)
	assert.Equal(t, 52.0, pos.AvgBuyPrice, "snapshot price used as best-effort cost basis")

	_, ok = ledger.Position("down")
	assert.False(t, ok, "zero exchange balance creates no position")
}
