package bot

// bot.go is the evaluation loop. One goroutine drives everything: snapshot,
// price refresh, periodic reconciliation against exchange truth, signal
// generation, dispatch. Operations for one token never overlap because the
// loop is sequential; the executor's per-token locks are the backstop.

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alvarohm/upbot/internal/domain"
	"github.com/alvarohm/upbot/internal/executor"
	"github.com/alvarohm/upbot/internal/ports"
	"github.com/alvarohm/upbot/internal/strategy"
)

// Config tunes the loop cadence.
type Config struct {
	Paper         bool
	TickInterval  time.Duration
	ReconcileEach int // reconcile every N cycles; ledger drift is invisible otherwise
}

func (c *Config) setDefaults() {
	if c.TickInterval <= 0 {
		c.TickInterval = 5 * time.Second
	}
	if c.ReconcileEach <= 0 {
		c.ReconcileEach = 12
	}
}

// Bot wires the strategy, executor, and ledger to the market feed.
type Bot struct {
	markets  ports.MarketProvider
	exchange ports.ExchangeClient
	exec     *executor.Executor
	gen      *strategy.Generator
	ledger   *domain.Ledger
	notifier ports.Notifier
	cfg      Config

	cycles int
}

// New creates a Bot. notifier may be nil.
func New(
	markets ports.MarketProvider,
	exchange ports.ExchangeClient,
	exec *executor.Executor,
	gen *strategy.Generator,
	ledger *domain.Ledger,
	notifier ports.Notifier,
	cfg Config,
) *Bot {
	cfg.setDefaults()
	return &Bot{
		markets:  markets,
		exchange: exchange,
		exec:     exec,
		gen:      gen,
		ledger:   ledger,
		notifier: notifier,
		cfg:      cfg,
	}
}

// Run drives evaluation cycles until the context is cancelled. A failed
// cycle is logged and the loop continues; the next snapshot is a fresh
// start.
func (b *Bot) Run(ctx context.Context) error {
	ticker := time.NewTicker(b.cfg.TickInterval)
	defer ticker.Stop()

	for {
		if err := b.RunOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			slog.Warn("cycle failed", "err", err)
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return nil
		}
	}
}

// RunOnce executes one evaluation cycle.
func (b *Bot) RunOnce(ctx context.Context) error {
	b.cycles++

	state, err := b.markets.FetchState(ctx)
	if err != nil {
		return fmt.Errorf("bot.RunOnce: %w", err)
	}

	b.gen.UpdatePositionPrices(state, b.ledger)

	// Nothing detects ledger/exchange drift except this pass, so it runs
	// on a steady cadence even when every order seems to have landed.
	if !b.cfg.Paper && b.cycles%b.cfg.ReconcileEach == 1 {
		b.reconcile(ctx, state)
	}

	signals := b.gen.Generate(state, b.ledger.Positions())
	for _, sig := range signals {
		b.dispatch(ctx, sig)
	}

	if b.notifier != nil {
		if err := b.notifier.Notify(ctx, state, b.ledger.Positions(), b.ledger.TotalRealizedPnL()); err != nil {
			slog.Warn("notifier error", "err", err)
		}
	}
	return nil
}

// dispatch routes one signal to the executor.
func (b *Bot) dispatch(ctx context.Context, sig domain.TradeSignal) {
	slog.Info("signal", "action", sig.Action, "outcome", sig.Outcome, "price", sig.Price, "size", sig.Size, "reason", sig.Reason)

	var err error
	switch sig.Action {
	case domain.SideBuy:
		err = b.exec.Buy(ctx, sig.TokenID, sig.Outcome, sig.Price, sig.Size)
	case domain.SideSell:
		err = b.exec.Sell(ctx, sig.TokenID, sig.Outcome, sig.Price, sig.Size)
	}
	if err != nil {
		slog.Warn("signal execution failed", "action", sig.Action, "err", err)
	}
}

// reconcile overwrites local positions with exchange balances and sweeps
// sub-unit dust left behind by settlement rounding. It probes the
// snapshot's round tokens as well as the held ones, so a holding with no
// local entry (a restart, an externally filled order) is recovered into
// the ledger instead of riding unseen through settlement.
func (b *Bot) reconcile(ctx context.Context, state domain.MarketState) {
	type target struct {
		outcome domain.Outcome
		ref     float64
	}
	targets := make(map[string]target)
	for tokenID := range state.ValidTokenIDs() {
		outcome, _ := state.OutcomeFor(tokenID)
		price, _ := state.PriceFor(tokenID)
		targets[tokenID] = target{outcome: outcome, ref: price}
	}
	for _, pos := range b.ledger.Positions() {
		if _, ok := targets[pos.TokenID]; ok {
			continue
		}
		targets[pos.TokenID] = target{outcome: pos.Outcome, ref: pos.CurrentPrice}
	}

	for tokenID, tg := range targets {
		bal, err := b.exchange.GetBalanceAndAllowance(ctx, tokenID)
		if err != nil {
			slog.Warn("reconcile: balance query failed", "token", tokenID, "err", err)
			continue
		}

		b.ledger.Reconcile(tokenID, tg.outcome, bal.Total, tg.ref)

		if err := b.exec.MarketSellRemainder(ctx, tokenID, tg.outcome, tg.ref); err != nil {
			slog.Warn("reconcile: dust sweep failed", "token", tokenID, "err", err)
		}
	}
}
