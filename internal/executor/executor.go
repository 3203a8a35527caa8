package executor

// executor.go translates trade intents into exchange calls and keeps the
// ledger in step with what was sent.
//
// Every operation serializes per token: overlapping calls for the same
// token queue behind a token-scoped mutex instead of racing past the
// protective-order idempotency check. Different tokens never contend.
//
// Paper mode short-circuits before any exchange contact and applies the
// same ledger and journal mutations, so strategy and accounting behave
// identically with or without a live exchange.

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alvarohm/upbot/internal/domain"
	"github.com/alvarohm/upbot/internal/ports"
)

const (
	// Marketable buys bid this many cents over the hint, capped at the ceiling.
	defaultSlippage = 2.0
	priceCeiling    = 99.0

	// Limit orders never go below this (dollars).
	floorPrice = 0.01

	// Discounts (cents) forcing immediate fills. Liquidation is more
	// aggressive than routine dust cleanup; the exit must land.
	dustDiscount        = 2.0
	liquidationDiscount = 5.0

	// Below one share the position cannot be sold as a unit.
	minSellableShares = 1.0
)

// Config holds executor tuning. Prices in cents.
type Config struct {
	Paper             bool
	ProfitTarget      float64 // protective sell offset over the buy price
	SlippageAllowance float64
	SettleInterval    time.Duration // allowance poll cadence after a fill
	SettleTimeout     time.Duration // give up waiting for settlement
	RetryBackoff      time.Duration // wait before the single protective retry
}

func (c *Config) setDefaults() {
	if c.SlippageAllowance <= 0 {
		c.SlippageAllowance = defaultSlippage
	}
	if c.SettleInterval <= 0 {
		c.SettleInterval = 500 * time.Millisecond
	}
	if c.SettleTimeout <= 0 {
		c.SettleTimeout = 5 * time.Second
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 2 * time.Second
	}
}

// Executor turns signals into exchange orders and ledger mutations.
type Executor struct {
	exchange ports.ExchangeClient
	ledger   *domain.Ledger
	store    ports.TradeStore // optional journal persistence
	cfg      Config

	mu     sync.Mutex
	tokens map[string]*sync.Mutex
}

// New creates an Executor. store may be nil (journal kept in memory only).
func New(exchange ports.ExchangeClient, ledger *domain.Ledger, store ports.TradeStore, cfg Config) *Executor {
	cfg.setDefaults()
	return &Executor{
		exchange: exchange,
		ledger:   ledger,
		store:    store,
		cfg:      cfg,
		tokens:   make(map[string]*sync.Mutex),
	}
}

// lockToken returns the mutex scoping all operations on one token.
func (e *Executor) lockToken(tokenID string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	m, ok := e.tokens[tokenID]
	if !ok {
		m = &sync.Mutex{}
		e.tokens[tokenID] = m
	}
	return m
}

// Buy submits a marketable buy for size shares at priceHint (cents) and
// attaches a protective limit sell at priceHint + profit target. The ledger
// is updated with the requested price, not the fill price. The protective
// leg retries once after a fixed backoff; if it still fails the buy is
// reported successful anyway and the gap is logged. An error is returned
// only when the initial buy call itself fails.
func (e *Executor) Buy(ctx context.Context, tokenID string, outcome domain.Outcome, priceHint, size float64) error {
	m := e.lockToken(tokenID)
	m.Lock()
	defer m.Unlock()

	if e.cfg.Paper {
		e.ledger.Apply(tokenID, outcome, size, priceHint)
		e.record(ctx, domain.TradeRecord{TokenID: tokenID, Outcome: outcome, Side: domain.SideBuy, Price: priceHint, Size: size})
		e.ledger.SetPendingOrder(tokenID, paperOrderID())
		slog.Info("paper buy", "token", short(tokenID), "outcome", outcome, "price", priceHint, "size", size)
		return nil
	}

	limit := math.Min(priceHint+e.cfg.SlippageAllowance, priceCeiling)
	if _, err := e.exchange.PlaceOrder(ctx, tokenID, domain.SideBuy, toDollars(limit), size); err != nil {
		return fmt.Errorf("executor.Buy %s: %w", short(tokenID), err)
	}

	e.ledger.Apply(tokenID, outcome, size, priceHint)
	e.record(ctx, domain.TradeRecord{TokenID: tokenID, Outcome: outcome, Side: domain.SideBuy, Price: priceHint, Size: size})
	slog.Info("buy filled", "token", short(tokenID), "outcome", outcome, "price", priceHint, "size", size)

	// Settlement may round the sellable quantity below the requested size;
	// the protective sell uses whatever actually settled.
	sellable, err := e.awaitSellable(ctx, tokenID)
	if err != nil {
		slog.Warn("buy: settlement check failed, position unprotected", "token", short(tokenID), "err", err)
		return nil
	}
	if sellable < minSellableShares {
		slog.Warn("buy: nothing sellable after settlement, position unprotected", "token", short(tokenID), "sellable", sellable)
		return nil
	}

	if err := e.placeProtective(ctx, tokenID, priceHint, sellable); err != nil {
		slog.Warn("buy: protective sell never landed", "token", short(tokenID), "err", err)
	}
	return nil
}

// Sell places a direct sell at price (cents) and, on success, realizes PnL
// against the cost basis held before the mutation. On failure the ledger is
// untouched: all or nothing from the caller's view.
func (e *Executor) Sell(ctx context.Context, tokenID string, outcome domain.Outcome, price, size float64) error {
	m := e.lockToken(tokenID)
	m.Lock()
	defer m.Unlock()
	return e.sellLocked(ctx, tokenID, outcome, price, size)
}

func (e *Executor) sellLocked(ctx context.Context, tokenID string, outcome domain.Outcome, price, size float64) error {
	var pnl float64
	if pos, ok := e.ledger.Position(tokenID); ok {
		pnl = (price - pos.AvgBuyPrice) * size
	}

	if !e.cfg.Paper {
		if _, err := e.exchange.PlaceOrder(ctx, tokenID, domain.SideSell, toDollars(price), size); err != nil {
			return fmt.Errorf("executor.Sell %s: %w", short(tokenID), err)
		}
	}

	e.ledger.Apply(tokenID, outcome, -size, price)
	e.record(ctx, domain.TradeRecord{TokenID: tokenID, Outcome: outcome, Side: domain.SideSell, Price: price, Size: size, PnL: pnl})
	slog.Info("sell filled", "token", short(tokenID), "price", price, "size", size, "pnl", fmt.Sprintf("%+.1fc", pnl))
	return nil
}

// PlaceLimitSellForPosition places the protective sell for an already held
// position. Idempotent: when a protective order is already recorded for the
// token it returns success without contacting the exchange.
func (e *Executor) PlaceLimitSellForPosition(ctx context.Context, tokenID string, outcome domain.Outcome, buyPrice float64) error {
	m := e.lockToken(tokenID)
	m.Lock()
	defer m.Unlock()

	if _, live := e.ledger.PendingOrder(tokenID); live {
		return nil
	}

	if e.cfg.Paper {
		e.ledger.SetPendingOrder(tokenID, paperOrderID())
		return nil
	}

	sellable, err := e.awaitSellable(ctx, tokenID)
	if err != nil {
		return fmt.Errorf("executor.PlaceLimitSellForPosition %s: %w", short(tokenID), err)
	}
	if sellable < minSellableShares {
		slog.Warn("protective sell skipped, nothing sellable", "token", short(tokenID), "sellable", sellable)
		return nil
	}
	return e.placeProtective(ctx, tokenID, buyPrice, sellable)
}

// placeProtective submits the limit sell at buyPrice + profit target with
// exactly one retry, recording the order ID on success.
func (e *Executor) placeProtective(ctx context.Context, tokenID string, buyPrice, size float64) error {
	target := toDollars(buyPrice + e.cfg.ProfitTarget)

	orderID, err := e.exchange.PlaceOrder(ctx, tokenID, domain.SideSell, target, size)
	if err != nil {
		slog.Warn("protective sell rejected, retrying once", "token", short(tokenID), "err", err)
		select {
		case <-time.After(e.cfg.RetryBackoff):
		case <-ctx.Done():
			return ctx.Err()
		}
		orderID, err = e.exchange.PlaceOrder(ctx, tokenID, domain.SideSell, target, size)
		if err != nil {
			return fmt.Errorf("protective sell: %w", err)
		}
	}

	e.ledger.SetPendingOrder(tokenID, orderID)
	slog.Info("protective sell placed", "token", short(tokenID), "price", buyPrice+e.cfg.ProfitTarget, "size", size, "order", orderID)
	return nil
}

// MarketSellRemainder clears sub-unit dust: it acts only when the sellable
// allowance is strictly between 0 and 1 share, selling at a small discount
// to force a fill. No-op otherwise. Dust is below ledger granularity, so
// the ledger is not touched.
func (e *Executor) MarketSellRemainder(ctx context.Context, tokenID string, outcome domain.Outcome, currentPrice float64) error {
	m := e.lockToken(tokenID)
	m.Lock()
	defer m.Unlock()

	if e.cfg.Paper {
		return nil // paper fills are whole shares, dust never accrues
	}

	bal, err := e.exchange.GetBalanceAndAllowance(ctx, tokenID)
	if err != nil {
		return fmt.Errorf("executor.MarketSellRemainder %s: %w", short(tokenID), err)
	}
	if bal.Allowance <= 0 || bal.Allowance >= minSellableShares {
		return nil
	}

	price := math.Max(toDollars(currentPrice-dustDiscount), floorPrice)
	if _, err := e.exchange.PlaceOrder(ctx, tokenID, domain.SideSell, price, bal.Allowance); err != nil {
		return fmt.Errorf("executor.MarketSellRemainder %s: %w", short(tokenID), err)
	}
	slog.Info("dust sold", "token", short(tokenID), "size", bal.Allowance, "price", price)
	return nil
}

// ForceLiquidate cancels all resting orders, market-sells whatever settled
// for the token at an aggressive discount, and unconditionally drops the
// local position and protective-order entries. Forward progress over state
// accuracy, even when the sell itself fails.
func (e *Executor) ForceLiquidate(ctx context.Context, tokenID string, outcome domain.Outcome, currentPrice float64) error {
	m := e.lockToken(tokenID)
	m.Lock()
	defer m.Unlock()

	defer func() {
		e.ledger.Remove(tokenID)
		e.ledger.ClearPendingOrder(tokenID)
	}()

	price := math.Max(currentPrice-liquidationDiscount, floorPrice*100)

	if e.cfg.Paper {
		if pos, ok := e.ledger.Position(tokenID); ok {
			pnl := (price - pos.AvgBuyPrice) * pos.Size
			e.record(ctx, domain.TradeRecord{TokenID: tokenID, Outcome: outcome, Side: domain.SideSell, Price: price, Size: pos.Size, PnL: pnl})
		}
		slog.Info("paper liquidation", "token", short(tokenID))
		return nil
	}

	if err := e.exchange.CancelAllOrders(ctx); err != nil {
		slog.Warn("liquidate: cancel all failed, selling anyway", "token", short(tokenID), "err", err)
	}

	sellable, err := e.awaitSellable(ctx, tokenID)
	if err != nil {
		return fmt.Errorf("executor.ForceLiquidate %s: %w", short(tokenID), err)
	}
	if sellable <= 0 {
		slog.Info("liquidate: nothing sellable", "token", short(tokenID))
		return nil
	}

	if _, err := e.exchange.PlaceOrder(ctx, tokenID, domain.SideSell, toDollars(price), sellable); err != nil {
		// Local tracking is discarded regardless; the deferred cleanup runs.
		return fmt.Errorf("executor.ForceLiquidate %s: %w", short(tokenID), err)
	}

	if pos, ok := e.ledger.Position(tokenID); ok {
		pnl := (price - pos.AvgBuyPrice) * sellable
		e.record(ctx, domain.TradeRecord{TokenID: tokenID, Outcome: outcome, Side: domain.SideSell, Price: price, Size: sellable, PnL: pnl})
	}
	slog.Info("liquidated", "token", short(tokenID), "size", sellable, "price", price)
	return nil
}

// CancelAllOrders cancels every resting order and clears the protective
// order map. Nothing can still be live after a bulk cancel.
func (e *Executor) CancelAllOrders(ctx context.Context) error {
	if !e.cfg.Paper {
		if err := e.exchange.CancelAllOrders(ctx); err != nil {
			return fmt.Errorf("executor.CancelAllOrders: %w", err)
		}
	}
	e.ledger.ClearAllPendingOrders()
	return nil
}

// LiquidateAll sells every held position at the freshest known price from
// priceMap, falling back to the position's last recorded price.
func (e *Executor) LiquidateAll(ctx context.Context, priceMap map[string]float64) error {
	var firstErr error
	for _, pos := range e.ledger.Positions() {
		price, ok := priceMap[pos.TokenID]
		if !ok {
			price = pos.CurrentPrice
		}
		m := e.lockToken(pos.TokenID)
		m.Lock()
		err := e.sellLocked(ctx, pos.TokenID, pos.Outcome, price, pos.Size)
		m.Unlock()
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// awaitSellable polls the exchange until the token's allowance settles or
// the timeout passes. When the allowance stays short of one share while the
// total balance is not, a capability grant is sent and the balance queried
// once more. Returns the last observed sellable quantity.
func (e *Executor) awaitSellable(ctx context.Context, tokenID string) (float64, error) {
	deadline := time.Now().Add(e.cfg.SettleTimeout)

	var bal domain.Balance
	for {
		var err error
		bal, err = e.exchange.GetBalanceAndAllowance(ctx, tokenID)
		if err != nil {
			return 0, fmt.Errorf("balance query: %w", err)
		}
		if bal.Allowance >= minSellableShares || time.Now().After(deadline) {
			break
		}
		select {
		case <-time.After(e.cfg.SettleInterval):
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}

	if bal.Allowance < minSellableShares && bal.Total >= minSellableShares {
		slog.Info("granting sell allowance", "token", short(tokenID), "balance", bal.Total)
		if err := e.exchange.GrantAllowance(ctx, tokenID); err != nil {
			return 0, fmt.Errorf("grant allowance: %w", err)
		}
		bal, err := e.exchange.GetBalanceAndAllowance(ctx, tokenID)
		if err != nil {
			return 0, fmt.Errorf("balance re-query: %w", err)
		}
		return bal.Allowance, nil
	}
	return bal.Allowance, nil
}

// record appends to the in-memory journal and, when configured, persists.
func (e *Executor) record(ctx context.Context, rec domain.TradeRecord) {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	e.ledger.Record(rec)
	if e.store == nil {
		return
	}
	if err := e.store.Append(ctx, rec); err != nil {
		slog.Warn("trade journal write failed", "token", short(rec.TokenID), "err", err)
	}
}

// toDollars converts a cents price to the 0-1 dollar scale the CLOB takes.
func toDollars(cents float64) float64 {
	return cents / 100
}

func paperOrderID() string {
	return "paper-" + uuid.New().String()
}

// short truncates a token ID for log lines.
func short(tokenID string) string {
	if len(tokenID) > 12 {
		return tokenID[:12] + "…"
	}
	return tokenID
}
