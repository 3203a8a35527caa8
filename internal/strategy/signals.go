package strategy

// signals.go holds the prioritized rule evaluator for one Up/Down round series.
//
// Generate runs the rules in strict priority order; the first rule that
// yields any signal wins and the rest never run. At most one BUY is ever
// produced per call.

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/alvarohm/upbot/internal/domain"
	"github.com/alvarohm/upbot/internal/ports"
)

const (
	// Rolling price history per token, FIFO eviction.
	historyCap = 60
	// Samples used for the momentum annotation.
	momentumWindow = 5
	// Extra margin over the exit window before a mid-round entry is allowed.
	midRoundBuffer = 30 * time.Second
	// A side trading above this (cents) is read as the round's dominant side.
	trendThreshold = 75.0
)

// Config holds the strategy thresholds. Prices in cents, sizes in shares.
type Config struct {
	ProfitTarget    float64
	MaxBuyPrice     float64
	MaxPositionSize float64
	SellBeforeStart time.Duration
	MinTimeToTrade  time.Duration
}

// Generator evaluates one rule set against one market series. The only
// state it keeps between calls is the rolling price history used for the
// momentum text; history never gates a decision.
type Generator struct {
	cfg     Config
	risk    ports.RiskPolicy
	history map[string][]float64
}

// New creates a Generator with the given thresholds and risk policy.
func New(cfg Config, risk ports.RiskPolicy) *Generator {
	return &Generator{
		cfg:     cfg,
		risk:    risk,
		history: make(map[string][]float64),
	}
}

// Generate evaluates the rule set over one market snapshot and the held
// positions, returning the signals of the highest-priority rule that fired.
func (g *Generator) Generate(ms domain.MarketState, positions []domain.Position) []domain.TradeSignal {
	g.recordPrices(ms)

	// 1. Orphan liquidation: holdings from an already settled round.
	if signals := g.orphanExits(ms, positions); len(signals) > 0 {
		return signals
	}

	// 2. Forced exit before the next round starts.
	if ms.Next != nil && ms.TimeToStart <= g.cfg.SellBeforeStart {
		if signals := g.exitAll(positions, fmt.Sprintf("round starts in %s", ms.TimeToStart.Round(time.Second))); len(signals) > 0 {
			return signals
		}
	}

	// 3. Forced exit before the current round settles. Same window reused.
	if ms.Current != nil && ms.TimeToEnd > 0 && ms.TimeToEnd <= g.cfg.SellBeforeStart {
		if signals := g.exitAll(positions, fmt.Sprintf("round ends in %s", ms.TimeToEnd.Round(time.Second))); len(signals) > 0 {
			return signals
		}
	}

	// 4. Profit taking.
	if signals := g.profitExits(positions); len(signals) > 0 {
		return signals
	}

	// 5. Entry gate on the pre-start lead. Without a known next round
	// there is no lead to judge; rule 7 gates on TimeToEnd instead.
	if ms.Next != nil {
		if canTrade, reason := g.risk.CheckTimeWindow(ms.TimeToStart.Milliseconds()); !canTrade {
			slog.Debug("entry gated by risk policy", "reason", reason)
			return nil
		}

		// 6. Pre-start entry against the next round.
		if ms.TimeToStart > g.cfg.MinTimeToTrade && !g.holdsAny(positions, ms.Next) {
			if sig := g.tryEntry(ms.Next, "pre-start"); sig != nil {
				return []domain.TradeSignal{*sig}
			}
		}
	}

	// 7. Mid-round entry, only when rule 6 produced nothing.
	if ms.Current != nil && ms.TimeToEnd > g.cfg.SellBeforeStart+midRoundBuffer && !g.holdsAny(positions, ms.Current) {
		if sig := g.tryEntry(ms.Current, "mid-round"); sig != nil {
			return []domain.TradeSignal{*sig}
		}
	}

	return nil
}

// UpdatePositionPrices refreshes each held position's current price from
// the snapshot's four token slots. Tokens matching neither round keep their
// stale price until the next reconciliation.
func (g *Generator) UpdatePositionPrices(ms domain.MarketState, ledger *domain.Ledger) {
	for _, pos := range ledger.Positions() {
		if price, ok := ms.PriceFor(pos.TokenID); ok {
			ledger.SetCurrentPrice(pos.TokenID, price)
		}
	}
}

// orphanExits sells every position whose token is not part of either known
// round. Residue from a settled round must not be held into the next one.
func (g *Generator) orphanExits(ms domain.MarketState, positions []domain.Position) []domain.TradeSignal {
	valid := ms.ValidTokenIDs()
	var signals []domain.TradeSignal
	for _, pos := range positions {
		if valid[pos.TokenID] {
			continue
		}
		signals = append(signals, domain.TradeSignal{
			Action:  domain.SideSell,
			TokenID: pos.TokenID,
			Outcome: pos.Outcome,
			Price:   pos.CurrentPrice,
			Size:    pos.Size,
			Reason:  "orphaned token from settled round",
		})
	}
	return signals
}

// exitAll sells every held position at full size.
func (g *Generator) exitAll(positions []domain.Position, reason string) []domain.TradeSignal {
	signals := make([]domain.TradeSignal, 0, len(positions))
	for _, pos := range positions {
		signals = append(signals, domain.TradeSignal{
			Action:  domain.SideSell,
			TokenID: pos.TokenID,
			Outcome: pos.Outcome,
			Price:   pos.CurrentPrice,
			Size:    pos.Size,
			Reason:  "forced exit: " + reason,
		})
	}
	return signals
}

// profitExits sells every position whose unrealized gain per share has
// reached the profit target. Several positions may qualify in one pass.
func (g *Generator) profitExits(positions []domain.Position) []domain.TradeSignal {
	var signals []domain.TradeSignal
	for _, pos := range positions {
		gain := pos.CurrentPrice - pos.AvgBuyPrice
		if gain < g.cfg.ProfitTarget {
			continue
		}
		signals = append(signals, domain.TradeSignal{
			Action:  domain.SideSell,
			TokenID: pos.TokenID,
			Outcome: pos.Outcome,
			Price:   pos.CurrentPrice,
			Size:    pos.Size,
			Reason:  fmt.Sprintf("profit target hit: +%.1fc over %.1fc basis", gain, pos.AvgBuyPrice),
		})
	}
	return signals
}

// tryEntry tests Up first against the max buy price, then Down only when
// Up fails the threshold. Fixed sizing; at most one BUY.
func (g *Generator) tryEntry(m *domain.RoundMarket, phase string) *domain.TradeSignal {
	if m.UpPrice < g.cfg.MaxBuyPrice {
		return g.entrySignal(m, m.UpTokenID, domain.OutcomeUp, m.UpPrice, phase)
	}
	if m.DownPrice < g.cfg.MaxBuyPrice {
		return g.entrySignal(m, m.DownTokenID, domain.OutcomeDown, m.DownPrice, phase)
	}
	return nil
}

func (g *Generator) entrySignal(m *domain.RoundMarket, tokenID string, outcome domain.Outcome, price float64, phase string) *domain.TradeSignal {
	breakeven := g.risk.CalculateMinPriceMove(price, g.cfg.ProfitTarget, g.cfg.MaxPositionSize)
	reason := fmt.Sprintf("%s entry %s @ %.1fc, momentum %+.1fc, breakeven move %.1fc",
		phase, outcome, price, g.momentum(tokenID, price), breakeven)
	if trend := g.trendNote(m); trend != "" {
		reason += ", " + trend
	}
	return &domain.TradeSignal{
		Action:  domain.SideBuy,
		TokenID: tokenID,
		Outcome: outcome,
		Price:   price,
		Size:    g.cfg.MaxPositionSize,
		Reason:  reason,
	}
}

// holdsAny reports whether any position is held in either of the round's
// two tokens.
func (g *Generator) holdsAny(positions []domain.Position, m *domain.RoundMarket) bool {
	for _, pos := range positions {
		if pos.TokenID == m.UpTokenID || pos.TokenID == m.DownTokenID {
			return true
		}
	}
	return false
}

// recordPrices appends the snapshot prices to the per-token history.
func (g *Generator) recordPrices(ms domain.MarketState) {
	for _, m := range []*domain.RoundMarket{ms.Next, ms.Current} {
		if m == nil {
			continue
		}
		g.recordPrice(m.UpTokenID, m.UpPrice)
		g.recordPrice(m.DownTokenID, m.DownPrice)
	}
}

func (g *Generator) recordPrice(tokenID string, price float64) {
	if tokenID == "" {
		return
	}
	h := append(g.history[tokenID], price)
	if len(h) > historyCap {
		h = h[len(h)-historyCap:]
	}
	g.history[tokenID] = h
}

// momentum is current price minus the mean of the last momentumWindow
// samples, or 0 until enough samples exist. Display only.
func (g *Generator) momentum(tokenID string, current float64) float64 {
	h := g.history[tokenID]
	if len(h) < momentumWindow {
		return 0
	}
	var sum float64
	for _, p := range h[len(h)-momentumWindow:] {
		sum += p
	}
	return current - sum/momentumWindow
}

// trendNote annotates the reason when the current round has a dominant
// side, read as likely continuation. Annotation only.
func (g *Generator) trendNote(m *domain.RoundMarket) string {
	switch {
	case m.UpPrice >= trendThreshold:
		return fmt.Sprintf("trend: Up dominant at %.0fc", m.UpPrice)
	case m.DownPrice >= trendThreshold:
		return fmt.Sprintf("trend: Down dominant at %.0fc", m.DownPrice)
	}
	return ""
}
