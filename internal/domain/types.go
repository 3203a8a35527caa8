package domain

import "time"

// Outcome is one of the two complementary sides of a binary round market.
type Outcome string

const (
	OutcomeUp   Outcome = "Up"
	OutcomeDown Outcome = "Down"
)

// Opposite returns the other side of the round.
func (o Outcome) Opposite() Outcome {
	if o == OutcomeUp {
		return OutcomeDown
	}
	return OutcomeUp
}

// Side of an executed trade leg.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Position is a tracked holding in one outcome token.
// Prices are in cents (0-100). A position exists in the ledger iff Size > 0.
type Position struct {
	TokenID      string
	Outcome      Outcome
	Size         float64
	AvgBuyPrice  float64 // size-weighted mean of buy fills, stable across sells
	CurrentPrice float64 // last observed market price
}

// UnrealizedPnL returns (current - cost basis) × size in cents.
func (p Position) UnrealizedPnL() float64 {
	return (p.CurrentPrice - p.AvgBuyPrice) * p.Size
}

// TradeRecord is an immutable journal entry for one executed trade leg.
// PnL is meaningful only on SELL records (realized against cost basis).
type TradeRecord struct {
	Timestamp time.Time
	TokenID   string
	Outcome   Outcome
	Side      Side
	Price     float64 // cents
	Size      float64
	PnL       float64
}

// TradeSignal is one actionable decision produced by the signal generator.
type TradeSignal struct {
	Action  Side
	TokenID string
	Outcome Outcome
	Price   float64 // cents
	Size    float64
	Reason  string
}

// RoundMarket describes one Up/Down round: its two outcome tokens and
// their last observed prices in cents.
type RoundMarket struct {
	Slug        string
	UpTokenID   string
	DownTokenID string
	UpPrice     float64
	DownPrice   float64
}

// MarketState is the snapshot the signal generator evaluates each cycle.
// Next is the upcoming round (nil if none discovered yet), Current the
// round in progress. TimeToStart counts down to Next's open, TimeToEnd to
// Current's settlement.
type MarketState struct {
	Next        *RoundMarket
	Current     *RoundMarket
	TimeToStart time.Duration
	TimeToEnd   time.Duration
}

// ValidTokenIDs returns the token ids of the known rounds. Any held token
// outside this set is an orphan from an already settled round.
func (ms MarketState) ValidTokenIDs() map[string]bool {
	valid := make(map[string]bool, 4)
	for _, m := range []*RoundMarket{ms.Next, ms.Current} {
		if m == nil {
			continue
		}
		valid[m.UpTokenID] = true
		valid[m.DownTokenID] = true
	}
	return valid
}

// PriceFor returns the snapshot price for tokenID, checking the four
// possible slots (next Up/Down, current Up/Down). ok is false when the
// token belongs to neither known round.
func (ms MarketState) PriceFor(tokenID string) (float64, bool) {
	for _, m := range []*RoundMarket{ms.Next, ms.Current} {
		if m == nil {
			continue
		}
		switch tokenID {
		case m.UpTokenID:
			return m.UpPrice, true
		case m.DownTokenID:
			return m.DownPrice, true
		}
	}
	return 0, false
}

// OutcomeFor returns the side tokenID represents in either known round.
// ok is false when the token belongs to neither round.
func (ms MarketState) OutcomeFor(tokenID string) (Outcome, bool) {
	for _, m := range []*RoundMarket{ms.Next, ms.Current} {
		if m == nil {
			continue
		}
		switch tokenID {
		case m.UpTokenID:
			return OutcomeUp, true
		case m.DownTokenID:
			return OutcomeDown, true
		}
	}
	return "", false
}

// Balance is an exchange-reported holding for one token, in shares.
// Allowance is the portion currently authorized for sale.
type Balance struct {
	Total     float64
	Allowance float64
}
