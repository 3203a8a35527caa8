package domain

import (
	"math"
	"sync"
	"time"
)

// DustThreshold is the balance (in shares) below which an exchange-reported
// holding is treated as zero during reconciliation.
const DustThreshold = 0.1

// Ledger is the local record of holdings, cost basis, pending protective
// orders, and the append-only trade journal. It is the bot's own view of
// state; the exchange stays authoritative and Reconcile is the only
// correction mechanism for drift between the two.
//
// All fields are owned by the Ledger instance; tests construct isolated
// ledgers with NewLedger.
type Ledger struct {
	mu        sync.RWMutex
	positions map[string]*Position
	pending   map[string]string // tokenID → protective order ID
	trades    []TradeRecord
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{
		positions: make(map[string]*Position),
		pending:   make(map[string]string),
	}
}

// Apply mutates the position for tokenID by sizeDelta at the given price
// (cents). A positive delta on a missing position creates it with the price
// as cost basis. A positive delta on an existing position recomputes the
// size-weighted average buy price. A delta that drives size to zero or below
// removes the position entirely; size never persists negative. Selling never
// changes AvgBuyPrice, so the cost basis stays stable for PnL accounting.
func (l *Ledger) Apply(tokenID string, outcome Outcome, sizeDelta, price float64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	pos, ok := l.positions[tokenID]
	if !ok {
		if sizeDelta <= 0 {
			return
		}
		l.positions[tokenID] = &Position{
			TokenID:      tokenID,
			Outcome:      outcome,
			Size:         sizeDelta,
			AvgBuyPrice:  price,
			CurrentPrice: price,
		}
		return
	}

	newSize := pos.Size + sizeDelta
	if newSize <= 0 {
		delete(l.positions, tokenID)
		return
	}
	if sizeDelta > 0 {
		pos.AvgBuyPrice = (pos.AvgBuyPrice*pos.Size + price*sizeDelta) / newSize
	}
	pos.Size = newSize
	pos.CurrentPrice = price
}

// Reconcile overwrites the local position for tokenID with the
// exchange-observed balance. Balances below DustThreshold count as zero:
// any local entry is deleted and none is created, so residual dust never
// becomes a phantom position. Above the threshold the size is floored to
// whole shares; a position discovered out-of-band gets referencePrice as a
// best-effort cost basis.
func (l *Ledger) Reconcile(tokenID string, outcome Outcome, observedBalance, referencePrice float64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if observedBalance < DustThreshold {
		delete(l.positions, tokenID)
		return
	}

	size := math.Floor(observedBalance)
	if pos, ok := l.positions[tokenID]; ok {
		pos.Size = size
		pos.CurrentPrice = referencePrice
		return
	}
	l.positions[tokenID] = &Position{
		TokenID:      tokenID,
		Outcome:      outcome,
		Size:         size,
		AvgBuyPrice:  referencePrice,
		CurrentPrice: referencePrice,
	}
}

// Position returns a copy of the position for tokenID.
func (l *Ledger) Position(tokenID string) (Position, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	pos, ok := l.positions[tokenID]
	if !ok {
		return Position{}, false
	}
	return *pos, true
}

// Positions returns a copy of every held position.
func (l *Ledger) Positions() []Position {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Position, 0, len(l.positions))
	for _, pos := range l.positions {
		out = append(out, *pos)
	}
	return out
}

// Remove drops the position for tokenID regardless of size.
func (l *Ledger) Remove(tokenID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.positions, tokenID)
}

// SetCurrentPrice refreshes the last observed price for a held token.
// No-op when the token is not held.
func (l *Ledger) SetCurrentPrice(tokenID string, price float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if pos, ok := l.positions[tokenID]; ok {
		pos.CurrentPrice = price
	}
}

// PendingOrder returns the live protective order ID for tokenID, if any.
// A non-empty ID means a protective sell is already resting on the exchange
// and another must not be placed.
func (l *Ledger) PendingOrder(tokenID string) (string, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	id, ok := l.pending[tokenID]
	return id, ok && id != ""
}

// SetPendingOrder records the protective order for tokenID. At most one
// entry per token; a later set overwrites.
func (l *Ledger) SetPendingOrder(tokenID, orderID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pending[tokenID] = orderID
}

// ClearPendingOrder drops the protective order entry for tokenID.
func (l *Ledger) ClearPendingOrder(tokenID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.pending, tokenID)
}

// ClearAllPendingOrders drops every protective order entry. Used after a
// bulk cancel, when no resting order can still be live.
func (l *Ledger) ClearAllPendingOrders() {
	l.mu.Lock()
	defer l.mu.Unlock()
	clear(l.pending)
}

// Record appends a trade to the journal.
func (l *Ledger) Record(rec TradeRecord) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	l.trades = append(l.trades, rec)
}

// Trades returns a copy of the journal in append order.
func (l *Ledger) Trades() []TradeRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]TradeRecord, len(l.trades))
	copy(out, l.trades)
	return out
}

// TotalRealizedPnL sums realized PnL across SELL records, in cents.
func (l *Ledger) TotalRealizedPnL() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var total float64
	for _, rec := range l.trades {
		if rec.Side == SideSell {
			total += rec.PnL
		}
	}
	return total
}
