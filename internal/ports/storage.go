package ports

import (
	"context"
	"time"

	"github.com/alvarohm/upbot/internal/domain"
)

// TradeStore persists the append-only trade journal.
type TradeStore interface {
	// Append writes one executed trade leg.
	Append(ctx context.Context, rec domain.TradeRecord) error

	// History returns the trades recorded in the given time range.
	History(ctx context.Context, from, to time.Time) ([]domain.TradeRecord, error)

	// RealizedPnL returns the sum of realized PnL across all SELL legs, in cents.
	RealizedPnL(ctx context.Context) (float64, error)

	// Close closes the underlying database cleanly.
	Close() error
}
