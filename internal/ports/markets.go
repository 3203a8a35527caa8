package ports

import (
	"context"

	"github.com/alvarohm/upbot/internal/domain"
)

// MarketProvider assembles the per-cycle snapshot of the traded round series.
type MarketProvider interface {
	// FetchState returns the current and next round with fresh prices and
	// the distances to the round boundaries.
	FetchState(ctx context.Context) (domain.MarketState, error)
}
