package ports

import (
	"context"

	"github.com/alvarohm/upbot/internal/domain"
)

// Notifier reports the state of a trading cycle to the operator.
type Notifier interface {
	Notify(ctx context.Context, state domain.MarketState, positions []domain.Position, realizedPnL float64) error
}
