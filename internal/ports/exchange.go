package ports

import (
	"context"

	"github.com/alvarohm/upbot/internal/domain"
)

// ExchangeClient is the primitive order/balance surface the executor needs
// from the CLOB. Prices are in dollars (0-1), sizes in shares.
type ExchangeClient interface {
	// PlaceOrder signs and submits a limit order, returning the exchange
	// order ID on acceptance.
	PlaceOrder(ctx context.Context, tokenID string, side domain.Side, price, size float64) (string, error)

	// CancelAllOrders cancels every open order for this wallet.
	CancelAllOrders(ctx context.Context) error

	// GetBalanceAndAllowance returns the held shares for a token and the
	// portion currently authorized for sale.
	GetBalanceAndAllowance(ctx context.Context, tokenID string) (domain.Balance, error)

	// GrantAllowance authorizes the exchange to sell the token's full
	// balance. Needed once per token before the first sell.
	GrantAllowance(ctx context.Context, tokenID string) error
}
