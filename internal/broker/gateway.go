package broker

import "context"

// Gateway is the capability set both broker backends implement: the
// engine and the application façade depend only on this, never on
// whether the REST or socket implementation is behind it.
type Gateway interface {
	// GetConnectionStatus never errors; failures are reported via the
	// returned struct's fields.
	GetConnectionStatus(ctx context.Context) ConnectionStatus

	// KeepAlive returns true iff a liveness probe succeeded within the
	// call.
	KeepAlive(ctx context.Context) bool

	// GetConfiguredAccounts returns the configured account list
	// verbatim.
	GetConfiguredAccounts() []string

	// SwitchAccount is required before account-scoped reads on backends
	// that track a "current" account. Idempotent; a no-op on backends
	// that scope per request.
	SwitchAccount(ctx context.Context, accountID string) error

	// GetPositions returns non-zero positions for one account, each with
	// a populated MarketPrice.
	GetPositions(ctx context.Context, accountID string) ([]Position, error)

	// GetAllPositions returns the union of positions across all
	// configured accounts.
	GetAllPositions(ctx context.Context) ([]Position, error)

	// GetOrders returns every order for one account, any status.
	GetOrders(ctx context.Context, accountID string) ([]Order, error)

	// GetAllOrders returns every order across configured accounts.
	GetAllOrders(ctx context.Context) ([]Order, error)

	// GetStopOrders returns stop-typed, active orders for one account.
	GetStopOrders(ctx context.Context, accountID string) ([]Order, error)

	// GetAllStopOrders returns stop-typed, active orders across
	// configured accounts, deduplicated by OrderID.
	GetAllStopOrders(ctx context.Context) ([]Order, error)

	// GetStopOrdersForConid restricts GetStopOrders to one contract.
	GetStopOrdersForConid(ctx context.Context, accountID string, conid int64) ([]Order, error)

	// PlaceStopLossOrder submits a stop order. Business rejections come
	// back as OrderResult{Success: false}; only transport/connection
	// loss raises a *broker.Error.
	PlaceStopLossOrder(ctx context.Context, req StopLossOrderRequest) (OrderResult, error)
}
