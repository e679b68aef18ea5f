package rest

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/kerner1000/riskmanager/internal/broker"
	"github.com/kerner1000/riskmanager/internal/logger"
)

// Gateway is the BrokerGateway implementation over the session-cookie
// REST API (spec §4.4): per-account switching, refresh-then-read
// idempotence, two-phase order placement with reply-confirm. Grounded
// on the original system's IBClientPortalGateway.
type Gateway struct {
	cfg    Config
	client *httpClient
}

// New builds a REST gateway. It does not dial anything; the first
// request establishes whether the session cookie is valid.
func New(cfg Config) (*Gateway, error) {
	if cfg.SwitchDelay <= 0 {
		cfg.SwitchDelay = 200 * time.Millisecond
	}
	if cfg.RefreshDelay <= 0 {
		cfg.RefreshDelay = 300 * time.Millisecond
	}
	client, err := newHTTPClient(cfg)
	if err != nil {
		return nil, err
	}
	return &Gateway{cfg: cfg, client: client}, nil
}

func (g *Gateway) GetConfiguredAccounts() []string {
	return append([]string(nil), g.cfg.Accounts...)
}

func (g *Gateway) GetConnectionStatus(ctx context.Context) broker.ConnectionStatus {
	var status authStatusResponse
	resp, err := g.client.do(ctx, http.MethodGet, "/v1/api/iserver/auth/status", nil, nil, &status)
	if err != nil {
		return broker.ConnectionStatus{Message: fmt.Sprintf("Cannot reach gateway: %v", err)}
	}
	if resp.StatusCode == http.StatusFound {
		return broker.ConnectionStatus{Message: "Cannot reach gateway: unexpected redirect (302), session likely expired"}
	}
	message := "Not authenticated"
	if status.Authenticated {
		message = "Session is authenticated and ready"
	} else if status.Fail != "" {
		message = status.Fail
	}
	return broker.ConnectionStatus{
		Reachable:     true,
		Authenticated: status.Authenticated,
		Connected:     status.Connected,
		Competing:     status.Competing,
		Message:       message,
	}
}

func (g *Gateway) KeepAlive(ctx context.Context) bool {
	_, err := g.client.do(ctx, http.MethodPost, "/v1/api/tickle", nil, nil, nil)
	if err != nil {
		logger.Warnf("rest gateway: keepAlive failed: %v", err)
		return false
	}
	return true
}

func (g *Gateway) SwitchAccount(ctx context.Context, accountID string) error {
	var out setAccountResponse
	_, err := g.client.do(ctx, http.MethodPost, "/v1/api/iserver/account", nil, setAccountRequest{AcctID: accountID}, &out)
	if err != nil {
		return wrapErr(err, "switch account %s", accountID)
	}
	logger.Debugf("rest gateway: switched to account %s, success=%v", accountID, out.Set)
	select {
	case <-time.After(g.cfg.SwitchDelay):
	case <-ctx.Done():
		return broker.NewError(broker.KindTimeout, ctx.Err())
	}
	return nil
}

func (g *Gateway) GetPositions(ctx context.Context, accountID string) ([]broker.Position, error) {
	var raw []positionDTO
	_, err := g.client.do(ctx, http.MethodGet,
		fmt.Sprintf("/v1/api/portfolio/%s/positions/0", accountID), nil, nil, &raw)
	if err != nil {
		return nil, wrapErr(err, "fetch positions for %s", accountID)
	}
	out := make([]broker.Position, 0, len(raw))
	for _, p := range raw {
		qty := p.Position.decimal()
		if qty.IsZero() {
			continue
		}
		out = append(out, broker.Position{
			AccountID:   p.AcctID,
			Conid:       p.Conid,
			Ticker:      p.ContractDesc,
			Quantity:    qty,
			AvgPrice:    p.AvgPrice.decimal(),
			MarketPrice: p.MktPrice.decimal(),
			Currency:    p.Currency,
		})
	}
	return out, nil
}

func (g *Gateway) GetAllPositions(ctx context.Context) ([]broker.Position, error) {
	all := make([]broker.Position, 0)
	for _, acct := range g.cfg.Accounts {
		positions, err := g.GetPositions(ctx, acct)
		if err != nil {
			return nil, err
		}
		all = append(all, positions...)
	}
	return all, nil
}

// GetOrders implements the read protocol of spec §4.4: switch account,
// wait, refresh-triggering GET, wait, then the GET whose result is
// trusted.
func (g *Gateway) GetOrders(ctx context.Context, accountID string) ([]broker.Order, error) {
	if err := g.SwitchAccount(ctx, accountID); err != nil {
		return nil, err
	}

	var refreshResp ordersResponse
	if _, err := g.client.do(ctx, http.MethodGet, "/v1/api/iserver/account/orders", forceRefreshQuery(), nil, &refreshResp); err != nil {
		return nil, wrapErr(err, "trigger orders refresh for %s", accountID)
	}
	select {
	case <-time.After(g.cfg.RefreshDelay):
	case <-ctx.Done():
		return nil, broker.NewError(broker.KindTimeout, ctx.Err())
	}

	var resp ordersResponse
	if _, err := g.client.do(ctx, http.MethodGet, "/v1/api/iserver/account/orders", nil, nil, &resp); err != nil {
		return nil, wrapErr(err, "fetch orders for %s", accountID)
	}

	out := make([]broker.Order, 0, len(resp.Orders))
	for _, o := range resp.Orders {
		out = append(out, mapOrder(o, accountID))
	}
	return out, nil
}

func (g *Gateway) GetAllOrders(ctx context.Context) ([]broker.Order, error) {
	all := make([]broker.Order, 0)
	for _, acct := range g.cfg.Accounts {
		orders, err := g.GetOrders(ctx, acct)
		if err != nil {
			return nil, err
		}
		all = append(all, orders...)
	}
	return all, nil
}

func (g *Gateway) GetStopOrders(ctx context.Context, accountID string) ([]broker.Order, error) {
	orders, err := g.GetOrders(ctx, accountID)
	if err != nil {
		return nil, err
	}
	out := make([]broker.Order, 0, len(orders))
	for _, o := range orders {
		if o.IsStop() && o.IsActive() {
			out = append(out, o)
		}
	}
	return out, nil
}

func (g *Gateway) GetAllStopOrders(ctx context.Context) ([]broker.Order, error) {
	seen := make(map[string]struct{})
	out := make([]broker.Order, 0)
	for _, acct := range g.cfg.Accounts {
		stops, err := g.GetStopOrders(ctx, acct)
		if err != nil {
			return nil, err
		}
		for _, o := range stops {
			if o.OrderID == "" {
				continue
			}
			if _, dup := seen[o.OrderID]; dup {
				continue
			}
			seen[o.OrderID] = struct{}{}
			out = append(out, o)
		}
	}
	logger.Debugf("rest gateway: unique stop orders: %d", len(out))
	return out, nil
}

func (g *Gateway) GetStopOrdersForConid(ctx context.Context, accountID string, conid int64) ([]broker.Order, error) {
	stops, err := g.GetStopOrders(ctx, accountID)
	if err != nil {
		return nil, err
	}
	out := make([]broker.Order, 0, len(stops))
	for _, o := range stops {
		if o.Conid == conid {
			out = append(out, o)
		}
	}
	return out, nil
}

// PlaceStopLossOrder implements the two-phase placement protocol: submit,
// then — if the broker asks for confirmation of a risk warning — POST
// the confirmation, bounded at exactly one confirmation step.
func (g *Gateway) PlaceStopLossOrder(ctx context.Context, req broker.StopLossOrderRequest) (broker.OrderResult, error) {
	body := placeOrdersRequest{Orders: []orderRequest{{
		Conid:     req.Conid,
		OrderType: "STP",
		Price:     req.StopPrice.String(),
		Quantity:  req.Quantity.String(),
		Side:      req.Side(),
		Tif:       "GTC",
	}}}
	// Idempotency/correlation token attached for broker-side dedup and
	// for correlating this placement's log lines end to end.
	idempotencyKey := uuid.NewString()

	var responses []placeOrderResponseItem
	path := fmt.Sprintf("/v1/api/iserver/account/%s/orders", req.AccountID)
	_, err := g.client.doWithHeader(ctx, http.MethodPost, path, nil, body, &responses, "X-Idempotency-Key", idempotencyKey)
	if err != nil {
		return broker.OrderResult{}, wrapErr(err, "place stop loss order for account %s", req.AccountID)
	}
	if len(responses) == 0 {
		return broker.OrderResult{Success: false, Message: "No response from broker"}, nil
	}

	first := responses[0]
	if first.ID != "" && len(first.Message) > 0 {
		if err := g.confirmReply(ctx, first.ID); err != nil {
			return broker.OrderResult{}, err
		}
	}
	// The initial response's id is a reply id, not the final order id;
	// the final id is only available after confirmation.
	return broker.OrderResult{Success: true, OrderID: first.ID, Message: "Order placed successfully"}, nil
}

func (g *Gateway) confirmReply(ctx context.Context, replyID string) error {
	path := fmt.Sprintf("/v1/api/iserver/reply/%s", replyID)
	_, err := g.client.do(ctx, http.MethodPost, path, nil, replyConfirmRequest{Confirmed: true}, nil)
	if err != nil {
		return wrapErr(err, "confirm reply %s", replyID)
	}
	return nil
}

func mapOrder(o orderDTO, fallbackAccountID string) broker.Order {
	acct := o.Acct
	if acct == "" {
		acct = fallbackAccountID
	}
	order := broker.Order{
		OrderID:     o.OrderID,
		AccountID:   acct,
		Conid:       o.Conid,
		Ticker:      o.Ticker,
		OrderType:   o.OrderType,
		Description: o.OrderDesc,
		Side:        o.Side,
		Status:      o.Status,
	}
	if o.Price != nil {
		d := o.Price.decimal()
		order.Price = &d
	}
	if o.StopPrice != nil {
		d := o.StopPrice.decimal()
		order.StopPrice = &d
	}
	if o.FilledQuantity != nil {
		order.Quantity = o.FilledQuantity.decimal()
	} else if o.TotalSize != nil {
		order.Quantity = o.TotalSize.decimal()
	}
	if o.RemainingQuantity != nil {
		order.RemainingQuantity = o.RemainingQuantity.decimal()
	}
	return order
}

func forceRefreshQuery() url.Values {
	return url.Values{"force": {"true"}}
}

func wrapErr(err error, format string, args ...any) error {
	if _, ok := err.(*broker.Error); ok {
		return err
	}
	return broker.NewError(broker.KindTransport, fmt.Errorf(format+": %w", append(args, err)...))
}
