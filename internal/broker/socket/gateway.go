package socket

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kerner1000/riskmanager/internal/broker"
	"github.com/kerner1000/riskmanager/internal/logger"
)

type positionsOutcome struct {
	positions []broker.Position
	err       error
}

type ordersOutcome struct {
	orders []broker.Order
	err    error
}

type orderStatusOutcome struct {
	result broker.OrderResult
	err    error
}

// Gateway is the BrokerGateway implementation over the asynchronous
// socket protocol: a background reader dispatches callbacks into
// per-kind futures, presenting a synchronous surface to the caller.
// Grounded on spec §4.5's state machine and callback registry.
type Gateway struct {
	cfg Config
	tr  *transport

	connectMu   sync.Mutex
	connectedCh chan struct{}

	reqID atomic.Int64

	// reqMu serializes the full send-register-await cycle for the
	// single-slot kinds (positions, orders): only one of each may be
	// in flight at a time, per spec §4.5.
	reqMu sync.Mutex

	posSlot singleSlot[positionsOutcome]
	posBufMu sync.Mutex
	posBuf   []broker.Position

	orderSlot singleSlot[ordersOutcome]
	orderBufMu sync.Mutex
	orderBuf   []broker.Order

	priceSlots       *keyedSlots[int64, decimal.Decimal]
	orderStatusSlots *keyedSlots[int64, orderStatusOutcome]

	marketDataTypeOnce sync.Once
}

// New builds a socket gateway against cfg.URL. The connection is
// established lazily on first use (ensureConnected).
func New(cfg Config) *Gateway {
	g := &Gateway{
		cfg:              cfg,
		tr:               newTransport(cfg.URL, cfg.reconnectThreshold(), cfg.reconnectCooldown()),
		priceSlots:       newKeyedSlots[int64, decimal.Decimal](),
		orderStatusSlots: newKeyedSlots[int64, orderStatusOutcome](),
	}
	g.installHandlers()
	return g
}

func (g *Gateway) installHandlers() {
	g.tr.onType(typeNextValidID, g.handleNextValidID)
	g.tr.onType(typeConnectAck, g.handleConnectAck)
	g.tr.onType(typeConnectionClosed, g.handleConnectionClosed)
	g.tr.onType(typePosition, g.handlePosition)
	g.tr.onType(typePositionEnd, g.handlePositionEnd)
	g.tr.onType(typeOpenOrder, g.handleOpenOrder)
	g.tr.onType(typeOpenOrderEnd, g.handleOpenOrderEnd)
	g.tr.onType(typeOrderStatus, g.handleOrderStatus)
	g.tr.onType(typeTickPrice, g.handleTickPrice)
	g.tr.onType(typeTickSnapshotEnd, g.handleTickSnapshotEnd)
	g.tr.onType(typeError, g.handleError)
}

// ensureConnected performs the lazy reconnect: Disconnected -> connect()
// -> Handshaking -> connectAck -> Ready.
func (g *Gateway) ensureConnected(ctx context.Context) error {
	if g.tr.connected() {
		return nil
	}
	g.connectMu.Lock()
	defer g.connectMu.Unlock()
	if g.tr.connected() {
		return nil
	}
	g.connectedCh = make(chan struct{})
	if err := g.tr.connect(ctx); err != nil {
		return broker.NewError(broker.KindNotConnected, err)
	}
	timeout := g.cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	select {
	case <-g.connectedCh:
		return nil
	case <-time.After(timeout):
		return broker.NewErrorf(broker.KindTimeout, "socket gateway: handshake did not complete within %s", timeout)
	case <-ctx.Done():
		return broker.NewError(broker.KindTimeout, ctx.Err())
	}
}

func (g *Gateway) nextReqID() int64 {
	return g.reqID.Add(1)
}

// --- handshake handlers ---

func (g *Gateway) handleNextValidID(f Frame) {
	var p nextValidIDPayload
	if err := json.Unmarshal(f.Payload, &p); err != nil {
		logger.Warnf("socket gateway: malformed nextValidId payload: %v", err)
		return
	}
	g.reqID.Store(p.OrderID)
}

func (g *Gateway) handleConnectAck(Frame) {
	if err := g.tr.send(Frame{Type: typeStartAPI}); err != nil {
		logger.Warnf("socket gateway: startAPI send failed: %v", err)
		return
	}
	// ensureConnected holds connectMu for the whole handshake wait and
	// sets connectedCh before the read loop running this handler starts,
	// so the channel is read here without taking connectMu.
	ch := g.connectedCh
	if ch != nil {
		select {
		case <-ch:
		default:
			close(ch)
		}
	}
}

func (g *Gateway) handleConnectionClosed(Frame) {
	err := broker.NewErrorf(broker.KindNotConnected, "socket gateway: connection closed")
	g.posSlot.complete(positionsOutcome{err: err})
	g.orderSlot.complete(ordersOutcome{err: err})
	g.orderStatusSlots.completeAll(orderStatusOutcome{err: err})
	g.priceSlots.completeAll(decimal.Zero)
}

// --- position handlers ---

func (g *Gateway) handlePosition(f Frame) {
	var p positionPayload
	if err := json.Unmarshal(f.Payload, &p); err != nil {
		logger.Warnf("socket gateway: malformed position payload: %v", err)
		return
	}
	qty, err := decimal.NewFromString(p.Quantity)
	if err != nil {
		logger.Warnf("socket gateway: malformed position quantity %q: %v", p.Quantity, err)
		return
	}
	avg, err := decimal.NewFromString(p.AvgCost)
	if err != nil {
		logger.Warnf("socket gateway: malformed position avgCost %q: %v", p.AvgCost, err)
		return
	}
	g.posBufMu.Lock()
	g.posBuf = append(g.posBuf, broker.Position{
		AccountID: p.AccountID,
		Conid:     p.Conid,
		Ticker:    p.Ticker,
		Quantity:  qty,
		AvgPrice:  avg,
		Currency:  p.Currency,
	})
	g.posBufMu.Unlock()
}

func (g *Gateway) handlePositionEnd(Frame) {
	g.posBufMu.Lock()
	snapshot := append([]broker.Position(nil), g.posBuf...)
	g.posBuf = nil
	g.posBufMu.Unlock()
	g.posSlot.complete(positionsOutcome{positions: snapshot})
}

// --- order handlers ---

func (g *Gateway) handleOpenOrder(f Frame) {
	var p openOrderPayload
	if err := json.Unmarshal(f.Payload, &p); err != nil {
		logger.Warnf("socket gateway: malformed openOrder payload: %v", err)
		return
	}
	order := broker.Order{
		OrderID:     p.OrderID,
		AccountID:   p.AccountID,
		Conid:       p.Conid,
		Ticker:      p.Ticker,
		OrderType:   p.OrderType,
		Description: p.Description,
		Side:        p.Side,
		Status:      p.Status,
	}
	if d, ok := parseOptionalDecimal(p.Price); ok {
		order.Price = &d
	}
	if d, ok := parseOptionalDecimal(p.StopPrice); ok {
		order.StopPrice = &d
	}
	if d, err := decimal.NewFromString(p.Quantity); err == nil {
		order.Quantity = d
	}
	if d, err := decimal.NewFromString(p.RemainingQuantity); err == nil {
		order.RemainingQuantity = d
	}
	g.orderBufMu.Lock()
	g.orderBuf = append(g.orderBuf, order)
	g.orderBufMu.Unlock()
}

func parseOptionalDecimal(s *string) (decimal.Decimal, bool) {
	if s == nil || *s == "" {
		return decimal.Decimal{}, false
	}
	d, err := decimal.NewFromString(*s)
	if err != nil {
		return decimal.Decimal{}, false
	}
	return d, true
}

func (g *Gateway) handleOpenOrderEnd(Frame) {
	g.orderBufMu.Lock()
	snapshot := append([]broker.Order(nil), g.orderBuf...)
	g.orderBuf = nil
	g.orderBufMu.Unlock()
	g.orderSlot.complete(ordersOutcome{orders: snapshot})
}

func (g *Gateway) handleOrderStatus(f Frame) {
	var p orderStatusPayload
	if err := json.Unmarshal(f.Payload, &p); err != nil {
		logger.Warnf("socket gateway: malformed orderStatus payload: %v", err)
		return
	}
	id, err := strconv.ParseInt(p.OrderID, 10, 64)
	if err != nil {
		logger.Warnf("socket gateway: non-numeric orderStatus id %q: %v", p.OrderID, err)
		return
	}
	status := p.Status
	success := status != "Cancelled" && status != "ApiCancelled"
	g.orderStatusSlots.complete(id, orderStatusOutcome{
		result: broker.OrderResult{Success: success, OrderID: p.OrderID, Message: status},
	})
}

// --- market data handlers ---

func (g *Gateway) handleTickPrice(f Frame) {
	var p tickPricePayload
	if err := json.Unmarshal(f.Payload, &p); err != nil {
		logger.Warnf("socket gateway: malformed tickPrice payload: %v", err)
		return
	}
	if p.Price <= 0 || !isLastPriceField(p.Field) {
		return
	}
	g.priceSlots.complete(f.ReqID, decimal.NewFromFloat(p.Price))
}

func (g *Gateway) handleTickSnapshotEnd(f Frame) {
	g.priceSlots.complete(f.ReqID, decimal.Zero)
}

// --- error handler ---

func (g *Gateway) handleError(f Frame) {
	var p errorPayload
	if err := json.Unmarshal(f.Payload, &p); err != nil {
		logger.Warnf("socket gateway: malformed error payload: %v", err)
		return
	}
	if isBenignErrorCode(p.Code) {
		logger.Warnf("socket gateway: benign error %d: %s", p.Code, p.Msg)
		return
	}
	if isFatalErrorCode(p.Code) {
		logger.Warnf("socket gateway: fatal error %d: %s — failing pending requests", p.Code, p.Msg)
		err := broker.NewErrorf(broker.KindNotConnected, "broker error %d: %s", p.Code, p.Msg)
		g.posSlot.complete(positionsOutcome{err: err})
		g.orderSlot.complete(ordersOutcome{err: err})
		return
	}
	if f.ReqID == 0 {
		logger.Warnf("socket gateway: unrouted error %d: %s", p.Code, p.Msg)
		return
	}
	if g.priceSlots.complete(f.ReqID, decimal.Zero) {
		return
	}
	delivered := g.orderStatusSlots.complete(f.ReqID, orderStatusOutcome{
		result: broker.OrderResult{Success: false, Message: fmt.Sprintf("%d %s", p.Code, p.Msg)},
	})
	if !delivered {
		logger.Warnf("socket gateway: error %d (%s) matched no pending request", p.Code, p.Msg)
	}
}

// --- Gateway interface ---

func (g *Gateway) GetConfiguredAccounts() []string {
	return append([]string(nil), g.cfg.Accounts...)
}

func (g *Gateway) SwitchAccount(ctx context.Context, accountID string) error {
	// The socket protocol scopes positions/orders requests across all
	// accounts at once; there is no per-account "current account" to
	// switch.
	return nil
}

func (g *Gateway) GetConnectionStatus(ctx context.Context) broker.ConnectionStatus {
	connected := g.tr.connected()
	if !connected {
		if err := g.ensureConnected(ctx); err != nil {
			return broker.ConnectionStatus{Message: err.Error()}
		}
		connected = g.tr.connected()
	}
	return broker.ConnectionStatus{
		Reachable:     connected,
		Authenticated: connected,
		Connected:     connected,
		Message:       "socket gateway connected",
	}
}

func (g *Gateway) KeepAlive(ctx context.Context) bool {
	if err := g.ensureConnected(ctx); err != nil {
		return false
	}
	return g.tr.connected()
}

func (g *Gateway) GetAllPositions(ctx context.Context) ([]broker.Position, error) {
	if err := g.ensureConnected(ctx); err != nil {
		return nil, err
	}
	g.reqMu.Lock()
	defer g.reqMu.Unlock()

	ch := g.posSlot.register()
	if err := g.tr.send(Frame{Type: typeReqPositions}); err != nil {
		g.posSlot.clear()
		return nil, broker.NewError(broker.KindTransport, err)
	}
	timeout := g.cfg.PositionTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	select {
	case out := <-ch:
		if out.err != nil {
			return nil, out.err
		}
		positions := out.positions
		g.enrichMarketData(ctx, positions)
		return positions, nil
	case <-time.After(timeout):
		g.posSlot.clear()
		return nil, broker.NewErrorf(broker.KindTimeout, "socket gateway: positions fetch exceeded %s", timeout)
	case <-ctx.Done():
		g.posSlot.clear()
		return nil, broker.NewError(broker.KindTimeout, ctx.Err())
	}
}

func (g *Gateway) GetPositions(ctx context.Context, accountID string) ([]broker.Position, error) {
	all, err := g.GetAllPositions(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]broker.Position, 0, len(all))
	for _, p := range all {
		if p.AccountID == accountID && !p.IsClosed() {
			out = append(out, p)
		}
	}
	return out, nil
}

// enrichMarketData fans out one snapshot market-data request per
// non-zero position and waits up to PriceTimeout per position,
// mutating each position's MarketPrice in place.
func (g *Gateway) enrichMarketData(ctx context.Context, positions []broker.Position) {
	g.marketDataTypeOnce.Do(func() {
		if err := g.tr.send(Frame{
			Type:    typeReqMarketDataType,
			Payload: mustMarshal(reqMarketDataTypePayload{MarketDataType: 3}),
		}); err != nil {
			logger.Warnf("socket gateway: reqMarketDataType(3) send failed: %v", err)
		}
	})

	timeout := g.cfg.PriceTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	var wg sync.WaitGroup
	for i := range positions {
		if positions[i].Quantity.IsZero() {
			continue
		}
		wg.Add(1)
		go func(pos *broker.Position) {
			defer wg.Done()
			pos.MarketPrice = g.fetchSnapshotPrice(ctx, pos.Conid, timeout)
		}(&positions[i])
	}
	wg.Wait()
}

func (g *Gateway) fetchSnapshotPrice(ctx context.Context, conid int64, timeout time.Duration) decimal.Decimal {
	reqID := g.nextReqID()
	ch := g.priceSlots.register(reqID)
	err := g.tr.send(Frame{
		Type:  typeReqMktData,
		ReqID: reqID,
		Payload: mustMarshal(reqMktDataPayload{
			Contract: contractPayload{Conid: conid, Exchange: "SMART"},
			Snapshot: true,
		}),
	})
	if err != nil {
		g.priceSlots.forget(reqID)
		logger.Warnf("socket gateway: reqMktData send failed for conid %d: %v", conid, err)
		return decimal.Zero
	}
	select {
	case price := <-ch:
		return price
	case <-time.After(timeout):
		g.priceSlots.forget(reqID)
		logger.Warnf("socket gateway: market data for conid %d timed out after %s", conid, timeout)
		return decimal.Zero
	case <-ctx.Done():
		g.priceSlots.forget(reqID)
		return decimal.Zero
	}
}

func (g *Gateway) GetAllOrders(ctx context.Context) ([]broker.Order, error) {
	if err := g.ensureConnected(ctx); err != nil {
		return nil, err
	}
	g.reqMu.Lock()
	defer g.reqMu.Unlock()

	ch := g.orderSlot.register()
	if err := g.tr.send(Frame{Type: typeReqOpenOrders}); err != nil {
		g.orderSlot.clear()
		return nil, broker.NewError(broker.KindTransport, err)
	}
	timeout := g.cfg.OrderTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	select {
	case out := <-ch:
		if out.err != nil {
			return nil, out.err
		}
		return out.orders, nil
	case <-time.After(timeout):
		// openOrderEnd is not guaranteed when the open-order set is
		// empty; return best-effort partial data per spec §4.5/§7.
		g.orderBufMu.Lock()
		partial := append([]broker.Order(nil), g.orderBuf...)
		g.orderBuf = nil
		g.orderBufMu.Unlock()
		g.orderSlot.clear()
		logger.Warnf("socket gateway: openOrderEnd not received within %s, returning %d partial orders", timeout, len(partial))
		return partial, nil
	case <-ctx.Done():
		g.orderSlot.clear()
		return nil, broker.NewError(broker.KindTimeout, ctx.Err())
	}
}

func (g *Gateway) GetOrders(ctx context.Context, accountID string) ([]broker.Order, error) {
	all, err := g.GetAllOrders(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]broker.Order, 0, len(all))
	for _, o := range all {
		if o.AccountID == accountID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (g *Gateway) GetAllStopOrders(ctx context.Context) ([]broker.Order, error) {
	all, err := g.GetAllOrders(ctx)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(all))
	out := make([]broker.Order, 0, len(all))
	for _, o := range all {
		if !o.IsStop() || !o.IsActive() {
			continue
		}
		if _, dup := seen[o.OrderID]; dup {
			continue
		}
		seen[o.OrderID] = struct{}{}
		out = append(out, o)
	}
	return out, nil
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

func (g *Gateway) PlaceStopLossOrder(ctx context.Context, req broker.StopLossOrderRequest) (broker.OrderResult, error) {
	if err := g.ensureConnected(ctx); err != nil {
		return broker.OrderResult{}, err
	}
	reqID := g.nextReqID()
	ch := g.orderStatusSlots.register(reqID)
	err := g.tr.send(Frame{
		Type:  typePlaceOrder,
		ReqID: reqID,
		Payload: mustMarshal(placeOrderPayload{
			AccountID: req.AccountID,
			Conid:     req.Conid,
			Side:      req.Side(),
			StopPrice: req.StopPrice.String(),
			Quantity:  req.Quantity.String(),
		}),
	})
	if err != nil {
		g.orderStatusSlots.forget(reqID)
		return broker.OrderResult{}, broker.NewError(broker.KindTransport, err)
	}
	timeout := g.cfg.PlaceOrderTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	select {
	case out := <-ch:
		if out.err != nil {
			return broker.OrderResult{}, out.err
		}
		return out.result, nil
	case <-time.After(timeout):
		g.orderStatusSlots.forget(reqID)
		return broker.OrderResult{
			Success: true,
			OrderID: strconv.FormatInt(reqID, 10),
			Message: "confirmation pending",
		}, nil
	case <-ctx.Done():
		g.orderStatusSlots.forget(reqID)
		return broker.OrderResult{}, broker.NewError(broker.KindTimeout, ctx.Err())
	}
}

func mustMarshal(v any) json.RawMessage {
	raw, err := json.Marshal(v)
	if err != nil {
		logger.Errorf("socket gateway: failed to marshal payload %T: %v", v, err)
		return json.RawMessage("{}")
	}
	return raw
}
