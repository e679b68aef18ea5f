package socket

import "encoding/json"

// Frame is one message of the framed JSON-over-websocket protocol: every
// inbound or outbound message carries a Type, an optional ReqID for
// correlated request/callback pairs, and a typed Payload.
type Frame struct {
	Type    string          `json:"type"`
	ReqID   int64           `json:"reqId,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Inbound message types the reader loop dispatches on.
const (
	typeNextValidID      = "nextValidId"
	typeConnectAck       = "connectAck"
	typeConnectionClosed = "connectionClosed"
	typePosition         = "position"
	typePositionEnd      = "positionEnd"
	typeOpenOrder        = "openOrder"
	typeOpenOrderEnd     = "openOrderEnd"
	typeOrderStatus      = "orderStatus"
	typeTickPrice        = "tickPrice"
	typeTickSnapshotEnd  = "tickSnapshotEnd"
	typeError            = "error"
)

// Outbound message types the client sends.
const (
	typeStartAPI          = "startAPI"
	typeReqPositions      = "reqPositions"
	typeReqOpenOrders     = "reqOpenOrders"
	typeReqMarketDataType = "reqMarketDataType"
	typeReqMktData        = "reqMktData"
	typePlaceOrder        = "placeOrder"
)

type nextValidIDPayload struct {
	OrderID int64 `json:"orderId"`
}

type positionPayload struct {
	AccountID string  `json:"accountId"`
	Conid     int64   `json:"conid"`
	Ticker    string  `json:"ticker"`
	Currency  string  `json:"currency"`
	Quantity  string  `json:"quantity"`
	AvgCost   string  `json:"avgCost"`
}

type openOrderPayload struct {
	OrderID           string  `json:"orderId"`
	AccountID         string  `json:"accountId"`
	Conid             int64   `json:"conid"`
	Ticker            string  `json:"ticker"`
	OrderType         string  `json:"orderType"`
	Description       string  `json:"description"`
	Side              string  `json:"side"`
	Price             *string `json:"price"`
	StopPrice         *string `json:"stopPrice"`
	Quantity          string  `json:"quantity"`
	RemainingQuantity string  `json:"remainingQuantity"`
	Status            string  `json:"status"`
}

type orderStatusPayload struct {
	OrderID string `json:"orderId"`
	Status  string `json:"status"`
}

type tickPricePayload struct {
	Field int64   `json:"field"`
	Price float64 `json:"price"`
}

type errorPayload struct {
	Code int64  `json:"code"`
	Msg  string `json:"msg"`
}

type reqPositionsPayload struct {
	AccountID string `json:"accountId"`
}

type reqOpenOrdersPayload struct {
	AccountID string `json:"accountId"`
}

type reqMarketDataTypePayload struct {
	MarketDataType int `json:"marketDataType"`
}

type contractPayload struct {
	Conid    int64  `json:"conid"`
	Exchange string `json:"exchange"`
}

type reqMktDataPayload struct {
	Contract contractPayload `json:"contract"`
	Snapshot bool             `json:"snapshot"`
}

type placeOrderPayload struct {
	AccountID string `json:"accountId"`
	Conid     int64  `json:"conid"`
	Side      string `json:"side"`
	StopPrice string `json:"stopPrice"`
	Quantity  string `json:"quantity"`
}

// tickPrice fields that carry a "last traded" price, per spec §4.5.
var lastPriceFields = map[int64]struct{}{
	4:  {}, // LAST
	9:  {}, // CLOSE
	68: {}, // DELAYED_LAST
	75: {}, // DELAYED_CLOSE
	72: {}, // DELAYED_HIGH
	73: {}, // DELAYED_LOW
	66: {}, // DELAYED_BID
	67: {}, // DELAYED_ASK
}

func isLastPriceField(field int64) bool {
	_, ok := lastPriceFields[field]
	return ok
}

// Benign error codes: delayed-data warning (10167) and unknown-ticker
// (300). Logged, not fatal.
func isBenignErrorCode(code int64) bool {
	return code == 10167 || code == 300
}

// Fatal error codes: connectivity lost, fails the pending positions and
// orders futures.
func isFatalErrorCode(code int64) bool {
	return code == 502 || code == 504
}
