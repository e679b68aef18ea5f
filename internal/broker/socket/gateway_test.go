package socket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kerner1000/riskmanager/internal/broker"
)

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func writeFrame(t *testing.T, conn *websocket.Conn, frame Frame) {
	t.Helper()
	raw, err := json.Marshal(frame)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, raw))
}

func payload(t *testing.T, v any) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return raw
}

// newTestGateway starts a fake broker-side websocket endpoint that
// performs the connectAck/startAPI handshake and then dispatches every
// subsequent inbound frame to handle, and returns a Gateway dialed
// against it.
func newTestGateway(t *testing.T, handle func(conn *websocket.Conn, frame Frame)) *Gateway {
	t.Helper()
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()

		writeFrame(t, conn, Frame{Type: typeConnectAck})

		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var frame Frame
			if err := json.Unmarshal(raw, &frame); err != nil {
				continue
			}
			if frame.Type == typeStartAPI {
				continue
			}
			handle(conn, frame)
		}
	}))
	t.Cleanup(server.Close)

	cfg := Config{
		URL:               wsURL(server),
		ConnectTimeout:    2 * time.Second,
		PositionTimeout:   2 * time.Second,
		OrderTimeout:      2 * time.Second,
		PriceTimeout:      2 * time.Second,
		PlaceOrderTimeout: 2 * time.Second,
	}
	return New(cfg)
}

func TestGetAllPositions_HandshakeAndEnrichment(t *testing.T) {
	gw := newTestGateway(t, func(conn *websocket.Conn, frame Frame) {
		switch frame.Type {
		case typeReqPositions:
			writeFrame(t, conn, Frame{Type: typePosition, Payload: payload(t, positionPayload{
				AccountID: "U123", Conid: 1, Ticker: "ABC", Currency: "USD", Quantity: "100", AvgCost: "50",
			})})
			writeFrame(t, conn, Frame{Type: typePositionEnd})
		case typeReqMarketDataType:
			// no response expected
		case typeReqMktData:
			writeFrame(t, conn, Frame{Type: typeTickPrice, ReqID: frame.ReqID, Payload: payload(t, tickPricePayload{
				Field: 4, Price: 55.5,
			})})
		}
	})

	positions, err := gw.GetAllPositions(context.Background())
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, "ABC", positions[0].Ticker)
	assert.True(t, positions[0].MarketPrice.Equal(decFixture("55.5")))
}

func TestGetAllOrders_TimeoutReturnsPartial(t *testing.T) {
	gw := newTestGateway(t, func(conn *websocket.Conn, frame Frame) {
		if frame.Type == typeReqOpenOrders {
			writeFrame(t, conn, Frame{Type: typeOpenOrder, Payload: payload(t, openOrderPayload{
				OrderID: "1", AccountID: "U123", Conid: 1, Ticker: "ABC", OrderType: "STP",
				Quantity: "100", RemainingQuantity: "100", Status: "Submitted",
			})})
			// deliberately never send openOrderEnd
		}
	})
	gw.cfg.OrderTimeout = 100 * time.Millisecond

	orders, err := gw.GetAllOrders(context.Background())
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, "1", orders[0].OrderID)
}

func TestPlaceStopLossOrder_DeliversOrderStatus(t *testing.T) {
	var placedID atomic.Int64
	gw := newTestGateway(t, func(conn *websocket.Conn, frame Frame) {
		if frame.Type == typePlaceOrder {
			// The broker reports status under the order id the client
			// placed the order with.
			placedID.Store(frame.ReqID)
			writeFrame(t, conn, Frame{Type: typeOrderStatus, Payload: payload(t, orderStatusPayload{
				OrderID: strconv.FormatInt(frame.ReqID, 10), Status: "Submitted",
			})})
		}
	})

	result, err := gw.PlaceStopLossOrder(context.Background(), broker.StopLossOrderRequest{
		AccountID: "U123",
		Conid:     1,
		StopPrice: decFixture("95.00"),
		Quantity:  decFixture("100"),
		IsLong:    true,
	})

	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, strconv.FormatInt(placedID.Load(), 10), result.OrderID)
	assert.Equal(t, "Submitted", result.Message)
}

func TestHandleError_FatalCodeFailsPendingRequests(t *testing.T) {
	gw := newTestGateway(t, func(conn *websocket.Conn, frame Frame) {
		if frame.Type == typeReqPositions {
			writeFrame(t, conn, Frame{Type: typeError, Payload: payload(t, errorPayload{
				Code: 502, Msg: "connectivity lost",
			})})
		}
	})

	_, err := gw.GetAllPositions(context.Background())
	require.Error(t, err)
	assert.True(t, broker.IsKind(err, broker.KindNotConnected))
}

func decFixture(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}
