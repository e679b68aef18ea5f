package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kerner1000/riskmanager/internal/broker"
)

func decFixture(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestGetOrders_RefreshThenReadSequencing(t *testing.T) {
	var (
		switchCalled  atomic.Bool
		refreshCalled atomic.Bool
		readCalled    atomic.Bool
	)

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/api/iserver/account", func(w http.ResponseWriter, r *http.Request) {
		switchCalled.Store(true)
		json.NewEncoder(w).Encode(setAccountResponse{Set: true})
	})
	mux.HandleFunc("/v1/api/iserver/account/orders", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("force") == "true" {
			refreshCalled.Store(true)
			require.True(t, switchCalled.Load(), "refresh must happen after account switch")
			json.NewEncoder(w).Encode(ordersResponse{})
			return
		}
		readCalled.Store(true)
		require.True(t, refreshCalled.Load(), "trusted read must happen after refresh")
		json.NewEncoder(w).Encode(ordersResponse{Orders: []orderDTO{
			{OrderID: "1", Acct: "U123", Conid: 1, Ticker: "ABC", OrderType: "STP", Status: "Submitted"},
		}})
	})

	server := httptest.NewServer(mux)
	defer server.Close()

	gw, err := New(Config{
		BaseURL:      server.URL,
		Accounts:     []string{"U123"},
		Timeout:      5 * time.Second,
		SwitchDelay:  time.Millisecond,
		RefreshDelay: time.Millisecond,
	})
	require.NoError(t, err)

	orders, err := gw.GetOrders(context.Background(), "U123")
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, "1", orders[0].OrderID)
	assert.True(t, switchCalled.Load())
	assert.True(t, refreshCalled.Load())
	assert.True(t, readCalled.Load())
}

func TestPlaceStopLossOrder_TwoPhaseConfirm(t *testing.T) {
	var confirmed atomic.Bool

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/api/iserver/account/U123/orders", func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, r.Header.Get("X-Idempotency-Key"))
		json.NewEncoder(w).Encode([]placeOrderResponseItem{
			{ID: "reply-1", Message: []string{"This order will trigger a margin violation, are you sure?"}},
		})
	})
	mux.HandleFunc("/v1/api/iserver/reply/reply-1", func(w http.ResponseWriter, r *http.Request) {
		var body replyConfirmRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.True(t, body.Confirmed)
		confirmed.Store(true)
		json.NewEncoder(w).Encode(placeOrderResponseItem{OrderID: "final-order-1"})
	})

	server := httptest.NewServer(mux)
	defer server.Close()

	gw, err := New(Config{BaseURL: server.URL, Timeout: 5 * time.Second})
	require.NoError(t, err)

	result, err := gw.PlaceStopLossOrder(context.Background(), broker.StopLossOrderRequest{
		AccountID: "U123",
		Conid:     1,
		StopPrice: decFixture("95.00"),
		Quantity:  decFixture("100"),
		IsLong:    true,
	})

	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.True(t, confirmed.Load())
}

func TestPlaceStopLossOrder_NoConfirmationNeeded(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/api/iserver/account/U123/orders", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]placeOrderResponseItem{{OrderID: "order-1"}})
	})
	mux.HandleFunc("/v1/api/iserver/reply/", func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("confirm should not be called when no message is present")
	})

	server := httptest.NewServer(mux)
	defer server.Close()

	gw, err := New(Config{BaseURL: server.URL, Timeout: 5 * time.Second})
	require.NoError(t, err)

	result, err := gw.PlaceStopLossOrder(context.Background(), broker.StopLossOrderRequest{
		AccountID: "U123",
		Conid:     1,
		StopPrice: decFixture("95.00"),
		Quantity:  decFixture("100"),
		IsLong:    true,
	})

	require.NoError(t, err)
	assert.True(t, result.Success)
}
