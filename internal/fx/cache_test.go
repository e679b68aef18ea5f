package fx

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConvertToBase_SameCurrencyIsNoop(t *testing.T) {
	c := New(Config{BaseCurrency: "EUR"})
	amount := decimal.NewFromInt(100)

	got := c.ConvertToBase(context.Background(), amount, "EUR")

	assert.True(t, got.Equal(amount))
}

func TestConvertToBase_EmptyCurrencyIsNoop(t *testing.T) {
	c := New(Config{BaseCurrency: "EUR"})
	amount := decimal.NewFromInt(100)

	got := c.ConvertToBase(context.Background(), amount, "")

	assert.True(t, got.Equal(amount))
}

func TestConvertToBase_RefreshesAndInvertsRate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"base":"EUR","rates":{"USD":"1.1111111111"}}`))
	}))
	defer server.Close()

	c := New(Config{
		BaseCurrency:        "EUR",
		EndpointURLTemplate: server.URL + "/?from=%s",
		RefreshInterval:     time.Hour,
	})

	got := c.ConvertToBase(context.Background(), decimal.NewFromInt(100), "USD")

	// 1 / 1.1111111111 ≈ 0.9, so 100 USD -> 90.00 EUR.
	assert.True(t, got.Equal(decimal.NewFromFloat(90.00)), "got %s", got)
}

func TestConvertToBase_MissingRateFallsBackToOneToOne(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"base":"EUR","rates":{"GBP":"0.9"}}`))
	}))
	defer server.Close()

	c := New(Config{
		BaseCurrency:        "EUR",
		EndpointURLTemplate: server.URL + "/?from=%s",
		RefreshInterval:     time.Hour,
	})

	got := c.ConvertToBase(context.Background(), decimal.NewFromInt(50), "USD")

	assert.True(t, got.Equal(decimal.NewFromInt(50)))
}

func TestConvertToBase_RefreshFailureKeepsPriorTable(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		if n == 1 {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"base":"EUR","rates":{"USD":"1.1111111111"}}`))
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	c := New(Config{
		BaseCurrency:        "EUR",
		EndpointURLTemplate: server.URL + "/?from=%s",
		RefreshInterval:     time.Millisecond,
	})

	first := c.ConvertToBase(context.Background(), decimal.NewFromInt(100), "USD")
	require.True(t, first.Equal(decimal.NewFromFloat(90.00)))

	time.Sleep(5 * time.Millisecond)
	second := c.ConvertToBase(context.Background(), decimal.NewFromInt(100), "USD")

	assert.True(t, second.Equal(decimal.NewFromFloat(90.00)), "got %s", second)
	assert.GreaterOrEqual(t, calls.Load(), int32(2))
}
