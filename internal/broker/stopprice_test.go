package broker

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestExtractStopPrice_FromStopPriceField(t *testing.T) {
	sp := decimal.NewFromFloat(123.45)
	order := Order{StopPrice: &sp}

	price, ok := ExtractStopPrice(order)

	assert.True(t, ok)
	assert.True(t, price.Equal(sp))
}

func TestExtractStopPrice_FromPriceFieldWhenNoStopPrice(t *testing.T) {
	p := decimal.NewFromFloat(50)
	order := Order{Price: &p}

	price, ok := ExtractStopPrice(order)

	assert.True(t, ok)
	assert.True(t, price.Equal(p))
}

func TestExtractStopPrice_FromDescription(t *testing.T) {
	order := Order{Description: "Sell 100 shares stop 1,234.50 GTC"}

	price, ok := ExtractStopPrice(order)

	assert.True(t, ok)
	assert.True(t, price.Equal(decimal.NewFromFloat(1234.50)))
}

func TestExtractStopPrice_DescriptionCaseInsensitive(t *testing.T) {
	order := Order{Description: "STOP 99.5 order"}

	price, ok := ExtractStopPrice(order)

	assert.True(t, ok)
	assert.True(t, price.Equal(decimal.NewFromFloat(99.5)))
}

func TestExtractStopPrice_NoMatchReturnsFalse(t *testing.T) {
	order := Order{OrderID: "1", Description: "Limit order at 50"}

	_, ok := ExtractStopPrice(order)

	assert.False(t, ok)
}
