// Package broker defines the broker-agnostic contract that the REST and
// socket backends both implement, along with the entities that flow
// across it.
package broker

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Position is a broker account's holding in one instrument.
type Position struct {
	AccountID   string
	Conid       int64
	Ticker      string
	Quantity    decimal.Decimal // signed: >0 long, <0 short, =0 closed
	AvgPrice    decimal.Decimal
	MarketPrice decimal.Decimal
	Currency    string
}

// IsLong reports whether the position is a long holding.
func (p Position) IsLong() bool { return p.Quantity.IsPositive() }

// IsShort reports whether the position is a short holding.
func (p Position) IsShort() bool { return p.Quantity.IsNegative() }

// IsClosed reports whether the position carries no quantity.
func (p Position) IsClosed() bool { return p.Quantity.IsZero() }

// Order is a broker order in any state, as returned by orders endpoints.
type Order struct {
	OrderID           string
	AccountID         string
	Conid             int64
	Ticker            string
	OrderType         string
	Description       string
	Side              string // "SELL" / "BUY"
	Price             *decimal.Decimal
	StopPrice         *decimal.Decimal
	Quantity          decimal.Decimal
	RemainingQuantity decimal.Decimal
	Status            string
}

var cancelledStatuses = map[string]struct{}{
	"cancelled":    {},
	"filled":       {},
	"apicancelled": {},
}

// IsActive reports whether the order is still live: status is empty or
// not one of Cancelled / Filled / ApiCancelled (case-insensitive).
func (o Order) IsActive() bool {
	if o.Status == "" {
		return true
	}
	_, terminal := cancelledStatuses[strings.ToLower(o.Status)]
	return !terminal
}

// IsStop reports whether the order type marks it as a stop order:
// case-insensitive "STP" or containing "stop".
func (o Order) IsStop() bool {
	return strings.EqualFold(o.OrderType, "stp") || strings.Contains(strings.ToLower(o.OrderType), "stop")
}

// EffectiveStopPrice returns the order's operative stop price: StopPrice
// if set, else Price, else nil — callers fall back further to
// ExtractStopPrice's free-text parse of Description.
func (o Order) EffectiveStopPrice() *decimal.Decimal {
	if o.StopPrice != nil {
		return o.StopPrice
	}
	if o.Price != nil {
		return o.Price
	}
	return nil
}

// RemainingOrQuantity returns RemainingQuantity if it carries a value,
// else falls back to Quantity.
func (o Order) RemainingOrQuantity() decimal.Decimal {
	if !o.RemainingQuantity.IsZero() {
		return o.RemainingQuantity
	}
	return o.Quantity
}

// ConnectionStatus reports the health of a broker connection.
type ConnectionStatus struct {
	Reachable     bool
	Authenticated bool
	Connected     bool
	Competing     bool
	Message       string
}

// StopLossOrderRequest describes a stop order to place.
type StopLossOrderRequest struct {
	AccountID string
	Conid     int64
	StopPrice decimal.Decimal
	Quantity  decimal.Decimal // positive
	IsLong    bool            // long -> SELL stop, short -> BUY stop
}

// Side returns the order side implied by IsLong.
func (r StopLossOrderRequest) Side() string {
	if r.IsLong {
		return "SELL"
	}
	return "BUY"
}

// OrderResult is the outcome of a placement call.
type OrderResult struct {
	Success bool
	OrderID string
	Message string
}
