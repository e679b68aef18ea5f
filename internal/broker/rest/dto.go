package rest

import (
	"strings"

	"github.com/shopspring/decimal"
)

// flexDecimal unmarshals a JSON field that the broker's REST API may
// represent as either a bare number or a quoted string — the client
// portal API does both depending on endpoint.
type flexDecimal decimal.Decimal

func (n *flexDecimal) UnmarshalJSON(data []byte) error {
	s := strings.Trim(strings.TrimSpace(string(data)), `"`)
	if s == "" || s == "null" {
		*n = flexDecimal(decimal.Zero)
		return nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return err
	}
	*n = flexDecimal(d)
	return nil
}

func (n flexDecimal) decimal() decimal.Decimal { return decimal.Decimal(n) }

type authStatusResponse struct {
	Authenticated bool   `json:"authenticated"`
	Connected     bool   `json:"connected"`
	Competing     bool   `json:"competing"`
	Fail          string `json:"fail"`
}

type setAccountRequest struct {
	AcctID string `json:"acctId"`
}

type setAccountResponse struct {
	Set bool `json:"set"`
}

type positionDTO struct {
	AcctID      string      `json:"acctId"`
	Conid       int64       `json:"conid"`
	ContractDesc string     `json:"contractDesc"`
	Position    flexDecimal `json:"position"`
	AvgPrice    flexDecimal `json:"avgPrice"`
	MktPrice    flexDecimal `json:"mktPrice"`
	Currency    string      `json:"currency"`
}

type ordersResponse struct {
	Orders []orderDTO `json:"orders"`
}

type orderDTO struct {
	OrderID           string       `json:"orderId"`
	Acct              string       `json:"acct"`
	Conid             int64        `json:"conid"`
	Ticker            string       `json:"ticker"`
	OrderType         string       `json:"orderType"`
	OrderDesc         string       `json:"orderDesc"`
	Side              string       `json:"side"`
	Price             *flexDecimal `json:"price"`
	StopPrice         *flexDecimal `json:"stopPrice"`
	FilledQuantity    *flexDecimal `json:"filledQuantity"`
	TotalSize         *flexDecimal `json:"totalSize"`
	RemainingQuantity *flexDecimal `json:"remainingQuantity"`
	Status            string       `json:"status"`
}

type orderRequest struct {
	Conid     int64  `json:"conid"`
	OrderType string `json:"orderType"`
	Price     string `json:"price"`
	Quantity  string `json:"quantity"`
	Side      string `json:"side"`
	Tif       string `json:"tif"`
}

type placeOrdersRequest struct {
	Orders []orderRequest `json:"orders"`
}

type placeOrderResponseItem struct {
	ID      string   `json:"id"`
	OrderID string   `json:"orderId"`
	Message []string `json:"message"`
}

type replyConfirmRequest struct {
	Confirmed bool `json:"confirmed"`
}
