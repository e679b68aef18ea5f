package app

import (
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/kerner1000/riskmanager/internal/broker"
)

var hundred = decimal.NewFromInt(100)

func normalizeTicker(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

func marshalRequest(req broker.StopLossOrderRequest) ([]byte, error) {
	return json.Marshal(struct {
		AccountID string `json:"accountId"`
		Conid     int64  `json:"conid"`
		StopPrice string `json:"stopPrice"`
		Quantity  string `json:"quantity"`
		IsLong    bool   `json:"isLong"`
	}{
		AccountID: req.AccountID,
		Conid:     req.Conid,
		StopPrice: req.StopPrice.String(),
		Quantity:  req.Quantity.String(),
		IsLong:    req.IsLong,
	})
}
