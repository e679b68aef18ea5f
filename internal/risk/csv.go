package risk

import (
	"bytes"
	"encoding/csv"
	"strconv"

	"github.com/kerner1000/riskmanager/internal/money"
)

var csvHeader = []string{
	"accountId", "ticker", "conid", "positionSize", "avgPrice", "currentPrice",
	"stopPrice", "orderQuantity", "hasStopLoss", "lockedProfit", "atRiskProfit",
	"positionValue", "currency", "lockedProfitBase", "atRiskProfitBase",
	"positionValueBase", "baseCurrency", "portfolioPercentage",
}

// ToCSV renders the report's position rows the way the original
// system's risk CSV export did: one row per PositionRisk, base-currency
// columns alongside native ones.
func (r *Report) ToCSV() ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(csvHeader); err != nil {
		return nil, err
	}
	for _, row := range r.PositionRisks {
		record := []string{
			row.AccountID,
			row.Ticker,
			strconv.FormatInt(row.Conid, 10),
			row.PositionSize.StringFixed(4),
			row.AvgPrice.StringFixed(money.CurrencyScale),
			row.CurrentPrice.StringFixed(money.CurrencyScale),
			row.StopPrice.StringFixed(money.CurrencyScale),
			row.OrderQuantity.StringFixed(4),
			strconv.FormatBool(row.HasStopLoss),
			row.LockedProfit.StringFixed(money.CurrencyScale),
			row.AtRiskProfit.StringFixed(money.CurrencyScale),
			row.PositionValue.StringFixed(money.CurrencyScale),
			row.Currency,
			row.LockedProfitBase.StringFixed(money.CurrencyScale),
			row.AtRiskProfitBase.StringFixed(money.CurrencyScale),
			row.PositionValueBase.StringFixed(money.CurrencyScale),
			row.BaseCurrency,
			row.PortfolioPercentage.StringFixed(money.CurrencyScale),
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
