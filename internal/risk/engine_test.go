package risk

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kerner1000/riskmanager/internal/broker"
)

// fakeFx converts every non-EUR currency at rate (0.9 in these tests,
// i.e. USD to EUR) and passes EUR and an empty currency through
// unchanged, matching the scenarios' expected USD/EUR pairs.
type fakeFx struct {
	rate decimal.Decimal
}

func (f fakeFx) ConvertToBase(_ context.Context, amount decimal.Decimal, fromCurrency string) decimal.Decimal {
	if fromCurrency == "" || fromCurrency == "EUR" {
		return amount
	}
	return amount.Mul(f.rate).Round(2)
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func newTestEngine(unprotectedPct string) *Engine {
	return &Engine{
		Fx:                 fakeFx{rate: dec("0.9")},
		BaseCurrency:       "EUR",
		UnprotectedLossPct: dec(unprotectedPct),
	}
}

func stopOrder(conid int64, accountID string, stopPrice decimal.Decimal, qty decimal.Decimal) broker.Order {
	sp := stopPrice
	return broker.Order{
		OrderID:           "ord-" + stopPrice.String(),
		AccountID:         accountID,
		Conid:             conid,
		OrderType:         "STP",
		StopPrice:         &sp,
		Quantity:          qty,
		RemainingQuantity: qty,
		Status:            "Submitted",
	}
}

func TestCalculate_ProtectedLongInProfit(t *testing.T) {
	e := newTestEngine("20")
	positions := []broker.Position{
		{AccountID: "A", Conid: 1, Ticker: "ABC", Quantity: dec("100"), AvgPrice: dec("100.00"), MarketPrice: dec("150.00"), Currency: "USD"},
	}
	stops := []broker.Order{stopOrder(1, "A", dec("120.00"), dec("100"))}

	report := e.Calculate(context.Background(), positions, stops)

	require.Len(t, report.PositionRisks, 1)
	row := report.PositionRisks[0]
	assert.True(t, row.HasStopLoss)
	assert.True(t, row.LockedProfit.Equal(dec("2000.00")), "lockedProfit USD: %s", row.LockedProfit)
	assert.True(t, row.AtRiskProfit.Equal(dec("3000.00")), "atRiskProfit USD: %s", row.AtRiskProfit)
	assert.True(t, row.LockedProfitBase.Equal(dec("1800.00")), "lockedProfit EUR: %s", row.LockedProfitBase)
	assert.True(t, row.AtRiskProfitBase.Equal(dec("2700.00")), "atRiskProfit EUR: %s", row.AtRiskProfitBase)
}

func TestCalculate_ProtectedLongStopBelowEntry(t *testing.T) {
	e := newTestEngine("20")
	positions := []broker.Position{
		{AccountID: "A", Conid: 1, Ticker: "ABC", Quantity: dec("100"), AvgPrice: dec("100"), MarketPrice: dec("150"), Currency: "USD"},
	}
	stops := []broker.Order{stopOrder(1, "A", dec("90"), dec("100"))}

	report := e.Calculate(context.Background(), positions, stops)

	require.Len(t, report.PositionRisks, 1)
	row := report.PositionRisks[0]
	assert.True(t, row.LockedProfit.Equal(dec("-1000.00")))
	assert.True(t, row.AtRiskProfit.Equal(dec("6000.00")))
}

func TestCalculate_UnderwaterLongNoStop(t *testing.T) {
	e := newTestEngine("20")
	positions := []broker.Position{
		{AccountID: "A", Conid: 1, Ticker: "ABC", Quantity: dec("100"), AvgPrice: dec("100"), MarketPrice: dec("90"), Currency: "USD"},
	}

	report := e.Calculate(context.Background(), positions, nil)

	require.Len(t, report.PositionRisks, 1)
	row := report.PositionRisks[0]
	assert.False(t, row.HasStopLoss)
	assert.True(t, row.StopPrice.Equal(dec("80")), "assumed stop: %s", row.StopPrice)
	assert.True(t, row.LockedProfit.Equal(dec("-2000.00")))
	assert.True(t, row.AtRiskProfit.Equal(dec("-1000.00")))
}

func TestCalculate_WeightedAverageStop(t *testing.T) {
	e := newTestEngine("20")
	positions := []broker.Position{
		{AccountID: "A", Conid: 1, Ticker: "ABC", Quantity: dec("200"), AvgPrice: dec("100"), MarketPrice: dec("150"), Currency: "USD"},
	}
	stops := []broker.Order{
		stopOrder(1, "A", dec("110"), dec("50")),
		stopOrder(1, "A", dec("120"), dec("150")),
	}

	report := e.Calculate(context.Background(), positions, stops)

	require.Len(t, report.PositionRisks, 1)
	row := report.PositionRisks[0]
	assert.True(t, row.StopPrice.Equal(dec("117.50")), "avgStopPrice: %s", row.StopPrice)
	assert.True(t, row.OrderQuantity.Equal(dec("200")))
}

func TestCalculate_ShortPositionProtected(t *testing.T) {
	e := newTestEngine("20")
	positions := []broker.Position{
		{AccountID: "A", Conid: 1, Ticker: "ABC", Quantity: dec("-50"), AvgPrice: dec("200"), MarketPrice: dec("180"), Currency: "USD"},
	}
	stops := []broker.Order{stopOrder(1, "A", dec("220"), dec("50"))}

	report := e.Calculate(context.Background(), positions, stops)

	require.Len(t, report.PositionRisks, 1)
	row := report.PositionRisks[0]
	assert.True(t, row.LockedProfit.Equal(dec("-1000.00")))
	assert.True(t, row.AtRiskProfit.Equal(dec("2000.00")))
}

func TestCalculate_EmptyPortfolio(t *testing.T) {
	e := newTestEngine("20")

	report := e.Calculate(context.Background(), nil, nil)

	assert.Empty(t, report.PositionRisks)
	assert.True(t, report.TotalPositionValue.IsZero())
	assert.True(t, report.TotalAtRiskProfit.IsZero())
	assert.True(t, report.WorstCaseProfit.IsZero())
}

func TestCalculate_DuplicatePositionsMergeFirstWins(t *testing.T) {
	e := newTestEngine("20")
	positions := []broker.Position{
		{AccountID: "A", Conid: 1, Ticker: "ABC", Quantity: dec("100"), AvgPrice: dec("100"), MarketPrice: dec("150"), Currency: "USD"},
		{AccountID: "A", Conid: 1, Ticker: "ABC", Quantity: dec("999"), AvgPrice: dec("999"), MarketPrice: dec("999"), Currency: "USD"},
	}

	report := e.Calculate(context.Background(), positions, nil)

	require.Len(t, report.PositionRisks, 1)
	assert.True(t, report.PositionRisks[0].PositionSize.Equal(dec("100")))
}

func TestCalculate_SortedByLockedProfitDescending(t *testing.T) {
	e := newTestEngine("20")
	positions := []broker.Position{
		{AccountID: "A", Conid: 1, Ticker: "LOW", Quantity: dec("100"), AvgPrice: dec("100"), MarketPrice: dec("90"), Currency: "USD"},
		{AccountID: "A", Conid: 2, Ticker: "HIGH", Quantity: dec("100"), AvgPrice: dec("100"), MarketPrice: dec("150"), Currency: "USD"},
	}
	stops := []broker.Order{stopOrder(2, "A", dec("120"), dec("100"))}

	report := e.Calculate(context.Background(), positions, stops)

	require.Len(t, report.PositionRisks, 2)
	assert.Equal(t, "HIGH", report.PositionRisks[0].Ticker)
	assert.Equal(t, "LOW", report.PositionRisks[1].Ticker)
}
