// Package risk implements the deterministic reconciliation of positions
// and stop orders into a portfolio risk report (spec §4.6). Engine.Calculate
// is a pure function of its inputs plus the FX cache; the account-level
// operations fetch positions and orders and place stops through the
// broker gateway.
package risk

import "github.com/shopspring/decimal"

// PositionRisk is one output row of a RiskReport.
type PositionRisk struct {
	AccountID   string
	Ticker      string
	Conid       int64

	PositionSize decimal.Decimal // signed
	AvgPrice     decimal.Decimal
	CurrentPrice decimal.Decimal
	StopPrice    decimal.Decimal
	OrderQuantity decimal.Decimal

	LockedProfit  decimal.Decimal
	AtRiskProfit  decimal.Decimal
	PositionValue decimal.Decimal
	Currency      string

	LockedProfitBase  decimal.Decimal
	AtRiskProfitBase  decimal.Decimal
	PositionValueBase decimal.Decimal
	BaseCurrency      string

	HasStopLoss         bool
	PortfolioPercentage decimal.Decimal
}

// Report is the aggregated output of CalculateWorstCaseScenario.
type Report struct {
	TotalPositionValue decimal.Decimal

	WorstCaseProfit                decimal.Decimal
	WorstCaseProfitWithStopLoss    decimal.Decimal
	WorstCaseProfitWithoutStopLoss decimal.Decimal
	TotalAtRiskProfit              decimal.Decimal

	Currency                    string
	UnprotectedLossPercentageUsed decimal.Decimal
	PositionRisks               []PositionRisk
}

// StopLossResult is the outcome of an attempt to create a missing stop
// for one position.
type StopLossResult struct {
	AccountID string
	Conid     int64
	Ticker    string
	Success   bool
	OrderID   string
	Message   string
}

// positionKey identifies a position for dedup and stop-order grouping.
type positionKey struct {
	Conid     int64
	AccountID string
}
