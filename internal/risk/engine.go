package risk

import (
	"context"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/kerner1000/riskmanager/internal/broker"
	"github.com/kerner1000/riskmanager/internal/money"
)

// FxConverter is the subset of fx.Cache the engine needs — kept as a
// small interface so tests can inject a fake without a real HTTP round
// trip.
type FxConverter interface {
	ConvertToBase(ctx context.Context, amount decimal.Decimal, fromCurrency string) decimal.Decimal
}

// Engine reconciles positions and stop orders into a Report. Calculate
// is a pure function of its arguments plus Fx; CalculateWorstCaseScenarioForAccounts
// and the stop-creation operations additionally fetch/submit through
// Gateway.
type Engine struct {
	Gateway            broker.Gateway
	Fx                 FxConverter
	BaseCurrency       string
	UnprotectedLossPct decimal.Decimal // e.g. 50 means 50%
}

// New builds an Engine wired to gateway and fx.
func New(gateway broker.Gateway, fx FxConverter, baseCurrency string, unprotectedLossPct decimal.Decimal) *Engine {
	return &Engine{
		Gateway:            gateway,
		Fx:                 fx,
		BaseCurrency:       strings.ToUpper(strings.TrimSpace(baseCurrency)),
		UnprotectedLossPct: unprotectedLossPct,
	}
}

// CalculateWorstCaseScenarioForAccounts fetches positions and stop
// orders for accountIDs (or every configured account, if empty) and
// reduces them to a Report.
func (e *Engine) CalculateWorstCaseScenarioForAccounts(ctx context.Context, accountIDs []string) (*Report, error) {
	if len(accountIDs) == 0 {
		accountIDs = e.Gateway.GetConfiguredAccounts()
	}

	positions := make([]broker.Position, 0)
	stopOrders := make([]broker.Order, 0)
	seenStops := make(map[string]struct{})

	for _, acct := range accountIDs {
		pos, err := e.Gateway.GetPositions(ctx, acct)
		if err != nil {
			return nil, err
		}
		positions = append(positions, pos...)

		stops, err := e.Gateway.GetStopOrders(ctx, acct)
		if err != nil {
			return nil, err
		}
		for _, o := range stops {
			if o.OrderID != "" {
				if _, dup := seenStops[o.OrderID]; dup {
					continue
				}
				seenStops[o.OrderID] = struct{}{}
			}
			stopOrders = append(stopOrders, o)
		}
	}

	return e.Calculate(ctx, positions, stopOrders), nil
}

// Calculate is the pure reduction of spec §4.6 steps 1-6.
func (e *Engine) Calculate(ctx context.Context, positions []broker.Position, stopOrders []broker.Order) *Report {
	index, order := buildPositionIndex(positions)
	groups := groupStopOrders(stopOrders)

	protected := make(map[positionKey]struct{}, len(groups))
	rows := make([]PositionRisk, 0, len(index))

	// Step 2: process protected positions, one group at a time, in a
	// deterministic order derived from the position index so results
	// don't depend on Go's map iteration order.
	for _, key := range order {
		group, ok := groups[key]
		if !ok {
			continue
		}
		pos := index[key]
		totalQty := decimal.Zero
		weightedSum := decimal.Zero
		haveAnyPrice := false
		firstTicker := ""
		for _, o := range group {
			qty := money.Abs(o.RemainingOrQuantity())
			totalQty = totalQty.Add(qty)
			if price, ok := broker.ExtractStopPrice(o); ok {
				weightedSum = weightedSum.Add(price.Mul(qty))
				haveAnyPrice = true
				if firstTicker == "" {
					firstTicker = o.Ticker
				}
			}
		}
		if totalQty.IsZero() || !haveAnyPrice {
			continue
		}
		avgStopPrice := money.RoundCurrency(weightedSum.Div(totalQty))
		protected[key] = struct{}{}

		ticker := firstTicker
		if ticker == "" {
			ticker = pos.Ticker
		}
		rows = append(rows, e.buildRow(ctx, pos, avgStopPrice, totalQty, true, ticker))
	}

	// Step 3: unprotected positions.
	for _, key := range order {
		if _, ok := protected[key]; ok {
			continue
		}
		pos := index[key]
		if pos.Quantity.IsZero() {
			continue
		}
		assumedStop := e.assumedStopPrice(pos)
		rows = append(rows, e.buildRow(ctx, pos, assumedStop, money.Abs(pos.Quantity), false, pos.Ticker))
	}

	return e.finalize(rows)
}

// buildPositionIndex maps (conid, accountId) -> Position, first-wins on
// conflict, and returns the keys in input order so downstream
// processing is deterministic.
func buildPositionIndex(positions []broker.Position) (map[positionKey]broker.Position, []positionKey) {
	index := make(map[positionKey]broker.Position, len(positions))
	order := make([]positionKey, 0, len(positions))
	for _, p := range positions {
		key := positionKey{Conid: p.Conid, AccountID: p.AccountID}
		if _, exists := index[key]; exists {
			continue
		}
		index[key] = p
		order = append(order, key)
	}
	return index, order
}

func groupStopOrders(orders []broker.Order) map[positionKey][]broker.Order {
	groups := make(map[positionKey][]broker.Order)
	for _, o := range orders {
		key := positionKey{Conid: o.Conid, AccountID: o.AccountID}
		groups[key] = append(groups[key], o)
	}
	return groups
}

// assumedStopPrice implements step 5: m = pct/100 (4-digit half-up),
// avgPrice*(1-m) for longs, avgPrice*(1+m) for shorts.
func (e *Engine) assumedStopPrice(pos broker.Position) decimal.Decimal {
	m := money.RoundRate(e.UnprotectedLossPct.Div(decimal.NewFromInt(100)))
	if pos.IsLong() {
		return money.RoundCurrency(pos.AvgPrice.Mul(decimal.NewFromInt(1).Sub(m)))
	}
	return money.RoundCurrency(pos.AvgPrice.Mul(decimal.NewFromInt(1).Add(m)))
}

// buildRow implements step 4's per-position math.
func (e *Engine) buildRow(ctx context.Context, pos broker.Position, stopPrice, orderQuantity decimal.Decimal, hasStopLoss bool, ticker string) PositionRisk {
	var lockedPerShare, atRiskPerShare decimal.Decimal
	if pos.IsLong() {
		lockedPerShare = stopPrice.Sub(pos.AvgPrice)
		if pos.MarketPrice.GreaterThan(pos.AvgPrice) {
			atRiskPerShare = pos.MarketPrice.Sub(stopPrice)
		} else {
			atRiskPerShare = pos.MarketPrice.Sub(stopPrice).Neg()
		}
	} else {
		lockedPerShare = pos.AvgPrice.Sub(stopPrice)
		if pos.MarketPrice.LessThan(pos.AvgPrice) {
			atRiskPerShare = stopPrice.Sub(pos.MarketPrice)
		} else {
			atRiskPerShare = stopPrice.Sub(pos.MarketPrice).Neg()
		}
	}

	lockedProfit := money.RoundCurrency(lockedPerShare.Mul(orderQuantity))
	atRiskProfit := money.RoundCurrency(atRiskPerShare.Mul(orderQuantity))
	positionValue := money.RoundCurrency(money.Abs(pos.Quantity).Mul(pos.MarketPrice))

	row := PositionRisk{
		AccountID:     pos.AccountID,
		Ticker:        ticker,
		Conid:         pos.Conid,
		PositionSize:  pos.Quantity,
		AvgPrice:      pos.AvgPrice,
		CurrentPrice:  pos.MarketPrice,
		StopPrice:     stopPrice,
		OrderQuantity: orderQuantity,
		LockedProfit:  lockedProfit,
		AtRiskProfit:  atRiskProfit,
		PositionValue: positionValue,
		Currency:      pos.Currency,
		BaseCurrency:  e.BaseCurrency,
		HasStopLoss:   hasStopLoss,
	}
	if e.Fx != nil {
		row.LockedProfitBase = e.Fx.ConvertToBase(ctx, lockedProfit, pos.Currency)
		row.AtRiskProfitBase = e.Fx.ConvertToBase(ctx, atRiskProfit, pos.Currency)
		row.PositionValueBase = e.Fx.ConvertToBase(ctx, positionValue, pos.Currency)
	} else {
		row.LockedProfitBase = lockedProfit
		row.AtRiskProfitBase = atRiskProfit
		row.PositionValueBase = positionValue
	}
	return row
}

// finalize implements step 6: aggregate totals, percent-of-portfolio,
// sort by lockedProfit descending.
func (e *Engine) finalize(rows []PositionRisk) *Report {
	report := &Report{
		Currency:                      e.BaseCurrency,
		UnprotectedLossPercentageUsed: e.UnprotectedLossPct,
		PositionRisks:                 rows,
	}
	for _, r := range rows {
		if r.HasStopLoss {
			report.WorstCaseProfitWithStopLoss = report.WorstCaseProfitWithStopLoss.Add(r.LockedProfitBase)
		} else {
			report.WorstCaseProfitWithoutStopLoss = report.WorstCaseProfitWithoutStopLoss.Add(r.LockedProfitBase)
		}
		report.TotalAtRiskProfit = report.TotalAtRiskProfit.Add(r.AtRiskProfitBase)
		report.TotalPositionValue = report.TotalPositionValue.Add(r.PositionValueBase)
	}
	report.WorstCaseProfit = report.WorstCaseProfitWithStopLoss.Add(report.WorstCaseProfitWithoutStopLoss)

	if !report.TotalPositionValue.IsZero() {
		for i := range report.PositionRisks {
			pct := report.PositionRisks[i].PositionValueBase.
				Div(report.TotalPositionValue).
				Mul(decimal.NewFromInt(100))
			report.PositionRisks[i].PortfolioPercentage = pct.Round(money.CurrencyScale)
		}
	}

	sort.SliceStable(report.PositionRisks, func(i, j int) bool {
		return report.PositionRisks[i].LockedProfit.GreaterThan(report.PositionRisks[j].LockedProfit)
	})

	return report
}
