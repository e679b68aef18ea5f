package risk

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/kerner1000/riskmanager/internal/broker"
	"github.com/kerner1000/riskmanager/internal/money"
)

// CreateMissingStopLosses submits a new stop for every non-zero position
// in accountID that has no existing stop order.
func (e *Engine) CreateMissingStopLosses(ctx context.Context, accountID string) ([]StopLossResult, error) {
	positions, err := e.Gateway.GetPositions(ctx, accountID)
	if err != nil {
		return nil, err
	}
	stops, err := e.Gateway.GetStopOrders(ctx, accountID)
	if err != nil {
		return nil, err
	}
	protectedConids := make(map[int64]struct{}, len(stops))
	for _, o := range stops {
		protectedConids[o.Conid] = struct{}{}
	}

	results := make([]StopLossResult, 0, len(positions))
	for _, pos := range positions {
		if pos.Quantity.IsZero() {
			continue
		}
		if _, protected := protectedConids[pos.Conid]; protected {
			continue
		}
		results = append(results, e.submitNewStop(ctx, pos))
	}
	return results, nil
}

// CreateStopLossForPosition places a stop for one position identified by
// conid. It refuses if a stop already exists or the position is flat.
func (e *Engine) CreateStopLossForPosition(ctx context.Context, accountID string, conid int64) (StopLossResult, error) {
	positions, err := e.Gateway.GetPositions(ctx, accountID)
	if err != nil {
		return StopLossResult{}, err
	}
	var target *broker.Position
	for i := range positions {
		if positions[i].Conid == conid {
			target = &positions[i]
			break
		}
	}
	if target == nil {
		return StopLossResult{AccountID: accountID, Conid: conid, Success: false, Message: "Position not found"}, nil
	}
	return e.createStopForPosition(ctx, *target)
}

// CreateStopLossForPositionByTicker resolves a position by ticker rather
// than conid before delegating to the same placement logic.
func (e *Engine) CreateStopLossForPositionByTicker(ctx context.Context, accountID, ticker string) (StopLossResult, error) {
	positions, err := e.Gateway.GetPositions(ctx, accountID)
	if err != nil {
		return StopLossResult{}, err
	}
	needle := strings.ToUpper(strings.TrimSpace(ticker))
	var target *broker.Position
	for i := range positions {
		if strings.ToUpper(strings.TrimSpace(positions[i].Ticker)) == needle {
			target = &positions[i]
			break
		}
	}
	if target == nil {
		return StopLossResult{AccountID: accountID, Ticker: ticker, Success: false, Message: "Position not found"}, nil
	}
	return e.createStopForPosition(ctx, *target)
}

func (e *Engine) createStopForPosition(ctx context.Context, pos broker.Position) (StopLossResult, error) {
	if pos.Quantity.IsZero() {
		return StopLossResult{AccountID: pos.AccountID, Conid: pos.Conid, Ticker: pos.Ticker, Success: false, Message: "Position size is zero"}, nil
	}
	existing, err := e.Gateway.GetStopOrdersForConid(ctx, pos.AccountID, pos.Conid)
	if err != nil {
		return StopLossResult{}, err
	}
	for _, o := range existing {
		if price, ok := broker.ExtractStopPrice(o); ok {
			return StopLossResult{
				AccountID: pos.AccountID,
				Conid:     pos.Conid,
				Ticker:    pos.Ticker,
				Success:   false,
				Message:   fmt.Sprintf("Stop loss already exists at price %s", price.StringFixed(money.CurrencyScale)),
			}, nil
		}
	}
	return e.submitNewStop(ctx, pos), nil
}

// submitNewStop computes the new stop price — rounded down for longs,
// up for shorts, so the placed stop never overshoots the intended exit
// — and submits it.
func (e *Engine) submitNewStop(ctx context.Context, pos broker.Position) StopLossResult {
	req := e.buildStopRequest(pos)
	result, err := e.Gateway.PlaceStopLossOrder(ctx, req)
	if err != nil {
		return StopLossResult{AccountID: pos.AccountID, Conid: pos.Conid, Ticker: pos.Ticker, Success: false, Message: err.Error()}
	}
	return StopLossResult{
		AccountID: pos.AccountID,
		Conid:     pos.Conid,
		Ticker:    pos.Ticker,
		Success:   result.Success,
		OrderID:   result.OrderID,
		Message:   result.Message,
	}
}

// BuildStopRequestForDebug exposes the new-stop price calculation
// without submitting anything, for the façade's dry-run inspection
// feature.
func (e *Engine) BuildStopRequestForDebug(pos broker.Position) broker.StopLossOrderRequest {
	return e.buildStopRequest(pos)
}

func (e *Engine) buildStopRequest(pos broker.Position) broker.StopLossOrderRequest {
	m := money.RoundRate(e.UnprotectedLossPct.Div(decimal.NewFromInt(100)))
	var stopPrice decimal.Decimal
	if pos.IsLong() {
		stopPrice = money.RoundDownCurrency(pos.MarketPrice.Mul(decimal.NewFromInt(1).Sub(m)))
	} else {
		stopPrice = money.RoundUpCurrency(pos.MarketPrice.Mul(decimal.NewFromInt(1).Add(m)))
	}
	return broker.StopLossOrderRequest{
		AccountID: pos.AccountID,
		Conid:     pos.Conid,
		StopPrice: stopPrice,
		Quantity:  money.Abs(pos.Quantity),
		IsLong:    pos.IsLong(),
	}
}
