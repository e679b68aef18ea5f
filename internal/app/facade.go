package app

import (
	"context"

	"github.com/kerner1000/riskmanager/internal/broker"
	"github.com/kerner1000/riskmanager/internal/pkg/jsonutil"
	"github.com/kerner1000/riskmanager/internal/risk"
)

// Facade exposes the engine's operations to the external API layer, per
// spec §2's "Application façade" row: overall risk, unprotected-only
// view, create-missing-stops, create-stop-by-conid/ticker.
type Facade struct {
	Gateway broker.Gateway
	Engine  *risk.Engine
	Health  *broker.HealthMonitor
}

// NewFacade wraps the assembled gateway, engine and health monitor.
func NewFacade(gateway broker.Gateway, engine *risk.Engine, health *broker.HealthMonitor) *Facade {
	return &Facade{Gateway: gateway, Engine: engine, Health: health}
}

// CalculateWorstCaseScenario answers the primary "risk" question for the
// given accounts (or every configured account, if empty).
func (f *Facade) CalculateWorstCaseScenario(ctx context.Context, accountIDs []string) (*risk.Report, error) {
	return f.Engine.CalculateWorstCaseScenarioForAccounts(ctx, accountIDs)
}

// UnprotectedRisk mirrors the original system's unprotectedOnly view:
// filtering to unprotected rows recomputes totalAtRiskProfit and
// totalPositionValue over the filtered set rather than merely hiding
// rows, so the totals stay internally consistent with what is shown.
func (f *Facade) UnprotectedRisk(ctx context.Context, accountIDs []string) (*risk.Report, error) {
	report, err := f.Engine.CalculateWorstCaseScenarioForAccounts(ctx, accountIDs)
	if err != nil {
		return nil, err
	}
	filtered := make([]risk.PositionRisk, 0, len(report.PositionRisks))
	for _, row := range report.PositionRisks {
		if !row.HasStopLoss {
			filtered = append(filtered, row)
		}
	}
	recomputed := &risk.Report{
		Currency:                      report.Currency,
		UnprotectedLossPercentageUsed: report.UnprotectedLossPercentageUsed,
		PositionRisks:                 filtered,
		WorstCaseProfitWithoutStopLoss: report.WorstCaseProfitWithoutStopLoss,
	}
	for _, row := range filtered {
		recomputed.TotalAtRiskProfit = recomputed.TotalAtRiskProfit.Add(row.AtRiskProfitBase)
		recomputed.TotalPositionValue = recomputed.TotalPositionValue.Add(row.PositionValueBase)
	}
	recomputed.WorstCaseProfit = recomputed.WorstCaseProfitWithoutStopLoss
	if !recomputed.TotalPositionValue.IsZero() {
		for i := range recomputed.PositionRisks {
			recomputed.PositionRisks[i].PortfolioPercentage = recomputed.PositionRisks[i].PositionValueBase.
				Div(recomputed.TotalPositionValue).
				Mul(hundred).
				Round(2)
		}
	}
	return recomputed, nil
}

// CreateMissingStopLosses places a new stop for every unprotected
// non-zero position in accountID.
func (f *Facade) CreateMissingStopLosses(ctx context.Context, accountID string) ([]risk.StopLossResult, error) {
	return f.Engine.CreateMissingStopLosses(ctx, accountID)
}

// CreateStopLossForPosition places a stop for one position by conid.
func (f *Facade) CreateStopLossForPosition(ctx context.Context, accountID string, conid int64) (risk.StopLossResult, error) {
	return f.Engine.CreateStopLossForPosition(ctx, accountID, conid)
}

// CreateStopLossForPositionByTicker places a stop for one position by
// ticker.
func (f *Facade) CreateStopLossForPositionByTicker(ctx context.Context, accountID, ticker string) (risk.StopLossResult, error) {
	return f.Engine.CreateStopLossForPositionByTicker(ctx, accountID, ticker)
}

// DebugStop is the dry-run result of DebugStopLossForTicker: the request
// that would have been submitted, alongside a pretty-printed rendering
// for operators inspecting stop-price math without placing an order.
// The account's positions are still fetched from the broker.
type DebugStop struct {
	Request     broker.StopLossOrderRequest
	RequestJSON string
	Found       bool
}

// DebugStopLossForTicker builds the stop request for a position without
// submitting it, mirroring the original system's
// createStopLossForPositionDebug.
func (f *Facade) DebugStopLossForTicker(ctx context.Context, accountID, ticker string) (DebugStop, error) {
	positions, err := f.Gateway.GetPositions(ctx, accountID)
	if err != nil {
		return DebugStop{}, err
	}
	needle := normalizeTicker(ticker)
	for _, pos := range positions {
		if normalizeTicker(pos.Ticker) != needle {
			continue
		}
		req := f.Engine.BuildStopRequestForDebug(pos)
		raw, marshalErr := marshalRequest(req)
		if marshalErr != nil {
			return DebugStop{}, marshalErr
		}
		return DebugStop{Request: req, RequestJSON: jsonutil.Pretty(string(raw)), Found: true}, nil
	}
	return DebugStop{Found: false}, nil
}
