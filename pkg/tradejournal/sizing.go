package tradejournal

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// PositionSizeInput describes a planned entry.
type PositionSizeInput struct {
	Capital     Amount  `json:"capital"`
	EntryPrice  Amount  `json:"entry_price"`
	StopLoss    Amount  `json:"stop_loss"`
	RiskPercent float64 `json:"risk_percent"`
}

// PositionSize is the largest whole position that keeps the loss at the stop
// within the risk budget.
type PositionSize struct {
	Units       int64  `json:"units"`
	RiskAmount  Amount `json:"risk_amount"`
	PerUnitRisk Amount `json:"per_unit_risk"`
}

// CalculatePositionSize returns floor(capital * risk% / |entry - stop|).
// Units is zero when entry equals stop.
func CalculatePositionSize(in PositionSizeInput) (PositionSize, error) {
	if in.Capital.IsNegative() || in.EntryPrice.IsNegative() || in.StopLoss.IsNegative() {
		return PositionSize{}, NewError(ErrCodeInvalidInput, "capital and prices must not be negative")
	}
	if in.RiskPercent < 0 || in.RiskPercent > 100 {
		return PositionSize{}, NewError(ErrCodeInvalidInput, fmt.Sprintf("risk percent %v not in [0, 100]", in.RiskPercent))
	}

	riskAmount := in.Capital.Mul(decimal.NewFromFloat(in.RiskPercent)).Div(decimal.NewFromInt(100))
	perUnit := in.EntryPrice.Sub(in.StopLoss.Decimal).Abs()
	result := PositionSize{
		RiskAmount:  Amount{riskAmount},
		PerUnitRisk: Amount{perUnit},
	}
	if perUnit.IsZero() {
		return result, nil
	}
	result.Units = riskAmount.Div(perUnit).Floor().IntPart()
	return result, nil
}
