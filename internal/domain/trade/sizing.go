package trade

import (
	"github.com/shopspring/decimal"

	"xtrend/internal/domain/strategy"
)

// quantityPlaces bounds order quantities to exchange step precision.
const quantityPlaces = 8

// PositionSize risks riskPerTradePct of equity between entry and the stop:
//
//	qty = (equity * risk%) / (entry * stop%)
//
// It returns zero when any input is non-positive.
func PositionSize(equity, entry decimal.Decimal, cfg strategy.Config) decimal.Decimal {
	if !equity.IsPositive() || !entry.IsPositive() || cfg.StopLossPct <= 0 || cfg.RiskPerTradePct <= 0 {
		return decimal.Zero
	}
	hundred := decimal.NewFromInt(100)
	risk := equity.Mul(decimal.NewFromFloat(cfg.RiskPerTradePct)).Div(hundred)
	stopDistance := entry.Mul(decimal.NewFromFloat(cfg.StopLossPct)).Div(hundred)
	return risk.Div(stopDistance).Truncate(quantityPlaces)
}
