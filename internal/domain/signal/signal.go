// Package signal turns indicator state into BUY/SELL/HOLD decisions.
package signal

import (
	"math"

	"xtrend/internal/domain"
	"xtrend/internal/domain/strategy"
)

// Weights is the strength blend. RSI and MACD are fractions summing to 1;
// MACDSaturation is the |histogram|/price ratio at which the MACD component maxes out.
type Weights struct {
	RSI            float64 `json:"rsi" toml:"rsi"`
	MACD           float64 `json:"macd" toml:"macd"`
	MACDSaturation float64 `json:"macd_saturation" toml:"macd_saturation"`
}

// DefaultWeights favours RSI distance over MACD divergence. The histogram
// saturates at 0.5% of price.
var DefaultWeights = Weights{
	RSI:            0.6,
	MACD:           0.4,
	MACDSaturation: 0.005,
}

// Generator is stateless: Evaluate depends only on its arguments.
type Generator struct {
	w Weights
}

// NewGenerator falls back to DefaultWeights for a blend that is negative or
// sums to zero.
func NewGenerator(w Weights) *Generator {
	if !(w.RSI >= 0) || !(w.MACD >= 0) || w.RSI+w.MACD <= 0 {
		w.RSI, w.MACD = DefaultWeights.RSI, DefaultWeights.MACD
	}
	if !(w.MACDSaturation > 0) {
		w.MACDSaturation = DefaultWeights.MACDSaturation
	}
	return &Generator{w: w}
}

func (g *Generator) Weights() Weights { return g.w }

// Evaluate classifies st under cfg.
//
// BUY needs rsi < rsi_low and a short MA above the medium MA; SELL needs
// rsi > rsi_high and a short MA below the medium MA. Anything else, including
// RSI exactly at a bound, is HOLD. HOLD still carries a strength.
func (g *Generator) Evaluate(st domain.IndicatorState, cfg strategy.Config) domain.Signal {
	sig := domain.Signal{Symbol: st.Symbol, Kind: domain.SignalHold}
	if !st.RSIReady || !st.MAShort.Valid || !st.MAMedium.Valid {
		return sig
	}

	short, med := st.MAShort.Decimal, st.MAMedium.Decimal
	switch {
	case st.RSI < cfg.RSILow && short.GreaterThan(med):
		sig.Kind = domain.SignalBuy
	case st.RSI > cfg.RSIHigh && short.LessThan(med):
		sig.Kind = domain.SignalSell
	}
	sig.Strength = g.strength(st)
	return sig
}

func (g *Generator) strength(st domain.IndicatorState) int {
	rsiComp := math.Abs(st.RSI-50) / 50 * 100

	var macdComp float64
	if px := st.LastPrice.InexactFloat64(); px > 0 && st.MACDReady && st.SignalReady {
		macdComp = math.Min(1, math.Abs(st.MACDHistogram())/(px*g.w.MACDSaturation)) * 100
	}

	total := g.w.RSI + g.w.MACD
	if !(total > 0) {
		return 0
	}
	s := (g.w.RSI*rsiComp + g.w.MACD*macdComp) / total
	return int(math.Round(math.Max(0, math.Min(100, s))))
}
