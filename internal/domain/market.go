package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var symbolSeparators = strings.NewReplacer("/", "", "-", "", "_", "")

// CanonicalSymbol is the one spelling of a pair used across feeds, storage and
// the API: upper case with separators removed, so "btc/usdt" is "BTCUSDT".
func CanonicalSymbol(s string) string {
	return symbolSeparators.Replace(strings.ToUpper(strings.TrimSpace(s)))
}

// PriceSample is a single price observation for a symbol. Samples are consumed
// by the indicator engine and then discarded.
type PriceSample struct {
	Symbol    string          `json:"symbol"`
	Price     decimal.Decimal `json:"price"`
	Volume    decimal.Decimal `json:"volume"`
	Timestamp time.Time       `json:"timestamp"`
}

// IndicatorState is an immutable view of a symbol's rolling indicators.
// A value is only meaningful when its Ready flag (or Valid for MAs) is set.
type IndicatorState struct {
	Symbol        string          `json:"symbol"`
	Samples       int             `json:"samples"`
	LastPrice     decimal.Decimal `json:"last_price"`
	LastVolume    decimal.Decimal `json:"last_volume"`
	LastTimestamp time.Time       `json:"last_timestamp"`
	ChangePct     float64         `json:"change_pct"` // since the first sample

	MAShort  decimal.NullDecimal `json:"ma_short"`
	MAMedium decimal.NullDecimal `json:"ma_medium"`
	MALong   decimal.NullDecimal `json:"ma_long"`

	RSI      float64 `json:"rsi"`
	RSIReady bool    `json:"rsi_ready"`

	MACD        float64 `json:"macd"`
	MACDReady   bool    `json:"macd_ready"`
	MACDSignal  float64 `json:"macd_signal"`
	SignalReady bool    `json:"macd_signal_ready"`
}

// Trend classifies the ordering of the three moving averages.
// Strict short > medium > long is UP, the reverse is DOWN, everything else SIDEWAYS.
func (s IndicatorState) Trend() Trend {
	if !s.MAShort.Valid || !s.MAMedium.Valid || !s.MALong.Valid {
		return TrendSideways
	}
	short, med, long := s.MAShort.Decimal, s.MAMedium.Decimal, s.MALong.Decimal
	switch {
	case short.GreaterThan(med) && med.GreaterThan(long):
		return TrendUp
	case short.LessThan(med) && med.LessThan(long):
		return TrendDown
	default:
		return TrendSideways
	}
}

// MACDHistogram is MACD minus its signal line, zero until both are ready.
func (s IndicatorState) MACDHistogram() float64 {
	if !s.MACDReady || !s.SignalReady {
		return 0
	}
	return s.MACD - s.MACDSignal
}

func (s IndicatorState) MACDTrend() MACDTrend {
	h := s.MACDHistogram()
	switch {
	case h > 0:
		return MACDBullish
	case h < 0:
		return MACDBearish
	default:
		return MACDNeutral
	}
}

// Signal is recomputed on every evaluation and never stored by the core.
type Signal struct {
	Symbol   string     `json:"symbol"`
	Kind     SignalKind `json:"kind"`
	Strength int        `json:"strength"` // 0..100
}
