package pipeline

import (
	"time"

	"xtrend/internal/domain"
	"xtrend/internal/domain/strategy"
)

// SymbolView is everything a dashboard row needs for one symbol.
type SymbolView struct {
	Symbol        string                `json:"symbol"`
	Indicators    domain.IndicatorState `json:"indicators"`
	Trend         domain.Trend          `json:"trend"`
	MACDTrend     domain.MACDTrend      `json:"macd_trend"`
	MACDHistogram float64               `json:"macd_histogram"`
	Signal        domain.Signal         `json:"signal"`
}

// Snapshot is a point-in-time copy of the whole pipeline. Nothing in it
// aliases live state.
type Snapshot struct {
	At        time.Time         `json:"at"`
	Symbols   []SymbolView      `json:"symbols"`
	Trades    []domain.Trade    `json:"trades"`
	Positions []domain.Position `json:"positions"`
	Portfolio domain.Valuation  `json:"portfolio"`
	Stats     domain.TradeStats `json:"stats"`
	Strategy  strategy.Config   `json:"strategy"`
	Dropped   uint64            `json:"dropped_samples"`
	Queues    map[string]int    `json:"queue_depth"`
}

// Symbol returns the view for symbol, if present.
func (s Snapshot) Symbol(symbol string) (SymbolView, bool) {
	for _, v := range s.Symbols {
		if v.Symbol == symbol {
			return v, true
		}
	}
	return SymbolView{}, false
}
