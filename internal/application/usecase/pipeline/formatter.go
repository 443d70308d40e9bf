package pipeline

import (
	"fmt"
	"strings"

	"xtrend/internal/domain"
)

const (
	ansiReset    = "\033[0m"
	ansiRed      = "\033[31m"
	ansiGreen    = "\033[32m"
	ansiYellow   = "\033[33m"
	ansiDim      = "\033[2m"
	ansiClearEOL = "\033[K"
)

func colorize(s, c string) string { return c + s + ansiReset }

// Formatter renders console lines for the live ticker and periodic snapshots.
type Formatter struct{}

func NewFormatter() *Formatter { return &Formatter{} }

func trendColor(t domain.Trend) string {
	switch t {
	case domain.TrendUp:
		return ansiGreen
	case domain.TrendDown:
		return ansiRed
	default:
		return ansiYellow
	}
}

func signalColor(k domain.SignalKind) string {
	switch k {
	case domain.SignalBuy:
		return ansiGreen
	case domain.SignalSell:
		return ansiRed
	default:
		return ansiYellow
	}
}

func (f *Formatter) row(v SymbolView) string {
	st := v.Indicators
	rsi := "--"
	if st.RSIReady {
		rsi = fmt.Sprintf("%.1f", st.RSI)
	}
	macd := "--"
	if st.MACDReady {
		macd = fmt.Sprintf("%+.2f", st.MACD)
	}

	var sb strings.Builder
	sb.WriteString(v.Symbol)
	sb.WriteString(" ")
	sb.WriteString(colorize(st.LastPrice.String(), trendColor(v.Trend)))
	sb.WriteString(fmt.Sprintf(" (%+.2f%%)", st.ChangePct))
	sb.WriteString(colorize(" RSI="+rsi+" MACD="+macd, ansiDim))
	sb.WriteString(" ")
	sb.WriteString(colorize(fmt.Sprintf("%s/%d", v.Signal.Kind, v.Signal.Strength), signalColor(v.Signal.Kind)))
	return sb.String()
}

// Live renders a carriage-return line for the most recently updated symbol.
func (f *Formatter) Live(v SymbolView) string {
	return "\r" + colorize("[XTREND] ", ansiDim) + f.row(v) + ansiClearEOL
}

// Snapshot renders every symbol plus the portfolio on a single line.
func (f *Formatter) Snapshot(s Snapshot) string {
	var sb strings.Builder
	sb.WriteString(colorize("[XTREND] ", ansiDim))
	for i, v := range s.Symbols {
		if i > 0 {
			sb.WriteString(colorize("  ||  ", ansiDim))
		}
		sb.WriteString(f.row(v))
	}
	pnl := s.Portfolio.DailyPnL
	col := ansiYellow
	switch {
	case pnl.IsPositive():
		col = ansiGreen
	case pnl.IsNegative():
		col = ansiRed
	}
	sb.WriteString(colorize("  ||  ", ansiDim))
	sb.WriteString(fmt.Sprintf("total=%s ", s.Portfolio.TotalValue.StringFixed(2)))
	sb.WriteString(colorize("day="+pnl.StringFixed(2), col))
	sb.WriteString(fmt.Sprintf(" open=%d win=%s%%", s.Stats.OpenTrades, s.Stats.WinRate.String()))
	return sb.String()
}
