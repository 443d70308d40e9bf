package domain

import "fmt"

// Trend is the moving-average ordering of a symbol.
type Trend int

const (
	TrendSideways Trend = 0
	TrendUp       Trend = +1
	TrendDown     Trend = -1
)

func (t Trend) String() string {
	switch t {
	case TrendUp:
		return "UP"
	case TrendDown:
		return "DOWN"
	case TrendSideways:
		return "SIDEWAYS"
	}
	return fmt.Sprintf("Trend(%d)", int(t))
}

func (t Trend) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

// MACDTrend is the sign of the MACD histogram.
type MACDTrend int

const (
	MACDNeutral MACDTrend = 0
	MACDBullish MACDTrend = +1
	MACDBearish MACDTrend = -1
)

func (m MACDTrend) String() string {
	switch m {
	case MACDBullish:
		return "BULLISH"
	case MACDBearish:
		return "BEARISH"
	case MACDNeutral:
		return "NEUTRAL"
	}
	return fmt.Sprintf("MACDTrend(%d)", int(m))
}

func (m MACDTrend) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

// SignalKind is the trade decision derived from indicator state.
type SignalKind int

const (
	SignalHold SignalKind = iota
	SignalBuy
	SignalSell
)

func (k SignalKind) String() string {
	switch k {
	case SignalHold:
		return "HOLD"
	case SignalBuy:
		return "BUY"
	case SignalSell:
		return "SELL"
	}
	return fmt.Sprintf("SignalKind(%d)", int(k))
}

func (k SignalKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// Side maps an actionable signal to the trade side it opens. HOLD has no side.
func (k SignalKind) Side() (Side, bool) {
	switch k {
	case SignalBuy:
		return SideBuy, true
	case SignalSell:
		return SideSell, true
	case SignalHold:
		return 0, false
	}
	return 0, false
}

// Side is the direction of a trade.
type Side int

const (
	SideBuy Side = iota + 1
	SideSell
)

func (s Side) String() string {
	switch s {
	case SideBuy:
		return "BUY"
	case SideSell:
		return "SELL"
	}
	return fmt.Sprintf("Side(%d)", int(s))
}

func (s Side) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Side) UnmarshalText(b []byte) error {
	v, err := ParseSide(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// ParseSide accepts "BUY" or "SELL".
func ParseSide(s string) (Side, error) {
	switch s {
	case "BUY":
		return SideBuy, nil
	case "SELL":
		return SideSell, nil
	}
	return 0, fmt.Errorf("invalid side %q", s)
}

// Opposes reports whether the signal points against a trade of this side.
func (s Side) Opposes(k SignalKind) bool {
	switch s {
	case SideBuy:
		return k == SignalSell
	case SideSell:
		return k == SignalBuy
	}
	return false
}

// Status is the lifecycle state of a trade.
type Status int

const (
	StatusPending Status = iota
	StatusOpen
	StatusClosed
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "PENDING"
	case StatusOpen:
		return "OPEN"
	case StatusClosed:
		return "CLOSED"
	case StatusCancelled:
		return "CANCELLED"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// Terminal reports whether the trade has left the book for good.
func (s Status) Terminal() bool { return s == StatusClosed || s == StatusCancelled }

func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// ExitReason records why a trade left the book: an OPEN trade closing or a
// PENDING one being cancelled.
type ExitReason int

const (
	ExitNone ExitReason = iota
	ExitStopLoss
	ExitTakeProfit
	ExitOpposingSignal
	ExitManual
	ExitRejected
	ExitExpired
	ExitCancelled
)

func (r ExitReason) String() string {
	switch r {
	case ExitNone:
		return ""
	case ExitStopLoss:
		return "STOP_LOSS"
	case ExitTakeProfit:
		return "TAKE_PROFIT"
	case ExitOpposingSignal:
		return "OPPOSING_SIGNAL"
	case ExitManual:
		return "MANUAL"
	case ExitRejected:
		return "REJECTED"
	case ExitExpired:
		return "EXPIRED"
	case ExitCancelled:
		return "CANCELLED"
	}
	return fmt.Sprintf("ExitReason(%d)", int(r))
}

func (r ExitReason) MarshalText() ([]byte, error) { return []byte(r.String()), nil }
