// Package strategy holds the mutable trading parameters. Updates are validated
// as a whole and swapped in atomically; readers never see a half-applied patch.
package strategy

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
)

// Config is the parameter set read by the signal generator and the trade book.
type Config struct {
	StopLossPct      float64 `json:"stop_loss_pct" toml:"stop_loss_pct"`
	TakeProfitPct    float64 `json:"take_profit_pct" toml:"take_profit_pct"`
	RiskPerTradePct  float64 `json:"risk_per_trade_pct" toml:"risk_per_trade_pct"`
	RSILow           float64 `json:"rsi_low" toml:"rsi_low"`
	RSIHigh          float64 `json:"rsi_high" toml:"rsi_high"`
	MaxOpenTrades    int     `json:"max_open_trades" toml:"max_open_trades"`
	MinEntryStrength int     `json:"min_entry_strength" toml:"min_entry_strength"`
	MinExitStrength  int     `json:"min_exit_strength" toml:"min_exit_strength"`
}

// Default mirrors the stock settings of the dashboard: 5% stop, 10% target, 2% risk, RSI 30/70.
func Default() Config {
	return Config{
		StopLossPct:      5,
		TakeProfitPct:    10,
		RiskPerTradePct:  2,
		RSILow:           30,
		RSIHigh:          70,
		MaxOpenTrades:    5,
		MinEntryStrength: 0,
		MinExitStrength:  50,
	}
}

// FieldError is one rejected field of a config update.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError lists every problem found in a candidate config.
type ValidationError struct {
	Fields []FieldError `json:"fields"`
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return "invalid strategy config: " + strings.Join(parts, "; ")
}

func (e *ValidationError) add(field, format string, args ...any) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
}

// Validate checks all fields jointly and returns a *ValidationError on failure.
func (c Config) Validate() error {
	ve := &ValidationError{}
	pct := func(field string, v float64) {
		if !(v > 0 && v <= 100) {
			ve.add(field, "must be in (0, 100], got %g", v)
		}
	}
	pct("stop_loss_pct", c.StopLossPct)
	pct("take_profit_pct", c.TakeProfitPct)
	pct("risk_per_trade_pct", c.RiskPerTradePct)

	if !(c.RSILow >= 0 && c.RSILow <= 100) {
		ve.add("rsi_low", "must be in [0, 100], got %g", c.RSILow)
	}
	if !(c.RSIHigh >= 0 && c.RSIHigh <= 100) {
		ve.add("rsi_high", "must be in [0, 100], got %g", c.RSIHigh)
	}
	if c.RSILow >= c.RSIHigh {
		ve.add("rsi_low", "must be below rsi_high (%g >= %g)", c.RSILow, c.RSIHigh)
	}
	if c.MaxOpenTrades < 1 {
		ve.add("max_open_trades", "must be at least 1, got %d", c.MaxOpenTrades)
	}
	if c.MinEntryStrength < 0 || c.MinEntryStrength > 100 {
		ve.add("min_entry_strength", "must be in [0, 100], got %d", c.MinEntryStrength)
	}
	if c.MinExitStrength < 0 || c.MinExitStrength > 100 {
		ve.add("min_exit_strength", "must be in [0, 100], got %d", c.MinExitStrength)
	}

	if len(ve.Fields) > 0 {
		return ve
	}
	return nil
}

// Patch is a partial update; nil fields keep their current value.
type Patch struct {
	StopLossPct      *float64 `json:"stop_loss_pct,omitempty"`
	TakeProfitPct    *float64 `json:"take_profit_pct,omitempty"`
	RiskPerTradePct  *float64 `json:"risk_per_trade_pct,omitempty"`
	RSILow           *float64 `json:"rsi_low,omitempty"`
	RSIHigh          *float64 `json:"rsi_high,omitempty"`
	MaxOpenTrades    *int     `json:"max_open_trades,omitempty"`
	MinEntryStrength *int     `json:"min_entry_strength,omitempty"`
	MinExitStrength  *int     `json:"min_exit_strength,omitempty"`
}

func (p Patch) applyTo(c Config) Config {
	if p.StopLossPct != nil {
		c.StopLossPct = *p.StopLossPct
	}
	if p.TakeProfitPct != nil {
		c.TakeProfitPct = *p.TakeProfitPct
	}
	if p.RiskPerTradePct != nil {
		c.RiskPerTradePct = *p.RiskPerTradePct
	}
	if p.RSILow != nil {
		c.RSILow = *p.RSILow
	}
	if p.RSIHigh != nil {
		c.RSIHigh = *p.RSIHigh
	}
	if p.MaxOpenTrades != nil {
		c.MaxOpenTrades = *p.MaxOpenTrades
	}
	if p.MinEntryStrength != nil {
		c.MinEntryStrength = *p.MinEntryStrength
	}
	if p.MinExitStrength != nil {
		c.MinExitStrength = *p.MinExitStrength
	}
	return c
}

// Store owns the current Config. Current is lock-free; Apply serializes writers
// only around validate-and-swap.
type Store struct {
	mu  sync.Mutex
	cur atomic.Pointer[Config]
}

// NewStore validates initial and installs it.
func NewStore(initial Config) (*Store, error) {
	if err := initial.Validate(); err != nil {
		return nil, err
	}
	s := &Store{}
	s.cur.Store(&initial)
	return s, nil
}

// Current returns a copy of the active config.
func (s *Store) Current() Config {
	return *s.cur.Load()
}

// Apply merges p into the active config. On a validation failure the active
// config is left untouched and the error is a *ValidationError.
func (s *Store) Apply(p Patch) (Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := p.applyTo(*s.cur.Load())
	if err := next.Validate(); err != nil {
		return s.Current(), err
	}
	s.cur.Store(&next)
	return next, nil
}
