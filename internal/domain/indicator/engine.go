// Package indicator maintains per-symbol rolling indicators (moving averages,
// RSI, MACD) that update in O(1) per price sample.
package indicator

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"xtrend/internal/domain"
)

// Periods configures indicator lookbacks, counted in samples.
type Periods struct {
	MAShort    int
	MAMedium   int
	MALong     int
	RSI        int
	MACDFast   int
	MACDSlow   int
	MACDSignal int
}

// DefaultPeriods returns 7/25/50 moving averages, RSI(14) and MACD(12,26,9).
func DefaultPeriods() Periods {
	return Periods{
		MAShort:    7,
		MAMedium:   25,
		MALong:     50,
		RSI:        14,
		MACDFast:   12,
		MACDSlow:   26,
		MACDSignal: 9,
	}
}

// Validate checks that every period is positive and the pairs are ordered.
func (p Periods) Validate() error {
	for name, v := range map[string]int{
		"ma_short": p.MAShort, "ma_medium": p.MAMedium, "ma_long": p.MALong,
		"rsi_period": p.RSI, "macd_fast": p.MACDFast, "macd_slow": p.MACDSlow, "macd_signal": p.MACDSignal,
	} {
		if v <= 0 {
			return fmt.Errorf("indicator period %s must be positive, got %d", name, v)
		}
	}
	if !(p.MAShort < p.MAMedium && p.MAMedium < p.MALong) {
		return fmt.Errorf("moving average periods must increase: %d/%d/%d", p.MAShort, p.MAMedium, p.MALong)
	}
	if p.MACDFast >= p.MACDSlow {
		return fmt.Errorf("macd_fast (%d) must be below macd_slow (%d)", p.MACDFast, p.MACDSlow)
	}
	return nil
}

// Options configures an Engine. When Closed is set, only Symbols are accepted.
type Options struct {
	Periods Periods
	Symbols []string
	Closed  bool
}

// Engine owns the indicator state of every symbol. Each symbol is guarded by
// its own lock; readers go through an atomically published copy and never
// wait on a writer.
type Engine struct {
	periods Periods
	closed  bool

	mu     sync.RWMutex
	series map[string]*series
}

type series struct {
	mu sync.Mutex

	symbol  string
	first   decimal.Decimal
	last    time.Time
	samples int

	short  *window
	medium *window
	long   *window
	rsi    *wilderRSI
	macd   *macd

	published atomic.Pointer[domain.IndicatorState]
}

func NewEngine(opts Options) *Engine {
	if opts.Periods == (Periods{}) {
		opts.Periods = DefaultPeriods()
	}
	e := &Engine{
		periods: opts.Periods,
		closed:  opts.Closed,
		series:  make(map[string]*series, len(opts.Symbols)),
	}
	for _, s := range opts.Symbols {
		sym := normalize(s)
		if sym == "" {
			continue
		}
		e.series[sym] = e.newSeries(sym)
	}
	return e
}

func (e *Engine) newSeries(symbol string) *series {
	p := e.periods
	return &series{
		symbol: symbol,
		short:  newWindow(p.MAShort),
		medium: newWindow(p.MAMedium),
		long:   newWindow(p.MALong),
		rsi:    newWilderRSI(p.RSI),
		macd:   newMACD(p.MACDFast, p.MACDSlow, p.MACDSignal),
	}
}

func (e *Engine) Periods() Periods { return e.periods }

// lookup returns the series for symbol, creating it when the symbol set is open.
func (e *Engine) lookup(symbol string) (*series, error) {
	e.mu.RLock()
	s := e.series[symbol]
	e.mu.RUnlock()
	if s != nil {
		return s, nil
	}
	if e.closed {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownSymbol, symbol)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if s = e.series[symbol]; s == nil {
		s = e.newSeries(symbol)
		e.series[symbol] = s
	}
	return s, nil
}

// Update folds a sample into the symbol's indicators and returns the new state.
// Samples whose timestamp is not strictly after the previous one are rejected
// with ErrOutOfOrderSample and leave the state untouched.
func (e *Engine) Update(symbol string, sample domain.PriceSample) (domain.IndicatorState, error) {
	sym := normalize(symbol)
	if sym == "" {
		return domain.IndicatorState{}, fmt.Errorf("%w: empty symbol", domain.ErrInvalidSample)
	}
	if !sample.Price.IsPositive() || sample.Timestamp.IsZero() {
		return domain.IndicatorState{}, fmt.Errorf("%w: %s price=%s ts=%s",
			domain.ErrInvalidSample, sym, sample.Price, sample.Timestamp.Format(time.RFC3339Nano))
	}

	s, err := e.lookup(sym)
	if err != nil {
		return domain.IndicatorState{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.samples > 0 && !sample.Timestamp.After(s.last) {
		return domain.IndicatorState{}, fmt.Errorf("%w: %s ts=%s last=%s", domain.ErrOutOfOrderSample,
			sym, sample.Timestamp.Format(time.RFC3339Nano), s.last.Format(time.RFC3339Nano))
	}

	if s.samples == 0 {
		s.first = sample.Price
	}
	s.samples++
	s.last = sample.Timestamp

	px := sample.Price.InexactFloat64()
	s.short.push(sample.Price)
	s.medium.push(sample.Price)
	s.long.push(sample.Price)
	s.rsi.push(px)
	s.macd.push(px)

	st := s.state(sample)
	s.published.Store(&st)
	return st, nil
}

func (s *series) state(sample domain.PriceSample) domain.IndicatorState {
	st := domain.IndicatorState{
		Symbol:        s.symbol,
		Samples:       s.samples,
		LastPrice:     sample.Price,
		LastVolume:    sample.Volume,
		LastTimestamp: sample.Timestamp,
		MAShort:       s.short.mean(),
		MAMedium:      s.medium.mean(),
		MALong:        s.long.mean(),
		RSIReady:      s.rsi.ready,
		MACDReady:     s.macd.ready,
		SignalReady:   s.macd.signal.ready,
	}
	if !s.first.IsZero() {
		st.ChangePct = sample.Price.Sub(s.first).Div(s.first).InexactFloat64() * 100
	}
	if s.rsi.ready {
		st.RSI = s.rsi.value()
	}
	if s.macd.ready {
		st.MACD = s.macd.line
	}
	if s.macd.signal.ready {
		st.MACDSignal = s.macd.signal.value
	}
	return st
}

// SeedRSI warm-starts a symbol's RSI from previously computed Wilder averages.
// Following samples continue the smoothing from these values. A symbol that
// already has a published state is republished with the seeded RSI.
func (e *Engine) SeedRSI(symbol string, avgGain, avgLoss float64, lastPrice decimal.Decimal) error {
	if avgGain < 0 || avgLoss < 0 {
		return fmt.Errorf("rsi seed averages must be non-negative: gain=%f loss=%f", avgGain, avgLoss)
	}
	s, err := e.lookup(normalize(symbol))
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rsi.seed(avgGain, avgLoss, lastPrice.InexactFloat64())
	if prev := s.published.Load(); prev != nil {
		st := *prev
		st.RSI, st.RSIReady = s.rsi.value(), s.rsi.ready
		s.published.Store(&st)
	}
	return nil
}

// State returns the last published state for symbol.
func (e *Engine) State(symbol string) (domain.IndicatorState, bool) {
	e.mu.RLock()
	s := e.series[normalize(symbol)]
	e.mu.RUnlock()
	if s == nil {
		return domain.IndicatorState{}, false
	}
	st := s.published.Load()
	if st == nil {
		return domain.IndicatorState{}, false
	}
	return *st, true
}

// States returns the published state of every symbol that has seen a sample.
func (e *Engine) States() map[string]domain.IndicatorState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make(map[string]domain.IndicatorState, len(e.series))
	for sym, s := range e.series {
		if st := s.published.Load(); st != nil {
			out[sym] = *st
		}
	}
	return out
}

// Symbols returns the known symbols in sorted order.
func (e *Engine) Symbols() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]string, 0, len(e.series))
	for sym := range e.series {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

func normalize(symbol string) string {
	return domain.CanonicalSymbol(symbol)
}
