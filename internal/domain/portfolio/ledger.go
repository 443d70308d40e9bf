// Package portfolio keeps cash, positions and realized P&L.
package portfolio

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"xtrend/internal/domain"
)

var hundred = decimal.NewFromInt(100)

// Ledger is guarded by a single lock so that a valuation always sees cash and
// every position from the same instant.
type Ledger struct {
	mu        sync.RWMutex
	cash      decimal.Decimal
	realized  decimal.Decimal
	positions map[string]*domain.Position
	booked    map[string]struct{} // trade ids already applied

	day         time.Time // UTC midnight of the current accounting day
	dayRealized decimal.Decimal
}

func NewLedger(startingCash decimal.Decimal) *Ledger {
	return &Ledger{
		cash:      startingCash,
		positions: make(map[string]*domain.Position),
		booked:    make(map[string]struct{}),
	}
}

// ApplyClose books a CLOSED trade's P&L into cash and the symbol's position.
// The trade's own buy and sell legs cancel out, so amount and cost basis are
// unchanged. Applying the same trade twice is a no-op.
func (l *Ledger) ApplyClose(t domain.Trade) (domain.Position, error) {
	if t.Status != domain.StatusClosed || !t.PnL.Valid {
		return domain.Position{}, fmt.Errorf("%w: trade %s is %s", domain.ErrInvalidTransition, t.ID, t.Status)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	p := l.positionLocked(t.Symbol)
	if _, ok := l.booked[t.ID]; ok {
		return *p, nil
	}
	l.booked[t.ID] = struct{}{}

	at := t.OpenedAt
	if t.ClosedAt != nil {
		at = *t.ClosedAt
	}
	l.cash = l.cash.Add(t.PnL.Decimal)
	l.realizeLocked(p, t.PnL.Decimal, at)
	return *p, nil
}

// ApplyFill applies an external execution. Buys re-average the cost basis;
// sells realize P&L against it and may not exceed the held amount.
func (l *Ledger) ApplyFill(f domain.Fill) (domain.Position, error) {
	if !f.Quantity.IsPositive() || !f.Price.IsPositive() {
		return domain.Position{}, fmt.Errorf("fill %s: quantity and price must be positive", f.Symbol)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	p := l.positionLocked(f.Symbol)
	notional := f.Quantity.Mul(f.Price)

	switch f.Side {
	case domain.SideBuy:
		amount := p.Amount.Add(f.Quantity)
		p.CostBasis = p.Amount.Mul(p.CostBasis).Add(notional).Div(amount)
		p.Amount = amount
		p.UpdatedAt = f.At
		l.cash = l.cash.Sub(notional)
	case domain.SideSell:
		if f.Quantity.GreaterThan(p.Amount) {
			return *p, fmt.Errorf("%w: %s sell %s > held %s", domain.ErrInsufficientHoldings, f.Symbol, f.Quantity, p.Amount)
		}
		pnl := f.Price.Sub(p.CostBasis).Mul(f.Quantity)
		p.Amount = p.Amount.Sub(f.Quantity)
		if p.Amount.IsZero() {
			p.CostBasis = decimal.Zero
		}
		l.cash = l.cash.Add(notional)
		l.realizeLocked(p, pnl, f.At)
	default:
		return *p, fmt.Errorf("fill %s: invalid side %s", f.Symbol, f.Side)
	}
	return *p, nil
}

func (l *Ledger) positionLocked(symbol string) *domain.Position {
	p, ok := l.positions[symbol]
	if !ok {
		p = &domain.Position{Symbol: symbol}
		l.positions[symbol] = p
	}
	return p
}

func (l *Ledger) realizeLocked(p *domain.Position, pnl decimal.Decimal, at time.Time) {
	p.RealizedPnL = p.RealizedPnL.Add(pnl)
	p.UpdatedAt = at
	l.realized = l.realized.Add(pnl)

	day := utcDay(at)
	switch {
	case day.Equal(l.day):
		l.dayRealized = l.dayRealized.Add(pnl)
	case day.After(l.day):
		l.day = day
		l.dayRealized = pnl
	}
}

// Valuation prices every position. A symbol missing from prices is valued at
// its cost basis. DailyPnL is today's realized P&L plus current unrealized P&L.
func (l *Ledger) Valuation(prices map[string]decimal.Decimal, at time.Time) domain.Valuation {
	l.mu.RLock()
	defer l.mu.RUnlock()

	v := domain.Valuation{Cash: l.cash, RealizedPnL: l.realized, AsOf: at}
	for sym, p := range l.positions {
		if p.Amount.IsZero() {
			continue
		}
		px, ok := prices[sym]
		if !ok {
			px = p.CostBasis
		}
		v.HoldingsValue = v.HoldingsValue.Add(p.Value(px))
		v.UnrealizedPnL = v.UnrealizedPnL.Add(px.Sub(p.CostBasis).Mul(p.Amount))
	}
	v.TotalValue = v.Cash.Add(v.HoldingsValue)

	v.DailyPnL = v.UnrealizedPnL
	if utcDay(at).Equal(l.day) {
		v.DailyPnL = v.DailyPnL.Add(l.dayRealized)
	}
	v.DailyPnLPct = dailyPct(v)
	return v
}

// MarkOpenTrades adds the P&L of OPEN trades at prices to v. Book trades never
// move cash until they close, so only their P&L counts toward TotalValue.
// A trade whose symbol has no price contributes nothing.
func MarkOpenTrades(v domain.Valuation, open []domain.Trade, prices map[string]decimal.Decimal) domain.Valuation {
	for _, t := range open {
		if t.Status != domain.StatusOpen {
			continue
		}
		px, ok := prices[t.Symbol]
		if !ok {
			continue
		}
		v.OpenTradesPnL = v.OpenTradesPnL.Add(t.ProfitAt(px))
	}
	v.UnrealizedPnL = v.UnrealizedPnL.Add(v.OpenTradesPnL)
	v.TotalValue = v.TotalValue.Add(v.OpenTradesPnL)
	v.DailyPnL = v.DailyPnL.Add(v.OpenTradesPnL)
	v.DailyPnLPct = dailyPct(v)
	return v
}

func dailyPct(v domain.Valuation) decimal.Decimal {
	if open := v.TotalValue.Sub(v.DailyPnL); open.IsPositive() {
		return v.DailyPnL.Div(open).Mul(hundred).Round(4)
	}
	return decimal.Zero
}

// Cash returns the current cash balance.
func (l *Ledger) Cash() decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cash
}

// Positions returns copies of every position, sorted by symbol.
func (l *Ledger) Positions() []domain.Position {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]domain.Position, 0, len(l.positions))
	for _, p := range l.positions {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

func utcDay(t time.Time) time.Time {
	return t.UTC().Truncate(24 * time.Hour)
}
