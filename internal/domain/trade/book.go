// Package trade runs the PENDING -> OPEN -> CLOSED lifecycle of trades.
package trade

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"xtrend/internal/domain"
	"xtrend/internal/domain/strategy"
)

// Outcome reports what a call changed in the book. Trades are copies.
type Outcome struct {
	Opened    []domain.Trade
	Closed    []domain.Trade
	Cancelled []domain.Trade
	Skipped   string // why an actionable signal did not open a trade
}

func (o Outcome) Empty() bool {
	return len(o.Opened) == 0 && len(o.Closed) == 0 && len(o.Cancelled) == 0
}

// Book owns every trade. At most one PENDING or OPEN trade exists per symbol.
type Book struct {
	mu     sync.RWMutex
	trades map[string]*domain.Trade
	order  []string          // ids in creation order
	active map[string]string // symbol -> id of its PENDING/OPEN trade

	newID func() string
	now   func() time.Time
}

func NewBook() *Book {
	return &Book{
		trades: make(map[string]*domain.Trade),
		active: make(map[string]string),
		newID:  uuid.NewString,
		now:    time.Now,
	}
}

// OnSignal reacts to a fresh signal for sig.Symbol at price.
//
// An opposing signal at or above min_exit_strength closes the symbol's OPEN
// trade. With no active trade, BUY/SELL at or above min_entry_strength opens a
// PENDING trade sized against equity, unless max_open_trades is reached.
func (b *Book) OnSignal(sig domain.Signal, price, equity decimal.Decimal, cfg strategy.Config, at time.Time) Outcome {
	side, actionable := sig.Kind.Side()
	if !actionable {
		return Outcome{}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if id, ok := b.active[sig.Symbol]; ok {
		t := b.trades[id]
		if t.Status == domain.StatusOpen && t.Side.Opposes(sig.Kind) {
			if sig.Strength < cfg.MinExitStrength {
				return Outcome{Skipped: fmt.Sprintf("exit strength %d below %d", sig.Strength, cfg.MinExitStrength)}
			}
			b.closeLocked(t, price, domain.ExitOpposingSignal, at)
			return Outcome{Closed: []domain.Trade{copyTrade(t)}}
		}
		return Outcome{Skipped: "symbol already has an active trade"}
	}

	if sig.Strength < cfg.MinEntryStrength {
		return Outcome{Skipped: fmt.Sprintf("entry strength %d below %d", sig.Strength, cfg.MinEntryStrength)}
	}
	if len(b.active) >= cfg.MaxOpenTrades {
		return Outcome{Skipped: fmt.Sprintf("max open trades (%d) reached", cfg.MaxOpenTrades)}
	}
	qty := PositionSize(equity, price, cfg)
	if !qty.IsPositive() {
		return Outcome{Skipped: "position size is zero"}
	}

	t := &domain.Trade{
		ID:        b.newID(),
		Symbol:    sig.Symbol,
		Side:      side,
		Quantity:  qty,
		SignalPx:  price,
		Strength:  sig.Strength,
		Status:    domain.StatusPending,
		CreatedAt: at,
	}
	b.trades[t.ID] = t
	b.order = append(b.order, t.ID)
	b.active[t.Symbol] = t.ID
	return Outcome{Opened: []domain.Trade{copyTrade(t)}}
}

// ConfirmFill moves a PENDING trade to OPEN at the fill price. A fill that
// matches no PENDING trade returns ErrOrphanFill and changes nothing.
func (b *Book) ConfirmFill(f domain.FillConfirmation) (domain.Trade, error) {
	if !f.FillPrice.IsPositive() {
		return domain.Trade{}, fmt.Errorf("trade %s: fill price must be positive, got %s", f.TradeID, f.FillPrice)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.trades[f.TradeID]
	if !ok || t.Status != domain.StatusPending {
		return domain.Trade{}, fmt.Errorf("%w: trade %s", domain.ErrOrphanFill, f.TradeID)
	}

	at := f.FilledAt
	if at.IsZero() {
		at = b.now()
	}
	t.EntryPrice = f.FillPrice
	t.OpenedAt = at
	t.Status = domain.StatusOpen
	return copyTrade(t), nil
}

// OnPrice closes the symbol's OPEN trade when price reaches its stop or target.
// Touching a level counts as crossing it.
func (b *Book) OnPrice(symbol string, price decimal.Decimal, cfg strategy.Config, at time.Time) Outcome {
	b.mu.Lock()
	defer b.mu.Unlock()

	id, ok := b.active[symbol]
	if !ok {
		return Outcome{}
	}
	t := b.trades[id]
	if t.Status != domain.StatusOpen {
		return Outcome{}
	}

	stop, target := t.StopPrice(cfg.StopLossPct), t.TargetPrice(cfg.TakeProfitPct)
	var reason domain.ExitReason
	switch t.Side {
	case domain.SideBuy:
		if price.LessThanOrEqual(stop) {
			reason = domain.ExitStopLoss
		} else if price.GreaterThanOrEqual(target) {
			reason = domain.ExitTakeProfit
		}
	case domain.SideSell:
		if price.GreaterThanOrEqual(stop) {
			reason = domain.ExitStopLoss
		} else if price.LessThanOrEqual(target) {
			reason = domain.ExitTakeProfit
		}
	}
	if reason == domain.ExitNone {
		return Outcome{}
	}
	b.closeLocked(t, price, reason, at)
	return Outcome{Closed: []domain.Trade{copyTrade(t)}}
}

// Close exits an OPEN trade at price. Closing a CLOSED trade returns the trade
// unchanged together with ErrAlreadyClosed; closing a PENDING one is
// ErrInvalidTransition.
func (b *Book) Close(id string, price decimal.Decimal, reason domain.ExitReason, at time.Time) (domain.Trade, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.trades[id]
	if !ok {
		return domain.Trade{}, fmt.Errorf("%w: %s", domain.ErrTradeNotFound, id)
	}
	switch t.Status {
	case domain.StatusClosed:
		return copyTrade(t), fmt.Errorf("%w: %s", domain.ErrAlreadyClosed, id)
	case domain.StatusPending, domain.StatusCancelled:
		return copyTrade(t), fmt.Errorf("%w: %s is %s", domain.ErrInvalidTransition, id, t.Status)
	}
	if !price.IsPositive() {
		return domain.Trade{}, fmt.Errorf("trade %s: exit price must be positive, got %s", id, price)
	}
	if reason == domain.ExitNone {
		reason = domain.ExitManual
	}
	b.closeLocked(t, price, reason, at)
	return copyTrade(t), nil
}

func (b *Book) closeLocked(t *domain.Trade, price decimal.Decimal, reason domain.ExitReason, at time.Time) {
	if at.IsZero() {
		at = b.now()
	}
	pnl := t.ProfitAt(price)
	t.ExitPrice = decimal.NewNullDecimal(price)
	t.PnL = decimal.NewNullDecimal(pnl)
	t.Status = domain.StatusClosed
	t.ExitReason = reason
	t.ClosedAt = &at
	delete(b.active, t.Symbol)
}

// Cancel withdraws a PENDING trade and frees its symbol slot. Any other status
// is ErrInvalidTransition. A fill arriving after the cancel is an orphan.
func (b *Book) Cancel(id string, reason domain.ExitReason, at time.Time) (domain.Trade, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.trades[id]
	if !ok {
		return domain.Trade{}, fmt.Errorf("%w: %s", domain.ErrTradeNotFound, id)
	}
	if t.Status != domain.StatusPending {
		return copyTrade(t), fmt.Errorf("%w: cannot cancel %s, it is %s", domain.ErrInvalidTransition, id, t.Status)
	}
	if reason == domain.ExitNone {
		reason = domain.ExitCancelled
	}
	b.cancelLocked(t, reason, at)
	return copyTrade(t), nil
}

// Expire cancels the symbol's PENDING trade once it has waited maxAge for a
// fill as of at.
func (b *Book) Expire(symbol string, maxAge time.Duration, at time.Time) Outcome {
	b.mu.Lock()
	defer b.mu.Unlock()

	id, ok := b.active[symbol]
	if !ok {
		return Outcome{}
	}
	t := b.trades[id]
	if t.Status != domain.StatusPending || at.Sub(t.CreatedAt) < maxAge {
		return Outcome{}
	}
	b.cancelLocked(t, domain.ExitExpired, at)
	return Outcome{Cancelled: []domain.Trade{copyTrade(t)}}
}

func (b *Book) cancelLocked(t *domain.Trade, reason domain.ExitReason, at time.Time) {
	if at.IsZero() {
		at = b.now()
	}
	t.Status = domain.StatusCancelled
	t.ExitReason = reason
	t.ClosedAt = &at
	delete(b.active, t.Symbol)
}

// Get returns a copy of the trade with id.
func (b *Book) Get(id string) (domain.Trade, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	t, ok := b.trades[id]
	if !ok {
		return domain.Trade{}, false
	}
	return copyTrade(t), true
}

// Active returns the PENDING or OPEN trade for symbol.
func (b *Book) Active(symbol string) (domain.Trade, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	id, ok := b.active[symbol]
	if !ok {
		return domain.Trade{}, false
	}
	return copyTrade(b.trades[id]), true
}

// Open returns copies of every OPEN trade, sorted by symbol.
func (b *Book) Open() []domain.Trade {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]domain.Trade, 0, len(b.active))
	for _, id := range b.active {
		if t := b.trades[id]; t.Status == domain.StatusOpen {
			out = append(out, copyTrade(t))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// Trades returns copies of every trade, newest first.
func (b *Book) Trades() []domain.Trade {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]domain.Trade, 0, len(b.order))
	for i := len(b.order) - 1; i >= 0; i-- {
		out = append(out, copyTrade(b.trades[b.order[i]]))
	}
	return out
}

// Stats summarises the book. Win rate is a percentage of closed trades.
func (b *Book) Stats() domain.TradeStats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	st := domain.TradeStats{TotalTrades: len(b.order), TotalPnL: decimal.Zero, WinRate: decimal.Zero}
	closed := 0
	for _, t := range b.trades {
		switch t.Status {
		case domain.StatusPending:
			st.PendingTrades++
		case domain.StatusOpen:
			st.OpenTrades++
		case domain.StatusCancelled:
			st.Cancelled++
		case domain.StatusClosed:
			closed++
			pnl := t.PnL.Decimal
			st.TotalPnL = st.TotalPnL.Add(pnl)
			if pnl.IsPositive() {
				st.WinningTrades++
			} else if pnl.IsNegative() {
				st.LosingTrades++
			}
		}
	}
	if closed > 0 {
		st.WinRate = decimal.NewFromInt(int64(st.WinningTrades)).
			Div(decimal.NewFromInt(int64(closed))).
			Mul(decimal.NewFromInt(100)).
			Round(2)
	}
	return st
}

// Symbols returns the symbols that currently hold an active trade.
func (b *Book) Symbols() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]string, 0, len(b.active))
	for s := range b.active {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func copyTrade(t *domain.Trade) domain.Trade {
	c := *t
	if t.ClosedAt != nil {
		at := *t.ClosedAt
		c.ClosedAt = &at
	}
	return c
}
