package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Trade is one pass through PENDING -> OPEN -> CLOSED. Values handed out by the
// trade book are copies; a CLOSED trade never changes again.
type Trade struct {
	ID         string              `json:"id"`
	Symbol     string              `json:"symbol"`
	Side       Side                `json:"type"`
	Quantity   decimal.Decimal     `json:"quantity"`
	SignalPx   decimal.Decimal     `json:"signal_price"` // price of the sample that triggered the trade
	Strength   int                 `json:"signal_strength"`
	EntryPrice decimal.Decimal     `json:"entry_price"`
	ExitPrice  decimal.NullDecimal `json:"exit_price"`
	PnL        decimal.NullDecimal `json:"pnl"` // present iff ExitPrice is present
	Status     Status              `json:"status"`
	ExitReason ExitReason          `json:"exit_reason,omitempty"`
	CreatedAt  time.Time           `json:"created_at"`
	OpenedAt   time.Time           `json:"opened_at"`
	ClosedAt   *time.Time          `json:"closed_at,omitempty"`
}

// StopPrice is the stop-loss level for an OPEN trade.
func (t Trade) StopPrice(stopLossPct float64) decimal.Decimal {
	pct := decimal.NewFromFloat(stopLossPct).Div(hundred)
	if t.Side == SideSell {
		return t.EntryPrice.Mul(one.Add(pct))
	}
	return t.EntryPrice.Mul(one.Sub(pct))
}

// TargetPrice is the take-profit level for an OPEN trade.
func (t Trade) TargetPrice(takeProfitPct float64) decimal.Decimal {
	pct := decimal.NewFromFloat(takeProfitPct).Div(hundred)
	if t.Side == SideSell {
		return t.EntryPrice.Mul(one.Sub(pct))
	}
	return t.EntryPrice.Mul(one.Add(pct))
}

// ProfitAt is the P&L of the trade if it were closed at price.
func (t Trade) ProfitAt(price decimal.Decimal) decimal.Decimal {
	diff := price.Sub(t.EntryPrice)
	if t.Side == SideSell {
		diff = diff.Neg()
	}
	return diff.Mul(t.Quantity)
}

// FillConfirmation is delivered by the execution collaborator once a PENDING trade is filled.
type FillConfirmation struct {
	TradeID   string          `json:"trade_id"`
	FillPrice decimal.Decimal `json:"fill_price"`
	FilledAt  time.Time       `json:"filled_at"`
}

var (
	one     = decimal.NewFromInt(1)
	hundred = decimal.NewFromInt(100)
)
