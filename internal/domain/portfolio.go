package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Position is a holding in one symbol. Amount never goes negative.
// CostBasis is the weighted-average cost per unit.
type Position struct {
	Symbol      string          `json:"symbol"`
	Amount      decimal.Decimal `json:"amount"`
	CostBasis   decimal.Decimal `json:"cost_basis"`
	RealizedPnL decimal.Decimal `json:"realized_pnl"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Value is the position's worth at price.
func (p Position) Value(price decimal.Decimal) decimal.Decimal {
	return p.Amount.Mul(price)
}

// Change is the unrealized percentage move of price against the cost basis.
func (p Position) Change(price decimal.Decimal) decimal.Decimal {
	if p.CostBasis.IsZero() {
		return decimal.Zero
	}
	return price.Sub(p.CostBasis).Div(p.CostBasis).Mul(hundred)
}

// Valuation combines ledger positions with live prices.
type Valuation struct {
	Cash          decimal.Decimal `json:"cash"`
	HoldingsValue decimal.Decimal `json:"holdings_value"`
	TotalValue    decimal.Decimal `json:"total_value"`
	UnrealizedPnL decimal.Decimal `json:"unrealized_pnl"`
	OpenTradesPnL decimal.Decimal `json:"open_trades_pnl"` // part of UnrealizedPnL from OPEN trades
	RealizedPnL   decimal.Decimal `json:"realized_pnl"`
	DailyPnL      decimal.Decimal `json:"daily_pnl"`
	DailyPnLPct   decimal.Decimal `json:"daily_pnl_pct"`
	AsOf          time.Time       `json:"as_of"`
}

// TradeStats aggregates closed trades.
type TradeStats struct {
	TotalTrades   int             `json:"total_trades"`
	OpenTrades    int             `json:"open_trades"`
	PendingTrades int             `json:"pending_trades"`
	Cancelled     int             `json:"cancelled_trades"`
	WinningTrades int             `json:"winning_trades"`
	LosingTrades  int             `json:"losing_trades"`
	WinRate       decimal.Decimal `json:"win_rate"`
	TotalPnL      decimal.Decimal `json:"total_pnl"`
}

// Fill is an execution that did not originate from the trade book, e.g. a
// deposit of coins or a manual order placed on the exchange.
type Fill struct {
	Symbol   string          `json:"symbol"`
	Side     Side            `json:"side"`
	Quantity decimal.Decimal `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
	At       time.Time       `json:"at"`
}
