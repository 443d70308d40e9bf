// Package paper fills every order immediately, for replays and dry runs.
package paper

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"xtrend/internal/domain"
)

type Executor struct {
	slippageBps decimal.Decimal
	now         func() time.Time
}

// NewExecutor fills at the signal price moved against the trade by
// slippageBps basis points.
func NewExecutor(slippageBps float64) *Executor {
	return &Executor{
		slippageBps: decimal.NewFromFloat(slippageBps),
		now:         time.Now,
	}
}

func (e *Executor) Name() string { return "paper" }

func (e *Executor) Submit(_ context.Context, t domain.Trade) (*domain.FillConfirmation, error) {
	px := e.fillPrice(t)
	at := t.CreatedAt
	if at.IsZero() {
		at = e.now()
	}
	log.Debug().
		Str("trade", t.ID).
		Str("symbol", t.Symbol).
		Str("side", t.Side.String()).
		Str("price", px.String()).
		Msg("paper fill")
	return &domain.FillConfirmation{TradeID: t.ID, FillPrice: px, FilledAt: at}, nil
}

func (e *Executor) fillPrice(t domain.Trade) decimal.Decimal {
	if e.slippageBps.IsZero() {
		return t.SignalPx
	}
	adj := t.SignalPx.Mul(e.slippageBps).Div(decimal.NewFromInt(10000))
	if t.Side == domain.SideSell {
		return t.SignalPx.Sub(adj)
	}
	return t.SignalPx.Add(adj)
}
