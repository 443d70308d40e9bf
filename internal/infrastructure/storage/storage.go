// Package storage holds the row shapes shared by the SQL and Redis repositories.
package storage

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"xtrend/internal/domain"
)

// IndicatorRow is the latest indicator state of one symbol, flattened for storage.
type IndicatorRow struct {
	Symbol     string
	TsMs       int64
	Price      string
	MAShort    sql.NullString
	MAMedium   sql.NullString
	MALong     sql.NullString
	RSI        sql.NullFloat64
	MACD       sql.NullFloat64
	MACDSignal sql.NullFloat64
	Trend      string
	Payload    string
}

func NewIndicatorRow(st domain.IndicatorState) IndicatorRow {
	payload, _ := json.Marshal(st)
	return IndicatorRow{
		Symbol:     st.Symbol,
		TsMs:       st.LastTimestamp.UnixMilli(),
		Price:      st.LastPrice.String(),
		MAShort:    NullDecimal(st.MAShort),
		MAMedium:   NullDecimal(st.MAMedium),
		MALong:     NullDecimal(st.MALong),
		RSI:        sql.NullFloat64{Float64: st.RSI, Valid: st.RSIReady},
		MACD:       sql.NullFloat64{Float64: st.MACD, Valid: st.MACDReady},
		MACDSignal: sql.NullFloat64{Float64: st.MACDSignal, Valid: st.SignalReady},
		Trend:      st.Trend().String(),
		Payload:    string(payload),
	}
}

// TradeRow is a trade with decimals kept as exact strings.
type TradeRow struct {
	ID          string
	Symbol      string
	Side        string
	Quantity    string
	SignalPrice string
	Strength    int
	EntryPrice  sql.NullString
	ExitPrice   sql.NullString
	PnL         sql.NullString
	Status      string
	ExitReason  string
	CreatedMs   int64
	OpenedMs    sql.NullInt64
	ClosedMs    sql.NullInt64
}

func NewTradeRow(t domain.Trade) TradeRow {
	row := TradeRow{
		ID:          t.ID,
		Symbol:      t.Symbol,
		Side:        t.Side.String(),
		Quantity:    t.Quantity.String(),
		SignalPrice: t.SignalPx.String(),
		Strength:    t.Strength,
		ExitPrice:   NullDecimal(t.ExitPrice),
		PnL:         NullDecimal(t.PnL),
		Status:      t.Status.String(),
		ExitReason:  t.ExitReason.String(),
		CreatedMs:   t.CreatedAt.UnixMilli(),
		OpenedMs:    nullTime(t.OpenedAt),
	}
	if !t.OpenedAt.IsZero() {
		row.EntryPrice = sql.NullString{String: t.EntryPrice.String(), Valid: true}
	}
	if t.ClosedAt != nil {
		row.ClosedMs = nullTime(*t.ClosedAt)
	}
	return row
}

func NullDecimal(d decimal.NullDecimal) sql.NullString {
	if !d.Valid {
		return sql.NullString{}
	}
	return sql.NullString{String: d.Decimal.String(), Valid: true}
}

func nullTime(t time.Time) sql.NullInt64 {
	if t.IsZero() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}
