package sqlite

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xtrend/internal/application/port"
	"xtrend/internal/domain"
)

func newTestRepo(t *testing.T) *Repo {
	t.Helper()
	repo, err := New(filepath.Join(t.TempDir(), "data", "xtrend.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func TestSQLiteRepoUpsertIndicator(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	st := domain.IndicatorState{
		Symbol:        "BTCUSDT",
		Samples:       3,
		LastPrice:     decimal.RequireFromString("44200.5"),
		LastTimestamp: ts,
		MAShort:       decimal.NewNullDecimal(decimal.RequireFromString("44100")),
	}
	require.NoError(t, repo.UpsertIndicator(ctx, st))

	st.LastPrice = decimal.RequireFromString("44300")
	st.LastTimestamp = ts.Add(time.Minute)
	st.RSI, st.RSIReady = 61.5, true
	require.NoError(t, repo.UpsertIndicator(ctx, st))

	var n int
	require.NoError(t, repo.GetDB().QueryRowContext(ctx, `SELECT COUNT(*) FROM indicators`).Scan(&n))
	assert.Equal(t, 1, n)

	var price, maShort string
	var maMedium sql.NullString
	var rsi sql.NullFloat64
	require.NoError(t, repo.GetDB().QueryRowContext(ctx,
		`SELECT price, ma_short, ma_medium, rsi FROM indicators WHERE symbol=?`, "BTCUSDT").
		Scan(&price, &maShort, &maMedium, &rsi))
	assert.Equal(t, "44300", price)
	assert.Equal(t, "44100", maShort)
	assert.False(t, maMedium.Valid)
	assert.True(t, rsi.Valid)
	assert.InDelta(t, 61.5, rsi.Float64, 1e-9)

	payload, err := repo.LatestIndicator(ctx, "BTCUSDT")
	require.NoError(t, err)
	assert.Contains(t, payload, `"rsi_ready":true`)

	_, err = repo.LatestIndicator(ctx, "ETHUSDT")
	assert.ErrorIs(t, err, port.ErrNotStored)
}

func TestSQLiteRepoSignals(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, repo.InsertSignal(ctx, ts, domain.Signal{Symbol: "BTCUSDT", Kind: domain.SignalBuy, Strength: 72}, "44200"))
	require.NoError(t, repo.InsertSignal(ctx, ts.Add(time.Minute), domain.Signal{Symbol: "BTCUSDT", Kind: domain.SignalHold}, "44300"))
	require.NoError(t, repo.InsertSignal(ctx, ts, domain.Signal{Symbol: "ETHUSDT", Kind: domain.SignalSell, Strength: 40}, "2300"))

	recs, err := repo.RecentSignals(ctx, "BTCUSDT", 10)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "HOLD", recs[0].Kind)
	assert.Equal(t, "BUY", recs[1].Kind)
	assert.Equal(t, 72, recs[1].Strength)
	assert.Equal(t, "44200", recs[1].Price)
	assert.Equal(t, ts, recs[1].Timestamp)

	recs, err = repo.RecentSignals(ctx, "BTCUSDT", 1)
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

func TestSQLiteRepoSaveTradeLifecycle(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	created := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	tr := domain.Trade{
		ID:        "t-1",
		Symbol:    "BTCUSDT",
		Side:      domain.SideBuy,
		Quantity:  decimal.RequireFromString("0.0045"),
		SignalPx:  decimal.RequireFromString("44200"),
		Strength:  72,
		Status:    domain.StatusPending,
		CreatedAt: created,
	}
	require.NoError(t, repo.SaveTrade(ctx, tr))

	var status string
	var entry sql.NullString
	require.NoError(t, repo.GetDB().QueryRowContext(ctx, `SELECT status, entry_price FROM trades WHERE id=?`, "t-1").Scan(&status, &entry))
	assert.Equal(t, "PENDING", status)
	assert.False(t, entry.Valid)

	tr.Status = domain.StatusOpen
	tr.EntryPrice = decimal.RequireFromString("44200")
	tr.OpenedAt = created.Add(time.Second)
	require.NoError(t, repo.SaveTrade(ctx, tr))

	closed := created.Add(time.Hour)
	tr.Status = domain.StatusClosed
	tr.ExitPrice = decimal.NewNullDecimal(decimal.RequireFromString("41990"))
	tr.PnL = decimal.NewNullDecimal(decimal.RequireFromString("-9.945"))
	tr.ExitReason = domain.ExitStopLoss
	tr.ClosedAt = &closed
	require.NoError(t, repo.SaveTrade(ctx, tr))

	var n int
	require.NoError(t, repo.GetDB().QueryRowContext(ctx, `SELECT COUNT(*) FROM trades`).Scan(&n))
	assert.Equal(t, 1, n)

	var pnl, reason string
	var closedMs sql.NullInt64
	require.NoError(t, repo.GetDB().QueryRowContext(ctx,
		`SELECT status, entry_price, pnl, exit_reason, closed_ms FROM trades WHERE id=?`, "t-1").
		Scan(&status, &entry, &pnl, &reason, &closedMs))
	assert.Equal(t, "CLOSED", status)
	assert.Equal(t, "44200", entry.String)
	assert.Equal(t, "-9.945", pnl)
	assert.Equal(t, "STOP_LOSS", reason)
	assert.Equal(t, closed.UnixMilli(), closedMs.Int64)
}

func TestSQLiteRepoSaveCancelledTrade(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	created := time.Date(2025, 1, 2, 12, 0, 0, 0, time.UTC)
	cancelled := created.Add(time.Minute)
	tr := domain.Trade{
		ID:         "t-2",
		Symbol:     "ETHUSDT",
		Side:       domain.SideSell,
		Quantity:   decimal.RequireFromString("1.5"),
		SignalPx:   decimal.RequireFromString("3000"),
		Status:     domain.StatusCancelled,
		ExitReason: domain.ExitRejected,
		CreatedAt:  created,
		ClosedAt:   &cancelled,
	}
	require.NoError(t, repo.SaveTrade(ctx, tr))

	var status, reason string
	var entry, pnl sql.NullString
	require.NoError(t, repo.GetDB().QueryRowContext(ctx,
		`SELECT status, exit_reason, entry_price, pnl FROM trades WHERE id=?`, "t-2").
		Scan(&status, &reason, &entry, &pnl))
	assert.Equal(t, "CANCELLED", status)
	assert.Equal(t, "REJECTED", reason)
	assert.False(t, entry.Valid)
	assert.False(t, pnl.Valid)
}

func TestSQLiteRepoInsertSnapshot(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	payload := `{"portfolio":{"cash":"10000"}}`
	require.NoError(t, repo.InsertSnapshot(ctx, 1234567890, payload))

	var got string
	require.NoError(t, repo.GetDB().QueryRowContext(ctx, `SELECT payload FROM snapshots WHERE ts_ms=?`, 1234567890).Scan(&got))
	assert.Equal(t, payload, got)
}
