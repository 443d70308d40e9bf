package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"xtrend/internal/application/port"
	"xtrend/internal/domain"
	"xtrend/internal/infrastructure/storage"
)

type Repo struct {
	db *sql.DB
}

func New(path string) (*Repo, error) {
	// ensure directory exists
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		_ = os.MkdirAll(dir, 0o755)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	r := &Repo{db: db}
	if err := r.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

func (r *Repo) Close() error { return r.db.Close() }

func (r *Repo) GetDB() *sql.DB {
	return r.db
}

func (r *Repo) migrate(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS indicators (
  symbol TEXT PRIMARY KEY,
  ts_ms INTEGER NOT NULL,
  price TEXT NOT NULL,
  ma_short TEXT,
  ma_medium TEXT,
  ma_long TEXT,
  rsi REAL,
  macd REAL,
  macd_signal REAL,
  trend TEXT NOT NULL,
  payload TEXT NOT NULL,
  updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS signals (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  ts_ms INTEGER NOT NULL,
  symbol TEXT NOT NULL,
  kind TEXT NOT NULL,
  strength INTEGER NOT NULL,
  price TEXT NOT NULL,
  created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_signals_ts ON signals(ts_ms);
CREATE INDEX IF NOT EXISTS idx_signals_symbol ON signals(symbol);

CREATE TABLE IF NOT EXISTS trades (
  id TEXT PRIMARY KEY,
  symbol TEXT NOT NULL,
  side TEXT NOT NULL,
  quantity TEXT NOT NULL,
  signal_price TEXT NOT NULL,
  strength INTEGER NOT NULL,
  entry_price TEXT,
  exit_price TEXT,
  pnl TEXT,
  status TEXT NOT NULL,
  exit_reason TEXT NOT NULL,
  created_ms INTEGER NOT NULL,
  opened_ms INTEGER,
  closed_ms INTEGER,
  updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_trades_symbol ON trades(symbol);
CREATE INDEX IF NOT EXISTS idx_trades_status ON trades(status);

CREATE TABLE IF NOT EXISTS snapshots (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  ts_ms INTEGER NOT NULL,
  payload TEXT NOT NULL,
  created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_snapshots_ts ON snapshots(ts_ms);
`)
	return err
}

func (r *Repo) UpsertIndicator(ctx context.Context, st domain.IndicatorState) error {
	row := storage.NewIndicatorRow(st)
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO indicators(symbol, ts_ms, price, ma_short, ma_medium, ma_long, rsi, macd, macd_signal, trend, payload, updated_at)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(symbol) DO UPDATE SET
		ts_ms=excluded.ts_ms, price=excluded.price,
		ma_short=excluded.ma_short, ma_medium=excluded.ma_medium, ma_long=excluded.ma_long,
		rsi=excluded.rsi, macd=excluded.macd, macd_signal=excluded.macd_signal,
		trend=excluded.trend, payload=excluded.payload, updated_at=excluded.updated_at
	`, row.Symbol, row.TsMs, row.Price, row.MAShort, row.MAMedium, row.MALong,
		row.RSI, row.MACD, row.MACDSignal, row.Trend, row.Payload, time.Now().UnixMilli())
	return err
}

// LatestIndicator returns the stored payload for symbol.
func (r *Repo) LatestIndicator(ctx context.Context, symbol string) (string, error) {
	var payload string
	err := r.db.QueryRowContext(ctx, `SELECT payload FROM indicators WHERE symbol=?`, symbol).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("indicator %s: %w", symbol, port.ErrNotStored)
	}
	return payload, err
}

func (r *Repo) InsertSignal(ctx context.Context, ts time.Time, sig domain.Signal, price string) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO signals(ts_ms, symbol, kind, strength, price, created_at) VALUES(?, ?, ?, ?, ?, ?)`,
		ts.UnixMilli(), sig.Symbol, sig.Kind.String(), sig.Strength, price, time.Now().UnixMilli())
	return err
}

func (r *Repo) RecentSignals(ctx context.Context, symbol string, limit int) ([]port.SignalRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT ts_ms, symbol, kind, strength, price FROM signals
		WHERE symbol=?
		ORDER BY ts_ms DESC, id DESC
		LIMIT ?
	`, symbol, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []port.SignalRecord
	for rows.Next() {
		var rec port.SignalRecord
		var ts int64
		if err := rows.Scan(&ts, &rec.Symbol, &rec.Kind, &rec.Strength, &rec.Price); err != nil {
			return nil, err
		}
		rec.Timestamp = time.UnixMilli(ts).UTC()
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *Repo) SaveTrade(ctx context.Context, t domain.Trade) error {
	row := storage.NewTradeRow(t)
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO trades(id, symbol, side, quantity, signal_price, strength, entry_price, exit_price, pnl,
			status, exit_reason, created_ms, opened_ms, closed_ms, updated_at)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
		entry_price=excluded.entry_price, exit_price=excluded.exit_price, pnl=excluded.pnl,
		status=excluded.status, exit_reason=excluded.exit_reason,
		opened_ms=excluded.opened_ms, closed_ms=excluded.closed_ms, updated_at=excluded.updated_at
	`, row.ID, row.Symbol, row.Side, row.Quantity, row.SignalPrice, row.Strength, row.EntryPrice, row.ExitPrice, row.PnL,
		row.Status, row.ExitReason, row.CreatedMs, row.OpenedMs, row.ClosedMs, time.Now().UnixMilli())
	return err
}

func (r *Repo) InsertSnapshot(ctx context.Context, ts int64, payload string) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO snapshots(ts_ms, payload, created_at) VALUES(?, ?, ?)`, ts, payload, ts)
	return err
}

var (
	_ port.Repository = (*Repo)(nil)
	_ port.History    = (*Repo)(nil)
)
