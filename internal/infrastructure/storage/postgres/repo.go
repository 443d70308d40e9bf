package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib"

	"xtrend/internal/application/port"
	"xtrend/internal/domain"
	"xtrend/internal/infrastructure/storage"
)

//go:embed migrations/*.sql
var migrations embed.FS

type Repo struct {
	db *sql.DB
}

func New(dsn string) (*Repo, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	r := &Repo{db: db}
	if err := r.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

func (r *Repo) Close() error { return r.db.Close() }

func (r *Repo) migrate() error {
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("failed to open migrations: %w", err)
	}
	driver, err := migratepg.WithInstance(r.db, &migratepg.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

func (r *Repo) UpsertIndicator(ctx context.Context, st domain.IndicatorState) error {
	row := storage.NewIndicatorRow(st)
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO indicators(symbol, ts_ms, price, ma_short, ma_medium, ma_long, rsi, macd, macd_signal, trend, payload, updated_at)
		VALUES($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, now())
		ON CONFLICT(symbol) DO UPDATE SET
		ts_ms=EXCLUDED.ts_ms, price=EXCLUDED.price,
		ma_short=EXCLUDED.ma_short, ma_medium=EXCLUDED.ma_medium, ma_long=EXCLUDED.ma_long,
		rsi=EXCLUDED.rsi, macd=EXCLUDED.macd, macd_signal=EXCLUDED.macd_signal,
		trend=EXCLUDED.trend, payload=EXCLUDED.payload, updated_at=now()
	`, row.Symbol, row.TsMs, row.Price, row.MAShort, row.MAMedium, row.MALong,
		row.RSI, row.MACD, row.MACDSignal, row.Trend, row.Payload)
	return err
}

// LatestIndicator returns the stored payload for symbol.
func (r *Repo) LatestIndicator(ctx context.Context, symbol string) (string, error) {
	var payload string
	err := r.db.QueryRowContext(ctx, `SELECT payload::text FROM indicators WHERE symbol=$1`, symbol).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("indicator %s: %w", symbol, port.ErrNotStored)
	}
	return payload, err
}

func (r *Repo) InsertSignal(ctx context.Context, ts time.Time, sig domain.Signal, price string) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO signals(ts_ms, symbol, kind, strength, price) VALUES($1, $2, $3, $4, $5)`,
		ts.UnixMilli(), sig.Symbol, sig.Kind.String(), sig.Strength, price)
	return err
}

func (r *Repo) RecentSignals(ctx context.Context, symbol string, limit int) ([]port.SignalRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT ts_ms, symbol, kind, strength, price::text FROM signals
		WHERE symbol=$1
		ORDER BY ts_ms DESC, id DESC
		LIMIT $2
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
		VALUES($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, now())
		ON CONFLICT(id) DO UPDATE SET
		entry_price=EXCLUDED.entry_price, exit_price=EXCLUDED.exit_price, pnl=EXCLUDED.pnl,
		status=EXCLUDED.status, exit_reason=EXCLUDED.exit_reason,
		opened_ms=EXCLUDED.opened_ms, closed_ms=EXCLUDED.closed_ms, updated_at=now()
	`, row.ID, row.Symbol, row.Side, row.Quantity, row.SignalPrice, row.Strength, row.EntryPrice, row.ExitPrice, row.PnL,
		row.Status, row.ExitReason, row.CreatedMs, row.OpenedMs, row.ClosedMs)
	return err
}

func (r *Repo) InsertSnapshot(ctx context.Context, ts int64, payload string) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO snapshots(ts_ms, payload) VALUES($1, $2)`, ts, payload)
	return err
}

var (
	_ port.Repository = (*Repo)(nil)
	_ port.History    = (*Repo)(nil)
)
