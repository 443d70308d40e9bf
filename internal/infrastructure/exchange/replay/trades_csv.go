package replay

import (
	"encoding/csv"
	"os"
	"time"

	"xtrend/internal/domain"
)

// WriteTradesCSV dumps trades for offline analysis.
func WriteTradesCSV(trades []domain.Trade, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	_ = w.Write([]string{
		"id", "symbol", "side", "status", "qty", "entry", "exit", "pnl",
		"exit_reason", "opened_at", "closed_at",
	})
	for _, t := range trades {
		closedAt := ""
		if t.ClosedAt != nil {
			closedAt = t.ClosedAt.Format(time.RFC3339)
		}
		openedAt := ""
		if !t.OpenedAt.IsZero() {
			openedAt = t.OpenedAt.Format(time.RFC3339)
		}
		_ = w.Write([]string{
			t.ID, t.Symbol, t.Side.String(), t.Status.String(), t.Quantity.String(),
			t.EntryPrice.String(), nullString(t.ExitPrice.Valid, t.ExitPrice.Decimal.String()),
			nullString(t.PnL.Valid, t.PnL.Decimal.String()),
			t.ExitReason.String(), openedAt, closedAt,
		})
	}
	w.Flush()
	return w.Error()
}

func nullString(valid bool, s string) string {
	if !valid {
		return ""
	}
	return s
}
