package port

import (
	"context"
	"errors"
	"time"
)

// ErrNotStored is returned when a store holds nothing for the key asked for.
var ErrNotStored = errors.New("not stored")

// SignalRecord is a persisted signal transition.
type SignalRecord struct {
	Timestamp time.Time `json:"timestamp"`
	Symbol    string    `json:"symbol"`
	Kind      string    `json:"kind"`
	Strength  int       `json:"strength"`
	Price     string    `json:"price"`
}

// SignalHistory is implemented by repositories that can read back what they stored.
type SignalHistory interface {
	RecentSignals(ctx context.Context, symbol string, limit int) ([]SignalRecord, error)
}

// IndicatorHistory reads back the last persisted indicator state as JSON.
type IndicatorHistory interface {
	LatestIndicator(ctx context.Context, symbol string) (string, error)
}

// History is what the SQL stores can answer after a restart.
type History interface {
	SignalHistory
	IndicatorHistory
}
