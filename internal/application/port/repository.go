package port

import (
	"context"
	"time"

	"xtrend/internal/domain"
)

type Repository interface {
	// Indicator operations
	UpsertIndicator(ctx context.Context, st domain.IndicatorState) error

	// Signal operations
	InsertSignal(ctx context.Context, ts time.Time, sig domain.Signal, price string) error

	// Trade operations
	SaveTrade(ctx context.Context, t domain.Trade) error

	// Snapshot operations
	InsertSnapshot(ctx context.Context, ts int64, payload string) error

	// Connection management
	Close() error
}
