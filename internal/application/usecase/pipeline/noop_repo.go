package pipeline

import (
	"context"
	"time"

	"xtrend/internal/application/port"
	"xtrend/internal/domain"
)

type noopRepo struct{}

func NewNoopRepo() port.Repository { return &noopRepo{} }

func (n *noopRepo) UpsertIndicator(ctx context.Context, st domain.IndicatorState) error {
	return nil
}
func (n *noopRepo) InsertSignal(ctx context.Context, ts time.Time, sig domain.Signal, price string) error {
	return nil
}
func (n *noopRepo) SaveTrade(ctx context.Context, t domain.Trade) error {
	return nil
}
func (n *noopRepo) InsertSnapshot(ctx context.Context, ts int64, payload string) error {
	return nil
}
func (n *noopRepo) Close() error { return nil }
