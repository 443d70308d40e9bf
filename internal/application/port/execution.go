package port

import (
	"context"

	"xtrend/internal/domain"
)

// Executor places the order behind a PENDING trade. Executors that fill
// synchronously return the confirmation; others return nil and deliver it
// later through a FillSource.
type Executor interface {
	Name() string
	Submit(ctx context.Context, t domain.Trade) (*domain.FillConfirmation, error)
}

// FillSource delivers asynchronous fill confirmations.
type FillSource interface {
	Name() string
	Fills(ctx context.Context) (<-chan domain.FillConfirmation, error)
}

// EventPublisher broadcasts trade lifecycle transitions.
type EventPublisher interface {
	PublishTrade(ctx context.Context, t domain.Trade) error
}
