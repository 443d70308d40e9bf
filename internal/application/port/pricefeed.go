package port

import (
	"context"

	"xtrend/internal/domain"
)

// PriceFeed streams samples for the requested symbols. The channel is closed
// when ctx is cancelled or the source is exhausted.
type PriceFeed interface {
	Name() string
	Subscribe(ctx context.Context, symbols []string) (<-chan domain.PriceSample, error)
}
