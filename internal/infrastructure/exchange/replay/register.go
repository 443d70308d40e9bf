package replay

import (
	"time"

	"xtrend/internal/application/port"
	"xtrend/internal/infrastructure/config"
	"xtrend/internal/infrastructure/pricefeed"
)

func init() {
	pricefeed.Register(Name, func(cfg *config.Config) port.PriceFeed {
		return NewFeed(cfg.Replay.File, time.Duration(cfg.Replay.PaceMs)*time.Millisecond)
	})
}
