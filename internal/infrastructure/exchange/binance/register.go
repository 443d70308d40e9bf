package binance

import (
	"xtrend/internal/application/port"
	"xtrend/internal/infrastructure/config"
	"xtrend/internal/infrastructure/pricefeed"
)

func init() {
	pricefeed.Register(Name, func(cfg *config.Config) port.PriceFeed {
		b := cfg.Exchange.Binance
		opts := FeedOptions{
			WsURL:    b.WsURL,
			Interval: b.Interval,
			Quote:    cfg.Symbols.Quote,
			Backfill: b.Backfill,
		}
		if b.Backfill > 0 {
			opts.History = NewKlineClient(b.RestURL)
		}
		return NewKlineFeed(opts)
	})
}
