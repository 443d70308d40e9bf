package binance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"xtrend/internal/domain"
	"xtrend/internal/infrastructure/exchange"
)

const Name = "BINANCE"

type FeedOptions struct {
	WsURL    string // e.g. wss://stream.binance.com:9443
	Interval string // kline interval, e.g. 1m
	Quote    string // quote asset appended to bare coins

	// 启动时通过 REST 回填的K线数量，0 表示不回填
	History  *KlineClient
	Backfill int
}

// KlineFeed 订阅 Binance 组合K线流，只在K线收盘时输出一个样本
type KlineFeed struct {
	opts FeedOptions
	conv exchange.SymbolConverter
}

func NewKlineFeed(opts FeedOptions) *KlineFeed {
	opts.WsURL = strings.TrimSpace(opts.WsURL)
	if opts.Interval == "" {
		opts.Interval = "1m"
	}
	return &KlineFeed{
		opts: opts,
		conv: exchange.NewCommonSymbolConverter(opts.Quote),
	}
}

func (f *KlineFeed) Name() string { return Name }

type combinedKline struct {
	Stream string    `json:"stream"`
	Data   klineData `json:"data"`
}

type klineData struct {
	Event  string `json:"e"`
	Symbol string `json:"s"`
	Kline  struct {
		CloseTime int64  `json:"T"`
		Interval  string `json:"i"`
		Close     string `json:"c"`
		Volume    string `json:"v"`
		Closed    bool   `json:"x"`
	} `json:"k"`
}

// Subscribe 将配置中的符号转换为交易对，样本仍以配置中的符号输出
func (f *KlineFeed) Subscribe(ctx context.Context, symbols []string) (<-chan domain.PriceSample, error) {
	pairs := make(map[string]string, len(symbols)) // BTCUSDT -> configured symbol
	list := make([]string, 0, len(symbols))
	for _, s := range symbols {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		pair := f.conv.Coin2Symbol(s)
		if _, dup := pairs[pair]; dup {
			continue
		}
		pairs[pair] = domain.CanonicalSymbol(s)
		list = append(list, pair)
	}

	wsURL, err := buildCombinedURL(f.opts.WsURL, list, f.opts.Interval)
	if err != nil {
		return nil, err
	}

	out := make(chan domain.PriceSample, 1024)
	go f.run(ctx, wsURL, list, pairs, out)
	return out, nil
}

func buildCombinedURL(base string, pairs []string, interval string) (string, error) {
	if base == "" {
		return "", errors.New("binance ws_url empty")
	}
	if len(pairs) == 0 {
		return "", errors.New("symbols empty")
	}

	streams := make([]string, 0, len(pairs))
	for _, p := range pairs {
		streams = append(streams, fmt.Sprintf("%s@kline_%s", strings.ToLower(p), interval))
	}
	return exchange.BuildQueryURL(base, "/stream", "streams="+strings.Join(streams, "/"))
}

func (f *KlineFeed) run(ctx context.Context, wsURL string, list []string, pairs map[string]string, out chan<- domain.PriceSample) {
	defer close(out)

	emit := func(s domain.PriceSample) bool {
		select {
		case out <- s:
			return true
		case <-ctx.Done():
			return false
		}
	}

	if f.opts.History != nil && f.opts.Backfill > 0 {
		f.backfill(ctx, list, pairs, emit)
	}

	backoff := exchange.Backoff{Min: 500 * time.Millisecond, Max: 10 * time.Second}
	for {
		if ctx.Err() != nil {
			return
		}

		log.Warn().Str("feed", f.Name()).Str("url", wsURL).Msg("ws connecting")
		cctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		conn, _, err := websocket.DefaultDialer.DialContext(cctx, wsURL, nil)
		cancel()
		if err != nil {
			log.Error().Str("feed", f.Name()).Err(err).Msg("ws dial failed")
			if !exchange.Sleep(ctx, backoff.Next()) {
				return
			}
			continue
		}

		backoff.Reset()
		log.Info().Str("feed", f.Name()).Msg("ws connected")

		err = exchange.ReadWithPing(ctx, conn, func(b []byte) {
			pair, smp, ok, e := parseKline(b)
			if e != nil {
				log.Error().Str("feed", f.Name()).Err(e).Msg("json unmarshal failed")
				return
			}
			if !ok {
				return
			}
			sym, known := pairs[pair]
			if !known {
				return
			}
			smp.Symbol = sym
			emit(smp)
		})

		_ = conn.Close()

		if ctx.Err() != nil {
			return
		}

		log.Warn().Str("feed", f.Name()).Err(err).Msg("ws disconnected, reconnecting")
		if !exchange.Sleep(ctx, backoff.Next()) {
			return
		}
	}
}

// backfill 发送已收盘的历史K线，失败只记录日志
func (f *KlineFeed) backfill(ctx context.Context, list []string, pairs map[string]string, emit func(domain.PriceSample) bool) {
	now := time.Now()
	for _, pair := range list {
		klines, err := f.opts.History.Klines(ctx, pair, f.opts.Interval, f.opts.Backfill)
		if err != nil {
			log.Warn().Str("feed", f.Name()).Str("pair", pair).Err(err).Msg("backfill failed")
			continue
		}
		n := 0
		for _, k := range klines {
			if k.CloseTime.After(now) {
				continue // 尚未收盘
			}
			if !emit(domain.PriceSample{Symbol: pairs[pair], Price: k.Close, Volume: k.Volume, Timestamp: k.CloseTime}) {
				return
			}
			n++
		}
		log.Info().Str("feed", f.Name()).Str("pair", pair).Int("klines", n).Msg("backfilled")
	}
}

// parseKline 解析组合流消息；ok=false 表示K线尚未收盘或不是K线事件
func parseKline(b []byte) (pair string, smp domain.PriceSample, ok bool, err error) {
	var msg combinedKline
	if err = json.Unmarshal(b, &msg); err != nil {
		return "", domain.PriceSample{}, false, err
	}
	if msg.Data.Event != "kline" || !msg.Data.Kline.Closed {
		return "", domain.PriceSample{}, false, nil
	}
	px, err := decimal.NewFromString(strings.TrimSpace(msg.Data.Kline.Close))
	if err != nil {
		return "", domain.PriceSample{}, false, fmt.Errorf("close price: %w", err)
	}
	vol, _ := decimal.NewFromString(strings.TrimSpace(msg.Data.Kline.Volume))

	pair = strings.ToUpper(msg.Data.Symbol)
	return pair, domain.PriceSample{
		Symbol:    pair,
		Price:     px,
		Volume:    vol,
		Timestamp: time.UnixMilli(msg.Data.Kline.CloseTime).UTC(),
	}, true, nil
}
