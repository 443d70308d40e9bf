package redis

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"xtrend/internal/application/port"
	"xtrend/internal/domain"
)

type Repo struct {
	rdb           *redis.Client
	prefix        string
	ttl           time.Duration
	keyIndicators string // prefix + ":indicators"
	keyTrades     string // prefix + ":trades"
	keyOpen       string // prefix + ":trades:open"
	keySnapshot   string // prefix + ":snapshot"
	signalStream  string
	signalChan    string
}

// SignalMessage is the payload of the signal stream and pub/sub channel.
type SignalMessage struct {
	TsMs     int64  `json:"ts_ms"`
	Symbol   string `json:"symbol"`
	Kind     string `json:"kind"`
	Strength int    `json:"strength"`
	Price    string `json:"price"`
}

func New(rdb *redis.Client, prefix string, ttl time.Duration, signalStream, signalChan string) *Repo {
	if strings.TrimSpace(prefix) == "" {
		prefix = "xtrend"
	}
	if strings.TrimSpace(signalStream) == "" {
		signalStream = prefix + ":signals"
	}
	if strings.TrimSpace(signalChan) == "" {
		signalChan = prefix + ":signals:pub"
	}
	return &Repo{
		rdb:           rdb,
		prefix:        prefix,
		ttl:           ttl,
		keyIndicators: prefix + ":indicators",
		keyTrades:     prefix + ":trades",
		keyOpen:       prefix + ":trades:open",
		keySnapshot:   prefix + ":snapshot",
		signalStream:  signalStream,
		signalChan:    signalChan,
	}
}

func (r *Repo) UpsertIndicator(ctx context.Context, st domain.IndicatorState) error {
	b, err := json.Marshal(st)
	if err != nil {
		return err
	}

	// Hash: field = "BTCUSDT" -> json
	pipe := r.rdb.Pipeline()
	pipe.HSet(ctx, r.keyIndicators, st.Symbol, string(b))
	if r.ttl > 0 {
		pipe.Expire(ctx, r.keyIndicators, r.ttl)
	}
	_, err = pipe.Exec(ctx)
	return err
}

func (r *Repo) InsertSignal(ctx context.Context, ts time.Time, sig domain.Signal, price string) error {
	msg := SignalMessage{
		TsMs:     ts.UnixMilli(),
		Symbol:   sig.Symbol,
		Kind:     sig.Kind.String(),
		Strength: sig.Strength,
		Price:    price,
	}

	// 1) Stream: XADD <stream> * ts symbol kind strength price
	_, err := r.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: r.signalStream,
		Values: map[string]any{
			"ts_ms":    msg.TsMs,
			"symbol":   msg.Symbol,
			"kind":     msg.Kind,
			"strength": msg.Strength,
			"price":    msg.Price,
		},
	}).Result()
	if err != nil {
		return err
	}

	// 2) PubSub: PUBLISH <channel> json
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return r.rdb.Publish(ctx, r.signalChan, string(b)).Err()
}

func (r *Repo) SaveTrade(ctx context.Context, t domain.Trade) error {
	b, err := json.Marshal(t)
	if err != nil {
		return err
	}
	pipe := r.rdb.TxPipeline()
	pipe.HSet(ctx, r.keyTrades, t.ID, string(b))
	if t.Status.Terminal() {
		pipe.SRem(ctx, r.keyOpen, t.ID)
	} else {
		pipe.SAdd(ctx, r.keyOpen, t.ID)
	}
	_, err = pipe.Exec(ctx)
	return err
}

// InsertSnapshot keeps only the latest snapshot.
func (r *Repo) InsertSnapshot(ctx context.Context, ts int64, payload string) error {
	return r.rdb.Set(ctx, r.keySnapshot, payload, r.ttl).Err()
}

func (r *Repo) Close() error { return r.rdb.Close() }

var _ port.Repository = (*Repo)(nil)
