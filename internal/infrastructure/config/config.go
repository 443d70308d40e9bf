package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"xtrend/internal/application/usecase/pipeline"
	"xtrend/internal/domain"
	"xtrend/internal/domain/indicator"
	"xtrend/internal/domain/signal"
	"xtrend/internal/domain/strategy"
)

const (
	ExecutionPaper = "paper"
	ExecutionKafka = "kafka"
)

type Config struct {
	App struct {
		LogLevel      string `toml:"log_level"`
		PrettyLog     bool   `toml:"pretty_log"`
		PrintEverySec int    `toml:"print_every_sec"`
	} `toml:"app"`

	Symbols struct {
		List   []string `toml:"list"`
		Quote  string   `toml:"quote"`  // e.g. USDT; bare coins in list are paired with it
		Closed bool     `toml:"closed"` // reject samples for symbols outside list
	} `toml:"symbols"`

	Indicators struct {
		MAShort    int `toml:"ma_short"`
		MAMedium   int `toml:"ma_medium"`
		MALong     int `toml:"ma_long"`
		RSIPeriod  int `toml:"rsi_period"`
		MACDFast   int `toml:"macd_fast"`
		MACDSlow   int `toml:"macd_slow"`
		MACDSignal int `toml:"macd_signal"`
	} `toml:"indicators"`

	Signal struct {
		RSIWeight      float64 `toml:"rsi_weight"`
		MACDWeight     float64 `toml:"macd_weight"`
		MACDSaturation float64 `toml:"macd_saturation"`
	} `toml:"signal"`

	Strategy strategy.Config `toml:"strategy"`

	Pipeline struct {
		QueueSize int    `toml:"queue_size"`
		Overflow  string `toml:"overflow"` // drop_oldest | block
	} `toml:"pipeline"`

	Account struct {
		StartingCash string `toml:"starting_cash"`
	} `toml:"account"`

	Execution struct {
		Mode        string  `toml:"mode"` // paper | kafka
		SlippageBps float64 `toml:"slippage_bps"`
		// PENDING trades older than this are cancelled as expired; 0 keeps them
		PendingTimeoutSec int `toml:"pending_timeout_sec"`
		// publish trade transitions to kafka.events_topic
		PublishEvents bool `toml:"publish_events"`
	} `toml:"execution"`

	Replay struct {
		File   string `toml:"file"`
		PaceMs int    `toml:"pace_ms"`
	} `toml:"replay"`

	Exchange struct {
		Binance struct {
			Enabled  bool   `toml:"enabled"`
			WsURL    string `toml:"ws_url"`   // e.g. wss://stream.binance.com:9443
			Interval string `toml:"interval"` // kline interval, e.g. 1m
			RestURL  string `toml:"rest_url"` // e.g. https://api.binance.com
			Backfill int    `toml:"backfill"` // closed klines fetched per symbol before streaming
		} `toml:"binance"`
	} `toml:"exchange"`

	HTTP struct {
		Enabled bool   `toml:"enabled"`
		Addr    string `toml:"addr"`
	} `toml:"http"`

	Kafka struct {
		Brokers     []string `toml:"brokers"`
		OrdersTopic string   `toml:"orders_topic"`
		FillsTopic  string   `toml:"fills_topic"`
		EventsTopic string   `toml:"events_topic"`
		GroupID     string   `toml:"group_id"`
	} `toml:"kafka"`

	Storage struct {
		SQLite struct {
			Enabled bool   `toml:"enabled"`
			Path    string `toml:"path"`
		} `toml:"sqlite"`

		Redis struct {
			Enabled       bool   `toml:"enabled"`
			Addr          string `toml:"addr"`
			Password      string `toml:"password"`
			DB            int    `toml:"db"`
			Prefix        string `toml:"prefix"`
			TTLSeconds    int    `toml:"ttl_seconds"`
			SignalStream  string `toml:"signal_stream"`
			SignalChannel string `toml:"signal_channel"`
		} `toml:"redis"`

		Postgres struct {
			Enabled bool   `toml:"enabled"`
			DSN     string `toml:"dsn"`
		} `toml:"postgres"`
	} `toml:"storage"`
}

func Load(path string) (*Config, error) {
	var cfg Config
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, err
	}
	applyDefaults(&cfg, md)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config, md toml.MetaData) {
	if cfg.App.LogLevel == "" {
		cfg.App.LogLevel = "info"
	}
	if cfg.App.PrintEverySec <= 0 {
		cfg.App.PrintEverySec = 60
	}

	p := indicator.DefaultPeriods()
	setInt(&cfg.Indicators.MAShort, p.MAShort)
	setInt(&cfg.Indicators.MAMedium, p.MAMedium)
	setInt(&cfg.Indicators.MALong, p.MALong)
	setInt(&cfg.Indicators.RSIPeriod, p.RSI)
	setInt(&cfg.Indicators.MACDFast, p.MACDFast)
	setInt(&cfg.Indicators.MACDSlow, p.MACDSlow)
	setInt(&cfg.Indicators.MACDSignal, p.MACDSignal)

	if cfg.Signal.RSIWeight == 0 && cfg.Signal.MACDWeight == 0 {
		cfg.Signal.RSIWeight = signal.DefaultWeights.RSI
		cfg.Signal.MACDWeight = signal.DefaultWeights.MACD
	}
	if cfg.Signal.MACDSaturation == 0 {
		cfg.Signal.MACDSaturation = signal.DefaultWeights.MACDSaturation
	}

	// strategy keys left out of the file keep their stock values
	def := strategy.Default()
	s := &cfg.Strategy
	for key, apply := range map[string]func(){
		"stop_loss_pct":      func() { s.StopLossPct = def.StopLossPct },
		"take_profit_pct":    func() { s.TakeProfitPct = def.TakeProfitPct },
		"risk_per_trade_pct": func() { s.RiskPerTradePct = def.RiskPerTradePct },
		"rsi_low":            func() { s.RSILow = def.RSILow },
		"rsi_high":           func() { s.RSIHigh = def.RSIHigh },
		"max_open_trades":    func() { s.MaxOpenTrades = def.MaxOpenTrades },
		"min_entry_strength": func() { s.MinEntryStrength = def.MinEntryStrength },
		"min_exit_strength":  func() { s.MinExitStrength = def.MinExitStrength },
	} {
		if !md.IsDefined("strategy", key) {
			apply()
		}
	}

	if cfg.Pipeline.QueueSize <= 0 {
		cfg.Pipeline.QueueSize = 256
	}
	if cfg.Pipeline.Overflow == "" {
		cfg.Pipeline.Overflow = "drop_oldest"
	}
	if strings.TrimSpace(cfg.Account.StartingCash) == "" {
		cfg.Account.StartingCash = "10000"
	}
	if cfg.Execution.Mode == "" {
		cfg.Execution.Mode = ExecutionPaper
	}
	if cfg.Exchange.Binance.Interval == "" {
		cfg.Exchange.Binance.Interval = "1m"
	}
	if cfg.Exchange.Binance.Backfill > 0 && cfg.Exchange.Binance.RestURL == "" {
		cfg.Exchange.Binance.RestURL = "https://api.binance.com"
	}
	if cfg.HTTP.Addr == "" {
		cfg.HTTP.Addr = ":8080"
	}
	if cfg.Kafka.OrdersTopic == "" {
		cfg.Kafka.OrdersTopic = "xtrend.orders"
	}
	if cfg.Kafka.FillsTopic == "" {
		cfg.Kafka.FillsTopic = "xtrend.fills"
	}
	if cfg.Kafka.EventsTopic == "" {
		cfg.Kafka.EventsTopic = "xtrend.trades"
	}
	if cfg.Kafka.GroupID == "" {
		cfg.Kafka.GroupID = "xtrend"
	}
	if cfg.Storage.SQLite.Path == "" {
		cfg.Storage.SQLite.Path = "data/xtrend.db"
	}
	r := &cfg.Storage.Redis
	if r.Addr == "" {
		r.Addr = "127.0.0.1:6379"
	}
	if r.Prefix == "" {
		r.Prefix = "xtrend"
	}
	if r.SignalStream == "" {
		r.SignalStream = "xtrend:signals"
	}
	if r.SignalChannel == "" {
		r.SignalChannel = "xtrend:signals:pub"
	}
}

func setInt(v *int, def int) {
	if *v <= 0 {
		*v = def
	}
}

func validate(cfg *Config) error {
	cfg.Symbols.List = normalizeSymbols(cfg.Symbols.List)
	if len(cfg.Symbols.List) == 0 {
		return errors.New("symbols.list is empty")
	}
	if _, err := zerolog.ParseLevel(strings.ToLower(cfg.App.LogLevel)); err != nil {
		return fmt.Errorf("app.log_level: %w", err)
	}
	if err := cfg.Periods().Validate(); err != nil {
		return fmt.Errorf("indicators: %w", err)
	}
	if err := validateWeights(cfg.Weights()); err != nil {
		return err
	}
	if err := cfg.Strategy.Validate(); err != nil {
		return err
	}
	if _, err := pipeline.ParseOverflow(cfg.Pipeline.Overflow); err != nil {
		return fmt.Errorf("pipeline.overflow: %w", err)
	}
	cash, err := decimal.NewFromString(strings.TrimSpace(cfg.Account.StartingCash))
	if err != nil {
		return fmt.Errorf("account.starting_cash: %w", err)
	}
	if !cash.IsPositive() {
		return errors.New("account.starting_cash must be positive")
	}

	switch cfg.Execution.Mode {
	case ExecutionPaper:
		if cfg.Execution.SlippageBps < 0 {
			return errors.New("execution.slippage_bps must not be negative")
		}
	case ExecutionKafka:
		if len(cfg.Kafka.Brokers) == 0 {
			return errors.New("kafka.brokers empty but execution.mode is kafka")
		}
	default:
		return fmt.Errorf("execution.mode %q: want paper or kafka", cfg.Execution.Mode)
	}

	if cfg.Execution.PendingTimeoutSec < 0 {
		return errors.New("execution.pending_timeout_sec must not be negative")
	}
	if cfg.Execution.PublishEvents && len(cfg.Kafka.Brokers) == 0 {
		return errors.New("kafka.brokers empty but execution.publish_events is set")
	}

	if cfg.Exchange.Binance.Enabled && strings.TrimSpace(cfg.Exchange.Binance.WsURL) == "" {
		return errors.New("exchange.binance.ws_url empty but enabled")
	}
	if cfg.Exchange.Binance.Backfill < 0 || cfg.Exchange.Binance.Backfill > 1000 {
		return errors.New("exchange.binance.backfill must be within [0,1000]")
	}
	if cfg.Replay.PaceMs < 0 {
		return errors.New("replay.pace_ms must not be negative")
	}
	if cfg.Storage.Postgres.Enabled && strings.TrimSpace(cfg.Storage.Postgres.DSN) == "" {
		return errors.New("storage.postgres.dsn empty but enabled")
	}
	return nil
}

func validateWeights(w signal.Weights) error {
	if !(w.RSI >= 0) || !(w.MACD >= 0) {
		return errors.New("signal.rsi_weight and signal.macd_weight must not be negative")
	}
	if w.RSI+w.MACD <= 0 {
		return errors.New("signal.rsi_weight + signal.macd_weight must be positive")
	}
	if !(w.MACDSaturation > 0) {
		return errors.New("signal.macd_saturation must be positive")
	}
	return nil
}

// normalizeSymbols canonicalizes and de-duplicates, keeping order.
func normalizeSymbols(in []string) []string {
	out := make([]string, 0, len(in))
	seen := map[string]struct{}{}
	for _, s := range in {
		u := domain.CanonicalSymbol(s)
		if u == "" {
			continue
		}
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}

func (c *Config) Periods() indicator.Periods {
	i := c.Indicators
	return indicator.Periods{
		MAShort:    i.MAShort,
		MAMedium:   i.MAMedium,
		MALong:     i.MALong,
		RSI:        i.RSIPeriod,
		MACDFast:   i.MACDFast,
		MACDSlow:   i.MACDSlow,
		MACDSignal: i.MACDSignal,
	}
}

func (c *Config) Weights() signal.Weights {
	return signal.Weights{
		RSI:            c.Signal.RSIWeight,
		MACD:           c.Signal.MACDWeight,
		MACDSaturation: c.Signal.MACDSaturation,
	}
}

// StartingCash is only valid on a loaded config.
func (c *Config) StartingCash() decimal.Decimal {
	return decimal.RequireFromString(strings.TrimSpace(c.Account.StartingCash))
}

// PendingTimeout is zero when PENDING trades never expire.
func (c *Config) PendingTimeout() time.Duration {
	return time.Duration(c.Execution.PendingTimeoutSec) * time.Second
}

// Overflow is only valid on a loaded config.
func (c *Config) Overflow() pipeline.Overflow {
	o, _ := pipeline.ParseOverflow(c.Pipeline.Overflow)
	return o
}

// EnabledFeeds lists the exchange feeds switched on.
func (c *Config) EnabledFeeds() []string {
	var out []string
	if c.Exchange.Binance.Enabled {
		out = append(out, "BINANCE")
	}
	if strings.TrimSpace(c.Replay.File) != "" {
		out = append(out, "REPLAY")
	}
	return out
}
