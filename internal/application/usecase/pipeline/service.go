// Package pipeline wires price feeds through the indicator engine, signal
// generator, trade book and ledger, one worker per symbol.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"xtrend/internal/application/port"
	"xtrend/internal/domain"
	"xtrend/internal/domain/indicator"
	"xtrend/internal/domain/portfolio"
	"xtrend/internal/domain/signal"
	"xtrend/internal/domain/strategy"
	"xtrend/internal/domain/trade"
)

// ErrNoFeeds is returned by Run when no price feed is configured.
var ErrNoFeeds = errors.New("no feeds")

type ServiceDeps struct {
	Feeds       []port.PriceFeed
	FillSources []port.FillSource
	Symbols     []string

	Engine   *indicator.Engine
	Signals  *signal.Generator
	Strategy *strategy.Store
	Book     *trade.Book
	Ledger   *portfolio.Ledger

	Executor port.Executor       // nil leaves trades PENDING until ConfirmFill
	Repo     port.Repository     // optional
	Events   port.EventPublisher // optional
	Sink     port.Sink           // optional

	QueueSize      int
	Overflow       Overflow
	PrintEvery     time.Duration
	PendingTimeout time.Duration // 0 keeps PENDING trades until filled or cancelled
	Now            func() time.Time
}

type Service struct {
	deps ServiceDeps
	fmt  *Formatter

	router *router
	hub    *hub

	// last signal kind per symbol, used to persist only transitions
	mu       sync.Mutex
	lastKind map[string]domain.SignalKind
}

func NewService(deps ServiceDeps) *Service {
	if deps.Repo == nil {
		deps.Repo = NewNoopRepo()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Signals == nil {
		deps.Signals = signal.NewGenerator(signal.DefaultWeights)
	}
	s := &Service{
		deps:     deps,
		fmt:      NewFormatter(),
		hub:      newHub(0),
		lastKind: make(map[string]domain.SignalKind),
	}
	s.router = newRouter(deps.QueueSize, deps.Overflow, s.process)
	return s
}

// Run consumes every feed until ctx is cancelled or all feeds are exhausted,
// then drains the per-symbol queues before returning.
func (s *Service) Run(ctx context.Context) error {
	if len(s.deps.Feeds) == 0 {
		return ErrNoFeeds
	}

	var feeds sync.WaitGroup
	for _, feed := range s.deps.Feeds {
		ch, err := feed.Subscribe(ctx, s.deps.Symbols)
		if err != nil {
			return fmt.Errorf("subscribe %s: %w", feed.Name(), err)
		}
		feeds.Add(1)
		go func(name string, in <-chan domain.PriceSample) {
			defer feeds.Done()
			s.pump(ctx, name, in)
		}(feed.Name(), ch)

		log.Info().Str("feed", feed.Name()).Msg("feed started")
	}

	for _, src := range s.deps.FillSources {
		ch, err := src.Fills(ctx)
		if err != nil {
			return fmt.Errorf("fills %s: %w", src.Name(), err)
		}
		go s.consumeFills(ctx, src.Name(), ch)
		log.Info().Str("source", src.Name()).Msg("fill source started")
	}

	exhausted := make(chan struct{})
	go func() {
		feeds.Wait()
		close(exhausted)
	}()

	var tick <-chan time.Time
	if s.deps.PrintEvery > 0 {
		t := time.NewTicker(s.deps.PrintEvery)
		defer t.Stop()
		tick = t.C
	}

	var runErr error
loop:
	for {
		select {
		case <-ctx.Done():
			runErr = ctx.Err()
			break loop
		case <-exhausted:
			log.Info().Msg("all feeds exhausted")
			break loop
		case now := <-tick:
			s.writeSnapshot(ctx, now)
		}
	}

	// pumps exit on ctx or end of feed; nothing pushes after this
	feeds.Wait()
	s.router.close()
	s.hub.close()
	s.writeSnapshot(context.Background(), s.deps.Now())
	if s.deps.Sink != nil {
		_ = s.deps.Sink.NewLine()
	}
	log.Info().Uint64("dropped", s.router.dropped.Load()).Msg("pipeline drained")
	return runErr
}

func (s *Service) pump(ctx context.Context, name string, in <-chan domain.PriceSample) {
	for {
		select {
		case <-ctx.Done():
			return
		case smp, ok := <-in:
			if !ok {
				log.Info().Str("feed", name).Msg("feed closed")
				return
			}
			smp.Symbol = domain.CanonicalSymbol(smp.Symbol)
			if !s.router.push(ctx, smp) {
				return
			}
		}
	}
}

func (s *Service) consumeFills(ctx context.Context, name string, in <-chan domain.FillConfirmation) {
	for {
		select {
		case <-ctx.Done():
			return
		case f, ok := <-in:
			if !ok {
				return
			}
			if _, err := s.ConfirmFill(ctx, f); err != nil {
				log.Warn().Err(err).Str("source", name).Str("trade_id", f.TradeID).Msg("fill dropped")
			}
		}
	}
}

// process runs one sample through the whole chain. It is only ever called by
// the symbol's own worker.
func (s *Service) process(smp domain.PriceSample) {
	// in-flight samples are still persisted during shutdown
	ctx := context.Background()

	st, err := s.deps.Engine.Update(smp.Symbol, smp)
	if err != nil {
		lvl := zerolog.WarnLevel
		if errors.Is(err, domain.ErrOutOfOrderSample) {
			lvl = zerolog.DebugLevel
		}
		log.WithLevel(lvl).Err(err).Str("symbol", smp.Symbol).Msg("sample dropped")
		return
	}

	cfg := s.deps.Strategy.Current()
	at := smp.Timestamp

	if s.deps.PendingTimeout > 0 {
		s.settle(ctx, s.deps.Book.Expire(st.Symbol, s.deps.PendingTimeout, at))
	}
	s.settle(ctx, s.deps.Book.OnPrice(st.Symbol, st.LastPrice, cfg, at))

	sig := s.deps.Signals.Evaluate(st, cfg)
	s.recordSignal(ctx, sig, st)

	equity := s.valuation(s.prices(), at).TotalValue
	out := s.deps.Book.OnSignal(sig, st.LastPrice, equity, cfg, at)
	if out.Skipped != "" {
		log.Debug().Str("symbol", st.Symbol).Str("signal", sig.Kind.String()).Str("reason", out.Skipped).Msg("signal not acted on")
	}
	s.settle(ctx, out)

	if err := s.deps.Repo.UpsertIndicator(ctx, st); err != nil {
		log.Error().Err(err).Str("symbol", st.Symbol).Msg("persist indicator failed")
	}

	view := s.view(st, sig)
	s.hub.publish(view)
	if s.deps.Sink != nil {
		_ = s.deps.Sink.WriteLive(s.fmt.Live(view))
	}
}

// settle books closes into the ledger, records cancels and submits newly
// opened trades. A trade the executor refuses is cancelled.
func (s *Service) settle(ctx context.Context, out trade.Outcome) {
	for _, t := range out.Cancelled {
		log.Warn().
			Str("trade_id", t.ID).
			Str("symbol", t.Symbol).
			Str("reason", t.ExitReason.String()).
			Msg("trade cancelled")
		s.record(ctx, t)
	}

	for _, t := range out.Closed {
		pos, err := s.deps.Ledger.ApplyClose(t)
		if err != nil {
			log.Error().Err(err).Str("trade_id", t.ID).Msg("ledger rejected close")
		}
		log.Info().
			Str("trade_id", t.ID).
			Str("symbol", t.Symbol).
			Str("side", t.Side.String()).
			Str("reason", t.ExitReason.String()).
			Str("exit", t.ExitPrice.Decimal.String()).
			Str("pnl", t.PnL.Decimal.String()).
			Str("realized", pos.RealizedPnL.String()).
			Msg("trade closed")
		s.record(ctx, t)
	}

	for _, t := range out.Opened {
		log.Info().
			Str("trade_id", t.ID).
			Str("symbol", t.Symbol).
			Str("side", t.Side.String()).
			Str("qty", t.Quantity.String()).
			Int("strength", t.Strength).
			Msg("trade pending")
		s.record(ctx, t)

		if s.deps.Executor == nil {
			continue
		}
		fill, err := s.deps.Executor.Submit(ctx, t)
		if err != nil {
			log.Error().Err(err).Str("executor", s.deps.Executor.Name()).Str("trade_id", t.ID).Msg("order submit failed")
			s.reject(ctx, t.ID)
			continue
		}
		if fill != nil {
			if _, err := s.ConfirmFill(ctx, *fill); err != nil {
				log.Warn().Err(err).Str("trade_id", t.ID).Msg("fill dropped")
			}
		}
	}
}

func (s *Service) reject(ctx context.Context, id string) {
	t, err := s.deps.Book.Cancel(id, domain.ExitRejected, s.deps.Now())
	if err != nil {
		// a fill may already have raced in
		log.Warn().Err(err).Str("trade_id", id).Msg("cancel after rejected submit failed")
		return
	}
	s.settle(ctx, trade.Outcome{Cancelled: []domain.Trade{t}})
}

func (s *Service) record(ctx context.Context, t domain.Trade) {
	if err := s.deps.Repo.SaveTrade(ctx, t); err != nil {
		log.Error().Err(err).Str("trade_id", t.ID).Msg("persist trade failed")
	}
	if s.deps.Events != nil {
		if err := s.deps.Events.PublishTrade(ctx, t); err != nil {
			log.Error().Err(err).Str("trade_id", t.ID).Msg("publish trade failed")
		}
	}
}

// recordSignal persists actionable signals when the kind changes.
func (s *Service) recordSignal(ctx context.Context, sig domain.Signal, st domain.IndicatorState) {
	s.mu.Lock()
	prev, seen := s.lastKind[sig.Symbol]
	s.lastKind[sig.Symbol] = sig.Kind
	s.mu.Unlock()

	if sig.Kind == domain.SignalHold || (seen && prev == sig.Kind) {
		return
	}
	log.Info().
		Str("symbol", sig.Symbol).
		Str("signal", sig.Kind.String()).
		Int("strength", sig.Strength).
		Float64("rsi", st.RSI).
		Str("price", st.LastPrice.String()).
		Msg("signal")
	if err := s.deps.Repo.InsertSignal(ctx, st.LastTimestamp, sig, st.LastPrice.String()); err != nil {
		log.Error().Err(err).Str("symbol", sig.Symbol).Msg("persist signal failed")
	}
}

// ConfirmFill opens a PENDING trade. Orphan fills are reported and dropped.
func (s *Service) ConfirmFill(ctx context.Context, f domain.FillConfirmation) (domain.Trade, error) {
	t, err := s.deps.Book.ConfirmFill(f)
	if err != nil {
		return domain.Trade{}, err
	}
	log.Info().
		Str("trade_id", t.ID).
		Str("symbol", t.Symbol).
		Str("entry", t.EntryPrice.String()).
		Msg("trade open")
	s.record(ctx, t)
	return t, nil
}

// CloseTrade closes an OPEN trade at the symbol's last price.
func (s *Service) CloseTrade(ctx context.Context, id string) (domain.Trade, error) {
	t, ok := s.deps.Book.Get(id)
	if !ok {
		return domain.Trade{}, fmt.Errorf("%w: %s", domain.ErrTradeNotFound, id)
	}
	st, ok := s.deps.Engine.State(t.Symbol)
	if !ok {
		return domain.Trade{}, fmt.Errorf("no price for %s", t.Symbol)
	}
	closed, err := s.deps.Book.Close(id, st.LastPrice, domain.ExitManual, s.deps.Now())
	if err != nil {
		return closed, err
	}
	s.settle(ctx, trade.Outcome{Closed: []domain.Trade{closed}})
	return closed, nil
}

// CancelTrade withdraws a PENDING trade, e.g. an order the venue never filled.
func (s *Service) CancelTrade(ctx context.Context, id string) (domain.Trade, error) {
	t, err := s.deps.Book.Cancel(id, domain.ExitCancelled, s.deps.Now())
	if err != nil {
		return t, err
	}
	s.settle(ctx, trade.Outcome{Cancelled: []domain.Trade{t}})
	return t, nil
}

// ApplyFill books an external execution into the ledger.
func (s *Service) ApplyFill(f domain.Fill) (domain.Position, error) {
	if f.At.IsZero() {
		f.At = s.deps.Now()
	}
	return s.deps.Ledger.ApplyFill(f)
}

// ApplyStrategy validates and installs a strategy patch.
func (s *Service) ApplyStrategy(p strategy.Patch) (strategy.Config, error) {
	cfg, err := s.deps.Strategy.Apply(p)
	if err != nil {
		return cfg, err
	}
	log.Info().Interface("strategy", cfg).Msg("strategy updated")
	return cfg, nil
}

func (s *Service) Strategy() strategy.Config { return s.deps.Strategy.Current() }

// Subscribe streams per-symbol updates. The returned func ends the subscription.
func (s *Service) Subscribe() (<-chan SymbolView, func()) {
	return s.hub.subscribe()
}

// Snapshot copies the current state of every component.
func (s *Service) Snapshot() Snapshot {
	cfg := s.deps.Strategy.Current()
	states := s.deps.Engine.States()
	now := s.deps.Now()

	snap := Snapshot{
		At:        now,
		Symbols:   make([]SymbolView, 0, len(states)),
		Trades:    s.deps.Book.Trades(),
		Positions: s.deps.Ledger.Positions(),
		Stats:     s.deps.Book.Stats(),
		Strategy:  cfg,
		Dropped:   s.router.dropped.Load(),
		Queues:    s.router.depth(),
	}

	prices := make(map[string]decimal.Decimal, len(states))
	for _, sym := range s.deps.Engine.Symbols() {
		st, ok := states[sym]
		if !ok {
			continue
		}
		prices[sym] = st.LastPrice
		snap.Symbols = append(snap.Symbols, s.view(st, s.deps.Signals.Evaluate(st, cfg)))
	}
	snap.Portfolio = s.valuation(prices, now)
	return snap
}

// valuation marks the ledger and every OPEN trade to prices.
func (s *Service) valuation(prices map[string]decimal.Decimal, at time.Time) domain.Valuation {
	return portfolio.MarkOpenTrades(s.deps.Ledger.Valuation(prices, at), s.deps.Book.Open(), prices)
}

// View returns the dashboard row for one symbol.
func (s *Service) View(symbol string) (SymbolView, bool) {
	st, ok := s.deps.Engine.State(domain.CanonicalSymbol(symbol))
	if !ok {
		return SymbolView{}, false
	}
	return s.view(st, s.deps.Signals.Evaluate(st, s.deps.Strategy.Current())), true
}

func (s *Service) view(st domain.IndicatorState, sig domain.Signal) SymbolView {
	return SymbolView{
		Symbol:        st.Symbol,
		Indicators:    st,
		Trend:         st.Trend(),
		MACDTrend:     st.MACDTrend(),
		MACDHistogram: st.MACDHistogram(),
		Signal:        sig,
	}
}

func (s *Service) prices() map[string]decimal.Decimal {
	states := s.deps.Engine.States()
	out := make(map[string]decimal.Decimal, len(states))
	for sym, st := range states {
		out[sym] = st.LastPrice
	}
	return out
}

func (s *Service) writeSnapshot(ctx context.Context, now time.Time) {
	snap := s.Snapshot()
	if s.deps.Sink != nil {
		_ = s.deps.Sink.WriteSnapshot(now, s.fmt.Snapshot(snap))
	}
	payload, err := json.Marshal(snap)
	if err != nil {
		log.Error().Err(err).Msg("encode snapshot failed")
		return
	}
	if err := s.deps.Repo.InsertSnapshot(ctx, now.UnixMilli(), string(payload)); err != nil {
		log.Error().Err(err).Msg("persist snapshot failed")
	}
}
