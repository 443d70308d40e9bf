package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xtrend/internal/application/port"
	"xtrend/internal/application/usecase/pipeline"
	"xtrend/internal/domain"
	"xtrend/internal/domain/strategy"
)

type fakeEngine struct {
	snap    pipeline.Snapshot
	store   *strategy.Store
	updates chan pipeline.SymbolView

	closeErr   error
	closeTrade domain.Trade
	cancelErr  error
	fillErr    error
	ledgerErr  error
	lastFill   domain.Fill
}

func newFakeEngine(t *testing.T) *fakeEngine {
	store, err := strategy.NewStore(strategy.Default())
	require.NoError(t, err)
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	return &fakeEngine{
		store:   store,
		updates: make(chan pipeline.SymbolView, 4),
		snap: pipeline.Snapshot{
			At: ts,
			Symbols: []pipeline.SymbolView{{
				Symbol:     "BTCUSDT",
				Indicators: domain.IndicatorState{Symbol: "BTCUSDT", LastPrice: decimal.RequireFromString("44200"), Samples: 60},
				Signal:     domain.Signal{Symbol: "BTCUSDT", Kind: domain.SignalBuy, Strength: 72},
			}},
			Trades: []domain.Trade{
				{ID: "t-2", Symbol: "ETHUSDT", Side: domain.SideSell, Status: domain.StatusPending},
				{ID: "t-1", Symbol: "BTCUSDT", Side: domain.SideBuy, Status: domain.StatusOpen},
			},
			Portfolio: domain.Valuation{Cash: decimal.NewFromInt(10000), TotalValue: decimal.NewFromInt(10000)},
		},
	}
}

func (f *fakeEngine) Snapshot() pipeline.Snapshot { return f.snap }
func (f *fakeEngine) View(symbol string) (pipeline.SymbolView, bool) {
	return f.snap.Symbol(symbol)
}
func (f *fakeEngine) Strategy() strategy.Config { return f.store.Current() }
func (f *fakeEngine) ApplyStrategy(p strategy.Patch) (strategy.Config, error) {
	return f.store.Apply(p)
}
func (f *fakeEngine) ConfirmFill(_ context.Context, fc domain.FillConfirmation) (domain.Trade, error) {
	if f.fillErr != nil {
		return domain.Trade{}, f.fillErr
	}
	return domain.Trade{ID: fc.TradeID, Status: domain.StatusOpen, EntryPrice: fc.FillPrice}, nil
}
func (f *fakeEngine) CloseTrade(_ context.Context, id string) (domain.Trade, error) {
	return f.closeTrade, f.closeErr
}
func (f *fakeEngine) CancelTrade(_ context.Context, id string) (domain.Trade, error) {
	if f.cancelErr != nil {
		return domain.Trade{}, f.cancelErr
	}
	return domain.Trade{ID: id, Status: domain.StatusCancelled, ExitReason: domain.ExitCancelled}, nil
}
func (f *fakeEngine) ApplyFill(fill domain.Fill) (domain.Position, error) {
	f.lastFill = fill
	if f.ledgerErr != nil {
		return domain.Position{}, f.ledgerErr
	}
	return domain.Position{Symbol: fill.Symbol, Amount: fill.Quantity, CostBasis: fill.Price}, nil
}
func (f *fakeEngine) Subscribe() (<-chan pipeline.SymbolView, func()) {
	return f.updates, func() {}
}

type fakeHistory struct{}

func (fakeHistory) RecentSignals(_ context.Context, symbol string, limit int) ([]port.SignalRecord, error) {
	out := []port.SignalRecord{{Symbol: symbol, Kind: "BUY", Strength: 72, Price: "44200"}}
	return out[:min(limit, len(out))], nil
}

func (fakeHistory) LatestIndicator(_ context.Context, symbol string) (string, error) {
	if symbol != "ETHUSDT" {
		return "", fmt.Errorf("%w: %s", port.ErrNotStored, symbol)
	}
	return `{"symbol":"ETHUSDT","last_price":"2300","samples":40}`, nil
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthAndSnapshot(t *testing.T) {
	r := SetupRoutes(NewHandler(newFakeEngine(t), nil))

	rec := do(t, r, "GET", "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy"}`, rec.Body.String())

	rec = do(t, r, "GET", "/api/v1/snapshot", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var snap map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Contains(t, snap, "portfolio")
	assert.Contains(t, snap, "symbols")
}

func TestGetIndicator(t *testing.T) {
	r := SetupRoutes(NewHandler(newFakeEngine(t), nil))

	rec := do(t, r, "GET", "/api/v1/indicators/btcusdt", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var view struct {
		Symbol string `json:"symbol"`
		Signal struct {
			Kind     string `json:"kind"`
			Strength int    `json:"strength"`
		} `json:"signal"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Equal(t, "BTCUSDT", view.Symbol)
	assert.Equal(t, "BUY", view.Signal.Kind)
	assert.Equal(t, 72, view.Signal.Strength)

	rec = do(t, r, "GET", "/api/v1/indicators/DOGEUSDT", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, r, "GET", "/api/v1/indicators", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, r, "GET", "/api/v1/indicators/btc-usdt", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGetIndicatorFallsBackToStoredState(t *testing.T) {
	r := SetupRoutes(NewHandler(newFakeEngine(t), fakeHistory{}))

	rec := do(t, r, "GET", "/api/v1/indicators/eth_usdt", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got struct {
		Symbol     string `json:"symbol"`
		Stored     bool   `json:"stored"`
		Indicators struct {
			LastPrice string `json:"last_price"`
			Samples   int    `json:"samples"`
		} `json:"indicators"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "ETHUSDT", got.Symbol)
	assert.True(t, got.Stored)
	assert.Equal(t, "2300", got.Indicators.LastPrice)
	assert.Equal(t, 40, got.Indicators.Samples)

	// live view wins over storage
	rec = do(t, r, "GET", "/api/v1/indicators/BTCUSDT", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), `"stored"`)

	assert.Equal(t, http.StatusNotFound, do(t, r, "GET", "/api/v1/indicators/DOGEUSDT", "").Code)
}

func TestGetSignals(t *testing.T) {
	r := SetupRoutes(NewHandler(newFakeEngine(t), nil))
	assert.Equal(t, http.StatusNotImplemented, do(t, r, "GET", "/api/v1/signals/BTCUSDT", "").Code)

	r = SetupRoutes(NewHandler(newFakeEngine(t), fakeHistory{}))
	rec := do(t, r, "GET", "/api/v1/signals/BTCUSDT?limit=5", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var recs []port.SignalRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &recs))
	require.Len(t, recs, 1)
	assert.Equal(t, "BUY", recs[0].Kind)

	assert.Equal(t, http.StatusBadRequest, do(t, r, "GET", "/api/v1/signals/BTCUSDT?limit=0", "").Code)
}

func TestGetTradesFilters(t *testing.T) {
	r := SetupRoutes(NewHandler(newFakeEngine(t), nil))

	rec := do(t, r, "GET", "/api/v1/trades?status=open", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var raw []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &raw))
	require.Len(t, raw, 1)
	assert.Equal(t, "t-1", raw[0]["id"])

	rec = do(t, r, "GET", "/api/v1/trades?symbol=SOLUSDT", "")
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = do(t, r, "GET", "/api/v1/trades?symbol=eth-usdt", "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &raw))
	require.Len(t, raw, 1)
	assert.Equal(t, "t-2", raw[0]["id"])
}

func TestCancelTradeStatusCodes(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{nil, http.StatusOK},
		{fmt.Errorf("%w: t-9", domain.ErrTradeNotFound), http.StatusNotFound},
		{fmt.Errorf("%w: t-1 is OPEN", domain.ErrInvalidTransition), http.StatusConflict},
	}
	for _, tc := range cases {
		eng := newFakeEngine(t)
		eng.cancelErr = tc.err
		r := SetupRoutes(NewHandler(eng, nil))
		rec := do(t, r, "POST", "/api/v1/trades/t-2/cancel", "")
		assert.Equal(t, tc.code, rec.Code, "err=%v", tc.err)
	}

	r := SetupRoutes(NewHandler(newFakeEngine(t), nil))
	rec := do(t, r, "POST", "/api/v1/trades/t-2/cancel", "")
	assert.Contains(t, rec.Body.String(), `"status":"CANCELLED"`)
}

func TestCloseTradeStatusCodes(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{nil, http.StatusOK},
		{fmt.Errorf("%w: t-1", domain.ErrAlreadyClosed), http.StatusOK},
		{fmt.Errorf("%w: t-1", domain.ErrTradeNotFound), http.StatusNotFound},
		{fmt.Errorf("%w: t-1 is PENDING", domain.ErrInvalidTransition), http.StatusConflict},
	}
	for _, tc := range cases {
		eng := newFakeEngine(t)
		eng.closeErr = tc.err
		eng.closeTrade = domain.Trade{ID: "t-1", Status: domain.StatusClosed}
		r := SetupRoutes(NewHandler(eng, nil))
		rec := do(t, r, "POST", "/api/v1/trades/t-1/close", "")
		assert.Equal(t, tc.code, rec.Code, "err=%v", tc.err)
	}
}

func TestConfirmFill(t *testing.T) {
	eng := newFakeEngine(t)
	r := SetupRoutes(NewHandler(eng, nil))

	rec := do(t, r, "POST", "/api/v1/fills", `{"trade_id":"t-2","fill_price":"2300.5"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"entry_price":"2300.5"`)

	assert.Equal(t, http.StatusBadRequest, do(t, r, "POST", "/api/v1/fills", `{"trade_id":"t-2"}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, r, "POST", "/api/v1/fills", `nope`).Code)

	eng.fillErr = fmt.Errorf("%w: t-9", domain.ErrOrphanFill)
	assert.Equal(t, http.StatusNotFound, do(t, r, "POST", "/api/v1/fills", `{"trade_id":"t-9","fill_price":"1"}`).Code)
}

func TestPortfolioAndManualFill(t *testing.T) {
	eng := newFakeEngine(t)
	r := SetupRoutes(NewHandler(eng, nil))

	rec := do(t, r, "GET", "/api/v1/portfolio", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"cash":"10000"`)

	rec = do(t, r, "POST", "/api/v1/portfolio/fills", `{"symbol":" btcusdt ","side":"BUY","quantity":"0.5","price":"40000"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "BTCUSDT", eng.lastFill.Symbol)
	assert.Equal(t, domain.SideBuy, eng.lastFill.Side)

	assert.Equal(t, http.StatusBadRequest, do(t, r, "POST", "/api/v1/portfolio/fills", `{"symbol":"BTCUSDT","side":"HOLD"}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, r, "POST", "/api/v1/portfolio/fills", `{"side":"BUY"}`).Code)

	eng.ledgerErr = fmt.Errorf("%w: BTCUSDT", domain.ErrInsufficientHoldings)
	rec = do(t, r, "POST", "/api/v1/portfolio/fills", `{"symbol":"BTCUSDT","side":"SELL","quantity":"9","price":"40000"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestStrategyGetAndPatch(t *testing.T) {
	r := SetupRoutes(NewHandler(newFakeEngine(t), nil))

	rec := do(t, r, "GET", "/api/v1/strategy", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var cfg strategy.Config
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cfg))
	assert.Equal(t, strategy.Default(), cfg)

	rec = do(t, r, "PATCH", "/api/v1/strategy", `{"rsi_low":25,"min_entry_strength":40}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cfg))
	assert.Equal(t, 25.0, cfg.RSILow)
	assert.Equal(t, 40, cfg.MinEntryStrength)

	rec = do(t, r, "PATCH", "/api/v1/strategy", `{"stop_loss_pct":150}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	var verr struct {
		Fields []strategy.FieldError `json:"fields"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &verr))
	require.NotEmpty(t, verr.Fields)
	assert.Equal(t, "stop_loss_pct", verr.Fields[0].Field)

	// rejected patch leaves the active config alone
	rec = do(t, r, "GET", "/api/v1/strategy", "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cfg))
	assert.Equal(t, 25.0, cfg.RSILow)

	assert.Equal(t, http.StatusBadRequest, do(t, r, "PATCH", "/api/v1/strategy", `{"bogus":1}`).Code)
}

func TestStreamPushesViews(t *testing.T) {
	eng := newFakeEngine(t)
	srv := httptest.NewServer(SetupRoutes(NewHandler(eng, nil)))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?symbol=ethusdt"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	eng.updates <- pipeline.SymbolView{Symbol: "BTCUSDT"}
	eng.updates <- pipeline.SymbolView{Symbol: "ETHUSDT", Signal: domain.Signal{Symbol: "ETHUSDT", Kind: domain.SignalSell, Strength: 55}}

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var got struct {
		Symbol string `json:"symbol"`
		Signal struct {
			Kind string `json:"kind"`
		} `json:"signal"`
	}
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, "ETHUSDT", got.Symbol)
	assert.Equal(t, "SELL", got.Signal.Kind)

	close(eng.updates)
	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure))
}
