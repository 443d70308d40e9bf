package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"xtrend/internal/application/port"
	"xtrend/internal/application/usecase/pipeline"
	"xtrend/internal/domain"
	"xtrend/internal/domain/strategy"
)

// Engine is the slice of the pipeline the API serves.
type Engine interface {
	Snapshot() pipeline.Snapshot
	View(symbol string) (pipeline.SymbolView, bool)
	Strategy() strategy.Config
	ApplyStrategy(p strategy.Patch) (strategy.Config, error)
	ConfirmFill(ctx context.Context, f domain.FillConfirmation) (domain.Trade, error)
	CloseTrade(ctx context.Context, id string) (domain.Trade, error)
	CancelTrade(ctx context.Context, id string) (domain.Trade, error)
	ApplyFill(f domain.Fill) (domain.Position, error)
	Subscribe() (<-chan pipeline.SymbolView, func())
}

// Handler holds dependencies for HTTP handlers
type Handler struct {
	engine  Engine
	history port.History // optional
}

// NewHandler creates a new Handler
func NewHandler(engine Engine, history port.History) *Handler {
	return &Handler{engine: engine, history: history}
}

// HealthCheck handles GET /health
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// GetSnapshot handles GET /snapshot
func (h *Handler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.engine.Snapshot())
}

// GetIndicators handles GET /indicators
func (h *Handler) GetIndicators(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.engine.Snapshot().Symbols)
}

// GetIndicator handles GET /indicators/{symbol}
func (h *Handler) GetIndicator(w http.ResponseWriter, r *http.Request) {
	symbol := domain.CanonicalSymbol(mux.Vars(r)["symbol"])
	view, ok := h.engine.View(symbol)
	if ok {
		respondJSON(w, http.StatusOK, view)
		return
	}
	// Before the first live sample, fall back to the last persisted state.
	if h.history != nil {
		payload, err := h.history.LatestIndicator(r.Context(), symbol)
		if err == nil {
			respondJSON(w, http.StatusOK, storedIndicator{
				Symbol:     symbol,
				Stored:     true,
				Indicators: json.RawMessage(payload),
			})
			return
		}
		if !errors.Is(err, port.ErrNotStored) {
			log.Warn().Err(err).Str("symbol", symbol).Msg("read stored indicator")
		}
	}
	respondError(w, http.StatusNotFound, "no samples for "+symbol)
}

type storedIndicator struct {
	Symbol     string          `json:"symbol"`
	Stored     bool            `json:"stored"`
	Indicators json.RawMessage `json:"indicators"`
}

// GetSignals handles GET /signals/{symbol}?limit=N
func (h *Handler) GetSignals(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		respondError(w, http.StatusNotImplemented, "signal history is not stored")
		return
	}
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 1000 {
			respondError(w, http.StatusBadRequest, "limit must be within [1,1000]")
			return
		}
		limit = n
	}
	symbol := domain.CanonicalSymbol(mux.Vars(r)["symbol"])
	recs, err := h.history.RecentSignals(r.Context(), symbol, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if recs == nil {
		recs = []port.SignalRecord{}
	}
	respondJSON(w, http.StatusOK, recs)
}

// GetTrades handles GET /trades?status=OPEN&symbol=BTCUSDT
func (h *Handler) GetTrades(w http.ResponseWriter, r *http.Request) {
	status := strings.ToUpper(r.URL.Query().Get("status"))
	symbol := domain.CanonicalSymbol(r.URL.Query().Get("symbol"))

	trades := make([]domain.Trade, 0)
	for _, t := range h.engine.Snapshot().Trades {
		if status != "" && t.Status.String() != status {
			continue
		}
		if symbol != "" && t.Symbol != symbol {
			continue
		}
		trades = append(trades, t)
	}
	respondJSON(w, http.StatusOK, trades)
}

// CloseTrade handles POST /trades/{id}/close
func (h *Handler) CloseTrade(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	t, err := h.engine.CloseTrade(r.Context(), id)
	switch {
	case err == nil, errors.Is(err, domain.ErrAlreadyClosed):
		respondJSON(w, http.StatusOK, t)
	case errors.Is(err, domain.ErrTradeNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrInvalidTransition):
		respondError(w, http.StatusConflict, err.Error())
	default:
		respondError(w, http.StatusUnprocessableEntity, err.Error())
	}
}

// CancelTrade handles POST /trades/{id}/cancel
func (h *Handler) CancelTrade(w http.ResponseWriter, r *http.Request) {
	t, err := h.engine.CancelTrade(r.Context(), mux.Vars(r)["id"])
	switch {
	case err == nil:
		respondJSON(w, http.StatusOK, t)
	case errors.Is(err, domain.ErrTradeNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrInvalidTransition):
		respondError(w, http.StatusConflict, err.Error())
	default:
		respondError(w, http.StatusUnprocessableEntity, err.Error())
	}
}

// ConfirmFill handles POST /fills
func (h *Handler) ConfirmFill(w http.ResponseWriter, r *http.Request) {
	var req domain.FillConfirmation
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.TradeID == "" || !req.FillPrice.IsPositive() {
		respondError(w, http.StatusBadRequest, "trade_id and a positive fill_price are required")
		return
	}

	t, err := h.engine.ConfirmFill(r.Context(), req)
	if err != nil {
		if errors.Is(err, domain.ErrOrphanFill) {
			respondError(w, http.StatusNotFound, err.Error())
			return
		}
		respondError(w, http.StatusConflict, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, t)
}

type portfolioResponse struct {
	Valuation domain.Valuation  `json:"valuation"`
	Positions []domain.Position `json:"positions"`
	Stats     domain.TradeStats `json:"stats"`
}

// GetPortfolio handles GET /portfolio
func (h *Handler) GetPortfolio(w http.ResponseWriter, r *http.Request) {
	snap := h.engine.Snapshot()
	respondJSON(w, http.StatusOK, portfolioResponse{
		Valuation: snap.Portfolio,
		Positions: snap.Positions,
		Stats:     snap.Stats,
	})
}

// ApplyFill handles POST /portfolio/fills
func (h *Handler) ApplyFill(w http.ResponseWriter, r *http.Request) {
	var req domain.Fill
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Symbol = domain.CanonicalSymbol(req.Symbol)
	if req.Symbol == "" {
		respondError(w, http.StatusBadRequest, "symbol is required")
		return
	}

	pos, err := h.engine.ApplyFill(req)
	if err != nil {
		if errors.Is(err, domain.ErrInsufficientHoldings) {
			respondError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, pos)
}

// GetStrategy handles GET /strategy
func (h *Handler) GetStrategy(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.engine.Strategy())
}

// PatchStrategy handles PATCH /strategy
func (h *Handler) PatchStrategy(w http.ResponseWriter, r *http.Request) {
	var p strategy.Patch
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&p); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	cfg, err := h.engine.ApplyStrategy(p)
	if err != nil {
		var ve *strategy.ValidationError
		if errors.As(err, &ve) {
			respondJSON(w, http.StatusUnprocessableEntity, map[string]any{
				"error":  ve.Error(),
				"fields": ve.Fields,
			})
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, cfg)
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Debug().Err(err).Msg("write response")
	}
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}
