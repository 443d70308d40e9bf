package httpapi

import (
	"github.com/gorilla/mux"
)

// SetupRoutes configures all API routes
func SetupRoutes(handler *Handler) *mux.Router {
	r := mux.NewRouter()

	// Health check
	r.HandleFunc("/health", handler.HealthCheck).Methods("GET")

	// Live stream
	r.HandleFunc("/ws", handler.Stream).Methods("GET")

	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/snapshot", handler.GetSnapshot).Methods("GET")
	api.HandleFunc("/indicators", handler.GetIndicators).Methods("GET")
	api.HandleFunc("/indicators/{symbol}", handler.GetIndicator).Methods("GET")
	api.HandleFunc("/signals/{symbol}", handler.GetSignals).Methods("GET")

	api.HandleFunc("/trades", handler.GetTrades).Methods("GET")
	api.HandleFunc("/trades/{id}/close", handler.CloseTrade).Methods("POST")
	api.HandleFunc("/trades/{id}/cancel", handler.CancelTrade).Methods("POST")
	api.HandleFunc("/fills", handler.ConfirmFill).Methods("POST")

	api.HandleFunc("/portfolio", handler.GetPortfolio).Methods("GET")
	api.HandleFunc("/portfolio/fills", handler.ApplyFill).Methods("POST")

	api.HandleFunc("/strategy", handler.GetStrategy).Methods("GET")
	api.HandleFunc("/strategy", handler.PatchStrategy).Methods("PATCH")

	return r
}
