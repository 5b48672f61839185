package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/wonny/canslim/internal/api/handlers"
	"github.com/wonny/canslim/internal/bootstrap"
	"github.com/wonny/canslim/pkg/logger"
	"github.com/wonny/canslim/pkg/telemetry"
)

// Handlers groups the endpoint handlers mounted under /api
type Handlers struct {
	Scans     *handlers.ScanHandler
	Backtests *handlers.BacktestHandler
	Market    *handlers.MarketHandler
}

// NewRouter creates and configures the HTTP router.
// metrics may be nil, in which case /metrics is not mounted.
// ⭐ SSOT: 라우팅 설정은 이 함수에서만
func NewRouter(h Handlers, metrics *telemetry.Metrics, log *logger.Logger) http.Handler {
	r := mux.NewRouter()

	// Health check
	r.HandleFunc("/health", healthCheckHandler).Methods("GET")
	if metrics != nil {
		r.Handle("/metrics", metrics.Handler()).Methods("GET")
	}

	api := r.PathPrefix("/api").Subrouter()

	// Providers / market gate
	api.HandleFunc("/providers", h.Market.Providers).Methods("GET")
	api.HandleFunc("/market-gate", h.Market.MarketGate).Methods("GET")

	// Scans (static paths before {id})
	api.HandleFunc("/scans", h.Scans.Start).Methods("POST")
	api.HandleFunc("/scans", h.Scans.List).Methods("GET")
	api.HandleFunc("/scans/status", h.Scans.Status).Methods("GET")
	api.HandleFunc("/scans/live", h.Scans.Live).Methods("GET")
	api.HandleFunc("/scans/live/stream", h.Scans.Stream).Methods("GET")
	api.HandleFunc("/scans/{id}/results", h.Scans.Results).Methods("GET")
	api.HandleFunc("/scans/{id}/export", h.Scans.Export).Methods("GET")

	// Backtests
	api.HandleFunc("/backtests", h.Backtests.Run).Methods("POST")
	api.HandleFunc("/backtests", h.Backtests.List).Methods("GET")
	api.HandleFunc("/backtests/{id}", h.Backtests.Get).Methods("GET")
	api.HandleFunc("/backtests/{id}/trades.csv", h.Backtests.Trades).Methods("GET")

	// Apply middleware
	r.Use(loggingMiddleware(log))
	r.Use(recoveryMiddleware(log))

	return r
}

// healthCheckHandler returns server health status
func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":  "ok",
		"service": "canslim-api",
	})
}

// loggingMiddleware logs HTTP requests
func loggingMiddleware(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			next.ServeHTTP(w, r)

			log.WithFields(map[string]interface{}{
				"method":   r.Method,
				"path":     r.URL.Path,
				"duration": time.Since(start),
			}).Debug("HTTP request")
		})
	}
}

// recoveryMiddleware recovers from panics
func recoveryMiddleware(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					log.WithFields(map[string]interface{}{
						"error": err,
						"path":  r.URL.Path,
					}).Error("Panic recovered")

					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					json.NewEncoder(w).Encode(map[string]string{
						"error": "Internal server error",
					})
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}

// NewHandlers wires the endpoint handlers to an assembled application.
// ctx bounds background scans started through the API.
func NewHandlers(ctx context.Context, app *bootstrap.App) Handlers {
	return Handlers{
		Scans:     handlers.NewScanHandler(ctx, app.Scanner, app.Logger),
		Backtests: handlers.NewBacktestHandler(app.Backtest, app.Strategy, app.Logger),
		Market:    handlers.NewMarketHandler(app.Providers, app.Gate, app.Logger),
	}
}
