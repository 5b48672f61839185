package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/wonny/canslim/internal/backtest"
	"github.com/wonny/canslim/internal/contracts"
	"github.com/wonny/canslim/internal/provider"
	"github.com/wonny/canslim/internal/scanner"
	"github.com/wonny/canslim/internal/storage"
	"github.com/wonny/canslim/internal/strategyconfig"
	"github.com/wonny/canslim/pkg/logger"
)

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}

// statusFor maps domain errors onto HTTP status codes
// ⭐ SSOT: 에러 → HTTP 상태 매핑은 여기서만
func statusFor(err error) int {
	var verr strategyconfig.ValidationError
	switch {
	case errors.Is(err, scanner.ErrScanInProgress):
		return http.StatusConflict
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, backtest.ErrNoHistoricalData):
		return http.StatusUnprocessableEntity
	case errors.Is(err, strategyconfig.ErrUnknownUniverse),
		errors.Is(err, strategyconfig.ErrEmptyUniverse),
		errors.Is(err, scanner.ErrUnsupportedFormat),
		errors.Is(err, provider.ErrUnknownProvider),
		errors.Is(err, backtest.ErrInvalidConfig),
		errors.Is(err, contracts.ErrUnknownScanMode),
		errors.As(err, &verr):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// respondErr writes err with its mapped status; server errors are logged
// and their detail is not echoed to the client
func respondErr(w http.ResponseWriter, log *logger.Logger, err error, msg string) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log.WithError(err).Error(msg)
		respondError(w, status, msg)
		return
	}
	respondError(w, status, err.Error())
}

// intQuery reads a positive integer query parameter
func intQuery(r *http.Request, key string, def int) int {
	if s := r.URL.Query().Get(key); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return def
}
