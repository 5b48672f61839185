package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/wonny/canslim/internal/backtest"
	"github.com/wonny/canslim/internal/contracts"
	"github.com/wonny/canslim/internal/strategyconfig"
	"github.com/wonny/canslim/pkg/logger"
)

const defaultBacktestLimit = 20

// StrategySource returns the current strategy bundle
type StrategySource func() (*strategyconfig.Config, error)

// BacktestHandler handles backtest API endpoints
type BacktestHandler struct {
	engine   *backtest.Engine
	strategy StrategySource
	logger   *logger.Logger
}

// NewBacktestHandler creates a new backtest handler
func NewBacktestHandler(engine *backtest.Engine, strategy StrategySource, log *logger.Logger) *BacktestHandler {
	return &BacktestHandler{
		engine:   engine,
		strategy: strategy,
		logger:   log,
	}
}

// BacktestRequest is the POST body. Dates are YYYY-MM-DD; omitted numbers
// take the strategy defaults.
type BacktestRequest struct {
	From                string  `json:"from"`
	To                  string  `json:"to"`
	Universe            string  `json:"universe"`
	ScoreCutoff         float64 `json:"score_cutoff"`
	MaxPositions        int     `json:"max_positions"`
	RiskPercent         float64 `json:"risk_percent"`
	StopLossPercent     float64 `json:"stop_loss_percent"`
	InitialCapital      float64 `json:"initial_capital"`
	UseMarketGate       *bool   `json:"use_market_gate"`
	ProfitTargetPercent float64 `json:"profit_target_percent"`
	ProfitTargetMode    string  `json:"profit_target_mode"`
}

// BacktestSummary is one row of the report list
type BacktestSummary struct {
	ID            string                   `json:"id"`
	CreatedAt     time.Time                `json:"created_at"`
	Config        contracts.BacktestConfig `json:"config"`
	EffectiveFrom time.Time                `json:"effective_from"`
	EffectiveTo   time.Time                `json:"effective_to"`
	FinalEquity   float64                  `json:"final_equity"`
	Stats         contracts.BacktestStats  `json:"stats"`
}

func (h *BacktestHandler) toConfig(req BacktestRequest) (contracts.BacktestConfig, string) {
	cfg := contracts.BacktestConfig{
		Universe:            req.Universe,
		ScoreCutoff:         req.ScoreCutoff,
		MaxPositions:        req.MaxPositions,
		RiskPercent:         req.RiskPercent,
		StopLossPercent:     req.StopLossPercent,
		InitialCapital:      req.InitialCapital,
		ProfitTargetPercent: req.ProfitTargetPercent,
		ProfitTargetMode:    req.ProfitTargetMode,
	}

	var err error
	if req.From != "" {
		if cfg.From, err = time.Parse(time.DateOnly, req.From); err != nil {
			return cfg, "from must be YYYY-MM-DD"
		}
	}
	if req.To != "" {
		if cfg.To, err = time.Parse(time.DateOnly, req.To); err != nil {
			return cfg, "to must be YYYY-MM-DD"
		}
	}

	if req.UseMarketGate != nil {
		cfg.UseMarketGate = *req.UseMarketGate
	} else if strategy, err := h.strategy(); err == nil {
		cfg.UseMarketGate = strategy.Backtest.UseMarketGate
	}
	return cfg, ""
}

// Run executes a backtest synchronously and returns its report
// POST /api/backtests
func (h *BacktestHandler) Run(w http.ResponseWriter, r *http.Request) {
	var req BacktestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	cfg, msg := h.toConfig(req)
	if msg != "" {
		respondError(w, http.StatusBadRequest, msg)
		return
	}

	report, err := h.engine.Run(r.Context(), cfg)
	if err != nil {
		respondErr(w, h.logger, err, "Backtest failed")
		return
	}
	respondJSON(w, http.StatusOK, report)
}

// List returns stored reports without their trade ledgers
// GET /api/backtests?limit=20
func (h *BacktestHandler) List(w http.ResponseWriter, r *http.Request) {
	reports, err := h.engine.List(r.Context(), intQuery(r, "limit", defaultBacktestLimit))
	if err != nil {
		respondErr(w, h.logger, err, "Failed to list backtests")
		return
	}

	out := make([]BacktestSummary, len(reports))
	for i, rep := range reports {
		out[i] = BacktestSummary{
			ID:            rep.ID,
			CreatedAt:     rep.CreatedAt,
			Config:        rep.Config,
			EffectiveFrom: rep.EffectiveFrom,
			EffectiveTo:   rep.EffectiveTo,
			FinalEquity:   rep.FinalEquity,
			Stats:         rep.Stats,
		}
	}
	respondJSON(w, http.StatusOK, out)
}

// Get returns one stored report
// GET /api/backtests/{id}
func (h *BacktestHandler) Get(w http.ResponseWriter, r *http.Request) {
	report, err := h.engine.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondErr(w, h.logger, err, "Failed to get backtest")
		return
	}
	respondJSON(w, http.StatusOK, report)
}

// Trades downloads a report's trade ledger
// GET /api/backtests/{id}/trades.csv
func (h *BacktestHandler) Trades(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	data, err := h.engine.ExportTrades(r.Context(), id)
	if err != nil {
		respondErr(w, h.logger, err, "Failed to export trades")
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="backtest-`+id+`-trades.csv"`)
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}
