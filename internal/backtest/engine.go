package backtest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/wonny/canslim/internal/contracts"
	"github.com/wonny/canslim/internal/marketgate"
	"github.com/wonny/canslim/internal/storage"
	"github.com/wonny/canslim/internal/strategyconfig"
	"github.com/wonny/canslim/pkg/logger"
	"github.com/wonny/canslim/pkg/telemetry"
)

var (
	// ErrNoHistoricalData means the store holds no bars at all
	ErrNoHistoricalData = errors.New("no historical data available")
	// ErrInvalidConfig rejects a malformed backtest request
	ErrInvalidConfig = errors.New("invalid backtest config")
)

const (
	outcomeCompleted = "completed"
	outcomeFailed    = "failed"

	// benchmarkSlackDays tolerates holidays at the end of a stored benchmark
	benchmarkSlackDays = 7
)

// StrategySource returns the configuration snapshot for one run
type StrategySource func() (*strategyconfig.Config, error)

// Deps are the collaborators of an Engine
type Deps struct {
	Store    storage.Store
	Strategy StrategySource
	Clock    contracts.Clock
	Metrics  *telemetry.Metrics
	// Index backfills benchmark bars the store does not cover. Optional.
	Index    contracts.IndexSource
}

// Engine runs backtesting simulations over stored data
// ⭐ SSOT: 백테스팅 실행은 여기서만
type Engine struct {
	store    storage.Store
	strategy StrategySource
	clock    contracts.Clock
	metrics  *telemetry.Metrics
	index    contracts.IndexSource
	logger   *logger.Logger
}

// NewEngine creates a backtest engine
func NewEngine(deps Deps, log *logger.Logger) *Engine {
	clock := deps.Clock
	if clock == nil {
		clock = contracts.SystemClock{}
	}
	strategy := deps.Strategy
	if strategy == nil {
		strategy = func() (*strategyconfig.Config, error) { return strategyconfig.Default(), nil }
	}
	return &Engine{
		store:    deps.Store,
		strategy: strategy,
		clock:    clock,
		metrics:  deps.Metrics,
		index:    deps.Index,
		logger:   log.WithField("component", "backtest"),
	}
}

// Run simulates req and appends the report to the store
func (e *Engine) Run(ctx context.Context, req contracts.BacktestConfig) (*contracts.BacktestReport, error) {
	report, err := e.run(ctx, req)
	if err != nil {
		e.metrics.ObserveBacktest(outcomeFailed)
		return nil, err
	}
	e.metrics.ObserveBacktest(outcomeCompleted)
	return report, nil
}

func (e *Engine) run(ctx context.Context, req contracts.BacktestConfig) (*contracts.BacktestReport, error) {
	cfg, err := e.strategy()
	if err != nil {
		return nil, fmt.Errorf("load strategy config: %w", err)
	}

	params := e.resolve(req, cfg.Backtest)
	if err := validate(params.BacktestConfig); err != nil {
		return nil, err
	}

	from, to, note, err := e.clampRange(ctx, params.From, params.To)
	if err != nil {
		return nil, err
	}
	if note != "" {
		e.logger.WithFields(map[string]interface{}{
			"requested_from": params.From.Format(time.DateOnly),
			"requested_to":   params.To.Format(time.DateOnly),
			"from":           from.Format(time.DateOnly),
			"to":             to.Format(time.DateOnly),
			"reason":         note,
		}).Warn("Backtest range adjusted")
	}

	universe, err := e.resolveUniverse(ctx, cfg, params.Universe)
	if err != nil {
		return nil, err
	}

	data, err := e.load(ctx, cfg, universe, from, to, params.UseMarketGate)
	if err != nil {
		return nil, err
	}

	e.logger.WithFields(map[string]interface{}{
		"from":          from.Format(time.DateOnly),
		"to":            to.Format(time.DateOnly),
		"symbols":       len(data.Bars),
		"capital":       params.InitialCapital,
		"max_positions": params.MaxPositions,
		"market_gate":   params.UseMarketGate,
	}).Info("Starting backtest")

	started := time.Now()
	res := NewSimulator(cfg, params, data, e.logger).Run(from, to)

	var gateNote string
	if res.GateFailOpenDays > 0 {
		gateNote = fmt.Sprintf("benchmark %s had too little history on %d of %d trading days, gate treated as open",
			cfg.MarketGate.Ticker, res.GateFailOpenDays, res.TradingDays)
		e.logger.WithFields(map[string]interface{}{
			"ticker":     cfg.MarketGate.Ticker,
			"days":       res.GateFailOpenDays,
			"bench_bars": len(data.Benchmark),
			"reason":     marketgate.ReasonInsufficientData,
		}).Warn("Backtest market gate failed open")
	}

	hash, err := strategyconfig.Hash(cfg)
	if err != nil {
		return nil, fmt.Errorf("hash strategy config: %w", err)
	}

	report := &contracts.BacktestReport{
		ID:            uuid.NewString(),
		CreatedAt:     e.clock.Now(),
		Config:        params.BacktestConfig,
		ConfigHash:    hash,
		EffectiveFrom: from,
		EffectiveTo:   to,
		RangeAdjusted: note != "",
		RangeNote:     note,
		GateNote:      gateNote,
		TradingDays:   res.TradingDays,
		FinalEquity:   res.FinalEquity,
		Stats:         ComputeStats(res.Trades, res.EquityCurve, params.InitialCapital, res.FinalEquity),
		PerSymbol:     PerSymbol(res.Trades),
		Trades:        res.Trades,
		EquityCurve:   res.EquityCurve,
	}
	if report.Trades == nil {
		report.Trades = []contracts.Trade{}
	}
	if report.EquityCurve == nil {
		report.EquityCurve = []contracts.EquityPoint{}
	}

	if err := e.store.SaveBacktest(ctx, report); err != nil {
		return nil, fmt.Errorf("save backtest: %w", err)
	}

	e.logger.WithFields(map[string]interface{}{
		"id":           report.ID,
		"trading_days": report.TradingDays,
		"trades":       report.Stats.TotalTrades,
		"total_return": fmt.Sprintf("%.2f%%", report.Stats.TotalReturn*100),
		"max_drawdown": fmt.Sprintf("%.2f%%", report.Stats.MaxDrawdown*100),
		"duration":     time.Since(started).String(),
	}).Info("Backtest completed")

	return report, nil
}

// Get returns a stored report
func (e *Engine) Get(ctx context.Context, id string) (*contracts.BacktestReport, error) {
	report, err := e.store.GetBacktest(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get backtest %s: %w", id, err)
	}
	return report, nil
}

// List returns stored report headers, newest first
func (e *Engine) List(ctx context.Context, limit int) ([]contracts.BacktestReport, error) {
	return e.store.ListBacktests(ctx, limit)
}

// resolve fills zero request fields from the configured defaults.
// UseMarketGate is taken as given.
func (e *Engine) resolve(req contracts.BacktestConfig, def strategyconfig.BacktestDefaults) Params {
	c := req
	if c.To.IsZero() {
		c.To = e.clock.Now()
	}
	c.To = contracts.Day(c.To)
	if c.From.IsZero() {
		c.From = c.To.AddDate(-1, 0, 0)
	}
	c.From = contracts.Day(c.From)

	if c.ScoreCutoff == 0 {
		c.ScoreCutoff = def.ScoreCutoff
	}
	if c.MaxPositions == 0 {
		c.MaxPositions = def.MaxPositions
	}
	if c.RiskPercent == 0 {
		c.RiskPercent = def.RiskPercent
	}
	if c.StopLossPercent == 0 {
		c.StopLossPercent = def.StopLossPercent
	}
	if c.InitialCapital == 0 {
		c.InitialCapital = def.InitialCapital
	}
	if c.ProfitTargetPercent == 0 {
		c.ProfitTargetPercent = def.ProfitTargetPercent
	}
	if c.ProfitTargetMode == "" {
		c.ProfitTargetMode = def.ProfitTargetMode
	}
	c.ProfitTargetMode = strings.ToLower(c.ProfitTargetMode)
	if c.Universe == "" {
		c.Universe = universeAll
	}

	return Params{
		BacktestConfig:    c,
		FixedProfitTarget: def.FixedProfitTarget,
		MaxHoldingDays:    def.MaxHoldingDays,
	}
}

func validate(c contracts.BacktestConfig) error {
	switch {
	case c.From.After(c.To):
		return fmt.Errorf("%w: from %s is after to %s", ErrInvalidConfig,
			c.From.Format(time.DateOnly), c.To.Format(time.DateOnly))
	case c.MaxPositions <= 0:
		return fmt.Errorf("%w: max_positions must be positive", ErrInvalidConfig)
	case c.RiskPercent <= 0 || c.RiskPercent > 100:
		return fmt.Errorf("%w: risk_percent must be in (0, 100]", ErrInvalidConfig)
	case c.StopLossPercent <= 0 || c.StopLossPercent >= 100:
		return fmt.Errorf("%w: stop_loss_percent must be in (0, 100)", ErrInvalidConfig)
	case c.InitialCapital <= 0:
		return fmt.Errorf("%w: initial_capital must be positive", ErrInvalidConfig)
	case c.ScoreCutoff < 0 || c.ScoreCutoff > 100:
		return fmt.Errorf("%w: score_cutoff must be in [0, 100]", ErrInvalidConfig)
	case c.ProfitTargetPercent < 0:
		return fmt.Errorf("%w: profit_target_percent must not be negative", ErrInvalidConfig)
	case c.ProfitTargetMode != contracts.ProfitTargetBoth && c.ProfitTargetMode != contracts.ProfitTargetOverride:
		return fmt.Errorf("%w: unknown profit_target_mode %q", ErrInvalidConfig, c.ProfitTargetMode)
	}
	return nil
}

// clampRange narrows [from, to] to the stored bar range. With no overlap the
// full stored range is used. note is empty when nothing changed.
func (e *Engine) clampRange(ctx context.Context, from, to time.Time) (time.Time, time.Time, string, error) {
	availFrom, availTo, err := e.store.BarRange(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		return time.Time{}, time.Time{}, "", ErrNoHistoricalData
	}
	if err != nil {
		return time.Time{}, time.Time{}, "", fmt.Errorf("bar range: %w", err)
	}
	availFrom, availTo = contracts.Day(availFrom), contracts.Day(availTo)

	lo, hi := from, to
	if lo.Before(availFrom) {
		lo = availFrom
	}
	if hi.After(availTo) {
		hi = availTo
	}

	span := fmt.Sprintf("%s..%s", availFrom.Format(time.DateOnly), availTo.Format(time.DateOnly))
	switch {
	case lo.After(hi):
		return availFrom, availTo, "requested range has no overlap with available data " + span + ", using full range", nil
	case !lo.Equal(from) || !hi.Equal(to):
		return lo, hi, "requested range clamped to available data " + span, nil
	}
	return from, to, "", nil
}

const universeAll = "all"

// resolveUniverse reads symbol metadata from the store. Named tags use their
// explicit symbols or filter the stored universe.
func (e *Engine) resolveUniverse(ctx context.Context, cfg *strategyconfig.Config, tag string) ([]contracts.SymbolMeta, error) {
	stored, err := e.store.ListSymbols(ctx)
	if err != nil {
		return nil, fmt.Errorf("list symbols: %w", err)
	}

	var out []contracts.SymbolMeta
	if tag == "" || tag == universeAll {
		out = stored
	} else {
		def, ok := cfg.Universe(tag)
		if !ok {
			return nil, fmt.Errorf("%q: %w", tag, strategyconfig.ErrUnknownUniverse)
		}
		if len(def.Symbols) > 0 {
			known := make(map[string]contracts.SymbolMeta, len(stored))
			for _, m := range stored {
				known[m.Symbol] = m
			}
			for _, sym := range def.Symbols {
				sym = strings.ToUpper(strings.TrimSpace(sym))
				if m, ok := known[sym]; ok {
					out = append(out, m)
				} else if sym != "" {
					out = append(out, contracts.SymbolMeta{Symbol: sym})
				}
			}
		} else {
			out = def.Filter(stored)
		}
	}

	if len(out) == 0 {
		return nil, fmt.Errorf("universe %q: %w", tag, strategyconfig.ErrEmptyUniverse)
	}
	return out, nil
}

// load reads every series once, with enough lookback for the first day's factors
func (e *Engine) load(ctx context.Context, cfg *strategyconfig.Config, universe []contracts.SymbolMeta, from, to time.Time, gated bool) (Dataset, error) {
	lookFrom := from.AddDate(0, 0, -cfg.Scan.LookbackDays)
	data := Dataset{
		Bars:      make(map[string][]contracts.Bar, len(universe)),
		Earnings:  make(map[string][]contracts.EarningsRecord, len(universe)),
		Ownership: make(map[string][]contracts.OwnershipRecord, len(universe)),
		Meta:      make(map[string]contracts.SymbolMeta, len(universe)),
	}

	for _, m := range universe {
		bars, err := e.store.GetBars(ctx, m.Symbol, lookFrom, to)
		if err != nil {
			return Dataset{}, fmt.Errorf("load bars %s: %w", m.Symbol, err)
		}
		if len(bars) == 0 {
			continue
		}
		earnings, err := e.store.GetEarnings(ctx, m.Symbol)
		if err != nil {
			return Dataset{}, fmt.Errorf("load earnings %s: %w", m.Symbol, err)
		}
		ownership, err := e.store.GetOwnership(ctx, m.Symbol)
		if err != nil {
			return Dataset{}, fmt.Errorf("load ownership %s: %w", m.Symbol, err)
		}

		data.Bars[m.Symbol] = contracts.SortBars(bars)
		data.Earnings[m.Symbol] = contracts.SortEarnings(earnings)
		data.Ownership[m.Symbol] = contracts.SortOwnership(ownership)
		data.Meta[m.Symbol] = m
	}

	if gated && cfg.MarketGate.Ticker != "" {
		data.Benchmark = e.benchmark(ctx, cfg.MarketGate, lookFrom, from, to)
	}

	return data, nil
}

// benchmark reads the gate's index series from the store and backfills it
// from the index source when the stored bars cannot judge every day of
// [from, to]. A missing benchmark fails the gate open.
func (e *Engine) benchmark(ctx context.Context, gate strategyconfig.MarketGate, lookFrom, from, to time.Time) []contracts.Bar {
	ticker := gate.Ticker
	log := e.logger.WithField("ticker", ticker)

	bars, err := e.store.GetBars(ctx, ticker, lookFrom, to)
	if err != nil {
		log.WithError(err).Warn("Benchmark bars unavailable in store")
		bars = nil
	}
	bars = contracts.SortBars(bars)
	if covers(bars, gate.LongMA, from, to) || e.index == nil {
		return bars
	}

	fetched, err := e.index.GetIndexBars(ctx, ticker, lookFrom, to)
	if err != nil || len(fetched) == 0 {
		log.WithError(err).WithField("stored", len(bars)).Warn("Benchmark backfill failed")
		return bars
	}
	if err := e.store.UpsertBars(ctx, ticker, fetched); err != nil {
		log.WithError(err).Warn("Failed to store benchmark bars")
		return contracts.SortBars(fetched)
	}

	merged, err := e.store.GetBars(ctx, ticker, lookFrom, to)
	if err != nil {
		return contracts.SortBars(fetched)
	}
	log.WithFields(map[string]interface{}{
		"stored":  len(bars),
		"fetched": len(fetched),
	}).Info("Benchmark backfilled")
	return contracts.SortBars(merged)
}

// covers reports whether ascending bars hold a full long window on from and
// reach to, up to holiday gaps
func covers(bars []contracts.Bar, longMA int, from, to time.Time) bool {
	if len(bars) == 0 || len(contracts.BarsThrough(bars, from)) < longMA {
		return false
	}
	return !bars[len(bars)-1].Date.Before(to.AddDate(0, 0, -benchmarkSlackDays))
}
