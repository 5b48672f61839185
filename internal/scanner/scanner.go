// Package scanner runs incremental universe scans: stale data is refetched
// in fixed-size batches, every symbol is scored, and a fully sorted live
// result set is republished after each batch.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/wonny/canslim/internal/contracts"
	"github.com/wonny/canslim/internal/marketgate"
	"github.com/wonny/canslim/internal/metrics"
	"github.com/wonny/canslim/internal/provider"
	"github.com/wonny/canslim/internal/ratings"
	"github.com/wonny/canslim/internal/scoring"
	"github.com/wonny/canslim/internal/storage"
	"github.com/wonny/canslim/internal/strategyconfig"
	"github.com/wonny/canslim/pkg/logger"
	"github.com/wonny/canslim/pkg/telemetry"
)

var (
	// ErrScanInProgress rejects a start request while another run is active
	ErrScanInProgress = errors.New("scan already in progress")
	// ErrUnknownUniverse is returned for a universe tag that is not configured
	ErrUnknownUniverse = strategyconfig.ErrUnknownUniverse
	// ErrEmptyUniverse is returned when a tag resolves to no symbols
	ErrEmptyUniverse = strategyconfig.ErrEmptyUniverse
)

// Scanner states
const (
	StateIdle    = "idle"
	StateRunning = "running"
	StateFailed  = "failed"
)

const defaultBatchSize = 40

// run outcomes reported to telemetry
const (
	outcomeCompleted  = "completed"
	outcomeFailed     = "failed"
	outcomeGateClosed = "gate_closed"
)

// StrategySource returns the strategy bundle; it is called once per run
type StrategySource func() (*strategyconfig.Config, error)

// Deps are the scanner's collaborators
type Deps struct {
	Store      storage.Store
	Providers  *provider.Registry
	Strategy   StrategySource
	Clock      contracts.Clock
	Metrics    *telemetry.Metrics
	BatchDelay time.Duration
}

// Status is the observable scanner state
type Status struct {
	State         string             `json:"state"`
	RunID         string             `json:"run_id,omitempty"`
	Mode          contracts.ScanMode `json:"mode,omitempty"`
	Universe      string             `json:"universe,omitempty"`
	Provider      string             `json:"provider,omitempty"`
	StartedAt     *time.Time         `json:"started_at,omitempty"`
	FinishedAt    *time.Time         `json:"finished_at,omitempty"`
	BatchesTotal  int                `json:"batches_total"`
	BatchesDone   int                `json:"batches_done"`
	BatchesFailed int                `json:"batches_failed"`
	SymbolsTotal  int                `json:"symbols_total"`
	SymbolsScored int                `json:"symbols_scored"`
	LastError     string             `json:"last_error,omitempty"`
}

// Scanner orchestrates scan runs. At most one run is active at a time.
// ⭐ SSOT: 유니버스 스캔 실행/누적 결과는 여기서만
type Scanner struct {
	store      storage.Store
	providers  *provider.Registry
	strategy   StrategySource
	clock      contracts.Clock
	metrics    *telemetry.Metrics
	batchDelay time.Duration
	logger     *logger.Logger

	running atomic.Bool
	live    atomic.Pointer[Snapshot]

	mu     sync.Mutex
	status Status
	subs   map[chan *Snapshot]struct{}
}

// New creates a scanner
func New(deps Deps, log *logger.Logger) *Scanner {
	clock := deps.Clock
	if clock == nil {
		clock = contracts.SystemClock{}
	}
	strategy := deps.Strategy
	if strategy == nil {
		strategy = func() (*strategyconfig.Config, error) { return strategyconfig.Default(), nil }
	}
	return &Scanner{
		store:      deps.Store,
		providers:  deps.Providers,
		strategy:   strategy,
		clock:      clock,
		metrics:    deps.Metrics,
		batchDelay: deps.BatchDelay,
		logger:     log.WithField("component", "scanner"),
		status:     Status{State: StateIdle},
		subs:       make(map[chan *Snapshot]struct{}),
	}
}

// session is the state owned by one run
type session struct {
	run      contracts.ScanRun
	cfg      *strategyconfig.Config
	engine   *scoring.Engine
	provider contracts.MarketDataProvider
	universe []contracts.SymbolMeta
	meta     map[string]contracts.SymbolMeta
	now      time.Time
	log      *logger.Logger

	sample metrics.ReturnSample
	peers  map[string][]contracts.EarningsRecord
}

// Run executes a scan to completion and returns its run id
func (s *Scanner) Run(ctx context.Context, req contracts.ScanRequest) (string, error) {
	sess, err := s.prepare(ctx, req)
	if err != nil {
		return "", err
	}
	if err := s.execute(ctx, sess); err != nil {
		return sess.run.ID, err
	}
	return sess.run.ID, nil
}

// Start validates and records the run, then executes it in the background.
// ctx must outlive the request that triggered the scan.
func (s *Scanner) Start(ctx context.Context, req contracts.ScanRequest) (string, error) {
	sess, err := s.prepare(ctx, req)
	if err != nil {
		return "", err
	}
	go func() {
		if err := s.execute(ctx, sess); err != nil {
			sess.log.WithError(err).Error("Background scan failed")
		}
	}()
	return sess.run.ID, nil
}

// prepare validates the request, takes the single-flight guard and records
// the run. The guard is released on every error path.
func (s *Scanner) prepare(ctx context.Context, req contracts.ScanRequest) (sess *session, err error) {
	mode, err := contracts.ParseScanMode(string(req.Mode))
	if err != nil {
		return nil, err
	}
	p, err := s.providers.Get(req.Provider)
	if err != nil {
		return nil, err
	}
	cfg, err := s.strategy()
	if err != nil {
		return nil, fmt.Errorf("load strategy config: %w", err)
	}
	if err := checkUniverse(cfg, req.Universe); err != nil {
		return nil, err
	}

	if !s.running.CompareAndSwap(false, true) {
		return nil, ErrScanInProgress
	}
	defer func() {
		if err != nil {
			s.running.Store(false)
		}
	}()

	universe, err := s.resolveUniverse(ctx, cfg, req.Universe, p)
	if err != nil {
		return nil, err
	}

	snap, err := strategyconfig.NewSnapshot(cfg)
	if err != nil {
		return nil, fmt.Errorf("snapshot strategy config: %w", err)
	}

	now := s.clock.Now()
	gate := marketgate.New(cfg.MarketGate, s.logger).Evaluate(ctx, p, now)
	s.storeBenchmark(ctx, gate)

	tag := req.Universe
	if tag == "" {
		tag = UniverseAll
	}
	run := contracts.ScanRun{
		ID:            uuid.NewString(),
		StartedAt:     now,
		Universe:      tag,
		Provider:      p.Name(),
		Mode:          mode,
		ConfigVersion: snap.Version,
		ConfigHash:    snap.Hash,
		ConfigJSON:    snap.JSON,
		SymbolCount:   len(universe),
		GateOpen:      gate.Open,
		GateReason:    gate.Reason,
		Status:        contracts.RunStatusRunning,
	}
	if err := s.store.CreateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}

	sess = &session{
		run:      run,
		cfg:      cfg,
		engine:   scoring.NewEngine(cfg),
		provider: p,
		universe: universe,
		meta:     indexMeta(universe),
		now:      now,
		log:      s.logger.WithField("run_id", run.ID),
	}

	batches := (len(universe) + batchSize(cfg) - 1) / batchSize(cfg)
	if !gate.Open {
		batches = 0
	}
	s.setStatus(func(st *Status) {
		*st = Status{
			State:        StateRunning,
			RunID:        run.ID,
			Mode:         mode,
			Universe:     tag,
			Provider:     run.Provider,
			StartedAt:    &now,
			BatchesTotal: batches,
			SymbolsTotal: len(universe),
		}
	})
	s.metrics.SetScanInProgress(true)

	sess.log.WithFields(map[string]interface{}{
		"mode":      mode,
		"universe":  tag,
		"provider":  run.Provider,
		"symbols":   len(universe),
		"gate_open": gate.Open,
		"reason":    gate.Reason,
	}).Info("Scan started")
	return sess, nil
}

// execute runs every batch and finalises the run; it always releases the guard
func (s *Scanner) execute(ctx context.Context, sess *session) error {
	defer func() {
		s.running.Store(false)
		s.metrics.SetScanInProgress(false)
	}()

	acc := emptySnapshot(sess.run.ID, sess.now)
	if err := s.publish(ctx, acc); err != nil {
		return s.finish(ctx, sess, acc, 0, 0, fmt.Errorf("reset live results: %w", err))
	}

	if !sess.run.GateOpen {
		sess.log.WithField("reason", sess.run.GateReason).Info("Market gate closed: recording empty run")
		s.metrics.ObserveScanRun(outcomeGateClosed)
		return s.finish(ctx, sess, acc, 0, 0, nil)
	}

	if err := s.loadSample(ctx, sess); err != nil {
		return s.finish(ctx, sess, acc, 0, 0, err)
	}

	batches := chunk(symbolsOf(sess.universe), batchSize(sess.cfg))
	failed := 0
	for i, batch := range batches {
		if i > 0 && !sleepCtx(ctx, s.batchDelay) {
			return s.finish(ctx, sess, acc, i, failed, ctx.Err())
		}

		started := time.Now()
		next, err := s.processBatch(ctx, sess, acc, batch)
		if next != nil {
			acc = next
		}

		outcome := "ok"
		if err != nil {
			failed++
			outcome = "failed"
			sess.log.WithError(err).WithFields(map[string]interface{}{
				"batch":   i + 1,
				"symbols": len(batch),
			}).Warn("Batch failed, continuing with next batch")
		}
		s.metrics.ObserveBatch(outcome, len(batch), time.Since(started))
		s.metrics.SetAccumulatorSize(acc.Len())

		s.setStatus(func(st *Status) {
			st.BatchesDone = i + 1
			st.BatchesFailed = failed
			st.SymbolsScored = acc.Len()
			if err != nil {
				st.LastError = err.Error()
			}
		})
		sess.log.WithFields(map[string]interface{}{
			"batch":     i + 1,
			"batches":   len(batches),
			"scored":    acc.Len(),
			"qualified": acc.Qualified(),
		}).Debug("Batch processed")
	}

	var runErr error
	if len(batches) > 0 && failed == len(batches) {
		runErr = fmt.Errorf("all %d batches failed", failed)
	}
	return s.finish(ctx, sess, acc, len(batches), failed, runErr)
}

// processBatch refreshes stale data, scores every symbol in the batch and
// publishes the merged accumulator. A non-nil snapshot is returned whenever
// scoring succeeded, even if persisting it failed.
func (s *Scanner) processBatch(ctx context.Context, sess *session, acc *Snapshot, batch []string) (*Snapshot, error) {
	stale, err := s.staleSymbols(ctx, sess, batch)
	if err != nil {
		return nil, err
	}
	if len(stale) > 0 {
		s.refresh(ctx, sess, stale)
	}

	results, err := s.scoreBatch(ctx, sess, batch)
	if err != nil {
		return nil, err
	}

	next := acc.Merge(results, s.clock.Now())
	if err := s.publish(ctx, next); err != nil {
		return next, fmt.Errorf("persist live results: %w", err)
	}
	return next, nil
}

// staleSymbols returns symbols with no bars or whose newest bar is older than
// the staleness window. Full mode treats every symbol as stale.
func (s *Scanner) staleSymbols(ctx context.Context, sess *session, batch []string) ([]string, error) {
	if sess.run.Mode == contracts.ScanModeFull {
		return batch, nil
	}

	latest, err := s.store.LatestBarDates(ctx, batch)
	if err != nil {
		return nil, fmt.Errorf("latest bar dates: %w", err)
	}

	cutoff := contracts.Day(sess.now).AddDate(0, 0, -sess.cfg.Scan.StaleAfterDays)
	var stale []string
	for _, sym := range batch {
		d, ok := latest[sym]
		if !ok || d.Before(cutoff) {
			stale = append(stale, sym)
		}
	}
	return stale, nil
}

// storeBenchmark keeps the gate's benchmark bars so backtests can replay
// the gate over stored history
func (s *Scanner) storeBenchmark(ctx context.Context, gate marketgate.Decision) {
	if gate.Ticker == "" || len(gate.Series) == 0 {
		return
	}
	if err := s.store.UpsertBars(ctx, gate.Ticker, gate.Series); err != nil {
		s.logger.WithError(err).WithField("ticker", gate.Ticker).Warn("Failed to store benchmark bars")
	}
}

// refresh fetches and stores data for stale symbols. Provider failures are
// logged and scoring proceeds on whatever is cached.
func (s *Scanner) refresh(ctx context.Context, sess *session, symbols []string) {
	p := sess.provider
	caps := p.Capabilities()
	from := sess.now.AddDate(0, 0, -sess.cfg.Scan.LookbackDays)

	if caps.Bars {
		bars, err := p.GetOHLCV(ctx, symbols, from, sess.now)
		if err != nil {
			sess.log.WithError(err).WithField("symbols", len(symbols)).Warn("Bar fetch incomplete, using cached data")
		}
		for sym, series := range bars {
			if len(series) == 0 {
				continue
			}
			if err := s.store.UpsertBars(ctx, sym, series); err != nil {
				sess.log.WithError(err).WithField("symbol", sym).Warn("Failed to store bars")
			}
		}
	}

	if caps.Earnings {
		earnings, err := p.GetQuarterlyEPS(ctx, symbols)
		if err != nil {
			sess.log.WithError(err).Warn("Earnings fetch incomplete, using cached data")
		}
		for sym, recs := range earnings {
			if err := s.store.UpsertEarnings(ctx, sym, recs); err != nil {
				sess.log.WithError(err).WithField("symbol", sym).Warn("Failed to store earnings")
			}
		}
	}

	if caps.Ownership {
		ownership, err := p.GetOwnership(ctx, symbols)
		if err != nil {
			sess.log.WithError(err).Warn("Ownership fetch incomplete, using cached data")
		}
		for sym, recs := range ownership {
			if err := s.store.UpsertOwnership(ctx, sym, recs); err != nil {
				sess.log.WithError(err).WithField("symbol", sym).Warn("Failed to store ownership")
			}
		}
	}
}

// loadSample builds the universe-wide return sample and peer fundamentals
// from the store before the first batch
func (s *Scanner) loadSample(ctx context.Context, sess *session) error {
	from := sess.now.AddDate(0, 0, -sess.cfg.Scan.LookbackDays)
	returns := make(map[string]float64, len(sess.universe))
	sess.peers = make(map[string][]contracts.EarningsRecord, len(sess.universe))

	for _, m := range sess.universe {
		bars, err := s.store.GetBars(ctx, m.Symbol, from, sess.now)
		if err != nil {
			return fmt.Errorf("load bars %s: %w", m.Symbol, err)
		}
		if ret, ok := metrics.TrailingReturn(contracts.BarsThrough(bars, sess.now)); ok {
			returns[m.Symbol] = ret
		}

		earnings, err := s.store.GetEarnings(ctx, m.Symbol)
		if err != nil {
			return fmt.Errorf("load earnings %s: %w", m.Symbol, err)
		}
		if len(earnings) > 0 {
			sess.peers[m.Symbol] = contracts.EarningsThrough(earnings, sess.now)
		}
	}

	sess.sample = metrics.NewReturnSample(returns)
	sess.log.WithField("sample", sess.sample.Len()).Debug("Return sample loaded")
	return nil
}

// scoreBatch reads each symbol's series as of now, folds the batch's fresh
// returns into the sample, then scores every symbol in the batch
func (s *Scanner) scoreBatch(ctx context.Context, sess *session, batch []string) ([]contracts.ScoreResult, error) {
	from := sess.now.AddDate(0, 0, -sess.cfg.Scan.LookbackDays)
	inputs := make([]metrics.Input, 0, len(batch))
	updates := make(map[string]float64)
	var drop []string

	for _, sym := range batch {
		bars, err := s.store.GetBars(ctx, sym, from, sess.now)
		if err != nil {
			return nil, fmt.Errorf("load bars %s: %w", sym, err)
		}
		earnings, err := s.store.GetEarnings(ctx, sym)
		if err != nil {
			return nil, fmt.Errorf("load earnings %s: %w", sym, err)
		}
		ownership, err := s.store.GetOwnership(ctx, sym)
		if err != nil {
			return nil, fmt.Errorf("load ownership %s: %w", sym, err)
		}

		in := metrics.Input{
			Symbol:    sym,
			Bars:      contracts.BarsThrough(bars, sess.now),
			Earnings:  contracts.EarningsThrough(earnings, sess.now),
			Ownership: contracts.OwnershipThrough(ownership, sess.now),
		}
		inputs = append(inputs, in)

		if ret, ok := metrics.TrailingReturn(in.Bars); ok {
			updates[sym] = ret
		} else {
			drop = append(drop, sym)
		}
		if len(in.Earnings) > 0 {
			sess.peers[sym] = in.Earnings
		}
	}

	sess.sample = sess.sample.With(updates, drop)
	industryRanks := ratings.IndustryRanks(sess.sample.Returns(), sess.meta)
	benchmark := ratings.NewFundamentalsBenchmark(sess.peers)

	results := make([]contracts.ScoreResult, 0, len(inputs))
	for _, in := range inputs {
		fs := metrics.Compute(in, sess.sample)
		aux := ratings.Calculate(ratings.Input{
			Symbol:       in.Symbol,
			Bars:         in.Bars,
			Earnings:     in.Earnings,
			Peers:        benchmark,
			IndustryRank: ratings.IndustryRankFor(in.Symbol, sess.meta, industryRanks),
		}, sess.sample)

		res := sess.engine.Score(in.Symbol, fs, aux, sess.now)
		m := sess.meta[in.Symbol]
		res.Name = m.Name
		res.Industry = m.Industry
		results = append(results, res)
	}
	return results, nil
}

// publish swaps the in-memory snapshot, notifies subscribers and persists it
// as one atomic replace
func (s *Scanner) publish(ctx context.Context, snap *Snapshot) error {
	s.live.Store(snap)
	s.notify(snap)
	return s.store.ReplaceLiveResults(ctx, snap.RunID, snap.Results)
}

// finish writes the run history and lifecycle outcome
func (s *Scanner) finish(ctx context.Context, sess *session, acc *Snapshot, batchesDone, failed int, runErr error) error {
	// the run record is written even when ctx was canceled
	writeCtx := context.WithoutCancel(ctx)
	finishedAt := s.clock.Now()

	var errs []error
	if runErr != nil {
		errs = append(errs, runErr)
	}
	if err := s.store.SaveRunResults(writeCtx, sess.run.ID, acc.Results); err != nil {
		errs = append(errs, fmt.Errorf("save run results: %w", err))
	}

	outcome := contracts.RunOutcome{
		Status:      contracts.RunStatusCompleted,
		FinishedAt:  finishedAt,
		ResultCount: acc.Len(),
	}
	if failed > 0 && runErr == nil {
		outcome.Error = fmt.Sprintf("%d of %d batches failed", failed, batchesDone)
	}
	if len(errs) > 0 {
		outcome.Status = contracts.RunStatusFailed
		outcome.Error = errors.Join(errs...).Error()
	}
	if err := s.store.FinishRun(writeCtx, sess.run.ID, outcome); err != nil {
		errs = append(errs, fmt.Errorf("finish run: %w", err))
	}

	finalErr := errors.Join(errs...)
	s.setStatus(func(st *Status) {
		st.FinishedAt = &finishedAt
		st.SymbolsScored = acc.Len()
		if finalErr != nil {
			st.State = StateFailed
			st.LastError = finalErr.Error()
		} else {
			st.State = StateIdle
		}
	})

	if sess.run.GateOpen {
		if finalErr != nil {
			s.metrics.ObserveScanRun(outcomeFailed)
		} else {
			s.metrics.ObserveScanRun(outcomeCompleted)
		}
	}

	fields := map[string]interface{}{
		"results":        acc.Len(),
		"qualified":      acc.Qualified(),
		"batches":        batchesDone,
		"batches_failed": failed,
		"duration":       finishedAt.Sub(sess.run.StartedAt).String(),
	}
	if finalErr != nil {
		sess.log.WithError(finalErr).WithFields(fields).Error("Scan failed")
	} else {
		sess.log.WithFields(fields).Info("Scan completed")
	}
	return finalErr
}

// Status returns a copy of the current scanner state
func (s *Scanner) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Running reports whether a run holds the guard
func (s *Scanner) Running() bool {
	return s.running.Load()
}

func (s *Scanner) setStatus(fn func(*Status)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.status)
}

// Live returns the current accumulator. After a restart, before any run in
// this process, it falls back to the stored live results.
func (s *Scanner) Live(ctx context.Context) (*Snapshot, error) {
	if snap := s.live.Load(); snap != nil {
		return snap, nil
	}
	runID, results, err := s.store.GetLiveResults(ctx)
	if err != nil {
		return nil, fmt.Errorf("get live results: %w", err)
	}
	return &Snapshot{RunID: runID, Results: results}, nil
}

// GetResults returns a run's ranked results. The active run answers from
// its live accumulator.
func (s *Scanner) GetResults(ctx context.Context, runID string) ([]contracts.ScoreResult, error) {
	if snap := s.live.Load(); snap != nil && snap.RunID == runID && s.running.Load() {
		return snap.Results, nil
	}
	if _, err := s.store.GetRun(ctx, runID); err != nil {
		return nil, err
	}
	return s.store.GetRunResults(ctx, runID)
}

// ListRuns returns run history newest first
func (s *Scanner) ListRuns(ctx context.Context, limit int) ([]contracts.ScanRun, error) {
	return s.store.ListRuns(ctx, limit)
}

// Subscribe returns a channel receiving each new snapshot. Slow readers
// only ever see the latest one. cancel must be called to release it.
func (s *Scanner) Subscribe() (<-chan *Snapshot, func()) {
	ch := make(chan *Snapshot, 1)
	s.mu.Lock()
	s.subs[ch] = struct{}{}
	s.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, ch)
			s.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

func (s *Scanner) notify(snap *Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.subs {
		select {
		case ch <- snap:
		default:
			// replace the unread snapshot with the newer one
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
			}
		}
	}
}

func symbolsOf(meta []contracts.SymbolMeta) []string {
	out := make([]string, len(meta))
	for i, m := range meta {
		out[i] = m.Symbol
	}
	return out
}

func batchSize(cfg *strategyconfig.Config) int {
	if cfg.Scan.BatchSize > 0 {
		return cfg.Scan.BatchSize
	}
	return defaultBatchSize
}

// chunk splits symbols into batches of at most size
func chunk(symbols []string, size int) [][]string {
	if size <= 0 {
		size = len(symbols)
	}
	var out [][]string
	for start := 0; start < len(symbols); start += size {
		end := start + size
		if end > len(symbols) {
			end = len(symbols)
		}
		out = append(out, symbols[start:end])
	}
	return out
}

// sleepCtx waits d or until ctx ends; false means ctx ended
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
