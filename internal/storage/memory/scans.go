package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/wonny/canslim/internal/contracts"
	"github.com/wonny/canslim/internal/storage"
)

// CreateRun records a new run; ids must be unique
func (s *Store) CreateRun(_ context.Context, run contracts.ScanRun) error {
	if run.ID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.runs[run.ID]; exists {
		return fmt.Errorf("run %s already exists: %w", run.ID, storage.ErrInvalidInput)
	}
	s.runs[run.ID] = run
	return nil
}

// FinishRun writes the lifecycle fields of a run
func (s *Store) FinishRun(_ context.Context, id string, outcome contracts.RunOutcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.runs[id]
	if !ok {
		return storage.ErrNotFound
	}
	finished := outcome.FinishedAt
	run.Status = outcome.Status
	run.FinishedAt = &finished
	run.ResultCount = outcome.ResultCount
	run.Error = outcome.Error
	s.runs[id] = run
	return nil
}

// GetRun returns one run
func (s *Store) GetRun(_ context.Context, id string) (*contracts.ScanRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &run, nil
}

// ListRuns returns runs newest first
func (s *Store) ListRuns(_ context.Context, limit int) ([]contracts.ScanRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]contracts.ScanRun, 0, len(s.runs))
	for _, r := range s.runs {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].StartedAt.After(out[j].StartedAt)
		}
		return out[i].ID > out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ReplaceLiveResults swaps the live set under the write lock
func (s *Store) ReplaceLiveResults(_ context.Context, runID string, results []contracts.ScoreResult) error {
	copied := append([]contracts.ScoreResult(nil), results...)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.liveRunID = runID
	s.live = copied
	return nil
}

// GetLiveResults returns the live set and the run that produced it
func (s *Store) GetLiveResults(_ context.Context) (string, []contracts.ScoreResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.liveRunID, append([]contracts.ScoreResult(nil), s.live...), nil
}

// SaveRunResults stores the final results of a run
func (s *Store) SaveRunResults(_ context.Context, runID string, results []contracts.ScoreResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.runs[runID]; !ok {
		return storage.ErrNotFound
	}
	s.runResults[runID] = append([]contracts.ScoreResult(nil), results...)
	return nil
}

// GetRunResults returns the stored results of a run
func (s *Store) GetRunResults(_ context.Context, runID string) ([]contracts.ScoreResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.runs[runID]; !ok {
		return nil, storage.ErrNotFound
	}
	return append([]contracts.ScoreResult(nil), s.runResults[runID]...), nil
}

// DeleteRunsBefore drops runs started before cutoff and their results
func (s *Store) DeleteRunsBefore(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	deleted := 0
	for id, r := range s.runs {
		if r.StartedAt.Before(cutoff) {
			delete(s.runs, id)
			delete(s.runResults, id)
			deleted++
		}
	}
	return deleted, nil
}

// === backtests ===

// SaveBacktest appends a report
func (s *Store) SaveBacktest(_ context.Context, report *contracts.BacktestReport) error {
	if report == nil || report.ID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.backtests[report.ID]; exists {
		return fmt.Errorf("backtest %s already exists: %w", report.ID, storage.ErrInvalidInput)
	}
	s.backtests[report.ID] = cloneReport(*report)
	return nil
}

// GetBacktest returns one report
func (s *Store) GetBacktest(_ context.Context, id string) (*contracts.BacktestReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.backtests[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	out := cloneReport(r)
	return &out, nil
}

// ListBacktests returns report headers newest first
func (s *Store) ListBacktests(_ context.Context, limit int) ([]contracts.BacktestReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]contracts.BacktestReport, 0, len(s.backtests))
	for _, r := range s.backtests {
		r.Trades = nil
		r.EquityCurve = nil
		r.PerSymbol = nil
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func cloneReport(r contracts.BacktestReport) contracts.BacktestReport {
	r.Trades = append([]contracts.Trade(nil), r.Trades...)
	r.EquityCurve = append([]contracts.EquityPoint(nil), r.EquityCurve...)
	r.PerSymbol = append([]contracts.SymbolStats(nil), r.PerSymbol...)
	return r
}
