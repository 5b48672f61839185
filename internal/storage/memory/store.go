// Package memory is an in-memory storage.Store used by tests and STORE_BACKEND=memory.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/wonny/canslim/internal/contracts"
	"github.com/wonny/canslim/internal/storage"
)

// Store is an in-memory implementation of storage.Store.
// All returned slices are copies; callers may mutate them freely.
type Store struct {
	mu sync.RWMutex

	bars      map[string]map[time.Time]contracts.Bar
	earnings  map[string]map[time.Time]contracts.EarningsRecord
	ownership map[string]map[time.Time]contracts.OwnershipRecord
	symbols   []contracts.SymbolMeta

	runs       map[string]contracts.ScanRun
	runResults map[string][]contracts.ScoreResult
	liveRunID  string
	live       []contracts.ScoreResult

	backtests map[string]contracts.BacktestReport
}

// New creates an empty store
func New() *Store {
	return &Store{
		bars:       make(map[string]map[time.Time]contracts.Bar),
		earnings:   make(map[string]map[time.Time]contracts.EarningsRecord),
		ownership:  make(map[string]map[time.Time]contracts.OwnershipRecord),
		runs:       make(map[string]contracts.ScanRun),
		runResults: make(map[string][]contracts.ScoreResult),
		backtests:  make(map[string]contracts.BacktestReport),
	}
}

// Compile-time interface check.
var _ storage.Store = (*Store)(nil)

// Ping always succeeds
func (s *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op
func (s *Store) Close() error { return nil }

// === bars ===

// UpsertBars stores bars by date; a later write for the same date replaces the earlier one
func (s *Store) UpsertBars(_ context.Context, symbol string, bars []contracts.Bar) error {
	if symbol == "" {
		return storage.ErrInvalidInput
	}
	if len(bars) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	byDate, ok := s.bars[symbol]
	if !ok {
		byDate = make(map[time.Time]contracts.Bar, len(bars))
		s.bars[symbol] = byDate
	}
	for _, b := range bars {
		b.Date = contracts.Day(b.Date)
		byDate[b.Date] = b
	}
	return nil
}

// GetBars returns bars in [from, to] ascending; zero bounds are open
func (s *Store) GetBars(_ context.Context, symbol string, from, to time.Time) ([]contracts.Bar, error) {
	if !from.IsZero() && !to.IsZero() && to.Before(from) {
		return nil, storage.ErrInvalidInput
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]contracts.Bar, 0, len(s.bars[symbol]))
	for d, b := range s.bars[symbol] {
		if !from.IsZero() && d.Before(contracts.Day(from)) {
			continue
		}
		if !to.IsZero() && d.After(contracts.Day(to)) {
			continue
		}
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

// LatestBarDates returns the newest bar date per symbol that has bars
func (s *Store) LatestBarDates(_ context.Context, symbols []string) (map[string]time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]time.Time, len(symbols))
	for _, sym := range symbols {
		var latest time.Time
		for d := range s.bars[sym] {
			if d.After(latest) {
				latest = d
			}
		}
		if !latest.IsZero() {
			out[sym] = latest
		}
	}
	return out, nil
}

// BarRange returns the earliest and latest stored bar dates
func (s *Store) BarRange(_ context.Context) (time.Time, time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var from, to time.Time
	for _, byDate := range s.bars {
		for d := range byDate {
			if from.IsZero() || d.Before(from) {
				from = d
			}
			if d.After(to) {
				to = d
			}
		}
	}
	if from.IsZero() {
		return time.Time{}, time.Time{}, storage.ErrNotFound
	}
	return from, to, nil
}

// === fundamentals ===

// UpsertEarnings stores records keyed by quarter end
func (s *Store) UpsertEarnings(_ context.Context, symbol string, records []contracts.EarningsRecord) error {
	if symbol == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	byQuarter, ok := s.earnings[symbol]
	if !ok {
		byQuarter = make(map[time.Time]contracts.EarningsRecord, len(records))
		s.earnings[symbol] = byQuarter
	}
	for _, r := range records {
		r.Symbol = symbol
		r.QuarterEnd = contracts.Day(r.QuarterEnd)
		byQuarter[r.QuarterEnd] = r
	}
	return nil
}

// GetEarnings returns records ascending by quarter end
func (s *Store) GetEarnings(_ context.Context, symbol string) ([]contracts.EarningsRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]contracts.EarningsRecord, 0, len(s.earnings[symbol]))
	for _, r := range s.earnings[symbol] {
		out = append(out, r)
	}
	return contracts.SortEarnings(out), nil
}

// UpsertOwnership stores observations keyed by date
func (s *Store) UpsertOwnership(_ context.Context, symbol string, records []contracts.OwnershipRecord) error {
	if symbol == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	byDate, ok := s.ownership[symbol]
	if !ok {
		byDate = make(map[time.Time]contracts.OwnershipRecord, len(records))
		s.ownership[symbol] = byDate
	}
	for _, r := range records {
		r.Symbol = symbol
		r.Date = contracts.Day(r.Date)
		byDate[r.Date] = r
	}
	return nil
}

// GetOwnership returns observations ascending by date
func (s *Store) GetOwnership(_ context.Context, symbol string) ([]contracts.OwnershipRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]contracts.OwnershipRecord, 0, len(s.ownership[symbol]))
	for _, r := range s.ownership[symbol] {
		out = append(out, r)
	}
	return contracts.SortOwnership(out), nil
}

// === universe ===

// ReplaceSymbols replaces the stored universe wholesale
func (s *Store) ReplaceSymbols(_ context.Context, symbols []contracts.SymbolMeta) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.symbols = append([]contracts.SymbolMeta(nil), symbols...)
	sort.Slice(s.symbols, func(i, j int) bool { return s.symbols[i].Symbol < s.symbols[j].Symbol })
	return nil
}

// ListSymbols returns the stored universe sorted by symbol
func (s *Store) ListSymbols(_ context.Context) ([]contracts.SymbolMeta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]contracts.SymbolMeta(nil), s.symbols...), nil
}
