// Package storage defines the persistent store contracts the scanner and
// backtest depend on. Engines live in subpackages (memory, postgres, clickhouse).
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/wonny/canslim/internal/contracts"
)

var (
	// ErrNotFound is returned when a requested record does not exist
	ErrNotFound = errors.New("not found")
	// ErrInvalidInput is returned for malformed arguments (empty ids, inverted ranges)
	ErrInvalidInput = errors.New("invalid input")
)

// BarStore persists daily bars keyed by (symbol, date)
type BarStore interface {
	// UpsertBars inserts or replaces bars; the latest write for a date wins
	UpsertBars(ctx context.Context, symbol string, bars []contracts.Bar) error
	// GetBars returns bars in [from, to] ascending by date. Zero bounds are open.
	GetBars(ctx context.Context, symbol string, from, to time.Time) ([]contracts.Bar, error)
	// LatestBarDates returns the newest stored bar date per symbol; symbols without bars are absent
	LatestBarDates(ctx context.Context, symbols []string) (map[string]time.Time, error)
	// BarRange returns the earliest and latest bar dates across all symbols, ErrNotFound when empty
	BarRange(ctx context.Context) (from, to time.Time, err error)
}

// FundamentalStore persists quarterly earnings and ownership observations
type FundamentalStore interface {
	UpsertEarnings(ctx context.Context, symbol string, records []contracts.EarningsRecord) error
	GetEarnings(ctx context.Context, symbol string) ([]contracts.EarningsRecord, error)
	UpsertOwnership(ctx context.Context, symbol string, records []contracts.OwnershipRecord) error
	GetOwnership(ctx context.Context, symbol string) ([]contracts.OwnershipRecord, error)
}

// UniverseStore persists symbol metadata; a refresh replaces it wholesale
type UniverseStore interface {
	ReplaceSymbols(ctx context.Context, symbols []contracts.SymbolMeta) error
	ListSymbols(ctx context.Context) ([]contracts.SymbolMeta, error)
}

// ScanStore persists scan runs, their results and the live accumulator
type ScanStore interface {
	CreateRun(ctx context.Context, run contracts.ScanRun) error
	FinishRun(ctx context.Context, id string, outcome contracts.RunOutcome) error
	GetRun(ctx context.Context, id string) (*contracts.ScanRun, error)
	// ListRuns returns runs newest first; limit <= 0 means all
	ListRuns(ctx context.Context, limit int) ([]contracts.ScanRun, error)

	// ReplaceLiveResults swaps the live result set in one step; readers never see a partial set
	ReplaceLiveResults(ctx context.Context, runID string, results []contracts.ScoreResult) error
	GetLiveResults(ctx context.Context) (runID string, results []contracts.ScoreResult, err error)

	SaveRunResults(ctx context.Context, runID string, results []contracts.ScoreResult) error
	GetRunResults(ctx context.Context, runID string) ([]contracts.ScoreResult, error)

	// DeleteRunsBefore removes runs started before cutoff together with their results
	DeleteRunsBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// BacktestStore appends backtest reports
type BacktestStore interface {
	SaveBacktest(ctx context.Context, report *contracts.BacktestReport) error
	GetBacktest(ctx context.Context, id string) (*contracts.BacktestReport, error)
	// ListBacktests returns reports newest first without trades or equity curve
	ListBacktests(ctx context.Context, limit int) ([]contracts.BacktestReport, error)
}

// Store is the full persistent store
// ⭐ SSOT: 스캐너/백테스트의 영속 계층 인터페이스
type Store interface {
	BarStore
	FundamentalStore
	UniverseStore
	ScanStore
	BacktestStore
	Ping(ctx context.Context) error
	Close() error
}

// Composite routes bar traffic to a dedicated BarStore (e.g. the ClickHouse
// archive) and everything else to Base.
type Composite struct {
	Store
	Bars BarStore
}

// NewComposite returns base with bars served by bars; a nil bars returns base unchanged
func NewComposite(base Store, bars BarStore) Store {
	if bars == nil {
		return base
	}
	return &Composite{Store: base, Bars: bars}
}

// UpsertBars writes to the bar store
func (c *Composite) UpsertBars(ctx context.Context, symbol string, bars []contracts.Bar) error {
	return c.Bars.UpsertBars(ctx, symbol, bars)
}

// GetBars reads from the bar store
func (c *Composite) GetBars(ctx context.Context, symbol string, from, to time.Time) ([]contracts.Bar, error) {
	return c.Bars.GetBars(ctx, symbol, from, to)
}

// LatestBarDates reads from the bar store
func (c *Composite) LatestBarDates(ctx context.Context, symbols []string) (map[string]time.Time, error) {
	return c.Bars.LatestBarDates(ctx, symbols)
}

// BarRange reads from the bar store
func (c *Composite) BarRange(ctx context.Context) (time.Time, time.Time, error) {
	return c.Bars.BarRange(ctx)
}

// Close closes the base store and the bar store when it is closable
func (c *Composite) Close() error {
	var errs []error
	if closer, ok := c.Bars.(interface{ Close() error }); ok {
		errs = append(errs, closer.Close())
	}
	errs = append(errs, c.Store.Close())
	return errors.Join(errs...)
}
