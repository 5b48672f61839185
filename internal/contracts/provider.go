package contracts

import (
	"context"
	"time"
)

// Capabilities declares which optional data a provider can serve.
// Callers check these flags instead of probing for methods.
type Capabilities struct {
	Universe  bool `json:"universe"`
	Bars      bool `json:"bars"`
	IndexBars bool `json:"index_bars"`
	Earnings  bool `json:"earnings"`
	Ownership bool `json:"ownership"`
}

// MarketDataProvider is the market data collaborator the core depends on.
// Multi-symbol methods return whatever they could fetch together with a joined
// error describing the symbols that failed; partial data is still usable.
// ⭐ SSOT: 시세/재무 데이터 공급자 인터페이스
type MarketDataProvider interface {
	Name() string
	Capabilities() Capabilities
	GetUniverse(ctx context.Context) ([]SymbolMeta, error)
	GetOHLCV(ctx context.Context, symbols []string, from, to time.Time) (map[string][]Bar, error)
	GetQuarterlyEPS(ctx context.Context, symbols []string) (map[string][]EarningsRecord, error)
	GetOwnership(ctx context.Context, symbols []string) (map[string][]OwnershipRecord, error)
	GetIndexBars(ctx context.Context, ticker string, from, to time.Time) ([]Bar, error)
	TestConnection(ctx context.Context) bool
}

// IndexSource is the slice of a provider the market gate needs
type IndexSource interface {
	GetIndexBars(ctx context.Context, ticker string, from, to time.Time) ([]Bar, error)
}

// Clock supplies "now" so freshness checks and as-of cutoffs are deterministic
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock
type SystemClock struct{}

// Now returns time.Now in UTC
func (SystemClock) Now() time.Time { return time.Now().UTC() }

// FixedClock always returns T
type FixedClock struct {
	T time.Time
}

// Now returns the fixed instant
func (c FixedClock) Now() time.Time { return c.T }

// Day truncates t to its UTC calendar date
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
