package provider

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/wonny/canslim/internal/contracts"
)

// Static serves fixed in-memory data. It backs offline runs and tests.
// Symbols listed in Fail return that error instead of data; calls are counted.
type Static struct {
	ProviderName string
	Symbols      []contracts.SymbolMeta
	Bars         map[string][]contracts.Bar
	Index        map[string][]contracts.Bar
	Earnings     map[string][]contracts.EarningsRecord
	Ownership    map[string][]contracts.OwnershipRecord
	Fail         map[string]error
	Down         bool // every call fails

	mu    sync.Mutex
	calls map[string]int
}

var _ contracts.MarketDataProvider = (*Static)(nil)

// Name returns ProviderName or "static"
func (s *Static) Name() string {
	if s.ProviderName == "" {
		return "static"
	}
	return s.ProviderName
}

// Capabilities reports the populated data sets
func (s *Static) Capabilities() contracts.Capabilities {
	return contracts.Capabilities{
		Universe:  s.Symbols != nil,
		Bars:      s.Bars != nil,
		IndexBars: s.Index != nil,
		Earnings:  s.Earnings != nil,
		Ownership: s.Ownership != nil,
	}
}

// Calls returns how many times op was invoked
func (s *Static) Calls(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

func (s *Static) count(op string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.calls == nil {
		s.calls = make(map[string]int)
	}
	s.calls[op]++
	if s.Down {
		return fmt.Errorf("%s: provider down", s.Name())
	}
	return nil
}

// GetUniverse returns Symbols
func (s *Static) GetUniverse(_ context.Context) ([]contracts.SymbolMeta, error) {
	if err := s.count("universe"); err != nil {
		return nil, err
	}
	if s.Symbols == nil {
		return nil, ErrCapabilityUnsupported
	}
	return append([]contracts.SymbolMeta(nil), s.Symbols...), nil
}

// GetOHLCV returns bars in [from, to] per symbol
func (s *Static) GetOHLCV(_ context.Context, symbols []string, from, to time.Time) (map[string][]contracts.Bar, error) {
	if err := s.count("bars"); err != nil {
		return nil, err
	}
	if s.Bars == nil {
		return nil, ErrCapabilityUnsupported
	}

	out := make(map[string][]contracts.Bar, len(symbols))
	var errs []error
	for _, sym := range symbols {
		if err := s.Fail[sym]; err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", sym, err))
			continue
		}
		if bars, ok := s.Bars[sym]; ok {
			out[sym] = between(bars, from, to)
		}
	}
	return out, errors.Join(errs...)
}

// GetQuarterlyEPS returns Earnings per symbol
func (s *Static) GetQuarterlyEPS(_ context.Context, symbols []string) (map[string][]contracts.EarningsRecord, error) {
	if err := s.count("earnings"); err != nil {
		return nil, err
	}
	if s.Earnings == nil {
		return nil, ErrCapabilityUnsupported
	}

	out := make(map[string][]contracts.EarningsRecord, len(symbols))
	var errs []error
	for _, sym := range symbols {
		if err := s.Fail[sym]; err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", sym, err))
			continue
		}
		if recs, ok := s.Earnings[sym]; ok {
			out[sym] = append([]contracts.EarningsRecord(nil), recs...)
		}
	}
	return out, errors.Join(errs...)
}

// GetOwnership returns Ownership per symbol
func (s *Static) GetOwnership(_ context.Context, symbols []string) (map[string][]contracts.OwnershipRecord, error) {
	if err := s.count("ownership"); err != nil {
		return nil, err
	}
	if s.Ownership == nil {
		return nil, ErrCapabilityUnsupported
	}

	out := make(map[string][]contracts.OwnershipRecord, len(symbols))
	for _, sym := range symbols {
		if recs, ok := s.Ownership[sym]; ok {
			out[sym] = append([]contracts.OwnershipRecord(nil), recs...)
		}
	}
	return out, nil
}

// GetIndexBars returns Index[ticker] in [from, to]
func (s *Static) GetIndexBars(_ context.Context, ticker string, from, to time.Time) ([]contracts.Bar, error) {
	if err := s.count("index_bars"); err != nil {
		return nil, err
	}
	if s.Index == nil {
		return nil, ErrCapabilityUnsupported
	}
	return between(s.Index[ticker], from, to), nil
}

// TestConnection is false while Down
func (s *Static) TestConnection(_ context.Context) bool {
	return !s.Down
}

func between(bars []contracts.Bar, from, to time.Time) []contracts.Bar {
	out := make([]contracts.Bar, 0, len(bars))
	for _, b := range bars {
		if !from.IsZero() && b.Date.Before(contracts.Day(from)) {
			continue
		}
		if !to.IsZero() && b.Date.After(contracts.Day(to)) {
			continue
		}
		out = append(out, b)
	}
	return out
}
