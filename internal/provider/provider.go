// Package provider assembles market data providers from small data sources,
// wraps them with rate limiting, circuit breaking and caching, and keeps a
// name-keyed registry the scanner and CLI resolve against.
package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wonny/canslim/internal/contracts"
)

var (
	// ErrUnknownProvider is returned when a name is not registered
	ErrUnknownProvider = errors.New("unknown provider")
	// ErrCapabilityUnsupported is returned when a provider lacks the requested data
	ErrCapabilityUnsupported = errors.New("capability not supported")
)

// BarSource serves daily OHLCV bars
type BarSource interface {
	GetOHLCV(ctx context.Context, symbols []string, from, to time.Time) (map[string][]contracts.Bar, error)
}

// UniverseSource lists tradable symbols
type UniverseSource interface {
	GetUniverse(ctx context.Context) ([]contracts.SymbolMeta, error)
}

// EarningsSource serves quarterly fundamentals
type EarningsSource interface {
	GetQuarterlyEPS(ctx context.Context, symbols []string) (map[string][]contracts.EarningsRecord, error)
}

// OwnershipSource serves institutional ownership observations
type OwnershipSource interface {
	GetOwnership(ctx context.Context, symbols []string) (map[string][]contracts.OwnershipRecord, error)
}

// Pinger is implemented by sources that can check reachability
type Pinger interface {
	Ping(ctx context.Context) error
}

// Sources are the parts a Composite is built from; nil parts are unsupported
type Sources struct {
	Bars      BarSource
	Index     contracts.IndexSource
	Universe  UniverseSource
	Earnings  EarningsSource
	Ownership OwnershipSource
}

// Composite is a MarketDataProvider whose capabilities are exactly the
// non-nil sources it was built with.
type Composite struct {
	name string
	src  Sources
}

// NewComposite builds a provider from sources
func NewComposite(name string, src Sources) *Composite {
	return &Composite{name: name, src: src}
}

var _ contracts.MarketDataProvider = (*Composite)(nil)

// Name returns the registry name
func (c *Composite) Name() string { return c.name }

// Capabilities reports which sources are present
func (c *Composite) Capabilities() contracts.Capabilities {
	return contracts.Capabilities{
		Universe:  c.src.Universe != nil,
		Bars:      c.src.Bars != nil,
		IndexBars: c.src.Index != nil,
		Earnings:  c.src.Earnings != nil,
		Ownership: c.src.Ownership != nil,
	}
}

// GetUniverse delegates to the universe source
func (c *Composite) GetUniverse(ctx context.Context) ([]contracts.SymbolMeta, error) {
	if c.src.Universe == nil {
		return nil, c.unsupported("universe")
	}
	return c.src.Universe.GetUniverse(ctx)
}

// GetOHLCV delegates to the bar source
func (c *Composite) GetOHLCV(ctx context.Context, symbols []string, from, to time.Time) (map[string][]contracts.Bar, error) {
	if c.src.Bars == nil {
		return nil, c.unsupported("bars")
	}
	return c.src.Bars.GetOHLCV(ctx, symbols, from, to)
}

// GetQuarterlyEPS delegates to the earnings source
func (c *Composite) GetQuarterlyEPS(ctx context.Context, symbols []string) (map[string][]contracts.EarningsRecord, error) {
	if c.src.Earnings == nil {
		return nil, c.unsupported("earnings")
	}
	return c.src.Earnings.GetQuarterlyEPS(ctx, symbols)
}

// GetOwnership delegates to the ownership source
func (c *Composite) GetOwnership(ctx context.Context, symbols []string) (map[string][]contracts.OwnershipRecord, error) {
	if c.src.Ownership == nil {
		return nil, c.unsupported("ownership")
	}
	return c.src.Ownership.GetOwnership(ctx, symbols)
}

// GetIndexBars delegates to the index source
func (c *Composite) GetIndexBars(ctx context.Context, ticker string, from, to time.Time) ([]contracts.Bar, error) {
	if c.src.Index == nil {
		return nil, c.unsupported("index bars")
	}
	return c.src.Index.GetIndexBars(ctx, ticker, from, to)
}

// TestConnection pings every distinct source that can be pinged
func (c *Composite) TestConnection(ctx context.Context) bool {
	return c.Ping(ctx) == nil
}

// Ping returns the joined errors of every pingable source
func (c *Composite) Ping(ctx context.Context) error {
	seen := make(map[any]bool)
	var errs []error
	for _, s := range []any{c.src.Bars, c.src.Index, c.src.Universe, c.src.Earnings, c.src.Ownership} {
		p, ok := s.(Pinger)
		if !ok || seen[s] {
			continue
		}
		seen[s] = true
		if err := p.Ping(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (c *Composite) unsupported(what string) error {
	return fmt.Errorf("%s: %s: %w", c.name, what, ErrCapabilityUnsupported)
}
