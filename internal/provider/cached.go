package provider

import (
	"context"
	"errors"
	"time"

	"github.com/wonny/canslim/internal/contracts"
	"github.com/wonny/canslim/pkg/logger"
	"github.com/wonny/canslim/pkg/redis"
)

// Cached memoises the slow-moving provider data in Redis: the universe,
// benchmark index bars and quarterly earnings. Per-symbol OHLCV is never
// cached here; the store already is the bar cache.
// A disabled Redis client turns every method into a pass-through.
type Cached struct {
	contracts.MarketDataProvider
	cache  *redis.Cache
	logger *logger.Logger
}

// NewCached wraps inner with the given cache
func NewCached(inner contracts.MarketDataProvider, cache *redis.Cache, log *logger.Logger) *Cached {
	return &Cached{
		MarketDataProvider: inner,
		cache:              cache,
		logger:             log.WithField("provider", inner.Name()),
	}
}

// GetUniverse serves the universe from cache for a day
func (c *Cached) GetUniverse(ctx context.Context) ([]contracts.SymbolMeta, error) {
	var out []contracts.SymbolMeta
	err := c.cache.GetOrSet(ctx, redis.UniverseKey(c.Name()), &out, redis.TTLDaily, func() (interface{}, error) {
		return c.MarketDataProvider.GetUniverse(ctx)
	})
	return out, err
}

// GetIndexBars serves benchmark bars from cache for a few minutes
func (c *Cached) GetIndexBars(ctx context.Context, ticker string, from, to time.Time) ([]contracts.Bar, error) {
	var out []contracts.Bar
	key := redis.IndexBarsKey(c.Name(), ticker, from, to)
	err := c.cache.GetOrSet(ctx, key, &out, redis.TTLMedium, func() (interface{}, error) {
		return c.MarketDataProvider.GetIndexBars(ctx, ticker, from, to)
	})
	return out, err
}

// GetQuarterlyEPS reads each symbol from cache and fetches only the misses
func (c *Cached) GetQuarterlyEPS(ctx context.Context, symbols []string) (map[string][]contracts.EarningsRecord, error) {
	out := make(map[string][]contracts.EarningsRecord, len(symbols))
	var misses []string
	for _, sym := range symbols {
		var recs []contracts.EarningsRecord
		found, err := c.cache.Get(ctx, redis.EarningsKey(c.Name(), sym), &recs)
		if err != nil {
			c.logger.WithError(err).WithField("symbol", sym).Debug("Earnings cache read failed")
		}
		if found {
			out[sym] = recs
			continue
		}
		misses = append(misses, sym)
	}
	if len(misses) == 0 {
		return out, nil
	}

	fetched, fetchErr := c.MarketDataProvider.GetQuarterlyEPS(ctx, misses)
	for sym, recs := range fetched {
		out[sym] = recs
		if err := c.cache.Set(ctx, redis.EarningsKey(c.Name(), sym), recs, redis.TTLLong); err != nil {
			c.logger.WithError(err).WithField("symbol", sym).Debug("Earnings cache write failed")
		}
	}
	if fetchErr != nil && len(out) == 0 {
		return nil, fetchErr
	}
	return out, fetchErr
}

// Unwrap returns the wrapped provider
func (c *Cached) Unwrap() contracts.MarketDataProvider {
	return c.MarketDataProvider
}

// IsUnsupported reports whether err means the provider lacks the capability
func IsUnsupported(err error) bool {
	return errors.Is(err, ErrCapabilityUnsupported)
}
