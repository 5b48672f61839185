package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/wonny/canslim/internal/contracts"
	"github.com/wonny/canslim/pkg/logger"
	"github.com/wonny/canslim/pkg/telemetry"
)

// GuardConfig tunes the limiter and breaker around one provider
type GuardConfig struct {
	RatePerSecond float64
	Burst         int
	MaxFailures   uint32        // consecutive failures that open the breaker
	OpenTimeout   time.Duration // how long the breaker stays open
}

// Guarded throttles calls to a provider and trips a circuit breaker after
// repeated whole-call failures. Partial multi-symbol failures keep their data,
// are logged, and do not count against the breaker.
type Guarded struct {
	inner   contracts.MarketDataProvider
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	metrics *telemetry.Metrics
	logger  *logger.Logger
}

// NewGuarded wraps inner; metrics may be nil
func NewGuarded(inner contracts.MarketDataProvider, cfg GuardConfig, m *telemetry.Metrics, log *logger.Logger) *Guarded {
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = 4
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = 5
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = time.Minute
	}

	log = log.WithField("provider", inner.Name())
	settings := gobreaker.Settings{
		Name:    inner.Name(),
		Timeout: cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
		IsSuccessful: func(err error) bool {
			// caller cancellation and missing capabilities say nothing about provider health
			return err == nil ||
				errors.Is(err, context.Canceled) ||
				errors.Is(err, ErrCapabilityUnsupported)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.WithFields(map[string]interface{}{
				"from": from.String(),
				"to":   to.String(),
			}).Warn("Provider circuit breaker state changed")
		},
	}

	return &Guarded{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.Burst),
		breaker: gobreaker.NewCircuitBreaker(settings),
		metrics: m,
		logger:  log,
	}
}

var _ contracts.MarketDataProvider = (*Guarded)(nil)

// Name returns the inner provider name
func (g *Guarded) Name() string { return g.inner.Name() }

// Capabilities returns the inner provider capabilities
func (g *Guarded) Capabilities() contracts.Capabilities { return g.inner.Capabilities() }

// BreakerState reports the circuit breaker state (closed, half-open, open)
func (g *Guarded) BreakerState() string { return g.breaker.State().String() }

// GetUniverse fetches the universe through the guard
func (g *Guarded) GetUniverse(ctx context.Context) ([]contracts.SymbolMeta, error) {
	return guard(ctx, g, "universe", func() ([]contracts.SymbolMeta, error) {
		return g.inner.GetUniverse(ctx)
	})
}

// GetOHLCV fetches bars through the guard
func (g *Guarded) GetOHLCV(ctx context.Context, symbols []string, from, to time.Time) (map[string][]contracts.Bar, error) {
	return guardPartial(ctx, g, "bars", func() (map[string][]contracts.Bar, error) {
		return g.inner.GetOHLCV(ctx, symbols, from, to)
	})
}

// GetQuarterlyEPS fetches earnings through the guard
func (g *Guarded) GetQuarterlyEPS(ctx context.Context, symbols []string) (map[string][]contracts.EarningsRecord, error) {
	return guardPartial(ctx, g, "earnings", func() (map[string][]contracts.EarningsRecord, error) {
		return g.inner.GetQuarterlyEPS(ctx, symbols)
	})
}

// GetOwnership fetches ownership through the guard
func (g *Guarded) GetOwnership(ctx context.Context, symbols []string) (map[string][]contracts.OwnershipRecord, error) {
	return guardPartial(ctx, g, "ownership", func() (map[string][]contracts.OwnershipRecord, error) {
		return g.inner.GetOwnership(ctx, symbols)
	})
}

// GetIndexBars fetches benchmark bars through the guard
func (g *Guarded) GetIndexBars(ctx context.Context, ticker string, from, to time.Time) ([]contracts.Bar, error) {
	return guard(ctx, g, "index_bars", func() ([]contracts.Bar, error) {
		return g.inner.GetIndexBars(ctx, ticker, from, to)
	})
}

// TestConnection bypasses the limiter and breaker
func (g *Guarded) TestConnection(ctx context.Context) bool {
	return g.inner.TestConnection(ctx)
}

func guard[T any](ctx context.Context, g *Guarded, op string, fn func() (T, error)) (T, error) {
	var zero T
	if err := g.limiter.Wait(ctx); err != nil {
		return zero, fmt.Errorf("%s %s: rate limit wait: %w", g.Name(), op, err)
	}

	out, err := g.breaker.Execute(func() (interface{}, error) {
		return fn()
	})
	g.metrics.ObserveProviderCall(g.Name(), op, err)
	if err != nil {
		g.logger.WithError(err).WithField("op", op).Warn("Provider call failed")
		return zero, fmt.Errorf("%s %s: %w", g.Name(), op, err)
	}
	return out.(T), nil
}

// guardPartial treats a multi-symbol call that returned any data as a breaker
// success and hands the partial error back to the caller.
func guardPartial[M ~map[string]V, V any](ctx context.Context, g *Guarded, op string, fn func() (M, error)) (M, error) {
	var partial error
	out, err := guard(ctx, g, op, func() (M, error) {
		data, err := fn()
		if err != nil && len(data) > 0 {
			partial = err
			return data, nil
		}
		return data, err
	})
	if err != nil {
		return nil, err
	}
	if partial != nil {
		g.logger.WithError(partial).WithFields(map[string]interface{}{
			"op":      op,
			"fetched": len(out),
		}).Warn("Provider call partially failed")
		return out, fmt.Errorf("%s %s: %w", g.Name(), op, partial)
	}
	return out, nil
}
