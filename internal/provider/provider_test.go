package provider

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/canslim/internal/contracts"
	"github.com/wonny/canslim/pkg/config"
	"github.com/wonny/canslim/pkg/logger"
	"github.com/wonny/canslim/pkg/redis"
	"github.com/wonny/canslim/pkg/telemetry"
)

var d0 = time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

type pingSource struct {
	*Static
	err error
}

func (p pingSource) Ping(context.Context) error { return p.err }

func fixture() *Static {
	return &Static{
		ProviderName: "fixture",
		Symbols:      []contracts.SymbolMeta{{Symbol: "AAA"}, {Symbol: "BBB"}},
		Bars: map[string][]contracts.Bar{
			"AAA": {{Date: d0, Close: 10}, {Date: d0.AddDate(0, 0, 1), Close: 11}},
			"BBB": {{Date: d0, Close: 20}},
		},
		Index:    map[string][]contracts.Bar{"SPY": {{Date: d0, Close: 400}}},
		Earnings: map[string][]contracts.EarningsRecord{"AAA": {{QuarterEnd: d0, EPS: 1}}},
	}
}

func TestCompositeCapabilities(t *testing.T) {
	ctx := context.Background()
	s := fixture()
	c := NewComposite("yahoo", Sources{Bars: s, Index: s})

	assert.Equal(t, contracts.Capabilities{Bars: true, IndexBars: true}, c.Capabilities())

	bars, err := c.GetOHLCV(ctx, []string{"AAA"}, d0, d0)
	require.NoError(t, err)
	assert.Len(t, bars["AAA"], 1)

	_, err = c.GetQuarterlyEPS(ctx, []string{"AAA"})
	assert.True(t, errors.Is(err, ErrCapabilityUnsupported))
	_, err = c.GetUniverse(ctx)
	assert.True(t, IsUnsupported(err))
	_, err = c.GetOwnership(ctx, nil)
	assert.True(t, IsUnsupported(err))
}

func TestCompositeTestConnection(t *testing.T) {
	ctx := context.Background()
	s := fixture()

	ok := NewComposite("p", Sources{Bars: pingSource{Static: s}})
	assert.True(t, ok.TestConnection(ctx))

	down := NewComposite("p", Sources{
		Bars:     pingSource{Static: s},
		Earnings: &pingSource{Static: s, err: errors.New("unreachable")},
	})
	assert.False(t, down.TestConnection(ctx))
}

func TestRegistry(t *testing.T) {
	r := NewRegistry("fixture")
	r.Register(fixture())
	r.Register(&Static{ProviderName: "other"})

	p, err := r.Get("")
	require.NoError(t, err)
	assert.Equal(t, "fixture", p.Name())

	_, err = r.Get("nope")
	assert.True(t, errors.Is(err, ErrUnknownProvider))
	assert.Equal(t, []string{"fixture", "other"}, r.Names())
	assert.Equal(t, "fixture", r.Default())
}

func TestStaticPartialFailure(t *testing.T) {
	s := fixture()
	s.Fail = map[string]error{"BBB": errors.New("timeout")}

	bars, err := s.GetOHLCV(context.Background(), []string{"AAA", "BBB"}, time.Time{}, time.Time{})
	assert.Error(t, err)
	assert.Len(t, bars, 1)
	assert.Equal(t, 1, s.Calls("bars"))
}

func TestGuardedBreakerOpens(t *testing.T) {
	ctx := context.Background()
	s := fixture()
	s.Down = true
	m := telemetry.New()

	g := NewGuarded(s, GuardConfig{RatePerSecond: 1000, Burst: 10, MaxFailures: 2, OpenTimeout: time.Hour}, m, logger.Nop())

	for i := 0; i < 2; i++ {
		_, err := g.GetIndexBars(ctx, "SPY", d0, d0)
		require.Error(t, err)
	}
	assert.Equal(t, "open", g.BreakerState())

	// open breaker short-circuits without calling the provider
	_, err := g.GetIndexBars(ctx, "SPY", d0, d0)
	require.Error(t, err)
	assert.Equal(t, 2, s.Calls("index_bars"))
}

func TestGuardedPartialDoesNotTrip(t *testing.T) {
	ctx := context.Background()
	s := fixture()
	s.Fail = map[string]error{"BBB": errors.New("timeout")}

	g := NewGuarded(s, GuardConfig{RatePerSecond: 1000, Burst: 10, MaxFailures: 1, OpenTimeout: time.Hour}, nil, logger.Nop())

	for i := 0; i < 3; i++ {
		bars, err := g.GetOHLCV(ctx, []string{"AAA", "BBB"}, time.Time{}, time.Time{})
		assert.Error(t, err, "partial error is still reported")
		assert.Len(t, bars, 1, "partial data is kept")
	}
	assert.Equal(t, "closed", g.BreakerState())
}

func TestGuardedUnsupportedDoesNotTrip(t *testing.T) {
	s := &Static{ProviderName: "bare", Bars: map[string][]contracts.Bar{}}
	g := NewGuarded(s, GuardConfig{RatePerSecond: 1000, Burst: 10, MaxFailures: 1}, nil, logger.Nop())

	for i := 0; i < 3; i++ {
		_, err := g.GetUniverse(context.Background())
		assert.True(t, IsUnsupported(err))
	}
	assert.Equal(t, "closed", g.BreakerState())
}

func TestGuardedRespectsContext(t *testing.T) {
	g := NewGuarded(fixture(), GuardConfig{RatePerSecond: 0.001, Burst: 1}, nil, logger.Nop())
	ctx, cancel := context.WithCancel(context.Background())

	_, err := g.GetUniverse(ctx) // consumes the burst
	require.NoError(t, err)

	cancel()
	_, err = g.GetUniverse(ctx)
	assert.Error(t, err)
}

func TestCachedPassThroughWhenDisabled(t *testing.T) {
	client, err := redis.New(context.Background(), &config.Config{})
	require.NoError(t, err)
	s := fixture()
	c := NewCached(s, redis.NewCache(client, "test"), logger.Nop())

	syms, err := c.GetUniverse(context.Background())
	require.NoError(t, err)
	assert.Len(t, syms, 2)

	_, err = c.GetUniverse(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, s.Calls("universe"), "nothing cached while redis is disabled")

	recs, err := c.GetQuarterlyEPS(context.Background(), []string{"AAA", "BBB"})
	require.NoError(t, err)
	assert.Len(t, recs, 1)

	idx, err := c.GetIndexBars(context.Background(), "SPY", d0, d0)
	require.NoError(t, err)
	assert.Len(t, idx, 1)

	assert.Same(t, s, c.Unwrap())
}
