// Package bootstrap builds the explicit dependency context shared by the CLI,
// the API server and the scheduler. Nothing here is a package-level singleton.
package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"github.com/wonny/canslim/internal/backtest"
	"github.com/wonny/canslim/internal/contracts"
	"github.com/wonny/canslim/internal/external/databento"
	"github.com/wonny/canslim/internal/external/edgar"
	"github.com/wonny/canslim/internal/external/wikipedia"
	"github.com/wonny/canslim/internal/external/yahoo"
	"github.com/wonny/canslim/internal/marketgate"
	"github.com/wonny/canslim/internal/provider"
	"github.com/wonny/canslim/internal/scanner"
	"github.com/wonny/canslim/internal/storage"
	"github.com/wonny/canslim/internal/storage/clickhouse"
	"github.com/wonny/canslim/internal/storage/memory"
	"github.com/wonny/canslim/internal/storage/migrations"
	"github.com/wonny/canslim/internal/storage/postgres"
	"github.com/wonny/canslim/internal/strategyconfig"
	"github.com/wonny/canslim/pkg/config"
	"github.com/wonny/canslim/pkg/database"
	"github.com/wonny/canslim/pkg/httputil"
	"github.com/wonny/canslim/pkg/logger"
	"github.com/wonny/canslim/pkg/redis"
	"github.com/wonny/canslim/pkg/telemetry"
)

// Provider names
const (
	ProviderYahoo     = "yahoo"
	ProviderDatabento = "databento"
)

// App holds every long-lived collaborator
// ⭐ SSOT: 의존성 조립은 여기서만
type App struct {
	Config    *config.Config
	Logger    *logger.Logger
	Store     storage.Store
	Providers *provider.Registry
	Clock     contracts.Clock
	Metrics   *telemetry.Metrics
	Scanner   *scanner.Scanner
	Backtest  *backtest.Engine

	db         *database.DB
	clickhouse *clickhouse.Conn
	redis      *redis.Client
}

// Options override parts of the assembly, mainly for tests
type Options struct {
	Store     storage.Store
	Providers *provider.Registry
	Clock     contracts.Clock
}

// New assembles the application from process configuration
func New(ctx context.Context, cfg *config.Config, log *logger.Logger, opts Options) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: log,
		Clock:  opts.Clock,
	}
	if app.Clock == nil {
		app.Clock = contracts.SystemClock{}
	}
	if cfg.MetricsEnabled {
		app.Metrics = telemetry.New()
	}

	rc, err := redis.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	app.redis = rc

	app.Store = opts.Store
	if app.Store == nil {
		if err := app.openStore(ctx); err != nil {
			app.Close()
			return nil, err
		}
	}

	app.Providers = opts.Providers
	if app.Providers == nil {
		app.Providers = app.buildProviders()
	}

	app.Scanner = scanner.New(scanner.Deps{
		Store:      app.Store,
		Providers:  app.Providers,
		Strategy:   app.Strategy,
		Clock:      app.Clock,
		Metrics:    app.Metrics,
		BatchDelay: cfg.Scan.BatchDelay,
	}, log)

	app.Backtest = backtest.NewEngine(backtest.Deps{
		Store:    app.Store,
		Strategy: app.Strategy,
		Clock:    app.Clock,
		Metrics:  app.Metrics,
		Index:    app.indexSource(),
	}, log)

	log.WithFields(map[string]interface{}{
		"store":     cfg.StoreBackend,
		"providers": app.Providers.Names(),
		"default":   app.Providers.Default(),
		"redis":     rc.Enabled(),
		"metrics":   cfg.MetricsEnabled,
	}).Info("Application assembled")

	return app, nil
}

// indexSource is the default provider when it serves index bars
func (a *App) indexSource() contracts.IndexSource {
	p, err := a.Providers.Get("")
	if err != nil || !p.Capabilities().IndexBars {
		return nil
	}
	return p
}

// Strategy reads the strategy bundle; called at the start of every run so
// edits take effect on the next scan or backtest
func (a *App) Strategy() (*strategyconfig.Config, error) {
	return strategyconfig.LoadOrDefault(a.Config.StrategyConfigPath)
}

// Gate evaluates the market gate against a provider's benchmark bars
func (a *App) Gate(ctx context.Context, providerName string) (marketgate.Decision, error) {
	cfg, err := a.Strategy()
	if err != nil {
		return marketgate.Decision{}, fmt.Errorf("load strategy config: %w", err)
	}
	p, err := a.Providers.Get(providerName)
	if err != nil {
		return marketgate.Decision{}, err
	}
	return marketgate.New(cfg.MarketGate, a.Logger).Evaluate(ctx, p, a.Clock.Now()), nil
}

// Migrate applies the embedded schema to every configured engine
func (a *App) Migrate(ctx context.Context) ([]string, error) {
	var applied []string
	if a.db != nil {
		files, err := migrations.RunPostgres(ctx, a.db.Pool)
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		applied = append(applied, files...)
	}
	if a.clickhouse != nil {
		files, err := migrations.RunClickhouse(ctx, a.clickhouse)
		if err != nil {
			return nil, fmt.Errorf("clickhouse: %w", err)
		}
		applied = append(applied, files...)
	}
	return applied, nil
}

// Ready pings what the API cannot serve without: the store and, when
// enabled, Redis. Providers only feed new scans, so they are left out.
func (a *App) Ready(ctx context.Context) map[string]error {
	out := map[string]error{"store": a.Store.Ping(ctx)}
	if a.redis.Enabled() {
		out["redis"] = a.redis.Ping(ctx)
	}
	return out
}

// Check pings the store, Redis and every provider; nil values mean healthy
func (a *App) Check(ctx context.Context) map[string]error {
	out := a.Ready(ctx)
	for _, name := range a.Providers.Names() {
		p, _ := a.Providers.Get(name)
		if !p.TestConnection(ctx) {
			out["provider:"+name] = errors.New("connection test failed")
		} else {
			out["provider:"+name] = nil
		}
	}
	return out
}

// Close releases connections
func (a *App) Close() {
	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			a.Logger.WithError(err).Warn("Store close failed")
		}
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
}

func (a *App) openStore(ctx context.Context) error {
	var base storage.Store
	switch a.Config.StoreBackend {
	case "memory":
		base = memory.New()
	default:
		db, err := database.New(a.Config)
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
		a.db = db
		base = postgres.New(db)
	}

	if !a.Config.ClickHouse.Enabled {
		a.Store = base
		return nil
	}

	conn, err := clickhouse.NewConn(ctx, a.Config.ClickHouse.URL)
	if err != nil {
		_ = base.Close()
		return fmt.Errorf("connect clickhouse: %w", err)
	}
	a.clickhouse = conn
	a.Store = storage.NewComposite(base, clickhouse.NewBarStore(conn))
	return nil
}

// buildProviders registers yahoo (with wikipedia universe and optional EDGAR
// fundamentals) and, when a directory is configured, the offline databento reader
func (a *App) buildProviders() *provider.Registry {
	cfg, log := a.Config, a.Logger
	limiter := redis.NewRateLimiter(a.redis, a.redis.Namespace())
	cache := redis.NewCache(a.redis, a.redis.Namespace())
	reg := provider.NewRegistry(cfg.Providers.Default)

	httpFor := func(rl redis.RateLimitConfig) *httputil.Client {
		return httputil.New(cfg, log).WithRateLimiter(limiter, rl)
	}

	var earnings provider.EarningsSource
	if ua := cfg.Providers.EdgarUserAgent; ua != "" {
		hc := httpFor(redis.EdgarRateLimit).WithHeader("User-Agent", ua)
		earnings = edgar.NewClient(hc, cfg.Providers.EdgarBaseURL, edgar.DefaultTickersURL, log)
	} else {
		log.Warn("EDGAR_USER_AGENT not set, fundamentals disabled")
	}

	yc := yahoo.NewClient(httpFor(redis.YahooRateLimit), cfg.Providers.YahooBaseURL, log)
	wiki := wikipedia.NewClient(httpFor(redis.WikipediaRateLimit), cfg.Providers.WikipediaURL, log)
	guard := provider.GuardConfig{
		RatePerSecond: cfg.Providers.RatePerSecond,
		MaxFailures:   cfg.Providers.BreakerMaxFailure,
		OpenTimeout:   cfg.Providers.BreakerTimeout,
	}

	yahooProvider := provider.NewComposite(ProviderYahoo, provider.Sources{
		Bars:     yc,
		Index:    yc,
		Universe: wiki,
		Earnings: earnings,
	})
	reg.Register(provider.NewCached(provider.NewGuarded(yahooProvider, guard, a.Metrics, log), cache, log))

	if dir := cfg.Providers.DatabentoDir; dir != "" {
		reader := databento.NewReader(dir, log)
		reg.Register(provider.NewCached(provider.NewComposite(ProviderDatabento, provider.Sources{
			Bars:     reader,
			Index:    reader,
			Universe: reader,
			Earnings: earnings,
		}), cache, log))
	}

	return reg
}
