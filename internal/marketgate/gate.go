package marketgate

import (
	"context"
	"time"

	"github.com/wonny/canslim/internal/contracts"
	"github.com/wonny/canslim/internal/metrics"
	"github.com/wonny/canslim/internal/strategyconfig"
	"github.com/wonny/canslim/pkg/logger"
)

// Decision reasons
const (
	ReasonDisabled              = "disabled"
	ReasonInsufficientData      = "insufficient_market_data"
	ReasonMarketDataUnavailable = "market_data_unavailable"
	ReasonUptrend               = "uptrend"
	ReasonDowntrend             = "downtrend"
)

// Decision is the outcome of one gate evaluation
type Decision struct {
	Open    bool      `json:"open"`
	Reason  string    `json:"reason"`
	Ticker  string    `json:"ticker,omitempty"`
	AsOf    time.Time `json:"as_of"`
	Bars    int       `json:"bars"`
	Price   float64   `json:"price,omitempty"`
	ShortMA float64   `json:"short_ma,omitempty"`
	LongMA  float64   `json:"long_ma,omitempty"`

	// Series holds the benchmark bars Evaluate fetched, ascending
	Series []contracts.Bar `json:"-"`
}

// Decide applies the trend rule to benchmark bars ordered ascending.
// Fewer bars than the long window fails open.
func Decide(cfg strategyconfig.MarketGate, bars []contracts.Bar, asOf time.Time) Decision {
	d := Decision{Ticker: cfg.Ticker, AsOf: asOf, Bars: len(bars)}

	if !cfg.Enabled {
		d.Open = true
		d.Reason = ReasonDisabled
		return d
	}

	if len(bars) < cfg.LongMA {
		d.Open = true
		d.Reason = ReasonInsufficientData
		return d
	}

	d.Price = bars[len(bars)-1].Close
	d.ShortMA, _ = metrics.MovingAverage(bars, cfg.ShortMA)
	d.LongMA, _ = metrics.MovingAverage(bars, cfg.LongMA)

	d.Open = metrics.IsUptrend(bars, cfg.ShortMA, cfg.LongMA)
	if d.Open {
		d.Reason = ReasonUptrend
	} else {
		d.Reason = ReasonDowntrend
	}
	return d
}

// Gate fetches benchmark bars and decides whether scanning may proceed
// ⭐ SSOT: 시장 추세 게이트
type Gate struct {
	cfg    strategyconfig.MarketGate
	logger *logger.Logger
}

// New creates a gate for one configuration snapshot
func New(cfg strategyconfig.MarketGate, log *logger.Logger) *Gate {
	return &Gate{cfg: cfg, logger: log}
}

// lookbackDays covers the long window in calendar days with room for holidays
func (g *Gate) lookbackDays() int {
	return g.cfg.LongMA*7/5 + 30
}

// Evaluate fetches the benchmark and decides. A fetch failure fails open.
func (g *Gate) Evaluate(ctx context.Context, src contracts.IndexSource, now time.Time) Decision {
	if !g.cfg.Enabled {
		return Decide(g.cfg, nil, now)
	}

	from := now.AddDate(0, 0, -g.lookbackDays())
	bars, err := src.GetIndexBars(ctx, g.cfg.Ticker, from, now)
	if err != nil {
		g.logger.WithError(err).WithFields(map[string]interface{}{
			"ticker": g.cfg.Ticker,
			"reason": ReasonMarketDataUnavailable,
		}).Warn("Market gate failed open: benchmark fetch failed")
		return Decision{Open: true, Reason: ReasonMarketDataUnavailable, Ticker: g.cfg.Ticker, AsOf: now}
	}

	series := contracts.SortBars(bars)
	d := Decide(g.cfg, series, now)
	d.Series = series

	fields := map[string]interface{}{
		"ticker": d.Ticker,
		"open":   d.Open,
		"reason": d.Reason,
		"bars":   d.Bars,
	}
	switch d.Reason {
	case ReasonInsufficientData:
		g.logger.WithFields(fields).Warn("Market gate failed open: insufficient market data")
	case ReasonDowntrend:
		g.logger.WithFields(fields).Info("Market gate closed")
	default:
		g.logger.WithFields(fields).Debug("Market gate open")
	}
	return d
}
