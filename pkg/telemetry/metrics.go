// Package telemetry holds the Prometheus collectors for scans, providers and backtests.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "canslim"

// Metrics holds all collectors. A nil *Metrics is valid and records nothing.
// ⭐ SSOT: Prometheus 수집기는 여기서만 생성
type Metrics struct {
	registry *prometheus.Registry

	// Scanner
	ScanRuns        *prometheus.CounterVec
	Batches         *prometheus.CounterVec
	SymbolsScored   prometheus.Counter
	BatchDuration   prometheus.Histogram
	AccumulatorSize prometheus.Gauge
	ScanInProgress  prometheus.Gauge

	// Providers
	ProviderFailures *prometheus.CounterVec
	ProviderRequests *prometheus.CounterVec

	// Backtest
	BacktestRuns *prometheus.CounterVec
}

// New registers every collector on a fresh registry
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		ScanRuns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scanner",
			Name:      "runs_total",
			Help:      "Scan runs by outcome",
		}, []string{"outcome"}),
		Batches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scanner",
			Name:      "batches_total",
			Help:      "Scan batches by outcome",
		}, []string{"outcome"}),
		SymbolsScored: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scanner",
			Name:      "symbols_scored_total",
			Help:      "Symbols scored across all runs",
		}),
		BatchDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scanner",
			Name:      "batch_duration_seconds",
			Help:      "Wall time per scan batch",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		AccumulatorSize: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "scanner",
			Name:      "accumulator_size",
			Help:      "Results in the live accumulator",
		}),
		ScanInProgress: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "scanner",
			Name:      "in_progress",
			Help:      "1 while a scan is running",
		}),

		ProviderFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "fetch_failures_total",
			Help:      "Provider fetch failures by provider and operation",
		}, []string{"provider", "op"}),
		ProviderRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "requests_total",
			Help:      "Provider calls by provider and operation",
		}, []string{"provider", "op"}),

		BacktestRuns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backtest",
			Name:      "runs_total",
			Help:      "Backtest runs by outcome",
		}, []string{"outcome"}),
	}
}

// Handler serves the registry in Prometheus text format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry (tests, extra collectors)
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveScanRun counts a finished run
func (m *Metrics) ObserveScanRun(outcome string) {
	if m == nil {
		return
	}
	m.ScanRuns.WithLabelValues(outcome).Inc()
}

// ObserveBatch counts one batch and its duration
func (m *Metrics) ObserveBatch(outcome string, symbols int, took time.Duration) {
	if m == nil {
		return
	}
	m.Batches.WithLabelValues(outcome).Inc()
	m.BatchDuration.Observe(took.Seconds())
	if symbols > 0 {
		m.SymbolsScored.Add(float64(symbols))
	}
}

// SetAccumulatorSize records the live result count
func (m *Metrics) SetAccumulatorSize(n int) {
	if m == nil {
		return
	}
	m.AccumulatorSize.Set(float64(n))
}

// SetScanInProgress flips the in-progress gauge
func (m *Metrics) SetScanInProgress(running bool) {
	if m == nil {
		return
	}
	if running {
		m.ScanInProgress.Set(1)
		return
	}
	m.ScanInProgress.Set(0)
}

// ObserveProviderCall counts a provider call and, when err is non-nil, a failure
func (m *Metrics) ObserveProviderCall(provider, op string, err error) {
	if m == nil {
		return
	}
	m.ProviderRequests.WithLabelValues(provider, op).Inc()
	if err != nil {
		m.ProviderFailures.WithLabelValues(provider, op).Inc()
	}
}

// ObserveBacktest counts a backtest run
func (m *Metrics) ObserveBacktest(outcome string) {
	if m == nil {
		return
	}
	m.BacktestRuns.WithLabelValues(outcome).Inc()
}
