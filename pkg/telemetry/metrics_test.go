package telemetry

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveScanRun("completed")
	m.ObserveBatch("ok", 40, time.Second)
	m.SetAccumulatorSize(10)
	m.SetScanInProgress(true)
	m.ObserveProviderCall("yahoo", "bars", errors.New("x"))
	m.ObserveBacktest("completed")
	assert.Nil(t, m.Registry())
}

func TestCounters(t *testing.T) {
	m := New()

	m.ObserveScanRun("completed")
	m.ObserveScanRun("completed")
	m.ObserveBatch("ok", 40, 2*time.Second)
	m.ObserveBatch("failed", 0, time.Second)
	m.ObserveProviderCall("yahoo", "bars", nil)
	m.ObserveProviderCall("yahoo", "bars", errors.New("timeout"))
	m.SetAccumulatorSize(120)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ScanRuns.WithLabelValues("completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Batches.WithLabelValues("failed")))
	assert.Equal(t, 40.0, testutil.ToFloat64(m.SymbolsScored))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ProviderRequests.WithLabelValues("yahoo", "bars")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ProviderFailures.WithLabelValues("yahoo", "bars")))
	assert.Equal(t, 120.0, testutil.ToFloat64(m.AccumulatorSize))
}

func TestHandler(t *testing.T) {
	m := New()
	m.ObserveBacktest("completed")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), `canslim_backtest_runs_total{outcome="completed"} 1`))
}
