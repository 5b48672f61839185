package marketgate

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/wonny/canslim/internal/contracts"
	"github.com/wonny/canslim/internal/strategyconfig"
	"github.com/wonny/canslim/pkg/logger"
)

var now = time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)

type fakeIndex struct {
	bars   []contracts.Bar
	err    error
	calls  int
	ticker string
}

func (f *fakeIndex) GetIndexBars(ctx context.Context, ticker string, from, to time.Time) ([]contracts.Bar, error) {
	f.calls++
	f.ticker = ticker
	return f.bars, f.err
}

func trend(n int, first, last float64) []contracts.Bar {
	bars := make([]contracts.Bar, n)
	for i := range bars {
		c := first + (last-first)*float64(i)/float64(n-1)
		bars[i] = contracts.Bar{Date: now.AddDate(0, 0, i-n), Close: c, High: c, Low: c, Open: c}
	}
	return bars
}

func enabled() strategyconfig.MarketGate {
	return strategyconfig.MarketGate{Enabled: true, Ticker: "SPY", ShortMA: 50, LongMA: 200}
}

func TestDecide(t *testing.T) {
	tests := []struct {
		name   string
		cfg    strategyconfig.MarketGate
		bars   []contracts.Bar
		open   bool
		reason string
	}{
		{"disabled ignores downtrend", strategyconfig.MarketGate{ShortMA: 50, LongMA: 200}, trend(250, 200, 100), true, ReasonDisabled},
		{"short history fails open", enabled(), trend(150, 200, 100), true, ReasonInsufficientData},
		{"uptrend", enabled(), trend(250, 100, 200), true, ReasonUptrend},
		{"downtrend", enabled(), trend(250, 200, 100), false, ReasonDowntrend},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Decide(tt.cfg, tt.bars, now)
			assert.Equal(t, tt.open, d.Open)
			assert.Equal(t, tt.reason, d.Reason)
		})
	}
}

func TestEvaluateDisabledSkipsFetch(t *testing.T) {
	src := &fakeIndex{bars: trend(250, 200, 100)}
	cfg := enabled()
	cfg.Enabled = false

	d := New(cfg, logger.Nop()).Evaluate(context.Background(), src, now)
	assert.True(t, d.Open)
	assert.Equal(t, 0, src.calls)
}

func TestEvaluateInsufficientDataLogsReason(t *testing.T) {
	var buf bytes.Buffer
	src := &fakeIndex{bars: trend(100, 100, 90)}

	d := New(enabled(), logger.NewWithWriter(&buf, "debug")).Evaluate(context.Background(), src, now)
	assert.True(t, d.Open)
	assert.Equal(t, ReasonInsufficientData, d.Reason)
	assert.Equal(t, "SPY", src.ticker)
	assert.Contains(t, buf.String(), "insufficient market data")
}

func TestEvaluateFetchFailureFailsOpen(t *testing.T) {
	src := &fakeIndex{err: errors.New("timeout")}

	d := New(enabled(), logger.Nop()).Evaluate(context.Background(), src, now)
	assert.True(t, d.Open)
	assert.Equal(t, ReasonMarketDataUnavailable, d.Reason)
}

func TestEvaluateDowntrendCloses(t *testing.T) {
	src := &fakeIndex{bars: trend(260, 300, 150)}

	d := New(enabled(), logger.Nop()).Evaluate(context.Background(), src, now)
	assert.False(t, d.Open)
	assert.Equal(t, ReasonDowntrend, d.Reason)
	assert.Greater(t, d.LongMA, d.ShortMA)
}
