package backtest

import (
	"bytes"
	"context"
	"encoding/csv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/canslim/internal/contracts"
	"github.com/wonny/canslim/internal/storage/memory"
	"github.com/wonny/canslim/internal/strategyconfig"
	"github.com/wonny/canslim/pkg/logger"
)

// start is a Monday
var start = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// weekdaysFrom returns n consecutive weekdays starting at from
func weekdaysFrom(from time.Time, n int) []time.Time {
	out := make([]time.Time, 0, n)
	for d := from; len(out) < n; d = d.AddDate(0, 0, 1) {
		if isTradingDay(d) {
			out = append(out, d)
		}
	}
	return out
}

var dates = weekdaysFrom(start, 200)

func bar(d time.Time, c float64, volume int64) contracts.Bar {
	return contracts.Bar{Date: d, Open: c, High: c * 1.01, Low: c * 0.99, Close: c, Volume: volume}
}

// breakoutSeries is 60 flat bars at 100, a breakout to 110 on 3x volume at
// dates[60], then one bar per close in after
func breakoutSeries(after []float64) []contracts.Bar {
	bars := make([]contracts.Bar, 0, 61+len(after))
	for i := 0; i < 60; i++ {
		bars = append(bars, bar(dates[i], 100, 100_000))
	}
	bars = append(bars, contracts.Bar{Date: dates[60], Open: 100, High: 111, Low: 100, Close: 110, Volume: 300_000})
	for i, c := range after {
		bars = append(bars, bar(dates[61+i], c, 100_000))
	}
	return bars
}

func flatSeries(n int) []contracts.Bar {
	bars := make([]contracts.Bar, n)
	for i := range bars {
		bars[i] = bar(dates[i], 100, 100_000)
	}
	return bars
}

// decliningBenchmark is 300 weekday bars ending on dates[80], falling 500 → 300
func decliningBenchmark() []contracts.Bar {
	days := weekdaysFrom(start.AddDate(-1, 0, 0), 400)
	var end int
	for i, d := range days {
		if d.Equal(dates[80]) {
			end = i
		}
	}
	days = days[end-299 : end+1]

	bars := make([]contracts.Bar, len(days))
	for i, d := range days {
		bars[i] = bar(d, 500-200*float64(i)/float64(len(days)-1), 1_000_000)
	}
	return bars
}

func newEngine(t *testing.T, bars map[string][]contracts.Bar, universe ...string) (*Engine, *memory.Store) {
	t.Helper()
	ctx := context.Background()
	store := memory.New()

	for sym, series := range bars {
		require.NoError(t, store.UpsertBars(ctx, sym, series))
	}
	meta := make([]contracts.SymbolMeta, 0, len(universe))
	for _, sym := range universe {
		meta = append(meta, contracts.SymbolMeta{Symbol: sym, Industry: "Software"})
	}
	if len(meta) > 0 {
		require.NoError(t, store.ReplaceSymbols(ctx, meta))
	}

	cfg := strategyconfig.Default()
	cfg.Universes = []strategyconfig.UniverseDef{{Name: "solo", Symbols: []string{"a"}}}

	eng := NewEngine(Deps{
		Store:    store,
		Strategy: func() (*strategyconfig.Config, error) { return cfg, nil },
		Clock:    contracts.FixedClock{T: dates[199]},
	}, logger.Nop())
	return eng, store
}

func request(from, to time.Time) contracts.BacktestConfig {
	return contracts.BacktestConfig{
		From:            from,
		To:              to,
		ScoreCutoff:     30,
		MaxPositions:    1,
		RiskPercent:     1,
		StopLossPercent: 8,
		InitialCapital:  100_000,
	}
}

func TestRunStopLoss(t *testing.T) {
	eng, store := newEngine(t, map[string][]contracts.Bar{
		"A": breakoutSeries([]float64{100, 100, 100, 100, 100}),
	}, "A")

	report, err := eng.Run(context.Background(), request(dates[60], dates[65]))
	require.NoError(t, err)

	assert.False(t, report.RangeAdjusted)
	assert.Equal(t, 6, report.TradingDays)
	require.Len(t, report.EquityCurve, 6)

	// same-day entry at the close leaves equity at the starting capital
	first := report.EquityCurve[0]
	assert.InDelta(t, 100_000, first.Equity, 1e-6)
	assert.Equal(t, 1, first.OpenPositions)

	require.Len(t, report.Trades, 1)
	tr := report.Trades[0]
	assert.Equal(t, "A", tr.Symbol)
	assert.Equal(t, dates[60], tr.EntryDate)
	assert.Equal(t, 110.0, tr.EntryPrice)
	// floor((100000 × 1%) / 8% / 110) = 113
	assert.Equal(t, int64(113), tr.Shares)
	require.NotNil(t, tr.ExitDate)
	assert.Equal(t, dates[61], *tr.ExitDate)
	assert.Equal(t, contracts.ExitStopLoss, tr.ExitReason)
	assert.InDelta(t, -1130, tr.PnL, 1e-6)
	assert.Greater(t, tr.EntryScore, 30.0)

	assert.InDelta(t, 98_870, report.FinalEquity, 1e-6)
	assert.InDelta(t, (report.FinalEquity-100_000)/100_000, report.Stats.TotalReturn, 1e-12)
	assert.Equal(t, 1, report.Stats.LosingTrades)
	assert.Equal(t, 0.0, report.Stats.ProfitFactor)
	assert.Equal(t, 0.0, report.Stats.SharpeRatio)

	last := report.EquityCurve[len(report.EquityCurve)-1]
	assert.Equal(t, 0, last.OpenPositions)
	assert.InDelta(t, report.FinalEquity, last.Equity, 1e-6)

	stored, err := store.GetBacktest(context.Background(), report.ID)
	require.NoError(t, err)
	assert.Equal(t, report.ConfigHash, stored.ConfigHash)
}

func TestRunTimeLimit(t *testing.T) {
	after := make([]float64, 40)
	for i := range after {
		after[i] = 110
	}
	eng, _ := newEngine(t, map[string][]contracts.Bar{"A": breakoutSeries(after)}, "A")

	report, err := eng.Run(context.Background(), request(dates[60], dates[100]))
	require.NoError(t, err)

	require.NotEmpty(t, report.Trades)
	tr := report.Trades[0]
	assert.Equal(t, contracts.ExitTimeLimit, tr.ExitReason)
	assert.Greater(t, tr.HoldingDays, 30)
	assert.LessOrEqual(t, tr.HoldingDays, 33)
}

func TestRunProfitTarget(t *testing.T) {
	eng, _ := newEngine(t, map[string][]contracts.Bar{
		"A": breakoutSeries([]float64{112, 127, 127}),
	}, "A")

	report, err := eng.Run(context.Background(), request(dates[60], dates[63]))
	require.NoError(t, err)

	require.Len(t, report.Trades, 1)
	assert.Equal(t, contracts.ExitProfitTarget, report.Trades[0].ExitReason)
	assert.Equal(t, dates[62], *report.Trades[0].ExitDate)
	assert.Equal(t, 1.0, report.Stats.HitRate)
}

func TestRunEndOfRange(t *testing.T) {
	eng, _ := newEngine(t, map[string][]contracts.Bar{
		"A": breakoutSeries([]float64{111, 112}),
	}, "A")

	report, err := eng.Run(context.Background(), request(dates[60], dates[62]))
	require.NoError(t, err)

	require.Len(t, report.Trades, 1)
	assert.Equal(t, contracts.ExitEndOfRange, report.Trades[0].ExitReason)
	assert.Equal(t, 112.0, report.Trades[0].ExitPrice)
}

func TestRunMarketDownSkipsEntries(t *testing.T) {
	eng, _ := newEngine(t, map[string][]contracts.Bar{
		"A":   breakoutSeries([]float64{100, 100}),
		"SPY": decliningBenchmark(),
	}, "A")

	req := request(dates[60], dates[62])
	req.UseMarketGate = true
	report, err := eng.Run(context.Background(), req)
	require.NoError(t, err)

	assert.Empty(t, report.Trades)
	for _, p := range report.EquityCurve {
		assert.Equal(t, 100_000.0, p.Equity)
		assert.Equal(t, 0, p.OpenPositions)
	}
}

func TestStepMarketDownClosesPositions(t *testing.T) {
	params := Params{
		BacktestConfig: request(dates[60], dates[62]),
		MaxHoldingDays: 30,
	}
	params.UseMarketGate = true
	data := Dataset{
		Bars:      map[string][]contracts.Bar{"A": breakoutSeries([]float64{104})},
		Benchmark: decliningBenchmark(),
	}

	sim := NewSimulator(strategyconfig.Default(), params, data, logger.Nop())
	sim.cash = 0
	sim.open = []*position{{
		trade: contracts.Trade{Symbol: "A", EntryDate: dates[60], EntryPrice: 100, Shares: 10},
		mark:  100,
	}}

	sim.step(dates[61])

	require.Len(t, sim.closed, 1)
	assert.Equal(t, contracts.ExitMarketDown, sim.closed[0].ExitReason)
	assert.Equal(t, 104.0, sim.closed[0].ExitPrice)
	assert.InDelta(t, 1040, sim.cash, 1e-9)
	assert.Empty(t, sim.open)
	require.Len(t, sim.curve, 1)
	assert.Equal(t, 0, sim.curve[0].OpenPositions)
}

func TestRunWithoutGateIgnoresBenchmark(t *testing.T) {
	eng, _ := newEngine(t, map[string][]contracts.Bar{
		"A":   breakoutSeries([]float64{100}),
		"SPY": decliningBenchmark(),
	}, "A")

	report, err := eng.Run(context.Background(), request(dates[60], dates[61]))
	require.NoError(t, err)
	require.Len(t, report.Trades, 1)
}

// indexSource serves fixed benchmark bars and counts fetches
type indexSource struct {
	bars  map[string][]contracts.Bar
	calls int
}

func (f *indexSource) GetIndexBars(_ context.Context, ticker string, from, to time.Time) ([]contracts.Bar, error) {
	f.calls++
	var out []contracts.Bar
	for _, b := range f.bars[ticker] {
		if !b.Date.Before(from) && !b.Date.After(to) {
			out = append(out, b)
		}
	}
	return out, nil
}

func TestRunBackfillsBenchmarkFromIndex(t *testing.T) {
	eng, store := newEngine(t, map[string][]contracts.Bar{
		"A": breakoutSeries([]float64{100, 100}),
	}, "A")
	index := &indexSource{bars: map[string][]contracts.Bar{"SPY": decliningBenchmark()}}
	eng.index = index

	req := request(dates[60], dates[62])
	req.UseMarketGate = true
	report, err := eng.Run(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, 1, index.calls)
	assert.Empty(t, report.Trades, "declining benchmark closes the gate")
	assert.Empty(t, report.GateNote)

	// fetched through the last backtest day, 18 bars short of the full series
	stored, err := store.GetBars(context.Background(), "SPY", time.Time{}, dates[80])
	require.NoError(t, err)
	assert.Len(t, stored, 282)

	// the stored series now covers the range, so the next run does not fetch
	_, err = eng.Run(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 1, index.calls)
}

func TestRunGateFailOpenIsNoted(t *testing.T) {
	eng, _ := newEngine(t, map[string][]contracts.Bar{
		"A": breakoutSeries([]float64{100}),
	}, "A")

	req := request(dates[60], dates[61])
	req.UseMarketGate = true
	report, err := eng.Run(context.Background(), req)
	require.NoError(t, err)

	require.Len(t, report.Trades, 1)
	assert.Contains(t, report.GateNote, "SPY")
	assert.Contains(t, report.GateNote, "2 of 2 trading days")

	req.UseMarketGate = false
	report, err = eng.Run(context.Background(), req)
	require.NoError(t, err)
	assert.Empty(t, report.GateNote)
}

func TestRunNeverBuysBenchmark(t *testing.T) {
	eng, _ := newEngine(t, map[string][]contracts.Bar{
		"SPY": breakoutSeries([]float64{100}),
	}, "SPY")

	report, err := eng.Run(context.Background(), request(dates[60], dates[61]))
	require.NoError(t, err)
	assert.Empty(t, report.Trades)
}

func TestExitReasonOrder(t *testing.T) {
	base := Params{
		BacktestConfig:    contracts.BacktestConfig{StopLossPercent: 8, ProfitTargetMode: contracts.ProfitTargetBoth},
		FixedProfitTarget: 15,
		MaxHoldingDays:    30,
	}
	with := func(mode string, custom float64) Params {
		p := base
		p.ProfitTargetMode = mode
		p.ProfitTargetPercent = custom
		return p
	}

	tests := []struct {
		name   string
		params Params
		ret    float64
		held   int
		want   string
	}{
		{"stop before time limit", base, -0.10, 45, contracts.ExitStopLoss},
		{"exactly at stop", base, -0.08, 1, contracts.ExitStopLoss},
		{"fixed target", base, 0.16, 3, contracts.ExitProfitTarget},
		{"fixed before custom when both hit", with(contracts.ProfitTargetBoth, 10), 0.20, 3, contracts.ExitProfitTarget},
		{"custom below fixed", with(contracts.ProfitTargetBoth, 10), 0.12, 3, contracts.ExitProfitTargetCustom},
		{"override disables fixed", with(contracts.ProfitTargetOverride, 25), 0.20, 3, ""},
		{"override custom hit", with(contracts.ProfitTargetOverride, 25), 0.26, 3, contracts.ExitProfitTargetCustom},
		{"override without custom keeps fixed", with(contracts.ProfitTargetOverride, 0), 0.16, 3, contracts.ExitProfitTarget},
		{"time limit", base, 0.01, 31, contracts.ExitTimeLimit},
		{"at time limit holds", base, 0.01, 30, ""},
		{"hold", base, 0.05, 10, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, exitReason(tt.params, tt.ret, tt.held))
		})
	}
}

func TestPositionSize(t *testing.T) {
	tests := []struct {
		cash, risk, stop, price float64
		want                    int64
	}{
		{100_000, 1, 8, 50, 250},
		{100_000, 1, 8, 3_000, 4},
		{100_000, 1, 8, 20_000, 0},
		{100_000, 2, 5, 33, 1_212},
		{100_000, 1, 8, 0, 0},
	}
	for _, tt := range tests {
		if got := positionSize(tt.cash, tt.risk, tt.stop, tt.price); got != tt.want {
			t.Errorf("positionSize(%v, %v, %v, %v) = %d, want %d", tt.cash, tt.risk, tt.stop, tt.price, got, tt.want)
		}
	}
}

func TestRangeClamp(t *testing.T) {
	tests := []struct {
		name     string
		from, to time.Time
		wantFrom time.Time
		wantTo   time.Time
		adjusted bool
		days     int
	}{
		{"inside", dates[5], dates[9], dates[5], dates[9], false, 5},
		{"partial overlap", dates[10], dates[10].AddDate(1, 0, 0), dates[10], dates[69], true, 60},
		{"no overlap uses full range", start.AddDate(-1, 0, 0), start.AddDate(-1, 1, 0), dates[0], dates[69], true, 70},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eng, _ := newEngine(t, map[string][]contracts.Bar{"A": flatSeries(70)}, "A")

			report, err := eng.Run(context.Background(), request(tt.from, tt.to))
			require.NoError(t, err)

			assert.Equal(t, tt.wantFrom, report.EffectiveFrom)
			assert.Equal(t, tt.wantTo, report.EffectiveTo)
			assert.Equal(t, tt.adjusted, report.RangeAdjusted)
			assert.Equal(t, tt.adjusted, report.RangeNote != "")
			assert.Equal(t, tt.days, report.TradingDays)
			assert.Empty(t, report.Trades)
			assert.Equal(t, 100_000.0, report.FinalEquity)
		})
	}
}

func TestRunErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("no data anywhere", func(t *testing.T) {
		eng, _ := newEngine(t, nil)
		_, err := eng.Run(ctx, request(dates[0], dates[10]))
		assert.ErrorIs(t, err, ErrNoHistoricalData)
	})

	t.Run("from after to", func(t *testing.T) {
		eng, _ := newEngine(t, map[string][]contracts.Bar{"A": flatSeries(10)}, "A")
		_, err := eng.Run(ctx, request(dates[9], dates[1]))
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})

	t.Run("unknown profit target mode", func(t *testing.T) {
		eng, _ := newEngine(t, map[string][]contracts.Bar{"A": flatSeries(10)}, "A")
		req := request(dates[0], dates[9])
		req.ProfitTargetMode = "bogus"
		_, err := eng.Run(ctx, req)
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})

	t.Run("unknown universe", func(t *testing.T) {
		eng, _ := newEngine(t, map[string][]contracts.Bar{"A": flatSeries(10)}, "A")
		req := request(dates[0], dates[9])
		req.Universe = "nope"
		_, err := eng.Run(ctx, req)
		assert.ErrorIs(t, err, strategyconfig.ErrUnknownUniverse)
	})

	t.Run("empty universe", func(t *testing.T) {
		eng, _ := newEngine(t, map[string][]contracts.Bar{"A": flatSeries(10)})
		_, err := eng.Run(ctx, request(dates[0], dates[9]))
		assert.ErrorIs(t, err, strategyconfig.ErrEmptyUniverse)
	})
}

func TestNamedUniverse(t *testing.T) {
	eng, _ := newEngine(t, map[string][]contracts.Bar{
		"A": breakoutSeries([]float64{100}),
	})

	req := request(dates[60], dates[61])
	req.Universe = "solo"
	report, err := eng.Run(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, report.Trades, 1)
	assert.Equal(t, "A", report.Trades[0].Symbol)
}

func TestDefaultsFilled(t *testing.T) {
	eng, _ := newEngine(t, map[string][]contracts.Bar{"A": flatSeries(10)}, "A")

	report, err := eng.Run(context.Background(), contracts.BacktestConfig{From: dates[0], To: dates[9]})
	require.NoError(t, err)

	def := strategyconfig.Default().Backtest
	assert.Equal(t, def.ScoreCutoff, report.Config.ScoreCutoff)
	assert.Equal(t, def.MaxPositions, report.Config.MaxPositions)
	assert.Equal(t, def.InitialCapital, report.Config.InitialCapital)
	assert.Equal(t, contracts.ProfitTargetBoth, report.Config.ProfitTargetMode)
	assert.Equal(t, "all", report.Config.Universe)
}

func TestComputeStats(t *testing.T) {
	trade := func(ret float64, held int) contracts.Trade {
		return contracts.Trade{ReturnPct: ret, HoldingDays: held}
	}

	t.Run("no trades", func(t *testing.T) {
		st := ComputeStats(nil, nil, 100, 110)
		assert.InDelta(t, 0.10, st.TotalReturn, 1e-12)
		assert.Zero(t, st.SharpeRatio)
		assert.Zero(t, st.HitRate)
	})

	t.Run("wins only", func(t *testing.T) {
		st := ComputeStats([]contracts.Trade{trade(0.1, 5), trade(0.3, 7)}, nil, 100, 100)
		assert.Equal(t, 2, st.WinningTrades)
		assert.InDelta(t, 0.2, st.AvgWin, 1e-12)
		assert.Zero(t, st.ProfitFactor)
		assert.InDelta(t, 0.3, st.LargestWin, 1e-12)
		assert.InDelta(t, 6, st.AvgHoldingDays, 1e-12)
		// mean 0.2, population std 0.1
		assert.InDelta(t, 2.0, st.SharpeRatio, 1e-9)
	})

	t.Run("identical returns", func(t *testing.T) {
		st := ComputeStats([]contracts.Trade{trade(0.05, 1), trade(0.05, 1)}, nil, 100, 100)
		assert.Zero(t, st.SharpeRatio)
	})

	t.Run("mixed", func(t *testing.T) {
		st := ComputeStats([]contracts.Trade{trade(0.2, 10), trade(-0.1, 4), trade(0.1, 7)}, nil, 100, 100)
		assert.Equal(t, 3, st.TotalTrades)
		assert.Equal(t, 1, st.LosingTrades)
		assert.InDelta(t, 2.0/3.0, st.HitRate, 1e-12)
		assert.InDelta(t, 0.15, st.AvgWin, 1e-12)
		assert.InDelta(t, -0.1, st.AvgLoss, 1e-12)
		assert.InDelta(t, 1.5, st.ProfitFactor, 1e-12)
		assert.InDelta(t, -0.1, st.LargestLoss, 1e-12)
		assert.InDelta(t, 0.5345, st.SharpeRatio, 1e-3)
	})
}

func TestMaxDrawdown(t *testing.T) {
	curve := func(values ...float64) []contracts.EquityPoint {
		out := make([]contracts.EquityPoint, len(values))
		for i, v := range values {
			out[i] = contracts.EquityPoint{Date: dates[i], Equity: v}
		}
		return out
	}

	assert.Zero(t, maxDrawdown(nil))
	assert.Zero(t, maxDrawdown(curve(100, 110, 120)))
	assert.InDelta(t, 0.25, maxDrawdown(curve(100, 120, 90, 130, 117)), 1e-12)
}

func TestPerSymbol(t *testing.T) {
	got := PerSymbol([]contracts.Trade{
		{Symbol: "B", ReturnPct: 0.2},
		{Symbol: "A", ReturnPct: 0.1},
		{Symbol: "A", ReturnPct: -0.05},
	})

	require.Len(t, got, 2)
	assert.Equal(t, "A", got[0].Symbol)
	assert.Equal(t, 2, got[0].Trades)
	assert.InDelta(t, 0.05, got[0].TotalReturn, 1e-12)
	assert.InDelta(t, 0.5, got[0].WinRate, 1e-12)
	assert.Equal(t, "B", got[1].Symbol)
	assert.Equal(t, 1.0, got[1].WinRate)
}

func TestExportTrades(t *testing.T) {
	eng, _ := newEngine(t, map[string][]contracts.Bar{
		"A": breakoutSeries([]float64{100}),
	}, "A")

	report, err := eng.Run(context.Background(), request(dates[60], dates[61]))
	require.NoError(t, err)

	data, err := eng.ExportTrades(context.Background(), report.ID)
	require.NoError(t, err)

	rows, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, tradeHeader, rows[0])
	assert.Equal(t, "A", rows[1][0])
	assert.Equal(t, dates[61].Format(time.DateOnly), rows[1][5])
	assert.Equal(t, contracts.ExitStopLoss, rows[1][7])

	_, err = eng.ExportTrades(context.Background(), "missing")
	assert.Error(t, err)
}
