package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/canslim/internal/contracts"
	"github.com/wonny/canslim/internal/storage"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestBarsUpsertAndRange(t *testing.T) {
	ctx := context.Background()
	s := New()

	_, _, err := s.BarRange(ctx)
	assert.True(t, errors.Is(err, storage.ErrNotFound))

	require.NoError(t, s.UpsertBars(ctx, "AAA", []contracts.Bar{
		{Date: day(2024, 1, 3), Close: 11},
		{Date: day(2024, 1, 2), Close: 10},
	}))
	// same date overwrites
	require.NoError(t, s.UpsertBars(ctx, "AAA", []contracts.Bar{{Date: day(2024, 1, 3), Close: 12}}))
	require.NoError(t, s.UpsertBars(ctx, "BBB", []contracts.Bar{{Date: day(2023, 12, 29), Close: 5}}))

	bars, err := s.GetBars(ctx, "AAA", time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.Equal(t, day(2024, 1, 2), bars[0].Date)
	assert.Equal(t, 12.0, bars[1].Close)

	bars, err = s.GetBars(ctx, "AAA", day(2024, 1, 3), day(2024, 1, 3))
	require.NoError(t, err)
	assert.Len(t, bars, 1)

	_, err = s.GetBars(ctx, "AAA", day(2024, 2, 1), day(2024, 1, 1))
	assert.True(t, errors.Is(err, storage.ErrInvalidInput))

	from, to, err := s.BarRange(ctx)
	require.NoError(t, err)
	assert.Equal(t, day(2023, 12, 29), from)
	assert.Equal(t, day(2024, 1, 3), to)

	latest, err := s.LatestBarDates(ctx, []string{"AAA", "BBB", "ZZZ"})
	require.NoError(t, err)
	assert.Equal(t, map[string]time.Time{"AAA": day(2024, 1, 3), "BBB": day(2023, 12, 29)}, latest)
}

func TestFundamentals(t *testing.T) {
	ctx := context.Background()
	s := New()

	require.NoError(t, s.UpsertEarnings(ctx, "AAA", []contracts.EarningsRecord{
		{QuarterEnd: day(2023, 6, 30), EPS: 2},
		{QuarterEnd: day(2023, 3, 31), EPS: 1},
	}))
	recs, err := s.GetEarnings(ctx, "AAA")
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, 1.0, recs[0].EPS)
	assert.Equal(t, "AAA", recs[0].Symbol)

	require.NoError(t, s.UpsertOwnership(ctx, "AAA", []contracts.OwnershipRecord{
		{Date: day(2023, 9, 30), InstitutionalPct: 0.5},
	}))
	own, err := s.GetOwnership(ctx, "AAA")
	require.NoError(t, err)
	assert.Len(t, own, 1)

	assert.True(t, errors.Is(s.UpsertEarnings(ctx, "", nil), storage.ErrInvalidInput))
}

func TestReplaceSymbols(t *testing.T) {
	ctx := context.Background()
	s := New()

	require.NoError(t, s.ReplaceSymbols(ctx, []contracts.SymbolMeta{{Symbol: "BBB"}, {Symbol: "AAA"}}))
	require.NoError(t, s.ReplaceSymbols(ctx, []contracts.SymbolMeta{{Symbol: "CCC"}}))

	syms, err := s.ListSymbols(ctx)
	require.NoError(t, err)
	assert.Equal(t, []contracts.SymbolMeta{{Symbol: "CCC"}}, syms)
}

func TestRunLifecycle(t *testing.T) {
	ctx := context.Background()
	s := New()
	started := day(2024, 5, 1)

	require.NoError(t, s.CreateRun(ctx, contracts.ScanRun{ID: "r1", StartedAt: started, Status: contracts.RunStatusRunning}))
	require.NoError(t, s.CreateRun(ctx, contracts.ScanRun{ID: "r2", StartedAt: started.Add(time.Hour), Status: contracts.RunStatusRunning}))
	assert.True(t, errors.Is(s.CreateRun(ctx, contracts.ScanRun{ID: "r1"}), storage.ErrInvalidInput))

	require.NoError(t, s.FinishRun(ctx, "r1", contracts.RunOutcome{
		Status: contracts.RunStatusCompleted, FinishedAt: started.Add(time.Minute), ResultCount: 2,
	}))
	assert.True(t, errors.Is(s.FinishRun(ctx, "nope", contracts.RunOutcome{}), storage.ErrNotFound))

	run, err := s.GetRun(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, contracts.RunStatusCompleted, run.Status)
	require.NotNil(t, run.FinishedAt)
	assert.Equal(t, 2, run.ResultCount)

	runs, err := s.ListRuns(ctx, 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "r2", runs[0].ID)

	results := []contracts.ScoreResult{{Symbol: "AAA", Score: 70}, {Symbol: "BBB", Score: 40}}
	require.NoError(t, s.SaveRunResults(ctx, "r1", results))
	got, err := s.GetRunResults(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, results, got)

	_, err = s.GetRunResults(ctx, "nope")
	assert.True(t, errors.Is(err, storage.ErrNotFound))

	n, err := s.DeleteRunsBefore(ctx, started.Add(30*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	_, err = s.GetRun(ctx, "r1")
	assert.True(t, errors.Is(err, storage.ErrNotFound))
}

func TestLiveResultsAreReplacedWholesale(t *testing.T) {
	ctx := context.Background()
	s := New()

	require.NoError(t, s.ReplaceLiveResults(ctx, "r1", []contracts.ScoreResult{{Symbol: "AAA"}, {Symbol: "BBB"}}))
	require.NoError(t, s.ReplaceLiveResults(ctx, "r2", []contracts.ScoreResult{{Symbol: "CCC"}}))

	runID, live, err := s.GetLiveResults(ctx)
	require.NoError(t, err)
	assert.Equal(t, "r2", runID)
	assert.Equal(t, []contracts.ScoreResult{{Symbol: "CCC"}}, live)

	// returned slice is a copy
	live[0].Symbol = "MUT"
	_, again, _ := s.GetLiveResults(ctx)
	assert.Equal(t, "CCC", again[0].Symbol)
}

func TestBacktests(t *testing.T) {
	ctx := context.Background()
	s := New()

	report := &contracts.BacktestReport{
		ID:        "b1",
		CreatedAt: day(2024, 5, 1),
		Trades:    []contracts.Trade{{Symbol: "AAA"}},
	}
	require.NoError(t, s.SaveBacktest(ctx, report))
	require.NoError(t, s.SaveBacktest(ctx, &contracts.BacktestReport{ID: "b2", CreatedAt: day(2024, 5, 2)}))
	assert.True(t, errors.Is(s.SaveBacktest(ctx, report), storage.ErrInvalidInput))

	got, err := s.GetBacktest(ctx, "b1")
	require.NoError(t, err)
	assert.Len(t, got.Trades, 1)

	list, err := s.ListBacktests(ctx, 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "b2", list[0].ID)
	assert.Nil(t, list[1].Trades)

	_, err = s.GetBacktest(ctx, "missing")
	assert.True(t, errors.Is(err, storage.ErrNotFound))
}

func TestComposite(t *testing.T) {
	ctx := context.Background()
	base := New()
	bars := New()

	assert.Same(t, storage.Store(base), storage.NewComposite(base, nil))

	c := storage.NewComposite(base, bars)
	require.NoError(t, c.UpsertBars(ctx, "AAA", []contracts.Bar{{Date: day(2024, 1, 2), Close: 1}}))
	require.NoError(t, c.ReplaceSymbols(ctx, []contracts.SymbolMeta{{Symbol: "AAA"}}))

	fromBase, _ := base.GetBars(ctx, "AAA", time.Time{}, time.Time{})
	assert.Empty(t, fromBase, "bars are routed to the bar store")
	fromBars, _ := bars.GetBars(ctx, "AAA", time.Time{}, time.Time{})
	assert.Len(t, fromBars, 1)

	syms, _ := base.ListSymbols(ctx)
	assert.Len(t, syms, 1)
	require.NoError(t, c.Close())
}
