package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/canslim/internal/bootstrap"
	"github.com/wonny/canslim/internal/contracts"
	"github.com/wonny/canslim/internal/scanner"
	"github.com/wonny/canslim/internal/scheduler"
	"github.com/wonny/canslim/pkg/config"
	"github.com/wonny/canslim/pkg/logger"
)

type fakeRunner struct {
	got contracts.ScanRequest
	err error
}

func (f *fakeRunner) Run(ctx context.Context, req contracts.ScanRequest) (string, error) {
	f.got = req
	return "run-1", f.err
}

type fakeRefresher struct {
	provider string
	err      error
}

func (f *fakeRefresher) RefreshUniverse(ctx context.Context, name string) (int, error) {
	f.provider = name
	return 503, f.err
}

type fakePruner struct {
	cutoff time.Time
}

func (f *fakePruner) DeleteRunsBefore(ctx context.Context, cutoff time.Time) (int, error) {
	f.cutoff = cutoff
	return 2, nil
}

func TestScanJob(t *testing.T) {
	r := &fakeRunner{}
	job := NewScanJob(r, "0 30 17 * * 1-5", contracts.ScanRequest{Universe: "sp500"}, logger.Nop())

	assert.Equal(t, "universe_scan", job.Name())
	assert.Equal(t, "0 30 17 * * 1-5", job.Schedule())
	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, contracts.ScanModeIncremental, r.got.Mode)
	assert.Equal(t, "sp500", r.got.Universe)

	r.err = scanner.ErrScanInProgress
	assert.ErrorIs(t, job.Run(context.Background()), scheduler.ErrSkipped)

	r.err = errors.New("provider down")
	err := job.Run(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, scheduler.ErrSkipped)
}

func TestUniverseJob(t *testing.T) {
	f := &fakeRefresher{}
	job := NewUniverseJob(f, "0 0 6 * * 1", "yahoo", logger.Nop())
	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, "yahoo", f.provider)

	f.err = errors.New("wikipedia changed its table")
	assert.Error(t, job.Run(context.Background()))
}

func TestRetentionJob(t *testing.T) {
	now := time.Date(2024, 6, 28, 17, 45, 0, 0, time.UTC)
	p := &fakePruner{}

	job := NewRetentionJob(p, 90, contracts.FixedClock{T: now}, logger.Nop())
	assert.Equal(t, RetentionSchedule, job.Schedule())
	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, time.Date(2024, 3, 30, 0, 0, 0, 0, time.UTC), p.cutoff)

	p = &fakePruner{}
	require.NoError(t, NewRetentionJob(p, 0, contracts.FixedClock{T: now}, logger.Nop()).Run(context.Background()))
	assert.True(t, p.cutoff.IsZero(), "zero days keeps everything")
}

func TestAllRegisters(t *testing.T) {
	cfg := &config.Config{
		StoreBackend: "memory",
		Providers:    config.ProvidersConfig{Default: bootstrap.ProviderYahoo},
		Scan: config.ScanConfig{
			Schedule:         "0 30 17 * * 1-5",
			UniverseSchedule: "0 0 6 * * 1",
			RetentionDays:    90,
		},
	}
	app, err := bootstrap.New(context.Background(), cfg, logger.Nop(), bootstrap.Options{})
	require.NoError(t, err)
	defer app.Close()

	s := scheduler.New(context.Background(), logger.Nop())
	defer s.Stop()

	require.NoError(t, Register(s, All(app)))
	assert.Equal(t, []string{"run_retention", "universe_refresh", "universe_scan"}, s.GetAllJobs())
}
