package jobs

import (
	"context"
	"fmt"

	"github.com/wonny/canslim/pkg/logger"
)

// UniverseRefresher replaces the stored universe from a provider
type UniverseRefresher interface {
	RefreshUniverse(ctx context.Context, providerName string) (int, error)
}

// UniverseJob refreshes the symbol universe weekly
// ⭐ SSOT: 유니버스 갱신 스케줄은 이 Job에서만
type UniverseJob struct {
	refresher UniverseRefresher
	schedule  string
	provider  string
	logger    *logger.Logger
}

// NewUniverseJob creates a new universe job; an empty provider uses the default
func NewUniverseJob(refresher UniverseRefresher, schedule, provider string, log *logger.Logger) *UniverseJob {
	return &UniverseJob{
		refresher: refresher,
		schedule:  schedule,
		provider:  provider,
		logger:    log,
	}
}

// Name returns the job name
func (j *UniverseJob) Name() string {
	return "universe_refresh"
}

// Schedule returns the cron schedule
func (j *UniverseJob) Schedule() string {
	return j.schedule
}

// Run executes the refresh
func (j *UniverseJob) Run(ctx context.Context) error {
	n, err := j.refresher.RefreshUniverse(ctx, j.provider)
	if err != nil {
		return fmt.Errorf("refresh universe: %w", err)
	}

	j.logger.WithField("symbols", n).Info("Universe refreshed")
	return nil
}
