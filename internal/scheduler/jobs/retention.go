package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/wonny/canslim/internal/contracts"
	"github.com/wonny/canslim/pkg/logger"
)

// RetentionSchedule runs the cleanup nightly
const RetentionSchedule = "0 0 3 * * *"

// RunPruner deletes old scan runs
type RunPruner interface {
	DeleteRunsBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// RetentionJob deletes scan runs older than the retention window
type RetentionJob struct {
	pruner RunPruner
	days   int
	clock  contracts.Clock
	logger *logger.Logger
}

// NewRetentionJob creates a new retention job
func NewRetentionJob(pruner RunPruner, days int, clock contracts.Clock, log *logger.Logger) *RetentionJob {
	return &RetentionJob{
		pruner: pruner,
		days:   days,
		clock:  clock,
		logger: log,
	}
}

// Name returns the job name
func (j *RetentionJob) Name() string {
	return "run_retention"
}

// Schedule returns the cron schedule
func (j *RetentionJob) Schedule() string {
	return RetentionSchedule
}

// Run executes the cleanup; days <= 0 keeps everything
func (j *RetentionJob) Run(ctx context.Context) error {
	if j.days <= 0 {
		return nil
	}

	cutoff := contracts.Day(j.clock.Now()).AddDate(0, 0, -j.days)
	n, err := j.pruner.DeleteRunsBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("delete runs before %s: %w", cutoff.Format(time.DateOnly), err)
	}

	if n > 0 {
		j.logger.WithFields(map[string]interface{}{
			"removed": n,
			"cutoff":  cutoff.Format(time.DateOnly),
		}).Info("Old scan runs removed")
	}
	return nil
}
