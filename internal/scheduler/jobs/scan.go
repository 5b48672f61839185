package jobs

import (
	"context"
	"errors"
	"fmt"

	"github.com/wonny/canslim/internal/contracts"
	"github.com/wonny/canslim/internal/scanner"
	"github.com/wonny/canslim/internal/scheduler"
	"github.com/wonny/canslim/pkg/logger"
)

// ScanRunner executes one scan to completion
type ScanRunner interface {
	Run(ctx context.Context, req contracts.ScanRequest) (string, error)
}

// ScanJob runs the after-close incremental scan
// ⭐ SSOT: 정기 스캔 스케줄은 이 Job에서만
type ScanJob struct {
	runner   ScanRunner
	schedule string
	request  contracts.ScanRequest
	logger   *logger.Logger
}

// NewScanJob creates a new scan job
func NewScanJob(runner ScanRunner, schedule string, req contracts.ScanRequest, log *logger.Logger) *ScanJob {
	if req.Mode == "" {
		req.Mode = contracts.ScanModeIncremental
	}
	return &ScanJob{
		runner:   runner,
		schedule: schedule,
		request:  req,
		logger:   log,
	}
}

// Name returns the job name
func (j *ScanJob) Name() string {
	return "universe_scan"
}

// Schedule returns the cron schedule (weekdays after the close by default)
func (j *ScanJob) Schedule() string {
	return j.schedule
}

// Run executes the scan. A scan already in flight skips this tick.
func (j *ScanJob) Run(ctx context.Context) error {
	j.logger.WithFields(map[string]interface{}{
		"mode":     j.request.Mode,
		"universe": j.request.Universe,
		"provider": j.request.Provider,
	}).Info("Starting scheduled scan")

	runID, err := j.runner.Run(ctx, j.request)
	if errors.Is(err, scanner.ErrScanInProgress) {
		return fmt.Errorf("%w: %v", scheduler.ErrSkipped, err)
	}
	if err != nil {
		return fmt.Errorf("scheduled scan %s: %w", runID, err)
	}

	j.logger.WithField("run_id", runID).Info("Scheduled scan completed")
	return nil
}
