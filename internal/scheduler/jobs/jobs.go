// Package jobs holds the scheduled jobs of the screener
package jobs

import (
	"github.com/wonny/canslim/internal/bootstrap"
	"github.com/wonny/canslim/internal/contracts"
	"github.com/wonny/canslim/internal/scheduler"
)

// All returns the standard job set configured for app
func All(app *bootstrap.App) []scheduler.Job {
	cfg := app.Config.Scan
	return []scheduler.Job{
		NewScanJob(app.Scanner, cfg.Schedule, contracts.ScanRequest{Mode: contracts.ScanModeIncremental}, app.Logger),
		NewUniverseJob(app.Scanner, cfg.UniverseSchedule, "", app.Logger),
		NewRetentionJob(app.Store, cfg.RetentionDays, app.Clock, app.Logger),
	}
}

// Register adds every job in js to s
func Register(s *scheduler.Scheduler, js []scheduler.Job) error {
	for _, j := range js {
		if err := s.AddJob(j); err != nil {
			return err
		}
	}
	return nil
}
