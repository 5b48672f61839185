package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/canslim/internal/bootstrap"
	"github.com/wonny/canslim/internal/scheduler"
	"github.com/wonny/canslim/internal/scheduler/jobs"
)

// schedulerCmd represents the scheduler command
var schedulerCmd = &cobra.Command{
	Use:   "scheduler",
	Short: "스케줄러 관리",
	Long: `정기 작업 스케줄러를 시작하거나 작업을 조회합니다.

등록되는 작업:
- universe_scan:    SCAN_SCHEDULE (기본: 평일 17:30, incremental)
- universe_refresh: UNIVERSE_SCHEDULE (기본: 월요일 06:00)
- run_retention:    매일 03:00 (RETENTION_DAYS 이전 스캔 삭제)

Example:
  go run ./cmd/canslim scheduler start
  go run ./cmd/canslim scheduler list`,
}

var (
	schedulerStartCmd = &cobra.Command{
		Use:   "start",
		Short: "스케줄러 시작",
		RunE:  runScheduler,
	}

	schedulerListCmd = &cobra.Command{
		Use:   "list",
		Short: "등록된 작업 목록",
		RunE:  listJobs,
	}
)

func init() {
	rootCmd.AddCommand(schedulerCmd)
	schedulerCmd.AddCommand(schedulerStartCmd)
	schedulerCmd.AddCommand(schedulerListCmd)
}

// newScheduler registers the standard jobs without starting the cron loop
func newScheduler(ctx context.Context, app *bootstrap.App) (*scheduler.Scheduler, error) {
	sched := scheduler.New(ctx, app.Logger)
	if err := jobs.Register(sched, jobs.All(app)); err != nil {
		return nil, fmt.Errorf("register jobs: %w", err)
	}
	return sched, nil
}

// startScheduler registers the standard jobs and starts the cron loop
func startScheduler(ctx context.Context, app *bootstrap.App) (*scheduler.Scheduler, error) {
	sched, err := newScheduler(ctx, app)
	if err != nil {
		return nil, err
	}
	sched.Start()
	return sched, nil
}

func runScheduler(cmd *cobra.Command, args []string) error {
	fmt.Fprintln(out, "=== CAN SLIM Scheduler ===")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	sched, err := startScheduler(ctx, app)
	if err != nil {
		return err
	}

	fmt.Fprintln(out)
	PrintSuccess("Scheduler started successfully")
	printJobTable(sched)
	fmt.Fprintln(out, "\nPress Ctrl+C to stop")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	fmt.Fprintln(out, "\nShutting down scheduler...")
	sched.Stop()
	fmt.Fprintln(out, "Scheduler stopped")

	return nil
}

func listJobs(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	app, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	sched, err := newScheduler(ctx, app)
	if err != nil {
		return err
	}

	printJobTable(sched)
	return nil
}

func printJobTable(sched *scheduler.Scheduler) {
	stats := sched.GetJobStats()
	widths := []int{18, 18, 20}
	PrintTableHeader([]string{"JOB", "SCHEDULE", "NEXT RUN"}, widths)
	for _, name := range sched.GetAllJobs() {
		st := stats[name]
		next := "-"
		if st.NextRun != nil {
			next = st.NextRun.Local().Format(time.DateTime)
		}
		PrintTableRow([]string{name, st.Schedule, next}, widths)
	}
}
