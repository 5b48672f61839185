package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/canslim/internal/contracts"
)

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "유니버스 스캔",
	Long: `유니버스를 배치 단위로 스캔해 CAN SLIM 점수를 계산합니다.

Modes:
  incremental  - 누락/오래된 시세만 다시 수집 (기본)
  full         - 모든 종목 시세를 다시 수집

Example:
  go run ./cmd/canslim scan run
  go run ./cmd/canslim scan run --mode full --universe sp500
  go run ./cmd/canslim scan list --limit 10`,
}

var (
	scanRunCmd = &cobra.Command{
		Use:   "run",
		Short: "스캔 실행 (완료까지 대기)",
		RunE:  runScan,
	}

	scanStatusCmd = &cobra.Command{
		Use:   "status",
		Short: "최근 스캔 상태",
		RunE:  runScanStatus,
	}

	scanListCmd = &cobra.Command{
		Use:   "list",
		Short: "스캔 이력",
		RunE:  runScanList,
	}

	// Flags
	scanMode     string
	scanUniverse string
	scanProvider string
	scanLimit    int
)

func init() {
	rootCmd.AddCommand(scanCmd)
	scanCmd.AddCommand(scanRunCmd)
	scanCmd.AddCommand(scanStatusCmd)
	scanCmd.AddCommand(scanListCmd)

	scanRunCmd.Flags().StringVar(&scanMode, "mode", string(contracts.ScanModeIncremental), "incremental | full")
	scanRunCmd.Flags().StringVar(&scanUniverse, "universe", "all", "universe tag from the strategy config")
	scanRunCmd.Flags().StringVar(&scanProvider, "provider", "", "market data provider (default from config)")
	scanListCmd.Flags().IntVar(&scanLimit, "limit", 20, "number of runs")
}

func runScan(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	app, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	req := contracts.ScanRequest{
		Mode:     contracts.ScanMode(scanMode),
		Universe: scanUniverse,
		Provider: scanProvider,
	}

	PrintHeader("CAN SLIM Scan")
	PrintKeyValue("Mode", scanMode, 10)
	PrintKeyValue("Universe", scanUniverse, 10)
	PrintKeyValue("Provider", providerLabel(scanProvider, app.Providers.Default()), 10)
	PrintSeparator()

	// progress from the live accumulator
	updates, cancel := app.Scanner.Subscribe()
	progressDone := make(chan struct{})
	go func() {
		defer close(progressDone)
		for snap := range updates {
			st := app.Scanner.Status()
			fmt.Fprintf(out, "[Scan] batch %d/%d  scored %d  qualified %d\n",
				st.BatchesDone, st.BatchesTotal, snap.Len(), snap.Qualified())
		}
	}()

	start := time.Now()
	runID, err := app.Scanner.Run(ctx, req)
	cancel()
	<-progressDone
	if err != nil {
		if runID != "" {
			PrintError(fmt.Sprintf("Scan %s failed: %v", runID, err))
		}
		return err
	}

	st := app.Scanner.Status()
	fmt.Fprintln(out)
	PrintSuccess(fmt.Sprintf("Scan %s completed in %.2fs", runID, time.Since(start).Seconds()))
	PrintKeyValue("Symbols", fmt.Sprintf("%d", st.SymbolsTotal), 14)
	PrintKeyValue("Scored", fmt.Sprintf("%d", st.SymbolsScored), 14)
	PrintKeyValue("Failed batches", fmt.Sprintf("%d", st.BatchesFailed), 14)
	return nil
}

func runScanStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	app, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	runs, err := app.Scanner.ListRuns(ctx, 1)
	if err != nil {
		return fmt.Errorf("list runs: %w", err)
	}
	if len(runs) == 0 {
		PrintInfo("No scan has run yet")
		return nil
	}

	r := runs[0]
	PrintHeader("Latest Scan")
	PrintKeyValue("Run ID", r.ID, 14)
	PrintKeyValue("Status", r.Status, 14)
	PrintKeyValue("Mode", string(r.Mode), 14)
	PrintKeyValue("Universe", r.Universe, 14)
	PrintKeyValue("Provider", r.Provider, 14)
	PrintKeyValue("Started", r.StartedAt.Format(time.RFC3339), 14)
	if r.FinishedAt != nil {
		PrintKeyValue("Finished", r.FinishedAt.Format(time.RFC3339), 14)
	}
	PrintKeyValue("Symbols", fmt.Sprintf("%d", r.SymbolCount), 14)
	PrintKeyValue("Results", fmt.Sprintf("%d", r.ResultCount), 14)
	PrintKeyValue("Market gate", fmt.Sprintf("%t (%s)", r.GateOpen, r.GateReason), 14)
	PrintKeyValue("Config", r.ConfigVersion+" "+r.ConfigHash, 14)
	if r.Error != "" {
		PrintKeyValue("Error", r.Error, 14)
	}
	return nil
}

func runScanList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	app, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	runs, err := app.Scanner.ListRuns(ctx, scanLimit)
	if err != nil {
		return fmt.Errorf("list runs: %w", err)
	}
	PrintRuns(runs)
	return nil
}

func providerLabel(name, def string) string {
	if name == "" {
		return def + " (default)"
	}
	return name
}
