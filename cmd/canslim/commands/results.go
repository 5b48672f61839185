package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/wonny/canslim/internal/contracts"
	"github.com/wonny/canslim/internal/scanner"
)

var (
	resultsCmd = &cobra.Command{
		Use:   "results [run-id|live]",
		Short: "스캔 결과 조회",
		Long: `실행 결과 또는 현재 누적 결과(live)를 순위대로 출력합니다.

Example:
  go run ./cmd/canslim results live --limit 20
  go run ./cmd/canslim results 2f1c... --qualified`,
		Args: cobra.MaximumNArgs(1),
		RunE: runResults,
	}

	exportCmd = &cobra.Command{
		Use:   "export <run-id>",
		Short: "스캔 결과 내보내기 (csv/json)",
		Args:  cobra.ExactArgs(1),
		RunE:  runExport,
	}

	// Flags
	resultsLimit     int
	resultsQualified bool
	exportFormat     string
	exportOut        string
)

func init() {
	rootCmd.AddCommand(resultsCmd)
	rootCmd.AddCommand(exportCmd)

	resultsCmd.Flags().IntVar(&resultsLimit, "limit", 50, "max rows (0 = all)")
	resultsCmd.Flags().BoolVar(&resultsQualified, "qualified", false, "only rows passing every gate")
	exportCmd.Flags().StringVar(&exportFormat, "format", scanner.FormatCSV, "csv | json")
	exportCmd.Flags().StringVar(&exportOut, "out", "", "output file (default stdout)")
}

func runResults(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	app, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	var results []contracts.ScoreResult
	title := "Live Results"
	if len(args) == 0 || args[0] == "live" {
		snap, err := app.Scanner.Live(ctx)
		if err != nil {
			return err
		}
		results = snap.Results
		if snap.RunID != "" {
			title += " (run " + snap.RunID + ")"
		}
	} else {
		results, err = app.Scanner.GetResults(ctx, args[0])
		if err != nil {
			return fmt.Errorf("get results: %w", err)
		}
		title = "Results of run " + args[0]
	}

	results = selectResults(results, resultsQualified, resultsLimit)
	PrintHeader(title)
	if len(results) == 0 {
		PrintInfo("No results")
		return nil
	}
	PrintResults(results)
	return nil
}

// selectResults keeps rank order, optionally only qualified rows
func selectResults(results []contracts.ScoreResult, qualifiedOnly bool, limit int) []contracts.ScoreResult {
	out := make([]contracts.ScoreResult, 0, len(results))
	for _, r := range results {
		if qualifiedOnly && !r.Qualified {
			continue
		}
		out = append(out, r)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

func runExport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	app, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	data, err := app.Scanner.Export(ctx, args[0], exportFormat)
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}

	if exportOut == "" {
		_, err = out.Write(data)
		return err
	}
	if err := os.WriteFile(exportOut, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", exportOut, err)
	}
	PrintSuccess(fmt.Sprintf("Exported %s to %s", args[0], exportOut))
	return nil
}
