package commands

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/canslim/internal/contracts"
)

// backtestCmd represents the backtest command
var backtestCmd = &cobra.Command{
	Use:   "backtest",
	Short: "백테스팅",
	Long: `저장된 과거 데이터로 CAN SLIM 규칙을 하루씩 시뮬레이션합니다.

0으로 둔 값은 전략 설정(backtest 섹션)의 기본값을 사용합니다.

Example:
  go run ./cmd/canslim backtest run --from 2023-01-01 --to 2023-12-31
  go run ./cmd/canslim backtest run --from 2023-01-01 --market-gate=false --target 25 --target-mode override
  go run ./cmd/canslim backtest show <id> --trades`,
}

var (
	backtestRunCmd = &cobra.Command{
		Use:   "run",
		Short: "백테스트 실행",
		RunE:  runBacktest,
	}

	backtestShowCmd = &cobra.Command{
		Use:   "show <id>",
		Short: "저장된 백테스트 조회",
		Args:  cobra.ExactArgs(1),
		RunE:  showBacktest,
	}

	backtestListCmd = &cobra.Command{
		Use:   "list",
		Short: "백테스트 목록",
		RunE:  listBacktests,
	}

	backtestTradesCmd = &cobra.Command{
		Use:   "trades <id>",
		Short: "거래 내역 csv 내보내기",
		Args:  cobra.ExactArgs(1),
		RunE:  exportBacktestTrades,
	}

	// Flags
	backtestFrom       string
	backtestTo         string
	backtestUniverse   string
	backtestCutoff     float64
	backtestMaxPos     int
	backtestRisk       float64
	backtestStop       float64
	backtestCapital    float64
	backtestGate       bool
	backtestTarget     float64
	backtestTargetMode string
	backtestShowTrades bool
	backtestOut        string
	backtestLimit      int
)

func init() {
	rootCmd.AddCommand(backtestCmd)
	backtestCmd.AddCommand(backtestRunCmd)
	backtestCmd.AddCommand(backtestShowCmd)
	backtestCmd.AddCommand(backtestListCmd)
	backtestCmd.AddCommand(backtestTradesCmd)

	f := backtestRunCmd.Flags()
	f.StringVar(&backtestFrom, "from", "", "시작 날짜 (YYYY-MM-DD, 기본: 1년 전)")
	f.StringVar(&backtestTo, "to", "", "종료 날짜 (YYYY-MM-DD, 기본: 오늘)")
	f.StringVar(&backtestUniverse, "universe", "all", "universe tag")
	f.Float64Var(&backtestCutoff, "cutoff", 0, "minimum entry score (0-100)")
	f.IntVar(&backtestMaxPos, "max-positions", 0, "concurrent positions")
	f.Float64Var(&backtestRisk, "risk", 0, "percent of cash risked per trade")
	f.Float64Var(&backtestStop, "stop", 0, "stop loss percent (e.g. 8)")
	f.Float64Var(&backtestCapital, "capital", 0, "initial capital")
	f.BoolVar(&backtestGate, "market-gate", true, "close positions and skip entries on down days")
	f.Float64Var(&backtestTarget, "target", 0, "configured profit target percent")
	f.StringVar(&backtestTargetMode, "target-mode", "", "both | override")
	f.BoolVar(&backtestShowTrades, "trades", false, "print the trade ledger")

	backtestShowCmd.Flags().BoolVar(&backtestShowTrades, "trades", false, "print the trade ledger")
	backtestListCmd.Flags().IntVar(&backtestLimit, "limit", 20, "number of reports")
	backtestTradesCmd.Flags().StringVar(&backtestOut, "out", "", "output file (default stdout)")
}

func parseDate(flag, s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("--%s must be YYYY-MM-DD: %w", flag, err)
	}
	return t, nil
}

func runBacktest(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	from, err := parseDate("from", backtestFrom)
	if err != nil {
		return err
	}
	to, err := parseDate("to", backtestTo)
	if err != nil {
		return err
	}

	app, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	req := contracts.BacktestConfig{
		From:                from,
		To:                  to,
		Universe:            backtestUniverse,
		ScoreCutoff:         backtestCutoff,
		MaxPositions:        backtestMaxPos,
		RiskPercent:         backtestRisk,
		StopLossPercent:     backtestStop,
		InitialCapital:      backtestCapital,
		UseMarketGate:       backtestGate,
		ProfitTargetPercent: backtestTarget,
		ProfitTargetMode:    backtestTargetMode,
	}
	if !cmd.Flags().Changed("market-gate") {
		strategy, err := app.Strategy()
		if err != nil {
			return fmt.Errorf("load strategy config: %w", err)
		}
		req.UseMarketGate = strategy.Backtest.UseMarketGate
	}

	start := time.Now()
	report, err := app.Backtest.Run(ctx, req)
	if err != nil {
		return err
	}

	PrintReport(report)
	if backtestShowTrades {
		PrintTrades(report.Trades)
	}
	PrintSuccess(fmt.Sprintf("Backtest %s completed in %.2fs", report.ID, time.Since(start).Seconds()))
	return nil
}

func showBacktest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	app, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	report, err := app.Backtest.Get(ctx, args[0])
	if err != nil {
		return err
	}
	PrintReport(report)
	if backtestShowTrades {
		PrintTrades(report.Trades)
	}
	return nil
}

func listBacktests(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	app, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	reports, err := app.Backtest.List(ctx, backtestLimit)
	if err != nil {
		return err
	}

	widths := []int{36, 10, 23, 8, 9, 6}
	PrintTableHeader([]string{"ID", "CREATED", "PERIOD", "RETURN", "MAX DD", "TRADES"}, widths)
	for _, r := range reports {
		PrintTableRow([]string{
			r.ID,
			date(r.CreatedAt),
			date(r.EffectiveFrom) + " ~ " + date(r.EffectiveTo),
			pct(r.Stats.TotalReturn),
			pct(r.Stats.MaxDrawdown),
			fmt.Sprintf("%d", r.Stats.TotalTrades),
		}, widths)
	}
	return nil
}

func exportBacktestTrades(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	app, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	data, err := app.Backtest.ExportTrades(ctx, args[0])
	if err != nil {
		return err
	}

	if backtestOut == "" {
		_, err = out.Write(data)
		return err
	}
	if err := os.WriteFile(backtestOut, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", backtestOut, err)
	}
	PrintSuccess(fmt.Sprintf("Wrote trades of %s to %s", args[0], backtestOut))
	return nil
}
