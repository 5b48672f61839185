package commands

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

var (
	universeCmd = &cobra.Command{
		Use:   "universe",
		Short: "유니버스 관리",
	}

	universeRefreshCmd = &cobra.Command{
		Use:   "refresh",
		Short: "공급자에서 유니버스 다시 받기",
		RunE:  runUniverseRefresh,
	}

	providerCmd = &cobra.Command{
		Use:   "provider",
		Short: "시세 공급자",
	}

	providerTestCmd = &cobra.Command{
		Use:   "test [name]",
		Short: "공급자 연결 테스트 (이름 생략 시 전체)",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runProviderTest,
	}

	gateCmd = &cobra.Command{
		Use:   "gate",
		Short: "시장 게이트 (M)",
	}

	gateCheckCmd = &cobra.Command{
		Use:   "check",
		Short: "현재 시장 추세 판정",
		RunE:  runGateCheck,
	}

	// Flags
	universeProvider string
	gateProvider     string
)

func init() {
	rootCmd.AddCommand(universeCmd)
	universeCmd.AddCommand(universeRefreshCmd)
	rootCmd.AddCommand(providerCmd)
	providerCmd.AddCommand(providerTestCmd)
	rootCmd.AddCommand(gateCmd)
	gateCmd.AddCommand(gateCheckCmd)

	universeRefreshCmd.Flags().StringVar(&universeProvider, "provider", "", "provider (default from config)")
	gateCheckCmd.Flags().StringVar(&gateProvider, "provider", "", "provider (default from config)")
}

func runUniverseRefresh(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	app, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	n, err := app.Scanner.RefreshUniverse(ctx, universeProvider)
	if err != nil {
		return err
	}
	PrintSuccess(fmt.Sprintf("Universe refreshed: %d symbols from %s", n, providerLabel(universeProvider, app.Providers.Default())))
	return nil
}

func runProviderTest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	app, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	names := app.Providers.Names()
	if len(args) == 1 {
		names = args
	}

	PrintHeader("Provider Connection Test")
	failed := 0
	for _, name := range names {
		p, err := app.Providers.Get(name)
		if err != nil {
			PrintError(err.Error())
			failed++
			continue
		}
		caps := p.Capabilities()
		detail := fmt.Sprintf("universe=%t bars=%t index=%t earnings=%t ownership=%t",
			caps.Universe, caps.Bars, caps.IndexBars, caps.Earnings, caps.Ownership)
		if p.TestConnection(ctx) {
			PrintSuccess(name + "  " + detail)
		} else {
			PrintError(name + "  " + detail)
			failed++
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d provider(s) failed", failed)
	}
	return nil
}

func runGateCheck(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	app, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	d, err := app.Gate(ctx, gateProvider)
	if err != nil {
		return err
	}

	PrintHeader("Market Gate")
	PrintKeyValue("Benchmark", d.Ticker, 10)
	PrintKeyValue("As of", date(d.AsOf), 10)
	PrintKeyValue("Bars", fmt.Sprintf("%d", d.Bars), 10)
	if d.LongMA > 0 {
		PrintKeyValue("Price", fmt.Sprintf("%.2f", d.Price), 10)
		PrintKeyValue("Short MA", fmt.Sprintf("%.2f", d.ShortMA), 10)
		PrintKeyValue("Long MA", fmt.Sprintf("%.2f", d.LongMA), 10)
	}
	PrintSeparator()
	if d.Open {
		PrintSuccess("Market open for entries (" + d.Reason + ")")
	} else {
		PrintWarning("Market down, entries suppressed (" + d.Reason + ")")
	}
	return nil
}

// checkCmd verifies connectivity of every configured dependency
var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "DB/Redis/공급자 연결 점검",
	RunE:  runCheck,
}

// migrateCmd applies the embedded schema
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "스키마 마이그레이션 적용",
	RunE:  runMigrate,
}

func init() {
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(migrateCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	app, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	results := app.Check(ctx)
	names := make([]string, 0, len(results))
	for name := range results {
		names = append(names, name)
	}
	sort.Strings(names)

	PrintHeader("Connectivity Check")
	failed := 0
	for _, name := range names {
		if err := results[name]; err != nil {
			PrintError(fmt.Sprintf("%-20s %v", name, err))
			failed++
		} else {
			PrintSuccess(name)
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d check(s) failed", failed)
	}
	return nil
}

func runMigrate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	app, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	applied, err := app.Migrate(ctx)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	if len(applied) == 0 {
		PrintInfo("Nothing to apply")
		return nil
	}
	PrintSuccess(fmt.Sprintf("Applied %d migration(s)", len(applied)))
	PrintList(applied)
	return nil
}
