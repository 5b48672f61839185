package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wonny/canslim/internal/bootstrap"
	"github.com/wonny/canslim/pkg/config"
	"github.com/wonny/canslim/pkg/logger"
)

var (
	// Global flags
	configFile string
	env        string
	verbose    bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "canslim",
	Short: "CAN SLIM 스크리너 - 미국 주식 성장주 스캐너",
	Long: `CAN SLIM Screener CLI

유니버스를 배치 단위로 스캔해 CAN SLIM 점수를 매기고,
같은 규칙으로 과거 데이터를 백테스트합니다.

Usage:
  go run ./cmd/canslim [command]

Examples:
  go run ./cmd/canslim scan run --mode incremental
  go run ./cmd/canslim results live --limit 20
  go run ./cmd/canslim backtest run --from 2023-01-01 --to 2023-12-31
  go run ./cmd/canslim api`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "env file (default is .env)")
	rootCmd.PersistentFlags().StringVar(&env, "env", "", "environment override (development|staging|production)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

// loadConfig reads configuration and applies the global flags
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadFile(configFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if env != "" {
		cfg.Env = env
	}
	if verbose {
		cfg.LogLevel = "debug"
	}
	return cfg, nil
}

// newApp loads configuration and assembles the application
func newApp(ctx context.Context) (*bootstrap.App, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	log := logger.New(cfg)

	app, err := bootstrap.New(ctx, cfg, log, bootstrap.Options{})
	if err != nil {
		return nil, fmt.Errorf("init application: %w", err)
	}
	return app, nil
}

// signalContext is cancelled on Ctrl+C or SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
