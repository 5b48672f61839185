package commands

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/canslim/internal/api"
)

// apiCmd represents the api command
var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "API 서버 시작",
	Long: `REST + WebSocket API 서버를 시작합니다.

Endpoints:
  GET  /health
  GET  /api/providers
  GET  /api/market-gate
  POST /api/scans                     - 백그라운드 스캔 시작 (202)
  GET  /api/scans                     - 스캔 이력
  GET  /api/scans/status
  GET  /api/scans/live                - 현재 누적 결과
  GET  /api/scans/live/stream         - WebSocket 스트림
  GET  /api/scans/{id}/results
  GET  /api/scans/{id}/export?format=csv|json
  POST /api/backtests
  GET  /api/backtests
  GET  /api/backtests/{id}
  GET  /api/backtests/{id}/trades.csv
  GET  /metrics                       - METRICS_ENABLED=true

Example:
  go run ./cmd/canslim api
  go run ./cmd/canslim api --port 9090 --with-scheduler`,
	RunE: runAPIServer,
}

var (
	apiPort          string
	apiWithScheduler bool
)

func init() {
	rootCmd.AddCommand(apiCmd)

	apiCmd.Flags().StringVar(&apiPort, "port", "", "API 서버 포트 (기본: PORT)")
	apiCmd.Flags().BoolVar(&apiWithScheduler, "with-scheduler", false, "run the scheduled jobs in the same process")
}

func runAPIServer(cmd *cobra.Command, args []string) error {
	fmt.Fprintln(out, "=== CAN SLIM API Server ===")

	// background scans live as long as the process
	baseCtx, cancelBase := context.WithCancel(context.Background())
	defer cancelBase()

	app, err := newApp(baseCtx)
	if err != nil {
		return err
	}
	defer app.Close()

	cfg, log := app.Config, app.Logger
	if apiPort != "" {
		cfg.Port = apiPort
	}

	router := api.NewRouter(api.NewHandlers(baseCtx, app), app.Metrics, log)
	server := api.New(cfg, log, router, app.Ready)

	// separate metrics listener when a dedicated port is configured
	var metricsServer *http.Server
	if app.Metrics != nil && cfg.MetricsPort != "" && cfg.MetricsPort != cfg.Port {
		metricsServer = &http.Server{
			Addr:              ":" + cfg.MetricsPort,
			Handler:           app.Metrics.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.WithError(err).Error("Metrics server failed")
			}
		}()
	}

	if apiWithScheduler {
		sched, err := startScheduler(baseCtx, app)
		if err != nil {
			return err
		}
		defer sched.Stop()
	}

	go func() {
		if err := server.Start(); err != nil {
			log.WithError(err).Fatal("Failed to start server")
		}
	}()

	log.Info("API server started successfully")
	fmt.Fprintf(out, "\n✅ Server running on http://localhost:%s\n", cfg.Port)
	fmt.Fprintln(out, "\nPress Ctrl+C to stop")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")
	cancelBase()

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if metricsServer != nil {
		_ = metricsServer.Shutdown(ctx)
	}
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	log.Info("Server stopped")
	return nil
}
