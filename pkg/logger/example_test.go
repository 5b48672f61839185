package logger_test

import (
	"errors"

	"github.com/wonny/canslim/pkg/config"
	"github.com/wonny/canslim/pkg/logger"
)

// Example_basic demonstrates basic logger usage
func Example_basic() {
	cfg := &config.Config{
		Env:       "development",
		LogLevel:  "info",
		LogFormat: "console",
	}

	// Create logger (SSOT)
	log := logger.New(cfg)

	log.Debug("This won't appear (level is info)")
	log.Info("Scanner started")
	log.Warnf("Provider %s throttled, retry %d of %d", "yahoo", 2, 3)
}

// Example_withFields demonstrates structured logging with fields
func Example_withFields() {
	cfg := &config.Config{
		Env:       "production",
		LogLevel:  "info",
		LogFormat: "json",
	}

	log := logger.New(cfg)

	batchLog := log.WithFields(map[string]interface{}{
		"run_id":  "6f1c2b1e",
		"batch":   3,
		"symbols": 40,
	})
	batchLog.Info("Batch scored")
}

// Example_withError demonstrates error logging
func Example_withError() {
	cfg := &config.Config{
		Env:       "production",
		LogLevel:  "error",
		LogFormat: "json",
	}

	log := logger.New(cfg)

	err := errors.New("chart request timeout")
	log.WithError(err).
		WithField("symbol", "NVDA").
		Error("Fetch failed, using cached bars")
}
