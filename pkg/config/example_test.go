package config_test

import (
	"fmt"

	"github.com/wonny/canslim/pkg/config"
)

// Example demonstrates how to use the config package
func Example() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		return
	}

	fmt.Printf("Server running on port: %s\n", cfg.Port)
	fmt.Printf("Store backend: %s\n", cfg.StoreBackend)
	fmt.Printf("Default provider: %s\n", cfg.Providers.Default)
	fmt.Printf("Batch delay: %s\n", cfg.Scan.BatchDelay)
}
