package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
// ⭐ SSOT: 모든 환경변수는 여기서만 읽음
type Config struct {
	// Server
	Port string
	Env  string // development, staging, production

	// Storage
	StoreBackend string // postgres, memory
	Database     DatabaseConfig
	ClickHouse   ClickHouseConfig

	// Redis
	Redis RedisConfig

	// Strategy bundle (scoring / gates / backtest defaults)
	StrategyConfigPath string

	// Market data providers
	Providers ProvidersConfig

	// Scanner
	Scan ScanConfig

	// Logging
	LogLevel  string
	LogFormat string

	// Monitoring
	MetricsEnabled bool
	MetricsPort    string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Enabled  bool

	// KeyPrefix namespaces cache and rate-limit keys
	KeyPrefix string
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	URL string

	// Connection Pool
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// ClickHouseConfig holds the optional bar archive connection
type ClickHouseConfig struct {
	URL     string
	Enabled bool
}

// ProvidersConfig holds market data provider settings
type ProvidersConfig struct {
	Default       string
	RatePerSecond float64

	YahooBaseURL      string
	EdgarBaseURL      string
	EdgarUserAgent    string
	WikipediaURL      string
	DatabentoDir      string
	BreakerMaxFailure uint32
	BreakerTimeout    time.Duration
}

// ScanConfig holds scanner and scheduler settings
type ScanConfig struct {
	BatchDelay       time.Duration
	Schedule         string
	UniverseSchedule string
	RetentionDays    int
}

// Load reads configuration from environment variables
// ⭐ SSOT: 이 함수만 os.Getenv()를 호출함
func Load() (*Config, error) {
	// Try multiple paths for .env file
	loadEnvFile()

	cfg := &Config{
		// Server
		Port: getEnv("PORT", "8080"),
		Env:  getEnv("ENV", "development"),

		// Storage
		StoreBackend: getEnv("STORE_BACKEND", "postgres"),
		Database: DatabaseConfig{
			URL:             getEnv("DATABASE_URL", ""),
			MaxConns:        getEnvAsInt("DB_MAX_CONNS", 25),
			MinConns:        getEnvAsInt("DB_MIN_CONNS", 5),
			MaxConnLifetime: getEnvAsDuration("DB_MAX_CONN_LIFETIME", "1h"),
			MaxConnIdleTime: getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", "30m"),
		},
		ClickHouse: ClickHouseConfig{
			URL:     getEnv("CLICKHOUSE_URL", ""),
			Enabled: getEnvAsBool("CLICKHOUSE_ENABLED", false),
		},

		// Redis
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),

			KeyPrefix: getEnv("REDIS_KEY_PREFIX", "canslim"),
		},

		StrategyConfigPath: getEnv("STRATEGY_CONFIG", ""),

		Providers: ProvidersConfig{
			Default:           getEnv("DEFAULT_PROVIDER", "yahoo"),
			RatePerSecond:     getEnvAsFloat("PROVIDER_RATE_PER_SEC", 4),
			YahooBaseURL:      getEnv("YAHOO_BASE_URL", "https://query1.finance.yahoo.com"),
			EdgarBaseURL:      getEnv("EDGAR_BASE_URL", "https://data.sec.gov"),
			EdgarUserAgent:    getEnv("EDGAR_USER_AGENT", ""),
			WikipediaURL:      getEnv("WIKIPEDIA_UNIVERSE_URL", "https://en.wikipedia.org/wiki/List_of_S%26P_500_companies"),
			DatabentoDir:      getEnv("DATABENTO_DIR", ""),
			BreakerMaxFailure: uint32(getEnvAsInt("PROVIDER_BREAKER_FAILURES", 5)),
			BreakerTimeout:    getEnvAsDuration("PROVIDER_BREAKER_TIMEOUT", "1m"),
		},

		Scan: ScanConfig{
			BatchDelay:       getEnvAsDuration("SCAN_BATCH_DELAY", "2s"),
			Schedule:         getEnv("SCAN_SCHEDULE", "0 30 17 * * 1-5"),
			UniverseSchedule: getEnv("UNIVERSE_SCHEDULE", "0 0 6 * * 1"),
			RetentionDays:    getEnvAsInt("RETENTION_DAYS", 90),
		},

		// Logging
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		// Monitoring
		MetricsEnabled: getEnvAsBool("METRICS_ENABLED", true),
		MetricsPort:    getEnv("METRICS_PORT", "9090"),
	}

	// Validate configuration
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// LoadFile reads an explicit env file, then the environment.
// Variables already set in the process take precedence over the file.
func LoadFile(path string) (*Config, error) {
	if path != "" {
		if err := godotenv.Load(path); err != nil {
			return nil, fmt.Errorf("load env file %s: %w", path, err)
		}
	}
	return Load()
}

// validate checks if required configuration values are set
func (c *Config) validate() error {
	switch c.StoreBackend {
	case "postgres":
		if c.Database.URL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORE_BACKEND=postgres")
		}
	case "memory":
	default:
		return fmt.Errorf("STORE_BACKEND must be one of: postgres, memory")
	}

	if c.ClickHouse.Enabled && c.ClickHouse.URL == "" {
		return fmt.Errorf("CLICKHOUSE_URL is required when CLICKHOUSE_ENABLED=true")
	}

	// Validate environment
	if c.Env != "development" && c.Env != "staging" && c.Env != "production" {
		return fmt.Errorf("ENV must be one of: development, staging, production")
	}

	if c.Providers.RatePerSecond <= 0 {
		return fmt.Errorf("PROVIDER_RATE_PER_SEC must be > 0")
	}

	return nil
}

// Helper functions (private, only used within this file)

// loadEnvFile tries to load .env from multiple locations
func loadEnvFile() {
	paths := []string{
		".env",
	}

	// Also try relative to executable
	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		paths = append(paths,
			filepath.Join(exeDir, ".env"),
			filepath.Join(exeDir, "..", ".env"),
		)
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			return
		}
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		valueStr = defaultValue
	}

	duration, err := time.ParseDuration(valueStr)
	if err != nil {
		duration, _ = time.ParseDuration(defaultValue)
	}

	return duration
}
