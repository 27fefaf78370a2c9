package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"colorgame/database"
	"colorgame/domain/entities"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config holds all application configuration
type Config struct {
	// Database configuration
	DatabaseURL  string
	DatabaseName string

	// Redis configuration
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	SessionTTL    time.Duration

	// NATS configuration
	NATSServers string // NATS server addresses (comma-separated)

	// Upstream operator service (wallet + identity)
	ServiceBaseURL string
	DebitTimeout   time.Duration

	// HTTP / websocket listener
	HTTPAddr string

	// Elasticsearch audit sink, disabled when empty
	ElasticsearchURL string

	// Game rules
	MinBetAmount     decimal.Decimal
	MaxBetAmount     decimal.Decimal
	MaxCashoutAmount decimal.Decimal
	OpeningSeconds   int
	BettingSeconds   int
	ResultSeconds    int
	BonusSetSize     int
	AllowRepeatBets  bool
	HistorySize      int

	// Cron spec for reloading room templates from the database
	CatalogRefreshSchedule string

	// OpenTelemetry configuration
	OTelEnabled              bool
	OTelExporterType         string // "console", "otlp" or "none"
	OTelOTLPEndpoint         string
	OTelServiceName          string
	OTelExportIntervalMillis int

	// Logging
	LogLevel  string
	LogFormat string

	// Environment
	Environment string // "development" or "production"
}

var (
	instance *Config
	once     sync.Once
	mu       sync.Mutex // Protects instance for test setup
)

// Get returns the global configuration instance
func Get() *Config {
	mu.Lock()
	defer mu.Unlock()

	if instance != nil {
		return instance
	}

	once.Do(func() {
		var err error
		instance, err = load()
		if err != nil {
			if os.Getenv("GO_TEST") == "1" || os.Getenv("ENVIRONMENT") == "test" {
				instance = NewTestConfig()
			} else {
				panic(fmt.Sprintf("failed to load config: %v", err))
			}
		}
	})
	return instance
}

// GetDatabaseURL constructs the full database URL by combining base URL and database name
func (c *Config) GetDatabaseURL() string {
	return database.ConstructDatabaseURL(c.DatabaseURL, c.DatabaseName)
}

// GameRules converts the configured limits and timings into the domain rule set
func (c *Config) GameRules() entities.GameRules {
	rules := entities.DefaultGameRules()
	rules.MinBet = c.MinBetAmount
	rules.MaxBet = c.MaxBetAmount
	rules.MaxCashout = c.MaxCashoutAmount
	rules.OpeningDuration = time.Duration(c.OpeningSeconds) * time.Second
	rules.BettingDuration = time.Duration(c.BettingSeconds) * time.Second
	rules.ResultDuration = time.Duration(c.ResultSeconds) * time.Second
	rules.BonusSetSize = c.BonusSetSize
	rules.AllowRepeatBets = c.AllowRepeatBets
	rules.HistorySize = c.HistorySize
	return rules
}

// load loads configuration from environment variables
func load() (*Config, error) {
	// A missing .env file is normal outside local development
	_ = godotenv.Load()

	defaults := entities.DefaultGameRules()
	config := &Config{
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		DatabaseName: os.Getenv("DATABASE_NAME"),

		RedisAddr:     getEnvWithDefault("REDIS_ADDR", "redis:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       getIntWithDefault("REDIS_DB", 0),
		SessionTTL:    getDurationWithDefault("SESSION_TTL", time.Hour),

		NATSServers: getEnvWithDefault("NATS_SERVERS", "nats://nats:4222"),

		ServiceBaseURL: os.Getenv("SERVICE_BASE_URL"),
		DebitTimeout:   getDurationWithDefault("DEBIT_TIMEOUT", 5*time.Second),

		HTTPAddr: getEnvWithDefault("HTTP_ADDR", ":4000"),

		ElasticsearchURL: os.Getenv("ELASTICSEARCH_URL"),

		MinBetAmount:     getDecimalWithDefault("MIN_BET_AMOUNT", defaults.MinBet),
		MaxBetAmount:     getDecimalWithDefault("MAX_BET_AMOUNT", defaults.MaxBet),
		MaxCashoutAmount: getDecimalWithDefault("MAX_CASHOUT_AMOUNT", defaults.MaxCashout),
		OpeningSeconds:   getIntWithDefault("OPENING_SECONDS", int(defaults.OpeningDuration/time.Second)),
		BettingSeconds:   getIntWithDefault("BETTING_SECONDS", int(defaults.BettingDuration/time.Second)),
		ResultSeconds:    getIntWithDefault("RESULT_SECONDS", int(defaults.ResultDuration/time.Second)),
		BonusSetSize:     getIntWithDefault("BONUS_SET_SIZE", defaults.BonusSetSize),
		AllowRepeatBets:  getBoolWithDefault("ALLOW_REPEAT_BETS", defaults.AllowRepeatBets),
		HistorySize:      getIntWithDefault("HISTORY_SIZE", defaults.HistorySize),

		CatalogRefreshSchedule: getEnvWithDefault("CATALOG_REFRESH_SCHEDULE", "@every 1m"),

		OTelEnabled:              getBoolWithDefault("OTEL_ENABLED", false),
		OTelExporterType:         getEnvWithDefault("OTEL_EXPORTER_TYPE", "none"),
		OTelOTLPEndpoint:         getEnvWithDefault("OTEL_OTLP_ENDPOINT", "otel-collector:4317"),
		OTelServiceName:          getEnvWithDefault("OTEL_SERVICE_NAME", "colorgame"),
		OTelExportIntervalMillis: getIntWithDefault("OTEL_EXPORT_INTERVAL_MILLIS", 15000),

		LogLevel:  getEnvWithDefault("LOG_LEVEL", "info"),
		LogFormat: getEnvWithDefault("LOG_FORMAT", "text"),

		Environment: os.Getenv("ENVIRONMENT"),
	}

	if config.Environment == "" {
		config.Environment = "development"
	}

	if config.Environment != "test" {
		if config.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required")
		}
		if config.ServiceBaseURL == "" {
			return nil, fmt.Errorf("SERVICE_BASE_URL is required")
		}
		if config.DatabaseName != "" && strings.TrimSpace(config.DatabaseName) == "" {
			return nil, fmt.Errorf("DATABASE_NAME cannot be empty when provided")
		}
	}

	if config.MinBetAmount.GreaterThan(config.MaxBetAmount) {
		return nil, fmt.Errorf("MIN_BET_AMOUNT %s exceeds MAX_BET_AMOUNT %s", config.MinBetAmount, config.MaxBetAmount)
	}
	if config.BettingSeconds <= 0 {
		return nil, fmt.Errorf("BETTING_SECONDS must be positive")
	}

	return config, nil
}

// getEnvWithDefault returns the environment variable value or a default if not set
func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntWithDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getBoolWithDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getDurationWithDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getDecimalWithDefault(key string, defaultValue decimal.Decimal) decimal.Decimal {
	if value := os.Getenv(key); value != "" {
		if parsed, err := decimal.NewFromString(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// Test helpers - only use in tests

// SetTestConfig overrides the global config instance for testing
// This should only be called from test files
func SetTestConfig(testConfig *Config) {
	mu.Lock()
	defer mu.Unlock()
	instance = testConfig
}

// ResetConfig resets the global config instance and sync.Once for testing
// This should only be called from test files
func ResetConfig() {
	mu.Lock()
	defer mu.Unlock()
	instance = nil
	once = sync.Once{}
}

// NewTestConfig creates a minimal config suitable for unit tests
func NewTestConfig() *Config {
	defaults := entities.DefaultGameRules()
	return &Config{
		Environment:            "test",
		SessionTTL:             time.Hour,
		DebitTimeout:           time.Second,
		HTTPAddr:               ":0",
		MinBetAmount:           defaults.MinBet,
		MaxBetAmount:           defaults.MaxBet,
		MaxCashoutAmount:       defaults.MaxCashout,
		OpeningSeconds:         int(defaults.OpeningDuration / time.Second),
		BettingSeconds:         int(defaults.BettingDuration / time.Second),
		ResultSeconds:          int(defaults.ResultDuration / time.Second),
		BonusSetSize:           defaults.BonusSetSize,
		AllowRepeatBets:        defaults.AllowRepeatBets,
		HistorySize:            defaults.HistorySize,
		CatalogRefreshSchedule: "@every 1m",
		OTelExporterType:       "none",
		OTelServiceName:        "colorgame-test",
		LogLevel:               "debug",
		LogFormat:              "text",
	}
}
