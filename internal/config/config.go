// Package config provides configuration management for the wallet radar
// engine. It loads configuration from environment variables and .env files.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Provider  ProviderConfig
	KeyPool   KeyPoolConfig
	Discovery DiscoveryConfig
	Scoring   ScoringConfig
	Pipeline  PipelineConfig
	Alert     AlertConfig
	Logging   LoggingConfig
}

// ServerConfig holds status API server configuration
type ServerConfig struct {
	Host string
	Port string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Postgres   PostgresConfig
	ClickHouse ClickHouseConfig
	Redis      RedisConfig
}

// PostgresConfig holds Postgres configuration
type PostgresConfig struct {
	Host           string
	Port           string
	Database       string
	User           string
	Password       string
	MaxConnections int
}

// ClickHouseConfig holds ClickHouse configuration
type ClickHouseConfig struct {
	Host     string
	Port     string
	Database string
	User     string
	Password string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host           string
	Port           string
	Password       string
	DB             int
	MaxConnections int
}

// ProviderConfig holds upstream market-data provider configuration
type ProviderConfig struct {
	BaseURL          string
	FallbackPriceURL string
	RequestTimeout   time.Duration
	RequestsPerSec   float64
	PriceCacheTTL    time.Duration
	ValueCacheTTL    time.Duration
}

// KeyPoolConfig holds credential pool configuration
type KeyPoolConfig struct {
	Keys             []string
	ThrottleCooldown time.Duration
	InvalidCooldown  time.Duration
	GlobalCooldown   time.Duration
	NotifyCooldown   time.Duration
}

// DiscoveryConfig holds discovery worker configuration
type DiscoveryConfig struct {
	SeedTokens      []string
	HoldersPerToken int
	HolderPageSize  int
	CapitalFloorUsd float64
	MinTradeCount   int
	ActivityWindow  time.Duration
	InterCallDelay  time.Duration
	// SeenTTL is how long a rejected candidate stays suppressed. Wallets
	// that pass screening are never suppressed, so they refresh on the
	// pass schedule regardless of this value.
	SeenTTL time.Duration
}

// ScoringConfig holds score weighting configuration.
// The weights are a tunable policy, not a hard contract.
type ScoringConfig struct {
	WeightPnl30d      float64
	WeightWinRate     float64
	WeightConsistency float64
}

// PipelineConfig holds batch pipeline configuration
type PipelineConfig struct {
	Schedule      string
	WorkerCount   int
	MaxTradeCount int
	RunOnStart    bool
}

// AlertConfig holds outbound alerting configuration
type AlertConfig struct {
	TelegramBotToken string
	TelegramChatID   string
	QueueSize        int
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// LoadConfig loads configuration from .env file and environment variables
func LoadConfig() (*Config, error) {
	// Load .env file (optional in production)
	if err := godotenv.Load(); err != nil {
		// .env file is optional - environment variables can be set directly
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	config := &Config{
		Server: ServerConfig{
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
			Port: getEnv("SERVER_PORT", "8080"),
		},
		Database: DatabaseConfig{
			Postgres: PostgresConfig{
				Host:           getEnv("POSTGRES_HOST", "localhost"),
				Port:           getEnv("POSTGRES_PORT", "5432"),
				Database:       getEnv("POSTGRES_DB", "walletradar"),
				User:           getEnv("POSTGRES_USER", "radar"),
				Password:       getEnv("POSTGRES_PASSWORD", ""),
				MaxConnections: getEnvAsInt("POSTGRES_MAX_CONNECTIONS", 50),
			},
			ClickHouse: ClickHouseConfig{
				Host:     getEnv("CLICKHOUSE_HOST", "localhost"),
				Port:     getEnv("CLICKHOUSE_PORT", "9000"),
				Database: getEnv("CLICKHOUSE_DB", "walletradar"),
				User:     getEnv("CLICKHOUSE_USER", "default"),
				Password: getEnv("CLICKHOUSE_PASSWORD", ""),
			},
			Redis: RedisConfig{
				Host:           getEnv("REDIS_HOST", "localhost"),
				Port:           getEnv("REDIS_PORT", "6379"),
				Password:       getEnv("REDIS_PASSWORD", ""),
				DB:             getEnvAsInt("REDIS_DB", 0),
				MaxConnections: getEnvAsInt("REDIS_MAX_CONNECTIONS", 50),
			},
		},
		Provider: ProviderConfig{
			BaseURL:          getEnv("PROVIDER_BASE_URL", "https://public-api.birdeye.so"),
			FallbackPriceURL: getEnv("FALLBACK_PRICE_URL", "https://api.coingecko.com/api/v3"),
			RequestTimeout:   getEnvAsDuration("PROVIDER_REQUEST_TIMEOUT", 5*time.Second),
			RequestsPerSec:   getEnvAsFloat("PROVIDER_REQUESTS_PER_SEC", 2.0),
			PriceCacheTTL:    getEnvAsDuration("PRICE_CACHE_TTL", 60*time.Second),
			ValueCacheTTL:    getEnvAsDuration("VALUE_CACHE_TTL", 5*time.Minute),
		},
		KeyPool: KeyPoolConfig{
			Keys:             getEnvAsSlice("PROVIDER_API_KEYS", nil),
			ThrottleCooldown: getEnvAsDuration("KEY_THROTTLE_COOLDOWN", 120*time.Second),
			InvalidCooldown:  getEnvAsDuration("KEY_INVALID_COOLDOWN", 24*time.Hour),
			GlobalCooldown:   getEnvAsDuration("POOL_GLOBAL_COOLDOWN", time.Hour),
			NotifyCooldown:   getEnvAsDuration("KEY_NOTIFY_COOLDOWN", 5*time.Minute),
		},
		Discovery: DiscoveryConfig{
			SeedTokens:      getEnvAsSlice("DISCOVERY_SEED_TOKENS", nil),
			HoldersPerToken: getEnvAsInt("DISCOVERY_HOLDERS_PER_TOKEN", 200),
			HolderPageSize:  getEnvAsInt("DISCOVERY_HOLDER_PAGE_SIZE", 50),
			CapitalFloorUsd: getEnvAsFloat("DISCOVERY_CAPITAL_FLOOR_USD", 50000),
			MinTradeCount:   getEnvAsInt("DISCOVERY_MIN_TRADE_COUNT", 4),
			ActivityWindow:  getEnvAsDuration("DISCOVERY_ACTIVITY_WINDOW", 30*24*time.Hour),
			InterCallDelay:  getEnvAsDuration("DISCOVERY_INTER_CALL_DELAY", 500*time.Millisecond),
			SeenTTL:         getEnvAsDuration("DISCOVERY_SEEN_TTL", 12*time.Hour),
		},
		Scoring: ScoringConfig{
			WeightPnl30d:      getEnvAsFloat("SCORE_WEIGHT_PNL_30D", 0.4),
			WeightWinRate:     getEnvAsFloat("SCORE_WEIGHT_WIN_RATE", 0.3),
			WeightConsistency: getEnvAsFloat("SCORE_WEIGHT_CONSISTENCY", 0.3),
		},
		Pipeline: PipelineConfig{
			Schedule:      getEnv("PIPELINE_SCHEDULE", "0 0 */6 * * *"),
			WorkerCount:   getEnvAsInt("PIPELINE_WORKER_COUNT", 1),
			MaxTradeCount: getEnvAsInt("PIPELINE_MAX_TRADE_COUNT", 500),
			RunOnStart:    getEnvAsBool("PIPELINE_RUN_ON_START", false),
		},
		Alert: AlertConfig{
			TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
			TelegramChatID:   getEnv("TELEGRAM_CHAT_ID", ""),
			QueueSize:        getEnvAsInt("ALERT_QUEUE_SIZE", 64),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks cross-field constraints that defaulted getters cannot.
func (c *Config) Validate() error {
	if c.Pipeline.WorkerCount < 1 {
		return fmt.Errorf("pipeline worker count must be at least 1, got %d", c.Pipeline.WorkerCount)
	}
	if c.Discovery.HolderPageSize < 1 {
		return fmt.Errorf("holder page size must be at least 1, got %d", c.Discovery.HolderPageSize)
	}
	sum := c.Scoring.WeightPnl30d + c.Scoring.WeightWinRate + c.Scoring.WeightConsistency
	if sum <= 0 {
		return fmt.Errorf("score weights must sum to a positive value, got %v", sum)
	}
	return nil
}

// PostgresURL builds a database URL for the migration tool.
func (c *PostgresConfig) PostgresURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		c.User, c.Password, c.Host, c.Port, c.Database)
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer with a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsFloat gets an environment variable as a float with a default value
func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsBool gets an environment variable as a bool with a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration gets an environment variable as a duration with a default value
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsSlice gets an environment variable as a comma-separated list
func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	parts := strings.Split(valueStr, ",")
	values := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			values = append(values, p)
		}
	}
	return values
}
