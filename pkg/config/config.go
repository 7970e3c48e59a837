package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
// ⭐ SSOT: every environment variable is read here and nowhere else
type Config struct {
	// Server
	Port string
	Env  string // development, staging, production

	// Market clock
	Timezone string

	// Database (optional, empty URL keeps picks in memory)
	Database DatabaseConfig

	// Redis
	Redis RedisConfig

	// Upstream quote APIs
	Sources SourcesConfig

	// Poll loop
	Poll PollConfig

	// Strategy YAML (optional)
	StrategyFile string

	// Logging
	LogLevel  string
	LogFormat string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Enabled  bool
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

// Enabled reports whether a database URL was configured
func (d DatabaseConfig) Enabled() bool {
	return d.URL != ""
}

// SourcesConfig holds the quote API endpoints and fallback order
type SourcesConfig struct {
	Order []string // tushare, eastmoney, sina, tencent

	TushareToken   string
	TushareBaseURL string

	EastmoneyBaseURL string

	SinaBaseURL   string
	SinaBatchSize int
	SinaBatchRate float64 // batches per second

	TencentBaseURL   string
	TencentBatchSize int

	HTTPTimeout time.Duration
}

// PollConfig holds the refresh loop settings
type PollConfig struct {
	TradingSchedule string // cron with seconds
	IdleSchedule    string
	CacheTTL        time.Duration
}

// Load reads configuration from environment variables
// ⭐ SSOT: the only function that calls os.Getenv()
func Load() (*Config, error) {
	loadEnvFile()

	cfg := &Config{
		Port:     getEnv("PORT", "8089"),
		Env:      getEnv("ENV", "development"),
		Timezone: getEnv("TIMEZONE", "Asia/Shanghai"),

		Database: DatabaseConfig{
			URL:             getEnv("DATABASE_URL", ""),
			MaxConns:        getEnvAsInt("DB_MAX_CONNS", 10),
			MinConns:        getEnvAsInt("DB_MIN_CONNS", 1),
			MaxConnLifetime: getEnvAsDuration("DB_MAX_CONN_LIFETIME", "1h"),
			MaxConnIdleTime: getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", "30m"),
		},

		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
		},

		Sources: SourcesConfig{
			Order:            getEnvAsList("SOURCE_ORDER", "tushare,eastmoney,sina,tencent"),
			TushareToken:     getEnv("TUSHARE_TOKEN", ""),
			TushareBaseURL:   getEnv("TUSHARE_BASE_URL", "http://api.tushare.pro"),
			EastmoneyBaseURL: getEnv("EASTMONEY_BASE_URL", "https://82.push2.eastmoney.com"),
			SinaBaseURL:      getEnv("SINA_BASE_URL", "https://hq.sinajs.cn"),
			SinaBatchSize:    getEnvAsInt("SINA_BATCH_SIZE", 800),
			SinaBatchRate:    getEnvAsFloat("SINA_BATCH_RATE", 1/0.3),
			TencentBaseURL:   getEnv("TENCENT_BASE_URL", "https://qt.gtimg.cn"),
			TencentBatchSize: getEnvAsInt("TENCENT_BATCH_SIZE", 60),
			HTTPTimeout:      getEnvAsDuration("SOURCE_HTTP_TIMEOUT", "15s"),
		},

		Poll: PollConfig{
			TradingSchedule: getEnv("POLL_TRADING_SCHEDULE", "*/30 * 9-15 * * MON-FRI"),
			IdleSchedule:    getEnv("POLL_IDLE_SCHEDULE", "0 * * * * *"),
			CacheTTL:        getEnvAsDuration("SNAPSHOT_CACHE_TTL", "25s"),
		},

		StrategyFile: getEnv("STRATEGY_FILE", ""),

		LogLevel:  getEnv("LOG_LEVEL", "debug"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Location returns the market timezone
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.FixedZone("CST", 8*3600)
	}
	return loc
}

// validate checks configuration values
func (c *Config) validate() error {
	if c.Env != "development" && c.Env != "staging" && c.Env != "production" {
		return fmt.Errorf("ENV must be one of: development, staging, production")
	}

	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("TIMEZONE %q: %w", c.Timezone, err)
	}

	if len(c.Sources.Order) == 0 {
		return fmt.Errorf("SOURCE_ORDER must list at least one source")
	}

	if c.Sources.SinaBatchSize <= 0 || c.Sources.TencentBatchSize <= 0 {
		return fmt.Errorf("batch sizes must be positive")
	}

	if c.Sources.SinaBatchRate <= 0 {
		return fmt.Errorf("SINA_BATCH_RATE must be positive")
	}

	return nil
}

// Helper functions (private, only used within this file)

// loadEnvFile tries to load .env from multiple locations
func loadEnvFile() {
	paths := []string{".env"}

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

// getEnvAsList splits a comma separated value, dropping blanks
func getEnvAsList(key string, defaultValue string) []string {
	raw := getEnv(key, defaultValue)
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
