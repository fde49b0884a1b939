package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all process-level configuration. It is constructed once at
// startup and passed by reference into the ingestion and engine
// constructors; no package reads environment variables directly.
type Config struct {
	Env string // development, staging, production

	// Database (optional; the result store is disabled when URL is empty)
	Database DatabaseConfig

	// Redis (optional KPI-result cache)
	Redis RedisConfig

	// Archive destinations for raw loan tapes
	Archive ArchiveConfig

	// Logging
	LogLevel  string
	LogFormat string
	LogFile   string // rotating file output when set

	// Upstream loan-data provider
	Provider ProviderConfig
}

// DatabaseConfig holds PostgreSQL configuration.
type DatabaseConfig struct {
	URL             string
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// RedisConfig holds Redis configuration.
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Enabled  bool
}

// ArchiveConfig holds raw-tape archival destinations. Dir enables the
// local directory sink; S3Bucket enables the S3 sink. When the static key
// pair is empty the default AWS credential chain is used.
type ArchiveConfig struct {
	Dir         string
	S3Bucket    string
	S3Prefix    string
	S3Region    string
	S3AccessKey string
	S3SecretKey string
}

// ProviderConfig holds the upstream loan-data provider endpoint settings.
type ProviderConfig struct {
	BaseURL string
	Timeout time.Duration
}

// Load reads configuration from environment variables. Only this function
// calls os.Getenv.
func Load() (*Config, error) {
	loadEnvFile()

	cfg := &Config{
		Env: getEnv("ENV", "development"),

		Database: DatabaseConfig{
			URL:             getEnv("DATABASE_URL", ""),
			MaxConns:        getEnvAsInt("DB_MAX_CONNS", 10),
			MinConns:        getEnvAsInt("DB_MIN_CONNS", 2),
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

		Archive: ArchiveConfig{
			Dir:         getEnv("ARCHIVE_DIR", "archive"),
			S3Bucket:    getEnv("ARCHIVE_S3_BUCKET", ""),
			S3Prefix:    getEnv("ARCHIVE_S3_PREFIX", "loan-tapes"),
			S3Region:    getEnv("ARCHIVE_S3_REGION", "us-east-1"),
			S3AccessKey: getEnv("ARCHIVE_S3_ACCESS_KEY", ""),
			S3SecretKey: getEnv("ARCHIVE_S3_SECRET_KEY", ""),
		},

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
		LogFile:   getEnv("LOG_FILE", ""),

		Provider: ProviderConfig{
			BaseURL: getEnv("PROVIDER_BASE_URL", ""),
			Timeout: getEnvAsDuration("PROVIDER_TIMEOUT", "30s"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// validate checks required configuration values.
func (c *Config) validate() error {
	if c.Env != "development" && c.Env != "staging" && c.Env != "production" {
		return fmt.Errorf("ENV must be one of: development, staging, production")
	}
	return nil
}

// loadEnvFile tries to load .env from several locations.
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
