package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Storage backend names accepted in STORE_BACKEND.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

type Config struct {
	// HTTP server
	HTTPAddr     string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// Storage backend selection
	StoreBackend string

	// File backend
	FileStorePath string

	// SQLite backend
	DBPath          string
	DBEncryptionKey string

	// Redis backend
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Rate limiting
	RateLimitRPS   int
	RateLimitBurst int

	// Expired-session garbage collection
	SessionSweepInterval time.Duration

	// Application settings
	Environment string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if exists (not required in production)
	godotenv.Load()

	config := &Config{
		HTTPAddr:             getEnv("HTTP_ADDR", ":8080"),
		ReadTimeout:          getEnvAsDuration("HTTP_READ_TIMEOUT", 10*time.Second),
		WriteTimeout:         getEnvAsDuration("HTTP_WRITE_TIMEOUT", 10*time.Second),
		IdleTimeout:          getEnvAsDuration("HTTP_IDLE_TIMEOUT", 60*time.Second),
		StoreBackend:         getEnv("STORE_BACKEND", BackendMemory),
		FileStorePath:        getEnv("FILE_STORE_PATH", "./data/payguard.json"),
		DBPath:               getEnv("DB_PATH", "./data/payguard.db"),
		DBEncryptionKey:      getEnv("DB_ENCRYPTION_KEY", ""),
		RedisAddr:            getEnv("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPassword:        getEnv("REDIS_PASSWORD", ""),
		RedisDB:              getEnvAsInt("REDIS_DB", 0),
		RateLimitRPS:         getEnvAsInt("RATE_LIMIT_REQUESTS_PER_SECOND", 10),
		RateLimitBurst:       getEnvAsInt("RATE_LIMIT_BURST", 20),
		SessionSweepInterval: getEnvAsDuration("SESSION_SWEEP_INTERVAL", 1*time.Hour),
		Environment:          getEnv("APP_ENV", "development"),
	}

	// Validate critical configuration
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate ensures all required configuration is present
func (c *Config) Validate() error {
	switch c.StoreBackend {
	case BackendMemory, BackendFile, BackendRedis:
	case BackendSQLite:
		if c.DBEncryptionKey == "" {
			return fmt.Errorf("DB_ENCRYPTION_KEY is required for the sqlite backend")
		}
		if len(c.DBEncryptionKey) < 32 {
			return fmt.Errorf("DB_ENCRYPTION_KEY must be at least 32 characters")
		}
	default:
		return fmt.Errorf("STORE_BACKEND must be one of memory, file, sqlite, redis (got %q)", c.StoreBackend)
	}

	if c.StoreBackend == BackendRedis && c.RedisAddr == "" {
		return fmt.Errorf("REDIS_ADDR is required for the redis backend")
	}

	if c.RateLimitRPS <= 0 || c.RateLimitBurst <= 0 {
		return fmt.Errorf("rate limit rps and burst must be positive")
	}

	return nil
}

// Helper functions to read environment variables
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
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

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	// Bare numbers are seconds; otherwise time.ParseDuration forms like "90s".
	if n, err := strconv.ParseInt(valueStr, 10, 64); err == nil {
		return time.Duration(n) * time.Second
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}
