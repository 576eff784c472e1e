package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App         AppConfig
	Store       StoreConfig
	PolicyFile  string
	CORS        CORSConfig
	Initializer InitializerConfig
}

// AppConfig holds application configuration
type AppConfig struct {
	Addr     string
	Env      string
	LogLevel slog.Level
}

type StoreConfig struct {
	Driver      string // sqlite, postgres or memory
	SQLitePath  string
	DatabaseURL string
}

type CORSConfig struct {
	AllowedOrigins []string
}

// InitializerConfig controls the year-start balance initializer.
// An Interval of zero disables it.
type InitializerConfig struct {
	Interval time.Duration
	Workers  int
}

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Load reads an optional .env file and then the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	return FromEnv()
}

// FromEnv builds the configuration from environment variables only.
func FromEnv() (*Config, error) {
	config := &Config{}

	level, err := parseLevel(getEnv("LOG_LEVEL", "info"))
	if err != nil {
		return nil, err
	}
	config.App = AppConfig{
		Addr:     getEnv("APP_ADDR", ":8080"),
		Env:      getEnv("APP_ENV", "development"),
		LogLevel: level,
	}

	config.Store = StoreConfig{
		Driver:      strings.ToLower(getEnv("STORE_DRIVER", DriverSQLite)),
		SQLitePath:  getEnv("SQLITE_PATH", "leave.db"),
		DatabaseURL: getEnv("DATABASE_URL", ""),
	}
	config.PolicyFile = getEnv("POLICY_FILE", "")
	config.CORS = CORSConfig{AllowedOrigins: getEnvSlice("CORS_ALLOWED_ORIGINS", []string{"*"})}

	interval, err := time.ParseDuration(getEnv("BALANCE_INIT_INTERVAL", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid BALANCE_INIT_INTERVAL: %w", err)
	}
	workers, err := strconv.Atoi(getEnv("BALANCE_INIT_WORKERS", "4"))
	if err != nil {
		return nil, fmt.Errorf("invalid BALANCE_INIT_WORKERS: %w", err)
	}
	config.Initializer = InitializerConfig{Interval: interval, Workers: workers}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case DriverSQLite:
		if c.Store.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required for the sqlite store")
		}
	case DriverPostgres:
		if c.Store.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres store")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.Store.Driver)
	}
	if c.Initializer.Interval < 0 {
		return fmt.Errorf("BALANCE_INIT_INTERVAL must not be negative")
	}
	if c.Initializer.Workers < 1 {
		return fmt.Errorf("BALANCE_INIT_WORKERS must be at least 1")
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.App.Env == "production"
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}
	return level, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvSlice(key string, fallback []string) []string {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	var result []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			result = append(result, part)
		}
	}
	return result
}
