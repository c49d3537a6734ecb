// Package config loads service settings from the environment.
//
// A .env file in the working directory is read first when present. Variables
// already set in the process environment take precedence over it.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/Shivanand-hulikatti/library-reservations/internal/model"
)

const (
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// Database holds PostgreSQL connection settings.
type Database struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int32
	MinConns int32
}

// DSN builds a libpq-compatible connection string.
func (c Database) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

// Config is the full service configuration.
type Config struct {
	Port           string
	StorageBackend string
	Database       Database

	LoanPeriodDays       int
	ReturnPolicy         model.ReturnPolicy
	OverdueSweepInterval time.Duration

	RateLimitRPS   float64
	RateLimitBurst int

	LogLevel  slog.Level
	LogFormat string
}

// Load reads .env (if any) and then the environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("read .env: %w", err)
	}
	return FromEnv()
}

// FromEnv builds a Config from environment variables, falling back to
// local-development defaults.
func FromEnv() (Config, error) {
	cfg := Config{
		Port:           getEnv("PORT", "8080"),
		StorageBackend: strings.ToLower(getEnv("STORAGE_BACKEND", BackendPostgres)),
		Database: Database{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "library"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		LogFormat: strings.ToLower(getEnv("LOG_FORMAT", "json")),
	}

	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	maxConns, err := getInt("DB_MAX_CONNS", 20)
	collect(err)
	minConns, err := getInt("DB_MIN_CONNS", 2)
	collect(err)
	switch {
	case maxConns < 1 || maxConns > math.MaxInt32:
		collect(fmt.Errorf("DB_MAX_CONNS must be between 1 and %d, got %d", math.MaxInt32, maxConns))
	case minConns < 0 || minConns > maxConns:
		collect(fmt.Errorf("DB_MIN_CONNS must be between 0 and DB_MAX_CONNS (%d), got %d", maxConns, minConns))
	default:
		cfg.Database.MaxConns = int32(maxConns)
		cfg.Database.MinConns = int32(minConns)
	}

	cfg.LoanPeriodDays, err = getInt("LOAN_PERIOD_DAYS", 14)
	collect(err)
	if cfg.LoanPeriodDays <= 0 {
		collect(fmt.Errorf("LOAN_PERIOD_DAYS must be positive, got %d", cfg.LoanPeriodDays))
	}

	cfg.ReturnPolicy, err = model.ParseReturnPolicy(getEnv("RETURN_POLICY", string(model.SoftReturn)))
	collect(err)

	cfg.OverdueSweepInterval, err = getDuration("OVERDUE_SWEEP_INTERVAL", time.Hour)
	collect(err)

	cfg.RateLimitRPS, err = getFloat("RATE_LIMIT_RPS", 10)
	collect(err)
	cfg.RateLimitBurst, err = getInt("RATE_LIMIT_BURST", 20)
	collect(err)
	// A zero burst with a positive rate would refuse every request.
	if cfg.RateLimitRPS > 0 && cfg.RateLimitBurst < 1 {
		collect(fmt.Errorf("RATE_LIMIT_BURST must be at least 1 when RATE_LIMIT_RPS is set, got %d", cfg.RateLimitBurst))
	}

	collect(cfg.LogLevel.UnmarshalText([]byte(getEnv("LOG_LEVEL", "info"))))

	switch cfg.StorageBackend {
	case BackendPostgres, BackendMemory:
	default:
		collect(fmt.Errorf("STORAGE_BACKEND must be %q or %q, got %q", BackendPostgres, BackendMemory, cfg.StorageBackend))
	}
	switch cfg.LogFormat {
	case "json", "text":
	default:
		collect(fmt.Errorf("LOG_FORMAT must be json or text, got %q", cfg.LogFormat))
	}

	if err := errors.Join(errs...); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// NewLogger builds the process logger described by cfg.
func (c Config) NewLogger() *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.LogLevel}
	if c.LogFormat == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func getFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback, fmt.Errorf("%s: %w", key, err)
	}
	return f, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
