package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Shivanand-hulikatti/library-reservations/internal/model"
)

func Test_FromEnv_Defaults(t *testing.T) {
	for _, k := range []string{
		"PORT", "STORAGE_BACKEND", "DB_HOST", "DB_MAX_CONNS", "LOAN_PERIOD_DAYS",
		"RETURN_POLICY", "OVERDUE_SWEEP_INTERVAL", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST",
		"LOG_LEVEL", "LOG_FORMAT",
	} {
		t.Setenv(k, "")
	}

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, BackendPostgres, cfg.StorageBackend)
	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.EqualValues(t, 20, cfg.Database.MaxConns)
	assert.Equal(t, 14, cfg.LoanPeriodDays)
	assert.Equal(t, model.SoftReturn, cfg.ReturnPolicy)
	assert.Equal(t, time.Hour, cfg.OverdueSweepInterval)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
}

func Test_FromEnv_Overrides(t *testing.T) {
	t.Setenv("STORAGE_BACKEND", "Memory")
	t.Setenv("LOAN_PERIOD_DAYS", "21")
	t.Setenv("RETURN_POLICY", "credit-on-return")
	t.Setenv("OVERDUE_SWEEP_INTERVAL", "15m")
	t.Setenv("RATE_LIMIT_RPS", "2.5")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "text")
	t.Setenv("DB_NAME", "lending")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, BackendMemory, cfg.StorageBackend)
	assert.Equal(t, 21, cfg.LoanPeriodDays)
	assert.Equal(t, model.CreditOnReturn, cfg.ReturnPolicy)
	assert.Equal(t, 15*time.Minute, cfg.OverdueSweepInterval)
	assert.InDelta(t, 2.5, cfg.RateLimitRPS, 1e-9)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.Contains(t, cfg.Database.DSN(), "dbname=lending")
	assert.NotNil(t, cfg.NewLogger())
}

func Test_FromEnv_CollectsAllErrors(t *testing.T) {
	t.Setenv("LOAN_PERIOD_DAYS", "0")
	t.Setenv("RETURN_POLICY", "whenever")
	t.Setenv("OVERDUE_SWEEP_INTERVAL", "hourly")
	t.Setenv("STORAGE_BACKEND", "sqlite")
	t.Setenv("RATE_LIMIT_RPS", "5")
	t.Setenv("RATE_LIMIT_BURST", "0")

	_, err := FromEnv()
	require.Error(t, err)

	msg := err.Error()
	assert.Contains(t, msg, "LOAN_PERIOD_DAYS")
	assert.Contains(t, msg, "whenever")
	assert.Contains(t, msg, "OVERDUE_SWEEP_INTERVAL")
	assert.Contains(t, msg, "STORAGE_BACKEND")
	assert.Contains(t, msg, "RATE_LIMIT_BURST")
}

func Test_FromEnv_RateLimitBurst(t *testing.T) {
	t.Setenv("RATE_LIMIT_RPS", "5")
	t.Setenv("RATE_LIMIT_BURST", "-2")
	_, err := FromEnv()
	assert.ErrorContains(t, err, "RATE_LIMIT_BURST")

	// Limiting disabled, so the burst is irrelevant.
	t.Setenv("RATE_LIMIT_RPS", "0")
	t.Setenv("RATE_LIMIT_BURST", "0")
	_, err = FromEnv()
	assert.NoError(t, err)
}

func Test_FromEnv_PoolSizeRange(t *testing.T) {
	cases := []struct {
		max, min string
		wantErr  string
	}{
		{"4294967296", "2", "DB_MAX_CONNS"},
		{"0", "0", "DB_MAX_CONNS"},
		{"10", "11", "DB_MIN_CONNS"},
		{"10", "-1", "DB_MIN_CONNS"},
		{"10", "10", ""},
	}
	for _, c := range cases {
		t.Run(c.max+"/"+c.min, func(t *testing.T) {
			t.Setenv("DB_MAX_CONNS", c.max)
			t.Setenv("DB_MIN_CONNS", c.min)

			cfg, err := FromEnv()

			if c.wantErr == "" {
				require.NoError(t, err)
				assert.EqualValues(t, 10, cfg.Database.MaxConns)
				assert.EqualValues(t, 10, cfg.Database.MinConns)
				return
			}
			assert.ErrorContains(t, err, c.wantErr)
		})
	}
}
