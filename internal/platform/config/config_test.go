package config

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("config_test")
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 1, cfg.BatchSize)
	assert.Equal(t, 50, cfg.MaxActiveLeasesPerTenant)
	assert.Equal(t, 4, cfg.RateLimitThreshold)
	assert.Equal(t, 60*time.Second, cfg.RateLimitWindow)
	assert.Equal(t, 15*time.Minute, cfg.SuspensionDuration)
	assert.Equal(t, 15*time.Minute, cfg.ProcessedRetention)
	assert.Equal(t, time.Hour, cfg.StalePendingCeiling)
	assert.Equal(t, 5*time.Second, cfg.SweepInterval)
	assert.Equal(t, 100, cfg.SweepBatchSize)

	revenue, err := cfg.Revenue()
	require.NoError(t, err)
	assert.True(t, revenue.Equal(decimal.RequireFromString("0.005")))
	assert.True(t, cfg.RevenueAmount.Equal(revenue))
	assert.True(t, cfg.MinWithdrawalAmount.Equal(decimal.RequireFromString("3.0")))
}

func TestLoad_RejectsZeroReconcileInterval(t *testing.T) {
	t.Setenv("APP_RECONCILE_INTERVAL", "0s")

	_, err := Load("config_test")
	assert.ErrorContains(t, err, "RECONCILE_INTERVAL")
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("APP_BATCH_SIZE", "3")
	t.Setenv("APP_SWEEP_INTERVAL", "2s")
	t.Setenv("APP_RATE_LIMIT_BACKEND", "redis")

	cfg, err := Load("config_test")
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.BatchSize)
	assert.Equal(t, 2*time.Second, cfg.SweepInterval)
	assert.Equal(t, "redis", cfg.RateLimitBackend)
}

func TestValidate(t *testing.T) {
	base := func() Config {
		return Config{
			StoreDriver:              "postgres",
			RateLimitBackend:         "postgres",
			BatchSize:                1,
			MaxActiveLeasesPerTenant: 50,
			RateLimitThreshold:       4,
			SweepBatchSize:           100,
			PerMessageRevenue:        "0.005",
			MinWithdrawal:            "3.0",
			RateLimitWindow:          time.Minute,
			SuspensionDuration:       15 * time.Minute,
			ProcessedRetention:       15 * time.Minute,
			StalePendingCeiling:      time.Hour,
			SweepInterval:            5 * time.Second,
			ReconcileInterval:        10 * time.Minute,
		}
	}

	testCases := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "zero batch size", mutate: func(c *Config) { c.BatchSize = 0 }, wantErr: true},
		{name: "unknown store driver", mutate: func(c *Config) { c.StoreDriver = "sqlite" }, wantErr: true},
		{name: "unknown rate limit backend", mutate: func(c *Config) { c.RateLimitBackend = "memcached" }, wantErr: true},
		{name: "unparsable revenue", mutate: func(c *Config) { c.PerMessageRevenue = "half a cent" }, wantErr: true},
		{name: "negative revenue", mutate: func(c *Config) { c.PerMessageRevenue = "-0.01" }, wantErr: true},
		{name: "memory store", mutate: func(c *Config) { c.StoreDriver = "memory" }},
		{name: "zero reconcile interval", mutate: func(c *Config) { c.ReconcileInterval = 0 }, wantErr: true},
		{name: "negative sweep interval", mutate: func(c *Config) { c.SweepInterval = -time.Second }, wantErr: true},
		{name: "zero rate limit window", mutate: func(c *Config) { c.RateLimitWindow = 0 }, wantErr: true},
		{name: "zero suspension", mutate: func(c *Config) { c.SuspensionDuration = 0 }, wantErr: true},
		{name: "zero retention", mutate: func(c *Config) { c.ProcessedRetention = 0 }, wantErr: true},
		{name: "zero stale ceiling", mutate: func(c *Config) { c.StalePendingCeiling = 0 }, wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
