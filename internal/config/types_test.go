package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	mutate := func(fn func(*Config)) Config {
		cfg := DefaultConfig()
		fn(&cfg)
		return cfg
	}

	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{name: "defaults pass", cfg: DefaultConfig()},
		{
			name:    "port out of range",
			cfg:     mutate(func(c *Config) { c.Server.Listen.Port = 70000 }),
			wantErr: "listen.port",
		},
		{
			name:    "non-positive ttl",
			cfg:     mutate(func(c *Config) { c.Insights.Cache.TTLSeconds = 0 }),
			wantErr: "ttlSeconds",
		},
		{
			name:    "non-positive max entries",
			cfg:     mutate(func(c *Config) { c.Insights.Cache.MaxEntries = -1 }),
			wantErr: "maxEntries",
		},
		{
			name:    "non-positive optimize interval",
			cfg:     mutate(func(c *Config) { c.Insights.Scheduler.OptimizeIntervalSeconds = 0 }),
			wantErr: "optimizeIntervalSeconds",
		},
		{
			name:    "unknown history backend",
			cfg:     mutate(func(c *Config) { c.Insights.History.Backend = "etcd" }),
			wantErr: "backend unsupported",
		},
		{
			name: "valkey backend with address passes",
			cfg: mutate(func(c *Config) {
				c.Insights.History.Backend = "valkey"
				c.Insights.History.Valkey.Address = "localhost:6379"
			}),
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			if tc.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			require.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestDurationHelpers(t *testing.T) {
	cfg := DefaultConfig()
	require.Equal(t, 5*time.Minute, cfg.Insights.Cache.TTL())
	require.Equal(t, 5*time.Minute, cfg.Insights.Scheduler.OptimizeInterval())
	require.Equal(t, 15*time.Minute, cfg.Insights.Scheduler.PrecomputeInterval())
	require.Equal(t, time.Hour, cfg.Insights.History.PruneInterval())
}
