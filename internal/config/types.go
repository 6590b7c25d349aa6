package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Config holds every server-level option plus the insight engine knobs once loaded.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Insights InsightsConfig `koanf:"insights"`
}

// ServerConfig collects the bootstrap options owned by the lifecycle layer.
// ShutdownGraceSeconds bounds how long in-flight insight requests may keep
// running once shutdown starts.
type ServerConfig struct {
	Listen               ListenConfig  `koanf:"listen"`
	Logging              LoggingConfig `koanf:"logging"`
	ShutdownGraceSeconds int           `koanf:"shutdownGraceSeconds"`
}

// ListenConfig instructs the HTTP listener about bind address and port.
type ListenConfig struct {
	Address string `koanf:"address"`
	Port    int    `koanf:"port"`
}

// LoggingConfig expresses log level and output format.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// InsightsConfig groups the cache, scheduler, and history options consumed by
// the insight engine. The cache and scheduler sections may be updated at
// runtime; the history backend is fixed at startup.
type InsightsConfig struct {
	Cache     CacheConfig     `koanf:"cache"`
	Scheduler SchedulerConfig `koanf:"scheduler"`
	History   HistoryConfig   `koanf:"history"`
}

// CacheConfig sizes the TTL cache that fronts insight computations.
type CacheConfig struct {
	TTLSeconds int `koanf:"ttlSeconds" json:"ttlSeconds"`
	MaxEntries int `koanf:"maxEntries" json:"maxEntries"`
}

// TTL returns the entry lifetime as a duration.
func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

// SchedulerConfig controls background warmup, precompute, and optimization.
type SchedulerConfig struct {
	BackgroundEnabled         bool `koanf:"backgroundEnabled" json:"backgroundEnabled"`
	WarmupOnInit              bool `koanf:"warmupOnInit" json:"warmupOnInit"`
	OptimizeIntervalSeconds   int  `koanf:"optimizeIntervalSeconds" json:"optimizeIntervalSeconds"`
	PrecomputeIntervalSeconds int  `koanf:"precomputeIntervalSeconds" json:"precomputeIntervalSeconds"`
}

// OptimizeInterval returns the cadence of the expiry/eviction sweep.
func (c SchedulerConfig) OptimizeInterval() time.Duration {
	return time.Duration(c.OptimizeIntervalSeconds) * time.Second
}

// PrecomputeInterval returns the cadence of the common-insight precompute pass.
func (c SchedulerConfig) PrecomputeInterval() time.Duration {
	return time.Duration(c.PrecomputeIntervalSeconds) * time.Second
}

// HistoryConfig selects the backend holding daily/weekly/monthly snapshots.
type HistoryConfig struct {
	Backend              string       `koanf:"backend"`
	PruneIntervalSeconds int          `koanf:"pruneIntervalSeconds"`
	Valkey               ValkeyConfig `koanf:"valkey"`
}

// PruneInterval returns the cadence of the age-based snapshot cleanup.
func (c HistoryConfig) PruneInterval() time.Duration {
	return time.Duration(c.PruneIntervalSeconds) * time.Second
}

// ValkeyConfig carries the connection settings for the valkey history backend.
type ValkeyConfig struct {
	Address  string          `koanf:"address"`
	Username string          `koanf:"username"`
	Password string          `koanf:"password"`
	DB       int             `koanf:"db"`
	TLS      ValkeyTLSConfig `koanf:"tls"`
}

// ValkeyTLSConfig enables TLS toward valkey and optionally pins a CA bundle.
type ValkeyTLSConfig struct {
	Enabled bool   `koanf:"enabled"`
	CAFile  string `koanf:"caFile"`
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config: nil")
	}
	if c.Server.Listen.Port <= 0 || c.Server.Listen.Port > 65535 {
		return fmt.Errorf("config: listen.port invalid: %d", c.Server.Listen.Port)
	}
	if c.Insights.Cache.TTLSeconds <= 0 {
		return fmt.Errorf("config: insights.cache.ttlSeconds invalid: %d", c.Insights.Cache.TTLSeconds)
	}
	if c.Insights.Cache.MaxEntries <= 0 {
		return fmt.Errorf("config: insights.cache.maxEntries invalid: %d", c.Insights.Cache.MaxEntries)
	}
	if c.Insights.Scheduler.OptimizeIntervalSeconds <= 0 {
		return fmt.Errorf("config: insights.scheduler.optimizeIntervalSeconds invalid: %d", c.Insights.Scheduler.OptimizeIntervalSeconds)
	}
	if c.Insights.Scheduler.PrecomputeIntervalSeconds <= 0 {
		return fmt.Errorf("config: insights.scheduler.precomputeIntervalSeconds invalid: %d", c.Insights.Scheduler.PrecomputeIntervalSeconds)
	}
	if c.Insights.History.PruneIntervalSeconds <= 0 {
		return fmt.Errorf("config: insights.history.pruneIntervalSeconds invalid: %d", c.Insights.History.PruneIntervalSeconds)
	}
	backend := strings.TrimSpace(strings.ToLower(c.Insights.History.Backend))
	switch backend {
	case "", "memory":
	case "valkey":
		if strings.TrimSpace(c.Insights.History.Valkey.Address) == "" {
			return errors.New("config: insights.history.valkey.address required for valkey backend")
		}
	default:
		return fmt.Errorf("config: insights.history.backend unsupported: %s", c.Insights.History.Backend)
	}
	return nil
}

// DefaultConfig returns the baseline values that align with the design defaults.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Listen: ListenConfig{
				Address: "0.0.0.0",
				Port:    8080,
			},
			Logging: LoggingConfig{
				Level:  "info",
				Format: "json",
			},
			ShutdownGraceSeconds: 10,
		},
		Insights: InsightsConfig{
			Cache: CacheConfig{
				TTLSeconds: 300,
				MaxEntries: 200,
			},
			Scheduler: SchedulerConfig{
				BackgroundEnabled:         true,
				WarmupOnInit:              true,
				OptimizeIntervalSeconds:   300,
				PrecomputeIntervalSeconds: 900,
			},
			History: HistoryConfig{
				Backend:              "memory",
				PruneIntervalSeconds: 3600,
			},
		},
	}
}
