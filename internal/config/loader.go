package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	kjson "github.com/knadh/koanf/parsers/json"
	ktoml "github.com/knadh/koanf/parsers/toml"
	kyaml "github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Loader hydrates the runtime configuration while respecting env > file > default precedence.
type Loader struct {
	envPrefix string
	files     []string
}

// NewLoader prepares a config hydrator that honors the env-first contract before touching files or defaults.
func NewLoader(envPrefix string, files ...string) *Loader {
	return &Loader{
		envPrefix: envPrefix,
		files:     files,
	}
}

// Load assembles the effective snapshot using the documented precedence rules.
func (l *Loader) Load(ctx context.Context) (Config, error) {
	defaultCfg := DefaultConfig()
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(structToMap(defaultCfg), "."), nil); err != nil {
		return Config{}, fmt.Errorf("config: load defaults: %w", err)
	}

	for _, path := range l.files {
		if path == "" {
			continue
		}
		select {
		case <-ctx.Done():
			return Config{}, ctx.Err()
		default:
		}
		if _, err := os.Stat(path); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return Config{}, fmt.Errorf("config: file %s not found", path)
			}
			return Config{}, fmt.Errorf("config: stat %s: %w", path, err)
		}
		parser, err := parserFor(path)
		if err != nil {
			return Config{}, err
		}
		if err := k.Load(file.Provider(path), parser); err != nil {
			return Config{}, fmt.Errorf("config: load file %s: %w", path, err)
		}
	}

	if l.envPrefix != "" {
		canonical := map[string]string{
			"insights.cache.ttlseconds":                    "insights.cache.ttlSeconds",
			"insights.cache.maxentries":                    "insights.cache.maxEntries",
			"insights.scheduler.backgroundenabled":         "insights.scheduler.backgroundEnabled",
			"insights.scheduler.warmuponinit":              "insights.scheduler.warmupOnInit",
			"insights.scheduler.optimizeintervalseconds":   "insights.scheduler.optimizeIntervalSeconds",
			"insights.scheduler.precomputeintervalseconds": "insights.scheduler.precomputeIntervalSeconds",
			"insights.history.pruneintervalseconds":        "insights.history.pruneIntervalSeconds",
			"insights.history.valkey.tls.cafile":           "insights.history.valkey.tls.caFile",
		}
		transform := func(s string) string {
			// Double underscores signal a nested path (INSIGHTS__CACHE__TTLSECONDS -> insights.cache.ttlseconds).
			key := strings.TrimPrefix(s, l.envPrefix+"_")
			key = strings.ReplaceAll(key, "__", ".")
			lower := strings.ToLower(key)
			if mapped, ok := canonical[lower]; ok {
				return mapped
			}
			// Single underscores are removed so LISTEN_PORT collapses into listenport when callers
			// choose not to use double underscores for object nesting.
			key = strings.ReplaceAll(key, "_", "")
			return strings.ToLower(key)
		}
		if err := k.Load(env.Provider(l.envPrefix, ".", transform), nil); err != nil {
			return Config{}, fmt.Errorf("config: load env: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// parserFor selects the koanf parser matching the config file extension.
func parserFor(path string) (koanf.Parser, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return kyaml.Parser(), nil
	case ".json":
		return kjson.Parser(), nil
	case ".toml":
		return ktoml.Parser(), nil
	default:
		return nil, fmt.Errorf("config: unsupported file extension for %s", path)
	}
}

// structToMap converts DefaultConfig into a map for the koanf confmap provider.
func structToMap(cfg Config) map[string]any {
	return map[string]any{
		"server": map[string]any{
			"listen": map[string]any{
				"address": cfg.Server.Listen.Address,
				"port":    cfg.Server.Listen.Port,
			},
			"logging": map[string]any{
				"level":  cfg.Server.Logging.Level,
				"format": cfg.Server.Logging.Format,
			},
			"shutdownGraceSeconds": cfg.Server.ShutdownGraceSeconds,
		},
		"insights": map[string]any{
			"cache": map[string]any{
				"ttlSeconds": cfg.Insights.Cache.TTLSeconds,
				"maxEntries": cfg.Insights.Cache.MaxEntries,
			},
			"scheduler": map[string]any{
				"backgroundEnabled":         cfg.Insights.Scheduler.BackgroundEnabled,
				"warmupOnInit":              cfg.Insights.Scheduler.WarmupOnInit,
				"optimizeIntervalSeconds":   cfg.Insights.Scheduler.OptimizeIntervalSeconds,
				"precomputeIntervalSeconds": cfg.Insights.Scheduler.PrecomputeIntervalSeconds,
			},
			"history": map[string]any{
				"backend":              cfg.Insights.History.Backend,
				"pruneIntervalSeconds": cfg.Insights.History.PruneIntervalSeconds,
				"valkey": map[string]any{
					"address":  cfg.Insights.History.Valkey.Address,
					"username": cfg.Insights.History.Valkey.Username,
					"password": cfg.Insights.History.Valkey.Password,
					"db":       cfg.Insights.History.Valkey.DB,
					"tls": map[string]any{
						"enabled": cfg.Insights.History.Valkey.TLS.Enabled,
						"caFile":  cfg.Insights.History.Valkey.TLS.CAFile,
					},
				},
			},
		},
	}
}
