package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/verdantlabs/sprout/internal/analysis"
	"github.com/verdantlabs/sprout/internal/config"
	"github.com/verdantlabs/sprout/internal/insight"
	"github.com/verdantlabs/sprout/internal/insight/cache"
	"github.com/verdantlabs/sprout/internal/insight/history"
	"github.com/verdantlabs/sprout/internal/logging"
	"github.com/verdantlabs/sprout/internal/metrics"
	"github.com/verdantlabs/sprout/internal/report"
	"github.com/verdantlabs/sprout/internal/server"
	"github.com/verdantlabs/sprout/internal/stores"
	"github.com/verdantlabs/sprout/internal/tips"
)

func main() {
	var (
		configFile = flag.String("config", "", "path to server configuration file")
		envPrefix  = flag.String("env-prefix", "SPROUT", "environment variable prefix")
	)
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loader := config.NewLoader(*envPrefix, *configFile)
	cfg, err := loader.Load(ctx)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger, err := logging.New(cfg.Server.Logging)
	if err != nil {
		log.Fatalf("failed to configure logger: %v", err)
	}

	metricsRecorder := metrics.NewRecorder(prometheus.NewRegistry())

	store := cache.NewStore(cfg.Insights.Cache.TTL(), cfg.Insights.Cache.MaxEntries)
	tracker := insight.NewTracker(store, logger, metricsRecorder)

	plants := stores.NewPlantStore(func() { tracker.MarkChanged(insight.DomainPlantData) })
	activities := stores.NewActivityStore(func() { tracker.MarkChanged(insight.DomainActivityData) })
	weather := stores.NewWeatherProvider(func() { tracker.MarkChanged(insight.DomainWeatherData) })
	prefs := stores.NewPreferenceStore(func() { tracker.MarkChanged(insight.DomainUserPreferences) })

	advisor, err := tips.NewAdvisor(logger, tips.DefaultRules()...)
	if err != nil {
		logger.Error("tip rules failed to compile", slog.Any("error", err))
		os.Exit(1)
	}
	analyzer := analysis.NewAnalyzer(logger, weather)

	engine := insight.New(insight.Options{
		Store:   store,
		Tracker: tracker,
		Monitor: insight.NewMonitor(),
		Sources: insight.Sources{
			Plants:      plants,
			Activities:  activities,
			Weather:     weather,
			Preferences: prefs,
		},
		Advisor:  advisor,
		Analyzer: analyzer,
		Logger:   logger,
		Metrics:  metricsRecorder,
	})

	historyStore, err := history.New(history.Config{
		Backend: cfg.Insights.History.Backend,
		Valkey: history.ValkeyConfig{
			Address:  cfg.Insights.History.Valkey.Address,
			Username: cfg.Insights.History.Valkey.Username,
			Password: cfg.Insights.History.Valkey.Password,
			DB:       cfg.Insights.History.Valkey.DB,
			TLS: history.ValkeyTLSConfig{
				Enabled: cfg.Insights.History.Valkey.TLS.Enabled,
				CAFile:  cfg.Insights.History.Valkey.TLS.CAFile,
			},
		},
	})
	if err != nil {
		logger.Error("history backend setup failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := historyStore.Close(shutdownCtx); err != nil {
			logger.Error("history shutdown failed", slog.Any("error", err))
		}
	}()

	scheduler := insight.NewScheduler(engine, historyStore, schedulerSettings(cfg), logger, metricsRecorder)
	scheduler.Start(ctx)
	defer scheduler.Stop()

	renderer, err := report.NewRenderer()
	if err != nil {
		logger.Error("report template failed to compile", slog.Any("error", err))
		os.Exit(1)
	}

	api := server.NewAPI(server.APIOptions{
		Logger:     logger,
		Engine:     engine,
		Scheduler:  scheduler,
		Plants:     plants,
		Activities: activities,
		Prefs:      prefs,
		Weather:    weather,
		Analyzer:   analyzer,
		Reports:    renderer,
		History:    historyStore,
		Metrics:    metricsRecorder.Handler(),
		Insights:   cfg.Insights,
	})

	if *configFile != "" {
		watcher, err := loader.Watch(ctx, func(next config.Config) {
			engine.UpdateCacheConfig(next.Insights.Cache.TTL(), next.Insights.Cache.MaxEntries)
			scheduler.UpdateSettings(schedulerSettings(next))
			logger.Info("configuration reloaded")
		}, func(err error) {
			if err != nil {
				logger.Error("config watcher error", slog.Any("error", err))
			}
		})
		if err != nil {
			logger.Error("config watcher setup failed", slog.Any("error", err))
		} else {
			defer watcher.Stop()
		}
	}

	srv, err := server.New(cfg, logger, api.Handler())
	if err != nil {
		logger.Error("unable to construct server", slog.Any("error", err))
		os.Exit(1)
	}

	if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("server terminated unexpectedly", slog.Any("error", err))
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger.Info("server shutdown complete")
}

func schedulerSettings(cfg config.Config) insight.Settings {
	return insight.Settings{
		BackgroundEnabled:  cfg.Insights.Scheduler.BackgroundEnabled,
		WarmupOnInit:       cfg.Insights.Scheduler.WarmupOnInit,
		OptimizeInterval:   cfg.Insights.Scheduler.OptimizeInterval(),
		PrecomputeInterval: cfg.Insights.Scheduler.PrecomputeInterval(),
		PruneInterval:      cfg.Insights.History.PruneInterval(),
	}
}
