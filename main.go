// feedwatch polls a configured set of web feeds, decides which items are new
// relative to a persisted cache, routes the new items to an output sink, and
// saves the updated cache.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"feedwatch-go/internal/config"
	"feedwatch-go/pkg/cache"
	"feedwatch-go/pkg/feed"
	"feedwatch-go/pkg/fetch"
	"feedwatch-go/pkg/logger"
	"feedwatch-go/pkg/output"
	"feedwatch-go/pkg/persist"
	"feedwatch-go/pkg/runner"
)

// Exit codes. Setup problems (bad config, no feeds) are distinguished from a
// run whose fetch/output work completed but whose cache save failed.
const (
	exitOK      = 0
	exitRunFail = 1
	exitSetup   = 2
)

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func main() {
	defaultConfig := getEnvOrDefault("FEEDWATCH_CONFIG", "feedwatch.yaml")
	defaultWorkers := getEnvIntOrDefault("FEEDWATCH_WORKERS", 0)

	var (
		configPath    = flag.String("config", defaultConfig, "Configuration file path (env: FEEDWATCH_CONFIG)")
		workers       = flag.Int("workers", defaultWorkers, "Worker count override, 0 uses the configured value (env: FEEDWATCH_WORKERS)")
		noCacheUpdate = flag.Bool("no-cache-update", false, "Do not write the cache back after the run")
		debug         = flag.Bool("debug", false, "Enable debug logging")
	)
	flag.Parse()

	cfg, err := config.NewManager().Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "feedwatch: %v\n", err)
		os.Exit(exitSetup)
	}

	if *debug {
		cfg.Logger.Level = "debug"
	}
	logger.SetLogger(logger.New(cfg.Logger))

	if *workers > 0 {
		cfg.Worker.MaxWorkers = *workers
	}
	if *noCacheUpdate {
		cfg.Cache.Update = false
	}

	os.Exit(run(cfg))
}

func run(cfg *config.Config) int {
	log := logger.GetLogger().WithField("component", "main")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	policies, err := cfg.RetentionMap()
	if err != nil {
		log.WithError(err).Error("Invalid feed URL in configuration")
		return exitSetup
	}

	feedURLs := make([]*url.URL, 0, len(cfg.Feeds))
	for _, feedCfg := range cfg.EnabledFeeds() {
		u, err := feed.ParseURL(feedCfg.URL)
		if err != nil {
			log.WithError(err).Error("Invalid feed URL in configuration")
			return exitSetup
		}
		feedURLs = append(feedURLs, u)
	}

	backend, err := persist.New(cfg.Cache.Backend, cfg.Cache.Path)
	if err != nil {
		log.WithError(err).Error("Failed to create cache backend")
		return exitSetup
	}

	parser, err := feed.NewParser(cfg.Output.Parser)
	if err != nil {
		log.WithError(err).Error("Failed to create feed parser")
		return exitSetup
	}

	sink, err := output.NewSink(cfg.Output.Sink)
	if err != nil {
		log.WithError(err).Error("Failed to create output sink")
		return exitSetup
	}

	hooks := runner.Hooks{}

	store := cache.NewStore(policies)
	if err := store.Load(backend); err != nil {
		var corrupt *cache.CorruptError
		if !errors.As(err, &corrupt) {
			log.WithError(err).Error("Failed to load cache")
			return exitRunFail
		}
		// A broken cache file degrades to a fresh cache; the run goes on.
		log.WithError(err).Warn("Cache is unreadable, starting with an empty cache")
		store = cache.NewStore(policies)
	}
	for _, hook := range hooks.PostCacheLoad {
		hook(store)
	}

	fetcher := fetch.NewClient(time.Duration(cfg.Worker.TimeoutSec) * time.Second)
	feedRunner := runner.New(fetcher, parser, store, cfg.Worker.MaxWorkers, hooks)

	results, err := feedRunner.Run(ctx, feedURLs)
	if err != nil {
		if errors.Is(err, runner.ErrNoFeeds) {
			log.Error("All configured feeds are disabled")
			return exitSetup
		}
		log.WithError(err).Error("Feed run failed")
		return exitRunFail
	}

	failed := 0
	emitted := 0
	for _, result := range results {
		switch {
		case result.State == runner.StateFailed:
			failed++
		case len(result.Items) > 0:
			if err := sink.Emit(result.Channel, result.Items); err != nil {
				log.WithError(err).WithField("feed", result.FeedURL.String()).Warn("Output sink failed for feed")
			}
			emitted += len(result.Items)
		}
	}
	if err := sink.Flush(); err != nil {
		log.WithError(err).Warn("Output sink flush failed")
	}

	log.WithFields(map[string]interface{}{
		"feeds":     len(results),
		"failed":    failed,
		"new_items": emitted,
	}).Info("Run complete")

	for _, hook := range hooks.PreCacheSave {
		hook(store)
	}

	if cfg.Cache.Update {
		if err := store.Save(backend, cfg.Cache.Backups); err != nil {
			log.WithError(err).Error("Failed to save cache")
			return exitRunFail
		}
	} else {
		log.Debug("Cache updates disabled, not saving")
	}

	return exitOK
}
