// feedwatch cache inspection server: serves a read-only HTTP view of the
// persisted feed cache for debugging and monitoring.
package main

import (
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"feedwatch-go/internal/config"
	"feedwatch-go/internal/handler"
	"feedwatch-go/pkg/cache"
	"feedwatch-go/pkg/logger"
	"feedwatch-go/pkg/persist"
)

func main() {
	var (
		configPath = flag.String("config", "feedwatch.yaml", "Configuration file path")
		addr       = flag.String("addr", ":8080", "Listen address")
	)
	flag.Parse()

	cfg, err := config.NewManager().Load(*configPath)
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}

	logger.SetLogger(logger.New(cfg.Logger))
	log := logger.GetLogger().WithField("component", "server")

	policies, err := cfg.RetentionMap()
	if err != nil {
		log.WithError(err).Fatal("Invalid feed URL in configuration")
	}

	backend, err := persist.New(cfg.Cache.Backend, cfg.Cache.Path)
	if err != nil {
		log.WithError(err).Fatal("Failed to create cache backend")
	}

	store := cache.NewStore(policies)
	if err := store.Load(backend); err != nil {
		var corrupt *cache.CorruptError
		if !errors.As(err, &corrupt) {
			log.WithError(err).Fatal("Failed to load cache")
		}
		log.WithError(err).Warn("Cache is unreadable, serving an empty view")
	}

	app := handler.New(store)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info("Shutdown signal received")
		if err := app.ShutdownWithTimeout(5 * time.Second); err != nil {
			log.WithError(err).Warn("Shutdown did not complete cleanly")
		}
	}()

	log.WithField("addr", *addr).Info("Serving cache inspection API")
	if err := app.Listen(*addr); err != nil {
		log.WithError(err).Fatal("Server failed")
	}
}
