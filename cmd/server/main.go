// Package main provides the ChainSage server: the monitoring agent plus its HTTP API.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chainsage-alerts/internal/adapter"
	"github.com/chainsage-alerts/internal/agent"
	"github.com/chainsage-alerts/internal/api"
	"github.com/chainsage-alerts/internal/chains"
	"github.com/chainsage-alerts/internal/config"
	"github.com/chainsage-alerts/internal/logging"
	"github.com/chainsage-alerts/internal/metrics"
	"github.com/chainsage-alerts/internal/publisher"
	"github.com/chainsage-alerts/internal/service"
	"github.com/chainsage-alerts/internal/storage"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logging.InitGlobalLogger(logging.ParseLogLevel(cfg.Logging.Level), logging.ParseLogFormat(cfg.Logging.Format))
	logger := logging.GetGlobalLogger()
	defer func() { _ = logger.Sync() }()

	metrics.Init()

	ctx := context.Background()

	store, err := storage.OpenAlertStore(ctx, cfg.Store)
	if err != nil {
		logger.WithError(err).Fatal("Failed to open alert store")
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.WithError(err).Warn("Failed to close alert store")
		}
	}()
	logger.WithField("driver", cfg.Store.Driver).Info("Alert store ready")

	clients, err := adapter.NewBalanceClients(cfg.Chains)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize chain adapters")
	}
	defer func() {
		for _, c := range clients {
			c.Close()
		}
	}()

	registry := chains.NewRegistry(cfg.Chains.Monitored)
	fetcher := service.NewBalanceFetcher(clients, registry, cfg.Fetch)
	aggregator := service.NewAggregator(fetcher)
	scorer := service.NewScorer(registry)

	monitor, err := agent.NewAgent(agent.Config{
		WalletAddress: cfg.Agent.WalletAddress,
		Interval:      cfg.Agent.Interval,
		AllowOverlap:  cfg.Agent.AllowOverlap,
	}, registry, aggregator, scorer, store)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create agent")
	}

	var latest api.LatestReader
	if cfg.Redis.Enabled {
		cache, err := storage.NewAlertCache(cfg.Redis)
		if err != nil {
			logger.WithError(err).Warn("Redis unavailable, latest-assessment cache disabled")
		} else {
			defer func() { _ = cache.Close() }()
			monitor.SetCache(cache)
			latest = cache
		}
	}

	if kafkaPublisher := publisher.NewKafkaPublisher(cfg.Kafka); kafkaPublisher != nil {
		defer func() {
			if err := kafkaPublisher.Close(); err != nil {
				logger.WithError(err).Warn("Failed to close Kafka publisher")
			}
		}()
		monitor.SetPublisher(kafkaPublisher)
		logger.WithField("topic", kafkaPublisher.Topic()).Info("Publishing assessments to Kafka")
	}

	server := api.NewServer(&api.ServerConfig{
		Host:              cfg.Server.Host,
		Port:              cfg.Server.Port,
		AllowedOrigins:    cfg.Server.AllowedOrigins,
		StaticDir:         cfg.Server.StaticDir,
		ManifestPath:      cfg.Server.ManifestPath,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
		RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
		SweepInterval:     cfg.RateLimit.SweepInterval,
	}, monitor, store, latest)

	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("Server failed to start")
		}
	}()

	monitor.Start()

	logger.WithFields(map[string]interface{}{
		"host":   cfg.Server.Host,
		"port":   cfg.Server.Port,
		"wallet": cfg.Agent.WalletAddress,
		"chains": registry.MonitoredChains(),
	}).Info("ChainSage started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down...")
	monitor.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}
	if err := monitor.Wait(shutdownCtx); err != nil {
		logger.WithError(err).Warn("Timed out waiting for in-flight passes")
	}

	logger.Info("Server exited")
}
