// Package main provides the allowance watcher entry point for the USDT marketplace backend.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/usdt-market/internal/adapter"
	"github.com/usdt-market/internal/circuitbreaker"
	"github.com/usdt-market/internal/config"
	"github.com/usdt-market/internal/logging"
	"github.com/usdt-market/internal/ratelimit"
	"github.com/usdt-market/internal/retry"
	"github.com/usdt-market/internal/service"
	"github.com/usdt-market/internal/storage"
	"github.com/usdt-market/internal/worker"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		logging.WithError(err).Fatal("Failed to load configuration")
	}

	logging.InitGlobalLogger(logging.ParseLogLevel(cfg.Logging.Level), logging.ParseLogFormat(cfg.Logging.Format))
	logger := logging.GetGlobalLogger().WithField("component", "allowance-watcher")
	defer logger.Sync()

	if err := cfg.Validate(); err != nil {
		logger.WithError(err).Fatal("Invalid configuration")
	}

	ctx, cancel := context.WithCancel(logging.WithLogger(context.Background(), logger))
	defer cancel()

	logger.Info("Connecting to databases...")

	var postgres *storage.PostgresDB
	err = retry.Connect(ctx, "postgres", retry.DefaultPolicy(), func(ctx context.Context) error {
		var err error
		postgres, err = storage.NewPostgresDB(ctx, &cfg.Database.Postgres)
		return err
	})
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Postgres")
	}
	defer postgres.Close()

	var history worker.HistoryWriter
	if cfg.Database.ClickHouse.Enabled {
		var clickhouse *storage.ClickHouseDB
		err := retry.Connect(ctx, "clickhouse", retry.DefaultPolicy(), func(ctx context.Context) error {
			var err error
			clickhouse, err = storage.NewClickHouseDB(ctx, &cfg.Database.ClickHouse)
			return err
		})
		if err != nil {
			logger.WithError(err).Fatal("Failed to connect to ClickHouse")
		}
		defer clickhouse.Close()
		history = storage.NewAllowanceHistoryRepository(clickhouse)
	} else {
		logger.Warn("ClickHouse disabled: snapshots will not be recorded")
	}

	adapters, err := adapter.NewChainAdapterSetFromConfig(cfg, circuitbreaker.NewCircuitBreakerManager())
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize chain adapters")
	}
	defer adapters.Close()

	// Watcher calls draw from the shared pool, leaving the reserved pool
	// to the API server
	if cfg.Database.Redis.Enabled && cfg.RPCBudget.Enabled {
		var redis *storage.RedisCache
		err := retry.Connect(ctx, "redis", retry.DefaultPolicy(), func(ctx context.Context) error {
			var err error
			redis, err = storage.NewRedisCache(ctx, &cfg.Database.Redis)
			return err
		})
		if err != nil {
			logger.WithError(err).Fatal("Failed to connect to Redis")
		}
		defer redis.Close()

		budget, err := ratelimit.NewCallBudget(&ratelimit.CallBudgetConfig{
			Redis:          redis.Client(),
			TotalBudget:    cfg.RPCBudget.CallsPerSecond,
			ReservedBudget: cfg.RPCBudget.Reserved,
		})
		if err != nil {
			logger.WithError(err).Fatal("Failed to create RPC call budget")
		}
		// Background sweeps may wait out a full window
		adapters.WithCallBudget(budget, ratelimit.NewCostRegistry(nil), cfg.RPCBudget.MaxWait+time.Second)
	}

	registry := service.NewWalletRegistry(storage.NewWalletRepository(postgres))
	verifier := service.NewAllowanceVerifier(adapters, service.ContractsFromConfig(cfg), cfg.Verifier.Concurrency)

	watcher, err := worker.NewAllowanceWatcher(&worker.AllowanceWatcherConfig{
		Wallets:  registry,
		Verifier: verifier,
		History:  history,
		Interval: cfg.Worker.Interval,
	})
	if err != nil {
		logger.WithError(err).Fatal("Failed to create allowance watcher")
	}

	if err := watcher.Start(ratelimit.WithPriority(ctx, ratelimit.PriorityBackground)); err != nil {
		logger.WithError(err).Fatal("Failed to start allowance watcher")
	}

	logger.WithFields(map[string]interface{}{
		"interval": cfg.Worker.Interval.String(),
		"networks": adapters.Networks(),
	}).Info("Allowance watcher started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down allowance watcher...")

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer stopCancel()

	if err := watcher.Stop(stopCtx); err != nil {
		logger.WithError(err).Error("Allowance watcher did not stop cleanly")
	}

	logger.Info("Worker exited")
}
