// Package main provides the API server entry point for the USDT marketplace backend.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/usdt-market/internal/adapter"
	"github.com/usdt-market/internal/api"
	"github.com/usdt-market/internal/chat"
	"github.com/usdt-market/internal/circuitbreaker"
	"github.com/usdt-market/internal/config"
	"github.com/usdt-market/internal/logging"
	"github.com/usdt-market/internal/ratelimit"
	"github.com/usdt-market/internal/retry"
	"github.com/usdt-market/internal/service"
	"github.com/usdt-market/internal/storage"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		logging.WithError(err).Fatal("Failed to load configuration")
	}

	logging.InitGlobalLogger(logging.ParseLogLevel(cfg.Logging.Level), logging.ParseLogFormat(cfg.Logging.Format))
	logger := logging.GetGlobalLogger()
	defer logger.Sync()

	if err := cfg.Validate(); err != nil {
		logger.WithError(err).Fatal("Invalid configuration")
	}

	ctx := logging.WithLogger(context.Background(), logger)

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

	// Without Redis payouts are serialized in this process only
	var locker service.Locker
	var redis *storage.RedisCache
	if cfg.Database.Redis.Enabled {
		err = retry.Connect(ctx, "redis", retry.DefaultPolicy(), func(ctx context.Context) error {
			var err error
			redis, err = storage.NewRedisCache(ctx, &cfg.Database.Redis)
			return err
		})
		if err != nil {
			logger.WithError(err).Fatal("Failed to connect to Redis")
		}
		defer redis.Close()
		locker = redis
	} else {
		logger.Warn("Redis disabled: payout lock is process local")
	}

	var history service.HistoryReader
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
	}

	logger.Info("Database connections established")

	adapters, err := adapter.NewChainAdapterSetFromConfig(cfg, circuitbreaker.NewCircuitBreakerManager())
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize chain adapters")
	}
	defer adapters.Close()
	if redis != nil && cfg.RPCBudget.Enabled {
		budget, err := ratelimit.NewCallBudget(&ratelimit.CallBudgetConfig{
			Redis:          redis.Client(),
			TotalBudget:    cfg.RPCBudget.CallsPerSecond,
			ReservedBudget: cfg.RPCBudget.Reserved,
		})
		if err != nil {
			logger.WithError(err).Fatal("Failed to create RPC call budget")
		}
		adapters.WithCallBudget(budget, ratelimit.NewCostRegistry(nil), cfg.RPCBudget.MaxWait)
	}
	logger.WithField("networks", adapters.Networks()).Info("Chain adapters initialized")

	// Repositories
	counters := storage.NewCounterRepository(postgres)
	walletRepo := storage.NewWalletRepository(postgres)
	payoutRepo := storage.NewPayoutRepository(postgres)
	traderRepo := storage.NewTraderRepository(postgres, counters)
	adRepo := storage.NewAdRepository(postgres, counters)
	ticketRepo := storage.NewTicketRepository(postgres, counters)
	settingsRepo := storage.NewSettingsRepository(postgres)
	adminRepo := storage.NewAdminUserRepository(postgres)

	// Services
	contracts := service.ContractsFromConfig(cfg)
	verifier := service.NewAllowanceVerifier(adapters, contracts, cfg.Verifier.Concurrency)
	registry := service.NewWalletRegistry(walletRepo)
	dashboard := service.NewDashboardService(registry, verifier, traderRepo, history)
	payouts := service.NewPayoutExecutor(walletRepo, payoutRepo, verifier, adapters, contracts, cfg.ColdWallets, locker, cfg.Payout.LockTTL)
	auth := service.NewAuthService(adminRepo, cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)

	if err := auth.SeedAdmin(ctx, cfg.Auth.AdminUsername, cfg.Auth.AdminPassword); err != nil {
		logger.WithError(err).Fatal("Failed to seed admin user")
	}

	serverConfig := &api.ServerConfig{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		ReadTimeout:     15 * time.Second,
		WriteTimeout:    60 * time.Second,
		IdleTimeout:     60 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		PublicRPS:       cfg.RateLimit.PublicRPS,
		AdminRPS:        cfg.RateLimit.AdminRPS,
	}

	server := api.NewServer(serverConfig, api.Services{
		Auth:      auth,
		Wallets:   registry,
		Dashboard: dashboard,
		Payouts:   payouts,
		Catalog:   service.NewCatalogService(traderRepo, adRepo),
		Tickets:   service.NewTicketService(ticketRepo),
		Settings:  service.NewSettingsService(settingsRepo),
		Trades:    service.NewTradeService(traderRepo, settingsRepo, verifier, adapters, contracts, cfg.Trade),
		Chat:      chat.NewHub(cfg.Chat.HistoryLimit, cfg.Chat.MaxRooms),
	})

	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("Server failed to start")
		}
	}()

	logger.WithFields(map[string]interface{}{
		"host": cfg.Server.Host,
		"port": cfg.Server.Port,
	}).Info("Server started successfully")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), serverConfig.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}

	logger.Info("Server exited")
}
