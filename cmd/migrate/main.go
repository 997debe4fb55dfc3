// Package main provides a CLI tool for running database migrations.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/usdt-market/internal/config"
	"github.com/usdt-market/internal/logging"
	"github.com/usdt-market/internal/retry"
	"github.com/usdt-market/internal/storage"
)

func main() {
	var (
		action = flag.String("action", "up", "Migration action: up, down, version")
		dbType = flag.String("db", "postgres", "Database type: postgres, clickhouse")
		steps  = flag.Int("steps", 1, "Number of migrations to roll back with -action=down")
	)
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		logging.WithError(err).Fatal("Failed to load config")
	}
	logging.InitGlobalLogger(logging.ParseLogLevel(cfg.Logging.Level), logging.ParseLogFormat(cfg.Logging.Format))
	logger := logging.GetGlobalLogger().WithField("db", *dbType)
	defer logger.Sync()

	switch *dbType {
	case "postgres":
		if err := runPostgresMigrations(cfg, *action, *steps, logger); err != nil {
			logger.WithError(err).Fatal("Postgres migration failed")
		}
	case "clickhouse":
		if err := runClickHouseMigrations(cfg, *action, logger); err != nil {
			logger.WithError(err).Fatal("ClickHouse migration failed")
		}
	default:
		logger.Fatalf("Unknown database type: %s", *dbType)
	}
}

func runPostgresMigrations(cfg *config.Config, action string, steps int, logger *logging.Logger) error {
	databaseURL := cfg.Database.Postgres.URL()
	migrationsPath := "migrations/postgres"

	switch action {
	case "up":
		logger.Info("Running Postgres migrations...")
		if err := storage.RunMigrations(databaseURL, migrationsPath); err != nil {
			return err
		}
		logger.Info("Postgres migrations completed successfully")

	case "down":
		logger.WithField("steps", steps).Info("Rolling back Postgres migrations...")
		if err := storage.RollbackMigrations(databaseURL, migrationsPath, steps); err != nil {
			return err
		}
		logger.Info("Postgres migrations rolled back successfully")

	case "version":
		version, dirty, err := storage.MigrationVersion(databaseURL, migrationsPath)
		if err != nil {
			return err
		}
		logger.WithFields(map[string]interface{}{
			"version": version,
			"dirty":   dirty,
		}).Info("Current Postgres migration version")

	default:
		return fmt.Errorf("unknown action: %s", action)
	}

	return nil
}

func runClickHouseMigrations(cfg *config.Config, action string, logger *logging.Logger) error {
	if action != "up" {
		return fmt.Errorf("ClickHouse migrations only support 'up' action")
	}

	ctx := logging.WithLogger(context.Background(), logger)

	// A migration job often starts alongside the database container
	var db *storage.ClickHouseDB
	policy := retry.Policy{MaxAttempts: 3, InitialDelay: 2 * time.Second, MaxDelay: 5 * time.Second, Multiplier: 2}
	err := retry.Connect(ctx, "clickhouse", policy, func(ctx context.Context) error {
		var err error
		db, err = storage.NewClickHouseDB(ctx, &cfg.Database.ClickHouse)
		return err
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.WithError(err).Warn("Error closing ClickHouse connection")
		}
	}()

	migrationsPath := "migrations/clickhouse"
	if _, err := os.Stat(migrationsPath); os.IsNotExist(err) {
		return fmt.Errorf("migrations directory not found: %s", migrationsPath)
	}

	logger.Info("Running ClickHouse migrations...")
	if err := storage.RunClickHouseMigrations(ctx, db, migrationsPath); err != nil {
		return err
	}

	logger.Info("ClickHouse migrations completed successfully")
	return nil
}
