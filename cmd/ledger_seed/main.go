// Command ledger_seed initialises the ledger's seed accounts and, with
// MIGRATE=true, creates the audit tables.
package main

import (
	"context"
	"log"
	"time"

	"go.uber.org/zap"

	"fintrust/internal/config"
	"fintrust/internal/logger"
	"fintrust/internal/repositories"
	"fintrust/internal/services/ledger"
)

func main() {
	config.LoadEnv()

	zl, err := logger.New(config.GetEnv("ENV", "development"))
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer zl.Sync() //nolint:errcheck

	ledgerURL := config.GetEnv("LEDGER_URL", "")
	if ledgerURL == "" {
		zl.Fatal("LEDGER_URL must be set in environment")
	}
	timeout := time.Duration(config.GetIntEnv("LEDGER_TIMEOUT_SECONDS", 30)) * time.Second

	if config.GetEnv("MIGRATE", "false") == "true" {
		cfg := &config.Config{
			DBHost:     config.GetEnv("DB_HOST", "localhost"),
			DBUser:     config.GetEnv("DB_USER", "postgres"),
			DBPassword: config.GetEnv("DB_PASSWORD", "postgres"),
			DBName:     config.GetEnv("DB_NAME", "fintrust"),
			DBPort:     config.GetEnv("DB_PORT", "5432"),
		}
		db, err := repositories.OpenDB(repositories.DefaultDBConfig(cfg.DSN()), zl)
		if err != nil {
			zl.Fatal("failed to migrate audit tables", zap.Error(err))
		}
		if err := repositories.CloseDB(db); err != nil {
			zl.Warn("failed to close database", zap.Error(err))
		}
		zl.Info("audit tables migrated")
	}

	client := ledger.NewGatewayClient(ledger.GatewayConfig{BaseURL: ledgerURL, Timeout: timeout}, zl)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := client.InitLedger(ctx); err != nil {
		zl.Fatal("failed to initialise ledger", zap.Error(err))
	}

	for _, acc := range ledger.SeedAccounts {
		balance, err := client.QueryBalance(ctx, acc.Name)
		if err != nil {
			zl.Error("failed to read seeded balance", zap.String("account", acc.Name), zap.Error(err))
			continue
		}
		zl.Info("account seeded", zap.String("account", acc.Name), zap.String("balance", balance.String()))
	}
}
