// Package main is the entry point for the settlement service.
package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"fintrust/internal/config"
	"fintrust/internal/handlers"
	"fintrust/internal/logger"
	"fintrust/internal/metrics"
	"fintrust/internal/middleware"
	"fintrust/internal/repositories"
	"fintrust/internal/repositories/cache"
	"fintrust/internal/repositories/memory"
	"fintrust/internal/routes"
	"fintrust/internal/services/auth"
	"fintrust/internal/services/bridge"
	"fintrust/internal/services/compliance"
	"fintrust/internal/services/events"
	"fintrust/internal/services/ledger"
	"fintrust/internal/services/risk"
	"fintrust/internal/services/settlement"
)

const (
	jwksStartupWait = 30 * time.Second
	shutdownTimeout = 15 * time.Second
	recordCacheTTL  = 24 * time.Hour
)

// auditBackend is the store the pipeline and the health check share.
type auditBackend interface {
	settlement.AuditStore
	Ping(ctx context.Context) error
}

func main() {
	config.LoadEnv()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	zl, err := logger.New(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer zl.Sync() //nolint:errcheck

	if err := run(cfg, zl); err != nil {
		zl.Fatal("service stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, zl *zap.Logger) error {
	ctx := context.Background()
	checks := map[string]handlers.HealthCheck{}

	// Audit store
	var store auditBackend
	switch cfg.StoreDriver {
	case "memory":
		store = memory.NewAuditStore()
		zl.Warn("using in-memory audit store, records are lost on restart")
	default:
		db, err := repositories.OpenDB(repositories.DefaultDBConfig(cfg.DSN()), zl)
		if err != nil {
			return err
		}
		defer func() {
			if err := repositories.CloseDB(db); err != nil {
				zl.Warn("failed to close database", zap.Error(err))
			}
		}()
		store = repositories.NewAuditRepository(db)
		zl.Info("connected to database")
	}
	checks["database"] = store.Ping

	// Lock, feature store and record cache
	var (
		locker      settlement.Locker
		features    risk.FeatureStore
		recordCache settlement.RecordCache
	)
	if cfg.RedisEnabled {
		redisClient, err := cache.Connect(ctx, &cache.RedisConfig{
			Host:     cfg.RedisHost,
			Port:     cfg.RedisPort,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			return err
		}
		cacheService := cache.NewCacheService(redisClient, recordCacheTTL)
		defer cacheService.Close()

		locker = cache.NewRedisLocker(redisClient)
		features = cache.NewFeatureStore(redisClient, cfg.VelocityWindow)
		recordCache = cacheService
		checks["redis"] = cacheService.HealthCheck
		zl.Info("connected to redis")
	} else {
		locker = memory.NewLocker()
		features = memory.NewFeatureStore(cfg.VelocityWindow)
		zl.Warn("redis disabled, settlement locks are process-local")
	}

	// Ledger
	var ledgerClient ledger.Client
	switch cfg.LedgerMode {
	case "gateway":
		ledgerClient = ledger.NewGatewayClient(ledger.GatewayConfig{
			BaseURL: cfg.LedgerURL,
			Timeout: cfg.LedgerTimeout,
			RPS:     cfg.LedgerRPS,
		}, logger.Component(zl, "ledger"))
	default:
		mem := ledger.NewMemoryLedger()
		if err := mem.InitLedger(ctx); err != nil {
			return err
		}
		ledgerClient = mem
		zl.Warn("using in-memory ledger")
	}

	// Risk scoring
	var scorer risk.Scorer = risk.NewLocalScorer()
	if cfg.ScorerMode == "remote" {
		scorer = risk.NewRemoteScorer(cfg.ScorerURL, cfg.ScoringTimeout)
	}
	engine := risk.NewEngine(scorer, features, risk.Config{
		Threshold: cfg.RiskThreshold,
		Timeout:   cfg.ScoringTimeout,
	}, logger.Component(zl, "risk"))

	// Bridge
	rates, err := loadRates(cfg)
	if err != nil {
		return err
	}
	bridgeService, err := bridge.NewService(rates)
	if err != nil {
		return err
	}

	// Events and metrics
	publisher := events.Connect(cfg.RabbitMQURL, logger.Component(zl, "events"))
	defer publisher.Close()
	collector := metrics.NewCollector()

	settlementService := settlement.NewService(settlement.Dependencies{
		Store:     store,
		Locker:    locker,
		Assessor:  engine,
		Bridge:    bridgeService,
		Ledger:    ledgerClient,
		Cache:     recordCache,
		Publisher: publisher,
		Metrics:   collector,
		Logger:    zl,
	}, settlement.Config{
		BridgeTimeout:   cfg.BridgeTimeout,
		LedgerTimeout:   cfg.LedgerTimeout,
		AuditTimeout:    cfg.AuditTimeout,
		LockTTL:         cfg.LockTTL,
		DefaultCurrency: cfg.DefaultCurrency,
	})

	archive, err := compliance.NewArchive(cfg.ReportsDir)
	if err != nil {
		return err
	}

	// Authentication
	var authMiddleware *middleware.AuthMiddleware
	if cfg.AuthDisabled {
		zl.Warn("authentication disabled")
	} else {
		keys := auth.NewKeySet(cfg.JWKSURL, logger.Component(zl, "auth"))
		if err := keys.Load(ctx, jwksStartupWait); err != nil {
			return err
		}
		if err := keys.StartRefresh(cfg.JWKSRefreshCron); err != nil {
			return err
		}
		defer keys.Stop()
		authService := auth.NewService(keys, auth.Config{Audience: cfg.JWTAudience, Issuer: cfg.JWTIssuer})
		authMiddleware = middleware.NewAuthMiddleware(authService, logger.Component(zl, "auth"))
	}

	app := fiber.New(fiber.Config{
		AppName:      "fintrust",
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.LedgerTimeout + 15*time.Second,
	})
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET,POST,HEAD",
	}))
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	app.Use(collector.Middleware())

	routes.SetupRoutes(app, routes.Deps{
		Transactions: handlers.NewTransactionHandler(settlementService, ledgerClient, cfg.LedgerTimeout, logger.Component(zl, "http")),
		Fraud:        handlers.NewFraudHandler(settlementService),
		Bridge:       handlers.NewBridgeHandler(bridgeService, cfg.BridgeTimeout, logger.Component(zl, "http")),
		Compliance:   handlers.NewComplianceHandler(settlementService, archive, logger.Component(zl, "http")),
		Health:       handlers.NewHealthHandler(checks),
		Metrics:      collector,
		Auth:         authMiddleware,
		AdminGroup:   cfg.AdminGroup,
		TxRateLimit:  cfg.TxRateLimit,
	})

	errCh := make(chan error, 1)
	go func() {
		zl.Info("server listening", zap.String("port", cfg.Port), zap.String("env", cfg.Env))
		errCh <- app.Listen(":" + cfg.Port)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		zl.Info("shutting down", zap.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return nil
}

func loadRates(cfg *config.Config) (bridge.RateTable, error) {
	rates := bridge.RateTable{}
	if cfg.BridgeRates != "" {
		parsed, err := bridge.ParseRates(cfg.BridgeRates)
		if err != nil {
			return nil, err
		}
		rates = rates.Merge(parsed)
	}
	if cfg.BridgeRatesFile != "" {
		fromFile, err := bridge.LoadRatesFile(cfg.BridgeRatesFile)
		if err != nil {
			return nil, err
		}
		rates = rates.Merge(fromFile)
	}
	return rates, nil
}
