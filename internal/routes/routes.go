// Package routes defines the API routing configuration.
package routes

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"fintrust/internal/handlers"
	"fintrust/internal/metrics"
	"fintrust/internal/middleware"
)

// Deps are the handlers and middleware the router wires together.
type Deps struct {
	Transactions *handlers.TransactionHandler
	Fraud        *handlers.FraudHandler
	Bridge       *handlers.BridgeHandler
	Compliance   *handlers.ComplianceHandler
	Health       *handlers.HealthHandler
	Metrics      *metrics.Collector

	// Auth is nil when authentication is disabled.
	Auth *middleware.AuthMiddleware
	// AdminGroup guards ledger initialisation when Auth is set.
	AdminGroup string
	// TxRateLimit is the number of POST /transactions per minute per client.
	TxRateLimit int
}

// SetupRoutes configures all application routes.
func SetupRoutes(app *fiber.App, d Deps) {
	app.Get("/", d.Health.Health)
	if d.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(d.Metrics.Handler()))
	}

	api := app.Group("/api/v1")
	if d.Auth != nil {
		api.Use(d.Auth.Handler)
	}
	admin := func(c *fiber.Ctx) error { return c.Next() }
	if d.Auth != nil && d.AdminGroup != "" {
		admin = middleware.RequireGroup(d.AdminGroup)
	}

	tx := api.Group("/transactions")
	tx.Post("/", txLimiter(d.TxRateLimit), d.Transactions.CreateTransaction)
	tx.Get("/", d.Transactions.ListTransactions)
	tx.Post("/init-ledger", admin, d.Transactions.InitLedger)
	tx.Get("/balance/:account", d.Transactions.GetBalance)
	tx.Get("/history/:account", d.Transactions.GetHistory)
	tx.Get("/account/:account", d.Transactions.GetAccount)
	tx.Get("/:tx_id", d.Transactions.GetTransaction)
	tx.Post("/:tx_id/reconcile", d.Transactions.ReconcileTransaction)

	fraud := api.Group("/fraud-alerts")
	fraud.Post("/check", d.Fraud.CheckFraud)
	fraud.Get("/:tx_id", d.Fraud.GetFraudAlert)

	api.Post("/mbridge", d.Bridge.Settle)

	compliance := api.Group("/compliance")
	compliance.Get("/report/:tx_id", d.Compliance.GetReport)
	compliance.Get("/reports", d.Compliance.ListReports)
	compliance.Get("/reports/:tx_id", d.Compliance.DownloadReport)
	compliance.Get("/aml-status/:account", d.Compliance.GetAMLStatus)
}

func txLimiter(max int) fiber.Handler {
	if max <= 0 {
		return func(c *fiber.Ctx) error { return c.Next() }
	}
	return limiter.New(limiter.Config{
		Max:        max,
		Expiration: time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Too many requests. Please try again later.",
			})
		},
	})
}
