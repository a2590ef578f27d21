package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
)

const version = "1.0.0"

// HealthCheck is a named dependency probe.
type HealthCheck func(ctx context.Context) error

type HealthHandler struct {
	checks map[string]HealthCheck
}

func NewHealthHandler(checks map[string]HealthCheck) *HealthHandler {
	return &HealthHandler{checks: checks}
}

// Health reports "ok" when every dependency answers, "degraded" otherwise.
// It always answers 200.
func (h *HealthHandler) Health(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
	defer cancel()

	status := "ok"
	services := fiber.Map{}
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			services[name] = "unavailable"
			status = "degraded"
			continue
		}
		services[name] = "connected"
	}

	return c.JSON(fiber.Map{
		"status":   status,
		"version":  version,
		"services": services,
	})
}
