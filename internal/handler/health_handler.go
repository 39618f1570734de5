package handler

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/andressep95/nfc-access-service/internal/response"
)

const readinessTimeout = 2 * time.Second

// Check reports whether one dependency is reachable
type Check func(ctx context.Context) error

type HealthHandler struct {
	checks map[string]Check
}

func NewHealthHandler(checks map[string]Check) *HealthHandler {
	return &HealthHandler{checks: checks}
}

// Health returns basic health status
// GET /health
func (h *HealthHandler) Health(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status":  "ok",
		"service": "nfc-access-service",
	})
}

// Ready pings every dependency
// GET /ready
func (h *HealthHandler) Ready(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), readinessTimeout)
	defer cancel()

	results := fiber.Map{}
	ready := true
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			results[name] = err.Error()
			ready = false
			continue
		}
		results[name] = "ok"
	}

	if !ready {
		return response.Unavailable(c, fiber.Map{"status": "not_ready", "checks": results})
	}
	return response.OK(c, fiber.Map{"status": "ready", "checks": results})
}
