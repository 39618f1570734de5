package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Handlers struct {
	Profile  *ProfileHandler
	Session  *SessionHandler
	Admin    *AdminHandler
	Realtime *RealtimeHandler
	Health   *HealthHandler
}

func SetupRoutes(
	app *fiber.App,
	h Handlers,
	rateLimit fiber.Handler,
	adminAuth fiber.Handler,
) {
	// Health checks and metrics (public)
	app.Get("/health", h.Health.Health)
	app.Get("/ready", h.Health.Ready)
	app.Get("/metrics", adaptHTTP(promhttp.Handler()))

	// Realtime dashboard
	app.Get("/ws/scans", h.Realtime.RequireUpgrade, adminAuth, h.Realtime.Stream())

	// API v1
	api := app.Group("/api/v1")

	// Public tap flow (rate limited)
	api.Get("/p/:token", rateLimit, h.Profile.Resolve)

	sessions := api.Group("/sessions", rateLimit)
	sessions.Post("/:sessionId/actions", h.Session.RecordAction)
	sessions.Post("/:sessionId/end", h.Session.End)

	// Admin routes
	admin := api.Group("/admin", adminAuth)
	admin.Post("/tokens", h.Admin.CreateToken)
	admin.Delete("/tokens/:token", h.Admin.RevokeToken)
	admin.Get("/entities/:type/:id/tokens", h.Admin.ListTokens)
	admin.Post("/entities/:type/:id/provision", h.Admin.Provision)
	admin.Get("/entities/:type/:id/analytics", h.Admin.Analytics)
}
