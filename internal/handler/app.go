package handler

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type AppConfig struct {
	Name         string
	Quiet        bool
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	ProxyHeader  string
}

// NewApp builds the Fiber app. Request values are immutable because the
// memory repositories keep user agents and referrers after the request ends.
func NewApp(cfg AppConfig, logger *zap.Logger) *fiber.App {
	return fiber.New(fiber.Config{
		AppName:               cfg.Name,
		DisableStartupMessage: cfg.Quiet,
		ErrorHandler:          ErrorHandler(logger),
		ReadTimeout:           cfg.ReadTimeout,
		WriteTimeout:          cfg.WriteTimeout,
		ProxyHeader:           cfg.ProxyHeader,
		Immutable:             true,
	})
}
