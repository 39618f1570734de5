package middleware

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	applogger "github.com/andressep95/nfc-access-service/pkg/logger"
)

// LoggerMiddleware logs one entry per request. Routes are logged by pattern
// so tokens in the path never reach the logs.
func LoggerMiddleware(logger *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		path := c.Route().Path
		if path == "" {
			path = c.Path()
		}

		applogger.WithRequestID(logger, GetTraceID(c)).Info("Request completed",
			zap.String("method", c.Method()),
			zap.String("route", path),
			zap.Int("status", c.Response().StatusCode()),
			zap.Duration("latency", time.Since(start)),
			zap.String("ip", c.IP()),
		)

		return err
	}
}
