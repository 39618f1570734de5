package middleware

import (
	"fmt"
	"runtime/debug"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/andressep95/nfc-access-service/internal/response"
	applogger "github.com/andressep95/nfc-access-service/pkg/logger"
)

// RecoveryMiddleware recovers from panics and returns 500 error
func RecoveryMiddleware(logger *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) (err error) {
		defer func() {
			if r := recover(); r != nil {
				// Route pattern only: public paths carry access tokens.
				applogger.WithRequestID(logger, GetTraceID(c)).Error("Panic recovered",
					zap.String("panic", fmt.Sprint(r)),
					zap.String("method", c.Method()),
					zap.String("route", c.Route().Path),
					zap.ByteString("stack", debug.Stack()))

				err = response.InternalError(c)
			}
		}()

		return c.Next()
	}
}
