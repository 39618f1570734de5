package middleware

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/andressep95/nfc-access-service/internal/response"
)

const TraceIDHeader = "X-Trace-ID"

// TraceID propagates the caller's trace id or assigns a new one
func TraceID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		traceID := c.Get(TraceIDHeader)
		if traceID == "" || len(traceID) > 128 {
			traceID = uuid.New().String()
		}

		c.Locals(response.TraceIDKey, traceID)
		c.Set(TraceIDHeader, traceID)

		return c.Next()
	}
}

func GetTraceID(c *fiber.Ctx) string {
	if id, ok := c.Locals(response.TraceIDKey).(string); ok {
		return id
	}
	return ""
}
