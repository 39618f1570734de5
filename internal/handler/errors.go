package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/andressep95/nfc-access-service/internal/response"
)

// ErrorHandler renders errors that escape the handlers in the response
// envelope
func ErrorHandler(logger *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var fe *fiber.Error
		if errors.As(err, &fe) {
			switch fe.Code {
			case fiber.StatusNotFound:
				return response.NotFound(c, "route not found")
			case fiber.StatusMethodNotAllowed:
				return response.Error(c, fe.Code, response.ErrCodeNotFound, fe.Message)
			}
			if fe.Code < fiber.StatusInternalServerError {
				return response.Error(c, fe.Code, response.ErrCodeInvalidPayload, fe.Message)
			}
		}

		logger.Error("Unhandled request error",
			zap.String("method", c.Method()),
			zap.String("route", c.Route().Path),
			zap.Error(err))
		return response.InternalError(c)
	}
}
