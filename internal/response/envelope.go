package response

import (
	"github.com/gofiber/fiber/v2"
)

// TraceIDKey is the fiber.Locals key the trace middleware stores the id under
const TraceIDKey = "traceId"

type Envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data"`
	Error   *ErrorInfo  `json:"error"`
	Meta    Meta        `json:"meta"`
}

type ErrorInfo struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

type Meta struct {
	TraceID string `json:"traceId,omitempty"`
}

type ErrorCode string

const (
	ErrCodeInvalidPayload ErrorCode = "INVALID_PAYLOAD"
	ErrCodeInvalidToken   ErrorCode = "INVALID_TOKEN"
	ErrCodeUnauthorized   ErrorCode = "UNAUTHORIZED"
	ErrCodeForbidden      ErrorCode = "FORBIDDEN"
	ErrCodeNotFound       ErrorCode = "NOT_FOUND"
	ErrCodeConflict       ErrorCode = "CONFLICT"
	ErrCodeRateLimited    ErrorCode = "RATE_LIMITED"
	ErrCodeUnavailable    ErrorCode = "UNAVAILABLE"
	ErrCodeInternal       ErrorCode = "INTERNAL_ERROR"
)

func OK(c *fiber.Ctx, data interface{}) error {
	return send(c, fiber.StatusOK, data, nil)
}

func Created(c *fiber.Ctx, data interface{}) error {
	return send(c, fiber.StatusCreated, data, nil)
}

func NoContent(c *fiber.Ctx) error {
	return c.SendStatus(fiber.StatusNoContent)
}

func BadRequest(c *fiber.Ctx, message string) error {
	return sendError(c, fiber.StatusBadRequest, ErrCodeInvalidPayload, message)
}

// InvalidToken is the single public answer for every token-level failure
func InvalidToken(c *fiber.Ctx) error {
	return sendError(c, fiber.StatusNotFound, ErrCodeInvalidToken, "invalid or expired token")
}

func Unauthorized(c *fiber.Ctx, message string) error {
	return sendError(c, fiber.StatusUnauthorized, ErrCodeUnauthorized, message)
}

func Forbidden(c *fiber.Ctx, message string) error {
	return sendError(c, fiber.StatusForbidden, ErrCodeForbidden, message)
}

func NotFound(c *fiber.Ctx, message string) error {
	return sendError(c, fiber.StatusNotFound, ErrCodeNotFound, message)
}

func Conflict(c *fiber.Ctx, message string) error {
	return sendError(c, fiber.StatusConflict, ErrCodeConflict, message)
}

func RateLimited(c *fiber.Ctx, message string) error {
	return sendError(c, fiber.StatusTooManyRequests, ErrCodeRateLimited, message)
}

func Unavailable(c *fiber.Ctx, data interface{}) error {
	return send(c, fiber.StatusServiceUnavailable, data, &ErrorInfo{Code: ErrCodeUnavailable, Message: "service unavailable"})
}

// Error renders an arbitrary status, for errors raised by fiber itself
func Error(c *fiber.Ctx, status int, code ErrorCode, message string) error {
	return sendError(c, status, code, message)
}

func InternalError(c *fiber.Ctx) error {
	return sendError(c, fiber.StatusInternalServerError, ErrCodeInternal, "internal server error")
}

func send(c *fiber.Ctx, status int, data interface{}, errInfo *ErrorInfo) error {
	return c.Status(status).JSON(Envelope{
		Success: errInfo == nil,
		Data:    data,
		Error:   errInfo,
		Meta:    Meta{TraceID: getTraceID(c)},
	})
}

func sendError(c *fiber.Ctx, status int, code ErrorCode, message string) error {
	return send(c, status, nil, &ErrorInfo{Code: code, Message: message})
}

func getTraceID(c *fiber.Ctx) string {
	if id, ok := c.Locals(TraceIDKey).(string); ok {
		return id
	}
	return ""
}
