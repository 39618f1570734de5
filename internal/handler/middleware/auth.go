package middleware

import (
	"errors"
	"strings"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/andressep95/nfc-access-service/internal/response"
	"github.com/andressep95/nfc-access-service/pkg/jwt"
)

const AdminSubjectKey = "admin_subject"

// AdminAuth validates the bearer token and requires role. A nil verifier
// rejects every request.
func AdminAuth(verifier *jwt.Verifier, role string, logger *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if verifier == nil {
			return response.Forbidden(c, "admin access is not configured")
		}

		token, ok := bearerToken(c)
		if !ok {
			return response.Unauthorized(c, "missing or malformed bearer token")
		}

		claims, err := verifier.RequireRole(token, role)
		if err != nil {
			if errors.Is(err, jwt.ErrMissingRole) {
				return response.Forbidden(c, "insufficient permissions")
			}
			logger.Debug("Admin token rejected", zap.Error(err))
			return response.Unauthorized(c, "invalid token")
		}

		c.Locals(AdminSubjectKey, claims.Subject)
		return c.Next()
	}
}

// bearerToken reads the Authorization header. Browsers cannot set headers on
// a websocket handshake, so upgrades may pass access_token instead.
func bearerToken(c *fiber.Ctx) (string, bool) {
	authHeader := c.Get(fiber.HeaderAuthorization)
	if authHeader == "" {
		if websocket.IsWebSocketUpgrade(c) {
			token := c.Query("access_token")
			return token, token != ""
		}
		return "", false
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// AdminSubject returns the subject of the authenticated admin, if any
func AdminSubject(c *fiber.Ctx) string {
	if s, ok := c.Locals(AdminSubjectKey).(string); ok {
		return s
	}
	return ""
}
