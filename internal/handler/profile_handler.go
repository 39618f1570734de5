package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/andressep95/nfc-access-service/internal/domain"
	"github.com/andressep95/nfc-access-service/internal/response"
	"github.com/andressep95/nfc-access-service/internal/service"
)

type ProfileHandler struct {
	resolution *service.ResolutionService
	logger     *zap.Logger
}

func NewProfileHandler(resolution *service.ResolutionService, logger *zap.Logger) *ProfileHandler {
	return &ProfileHandler{
		resolution: resolution,
		logger:     logger,
	}
}

type ResolveResponse struct {
	Profile   *domain.Profile `json:"profile"`
	SessionID string          `json:"session_id,omitempty"`
}

// Resolve exchanges an NFC token for the public profile. Unknown, expired
// and consumed tokens and missing profiles get the same answer.
// GET /api/v1/p/:token
func (h *ProfileHandler) Resolve(c *fiber.Ctx) error {
	c.Set(fiber.HeaderCacheControl, "no-store")

	res, err := h.resolution.Resolve(c.UserContext(), service.ResolveRequest{
		Token:     c.Params("token"),
		IPAddress: c.IP(),
		UserAgent: c.Get(fiber.HeaderUserAgent),
		Referrer:  c.Get(fiber.HeaderReferer),
	})
	if err != nil {
		// A missing entity behind a valid token answers like a bad token so
		// callers cannot tell the token was accepted.
		switch {
		case domain.IsTokenFailure(err), errors.Is(err, domain.ErrEntityNotFound):
			return response.InvalidToken(c)
		default:
			h.logger.Error("Failed to resolve token", zap.Error(err))
			return response.InternalError(c)
		}
	}

	return response.OK(c, ResolveResponse{
		Profile:   res.Profile,
		SessionID: res.SessionID,
	})
}
