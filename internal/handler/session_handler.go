package handler

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/andressep95/nfc-access-service/internal/domain"
	"github.com/andressep95/nfc-access-service/internal/response"
	"github.com/andressep95/nfc-access-service/internal/service"
	"github.com/andressep95/nfc-access-service/pkg/validator"
)

type SessionHandler struct {
	sessions  *service.SessionService
	validator *validator.Validator
	logger    *zap.Logger
}

func NewSessionHandler(sessions *service.SessionService, validator *validator.Validator, logger *zap.Logger) *SessionHandler {
	return &SessionHandler{
		sessions:  sessions,
		validator: validator,
		logger:    logger,
	}
}

type RecordActionRequest struct {
	Type    string `json:"type" validate:"required,action_type"`
	Details string `json:"details" validate:"max=500"`
}

// SessionResponse is what anonymous clients see of their session
type SessionResponse struct {
	SessionID string     `json:"session_id"`
	IsActive  bool       `json:"is_active"`
	PageViews int        `json:"page_views"`
	Duration  int64      `json:"duration"`
	StartTime time.Time  `json:"start_time"`
	EndTime   *time.Time `json:"end_time,omitempty"`
}

func toSessionResponse(s *domain.Session) SessionResponse {
	return SessionResponse{
		SessionID: s.SessionID,
		IsActive:  s.IsActive,
		PageViews: s.PageViews,
		Duration:  s.Duration,
		StartTime: s.StartTime,
		EndTime:   s.EndTime,
	}
}

// RecordAction appends a client-reported action to the session
// POST /api/v1/sessions/:sessionId/actions
func (h *SessionHandler) RecordAction(c *fiber.Ctx) error {
	var req RecordActionRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "invalid request body")
	}

	if err := h.validator.Validate(req); err != nil {
		return response.BadRequest(c, err.Error())
	}

	session, err := h.sessions.RecordAction(c.UserContext(), c.Params("sessionId"), domain.ActionType(req.Type), req.Details)
	if err != nil {
		return h.sessionError(c, err)
	}

	return response.OK(c, toSessionResponse(session))
}

// End closes the session; repeated calls return the same result
// POST /api/v1/sessions/:sessionId/end
func (h *SessionHandler) End(c *fiber.Ctx) error {
	session, err := h.sessions.End(c.UserContext(), c.Params("sessionId"))
	if err != nil {
		return h.sessionError(c, err)
	}

	return response.OK(c, toSessionResponse(session))
}

func (h *SessionHandler) sessionError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, domain.ErrSessionNotFound):
		return response.NotFound(c, "session not found")
	case errors.Is(err, domain.ErrInvalidInput):
		return response.BadRequest(c, err.Error())
	default:
		h.logger.Error("Session operation failed", zap.Error(err))
		return response.InternalError(c)
	}
}
