package handler

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/andressep95/nfc-access-service/internal/domain"
	"github.com/andressep95/nfc-access-service/internal/handler/middleware"
	"github.com/andressep95/nfc-access-service/internal/response"
	"github.com/andressep95/nfc-access-service/internal/service"
	"github.com/andressep95/nfc-access-service/pkg/validator"
)

// AdminHandler serves token administration for the back office
type AdminHandler struct {
	tokens       *service.TokenService
	provisioning *service.ProvisioningService
	sessions     *service.SessionService
	scans        *service.ScanService
	validator    *validator.Validator
	logger       *zap.Logger
}

func NewAdminHandler(
	tokens *service.TokenService,
	provisioning *service.ProvisioningService,
	sessions *service.SessionService,
	scans *service.ScanService,
	validator *validator.Validator,
	logger *zap.Logger,
) *AdminHandler {
	return &AdminHandler{
		tokens:       tokens,
		provisioning: provisioning,
		sessions:     sessions,
		scans:        scans,
		validator:    validator,
		logger:       logger,
	}
}

type CreateTokenRequest struct {
	EntityType string `json:"entity_type" validate:"required,entity_type"`
	EntityID   string `json:"entity_id" validate:"required,entity_id"`
	Kind       string `json:"kind" validate:"required,token_kind"`
	HoursValid int    `json:"hours_valid" validate:"gte=0,lte=8760"`
	Notes      string `json:"notes" validate:"max=500"`
}

// TokenResponse is the admin view of an access token
type TokenResponse struct {
	Token          string            `json:"token"`
	EntityType     domain.EntityType `json:"entity_type"`
	EntityID       string            `json:"entity_id"`
	Kind           domain.TokenKind  `json:"kind"`
	IsUsed         bool              `json:"is_used"`
	UsedAt         *time.Time        `json:"used_at,omitempty"`
	ExpiresAt      *time.Time        `json:"expires_at,omitempty"`
	AccessCount    int64             `json:"access_count"`
	LastAccessedAt *time.Time        `json:"last_accessed_at,omitempty"`
	CreatedBy      string            `json:"created_by,omitempty"`
	Notes          string            `json:"notes,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
}

func toTokenResponse(t *domain.AccessToken) TokenResponse {
	return TokenResponse{
		Token:          t.Token,
		EntityType:     t.Entity.Type(),
		EntityID:       t.Entity.ID(),
		Kind:           t.Kind,
		IsUsed:         t.IsUsed,
		UsedAt:         t.UsedAt,
		ExpiresAt:      t.ExpiresAt,
		AccessCount:    t.AccessCount,
		LastAccessedAt: t.LastAccessedAt,
		CreatedBy:      t.CreatedBy,
		Notes:          t.Notes,
		CreatedAt:      t.CreatedAt,
	}
}

type AnalyticsResponse struct {
	EntityType  domain.EntityType    `json:"entity_type"`
	EntityID    string               `json:"entity_id"`
	Sessions    *domain.SessionStats `json:"sessions"`
	ScanHistory []domain.ScanEntry   `json:"scan_history"`
}

// CreateToken issues a token of any kind
// POST /api/v1/admin/tokens
func (h *AdminHandler) CreateToken(c *fiber.Ctx) error {
	var req CreateTokenRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "invalid request body")
	}

	if err := h.validator.Validate(req); err != nil {
		return response.BadRequest(c, err.Error())
	}

	ref, err := domain.ParseEntityRef(req.EntityType, req.EntityID)
	if err != nil {
		return response.BadRequest(c, err.Error())
	}

	token, err := h.tokens.Issue(c.UserContext(), service.IssueTokenInput{
		Entity:     ref,
		Kind:       domain.TokenKind(req.Kind),
		HoursValid: req.HoursValid,
		Notes:      req.Notes,
		CreatedBy:  middleware.AdminSubject(c),
	})
	if err != nil {
		return h.adminError(c, err)
	}

	return response.Created(c, toTokenResponse(token))
}

// ListTokens lists an entity's tokens, newest first
// GET /api/v1/admin/entities/:type/:id/tokens
func (h *AdminHandler) ListTokens(c *fiber.Ctx) error {
	ref, err := domain.ParseEntityRef(c.Params("type"), c.Params("id"))
	if err != nil {
		return response.BadRequest(c, err.Error())
	}

	tokens, err := h.tokens.ListForEntity(c.UserContext(), ref)
	if err != nil {
		return h.adminError(c, err)
	}

	out := make([]TokenResponse, len(tokens))
	for i, t := range tokens {
		out[i] = toTokenResponse(t)
	}

	return response.OK(c, fiber.Map{
		"tokens": out,
		"count":  len(out),
	})
}

// RevokeToken hard-deletes a token
// DELETE /api/v1/admin/tokens/:token
func (h *AdminHandler) RevokeToken(c *fiber.Ctx) error {
	if err := h.tokens.Revoke(c.UserContext(), c.Params("token")); err != nil {
		if errors.Is(err, domain.ErrInvalidToken) {
			return response.NotFound(c, "token not found")
		}
		return h.adminError(c, err)
	}

	return response.NoContent(c)
}

// Provision makes sure the entity has a permanent token
// POST /api/v1/admin/entities/:type/:id/provision
func (h *AdminHandler) Provision(c *fiber.Ctx) error {
	ref, err := domain.ParseEntityRef(c.Params("type"), c.Params("id"))
	if err != nil {
		return response.BadRequest(c, err.Error())
	}

	token, created, err := h.provisioning.EnsurePermanentToken(c.UserContext(), ref, middleware.AdminSubject(c))
	if err != nil {
		return h.adminError(c, err)
	}

	if created {
		return response.Created(c, toTokenResponse(token))
	}
	return response.OK(c, toTokenResponse(token))
}

// Analytics returns session statistics and the recent scan history
// GET /api/v1/admin/entities/:type/:id/analytics
func (h *AdminHandler) Analytics(c *fiber.Ctx) error {
	ref, err := domain.ParseEntityRef(c.Params("type"), c.Params("id"))
	if err != nil {
		return response.BadRequest(c, err.Error())
	}

	stats, err := h.sessions.StatsForEntity(c.UserContext(), ref)
	if err != nil {
		return h.adminError(c, err)
	}

	history, err := h.scans.History(c.UserContext(), ref)
	if err != nil {
		return h.adminError(c, err)
	}
	if history == nil {
		history = []domain.ScanEntry{}
	}

	return response.OK(c, AnalyticsResponse{
		EntityType:  ref.Type(),
		EntityID:    ref.ID(),
		Sessions:    stats,
		ScanHistory: history,
	})
}

func (h *AdminHandler) adminError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return response.BadRequest(c, err.Error())
	case errors.Is(err, domain.ErrEntityNotFound):
		return response.NotFound(c, "entity not found")
	case errors.Is(err, domain.ErrTokenCollision):
		return response.Conflict(c, "could not allocate a unique token, retry")
	default:
		h.logger.Error("Admin operation failed", zap.Error(err))
		return response.InternalError(c)
	}
}
