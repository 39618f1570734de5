package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/andressep95/nfc-access-service/internal/domain"
	"github.com/andressep95/nfc-access-service/internal/metrics"
	"github.com/andressep95/nfc-access-service/internal/repository"
)

const (
	tokenBytes          = 32
	maxTokenLength      = 256
	maxCreationAttempts = 3
)

// TokenService issues, resolves and revokes access tokens
type TokenService struct {
	tokenRepo repository.TokenRepository
	clock     Clock
	logger    *zap.Logger
	generate  func() (string, error)
}

func NewTokenService(tokenRepo repository.TokenRepository, clock Clock, logger *zap.Logger) *TokenService {
	return &TokenService{
		tokenRepo: tokenRepo,
		clock:     clockOrSystem(clock),
		logger:    logger,
		generate:  generateToken,
	}
}

// IssueTokenInput covers all three kinds. HoursValid is read only for
// temporary tokens.
type IssueTokenInput struct {
	Entity     domain.EntityRef
	Kind       domain.TokenKind
	HoursValid int
	Notes      string
	CreatedBy  string
}

// Issue dispatches to the factory of the requested kind
func (s *TokenService) Issue(ctx context.Context, in IssueTokenInput) (*domain.AccessToken, error) {
	switch in.Kind {
	case domain.TokenKindPermanent:
		return s.CreatePermanent(ctx, in.Entity, in.Notes, in.CreatedBy)
	case domain.TokenKindTemporary:
		return s.create(ctx, in.Entity, domain.TokenKindTemporary, in.HoursValid, in.Notes, in.CreatedBy)
	case domain.TokenKindOneTime:
		return s.create(ctx, in.Entity, domain.TokenKindOneTime, 0, in.Notes, in.CreatedBy)
	default:
		return nil, fmt.Errorf("%w: unknown token kind %q", domain.ErrInvalidInput, in.Kind)
	}
}

// CreatePermanent issues a token with no expiry and no use limit
func (s *TokenService) CreatePermanent(ctx context.Context, ref domain.EntityRef, notes, createdBy string) (*domain.AccessToken, error) {
	return s.create(ctx, ref, domain.TokenKindPermanent, 0, notes, createdBy)
}

// CreateTemporary issues a token that expires hoursValid hours from now.
// Zero hours yields a token that is already expired.
func (s *TokenService) CreateTemporary(ctx context.Context, ref domain.EntityRef, hoursValid int, createdBy string) (*domain.AccessToken, error) {
	return s.create(ctx, ref, domain.TokenKindTemporary, hoursValid, "", createdBy)
}

// CreateOneTime issues a token valid for exactly one successful resolution
func (s *TokenService) CreateOneTime(ctx context.Context, ref domain.EntityRef, createdBy string) (*domain.AccessToken, error) {
	return s.create(ctx, ref, domain.TokenKindOneTime, 0, "", createdBy)
}

func (s *TokenService) create(ctx context.Context, ref domain.EntityRef, kind domain.TokenKind, hoursValid int, notes, createdBy string) (*domain.AccessToken, error) {
	if ref.IsZero() {
		return nil, fmt.Errorf("%w: entity reference is required", domain.ErrInvalidInput)
	}
	if hoursValid < 0 {
		return nil, fmt.Errorf("%w: hours_valid must not be negative", domain.ErrInvalidInput)
	}

	now := s.clock()
	token := &domain.AccessToken{
		ID:        uuid.New(),
		Entity:    ref,
		Kind:      kind,
		CreatedBy: createdBy,
		Notes:     notes,
		CreatedAt: now,
	}
	if kind == domain.TokenKindTemporary {
		expiresAt := now.Add(time.Duration(hoursValid) * time.Hour)
		token.ExpiresAt = &expiresAt
	}

	for attempt := 1; attempt <= maxCreationAttempts; attempt++ {
		value, err := s.generate()
		if err != nil {
			return nil, fmt.Errorf("failed to generate token: %w", err)
		}
		token.Token = value

		err = s.tokenRepo.Create(ctx, token)
		if err == nil {
			metrics.TokensCreatedTotal.WithLabelValues(string(kind)).Inc()
			s.logger.Info("Access token issued",
				zap.String("entity", ref.String()),
				zap.String("kind", string(kind)),
				zap.String("created_by", createdBy))
			return token, nil
		}
		if !errors.Is(err, domain.ErrTokenCollision) {
			return nil, err
		}
		s.logger.Warn("Token collision, regenerating", zap.Int("attempt", attempt))
	}

	return nil, domain.ErrTokenCollision
}

// Resolve validates the token and records the access in one conditional
// write. Failures are ErrInvalidToken, ErrTokenExpired or ErrTokenAlreadyUsed.
func (s *TokenService) Resolve(ctx context.Context, token, ipAddress, userAgent string) (*domain.AccessToken, error) {
	if token == "" || len(token) > maxTokenLength {
		return nil, domain.ErrInvalidToken
	}
	return s.tokenRepo.Consume(ctx, token, s.clock(), ipAddress, userAgent)
}

// Revoke hard-deletes a token
func (s *TokenService) Revoke(ctx context.Context, token string) error {
	if err := s.tokenRepo.Delete(ctx, token); err != nil {
		return err
	}
	s.logger.Info("Access token revoked")
	return nil
}

// ListForEntity returns an entity's tokens, newest first
func (s *TokenService) ListForEntity(ctx context.Context, ref domain.EntityRef) ([]*domain.AccessToken, error) {
	if ref.IsZero() {
		return nil, fmt.Errorf("%w: entity reference is required", domain.ErrInvalidInput)
	}
	return s.tokenRepo.ListByEntity(ctx, ref)
}

// PurgeExpired deletes temporary tokens whose expiry has passed
func (s *TokenService) PurgeExpired(ctx context.Context) (int64, error) {
	return s.tokenRepo.DeleteExpired(ctx, s.clock())
}

func generateToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
