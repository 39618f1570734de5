package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/andressep95/nfc-access-service/internal/domain"
	"github.com/andressep95/nfc-access-service/internal/repository"
)

const provisionedNote = "provisioned on entity creation"

// ProvisioningService is the explicit post-create step of the entity
// workflow: every entity ends up with a permanent token for its NFC tag.
type ProvisioningService struct {
	tokens   *TokenService
	entities repository.EntityRepository
	logger   *zap.Logger
}

func NewProvisioningService(tokens *TokenService, entities repository.EntityRepository, logger *zap.Logger) *ProvisioningService {
	return &ProvisioningService{
		tokens:   tokens,
		entities: entities,
		logger:   logger,
	}
}

// EnsurePermanentToken returns the newest permanent token of ref, creating
// one when none exists. created reports whether a token was issued.
func (s *ProvisioningService) EnsurePermanentToken(ctx context.Context, ref domain.EntityRef, createdBy string) (token *domain.AccessToken, created bool, err error) {
	if _, err := s.entities.GetProfile(ctx, ref); err != nil {
		return nil, false, err
	}

	existing, err := s.tokens.ListForEntity(ctx, ref)
	if err != nil {
		return nil, false, err
	}
	for _, tok := range existing {
		if tok.Kind == domain.TokenKindPermanent {
			return tok, false, nil
		}
	}

	token, err = s.tokens.CreatePermanent(ctx, ref, provisionedNote, createdBy)
	if err != nil {
		return nil, false, err
	}

	s.logger.Info("Permanent token provisioned", zap.String("entity", ref.String()))
	return token, true, nil
}
