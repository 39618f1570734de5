package repository

import (
	"context"
	"time"

	"github.com/andressep95/nfc-access-service/internal/domain"
)

type TokenRepository interface {
	// Create fails with domain.ErrTokenCollision when the token string already exists
	Create(ctx context.Context, token *domain.AccessToken) error
	GetByToken(ctx context.Context, token string) (*domain.AccessToken, error)
	ListByEntity(ctx context.Context, ref domain.EntityRef) ([]*domain.AccessToken, error)
	// Consume validates and records one access as a single conditional write.
	// On failure it returns domain.ErrInvalidToken, ErrTokenExpired or ErrTokenAlreadyUsed.
	Consume(ctx context.Context, token string, now time.Time, ipAddress, userAgent string) (*domain.AccessToken, error)
	Delete(ctx context.Context, token string) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
