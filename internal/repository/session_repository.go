package repository

import (
	"context"
	"time"

	"github.com/andressep95/nfc-access-service/internal/domain"
)

type SessionRepository interface {
	Create(ctx context.Context, session *domain.Session) error
	GetBySessionID(ctx context.Context, sessionID string) (*domain.Session, error)
	AppendAction(ctx context.Context, sessionID string, action domain.SessionAction) (*domain.Session, error)
	// End is a no-op returning the stored session when it is already inactive
	End(ctx context.Context, sessionID string, now time.Time) (*domain.Session, error)
	EndStale(ctx context.Context, startedBefore, now time.Time) (int64, error)
	DeleteOlderThan(ctx context.Context, startedBefore time.Time) (int64, error)
	StatsByEntity(ctx context.Context, ref domain.EntityRef) (*domain.SessionStats, error)
}
