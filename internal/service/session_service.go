package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/andressep95/nfc-access-service/internal/domain"
	"github.com/andressep95/nfc-access-service/internal/repository"
	"github.com/andressep95/nfc-access-service/pkg/useragent"
)

// SessionService records what happens after a token is resolved
type SessionService struct {
	sessionRepo repository.SessionRepository
	clock       Clock
	logger      *zap.Logger
}

func NewSessionService(sessionRepo repository.SessionRepository, clock Clock, logger *zap.Logger) *SessionService {
	return &SessionService{
		sessionRepo: sessionRepo,
		clock:       clockOrSystem(clock),
		logger:      logger,
	}
}

type BeginSessionInput struct {
	Entity    domain.EntityRef
	IPAddress string
	UserAgent string
	Referrer  string
}

// Begin opens a session. Device, browser and OS are derived here once and
// never recomputed.
func (s *SessionService) Begin(ctx context.Context, in BeginSessionInput) (*domain.Session, error) {
	if in.Entity.IsZero() {
		return nil, fmt.Errorf("%w: entity reference is required", domain.ErrInvalidInput)
	}

	info := useragent.Parse(in.UserAgent)
	session := &domain.Session{
		ID:         uuid.New(),
		SessionID:  domain.NewSessionID(),
		Entity:     in.Entity,
		IPAddress:  in.IPAddress,
		UserAgent:  in.UserAgent,
		Referrer:   in.Referrer,
		DeviceType: info.DeviceType,
		Browser:    info.Browser,
		OS:         info.OS,
		StartTime:  s.clock(),
		IsActive:   true,
		PageViews:  1,
		Actions:    []domain.SessionAction{},
	}

	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, err
	}

	return session, nil
}

// RecordAction appends an action. Ended sessions still accept late actions
// but stay ended.
func (s *SessionService) RecordAction(ctx context.Context, sessionID string, actionType domain.ActionType, details string) (*domain.Session, error) {
	if !actionType.Valid() {
		return nil, fmt.Errorf("%w: unknown action type %q", domain.ErrInvalidInput, actionType)
	}

	return s.sessionRepo.AppendAction(ctx, sessionID, domain.SessionAction{
		Type:      actionType,
		Timestamp: s.clock(),
		Details:   details,
	})
}

// End closes the session; ending an ended session changes nothing
func (s *SessionService) End(ctx context.Context, sessionID string) (*domain.Session, error) {
	return s.sessionRepo.End(ctx, sessionID, s.clock())
}

func (s *SessionService) Get(ctx context.Context, sessionID string) (*domain.Session, error) {
	return s.sessionRepo.GetBySessionID(ctx, sessionID)
}

// CleanupStale ends active sessions started more than threshold ago
func (s *SessionService) CleanupStale(ctx context.Context, threshold time.Duration) (int64, error) {
	now := s.clock()
	return s.sessionRepo.EndStale(ctx, now.Add(-threshold), now)
}

// PurgeOlderThan deletes sessions started more than maxAge ago
func (s *SessionService) PurgeOlderThan(ctx context.Context, maxAge time.Duration) (int64, error) {
	return s.sessionRepo.DeleteOlderThan(ctx, s.clock().Add(-maxAge))
}

func (s *SessionService) StatsForEntity(ctx context.Context, ref domain.EntityRef) (*domain.SessionStats, error) {
	if ref.IsZero() {
		return nil, fmt.Errorf("%w: entity reference is required", domain.ErrInvalidInput)
	}
	return s.sessionRepo.StatsByEntity(ctx, ref)
}
