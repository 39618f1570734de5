package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/andressep95/nfc-access-service/internal/domain"
	"github.com/andressep95/nfc-access-service/internal/metrics"
	"github.com/andressep95/nfc-access-service/internal/repository"
	"github.com/andressep95/nfc-access-service/pkg/useragent"
)

// ScanNotifier receives scan events. Implementations must not block.
type ScanNotifier interface {
	Notify(event domain.ScanEvent)
}

type ResolveRequest struct {
	Token     string
	IPAddress string
	UserAgent string
	Referrer  string
}

type ResolveResult struct {
	Profile   *domain.Profile
	SessionID string
}

// ResolutionService runs the public tap flow: resolve the token, load the
// profile, count the scan, open a session, notify listeners.
type ResolutionService struct {
	tokens   *TokenService
	entities repository.EntityRepository
	scans    *ScanService
	sessions *SessionService
	notifier ScanNotifier
	clock    Clock
	logger   *zap.Logger
}

func NewResolutionService(
	tokens *TokenService,
	entities repository.EntityRepository,
	scans *ScanService,
	sessions *SessionService,
	notifier ScanNotifier,
	clock Clock,
	logger *zap.Logger,
) *ResolutionService {
	return &ResolutionService{
		tokens:   tokens,
		entities: entities,
		scans:    scans,
		sessions: sessions,
		notifier: notifier,
		clock:    clockOrSystem(clock),
		logger:   logger,
	}
}

// Resolve returns the profile behind a token. Token failures come back as
// the typed domain errors; scan, session and notifier failures are logged
// and never fail the call. Once started it runs to completion even if the
// caller goes away.
func (s *ResolutionService) Resolve(ctx context.Context, req ResolveRequest) (*ResolveResult, error) {
	ctx = context.WithoutCancel(ctx)
	start := time.Now()
	defer func() { metrics.ResolutionDuration.Observe(time.Since(start).Seconds()) }()

	token, err := s.tokens.Resolve(ctx, req.Token, req.IPAddress, req.UserAgent)
	if err != nil {
		outcome := outcomeFor(err)
		metrics.ResolutionsTotal.WithLabelValues(outcome).Inc()
		if outcome == metrics.OutcomeError {
			s.logger.Error("Token resolution failed", zap.Error(err))
		} else {
			s.logger.Debug("Token rejected", zap.String("outcome", outcome), zap.String("ip", req.IPAddress))
		}
		return nil, err
	}

	ref := token.Entity
	profile, err := s.entities.GetProfile(ctx, ref)
	if err != nil {
		if errors.Is(err, domain.ErrEntityNotFound) {
			metrics.ResolutionsTotal.WithLabelValues(metrics.OutcomeEntityMissing).Inc()
			s.logger.Error("Valid token references a missing or inactive entity",
				zap.String("entity", ref.String()),
				zap.String("kind", string(token.Kind)))
			return nil, domain.ErrEntityNotFound
		}
		metrics.ResolutionsTotal.WithLabelValues(metrics.OutcomeError).Inc()
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}

	count, err := s.scans.RecordScan(ctx, ref, req.IPAddress, req.UserAgent)
	if err != nil {
		metrics.SideEffectFailuresTotal.WithLabelValues("scan_counter").Inc()
		s.logger.Warn("Failed to record scan", zap.String("entity", ref.String()), zap.Error(err))
	} else {
		profile.ScanCount = count
		now := s.clock()
		profile.LastScanned = &now
	}

	result := &ResolveResult{Profile: profile}
	session, err := s.sessions.Begin(ctx, BeginSessionInput{
		Entity:    ref,
		IPAddress: req.IPAddress,
		UserAgent: req.UserAgent,
		Referrer:  req.Referrer,
	})
	if err != nil {
		metrics.SideEffectFailuresTotal.WithLabelValues("session").Inc()
		s.logger.Warn("Failed to begin session", zap.String("entity", ref.String()), zap.Error(err))
	} else {
		result.SessionID = session.SessionID
	}

	if s.notifier != nil {
		s.notifier.Notify(domain.ScanEvent{
			EntityType:  ref.Type(),
			EntityID:    ref.ID(),
			DisplayName: profile.DisplayName,
			ScanCount:   profile.ScanCount,
			SessionID:   result.SessionID,
			DeviceType:  useragent.DeviceType(req.UserAgent),
			ScannedAt:   s.clock(),
		})
	}

	metrics.ResolutionsTotal.WithLabelValues(metrics.OutcomeSuccess).Inc()
	return result, nil
}

func outcomeFor(err error) string {
	switch {
	case errors.Is(err, domain.ErrInvalidToken):
		return metrics.OutcomeInvalid
	case errors.Is(err, domain.ErrTokenExpired):
		return metrics.OutcomeExpired
	case errors.Is(err, domain.ErrTokenAlreadyUsed):
		return metrics.OutcomeUsed
	default:
		return metrics.OutcomeError
	}
}
