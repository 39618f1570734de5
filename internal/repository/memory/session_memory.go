package memory

import (
	"context"
	"sync"
	"time"

	"github.com/andressep95/nfc-access-service/internal/domain"
	"github.com/andressep95/nfc-access-service/internal/repository"
)

type sessionRepository struct {
	mu       sync.Mutex
	sessions map[string]*domain.Session
}

func NewSessionRepository() repository.SessionRepository {
	return &sessionRepository{sessions: make(map[string]*domain.Session)}
}

func cloneSession(s *domain.Session) *domain.Session {
	cp := *s
	cp.Actions = append([]domain.SessionAction{}, s.Actions...)
	if s.EndTime != nil {
		end := *s.EndTime
		cp.EndTime = &end
	}
	return &cp
}

func (r *sessionRepository) Create(_ context.Context, session *domain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sessions[session.SessionID] = cloneSession(session)
	return nil
}

func (r *sessionRepository) GetBySessionID(_ context.Context, sessionID string) (*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionID]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return cloneSession(s), nil
}

func (r *sessionRepository) AppendAction(_ context.Context, sessionID string, action domain.SessionAction) (*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionID]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	s.RecordAction(action)
	return cloneSession(s), nil
}

func (r *sessionRepository) End(_ context.Context, sessionID string, now time.Time) (*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionID]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	s.End(now)
	return cloneSession(s), nil
}

func (r *sessionRepository) EndStale(_ context.Context, startedBefore, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for _, s := range r.sessions {
		if s.IsActive && s.EndTime == nil && s.StartTime.Before(startedBefore) {
			s.End(now)
			n++
		}
	}
	return n, nil
}

func (r *sessionRepository) DeleteOlderThan(_ context.Context, startedBefore time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for id, s := range r.sessions {
		if s.StartTime.Before(startedBefore) {
			delete(r.sessions, id)
			n++
		}
	}
	return n, nil
}

func (r *sessionRepository) StatsByEntity(_ context.Context, ref domain.EntityRef) (*domain.SessionStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stats := &domain.SessionStats{
		ByDeviceType: map[string]int64{},
		ByAction:     map[domain.ActionType]int64{},
	}
	var ended, durationSum int64
	for _, s := range r.sessions {
		if s.Entity != ref {
			continue
		}
		stats.TotalSessions++
		stats.TotalPageViews += int64(s.PageViews)
		stats.ByDeviceType[s.DeviceType]++
		if s.IsActive {
			stats.ActiveSessions++
		} else {
			ended++
			durationSum += s.Duration
		}
		for _, a := range s.Actions {
			stats.ByAction[a.Type]++
		}
	}
	if ended > 0 {
		stats.AverageDuration = float64(durationSum) / float64(ended)
	}
	return stats, nil
}
