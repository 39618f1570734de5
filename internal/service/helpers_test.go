package service

import (
	"context"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"

	"github.com/andressep95/nfc-access-service/internal/domain"
	"github.com/andressep95/nfc-access-service/internal/repository/memory"
)

const chromeUA = "Mozilla/5.0 (X11) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/100.0 Safari/537.36"

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []domain.ScanEvent
}

func (n *recordingNotifier) Notify(event domain.ScanEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
}

func (n *recordingNotifier) Events() []domain.ScanEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]domain.ScanEvent(nil), n.events...)
}

type testEnv struct {
	clock      *fakeClock
	entities   *memory.EntityRepository
	tokens     *TokenService
	sessions   *SessionService
	scans      *ScanService
	resolution *ResolutionService
	notifier   *recordingNotifier
}

func newTestEnv() *testEnv {
	clock := newFakeClock()
	logger := zap.NewNop()
	entities := memory.NewEntityRepository()
	tokens := NewTokenService(memory.NewTokenRepository(), clock.Now, logger)
	sessions := NewSessionService(memory.NewSessionRepository(), clock.Now, logger)
	scans := NewScanService(entities, 0, clock.Now, logger)
	notifier := &recordingNotifier{}

	return &testEnv{
		clock:      clock,
		entities:   entities,
		tokens:     tokens,
		sessions:   sessions,
		scans:      scans,
		resolution: NewResolutionService(tokens, entities, scans, sessions, notifier, clock.Now, logger),
		notifier:   notifier,
	}
}

type mockEntityRepository struct{ mock.Mock }

func (m *mockEntityRepository) GetProfile(ctx context.Context, ref domain.EntityRef) (*domain.Profile, error) {
	args := m.Called(ctx, ref)
	if p := args.Get(0); p != nil {
		return p.(*domain.Profile), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockEntityRepository) RecordScan(ctx context.Context, ref domain.EntityRef, entry domain.ScanEntry, historyCap int) (int64, error) {
	args := m.Called(ctx, ref, entry, historyCap)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockEntityRepository) ScanHistory(ctx context.Context, ref domain.EntityRef) ([]domain.ScanEntry, error) {
	args := m.Called(ctx, ref)
	if h := args.Get(0); h != nil {
		return h.([]domain.ScanEntry), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockEntityRepository) Ping(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

type mockSessionRepository struct{ mock.Mock }

func (m *mockSessionRepository) Create(ctx context.Context, session *domain.Session) error {
	return m.Called(ctx, session).Error(0)
}

func (m *mockSessionRepository) GetBySessionID(ctx context.Context, sessionID string) (*domain.Session, error) {
	args := m.Called(ctx, sessionID)
	if s := args.Get(0); s != nil {
		return s.(*domain.Session), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockSessionRepository) AppendAction(ctx context.Context, sessionID string, action domain.SessionAction) (*domain.Session, error) {
	args := m.Called(ctx, sessionID, action)
	if s := args.Get(0); s != nil {
		return s.(*domain.Session), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockSessionRepository) End(ctx context.Context, sessionID string, now time.Time) (*domain.Session, error) {
	args := m.Called(ctx, sessionID, now)
	if s := args.Get(0); s != nil {
		return s.(*domain.Session), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockSessionRepository) EndStale(ctx context.Context, startedBefore, now time.Time) (int64, error) {
	args := m.Called(ctx, startedBefore, now)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockSessionRepository) DeleteOlderThan(ctx context.Context, startedBefore time.Time) (int64, error) {
	args := m.Called(ctx, startedBefore)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockSessionRepository) StatsByEntity(ctx context.Context, ref domain.EntityRef) (*domain.SessionStats, error) {
	args := m.Called(ctx, ref)
	if s := args.Get(0); s != nil {
		return s.(*domain.SessionStats), args.Error(1)
	}
	return nil, args.Error(1)
}

func mustArtist(id string) domain.EntityRef {
	ref, err := domain.ArtistRef(id)
	if err != nil {
		panic(err)
	}
	return ref
}

func mustStudent(id string) domain.EntityRef {
	ref, err := domain.StudentRef(id)
	if err != nil {
		panic(err)
	}
	return ref
}
