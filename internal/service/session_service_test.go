package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andressep95/nfc-access-service/internal/domain"
)

func TestSessionService_BeginClassifiesClient(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	s, err := env.sessions.Begin(ctx, BeginSessionInput{
		Entity:    mustArtist("AT-01"),
		IPAddress: "10.0.0.1",
		UserAgent: chromeUA,
		Referrer:  "https://example.org",
	})
	require.NoError(t, err)

	assert.Regexp(t, `^sess_[0-9a-f]{32}$`, s.SessionID)
	assert.Equal(t, "desktop", s.DeviceType)
	assert.Equal(t, "Chrome", s.Browser)
	assert.Equal(t, "Unknown", s.OS)
	assert.True(t, s.IsActive)
	assert.Equal(t, 1, s.PageViews)
	assert.Nil(t, s.EndTime)
	assert.Empty(t, s.Actions)
}

func TestSessionService_RecordAction(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	s, err := env.sessions.Begin(ctx, BeginSessionInput{Entity: mustArtist("AT-01")})
	require.NoError(t, err)

	env.clock.Advance(5 * time.Second)
	got, err := env.sessions.RecordAction(ctx, s.SessionID, domain.ActionCall, "+56 9 1234")
	require.NoError(t, err)
	assert.Equal(t, 2, got.PageViews)
	require.Len(t, got.Actions, 1)
	assert.Equal(t, domain.ActionCall, got.Actions[0].Type)
	assert.Equal(t, env.clock.Now(), got.Actions[0].Timestamp)

	_, err = env.sessions.RecordAction(ctx, s.SessionID, "dance", "")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = env.sessions.RecordAction(ctx, "sess_missing", domain.ActionView, "")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestSessionService_EndIsIdempotent(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	s, err := env.sessions.Begin(ctx, BeginSessionInput{Entity: mustStudent("SL1-01")})
	require.NoError(t, err)

	env.clock.Advance(42*time.Second + 900*time.Millisecond)
	first, err := env.sessions.End(ctx, s.SessionID)
	require.NoError(t, err)
	assert.False(t, first.IsActive)
	assert.Equal(t, int64(42), first.Duration)
	require.NotNil(t, first.EndTime)

	env.clock.Advance(time.Hour)
	second, err := env.sessions.End(ctx, s.SessionID)
	require.NoError(t, err)
	assert.Equal(t, *first.EndTime, *second.EndTime)
	assert.Equal(t, first.Duration, second.Duration)

	_, err = env.sessions.End(ctx, "sess_missing")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestSessionService_LateActionKeepsSessionEnded(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	s, err := env.sessions.Begin(ctx, BeginSessionInput{Entity: mustStudent("SL1-01")})
	require.NoError(t, err)
	_, err = env.sessions.End(ctx, s.SessionID)
	require.NoError(t, err)

	got, err := env.sessions.RecordAction(ctx, s.SessionID, domain.ActionShare, "")
	require.NoError(t, err)
	assert.False(t, got.IsActive)
	assert.Len(t, got.Actions, 1)
}

func TestSessionService_CleanupStaleAndPurge(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	ref := mustStudent("SL1-01")

	old, err := env.sessions.Begin(ctx, BeginSessionInput{Entity: ref})
	require.NoError(t, err)
	env.clock.Advance(40 * time.Minute)
	fresh, err := env.sessions.Begin(ctx, BeginSessionInput{Entity: ref})
	require.NoError(t, err)

	n, err := env.sessions.CleanupStale(ctx, 30*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := env.sessions.Get(ctx, old.SessionID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)
	assert.Equal(t, int64(40*60), got.Duration)

	got, err = env.sessions.Get(ctx, fresh.SessionID)
	require.NoError(t, err)
	assert.True(t, got.IsActive)

	n, err = env.sessions.PurgeOlderThan(ctx, 30*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = env.sessions.Get(ctx, old.SessionID)
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestSessionService_StatsForEntity(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	ref := mustArtist("AT-09")

	a, err := env.sessions.Begin(ctx, BeginSessionInput{Entity: ref, UserAgent: chromeUA})
	require.NoError(t, err)
	_, err = env.sessions.Begin(ctx, BeginSessionInput{Entity: ref, UserAgent: "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0) Mobile/15E148"})
	require.NoError(t, err)
	_, err = env.sessions.Begin(ctx, BeginSessionInput{Entity: mustArtist("AT-10")})
	require.NoError(t, err)

	_, err = env.sessions.RecordAction(ctx, a.SessionID, domain.ActionDownload, "")
	require.NoError(t, err)
	env.clock.Advance(10 * time.Second)
	_, err = env.sessions.End(ctx, a.SessionID)
	require.NoError(t, err)

	stats, err := env.sessions.StatsForEntity(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.TotalSessions)
	assert.Equal(t, int64(1), stats.ActiveSessions)
	assert.Equal(t, float64(10), stats.AverageDuration)
	assert.Equal(t, int64(3), stats.TotalPageViews)
	assert.Equal(t, int64(1), stats.ByDeviceType["desktop"])
	assert.Equal(t, int64(1), stats.ByDeviceType["mobile"])
	assert.Equal(t, int64(1), stats.ByAction[domain.ActionDownload])
}
