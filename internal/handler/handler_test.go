package handler_test

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	gojwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/andressep95/nfc-access-service/internal/domain"
	"github.com/andressep95/nfc-access-service/internal/handler"
	"github.com/andressep95/nfc-access-service/internal/handler/middleware"
	"github.com/andressep95/nfc-access-service/internal/notifier"
	"github.com/andressep95/nfc-access-service/internal/repository/memory"
	"github.com/andressep95/nfc-access-service/internal/service"
	"github.com/andressep95/nfc-access-service/pkg/jwt"
	"github.com/andressep95/nfc-access-service/pkg/ratelimit"
	"github.com/andressep95/nfc-access-service/pkg/validator"
)

const browserUA = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1"

type stubLimiter struct {
	result ratelimit.Result
	err    error
}

func (l *stubLimiter) Allow(context.Context, string) (ratelimit.Result, error) {
	return l.result, l.err
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	Meta struct {
		TraceID string `json:"traceId"`
	} `json:"meta"`
}

type harness struct {
	app      *fiber.App
	entities *memory.EntityRepository
	tokens   *service.TokenService
	sessions *service.SessionService
	scans    *service.ScanService
	hub      *notifier.Hub
	key      *rsa.PrivateKey
	limiter  *stubLimiter
	checks   map[string]handler.Check
}

type harnessOption func(*harnessConfig)

type harnessConfig struct {
	noVerifier bool
}

func withoutVerifier() harnessOption {
	return func(c *harnessConfig) { c.noVerifier = true }
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()

	var cfg harnessConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	logger := zap.NewNop()
	entities := memory.NewEntityRepository()
	tokens := service.NewTokenService(memory.NewTokenRepository(), nil, logger)
	sessions := service.NewSessionService(memory.NewSessionRepository(), nil, logger)
	scans := service.NewScanService(entities, 5, nil, logger)
	hub := notifier.NewHub()
	dispatcher := notifier.NewDispatcher(16, logger, hub)
	resolution := service.NewResolutionService(tokens, entities, scans, sessions, dispatcher, nil, logger)
	provisioning := service.NewProvisioningService(tokens, entities, logger)
	validate := validator.NewValidator()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	var verifier *jwt.Verifier
	if !cfg.noVerifier {
		verifier = jwt.NewVerifierFromKey(&key.PublicKey, "idp")
	}

	h := &harness{
		entities: entities,
		tokens:   tokens,
		sessions: sessions,
		scans:    scans,
		hub:      hub,
		key:      key,
		limiter:  &stubLimiter{result: ratelimit.Result{Allowed: true, Limit: 60, Remaining: 59}},
		checks:   map[string]handler.Check{},
	}

	app := handler.NewApp(handler.AppConfig{Name: "test"}, logger)
	app.Use(middleware.RecoveryMiddleware(logger))
	app.Use(middleware.TraceID())
	handler.SetupRoutes(app, handler.Handlers{
		Profile:  handler.NewProfileHandler(resolution, logger),
		Session:  handler.NewSessionHandler(sessions, validate, logger),
		Admin:    handler.NewAdminHandler(tokens, provisioning, sessions, scans, validate, logger),
		Realtime: handler.NewRealtimeHandler(hub, logger),
		Health:   handler.NewHealthHandler(h.checks),
	}, middleware.RateLimit(h.limiter, logger), middleware.AdminAuth(verifier, "admin", logger))
	h.app = app

	return h
}

func (h *harness) student(t *testing.T, id, name string) domain.EntityRef {
	t.Helper()
	ref, err := domain.StudentRef(id)
	require.NoError(t, err)
	h.entities.PutStudent(ref, domain.StudentProfile{FullName: name, SchoolName: "Liceo 1"}, true)
	return ref
}

func (h *harness) adminToken(t *testing.T, roles ...string) string {
	t.Helper()
	claims := jwt.Claims{
		RegisteredClaims: gojwt.RegisteredClaims{
			Issuer:    "idp",
			Subject:   "admin@example.com",
			ExpiresAt: gojwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Roles: roles,
	}
	signed, err := gojwt.NewWithClaims(gojwt.SigningMethodRS256, claims).SignedString(h.key)
	require.NoError(t, err)
	return signed
}

func (h *harness) do(t *testing.T, method, path string, body interface{}, headers map[string]string) (*http.Response, envelope) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := h.app.Test(req, -1)
	require.NoError(t, err)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	_ = resp.Body.Close()

	var env envelope
	if len(raw) > 0 && strings.HasPrefix(resp.Header.Get(fiber.HeaderContentType), fiber.MIMEApplicationJSON) {
		require.NoError(t, json.Unmarshal(raw, &env), string(raw))
	}
	return resp, env
}

func (h *harness) admin(t *testing.T, method, path string, body interface{}) (*http.Response, envelope) {
	t.Helper()
	return h.do(t, method, path, body, map[string]string{
		fiber.HeaderAuthorization: "Bearer " + h.adminToken(t, "admin"),
	})
}

type resolveData struct {
	Profile struct {
		EntityType  string `json:"entity_type"`
		EntityID    string `json:"entity_id"`
		DisplayName string `json:"display_name"`
		ScanCount   int64  `json:"scan_count"`
		Student     *struct {
			SchoolName string `json:"school_name"`
		} `json:"student"`
	} `json:"profile"`
	SessionID string `json:"session_id"`
}

func TestResolve_ReturnsProfileAndSession(t *testing.T) {
	h := newHarness(t)
	ref := h.student(t, "SL1-01", "Ana Pérez")
	tok, err := h.tokens.CreatePermanent(context.Background(), ref, "", "test")
	require.NoError(t, err)

	resp, env := h.do(t, http.MethodGet, "/api/v1/p/"+tok.Token, nil, map[string]string{fiber.HeaderUserAgent: browserUA})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "no-store", resp.Header.Get(fiber.HeaderCacheControl))
	assert.True(t, env.Success)
	assert.NotEmpty(t, env.Meta.TraceID)

	var data resolveData
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, "student", data.Profile.EntityType)
	assert.Equal(t, "SL1-01", data.Profile.EntityID)
	assert.Equal(t, "Ana Pérez", data.Profile.DisplayName)
	assert.EqualValues(t, 1, data.Profile.ScanCount)
	require.NotNil(t, data.Profile.Student)
	assert.Equal(t, "Liceo 1", data.Profile.Student.SchoolName)
	assert.NotEmpty(t, data.SessionID)
	assert.NotContains(t, string(env.Data), tok.Token)
}

func TestResolve_TokenFailuresLookAlike(t *testing.T) {
	h := newHarness(t)
	ref := h.student(t, "SL1-02", "Bruno")
	once, err := h.tokens.CreateOneTime(context.Background(), ref, "test")
	require.NoError(t, err)

	resp, _ := h.do(t, http.MethodGet, "/api/v1/p/"+once.Token, nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	for _, token := range []string{once.Token, "does-not-exist"} {
		resp, env := h.do(t, http.MethodGet, "/api/v1/p/"+token, nil, nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		require.NotNil(t, env.Error)
		assert.Equal(t, "INVALID_TOKEN", env.Error.Code)
		assert.Equal(t, "invalid or expired token", env.Error.Message)
	}
}

func TestResolve_InactiveEntity(t *testing.T) {
	h := newHarness(t)
	ref := h.student(t, "SL1-03", "Carla")
	tok, err := h.tokens.CreatePermanent(context.Background(), ref, "", "test")
	require.NoError(t, err)
	h.entities.SetActive(ref, false)

	resp, env := h.do(t, http.MethodGet, "/api/v1/p/"+tok.Token, nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	require.NotNil(t, env.Error)
	assert.Equal(t, "INVALID_TOKEN", env.Error.Code)
	assert.Equal(t, "invalid or expired token", env.Error.Message)
}

func TestResolve_StoredTelemetrySurvivesLaterRequests(t *testing.T) {
	h := newHarness(t)
	ref := h.student(t, "SL1-10", "Gabriela")
	tok, err := h.tokens.CreatePermanent(context.Background(), ref, "", "test")
	require.NoError(t, err)

	firstUA := "TapClient/" + strings.Repeat("A", 24)
	resp, env := h.do(t, http.MethodGet, "/api/v1/p/"+tok.Token, nil, map[string]string{
		fiber.HeaderUserAgent: firstUA,
		fiber.HeaderReferer:   "https://first.example.com/",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var data resolveData
	require.NoError(t, json.Unmarshal(env.Data, &data))

	otherUA := "TapClient/" + strings.Repeat("B", 24)
	for i := 0; i < 20; i++ {
		resp, _ := h.do(t, http.MethodGet, "/health", nil, map[string]string{
			fiber.HeaderUserAgent: otherUA,
			fiber.HeaderReferer:   "https://other.example.com/",
		})
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}

	tokens, err := h.tokens.ListForEntity(context.Background(), ref)
	require.NoError(t, err)
	require.Len(t, tokens, 1)
	assert.Equal(t, firstUA, tokens[0].UserAgent)

	session, err := h.sessions.Get(context.Background(), data.SessionID)
	require.NoError(t, err)
	assert.Equal(t, firstUA, session.UserAgent)
	assert.Equal(t, "https://first.example.com/", session.Referrer)

	history, err := h.scans.History(context.Background(), ref)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, firstUA, history[0].UserAgent)
}

func TestResolve_RateLimited(t *testing.T) {
	h := newHarness(t)
	h.limiter.result = ratelimit.Result{Allowed: false, Limit: 60, Remaining: 0, RetryAfter: 1500 * time.Millisecond}

	resp, env := h.do(t, http.MethodGet, "/api/v1/p/anything", nil, nil)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "2", resp.Header.Get(fiber.HeaderRetryAfter))
	assert.Equal(t, "60", resp.Header.Get("X-RateLimit-Limit"))
	assert.Equal(t, "0", resp.Header.Get("X-RateLimit-Remaining"))
	require.NotNil(t, env.Error)
	assert.Equal(t, "RATE_LIMITED", env.Error.Code)
}

func TestResolve_LimiterErrorFailsOpen(t *testing.T) {
	h := newHarness(t)
	h.limiter.err = errors.New("redis down")
	ref := h.student(t, "SL1-04", "Diego")
	tok, err := h.tokens.CreatePermanent(context.Background(), ref, "", "test")
	require.NoError(t, err)

	resp, _ := h.do(t, http.MethodGet, "/api/v1/p/"+tok.Token, nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

type sessionData struct {
	SessionID string `json:"session_id"`
	IsActive  bool   `json:"is_active"`
	PageViews int    `json:"page_views"`
	Duration  int64  `json:"duration"`
}

func resolveSession(t *testing.T, h *harness, id string) string {
	t.Helper()
	ref := h.student(t, id, "Visitor Target")
	tok, err := h.tokens.CreatePermanent(context.Background(), ref, "", "test")
	require.NoError(t, err)

	resp, env := h.do(t, http.MethodGet, "/api/v1/p/"+tok.Token, nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var data resolveData
	require.NoError(t, json.Unmarshal(env.Data, &data))
	require.NotEmpty(t, data.SessionID)
	return data.SessionID
}

func TestSession_RecordActionAndEnd(t *testing.T) {
	h := newHarness(t)
	sessionID := resolveSession(t, h, "SL1-05")

	resp, env := h.do(t, http.MethodPost, "/api/v1/sessions/"+sessionID+"/actions", map[string]string{"type": "call"}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var s sessionData
	require.NoError(t, json.Unmarshal(env.Data, &s))
	assert.Equal(t, 2, s.PageViews)
	assert.True(t, s.IsActive)

	resp, env = h.do(t, http.MethodPost, "/api/v1/sessions/"+sessionID+"/end", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(env.Data, &s))
	assert.False(t, s.IsActive)
	first := s

	resp, env = h.do(t, http.MethodPost, "/api/v1/sessions/"+sessionID+"/end", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(env.Data, &s))
	assert.Equal(t, first, s)
}

func TestSession_Errors(t *testing.T) {
	h := newHarness(t)
	sessionID := resolveSession(t, h, "SL1-06")

	resp, env := h.do(t, http.MethodPost, "/api/v1/sessions/"+sessionID+"/actions", map[string]string{"type": "dance"}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.NotNil(t, env.Error)
	assert.Equal(t, "INVALID_PAYLOAD", env.Error.Code)

	resp, env = h.do(t, http.MethodPost, "/api/v1/sessions/missing/end", nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	require.NotNil(t, env.Error)
	assert.Equal(t, "NOT_FOUND", env.Error.Code)
}

func TestAdmin_Authentication(t *testing.T) {
	h := newHarness(t)

	resp, env := h.do(t, http.MethodGet, "/api/v1/admin/entities/student/SL1-01/tokens", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.NotNil(t, env.Error)
	assert.Equal(t, "UNAUTHORIZED", env.Error.Code)

	resp, _ = h.do(t, http.MethodGet, "/api/v1/admin/entities/student/SL1-01/tokens", nil, map[string]string{
		fiber.HeaderAuthorization: "Bearer not-a-jwt",
	})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, env = h.do(t, http.MethodGet, "/api/v1/admin/entities/student/SL1-01/tokens", nil, map[string]string{
		fiber.HeaderAuthorization: "Bearer " + h.adminToken(t, "viewer"),
	})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	require.NotNil(t, env.Error)
	assert.Equal(t, "FORBIDDEN", env.Error.Code)
}

func TestAdmin_DisabledWithoutVerifier(t *testing.T) {
	h := newHarness(t, withoutVerifier())

	resp, _ := h.admin(t, http.MethodGet, "/api/v1/admin/entities/student/SL1-01/tokens", nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

type tokenData struct {
	Token      string     `json:"token"`
	EntityType string     `json:"entity_type"`
	EntityID   string     `json:"entity_id"`
	Kind       string     `json:"kind"`
	ExpiresAt  *time.Time `json:"expires_at"`
	CreatedBy  string     `json:"created_by"`
}

func TestAdmin_TokenLifecycle(t *testing.T) {
	h := newHarness(t)
	h.student(t, "SL1-07", "Elena")

	resp, env := h.admin(t, http.MethodPost, "/api/v1/admin/tokens", map[string]interface{}{
		"entity_type": "student",
		"entity_id":   "SL1-07",
		"kind":        "temporary",
		"hours_valid": 24,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created tokenData
	require.NoError(t, json.Unmarshal(env.Data, &created))
	assert.Len(t, created.Token, 43)
	assert.Equal(t, "temporary", created.Kind)
	assert.Equal(t, "admin@example.com", created.CreatedBy)
	require.NotNil(t, created.ExpiresAt)
	assert.WithinDuration(t, time.Now().Add(24*time.Hour), *created.ExpiresAt, time.Minute)

	resp, env = h.admin(t, http.MethodGet, "/api/v1/admin/entities/student/SL1-07/tokens", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list struct {
		Tokens []tokenData `json:"tokens"`
		Count  int         `json:"count"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &list))
	require.Equal(t, 1, list.Count)
	assert.Equal(t, created.Token, list.Tokens[0].Token)

	resp, _ = h.admin(t, http.MethodDelete, "/api/v1/admin/tokens/"+created.Token, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, env = h.admin(t, http.MethodDelete, "/api/v1/admin/tokens/"+created.Token, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	require.NotNil(t, env.Error)
	assert.Equal(t, "NOT_FOUND", env.Error.Code)

	resp, _ = h.do(t, http.MethodGet, "/api/v1/p/"+created.Token, nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAdmin_CreateTokenValidation(t *testing.T) {
	h := newHarness(t)

	cases := map[string]map[string]interface{}{
		"unknown kind":      {"entity_type": "student", "entity_id": "SL1-01", "kind": "forever"},
		"unknown type":      {"entity_type": "parent", "entity_id": "SL1-01", "kind": "permanent"},
		"malformed id":      {"entity_type": "student", "entity_id": "no spaces", "kind": "permanent"},
		"negative validity": {"entity_type": "student", "entity_id": "SL1-01", "kind": "temporary", "hours_valid": -1},
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			resp, env := h.admin(t, http.MethodPost, "/api/v1/admin/tokens", body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			require.NotNil(t, env.Error)
			assert.Equal(t, "INVALID_PAYLOAD", env.Error.Code)
		})
	}
}

func TestAdmin_ProvisionIsIdempotent(t *testing.T) {
	h := newHarness(t)
	h.student(t, "SL1-08", "Fabián")

	resp, env := h.admin(t, http.MethodPost, "/api/v1/admin/entities/student/SL1-08/provision", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var first tokenData
	require.NoError(t, json.Unmarshal(env.Data, &first))
	assert.Equal(t, "permanent", first.Kind)

	resp, env = h.admin(t, http.MethodPost, "/api/v1/admin/entities/student/SL1-08/provision", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var second tokenData
	require.NoError(t, json.Unmarshal(env.Data, &second))
	assert.Equal(t, first.Token, second.Token)

	resp, env = h.admin(t, http.MethodPost, "/api/v1/admin/entities/artist/AT-99/provision", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	require.NotNil(t, env.Error)
	assert.Equal(t, "NOT_FOUND", env.Error.Code)
}

func TestAdmin_Analytics(t *testing.T) {
	h := newHarness(t)
	sessionID := resolveSession(t, h, "SL1-09")
	resp, _ := h.do(t, http.MethodPost, "/api/v1/sessions/"+sessionID+"/actions", map[string]string{"type": "share"}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, env := h.admin(t, http.MethodGet, "/api/v1/admin/entities/student/SL1-09/analytics", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var data struct {
		EntityID string `json:"entity_id"`
		Sessions struct {
			TotalSessions  int64            `json:"total_sessions"`
			ActiveSessions int64            `json:"active_sessions"`
			ByAction       map[string]int64 `json:"by_action"`
		} `json:"sessions"`
		ScanHistory []domain.ScanEntry `json:"scan_history"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, "SL1-09", data.EntityID)
	assert.EqualValues(t, 1, data.Sessions.TotalSessions)
	assert.EqualValues(t, 1, data.Sessions.ActiveSessions)
	assert.EqualValues(t, 1, data.Sessions.ByAction["share"])
	assert.Len(t, data.ScanHistory, 1)
}

func TestHealth(t *testing.T) {
	h := newHarness(t)

	resp, _ := h.do(t, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	h.checks["storage"] = func(context.Context) error { return nil }
	resp, env := h.do(t, http.MethodGet, "/ready", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, env.Success)

	h.checks["redis"] = func(context.Context) error { return errors.New("connection refused") }
	resp, env = h.do(t, http.MethodGet, "/ready", nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	require.NotNil(t, env.Error)
	assert.Equal(t, "UNAVAILABLE", env.Error.Code)
	assert.Contains(t, string(env.Data), "connection refused")
}

func TestMetricsEndpoint(t *testing.T) {
	h := newHarness(t)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	resp, err := h.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "go_goroutines")
}

func TestUnknownRouteUsesEnvelope(t *testing.T) {
	h := newHarness(t)

	resp, env := h.do(t, http.MethodGet, "/api/v1/nope", nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	require.NotNil(t, env.Error)
	assert.Equal(t, "NOT_FOUND", env.Error.Code)
}

func TestRealtime_RequiresUpgrade(t *testing.T) {
	h := newHarness(t)

	resp, env := h.admin(t, http.MethodGet, "/ws/scans", nil)
	assert.Equal(t, http.StatusUpgradeRequired, resp.StatusCode)
	assert.False(t, env.Success)
	assert.Equal(t, 0, h.hub.Clients())
}
