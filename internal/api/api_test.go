package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/buildplan/buildplan/internal/domain"
	"github.com/buildplan/buildplan/internal/metrics"
	"github.com/buildplan/buildplan/internal/service"
	"github.com/buildplan/buildplan/internal/store"
	"github.com/buildplan/buildplan/internal/web/auth"
	"github.com/buildplan/buildplan/internal/web/ratelimit"
)

const (
	userID    = "8a4c3e0e-5f3e-4b8e-9a57-0c5a1d2f7b11"
	projectID = "2b0b7f6c-1e6d-4a9b-8f0c-3d9e5a7c4b22"
	otherID   = "c3d4e5f6-0718-4293-a4b5-c6d7e8f90a33"
)

type stubAuth struct {
	AuthService
	login func(context.Context, service.LoginInput) (*service.Session, error)
}

func (s *stubAuth) Register(_ context.Context, in service.RegisterInput) (*service.Session, error) {
	return &service.Session{Token: "t", TokenType: "Bearer", User: &domain.User{ID: userID, Email: in.Email}}, nil
}

func (s *stubAuth) Login(ctx context.Context, in service.LoginInput) (*service.Session, error) {
	return s.login(ctx, in)
}

func (s *stubAuth) Me(_ context.Context, id string) (*domain.User, error) {
	return &domain.User{ID: id, Email: "jane@example.com"}, nil
}

type stubContacts struct {
	ContactService
	gotOpts store.ListOptions
}

func (s *stubContacts) List(_ context.Context, _ string, opts store.ListOptions) ([]*domain.Contact, int, error) {
	s.gotOpts = opts
	return []*domain.Contact{{ID: "c1", Name: "Bob"}}, 41, nil
}

type stubProjects struct {
	ProjectService
	err error
}

func (s *stubProjects) Get(_ context.Context, _, id string) (*domain.Project, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &domain.Project{ID: id, Name: "Deck", Status: domain.ProjectActive}, nil
}

func (s *stubProjects) Create(_ context.Context, _ string, in domain.ProjectInput) (*domain.Project, error) {
	if err := in.Normalize().Validate(); err != nil {
		return nil, err
	}
	return &domain.Project{ID: projectID, Name: in.Name}, nil
}

type stubEstimates struct {
	EstimateService
	gotStatus domain.EstimateStatus
	err       error
}

func (s *stubEstimates) ChangeStatus(_ context.Context, _, id string, next domain.EstimateStatus) (*domain.Estimate, error) {
	s.gotStatus = next
	if s.err != nil {
		return nil, s.err
	}
	return &domain.Estimate{ID: id, Status: next}, nil
}

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

type testAPI struct {
	handler   http.Handler
	tokens    *auth.TokenService
	auth      *stubAuth
	contacts  *stubContacts
	projects  *stubProjects
	estimates *stubEstimates
	logs      *observer.ObservedLogs
	metrics   *metrics.Metrics
}

func newTestAPI(t *testing.T, limiter ratelimit.AttemptLimiter) *testAPI {
	t.Helper()
	tokens, err := auth.NewTokenService(strings.Repeat("s", 32), time.Hour)
	require.NoError(t, err)

	core, logs := observer.New(zap.InfoLevel)
	ta := &testAPI{
		tokens: tokens,
		auth: &stubAuth{login: func(context.Context, service.LoginInput) (*service.Session, error) {
			return nil, domain.ErrInvalidCredentials
		}},
		contacts:  &stubContacts{},
		projects:  &stubProjects{},
		estimates: &stubEstimates{},
		logs:      logs,
		metrics:   metrics.New(),
	}
	ta.handler = NewRouter(Config{
		Auth:      ta.auth,
		Contacts:  ta.contacts,
		Projects:  ta.projects,
		Estimates: ta.estimates,
		Tokens:    tokens,
		Limiter:   limiter,
		FailOpen:  true,
		Health:    pinger{},
		Logger:    zap.New(core),
		Metrics:   ta.metrics,
	})
	return ta
}

func (ta *testAPI) do(t *testing.T, method, path, body string, authed bool) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, path, nil)
	} else {
		r = httptest.NewRequest(method, path, strings.NewReader(body))
		r.Header.Set("Content-Type", "application/json")
	}
	r.RemoteAddr = "1.2.3.4:5555"
	if authed {
		token, err := ta.tokens.GenerateToken(userID, "jane@example.com")
		require.NoError(t, err)
		r.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	ta.handler.ServeHTTP(w, r)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestHealth(t *testing.T) {
	ta := newTestAPI(t, nil)
	w := ta.do(t, http.MethodGet, "/health", "", false)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "up", decodeBody(t, w)["database"])

	down := NewRouter(Config{Health: pinger{err: errors.New("connection refused")}})
	w = httptest.NewRecorder()
	down.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	ta := newTestAPI(t, nil)
	ta.do(t, http.MethodGet, "/health", "", false)

	w := ta.do(t, http.MethodGet, "/metrics", "", false)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "buildplan_http_requests_total")
}

func TestLoginLockout(t *testing.T) {
	limiter, err := ratelimit.NewLockoutWithConfig(ratelimit.LockoutConfig{
		MaxAttempts:     5,
		Window:          15 * time.Minute,
		LockoutDuration: 30 * time.Minute,
		BucketSize:      time.Minute,
		ProtectedPaths:  ratelimit.DefaultProtectedPaths,
		Shards:          4,
	})
	require.NoError(t, err)
	defer limiter.Close()

	ta := newTestAPI(t, limiter)
	body := `{"email":"jane@example.com","password":"wrong-password"}`

	for i := 1; i <= 4; i++ {
		w := ta.do(t, http.MethodPost, "/api/auth/login", body, false)
		require.Equal(t, http.StatusUnauthorized, w.Code, "attempt %d", i)
		assert.Equal(t, "5", w.Header().Get("X-RateLimit-Limit"))
	}

	w := ta.do(t, http.MethodPost, "/api/auth/login", body, false)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1800", w.Header().Get("Retry-After"))
	assert.Equal(t, "30m0s", decodeBody(t, w)["retry_after"])

	// the lockout also covers registration from the same client
	w = ta.do(t, http.MethodPost, "/api/auth/register", `{"email":"x@example.com"}`, false)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	// authenticated routes are not limited
	w = ta.do(t, http.MethodGet, "/api/auth/me", "", true)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRegister(t *testing.T) {
	ta := newTestAPI(t, nil)

	w := ta.do(t, http.MethodPost, "/api/auth/register", `{"email":"jane@example.com","password":"long enough"}`, false)
	assert.Equal(t, http.StatusCreated, w.Code)
	user := decodeBody(t, w)["user"].(map[string]interface{})
	assert.Equal(t, userID, user["id"])
	assert.NotContains(t, user, "password_hash")

	w = ta.do(t, http.MethodPost, "/api/auth/register", `{"email":"jane@example.com","admin":true}`, false)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, `unknown field "admin"`, decodeBody(t, w)["message"])
}

func TestAuthRequired(t *testing.T) {
	ta := newTestAPI(t, nil)

	w := ta.do(t, http.MethodGet, "/api/contacts", "", false)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.NotEmpty(t, w.Header().Get("WWW-Authenticate"))
}

func TestListContacts(t *testing.T) {
	ta := newTestAPI(t, nil)

	w := ta.do(t, http.MethodGet, "/api/contacts?page=3&per_page=10&from=2025-01-01&to=2025-01-31&q=bob&sort=-name", "", true)
	require.Equal(t, http.StatusOK, w.Code)

	opts := ta.contacts.gotOpts
	assert.Equal(t, 10, opts.Limit)
	assert.Equal(t, 20, opts.Offset)
	assert.Equal(t, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), opts.From)
	assert.Equal(t, time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC), opts.To)
	assert.Equal(t, "bob", opts.Search)
	assert.Equal(t, []string{"-name"}, opts.Sort)

	meta := decodeBody(t, w)["meta"].(map[string]interface{})
	assert.Equal(t, float64(3), meta["page"])
	assert.Equal(t, float64(41), meta["total"])
	assert.Equal(t, float64(5), meta["total_pages"])
}

func TestListContactsBadParams(t *testing.T) {
	ta := newTestAPI(t, nil)

	for _, q := range []string{"page=0", "per_page=500", "from=2025-02-01&to=2025-01-01", "sort=password"} {
		w := ta.do(t, http.MethodGet, "/api/contacts?"+q, "", true)
		assert.Equal(t, http.StatusBadRequest, w.Code, q)
	}
}

func TestProjectErrors(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		err        error
		wantStatus int
	}{
		{"found", "/api/projects/" + projectID, nil, http.StatusOK},
		{"malformed id", "/api/projects/not-a-uuid", nil, http.StatusNotFound},
		{"not a member", "/api/projects/" + projectID, domain.ErrNotFound, http.StatusNotFound},
		{"forbidden", "/api/projects/" + projectID, domain.ErrForbidden, http.StatusForbidden},
		{"conflict", "/api/projects/" + projectID, domain.ErrConflict, http.StatusConflict},
		{"unexpected", "/api/projects/" + projectID, errors.New("db on fire"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ta := newTestAPI(t, nil)
			ta.projects.err = tt.err

			w := ta.do(t, http.MethodGet, tt.path, "", true)
			assert.Equal(t, tt.wantStatus, w.Code)

			if tt.wantStatus == http.StatusInternalServerError {
				assert.Equal(t, "Internal server error", decodeBody(t, w)["message"])
				assert.Equal(t, 1, ta.logs.FilterMessage("request failed").Len())
			}
		})
	}
}

func TestCreateProjectValidation(t *testing.T) {
	ta := newTestAPI(t, nil)

	w := ta.do(t, http.MethodPost, "/api/projects", `{"name":"","status":"paused"}`, true)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	fields := decodeBody(t, w)["fields"].(map[string]interface{})
	assert.Contains(t, fields, "name")
	assert.Contains(t, fields, "status")

	w = ta.do(t, http.MethodPost, "/api/projects", `{"name":"Deck"}`, true)
	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestChangeEstimateStatus(t *testing.T) {
	ta := newTestAPI(t, nil)
	path := "/api/estimates/" + otherID + "/status"

	w := ta.do(t, http.MethodPost, path, `{"status":"submitted"}`, true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, domain.EstimateSubmitted, ta.estimates.gotStatus)

	ta.estimates.err = domain.ErrNotEditable
	w = ta.do(t, http.MethodPost, path, `{"status":"approved"}`, true)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestRouting(t *testing.T) {
	ta := newTestAPI(t, nil)

	w := ta.do(t, http.MethodGet, "/nowhere", "", false)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "not_found", decodeBody(t, w)["code"])

	w = ta.do(t, http.MethodPatch, "/health", "", false)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)

	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestBaseChainRecoversWithRequestID(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	handler := baseChain(Config{Logger: zap.New(core)}).Then(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/projects", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	requestID := w.Header().Get("X-Request-ID")
	require.NotEmpty(t, requestID)

	panics := logs.FilterMessage("panic recovered").All()
	require.Len(t, panics, 1)
	assert.Equal(t, requestID, panics[0].ContextMap()["request_id"])
}

func TestGetProjectConditional(t *testing.T) {
	ta := newTestAPI(t, nil)
	path := "/api/projects/" + projectID

	w := ta.do(t, http.MethodGet, path, "", true)
	require.Equal(t, http.StatusOK, w.Code)
	etag := w.Header().Get("ETag")
	require.NotEmpty(t, etag)
	assert.Equal(t, "Deck", decodeBody(t, w)["name"])

	r := httptest.NewRequest(http.MethodGet, path, nil)
	token, err := ta.tokens.GenerateToken(userID, "jane@example.com")
	require.NoError(t, err)
	r.Header.Set("Authorization", "Bearer "+token)
	r.Header.Set("If-None-Match", etag)
	w = httptest.NewRecorder()
	ta.handler.ServeHTTP(w, r)

	assert.Equal(t, http.StatusNotModified, w.Code)
	assert.Empty(t, w.Body.String())
}
