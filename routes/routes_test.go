package routes

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bluewing/auth-core/app"
	"github.com/bluewing/auth-core/auth"
	"github.com/bluewing/auth-core/config"
	"github.com/bluewing/auth-core/handlers"
	"github.com/bluewing/auth-core/internal/observability"
	"github.com/bluewing/auth-core/middleware"
	"github.com/bluewing/auth-core/models"
	"github.com/bluewing/auth-core/repositories"
	"github.com/bluewing/auth-core/services"
	authsvc "github.com/bluewing/auth-core/services/auth"
	"github.com/bluewing/auth-core/services/locations"
	"github.com/bluewing/auth-core/services/ratelimit"
	"github.com/bluewing/auth-core/tenancy"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var (
	orgID  = uuid.New()
	admin  = models.NewMember(uuid.New(), orgID, models.RoleAdmin)
	viewer = models.NewMember(uuid.New(), orgID, models.RoleViewer)
)

// stubAuthenticator accepts "Bearer admin" and "Bearer viewer"
type stubAuthenticator struct{}

func (stubAuthenticator) Authenticate(_ context.Context, header string) (*models.Member, error) {
	switch header {
	case "Bearer admin":
		return admin, nil
	case "Bearer viewer":
		return viewer, nil
	}
	return nil, services.ErrInvalidToken
}

type stubSessions struct{}

func (stubSessions) session() *authsvc.Session {
	return &authsvc.Session{
		AccessToken:  "Bearer access",
		RefreshToken: "refresh_next",
		ExpiresIn:    15 * time.Minute,
		Member:       viewer,
	}
}

func (s stubSessions) Login(context.Context, authsvc.LoginInput) (*authsvc.Session, error) {
	return s.session(), nil
}

func (s stubSessions) Signup(context.Context, authsvc.SignupInput) (*authsvc.Session, error) {
	return s.session(), nil
}

func (s stubSessions) Exchange(_ context.Context, token string, _ *string) (*authsvc.Session, error) {
	if token != "refresh_ok" {
		return nil, services.ErrInvalidRefreshToken
	}
	return s.session(), nil
}

func (stubSessions) Logout(context.Context, *models.Member, string, bool) error { return nil }

func (stubSessions) Sessions(context.Context, *models.Member) ([]*models.RefreshToken, error) {
	return []*models.RefreshToken{}, nil
}

func (stubSessions) RevokeDevice(context.Context, *models.Member, string) (int64, error) {
	return 1, nil
}

type stubLocations struct{}

func (stubLocations) Create(context.Context, *models.Member, locations.CreateInput) (*models.Location, error) {
	return nil, services.ErrInvalidGeometry
}

func (stubLocations) Get(context.Context, *models.Member, uuid.UUID) (*models.Location, error) {
	return nil, services.ErrLocationNotFound
}

func (stubLocations) List(context.Context, *models.Member, int, int) ([]*models.Location, error) {
	return []*models.Location{}, nil
}

func (stubLocations) Delete(context.Context, *models.Member, uuid.UUID) error { return nil }

type stubAuditLogs struct{}

func (stubAuditLogs) List(context.Context, tenancy.Scope, repositories.AuditFilter) ([]*models.AuditLog, error) {
	return []*models.AuditLog{}, nil
}

func (stubAuditLogs) Get(context.Context, tenancy.Scope, uuid.UUID) (*models.AuditLog, error) {
	return nil, services.ErrAuditLogNotFound
}

func testDependencies(t *testing.T) *app.Dependencies {
	t.Helper()
	logger := zap.NewNop()
	metrics := observability.NewMetrics()
	limiter := ratelimit.NewRateLimitService(ratelimit.Config{PerSecond: 0.001, Burst: 2, IdleTTL: time.Minute}, logger)

	return &app.Dependencies{
		Config: &config.Config{
			Environment: "test",
			CORS:        config.CORSConfig{AllowedOrigins: []string{"http://localhost:*"}},
		},
		Logger:              logger,
		Metrics:             metrics,
		AuthHandler:         auth.NewHandler(stubSessions{}, time.Hour, logger),
		LocationHandler:     handlers.NewLocationHandler(stubLocations{}, logger),
		AuditLogHandler:     handlers.NewAuditLogHandler(stubAuditLogs{}, logger),
		HealthHandler:       handlers.NewHealthHandler(nil, nil, logger),
		AuthMiddleware:      middleware.NewAuthMiddleware(stubAuthenticator{}, logger),
		RateLimitMiddleware: middleware.NewRateLimitMiddleware(limiter, metrics, logger),
	}
}

func do(t *testing.T, h http.Handler, method, path, authz, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if authz != "" {
		req.Header.Set("Authorization", authz)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestHealthEndpoint(t *testing.T) {
	handler := SetupRoutes(testDependencies(t))

	w := do(t, handler, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestAPIEndpoints(t *testing.T) {
	handler := SetupRoutes(testDependencies(t))

	testCases := []struct {
		name           string
		method         string
		path           string
		authz          string
		body           string
		expectedStatus int
	}{
		{"logout unauthenticated", "POST", "/api/auth/logout", "", "", http.StatusUnauthorized},
		{"logout", "POST", "/api/auth/logout", "Bearer viewer", `{"refreshToken":"refresh_x"}`, http.StatusNoContent},
		{"sessions unauthenticated", "GET", "/api/auth/sessions", "", "", http.StatusUnauthorized},
		{"sessions", "GET", "/api/auth/sessions", "Bearer viewer", "", http.StatusOK},
		{"revoke device", "DELETE", "/api/auth/sessions/devices/phone", "Bearer viewer", "", http.StatusNoContent},
		{"me unauthenticated", "GET", "/api/me", "", "", http.StatusUnauthorized},
		{"me with bad token", "GET", "/api/me", "Bearer forged", "", http.StatusUnauthorized},
		{"me", "GET", "/api/me", "Bearer viewer", "", http.StatusOK},
		{"list locations", "GET", "/api/locations", "Bearer viewer", "", http.StatusOK},
		{"get missing location", "GET", "/api/locations/" + uuid.NewString(), "Bearer viewer", "", http.StatusNotFound},
		{"audit logs unauthenticated", "GET", "/api/audit/logs", "", "", http.StatusUnauthorized},
		{"audit logs for viewer", "GET", "/api/audit/logs", "Bearer viewer", "", http.StatusForbidden},
		{"audit logs for admin", "GET", "/api/audit/logs", "Bearer admin", "", http.StatusOK},
		{"token exchange is public", "POST", "/api/token", "", `{"refreshToken":"refresh_ok"}`, http.StatusOK},
		{"token exchange with stale token", "POST", "/api/token", "", `{"refreshToken":"refresh_old"}`, http.StatusUnauthorized},
		{"not found", "GET", "/api/nonexistent", "Bearer viewer", "", http.StatusNotFound},
		{"unknown root path", "GET", "/nonexistent", "", "", http.StatusNotFound},
		{"method not allowed", "GET", "/user/login", "", "", http.StatusMethodNotAllowed},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			w := do(t, handler, tc.method, tc.path, tc.authz, tc.body)
			assert.Equal(t, tc.expectedStatus, w.Code, "endpoint: %s %s", tc.method, tc.path)
		})
	}
}

func TestLoginIssuesTokens(t *testing.T) {
	handler := SetupRoutes(testDependencies(t))

	w := do(t, handler, http.MethodPost, "/user/login", "", `{"email":"ada@example.com","password":"secret"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Bearer access", w.Header().Get("Authorization"))
	assert.Equal(t, "refresh_next", w.Header().Get("X-Refresh-Token"))

	var body map[string]map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "Bearer access", body["data"]["token"])
	assert.Equal(t, float64(900), body["data"]["expiresIn"])
}

func TestLoginRateLimited(t *testing.T) {
	deps := testDependencies(t)
	handler := SetupRoutes(deps)
	payload := `{"email":"ada@example.com","password":"secret"}`

	for i := 0; i < 2; i++ {
		w := do(t, handler, http.MethodPost, "/user/login", "", payload)
		require.Equal(t, http.StatusOK, w.Code)
	}

	w := do(t, handler, http.MethodPost, "/user/login", "", payload)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	// The signup bucket is keyed separately
	w = do(t, handler, http.MethodPost, "/user/signup", "",
		`{"email":"ada@example.com","password":"correct-horse","name":"Ada","organizationName":"Analytical"}`)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	handler := SetupRoutes(testDependencies(t))

	do(t, handler, http.MethodGet, "/healthz", "", "")
	w := do(t, handler, http.MethodGet, "/metrics", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `http_requests_total{method="GET",path="/healthz",status="200"} 1`)
}

func TestMetricsDisabled(t *testing.T) {
	deps := testDependencies(t)
	deps.Metrics = nil
	deps.RateLimitMiddleware = nil
	handler := SetupRoutes(deps)

	w := do(t, handler, http.MethodGet, "/metrics", "", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	for i := 0; i < 5; i++ {
		w = do(t, handler, http.MethodPost, "/user/login", "", `{"email":"ada@example.com","password":"secret"}`)
		assert.Equal(t, http.StatusOK, w.Code)
	}
}

func TestCORSMiddleware(t *testing.T) {
	handler := SetupRoutes(testDependencies(t))

	req := httptest.NewRequest(http.MethodOptions, "/api/token", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "POST")
	req.Header.Set("Access-Control-Request-Headers", "X-Refresh-Token")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))
}
