package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bluewing/auth-core/middleware"
	"github.com/bluewing/auth-core/models"
	"github.com/bluewing/auth-core/services"
	authsvc "github.com/bluewing/auth-core/services/auth"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// MockSessionService is a mock implementation of SessionService
type MockSessionService struct {
	mock.Mock
}

func (m *MockSessionService) Login(ctx context.Context, input authsvc.LoginInput) (*authsvc.Session, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*authsvc.Session), args.Error(1)
}

func (m *MockSessionService) Signup(ctx context.Context, input authsvc.SignupInput) (*authsvc.Session, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*authsvc.Session), args.Error(1)
}

func (m *MockSessionService) Exchange(ctx context.Context, refreshToken string, device *string) (*authsvc.Session, error) {
	args := m.Called(ctx, refreshToken, device)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*authsvc.Session), args.Error(1)
}

func (m *MockSessionService) Logout(ctx context.Context, member *models.Member, refreshToken string, everywhere bool) error {
	args := m.Called(ctx, member, refreshToken, everywhere)
	return args.Error(0)
}

func (m *MockSessionService) Sessions(ctx context.Context, member *models.Member) ([]*models.RefreshToken, error) {
	args := m.Called(ctx, member)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.RefreshToken), args.Error(1)
}

func (m *MockSessionService) RevokeDevice(ctx context.Context, member *models.Member, device string) (int64, error) {
	args := m.Called(ctx, member, device)
	return args.Get(0).(int64), args.Error(1)
}

func testSession() *authsvc.Session {
	return &authsvc.Session{
		AccessToken:  "Bearer eyJhbGciOiJIUzI1NiJ9.e30.sig",
		RefreshToken: "refresh_0123abcd",
		ExpiresIn:    15 * time.Minute,
		Member:       models.NewMember(uuid.New(), uuid.New(), models.RoleAdmin),
	}
}

func post(path, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decodeSession(t *testing.T, w *httptest.ResponseRecorder) SessionResponse {
	t.Helper()

	var response struct {
		Data SessionResponse `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	return response.Data
}

func TestHandleLogin(t *testing.T) {
	logger := zap.NewNop()

	t.Run("successful login sets headers and body", func(t *testing.T) {
		svc := new(MockSessionService)
		session := testSession()
		orgID := uuid.New()
		device := "laptop"

		svc.On("Login", mock.Anything, authsvc.LoginInput{
			Email:          "ada@example.com",
			Password:       "correct horse",
			OrganizationID: &orgID,
			Device:         &device,
		}).Return(session, nil)

		body := `{"email":"ada@example.com","password":"correct horse","organizationId":"` + orgID.String() + `","device":"laptop"}`
		w := httptest.NewRecorder()
		NewHandler(svc, 0, logger).HandleLogin(w, post("/user/login", body))

		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, session.AccessToken, w.Header().Get("Authorization"))
		assert.Equal(t, session.RefreshToken, w.Header().Get("X-Refresh-Token"))
		assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))

		data := decodeSession(t, w)
		assert.Equal(t, session.AccessToken, data.Token)
		assert.Equal(t, session.RefreshToken, data.RefreshToken)
		assert.Equal(t, int64(900), data.ExpiresIn)
		assert.Equal(t, session.Member.ID, data.Member.ID)
		svc.AssertExpectations(t)
	})

	t.Run("invalid credentials are 401", func(t *testing.T) {
		svc := new(MockSessionService)
		svc.On("Login", mock.Anything, mock.Anything).Return(nil, services.ErrInvalidCredentials)

		w := httptest.NewRecorder()
		NewHandler(svc, 0, logger).HandleLogin(w, post("/user/login", `{"email":"ada@example.com","password":"wrong"}`))

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Empty(t, w.Header().Get("Authorization"))
		assert.Contains(t, w.Body.String(), "invalid email or password")
	})

	tests := []struct {
		name string
		body string
	}{
		{name: "empty body", body: ""},
		{name: "malformed JSON", body: `{"email":`},
		{name: "missing password", body: `{"email":"ada@example.com"}`},
		{name: "bad email", body: `{"email":"ada","password":"x"}`},
		{name: "bad organization id", body: `{"email":"ada@example.com","password":"x","organizationId":"acme"}`},
		{name: "unknown field", body: `{"email":"ada@example.com","password":"x","role":"admin"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockSessionService)

			w := httptest.NewRecorder()
			NewHandler(svc, 0, logger).HandleLogin(w, post("/user/login", tt.body))

			assert.Equal(t, http.StatusBadRequest, w.Code)
			svc.AssertNotCalled(t, "Login", mock.Anything, mock.Anything)
		})
	}
}

func TestHandleSignup(t *testing.T) {
	logger := zap.NewNop()

	t.Run("created", func(t *testing.T) {
		svc := new(MockSessionService)
		session := testSession()
		svc.On("Signup", mock.Anything, authsvc.SignupInput{
			Email:            "ada@example.com",
			Password:         "correct horse",
			Name:             "Ada",
			OrganizationName: "Analytical Engines",
		}).Return(session, nil)

		body := `{"email":"ada@example.com","password":"correct horse","name":"Ada","organizationName":"Analytical Engines"}`
		w := httptest.NewRecorder()
		NewHandler(svc, 0, logger).HandleSignup(w, post("/user/signup", body))

		assert.Equal(t, http.StatusCreated, w.Code)
		assert.Equal(t, session.RefreshToken, decodeSession(t, w).RefreshToken)
	})

	t.Run("duplicate email is 409", func(t *testing.T) {
		svc := new(MockSessionService)
		svc.On("Signup", mock.Anything, mock.Anything).Return(nil, services.ErrDuplicateEmail)

		body := `{"email":"ada@example.com","password":"correct horse","name":"Ada","organizationName":"AE"}`
		w := httptest.NewRecorder()
		NewHandler(svc, 0, logger).HandleSignup(w, post("/user/signup", body))

		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("short password fails validation", func(t *testing.T) {
		svc := new(MockSessionService)

		body := `{"email":"ada@example.com","password":"short","name":"Ada","organizationName":"AE"}`
		w := httptest.NewRecorder()
		NewHandler(svc, 0, logger).HandleSignup(w, post("/user/signup", body))

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "password must be at least 8")
	})
}

func TestHandleToken(t *testing.T) {
	logger := zap.NewNop()

	t.Run("token from header", func(t *testing.T) {
		svc := new(MockSessionService)
		session := testSession()
		svc.On("Exchange", mock.Anything, "refresh_old", (*string)(nil)).Return(session, nil)

		req := httptest.NewRequest(http.MethodPost, "/api/token", nil)
		req.Header.Set("X-Refresh-Token", "refresh_old")
		w := httptest.NewRecorder()
		NewHandler(svc, 0, logger).HandleToken(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, session.AccessToken, w.Header().Get("Authorization"))
		assert.Equal(t, session.RefreshToken, w.Header().Get("X-Refresh-Token"))
		svc.AssertExpectations(t)
	})

	t.Run("token and device from body", func(t *testing.T) {
		svc := new(MockSessionService)
		device := "phone"
		svc.On("Exchange", mock.Anything, "refresh_old", &device).Return(testSession(), nil)

		w := httptest.NewRecorder()
		NewHandler(svc, 0, logger).HandleToken(w, post("/api/token", `{"refreshToken":"refresh_old","device":"phone"}`))

		assert.Equal(t, http.StatusOK, w.Code)
		svc.AssertExpectations(t)
	})

	t.Run("header wins over body", func(t *testing.T) {
		svc := new(MockSessionService)
		svc.On("Exchange", mock.Anything, "refresh_header", (*string)(nil)).Return(testSession(), nil)

		req := post("/api/token", `{"refreshToken":"refresh_body"}`)
		req.Header.Set("X-Refresh-Token", "refresh_header")
		w := httptest.NewRecorder()
		NewHandler(svc, 0, logger).HandleToken(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		svc.AssertExpectations(t)
	})

	t.Run("missing token is 400", func(t *testing.T) {
		svc := new(MockSessionService)

		w := httptest.NewRecorder()
		NewHandler(svc, 0, logger).HandleToken(w, httptest.NewRequest(http.MethodPost, "/api/token", nil))

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "refreshToken is required")
	})

	t.Run("expired or unknown token is 401", func(t *testing.T) {
		svc := new(MockSessionService)
		svc.On("Exchange", mock.Anything, "refresh_stale", (*string)(nil)).Return(nil, services.ErrInvalidRefreshToken)

		req := httptest.NewRequest(http.MethodPost, "/api/token", nil)
		req.Header.Set("X-Refresh-Token", "refresh_stale")
		w := httptest.NewRecorder()
		NewHandler(svc, 0, logger).HandleToken(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Empty(t, w.Header().Get("X-Refresh-Token"))
	})
}

func withMember(req *http.Request, member *models.Member) *http.Request {
	return req.WithContext(middleware.WithMember(req.Context(), member))
}

func TestHandleLogout(t *testing.T) {
	logger := zap.NewNop()
	member := models.NewMember(uuid.New(), uuid.New(), models.RoleMember)

	t.Run("revokes the token from the body", func(t *testing.T) {
		svc := new(MockSessionService)
		svc.On("Logout", mock.Anything, member, "refresh_a", false).Return(nil)

		w := httptest.NewRecorder()
		NewHandler(svc, 0, logger).HandleLogout(w, withMember(post("/api/auth/logout", `{"refreshToken":"refresh_a"}`), member))

		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Empty(t, w.Body.String())
		svc.AssertExpectations(t)
	})

	t.Run("falls back to the header", func(t *testing.T) {
		svc := new(MockSessionService)
		svc.On("Logout", mock.Anything, member, "refresh_h", false).Return(nil)

		req := withMember(httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil), member)
		req.Header.Set("X-Refresh-Token", "refresh_h")
		w := httptest.NewRecorder()
		NewHandler(svc, 0, logger).HandleLogout(w, req)

		assert.Equal(t, http.StatusNoContent, w.Code)
		svc.AssertExpectations(t)
	})

	t.Run("everywhere", func(t *testing.T) {
		svc := new(MockSessionService)
		svc.On("Logout", mock.Anything, member, "", true).Return(nil)

		w := httptest.NewRecorder()
		NewHandler(svc, 0, logger).HandleLogout(w, withMember(post("/api/auth/logout", `{"everywhere":true}`), member))

		assert.Equal(t, http.StatusNoContent, w.Code)
		svc.AssertExpectations(t)
	})

	t.Run("unauthenticated", func(t *testing.T) {
		svc := new(MockSessionService)

		w := httptest.NewRecorder()
		NewHandler(svc, 0, logger).HandleLogout(w, post("/api/auth/logout", `{}`))

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestHandleSessions(t *testing.T) {
	logger := zap.NewNop()
	member := models.NewMember(uuid.New(), uuid.New(), models.RoleMember)

	device := "laptop"
	token := models.NewRefreshToken(member.OrganizationID, member.ID, "refresh_secret", &device)
	token.UpdatedAt = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	svc := new(MockSessionService)
	svc.On("Sessions", mock.Anything, member).Return([]*models.RefreshToken{token}, nil)

	w := httptest.NewRecorder()
	NewHandler(svc, 24*time.Hour, logger).HandleSessions(w, withMember(httptest.NewRequest(http.MethodGet, "/api/auth/sessions", nil), member))

	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "refresh_secret")

	var response struct {
		Data []SessionView `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	require.Len(t, response.Data, 1)
	assert.Equal(t, "laptop", response.Data[0].Device)
	assert.Equal(t, time.Date(2024, 3, 2, 12, 0, 0, 0, time.UTC), response.Data[0].ExpiresAt.UTC())
}

func TestHandleRevokeDevice(t *testing.T) {
	logger := zap.NewNop()
	member := models.NewMember(uuid.New(), uuid.New(), models.RoleMember)

	svc := new(MockSessionService)
	svc.On("RevokeDevice", mock.Anything, member, "work laptop").Return(int64(2), nil)

	h := NewHandler(svc, 0, logger)
	r := chi.NewRouter()
	r.Delete("/api/auth/sessions/devices/{device}", func(w http.ResponseWriter, req *http.Request) {
		h.HandleRevokeDevice(w, withMember(req, member))
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/api/auth/sessions/devices/work%20laptop", nil))

	assert.Equal(t, http.StatusNoContent, w.Code)
	svc.AssertExpectations(t)
}
