// Package auth serves the credential endpoints: login, signup, token
// exchange, logout and session management.
package auth

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bluewing/auth-core/handlers"
	"github.com/bluewing/auth-core/middleware"
	"github.com/bluewing/auth-core/models"
	authsvc "github.com/bluewing/auth-core/services/auth"
	"github.com/bluewing/auth-core/utils"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// AuthorizationHeader carries the Bearer JWT in both directions
	AuthorizationHeader = "Authorization"
	// RefreshTokenHeader carries the refresh token in both directions
	RefreshTokenHeader = "X-Refresh-Token"
)

// SessionService is the subset of the auth service the handler drives
type SessionService interface {
	Login(ctx context.Context, input authsvc.LoginInput) (*authsvc.Session, error)
	Signup(ctx context.Context, input authsvc.SignupInput) (*authsvc.Session, error)
	Exchange(ctx context.Context, refreshToken string, device *string) (*authsvc.Session, error)
	Logout(ctx context.Context, member *models.Member, refreshToken string, everywhere bool) error
	Sessions(ctx context.Context, member *models.Member) ([]*models.RefreshToken, error)
	RevokeDevice(ctx context.Context, member *models.Member, device string) (int64, error)
}

// LoginRequest is the body of POST /user/login
type LoginRequest struct {
	Email          string  `json:"email" validate:"required,email"`
	Password       string  `json:"password" validate:"required,max=72"`
	OrganizationID *string `json:"organizationId,omitempty" validate:"omitempty,uuid"`
	Device         *string `json:"device,omitempty" validate:"omitempty,max=128"`
}

// SignupRequest is the body of POST /user/signup
type SignupRequest struct {
	Email            string  `json:"email" validate:"required,email"`
	Password         string  `json:"password" validate:"required,min=8,max=72"`
	Name             string  `json:"name" validate:"required,max=200"`
	OrganizationName string  `json:"organizationName" validate:"required,max=200"`
	Device           *string `json:"device,omitempty" validate:"omitempty,max=128"`
}

// TokenRequest is the optional body of POST /api/token
type TokenRequest struct {
	RefreshToken string  `json:"refreshToken,omitempty"`
	Device       *string `json:"device,omitempty" validate:"omitempty,max=128"`
}

// LogoutRequest is the optional body of POST /api/auth/logout
type LogoutRequest struct {
	RefreshToken string `json:"refreshToken,omitempty"`
	Everywhere   bool   `json:"everywhere,omitempty"`
}

// SessionResponse is returned by login, signup and token exchange
type SessionResponse struct {
	Token        string         `json:"token"`
	RefreshToken string         `json:"refreshToken"`
	ExpiresIn    int64          `json:"expiresIn"` // seconds
	Member       *models.Member `json:"member"`
}

// SessionView describes one active refresh session. The token is never returned.
type SessionView struct {
	ID         uuid.UUID `json:"id"`
	Device     string    `json:"device,omitempty"`
	UseCount   int       `json:"useCount"`
	CreatedAt  time.Time `json:"createdAt"`
	LastUsedAt time.Time `json:"lastUsedAt"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

// Handler handles the credential endpoints
type Handler struct {
	service   SessionService
	retention time.Duration
	logger    *zap.Logger
}

// NewHandler creates a new auth handler. retention is the refresh token
// sliding window, used to report session expiry.
func NewHandler(service SessionService, retention time.Duration, logger *zap.Logger) *Handler {
	if retention <= 0 {
		retention = authsvc.DefaultRefreshTokenRetention
	}
	return &Handler{
		service:   service,
		retention: retention,
		logger:    logger,
	}
}

// HandleLogin handles POST /user/login
func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !h.decode(w, r, &req, true) {
		return
	}

	input := authsvc.LoginInput{
		Email:    req.Email,
		Password: req.Password,
		Device:   req.Device,
	}
	if req.OrganizationID != nil {
		orgID, err := uuid.Parse(*req.OrganizationID)
		if err != nil {
			_ = utils.WriteBadRequest(w, "organizationId must be a valid UUID", nil)
			return
		}
		input.OrganizationID = &orgID
	}

	session, err := h.service.Login(r.Context(), input)
	if err != nil {
		handlers.HandleServiceError(w, err, h.logger)
		return
	}
	h.writeSession(w, http.StatusOK, session)
}

// HandleSignup handles POST /user/signup
func (h *Handler) HandleSignup(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	if !h.decode(w, r, &req, true) {
		return
	}

	session, err := h.service.Signup(r.Context(), authsvc.SignupInput{
		Email:            req.Email,
		Password:         req.Password,
		Name:             req.Name,
		OrganizationName: req.OrganizationName,
		Device:           req.Device,
	})
	if err != nil {
		handlers.HandleServiceError(w, err, h.logger)
		return
	}
	h.writeSession(w, http.StatusCreated, session)
}

// HandleToken handles POST /api/token. The refresh token is read from the
// X-Refresh-Token header, falling back to the body.
func (h *Handler) HandleToken(w http.ResponseWriter, r *http.Request) {
	var req TokenRequest
	if !h.decode(w, r, &req, false) {
		return
	}

	token := strings.TrimSpace(r.Header.Get(RefreshTokenHeader))
	if token == "" {
		token = strings.TrimSpace(req.RefreshToken)
	}
	if token == "" {
		_ = utils.WriteBadRequest(w, "Validation failed", map[string]interface{}{
			"refreshToken": "refreshToken is required",
		})
		return
	}

	session, err := h.service.Exchange(r.Context(), token, req.Device)
	if err != nil {
		handlers.HandleServiceError(w, err, h.logger)
		return
	}
	h.writeSession(w, http.StatusOK, session)
}

// HandleLogout handles POST /api/auth/logout. Must run behind RequireAuth.
func (h *Handler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	member := middleware.GetMemberFromContext(ctx)
	if member == nil {
		_ = utils.WriteUnauthorized(w, "Authentication required")
		return
	}

	var req LogoutRequest
	if !h.decode(w, r, &req, false) {
		return
	}

	token := strings.TrimSpace(req.RefreshToken)
	if token == "" {
		token = strings.TrimSpace(r.Header.Get(RefreshTokenHeader))
	}

	if err := h.service.Logout(ctx, member, token, req.Everywhere); err != nil {
		handlers.HandleServiceError(w, err, h.logger)
		return
	}

	h.logger.Info("member logged out",
		zap.String("request_id", middleware.GetRequestIDFromContext(ctx)),
		zap.String("member_id", member.ID.String()),
		zap.Bool("everywhere", req.Everywhere))
	utils.WriteNoContent(w)
}

// HandleSessions handles GET /api/auth/sessions
func (h *Handler) HandleSessions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	member := middleware.GetMemberFromContext(ctx)
	if member == nil {
		_ = utils.WriteUnauthorized(w, "Authentication required")
		return
	}

	tokens, err := h.service.Sessions(ctx, member)
	if err != nil {
		handlers.HandleServiceError(w, err, h.logger)
		return
	}

	views := make([]SessionView, 0, len(tokens))
	for _, t := range tokens {
		views = append(views, SessionView{
			ID:         t.ID,
			Device:     t.DeviceName(),
			UseCount:   t.UseCount,
			CreatedAt:  t.CreatedAt,
			LastUsedAt: t.UpdatedAt,
			ExpiresAt:  t.ExpiresAt(h.retention),
		})
	}
	_ = utils.WriteOK(w, views)
}

// HandleRevokeDevice handles DELETE /api/auth/sessions/devices/{device}
func (h *Handler) HandleRevokeDevice(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	member := middleware.GetMemberFromContext(ctx)
	if member == nil {
		_ = utils.WriteUnauthorized(w, "Authentication required")
		return
	}

	device, err := url.PathUnescape(chi.URLParam(r, "device"))
	if err != nil {
		_ = utils.WriteBadRequest(w, "Invalid device", nil)
		return
	}

	if _, err := h.service.RevokeDevice(ctx, member, device); err != nil {
		handlers.HandleServiceError(w, err, h.logger)
		return
	}
	utils.WriteNoContent(w)
}

// decode reads and validates the body into dst, writing a 400 on failure.
// An empty body is accepted unless required is set.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst interface{}, required bool) bool {
	if err := utils.DecodeJSON(r, dst); err != nil {
		if !required && errors.Is(err, utils.ErrEmptyBody) {
			return true
		}
		_ = utils.WriteBadRequest(w, err.Error(), nil)
		return false
	}
	if err := utils.ValidateStruct(dst); err != nil {
		handlers.HandleValidationError(w, err, h.logger)
		return false
	}
	return true
}

func (h *Handler) writeSession(w http.ResponseWriter, status int, session *authsvc.Session) {
	w.Header().Set(AuthorizationHeader, session.AccessToken)
	w.Header().Set(RefreshTokenHeader, session.RefreshToken)
	w.Header().Set("Cache-Control", "no-store")

	_ = utils.WriteJSON(w, status, utils.SuccessResponse{Data: SessionResponse{
		Token:        session.AccessToken,
		RefreshToken: session.RefreshToken,
		ExpiresIn:    int64(session.ExpiresIn / time.Second),
		Member:       session.Member,
	}})
}
