package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bluewing/auth-core/internal/observability"
	"github.com/bluewing/auth-core/models"
	"github.com/bluewing/auth-core/repositories"
	"github.com/bluewing/auth-core/services"
	"github.com/bluewing/auth-core/services/audit"
	"github.com/bluewing/auth-core/tenancy"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Session is the pair of credentials handed to a client after login,
// signup or token exchange
type Session struct {
	AccessToken  string // includes the Bearer prefix
	RefreshToken string
	ExpiresIn    time.Duration
	Member       *models.Member
}

// LoginInput carries login credentials
type LoginInput struct {
	Email          string
	Password       string
	OrganizationID *uuid.UUID
	Device         *string
}

// SignupInput carries the data for a new organization and its first member
type SignupInput struct {
	Email            string
	Password         string
	Name             string
	OrganizationName string
	Device           *string
}

// ServiceConfig holds auth service options
type ServiceConfig struct {
	// RotateRefreshTokens makes refresh tokens single use
	RotateRefreshTokens bool
	// MemberCacheTTL bounds how long Authenticate reuses a loaded member; 0 disables the cache
	MemberCacheTTL  time.Duration
	MemberCacheSize int
}

// Service implements login, signup, token exchange, logout and request
// authentication on top of the token managers
type Service struct {
	txMgr     repositories.TransactionManager
	orgs      repositories.OrganizationRepository
	users     repositories.UserRepository
	members   repositories.MemberRepository
	jwt       *JWTManager
	refresh   *RefreshTokenManager
	passwords *PasswordHasher
	generator *TokenGenerator
	recorder  audit.Recorder
	logger    *zap.Logger
	metrics   *observability.Metrics
	cache     *MemberCache
	cfg       ServiceConfig
}

// NewService creates a new auth Service
func NewService(
	repos *repositories.Repositories,
	txMgr repositories.TransactionManager,
	jwtManager *JWTManager,
	refresh *RefreshTokenManager,
	passwords *PasswordHasher,
	recorder audit.Recorder,
	logger *zap.Logger,
	metrics *observability.Metrics,
	cfg ServiceConfig,
) *Service {
	if recorder == nil {
		recorder = audit.NopRecorder{}
	}
	var cache *MemberCache
	if cfg.MemberCacheTTL > 0 {
		cache = NewMemberCache(cfg.MemberCacheSize, cfg.MemberCacheTTL, nil)
	}
	return &Service{
		txMgr:     txMgr,
		orgs:      repos.Organizations,
		users:     repos.Users,
		members:   repos.Members,
		jwt:       jwtManager,
		refresh:   refresh,
		passwords: passwords,
		generator: NewTokenGenerator(nil),
		recorder:  recorder,
		logger:    logger,
		metrics:   metrics,
		cache:     cache,
		cfg:       cfg,
	}
}

// Login verifies credentials and opens a session for one of the user's
// memberships: the requested organization, otherwise the oldest one.
// Every credential failure is ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, input LoginInput) (*Session, error) {
	email := models.NormalizeEmail(input.Email)

	// Users are global, the lookup is not tenant scoped.
	user, err := s.users.GetByEmail(ctx, email)
	if errors.Is(err, repositories.ErrNotFound) {
		s.passwords.VerifyDummy(input.Password)
		return nil, s.loginFailed(ctx, input, "unknown email")
	}
	if err != nil {
		return nil, services.ErrDatabaseError.Wrap(err)
	}

	if err := s.passwords.Verify(user.PasswordHash, input.Password); err != nil {
		return nil, s.loginFailed(ctx, input, "password mismatch")
	}

	// Membership resolution precedes authentication of any organization.
	memberships, err := s.members.ListByUser(ctx, tenancy.Unscoped(), user.ID)
	if err != nil {
		return nil, services.ErrDatabaseError.Wrap(err)
	}

	member := pickMembership(memberships, input.OrganizationID)
	if member == nil {
		return nil, s.loginFailed(ctx, input, "no membership")
	}
	member.User = user

	session, err := s.issue(ctx, member, input.Device)
	if err != nil {
		return nil, err
	}

	s.metrics.LoginAttempt("ok")
	s.record(ctx, audit.LoginEvent(member))
	s.logger.Info("member logged in",
		zap.String("member_id", member.ID.String()),
		zap.String("org_id", member.OrganizationID.String()))
	return session, nil
}

func pickMembership(memberships []*models.Member, orgID *uuid.UUID) *models.Member {
	if len(memberships) == 0 {
		return nil
	}
	if orgID == nil {
		return memberships[0]
	}
	for _, m := range memberships {
		if m.OrganizationID == *orgID {
			return m
		}
	}
	return nil
}

func (s *Service) loginFailed(ctx context.Context, input LoginInput, reason string) error {
	s.metrics.LoginAttempt("failed")
	s.logger.Warn("login failed", zap.String("reason", reason))

	// Without a target organization there is no tenant to file the entry under.
	if input.OrganizationID != nil {
		s.record(ctx, audit.LoginFailedEvent(*input.OrganizationID, models.NormalizeEmail(input.Email)))
	}
	return services.ErrInvalidCredentials
}

// Signup creates an organization, its first user and an admin membership,
// then opens a session for the new member
func (s *Service) Signup(ctx context.Context, input SignupInput) (*Session, error) {
	email := models.NormalizeEmail(input.Email)
	if !strings.Contains(email, "@") {
		return nil, services.ErrInvalidEmail
	}
	if strings.TrimSpace(input.OrganizationName) == "" {
		return nil, services.ErrInvalidInput.WithDetail("organizationName", "required")
	}

	hash, err := s.passwords.Hash(input.Password)
	if errors.Is(err, ErrPasswordTooShort) || errors.Is(err, ErrPasswordTooLong) {
		return nil, services.ErrInvalidPassword.Wrap(err)
	}
	if err != nil {
		return nil, services.ErrInternal.Wrap(err)
	}

	var org *models.Organization
	session, err := services.WithTransactionResult(ctx, s.txMgr, func(ctx context.Context, tx repositories.Transaction) (*Session, error) {
		if _, err := s.users.GetByEmail(ctx, email); err == nil {
			return nil, services.ErrDuplicateEmail
		} else if !errors.Is(err, repositories.ErrNotFound) {
			return nil, services.ErrDatabaseError.Wrap(err)
		}

		slug, err := s.availableSlug(ctx, input.OrganizationName)
		if err != nil {
			return nil, err
		}

		org = models.NewOrganization(strings.TrimSpace(input.OrganizationName), slug)
		if err := s.orgs.Create(ctx, org); err != nil {
			if errors.Is(err, repositories.ErrDuplicate) {
				return nil, services.ErrDuplicateSlug
			}
			return nil, services.ErrDatabaseError.Wrap(err)
		}

		user := models.NewUser(email, strings.TrimSpace(input.Name), hash)
		if err := s.users.Create(ctx, user); err != nil {
			if errors.Is(err, repositories.ErrDuplicate) {
				return nil, services.ErrDuplicateEmail
			}
			return nil, services.ErrDatabaseError.Wrap(err)
		}

		member := models.NewMember(user.ID, org.ID, models.RoleAdmin)
		if err := s.members.Create(ctx, tenancy.ForOrganization(org.ID), member); err != nil {
			return nil, services.ErrDatabaseError.Wrap(err)
		}
		member.User = user

		return s.issue(ctx, member, input.Device)
	})
	if err != nil {
		return nil, err
	}

	s.record(ctx, audit.SignupEvent(session.Member, org))
	s.logger.Info("organization created",
		zap.String("org_id", org.ID.String()),
		zap.String("slug", org.Slug))
	return session, nil
}

func (s *Service) availableSlug(ctx context.Context, name string) (string, error) {
	base := models.Slugify(name)
	slug := base
	for attempt := 0; attempt < maxIssueAttempts; attempt++ {
		_, err := s.orgs.GetBySlug(ctx, slug)
		if errors.Is(err, repositories.ErrNotFound) {
			return slug, nil
		}
		if err != nil {
			return "", services.ErrDatabaseError.Wrap(err)
		}

		suffix, err := s.generator.Generate(6, "", false)
		if err != nil {
			return "", services.ErrTokenIssuance.Wrap(err)
		}
		slug = base + "-" + suffix
	}
	return "", services.ErrDuplicateSlug
}

// Exchange redeems a refresh token for a new access token. With rotation
// on, the presented token is retired and replaced in the same transaction;
// presenting a retired token again revokes every session of its member.
func (s *Service) Exchange(ctx context.Context, refreshToken string, device *string) (*Session, error) {
	var replayed *models.RefreshToken
	var redeemed *models.RefreshToken

	session, err := services.WithTransactionResult(ctx, s.txMgr, func(ctx context.Context, tx repositories.Transaction) (*Session, error) {
		record, err := s.refresh.FindRefreshTokenForUse(ctx, refreshToken)
		if errors.Is(err, ErrRefreshTokenReplayed) {
			replayed = record
			return nil, services.ErrInvalidRefreshToken
		}
		if errors.Is(err, ErrRefreshTokenNotFound) {
			return nil, services.ErrInvalidRefreshToken
		}
		if err != nil {
			return nil, services.ErrDatabaseError.Wrap(err)
		}

		member, err := s.members.GetByID(ctx, tenancy.ForOrganization(record.OrganizationID), record.MemberID)
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, services.ErrInvalidRefreshToken
		}
		if err != nil {
			return nil, services.ErrDatabaseError.Wrap(err)
		}

		access, err := s.jwt.BuildJWTFor(member)
		if err != nil {
			return nil, services.ErrTokenIssuance.Wrap(err)
		}

		next := refreshToken
		if s.cfg.RotateRefreshTokens {
			if device == nil {
				device = record.Device
			}
			next, err = s.refresh.BuildRefreshTokenFor(ctx, member, device)
			if err != nil {
				return nil, services.ErrTokenIssuance.Wrap(err)
			}
			if err := s.refresh.RotateRefreshToken(ctx, refreshToken); err != nil {
				return nil, services.ErrDatabaseError.Wrap(err)
			}
		}

		redeemed = record
		return &Session{
			AccessToken:  access,
			RefreshToken: next,
			ExpiresIn:    s.jwt.Validity(),
			Member:       member,
		}, nil
	})

	if replayed != nil {
		s.revokeReplayed(ctx, replayed)
	}
	if err != nil {
		if services.IsUnauthorizedError(err) {
			s.logger.Warn("refresh token rejected")
		}
		return nil, err
	}

	s.record(ctx, audit.TokenRefreshedEvent(redeemed, s.cfg.RotateRefreshTokens))
	return session, nil
}

// revokeReplayed runs after the exchange transaction rolled back so the
// revocation is not undone with it
func (s *Service) revokeReplayed(ctx context.Context, token *models.RefreshToken) {
	owner := &models.Member{ID: token.MemberID, OrganizationID: token.OrganizationID}

	n, err := s.refresh.RevokeAllFor(ctx, owner)
	if err != nil {
		s.logger.Error("failed to revoke sessions after refresh token replay",
			zap.Error(err),
			zap.String("member_id", token.MemberID.String()))
		return
	}

	s.logger.Warn("refresh token replay detected, sessions revoked",
		zap.String("member_id", token.MemberID.String()),
		zap.String("org_id", token.OrganizationID.String()),
		zap.Int64("revoked", n))
	s.record(ctx, audit.TokenReplayedEvent(token, n))
}

// Logout revokes refreshToken, or every session of member when everywhere
// is set. Tokens of other members are left alone; the call still succeeds.
func (s *Service) Logout(ctx context.Context, member *models.Member, refreshToken string, everywhere bool) error {
	if everywhere {
		if _, err := s.refresh.RevokeAllFor(ctx, member); err != nil {
			return services.ErrDatabaseError.Wrap(err)
		}
		s.record(ctx, audit.LogoutEvent(member, true))
		return nil
	}

	if refreshToken != "" {
		record, err := s.refresh.FindRefreshToken(ctx, refreshToken)
		if err != nil {
			return services.ErrDatabaseError.Wrap(err)
		}
		if record != nil && record.MemberID != member.ID {
			s.logger.Warn("logout with another member's refresh token",
				zap.String("member_id", member.ID.String()))
			record = nil
		}
		if record != nil {
			if err := s.refresh.RevokeRefreshToken(ctx, refreshToken); err != nil {
				return services.ErrDatabaseError.Wrap(err)
			}
		}
	}

	s.record(ctx, audit.LogoutEvent(member, false))
	return nil
}

// Sessions lists member's active refresh sessions
func (s *Service) Sessions(ctx context.Context, member *models.Member) ([]*models.RefreshToken, error) {
	sessions, err := s.refresh.ListSessions(ctx, member)
	if err != nil {
		return nil, services.ErrDatabaseError.Wrap(err)
	}
	return sessions, nil
}

// RevokeDevice revokes member's sessions opened from device
func (s *Service) RevokeDevice(ctx context.Context, member *models.Member, device string) (int64, error) {
	if strings.TrimSpace(device) == "" {
		return 0, services.ErrInvalidInput.WithDetail("device", "required")
	}

	n, err := s.refresh.RevokeDevice(ctx, member, device)
	if err != nil {
		return 0, services.ErrDatabaseError.Wrap(err)
	}
	s.record(ctx, audit.SessionsRevokedEvent(member, device, n))
	return n, nil
}

// Authenticate resolves the member behind an Authorization header. The
// member is looked up within the organization named by the token, so a
// token can never reach another tenant's member.
func (s *Service) Authenticate(ctx context.Context, header string) (*models.Member, error) {
	claims, err := s.jwt.Verify(header)
	if err != nil {
		return nil, services.ErrInvalidToken
	}

	memberID, err := claims.MemberID()
	if err != nil {
		return nil, services.ErrInvalidToken
	}
	orgID, err := claims.OrganizationID()
	if err != nil {
		return nil, services.ErrInvalidToken
	}

	if s.cache != nil {
		if member := s.cache.Get(orgID, memberID); member != nil {
			return member, nil
		}
	}

	member, err := s.members.GetByID(ctx, tenancy.ForOrganization(orgID), memberID)
	if errors.Is(err, repositories.ErrNotFound) || errors.Is(err, tenancy.ErrCrossTenant) {
		return nil, services.ErrInvalidToken
	}
	if err != nil {
		return nil, services.ErrDatabaseError.Wrap(err)
	}

	if s.cache != nil {
		s.cache.Set(member)
	}
	return member, nil
}

// StartCacheCleanupWorker drops expired members every interval until ctx is
// done. It returns immediately when the cache is disabled.
func (s *Service) StartCacheCleanupWorker(ctx context.Context, interval time.Duration) {
	if s.cache == nil {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := s.cache.CleanupExpired(); n > 0 {
				s.logger.Debug("evicted expired members from cache", zap.Int("count", n))
			}
		case <-ctx.Done():
			return
		}
	}
}

func (s *Service) issue(ctx context.Context, member *models.Member, device *string) (*Session, error) {
	access, err := s.jwt.BuildJWTFor(member)
	if err != nil {
		return nil, services.ErrTokenIssuance.Wrap(err)
	}

	refresh, err := s.refresh.BuildRefreshTokenFor(ctx, member, device)
	if err != nil {
		return nil, services.ErrTokenIssuance.Wrap(fmt.Errorf("refresh token: %w", err))
	}

	return &Session{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    s.jwt.Validity(),
		Member:       member,
	}, nil
}

func (s *Service) record(ctx context.Context, log *models.AuditLog) {
	if err := s.recorder.Record(ctx, log); err != nil {
		s.logger.Warn("failed to record audit event",
			zap.String("action", string(log.Action)),
			zap.Error(err))
	}
}
