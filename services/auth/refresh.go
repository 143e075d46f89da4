package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bluewing/auth-core/internal/observability"
	"github.com/bluewing/auth-core/models"
	"github.com/bluewing/auth-core/repositories"
	"github.com/bluewing/auth-core/services"
	"github.com/bluewing/auth-core/tenancy"
	"go.uber.org/zap"
)

const (
	// DefaultRefreshTokenLength is the total length of a refresh token
	DefaultRefreshTokenLength = 64

	// DefaultRefreshTokenPrefix marks refresh tokens in logs and headers
	DefaultRefreshTokenPrefix = "refresh"

	// DefaultRefreshTokenRetention is the sliding window after the last use
	DefaultRefreshTokenRetention = 7 * 24 * time.Hour

	maxIssueAttempts = 3
)

// ErrRefreshTokenNotFound is returned when a token is absent or stale
var ErrRefreshTokenNotFound = services.NewDomainError(services.ErrorTypeNotFound, "refresh token not found", nil)

// ErrRefreshTokenReplayed is returned when a token that was already rotated
// is presented again
var ErrRefreshTokenReplayed = errors.New("refresh token already rotated")

// RefreshConfig configures a RefreshTokenManager
type RefreshConfig struct {
	Prefix    string
	Length    int
	Retention time.Duration
	Now       func() time.Time
}

// DefaultRefreshConfig returns the production defaults
func DefaultRefreshConfig() RefreshConfig {
	return RefreshConfig{
		Prefix:    DefaultRefreshTokenPrefix,
		Length:    DefaultRefreshTokenLength,
		Retention: DefaultRefreshTokenRetention,
		Now:       time.Now,
	}
}

// RefreshTokenManager issues, redeems and revokes refresh tokens.
//
// The token string is itself the credential, so lookups by token run
// unscoped; operations on a principal's sessions are scoped to its
// organization.
type RefreshTokenManager struct {
	repo      repositories.RefreshTokenRepository
	generator *TokenGenerator
	cfg       RefreshConfig
	logger    *zap.Logger
	metrics   *observability.Metrics
}

// NewRefreshTokenManager creates a new RefreshTokenManager
func NewRefreshTokenManager(
	repo repositories.RefreshTokenRepository,
	generator *TokenGenerator,
	cfg RefreshConfig,
	logger *zap.Logger,
	metrics *observability.Metrics,
) *RefreshTokenManager {
	if generator == nil {
		generator = NewTokenGenerator(nil)
	}
	if cfg.Length <= 0 {
		cfg.Length = DefaultRefreshTokenLength
	}
	if cfg.Retention <= 0 {
		cfg.Retention = DefaultRefreshTokenRetention
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &RefreshTokenManager{
		repo:      repo,
		generator: generator,
		cfg:       cfg,
		logger:    logger,
		metrics:   metrics,
	}
}

// Retention returns the sliding expiration window
func (m *RefreshTokenManager) Retention() time.Duration {
	return m.cfg.Retention
}

// BuildRefreshTokenFor issues and stores a new token for p
func (m *RefreshTokenManager) BuildRefreshTokenFor(ctx context.Context, p Principal, device *string) (string, error) {
	memberID, err := principalID(p)
	if err != nil {
		return "", fmt.Errorf("invalid principal identifier: %w", err)
	}
	scope := tenancy.ForOrganization(p.TenantID())

	for attempt := 1; attempt <= maxIssueAttempts; attempt++ {
		token, err := m.generator.Generate(m.cfg.Length, m.cfg.Prefix, true)
		if err != nil {
			return "", err
		}

		record := models.NewRefreshToken(p.TenantID(), memberID, token, device)
		now := m.cfg.Now()
		record.CreatedAt = now
		record.UpdatedAt = now

		err = m.repo.Create(ctx, scope, record)
		if err == nil {
			m.metrics.RefreshIssued()
			return token, nil
		}
		if !errors.Is(err, repositories.ErrDuplicate) {
			return "", fmt.Errorf("failed to store refresh token: %w", err)
		}

		m.logger.Warn("refresh token collision, regenerating",
			zap.Int("attempt", attempt),
			zap.String("member_id", memberID.String()))
	}

	return "", fmt.Errorf("failed to issue a unique refresh token after %d attempts", maxIssueAttempts)
}

// FindRefreshToken looks up a token without modifying it. Rotated tokens
// are returned too. It returns nil, nil when the token does not exist.
func (m *RefreshTokenManager) FindRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	if token == "" {
		return nil, nil
	}

	record, err := m.repo.GetByToken(ctx, tenancy.Unscoped(), token)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return record, nil
}

// FindRefreshTokenForUse redeems a token: the use count is incremented and
// the sliding window restarts. Absent or stale tokens are ErrRefreshTokenNotFound.
// A rotated token is returned along with ErrRefreshTokenReplayed.
func (m *RefreshTokenManager) FindRefreshTokenForUse(ctx context.Context, token string) (*models.RefreshToken, error) {
	if token == "" {
		m.metrics.RefreshRedeemed("not_found")
		return nil, ErrRefreshTokenNotFound
	}

	now := m.cfg.Now()
	record, err := m.repo.Use(ctx, tenancy.Unscoped(), token, now, now.Add(-m.cfg.Retention))
	if errors.Is(err, repositories.ErrNotFound) {
		return m.classifyMiss(ctx, token)
	}
	if err != nil {
		return nil, err
	}

	m.metrics.RefreshRedeemed("ok")
	return record, nil
}

func (m *RefreshTokenManager) classifyMiss(ctx context.Context, token string) (*models.RefreshToken, error) {
	record, err := m.repo.GetByToken(ctx, tenancy.Unscoped(), token)
	if errors.Is(err, repositories.ErrNotFound) {
		m.metrics.RefreshRedeemed("not_found")
		return nil, ErrRefreshTokenNotFound
	}
	if err != nil {
		return nil, err
	}
	if record.IsRotated() {
		m.metrics.RefreshRedeemed("replay")
		return record, ErrRefreshTokenReplayed
	}

	m.metrics.RefreshRedeemed("not_found")
	return nil, ErrRefreshTokenNotFound
}

// RotateRefreshToken retires a redeemed token in favor of its successor.
// The record stays until the sweep so replays can be detected.
func (m *RefreshTokenManager) RotateRefreshToken(ctx context.Context, token string) error {
	n, err := m.repo.MarkRotated(ctx, tenancy.Unscoped(), token, m.cfg.Now())
	if err != nil {
		return fmt.Errorf("failed to rotate refresh token: %w", err)
	}
	m.metrics.RefreshRevoked(n)
	return nil
}

// RevokeRefreshToken deletes a token. Revoking an unknown token is not an error.
func (m *RefreshTokenManager) RevokeRefreshToken(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}

	n, err := m.repo.DeleteByToken(ctx, tenancy.Unscoped(), token)
	if err != nil {
		return fmt.Errorf("failed to revoke refresh token: %w", err)
	}
	m.metrics.RefreshRevoked(n)
	return nil
}

// RevokeAllFor deletes every token of p
func (m *RefreshTokenManager) RevokeAllFor(ctx context.Context, p Principal) (int64, error) {
	memberID, err := principalID(p)
	if err != nil {
		return 0, fmt.Errorf("invalid principal identifier: %w", err)
	}

	n, err := m.repo.DeleteByMember(ctx, tenancy.ForOrganization(p.TenantID()), memberID)
	if err != nil {
		return 0, fmt.Errorf("failed to revoke refresh tokens: %w", err)
	}
	m.metrics.RefreshRevoked(n)
	return n, nil
}

// RevokeDevice deletes the tokens p holds for device
func (m *RefreshTokenManager) RevokeDevice(ctx context.Context, p Principal, device string) (int64, error) {
	memberID, err := principalID(p)
	if err != nil {
		return 0, fmt.Errorf("invalid principal identifier: %w", err)
	}

	n, err := m.repo.DeleteByDevice(ctx, tenancy.ForOrganization(p.TenantID()), memberID, device)
	if err != nil {
		return 0, fmt.Errorf("failed to revoke device tokens: %w", err)
	}
	m.metrics.RefreshRevoked(n)
	return n, nil
}

// ListSessions returns p's tokens that are still within the retention window
func (m *RefreshTokenManager) ListSessions(ctx context.Context, p Principal) ([]*models.RefreshToken, error) {
	memberID, err := principalID(p)
	if err != nil {
		return nil, fmt.Errorf("invalid principal identifier: %w", err)
	}

	notBefore := m.cfg.Now().Add(-m.cfg.Retention)
	return m.repo.ListByMember(ctx, tenancy.ForOrganization(p.TenantID()), memberID, notBefore)
}

// DeleteAllExpiredRefreshTokens removes every token whose last use is older
// than the retention window and returns how many were deleted
func (m *RefreshTokenManager) DeleteAllExpiredRefreshTokens(ctx context.Context) (int64, error) {
	cutoff := m.cfg.Now().Add(-m.cfg.Retention)

	n, err := m.repo.DeleteUpdatedBefore(ctx, tenancy.Unscoped(), cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired refresh tokens: %w", err)
	}

	if n == 0 {
		m.logger.Info("no expired refresh tokens to delete", zap.Time("cutoff", cutoff))
	} else {
		m.logger.Info("deleted expired refresh tokens", zap.Int64("count", n), zap.Time("cutoff", cutoff))
	}
	m.metrics.RefreshSwept(n)
	return n, nil
}
