package auth

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bluewing/auth-core/internal/observability"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	// Issuer is the iss claim of every token this service issues
	Issuer = "Bluewing"

	// BearerPrefix precedes the token in the Authorization header
	BearerPrefix = "Bearer "

	// DefaultJWTValidity is the lifetime of an access token
	DefaultJWTValidity = 15 * time.Minute

	base64KeyPrefix = "base64:"

	// expiryLeeway makes exp inclusive at the one second precision of
	// NumericDate: a token is still valid at exactly its exp
	expiryLeeway = time.Second
)

var (
	// ErrInvalidToken is returned for any access token that fails verification
	ErrInvalidToken = errors.New("invalid token")

	// ErrMissingBearer is returned when the header lacks the Bearer prefix
	ErrMissingBearer = errors.New("authorization header is not a bearer token")

	// ErrMissingSigningKey is returned when no signing key is configured
	ErrMissingSigningKey = errors.New("jwt signing key is required")
)

// Claims are the access token claims
type Claims struct {
	jwt.RegisteredClaims
	Org string `json:"org,omitempty"`
}

// MemberID parses the subject
func (c *Claims) MemberID() (uuid.UUID, error) {
	return uuid.Parse(c.Subject)
}

// OrganizationID parses the org claim
func (c *Claims) OrganizationID() (uuid.UUID, error) {
	return uuid.Parse(c.Org)
}

// JWTConfig configures a JWTManager
type JWTConfig struct {
	// SigningKey is the HMAC secret, raw or prefixed with "base64:"
	SigningKey string
	Audience   string
	Validity   time.Duration
	Now        func() time.Time
}

// JWTManager issues and verifies HS256 access tokens
type JWTManager struct {
	key      []byte
	audience string
	validity time.Duration
	now      func() time.Time
	parser   *jwt.Parser
	metrics  *observability.Metrics
}

// DecodeSigningKey returns the key bytes, decoding a "base64:" prefixed value
func DecodeSigningKey(raw string) ([]byte, error) {
	if raw == "" {
		return nil, ErrMissingSigningKey
	}
	if !strings.HasPrefix(raw, base64KeyPrefix) {
		return []byte(raw), nil
	}

	key, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(raw, base64KeyPrefix))
	if err != nil {
		return nil, fmt.Errorf("failed to decode base64 signing key: %w", err)
	}
	if len(key) == 0 {
		return nil, ErrMissingSigningKey
	}
	return key, nil
}

// NewJWTManager creates a new JWTManager
func NewJWTManager(cfg JWTConfig, metrics *observability.Metrics) (*JWTManager, error) {
	key, err := DecodeSigningKey(cfg.SigningKey)
	if err != nil {
		return nil, err
	}
	if cfg.Audience == "" {
		return nil, errors.New("jwt audience is required")
	}
	if cfg.Validity <= 0 {
		cfg.Validity = DefaultJWTValidity
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	m := &JWTManager{
		key:      key,
		audience: cfg.Audience,
		validity: cfg.Validity,
		now:      cfg.Now,
		metrics:  metrics,
	}
	m.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(Issuer),
		jwt.WithAudience(cfg.Audience),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(cfg.Now),
		jwt.WithLeeway(expiryLeeway),
		jwt.WithStrictDecoding(),
	)
	return m, nil
}

// Validity returns the access token lifetime
func (m *JWTManager) Validity() time.Duration {
	return m.validity
}

// BuildJWTFor issues a token for p and returns it with the Bearer prefix
func (m *JWTManager) BuildJWTFor(p Principal) (string, error) {
	subject := p.AuthIdentifier()
	if subject == "" {
		return "", errors.New("principal has no identifier")
	}

	now := m.now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    Issuer,
			Subject:   subject,
			Audience:  jwt.ClaimStrings{m.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.validity)),
		},
		Org: p.TenantID().String(),
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	m.metrics.JWTIssued()
	return BearerPrefix + token, nil
}

// IsJWTVerified reports whether header carries a token with a valid
// signature, algorithm, issuer, audience and time window
func (m *JWTManager) IsJWTVerified(header string) bool {
	_, err := m.Verify(header)
	return err == nil
}

// JWTFromHeader strips the Bearer prefix and decodes the claims without
// checking the signature. Call it only after IsJWTVerified.
func (m *JWTManager) JWTFromHeader(header string) (*Claims, error) {
	raw, err := stripBearer(header)
	if err != nil {
		return nil, err
	}

	claims := &Claims{}
	if _, _, err := m.parser.ParseUnverified(raw, claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return claims, nil
}

// Verify checks header and returns its claims. Every failure is ErrInvalidToken.
func (m *JWTManager) Verify(header string) (*Claims, error) {
	raw, err := stripBearer(header)
	if err != nil {
		m.metrics.JWTVerified("invalid")
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims := &Claims{}
	token, err := m.parser.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		return m.key, nil
	})
	if err != nil || !token.Valid {
		m.metrics.JWTVerified("invalid")
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		m.metrics.JWTVerified("invalid")
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}

	m.metrics.JWTVerified("ok")
	return claims, nil
}

func stripBearer(header string) (string, error) {
	if !strings.HasPrefix(header, BearerPrefix) {
		return "", ErrMissingBearer
	}
	raw := strings.TrimSpace(strings.TrimPrefix(header, BearerPrefix))
	if raw == "" {
		return "", ErrMissingBearer
	}
	return raw, nil
}
