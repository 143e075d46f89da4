package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/bluewing/auth-core/models"
	"github.com/bluewing/auth-core/tenancy"
	"github.com/google/uuid"
)

var (
	// ErrNotFound is wrapped by every lookup that matches no row
	ErrNotFound = errors.New("record not found")

	// ErrDuplicate is wrapped when an insert violates a unique constraint
	ErrDuplicate = errors.New("duplicate record")
)

// TransactionManager manages database transactions
type TransactionManager interface {
	// Begin starts a new transaction
	Begin(ctx context.Context) (Transaction, error)

	// InTransaction executes a function within a transaction.
	// Commits if fn succeeds, rolls back on error. Repositories called with the
	// ctx passed to fn run inside the transaction.
	InTransaction(ctx context.Context, fn func(ctx context.Context, tx Transaction) error) error
}

// Transaction represents a database transaction
type Transaction interface {
	Commit() error
	Rollback() error
	Context() context.Context
}

// OrganizationRepository handles organization data operations.
// Organizations are the tenants themselves and take no scope.
type OrganizationRepository interface {
	Create(ctx context.Context, org *models.Organization) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Organization, error)
	GetBySlug(ctx context.Context, slug string) (*models.Organization, error)
	List(ctx context.Context, limit, offset int) ([]*models.Organization, error)
	Update(ctx context.Context, org *models.Organization) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// UserRepository handles user data operations. Users are global.
type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)

	// GetByEmail looks up a normalized email address
	GetByEmail(ctx context.Context, email string) (*models.User, error)

	Update(ctx context.Context, user *models.User) error
}

// MemberRepository handles organization memberships
type MemberRepository interface {
	Create(ctx context.Context, scope tenancy.Scope, member *models.Member) error
	GetByID(ctx context.Context, scope tenancy.Scope, id uuid.UUID) (*models.Member, error)

	// ListByUser returns the user's memberships visible to scope, oldest first.
	// Login resolves memberships with tenancy.Unscoped.
	ListByUser(ctx context.Context, scope tenancy.Scope, userID uuid.UUID) ([]*models.Member, error)

	List(ctx context.Context, scope tenancy.Scope, limit, offset int) ([]*models.Member, error)
	Delete(ctx context.Context, scope tenancy.Scope, id uuid.UUID) error
}

// RefreshTokenRepository persists refresh token records
type RefreshTokenRepository interface {
	// Create inserts a token. A token string collision wraps ErrDuplicate.
	Create(ctx context.Context, scope tenancy.Scope, token *models.RefreshToken) error

	// GetByToken is a pure lookup
	GetByToken(ctx context.Context, scope tenancy.Scope, token string) (*models.RefreshToken, error)

	// Use atomically increments use_count and sets updated_at to now on a
	// token that is not rotated and whose updated_at is not before notBefore,
	// returning the updated row
	Use(ctx context.Context, scope tenancy.Scope, token string, now, notBefore time.Time) (*models.RefreshToken, error)

	// MarkRotated stamps rotated_at (and updated_at) on a live token
	MarkRotated(ctx context.Context, scope tenancy.Scope, token string, now time.Time) (int64, error)

	// ListByMember returns the member's unrotated tokens updated at or after notBefore
	ListByMember(ctx context.Context, scope tenancy.Scope, memberID uuid.UUID, notBefore time.Time) ([]*models.RefreshToken, error)

	DeleteByToken(ctx context.Context, scope tenancy.Scope, token string) (int64, error)
	DeleteByMember(ctx context.Context, scope tenancy.Scope, memberID uuid.UUID) (int64, error)
	DeleteByDevice(ctx context.Context, scope tenancy.Scope, memberID uuid.UUID, device string) (int64, error)

	// DeleteUpdatedBefore removes tokens whose updated_at is before cutoff
	DeleteUpdatedBefore(ctx context.Context, scope tenancy.Scope, cutoff time.Time) (int64, error)
}

// LocationRepository handles tenant-owned locations
type LocationRepository interface {
	Create(ctx context.Context, scope tenancy.Scope, location *models.Location) error
	GetByID(ctx context.Context, scope tenancy.Scope, id uuid.UUID) (*models.Location, error)
	List(ctx context.Context, scope tenancy.Scope, limit, offset int) ([]*models.Location, error)
	Delete(ctx context.Context, scope tenancy.Scope, id uuid.UUID) error
}

// AuditFilter narrows an audit log listing. Zero fields are ignored.
type AuditFilter struct {
	MemberID  *uuid.UUID
	Action    models.AuditAction
	RequestID string
	Start     time.Time
	End       time.Time
	Limit     int
	Offset    int
}

// AuditRepository handles audit log data operations
type AuditRepository interface {
	Insert(ctx context.Context, log *models.AuditLog) error
	GetByID(ctx context.Context, scope tenancy.Scope, id uuid.UUID) (*models.AuditLog, error)
	List(ctx context.Context, scope tenancy.Scope, filter AuditFilter) ([]*models.AuditLog, error)
}

// Repositories aggregates all repository interfaces
type Repositories struct {
	Organizations OrganizationRepository
	Users         UserRepository
	Members       MemberRepository
	RefreshTokens RefreshTokenRepository
	Locations     LocationRepository
	AuditLogs     AuditRepository
}
