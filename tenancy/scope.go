// Package tenancy constrains data access to a single organization.
//
// Every repository method over a tenant-owned table takes a Scope. A Scope is
// either bound to one organization or explicitly unscoped; the zero value is
// neither and is rejected, so a caller that forgets to pass a scope fails
// closed instead of reading across tenants.
package tenancy

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Column is the foreign key every tenant-owned table carries
const Column = "organization_id"

var (
	// ErrMissingScope is returned when a zero Scope reaches a repository
	ErrMissingScope = errors.New("tenancy scope required")

	// ErrCrossTenant is returned when a row belongs to a different organization than the scope
	ErrCrossTenant = errors.New("cross-tenant access denied")
)

// Tenantable is implemented by every tenant-owned model
type Tenantable interface {
	TenantID() uuid.UUID
	AssignTenant(orgID uuid.UUID)
}

// Scope is the organization filter applied to tenant-owned data
type Scope struct {
	orgID    uuid.UUID
	unscoped bool
}

// ForOrganization returns a scope bound to orgID
func ForOrganization(orgID uuid.UUID) Scope {
	return Scope{orgID: orgID}
}

// Unscoped returns a scope that crosses tenants. Only system jobs and the
// pre-authentication credential lookup may use it.
func Unscoped() Scope {
	return Scope{unscoped: true}
}

// OrganizationID returns the bound organization, uuid.Nil when unscoped
func (s Scope) OrganizationID() uuid.UUID {
	return s.orgID
}

// IsUnscoped reports whether the scope was created with Unscoped
func (s Scope) IsUnscoped() bool {
	return s.unscoped
}

// Validate rejects the zero Scope
func (s Scope) Validate() error {
	if s.unscoped {
		return nil
	}
	if s.orgID == uuid.Nil {
		return ErrMissingScope
	}
	return nil
}

// Stamp prepares t for insertion: the organization is assigned when unset and
// must match the scope when set.
func (s Scope) Stamp(t Tenantable) error {
	if err := s.Validate(); err != nil {
		return err
	}

	current := t.TenantID()
	if s.unscoped {
		if current == uuid.Nil {
			return fmt.Errorf("%w: unscoped insert without organization", ErrMissingScope)
		}
		return nil
	}

	if current == uuid.Nil {
		t.AssignTenant(s.orgID)
		return nil
	}
	if current != s.orgID {
		return fmt.Errorf("%w: row organization %s, scope %s", ErrCrossTenant, current, s.orgID)
	}
	return nil
}

// Admit checks that a row read from storage belongs to the scope
func (s Scope) Admit(t Tenantable) error {
	if err := s.Validate(); err != nil {
		return err
	}
	if s.unscoped || t.TenantID() == s.orgID {
		return nil
	}
	return fmt.Errorf("%w: row organization %s, scope %s", ErrCrossTenant, t.TenantID(), s.orgID)
}

func (s Scope) String() string {
	switch {
	case s.unscoped:
		return "unscoped"
	case s.orgID == uuid.Nil:
		return "missing"
	default:
		return s.orgID.String()
	}
}

type scopeKey struct{}

// WithScope stores the request scope in ctx
func WithScope(ctx context.Context, s Scope) context.Context {
	return context.WithValue(ctx, scopeKey{}, s)
}

// FromContext returns the request scope. The second value is false when no
// principal has been authenticated; callers must then decide explicitly
// whether Unscoped is appropriate.
func FromContext(ctx context.Context) (Scope, bool) {
	s, ok := ctx.Value(scopeKey{}).(Scope)
	return s, ok
}
