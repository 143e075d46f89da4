package middleware

import (
	"context"

	"github.com/bluewing/auth-core/models"
	"github.com/bluewing/auth-core/tenancy"
)

// Context key type to avoid collisions
type contextKey string

const (
	// RequestIDKey is the context key for request ID
	RequestIDKey contextKey = "request_id"

	// MemberKey is the context key for the authenticated member
	MemberKey contextKey = "member"
)

// GetRequestIDFromContext retrieves the request ID from context
func GetRequestIDFromContext(ctx context.Context) string {
	if val := ctx.Value(RequestIDKey); val != nil {
		if requestID, ok := val.(string); ok {
			return requestID
		}
	}
	return ""
}

// WithRequestID adds a request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// GetMemberFromContext retrieves the authenticated member, nil when the
// request did not pass RequireAuth
func GetMemberFromContext(ctx context.Context) *models.Member {
	if val := ctx.Value(MemberKey); val != nil {
		if member, ok := val.(*models.Member); ok {
			return member
		}
	}
	return nil
}

// WithMember adds the authenticated member and its tenancy scope to the context
func WithMember(ctx context.Context, member *models.Member) context.Context {
	ctx = context.WithValue(ctx, MemberKey, member)
	return tenancy.WithScope(ctx, tenancy.ForOrganization(member.OrganizationID))
}

// GetScopeFromContext returns the scope of the authenticated member. The
// zero Scope is returned otherwise, which every repository rejects.
func GetScopeFromContext(ctx context.Context) tenancy.Scope {
	scope, _ := tenancy.FromContext(ctx)
	return scope
}
