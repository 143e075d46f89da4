package auth

import "github.com/google/uuid"

// Principal is the authenticated entity a token is issued for.
// models.Member implements it.
type Principal interface {
	// AuthIdentifier becomes the JWT subject and the refresh token owner
	AuthIdentifier() string

	// TenantID is the organization the principal belongs to
	TenantID() uuid.UUID
}

func principalID(p Principal) (uuid.UUID, error) {
	return uuid.Parse(p.AuthIdentifier())
}
