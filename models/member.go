package models

import (
	"time"

	"github.com/google/uuid"
)

// UserRole represents the role of a member within an organization
type UserRole string

const (
	RoleAdmin  UserRole = "admin"
	RoleMember UserRole = "member"
	RoleViewer UserRole = "viewer"
)

// Member binds a user to exactly one organization. It is the authenticated
// principal: JWT subjects and refresh tokens reference the member id.
type Member struct {
	ID             uuid.UUID `json:"id" db:"id"`
	UserID         uuid.UUID `json:"user_id" db:"user_id"`
	OrganizationID uuid.UUID `json:"organization_id" db:"organization_id"`
	Roles          []string  `json:"roles" db:"roles"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`

	User *User `json:"user,omitempty" db:"-"`
}

// TableName returns the table name for the Member model
func (Member) TableName() string {
	return "members"
}

// NewMember creates a new Member instance
func NewMember(userID, orgID uuid.UUID, roles ...UserRole) *Member {
	now := time.Now()
	m := &Member{
		ID:             uuid.New(),
		UserID:         userID,
		OrganizationID: orgID,
		Roles:          make([]string, 0, len(roles)),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	for _, r := range roles {
		m.Roles = append(m.Roles, string(r))
	}
	return m
}

// AuthIdentifier is the JWT subject
func (m *Member) AuthIdentifier() string {
	return m.ID.String()
}

func (m *Member) TenantID() uuid.UUID {
	return m.OrganizationID
}

func (m *Member) AssignTenant(orgID uuid.UUID) {
	m.OrganizationID = orgID
}

// HasRole reports whether the member holds role
func (m *Member) HasRole(role UserRole) bool {
	for _, r := range m.Roles {
		if r == string(role) {
			return true
		}
	}
	return false
}

// IsAdmin returns true if the member has admin role
func (m *Member) IsAdmin() bool {
	return m.HasRole(RoleAdmin)
}
