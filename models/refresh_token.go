package models

import (
	"time"

	"github.com/google/uuid"
)

// RefreshToken is a long-lived opaque credential for one member session.
// UpdatedAt is refreshed on every use; the token expires once UpdatedAt falls
// behind the retention window.
type RefreshToken struct {
	ID             uuid.UUID `json:"id" db:"id"`
	OrganizationID uuid.UUID `json:"organization_id" db:"organization_id"`
	MemberID       uuid.UUID `json:"member_id" db:"member_id"`
	Token          string    `json:"-" db:"token"`
	Device         *string   `json:"device,omitempty" db:"device"`
	UseCount       int       `json:"use_count" db:"use_count"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`

	// RotatedAt is set when the token was exchanged for a successor. The
	// row is kept so a later presentation can be recognized as replay.
	RotatedAt *time.Time `json:"-" db:"rotated_at"`
}

// TableName returns the table name for the RefreshToken model
func (RefreshToken) TableName() string {
	return "refresh_tokens"
}

// NewRefreshToken creates an unused refresh token record
func NewRefreshToken(orgID, memberID uuid.UUID, token string, device *string) *RefreshToken {
	now := time.Now()
	return &RefreshToken{
		ID:             uuid.New(),
		OrganizationID: orgID,
		MemberID:       memberID,
		Token:          token,
		Device:         device,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func (t *RefreshToken) TenantID() uuid.UUID {
	return t.OrganizationID
}

func (t *RefreshToken) AssignTenant(orgID uuid.UUID) {
	t.OrganizationID = orgID
}

// ExpiresAt returns the instant after which the token is no longer redeemable
func (t *RefreshToken) ExpiresAt(retention time.Duration) time.Time {
	return t.UpdatedAt.Add(retention)
}

// IsExpired reports whether the token fell out of the retention window at now
func (t *RefreshToken) IsExpired(now time.Time, retention time.Duration) bool {
	return t.UpdatedAt.Before(now.Add(-retention))
}

// IsRotated reports whether the token was already exchanged for a successor
func (t *RefreshToken) IsRotated() bool {
	return t.RotatedAt != nil
}

// DeviceName returns the device label or an empty string
func (t *RefreshToken) DeviceName() string {
	if t.Device == nil {
		return ""
	}
	return *t.Device
}
