package models

import (
	"encoding/json"
	"time"

	"github.com/bluewing/auth-core/internal/geometry"
	"github.com/google/uuid"
)

// Location is a named point owned by an organization
type Location struct {
	ID             uuid.UUID      `json:"id" db:"id"`
	OrganizationID uuid.UUID      `json:"organization_id" db:"organization_id"`
	Name           string         `json:"name" db:"name"`
	Position       geometry.Point `json:"position" db:"position"` // GeoJSON in responses
	CreatedAt      time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at" db:"updated_at"`
}

// TableName returns the table name for the Location model
func (Location) TableName() string {
	return "locations"
}

// NewLocation creates a new Location instance
func NewLocation(orgID uuid.UUID, name string, position geometry.Point) *Location {
	now := time.Now()
	return &Location{
		ID:             uuid.New(),
		OrganizationID: orgID,
		Name:           name,
		Position:       position,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// MarshalJSON adds the position's SRID and EWKT next to the GeoJSON
// position, which has no SRID member
func (l Location) MarshalJSON() ([]byte, error) {
	type location Location
	return json.Marshal(struct {
		location
		SRID uint32 `json:"srid"`
		WKT  string `json:"wkt"`
	}{location(l), l.Position.SRID, l.Position.String()})
}

func (l *Location) TenantID() uuid.UUID {
	return l.OrganizationID
}

func (l *Location) AssignTenant(orgID uuid.UUID) {
	l.OrganizationID = orgID
}
