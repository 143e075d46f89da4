package locations

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/bluewing/auth-core/internal/geometry"
	"github.com/bluewing/auth-core/models"
	"github.com/bluewing/auth-core/repositories"
	"github.com/bluewing/auth-core/services"
	"github.com/bluewing/auth-core/services/audit"
	"github.com/bluewing/auth-core/tenancy"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// CreateInput describes a new location. Exactly one geometry field is set.
type CreateInput struct {
	Name    string
	WKT     string
	GeoJSON json.RawMessage
	EWKB    string // hex
	SRID    uint32 // applied when the geometry carries none
}

// Service manages an organization's locations
type Service struct {
	repo     repositories.LocationRepository
	recorder audit.Recorder
	logger   *zap.Logger
}

// NewService creates a new location Service
func NewService(repo repositories.LocationRepository, recorder audit.Recorder, logger *zap.Logger) *Service {
	if recorder == nil {
		recorder = audit.NopRecorder{}
	}
	return &Service{repo: repo, recorder: recorder, logger: logger}
}

// ParsePosition decodes the single geometry given in input
func ParsePosition(input CreateInput) (geometry.Point, error) {
	var (
		p   geometry.Point
		err error
		n   int
	)
	if input.WKT != "" {
		n++
		p, err = geometry.ParseWKT(input.WKT)
	}
	if len(input.GeoJSON) > 0 {
		n++
		p, err = geometry.ParseGeoJSON(input.GeoJSON)
	}
	if input.EWKB != "" {
		n++
		p, err = geometry.DecodeHex(input.EWKB)
	}

	switch {
	case n == 0:
		return geometry.Point{}, services.ErrInvalidInput.WithDetail("position", "one of wkt, geojson or ewkb is required")
	case n > 1:
		return geometry.Point{}, services.ErrInvalidInput.WithDetail("position", "only one of wkt, geojson or ewkb may be set")
	case err != nil:
		return geometry.Point{}, services.ErrInvalidGeometry.Wrap(err).WithDetail("reason", err.Error())
	}

	if p.SRID == 0 && input.SRID != 0 {
		p = p.WithSRID(input.SRID)
	}
	return p, nil
}

// Create stores a new location for member's organization
func (s *Service) Create(ctx context.Context, member *models.Member, input CreateInput) (*models.Location, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, services.ErrInvalidInput.WithDetail("name", "required")
	}

	position, err := ParsePosition(input)
	if err != nil {
		return nil, err
	}

	location := models.NewLocation(member.OrganizationID, name, position)
	if err := s.repo.Create(ctx, scopeOf(member), location); err != nil {
		return nil, services.ErrDatabaseError.Wrap(err)
	}

	s.logger.Debug("location created",
		zap.String("location_id", location.ID.String()),
		zap.String("org_id", location.OrganizationID.String()))
	s.record(ctx, audit.LocationCreatedEvent(member, location))
	return location, nil
}

// Get returns one of member's organization's locations
func (s *Service) Get(ctx context.Context, member *models.Member, id uuid.UUID) (*models.Location, error) {
	location, err := s.repo.GetByID(ctx, scopeOf(member), id)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, services.ErrLocationNotFound
	}
	if err != nil {
		return nil, mapReadError(err)
	}
	return location, nil
}

// List returns a page of member's organization's locations
func (s *Service) List(ctx context.Context, member *models.Member, limit, offset int) ([]*models.Location, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}

	locations, err := s.repo.List(ctx, scopeOf(member), limit, offset)
	if err != nil {
		return nil, mapReadError(err)
	}
	return locations, nil
}

// Delete removes one of member's organization's locations
func (s *Service) Delete(ctx context.Context, member *models.Member, id uuid.UUID) error {
	err := s.repo.Delete(ctx, scopeOf(member), id)
	if errors.Is(err, repositories.ErrNotFound) {
		return services.ErrLocationNotFound
	}
	if err != nil {
		return services.ErrDatabaseError.Wrap(err)
	}

	s.record(ctx, audit.LocationDeletedEvent(member, id))
	return nil
}

func scopeOf(member *models.Member) tenancy.Scope {
	return tenancy.ForOrganization(member.OrganizationID)
}

// mapReadError reports a corrupt stored geometry as a data integrity error
func mapReadError(err error) error {
	if geometry.IsDecodeError(err) {
		return services.ErrInvalidGeometry.Wrap(err)
	}
	return services.ErrDatabaseError.Wrap(err)
}

func (s *Service) record(ctx context.Context, log *models.AuditLog) {
	if err := s.recorder.Record(ctx, log); err != nil {
		s.logger.Warn("failed to record audit event",
			zap.String("action", string(log.Action)),
			zap.Error(err))
	}
}
