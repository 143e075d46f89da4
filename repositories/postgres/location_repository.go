package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/bluewing/auth-core/models"
	"github.com/bluewing/auth-core/repositories"
	"github.com/bluewing/auth-core/tenancy"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// position is read back as hex EWKB, the text form of a PostGIS geometry
const locationColumns = `id, organization_id, name, position, created_at, updated_at`

// LocationRepository implements the repositories.LocationRepository interface
type LocationRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewLocationRepository creates a new location repository
func NewLocationRepository(db *DB, logger *zap.Logger) repositories.LocationRepository {
	return &LocationRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a location; the position is sent as hex EWKB
func (r *LocationRepository) Create(ctx context.Context, scope tenancy.Scope, location *models.Location) error {
	if err := scope.Stamp(location); err != nil {
		return err
	}

	query := `
		INSERT INTO locations (id, organization_id, name, position, created_at, updated_at)
		VALUES ($1, $2, $3, $4::geometry, $5, $6)
	`

	_, err := GetExecutor(ctx, r.db).ExecContext(ctx, query,
		location.ID,
		location.OrganizationID,
		location.Name,
		location.Position,
		location.CreatedAt,
		location.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create location: %w", err)
	}

	r.logger.Debug("location created",
		zap.String("id", location.ID.String()),
		zap.String("position", location.Position.String()))
	return nil
}

// GetByID retrieves a location by ID
func (r *LocationRepository) GetByID(ctx context.Context, scope tenancy.Scope, id uuid.UUID) (*models.Location, error) {
	query, args, err := tenancy.Select(locationColumns).From("locations").Where("id = ?", id).Build(scope)
	if err != nil {
		return nil, err
	}

	location, err := scanLocation(GetExecutor(ctx, r.db).QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound("location", id)
		}
		return nil, fmt.Errorf("failed to get location: %w", err)
	}

	if err := scope.Admit(location); err != nil {
		return nil, err
	}
	return location, nil
}

// List retrieves the organization's locations with pagination
func (r *LocationRepository) List(ctx context.Context, scope tenancy.Scope, limit, offset int) ([]*models.Location, error) {
	query, args, err := tenancy.Select(locationColumns).From("locations").
		OrderBy("created_at DESC").
		Limit(limit).
		Offset(offset).
		Build(scope)
	if err != nil {
		return nil, err
	}

	rows, err := GetExecutor(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list locations: %w", err)
	}
	defer rows.Close()

	var locations []*models.Location
	for rows.Next() {
		location, err := scanLocation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan location: %w", err)
		}
		if err := scope.Admit(location); err != nil {
			r.logger.Error("dropping location outside scope", zap.String("id", location.ID.String()), zap.Error(err))
			continue
		}
		locations = append(locations, location)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating location rows: %w", err)
	}

	return locations, nil
}

// Delete deletes a location
func (r *LocationRepository) Delete(ctx context.Context, scope tenancy.Scope, id uuid.UUID) error {
	query, args, err := tenancy.DeleteFrom("locations").Where("id = ?", id).Build(scope)
	if err != nil {
		return err
	}

	result, err := GetExecutor(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to delete location: %w", err)
	}
	if err := expectAffected(result, "location", id); err != nil {
		return err
	}

	r.logger.Debug("location deleted", zap.String("id", id.String()))
	return nil
}

func scanLocation(row rowScanner) (*models.Location, error) {
	location := &models.Location{}
	err := row.Scan(
		&location.ID,
		&location.OrganizationID,
		&location.Name,
		&location.Position,
		&location.CreatedAt,
		&location.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return location, nil
}
