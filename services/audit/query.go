package audit

import (
	"context"
	"errors"

	"github.com/bluewing/auth-core/models"
	"github.com/bluewing/auth-core/repositories"
	"github.com/bluewing/auth-core/services"
	"github.com/bluewing/auth-core/tenancy"
	"github.com/google/uuid"
)

// List returns the organization's audit entries matching filter
func (s *AuditService) List(ctx context.Context, scope tenancy.Scope, filter repositories.AuditFilter) ([]*models.AuditLog, error) {
	if !filter.Start.IsZero() && !filter.End.IsZero() && filter.End.Before(filter.Start) {
		return nil, services.ErrInvalidInput.WithDetail("end", "must not be before start")
	}

	logs, err := s.auditRepo.List(ctx, scope, filter)
	if err != nil {
		return nil, services.ErrDatabaseError.Wrap(err)
	}
	return logs, nil
}

// Get returns one audit entry of the organization
func (s *AuditService) Get(ctx context.Context, scope tenancy.Scope, id uuid.UUID) (*models.AuditLog, error) {
	log, err := s.auditRepo.GetByID(ctx, scope, id)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, services.ErrAuditLogNotFound
	}
	if err != nil {
		return nil, services.ErrDatabaseError.Wrap(err)
	}
	return log, nil
}
