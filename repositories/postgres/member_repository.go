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
	"github.com/lib/pq"
	"go.uber.org/zap"
)

const memberColumns = `id, user_id, organization_id, roles, created_at, updated_at`

// MemberRepository implements the repositories.MemberRepository interface
type MemberRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewMemberRepository creates a new member repository
func NewMemberRepository(db *DB, logger *zap.Logger) repositories.MemberRepository {
	return &MemberRepository{
		db:     db,
		logger: logger,
	}
}

// Create creates a new membership in the scope's organization
func (r *MemberRepository) Create(ctx context.Context, scope tenancy.Scope, member *models.Member) error {
	if err := scope.Stamp(member); err != nil {
		return err
	}

	query := `
		INSERT INTO members (id, user_id, organization_id, roles, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := GetExecutor(ctx, r.db).ExecContext(ctx, query,
		member.ID,
		member.UserID,
		member.OrganizationID,
		pq.Array(member.Roles),
		member.CreatedAt,
		member.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: member of organization %s", repositories.ErrDuplicate, member.OrganizationID)
		}
		return fmt.Errorf("failed to create member: %w", err)
	}

	r.logger.Debug("member created",
		zap.String("id", member.ID.String()),
		zap.String("organization_id", member.OrganizationID.String()))
	return nil
}

// GetByID retrieves a member by ID
func (r *MemberRepository) GetByID(ctx context.Context, scope tenancy.Scope, id uuid.UUID) (*models.Member, error) {
	query, args, err := tenancy.Select(memberColumns).From("members").Where("id = ?", id).Build(scope)
	if err != nil {
		return nil, err
	}

	member, err := scanMember(GetExecutor(ctx, r.db).QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound("member", id)
		}
		return nil, fmt.Errorf("failed to get member: %w", err)
	}

	if err := scope.Admit(member); err != nil {
		return nil, err
	}
	return member, nil
}

// ListByUser returns the user's memberships, oldest first
func (r *MemberRepository) ListByUser(ctx context.Context, scope tenancy.Scope, userID uuid.UUID) ([]*models.Member, error) {
	q := tenancy.Select(memberColumns).From("members").
		Where("user_id = ?", userID).
		OrderBy("created_at ASC")
	return r.list(ctx, scope, q)
}

// List returns the organization's members, newest first
func (r *MemberRepository) List(ctx context.Context, scope tenancy.Scope, limit, offset int) ([]*models.Member, error) {
	q := tenancy.Select(memberColumns).From("members").
		OrderBy("created_at DESC").
		Limit(limit).
		Offset(offset)
	return r.list(ctx, scope, q)
}

func (r *MemberRepository) list(ctx context.Context, scope tenancy.Scope, q *tenancy.Query) ([]*models.Member, error) {
	query, args, err := q.Build(scope)
	if err != nil {
		return nil, err
	}

	rows, err := GetExecutor(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	defer rows.Close()

	var members []*models.Member
	for rows.Next() {
		member, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		if err := scope.Admit(member); err != nil {
			r.logger.Error("dropping member outside scope", zap.String("id", member.ID.String()), zap.Error(err))
			continue
		}
		members = append(members, member)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating member rows: %w", err)
	}

	return members, nil
}

// Delete removes a membership
func (r *MemberRepository) Delete(ctx context.Context, scope tenancy.Scope, id uuid.UUID) error {
	query, args, err := tenancy.DeleteFrom("members").Where("id = ?", id).Build(scope)
	if err != nil {
		return err
	}

	result, err := GetExecutor(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to delete member: %w", err)
	}
	if err := expectAffected(result, "member", id); err != nil {
		return err
	}

	r.logger.Debug("member deleted", zap.String("id", id.String()))
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanMember(row rowScanner) (*models.Member, error) {
	member := &models.Member{}
	err := row.Scan(
		&member.ID,
		&member.UserID,
		&member.OrganizationID,
		pq.Array(&member.Roles),
		&member.CreatedAt,
		&member.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return member, nil
}
