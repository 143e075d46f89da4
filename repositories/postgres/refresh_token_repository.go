package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/bluewing/auth-core/models"
	"github.com/bluewing/auth-core/repositories"
	"github.com/bluewing/auth-core/tenancy"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const refreshTokenColumns = `id, organization_id, member_id, token, device, use_count, created_at, updated_at, rotated_at`

// RefreshTokenRepository implements the repositories.RefreshTokenRepository interface
type RefreshTokenRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewRefreshTokenRepository creates a new refresh token repository
func NewRefreshTokenRepository(db *DB, logger *zap.Logger) repositories.RefreshTokenRepository {
	return &RefreshTokenRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a new refresh token
func (r *RefreshTokenRepository) Create(ctx context.Context, scope tenancy.Scope, token *models.RefreshToken) error {
	if err := scope.Stamp(token); err != nil {
		return err
	}

	query := `
		INSERT INTO refresh_tokens (id, organization_id, member_id, token, device, use_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := GetExecutor(ctx, r.db).ExecContext(ctx, query,
		token.ID,
		token.OrganizationID,
		token.MemberID,
		token.Token,
		token.Device,
		token.UseCount,
		token.CreatedAt,
		token.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: refresh token", repositories.ErrDuplicate)
		}
		return fmt.Errorf("failed to create refresh token: %w", err)
	}

	r.logger.Debug("refresh token created",
		zap.String("id", token.ID.String()),
		zap.String("member_id", token.MemberID.String()))
	return nil
}

// GetByToken retrieves a refresh token record without touching it
func (r *RefreshTokenRepository) GetByToken(ctx context.Context, scope tenancy.Scope, token string) (*models.RefreshToken, error) {
	query, args, err := tenancy.Select(refreshTokenColumns).From("refresh_tokens").
		Where("token = ?", token).
		Build(scope)
	if err != nil {
		return nil, err
	}

	return r.one(ctx, scope, query, args)
}

// Use increments use_count and slides updated_at in a single statement, so
// concurrent redemptions each observe a distinct count
func (r *RefreshTokenRepository) Use(ctx context.Context, scope tenancy.Scope, token string, now, notBefore time.Time) (*models.RefreshToken, error) {
	query, args, err := tenancy.Update("refresh_tokens").
		SetExpr("use_count = use_count + 1").
		Set("updated_at", now).
		Where("token = ?", token).
		Where("rotated_at IS NULL").
		Where("updated_at >= ?", notBefore).
		Returning(refreshTokenColumns).
		Build(scope)
	if err != nil {
		return nil, err
	}

	return r.one(ctx, scope, query, args)
}

// MarkRotated turns a live token into a tombstone. updated_at moves to now
// so the sweep removes the tombstone one retention window later.
func (r *RefreshTokenRepository) MarkRotated(ctx context.Context, scope tenancy.Scope, token string, now time.Time) (int64, error) {
	query, args, err := tenancy.Update("refresh_tokens").
		Set("rotated_at", now).
		Set("updated_at", now).
		Where("token = ?", token).
		Where("rotated_at IS NULL").
		Build(scope)
	if err != nil {
		return 0, err
	}

	result, err := GetExecutor(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to rotate refresh token: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

func (r *RefreshTokenRepository) one(ctx context.Context, scope tenancy.Scope, query string, args []interface{}) (*models.RefreshToken, error) {
	token, err := scanRefreshToken(GetExecutor(ctx, r.db).QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: refresh token", repositories.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get refresh token: %w", err)
	}

	if err := scope.Admit(token); err != nil {
		return nil, err
	}
	return token, nil
}

// ListByMember returns the member's live tokens, most recently used first
func (r *RefreshTokenRepository) ListByMember(ctx context.Context, scope tenancy.Scope, memberID uuid.UUID, notBefore time.Time) ([]*models.RefreshToken, error) {
	query, args, err := tenancy.Select(refreshTokenColumns).From("refresh_tokens").
		Where("member_id = ?", memberID).
		Where("rotated_at IS NULL").
		Where("updated_at >= ?", notBefore).
		OrderBy("updated_at DESC").
		Build(scope)
	if err != nil {
		return nil, err
	}

	rows, err := GetExecutor(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list refresh tokens: %w", err)
	}
	defer rows.Close()

	var tokens []*models.RefreshToken
	for rows.Next() {
		token, err := scanRefreshToken(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan refresh token: %w", err)
		}
		if err := scope.Admit(token); err != nil {
			r.logger.Error("dropping refresh token outside scope", zap.String("id", token.ID.String()), zap.Error(err))
			continue
		}
		tokens = append(tokens, token)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating refresh token rows: %w", err)
	}

	return tokens, nil
}

// DeleteByToken removes a single token; deleting an absent token is not an error
func (r *RefreshTokenRepository) DeleteByToken(ctx context.Context, scope tenancy.Scope, token string) (int64, error) {
	return r.delete(ctx, scope, tenancy.DeleteFrom("refresh_tokens").Where("token = ?", token))
}

// DeleteByMember removes every token of a member
func (r *RefreshTokenRepository) DeleteByMember(ctx context.Context, scope tenancy.Scope, memberID uuid.UUID) (int64, error) {
	return r.delete(ctx, scope, tenancy.DeleteFrom("refresh_tokens").Where("member_id = ?", memberID))
}

// DeleteByDevice removes a member's tokens issued to device
func (r *RefreshTokenRepository) DeleteByDevice(ctx context.Context, scope tenancy.Scope, memberID uuid.UUID, device string) (int64, error) {
	return r.delete(ctx, scope, tenancy.DeleteFrom("refresh_tokens").
		Where("member_id = ?", memberID).
		Where("device = ?", device))
}

// DeleteUpdatedBefore removes tokens not used since cutoff
func (r *RefreshTokenRepository) DeleteUpdatedBefore(ctx context.Context, scope tenancy.Scope, cutoff time.Time) (int64, error) {
	return r.delete(ctx, scope, tenancy.DeleteFrom("refresh_tokens").Where("updated_at < ?", cutoff))
}

func (r *RefreshTokenRepository) delete(ctx context.Context, scope tenancy.Scope, q *tenancy.Query) (int64, error) {
	query, args, err := q.Build(scope)
	if err != nil {
		return 0, err
	}

	result, err := GetExecutor(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete refresh tokens: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	r.logger.Debug("refresh tokens deleted", zap.Int64("count", n), zap.String("scope", scope.String()))
	return n, nil
}

func scanRefreshToken(row rowScanner) (*models.RefreshToken, error) {
	token := &models.RefreshToken{}
	var device sql.NullString
	var rotatedAt sql.NullTime
	err := row.Scan(
		&token.ID,
		&token.OrganizationID,
		&token.MemberID,
		&token.Token,
		&device,
		&token.UseCount,
		&token.CreatedAt,
		&token.UpdatedAt,
		&rotatedAt,
	)
	if err != nil {
		return nil, err
	}
	if device.Valid {
		token.Device = &device.String
	}
	if rotatedAt.Valid {
		token.RotatedAt = &rotatedAt.Time
	}
	return token, nil
}
