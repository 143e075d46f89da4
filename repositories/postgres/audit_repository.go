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

const (
	auditColumns = `id, organization_id, member_id, action, resource_type, resource_id,
		details, ip_address, user_agent, request_id, timestamp`

	defaultAuditLimit = 50
	maxAuditLimit     = 500
)

// AuditRepository implements the repositories.AuditRepository interface
type AuditRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(db *DB, logger *zap.Logger) repositories.AuditRepository {
	return &AuditRepository{
		db:     db,
		logger: logger,
	}
}

// Insert inserts a new audit log entry. The organization is carried by the
// entry itself; audit writes happen off the request path.
func (r *AuditRepository) Insert(ctx context.Context, log *models.AuditLog) error {
	if err := tenancy.Unscoped().Stamp(log); err != nil {
		return err
	}

	query := `
		INSERT INTO audit_logs (
			id, organization_id, member_id, action, resource_type, resource_id,
			details, ip_address, user_agent, request_id, timestamp
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11
		)
	`

	var details interface{}
	if len(log.Details) > 0 {
		details = string(log.Details)
	}

	_, err := GetExecutor(ctx, r.db).ExecContext(ctx, query,
		log.ID,
		log.OrganizationID,
		log.MemberID,
		log.Action,
		log.ResourceType,
		log.ResourceID,
		details,
		log.IPAddress,
		log.UserAgent,
		log.RequestID,
		log.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to insert audit log: %w", err)
	}

	r.logger.Debug("audit log inserted", zap.String("id", log.ID.String()), zap.String("action", string(log.Action)))
	return nil
}

// GetByID retrieves an audit log by ID
func (r *AuditRepository) GetByID(ctx context.Context, scope tenancy.Scope, id uuid.UUID) (*models.AuditLog, error) {
	query, args, err := tenancy.Select(auditColumns).From("audit_logs").Where("id = ?", id).Build(scope)
	if err != nil {
		return nil, err
	}

	log, err := scanAuditLog(GetExecutor(ctx, r.db).QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound("audit log", id)
		}
		return nil, fmt.Errorf("failed to get audit log: %w", err)
	}

	if err := scope.Admit(log); err != nil {
		return nil, err
	}
	return log, nil
}

// List retrieves audit logs matching filter, newest first
func (r *AuditRepository) List(ctx context.Context, scope tenancy.Scope, filter repositories.AuditFilter) ([]*models.AuditLog, error) {
	q := tenancy.Select(auditColumns).From("audit_logs")
	if filter.MemberID != nil {
		q.Where("member_id = ?", *filter.MemberID)
	}
	if filter.Action != "" {
		q.Where("action = ?", filter.Action)
	}
	if filter.RequestID != "" {
		q.Where("request_id = ?", filter.RequestID)
	}
	if !filter.Start.IsZero() {
		q.Where("timestamp >= ?", filter.Start)
	}
	if !filter.End.IsZero() {
		q.Where("timestamp <= ?", filter.End)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultAuditLimit
	}
	if limit > maxAuditLimit {
		limit = maxAuditLimit
	}

	query, args, err := q.OrderBy("timestamp DESC").Limit(limit).Offset(filter.Offset).Build(scope)
	if err != nil {
		return nil, err
	}

	rows, err := GetExecutor(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit logs: %w", err)
	}
	defer rows.Close()

	var logs []*models.AuditLog
	for rows.Next() {
		log, err := scanAuditLog(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit log: %w", err)
		}
		if err := scope.Admit(log); err != nil {
			r.logger.Error("dropping audit log outside scope", zap.String("id", log.ID.String()), zap.Error(err))
			continue
		}
		logs = append(logs, log)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit log rows: %w", err)
	}

	return logs, nil
}

func scanAuditLog(row rowScanner) (*models.AuditLog, error) {
	log := &models.AuditLog{}
	var (
		memberID   uuid.NullUUID
		resourceID uuid.NullUUID
		details    []byte
		ip         sql.NullString
		userAgent  sql.NullString
		requestID  sql.NullString
	)

	err := row.Scan(
		&log.ID,
		&log.OrganizationID,
		&memberID,
		&log.Action,
		&log.ResourceType,
		&resourceID,
		&details,
		&ip,
		&userAgent,
		&requestID,
		&log.Timestamp,
	)
	if err != nil {
		return nil, err
	}

	if memberID.Valid {
		log.MemberID = &memberID.UUID
	}
	if resourceID.Valid {
		log.ResourceID = &resourceID.UUID
	}
	log.Details = details
	log.IPAddress = ip.String
	log.UserAgent = userAgent.String
	log.RequestID = requestID.String
	return log, nil
}
