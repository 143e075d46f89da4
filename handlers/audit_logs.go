package handlers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/bluewing/auth-core/middleware"
	"github.com/bluewing/auth-core/models"
	"github.com/bluewing/auth-core/repositories"
	"github.com/bluewing/auth-core/tenancy"
	"github.com/bluewing/auth-core/utils"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	defaultAuditPageSize = 100
	maxAuditPageSize     = 1000
)

// AuditLogService defines the interface for audit log queries
type AuditLogService interface {
	List(ctx context.Context, scope tenancy.Scope, filter repositories.AuditFilter) ([]*models.AuditLog, error)
	Get(ctx context.Context, scope tenancy.Scope, id uuid.UUID) (*models.AuditLog, error)
}

// AuditLogHandler serves the organization's audit trail
type AuditLogHandler struct {
	service AuditLogService
	logger  *zap.Logger
}

// NewAuditLogHandler creates a new AuditLogHandler
func NewAuditLogHandler(service AuditLogService, logger *zap.Logger) *AuditLogHandler {
	return &AuditLogHandler{
		service: service,
		logger:  logger,
	}
}

// HandleList handles GET /api/audit/logs
// Query: action, member_id, request_id, start, end (RFC3339), limit, offset
func (h *AuditLogHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	filter, err := parseAuditFilter(r)
	if err != nil {
		_ = utils.WriteBadRequest(w, err.Error(), nil)
		return
	}

	logs, err := h.service.List(ctx, middleware.GetScopeFromContext(ctx), filter)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	_ = utils.WriteOK(w, logs)
}

// HandleGet handles GET /api/audit/logs/{id}
func (h *AuditLogHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := utils.ParseUUID(chi.URLParam(r, "id"), "id")
	if err != nil {
		_ = utils.WriteBadRequest(w, err.Error(), nil)
		return
	}

	log, err := h.service.Get(ctx, middleware.GetScopeFromContext(ctx), id)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	_ = utils.WriteOK(w, log)
}

func parseAuditFilter(r *http.Request) (repositories.AuditFilter, error) {
	q := r.URL.Query()
	filter := repositories.AuditFilter{
		Action:    models.AuditAction(q.Get("action")),
		RequestID: q.Get("request_id"),
	}

	if raw := q.Get("member_id"); raw != "" {
		id, err := utils.ParseUUID(raw, "member_id")
		if err != nil {
			return filter, err
		}
		filter.MemberID = &id
	}

	for name, dst := range map[string]*time.Time{"start": &filter.Start, "end": &filter.End} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filter, fmt.Errorf("%s must be an RFC3339 timestamp", name)
		}
		*dst = t
	}

	limit, err := utils.QueryInt(r, "limit", defaultAuditPageSize)
	if err != nil {
		return filter, err
	}
	if limit == 0 {
		limit = defaultAuditPageSize
	}
	if limit > maxAuditPageSize {
		limit = maxAuditPageSize
	}
	filter.Limit = limit

	if filter.Offset, err = utils.QueryInt(r, "offset", 0); err != nil {
		return filter, err
	}
	return filter, nil
}
