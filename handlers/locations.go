package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/bluewing/auth-core/middleware"
	"github.com/bluewing/auth-core/models"
	"github.com/bluewing/auth-core/services/locations"
	"github.com/bluewing/auth-core/utils"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CreateLocationRequest represents a request to create a location.
// Exactly one of wkt, geojson and ewkb must be set.
type CreateLocationRequest struct {
	Name    string          `json:"name" validate:"required,max=200"`
	WKT     string          `json:"wkt,omitempty" validate:"omitempty,max=512"`
	GeoJSON json.RawMessage `json:"geojson,omitempty"`
	EWKB    string          `json:"ewkb,omitempty" validate:"omitempty,hexadecimal,max=512"`
	SRID    uint32          `json:"srid,omitempty"`
}

// LocationService defines the interface for location operations
type LocationService interface {
	Create(ctx context.Context, member *models.Member, input locations.CreateInput) (*models.Location, error)
	Get(ctx context.Context, member *models.Member, id uuid.UUID) (*models.Location, error)
	List(ctx context.Context, member *models.Member, limit, offset int) ([]*models.Location, error)
	Delete(ctx context.Context, member *models.Member, id uuid.UUID) error
}

// LocationHandler handles location-related HTTP requests
type LocationHandler struct {
	service LocationService
	logger  *zap.Logger
}

// NewLocationHandler creates a new LocationHandler
func NewLocationHandler(service LocationService, logger *zap.Logger) *LocationHandler {
	return &LocationHandler{
		service: service,
		logger:  logger,
	}
}

// HandleCreate handles POST /api/locations
func (h *LocationHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	member := middleware.GetMemberFromContext(ctx)
	if member == nil {
		_ = utils.WriteUnauthorized(w, "Authentication required")
		return
	}

	var req CreateLocationRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		_ = utils.WriteBadRequest(w, err.Error(), nil)
		return
	}
	if err := utils.ValidateStruct(&req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	location, err := h.service.Create(ctx, member, locations.CreateInput{
		Name:    req.Name,
		WKT:     req.WKT,
		GeoJSON: req.GeoJSON,
		EWKB:    req.EWKB,
		SRID:    req.SRID,
	})
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	h.logger.Info("location created",
		zap.String("request_id", middleware.GetRequestIDFromContext(ctx)),
		zap.String("location_id", location.ID.String()))
	_ = utils.WriteCreated(w, location)
}

// HandleList handles GET /api/locations
func (h *LocationHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	member := middleware.GetMemberFromContext(ctx)
	if member == nil {
		_ = utils.WriteUnauthorized(w, "Authentication required")
		return
	}

	limit, err := utils.QueryInt(r, "limit", 0)
	if err != nil {
		_ = utils.WriteBadRequest(w, err.Error(), nil)
		return
	}
	offset, err := utils.QueryInt(r, "offset", 0)
	if err != nil {
		_ = utils.WriteBadRequest(w, err.Error(), nil)
		return
	}

	list, err := h.service.List(ctx, member, limit, offset)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	_ = utils.WriteOK(w, list)
}

// HandleGet handles GET /api/locations/{id}
func (h *LocationHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	member := middleware.GetMemberFromContext(ctx)
	if member == nil {
		_ = utils.WriteUnauthorized(w, "Authentication required")
		return
	}

	id, err := utils.ParseUUID(chi.URLParam(r, "id"), "id")
	if err != nil {
		_ = utils.WriteBadRequest(w, err.Error(), nil)
		return
	}

	location, err := h.service.Get(ctx, member, id)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	_ = utils.WriteOK(w, location)
}

// HandleDelete handles DELETE /api/locations/{id}
func (h *LocationHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	member := middleware.GetMemberFromContext(ctx)
	if member == nil {
		_ = utils.WriteUnauthorized(w, "Authentication required")
		return
	}

	id, err := utils.ParseUUID(chi.URLParam(r, "id"), "id")
	if err != nil {
		_ = utils.WriteBadRequest(w, err.Error(), nil)
		return
	}

	if err := h.service.Delete(ctx, member, id); err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	utils.WriteNoContent(w)
}
