package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/aegis-safety/aegis/internal/api/models"
	"github.com/aegis-safety/aegis/internal/api/response"
	"github.com/aegis-safety/aegis/internal/geofence"
)

// ZoneHandler handles safe zone management endpoints.
type ZoneHandler struct {
	zones *geofence.Service
}

// NewZoneHandler creates a new ZoneHandler.
func NewZoneHandler(zones *geofence.Service) *ZoneHandler {
	return &ZoneHandler{zones: zones}
}

// List handles GET /v1/zones - list the owner's zones.
func (h *ZoneHandler) List(w http.ResponseWriter, r *http.Request) {
	items, err := h.zones.List(r.Context())
	if err != nil {
		response.InternalError(w, r, "failed to list zones")
		return
	}
	response.JSON(w, r, http.StatusOK, models.ZoneListResponse{Items: items})
}

// Get handles GET /v1/zones/{zoneId}.
func (h *ZoneHandler) Get(w http.ResponseWriter, r *http.Request) {
	zone, err := h.zones.Get(r.Context(), chi.URLParam(r, "zoneId"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, zone)
}

// Create handles POST /v1/zones.
func (h *ZoneHandler) Create(w http.ResponseWriter, r *http.Request) {
	var input models.ZoneCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}

	zone, err := h.zones.Create(r.Context(), &input)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.Created(w, r, "/v1/zones/"+zone.ID, zone)
}

// Update handles PUT /v1/zones/{zoneId}.
func (h *ZoneHandler) Update(w http.ResponseWriter, r *http.Request) {
	var input models.ZoneUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}

	zone, err := h.zones.Update(r.Context(), chi.URLParam(r, "zoneId"), &input)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, zone)
}

// Toggle handles POST /v1/zones/{zoneId}:toggle.
func (h *ZoneHandler) Toggle(w http.ResponseWriter, r *http.Request) {
	var input models.ZoneToggleRequest
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}

	zone, err := h.zones.Toggle(r.Context(), chi.URLParam(r, "zoneId"), input.Enabled)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, zone)
}

// Delete handles DELETE /v1/zones/{zoneId}.
func (h *ZoneHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.zones.Delete(r.Context(), chi.URLParam(r, "zoneId")); err != nil {
		h.writeError(w, r, err)
		return
	}
	response.NoContent(w, r)
}

func (h *ZoneHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if ve, ok := geofence.AsValidationError(err); ok {
		response.BadRequest(w, r, "zone validation failed", ve.Errors)
		return
	}
	if errors.Is(err, geofence.ErrZoneNotFound) {
		response.NotFound(w, r, "zone not found")
		return
	}
	response.InternalError(w, r, "zone operation failed")
}
