package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/aegis-safety/aegis/internal/api/models"
	"github.com/aegis-safety/aegis/internal/api/response"
	"github.com/aegis-safety/aegis/internal/tracking"
)

// TrackingHandler handles tracking session endpoints.
type TrackingHandler struct {
	manager *tracking.Manager
}

// NewTrackingHandler creates a new TrackingHandler.
func NewTrackingHandler(manager *tracking.Manager) *TrackingHandler {
	return &TrackingHandler{manager: manager}
}

// Start handles POST /v1/tracking/start - begin a tracking session.
func (h *TrackingHandler) Start(w http.ResponseWriter, r *http.Request) {
	var input models.TrackingStartRequest
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}

	mode, ok := parseMode(input.Mode)
	if !ok {
		response.BadRequest(w, r, "invalid tracking mode", []models.FieldError{
			{Field: "mode", Message: "must be foreground or background"},
		})
		return
	}

	handle, err := h.manager.Start(mode, tracking.PolicyForMode(mode))
	if err != nil {
		if errors.Is(err, tracking.ErrCapabilityDenied) {
			response.Conflict(w, r, "location permission not granted; tracking is suspended")
			return
		}
		response.InternalError(w, r, "failed to start tracking")
		return
	}

	response.JSON(w, r, http.StatusOK, toAPISession(handle))
}

// Stop handles POST /v1/tracking/stop - end a tracking session.
func (h *TrackingHandler) Stop(w http.ResponseWriter, r *http.Request) {
	var input models.TrackingStopRequest
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}

	mode, ok := parseMode(input.Mode)
	if !ok {
		response.BadRequest(w, r, "invalid tracking mode", []models.FieldError{
			{Field: "mode", Message: "must be foreground or background"},
		})
		return
	}

	if err := h.manager.StopMode(mode); err != nil {
		if errors.Is(err, tracking.ErrSessionNotFound) {
			response.NotFound(w, r, "no active session for this mode")
			return
		}
		response.InternalError(w, r, "failed to stop tracking")
		return
	}

	response.NoContent(w, r)
}

// Status handles GET /v1/tracking/status - current sessions and suspension.
func (h *TrackingHandler) Status(w http.ResponseWriter, r *http.Request) {
	handles := h.manager.Sessions()
	resp := models.TrackingStatusResponse{
		Sessions:  make([]models.TrackingSession, 0, len(handles)),
		Suspended: h.manager.Suspended(),
	}
	for _, handle := range handles {
		resp.Sessions = append(resp.Sessions, toAPISession(handle))
	}
	response.JSON(w, r, http.StatusOK, resp)
}

// Resume handles POST /v1/tracking/resume - clear suspension after a
// permission grant.
func (h *TrackingHandler) Resume(w http.ResponseWriter, r *http.Request) {
	if err := h.manager.Resume(); err != nil {
		if errors.Is(err, tracking.ErrCapabilityDenied) {
			response.Conflict(w, r, "location permission still not granted")
			return
		}
		response.InternalError(w, r, "failed to resume tracking")
		return
	}
	response.NoContent(w, r)
}

// Position handles GET /v1/tracking/position - latest accepted sample.
func (h *TrackingHandler) Position(w http.ResponseWriter, r *http.Request) {
	pos, ok := h.manager.LastPosition()
	if !ok {
		response.NotFound(w, r, "no position sample accepted yet")
		return
	}

	response.JSON(w, r, http.StatusOK, models.PositionResponse{
		Lat:            pos.Lat,
		Lon:            pos.Lon,
		AccuracyMeters: pos.AccuracyMeters,
		CapturedAt:     models.Timestamp(pos.CapturedAt),
	})
}

func parseMode(s string) (tracking.Mode, bool) {
	switch s {
	case string(tracking.ModeForeground):
		return tracking.ModeForeground, true
	case string(tracking.ModeBackground):
		return tracking.ModeBackground, true
	default:
		return "", false
	}
}

func toAPISession(handle tracking.SessionHandle) models.TrackingSession {
	return models.TrackingSession{
		ID:        handle.ID,
		Mode:      string(handle.Mode),
		StartedAt: models.Timestamp(handle.StartedAt),
	}
}
