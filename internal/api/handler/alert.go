package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/aegis-safety/aegis/internal/api/models"
	"github.com/aegis-safety/aegis/internal/api/response"
	"github.com/aegis-safety/aegis/internal/dispatch"
	"github.com/aegis-safety/aegis/internal/location"
	"github.com/aegis-safety/aegis/internal/tracking"
)

// AlertHandler handles SOS triggering and alert job reporting.
type AlertHandler struct {
	dispatcher *dispatch.Service
	tracker    *tracking.Manager
}

// NewAlertHandler creates a new AlertHandler.
func NewAlertHandler(dispatcher *dispatch.Service, tracker *tracking.Manager) *AlertHandler {
	return &AlertHandler{dispatcher: dispatcher, tracker: tracker}
}

// TriggerSOS handles POST /v1/sos - trigger a user-initiated alert.
func (h *AlertHandler) TriggerSOS(w http.ResponseWriter, r *http.Request) {
	var input models.SOSRequest
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}

	kind, ok := parseTriggerKind(input.Kind)
	if !ok {
		response.BadRequest(w, r, "invalid trigger kind", []models.FieldError{
			{Field: "kind", Message: "must be manual, shake or silent"},
		})
		return
	}

	pos := h.resolvePosition(input.Position)
	result, err := h.dispatcher.Trigger(r.Context(), kind, nil, pos)
	if err != nil {
		if errors.Is(err, dispatch.ErrNoRecipients) {
			response.Conflict(w, r, "no trusted contacts configured")
			return
		}
		response.InternalError(w, r, "failed to trigger alert")
		return
	}

	job, err := h.dispatcher.Get(r.Context(), result.JobID)
	if err != nil {
		response.InternalError(w, r, "failed to load alert job")
		return
	}
	response.Accepted(w, r, "/v1/alerts/"+job.ID, toAPIAlertJob(job, result.Coalesced))
}

// Get handles GET /v1/alerts/{jobId}.
func (h *AlertHandler) Get(w http.ResponseWriter, r *http.Request) {
	job, err := h.dispatcher.Get(r.Context(), chi.URLParam(r, "jobId"))
	if err != nil {
		if errors.Is(err, dispatch.ErrJobNotFound) {
			response.NotFound(w, r, "alert job not found")
			return
		}
		response.InternalError(w, r, "failed to load alert job")
		return
	}
	response.JSON(w, r, http.StatusOK, toAPIAlertJob(job, false))
}

// List handles GET /v1/alerts?limit=N - newest jobs first.
func (h *AlertHandler) List(w http.ResponseWriter, r *http.Request) {
	opts := dispatch.ListOptions{}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 || limit > 200 {
			response.BadRequest(w, r, "invalid limit", []models.FieldError{
				{Field: "limit", Message: "must be between 1 and 200"},
			})
			return
		}
		opts.Limit = limit
	}

	jobs, err := h.dispatcher.List(r.Context(), opts)
	if err != nil {
		response.InternalError(w, r, "failed to list alert jobs")
		return
	}

	resp := models.AlertListResponse{Items: make([]models.AlertJob, 0, len(jobs))}
	for _, job := range jobs {
		resp.Items = append(resp.Items, toAPIAlertJob(job, false))
	}
	response.JSON(w, r, http.StatusOK, resp)
}

// resolvePosition prefers the caller-supplied fix, falling back to the
// tracker's last accepted sample. A zero position is dispatched rather than
// delaying an emergency.
func (h *AlertHandler) resolvePosition(override *models.Point) location.Position {
	if override != nil {
		return location.Position{Lat: override.Lat, Lon: override.Lon, CapturedAt: time.Now()}
	}
	if h.tracker != nil {
		if pos, ok := h.tracker.LastPosition(); ok {
			return pos
		}
	}
	return location.Position{CapturedAt: time.Now()}
}

func parseTriggerKind(s string) (dispatch.TriggerKind, bool) {
	switch s {
	case string(dispatch.TriggerManual):
		return dispatch.TriggerManual, true
	case string(dispatch.TriggerShake):
		return dispatch.TriggerShake, true
	case string(dispatch.TriggerSilent):
		return dispatch.TriggerSilent, true
	default:
		return "", false
	}
}

func toAPIAlertJob(job *dispatch.Job, coalesced bool) models.AlertJob {
	out := models.AlertJob{
		ID:           job.ID,
		Kind:         string(job.Kind),
		ZoneID:       job.ZoneID,
		Position:     models.Point{Lat: job.Position.Lat, Lon: job.Position.Lon},
		Message:      job.Message,
		Status:       string(job.Status),
		Coalesced:    coalesced,
		AttemptCount: job.AttemptCount,
		Recipients:   make([]models.AlertRecipient, 0, len(job.Recipients)),
		CreatedAt:    models.Timestamp(job.CreatedAt),
		UpdatedAt:    models.Timestamp(job.UpdatedAt),
	}
	for _, rcpt := range job.Recipients {
		out.Recipients = append(out.Recipients, models.AlertRecipient{
			Kind:       string(rcpt.Recipient.Kind),
			Address:    rcpt.Recipient.Address,
			Name:       rcpt.Recipient.Name,
			Status:     string(rcpt.Status),
			DeliveryID: rcpt.DeliveryID,
			Error:      rcpt.Error,
			Attempts:   rcpt.Attempts,
		})
	}
	return out
}
