// Package handler provides HTTP handlers for the engine API.
package handler

import (
	"net/http"
	"time"

	"github.com/aegis-safety/aegis/internal/api/models"
	"github.com/aegis-safety/aegis/internal/api/response"
	"github.com/aegis-safety/aegis/internal/connectivity"
	"github.com/aegis-safety/aegis/internal/dispatch/offlinequeue"
	"github.com/aegis-safety/aegis/internal/geofence"
	"github.com/aegis-safety/aegis/internal/tracking"
)

// OpsHandler handles operational endpoints.
type OpsHandler struct {
	version   string
	buildTime string
	signal    connectivity.Signal
	zones     *geofence.Service
	tracker   *tracking.Manager
	queue     *offlinequeue.Queue
}

// NewOpsHandler creates a new OpsHandler. Status sources are optional; nil
// sources are reported as absent rather than failing.
func NewOpsHandler(version, buildTime string, signal connectivity.Signal, zones *geofence.Service, tracker *tracking.Manager, queue *offlinequeue.Queue) *OpsHandler {
	return &OpsHandler{
		version:   version,
		buildTime: buildTime,
		signal:    signal,
		zones:     zones,
		tracker:   tracker,
		queue:     queue,
	}
}

// HealthCheck handles GET /v1/ops/health - liveness check.
func (h *OpsHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	health := models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(time.Now()),
		Details: map[string]interface{}{
			"version":   h.version,
			"buildTime": h.buildTime,
		},
	}
	response.JSON(w, r, http.StatusOK, health)
}

// ReadinessCheck handles GET /v1/ops/ready - readiness check.
func (h *OpsHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	status := models.HealthStatusOK
	if h.queue != nil {
		if _, err := h.queue.Len(r.Context()); err != nil {
			status = models.HealthStatusFail
		}
	}

	health := models.Health{
		Status: status,
		Time:   models.Timestamp(time.Now()),
	}
	code := http.StatusOK
	if status == models.HealthStatusFail {
		code = http.StatusServiceUnavailable
	}
	response.JSON(w, r, code, health)
}

// SystemStatus handles GET /v1/ops/status - subsystem status.
func (h *OpsHandler) SystemStatus(w http.ResponseWriter, r *http.Request) {
	now := time.Now()
	status := models.SystemStatus{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(now),
		Online: true,
	}

	if h.signal != nil {
		status.Online = h.signal.Online()
	}

	if h.tracker != nil {
		tracker := models.SubsystemStatus{Name: "tracking", Status: models.HealthStatusOK}
		if h.tracker.Suspended() {
			tracker.Status = models.HealthStatusDegraded
			detail := "suspended: location permission not granted"
			tracker.Detail = &detail
		} else if !h.tracker.IsActive() {
			detail := "no active sessions"
			tracker.Detail = &detail
		}
		status.Subsystems = append(status.Subsystems, tracker)
	}

	if h.zones != nil {
		zones := models.SubsystemStatus{Name: "zones", Status: models.HealthStatusOK}
		if syncedAt := h.zones.LastSyncAt(); !syncedAt.IsZero() {
			ts := models.Timestamp(syncedAt)
			status.ZonesSyncedAt = &ts
		} else {
			zones.Status = models.HealthStatusDegraded
			detail := "no successful zone sync yet"
			zones.Detail = &detail
		}
		status.Subsystems = append(status.Subsystems, zones)
	}

	if h.queue != nil {
		dispatch := models.SubsystemStatus{Name: "dispatch-queue", Status: models.HealthStatusOK}
		n, err := h.queue.Len(r.Context())
		if err != nil {
			dispatch.Status = models.HealthStatusFail
			detail := err.Error()
			dispatch.Detail = &detail
		} else {
			status.QueuedAlerts = n
			if n > 0 {
				dispatch.Status = models.HealthStatusDegraded
			}
		}
		status.Subsystems = append(status.Subsystems, dispatch)
	}

	for _, s := range status.Subsystems {
		if s.Status == models.HealthStatusFail {
			status.Status = models.HealthStatusFail
			break
		}
		if s.Status == models.HealthStatusDegraded {
			status.Status = models.HealthStatusDegraded
		}
	}
	if !status.Online && status.Status == models.HealthStatusOK {
		status.Status = models.HealthStatusDegraded
	}

	response.JSON(w, r, http.StatusOK, status)
}
