package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/aegis-safety/aegis/internal/api/models"
	"github.com/aegis-safety/aegis/internal/api/response"
	"github.com/aegis-safety/aegis/internal/share"
)

// ShareHandler handles owner-facing share session endpoints.
type ShareHandler struct {
	shares *share.Service
}

// NewShareHandler creates a new ShareHandler.
func NewShareHandler(shares *share.Service) *ShareHandler {
	return &ShareHandler{shares: shares}
}

// Create handles POST /v1/shares.
func (h *ShareHandler) Create(w http.ResponseWriter, r *http.Request) {
	var input models.ShareCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}

	session, err := h.shares.Create(r.Context(),
		time.Duration(input.DurationSeconds)*time.Second, input.MaxViews)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	// The access code is only returned here.
	out := toAPIShare(session)
	out.AccessCode = session.AccessCode
	response.Created(w, r, "/v1/shares/"+session.ID, out)
}

// Extend handles POST /v1/shares/{shareId}:extend.
func (h *ShareHandler) Extend(w http.ResponseWriter, r *http.Request) {
	var input models.ShareExtendRequest
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}

	session, err := h.shares.Extend(r.Context(), chi.URLParam(r, "shareId"),
		time.Duration(input.DurationSeconds)*time.Second)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, toAPIShare(session))
}

// Stop handles DELETE /v1/shares/{shareId}.
func (h *ShareHandler) Stop(w http.ResponseWriter, r *http.Request) {
	if err := h.shares.Stop(r.Context(), chi.URLParam(r, "shareId")); err != nil {
		h.writeError(w, r, err)
		return
	}
	response.NoContent(w, r)
}

// List handles GET /v1/shares - the owner's active sessions.
func (h *ShareHandler) List(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.shares.ActiveSessions(r.Context())
	if err != nil {
		response.InternalError(w, r, "failed to list share sessions")
		return
	}

	resp := models.ShareListResponse{Items: make([]models.Share, 0, len(sessions))}
	for _, session := range sessions {
		resp.Items = append(resp.Items, toAPIShare(session))
	}
	response.JSON(w, r, http.StatusOK, resp)
}

func (h *ShareHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if ve, ok := share.AsValidationError(err); ok {
		response.BadRequest(w, r, "share validation failed", ve.Errors)
		return
	}
	if errors.Is(err, share.ErrSessionNotFound) {
		response.NotFound(w, r, "share session not found")
		return
	}
	response.InternalError(w, r, "share operation failed")
}

func toAPIShare(s *share.Session) models.Share {
	return models.Share{
		ID:             s.ID,
		Active:         s.Active,
		MaxViews:       s.MaxViews,
		ViewsRemaining: s.ViewsRemaining(),
		CreatedAt:      models.Timestamp(s.CreatedAt),
		ExpiresAt:      models.Timestamp(s.ExpiresAt),
	}
}
