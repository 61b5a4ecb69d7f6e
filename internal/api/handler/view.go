package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/aegis-safety/aegis/internal/api/models"
	"github.com/aegis-safety/aegis/internal/api/response"
	"github.com/aegis-safety/aegis/internal/share"
)

// ViewHandler serves the public, unauthenticated share view.
type ViewHandler struct {
	shares *share.Service
}

// NewViewHandler creates a new ViewHandler.
func NewViewHandler(shares *share.Service) *ViewHandler {
	return &ViewHandler{shares: shares}
}

// View handles GET /v1/view/{shareId}?code=...
func (h *ViewHandler) View(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	if code == "" {
		response.BadRequest(w, r, "access code is required", []models.FieldError{
			{Field: "code", Message: "is required"},
		})
		return
	}

	result, err := h.shares.ResolveView(r.Context(), chi.URLParam(r, "shareId"), code)
	if err != nil {
		h.writeRefusal(w, r, err)
		return
	}

	resp := models.ShareViewResponse{
		ExpiresAt:      models.Timestamp(result.ExpiresAt),
		ViewsRemaining: result.ViewsRemaining,
	}
	if result.Position != nil {
		resp.Position = &models.SharePosition{
			Lat:            result.Position.Lat,
			Lon:            result.Position.Lon,
			AccuracyMeters: result.Position.AccuracyMeters,
			CapturedAt:     models.Timestamp(result.Position.CapturedAt),
		}
	}
	response.JSON(w, r, http.StatusOK, resp)
}

// writeRefusal maps access refusals without telling a prober which part of
// the credential pair was wrong: unknown ids and bad codes read the same.
func (h *ViewHandler) writeRefusal(w http.ResponseWriter, r *http.Request, err error) {
	ae, ok := share.AsAccessError(err)
	if !ok {
		response.InternalError(w, r, "failed to resolve share view")
		return
	}

	switch ae.Reason {
	case share.AccessNotFound, share.AccessBadCode:
		response.NotFound(w, r, "share not found")
	case share.AccessExpired:
		response.Gone(w, r, "share has expired")
	case share.AccessStopped:
		response.Gone(w, r, "share is no longer active")
	case share.AccessQuotaExhausted:
		response.Gone(w, r, "share view limit reached")
	default:
		response.InternalError(w, r, "failed to resolve share view")
	}
}
