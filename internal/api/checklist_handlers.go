package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hyperengineering/fieldops/internal/checklist"
	"github.com/hyperengineering/fieldops/internal/types"
	"github.com/hyperengineering/fieldops/internal/validation"
)

// writeChecklistResult writes a checklist result. Failures keep the
// {success:false, error} shape with the status of the underlying error;
// internal errors are not echoed.
func writeChecklistResult(w http.ResponseWriter, res checklist.Result) {
	if res.Success {
		writeJSON(w, http.StatusOK, res)
		return
	}
	status, detail := errorStatus(res.Cause)
	res.Error = detail
	writeJSON(w, status, res)
}

// GetChecklist handles GET /api/jobs/{id}/checklist. Reading refreshes the
// derived gates.
func (h *Handler) GetChecklist(w http.ResponseWriter, r *http.Request) {
	user := MustUserFromContext(r.Context())
	res := h.checklists.Sync(r.Context(), user.OrganizationID, chi.URLParam(r, "id"), user.ID)
	writeChecklistResult(w, res)
}

// ToggleChecklistGate handles PATCH /api/jobs/{id}/checklist
func (h *Handler) ToggleChecklistGate(w http.ResponseWriter, r *http.Request) {
	user := MustUserFromContext(r.Context())

	var req types.ToggleGateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := validation.ValidateRequired("gate", req.Gate); err != nil {
		WriteProblemWithErrors(w, r, "Request contains invalid fields", []validation.ValidationError{*err})
		return
	}

	res := h.checklists.Toggle(r.Context(), user.OrganizationID, chi.URLParam(r, "id"), req.Gate, req.Value, user.ID)
	writeChecklistResult(w, res)
}

// DefaultNotificationLimit bounds notification listings without ?limit=.
const DefaultNotificationLimit = 50

// ListNotifications handles GET /api/notifications for the acting user.
// ?unread=true limits the list to unread notifications.
func (h *Handler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	user := MustUserFromContext(r.Context())
	q := r.URL.Query()

	limit := DefaultNotificationLimit
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 || n > 500 {
			WriteProblemWithErrors(w, r, "Invalid query parameters", []validation.ValidationError{
				{Field: "limit", Message: "must be between 1 and 500"},
			})
			return
		}
		limit = n
	}

	list, err := h.store.ListNotifications(r.Context(), user.ID, q.Get("unread") == "true", limit)
	if err != nil {
		MapStoreError(w, r, err)
		return
	}
	if list == nil {
		list = []types.Notification{}
	}
	writeJSON(w, http.StatusOK, list)
}

// MarkNotificationRead handles POST /api/notifications/{id}/read
func (h *Handler) MarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	user := MustUserFromContext(r.Context())

	if err := h.store.MarkNotificationRead(r.Context(), user.ID, chi.URLParam(r, "id")); err != nil {
		MapStoreError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
