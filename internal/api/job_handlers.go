package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hyperengineering/fieldops/internal/lifecycle"
	"github.com/hyperengineering/fieldops/internal/types"
	"github.com/hyperengineering/fieldops/internal/validation"
)

// CreateJob handles POST /api/jobs
func (h *Handler) CreateJob(w http.ResponseWriter, r *http.Request) {
	user := MustUserFromContext(r.Context())

	var req types.CreateJobRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if errs := validation.ValidateCreateJob(req); len(errs) > 0 {
		WriteProblemWithErrors(w, r, "Request contains invalid fields", errs)
		return
	}

	j := &types.Job{
		OrganizationID: user.OrganizationID,
		CustomerID:     req.CustomerID,
		ContractID:     req.ContractID,
		JobNumber:      lifecycle.JobNumber(h.now()),
		Title:          req.Title,
		Status:         types.JobPending,
		BillingStatus:  types.BillingNotBilled,
		Sites:          req.Sites,
		Contacts:       req.Contacts,
	}
	if req.ScheduledStart != "" {
		start, _ := time.Parse(time.RFC3339, req.ScheduledStart)
		start = start.UTC()
		j.ScheduledStart = &start
	}
	for _, u := range req.Units {
		j.Units = append(j.Units, types.JobUnit{Label: u.Label, ExpectedReportCount: u.ExpectedReportCount})
	}

	if err := h.store.CreateJob(r.Context(), j); err != nil {
		slog.Error("create job failed",
			"request_id", GetRequestID(r.Context()),
			"organization_id", user.OrganizationID,
			"error", err,
		)
		MapStoreError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, j)
}

// GetJob handles GET /api/jobs/{id}
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	user := MustUserFromContext(r.Context())

	j, err := h.store.GetJob(r.Context(), user.OrganizationID, chi.URLParam(r, "id"))
	if err != nil {
		MapStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, j)
}

// ListJobs handles GET /api/jobs. For managers the overdue scan runs first
// so the list reflects current overdue state; a failing scan does not
// block the list.
func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	user := MustUserFromContext(r.Context())

	if user.Role == types.RoleManager {
		if _, err := h.jobs.ScanOrganization(r.Context(), user.OrganizationID, h.now()); err != nil {
			slog.Warn("job overdue scan failed",
				"component", "api",
				"request_id", GetRequestID(r.Context()),
				"organization_id", user.OrganizationID,
				"error", err,
			)
		}
	}

	var filter types.JobFilter
	q := r.URL.Query()
	if s := q.Get("status"); s != "" {
		if err := validation.ValidateEnum("status", s, types.JobStatuses); err != nil {
			WriteProblemWithErrors(w, r, "Invalid query parameters", []validation.ValidationError{*err})
			return
		}
		st := types.JobStatus(s)
		filter.Status = &st
	}
	if id := q.Get("service_agreement_id"); id != "" {
		filter.ContractID = &id
	}

	jobs, err := h.store.ListJobs(r.Context(), user.OrganizationID, filter)
	if err != nil {
		slog.Error("list jobs failed", "request_id", GetRequestID(r.Context()), "error", err)
		MapStoreError(w, r, err)
		return
	}
	if jobs == nil {
		jobs = []types.Job{}
	}
	writeJSON(w, http.StatusOK, jobs)
}

// UpdateJobStatus handles PATCH /api/jobs/{id}/status, a manual edit of the
// job status and/or billing status. Completion moves only through the
// checklist, so a completed job's status cannot be edited here.
func (h *Handler) UpdateJobStatus(w http.ResponseWriter, r *http.Request) {
	user := MustUserFromContext(r.Context())
	id := chi.URLParam(r, "id")

	var req types.UpdateJobStatusRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if errs := validation.ValidateJobStatusUpdate(req); len(errs) > 0 {
		WriteProblemWithErrors(w, r, "Request contains invalid fields", errs)
		return
	}

	if req.Status != "" {
		current, err := h.store.GetJob(r.Context(), user.OrganizationID, id)
		if err != nil {
			MapStoreError(w, r, err)
			return
		}
		if current.Status == types.JobCompleted {
			WriteProblemWithErrors(w, r, "Request contains invalid fields", []validation.ValidationError{
				{Field: "status", Message: "completed jobs are reopened by clearing a checklist gate"},
			})
			return
		}
	}

	if req.BillingStatus != "" {
		if err := h.store.UpdateJobBilling(r.Context(), user.OrganizationID, id, types.BillingStatus(req.BillingStatus)); err != nil {
			MapStoreError(w, r, err)
			return
		}
	}

	if req.Status != "" {
		if _, err := h.store.UpdateJobStatus(r.Context(), user.OrganizationID, id, types.JobStatus(req.Status), user.ID, h.now()); err != nil {
			MapStoreError(w, r, err)
			return
		}
		slog.Info("job status updated",
			"request_id", GetRequestID(r.Context()),
			"organization_id", user.OrganizationID,
			"job_id", id,
			"status", req.Status,
			"actor", user.ID,
		)
	}

	j, err := h.store.GetJob(r.Context(), user.OrganizationID, id)
	if err != nil {
		MapStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, j)
}

// AssignTechnician handles POST /api/jobs/{id}/technicians
func (h *Handler) AssignTechnician(w http.ResponseWriter, r *http.Request) {
	user := MustUserFromContext(r.Context())
	id := chi.URLParam(r, "id")

	var req types.AssignTechnicianRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if errs := validation.ValidateAssignTechnician(req); len(errs) > 0 {
		WriteProblemWithErrors(w, r, "Request contains invalid fields", errs)
		return
	}

	if err := h.store.AssignTechnician(r.Context(), user.OrganizationID, id, req.UserID, req.IsLead); err != nil {
		MapStoreError(w, r, err)
		return
	}

	j, err := h.store.GetJob(r.Context(), user.OrganizationID, id)
	if err != nil {
		MapStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, j)
}

// RespondToAssignment handles POST /api/jobs/{id}/technicians/respond.
// The acting user accepts or declines their own assignment.
func (h *Handler) RespondToAssignment(w http.ResponseWriter, r *http.Request) {
	user := MustUserFromContext(r.Context())
	id := chi.URLParam(r, "id")

	var req types.RespondAssignmentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if errs := validation.ValidateAssignmentResponse(req); len(errs) > 0 {
		WriteProblemWithErrors(w, r, "Request contains invalid fields", errs)
		return
	}

	if err := h.store.RespondToAssignment(r.Context(), user.OrganizationID, id, user.ID, types.AssignmentStatus(req.Status)); err != nil {
		MapStoreError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RequestReportUpload handles POST /api/jobs/{id}/units/{unitID}/reports.
// The returned slot is not counted until it is confirmed.
func (h *Handler) RequestReportUpload(w http.ResponseWriter, r *http.Request) {
	user := MustUserFromContext(r.Context())

	up, err := h.reports.RequestUpload(r.Context(), user.OrganizationID, chi.URLParam(r, "id"), chi.URLParam(r, "unitID"))
	if err != nil {
		MapStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, up)
}

// ConfirmReportUpload handles POST /api/jobs/{id}/units/{unitID}/reports/confirm
func (h *Handler) ConfirmReportUpload(w http.ResponseWriter, r *http.Request) {
	user := MustUserFromContext(r.Context())

	var req types.ConfirmReportRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if errs := validation.ValidateConfirmReport(req); len(errs) > 0 {
		WriteProblemWithErrors(w, r, "Request contains invalid fields", errs)
		return
	}

	unit, err := h.reports.ConfirmUpload(r.Context(), user.OrganizationID, chi.URLParam(r, "id"), chi.URLParam(r, "unitID"), req.Key)
	if err != nil {
		MapStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, unit)
}
