package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/hyperengineering/fieldops/internal/checklist"
	"github.com/hyperengineering/fieldops/internal/reports"
	"github.com/hyperengineering/fieldops/internal/store"
	"github.com/hyperengineering/fieldops/internal/types"
	"github.com/hyperengineering/fieldops/internal/worker"
)

// ContractScanner runs the contract status scan for every organization.
type ContractScanner interface {
	ScanAll(ctx context.Context, now time.Time) (worker.ContractScanResult, error)
}

// JobScanner runs the job overdue scan for one organization.
type JobScanner interface {
	ScanOrganization(ctx context.Context, organizationID string, now time.Time) (worker.JobScanResult, error)
}

// Handler implements the API handlers
type Handler struct {
	store      store.Store
	contracts  ContractScanner
	jobs       JobScanner
	checklists *checklist.Service
	reports    *reports.Service
	apiKey     string
	cronSecret string
	version    string
	now        func() time.Time
}

// NewHandler creates a new Handler over the store, the two scanners and
// the report uploader.
func NewHandler(s store.Store, contracts ContractScanner, jobs JobScanner, uploader reports.Uploader, apiKey, cronSecret, version string) *Handler {
	return &Handler{
		store:      s,
		contracts:  contracts,
		jobs:       jobs,
		checklists: checklist.NewService(s),
		reports:    reports.NewService(s, uploader),
		apiKey:     apiKey,
		cronSecret: cronSecret,
		version:    version,
		now:        time.Now,
	}
}

// Health returns the health status
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.GetStats(r.Context())
	if err != nil {
		slog.Error("health check failed", "request_id", GetRequestID(r.Context()), "error", err)
		WriteProblem(w, r, http.StatusInternalServerError, "Internal Server Error")
		return
	}

	writeJSON(w, http.StatusOK, types.HealthResponse{
		Status:    "healthy",
		Version:   h.version,
		Contracts: stats.ContractCount,
		Jobs:      stats.JobCount,
	})
}

// CheckStatus handles GET /api/contracts/check-status, the cron entry point
// for the contract status scan.
func (h *Handler) CheckStatus(w http.ResponseWriter, r *http.Request) {
	res, err := h.contracts.ScanAll(r.Context(), h.now())
	if err != nil {
		slog.Error("contract status check failed",
			"component", "api",
			"request_id", GetRequestID(r.Context()),
			"error", err,
		)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	slog.Info("contract status check completed",
		"component", "api",
		"request_id", GetRequestID(r.Context()),
		"overdue", res.Overdue,
		"renewal_needed", res.Renewal,
		"job_creation_needed", res.JobCreation,
		"failed", res.Failed,
	)

	writeJSON(w, http.StatusOK, types.CheckStatusResponse{
		Success:           true,
		OverdueContracts:  res.Overdue,
		ExpiringContracts: res.Renewal,
		ActiveContracts:   res.JobCreation,
	})
}

// decodeJSON decodes the request body into v, writing a 400 on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		WriteProblem(w, r, http.StatusBadRequest, fmt.Sprintf("Invalid JSON: %s", err.Error()))
		return false
	}
	return true
}

// parseDate parses an already validated YYYY-MM-DD value.
func parseDate(s string) time.Time {
	t, _ := time.Parse(types.DateLayout, s)
	return t
}
