package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hyperengineering/fieldops/internal/checklist"
	"github.com/hyperengineering/fieldops/internal/reports"
	"github.com/hyperengineering/fieldops/internal/store"
	"github.com/hyperengineering/fieldops/internal/validation"
)

func TestWriteProblem_BodyFormat(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/api/contracts/abc", nil)

	WriteProblem(w, r, http.StatusNotFound, "Resource not found")

	if w.Code != http.StatusNotFound {
		t.Errorf("status code = %d, want 404", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/problem+json" {
		t.Errorf("Content-Type = %v, want application/problem+json", ct)
	}

	var p Problem
	if err := json.Unmarshal(w.Body.Bytes(), &p); err != nil {
		t.Fatalf("failed to unmarshal response body: %v", err)
	}
	want := Problem{
		Type:     "https://fieldops.dev/errors/not-found",
		Title:    "Not Found",
		Status:   404,
		Detail:   "Resource not found",
		Instance: "/api/contracts/abc",
	}
	if p != want {
		t.Errorf("problem = %+v, want %+v", p, want)
	}
}

func TestWriteProblem_UnknownStatus(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/api/jobs", nil)

	WriteProblem(w, r, http.StatusTeapot, "short and stout")

	var p Problem
	if err := json.Unmarshal(w.Body.Bytes(), &p); err != nil {
		t.Fatal(err)
	}
	if p.Type != "https://fieldops.dev/errors/unknown" || p.Title != http.StatusText(http.StatusTeapot) {
		t.Errorf("unexpected problem %+v", p)
	}
}

func TestWriteProblemWithErrors_422(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/api/contracts", nil)

	errs := []validation.ValidationError{
		{Field: "customer_id", Message: "is required"},
		{Field: "services[0].frequency_months", Message: "must be between 1 and 12"},
	}
	WriteProblemWithErrors(w, r, "Request contains invalid fields", errs)

	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", w.Code)
	}
	var p ProblemWithErrors
	if err := json.Unmarshal(w.Body.Bytes(), &p); err != nil {
		t.Fatal(err)
	}
	if p.Type != "https://fieldops.dev/errors/validation-error" || p.Status != 422 {
		t.Errorf("unexpected problem %+v", p.Problem)
	}
	if len(p.Errors) != 2 || p.Errors[1].Field != "services[0].frequency_months" {
		t.Errorf("errors = %+v", p.Errors)
	}
}

func TestMapStoreError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantDetail string
	}{
		{"not found", fmt.Errorf("get job: %w", store.ErrNotFound), http.StatusNotFound, "Resource not found"},
		{"conflict", store.ErrConflict, http.StatusConflict, "Resource already exists"},
		{"lead already set", store.ErrLeadAlreadySet, http.StatusConflict, "Job already has a lead technician"},
		{"not assigned", store.ErrNotAssigned, http.StatusForbidden, "Not assigned to this job"},
		{"invalid reference", fmt.Errorf("insert job: %w", store.ErrInvalidReference), http.StatusUnprocessableEntity, "Referenced resource does not exist"},
		{"derived gate", checklist.ErrDerivedGate, http.StatusUnprocessableEntity, "Gate is derived from job data and cannot be set by hand"},
		{"unknown gate", checklist.ErrUnknownGate, http.StatusUnprocessableEntity, "Unknown checklist gate"},
		{"foreign key", reports.ErrInvalidKey, http.StatusUnprocessableEntity, "Object key was not issued for this unit"},
		{"upload missing", reports.ErrUploadMissing, http.StatusUnprocessableEntity, "Report has not been uploaded"},
		{"storage off", reports.ErrNotConfigured, http.StatusServiceUnavailable, "Report storage is not configured"},
		{"unknown", errors.New("sql: database is closed"), http.StatusInternalServerError, "Internal Server Error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodGet, "/api/jobs/1", nil)

			MapStoreError(w, r, tt.err)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			var p Problem
			if err := json.Unmarshal(w.Body.Bytes(), &p); err != nil {
				t.Fatal(err)
			}
			if p.Detail != tt.wantDetail {
				t.Errorf("detail = %q, want %q", p.Detail, tt.wantDetail)
			}
		})
	}
}
