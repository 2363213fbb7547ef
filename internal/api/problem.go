package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hyperengineering/fieldops/internal/checklist"
	"github.com/hyperengineering/fieldops/internal/reports"
	"github.com/hyperengineering/fieldops/internal/store"
	"github.com/hyperengineering/fieldops/internal/validation"
)

// Problem represents an RFC 7807 Problem Details response.
type Problem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail"`
	Instance string `json:"instance,omitempty"`
}

type problemType struct {
	typeURI string
	title   string
}

// problemTypes maps HTTP status codes to RFC 7807 type URIs and titles.
var problemTypes = map[int]problemType{
	http.StatusBadRequest:          {"https://fieldops.dev/errors/bad-request", "Bad Request"},
	http.StatusUnauthorized:        {"https://fieldops.dev/errors/unauthorized", "Unauthorized"},
	http.StatusForbidden:           {"https://fieldops.dev/errors/forbidden", "Forbidden"},
	http.StatusNotFound:            {"https://fieldops.dev/errors/not-found", "Not Found"},
	http.StatusConflict:            {"https://fieldops.dev/errors/conflict", "Conflict"},
	http.StatusUnprocessableEntity: {"https://fieldops.dev/errors/validation-error", "Validation Error"},
	http.StatusInternalServerError: {"https://fieldops.dev/errors/internal-error", "Internal Server Error"},
	http.StatusServiceUnavailable:  {"https://fieldops.dev/errors/service-unavailable", "Service Unavailable"},
}

func lookupProblemType(status int) problemType {
	if pt, ok := problemTypes[status]; ok {
		return pt
	}
	return problemType{"https://fieldops.dev/errors/unknown", http.StatusText(status)}
}

// WriteProblem writes an RFC 7807 Problem Details response.
func WriteProblem(w http.ResponseWriter, r *http.Request, status int, detail string) {
	pt := lookupProblemType(status)
	writeProblemBody(w, status, Problem{
		Type:     pt.typeURI,
		Title:    pt.title,
		Status:   status,
		Detail:   detail,
		Instance: r.URL.Path,
	})
}

// ProblemWithErrors extends Problem with validation error details.
type ProblemWithErrors struct {
	Problem
	Errors []validation.ValidationError `json:"errors,omitempty"`
}

// WriteProblemWithErrors writes a 422 Problem Details response with field errors.
func WriteProblemWithErrors(w http.ResponseWriter, r *http.Request, detail string, errs []validation.ValidationError) {
	pt := lookupProblemType(http.StatusUnprocessableEntity)
	writeProblemBody(w, http.StatusUnprocessableEntity, ProblemWithErrors{
		Problem: Problem{
			Type:     pt.typeURI,
			Title:    pt.title,
			Status:   http.StatusUnprocessableEntity,
			Detail:   detail,
			Instance: r.URL.Path,
		},
		Errors: errs,
	})
}

func writeProblemBody(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("failed to encode problem response", "error", err)
	}
}

// errorStatus maps domain errors to a status code and client-safe detail.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, "Resource not found"
	case errors.Is(err, store.ErrLeadAlreadySet):
		return http.StatusConflict, "Job already has a lead technician"
	case errors.Is(err, store.ErrConflict):
		return http.StatusConflict, "Resource already exists"
	case errors.Is(err, store.ErrNotAssigned):
		return http.StatusForbidden, "Not assigned to this job"
	case errors.Is(err, store.ErrInvalidReference):
		return http.StatusUnprocessableEntity, "Referenced resource does not exist"
	case errors.Is(err, checklist.ErrDerivedGate):
		return http.StatusUnprocessableEntity, "Gate is derived from job data and cannot be set by hand"
	case errors.Is(err, checklist.ErrUnknownGate):
		return http.StatusUnprocessableEntity, "Unknown checklist gate"
	case errors.Is(err, reports.ErrInvalidKey):
		return http.StatusUnprocessableEntity, "Object key was not issued for this unit"
	case errors.Is(err, reports.ErrUploadMissing):
		return http.StatusUnprocessableEntity, "Report has not been uploaded"
	case errors.Is(err, reports.ErrNotConfigured):
		return http.StatusServiceUnavailable, "Report storage is not configured"
	}
	// Never expose internal error details to client
	return http.StatusInternalServerError, "Internal Server Error"
}

// MapStoreError converts domain errors to Problem Details responses.
func MapStoreError(w http.ResponseWriter, r *http.Request, err error) {
	status, detail := errorStatus(err)
	WriteProblem(w, r, status, detail)
}
