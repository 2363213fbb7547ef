package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hyperengineering/fieldops/internal/lifecycle"
	"github.com/hyperengineering/fieldops/internal/types"
	"github.com/hyperengineering/fieldops/internal/validation"
)

// DefaultAgreementLengthYears applies when a contract request omits its length.
const DefaultAgreementLengthYears = 1

func toServices(reqs []types.ServiceRequest) []types.ContractService {
	out := make([]types.ContractService, 0, len(reqs))
	for _, s := range reqs {
		out = append(out, types.ContractService{
			ServiceType:     types.ServiceType(s.ServiceType),
			FrequencyMonths: s.FrequencyMonths,
		})
	}
	return out
}

// CreateContract handles POST /api/contracts
func (h *Handler) CreateContract(w http.ResponseWriter, r *http.Request) {
	user := MustUserFromContext(r.Context())

	var req types.CreateContractRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if errs := validation.ValidateCreateContract(req); len(errs) > 0 {
		WriteProblemWithErrors(w, r, "Request contains invalid fields", errs)
		return
	}

	length := DefaultAgreementLengthYears
	if req.AgreementLengthYears != nil {
		length = *req.AgreementLengthYears
	}
	start := parseDate(req.StartDate)
	end := lifecycle.AddMonths(start, 12*length)
	if req.EndDate != "" {
		end = parseDate(req.EndDate)
	}
	status := types.ContractInProgress
	if req.Status != "" {
		status = types.ContractStatus(req.Status)
	}

	c := &types.Contract{
		OrganizationID:       user.OrganizationID,
		CustomerID:           req.CustomerID,
		VendorID:             req.VendorID,
		AgreementNumber:      lifecycle.AgreementNumber(h.now()),
		Name:                 req.Name,
		StartDate:            start,
		EndDate:              end,
		AgreementLengthYears: length,
		Status:               status,
		Services:             toServices(req.Services),
	}
	if req.PMDueNext != "" {
		due := parseDate(req.PMDueNext)
		c.PMDueNext = &due
	}

	if err := h.store.CreateContract(r.Context(), c); err != nil {
		slog.Error("create contract failed",
			"request_id", GetRequestID(r.Context()),
			"organization_id", user.OrganizationID,
			"error", err,
		)
		MapStoreError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, c)
}

// GetContract handles GET /api/contracts/{id}
func (h *Handler) GetContract(w http.ResponseWriter, r *http.Request) {
	user := MustUserFromContext(r.Context())

	c, err := h.store.GetContract(r.Context(), user.OrganizationID, chi.URLParam(r, "id"))
	if err != nil {
		MapStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// ListContracts handles GET /api/contracts with an optional ?status= filter.
func (h *Handler) ListContracts(w http.ResponseWriter, r *http.Request) {
	user := MustUserFromContext(r.Context())

	var filter types.ContractFilter
	if s := r.URL.Query().Get("status"); s != "" {
		if err := validation.ValidateEnum("status", s, types.ContractStatuses); err != nil {
			WriteProblemWithErrors(w, r, "Invalid query parameters", []validation.ValidationError{*err})
			return
		}
		st := types.ContractStatus(s)
		filter.Status = &st
	}

	contracts, err := h.store.ListContracts(r.Context(), user.OrganizationID, filter)
	if err != nil {
		slog.Error("list contracts failed", "request_id", GetRequestID(r.Context()), "error", err)
		MapStoreError(w, r, err)
		return
	}
	if contracts == nil {
		contracts = []types.Contract{}
	}
	writeJSON(w, http.StatusOK, contracts)
}

// UpdateContract handles PATCH /api/contracts/{id}
func (h *Handler) UpdateContract(w http.ResponseWriter, r *http.Request) {
	user := MustUserFromContext(r.Context())

	var req types.UpdateContractRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if errs := validation.ValidateUpdateContract(req); len(errs) > 0 {
		WriteProblemWithErrors(w, r, "Request contains invalid fields", errs)
		return
	}

	u := types.ContractUpdate{
		Name:                 req.Name,
		CustomerID:           req.CustomerID,
		VendorID:             req.VendorID,
		AgreementLengthYears: req.AgreementLengthYears,
	}
	if req.StartDate != nil {
		d := parseDate(*req.StartDate)
		u.StartDate = &d
	}
	if req.EndDate != nil {
		d := parseDate(*req.EndDate)
		u.EndDate = &d
	}
	if req.PMDueNext != nil {
		if *req.PMDueNext == "" {
			u.ClearPMDueNext = true
		} else {
			d := parseDate(*req.PMDueNext)
			u.PMDueNext = &d
		}
	}
	if req.Status != nil {
		st := types.ContractStatus(*req.Status)
		u.Status = &st
	}
	if req.Services != nil {
		u.Services = toServices(*req.Services)
		u.ReplaceServices = true
	}

	c, err := h.store.UpdateContract(r.Context(), user.OrganizationID, chi.URLParam(r, "id"), u)
	if err != nil {
		MapStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// CancelContract handles DELETE /api/contracts/{id}. Contracts are never
// removed, only moved to cancelled.
func (h *Handler) CancelContract(w http.ResponseWriter, r *http.Request) {
	user := MustUserFromContext(r.Context())
	id := chi.URLParam(r, "id")

	if err := h.store.CancelContract(r.Context(), user.OrganizationID, id); err != nil {
		MapStoreError(w, r, err)
		return
	}

	slog.Info("contract cancelled",
		"request_id", GetRequestID(r.Context()),
		"organization_id", user.OrganizationID,
		"contract_id", id,
		"actor", user.ID,
	)
	w.WriteHeader(http.StatusNoContent)
}
