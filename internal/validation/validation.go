package validation

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/hyperengineering/fieldops/internal/types"
)

// ValidationError represents a single field validation failure.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Collector accumulates validation errors without failing on first.
type Collector struct {
	errors []ValidationError
}

// Add appends a validation error to the collector if non-nil.
func (c *Collector) Add(err *ValidationError) {
	if err != nil {
		c.errors = append(c.errors, *err)
	}
}

// HasErrors returns true if the collector has accumulated any errors.
func (c *Collector) HasErrors() bool {
	return len(c.errors) > 0
}

// Errors returns all accumulated validation errors.
func (c *Collector) Errors() []ValidationError {
	return c.errors
}

// ValidateUTF8 returns an error if the value is not valid UTF-8.
func ValidateUTF8(field, value string) *ValidationError {
	if !utf8.ValidString(value) {
		return &ValidationError{
			Field:   field,
			Message: "must be valid UTF-8",
		}
	}
	return nil
}

// ValidateNoNullBytes returns an error if the value contains null bytes.
func ValidateNoNullBytes(field, value string) *ValidationError {
	if strings.Contains(value, "\x00") {
		return &ValidationError{
			Field:   field,
			Message: "must not contain null bytes",
		}
	}
	return nil
}

// ValidateMaxLength returns an error if the value exceeds max runes.
func ValidateMaxLength(field, value string, max int) *ValidationError {
	if utf8.RuneCountInString(value) > max {
		return &ValidationError{
			Field:   field,
			Message: fmt.Sprintf("exceeds maximum length of %d characters", max),
		}
	}
	return nil
}

// ValidateULID returns an error if the value is not a valid ULID format.
// ULIDs are 26 characters using Crockford Base32 (excludes I, L, O, U).
func ValidateULID(field, value string) *ValidationError {
	if len(value) != 26 {
		return &ValidationError{
			Field:   field,
			Message: "must be a valid ULID (26 characters)",
		}
	}

	// Crockford Base32 alphabet: 0123456789ABCDEFGHJKMNPQRSTVWXYZ
	// Excludes: I, L, O, U (to avoid confusion)
	const crockfordBase32 = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"
	for _, r := range value {
		upper := strings.ToUpper(string(r))
		if !strings.Contains(crockfordBase32, upper) {
			return &ValidationError{
				Field:   field,
				Message: "must be a valid ULID (invalid character)",
			}
		}
	}
	return nil
}

// ValidateRequired returns an error if the value is empty or whitespace-only.
func ValidateRequired(field, value string) *ValidationError {
	if strings.TrimSpace(value) == "" {
		return &ValidationError{
			Field:   field,
			Message: "is required",
		}
	}
	return nil
}

// ValidateEnum returns an error if the value is not in the allowed list.
func ValidateEnum(field, value string, allowed []string) *ValidationError {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return &ValidationError{
		Field:   field,
		Message: fmt.Sprintf("must be one of: %s", strings.Join(allowed, ", ")),
	}
}

// ValidateIntRange returns an error if the value is outside [min, max].
func ValidateIntRange(field string, value, min, max int) *ValidationError {
	if value < min || value > max {
		return &ValidationError{
			Field:   field,
			Message: fmt.Sprintf("must be between %d and %d", min, max),
		}
	}
	return nil
}

// ValidateDate returns an error if the value is not a YYYY-MM-DD date.
func ValidateDate(field, value string) *ValidationError {
	if _, err := time.Parse(types.DateLayout, value); err != nil {
		return &ValidationError{
			Field:   field,
			Message: "must be a date in YYYY-MM-DD format",
		}
	}
	return nil
}

// ValidateTimestamp returns an error if the value is not an RFC 3339 timestamp.
func ValidateTimestamp(field, value string) *ValidationError {
	if _, err := time.Parse(time.RFC3339, value); err != nil {
		return &ValidationError{
			Field:   field,
			Message: "must be an RFC 3339 timestamp",
		}
	}
	return nil
}

// Field limits for request text.
const (
	MaxNameLength  = 200
	MaxLabelLength = 100
	MaxNotesLength = 2000
	MaxUnits       = 100
	MaxFrequency   = 12
)

func validateText(c *Collector, field, value string, max int) {
	c.Add(ValidateUTF8(field, value))
	c.Add(ValidateNoNullBytes(field, value))
	c.Add(ValidateMaxLength(field, value, max))
}

func validateServices(c *Collector, services []types.ServiceRequest) {
	for i, svc := range services {
		prefix := fmt.Sprintf("services[%d]", i)
		c.Add(ValidateEnum(prefix+".service_type", svc.ServiceType, types.ServiceTypes))
		c.Add(ValidateIntRange(prefix+".frequency_months", svc.FrequencyMonths, 1, MaxFrequency))
	}
}

// ValidateCreateContract validates a new contract request.
func ValidateCreateContract(req types.CreateContractRequest) []ValidationError {
	var c Collector

	c.Add(ValidateRequired("customer_id", req.CustomerID))
	if req.Name != nil {
		validateText(&c, "name", *req.Name, MaxNameLength)
	}
	if err := ValidateRequired("start_date", req.StartDate); err != nil {
		c.Add(err)
	} else {
		c.Add(ValidateDate("start_date", req.StartDate))
	}
	if req.EndDate != "" {
		c.Add(ValidateDate("end_date", req.EndDate))
		if req.StartDate != "" && req.EndDate < req.StartDate {
			c.Add(&ValidationError{Field: "end_date", Message: "must not be before start_date"})
		}
	}
	if req.AgreementLengthYears != nil {
		c.Add(ValidateIntRange("agreement_length_years", *req.AgreementLengthYears, 1, 50))
	}
	if req.PMDueNext != "" {
		c.Add(ValidateDate("pm_due_next", req.PMDueNext))
	}
	if req.Status != "" {
		c.Add(ValidateEnum("status", req.Status, types.ContractStatuses))
	}
	validateServices(&c, req.Services)

	return c.Errors()
}

// ValidateUpdateContract validates a partial contract edit.
func ValidateUpdateContract(req types.UpdateContractRequest) []ValidationError {
	var c Collector

	if req.Name != nil {
		validateText(&c, "name", *req.Name, MaxNameLength)
	}
	if req.CustomerID != nil {
		c.Add(ValidateRequired("customer_id", *req.CustomerID))
	}
	if req.StartDate != nil {
		c.Add(ValidateDate("start_date", *req.StartDate))
	}
	if req.EndDate != nil {
		c.Add(ValidateDate("end_date", *req.EndDate))
	}
	if req.AgreementLengthYears != nil {
		c.Add(ValidateIntRange("agreement_length_years", *req.AgreementLengthYears, 1, 50))
	}
	if req.PMDueNext != nil && *req.PMDueNext != "" {
		c.Add(ValidateDate("pm_due_next", *req.PMDueNext))
	}
	if req.Status != nil {
		c.Add(ValidateEnum("status", *req.Status, types.ContractStatuses))
	}
	if req.Services != nil {
		validateServices(&c, *req.Services)
	}

	return c.Errors()
}

// ValidateCreateJob validates a new job request.
func ValidateCreateJob(req types.CreateJobRequest) []ValidationError {
	var c Collector

	c.Add(ValidateRequired("customer_id", req.CustomerID))
	if req.Title != nil {
		validateText(&c, "title", *req.Title, MaxNameLength)
	}
	if req.ScheduledStart != "" {
		c.Add(ValidateTimestamp("scheduled_start", req.ScheduledStart))
	}
	if len(req.Units) > MaxUnits {
		c.Add(&ValidationError{
			Field:   "units",
			Message: fmt.Sprintf("exceeds maximum of %d units", MaxUnits),
		})
	}
	for i, u := range req.Units {
		field := fmt.Sprintf("units[%d]", i)
		c.Add(ValidateRequired(field+".label", u.Label))
		validateText(&c, field+".label", u.Label, MaxLabelLength)
		c.Add(ValidateIntRange(field+".expected_report_count", u.ExpectedReportCount, 0, 1000))
	}
	for i, s := range req.Sites {
		field := fmt.Sprintf("sites[%d]", i)
		c.Add(ValidateRequired(field+".site_name", s.SiteName))
		validateText(&c, field+".site_name", s.SiteName, MaxNameLength)
		validateText(&c, field+".notes", s.Notes, MaxNotesLength)
	}
	for i, ct := range req.Contacts {
		field := fmt.Sprintf("contacts[%d]", i)
		c.Add(ValidateRequired(field+".name", ct.Name))
		validateText(&c, field+".name", ct.Name, MaxNameLength)
	}

	return c.Errors()
}

// ValidateJobStatusUpdate validates a manual job status or billing edit.
// At least one of the two must be present. Completion is reserved for the
// checklist.
func ValidateJobStatusUpdate(req types.UpdateJobStatusRequest) []ValidationError {
	var c Collector

	if req.Status == "" && req.BillingStatus == "" {
		c.Add(&ValidationError{Field: "status", Message: "status or billing_status is required"})
	}
	if req.Status == string(types.JobCompleted) {
		c.Add(&ValidationError{Field: "status", Message: "jobs are completed through the checklist"})
	} else if req.Status != "" {
		c.Add(ValidateEnum("status", req.Status, types.JobStatuses))
	}
	if req.BillingStatus != "" {
		c.Add(ValidateEnum("billing_status", req.BillingStatus, types.BillingStatuses))
	}

	return c.Errors()
}

// ValidateAssignTechnician validates a technician assignment request.
func ValidateAssignTechnician(req types.AssignTechnicianRequest) []ValidationError {
	var c Collector
	if err := ValidateRequired("user_id", req.UserID); err != nil {
		c.Add(err)
	} else {
		c.Add(ValidateULID("user_id", req.UserID))
	}
	return c.Errors()
}

// ValidateConfirmReport validates a report upload confirmation.
func ValidateConfirmReport(req types.ConfirmReportRequest) []ValidationError {
	var c Collector
	c.Add(ValidateRequired("key", req.Key))
	return c.Errors()
}

// ValidateAssignmentResponse validates a technician's accept or decline.
func ValidateAssignmentResponse(req types.RespondAssignmentRequest) []ValidationError {
	var c Collector
	c.Add(ValidateEnum("status", req.Status, []string{
		string(types.AssignmentAccepted),
		string(types.AssignmentDeclined),
	}))
	return c.Errors()
}

// ValidateNewUser validates a user created from the command line.
func ValidateNewUser(user types.User) []ValidationError {
	var c Collector
	c.Add(ValidateRequired("name", user.Name))
	validateText(&c, "name", user.Name, MaxNameLength)
	validateText(&c, "email", user.Email, MaxNameLength)
	c.Add(ValidateEnum("role", string(user.Role), types.UserRoles))
	return c.Errors()
}
