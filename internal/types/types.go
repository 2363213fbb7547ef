package types

import (
	"time"
)

// DateLayout is the wire format for calendar dates (start/end dates, due dates).
const DateLayout = "2006-01-02"

// ContractStatus is the lifecycle state of a service agreement.
type ContractStatus string

const (
	ContractJobCreationNeeded ContractStatus = "job_creation_needed"
	ContractInProgress        ContractStatus = "in_progress"
	ContractRenewalNeeded     ContractStatus = "renewal_needed"
	ContractOnHold            ContractStatus = "on_hold"
	ContractOverdue           ContractStatus = "overdue"
	ContractEnded             ContractStatus = "ended"
	ContractCancelled         ContractStatus = "cancelled"

	// ContractActive is a legacy value still present on older rows.
	// The job creation check treats it like in_progress.
	ContractActive ContractStatus = "active"
)

// ContractStatuses lists every status accepted on write.
var ContractStatuses = []string{
	string(ContractJobCreationNeeded),
	string(ContractInProgress),
	string(ContractRenewalNeeded),
	string(ContractOnHold),
	string(ContractOverdue),
	string(ContractEnded),
	string(ContractCancelled),
	string(ContractActive),
}

// IsTerminal reports whether the status is excluded from all scans permanently.
func (s ContractStatus) IsTerminal() bool {
	return s == ContractEnded || s == ContractCancelled
}

// ServiceType is the kind of preventive maintenance a contract covers.
type ServiceType string

const (
	ServiceMajorPM ServiceType = "MJPM"
	ServiceMinorPM ServiceType = "MNPM"
)

// ServiceTypes lists the accepted service types.
var ServiceTypes = []string{string(ServiceMajorPM), string(ServiceMinorPM)}

// ContractService is one recurring service configured on a contract.
// FrequencyMonths is, despite the column name, the number of occurrences per year.
type ContractService struct {
	ID              string      `json:"id"`
	ContractID      string      `json:"service_agreement_id"`
	ServiceType     ServiceType `json:"service_type"`
	FrequencyMonths int         `json:"frequency_months"`
}

// Contract is a service agreement between the organization and a customer.
type Contract struct {
	ID                   string            `json:"id"`
	OrganizationID       string            `json:"organization_id"`
	CustomerID           string            `json:"customer_id"`
	VendorID             *string           `json:"vendor_id,omitempty"`
	AgreementNumber      string            `json:"agreement_number"`
	Name                 *string           `json:"name,omitempty"`
	StartDate            time.Time         `json:"start_date"`
	EndDate              time.Time         `json:"end_date"`
	AgreementLengthYears int               `json:"agreement_length_years"`
	PMDueNext            *time.Time        `json:"pm_due_next,omitempty"`
	Status               ContractStatus    `json:"status"`
	LastNotifiedAt       *time.Time        `json:"last_notified_at,omitempty"`
	LastNotifiedStatus   *ContractStatus   `json:"last_notified_status,omitempty"`
	Services             []ContractService `json:"services"`
	CreatedAt            time.Time         `json:"created_at"`
	UpdatedAt            time.Time         `json:"updated_at"`
}

// Label returns the human name used in notification messages:
// the contract name, else its agreement number, else its id.
func (c *Contract) Label() string {
	if c.Name != nil && *c.Name != "" {
		return *c.Name
	}
	if c.AgreementNumber != "" {
		return c.AgreementNumber
	}
	return c.ID
}

// JobStatus is the lifecycle state of a job.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobConfirmed JobStatus = "confirmed"
	JobCompleted JobStatus = "completed"
	JobCancelled JobStatus = "cancelled"
	JobOnHold    JobStatus = "on_hold"
	JobOverdue   JobStatus = "overdue"
)

// JobStatuses lists every job status accepted on write.
var JobStatuses = []string{
	string(JobPending),
	string(JobConfirmed),
	string(JobCompleted),
	string(JobCancelled),
	string(JobOnHold),
	string(JobOverdue),
}

// BillingStatus tracks invoicing of a job.
type BillingStatus string

const (
	BillingNotBilled  BillingStatus = "not_billed"
	BillingInvoiced   BillingStatus = "invoiced"
	BillingPaid       BillingStatus = "paid"
	BillingUnBillable BillingStatus = "un_billable"
)

// BillingStatuses lists every billing status accepted on write.
var BillingStatuses = []string{
	string(BillingNotBilled),
	string(BillingInvoiced),
	string(BillingPaid),
	string(BillingUnBillable),
}

// AssignmentStatus is a technician's response to a job assignment.
type AssignmentStatus string

const (
	AssignmentPending   AssignmentStatus = "pending"
	AssignmentAccepted  AssignmentStatus = "accepted"
	AssignmentDeclined  AssignmentStatus = "declined"
	AssignmentCancelled AssignmentStatus = "cancelled"
)

// AssignmentStatuses lists every assignment status accepted on write.
var AssignmentStatuses = []string{
	string(AssignmentPending),
	string(AssignmentAccepted),
	string(AssignmentDeclined),
	string(AssignmentCancelled),
}

// Active reports whether the technician is still expected on the job.
func (s AssignmentStatus) Active() bool {
	return s == AssignmentPending || s == AssignmentAccepted
}

// JobTechnician is a technician assigned to a job.
type JobTechnician struct {
	UserID string           `json:"user_id"`
	Status AssignmentStatus `json:"status"`
	IsLead bool             `json:"is_lead"`
}

// JobUnit is a piece of customer equipment serviced by a job.
type JobUnit struct {
	ID                  string `json:"id"`
	Label               string `json:"label"`
	ExpectedReportCount int    `json:"expected_report_count"`
	UploadedReportCount int    `json:"uploaded_report_count"`
}

// JobSite is a site location visited by a job.
type JobSite struct {
	SiteName string `json:"site_name"`
	Notes    string `json:"notes,omitempty"`
}

// JobContact is an on-site contact for a job.
type JobContact struct {
	Name  string `json:"name"`
	Phone string `json:"phone,omitempty"`
	Email string `json:"email,omitempty"`
}

// Job is a unit of field work, optionally generated from a contract.
// A nil ContractID marks a non-contract "daily" job.
type Job struct {
	ID             string          `json:"id"`
	OrganizationID string          `json:"organization_id"`
	CustomerID     string          `json:"customer_id"`
	ContractID     *string         `json:"service_agreement_id,omitempty"`
	JobNumber      string          `json:"job_number"`
	Title          *string         `json:"title,omitempty"`
	ScheduledStart *time.Time      `json:"scheduled_start,omitempty"`
	Status         JobStatus       `json:"status"`
	BillingStatus  BillingStatus   `json:"billing_status"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"`
	CompletedBy    *string         `json:"completed_by,omitempty"`
	Technicians    []JobTechnician `json:"technicians,omitempty"`
	Units          []JobUnit       `json:"units,omitempty"`
	Sites          []JobSite       `json:"sites,omitempty"`
	Contacts       []JobContact    `json:"contacts,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// Label returns the job title, else its job number.
func (j *Job) Label() string {
	if j.Title != nil && *j.Title != "" {
		return *j.Title
	}
	return j.JobNumber
}

// Checklist gate names.
const (
	GateReportsUploaded    = "reports_uploaded"
	GateSentToCustomer     = "sent_to_customer"
	GateSavedInFile        = "saved_in_file"
	GateInvoiced           = "invoiced"
	GatePartsLogisticsDone = "parts_logistics_done"
)

// ChecklistGates lists the five visible gates, in display order.
var ChecklistGates = []string{
	GateReportsUploaded,
	GateSentToCustomer,
	GateSavedInFile,
	GateInvoiced,
	GatePartsLogisticsDone,
}

// ChecklistGateValues holds the five visible gates plus the unused legacy gate.
type ChecklistGateValues struct {
	ReportsUploaded    bool `json:"reports_uploaded"`
	SentToCustomer     bool `json:"sent_to_customer"`
	SavedInFile        bool `json:"saved_in_file"`
	Invoiced           bool `json:"invoiced"`
	PartsLogisticsDone bool `json:"parts_logistics_done"`
	PhotosAttached     bool `json:"photos_attached"`
}

// AllVisible reports whether all five visible gates are set.
// PhotosAttached never participates.
func (g ChecklistGateValues) AllVisible() bool {
	return g.ReportsUploaded && g.SentToCustomer && g.SavedInFile && g.Invoiced && g.PartsLogisticsDone
}

// Get returns the value of the named gate.
func (g ChecklistGateValues) Get(gate string) (bool, bool) {
	switch gate {
	case GateReportsUploaded:
		return g.ReportsUploaded, true
	case GateSentToCustomer:
		return g.SentToCustomer, true
	case GateSavedInFile:
		return g.SavedInFile, true
	case GateInvoiced:
		return g.Invoiced, true
	case GatePartsLogisticsDone:
		return g.PartsLogisticsDone, true
	}
	return false, false
}

// With returns a copy with the named gate set to value.
func (g ChecklistGateValues) With(gate string, value bool) (ChecklistGateValues, bool) {
	switch gate {
	case GateReportsUploaded:
		g.ReportsUploaded = value
	case GateSentToCustomer:
		g.SentToCustomer = value
	case GateSavedInFile:
		g.SavedInFile = value
	case GateInvoiced:
		g.Invoiced = value
	case GatePartsLogisticsDone:
		g.PartsLogisticsDone = value
	default:
		return g, false
	}
	return g, true
}

// CompletionChecklist is the stored row behind a job's checklist.
// PreviousStatus is non-nil exactly while the checklist is complete.
type CompletionChecklist struct {
	JobID          string              `json:"job_id"`
	Gates          ChecklistGateValues `json:"gates"`
	PreviousStatus *JobStatus          `json:"previous_status,omitempty"`
	UpdatedBy      *string             `json:"updated_by,omitempty"`
	UpdatedAt      time.Time           `json:"updated_at"`
}

// UserRole is the role of a user inside an organization.
type UserRole string

const (
	RoleManager    UserRole = "manager"
	RoleTechnician UserRole = "technician"
	RoleOffice     UserRole = "office"
)

// UserRoles lists every role accepted on write.
var UserRoles = []string{
	string(RoleManager),
	string(RoleTechnician),
	string(RoleOffice),
}

// User is a member of an organization.
type User struct {
	ID             string   `json:"id"`
	OrganizationID string   `json:"organization_id"`
	Name           string   `json:"name"`
	Email          string   `json:"email"`
	Role           UserRole `json:"role"`
}

// Organization is a tenant.
type Organization struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Notification types.
const (
	NotificationContractOverdue       = "contract_overdue"
	NotificationContractRenewalNeeded = "contract_renewal_needed"
	NotificationContractJobDue        = "contract_job_creation_needed"
	NotificationJobOverdue            = "job_overdue"
)

// Related entity types for notifications.
const (
	EntityContract = "service_agreement"
	EntityJob      = "job"
)

// Notification is a message delivered to a single recipient.
type Notification struct {
	ID                string    `json:"id"`
	OrganizationID    string    `json:"organization_id"`
	RecipientUserID   string    `json:"recipient_user_id"`
	Type              string    `json:"type"`
	Message           string    `json:"message"`
	RelatedEntityType *string   `json:"related_entity_type,omitempty"`
	RelatedEntityID   *string   `json:"related_entity_id,omitempty"`
	IsRead            bool      `json:"is_read"`
	CreatedAt         time.Time `json:"created_at"`
}

// NotificationBatch fans a single event out to many recipients.
type NotificationBatch struct {
	OrganizationID    string
	RecipientUserIDs  []string
	Type              string
	Message           string
	RelatedEntityType string
	RelatedEntityID   string
}

// ContractFilter narrows contract listings.
type ContractFilter struct {
	Status *ContractStatus
}

// JobFilter narrows job listings.
type JobFilter struct {
	Status     *JobStatus
	ContractID *string
}

// HealthResponse is the body of GET /api/health.
type HealthResponse struct {
	Status    string `json:"status"`
	Version   string `json:"version"`
	Contracts int64  `json:"contracts"`
	Jobs      int64  `json:"jobs"`
}

// StoreStats is an aggregate view used by the health endpoint.
type StoreStats struct {
	ContractCount int64
	JobCount      int64
}

// ContractUpdate carries a partial edit of a contract. Nil fields are left unchanged.
// A non-nil Services replaces the whole service list.
type ContractUpdate struct {
	Name                 *string
	CustomerID           *string
	VendorID             *string
	StartDate            *time.Time
	EndDate              *time.Time
	AgreementLengthYears *int
	PMDueNext            *time.Time
	ClearPMDueNext       bool
	Status               *ContractStatus
	Services             []ContractService
	ReplaceServices      bool
}

// JobCompletionChange is the job-side effect of a checklist transition.
type JobCompletionChange struct {
	Status      JobStatus
	CompletedAt *time.Time
	CompletedBy *string
}

// ServiceRequest is one service line in a contract request.
type ServiceRequest struct {
	ServiceType     string `json:"service_type"`
	FrequencyMonths int    `json:"frequency_months"`
}

// CreateContractRequest is the body of POST /api/contracts.
// Dates are YYYY-MM-DD. EndDate defaults to StartDate plus the agreement length.
type CreateContractRequest struct {
	CustomerID           string           `json:"customer_id"`
	VendorID             *string          `json:"vendor_id,omitempty"`
	Name                 *string          `json:"name,omitempty"`
	StartDate            string           `json:"start_date"`
	EndDate              string           `json:"end_date,omitempty"`
	AgreementLengthYears *int             `json:"agreement_length_years,omitempty"`
	PMDueNext            string           `json:"pm_due_next,omitempty"`
	Status               string           `json:"status,omitempty"`
	Services             []ServiceRequest `json:"services"`
}

// UpdateContractRequest is the body of PATCH /api/contracts/{id}.
// Absent fields are left unchanged; an empty PMDueNext string clears it.
type UpdateContractRequest struct {
	Name                 *string           `json:"name,omitempty"`
	CustomerID           *string           `json:"customer_id,omitempty"`
	VendorID             *string           `json:"vendor_id,omitempty"`
	StartDate            *string           `json:"start_date,omitempty"`
	EndDate              *string           `json:"end_date,omitempty"`
	AgreementLengthYears *int              `json:"agreement_length_years,omitempty"`
	PMDueNext            *string           `json:"pm_due_next,omitempty"`
	Status               *string           `json:"status,omitempty"`
	Services             *[]ServiceRequest `json:"services,omitempty"`
}

// UnitRequest is one unit in a job request.
type UnitRequest struct {
	Label               string `json:"label"`
	ExpectedReportCount int    `json:"expected_report_count"`
}

// CreateJobRequest is the body of POST /api/jobs. ScheduledStart is RFC 3339.
type CreateJobRequest struct {
	CustomerID     string        `json:"customer_id"`
	ContractID     *string       `json:"service_agreement_id,omitempty"`
	Title          *string       `json:"title,omitempty"`
	ScheduledStart string        `json:"scheduled_start,omitempty"`
	Units          []UnitRequest `json:"units,omitempty"`
	Sites          []JobSite     `json:"sites,omitempty"`
	Contacts       []JobContact  `json:"contacts,omitempty"`
}

// UpdateJobStatusRequest is the body of PATCH /api/jobs/{id}/status.
type UpdateJobStatusRequest struct {
	Status        string `json:"status,omitempty"`
	BillingStatus string `json:"billing_status,omitempty"`
}

// AssignTechnicianRequest is the body of POST /api/jobs/{id}/technicians.
type AssignTechnicianRequest struct {
	UserID string `json:"user_id"`
	IsLead bool   `json:"is_lead"`
}

// ConfirmReportRequest is the body of
// POST /api/jobs/{id}/units/{unitID}/reports/confirm.
type ConfirmReportRequest struct {
	Key string `json:"key"`
}

// RespondAssignmentRequest is the body of POST /api/jobs/{id}/technicians/respond.
type RespondAssignmentRequest struct {
	Status string `json:"status"`
}

// ToggleGateRequest is the body of PATCH /api/jobs/{id}/checklist.
type ToggleGateRequest struct {
	Gate  string `json:"gate"`
	Value bool   `json:"value"`
}

// CheckStatusResponse is the body returned by the cron status check.
type CheckStatusResponse struct {
	Success           bool `json:"success"`
	OverdueContracts  int  `json:"overdueContracts"`
	ExpiringContracts int  `json:"expiringContracts"`
	ActiveContracts   int  `json:"activeContracts"`
}
