package store

import (
	"context"
	"time"

	"github.com/hyperengineering/fieldops/internal/types"
)

// Store defines the interface contract for all fieldops persistence.
// Every organization-scoped operation takes the organization id explicitly;
// callers are responsible for passing the tenant of the acting user.
type Store interface {
	CreateOrganization(ctx context.Context, name string) (*types.Organization, error)
	CreateUser(ctx context.Context, user types.User) (*types.User, error)
	GetUser(ctx context.Context, id string) (*types.User, error)
	ManagerUserIDs(ctx context.Context, organizationID string) ([]string, error)
	ListScanOrganizations(ctx context.Context) ([]string, error)
	ListOrganizationIDs(ctx context.Context) ([]string, error)

	CreateContract(ctx context.Context, contract *types.Contract) error
	GetContract(ctx context.Context, organizationID, id string) (*types.Contract, error)
	ListContracts(ctx context.Context, organizationID string, filter types.ContractFilter) ([]types.Contract, error)
	UpdateContract(ctx context.Context, organizationID, id string, update types.ContractUpdate) (*types.Contract, error)
	CancelContract(ctx context.Context, organizationID, id string) error
	ListScanCandidates(ctx context.Context, organizationID string) ([]ContractCandidate, error)
	UpdateContractStatus(ctx context.Context, organizationID, id string, status types.ContractStatus) error
	MarkContractNotified(ctx context.Context, organizationID, id string, status types.ContractStatus, at time.Time) error

	CreateJob(ctx context.Context, job *types.Job) error
	GetJob(ctx context.Context, organizationID, id string) (*types.Job, error)
	ListJobs(ctx context.Context, organizationID string, filter types.JobFilter) ([]types.Job, error)
	UpdateJobStatus(ctx context.Context, organizationID, id string, status types.JobStatus, actorID string, at time.Time) (*types.Job, error)
	UpdateJobBilling(ctx context.Context, organizationID, id string, billing types.BillingStatus) error
	ListOverdueCandidates(ctx context.Context, organizationID string, cutoff time.Time) ([]types.Job, error)
	SetJobStatus(ctx context.Context, organizationID, id string, status types.JobStatus) error
	AssignTechnician(ctx context.Context, organizationID, jobID, userID string, isLead bool) error
	RespondToAssignment(ctx context.Context, organizationID, jobID, userID string, status types.AssignmentStatus) error
	ActiveTechnicianIDs(ctx context.Context, jobID string) ([]string, error)
	GetJobUnit(ctx context.Context, organizationID, jobID, unitID string) (*types.JobUnit, error)
	RecordReportUpload(ctx context.Context, organizationID, jobID, unitID, objectKey string) (*types.JobUnit, error)

	GetChecklist(ctx context.Context, jobID string) (*types.CompletionChecklist, error)
	SaveChecklist(ctx context.Context, organizationID string, checklist *types.CompletionChecklist, change *types.JobCompletionChange) error

	CreateNotifications(ctx context.Context, batch types.NotificationBatch) (int, error)
	ListNotifications(ctx context.Context, userID string, unreadOnly bool, limit int) ([]types.Notification, error)
	MarkNotificationRead(ctx context.Context, userID, id string) error

	GetStats(ctx context.Context) (*types.StoreStats, error)
	Close() error
}

// ContractCandidate is a non-terminal contract loaded for a status scan,
// together with the scheduled start of its most recent job.
type ContractCandidate struct {
	Contract     types.Contract
	LastJobStart *time.Time
}
