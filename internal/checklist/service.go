package checklist

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hyperengineering/fieldops/internal/store"
	"github.com/hyperengineering/fieldops/internal/types"
)

var (
	// ErrDerivedGate is returned when a derived gate is toggled by hand.
	ErrDerivedGate = errors.New("gate is derived from job data")

	// ErrUnknownGate is returned for a gate name outside the visible set.
	ErrUnknownGate = errors.New("unknown checklist gate")
)

// Store is the persistence the checklist needs. Implemented by store.SQLiteStore.
type Store interface {
	GetJob(ctx context.Context, organizationID, id string) (*types.Job, error)
	GetChecklist(ctx context.Context, jobID string) (*types.CompletionChecklist, error)
	SaveChecklist(ctx context.Context, organizationID string, checklist *types.CompletionChecklist, change *types.JobCompletionChange) error
}

// View is the checklist as presented to callers.
type View struct {
	JobID          string                    `json:"job_id"`
	JobStatus      types.JobStatus           `json:"job_status"`
	Gates          types.ChecklistGateValues `json:"gates"`
	Complete       bool                      `json:"complete"`
	PreviousStatus *types.JobStatus          `json:"previous_status,omitempty"`
	UpdatedAt      *time.Time                `json:"updated_at,omitempty"`
}

// Result is the outcome of a checklist operation. Success is false whenever
// nothing was persisted; Cause keeps the underlying error for callers that
// map it to a response.
type Result struct {
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
	Checklist *View  `json:"checklist,omitempty"`
	Cause     error  `json:"-"`
}

func failure(err error) Result {
	return Result{Success: false, Error: err.Error(), Cause: err}
}

// Service applies gate changes and derived-gate refreshes to job checklists.
type Service struct {
	store Store
	now   func() time.Time
}

// NewService creates a checklist service.
func NewService(s Store) *Service {
	return &Service{store: s, now: time.Now}
}

// Toggle sets a manual gate and applies the resulting job status change in
// the same write.
func (s *Service) Toggle(ctx context.Context, organizationID, jobID, gate string, value bool, actor string) Result {
	if Derived(gate) {
		return failure(fmt.Errorf("%s: %w", gate, ErrDerivedGate))
	}
	if _, ok := (types.ChecklistGateValues{}).Get(gate); !ok {
		return failure(fmt.Errorf("%s: %w", gate, ErrUnknownGate))
	}

	job, current, err := s.load(ctx, organizationID, jobID)
	if err != nil {
		return failure(err)
	}

	gates := DeriveGates(current.Gates, job)
	gates, _ = gates.With(gate, value)

	return s.apply(ctx, organizationID, job, current, gates, actor, "toggle")
}

// Sync recomputes the derived gates and writes only when they changed.
func (s *Service) Sync(ctx context.Context, organizationID, jobID, actor string) Result {
	job, current, err := s.load(ctx, organizationID, jobID)
	if err != nil {
		return failure(err)
	}

	gates := DeriveGates(current.Gates, job)
	if gates == current.Gates {
		return Result{Success: true, Checklist: view(job.Status, current)}
	}

	return s.apply(ctx, organizationID, job, current, gates, actor, "sync")
}

func (s *Service) load(ctx context.Context, organizationID, jobID string) (*types.Job, *types.CompletionChecklist, error) {
	job, err := s.store.GetJob(ctx, organizationID, jobID)
	if err != nil {
		return nil, nil, err
	}

	current, err := s.store.GetChecklist(ctx, jobID)
	if errors.Is(err, store.ErrNotFound) {
		return job, &types.CompletionChecklist{JobID: jobID}, nil
	}
	if err != nil {
		return nil, nil, err
	}
	return job, current, nil
}

func (s *Service) apply(ctx context.Context, organizationID string, job *types.Job, current *types.CompletionChecklist, gates types.ChecklistGateValues, actor, action string) Result {
	now := s.now().UTC()
	next, change := Transition(StateOf(current), gates, job.Status, actor, now)

	updated := &types.CompletionChecklist{
		JobID:          job.ID,
		Gates:          gates,
		PreviousStatus: next.previous(),
		UpdatedAt:      now,
	}
	if actor != "" {
		by := actor
		updated.UpdatedBy = &by
	}

	if err := s.store.SaveChecklist(ctx, organizationID, updated, change); err != nil {
		slog.Error("checklist write failed",
			"component", "checklist",
			"action", action,
			"organization_id", organizationID,
			"job_id", job.ID,
			"error", err,
		)
		return failure(err)
	}

	status := job.Status
	if change != nil {
		status = change.Status
		slog.Info("job completion changed",
			"component", "checklist",
			"action", action,
			"organization_id", organizationID,
			"job_id", job.ID,
			"from", job.Status,
			"to", change.Status,
		)
	}

	return Result{Success: true, Checklist: view(status, updated)}
}

func view(status types.JobStatus, c *types.CompletionChecklist) *View {
	v := &View{
		JobID:          c.JobID,
		JobStatus:      status,
		Gates:          c.Gates,
		Complete:       c.PreviousStatus != nil,
		PreviousStatus: c.PreviousStatus,
	}
	if !c.UpdatedAt.IsZero() {
		at := c.UpdatedAt
		v.UpdatedAt = &at
	}
	return v
}
