package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hyperengineering/fieldops/internal/lifecycle"
	"github.com/hyperengineering/fieldops/internal/notify"
	"github.com/hyperengineering/fieldops/internal/types"
)

// JobScanStore defines the operations required for the job overdue scan.
// Implemented by store.SQLiteStore.
type JobScanStore interface {
	ListOrganizationIDs(ctx context.Context) ([]string, error)
	ListOverdueCandidates(ctx context.Context, organizationID string, cutoff time.Time) ([]types.Job, error)
	SetJobStatus(ctx context.Context, organizationID, id string, status types.JobStatus) error
	ActiveTechnicianIDs(ctx context.Context, jobID string) ([]string, error)
}

// JobScanResult counts jobs touched by an overdue scan.
type JobScanResult struct {
	Overdue int
	Failed  int
}

// JobOverdueScanner flips open jobs past their grace period to overdue.
// It is cheap enough to run on every manager job list load.
type JobOverdueScanner struct {
	store    JobScanStore
	notifier notify.Notifier
}

// NewJobOverdueScanner creates a scanner.
func NewJobOverdueScanner(s JobScanStore, n notify.Notifier) *JobOverdueScanner {
	return &JobOverdueScanner{store: s, notifier: n}
}

// ScanAll runs the overdue scan for every organization, logging and
// skipping organizations that fail.
func (s *JobOverdueScanner) ScanAll(ctx context.Context, now time.Time) (JobScanResult, error) {
	var total JobScanResult

	orgs, err := s.store.ListOrganizationIDs(ctx)
	if err != nil {
		return total, fmt.Errorf("list organizations: %w", err)
	}

	for _, org := range orgs {
		if ctx.Err() != nil {
			return total, ctx.Err()
		}
		res, err := s.ScanOrganization(ctx, org, now)
		if err != nil {
			slog.Error("job overdue scan failed for organization",
				"component", "worker",
				"worker", "job-overdue-scanner",
				"organization_id", org,
				"error", err,
			)
			continue
		}
		total.Overdue += res.Overdue
		total.Failed += res.Failed
	}
	return total, nil
}

// ScanOrganization marks overdue jobs of one organization and notifies its
// managers plus each job's active technicians.
func (s *JobOverdueScanner) ScanOrganization(ctx context.Context, organizationID string, now time.Time) (JobScanResult, error) {
	var res JobScanResult

	jobs, err := s.store.ListOverdueCandidates(ctx, organizationID, lifecycle.OverdueCutoff(now))
	if err != nil {
		return res, fmt.Errorf("list overdue candidates: %w", err)
	}

	for i := range jobs {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		j := &jobs[i]
		if !lifecycle.DeriveJobOverdue(j, now) {
			continue
		}

		if err := s.store.SetJobStatus(ctx, organizationID, j.ID, types.JobOverdue); err != nil {
			slog.Warn("failed to mark job overdue",
				"component", "worker",
				"worker", "job-overdue-scanner",
				"organization_id", organizationID,
				"job_id", j.ID,
				"error", err,
			)
			res.Failed++
			continue
		}
		res.Overdue++
		s.notifyOverdue(ctx, j)
	}

	if res.Overdue > 0 || res.Failed > 0 {
		slog.Info("job overdue scan completed",
			"component", "worker",
			"worker", "job-overdue-scanner",
			"organization_id", organizationID,
			"overdue", res.Overdue,
			"failed", res.Failed,
		)
	}
	return res, nil
}

func (s *JobOverdueScanner) notifyOverdue(ctx context.Context, j *types.Job) {
	techs, err := s.store.ActiveTechnicianIDs(ctx, j.ID)
	if err != nil {
		slog.Warn("failed to load job technicians",
			"component", "worker",
			"worker", "job-overdue-scanner",
			"job_id", j.ID,
			"error", err,
		)
		techs = nil
	}

	event := notify.Event{
		OrganizationID:    j.OrganizationID,
		Type:              types.NotificationJobOverdue,
		Message:           jobOverdueMessage(j),
		RelatedEntityType: types.EntityJob,
		RelatedEntityID:   j.ID,
		Managers:          true,
		Recipients:        techs,
	}
	if err := s.notifier.Notify(ctx, event); err != nil {
		slog.Warn("failed to notify job overdue",
			"component", "worker",
			"worker", "job-overdue-scanner",
			"job_id", j.ID,
			"error", err,
		)
	}
}

func jobOverdueMessage(j *types.Job) string {
	if j.ScheduledStart == nil {
		return fmt.Sprintf("Job %s is overdue.", j.Label())
	}
	return fmt.Sprintf("Job %s is overdue. It was scheduled to start %s.",
		j.Label(), j.ScheduledStart.UTC().Format(types.DateLayout))
}
