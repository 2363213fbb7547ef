package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hyperengineering/fieldops/internal/lifecycle"
	"github.com/hyperengineering/fieldops/internal/notify"
	"github.com/hyperengineering/fieldops/internal/store"
	"github.com/hyperengineering/fieldops/internal/types"
)

// DefaultNotifyCooldown is how long a contract stays quiet after being
// notified for a given status.
const DefaultNotifyCooldown = 7 * 24 * time.Hour

// ContractScanStore defines the operations required for the contract status scan.
// Implemented by store.SQLiteStore.
type ContractScanStore interface {
	ListScanOrganizations(ctx context.Context) ([]string, error)
	ListScanCandidates(ctx context.Context, organizationID string) ([]store.ContractCandidate, error)
	UpdateContractStatus(ctx context.Context, organizationID, id string, status types.ContractStatus) error
	MarkContractNotified(ctx context.Context, organizationID, id string, status types.ContractStatus, at time.Time) error
}

// ContractScanResult counts contracts touched by a scan, per category.
type ContractScanResult struct {
	Overdue     int
	Renewal     int
	JobCreation int
	Notified    int
	Suppressed  int
	Failed      int
}

func (r *ContractScanResult) add(o ContractScanResult) {
	r.Overdue += o.Overdue
	r.Renewal += o.Renewal
	r.JobCreation += o.JobCreation
	r.Notified += o.Notified
	r.Suppressed += o.Suppressed
	r.Failed += o.Failed
}

// Total is the number of contracts whose status changed.
func (r ContractScanResult) Total() int {
	return r.Overdue + r.Renewal + r.JobCreation
}

// ContractScanner rolls contract statuses forward from their dates and
// notifies managers of each transition.
type ContractScanner struct {
	store    ContractScanStore
	notifier notify.Notifier
	cooldown time.Duration
}

// NewContractScanner creates a scanner. A non-positive cooldown uses DefaultNotifyCooldown.
func NewContractScanner(s ContractScanStore, n notify.Notifier, cooldown time.Duration) *ContractScanner {
	if cooldown <= 0 {
		cooldown = DefaultNotifyCooldown
	}
	return &ContractScanner{store: s, notifier: n, cooldown: cooldown}
}

// ScanAll scans every organization with open contracts. A failing
// organization is logged and skipped; only failing to enumerate
// organizations is returned as an error.
func (s *ContractScanner) ScanAll(ctx context.Context, now time.Time) (ContractScanResult, error) {
	var total ContractScanResult

	orgs, err := s.store.ListScanOrganizations(ctx)
	if err != nil {
		return total, fmt.Errorf("list scan organizations: %w", err)
	}

	for _, org := range orgs {
		if ctx.Err() != nil {
			return total, ctx.Err()
		}
		res, err := s.ScanOrganization(ctx, org, now)
		if err != nil {
			slog.Error("contract scan failed for organization",
				"component", "worker",
				"worker", "contract-scanner",
				"organization_id", org,
				"error", err,
			)
			continue
		}
		total.add(res)
	}
	return total, nil
}

// ScanOrganization applies at most one transition to each open contract of
// the organization. Per-contract failures are logged and counted, never returned.
func (s *ContractScanner) ScanOrganization(ctx context.Context, organizationID string, now time.Time) (ContractScanResult, error) {
	var res ContractScanResult

	candidates, err := s.store.ListScanCandidates(ctx, organizationID)
	if err != nil {
		return res, fmt.Errorf("list scan candidates: %w", err)
	}

	today := lifecycle.Date(now.UTC())
	for i := range candidates {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		c := &candidates[i].Contract
		tr, ok := lifecycle.DeriveContractStatus(c, c.Services, candidates[i].LastJobStart, today)
		if !ok {
			continue
		}
		s.apply(ctx, c, tr, now, &res)
	}

	if res.Total() > 0 || res.Failed > 0 {
		slog.Info("contract scan completed",
			"component", "worker",
			"worker", "contract-scanner",
			"organization_id", organizationID,
			"contracts_scanned", len(candidates),
			"overdue", res.Overdue,
			"renewal_needed", res.Renewal,
			"job_creation_needed", res.JobCreation,
			"notified", res.Notified,
			"suppressed", res.Suppressed,
			"failed", res.Failed,
		)
	}
	return res, nil
}

func (s *ContractScanner) apply(ctx context.Context, c *types.Contract, tr lifecycle.Transition, now time.Time, res *ContractScanResult) {
	if err := s.store.UpdateContractStatus(ctx, c.OrganizationID, c.ID, tr.To); err != nil {
		slog.Warn("failed to update contract status",
			"component", "worker",
			"worker", "contract-scanner",
			"organization_id", c.OrganizationID,
			"contract_id", c.ID,
			"status", tr.To,
			"error", err,
		)
		res.Failed++
		return
	}

	switch tr.Condition {
	case lifecycle.ConditionOverdue:
		res.Overdue++
	case lifecycle.ConditionRenewal:
		res.Renewal++
	case lifecycle.ConditionJobCreation:
		res.JobCreation++
	}

	if !lifecycle.ShouldNotify(c, tr.To, now, s.cooldown) {
		res.Suppressed++
		return
	}

	event := notify.Event{
		OrganizationID:    c.OrganizationID,
		Type:              contractNotificationType(tr.Condition),
		Message:           contractMessage(c, tr),
		RelatedEntityType: types.EntityContract,
		RelatedEntityID:   c.ID,
		Managers:          true,
	}
	if err := s.notifier.Notify(ctx, event); err != nil {
		slog.Warn("failed to notify contract transition",
			"component", "worker",
			"worker", "contract-scanner",
			"organization_id", c.OrganizationID,
			"contract_id", c.ID,
			"error", err,
		)
		return
	}
	res.Notified++

	if err := s.store.MarkContractNotified(ctx, c.OrganizationID, c.ID, tr.To, now); err != nil {
		slog.Warn("failed to record contract notification",
			"component", "worker",
			"worker", "contract-scanner",
			"contract_id", c.ID,
			"error", err,
		)
	}
}

func contractNotificationType(cond lifecycle.Condition) string {
	switch cond {
	case lifecycle.ConditionOverdue:
		return types.NotificationContractOverdue
	case lifecycle.ConditionRenewal:
		return types.NotificationContractRenewalNeeded
	default:
		return types.NotificationContractJobDue
	}
}

func contractMessage(c *types.Contract, tr lifecycle.Transition) string {
	due := tr.Due.Format(types.DateLayout)
	switch tr.Condition {
	case lifecycle.ConditionOverdue:
		return fmt.Sprintf("Service agreement %s ended on %s and is now overdue.", c.Label(), due)
	case lifecycle.ConditionRenewal:
		return fmt.Sprintf("Service agreement %s ends on %s and needs renewal.", c.Label(), due)
	default:
		return fmt.Sprintf("Service agreement %s needs a job created. Next service is due %s.", c.Label(), due)
	}
}
