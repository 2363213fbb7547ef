package worker

import (
	"context"
	"log/slog"
	"time"
)

// ContractScanRunner runs the contract status scan across organizations.
type ContractScanRunner interface {
	ScanAll(ctx context.Context, now time.Time) (ContractScanResult, error)
}

// JobScanRunner runs the job overdue scan across organizations.
type JobScanRunner interface {
	ScanAll(ctx context.Context, now time.Time) (JobScanResult, error)
}

// ScanCoordinator runs the contract and job scans on a fixed interval.
type ScanCoordinator struct {
	contracts  ContractScanRunner
	jobs       JobScanRunner
	interval   time.Duration
	runOnStart bool
	now        func() time.Time
}

// NewScanCoordinator creates a coordinator. When runOnStart is set the first
// cycle runs immediately instead of after the first interval.
func NewScanCoordinator(contracts ContractScanRunner, jobs JobScanRunner, interval time.Duration, runOnStart bool) *ScanCoordinator {
	return &ScanCoordinator{
		contracts:  contracts,
		jobs:       jobs,
		interval:   interval,
		runOnStart: runOnStart,
		now:        time.Now,
	}
}

// Run starts the scan loop. It blocks until ctx is cancelled.
func (c *ScanCoordinator) Run(ctx context.Context) {
	slog.Info("scan coordinator started",
		"component", "worker",
		"worker", "scan-coordinator",
		"interval", c.interval.String(),
		"run_on_start", c.runOnStart,
	)

	if c.runOnStart {
		c.RunOnce(ctx)
	}

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("scan coordinator stopped",
				"component", "worker",
				"worker", "scan-coordinator",
				"reason", "context_cancelled",
			)
			return
		case <-ticker.C:
			c.RunOnce(ctx)
		}
	}
}

// RunOnce runs one contract scan followed by one job scan. A failure in one
// does not prevent the other.
func (c *ScanCoordinator) RunOnce(ctx context.Context) {
	start := c.now()

	contracts, err := c.contracts.ScanAll(ctx, start)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		slog.Error("contract scan failed",
			"component", "worker",
			"worker", "scan-coordinator",
			"error", err,
		)
	}

	jobs, err := c.jobs.ScanAll(ctx, start)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		slog.Error("job overdue scan failed",
			"component", "worker",
			"worker", "scan-coordinator",
			"error", err,
		)
	}

	slog.Info("scan cycle completed",
		"component", "worker",
		"worker", "scan-coordinator",
		"contracts_overdue", contracts.Overdue,
		"contracts_renewal_needed", contracts.Renewal,
		"contracts_job_creation_needed", contracts.JobCreation,
		"contracts_failed", contracts.Failed,
		"jobs_overdue", jobs.Overdue,
		"jobs_failed", jobs.Failed,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}
