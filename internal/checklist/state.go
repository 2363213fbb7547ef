// Package checklist keeps a job's completion checklist and its status in step.
//
// All five visible gates are set exactly when the job is completed. Reaching
// that point records the job's prior status so that clearing any gate can
// put it back.
package checklist

import (
	"time"

	"github.com/hyperengineering/fieldops/internal/types"
)

// FallbackPreviousStatus is restored when a checklist is un-completed without
// a recorded prior status.
const FallbackPreviousStatus = types.JobConfirmed

// State is the completion state of a checklist: Incomplete or Complete.
type State interface {
	previous() *types.JobStatus
}

// Incomplete means at least one visible gate is unset.
type Incomplete struct{}

func (Incomplete) previous() *types.JobStatus { return nil }

// Complete means every visible gate is set. PreviousStatus is the job status
// to restore when a gate is cleared.
type Complete struct {
	PreviousStatus types.JobStatus
}

func (c Complete) previous() *types.JobStatus {
	st := c.PreviousStatus
	return &st
}

// StateOf reads the state recorded on a stored checklist.
func StateOf(c *types.CompletionChecklist) State {
	if c == nil || c.PreviousStatus == nil {
		return Incomplete{}
	}
	return Complete{PreviousStatus: *c.PreviousStatus}
}

// Transition computes the state after gates take effect on a job currently in
// status. The returned change is nil when the job status stays as it is.
func Transition(from State, gates types.ChecklistGateValues, status types.JobStatus, actor string, now time.Time) (State, *types.JobCompletionChange) {
	if gates.AllVisible() {
		next, ok := from.(Complete)
		if !ok {
			next = Complete{PreviousStatus: status}
			if status == types.JobCompleted {
				next.PreviousStatus = FallbackPreviousStatus
			}
		}
		if status == types.JobCompleted {
			return next, nil
		}
		at := now.UTC()
		by := actor
		return next, &types.JobCompletionChange{
			Status:      types.JobCompleted,
			CompletedAt: &at,
			CompletedBy: &by,
		}
	}

	if status != types.JobCompleted {
		return Incomplete{}, nil
	}
	restore := FallbackPreviousStatus
	if c, ok := from.(Complete); ok && c.PreviousStatus != types.JobCompleted {
		restore = c.PreviousStatus
	}
	return Incomplete{}, &types.JobCompletionChange{Status: restore}
}

// DeriveGates overwrites the gates that follow from job data: reports are
// uploaded once every unit has its expected count, and a job counts as
// invoiced once billing has been settled either way.
func DeriveGates(g types.ChecklistGateValues, job *types.Job) types.ChecklistGateValues {
	g.ReportsUploaded = ReportsUploaded(job.Units)
	g.Invoiced = Invoiced(job.BillingStatus)
	return g
}

// ReportsUploaded reports whether every unit has at least its expected
// number of reports. A job without units qualifies.
func ReportsUploaded(units []types.JobUnit) bool {
	for _, u := range units {
		if u.UploadedReportCount < u.ExpectedReportCount {
			return false
		}
	}
	return true
}

// Invoiced reports whether the billing status settles the invoiced gate.
func Invoiced(b types.BillingStatus) bool {
	switch b {
	case types.BillingInvoiced, types.BillingPaid, types.BillingUnBillable:
		return true
	}
	return false
}

// Derived reports whether gate is computed from job data rather than toggled.
func Derived(gate string) bool {
	return gate == types.GateReportsUploaded || gate == types.GateInvoiced
}
