// Package lifecycle derives contract and job statuses from dates.
//
// Every function here is pure: the current time is always passed in by the
// caller, so scans and tests control the clock explicitly.
package lifecycle

import (
	"math"
	"time"

	"github.com/hyperengineering/fieldops/internal/types"
)

const (
	// RenewalHorizonMonths is how far ahead of end_date a contract needs renewal.
	RenewalHorizonMonths = 3

	// JobCreationLeadMonths opens the job creation window this many months
	// before the next job is due.
	JobCreationLeadMonths = 1

	// JobOverdueGraceDays is how long a job may sit past its scheduled start.
	JobOverdueGraceDays = 2

	// daysPerMonth converts the fractional part of a month interval to days.
	daysPerMonth = 365.0 / 12.0
)

// Condition names the date-derived reason for a contract transition.
type Condition string

const (
	ConditionOverdue     Condition = "overdue"
	ConditionRenewal     Condition = "renewal"
	ConditionJobCreation Condition = "job_creation"
)

// Transition is a status change derived for a contract.
type Transition struct {
	Condition Condition
	To        types.ContractStatus
	// Due is the date the message should cite: the end date for overdue and
	// renewal, the next job due date for job creation.
	Due time.Time
}

// Date truncates t to midnight UTC of its calendar date.
func Date(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// AddMonths adds n calendar months to t. When the target month is shorter,
// the day is clamped to its last day (Jan 31 + 1 month = Feb 28/29).
func AddMonths(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	hh, mm, ss := t.Clock()

	total := int(m) - 1 + n
	year := y + floorDiv(total, 12)
	month := time.Month(total - floorDiv(total, 12)*12 + 1)

	if last := daysIn(year, month); d > last {
		d = last
	}
	return time.Date(year, month, d, hh, mm, ss, t.Nanosecond(), t.Location())
}

// AddFractionalMonths adds a possibly fractional month interval to t.
// Whole months use calendar arithmetic; the remainder is rounded to days.
func AddFractionalMonths(t time.Time, months float64) time.Time {
	whole := math.Floor(months)
	out := AddMonths(t, int(whole))
	if frac := months - whole; frac > 0 {
		out = out.AddDate(0, 0, int(math.Round(frac*daysPerMonth)))
	}
	return out
}

// OccurrencesPerYear sums the per-year service counts of a contract.
func OccurrencesPerYear(services []types.ContractService) int {
	total := 0
	for _, s := range services {
		if s.FrequencyMonths > 0 {
			total += s.FrequencyMonths
		}
	}
	return total
}

// MonthsBetweenJobs returns the interval between recurring jobs.
// Returns 0 when there are no occurrences.
func MonthsBetweenJobs(occurrencesPerYear int) float64 {
	if occurrencesPerYear <= 0 {
		return 0
	}
	return 12.0 / float64(occurrencesPerYear)
}

// NextJobDue computes when the contract's next recurring job is due.
// lastJobDate is the scheduled start of the most recent job, nil when the
// contract has none yet. An explicit pm_due_next on the contract wins
// unless a job has been scheduled on or after it.
// Returns false when the contract has no recurring services.
func NextJobDue(c *types.Contract, services []types.ContractService, lastJobDate *time.Time) (time.Time, bool) {
	occ := OccurrencesPerYear(services)
	if occ == 0 {
		return time.Time{}, false
	}
	if c.PMDueNext != nil && (lastJobDate == nil || Date(*c.PMDueNext).After(Date(*lastJobDate))) {
		return Date(*c.PMDueNext), true
	}

	base := c.StartDate
	if lastJobDate != nil {
		base = *lastJobDate
	}
	return AddFractionalMonths(Date(base), MonthsBetweenJobs(occ)), true
}

// DeriveContractStatus returns the transition a scan should apply to c, if any.
// Checks run in precedence order (overdue, renewal, job creation) and at most
// one transition is returned. A contract already in the target status yields
// no transition, which makes repeated scans idempotent.
func DeriveContractStatus(c *types.Contract, services []types.ContractService, lastJobDate *time.Time, today time.Time) (Transition, bool) {
	if c.Status.IsTerminal() {
		return Transition{}, false
	}
	today = Date(today)
	end := Date(c.EndDate)

	if end.Before(today) {
		if c.Status == types.ContractOverdue {
			return Transition{}, false
		}
		return Transition{Condition: ConditionOverdue, To: types.ContractOverdue, Due: end}, true
	}

	if !end.After(AddMonths(today, RenewalHorizonMonths)) {
		if c.Status == types.ContractRenewalNeeded || c.Status == types.ContractOverdue {
			return Transition{}, false
		}
		return Transition{Condition: ConditionRenewal, To: types.ContractRenewalNeeded, Due: end}, true
	}

	if c.Status != types.ContractActive && c.Status != types.ContractInProgress {
		return Transition{}, false
	}
	due, ok := NextJobDue(c, services, lastJobDate)
	if !ok {
		return Transition{}, false
	}
	windowStart := AddMonths(due, -JobCreationLeadMonths)
	if !today.Before(windowStart) && today.Before(due) {
		return Transition{Condition: ConditionJobCreation, To: types.ContractJobCreationNeeded, Due: due}, true
	}
	return Transition{}, false
}

// DeriveJobOverdue reports whether a job should be flipped to overdue at now.
// The boundary is strict: a job scheduled exactly two days ago is not overdue.
func DeriveJobOverdue(j *types.Job, now time.Time) bool {
	if j.ScheduledStart == nil {
		return false
	}
	switch j.Status {
	case types.JobCompleted, types.JobCancelled, types.JobOverdue:
		return false
	}
	return j.ScheduledStart.Before(OverdueCutoff(now))
}

// OverdueCutoff is the scheduled_start before which open jobs are overdue.
func OverdueCutoff(now time.Time) time.Time {
	return now.AddDate(0, 0, -JobOverdueGraceDays)
}

// ShouldNotify applies the re-notification cooldown: a contract already
// notified for the same status within cooldown is not notified again.
func ShouldNotify(c *types.Contract, to types.ContractStatus, now time.Time, cooldown time.Duration) bool {
	if c.LastNotifiedAt == nil || c.LastNotifiedStatus == nil {
		return true
	}
	if *c.LastNotifiedStatus != to {
		return true
	}
	return now.Sub(*c.LastNotifiedAt) >= cooldown
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
