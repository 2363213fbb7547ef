package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hyperengineering/fieldops/internal/types"
	"github.com/oklog/ulid/v2"
)

const jobColumns = `
	id, organization_id, customer_id, service_agreement_id, job_number, title,
	scheduled_start, status, billing_status, completed_at, completed_by, created_at, updated_at`

// CreateJob inserts a job with its units, sites and contacts in one transaction.
func (s *SQLiteStore) CreateJob(ctx context.Context, j *types.Job) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	j.ID = ulid.Make().String()
	j.CreatedAt = now
	j.UpdatedAt = now

	_, err = tx.ExecContext(ctx, `
		INSERT INTO jobs (`+jobColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		j.ID,
		j.OrganizationID,
		j.CustomerID,
		nullString(j.ContractID),
		j.JobNumber,
		nullString(j.Title),
		nullTime(j.ScheduledStart),
		string(j.Status),
		string(j.BillingStatus),
		nullTime(j.CompletedAt),
		nullString(j.CompletedBy),
		formatTime(now),
		formatTime(now),
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", mapConstraintError(err))
	}

	for i := range j.Units {
		j.Units[i].ID = ulid.Make().String()
		_, err := tx.ExecContext(ctx, `
			INSERT INTO job_units (id, job_id, label, expected_report_count, uploaded_report_count)
			VALUES (?, ?, ?, ?, ?)
		`, j.Units[i].ID, j.ID, j.Units[i].Label, j.Units[i].ExpectedReportCount, j.Units[i].UploadedReportCount)
		if err != nil {
			return fmt.Errorf("insert job unit: %w", err)
		}
	}
	for _, site := range j.Sites {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO job_sites (job_id, site_name, notes) VALUES (?, ?, ?)`,
			j.ID, site.SiteName, site.Notes)
		if err != nil {
			return fmt.Errorf("insert job site: %w", mapConstraintError(err))
		}
	}
	for _, contact := range j.Contacts {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO job_contacts (id, job_id, name, phone, email) VALUES (?, ?, ?, ?, ?)`,
			ulid.Make().String(), j.ID, contact.Name, contact.Phone, contact.Email)
		if err != nil {
			return fmt.Errorf("insert job contact: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// GetJob returns a job with all of its associations.
func (s *SQLiteStore) GetJob(ctx context.Context, organizationID, id string) (*types.Job, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE id = ? AND organization_id = ?`,
		id, organizationID)
	j, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}

	if err := s.loadJobAssociations(ctx, j); err != nil {
		return nil, err
	}
	return j, nil
}

func (s *SQLiteStore) loadJobAssociations(ctx context.Context, j *types.Job) error {
	techs, err := s.db.QueryContext(ctx,
		`SELECT user_id, status, is_lead FROM job_technicians WHERE job_id = ? ORDER BY is_lead DESC, created_at, user_id`,
		j.ID)
	if err != nil {
		return fmt.Errorf("query job technicians: %w", err)
	}
	for techs.Next() {
		var t types.JobTechnician
		var status string
		var lead int
		if err := techs.Scan(&t.UserID, &status, &lead); err != nil {
			techs.Close()
			return fmt.Errorf("scan job technician: %w", err)
		}
		t.Status = types.AssignmentStatus(status)
		t.IsLead = lead == 1
		j.Technicians = append(j.Technicians, t)
	}
	if err := techs.Err(); err != nil {
		return fmt.Errorf("iterate job technicians: %w", err)
	}

	units, err := s.jobUnits(ctx, j.ID)
	if err != nil {
		return err
	}
	j.Units = units

	sites, err := s.db.QueryContext(ctx,
		`SELECT site_name, notes FROM job_sites WHERE job_id = ? ORDER BY site_name`, j.ID)
	if err != nil {
		return fmt.Errorf("query job sites: %w", err)
	}
	for sites.Next() {
		var site types.JobSite
		if err := sites.Scan(&site.SiteName, &site.Notes); err != nil {
			sites.Close()
			return fmt.Errorf("scan job site: %w", err)
		}
		j.Sites = append(j.Sites, site)
	}
	if err := sites.Err(); err != nil {
		return fmt.Errorf("iterate job sites: %w", err)
	}

	contacts, err := s.db.QueryContext(ctx,
		`SELECT name, phone, email FROM job_contacts WHERE job_id = ? ORDER BY id`, j.ID)
	if err != nil {
		return fmt.Errorf("query job contacts: %w", err)
	}
	for contacts.Next() {
		var c types.JobContact
		if err := contacts.Scan(&c.Name, &c.Phone, &c.Email); err != nil {
			contacts.Close()
			return fmt.Errorf("scan job contact: %w", err)
		}
		j.Contacts = append(j.Contacts, c)
	}
	return contacts.Err()
}

func (s *SQLiteStore) jobUnits(ctx context.Context, jobID string) ([]types.JobUnit, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, label, expected_report_count, uploaded_report_count
		FROM job_units WHERE job_id = ? ORDER BY id
	`, jobID)
	if err != nil {
		return nil, fmt.Errorf("query job units: %w", err)
	}
	defer rows.Close()

	units := make([]types.JobUnit, 0)
	for rows.Next() {
		var u types.JobUnit
		if err := rows.Scan(&u.ID, &u.Label, &u.ExpectedReportCount, &u.UploadedReportCount); err != nil {
			return nil, fmt.Errorf("scan job unit: %w", err)
		}
		units = append(units, u)
	}
	return units, rows.Err()
}

// ListJobs returns the organization's jobs ordered by scheduled start, unscheduled last.
func (s *SQLiteStore) ListJobs(ctx context.Context, organizationID string, filter types.JobFilter) ([]types.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE organization_id = ?`
	args := []any{organizationID}
	if filter.Status != nil {
		query += ` AND status = ?`
		args = append(args, string(*filter.Status))
	}
	if filter.ContractID != nil {
		query += ` AND service_agreement_id = ?`
		args = append(args, *filter.ContractID)
	}
	query += ` ORDER BY scheduled_start IS NULL, scheduled_start, id`

	return s.queryJobs(ctx, query, args...)
}

// ListOverdueCandidates returns open jobs scheduled at or before cutoff.
// Callers apply the exact boundary; the query only narrows the set.
func (s *SQLiteStore) ListOverdueCandidates(ctx context.Context, organizationID string, cutoff time.Time) ([]types.Job, error) {
	return s.queryJobs(ctx, `
		SELECT `+jobColumns+` FROM jobs
		WHERE organization_id = ?
		  AND scheduled_start IS NOT NULL
		  AND scheduled_start <= ?
		  AND status NOT IN ('completed', 'cancelled', 'overdue')
		ORDER BY scheduled_start, id
	`, organizationID, formatTime(cutoff))
}

// SetJobStatus overwrites a job's status without touching completion fields.
// Used by scans, which never move jobs into or out of completed.
func (s *SQLiteStore) SetJobStatus(ctx context.Context, organizationID, id string, status types.JobStatus) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET status = ?, updated_at = ? WHERE id = ? AND organization_id = ?
	`, string(status), formatTime(time.Now()), id, organizationID)
	if err != nil {
		return fmt.Errorf("update job status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateJobStatus applies a manual status edit, keeping completed_at set
// exactly while the job is completed.
func (s *SQLiteStore) UpdateJobStatus(ctx context.Context, organizationID, id string, status types.JobStatus, actorID string, at time.Time) (*types.Job, error) {
	var completedAt, completedBy any
	if status == types.JobCompleted {
		completedAt = formatTime(at)
		completedBy = actorID
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE jobs
		SET status = ?,
		    completed_at = CASE WHEN ? = 'completed' AND status = 'completed' THEN completed_at ELSE ? END,
		    completed_by = CASE WHEN ? = 'completed' AND status = 'completed' THEN completed_by ELSE ? END,
		    updated_at = ?
		WHERE id = ? AND organization_id = ?
	`, string(status), string(status), completedAt, string(status), completedBy, formatTime(at), id, organizationID)
	if err != nil {
		return nil, fmt.Errorf("update job status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}
	return s.GetJob(ctx, organizationID, id)
}

// UpdateJobBilling sets the billing status of a job.
func (s *SQLiteStore) UpdateJobBilling(ctx context.Context, organizationID, id string, billing types.BillingStatus) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET billing_status = ?, updated_at = ? WHERE id = ? AND organization_id = ?
	`, string(billing), formatTime(time.Now()), id, organizationID)
	if err != nil {
		return fmt.Errorf("update job billing: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// AssignTechnician adds a technician to a job. A job has at most one lead.
// The user must belong to the job's organization; ErrInvalidReference
// otherwise.
func (s *SQLiteStore) AssignTechnician(ctx context.Context, organizationID, jobID, userID string, isLead bool) error {
	if err := s.jobExists(ctx, organizationID, jobID); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO job_technicians (job_id, user_id, status, is_lead, created_at)
		SELECT ?, id, 'pending', ?, ? FROM users
		WHERE id = ? AND organization_id = ?
	`, jobID, boolInt(isLead), formatTime(time.Now()), userID, organizationID)
	if err == nil {
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("assign technician: user %s: %w", userID, ErrInvalidReference)
		}
	}
	if err != nil {
		mapped := mapConstraintError(err)
		if errors.Is(mapped, ErrConflict) && isLead {
			var leads int
			if qerr := s.db.QueryRowContext(ctx,
				`SELECT COUNT(*) FROM job_technicians WHERE job_id = ? AND is_lead = 1`, jobID,
			).Scan(&leads); qerr == nil && leads > 0 {
				return ErrLeadAlreadySet
			}
		}
		return fmt.Errorf("assign technician: %w", mapped)
	}
	return nil
}

// RespondToAssignment records a technician's response to an assignment.
func (s *SQLiteStore) RespondToAssignment(ctx context.Context, organizationID, jobID, userID string, status types.AssignmentStatus) error {
	if err := s.jobExists(ctx, organizationID, jobID); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE job_technicians SET status = ? WHERE job_id = ? AND user_id = ?`,
		string(status), jobID, userID)
	if err != nil {
		return fmt.Errorf("update assignment: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotAssigned
	}
	return nil
}

// ActiveTechnicianIDs returns technicians still pending or accepted on the job.
func (s *SQLiteStore) ActiveTechnicianIDs(ctx context.Context, jobID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id FROM job_technicians
		WHERE job_id = ? AND status IN ('pending', 'accepted')
		ORDER BY user_id
	`, jobID)
	if err != nil {
		return nil, fmt.Errorf("query job technicians: %w", err)
	}
	return scanIDs(rows)
}

// GetJobUnit returns one unit of a job.
func (s *SQLiteStore) GetJobUnit(ctx context.Context, organizationID, jobID, unitID string) (*types.JobUnit, error) {
	var u types.JobUnit
	err := s.db.QueryRowContext(ctx, `
		SELECT u.id, u.label, u.expected_report_count, u.uploaded_report_count
		FROM job_units u JOIN jobs j ON j.id = u.job_id
		WHERE u.id = ? AND u.job_id = ? AND j.organization_id = ?
	`, unitID, jobID, organizationID).Scan(&u.ID, &u.Label, &u.ExpectedReportCount, &u.UploadedReportCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job unit: %w", err)
	}
	return &u, nil
}

// RecordReportUpload registers a stored report object against a job unit
// and increments its uploaded report count. Each object key counts once;
// a repeated key returns ErrConflict.
func (s *SQLiteStore) RecordReportUpload(ctx context.Context, organizationID, jobID, unitID, objectKey string) (*types.JobUnit, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var u types.JobUnit
	err = tx.QueryRowContext(ctx, `
		UPDATE job_units SET uploaded_report_count = uploaded_report_count + 1
		WHERE id = ? AND job_id = (SELECT id FROM jobs WHERE id = ? AND organization_id = ?)
		RETURNING id, label, expected_report_count, uploaded_report_count
	`, unitID, jobID, organizationID).Scan(&u.ID, &u.Label, &u.ExpectedReportCount, &u.UploadedReportCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("record report upload: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO job_unit_reports (object_key, job_unit_id, created_at) VALUES (?, ?, ?)`,
		objectKey, unitID, formatTime(time.Now()))
	if err != nil {
		return nil, fmt.Errorf("insert unit report: %w", mapConstraintError(err))
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	return &u, nil
}

func (s *SQLiteStore) jobExists(ctx context.Context, organizationID, jobID string) error {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM jobs WHERE id = ? AND organization_id = ?`, jobID, organizationID,
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("check job: %w", err)
	}
	return nil
}

func (s *SQLiteStore) queryJobs(ctx context.Context, query string, args ...any) ([]types.Job, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query jobs: %w", err)
	}
	defer rows.Close()

	jobs := make([]types.Job, 0)
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, *j)
	}
	return jobs, rows.Err()
}

func scanJob(scanner interface{ Scan(...any) error }) (*types.Job, error) {
	var j types.Job
	var contractID, title, scheduledStart, completedAt, completedBy sql.NullString
	var status, billing, createdAt, updatedAt string

	err := scanner.Scan(
		&j.ID,
		&j.OrganizationID,
		&j.CustomerID,
		&contractID,
		&j.JobNumber,
		&title,
		&scheduledStart,
		&status,
		&billing,
		&completedAt,
		&completedBy,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	j.ContractID = stringPtr(contractID)
	j.Title = stringPtr(title)
	j.ScheduledStart = timePtr(scheduledStart)
	j.Status = types.JobStatus(status)
	j.BillingStatus = types.BillingStatus(billing)
	j.CompletedAt = timePtr(completedAt)
	j.CompletedBy = stringPtr(completedBy)
	j.CreatedAt = parseTime(createdAt)
	j.UpdatedAt = parseTime(updatedAt)
	return &j, nil
}
