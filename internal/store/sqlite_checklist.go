package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hyperengineering/fieldops/internal/types"
)

// GetChecklist returns the stored checklist of a job, or ErrNotFound when
// no gate has ever been recorded.
func (s *SQLiteStore) GetChecklist(ctx context.Context, jobID string) (*types.CompletionChecklist, error) {
	var c types.CompletionChecklist
	var reports, sent, saved, invoiced, parts, photos int
	var previous, updatedBy sql.NullString
	var updatedAt string

	err := s.db.QueryRowContext(ctx, `
		SELECT job_id, reports_uploaded, sent_to_customer, saved_in_file, invoiced,
		       parts_logistics_done, photos_attached, previous_status, updated_by, updated_at
		FROM completion_checklists WHERE job_id = ?
	`, jobID).Scan(&c.JobID, &reports, &sent, &saved, &invoiced, &parts, &photos, &previous, &updatedBy, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get checklist: %w", err)
	}

	c.Gates = types.ChecklistGateValues{
		ReportsUploaded:    reports == 1,
		SentToCustomer:     sent == 1,
		SavedInFile:        saved == 1,
		Invoiced:           invoiced == 1,
		PartsLogisticsDone: parts == 1,
		PhotosAttached:     photos == 1,
	}
	if previous.Valid {
		st := types.JobStatus(previous.String)
		c.PreviousStatus = &st
	}
	c.UpdatedBy = stringPtr(updatedBy)
	c.UpdatedAt = parseTime(updatedAt)
	return &c, nil
}

// SaveChecklist upserts the checklist and, when change is non-nil, applies
// the resulting job status edit in the same transaction.
func (s *SQLiteStore) SaveChecklist(ctx context.Context, organizationID string, c *types.CompletionChecklist, change *types.JobCompletionChange) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var one int
	err = tx.QueryRowContext(ctx,
		`SELECT 1 FROM jobs WHERE id = ? AND organization_id = ?`, c.JobID, organizationID,
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("check job: %w", err)
	}

	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = time.Now().UTC()
	}
	var previous any
	if c.PreviousStatus != nil {
		previous = string(*c.PreviousStatus)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO completion_checklists (
			job_id, reports_uploaded, sent_to_customer, saved_in_file, invoiced,
			parts_logistics_done, photos_attached, previous_status, updated_by, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(job_id) DO UPDATE SET
			reports_uploaded = excluded.reports_uploaded,
			sent_to_customer = excluded.sent_to_customer,
			saved_in_file = excluded.saved_in_file,
			invoiced = excluded.invoiced,
			parts_logistics_done = excluded.parts_logistics_done,
			photos_attached = excluded.photos_attached,
			previous_status = excluded.previous_status,
			updated_by = excluded.updated_by,
			updated_at = excluded.updated_at
	`,
		c.JobID,
		boolInt(c.Gates.ReportsUploaded),
		boolInt(c.Gates.SentToCustomer),
		boolInt(c.Gates.SavedInFile),
		boolInt(c.Gates.Invoiced),
		boolInt(c.Gates.PartsLogisticsDone),
		boolInt(c.Gates.PhotosAttached),
		previous,
		nullString(c.UpdatedBy),
		formatTime(c.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("save checklist: %w", err)
	}

	if change != nil {
		_, err = tx.ExecContext(ctx, `
			UPDATE jobs SET status = ?, completed_at = ?, completed_by = ?, updated_at = ?
			WHERE id = ? AND organization_id = ?
		`, string(change.Status), nullTime(change.CompletedAt), nullString(change.CompletedBy),
			formatTime(c.UpdatedAt), c.JobID, organizationID)
		if err != nil {
			return fmt.Errorf("update job completion: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
