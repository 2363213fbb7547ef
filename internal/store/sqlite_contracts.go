package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hyperengineering/fieldops/internal/types"
	"github.com/oklog/ulid/v2"
)

const contractColumns = `
	id, organization_id, customer_id, vendor_id, agreement_number, name,
	start_date, end_date, agreement_length_years, pm_due_next, status,
	last_notified_at, last_notified_status, created_at, updated_at`

// CreateContract inserts a contract and its services in one transaction.
// ID, timestamps and services' ids are assigned here.
func (s *SQLiteStore) CreateContract(ctx context.Context, c *types.Contract) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	c.ID = ulid.Make().String()
	c.CreatedAt = now
	c.UpdatedAt = now

	_, err = tx.ExecContext(ctx, `
		INSERT INTO service_agreements (`+contractColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL, NULL, ?, ?)
	`,
		c.ID,
		c.OrganizationID,
		c.CustomerID,
		nullString(c.VendorID),
		c.AgreementNumber,
		nullString(c.Name),
		formatDate(c.StartDate),
		formatDate(c.EndDate),
		c.AgreementLengthYears,
		nullDate(c.PMDueNext),
		string(c.Status),
		formatTime(now),
		formatTime(now),
	)
	if err != nil {
		return fmt.Errorf("insert contract: %w", mapConstraintError(err))
	}

	if err := insertServices(ctx, tx, c.ID, c.Services); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func insertServices(ctx context.Context, tx *sql.Tx, contractID string, services []types.ContractService) error {
	for i := range services {
		services[i].ID = ulid.Make().String()
		services[i].ContractID = contractID
		_, err := tx.ExecContext(ctx, `
			INSERT INTO contract_services (id, service_agreement_id, service_type, frequency_months)
			VALUES (?, ?, ?, ?)
		`, services[i].ID, contractID, string(services[i].ServiceType), services[i].FrequencyMonths)
		if err != nil {
			return fmt.Errorf("insert contract service: %w", err)
		}
	}
	return nil
}

// GetContract returns a contract with its services.
func (s *SQLiteStore) GetContract(ctx context.Context, organizationID, id string) (*types.Contract, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+contractColumns+` FROM service_agreements WHERE id = ? AND organization_id = ?`,
		id, organizationID)
	c, err := scanContract(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get contract: %w", err)
	}

	services, err := s.servicesFor(ctx, []string{c.ID})
	if err != nil {
		return nil, err
	}
	c.Services = services[c.ID]
	return c, nil
}

// ListContracts returns the organization's contracts, newest first.
func (s *SQLiteStore) ListContracts(ctx context.Context, organizationID string, filter types.ContractFilter) ([]types.Contract, error) {
	query := `SELECT ` + contractColumns + ` FROM service_agreements WHERE organization_id = ?`
	args := []any{organizationID}
	if filter.Status != nil {
		query += ` AND status = ?`
		args = append(args, string(*filter.Status))
	}
	query += ` ORDER BY created_at DESC, id DESC`

	return s.queryContracts(ctx, query, args...)
}

// ListScanCandidates loads every non-terminal contract of the organization
// with its services and the scheduled start of its latest job, in one pass.
func (s *SQLiteStore) ListScanCandidates(ctx context.Context, organizationID string) ([]ContractCandidate, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+contractColumns+`,
			(SELECT j.scheduled_start FROM jobs j
			 WHERE j.service_agreement_id = service_agreements.id AND j.scheduled_start IS NOT NULL
			 ORDER BY j.scheduled_start DESC LIMIT 1)
		FROM service_agreements
		WHERE organization_id = ? AND status NOT IN ('ended', 'cancelled')
		ORDER BY end_date, id
	`, organizationID)
	if err != nil {
		return nil, fmt.Errorf("query scan candidates: %w", err)
	}
	defer rows.Close()

	candidates := make([]ContractCandidate, 0)
	ids := make([]string, 0)
	for rows.Next() {
		var lastJob sql.NullString
		c, err := scanContractRow(rows, &lastJob)
		if err != nil {
			return nil, fmt.Errorf("scan contract: %w", err)
		}
		candidates = append(candidates, ContractCandidate{Contract: *c, LastJobStart: timePtr(lastJob)})
		ids = append(ids, c.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate contracts: %w", err)
	}

	services, err := s.servicesFor(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range candidates {
		candidates[i].Contract.Services = services[candidates[i].Contract.ID]
	}
	return candidates, nil
}

// UpdateContract applies a partial edit and returns the updated contract.
func (s *SQLiteStore) UpdateContract(ctx context.Context, organizationID, id string, u types.ContractUpdate) (*types.Contract, error) {
	sets := []string{"updated_at = ?"}
	args := []any{formatTime(time.Now())}

	if u.Name != nil {
		sets = append(sets, "name = ?")
		args = append(args, *u.Name)
	}
	if u.CustomerID != nil {
		sets = append(sets, "customer_id = ?")
		args = append(args, *u.CustomerID)
	}
	if u.VendorID != nil {
		sets = append(sets, "vendor_id = ?")
		args = append(args, *u.VendorID)
	}
	if u.StartDate != nil {
		sets = append(sets, "start_date = ?")
		args = append(args, formatDate(*u.StartDate))
	}
	if u.EndDate != nil {
		sets = append(sets, "end_date = ?")
		args = append(args, formatDate(*u.EndDate))
	}
	if u.AgreementLengthYears != nil {
		sets = append(sets, "agreement_length_years = ?")
		args = append(args, *u.AgreementLengthYears)
	}
	if u.ClearPMDueNext {
		sets = append(sets, "pm_due_next = NULL")
	} else if u.PMDueNext != nil {
		sets = append(sets, "pm_due_next = ?")
		args = append(args, formatDate(*u.PMDueNext))
	}
	if u.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, string(*u.Status))
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	args = append(args, id, organizationID)
	res, err := tx.ExecContext(ctx,
		`UPDATE service_agreements SET `+strings.Join(sets, ", ")+` WHERE id = ? AND organization_id = ?`,
		args...)
	if err != nil {
		return nil, fmt.Errorf("update contract: %w", mapConstraintError(err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}

	if u.ReplaceServices {
		if _, err := tx.ExecContext(ctx, `DELETE FROM contract_services WHERE service_agreement_id = ?`, id); err != nil {
			return nil, fmt.Errorf("delete contract services: %w", err)
		}
		if err := insertServices(ctx, tx, id, u.Services); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	return s.GetContract(ctx, organizationID, id)
}

// CancelContract soft-deletes a contract by moving it to cancelled.
func (s *SQLiteStore) CancelContract(ctx context.Context, organizationID, id string) error {
	return s.UpdateContractStatus(ctx, organizationID, id, types.ContractCancelled)
}

// UpdateContractStatus sets the status of a single contract.
func (s *SQLiteStore) UpdateContractStatus(ctx context.Context, organizationID, id string, status types.ContractStatus) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE service_agreements SET status = ?, updated_at = ?
		WHERE id = ? AND organization_id = ?
	`, string(status), formatTime(time.Now()), id, organizationID)
	if err != nil {
		return fmt.Errorf("update contract status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkContractNotified records when managers were last told about a contract
// entering status. Used for the re-notification cooldown.
func (s *SQLiteStore) MarkContractNotified(ctx context.Context, organizationID, id string, status types.ContractStatus, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE service_agreements SET last_notified_at = ?, last_notified_status = ?
		WHERE id = ? AND organization_id = ?
	`, formatTime(at), string(status), id, organizationID)
	if err != nil {
		return fmt.Errorf("mark contract notified: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) queryContracts(ctx context.Context, query string, args ...any) ([]types.Contract, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query contracts: %w", err)
	}
	defer rows.Close()

	contracts := make([]types.Contract, 0)
	ids := make([]string, 0)
	for rows.Next() {
		c, err := scanContract(rows)
		if err != nil {
			return nil, fmt.Errorf("scan contract: %w", err)
		}
		contracts = append(contracts, *c)
		ids = append(ids, c.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate contracts: %w", err)
	}

	services, err := s.servicesFor(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range contracts {
		contracts[i].Services = services[contracts[i].ID]
	}
	return contracts, nil
}

// servicesFor loads services for the given contracts keyed by contract id.
// Contracts without services map to an empty, non-nil slice.
func (s *SQLiteStore) servicesFor(ctx context.Context, contractIDs []string) (map[string][]types.ContractService, error) {
	out := make(map[string][]types.ContractService, len(contractIDs))
	for _, id := range contractIDs {
		out[id] = []types.ContractService{}
	}
	if len(contractIDs) == 0 {
		return out, nil
	}

	args := make([]any, len(contractIDs))
	for i, id := range contractIDs {
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, service_agreement_id, service_type, frequency_months
		FROM contract_services
		WHERE service_agreement_id IN (`+placeholders(len(contractIDs))+`)
		ORDER BY service_agreement_id, service_type, id
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("query contract services: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var svc types.ContractService
		var serviceType string
		if err := rows.Scan(&svc.ID, &svc.ContractID, &serviceType, &svc.FrequencyMonths); err != nil {
			return nil, fmt.Errorf("scan contract service: %w", err)
		}
		svc.ServiceType = types.ServiceType(serviceType)
		out[svc.ContractID] = append(out[svc.ContractID], svc)
	}
	return out, rows.Err()
}

func scanContract(scanner interface{ Scan(...any) error }) (*types.Contract, error) {
	return scanContractRow(scanner)
}

// scanContractRow scans contractColumns followed by any extra destinations.
func scanContractRow(scanner interface{ Scan(...any) error }, extra ...any) (*types.Contract, error) {
	var c types.Contract
	var vendorID, name, pmDueNext, lastNotifiedAt, lastNotifiedStatus sql.NullString
	var startDate, endDate, status, createdAt, updatedAt string

	dest := []any{
		&c.ID,
		&c.OrganizationID,
		&c.CustomerID,
		&vendorID,
		&c.AgreementNumber,
		&name,
		&startDate,
		&endDate,
		&c.AgreementLengthYears,
		&pmDueNext,
		&status,
		&lastNotifiedAt,
		&lastNotifiedStatus,
		&createdAt,
		&updatedAt,
	}
	if err := scanner.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}

	c.VendorID = stringPtr(vendorID)
	c.Name = stringPtr(name)
	c.StartDate = parseDate(startDate)
	c.EndDate = parseDate(endDate)
	c.PMDueNext = datePtr(pmDueNext)
	c.Status = types.ContractStatus(status)
	c.LastNotifiedAt = timePtr(lastNotifiedAt)
	if lastNotifiedStatus.Valid {
		st := types.ContractStatus(lastNotifiedStatus.String)
		c.LastNotifiedStatus = &st
	}
	c.CreatedAt = parseTime(createdAt)
	c.UpdatedAt = parseTime(updatedAt)
	c.Services = []types.ContractService{}
	return &c, nil
}
