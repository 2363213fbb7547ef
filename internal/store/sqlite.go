package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hyperengineering/fieldops/internal/types"
	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"
)

// SQLiteStore is the SQLite-backed relational store.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLiteStore instance.
// It initializes the database with WAL mode, applies pragmas, and runs migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	dsn := dbPath
	if dbPath != ":memory:" {
		// Pragmas in the DSN apply to every pooled connection.
		dsn += "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// An in-memory database exists per connection; pin it to one.
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if err := enablePragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable pragmas: %w", err)
	}

	version, err := RunMigrations(context.Background(), db)
	if err != nil {
		db.Close()
		return nil, err
	}
	slog.Debug("schema ready", "component", "store", "version", version)

	return &SQLiteStore{db: db}, nil
}

// enablePragmas sets SQLite pragmas for optimal performance and safety.
func enablePragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA synchronous=NORMAL",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %s: %w", pragma, err)
		}
	}

	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// GetStats returns aggregate store statistics
func (s *SQLiteStore) GetStats(ctx context.Context) (*types.StoreStats, error) {
	var stats types.StoreStats
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM service_agreements WHERE status != 'cancelled'),
			(SELECT COUNT(*) FROM jobs)
	`).Scan(&stats.ContractCount, &stats.JobCount)
	if err != nil {
		return nil, err
	}
	return &stats, nil
}

// CreateOrganization inserts a new tenant.
func (s *SQLiteStore) CreateOrganization(ctx context.Context, name string) (*types.Organization, error) {
	org := &types.Organization{ID: ulid.Make().String(), Name: name}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO organizations (id, name, created_at) VALUES (?, ?, ?)`,
		org.ID, org.Name, formatTime(time.Now()))
	if err != nil {
		return nil, fmt.Errorf("insert organization: %w", err)
	}
	return org, nil
}

// CreateUser inserts a user into an existing organization.
func (s *SQLiteStore) CreateUser(ctx context.Context, user types.User) (*types.User, error) {
	if user.ID == "" {
		user.ID = ulid.Make().String()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, organization_id, name, email, role, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, user.ID, user.OrganizationID, user.Name, user.Email, string(user.Role), formatTime(time.Now()))
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", mapConstraintError(err))
	}
	return &user, nil
}

// GetUser looks up a user by id.
func (s *SQLiteStore) GetUser(ctx context.Context, id string) (*types.User, error) {
	var u types.User
	var role string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, organization_id, name, email, role FROM users WHERE id = ?`, id,
	).Scan(&u.ID, &u.OrganizationID, &u.Name, &u.Email, &role)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	u.Role = types.UserRole(role)
	return &u, nil
}

// ManagerUserIDs returns the ids of every manager in the organization.
func (s *SQLiteStore) ManagerUserIDs(ctx context.Context, organizationID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM users WHERE organization_id = ? AND role = 'manager' ORDER BY id`,
		organizationID)
	if err != nil {
		return nil, fmt.Errorf("query managers: %w", err)
	}
	return scanIDs(rows)
}

// ListScanOrganizations returns organizations that own at least one
// contract the status scan could still act on.
func (s *SQLiteStore) ListScanOrganizations(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT organization_id FROM service_agreements
		WHERE status NOT IN ('ended', 'cancelled')
		ORDER BY organization_id
	`)
	if err != nil {
		return nil, fmt.Errorf("query scan organizations: %w", err)
	}
	return scanIDs(rows)
}

// ListOrganizationIDs returns every organization id.
func (s *SQLiteStore) ListOrganizationIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM organizations ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query organizations: %w", err)
	}
	return scanIDs(rows)
}

func scanIDs(rows *sql.Rows) ([]string, error) {
	defer rows.Close()
	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// --- column encoding helpers ---

// Timestamps are stored as RFC 3339 UTC text so that lexical order is
// chronological order; calendar dates are stored as YYYY-MM-DD.

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func formatDate(t time.Time) string {
	return t.UTC().Format(types.DateLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func parseDate(s string) time.Time {
	t, err := time.Parse(types.DateLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func nullDate(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatDate(*t)
}

func nullString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func timePtr(ns sql.NullString) *time.Time {
	if !ns.Valid {
		return nil
	}
	t := parseTime(ns.String)
	return &t
}

func datePtr(ns sql.NullString) *time.Time {
	if !ns.Valid {
		return nil
	}
	t := parseDate(ns.String)
	return &t
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// mapConstraintError converts SQLite constraint violations to sentinel errors.
func mapConstraintError(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "FOREIGN KEY constraint failed"):
		return fmt.Errorf("%w: %v", ErrInvalidReference, err)
	case strings.Contains(msg, "UNIQUE constraint failed"):
		return fmt.Errorf("%w: %v", ErrConflict, err)
	}
	return err
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
