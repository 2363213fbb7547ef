package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hyperengineering/fieldops/internal/types"
	"github.com/oklog/ulid/v2"
)

// CreateNotifications writes one notification row per recipient in a single
// transaction. Duplicate recipients in the batch receive one row.
func (s *SQLiteStore) CreateNotifications(ctx context.Context, batch types.NotificationBatch) (int, error) {
	if len(batch.RecipientUserIDs) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO notifications (
			id, organization_id, recipient_user_id, type, message,
			related_entity_type, related_entity_id, is_read, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	var entityType, entityID any
	if batch.RelatedEntityType != "" {
		entityType = batch.RelatedEntityType
	}
	if batch.RelatedEntityID != "" {
		entityID = batch.RelatedEntityID
	}
	now := formatTime(time.Now())

	seen := make(map[string]struct{}, len(batch.RecipientUserIDs))
	written := 0
	for _, recipient := range batch.RecipientUserIDs {
		if _, dup := seen[recipient]; dup {
			continue
		}
		seen[recipient] = struct{}{}

		_, err := stmt.ExecContext(ctx,
			ulid.Make().String(), batch.OrganizationID, recipient, batch.Type, batch.Message,
			entityType, entityID, now)
		if err != nil {
			return 0, fmt.Errorf("insert notification: %w", mapConstraintError(err))
		}
		written++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit transaction: %w", err)
	}
	return written, nil
}

// ListNotifications returns the newest notifications of a recipient.
func (s *SQLiteStore) ListNotifications(ctx context.Context, userID string, unreadOnly bool, limit int) ([]types.Notification, error) {
	query := `
		SELECT id, organization_id, recipient_user_id, type, message,
		       related_entity_type, related_entity_id, is_read, created_at
		FROM notifications WHERE recipient_user_id = ?`
	if unreadOnly {
		query += ` AND is_read = 0`
	}
	query += ` ORDER BY created_at DESC, id DESC`
	args := []any{userID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query notifications: %w", err)
	}
	defer rows.Close()

	out := make([]types.Notification, 0)
	for rows.Next() {
		var n types.Notification
		var entityType, entityID sql.NullString
		var read int
		var createdAt string
		if err := rows.Scan(&n.ID, &n.OrganizationID, &n.RecipientUserID, &n.Type, &n.Message,
			&entityType, &entityID, &read, &createdAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		n.RelatedEntityType = stringPtr(entityType)
		n.RelatedEntityID = stringPtr(entityID)
		n.IsRead = read == 1
		n.CreatedAt = parseTime(createdAt)
		out = append(out, n)
	}
	return out, rows.Err()
}

// MarkNotificationRead marks a notification read. Only its recipient may do so;
// anyone else gets ErrNotFound.
func (s *SQLiteStore) MarkNotificationRead(ctx context.Context, userID, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE notifications SET is_read = 1 WHERE id = ? AND recipient_user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
