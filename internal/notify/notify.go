// Package notify delivers in-app notifications to users of an organization.
package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hyperengineering/fieldops/internal/types"
)

// Event is a single notification fanned out to every recipient.
// When Managers is set, the organization's managers are added to Recipients.
type Event struct {
	OrganizationID    string
	Type              string
	Message           string
	RelatedEntityType string
	RelatedEntityID   string
	Managers          bool
	Recipients        []string
}

// Notifier delivers events.
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

// Backend is the persistence a StoreNotifier needs. Implemented by store.SQLiteStore.
type Backend interface {
	ManagerUserIDs(ctx context.Context, organizationID string) ([]string, error)
	CreateNotifications(ctx context.Context, batch types.NotificationBatch) (int, error)
}

// StoreNotifier writes one notification row per recipient.
type StoreNotifier struct {
	backend Backend
}

// NewStoreNotifier creates a notifier backed by the given store.
func NewStoreNotifier(backend Backend) *StoreNotifier {
	return &StoreNotifier{backend: backend}
}

// Notify resolves recipients and persists the notifications.
// An event with no recipients is a no-op.
func (n *StoreNotifier) Notify(ctx context.Context, event Event) error {
	recipients := append([]string(nil), event.Recipients...)
	if event.Managers {
		managers, err := n.backend.ManagerUserIDs(ctx, event.OrganizationID)
		if err != nil {
			return fmt.Errorf("resolve managers: %w", err)
		}
		recipients = append(managers, recipients...)
	}
	if len(recipients) == 0 {
		slog.Debug("notification has no recipients",
			"component", "notify",
			"organization_id", event.OrganizationID,
			"type", event.Type,
		)
		return nil
	}

	written, err := n.backend.CreateNotifications(ctx, types.NotificationBatch{
		OrganizationID:    event.OrganizationID,
		RecipientUserIDs:  recipients,
		Type:              event.Type,
		Message:           event.Message,
		RelatedEntityType: event.RelatedEntityType,
		RelatedEntityID:   event.RelatedEntityID,
	})
	if err != nil {
		return fmt.Errorf("create notifications: %w", err)
	}

	slog.Debug("notifications created",
		"component", "notify",
		"organization_id", event.OrganizationID,
		"type", event.Type,
		"related_entity_id", event.RelatedEntityID,
		"recipients", written,
	)
	return nil
}

// Recorder is an in-memory Notifier that keeps every event it receives.
type Recorder struct {
	Events []Event
	Err    error
}

// Notify records the event, or returns Err when set.
func (r *Recorder) Notify(_ context.Context, event Event) error {
	if r.Err != nil {
		return r.Err
	}
	r.Events = append(r.Events, event)
	return nil
}

// OfType returns the recorded events with the given type.
func (r *Recorder) OfType(eventType string) []Event {
	var out []Event
	for _, e := range r.Events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}
