package domain

import "context"

// NotificationKind names the event a notification reports.
type NotificationKind string

const (
	NotificationSessionJoin   NotificationKind = "session_join"
	NotificationVouchReceived NotificationKind = "vouch_received"
	NotificationOwnership     NotificationKind = "ownership_transfer"
)

// Notification is a fire-and-forget message for an external delivery system.
type Notification struct {
	Kind        NotificationKind
	RecipientID string
	ActorID     string
	SessionID   string
	Data        map[string]any
}

// Notifier hands notifications to the delivery collaborator.
// Callers treat delivery errors as non-fatal.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}
