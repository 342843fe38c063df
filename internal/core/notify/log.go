// Package notify provides the bundled Notifier: it records each
// notification as a structured log line for an external delivery pipeline
// to pick up.
package notify

import (
	"context"
	"errors"

	pkgzerolog "github.com/duynhne/pkg/logger/zerolog"

	"github.com/quanpsy/vibex-gravity/internal/core/domain"
)

// LogNotifier writes notifications to the request logger.
type LogNotifier struct{}

// NewLogNotifier creates a new LogNotifier.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

// Notify logs n at info level.
func (n *LogNotifier) Notify(ctx context.Context, notification domain.Notification) error {
	if notification.RecipientID == "" {
		return errors.New("notification has no recipient")
	}

	event := pkgzerolog.FromContext(ctx).Info().
		Str("kind", string(notification.Kind)).
		Str("recipient_id", notification.RecipientID).
		Str("actor_id", notification.ActorID)
	if notification.SessionID != "" {
		event = event.Str("session_id", notification.SessionID)
	}
	if len(notification.Data) > 0 {
		event = event.Fields(notification.Data)
	}
	event.Msg("Notification dispatched")
	return nil
}

var _ domain.Notifier = (*LogNotifier)(nil)
