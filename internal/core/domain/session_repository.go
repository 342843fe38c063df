package domain

import "context"

// SessionRepository defines the data-access contract for sessions and
// their memberships.
// Implementations live in internal/core/repository (Core layer).
type SessionRepository interface {
	// LockUser serializes concurrent membership changes for one user until
	// the surrounding transaction ends.
	LockUser(ctx context.Context, userID string) error

	// ListActiveMemberships returns the user's memberships in scheduled or
	// active sessions, oldest first.
	ListActiveMemberships(ctx context.Context, userID string) ([]SessionMembership, error)

	// InsertMembership adds the user to the session with the given role.
	// Returns ErrConflict when the user is already a member.
	InsertMembership(ctx context.Context, sessionID, userID string, role MemberRole) error

	// DeleteMembership removes the user from the session.
	// Returns ErrNotFound when no membership existed.
	DeleteMembership(ctx context.Context, sessionID, userID string) error

	// IsMember reports whether the user currently belongs to the session.
	IsMember(ctx context.Context, sessionID, userID string) (bool, error)

	// CreateSession inserts a new session row.
	CreateSession(ctx context.Context, session Session) error

	// GetSession returns the session with the given id.
	// Returns ErrNotFound when it does not exist.
	GetSession(ctx context.Context, sessionID string) (*Session, error)

	// CloseSession marks the session closed and deletes all of its memberships.
	CloseSession(ctx context.Context, sessionID string) error

	// SetOwner records a new current owner for the session.
	SetOwner(ctx context.Context, sessionID, ownerID string) error

	// ExtendDuration adds minutes to the session's planned duration.
	ExtendDuration(ctx context.Context, sessionID string, minutes int) error
}
