package repository

import (
	"context"

	"github.com/quanpsy/vibex-gravity/internal/core/domain"
)

// PgxSessionRepository implements domain.SessionRepository on top of a
// pgx connection or transaction.
type PgxSessionRepository struct {
	db DBTX
}

// NewSessionRepository creates a new PgxSessionRepository.
func NewSessionRepository(db DBTX) *PgxSessionRepository {
	return &PgxSessionRepository{db: db}
}

// LockUser takes a transaction-scoped advisory lock keyed by the user id.
func (r *PgxSessionRepository) LockUser(ctx context.Context, userID string) error {
	_, err := r.db.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, "participation:"+userID)
	return mapPgError(err)
}

// ListActiveMemberships returns the user's memberships in scheduled or active sessions.
func (r *PgxSessionRepository) ListActiveMemberships(ctx context.Context, userID string) ([]domain.SessionMembership, error) {
	query := `
		SELECT s.id, s.title, sp.user_id, s.session_type, COALESCE(s.flow, ''), s.status, sp.role, sp.joined_at
		FROM session_participants sp
		JOIN sessions s ON s.id = sp.session_id
		WHERE sp.user_id = $1 AND s.status IN ('scheduled', 'active')
		ORDER BY sp.joined_at ASC, s.id ASC
	`

	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, mapPgError(err)
	}
	defer rows.Close()

	var memberships []domain.SessionMembership
	for rows.Next() {
		var m domain.SessionMembership
		var sessionType, flow, status, role string
		if err := rows.Scan(&m.SessionID, &m.SessionTitle, &m.UserID, &sessionType, &flow, &status, &role, &m.JoinedAt); err != nil {
			return nil, mapPgError(err)
		}
		m.SessionType = domain.SessionType(sessionType)
		m.Flow = domain.Flow(flow)
		m.Status = domain.SessionStatus(status)
		m.Role = domain.MemberRole(role)
		memberships = append(memberships, m)
	}
	if err := rows.Err(); err != nil {
		return nil, mapPgError(err)
	}
	return memberships, nil
}

// InsertMembership adds the user to the session.
func (r *PgxSessionRepository) InsertMembership(ctx context.Context, sessionID, userID string, role domain.MemberRole) error {
	query := `INSERT INTO session_participants (session_id, user_id, role) VALUES ($1, $2, $3)`
	_, err := r.db.Exec(ctx, query, sessionID, userID, string(role))
	return mapPgError(err)
}

// DeleteMembership removes the user from the session.
func (r *PgxSessionRepository) DeleteMembership(ctx context.Context, sessionID, userID string) error {
	query := `DELETE FROM session_participants WHERE session_id = $1 AND user_id = $2`
	tag, err := r.db.Exec(ctx, query, sessionID, userID)
	if err != nil {
		return mapPgError(err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// IsMember reports whether the user belongs to the session.
func (r *PgxSessionRepository) IsMember(ctx context.Context, sessionID, userID string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM session_participants WHERE session_id = $1 AND user_id = $2)`

	var exists bool
	if err := r.db.QueryRow(ctx, query, sessionID, userID).Scan(&exists); err != nil {
		return false, mapPgError(err)
	}
	return exists, nil
}

// CreateSession inserts a new session row.
func (r *PgxSessionRepository) CreateSession(ctx context.Context, s domain.Session) error {
	query := `
		INSERT INTO sessions (
			id, creator_id, owner_id, session_type, flow, title, description, emoji,
			lat, lng, event_time, duration_minutes, status, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	_, err := r.db.Exec(ctx, query,
		s.ID, s.CreatorID, s.OwnerID, string(s.Type), nullableFlow(s.Flow), s.Title, s.Description, s.Emoji,
		s.Lat, s.Lng, s.EventTime, s.DurationMinutes, string(s.Status), s.CreatedAt,
	)
	return mapPgError(err)
}

// GetSession returns the session with the given id.
func (r *PgxSessionRepository) GetSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	query := `
		SELECT id, creator_id, owner_id, session_type, COALESCE(flow, ''), title, description, emoji,
		       lat, lng, event_time, duration_minutes, status, created_at
		FROM sessions
		WHERE id = $1
	`

	var s domain.Session
	var sessionType, flow, status string
	err := r.db.QueryRow(ctx, query, sessionID).Scan(
		&s.ID, &s.CreatorID, &s.OwnerID, &sessionType, &flow, &s.Title, &s.Description, &s.Emoji,
		&s.Lat, &s.Lng, &s.EventTime, &s.DurationMinutes, &status, &s.CreatedAt,
	)
	if err != nil {
		return nil, mapPgError(err)
	}
	s.Type = domain.SessionType(sessionType)
	s.Flow = domain.Flow(flow)
	s.Status = domain.SessionStatus(status)
	return &s, nil
}

// CloseSession marks the session closed and drops its memberships.
func (r *PgxSessionRepository) CloseSession(ctx context.Context, sessionID string) error {
	tag, err := r.db.Exec(ctx, `UPDATE sessions SET status = 'closed' WHERE id = $1`, sessionID)
	if err != nil {
		return mapPgError(err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	_, err = r.db.Exec(ctx, `DELETE FROM session_participants WHERE session_id = $1`, sessionID)
	return mapPgError(err)
}

// SetOwner records a new current owner for the session.
func (r *PgxSessionRepository) SetOwner(ctx context.Context, sessionID, ownerID string) error {
	tag, err := r.db.Exec(ctx, `UPDATE sessions SET owner_id = $2 WHERE id = $1`, sessionID, ownerID)
	if err != nil {
		return mapPgError(err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ExtendDuration adds minutes to the session's planned duration.
func (r *PgxSessionRepository) ExtendDuration(ctx context.Context, sessionID string, minutes int) error {
	query := `UPDATE sessions SET duration_minutes = duration_minutes + $2 WHERE id = $1`

	tag, err := r.db.Exec(ctx, query, sessionID, minutes)
	if err != nil {
		return mapPgError(err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func nullableFlow(flow domain.Flow) *string {
	if flow == domain.FlowNone {
		return nil
	}
	v := string(flow)
	return &v
}

func nullableString(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

var _ domain.SessionRepository = (*PgxSessionRepository)(nil)
