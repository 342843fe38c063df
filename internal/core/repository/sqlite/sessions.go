package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/quanpsy/vibex-gravity/internal/core/domain"
)

type sessionRepository struct {
	db dbtx
}

// LockUser is a no-op: BEGIN IMMEDIATE already holds the database write lock.
func (r *sessionRepository) LockUser(ctx context.Context, userID string) error {
	return ctx.Err()
}

func (r *sessionRepository) ListActiveMemberships(ctx context.Context, userID string) ([]domain.SessionMembership, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT s.id, s.title, sp.user_id, s.session_type, COALESCE(s.flow, ''), s.status, sp.role, sp.joined_at
		FROM session_participants sp
		JOIN sessions s ON s.id = sp.session_id
		WHERE sp.user_id = ? AND s.status IN ('scheduled', 'active')
		ORDER BY sp.joined_at ASC, sp.rowid ASC`,
		userID,
	)
	if err != nil {
		return nil, mapSQLiteError(err)
	}
	defer rows.Close()

	var memberships []domain.SessionMembership
	for rows.Next() {
		var m domain.SessionMembership
		var sessionType, flow, status, role string
		var joinedAt int64
		if err := rows.Scan(&m.SessionID, &m.SessionTitle, &m.UserID, &sessionType, &flow, &status, &role, &joinedAt); err != nil {
			return nil, mapSQLiteError(err)
		}
		m.SessionType = domain.SessionType(sessionType)
		m.Flow = domain.Flow(flow)
		m.Status = domain.SessionStatus(status)
		m.Role = domain.MemberRole(role)
		m.JoinedAt = fromMillis(joinedAt)
		memberships = append(memberships, m)
	}
	if err := rows.Err(); err != nil {
		return nil, mapSQLiteError(err)
	}
	return memberships, nil
}

func (r *sessionRepository) InsertMembership(ctx context.Context, sessionID, userID string, role domain.MemberRole) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO session_participants (session_id, user_id, role, joined_at) VALUES (?, ?, ?, ?)`,
		sessionID, userID, string(role), toMillis(time.Now()),
	)
	return mapSQLiteError(err)
}

func (r *sessionRepository) DeleteMembership(ctx context.Context, sessionID, userID string) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM session_participants WHERE session_id = ? AND user_id = ?`,
		sessionID, userID,
	)
	if err != nil {
		return mapSQLiteError(err)
	}
	return requireRow(res)
}

func (r *sessionRepository) IsMember(ctx context.Context, sessionID, userID string) (bool, error) {
	var exists int
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM session_participants WHERE session_id = ? AND user_id = ?)`,
		sessionID, userID,
	).Scan(&exists)
	if err != nil {
		return false, mapSQLiteError(err)
	}
	return exists == 1, nil
}

func (r *sessionRepository) CreateSession(ctx context.Context, s domain.Session) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sessions (
			id, creator_id, owner_id, session_type, flow, title, description, emoji,
			lat, lng, event_time, duration_minutes, status, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.CreatorID, s.OwnerID, string(s.Type), nullableFlow(s.Flow), s.Title, s.Description, s.Emoji,
		s.Lat, s.Lng, toMillis(s.EventTime), s.DurationMinutes, string(s.Status), toMillis(s.CreatedAt),
	)
	return mapSQLiteError(err)
}

func (r *sessionRepository) GetSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	var s domain.Session
	var sessionType, flow, status string
	var eventTime, createdAt int64
	err := r.db.QueryRowContext(ctx, `
		SELECT id, creator_id, owner_id, session_type, COALESCE(flow, ''), title, description, emoji,
		       lat, lng, event_time, duration_minutes, status, created_at
		FROM sessions
		WHERE id = ?`,
		sessionID,
	).Scan(
		&s.ID, &s.CreatorID, &s.OwnerID, &sessionType, &flow, &s.Title, &s.Description, &s.Emoji,
		&s.Lat, &s.Lng, &eventTime, &s.DurationMinutes, &status, &createdAt,
	)
	if err != nil {
		return nil, mapSQLiteError(err)
	}
	s.Type = domain.SessionType(sessionType)
	s.Flow = domain.Flow(flow)
	s.Status = domain.SessionStatus(status)
	s.EventTime = fromMillis(eventTime)
	s.CreatedAt = fromMillis(createdAt)
	return &s, nil
}

func (r *sessionRepository) CloseSession(ctx context.Context, sessionID string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE sessions SET status = 'closed' WHERE id = ?`, sessionID)
	if err != nil {
		return mapSQLiteError(err)
	}
	if err := requireRow(res); err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `DELETE FROM session_participants WHERE session_id = ?`, sessionID)
	return mapSQLiteError(err)
}

func (r *sessionRepository) SetOwner(ctx context.Context, sessionID, ownerID string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE sessions SET owner_id = ? WHERE id = ?`, ownerID, sessionID)
	if err != nil {
		return mapSQLiteError(err)
	}
	return requireRow(res)
}

func (r *sessionRepository) ExtendDuration(ctx context.Context, sessionID string, minutes int) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE sessions SET duration_minutes = duration_minutes + ? WHERE id = ?`,
		minutes, sessionID,
	)
	if err != nil {
		return mapSQLiteError(err)
	}
	return requireRow(res)
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return mapSQLiteError(err)
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func nullableFlow(flow domain.Flow) any {
	if flow == domain.FlowNone {
		return nil
	}
	return string(flow)
}

func nullableString(v string) any {
	if v == "" {
		return nil
	}
	return v
}

var _ domain.SessionRepository = (*sessionRepository)(nil)
