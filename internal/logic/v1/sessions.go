package v1

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	pkgzerolog "github.com/duynhne/pkg/logger/zerolog"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/quanpsy/vibex-gravity/internal/core/domain"
	"github.com/quanpsy/vibex-gravity/middleware"
)

// NewSession is the caller-supplied part of a session.
type NewSession struct {
	Type              domain.SessionType
	Flow              domain.Flow
	Title             string
	Description       string
	Emoji             string
	Lat               float64
	Lng               float64
	StartDelayMinutes int
	DurationMinutes   int
}

// SessionOutcome is the result of a create or join. Session is set only
// when Decision.Allowed is true.
type SessionOutcome struct {
	Decision ParticipationDecision
	Session  *domain.Session
}

// SessionService implements session lifecycle rules on top of the
// participation engine.
// It MUST NOT access the database or SQL directly.
type SessionService struct {
	store domain.Store
	now   func() time.Time
}

// NewSessionService creates a new SessionService.
func NewSessionService(store domain.Store) *SessionService {
	return &SessionService{store: store, now: time.Now}
}

func (s *SessionService) validateNewSession(userID string, req NewSession) error {
	if err := validateParticipation(userID, req.Type, req.Flow); err != nil {
		return err
	}
	if strings.TrimSpace(req.Title) == "" {
		return fmt.Errorf("title is required: %w", ErrInvalidArgument)
	}
	if req.StartDelayMinutes < 0 {
		return fmt.Errorf("start delay %d: %w", req.StartDelayMinutes, ErrInvalidArgument)
	}
	if req.DurationMinutes <= 0 {
		return fmt.Errorf("duration %d: %w", req.DurationMinutes, ErrInvalidArgument)
	}
	if req.Lat < -90 || req.Lat > 90 || req.Lng < -180 || req.Lng > 180 {
		return fmt.Errorf("coordinates (%v, %v): %w", req.Lat, req.Lng, ErrInvalidArgument)
	}
	return nil
}

// CreateSession creates a session with the caller as creator and first
// member, provided the participation rules allow it. The check and both
// inserts happen in one transaction.
func (s *SessionService) CreateSession(ctx context.Context, userID string, req NewSession) (SessionOutcome, error) {
	ctx, span := middleware.StartSpan(ctx, "session.create", trace.WithAttributes(
		attribute.String("layer", "logic"),
		attribute.String("session.type", string(req.Type)),
		attribute.String("session.flow", string(req.Flow)),
	))
	defer span.End()

	if err := s.validateNewSession(userID, req); err != nil {
		span.RecordError(err)
		return SessionOutcome{}, err
	}

	var outcome SessionOutcome
	err := runInTx(ctx, s.store, "session.create", func(ctx context.Context, tx domain.Tx) error {
		outcome = SessionOutcome{}

		if err := tx.Sessions.LockUser(ctx, userID); err != nil {
			return fmt.Errorf("lock user %q: %w", userID, err)
		}
		memberships, err := tx.Sessions.ListActiveMemberships(ctx, userID)
		if err != nil {
			return fmt.Errorf("list memberships of %q: %w", userID, err)
		}
		outcome.Decision = Decide(memberships, req.Type, req.Flow)
		if !outcome.Decision.Allowed {
			return nil
		}

		now := s.now().UTC()
		status := domain.SessionStatusActive
		if req.StartDelayMinutes > 0 {
			status = domain.SessionStatusScheduled
		}
		session := domain.Session{
			ID:              uuid.NewString(),
			CreatorID:       userID,
			OwnerID:         userID,
			Type:            req.Type,
			Flow:            req.Flow,
			Title:           strings.TrimSpace(req.Title),
			Description:     strings.TrimSpace(req.Description),
			Emoji:           req.Emoji,
			Lat:             req.Lat,
			Lng:             req.Lng,
			EventTime:       now.Add(time.Duration(req.StartDelayMinutes) * time.Minute),
			DurationMinutes: req.DurationMinutes,
			Status:          status,
			CreatedAt:       now,
		}
		if err := tx.Sessions.CreateSession(ctx, session); err != nil {
			return fmt.Errorf("insert session: %w", err)
		}
		if err := tx.Sessions.InsertMembership(ctx, session.ID, userID, domain.RoleCreator); err != nil {
			return fmt.Errorf("insert creator membership: %w", err)
		}
		outcome.Session = &session
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return SessionOutcome{}, storageFailure("create session", err)
	}

	s.recordDecision(ctx, span, "create", req.Type, outcome.Decision)
	if outcome.Session != nil {
		span.SetAttributes(attribute.String("session.id", outcome.Session.ID))
		span.AddEvent("session.created")
	}
	return outcome, nil
}

// JoinSession adds the caller as a participant, provided the session is
// open and the participation rules allow it.
func (s *SessionService) JoinSession(ctx context.Context, sessionID, userID string) (SessionOutcome, error) {
	ctx, span := middleware.StartSpan(ctx, "session.join", trace.WithAttributes(
		attribute.String("layer", "logic"),
		attribute.String("session.id", sessionID),
	))
	defer span.End()

	if strings.TrimSpace(sessionID) == "" || strings.TrimSpace(userID) == "" {
		return SessionOutcome{}, fmt.Errorf("session id and user id are required: %w", ErrInvalidArgument)
	}

	var outcome SessionOutcome
	var sessionType domain.SessionType
	err := runInTx(ctx, s.store, "session.join", func(ctx context.Context, tx domain.Tx) error {
		outcome = SessionOutcome{}

		if err := tx.Sessions.LockUser(ctx, userID); err != nil {
			return fmt.Errorf("lock user %q: %w", userID, err)
		}
		session, err := openSession(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		sessionType = session.Type
		member, err := tx.Sessions.IsMember(ctx, sessionID, userID)
		if err != nil {
			return fmt.Errorf("check membership: %w", err)
		}
		if member {
			return fmt.Errorf("join session %q: %w", sessionID, ErrAlreadyMember)
		}

		memberships, err := tx.Sessions.ListActiveMemberships(ctx, userID)
		if err != nil {
			return fmt.Errorf("list memberships of %q: %w", userID, err)
		}
		outcome.Decision = Decide(memberships, session.Type, session.Flow)
		if !outcome.Decision.Allowed {
			return nil
		}
		if err := tx.Sessions.InsertMembership(ctx, sessionID, userID, domain.RoleParticipant); err != nil {
			return fmt.Errorf("insert membership: %w", err)
		}
		outcome.Session = session
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return SessionOutcome{}, classify("join session", err)
	}

	s.recordDecision(ctx, span, "join", sessionType, outcome.Decision)
	return outcome, nil
}

// LeaveSession removes the caller's membership.
func (s *SessionService) LeaveSession(ctx context.Context, sessionID, userID string) error {
	ctx, span := middleware.StartSpan(ctx, "session.leave", trace.WithAttributes(
		attribute.String("layer", "logic"),
		attribute.String("session.id", sessionID),
	))
	defer span.End()

	if strings.TrimSpace(sessionID) == "" || strings.TrimSpace(userID) == "" {
		return fmt.Errorf("session id and user id are required: %w", ErrInvalidArgument)
	}

	err := runInTx(ctx, s.store, "session.leave", func(ctx context.Context, tx domain.Tx) error {
		if err := tx.Sessions.LockUser(ctx, userID); err != nil {
			return fmt.Errorf("lock user %q: %w", userID, err)
		}
		if _, err := getSession(ctx, tx, sessionID); err != nil {
			return err
		}
		err := tx.Sessions.DeleteMembership(ctx, sessionID, userID)
		if errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("leave session %q: %w", sessionID, ErrNotMember)
		}
		return err
	})
	if err != nil {
		span.RecordError(err)
		return classify("leave session", err)
	}
	span.AddEvent("session.left")
	return nil
}

// CloseSession closes the session and releases every membership in it.
// Only the creator may close a session.
func (s *SessionService) CloseSession(ctx context.Context, sessionID, userID string) error {
	ctx, span := middleware.StartSpan(ctx, "session.close", trace.WithAttributes(
		attribute.String("layer", "logic"),
		attribute.String("session.id", sessionID),
	))
	defer span.End()

	if strings.TrimSpace(sessionID) == "" || strings.TrimSpace(userID) == "" {
		return fmt.Errorf("session id and user id are required: %w", ErrInvalidArgument)
	}

	err := runInTx(ctx, s.store, "session.close", func(ctx context.Context, tx domain.Tx) error {
		session, err := openSession(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		if session.CreatorID != userID {
			return fmt.Errorf("close session %q: %w", sessionID, ErrNotSessionOwner)
		}
		return tx.Sessions.CloseSession(ctx, sessionID)
	})
	if err != nil {
		span.RecordError(err)
		return classify("close session", err)
	}
	span.AddEvent("session.closed")
	return nil
}

// TransferOwnership hands the session to another member. Only the current
// owner may transfer.
func (s *SessionService) TransferOwnership(ctx context.Context, sessionID, currentOwnerID, newOwnerID string) (*domain.Session, error) {
	ctx, span := middleware.StartSpan(ctx, "session.transfer", trace.WithAttributes(
		attribute.String("layer", "logic"),
		attribute.String("session.id", sessionID),
	))
	defer span.End()

	if strings.TrimSpace(sessionID) == "" || strings.TrimSpace(currentOwnerID) == "" || strings.TrimSpace(newOwnerID) == "" {
		return nil, fmt.Errorf("session id and both owner ids are required: %w", ErrInvalidArgument)
	}
	if currentOwnerID == newOwnerID {
		return nil, fmt.Errorf("transfer to self: %w", ErrInvalidArgument)
	}

	var updated *domain.Session
	err := runInTx(ctx, s.store, "session.transfer", func(ctx context.Context, tx domain.Tx) error {
		session, err := openSession(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		if session.OwnerID != currentOwnerID {
			return fmt.Errorf("transfer session %q: %w", sessionID, ErrNotSessionOwner)
		}
		member, err := tx.Sessions.IsMember(ctx, sessionID, newOwnerID)
		if err != nil {
			return fmt.Errorf("check membership: %w", err)
		}
		if !member {
			return fmt.Errorf("new owner %q: %w", newOwnerID, ErrNotMember)
		}
		if err := tx.Sessions.SetOwner(ctx, sessionID, newOwnerID); err != nil {
			return fmt.Errorf("set owner: %w", err)
		}
		session.OwnerID = newOwnerID
		updated = session
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, classify("transfer ownership", err)
	}
	span.AddEvent("session.ownership_transferred")
	return updated, nil
}

// ExtendSession adds minutes to an open session's duration. Only the
// current owner may extend.
func (s *SessionService) ExtendSession(ctx context.Context, sessionID, userID string, minutes int) (*domain.Session, error) {
	ctx, span := middleware.StartSpan(ctx, "session.extend", trace.WithAttributes(
		attribute.String("layer", "logic"),
		attribute.String("session.id", sessionID),
		attribute.Int("session.extend_minutes", minutes),
	))
	defer span.End()

	if strings.TrimSpace(sessionID) == "" || strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("session id and user id are required: %w", ErrInvalidArgument)
	}
	if minutes <= 0 {
		return nil, fmt.Errorf("extend by %d minutes: %w", minutes, ErrInvalidArgument)
	}

	var updated *domain.Session
	err := runInTx(ctx, s.store, "session.extend", func(ctx context.Context, tx domain.Tx) error {
		session, err := openSession(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		if session.OwnerID != userID {
			return fmt.Errorf("extend session %q: %w", sessionID, ErrNotSessionOwner)
		}
		if err := tx.Sessions.ExtendDuration(ctx, sessionID, minutes); err != nil {
			return fmt.Errorf("extend duration: %w", err)
		}
		session.DurationMinutes += minutes
		updated = session
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, classify("extend session", err)
	}
	return updated, nil
}

func (s *SessionService) recordDecision(ctx context.Context, span trace.Span, op string, sessionType domain.SessionType, decision ParticipationDecision) {
	participationDecisions.WithLabelValues(op, string(sessionType), outcomeLabel(decision.Allowed, decision.Code)).Inc()
	span.SetAttributes(attribute.Bool("participation.allowed", decision.Allowed))
	if !decision.Allowed {
		pkgzerolog.FromContext(ctx).Info().
			Str("operation", op).
			Str("session_type", string(sessionType)).
			Str("code", string(decision.Code)).
			Msg("Participation denied")
	}
}

// getSession loads a session, translating a missing row into ErrSessionNotFound.
func getSession(ctx context.Context, tx domain.Tx, sessionID string) (*domain.Session, error) {
	session, err := tx.Sessions.GetSession(ctx, sessionID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("session %q: %w", sessionID, ErrSessionNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get session %q: %w", sessionID, err)
	}
	return session, nil
}

// openSession is getSession that also rejects closed sessions.
func openSession(ctx context.Context, tx domain.Tx, sessionID string) (*domain.Session, error) {
	session, err := getSession(ctx, tx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status == domain.SessionStatusClosed {
		return nil, fmt.Errorf("session %q: %w", sessionID, ErrSessionClosed)
	}
	return session, nil
}
