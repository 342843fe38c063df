package domain

import (
	"strings"
	"time"
)

// SessionType is the kind of activity a session represents.
type SessionType string

const (
	SessionTypeVibe   SessionType = "vibe"
	SessionTypeHelp   SessionType = "help"
	SessionTypeCookie SessionType = "cookie"
	SessionTypeQuery  SessionType = "query"
)

// ParseSessionType normalizes raw input into a SessionType.
func ParseSessionType(raw string) (SessionType, bool) {
	switch SessionType(strings.ToLower(strings.TrimSpace(raw))) {
	case SessionTypeVibe:
		return SessionTypeVibe, true
	case SessionTypeHelp:
		return SessionTypeHelp, true
	case SessionTypeCookie:
		return SessionTypeCookie, true
	case SessionTypeQuery:
		return SessionTypeQuery, true
	default:
		return "", false
	}
}

// IsExclusive reports whether the type belongs to the mutually exclusive
// set {vibe, help, cookie}.
func (t SessionType) IsExclusive() bool {
	switch t {
	case SessionTypeVibe, SessionTypeHelp, SessionTypeCookie:
		return true
	default:
		return false
	}
}

// RequiresFlow reports whether sessions of this type carry a seeking/offering flow.
func (t SessionType) RequiresFlow() bool {
	switch t {
	case SessionTypeHelp, SessionTypeCookie, SessionTypeQuery:
		return true
	default:
		return false
	}
}

// Flow is the direction of a help, cookie or query session.
type Flow string

const (
	FlowNone     Flow = ""
	FlowSeeking  Flow = "seeking"
	FlowOffering Flow = "offering"
)

// ParseFlow normalizes raw input into a Flow. Empty input yields FlowNone.
func ParseFlow(raw string) (Flow, bool) {
	switch Flow(strings.ToLower(strings.TrimSpace(raw))) {
	case FlowNone:
		return FlowNone, true
	case FlowSeeking:
		return FlowSeeking, true
	case FlowOffering:
		return FlowOffering, true
	default:
		return "", false
	}
}

// SessionStatus is the lifecycle state of a session.
type SessionStatus string

const (
	SessionStatusScheduled SessionStatus = "scheduled"
	SessionStatusActive    SessionStatus = "active"
	SessionStatusClosed    SessionStatus = "closed"
)

// MemberRole is a user's role inside one session.
type MemberRole string

const (
	RoleCreator     MemberRole = "creator"
	RoleParticipant MemberRole = "participant"
)

// Session is a time-bounded, location-bound activity users can join.
type Session struct {
	ID              string
	CreatorID       string
	OwnerID         string
	Type            SessionType
	Flow            Flow
	Title           string
	Description     string
	Emoji           string
	Lat             float64
	Lng             float64
	EventTime       time.Time
	DurationMinutes int
	Status          SessionStatus
	CreatedAt       time.Time
}

// SessionMembership is one user's association with one non-closed session,
// joined with the session attributes the participation rules need.
type SessionMembership struct {
	SessionID    string
	SessionTitle string
	UserID       string
	SessionType  SessionType
	Flow         Flow
	Status       SessionStatus
	Role         MemberRole
	JoinedAt     time.Time
}
