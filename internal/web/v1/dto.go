package v1

import (
	"time"

	"github.com/quanpsy/vibex-gravity/internal/core/domain"
	logicv1 "github.com/quanpsy/vibex-gravity/internal/logic/v1"
)

// CreateSessionRequest is the body of POST /sessions.
type CreateSessionRequest struct {
	SessionType string  `json:"session_type" binding:"required"`
	Flow        string  `json:"flow"`
	Title       string  `json:"title" binding:"required"`
	Description string  `json:"description"`
	Emoji       string  `json:"emoji"`
	Lat         float64 `json:"lat"`
	Lng         float64 `json:"lng"`
	StartDelay  int     `json:"start_delay"`
	Duration    int     `json:"duration" binding:"required"`
}

type TransferRequest struct {
	NewOwnerID string `json:"new_owner_id" binding:"required"`
}

type ExtendRequest struct {
	Minutes int `json:"minutes" binding:"required"`
}

// VouchRequest is the body of POST /vouches. The voucher is the caller.
type VouchRequest struct {
	ReceiverID string `json:"receiver_id" binding:"required"`
	Skill      string `json:"skill" binding:"required"`
	SessionID  string `json:"session_id"`
}

type MembershipResponse struct {
	SessionID   string    `json:"session_id"`
	Title       string    `json:"title"`
	SessionType string    `json:"session_type"`
	Flow        string    `json:"flow,omitempty"`
	Status      string    `json:"status"`
	Role        string    `json:"role"`
	JoinedAt    time.Time `json:"joined_at"`
}

// DecisionResponse mirrors logicv1.ParticipationDecision.
type DecisionResponse struct {
	Allowed          bool                 `json:"allowed"`
	Code             string               `json:"code,omitempty"`
	Reason           string               `json:"reason,omitempty"`
	CurrentExclusive *MembershipResponse  `json:"current_exclusive,omitempty"`
	CurrentQueries   []MembershipResponse `json:"current_queries"`
}

type SessionResponse struct {
	ID              string    `json:"id"`
	CreatorID       string    `json:"creator_id"`
	OwnerID         string    `json:"current_owner_id"`
	SessionType     string    `json:"session_type"`
	Flow            string    `json:"flow,omitempty"`
	Title           string    `json:"title"`
	Description     string    `json:"description"`
	Emoji           string    `json:"emoji"`
	Lat             float64   `json:"lat"`
	Lng             float64   `json:"lng"`
	EventTime       time.Time `json:"event_time"`
	DurationMinutes int       `json:"duration"`
	Status          string    `json:"status"`
	CreatedAt       time.Time `json:"created_at"`
}

type SummaryResponse struct {
	ExclusiveSession *MembershipResponse  `json:"exclusive_session,omitempty"`
	Queries          []MembershipResponse `json:"queries"`
	SeekingQueries   []MembershipResponse `json:"seeking_queries"`
	OfferingQueries  []MembershipResponse `json:"offering_queries"`
	TotalActive      int                  `json:"total_active"`
	QueriesAtLimit   bool                 `json:"queries_at_limit"`
	SeekingAtLimit   bool                 `json:"seeking_at_limit"`
	OfferingAtLimit  bool                 `json:"offering_at_limit"`
}

type VouchResponse struct {
	Status      string `json:"status"`
	ID          string `json:"id,omitempty"`
	Points      int    `json:"points"`
	VouchNumber int    `json:"vouch_number,omitempty"`
	TotalScore  int    `json:"total_score"`
	Code        string `json:"code,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

type VouchPreviewResponse struct {
	CanVouch    bool   `json:"can_vouch"`
	NextPoints  int    `json:"next_points"`
	VouchNumber int    `json:"vouch_number,omitempty"`
	Remaining   int    `json:"remaining"`
	Code        string `json:"code,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

type VouchRecordResponse struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"session_id,omitempty"`
	VoucherID   string    `json:"voucher_id"`
	ReceiverID  string    `json:"receiver_id"`
	Skill       string    `json:"skill"`
	Points      int       `json:"points"`
	VouchNumber int       `json:"vouch_number"`
	CreatedAt   time.Time `json:"created_at"`
}

type ScoreResponse struct {
	UserID     string     `json:"user_id"`
	TotalScore int        `json:"total_score"`
	UpdatedAt  *time.Time `json:"updated_at,omitempty"`
}

type SkillPointsResponse struct {
	Skill  string `json:"skill"`
	Points int    `json:"points"`
}

type VoucherTotalResponse struct {
	VoucherID   string `json:"voucher_id"`
	TotalPoints int    `json:"total_points"`
	Vouches     int    `json:"vouches"`
}

func toMembership(m domain.SessionMembership) MembershipResponse {
	return MembershipResponse{
		SessionID:   m.SessionID,
		Title:       m.SessionTitle,
		SessionType: string(m.SessionType),
		Flow:        string(m.Flow),
		Status:      string(m.Status),
		Role:        string(m.Role),
		JoinedAt:    m.JoinedAt,
	}
}

func toMemberships(ms []domain.SessionMembership) []MembershipResponse {
	out := make([]MembershipResponse, 0, len(ms))
	for _, m := range ms {
		out = append(out, toMembership(m))
	}
	return out
}

func toMembershipPtr(m *domain.SessionMembership) *MembershipResponse {
	if m == nil {
		return nil
	}
	r := toMembership(*m)
	return &r
}

func toDecision(d logicv1.ParticipationDecision) DecisionResponse {
	return DecisionResponse{
		Allowed:          d.Allowed,
		Code:             string(d.Code),
		Reason:           d.Reason,
		CurrentExclusive: toMembershipPtr(d.Exclusive),
		CurrentQueries:   toMemberships(d.Queries),
	}
}

func toSession(s *domain.Session) SessionResponse {
	return SessionResponse{
		ID:              s.ID,
		CreatorID:       s.CreatorID,
		OwnerID:         s.OwnerID,
		SessionType:     string(s.Type),
		Flow:            string(s.Flow),
		Title:           s.Title,
		Description:     s.Description,
		Emoji:           s.Emoji,
		Lat:             s.Lat,
		Lng:             s.Lng,
		EventTime:       s.EventTime,
		DurationMinutes: s.DurationMinutes,
		Status:          string(s.Status),
		CreatedAt:       s.CreatedAt,
	}
}

func toSummary(s logicv1.ParticipationSummary) SummaryResponse {
	return SummaryResponse{
		ExclusiveSession: toMembershipPtr(s.Exclusive),
		Queries:          toMemberships(s.Queries),
		SeekingQueries:   toMemberships(s.SeekingQueries),
		OfferingQueries:  toMemberships(s.OfferingQueries),
		TotalActive:      s.TotalActive,
		QueriesAtLimit:   s.QueriesAtLimit,
		SeekingAtLimit:   s.SeekingAtLimit,
		OfferingAtLimit:  s.OfferingAtLimit,
	}
}

func toVouch(o logicv1.VouchOutcome) VouchResponse {
	r := VouchResponse{
		Status:      string(o.Status),
		Points:      o.Points,
		VouchNumber: o.SequenceNumber,
		TotalScore:  o.TotalScore,
		Code:        string(o.Code),
		Reason:      o.Reason,
	}
	if o.Vouch != nil {
		r.ID = o.Vouch.ID
	}
	return r
}

func toVouchRecords(vs []domain.VouchRecord) []VouchRecordResponse {
	out := make([]VouchRecordResponse, 0, len(vs))
	for _, v := range vs {
		out = append(out, VouchRecordResponse{
			ID:          v.ID,
			SessionID:   v.SessionID,
			VoucherID:   v.VoucherID,
			ReceiverID:  v.ReceiverID,
			Skill:       v.Skill,
			Points:      v.Points,
			VouchNumber: v.SequenceNumber,
			CreatedAt:   v.CreatedAt,
		})
	}
	return out
}
