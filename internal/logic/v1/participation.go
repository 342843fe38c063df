package v1

import (
	"context"
	"fmt"
	"strings"

	pkgzerolog "github.com/duynhne/pkg/logger/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/quanpsy/vibex-gravity/internal/core/domain"
	"github.com/quanpsy/vibex-gravity/middleware"
)

// Participation limits.
const (
	MaxQueries       = 4
	MaxQuerySeeking  = 2
	MaxQueryOffering = 2
)

// DenialCode is the machine-readable kind of a policy denial.
type DenialCode string

const (
	DenialNone             DenialCode = ""
	DenialExclusiveSession DenialCode = "exclusive_session_held"
	DenialQueryLimit       DenialCode = "query_limit"
	DenialQueryFlowLimit   DenialCode = "query_flow_limit"
	DenialSelfVouch        DenialCode = "self_vouch"
	DenialVouchLimit       DenialCode = "vouch_limit"
)

// ParticipationDecision is the verdict on whether a user may create or join
// a session of a given type and flow.
type ParticipationDecision struct {
	Allowed bool
	Reason  string
	Code    DenialCode

	// Memberships is the snapshot the decision was made from.
	Memberships []domain.SessionMembership
	// Exclusive is the held vibe, help or cookie membership, if any.
	Exclusive *domain.SessionMembership
	// Queries are the held query memberships.
	Queries []domain.SessionMembership
}

// MaxQueriesForFlow returns the per-flow query cap.
func MaxQueriesForFlow(flow domain.Flow) int {
	if flow == domain.FlowOffering {
		return MaxQueryOffering
	}
	return MaxQuerySeeking
}

// Decide applies the participation rules to a membership snapshot. The
// first failing rule wins: exclusivity, then the aggregate query cap, then
// the per-flow query cap. Closed memberships are ignored.
func Decide(memberships []domain.SessionMembership, sessionType domain.SessionType, flow domain.Flow) ParticipationDecision {
	decision := ParticipationDecision{Allowed: true, Memberships: memberships}

	for i := range memberships {
		m := &memberships[i]
		if m.Status == domain.SessionStatusClosed {
			continue
		}
		if m.SessionType.IsExclusive() && decision.Exclusive == nil {
			decision.Exclusive = m
		}
		if m.SessionType == domain.SessionTypeQuery {
			decision.Queries = append(decision.Queries, *m)
		}
	}

	if sessionType.IsExclusive() && decision.Exclusive != nil {
		decision.Allowed = false
		decision.Code = DenialExclusiveSession
		decision.Reason = fmt.Sprintf(
			`You can only be in one Vibe, Help, or Cookie session at a time. Leave "%s" first.`,
			decision.Exclusive.SessionTitle,
		)
		return decision
	}

	if sessionType == domain.SessionTypeQuery {
		if len(decision.Queries) >= MaxQueries {
			decision.Allowed = false
			decision.Code = DenialQueryLimit
			decision.Reason = fmt.Sprintf("Maximum %d queries at a time. Leave one first.", MaxQueries)
			return decision
		}

		sameFlow := 0
		for _, q := range decision.Queries {
			if q.Flow == flow {
				sameFlow++
			}
		}
		if limit := MaxQueriesForFlow(flow); sameFlow >= limit {
			decision.Allowed = false
			decision.Code = DenialQueryFlowLimit
			decision.Reason = fmt.Sprintf(`Maximum %d "%s" queries at a time.`, limit, flow)
			return decision
		}
	}

	return decision
}

// validateParticipation rejects type/flow combinations no caller should send.
func validateParticipation(userID string, sessionType domain.SessionType, flow domain.Flow) error {
	if strings.TrimSpace(userID) == "" {
		return fmt.Errorf("user id is required: %w", ErrInvalidArgument)
	}
	if parsed, ok := domain.ParseSessionType(string(sessionType)); !ok || parsed != sessionType {
		return fmt.Errorf("session type %q: %w", sessionType, ErrInvalidArgument)
	}
	if parsed, ok := domain.ParseFlow(string(flow)); !ok || parsed != flow {
		return fmt.Errorf("flow %q: %w", flow, ErrInvalidArgument)
	}
	if sessionType.RequiresFlow() && flow == domain.FlowNone {
		return fmt.Errorf("%s session requires a flow: %w", sessionType, ErrInvalidArgument)
	}
	if !sessionType.RequiresFlow() && flow != domain.FlowNone {
		return fmt.Errorf("%s session takes no flow: %w", sessionType, ErrInvalidArgument)
	}
	return nil
}

// ParticipationSummary describes what a user currently holds.
type ParticipationSummary struct {
	Exclusive       *domain.SessionMembership
	Queries         []domain.SessionMembership
	SeekingQueries  []domain.SessionMembership
	OfferingQueries []domain.SessionMembership
	TotalActive     int
	QueriesAtLimit  bool
	SeekingAtLimit  bool
	OfferingAtLimit bool
}

// ParticipationEngine answers participation questions from a fresh read of
// the user's memberships.
// It MUST NOT access the database or SQL directly.
type ParticipationEngine struct {
	store domain.Store
}

// NewParticipationEngine creates a new ParticipationEngine.
func NewParticipationEngine(store domain.Store) *ParticipationEngine {
	return &ParticipationEngine{store: store}
}

// Evaluate reports whether the user may create or join a session of the
// given type and flow right now. The answer is advisory: create and join
// re-evaluate inside their own transaction.
func (e *ParticipationEngine) Evaluate(ctx context.Context, userID string, sessionType domain.SessionType, flow domain.Flow) (ParticipationDecision, error) {
	ctx, span := middleware.StartSpan(ctx, "participation.evaluate", trace.WithAttributes(
		attribute.String("layer", "logic"),
		attribute.String("session.type", string(sessionType)),
		attribute.String("session.flow", string(flow)),
	))
	defer span.End()

	if err := validateParticipation(userID, sessionType, flow); err != nil {
		span.RecordError(err)
		return ParticipationDecision{}, err
	}

	var decision ParticipationDecision
	err := runInTx(ctx, e.store, "participation.evaluate", func(ctx context.Context, tx domain.Tx) error {
		memberships, err := tx.Sessions.ListActiveMemberships(ctx, userID)
		if err != nil {
			return fmt.Errorf("list memberships of %q: %w", userID, err)
		}
		decision = Decide(memberships, sessionType, flow)
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return ParticipationDecision{}, storageFailure("evaluate participation", err)
	}

	participationDecisions.WithLabelValues("evaluate", string(sessionType), outcomeLabel(decision.Allowed, decision.Code)).Inc()
	span.SetAttributes(attribute.Bool("participation.allowed", decision.Allowed))
	if !decision.Allowed {
		pkgzerolog.FromContext(ctx).Info().
			Str("session_type", string(sessionType)).
			Str("code", string(decision.Code)).
			Msg("Participation denied")
	}
	return decision, nil
}

// Summary returns the user's current exclusive and query memberships.
func (e *ParticipationEngine) Summary(ctx context.Context, userID string) (ParticipationSummary, error) {
	ctx, span := middleware.StartSpan(ctx, "participation.summary", trace.WithAttributes(
		attribute.String("layer", "logic"),
	))
	defer span.End()

	if strings.TrimSpace(userID) == "" {
		return ParticipationSummary{}, fmt.Errorf("user id is required: %w", ErrInvalidArgument)
	}

	var memberships []domain.SessionMembership
	err := runInTx(ctx, e.store, "participation.summary", func(ctx context.Context, tx domain.Tx) error {
		var err error
		memberships, err = tx.Sessions.ListActiveMemberships(ctx, userID)
		return err
	})
	if err != nil {
		span.RecordError(err)
		return ParticipationSummary{}, storageFailure("participation summary", err)
	}

	return summarize(memberships), nil
}

func summarize(memberships []domain.SessionMembership) ParticipationSummary {
	var s ParticipationSummary
	for i := range memberships {
		m := &memberships[i]
		if m.Status == domain.SessionStatusClosed {
			continue
		}
		s.TotalActive++
		if m.SessionType.IsExclusive() && s.Exclusive == nil {
			s.Exclusive = m
		}
		if m.SessionType != domain.SessionTypeQuery {
			continue
		}
		s.Queries = append(s.Queries, *m)
		switch m.Flow {
		case domain.FlowSeeking:
			s.SeekingQueries = append(s.SeekingQueries, *m)
		case domain.FlowOffering:
			s.OfferingQueries = append(s.OfferingQueries, *m)
		}
	}
	s.QueriesAtLimit = len(s.Queries) >= MaxQueries
	s.SeekingAtLimit = len(s.SeekingQueries) >= MaxQuerySeeking
	s.OfferingAtLimit = len(s.OfferingQueries) >= MaxQueryOffering
	return s
}
