package v1

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	pkgzerolog "github.com/duynhne/pkg/logger/zerolog"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/quanpsy/vibex-gravity/internal/core/domain"
	"github.com/quanpsy/vibex-gravity/middleware"
)

// MaxVouches is how many times one voucher may ever vouch for one receiver.
const MaxVouches = 5

// vouchPoints is the decaying point schedule indexed by sequence number - 1.
var vouchPoints = [MaxVouches]int{10, 7, 5, 2, 1}

// Top voucher listing bounds.
const (
	DefaultTopVouchers = 5
	MaxTopVouchers     = 50
)

// PointsFor returns the points the n-th vouch in a pair is worth, or 0 when
// n is outside 1..MaxVouches.
func PointsFor(n int) int {
	if n < 1 || n > MaxVouches {
		return 0
	}
	return vouchPoints[n-1]
}

// VouchStatus tells accepted vouches from policy denials.
type VouchStatus string

const (
	VouchAccepted VouchStatus = "accepted"
	VouchDenied   VouchStatus = "denied"
)

// VouchRequest is one endorsement attempt.
type VouchRequest struct {
	VoucherID  string
	ReceiverID string
	Skill      string
	// SessionID optionally ties the vouch to the session it came out of.
	SessionID string
}

// VouchOutcome is the result of RecordVouch. Points, SequenceNumber,
// TotalScore and Vouch are set only for accepted vouches.
type VouchOutcome struct {
	Status         VouchStatus
	Points         int
	SequenceNumber int
	TotalScore     int
	Reason         string
	Code           DenialCode
	Vouch          *domain.VouchRecord
}

// VouchPreview answers "could the voucher vouch for the receiver right now".
type VouchPreview struct {
	CanVouch       bool
	NextPoints     int
	SequenceNumber int
	Remaining      int
	Reason         string
	Code           DenialCode
}

// SkillPoints is the total a user received for one skill.
type SkillPoints struct {
	Skill  string
	Points int
}

// VoucherTotal is how much one voucher has given a receiver.
type VoucherTotal struct {
	VoucherID   string
	TotalPoints int
	Vouches     int
}

const (
	reasonSelfVouch  = "You cannot vouch for yourself"
	reasonVouchLimit = "Maximum 5 vouches reached for this person"
)

func selfVouchDenied() VouchOutcome {
	return VouchOutcome{Status: VouchDenied, Code: DenialSelfVouch, Reason: reasonSelfVouch}
}

func vouchLimitDenied() VouchOutcome {
	return VouchOutcome{Status: VouchDenied, Code: DenialVouchLimit, Reason: reasonVouchLimit}
}

// ReputationEngine assigns points to vouches and maintains each receiver's
// aggregate score as a full re-sum of the vouches they received.
// It MUST NOT access the database or SQL directly.
type ReputationEngine struct {
	store domain.Store
	now   func() time.Time
}

// NewReputationEngine creates a new ReputationEngine.
func NewReputationEngine(store domain.Store) *ReputationEngine {
	return &ReputationEngine{store: store, now: time.Now}
}

// RecordVouch counts the pair's existing vouches, appends the next one with
// its scheduled points and re-sums the receiver's score, all in one
// transaction. Self vouches and exhausted pairs come back as denied outcomes.
func (e *ReputationEngine) RecordVouch(ctx context.Context, req VouchRequest) (VouchOutcome, error) {
	ctx, span := middleware.StartSpan(ctx, "reputation.record_vouch", trace.WithAttributes(
		attribute.String("layer", "logic"),
		attribute.String("vouch.receiver_id", req.ReceiverID),
	))
	defer span.End()

	logger := pkgzerolog.FromContext(ctx)

	skill := strings.TrimSpace(req.Skill)
	if strings.TrimSpace(req.VoucherID) == "" || strings.TrimSpace(req.ReceiverID) == "" {
		return VouchOutcome{}, fmt.Errorf("voucher and receiver are required: %w", ErrInvalidArgument)
	}
	if skill == "" {
		return VouchOutcome{}, fmt.Errorf("skill is required: %w", ErrInvalidArgument)
	}

	if req.VoucherID == req.ReceiverID {
		vouchOutcomes.WithLabelValues(string(DenialSelfVouch)).Inc()
		span.SetAttributes(attribute.String("vouch.status", string(VouchDenied)))
		logger.Info().Str("code", string(DenialSelfVouch)).Msg("Vouch denied")
		return selfVouchDenied(), nil
	}

	var outcome VouchOutcome
	err := runInTx(ctx, e.store, "reputation.record_vouch", func(ctx context.Context, tx domain.Tx) error {
		outcome = VouchOutcome{}

		if req.SessionID != "" {
			if _, err := getSession(ctx, tx, req.SessionID); err != nil {
				return err
			}
		}

		count, err := tx.Vouches.CountVouches(ctx, req.VoucherID, req.ReceiverID)
		if err != nil {
			return fmt.Errorf("count vouches: %w", err)
		}
		n := count + 1
		if n > MaxVouches {
			outcome = vouchLimitDenied()
			return nil
		}

		vouch := domain.VouchRecord{
			ID:             uuid.NewString(),
			SessionID:      req.SessionID,
			VoucherID:      req.VoucherID,
			ReceiverID:     req.ReceiverID,
			Skill:          skill,
			Points:         PointsFor(n),
			SequenceNumber: n,
			CreatedAt:      e.now().UTC(),
		}
		if err := tx.Vouches.InsertVouch(ctx, vouch); err != nil {
			return fmt.Errorf("insert vouch %d: %w", n, err)
		}

		total, err := tx.Vouches.SumReceivedPoints(ctx, req.ReceiverID)
		if err != nil {
			return fmt.Errorf("sum received points: %w", err)
		}
		if err := tx.Vouches.SetScore(ctx, req.ReceiverID, total); err != nil {
			return fmt.Errorf("set score: %w", err)
		}

		outcome = VouchOutcome{
			Status:         VouchAccepted,
			Points:         vouch.Points,
			SequenceNumber: vouch.SequenceNumber,
			TotalScore:     total,
			Vouch:          &vouch,
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		err = classify("record vouch", err)
		if errors.Is(err, ErrStorageFailure) {
			vouchOutcomes.WithLabelValues("storage_failure").Inc()
		} else {
			vouchOutcomes.WithLabelValues("rejected").Inc()
		}
		return VouchOutcome{}, err
	}

	span.SetAttributes(attribute.String("vouch.status", string(outcome.Status)))
	if outcome.Status == VouchDenied {
		vouchOutcomes.WithLabelValues(string(outcome.Code)).Inc()
		logger.Info().Str("code", string(outcome.Code)).Msg("Vouch denied")
		return outcome, nil
	}

	vouchOutcomes.WithLabelValues(string(VouchAccepted)).Inc()
	span.SetAttributes(
		attribute.Int("vouch.sequence", outcome.SequenceNumber),
		attribute.Int("vouch.points", outcome.Points),
	)
	span.AddEvent("vouch.recorded")
	return outcome, nil
}

// PreviewVouch reports whether a vouch would be accepted and what it would
// be worth, without writing anything.
func (e *ReputationEngine) PreviewVouch(ctx context.Context, voucherID, receiverID string) (VouchPreview, error) {
	ctx, span := middleware.StartSpan(ctx, "reputation.preview_vouch", trace.WithAttributes(
		attribute.String("layer", "logic"),
	))
	defer span.End()

	if strings.TrimSpace(voucherID) == "" || strings.TrimSpace(receiverID) == "" {
		return VouchPreview{}, fmt.Errorf("voucher and receiver are required: %w", ErrInvalidArgument)
	}
	if voucherID == receiverID {
		return VouchPreview{Code: DenialSelfVouch, Reason: reasonSelfVouch}, nil
	}

	var count int
	err := runInTx(ctx, e.store, "reputation.preview_vouch", func(ctx context.Context, tx domain.Tx) error {
		var err error
		count, err = tx.Vouches.CountVouches(ctx, voucherID, receiverID)
		return err
	})
	if err != nil {
		span.RecordError(err)
		return VouchPreview{}, storageFailure("preview vouch", err)
	}

	n := count + 1
	if n > MaxVouches {
		return VouchPreview{Code: DenialVouchLimit, Reason: reasonVouchLimit}, nil
	}
	return VouchPreview{
		CanVouch:       true,
		NextPoints:     PointsFor(n),
		SequenceNumber: n,
		Remaining:      MaxVouches - count,
	}, nil
}

// Score returns the user's stored aggregate; users nobody has vouched for score 0.
func (e *ReputationEngine) Score(ctx context.Context, userID string) (domain.ReputationScore, error) {
	ctx, span := middleware.StartSpan(ctx, "reputation.score", trace.WithAttributes(
		attribute.String("layer", "logic"),
	))
	defer span.End()

	if strings.TrimSpace(userID) == "" {
		return domain.ReputationScore{}, fmt.Errorf("user id is required: %w", ErrInvalidArgument)
	}

	score := domain.ReputationScore{UserID: userID}
	err := runInTx(ctx, e.store, "reputation.score", func(ctx context.Context, tx domain.Tx) error {
		stored, err := tx.Vouches.GetScore(ctx, userID)
		if errors.Is(err, domain.ErrNotFound) {
			score = domain.ReputationScore{UserID: userID}
			return nil
		}
		if err != nil {
			return err
		}
		score = *stored
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return domain.ReputationScore{}, storageFailure("get score", err)
	}
	return score, nil
}

// History returns the vouches the user received, newest first.
func (e *ReputationEngine) History(ctx context.Context, userID string) ([]domain.VouchRecord, error) {
	ctx, span := middleware.StartSpan(ctx, "reputation.history", trace.WithAttributes(
		attribute.String("layer", "logic"),
	))
	defer span.End()

	vouches, err := e.receivedVouches(ctx, "reputation.history", userID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return vouches, nil
}

// SkillBreakdown sums the user's received points per skill, highest first.
func (e *ReputationEngine) SkillBreakdown(ctx context.Context, userID string) ([]SkillPoints, error) {
	ctx, span := middleware.StartSpan(ctx, "reputation.skill_breakdown", trace.WithAttributes(
		attribute.String("layer", "logic"),
	))
	defer span.End()

	vouches, err := e.receivedVouches(ctx, "reputation.skill_breakdown", userID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	totals := make(map[string]int)
	for _, v := range vouches {
		totals[v.Skill] += v.Points
	}
	breakdown := make([]SkillPoints, 0, len(totals))
	for skill, points := range totals {
		breakdown = append(breakdown, SkillPoints{Skill: skill, Points: points})
	}
	slices.SortFunc(breakdown, func(a, b SkillPoints) int {
		if c := cmp.Compare(b.Points, a.Points); c != 0 {
			return c
		}
		return cmp.Compare(a.Skill, b.Skill)
	})
	return breakdown, nil
}

// TopVouchers ranks the user's vouchers by total points given. limit 0
// means DefaultTopVouchers; larger values are capped at MaxTopVouchers.
func (e *ReputationEngine) TopVouchers(ctx context.Context, userID string, limit int) ([]VoucherTotal, error) {
	ctx, span := middleware.StartSpan(ctx, "reputation.top_vouchers", trace.WithAttributes(
		attribute.String("layer", "logic"),
		attribute.Int("limit", limit),
	))
	defer span.End()

	switch {
	case limit < 0:
		return nil, fmt.Errorf("limit %d: %w", limit, ErrInvalidArgument)
	case limit == 0:
		limit = DefaultTopVouchers
	case limit > MaxTopVouchers:
		limit = MaxTopVouchers
	}

	vouches, err := e.receivedVouches(ctx, "reputation.top_vouchers", userID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	byVoucher := make(map[string]*VoucherTotal)
	for _, v := range vouches {
		t, ok := byVoucher[v.VoucherID]
		if !ok {
			t = &VoucherTotal{VoucherID: v.VoucherID}
			byVoucher[v.VoucherID] = t
		}
		t.TotalPoints += v.Points
		t.Vouches++
	}
	ranked := make([]VoucherTotal, 0, len(byVoucher))
	for _, t := range byVoucher {
		ranked = append(ranked, *t)
	}
	slices.SortFunc(ranked, func(a, b VoucherTotal) int {
		if c := cmp.Compare(b.TotalPoints, a.TotalPoints); c != 0 {
			return c
		}
		return cmp.Compare(a.VoucherID, b.VoucherID)
	})
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked, nil
}

func (e *ReputationEngine) receivedVouches(ctx context.Context, op, userID string) ([]domain.VouchRecord, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("user id is required: %w", ErrInvalidArgument)
	}

	var vouches []domain.VouchRecord
	err := runInTx(ctx, e.store, op, func(ctx context.Context, tx domain.Tx) error {
		var err error
		vouches, err = tx.Vouches.ListReceivedVouches(ctx, userID)
		return err
	})
	if err != nil {
		return nil, storageFailure("list received vouches", err)
	}
	return vouches, nil
}
