package v1

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	pkgzerolog "github.com/duynhne/pkg/logger/zerolog"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/quanpsy/vibex-gravity/internal/core/domain"
	logicv1 "github.com/quanpsy/vibex-gravity/internal/logic/v1"
	"github.com/quanpsy/vibex-gravity/middleware"
)

// Handler groups HTTP handlers for the participation and reputation API v1.
// Dependencies are injected via the constructor; there is no global state.
type Handler struct {
	participation *logicv1.ParticipationEngine
	sessions      *logicv1.SessionService
	reputation    *logicv1.ReputationEngine
	notifier      domain.Notifier
}

// NewHandler creates a new Handler.
func NewHandler(
	participation *logicv1.ParticipationEngine,
	sessions *logicv1.SessionService,
	reputation *logicv1.ReputationEngine,
	notifier domain.Notifier,
) *Handler {
	return &Handler{
		participation: participation,
		sessions:      sessions,
		reputation:    reputation,
		notifier:      notifier,
	}
}

// RegisterRoutes registers all API v1 routes on the given router group.
// Every route requires the X-User-ID caller identity.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	api := rg.Group("", middleware.RequireUser())

	api.GET("/participation/check", h.CheckParticipation)
	api.GET("/participation/summary", h.GetSummary)

	api.POST("/sessions", h.CreateSession)
	api.POST("/sessions/:id/join", h.JoinSession)
	api.POST("/sessions/:id/leave", h.LeaveSession)
	api.POST("/sessions/:id/close", h.CloseSession)
	api.POST("/sessions/:id/transfer", h.TransferOwnership)
	api.POST("/sessions/:id/extend", h.ExtendSession)

	api.POST("/vouches", h.RecordVouch)
	api.GET("/vouches/check", h.PreviewVouch)

	api.GET("/users/:id/score", h.GetScore)
	api.GET("/users/:id/vouches", h.GetHistory)
	api.GET("/users/:id/skills", h.GetSkills)
	api.GET("/users/:id/top-vouchers", h.GetTopVouchers)
}

func startRequestSpan(c *gin.Context) (context.Context, trace.Span) {
	return middleware.StartSpan(c.Request.Context(), "http.request", trace.WithAttributes(
		attribute.String("layer", "web"),
		attribute.String("method", c.Request.Method),
		attribute.String("path", c.FullPath()),
	))
}

// writeError maps logic errors to HTTP responses.
func writeError(c *gin.Context, ctx context.Context, span trace.Span, err error, msg string) {
	span.RecordError(err)
	logger := pkgzerolog.FromContext(ctx)

	switch {
	case errors.Is(err, logicv1.ErrInvalidArgument):
		logger.Warn().Err(err).Msg(msg)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, logicv1.ErrSessionNotFound):
		logger.Warn().Err(err).Msg(msg)
		c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
	case errors.Is(err, logicv1.ErrNotMember):
		logger.Warn().Err(err).Msg(msg)
		c.JSON(http.StatusNotFound, gin.H{"error": "Not a member of this session"})
	case errors.Is(err, logicv1.ErrNotSessionOwner):
		logger.Warn().Err(err).Msg(msg)
		c.JSON(http.StatusForbidden, gin.H{"error": "Only the session owner can do that"})
	case errors.Is(err, logicv1.ErrSessionClosed):
		logger.Warn().Err(err).Msg(msg)
		c.JSON(http.StatusConflict, gin.H{"error": "Session is closed"})
	case errors.Is(err, logicv1.ErrAlreadyMember):
		logger.Warn().Err(err).Msg(msg)
		c.JSON(http.StatusConflict, gin.H{"error": "Already a member of this session"})
	case errors.Is(err, logicv1.ErrStorageFailure):
		logger.Error().Err(err).Msg(msg)
		c.Header("Retry-After", "1")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Temporarily unavailable, please retry"})
	default:
		logger.Error().Err(err).Msg(msg)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}

func bindJSON(c *gin.Context, ctx context.Context, span trace.Span, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		span.SetAttributes(attribute.Bool("request.valid", false))
		span.RecordError(err)
		pkgzerolog.FromContext(ctx).Warn().Err(err).Msg("Invalid request")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return false
	}
	span.SetAttributes(attribute.Bool("request.valid", true))
	return true
}

// parseTypeAndFlow rejects unknown enum values before they reach the logic layer.
func parseTypeAndFlow(c *gin.Context, rawType, rawFlow string) (domain.SessionType, domain.Flow, bool) {
	sessionType, ok := domain.ParseSessionType(rawType)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "session_type must be one of vibe, help, cookie, query"})
		return "", "", false
	}
	flow, ok := domain.ParseFlow(rawFlow)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "flow must be seeking or offering"})
		return "", "", false
	}
	return sessionType, flow, true
}

func (h *Handler) notify(ctx context.Context, n domain.Notification) {
	if h.notifier == nil {
		return
	}
	if err := h.notifier.Notify(ctx, n); err != nil {
		pkgzerolog.FromContext(ctx).Warn().
			Err(err).
			Str("kind", string(n.Kind)).
			Str("recipient_id", n.RecipientID).
			Msg("Notification delivery failed")
	}
}

// CheckParticipation answers whether the caller may join a session of the
// given type and flow. A denial is a normal 200 answer here.
// GET /api/v1/participation/check?session_type=query&flow=seeking
func (h *Handler) CheckParticipation(c *gin.Context) {
	ctx, span := startRequestSpan(c)
	defer span.End()

	sessionType, flow, ok := parseTypeAndFlow(c, c.Query("session_type"), c.Query("flow"))
	if !ok {
		return
	}

	decision, err := h.participation.Evaluate(ctx, middleware.UserID(c), sessionType, flow)
	if err != nil {
		writeError(c, ctx, span, err, "Participation check failed")
		return
	}
	c.JSON(http.StatusOK, toDecision(decision))
}

// GetSummary returns the caller's current session participation.
// GET /api/v1/participation/summary
func (h *Handler) GetSummary(c *gin.Context) {
	ctx, span := startRequestSpan(c)
	defer span.End()

	summary, err := h.participation.Summary(ctx, middleware.UserID(c))
	if err != nil {
		writeError(c, ctx, span, err, "Participation summary failed")
		return
	}
	c.JSON(http.StatusOK, toSummary(summary))
}

// CreateSession creates a session owned by the caller.
// POST /api/v1/sessions
func (h *Handler) CreateSession(c *gin.Context) {
	ctx, span := startRequestSpan(c)
	defer span.End()

	var req CreateSessionRequest
	if !bindJSON(c, ctx, span, &req) {
		return
	}
	sessionType, flow, ok := parseTypeAndFlow(c, req.SessionType, req.Flow)
	if !ok {
		return
	}

	outcome, err := h.sessions.CreateSession(ctx, middleware.UserID(c), logicv1.NewSession{
		Type:              sessionType,
		Flow:              flow,
		Title:             req.Title,
		Description:       req.Description,
		Emoji:             req.Emoji,
		Lat:               req.Lat,
		Lng:               req.Lng,
		StartDelayMinutes: req.StartDelay,
		DurationMinutes:   req.Duration,
	})
	if err != nil {
		writeError(c, ctx, span, err, "Create session failed")
		return
	}
	if !outcome.Decision.Allowed {
		c.JSON(http.StatusConflict, toDecision(outcome.Decision))
		return
	}

	pkgzerolog.FromContext(ctx).Info().Str("session_id", outcome.Session.ID).Msg("Session created")
	c.JSON(http.StatusCreated, toSession(outcome.Session))
}

// JoinSession adds the caller to a session and notifies its creator.
// POST /api/v1/sessions/:id/join
func (h *Handler) JoinSession(c *gin.Context) {
	ctx, span := startRequestSpan(c)
	defer span.End()

	userID := middleware.UserID(c)
	outcome, err := h.sessions.JoinSession(ctx, c.Param("id"), userID)
	if err != nil {
		writeError(c, ctx, span, err, "Join session failed")
		return
	}
	if !outcome.Decision.Allowed {
		c.JSON(http.StatusConflict, toDecision(outcome.Decision))
		return
	}

	h.notify(ctx, domain.Notification{
		Kind:        domain.NotificationSessionJoin,
		RecipientID: outcome.Session.CreatorID,
		ActorID:     userID,
		SessionID:   outcome.Session.ID,
	})
	c.JSON(http.StatusOK, toSession(outcome.Session))
}

// LeaveSession removes the caller from a session.
// POST /api/v1/sessions/:id/leave
func (h *Handler) LeaveSession(c *gin.Context) {
	ctx, span := startRequestSpan(c)
	defer span.End()

	if err := h.sessions.LeaveSession(ctx, c.Param("id"), middleware.UserID(c)); err != nil {
		writeError(c, ctx, span, err, "Leave session failed")
		return
	}
	c.Status(http.StatusNoContent)
}

// CloseSession closes a session the caller created.
// POST /api/v1/sessions/:id/close
func (h *Handler) CloseSession(c *gin.Context) {
	ctx, span := startRequestSpan(c)
	defer span.End()

	if err := h.sessions.CloseSession(ctx, c.Param("id"), middleware.UserID(c)); err != nil {
		writeError(c, ctx, span, err, "Close session failed")
		return
	}
	c.Status(http.StatusNoContent)
}

// TransferOwnership hands a session the caller owns to another member.
// POST /api/v1/sessions/:id/transfer
func (h *Handler) TransferOwnership(c *gin.Context) {
	ctx, span := startRequestSpan(c)
	defer span.End()

	var req TransferRequest
	if !bindJSON(c, ctx, span, &req) {
		return
	}

	userID := middleware.UserID(c)
	session, err := h.sessions.TransferOwnership(ctx, c.Param("id"), userID, req.NewOwnerID)
	if err != nil {
		writeError(c, ctx, span, err, "Transfer ownership failed")
		return
	}

	h.notify(ctx, domain.Notification{
		Kind:        domain.NotificationOwnership,
		RecipientID: req.NewOwnerID,
		ActorID:     userID,
		SessionID:   session.ID,
	})
	c.JSON(http.StatusOK, toSession(session))
}

// ExtendSession lengthens a session the caller owns.
// POST /api/v1/sessions/:id/extend
func (h *Handler) ExtendSession(c *gin.Context) {
	ctx, span := startRequestSpan(c)
	defer span.End()

	var req ExtendRequest
	if !bindJSON(c, ctx, span, &req) {
		return
	}

	session, err := h.sessions.ExtendSession(ctx, c.Param("id"), middleware.UserID(c), req.Minutes)
	if err != nil {
		writeError(c, ctx, span, err, "Extend session failed")
		return
	}
	c.JSON(http.StatusOK, toSession(session))
}

// RecordVouch records a vouch from the caller and notifies the receiver.
// POST /api/v1/vouches
func (h *Handler) RecordVouch(c *gin.Context) {
	ctx, span := startRequestSpan(c)
	defer span.End()

	var req VouchRequest
	if !bindJSON(c, ctx, span, &req) {
		return
	}

	voucherID := middleware.UserID(c)
	outcome, err := h.reputation.RecordVouch(ctx, logicv1.VouchRequest{
		VoucherID:  voucherID,
		ReceiverID: req.ReceiverID,
		Skill:      req.Skill,
		SessionID:  req.SessionID,
	})
	if err != nil {
		writeError(c, ctx, span, err, "Record vouch failed")
		return
	}
	if outcome.Status == logicv1.VouchDenied {
		c.JSON(http.StatusConflict, gin.H{
			"allowed": false,
			"status":  string(outcome.Status),
			"code":    string(outcome.Code),
			"reason":  outcome.Reason,
		})
		return
	}

	h.notify(ctx, domain.Notification{
		Kind:        domain.NotificationVouchReceived,
		RecipientID: req.ReceiverID,
		ActorID:     voucherID,
		SessionID:   req.SessionID,
		Data: map[string]any{
			"skill":  outcome.Vouch.Skill,
			"points": outcome.Points,
		},
	})
	c.JSON(http.StatusCreated, toVouch(outcome))
}

// PreviewVouch reports whether the caller can vouch for receiver_id and for how many points.
// GET /api/v1/vouches/check?receiver_id=...
func (h *Handler) PreviewVouch(c *gin.Context) {
	ctx, span := startRequestSpan(c)
	defer span.End()

	preview, err := h.reputation.PreviewVouch(ctx, middleware.UserID(c), c.Query("receiver_id"))
	if err != nil {
		writeError(c, ctx, span, err, "Vouch preview failed")
		return
	}
	c.JSON(http.StatusOK, VouchPreviewResponse{
		CanVouch:    preview.CanVouch,
		NextPoints:  preview.NextPoints,
		VouchNumber: preview.SequenceNumber,
		Remaining:   preview.Remaining,
		Code:        string(preview.Code),
		Reason:      preview.Reason,
	})
}

// GetScore returns a user's aggregate reputation.
// GET /api/v1/users/:id/score
func (h *Handler) GetScore(c *gin.Context) {
	ctx, span := startRequestSpan(c)
	defer span.End()

	score, err := h.reputation.Score(ctx, c.Param("id"))
	if err != nil {
		writeError(c, ctx, span, err, "Get score failed")
		return
	}
	resp := ScoreResponse{UserID: score.UserID, TotalScore: score.TotalScore}
	if !score.UpdatedAt.IsZero() {
		resp.UpdatedAt = &score.UpdatedAt
	}
	c.JSON(http.StatusOK, resp)
}

// GetHistory lists the vouches a user received, newest first.
// GET /api/v1/users/:id/vouches
func (h *Handler) GetHistory(c *gin.Context) {
	ctx, span := startRequestSpan(c)
	defer span.End()

	vouches, err := h.reputation.History(ctx, c.Param("id"))
	if err != nil {
		writeError(c, ctx, span, err, "Get vouch history failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"vouches": toVouchRecords(vouches)})
}

// GetSkills returns a user's points per skill.
// GET /api/v1/users/:id/skills
func (h *Handler) GetSkills(c *gin.Context) {
	ctx, span := startRequestSpan(c)
	defer span.End()

	skills, err := h.reputation.SkillBreakdown(ctx, c.Param("id"))
	if err != nil {
		writeError(c, ctx, span, err, "Get skill breakdown failed")
		return
	}
	resp := make([]SkillPointsResponse, 0, len(skills))
	for _, s := range skills {
		resp = append(resp, SkillPointsResponse{Skill: s.Skill, Points: s.Points})
	}
	c.JSON(http.StatusOK, gin.H{"skills": resp})
}

// GetTopVouchers ranks who vouched for a user the most.
// GET /api/v1/users/:id/top-vouchers?limit=5
func (h *Handler) GetTopVouchers(c *gin.Context) {
	ctx, span := startRequestSpan(c)
	defer span.End()

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be an integer"})
			return
		}
		limit = n
	}

	top, err := h.reputation.TopVouchers(ctx, c.Param("id"), limit)
	if err != nil {
		writeError(c, ctx, span, err, "Get top vouchers failed")
		return
	}
	resp := make([]VoucherTotalResponse, 0, len(top))
	for _, t := range top {
		resp = append(resp, VoucherTotalResponse{VoucherID: t.VoucherID, TotalPoints: t.TotalPoints, Vouches: t.Vouches})
	}
	c.JSON(http.StatusOK, gin.H{"top_vouchers": resp})
}
