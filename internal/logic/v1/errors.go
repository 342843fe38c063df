// Package v1 provides the participation and reputation business logic for API version 1.
//
// Error Handling:
// Policy denials (a full query slot, an exclusive session already held, a
// sixth vouch) are NOT errors: they come back as ParticipationDecision or
// VouchOutcome values with a Code and a human-readable Reason.
// The sentinel errors below cover everything else and are wrapped with
// context using fmt.Errorf("%w") when returned from business logic methods.
//
// Example Usage:
//
//	if _, ok := domain.ParseSessionType(raw); !ok {
//	    return ParticipationDecision{}, fmt.Errorf("session type %q: %w", raw, ErrInvalidArgument)
//	}
//
//	if err := s.store.WithinTx(ctx, fn); err != nil {
//	    return fmt.Errorf("record vouch: %w", ErrStorageFailure)
//	}
//
// Error Checking (in handlers):
//
//	switch {
//	case errors.Is(err, logicv1.ErrInvalidArgument):
//	    c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
//	case errors.Is(err, logicv1.ErrStorageFailure):
//	    c.Header("Retry-After", "1")
//	    c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Temporarily unavailable"})
//	default:
//	    c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
//	}
package v1

import "errors"

// Sentinel errors for participation and reputation operations.
// These errors should be wrapped with context using fmt.Errorf("%w") when returned.
var (
	// ErrInvalidArgument indicates the caller passed a malformed request:
	// unknown session type, a flow on a vibe session, a missing flow on a
	// help/cookie/query session, an empty skill or user id.
	// HTTP Status: 400 Bad Request
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrStorageFailure indicates the persistence gateway could not complete
	// the unit of work (unreachable, timed out, cancelled or still
	// conflicting after every retry). Nothing was written. Safe to retry.
	// HTTP Status: 503 Service Unavailable
	ErrStorageFailure = errors.New("storage failure")

	// ErrSessionNotFound indicates the session does not exist.
	// HTTP Status: 404 Not Found
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionClosed indicates the session has already been closed.
	// HTTP Status: 409 Conflict
	ErrSessionClosed = errors.New("session closed")

	// ErrAlreadyMember indicates the user already belongs to the session.
	// HTTP Status: 409 Conflict
	ErrAlreadyMember = errors.New("already a member")

	// ErrNotMember indicates the user does not belong to the session.
	// HTTP Status: 404 Not Found
	ErrNotMember = errors.New("not a member")

	// ErrNotSessionOwner indicates the caller is not allowed to manage the session.
	// HTTP Status: 403 Forbidden
	ErrNotSessionOwner = errors.New("not session owner")
)
