package domain

import (
	"context"
	"time"
)

// VouchRecord is one append-only endorsement from a voucher to a receiver.
type VouchRecord struct {
	ID             string
	SessionID      string
	VoucherID      string
	ReceiverID     string
	Skill          string
	Points         int
	SequenceNumber int
	CreatedAt      time.Time
}

// ReputationScore is the materialized sum of points a user has received.
type ReputationScore struct {
	UserID     string
	TotalScore int
	UpdatedAt  time.Time
}

// VouchRepository defines the data-access contract for vouch records and
// the aggregate score projection.
// Implementations live in internal/core/repository (Core layer).
type VouchRepository interface {
	// CountVouches returns how many vouches the voucher has given the receiver.
	CountVouches(ctx context.Context, voucherID, receiverID string) (int, error)

	// InsertVouch appends a vouch record.
	// Returns ErrConflict when the (voucher, receiver, sequence) slot is taken.
	InsertVouch(ctx context.Context, vouch VouchRecord) error

	// SumReceivedPoints returns the sum of points over every vouch the user received.
	SumReceivedPoints(ctx context.Context, receiverID string) (int, error)

	// SetScore upserts the user's aggregate score.
	SetScore(ctx context.Context, userID string, totalScore int) error

	// GetScore returns the stored aggregate score.
	// Returns ErrNotFound when no score has been recorded yet.
	GetScore(ctx context.Context, userID string) (*ReputationScore, error)

	// ListReceivedVouches returns every vouch the user received, newest first.
	ListReceivedVouches(ctx context.Context, receiverID string) ([]VouchRecord, error)
}
