package repository

import (
	"context"

	"github.com/quanpsy/vibex-gravity/internal/core/domain"
)

// PgxVouchRepository implements domain.VouchRepository on top of a pgx
// connection or transaction.
type PgxVouchRepository struct {
	db DBTX
}

// NewVouchRepository creates a new PgxVouchRepository.
func NewVouchRepository(db DBTX) *PgxVouchRepository {
	return &PgxVouchRepository{db: db}
}

// CountVouches returns how many vouches the voucher has given the receiver.
func (r *PgxVouchRepository) CountVouches(ctx context.Context, voucherID, receiverID string) (int, error) {
	query := `SELECT COUNT(*) FROM vouches WHERE voucher_id = $1 AND receiver_id = $2`

	var count int
	if err := r.db.QueryRow(ctx, query, voucherID, receiverID).Scan(&count); err != nil {
		return 0, mapPgError(err)
	}
	return count, nil
}

// InsertVouch appends a vouch record. The (voucher_id, receiver_id,
// vouch_number) unique constraint turns a lost race into domain.ErrConflict.
func (r *PgxVouchRepository) InsertVouch(ctx context.Context, v domain.VouchRecord) error {
	query := `
		INSERT INTO vouches (id, session_id, voucher_id, receiver_id, skill, points, vouch_number, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.db.Exec(ctx, query,
		v.ID, nullableString(v.SessionID), v.VoucherID, v.ReceiverID, v.Skill, v.Points, v.SequenceNumber, v.CreatedAt,
	)
	return mapPgError(err)
}

// SumReceivedPoints returns the total points the user has received.
func (r *PgxVouchRepository) SumReceivedPoints(ctx context.Context, receiverID string) (int, error) {
	query := `SELECT COALESCE(SUM(points), 0) FROM vouches WHERE receiver_id = $1`

	var total int
	if err := r.db.QueryRow(ctx, query, receiverID).Scan(&total); err != nil {
		return 0, mapPgError(err)
	}
	return total, nil
}

// SetScore upserts the user's aggregate score.
func (r *PgxVouchRepository) SetScore(ctx context.Context, userID string, totalScore int) error {
	query := `
		INSERT INTO reputation_scores (user_id, total_score, updated_at)
		VALUES ($1, $2, CURRENT_TIMESTAMP)
		ON CONFLICT (user_id) DO UPDATE
		SET total_score = EXCLUDED.total_score, updated_at = EXCLUDED.updated_at
	`
	_, err := r.db.Exec(ctx, query, userID, totalScore)
	return mapPgError(err)
}

// GetScore returns the stored aggregate score.
func (r *PgxVouchRepository) GetScore(ctx context.Context, userID string) (*domain.ReputationScore, error) {
	query := `SELECT user_id, total_score, updated_at FROM reputation_scores WHERE user_id = $1`

	var score domain.ReputationScore
	if err := r.db.QueryRow(ctx, query, userID).Scan(&score.UserID, &score.TotalScore, &score.UpdatedAt); err != nil {
		return nil, mapPgError(err)
	}
	return &score, nil
}

// ListReceivedVouches returns every vouch the user received, newest first.
func (r *PgxVouchRepository) ListReceivedVouches(ctx context.Context, receiverID string) ([]domain.VouchRecord, error) {
	query := `
		SELECT id, COALESCE(session_id, ''), voucher_id, receiver_id, skill, points, vouch_number, created_at
		FROM vouches
		WHERE receiver_id = $1
		ORDER BY created_at DESC, vouch_number DESC, id DESC
	`

	rows, err := r.db.Query(ctx, query, receiverID)
	if err != nil {
		return nil, mapPgError(err)
	}
	defer rows.Close()

	var vouches []domain.VouchRecord
	for rows.Next() {
		var v domain.VouchRecord
		if err := rows.Scan(&v.ID, &v.SessionID, &v.VoucherID, &v.ReceiverID, &v.Skill, &v.Points, &v.SequenceNumber, &v.CreatedAt); err != nil {
			return nil, mapPgError(err)
		}
		vouches = append(vouches, v)
	}
	if err := rows.Err(); err != nil {
		return nil, mapPgError(err)
	}
	return vouches, nil
}

var _ domain.VouchRepository = (*PgxVouchRepository)(nil)
