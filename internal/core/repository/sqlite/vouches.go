package sqlite

import (
	"context"
	"time"

	"github.com/quanpsy/vibex-gravity/internal/core/domain"
)

type vouchRepository struct {
	db dbtx
}

func (r *vouchRepository) CountVouches(ctx context.Context, voucherID, receiverID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM vouches WHERE voucher_id = ? AND receiver_id = ?`,
		voucherID, receiverID,
	).Scan(&count)
	if err != nil {
		return 0, mapSQLiteError(err)
	}
	return count, nil
}

func (r *vouchRepository) InsertVouch(ctx context.Context, v domain.VouchRecord) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO vouches (id, session_id, voucher_id, receiver_id, skill, points, vouch_number, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		v.ID, nullableString(v.SessionID), v.VoucherID, v.ReceiverID, v.Skill, v.Points, v.SequenceNumber, toMillis(v.CreatedAt),
	)
	return mapSQLiteError(err)
}

func (r *vouchRepository) SumReceivedPoints(ctx context.Context, receiverID string) (int, error) {
	var total int
	err := r.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(points), 0) FROM vouches WHERE receiver_id = ?`,
		receiverID,
	).Scan(&total)
	if err != nil {
		return 0, mapSQLiteError(err)
	}
	return total, nil
}

func (r *vouchRepository) SetScore(ctx context.Context, userID string, totalScore int) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO reputation_scores (user_id, total_score, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE
		SET total_score = excluded.total_score, updated_at = excluded.updated_at`,
		userID, totalScore, toMillis(time.Now()),
	)
	return mapSQLiteError(err)
}

func (r *vouchRepository) GetScore(ctx context.Context, userID string) (*domain.ReputationScore, error) {
	var score domain.ReputationScore
	var updatedAt int64
	err := r.db.QueryRowContext(ctx,
		`SELECT user_id, total_score, updated_at FROM reputation_scores WHERE user_id = ?`,
		userID,
	).Scan(&score.UserID, &score.TotalScore, &updatedAt)
	if err != nil {
		return nil, mapSQLiteError(err)
	}
	score.UpdatedAt = fromMillis(updatedAt)
	return &score, nil
}

func (r *vouchRepository) ListReceivedVouches(ctx context.Context, receiverID string) ([]domain.VouchRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, COALESCE(session_id, ''), voucher_id, receiver_id, skill, points, vouch_number, created_at
		FROM vouches
		WHERE receiver_id = ?
		ORDER BY created_at DESC, rowid DESC`,
		receiverID,
	)
	if err != nil {
		return nil, mapSQLiteError(err)
	}
	defer rows.Close()

	var vouches []domain.VouchRecord
	for rows.Next() {
		var v domain.VouchRecord
		var createdAt int64
		if err := rows.Scan(&v.ID, &v.SessionID, &v.VoucherID, &v.ReceiverID, &v.Skill, &v.Points, &v.SequenceNumber, &createdAt); err != nil {
			return nil, mapSQLiteError(err)
		}
		v.CreatedAt = fromMillis(createdAt)
		vouches = append(vouches, v)
	}
	if err := rows.Err(); err != nil {
		return nil, mapSQLiteError(err)
	}
	return vouches, nil
}

var _ domain.VouchRepository = (*vouchRepository)(nil)
