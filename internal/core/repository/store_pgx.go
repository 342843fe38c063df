package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quanpsy/vibex-gravity/internal/core/domain"
)

// SQLSTATE codes that mean "another transaction won, try again".
const (
	pgUniqueViolation      = "23505"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
)

const pgForeignKeyViolation = "23503"

// DBTX is the subset of pgx shared by pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PgxStore implements domain.Store using pgxpool.
type PgxStore struct {
	pool *pgxpool.Pool
}

// NewStore creates a new PgxStore.
func NewStore(pool *pgxpool.Pool) *PgxStore {
	return &PgxStore{pool: pool}
}

// WithinTx runs fn inside a SERIALIZABLE transaction.
func (s *PgxStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx domain.Tx) error) error {
	pgTx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return fmt.Errorf("begin tx: %w", mapPgError(err))
	}
	// Rollback after a successful Commit is a no-op.
	defer pgTx.Rollback(context.WithoutCancel(ctx))

	repos := domain.Tx{
		Sessions: NewSessionRepository(pgTx),
		Vouches:  NewVouchRepository(pgTx),
	}
	if err := fn(ctx, repos); err != nil {
		return mapPgError(err)
	}
	if err := pgTx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", mapPgError(err))
	}
	return nil
}

// Ping checks that the pool can reach the database.
func (s *PgxStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close closes every pooled connection.
func (s *PgxStore) Close() {
	s.pool.Close()
}

// mapPgError translates retryable PostgreSQL failures into domain.ErrConflict,
// missing rows into domain.ErrNotFound and foreign key violations into
// domain.ErrInvalidReference. Other errors pass through.
func mapPgError(err error) error {
	if err == nil || errors.Is(err, domain.ErrConflict) || errors.Is(err, domain.ErrNotFound) ||
		errors.Is(err, domain.ErrInvalidReference) {
		return err
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation, pgSerializationFailure, pgDeadlockDetected:
			return fmt.Errorf("%w: %w", domain.ErrConflict, err)
		case pgForeignKeyViolation:
			return fmt.Errorf("%w: %w", domain.ErrInvalidReference, err)
		}
	}
	return err
}

var _ domain.Store = (*PgxStore)(nil)
