package v1

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	pkgzerolog "github.com/duynhne/pkg/logger/zerolog"

	"github.com/quanpsy/vibex-gravity/internal/core/domain"
)

// maxTxAttempts bounds how often a unit of work that lost a write race is replayed.
const maxTxAttempts = 3

func newTxBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 5 * time.Millisecond
	b.MaxInterval = 50 * time.Millisecond
	return b
}

// runInTx runs fn in one gateway transaction, replaying the whole unit of
// work when the gateway reports domain.ErrConflict. fn must reset any state
// it captures, since a replay starts from a fresh read. Any other error from
// fn is returned unchanged.
func runInTx(ctx context.Context, store domain.Store, op string, fn func(ctx context.Context, tx domain.Tx) error) error {
	logger := pkgzerolog.FromContext(ctx)

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := store.WithinTx(ctx, fn)
		switch {
		case err == nil:
			return struct{}{}, nil
		case errors.Is(err, domain.ErrConflict):
			return struct{}{}, err
		default:
			return struct{}{}, backoff.Permanent(err)
		}
	},
		backoff.WithBackOff(newTxBackOff()),
		backoff.WithMaxTries(maxTxAttempts),
		backoff.WithNotify(func(err error, wait time.Duration) {
			txRetries.WithLabelValues(op).Inc()
			logger.Debug().Err(err).Str("operation", op).Dur("wait", wait).Msg("Retrying conflicting transaction")
		}),
	)
	return err
}

// isLogicError reports whether err already carries this package's vocabulary.
func isLogicError(err error) bool {
	return errors.Is(err, ErrInvalidArgument) ||
		errors.Is(err, ErrSessionNotFound) ||
		errors.Is(err, ErrSessionClosed) ||
		errors.Is(err, ErrAlreadyMember) ||
		errors.Is(err, ErrNotMember) ||
		errors.Is(err, ErrNotSessionOwner)
}

// storageFailure wraps a gateway error so callers can match ErrStorageFailure
// while the cause stays inspectable.
func storageFailure(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStorageFailure, err)
}

// classify passes logic errors through, reports writes naming a missing row
// as invalid arguments and turns everything else into a storage failure.
func classify(op string, err error) error {
	if err == nil || isLogicError(err) {
		return err
	}
	if errors.Is(err, domain.ErrInvalidReference) {
		return fmt.Errorf("%s: %w: %w", op, ErrInvalidArgument, err)
	}
	return storageFailure(op, err)
}
