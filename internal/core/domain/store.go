package domain

import "context"

// Tx bundles the repositories bound to one open transaction.
type Tx struct {
	Sessions SessionRepository
	Vouches  VouchRepository
}

// Store is the persistence gateway consumed by the Logic layer.
type Store interface {
	// WithinTx runs fn inside a single serializable transaction. The
	// transaction commits only when fn returns nil; any error, panic or
	// context cancellation rolls it back.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	// Ping checks connectivity for readiness probes.
	Ping(ctx context.Context) error

	// Close releases the underlying connections.
	Close()
}
