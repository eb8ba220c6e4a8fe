package persistence

import (
	"context"
)

// UnitOfWork coordinates atomic read-modify-write sequences against the
// lock store. The acquire path depends on it: the idempotency lookup,
// the resource conflict check and the insert must commit or roll back
// as one unit.
type UnitOfWork interface {
	// Begin starts a new transaction and returns a transactional context
	Begin(ctx context.Context) (context.Context, error)

	// Commit commits the transaction in the given context
	Commit(ctx context.Context) error

	// Rollback rolls back the transaction in the given context
	Rollback(ctx context.Context) error

	// GetLockRepository returns a lock repository bound to the transaction
	// in ctx, or to the base connection when ctx carries none
	GetLockRepository(ctx context.Context) LockRepository

	// GetQueueRepository returns a queue repository bound to the transaction
	// in ctx, or to the base connection when ctx carries none
	GetQueueRepository(ctx context.Context) QueueRepository
}
