package persistence

import (
	"context"
	"encoding/json"
	"time"

	"github.com/amirhossein-jamali/trade-lock-manager/internal/domain/entity"
)

// LockRepository defines the lock-record half of the lock store. All
// implementations must enforce the one-active-lock-per-idempotency-key
// constraint at the storage layer, not just in application code.
type LockRepository interface {
	// Create inserts a new lock record.
	//
	// Possible errors:
	// - ErrDuplicateIdempotencyKey: an active lock already holds the key
	// - ErrDatabaseConnection: the lock store is unreachable
	Create(ctx context.Context, record *entity.LockRecord) error

	// GetByLockID returns the record identified by lockID.
	//
	// Possible errors:
	// - ErrLockNotFound: no record matches
	GetByLockID(ctx context.Context, lockID string) (*entity.LockRecord, error)

	// GetByIdempotencyKey returns the most recent record for the key.
	//
	// Possible errors:
	// - ErrLockNotFound: no record matches
	GetByIdempotencyKey(ctx context.Context, key string) (*entity.LockRecord, error)

	// FindActiveByResource returns all records for the resource that are
	// active and unexpired as of now
	FindActiveByResource(ctx context.Context, resourceID string, now time.Time) ([]*entity.LockRecord, error)

	// FindActiveByOwner returns all active, unexpired records owned by ownerID
	FindActiveByOwner(ctx context.Context, ownerID string, now time.Time) ([]*entity.LockRecord, error)

	// FindActive returns all active, unexpired records system-wide
	FindActive(ctx context.Context, now time.Time) ([]*entity.LockRecord, error)

	// Release transitions an active record to the given terminal status,
	// stamping releasedAt and storing the outcome exactly once.
	//
	// Possible errors:
	// - ErrLockNotFound: no record matches lockID
	// - ErrLockNotActive: the record already reached a terminal state
	Release(ctx context.Context, lockID string, status entity.LockStatus, result json.RawMessage, errorMessage string, releasedAt time.Time) error

	// ExpireStale marks every active record whose deadline has passed as
	// expired, returning the number of records transitioned
	ExpireStale(ctx context.Context, now time.Time) (int64, error)

	// DeleteTerminalBefore purges terminal records acquired before cutoff,
	// returning the number of records removed
	DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
