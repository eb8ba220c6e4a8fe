package persistence

import (
	"context"
	"time"

	"github.com/amirhossein-jamali/trade-lock-manager/internal/domain/entity"
)

// QueueRepository defines the queue-entry half of the lock store
type QueueRepository interface {
	// Create inserts a new pending queue entry
	Create(ctx context.Context, entry *entity.QueueEntry) error

	// GetByIdempotencyKey returns the most recent entry for the key.
	//
	// Possible errors:
	// - ErrQueueEntryNotFound: no entry matches
	GetByIdempotencyKey(ctx context.Context, key string) (*entity.QueueEntry, error)

	// CountPending returns the number of pending entries for the resource
	CountPending(ctx context.Context, resourceID string) (int64, error)

	// CountPendingAhead returns the number of pending entries for the same
	// resource ordered strictly before the given entry by (priority, queuedAt)
	CountPendingAhead(ctx context.Context, entry *entity.QueueEntry) (int64, error)

	// NextPending returns the single lowest-ordered pending entry for the
	// resource.
	//
	// Possible errors:
	// - ErrQueueEntryNotFound: the queue is empty
	NextPending(ctx context.Context, resourceID string) (*entity.QueueEntry, error)

	// MarkProcessing transitions a pending entry to processing, recording
	// the lock it was promoted into and the promotion time
	MarkProcessing(ctx context.Context, queueID, lockID string, startedAt time.Time) error

	// MarkStatus transitions an entry to the given status
	MarkStatus(ctx context.Context, queueID string, status entity.QueueStatus) error

	// ResourcesWithPending returns the distinct resource ids that currently
	// have pending entries
	ResourcesWithPending(ctx context.Context) ([]string, error)

	// DeleteTerminalBefore purges terminal entries queued before cutoff,
	// returning the number of entries removed
	DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
