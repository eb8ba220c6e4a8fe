package entity

import (
	"encoding/json"
	"time"
)

// LockResult is the structured outcome of an acquire attempt. Conflicts,
// replays and queueing are expected outcomes of correct operation, so they
// are modeled here rather than as errors.
type LockResult struct {
	// Success is true only when a new active lock was created
	Success bool

	// LockID identifies the granted lock, or the conflicting active lock
	// when IsRetry is set
	LockID string

	// IsRetry marks a duplicate submission: the same idempotency key is
	// either still in flight or already completed
	IsRetry bool

	// ExistingResult carries the stored outcome of a completed operation
	// for transparent idempotent replay
	ExistingResult json.RawMessage

	// QueueID and QueuePosition are set when the resource was contended
	// and the request was enqueued instead. Position is 1-based and only
	// guaranteed to be non-decreasing under concurrent enqueues.
	QueueID       string
	QueuePosition int
}

// Queued reports whether the request was parked behind a contended resource
func (r *LockResult) Queued() bool {
	return !r.Success && r.QueueID != ""
}

// ExecutionResult is the outcome of running work under a lock through the
// execution wrapper. A replayed result is indistinguishable from a fresh
// success apart from Replayed and a zero duration.
type ExecutionResult struct {
	Success       bool
	LockID        string
	Result        json.RawMessage
	Error         string
	Replayed      bool
	QueuePosition int
	Duration      time.Duration
}

// LockSummary is the read-only view of an active lock exposed by status
// queries
type LockSummary struct {
	LockID        string        `json:"lockId"`
	ResourceID    string        `json:"resourceId"`
	OwnerID       string        `json:"ownerId"`
	OwnerType     OwnerType     `json:"ownerType"`
	OperationType OperationType `json:"operationType"`
	AcquiredAt    time.Time     `json:"acquiredAt"`
	ExpiresAt     time.Time     `json:"expiresAt"`
}

// ResourceLockStatus aggregates the lock and queue state of one resource
type ResourceLockStatus struct {
	ResourceID  string        `json:"resourceId"`
	Locked      bool          `json:"locked"`
	LockCount   int           `json:"lockCount"`
	QueueLength int           `json:"queueLength"`
	ActiveLocks []LockSummary `json:"activeLocks"`
}
