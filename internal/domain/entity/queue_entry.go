package entity

import (
	"encoding/json"
	"time"
)

// QueueStatus is the lifecycle state of a queue entry
type QueueStatus string

const (
	QueueStatusPending    QueueStatus = "pending"
	QueueStatusProcessing QueueStatus = "processing"
	QueueStatusCompleted  QueueStatus = "completed"
	QueueStatusFailed     QueueStatus = "failed"
	QueueStatusCancelled  QueueStatus = "cancelled"
)

// IsTerminal reports whether no further transition can occur except deletion
func (s QueueStatus) IsTerminal() bool {
	return s == QueueStatusCompleted || s == QueueStatusFailed || s == QueueStatusCancelled
}

// QueueEntry represents a contender waiting for a resource held by another
// lock. Promotion order across entries for one resource is a total order:
// ascending priority, then ascending queued time.
type QueueEntry struct {
	QueueID             string
	LockID              string // empty until promoted
	ResourceID          string
	Priority            int // lower is more urgent
	OperationType       OperationType
	OperationPayload    json.RawMessage
	IdempotencyKey      string
	Status              QueueStatus
	OwnerID             string
	OwnerType           OwnerType
	QueuedAt            time.Time
	ProcessingStartedAt *time.Time
}

// OrderedBefore reports whether this entry is promoted ahead of other
func (e *QueueEntry) OrderedBefore(other *QueueEntry) bool {
	if e.Priority != other.Priority {
		return e.Priority < other.Priority
	}
	return e.QueuedAt.Before(other.QueuedAt)
}
