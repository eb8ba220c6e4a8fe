package model

import (
	"time"
)

// QueueEntry is the persisted form of a waiting contender. Promotion order
// is (priority ASC, queued_at ASC); the composite index below serves both
// the head lookup and position counting.
type QueueEntry struct {
	ID                  uint64    `gorm:"primaryKey;autoIncrement"`
	QueueID             string    `gorm:"uniqueIndex;not null;size:64"`
	LockID              string    `gorm:"size:64"` // empty until promoted
	ResourceID          string    `gorm:"not null;index:idx_queue_entries_promotion,priority:1;size:255"`
	Priority            int       `gorm:"not null;index:idx_queue_entries_promotion,priority:2"`
	OperationType       string    `gorm:"not null;size:20"`
	OperationPayload    []byte    `gorm:"type:jsonb"`
	IdempotencyKey      string    `gorm:"not null;index;size:64"`
	Status              string    `gorm:"not null;index;size:20"`
	OwnerID             string    `gorm:"not null;index;size:255"`
	OwnerType           string    `gorm:"not null;size:20"`
	QueuedAt            time.Time `gorm:"not null;index:idx_queue_entries_promotion,priority:3"`
	ProcessingStartedAt *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// TableName specifies the table name for QueueEntry
func (QueueEntry) TableName() string {
	return "resource_queue_entries"
}
