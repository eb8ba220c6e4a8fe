package model

import (
	"time"
)

// ResourceLock is the persisted form of a lock record. A partial unique
// index on idempotency_key (status = 'active') enforces the one-active-lock
// per key constraint at the storage layer; see the migration package.
type ResourceLock struct {
	ID               uint64    `gorm:"primaryKey;autoIncrement"`
	LockID           string    `gorm:"uniqueIndex;not null;size:64"`
	ResourceID       string    `gorm:"not null;index;size:255"`
	IdempotencyKey   string    `gorm:"not null;index;size:64"`
	OwnerID          string    `gorm:"not null;index;size:255"`
	OwnerType        string    `gorm:"not null;size:20"`
	Status           string    `gorm:"not null;index;size:20"`
	AcquiredAt       time.Time `gorm:"not null"`
	ExpiresAt        time.Time `gorm:"not null;index"`
	ReleasedAt       *time.Time
	OperationType    string `gorm:"not null;size:20"`
	OperationPayload []byte `gorm:"type:jsonb"`
	Result           []byte `gorm:"type:jsonb"`
	ErrorMessage     string `gorm:"type:text"`
	MaxRetries       int    `gorm:"not null"`
	TimeoutMs        int64  `gorm:"not null"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// TableName specifies the table name for ResourceLock
func (ResourceLock) TableName() string {
	return "resource_locks"
}
