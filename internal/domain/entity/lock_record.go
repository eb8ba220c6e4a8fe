package entity

import (
	"encoding/json"
	"time"
)

// OwnerType categorizes the identity that requested a lock
type OwnerType string

const (
	OwnerTypeUser     OwnerType = "user"
	OwnerTypeSystem   OwnerType = "system"
	OwnerTypeWorkflow OwnerType = "workflow"
)

// IsValid reports whether the owner type is one of the known values
func (t OwnerType) IsValid() bool {
	switch t {
	case OwnerTypeUser, OwnerTypeSystem, OwnerTypeWorkflow:
		return true
	}
	return false
}

// LockStatus is the lifecycle state of a lock record
type LockStatus string

const (
	LockStatusActive   LockStatus = "active"
	LockStatusReleased LockStatus = "released"
	LockStatusExpired  LockStatus = "expired"
	LockStatusFailed   LockStatus = "failed"
)

// IsTerminal reports whether no further transition can occur except deletion
func (s LockStatus) IsTerminal() bool {
	return s == LockStatusReleased || s == LockStatusExpired || s == LockStatusFailed
}

// LockRecord represents one attempt to hold exclusive access to a resource.
// At most one record may be active and unexpired per resource, and at most
// one record may be active per idempotency key system-wide.
type LockRecord struct {
	LockID           string
	ResourceID       string
	IdempotencyKey   string
	OwnerID          string
	OwnerType        OwnerType
	Status           LockStatus
	AcquiredAt       time.Time
	ExpiresAt        time.Time
	ReleasedAt       *time.Time
	OperationType    OperationType
	OperationPayload json.RawMessage
	Result           json.RawMessage
	ErrorMessage     string
	MaxRetries       int
	TimeoutMs        int64
}

// IsActive reports whether the lock currently grants exclusive access.
// A timed-out lock is inactive the instant its deadline passes, whether or
// not the reaper has transitioned its status yet.
func (r *LockRecord) IsActive(now time.Time) bool {
	return r.Status == LockStatusActive && r.ExpiresAt.After(now)
}

// HasStoredResult reports whether the record completed with a replayable result
func (r *LockRecord) HasStoredResult() bool {
	return r.Status == LockStatusReleased && len(r.Result) > 0
}

// Summary reduces the record to the fields exposed by status queries
func (r *LockRecord) Summary() LockSummary {
	return LockSummary{
		LockID:        r.LockID,
		ResourceID:    r.ResourceID,
		OwnerID:       r.OwnerID,
		OwnerType:     r.OwnerType,
		OperationType: r.OperationType,
		AcquiredAt:    r.AcquiredAt,
		ExpiresAt:     r.ExpiresAt,
	}
}
