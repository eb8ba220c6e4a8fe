package dto

import (
	"encoding/json"
	"time"
)

// AcquireLockRequest represents the API request for acquiring a resource lock
type AcquireLockRequest struct {
	ResourceID     string          `json:"resourceId" binding:"required"`
	OwnerID        string          `json:"ownerId" binding:"required"`
	OwnerType      string          `json:"ownerType" binding:"required,oneof=user system workflow"`
	Payload        json.RawMessage `json:"payload" binding:"required"`
	IdempotencyKey string          `json:"idempotencyKey,omitempty"`
	TimeoutMs      int64           `json:"timeoutMs,omitempty"`
	MaxRetries     int             `json:"maxRetries,omitempty"`
	Priority       int             `json:"priority,omitempty"`
}

// AcquireLockResponse represents the outcome of an acquire attempt
type AcquireLockResponse struct {
	Success        bool            `json:"success"`
	LockID         string          `json:"lockId,omitempty"`
	IsRetry        bool            `json:"isRetry,omitempty"`
	ExistingResult json.RawMessage `json:"existingResult,omitempty"`
	QueueID        string          `json:"queueId,omitempty"`
	QueuePosition  int             `json:"queuePosition,omitempty"`
}

// ReleaseLockRequest represents the API request for releasing a lock
type ReleaseLockRequest struct {
	Result       json.RawMessage `json:"result,omitempty"`
	ErrorMessage string          `json:"errorMessage,omitempty"`
}

// ReleaseLockResponse confirms a release
type ReleaseLockResponse struct {
	LockID   string `json:"lockId"`
	Released bool   `json:"released"`
}

// ReleaseByResourceRequest names the owner whose lock should be released
type ReleaseByResourceRequest struct {
	OwnerID string `json:"ownerId" binding:"required"`
}

// ReleaseByResourceResponse reports whether an active lock was found and released
type ReleaseByResourceResponse struct {
	ResourceID string `json:"resourceId"`
	OwnerID    string `json:"ownerId"`
	Released   bool   `json:"released"`
}

// ForceReleaseResponse reports how many locks an admin force-release freed
type ForceReleaseResponse struct {
	OwnerID  string `json:"ownerId"`
	Released int    `json:"released"`
}

// QueuePositionResponse reports the 1-based position of a pending queue entry
type QueuePositionResponse struct {
	IdempotencyKey string `json:"idempotencyKey"`
	Position       int    `json:"position"`
}

// LockSummaryResponse is the read-only view of one active lock
type LockSummaryResponse struct {
	LockID        string    `json:"lockId"`
	ResourceID    string    `json:"resourceId"`
	OwnerID       string    `json:"ownerId"`
	OwnerType     string    `json:"ownerType"`
	OperationType string    `json:"operationType"`
	AcquiredAt    time.Time `json:"acquiredAt"`
	ExpiresAt     time.Time `json:"expiresAt"`
}

// ResourceStatusResponse aggregates the lock and queue state of one resource
type ResourceStatusResponse struct {
	ResourceID  string                `json:"resourceId"`
	Locked      bool                  `json:"locked"`
	LockCount   int                   `json:"lockCount"`
	QueueLength int                   `json:"queueLength"`
	ActiveLocks []LockSummaryResponse `json:"activeLocks"`
}
