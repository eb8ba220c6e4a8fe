package error

import (
	"errors"
	"fmt"
)

// Error codes for standardized API responses
const (
	// 4xxx - Client errors
	CodeInvalidResourceID   = 4001
	CodeInvalidPayload      = 4002
	CodeInvalidOwner        = 4003
	CodeInvalidOperation    = 4004
	CodeConstraintViolation = 4005
	CodeLockNotFound        = 4040
	CodeQueueEntryNotFound  = 4041
	CodeResourceLocked      = 4230
	CodeDuplicateOperation  = 4231

	// 5xxx - Server errors
	CodeInternalServer = 5000
)

// Base error types
var (
	// ErrResourceIDRequired is returned when an acquire request names no resource
	ErrResourceIDRequired = errors.New("resource id is required")

	// ErrOwnerIDRequired is returned when an acquire request names no owner
	ErrOwnerIDRequired = errors.New("owner id is required")

	// ErrInvalidOwnerType is returned when the owner type is not user, system or workflow
	ErrInvalidOwnerType = errors.New("invalid owner type")

	// ErrInvalidOperationType is returned when the operation type is not a known value
	ErrInvalidOperationType = errors.New("invalid operation type")

	// ErrInvalidPayload is returned when the operation payload fails boundary validation
	ErrInvalidPayload = errors.New("invalid operation payload")

	// ErrLockNotFound is returned when no lock record matches the given id
	ErrLockNotFound = errors.New("lock not found")

	// ErrQueueEntryNotFound is returned when no queue entry matches the lookup
	ErrQueueEntryNotFound = errors.New("queue entry not found")

	// ErrDuplicateIdempotencyKey is returned by the store when inserting a lock
	// would violate the one-active-lock-per-key constraint
	ErrDuplicateIdempotencyKey = errors.New("an active lock already holds this idempotency key")

	// ErrResourceLocked is returned when a resource is held by a different operation
	ErrResourceLocked = errors.New("resource is locked by another operation")

	// ErrLockNotActive is returned when releasing a lock that already reached a terminal state
	ErrLockNotActive = errors.New("lock is not active")

	// ErrDatabaseConnection is returned when the lock store is unreachable
	ErrDatabaseConnection = errors.New("database connection error")

	// ErrConstraintViolation is returned when a database constraint is violated
	ErrConstraintViolation = errors.New("database constraint violation")

	// ErrNotFound is returned when a generic resource is not found
	ErrNotFound = errors.New("resource not found")

	// ErrInternalServer is returned for unexpected server-side errors
	ErrInternalServer = errors.New("internal server error")
)

// ErrorCode returns standardized error codes for known errors
func ErrorCode(err error) int {
	switch {
	case errors.Is(err, ErrResourceIDRequired):
		return CodeInvalidResourceID
	case errors.Is(err, ErrInvalidPayload):
		return CodeInvalidPayload
	case errors.Is(err, ErrOwnerIDRequired), errors.Is(err, ErrInvalidOwnerType):
		return CodeInvalidOwner
	case errors.Is(err, ErrInvalidOperationType):
		return CodeInvalidOperation
	case errors.Is(err, ErrConstraintViolation):
		return CodeConstraintViolation
	case errors.Is(err, ErrLockNotFound), errors.Is(err, ErrLockNotActive):
		return CodeLockNotFound
	case errors.Is(err, ErrQueueEntryNotFound):
		return CodeQueueEntryNotFound
	case errors.Is(err, ErrResourceLocked):
		return CodeResourceLocked
	case errors.Is(err, ErrDuplicateIdempotencyKey):
		return CodeDuplicateOperation
	default:
		return CodeInternalServer
	}
}

// LockError represents a failure while operating on a specific lock
type LockError struct {
	LockID     string
	ResourceID string
	Operation  string
	Err        error
}

// Error implements the error interface for LockError
func (e *LockError) Error() string {
	return fmt.Sprintf("lock %s failed for lock %s (resource: %s): %v",
		e.Operation, e.LockID, e.ResourceID, e.Err)
}

// Unwrap returns the underlying error
func (e *LockError) Unwrap() error {
	return e.Err
}

// LogFields returns a map of fields for structured logging
func (e *LockError) LogFields() map[string]any {
	return map[string]any{
		"error_type":  "lock_error",
		"lock_id":     e.LockID,
		"resource_id": e.ResourceID,
		"operation":   e.Operation,
		"error":       e.Err.Error(),
		"error_code":  ErrorCode(e.Err),
	}
}

// NewLockError creates a detailed lock error
func NewLockError(lockID, resourceID, operation string, err error) error {
	return &LockError{
		LockID:     lockID,
		ResourceID: resourceID,
		Operation:  operation,
		Err:        err,
	}
}

// QueueError represents a failure while operating on a queue entry
type QueueError struct {
	QueueID    string
	ResourceID string
	Operation  string
	Err        error
}

// Error implements the error interface for QueueError
func (e *QueueError) Error() string {
	return fmt.Sprintf("queue %s failed for entry %s (resource: %s): %v",
		e.Operation, e.QueueID, e.ResourceID, e.Err)
}

// Unwrap returns the underlying error
func (e *QueueError) Unwrap() error {
	return e.Err
}

// LogFields returns a map of fields for structured logging
func (e *QueueError) LogFields() map[string]any {
	return map[string]any{
		"error_type":  "queue_error",
		"queue_id":    e.QueueID,
		"resource_id": e.ResourceID,
		"operation":   e.Operation,
		"error":       e.Err.Error(),
		"error_code":  ErrorCode(e.Err),
	}
}

// NewQueueError creates a detailed queue error
func NewQueueError(queueID, resourceID, operation string, err error) error {
	return &QueueError{
		QueueID:    queueID,
		ResourceID: resourceID,
		Operation:  operation,
		Err:        err,
	}
}

// IsLockNotFoundError checks if the error is a lock not found error
func IsLockNotFoundError(err error) bool {
	return errors.Is(err, ErrLockNotFound)
}

// IsQueueEntryNotFoundError checks if the error is a queue entry not found error
func IsQueueEntryNotFoundError(err error) bool {
	return errors.Is(err, ErrQueueEntryNotFound)
}

// IsDuplicateIdempotencyKeyError checks if the error is a duplicate key violation
func IsDuplicateIdempotencyKeyError(err error) bool {
	return errors.Is(err, ErrDuplicateIdempotencyKey)
}

// IsResourceLockedError checks if the error is related to a locked resource
func IsResourceLockedError(err error) bool {
	return errors.Is(err, ErrResourceLocked)
}

// IsNotFoundError checks if the error is any "not found" type of error
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrLockNotFound) ||
		errors.Is(err, ErrQueueEntryNotFound)
}

// IsValidationError checks if the error is a boundary validation failure
func IsValidationError(err error) bool {
	return errors.Is(err, ErrResourceIDRequired) ||
		errors.Is(err, ErrOwnerIDRequired) ||
		errors.Is(err, ErrInvalidOwnerType) ||
		errors.Is(err, ErrInvalidOperationType) ||
		errors.Is(err, ErrInvalidPayload)
}
