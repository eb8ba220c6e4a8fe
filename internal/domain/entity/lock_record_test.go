package entity

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestOwnerTypeIsValid(t *testing.T) {
	assert.True(t, OwnerTypeUser.IsValid())
	assert.True(t, OwnerTypeSystem.IsValid())
	assert.True(t, OwnerTypeWorkflow.IsValid())
	assert.False(t, OwnerType("robot").IsValid())
	assert.False(t, OwnerType("").IsValid())
}

func TestLockStatusIsTerminal(t *testing.T) {
	assert.False(t, LockStatusActive.IsTerminal())
	assert.True(t, LockStatusReleased.IsTerminal())
	assert.True(t, LockStatusExpired.IsTerminal())
	assert.True(t, LockStatusFailed.IsTerminal())
}

func TestLockRecordIsActive(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	record := LockRecord{Status: LockStatusActive, ExpiresAt: now.Add(30 * time.Second)}
	assert.True(t, record.IsActive(now))

	// The deadline itself is already inactive.
	record.ExpiresAt = now
	assert.False(t, record.IsActive(now))

	record.ExpiresAt = now.Add(-time.Second)
	assert.False(t, record.IsActive(now))

	// Terminal statuses are inactive regardless of the deadline.
	record = LockRecord{Status: LockStatusReleased, ExpiresAt: now.Add(time.Hour)}
	assert.False(t, record.IsActive(now))
}

func TestLockRecordHasStoredResult(t *testing.T) {
	withResult := LockRecord{Status: LockStatusReleased, Result: json.RawMessage(`{"ok":true}`)}
	assert.True(t, withResult.HasStoredResult())

	emptyResult := LockRecord{Status: LockStatusReleased}
	assert.False(t, emptyResult.HasStoredResult())

	// A failed attempt never replays, even if a partial result was stored.
	failed := LockRecord{Status: LockStatusFailed, Result: json.RawMessage(`{"ok":false}`)}
	assert.False(t, failed.HasStoredResult())

	active := LockRecord{Status: LockStatusActive, Result: json.RawMessage(`{"ok":true}`)}
	assert.False(t, active.HasStoredResult())
}

func TestLockRecordSummary(t *testing.T) {
	acquired := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	record := LockRecord{
		LockID:         "lock-1",
		ResourceID:     "order:BTCUSDT",
		IdempotencyKey: "key-1",
		OwnerID:        "user-1",
		OwnerType:      OwnerTypeUser,
		Status:         LockStatusActive,
		AcquiredAt:     acquired,
		ExpiresAt:      acquired.Add(30 * time.Second),
		OperationType:  OperationTypeTrade,
		ErrorMessage:   "should not leak",
	}

	summary := record.Summary()
	assert.Equal(t, "lock-1", summary.LockID)
	assert.Equal(t, "order:BTCUSDT", summary.ResourceID)
	assert.Equal(t, "user-1", summary.OwnerID)
	assert.Equal(t, OwnerTypeUser, summary.OwnerType)
	assert.Equal(t, OperationTypeTrade, summary.OperationType)
	assert.Equal(t, record.AcquiredAt, summary.AcquiredAt)
	assert.Equal(t, record.ExpiresAt, summary.ExpiresAt)
}

func TestLockResultQueued(t *testing.T) {
	assert.True(t, (&LockResult{QueueID: "q-1", QueuePosition: 2}).Queued())
	assert.False(t, (&LockResult{Success: true, LockID: "lock-1"}).Queued())
	assert.False(t, (&LockResult{IsRetry: true, LockID: "lock-1"}).Queued())
}
