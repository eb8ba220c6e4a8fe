package lock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amirhossein-jamali/trade-lock-manager/internal/domain/entity"
)

// newTestReaper builds a reaper over the harness's store and manager
func newTestReaper(h *testHarness, interval, retention time.Duration) *Reaper {
	return NewReaper(newFakeUnitOfWork(h.store), h.manager, h.clock, noopLogger{}, interval, retention)
}

func TestReaper_RunOnceExpiresStaleLocks(t *testing.T) {
	h := newTestHarness()
	ctx := context.Background()
	reaper := newTestReaper(h, time.Minute, time.Hour)

	req := acquireReq("order:BTCUSDT", "user-1", limitBuy("BTCUSDT", "1", "64000"))
	req.Timeout = 10 * time.Second
	res, err := h.manager.AcquireLock(ctx, req)
	require.NoError(t, err)

	fresh, err := h.manager.AcquireLock(ctx, acquireReq("order:ETHUSDT", "user-2", limitBuy("ETHUSDT", "3", "2600")))
	require.NoError(t, err)

	h.clock.Advance(11 * time.Second)
	require.NoError(t, reaper.RunOnce(ctx))

	expired := h.store.lockByID(res.LockID)
	require.NotNil(t, expired)
	assert.Equal(t, entity.LockStatusExpired, expired.Status)

	// The unexpired lock is untouched.
	kept := h.store.lockByID(fresh.LockID)
	require.NotNil(t, kept)
	assert.Equal(t, entity.LockStatusActive, kept.Status)
}

func TestReaper_RunOnceRetriesPromotions(t *testing.T) {
	h := newTestHarness()
	ctx := context.Background()
	reaper := newTestReaper(h, time.Minute, time.Hour)

	req := acquireReq("order:BTCUSDT", "user-1", limitBuy("BTCUSDT", "1", "64000"))
	req.Timeout = 10 * time.Second
	_, err := h.manager.AcquireLock(ctx, req)
	require.NoError(t, err)

	waiter, err := h.manager.AcquireLock(ctx, acquireReq("order:BTCUSDT", "user-2", limitBuy("BTCUSDT", "2", "64100")))
	require.NoError(t, err)
	require.True(t, waiter.Queued())

	// The holder's process died without releasing. The waiter is stuck until
	// a sweep expires the lock and retries the promotion.
	h.clock.Advance(11 * time.Second)
	require.NoError(t, reaper.RunOnce(ctx))

	entry := h.store.entryByID(waiter.QueueID)
	require.NotNil(t, entry)
	assert.Equal(t, entity.QueueStatusProcessing, entry.Status)
	require.NotEmpty(t, entry.LockID)

	promoted := h.store.lockByID(entry.LockID)
	require.NotNil(t, promoted)
	assert.Equal(t, "user-2", promoted.OwnerID)
	assert.Equal(t, entity.LockStatusActive, promoted.Status)
}

func TestReaper_RunOncePurgesAgedTerminalRecords(t *testing.T) {
	h := newTestHarness()
	ctx := context.Background()
	retention := time.Hour
	reaper := newTestReaper(h, time.Minute, retention)
	now := h.clock.Now()

	h.store.seedLock(&entity.LockRecord{
		LockID:         "lock-old",
		ResourceID:     "order:BTCUSDT",
		IdempotencyKey: "key-old",
		OwnerID:        "user-1",
		OwnerType:      entity.OwnerTypeUser,
		Status:         entity.LockStatusReleased,
		AcquiredAt:     now.Add(-2 * time.Hour),
		ExpiresAt:      now.Add(-2 * time.Hour).Add(30 * time.Second),
	})
	h.store.seedLock(&entity.LockRecord{
		LockID:         "lock-recent",
		ResourceID:     "order:ETHUSDT",
		IdempotencyKey: "key-recent",
		OwnerID:        "user-1",
		OwnerType:      entity.OwnerTypeUser,
		Status:         entity.LockStatusReleased,
		AcquiredAt:     now.Add(-10 * time.Minute),
		ExpiresAt:      now.Add(-10 * time.Minute).Add(30 * time.Second),
	})
	h.store.seedEntry(&entity.QueueEntry{
		QueueID:        "q-old",
		ResourceID:     "order:BTCUSDT",
		IdempotencyKey: "qkey-old",
		Status:         entity.QueueStatusCompleted,
		OwnerID:        "user-1",
		OwnerType:      entity.OwnerTypeUser,
		QueuedAt:       now.Add(-2 * time.Hour),
	})

	require.NoError(t, reaper.RunOnce(ctx))

	assert.Nil(t, h.store.lockByID("lock-old"))
	assert.NotNil(t, h.store.lockByID("lock-recent"))
	assert.Nil(t, h.store.entryByID("q-old"))
}

func TestReaper_RunOnceKeepsActiveRecords(t *testing.T) {
	h := newTestHarness()
	ctx := context.Background()
	reaper := newTestReaper(h, time.Minute, time.Hour)

	res, err := h.manager.AcquireLock(ctx, acquireReq("order:BTCUSDT", "user-1", limitBuy("BTCUSDT", "1", "64000")))
	require.NoError(t, err)

	require.NoError(t, reaper.RunOnce(ctx))

	record := h.store.lockByID(res.LockID)
	require.NotNil(t, record)
	assert.Equal(t, entity.LockStatusActive, record.Status)
}

func TestReaper_StartStop(t *testing.T) {
	h := newTestHarness()
	reaper := newTestReaper(h, 10*time.Millisecond, time.Hour)

	require.NoError(t, reaper.Start())
	assert.Error(t, reaper.Start())

	reaper.Stop()
	// Stopping again is a no-op.
	reaper.Stop()

	// The reaper can be restarted after a stop.
	require.NoError(t, reaper.Start())
	reaper.Stop()
}

func TestService_LifecycleAndKeyDerivation(t *testing.T) {
	store := newMemoryStore()
	clock := newManualClock()
	svc := NewService(newFakeUnitOfWork(store), &seqIDGenerator{}, clock, noopLogger{}, DefaultConfig())

	require.NoError(t, svc.Start())
	assert.Error(t, svc.Start())
	svc.Stop()

	payload := limitBuy("BTCUSDT", "1", "64000")
	key := svc.GenerateIdempotencyKey("order:BTCUSDT", "user-1", payload)
	assert.Equal(t, NewKeyDeriver().DeriveKey("order:BTCUSDT", "user-1", payload), key)
	assert.NotNil(t, svc.Reaper())
}
