package lock

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amirhossein-jamali/trade-lock-manager/internal/domain/entity"
	errs "github.com/amirhossein-jamali/trade-lock-manager/internal/domain/error"
)

func TestAcquireLock_GrantsFreshLock(t *testing.T) {
	h := newTestHarness()
	ctx := context.Background()

	res, err := h.manager.AcquireLock(ctx, acquireReq("order:BTCUSDT", "user-1", limitBuy("BTCUSDT", "0.5", "64000")))

	require.NoError(t, err)
	require.True(t, res.Success)
	require.NotEmpty(t, res.LockID)
	assert.False(t, res.IsRetry)
	assert.Nil(t, res.ExistingResult)
	assert.Empty(t, res.QueueID)

	record := h.store.lockByID(res.LockID)
	require.NotNil(t, record)
	assert.Equal(t, "order:BTCUSDT", record.ResourceID)
	assert.Equal(t, "user-1", record.OwnerID)
	assert.Equal(t, entity.OwnerTypeUser, record.OwnerType)
	assert.Equal(t, entity.LockStatusActive, record.Status)
	assert.Equal(t, entity.OperationTypeTrade, record.OperationType)
	assert.Equal(t, h.clock.Now(), record.AcquiredAt)
	assert.Equal(t, h.clock.Now().Add(DefaultLockTimeout), record.ExpiresAt)
	assert.Equal(t, DefaultLockTimeout.Milliseconds(), record.TimeoutMs)
	assert.Equal(t, DefaultMaxRetries, record.MaxRetries)
	assert.NotEmpty(t, record.IdempotencyKey)
}

func TestAcquireLock_Validation(t *testing.T) {
	h := newTestHarness()
	ctx := context.Background()
	payload := limitBuy("BTCUSDT", "1", "64000")

	testCases := []struct {
		name    string
		req     AcquireRequest
		wantErr error
	}{
		{
			name:    "missing resource id",
			req:     AcquireRequest{OwnerID: "user-1", OwnerType: entity.OwnerTypeUser, Payload: payload},
			wantErr: errs.ErrResourceIDRequired,
		},
		{
			name:    "missing owner id",
			req:     AcquireRequest{ResourceID: "order:BTCUSDT", OwnerType: entity.OwnerTypeUser, Payload: payload},
			wantErr: errs.ErrOwnerIDRequired,
		},
		{
			name:    "unknown owner type",
			req:     AcquireRequest{ResourceID: "order:BTCUSDT", OwnerID: "user-1", OwnerType: "robot", Payload: payload},
			wantErr: errs.ErrInvalidOwnerType,
		},
		{
			name:    "nil payload",
			req:     AcquireRequest{ResourceID: "order:BTCUSDT", OwnerID: "user-1", OwnerType: entity.OwnerTypeUser},
			wantErr: errs.ErrInvalidPayload,
		},
		{
			name: "limit order without price",
			req: acquireReq("order:BTCUSDT", "user-1", &entity.TradePayload{
				Symbol: "BTCUSDT", Side: "buy", OrderType: "limit", Quantity: "1",
			}),
			wantErr: errs.ErrInvalidPayload,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := h.manager.AcquireLock(ctx, tc.req)
			assert.Nil(t, res)
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}

	assert.Equal(t, 0, h.store.lockCount())
}

func TestAcquireLock_DuplicateInFlight(t *testing.T) {
	h := newTestHarness()
	ctx := context.Background()
	req := acquireReq("order:BTCUSDT", "user-1", limitBuy("BTCUSDT", "0.5", "64000"))

	first, err := h.manager.AcquireLock(ctx, req)
	require.NoError(t, err)
	require.True(t, first.Success)

	second, err := h.manager.AcquireLock(ctx, req)
	require.NoError(t, err)
	assert.False(t, second.Success)
	assert.True(t, second.IsRetry)
	assert.Equal(t, first.LockID, second.LockID)
	assert.Nil(t, second.ExistingResult)

	// No second record, no queue entry: the duplicate was absorbed.
	assert.Equal(t, 1, h.store.lockCount())
	assert.Equal(t, 0, h.store.entryCount())
}

func TestAcquireLock_PriceChangeStillDeduplicates(t *testing.T) {
	h := newTestHarness()
	ctx := context.Background()

	first, err := h.manager.AcquireLock(ctx, acquireReq("order:BTCUSDT", "user-1", limitBuy("BTCUSDT", "0.5", "64000")))
	require.NoError(t, err)
	require.True(t, first.Success)

	// Same logical order resubmitted at an adjusted price.
	second, err := h.manager.AcquireLock(ctx, acquireReq("order:BTCUSDT", "user-1", limitBuy("BTCUSDT", "0.5", "63500")))
	require.NoError(t, err)
	assert.True(t, second.IsRetry)
	assert.Equal(t, first.LockID, second.LockID)
}

func TestAcquireLock_ReplaysStoredResult(t *testing.T) {
	h := newTestHarness()
	ctx := context.Background()
	req := acquireReq("order:BTCUSDT", "user-1", limitBuy("BTCUSDT", "0.5", "64000"))
	outcome := json.RawMessage(`{"orderId":"ord-123","status":"filled"}`)

	first, err := h.manager.AcquireLock(ctx, req)
	require.NoError(t, err)
	require.NoError(t, h.manager.ReleaseLock(ctx, first.LockID, outcome, ""))

	second, err := h.manager.AcquireLock(ctx, req)
	require.NoError(t, err)
	assert.False(t, second.Success)
	assert.True(t, second.IsRetry)
	assert.Equal(t, first.LockID, second.LockID)
	assert.JSONEq(t, string(outcome), string(second.ExistingResult))
}

func TestAcquireLock_ReclaimsExpiredKey(t *testing.T) {
	h := newTestHarness()
	ctx := context.Background()
	req := acquireReq("order:BTCUSDT", "user-1", limitBuy("BTCUSDT", "0.5", "64000"))
	req.Timeout = 10 * time.Second

	first, err := h.manager.AcquireLock(ctx, req)
	require.NoError(t, err)
	require.True(t, first.Success)

	// Past the deadline, with no reaper sweep in between.
	h.clock.Advance(11 * time.Second)

	second, err := h.manager.AcquireLock(ctx, req)
	require.NoError(t, err)
	assert.True(t, second.Success)
	assert.NotEqual(t, first.LockID, second.LockID)

	// The stale record was transitioned on the way in.
	old := h.store.lockByID(first.LockID)
	require.NotNil(t, old)
	assert.Equal(t, entity.LockStatusExpired, old.Status)
}

func TestAcquireLock_FailedWithoutResultReclaimable(t *testing.T) {
	h := newTestHarness()
	ctx := context.Background()
	req := acquireReq("order:BTCUSDT", "user-1", limitBuy("BTCUSDT", "0.5", "64000"))

	first, err := h.manager.AcquireLock(ctx, req)
	require.NoError(t, err)
	require.NoError(t, h.manager.ReleaseLock(ctx, first.LockID, nil, "exchange timeout"))

	second, err := h.manager.AcquireLock(ctx, req)
	require.NoError(t, err)
	assert.True(t, second.Success)
	assert.NotEqual(t, first.LockID, second.LockID)
}

func TestAcquireLock_ContendedRequestsQueue(t *testing.T) {
	h := newTestHarness()
	ctx := context.Background()

	holder, err := h.manager.AcquireLock(ctx, acquireReq("order:BTCUSDT", "user-1", limitBuy("BTCUSDT", "0.5", "64000")))
	require.NoError(t, err)
	require.True(t, holder.Success)

	waiter, err := h.manager.AcquireLock(ctx, acquireReq("order:BTCUSDT", "user-2", limitBuy("BTCUSDT", "1.0", "64100")))
	require.NoError(t, err)
	assert.False(t, waiter.Success)
	assert.True(t, waiter.Queued())
	assert.NotEmpty(t, waiter.QueueID)
	assert.Equal(t, 1, waiter.QueuePosition)

	h.clock.Advance(time.Second)
	third, err := h.manager.AcquireLock(ctx, acquireReq("order:BTCUSDT", "user-3", limitBuy("BTCUSDT", "2.0", "64200")))
	require.NoError(t, err)
	assert.True(t, third.Queued())
	assert.Equal(t, 2, third.QueuePosition)

	// Only the holder's record exists; contenders are queue entries.
	assert.Equal(t, 1, h.store.lockCount())
	assert.Equal(t, 2, h.store.entryCount())
}

func TestAcquireLock_DistinctResourcesDoNotContend(t *testing.T) {
	h := newTestHarness()
	ctx := context.Background()

	first, err := h.manager.AcquireLock(ctx, acquireReq("order:BTCUSDT", "user-1", limitBuy("BTCUSDT", "0.5", "64000")))
	require.NoError(t, err)
	second, err := h.manager.AcquireLock(ctx, acquireReq("order:ETHUSDT", "user-1", limitBuy("ETHUSDT", "3", "2600")))
	require.NoError(t, err)

	assert.True(t, first.Success)
	assert.True(t, second.Success)
}

func TestAcquireLock_ExplicitIdempotencyKey(t *testing.T) {
	h := newTestHarness()
	ctx := context.Background()

	req := acquireReq("order:BTCUSDT", "user-1", limitBuy("BTCUSDT", "0.5", "64000"))
	req.IdempotencyKey = "client-supplied-key"

	first, err := h.manager.AcquireLock(ctx, req)
	require.NoError(t, err)
	require.True(t, first.Success)

	// A different payload under the same declared key is still a duplicate.
	other := acquireReq("order:BTCUSDT", "user-1", limitBuy("BTCUSDT", "9.9", "1"))
	other.IdempotencyKey = "client-supplied-key"

	second, err := h.manager.AcquireLock(ctx, other)
	require.NoError(t, err)
	assert.True(t, second.IsRetry)
	assert.Equal(t, first.LockID, second.LockID)
}

func TestAcquireLock_ResolvesInsertRace(t *testing.T) {
	h := newTestHarness()
	ctx := context.Background()
	req := acquireReq("order:BTCUSDT", "user-1", limitBuy("BTCUSDT", "0.5", "64000"))

	key := NewKeyDeriver().DeriveKey(req.ResourceID, req.OwnerID, req.Payload)
	now := h.clock.Now()

	// A concurrent transaction commits the same key between the conflict
	// check and the insert.
	h.store.beforeLockInsert = func() *entity.LockRecord {
		return &entity.LockRecord{
			LockID:         "winner-lock",
			ResourceID:     req.ResourceID,
			IdempotencyKey: key,
			OwnerID:        req.OwnerID,
			OwnerType:      entity.OwnerTypeUser,
			Status:         entity.LockStatusActive,
			AcquiredAt:     now,
			ExpiresAt:      now.Add(time.Minute),
			OperationType:  entity.OperationTypeTrade,
		}
	}

	res, err := h.manager.AcquireLock(ctx, req)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.True(t, res.IsRetry)
	assert.Equal(t, "winner-lock", res.LockID)
}

func TestAcquireLock_ConcurrentSingleWinner(t *testing.T) {
	h := newTestHarness()
	ctx := context.Background()

	const contenders = 16
	results := make([]*entity.LockResult, contenders)
	errors := make([]error, contenders)

	var wg sync.WaitGroup
	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			owner := "user-" + string(rune('a'+i))
			results[i], errors[i] = h.manager.AcquireLock(ctx, acquireReq(
				"order:BTCUSDT", owner, limitBuy("BTCUSDT", "1", "64000")))
		}(i)
	}
	wg.Wait()

	granted, queued := 0, 0
	for i := 0; i < contenders; i++ {
		require.NoError(t, errors[i])
		switch {
		case results[i].Success:
			granted++
		case results[i].Queued():
			queued++
		}
	}

	assert.Equal(t, 1, granted)
	assert.Equal(t, contenders-1, queued)
	assert.Equal(t, 1, h.store.lockCount())
	assert.Equal(t, contenders-1, h.store.entryCount())
}

func TestReleaseLock(t *testing.T) {
	h := newTestHarness()
	ctx := context.Background()

	res, err := h.manager.AcquireLock(ctx, acquireReq("order:BTCUSDT", "user-1", limitBuy("BTCUSDT", "0.5", "64000")))
	require.NoError(t, err)

	outcome := json.RawMessage(`{"orderId":"ord-9"}`)
	require.NoError(t, h.manager.ReleaseLock(ctx, res.LockID, outcome, ""))

	record := h.store.lockByID(res.LockID)
	require.NotNil(t, record)
	assert.Equal(t, entity.LockStatusReleased, record.Status)
	assert.JSONEq(t, string(outcome), string(record.Result))
	require.NotNil(t, record.ReleasedAt)
	assert.Equal(t, h.clock.Now(), *record.ReleasedAt)

	t.Run("second release is rejected", func(t *testing.T) {
		err := h.manager.ReleaseLock(ctx, res.LockID, nil, "")
		assert.ErrorIs(t, err, errs.ErrLockNotActive)
	})

	t.Run("unknown lock id", func(t *testing.T) {
		err := h.manager.ReleaseLock(ctx, "no-such-lock", nil, "")
		assert.ErrorIs(t, err, errs.ErrLockNotFound)
	})

	t.Run("empty lock id", func(t *testing.T) {
		err := h.manager.ReleaseLock(ctx, "", nil, "")
		assert.ErrorIs(t, err, errs.ErrLockNotFound)
	})
}

func TestReleaseLock_ErrorMessageMarksFailed(t *testing.T) {
	h := newTestHarness()
	ctx := context.Background()

	res, err := h.manager.AcquireLock(ctx, acquireReq("order:BTCUSDT", "user-1", limitBuy("BTCUSDT", "0.5", "64000")))
	require.NoError(t, err)

	require.NoError(t, h.manager.ReleaseLock(ctx, res.LockID, nil, "exchange rejected order"))

	record := h.store.lockByID(res.LockID)
	require.NotNil(t, record)
	assert.Equal(t, entity.LockStatusFailed, record.Status)
	assert.Equal(t, "exchange rejected order", record.ErrorMessage)
}

func TestReleaseLock_PromotesNextWaiter(t *testing.T) {
	h := newTestHarness()
	ctx := context.Background()

	holder, err := h.manager.AcquireLock(ctx, acquireReq("order:BTCUSDT", "user-1", limitBuy("BTCUSDT", "0.5", "64000")))
	require.NoError(t, err)

	waiter, err := h.manager.AcquireLock(ctx, acquireReq("order:BTCUSDT", "user-2", limitBuy("BTCUSDT", "1.0", "64100")))
	require.NoError(t, err)
	require.True(t, waiter.Queued())

	require.NoError(t, h.manager.ReleaseLock(ctx, holder.LockID, nil, ""))

	entry := h.store.entryByID(waiter.QueueID)
	require.NotNil(t, entry)
	assert.Equal(t, entity.QueueStatusProcessing, entry.Status)
	require.NotEmpty(t, entry.LockID)
	require.NotNil(t, entry.ProcessingStartedAt)

	promoted := h.store.lockByID(entry.LockID)
	require.NotNil(t, promoted)
	assert.Equal(t, entity.LockStatusActive, promoted.Status)
	assert.Equal(t, "user-2", promoted.OwnerID)

	// Releasing the promoted lock settles its queue entry.
	require.NoError(t, h.manager.ReleaseLock(ctx, entry.LockID, json.RawMessage(`{"ok":true}`), ""))
	settled := h.store.entryByID(waiter.QueueID)
	require.NotNil(t, settled)
	assert.Equal(t, entity.QueueStatusCompleted, settled.Status)
}

func TestReleaseLock_FailedOutcomeSettlesEntryFailed(t *testing.T) {
	h := newTestHarness()
	ctx := context.Background()

	holder, err := h.manager.AcquireLock(ctx, acquireReq("order:BTCUSDT", "user-1", limitBuy("BTCUSDT", "0.5", "64000")))
	require.NoError(t, err)

	waiter, err := h.manager.AcquireLock(ctx, acquireReq("order:BTCUSDT", "user-2", limitBuy("BTCUSDT", "1.0", "64100")))
	require.NoError(t, err)
	require.NoError(t, h.manager.ReleaseLock(ctx, holder.LockID, nil, ""))

	entry := h.store.entryByID(waiter.QueueID)
	require.NotNil(t, entry)
	require.Equal(t, entity.QueueStatusProcessing, entry.Status)

	require.NoError(t, h.manager.ReleaseLock(ctx, entry.LockID, nil, "order rejected"))

	settled := h.store.entryByID(waiter.QueueID)
	require.NotNil(t, settled)
	assert.Equal(t, entity.QueueStatusFailed, settled.Status)
}
