package lock

import (
	"context"
	"encoding/json"
	"time"

	"github.com/amirhossein-jamali/trade-lock-manager/internal/domain/entity"
	errs "github.com/amirhossein-jamali/trade-lock-manager/internal/domain/error"
)

// enqueue parks a losing acquire attempt behind the contended resource. A
// duplicate submission that is already waiting keeps its place: it is never
// enqueued twice and never jumps the queue.
func (m *Manager) enqueue(ctx context.Context, req AcquireRequest, payloadJSON json.RawMessage, now time.Time) (*entity.QueueEntry, int, error) {
	queueRepo := m.uow.GetQueueRepository(ctx)

	existing, err := queueRepo.GetByIdempotencyKey(ctx, req.IdempotencyKey)
	if err != nil && !errs.IsQueueEntryNotFoundError(err) {
		return nil, 0, err
	}
	if existing != nil && !existing.Status.IsTerminal() {
		position := 1
		if existing.Status == entity.QueueStatusPending {
			ahead, err := queueRepo.CountPendingAhead(ctx, existing)
			if err != nil {
				return nil, 0, err
			}
			position = int(ahead) + 1
		}
		m.logger.Debug("Duplicate submission already queued", map[string]any{
			"queue_id":        existing.QueueID,
			"resource_id":     existing.ResourceID,
			"idempotency_key": req.IdempotencyKey,
			"queue_position":  position,
		})
		return existing, position, nil
	}

	// Reported position is an approximation: concurrent enqueues may observe
	// overlapping counts. Promotion order comes from (priority, queued_at),
	// never from this number.
	pending, err := queueRepo.CountPending(ctx, req.ResourceID)
	if err != nil {
		return nil, 0, err
	}

	entry := &entity.QueueEntry{
		QueueID:          m.ids.NewID(),
		ResourceID:       req.ResourceID,
		Priority:         req.Priority,
		OperationType:    req.Payload.OperationType(),
		OperationPayload: payloadJSON,
		IdempotencyKey:   req.IdempotencyKey,
		Status:           entity.QueueStatusPending,
		OwnerID:          req.OwnerID,
		OwnerType:        req.OwnerType,
		QueuedAt:         now,
	}
	if err := queueRepo.Create(ctx, entry); err != nil {
		return nil, 0, err
	}
	return entry, int(pending) + 1, nil
}

// ProcessQueueForResource promotes the single lowest-ordered pending waiter
// for the resource into an active lock. A promotion that loses to fresh
// contention leaves the entry pending; it will be retried on the next
// release or reaper pass. This is an at-least-once attempt, not a bound on
// forward progress.
func (m *Manager) ProcessQueueForResource(ctx context.Context, resourceID string) error {
	queueRepo := m.uow.GetQueueRepository(ctx)

	entry, err := queueRepo.NextPending(ctx, resourceID)
	if err != nil {
		if errs.IsQueueEntryNotFoundError(err) {
			return nil
		}
		return err
	}

	payload, err := entity.UnmarshalPayload(entry.OperationPayload)
	if err != nil {
		// A payload that no longer decodes can never be promoted; fail the
		// entry so it does not wedge the queue head forever.
		m.logger.Error("Queue entry payload is not decodable, failing entry", map[string]any{
			"queue_id":    entry.QueueID,
			"resource_id": entry.ResourceID,
			"error":       err.Error(),
		})
		return queueRepo.MarkStatus(ctx, entry.QueueID, entity.QueueStatusFailed)
	}

	// Promotion re-enters the acquire path with the entry's original key,
	// so promoting is itself idempotency-safe.
	res, err := m.AcquireLock(ctx, AcquireRequest{
		ResourceID:     entry.ResourceID,
		OwnerID:        entry.OwnerID,
		OwnerType:      entry.OwnerType,
		Payload:        payload,
		IdempotencyKey: entry.IdempotencyKey,
		Priority:       entry.Priority,
	})
	if err != nil {
		return err
	}

	switch {
	case res.Success:
		now := m.timeProvider.Now()
		if err := queueRepo.MarkProcessing(ctx, entry.QueueID, res.LockID, now); err != nil {
			return err
		}
		m.logger.Info("Queue entry promoted", map[string]any{
			"queue_id":    entry.QueueID,
			"resource_id": entry.ResourceID,
			"lock_id":     res.LockID,
		})

	case res.IsRetry && res.ExistingResult != nil:
		// The operation already completed under this key elsewhere.
		if err := queueRepo.MarkStatus(ctx, entry.QueueID, entity.QueueStatusCompleted); err != nil {
			return err
		}

	case res.IsRetry && res.LockID != "":
		// An active lock already holds the entry's key: a previous promotion
		// attempt got as far as acquiring. Finish its bookkeeping.
		now := m.timeProvider.Now()
		if err := queueRepo.MarkProcessing(ctx, entry.QueueID, res.LockID, now); err != nil {
			return err
		}

	default:
		// Re-contended before promotion completed; the entry stays pending.
		m.logger.Debug("Promotion lost to fresh contention", map[string]any{
			"queue_id":    entry.QueueID,
			"resource_id": entry.ResourceID,
		})
	}
	return nil
}

// GetQueuePosition returns the 1-based promotion position of the pending
// entry holding the given idempotency key. Entries that were already
// promoted, completed or cancelled report ErrQueueEntryNotFound.
func (m *Manager) GetQueuePosition(ctx context.Context, idempotencyKey string) (int, error) {
	queueRepo := m.uow.GetQueueRepository(ctx)

	entry, err := queueRepo.GetByIdempotencyKey(ctx, idempotencyKey)
	if err != nil {
		return 0, err
	}
	if entry.Status != entity.QueueStatusPending {
		return 0, errs.ErrQueueEntryNotFound
	}

	ahead, err := queueRepo.CountPendingAhead(ctx, entry)
	if err != nil {
		return 0, err
	}
	return int(ahead) + 1, nil
}
