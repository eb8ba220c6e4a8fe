package lock

import (
	"context"

	"github.com/amirhossein-jamali/trade-lock-manager/internal/domain/entity"
)

// IsResourceLocked reports whether any active, unexpired lock holds the
// resource. A lock whose deadline has passed counts as free immediately,
// whether or not the reaper has swept it yet.
func (m *Manager) IsResourceLocked(ctx context.Context, resourceID string) (bool, error) {
	lockRepo := m.uow.GetLockRepository(ctx)
	holders, err := lockRepo.FindActiveByResource(ctx, resourceID, m.timeProvider.Now())
	if err != nil {
		return false, err
	}
	return len(holders) > 0, nil
}

// GetLockStatus aggregates the lock and queue state of one resource
func (m *Manager) GetLockStatus(ctx context.Context, resourceID string) (*entity.ResourceLockStatus, error) {
	lockRepo := m.uow.GetLockRepository(ctx)
	queueRepo := m.uow.GetQueueRepository(ctx)

	holders, err := lockRepo.FindActiveByResource(ctx, resourceID, m.timeProvider.Now())
	if err != nil {
		return nil, err
	}
	queueLength, err := queueRepo.CountPending(ctx, resourceID)
	if err != nil {
		return nil, err
	}

	summaries := make([]entity.LockSummary, 0, len(holders))
	for _, h := range holders {
		summaries = append(summaries, h.Summary())
	}

	return &entity.ResourceLockStatus{
		ResourceID:  resourceID,
		Locked:      len(holders) > 0,
		LockCount:   len(holders),
		QueueLength: int(queueLength),
		ActiveLocks: summaries,
	}, nil
}

// GetActiveLocks returns summaries of every active, unexpired lock
func (m *Manager) GetActiveLocks(ctx context.Context) ([]entity.LockSummary, error) {
	lockRepo := m.uow.GetLockRepository(ctx)
	records, err := lockRepo.FindActive(ctx, m.timeProvider.Now())
	if err != nil {
		return nil, err
	}

	summaries := make([]entity.LockSummary, 0, len(records))
	for _, r := range records {
		summaries = append(summaries, r.Summary())
	}
	return summaries, nil
}

// ForceReleaseOwnerLocks releases every currently-active lock held by one
// owner and returns the exact count released. Operator-triggered recovery
// path; each release still walks the normal state machine, so waiters for
// the freed resources get promoted.
func (m *Manager) ForceReleaseOwnerLocks(ctx context.Context, ownerID string) (int, error) {
	lockRepo := m.uow.GetLockRepository(ctx)
	records, err := lockRepo.FindActiveByOwner(ctx, ownerID, m.timeProvider.Now())
	if err != nil {
		return 0, err
	}

	released := 0
	for _, r := range records {
		if err := m.ReleaseLock(ctx, r.LockID, nil, ""); err != nil {
			m.logger.Error("Force release failed for lock", map[string]any{
				"lock_id":     r.LockID,
				"resource_id": r.ResourceID,
				"owner_id":    ownerID,
				"error":       err.Error(),
			})
			continue
		}
		released++
	}

	m.logger.Info("Force released owner locks", map[string]any{
		"owner_id": ownerID,
		"released": released,
		"of":       len(records),
	})
	return released, nil
}

// ReleaseLockByResource releases the active lock a specific owner holds on a
// resource. Returns false when the owner holds no active lock there.
func (m *Manager) ReleaseLockByResource(ctx context.Context, resourceID, ownerID string) (bool, error) {
	lockRepo := m.uow.GetLockRepository(ctx)
	holders, err := lockRepo.FindActiveByResource(ctx, resourceID, m.timeProvider.Now())
	if err != nil {
		return false, err
	}

	for _, h := range holders {
		if h.OwnerID != ownerID {
			continue
		}
		if err := m.ReleaseLock(ctx, h.LockID, nil, ""); err != nil {
			return false, err
		}
		return true, nil
	}
	return false, nil
}
