package lock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/amirhossein-jamali/trade-lock-manager/internal/domain/entity"
	errs "github.com/amirhossein-jamali/trade-lock-manager/internal/domain/error"
	coreport "github.com/amirhossein-jamali/trade-lock-manager/internal/domain/port/core"
	"github.com/amirhossein-jamali/trade-lock-manager/internal/domain/port/persistence"
)

const (
	// DefaultLockTimeout bounds how long a lock record stays active when the
	// caller declares no timeout
	DefaultLockTimeout = 30 * time.Second

	// DefaultMaxRetries is the caller-declared retry bound stored on the
	// record when none is given
	DefaultMaxRetries = 3
)

// AcquireRequest describes one attempt to take exclusive access to a
// resource. OperationType is carried by the payload variant itself.
type AcquireRequest struct {
	ResourceID string
	OwnerID    string
	OwnerType  entity.OwnerType
	Payload    entity.Payload

	// IdempotencyKey is optional; when empty it is derived from the
	// resource, owner and payload fingerprint
	IdempotencyKey string

	// Timeout bounds how long the lock record is considered active, not
	// how long any executor is allowed to run
	Timeout time.Duration

	MaxRetries int
	Priority   int // lower is more urgent when queued
}

// Manager is the acquire/release state machine over the lock store. It holds
// no in-process exclusion: callers may run in separate processes, and the
// store's transactional guarantees are the only synchronization point.
type Manager struct {
	uow          persistence.UnitOfWork
	ids          coreport.IDGenerator
	timeProvider coreport.TimeProvider
	logger       coreport.Logger
	deriver      *KeyDeriver

	defaultTimeout    time.Duration
	defaultMaxRetries int
}

// NewManager creates a new lock manager
func NewManager(
	uow persistence.UnitOfWork,
	ids coreport.IDGenerator,
	timeProvider coreport.TimeProvider,
	logger coreport.Logger,
	defaultTimeout time.Duration,
	defaultMaxRetries int,
) *Manager {
	if defaultTimeout <= 0 {
		defaultTimeout = DefaultLockTimeout
	}
	if defaultMaxRetries <= 0 {
		defaultMaxRetries = DefaultMaxRetries
	}

	return &Manager{
		uow:               uow,
		ids:               ids,
		timeProvider:      timeProvider,
		logger:            logger,
		deriver:           NewKeyDeriver(),
		defaultTimeout:    defaultTimeout,
		defaultMaxRetries: defaultMaxRetries,
	}
}

// AcquireLock attempts to take exclusive access to the requested resource as
// a single atomic unit of work. Duplicate submissions (same idempotency key)
// come back as retries, contended resources come back as queue positions,
// and only a fresh grant returns Success.
func (m *Manager) AcquireLock(ctx context.Context, req AcquireRequest) (*entity.LockResult, error) {
	if err := m.normalizeRequest(&req); err != nil {
		return nil, err
	}

	payloadJSON, err := entity.MarshalPayload(req.Payload)
	if err != nil {
		return nil, err
	}

	if req.IdempotencyKey == "" {
		req.IdempotencyKey = m.deriver.DeriveKey(req.ResourceID, req.OwnerID, req.Payload)
	}

	txCtx, err := m.uow.Begin(ctx)
	if err != nil {
		return nil, err
	}
	finished := false
	defer func() {
		if !finished {
			if rbErr := m.uow.Rollback(txCtx); rbErr != nil {
				m.logger.Error("Failed to roll back acquire transaction", map[string]any{
					"resource_id": req.ResourceID,
					"error":       rbErr.Error(),
				})
			}
		}
	}()

	now := m.timeProvider.Now()
	lockRepo := m.uow.GetLockRepository(txCtx)

	// Step 1: duplicate submission check against the idempotency key.
	existing, err := lockRepo.GetByIdempotencyKey(txCtx, req.IdempotencyKey)
	if err != nil && !errs.IsLockNotFoundError(err) {
		return nil, err
	}
	if existing != nil {
		if res := retryResult(existing, now); res != nil {
			if err := m.uow.Commit(txCtx); err != nil {
				return nil, err
			}
			finished = true

			m.logger.Debug("Duplicate submission detected", map[string]any{
				"resource_id":     req.ResourceID,
				"idempotency_key": req.IdempotencyKey,
				"lock_id":         res.LockID,
				"replayed":        res.ExistingResult != nil,
			})
			return res, nil
		}
		// The previous attempt expired or failed without a result; the key
		// is free to be claimed again. An unswept record still marked active
		// must reach its terminal state first, or the store's uniqueness
		// constraint on active keys would reject the new insert.
		if existing.Status == entity.LockStatusActive {
			err := lockRepo.Release(txCtx, existing.LockID, entity.LockStatusExpired, nil, "", now)
			if err != nil && !errors.Is(err, errs.ErrLockNotActive) {
				return nil, err
			}
		}
	}

	// Step 2: conflict check against other holders of the resource.
	holders, err := lockRepo.FindActiveByResource(txCtx, req.ResourceID, now)
	if err != nil {
		return nil, err
	}
	contended := false
	for _, h := range holders {
		if h.IdempotencyKey != req.IdempotencyKey {
			contended = true
			break
		}
	}
	if contended {
		entry, position, err := m.enqueue(txCtx, req, payloadJSON, now)
		if err != nil {
			return nil, err
		}
		if err := m.uow.Commit(txCtx); err != nil {
			return nil, err
		}
		finished = true

		m.logger.Info("Resource contended, request queued", map[string]any{
			"resource_id":     req.ResourceID,
			"owner_id":        req.OwnerID,
			"queue_id":        entry.QueueID,
			"queue_position":  position,
			"idempotency_key": req.IdempotencyKey,
		})
		return &entity.LockResult{QueueID: entry.QueueID, QueuePosition: position}, nil
	}

	// Step 3: the resource is free, insert the active record.
	record := &entity.LockRecord{
		LockID:           m.ids.NewID(),
		ResourceID:       req.ResourceID,
		IdempotencyKey:   req.IdempotencyKey,
		OwnerID:          req.OwnerID,
		OwnerType:        req.OwnerType,
		Status:           entity.LockStatusActive,
		AcquiredAt:       now,
		ExpiresAt:        now.Add(req.Timeout),
		OperationType:    req.Payload.OperationType(),
		OperationPayload: payloadJSON,
		MaxRetries:       req.MaxRetries,
		TimeoutMs:        req.Timeout.Milliseconds(),
	}

	if err := lockRepo.Create(txCtx, record); err != nil {
		if errs.IsDuplicateIdempotencyKeyError(err) {
			// Another caller slipped past steps 1-2 with the same key and
			// won the insert. Surrender the transaction and answer with the
			// winner's record, exactly as step 1 would have.
			if rbErr := m.uow.Rollback(txCtx); rbErr != nil {
				m.logger.Error("Failed to roll back after insert race", map[string]any{
					"resource_id": req.ResourceID,
					"error":       rbErr.Error(),
				})
			}
			finished = true
			return m.resolveInsertRace(ctx, req)
		}
		return nil, err
	}

	if err := m.uow.Commit(txCtx); err != nil {
		return nil, err
	}
	finished = true

	m.logger.Info("Lock acquired", map[string]any{
		"lock_id":         record.LockID,
		"resource_id":     record.ResourceID,
		"owner_id":        record.OwnerID,
		"operation_type":  record.OperationType,
		"expires_at":      record.ExpiresAt,
		"idempotency_key": record.IdempotencyKey,
	})
	return &entity.LockResult{Success: true, LockID: record.LockID}, nil
}

// ReleaseLock transitions an active lock to its terminal state, storing the
// outcome exactly once, and then attempts to promote the next waiter for the
// freed resource. Promotion is best effort with respect to the caller: the
// release has already succeeded when promotion runs.
func (m *Manager) ReleaseLock(ctx context.Context, lockID string, result json.RawMessage, errorMessage string) error {
	if lockID == "" {
		return errs.ErrLockNotFound
	}

	lockRepo := m.uow.GetLockRepository(ctx)
	record, err := lockRepo.GetByLockID(ctx, lockID)
	if err != nil {
		return err
	}

	status := entity.LockStatusReleased
	if errorMessage != "" {
		status = entity.LockStatusFailed
	}

	releasedAt := m.timeProvider.Now()
	if err := lockRepo.Release(ctx, lockID, status, result, errorMessage, releasedAt); err != nil {
		return err
	}

	m.logger.Info("Lock released", map[string]any{
		"lock_id":     lockID,
		"resource_id": record.ResourceID,
		"status":      status,
	})

	m.settleQueueEntry(ctx, record, status)

	if err := m.ProcessQueueForResource(ctx, record.ResourceID); err != nil {
		m.logger.Warn("Queue promotion failed after release, entry stays pending", map[string]any{
			"resource_id": record.ResourceID,
			"error":       err.Error(),
		})
	}
	return nil
}

// normalizeRequest validates required fields and applies defaults in place
func (m *Manager) normalizeRequest(req *AcquireRequest) error {
	if req.ResourceID == "" {
		return errs.ErrResourceIDRequired
	}
	if req.OwnerID == "" {
		return errs.ErrOwnerIDRequired
	}
	if !req.OwnerType.IsValid() {
		return fmt.Errorf("%w: %q", errs.ErrInvalidOwnerType, req.OwnerType)
	}
	if req.Payload == nil {
		return fmt.Errorf("%w: payload is required", errs.ErrInvalidPayload)
	}
	if req.Timeout <= 0 {
		req.Timeout = m.defaultTimeout
	}
	if req.MaxRetries <= 0 {
		req.MaxRetries = m.defaultMaxRetries
	}
	return nil
}

// resolveInsertRace re-reads the record that won a concurrent insert for the
// same idempotency key. The contract is that duplicate submissions never
// produce duplicate active locks, even under isolation anomalies.
func (m *Manager) resolveInsertRace(ctx context.Context, req AcquireRequest) (*entity.LockResult, error) {
	lockRepo := m.uow.GetLockRepository(ctx)
	winner, err := lockRepo.GetByIdempotencyKey(ctx, req.IdempotencyKey)
	if err != nil {
		return nil, err
	}

	m.logger.Warn("Lost insert race on idempotency key", map[string]any{
		"resource_id":     req.ResourceID,
		"idempotency_key": req.IdempotencyKey,
		"winning_lock_id": winner.LockID,
	})

	if res := retryResult(winner, m.timeProvider.Now()); res != nil {
		return res, nil
	}
	// The winner reached a terminal state between the failed insert and the
	// re-read. Still report a retry against it rather than re-entering
	// contention mid-flight.
	return &entity.LockResult{IsRetry: true, LockID: winner.LockID, ExistingResult: winner.Result}, nil
}

// settleQueueEntry moves the queue entry this lock was promoted from into a
// terminal state matching the lock outcome. Failures only log: entry cleanup
// never blocks a release.
func (m *Manager) settleQueueEntry(ctx context.Context, record *entity.LockRecord, status entity.LockStatus) {
	queueRepo := m.uow.GetQueueRepository(ctx)
	entry, err := queueRepo.GetByIdempotencyKey(ctx, record.IdempotencyKey)
	if err != nil {
		if !errs.IsQueueEntryNotFoundError(err) {
			m.logger.Warn("Failed to look up queue entry for released lock", map[string]any{
				"lock_id": record.LockID,
				"error":   err.Error(),
			})
		}
		return
	}
	if entry.Status != entity.QueueStatusProcessing || entry.LockID != record.LockID {
		return
	}

	entryStatus := entity.QueueStatusCompleted
	if status == entity.LockStatusFailed {
		entryStatus = entity.QueueStatusFailed
	}
	if err := queueRepo.MarkStatus(ctx, entry.QueueID, entryStatus); err != nil {
		m.logger.Warn("Failed to settle queue entry", map[string]any{
			"queue_id": entry.QueueID,
			"status":   entryStatus,
			"error":    err.Error(),
		})
	}
}

// retryResult maps an existing record for the same idempotency key onto the
// structured duplicate-submission outcome. Nil means the key is free again.
func retryResult(existing *entity.LockRecord, now time.Time) *entity.LockResult {
	if existing.IsActive(now) {
		return &entity.LockResult{IsRetry: true, LockID: existing.LockID}
	}
	if existing.HasStoredResult() {
		return &entity.LockResult{
			IsRetry:        true,
			LockID:         existing.LockID,
			ExistingResult: existing.Result,
		}
	}
	return nil
}
