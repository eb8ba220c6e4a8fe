package lock

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/amirhossein-jamali/trade-lock-manager/internal/domain/entity"
	errs "github.com/amirhossein-jamali/trade-lock-manager/internal/domain/error"
)

// Executor is caller-supplied work that runs while a lock is held. The
// context carries the lock deadline; an executor that wants to stop when
// its claim can be re-granted to a contender must honor it.
type Executor func(ctx context.Context) (json.RawMessage, error)

// ExecuteWithLock is the scoped-acquisition combinator: acquire, run, and
// release on every exit path. The lock is guaranteed to reach a terminal
// state before control returns, whether the executor returns, errors or
// panics. A replayed result from an earlier completion is reported as a
// success with zero duration.
func (m *Manager) ExecuteWithLock(ctx context.Context, req AcquireRequest, executor Executor) (*entity.ExecutionResult, error) {
	acquired, err := m.AcquireLock(ctx, req)
	if err != nil {
		return &entity.ExecutionResult{Success: false, Error: err.Error()}, err
	}

	if !acquired.Success {
		if acquired.ExistingResult != nil {
			m.logger.Debug("Replaying stored result for duplicate submission", map[string]any{
				"resource_id": req.ResourceID,
				"lock_id":     acquired.LockID,
			})
			return &entity.ExecutionResult{
				Success:  true,
				LockID:   acquired.LockID,
				Result:   acquired.ExistingResult,
				Replayed: true,
			}, nil
		}
		if acquired.Queued() {
			return &entity.ExecutionResult{
				Success:       false,
				QueuePosition: acquired.QueuePosition,
				Error:         errs.ErrResourceLocked.Error(),
			}, nil
		}
		// Same key, still in flight.
		return &entity.ExecutionResult{
			Success: false,
			LockID:  acquired.LockID,
			Error:   "operation already in progress",
		}, nil
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = m.defaultTimeout
	}
	execCtx, cancel := m.timeProvider.WithTimeout(ctx, timeout)
	defer cancel()

	start := m.timeProvider.Now()
	result, execErr := runExecutor(execCtx, executor)
	duration := m.timeProvider.Since(start)

	errorMessage := ""
	if execErr != nil {
		errorMessage = execErr.Error()
		if errorMessage == "" {
			errorMessage = "execution failed"
		}
	}

	// Release must reach the store even when the caller's context is gone;
	// a dangling active lock would block the resource until expiry.
	releaseCtx := context.WithoutCancel(ctx)
	if relErr := m.ReleaseLock(releaseCtx, acquired.LockID, result, errorMessage); relErr != nil {
		m.logger.Error("Failed to release lock after execution", map[string]any{
			"lock_id":     acquired.LockID,
			"resource_id": req.ResourceID,
			"error":       relErr.Error(),
		})
		if execErr == nil {
			return &entity.ExecutionResult{
				Success:  false,
				LockID:   acquired.LockID,
				Error:    relErr.Error(),
				Duration: duration,
			}, relErr
		}
	}

	if execErr != nil {
		return &entity.ExecutionResult{
			Success:  false,
			LockID:   acquired.LockID,
			Error:    errorMessage,
			Duration: duration,
		}, execErr
	}

	return &entity.ExecutionResult{
		Success:  true,
		LockID:   acquired.LockID,
		Result:   result,
		Duration: duration,
	}, nil
}

// runExecutor invokes the executor, converting a panic into an error so the
// deferred release path always runs
func runExecutor(ctx context.Context, executor Executor) (result json.RawMessage, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("executor panicked: %v", r)
		}
	}()
	return executor(ctx)
}
