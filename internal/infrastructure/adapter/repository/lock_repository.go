package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/amirhossein-jamali/trade-lock-manager/internal/domain/entity"
	errs "github.com/amirhossein-jamali/trade-lock-manager/internal/domain/error"
	coreport "github.com/amirhossein-jamali/trade-lock-manager/internal/domain/port/core"
	"github.com/amirhossein-jamali/trade-lock-manager/internal/infrastructure/adapter/model"
	"gorm.io/gorm"
)

// LockRepository implements lock-record persistence using GORM
type LockRepository struct {
	db              *gorm.DB
	logger          coreport.Logger
	errorClassifier *ErrorClassifier
}

// NewLockRepository creates a new LockRepository instance
func NewLockRepository(db *gorm.DB, logger coreport.Logger) *LockRepository {
	return &LockRepository{
		db:              db,
		logger:          logger,
		errorClassifier: NewErrorClassifier(),
	}
}

// Create inserts a new lock record. A violation of the partial unique index
// on idempotency_key surfaces as ErrDuplicateIdempotencyKey so the manager
// can resolve the insert race.
func (r *LockRepository) Create(ctx context.Context, record *entity.LockRecord) error {
	row := lockToModel(record)
	if err := r.db.WithContext(ctx).Create(row).Error; err != nil {
		if r.errorClassifier.IsDuplicateKeyError(err) {
			r.logger.Warn("Duplicate idempotency key on lock insert", map[string]any{
				"resource_id":     record.ResourceID,
				"idempotency_key": record.IdempotencyKey,
			})
			return errs.ErrDuplicateIdempotencyKey
		}
		r.logger.Error("Failed to insert lock record", map[string]any{
			"resource_id": record.ResourceID,
			"error":       err.Error(),
		})
		return fmt.Errorf("%w: %s", errs.ErrDatabaseConnection, err.Error())
	}
	return nil
}

// GetByLockID returns the record identified by lockID
func (r *LockRepository) GetByLockID(ctx context.Context, lockID string) (*entity.LockRecord, error) {
	var row model.ResourceLock
	result := r.db.WithContext(ctx).Where("lock_id = ?", lockID).First(&row)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, errs.ErrLockNotFound
		}
		return nil, fmt.Errorf("%w: %s", errs.ErrDatabaseConnection, result.Error.Error())
	}
	return lockToEntity(&row), nil
}

// GetByIdempotencyKey returns the most recent record for the key
func (r *LockRepository) GetByIdempotencyKey(ctx context.Context, key string) (*entity.LockRecord, error) {
	var row model.ResourceLock
	result := r.db.WithContext(ctx).
		Where("idempotency_key = ?", key).
		Order("id DESC").
		First(&row)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, errs.ErrLockNotFound
		}
		return nil, fmt.Errorf("%w: %s", errs.ErrDatabaseConnection, result.Error.Error())
	}
	return lockToEntity(&row), nil
}

// FindActiveByResource returns all active, unexpired records for the resource
func (r *LockRepository) FindActiveByResource(ctx context.Context, resourceID string, now time.Time) ([]*entity.LockRecord, error) {
	var rows []model.ResourceLock
	result := r.db.WithContext(ctx).
		Where("resource_id = ? AND status = ? AND expires_at > ?", resourceID, string(entity.LockStatusActive), now).
		Find(&rows)
	if result.Error != nil {
		return nil, fmt.Errorf("%w: %s", errs.ErrDatabaseConnection, result.Error.Error())
	}
	return locksToEntities(rows), nil
}

// FindActiveByOwner returns all active, unexpired records owned by ownerID
func (r *LockRepository) FindActiveByOwner(ctx context.Context, ownerID string, now time.Time) ([]*entity.LockRecord, error) {
	var rows []model.ResourceLock
	result := r.db.WithContext(ctx).
		Where("owner_id = ? AND status = ? AND expires_at > ?", ownerID, string(entity.LockStatusActive), now).
		Find(&rows)
	if result.Error != nil {
		return nil, fmt.Errorf("%w: %s", errs.ErrDatabaseConnection, result.Error.Error())
	}
	return locksToEntities(rows), nil
}

// FindActive returns all active, unexpired records system-wide
func (r *LockRepository) FindActive(ctx context.Context, now time.Time) ([]*entity.LockRecord, error) {
	var rows []model.ResourceLock
	result := r.db.WithContext(ctx).
		Where("status = ? AND expires_at > ?", string(entity.LockStatusActive), now).
		Order("acquired_at ASC").
		Find(&rows)
	if result.Error != nil {
		return nil, fmt.Errorf("%w: %s", errs.ErrDatabaseConnection, result.Error.Error())
	}
	return locksToEntities(rows), nil
}

// Release transitions an active record to a terminal status in one guarded
// UPDATE, so two concurrent releases of the same lock cannot both win
func (r *LockRepository) Release(ctx context.Context, lockID string, status entity.LockStatus, result json.RawMessage, errorMessage string, releasedAt time.Time) error {
	updates := map[string]any{
		"status":        string(status),
		"released_at":   releasedAt,
		"result":        []byte(result),
		"error_message": errorMessage,
	}

	res := r.db.WithContext(ctx).
		Model(&model.ResourceLock{}).
		Where("lock_id = ? AND status = ?", lockID, string(entity.LockStatusActive)).
		Updates(updates)
	if res.Error != nil {
		r.logger.Error("Failed to release lock record", map[string]any{
			"lock_id": lockID,
			"error":   res.Error.Error(),
		})
		return fmt.Errorf("%w: %s", errs.ErrDatabaseConnection, res.Error.Error())
	}
	if res.RowsAffected == 0 {
		// Distinguish a missing record from one already terminal.
		var count int64
		if err := r.db.WithContext(ctx).
			Model(&model.ResourceLock{}).
			Where("lock_id = ?", lockID).
			Count(&count).Error; err != nil {
			return fmt.Errorf("%w: %s", errs.ErrDatabaseConnection, err.Error())
		}
		if count == 0 {
			return errs.ErrLockNotFound
		}
		return errs.ErrLockNotActive
	}
	return nil
}

// ExpireStale marks timed-out active records as expired. Idempotent by
// predicate, so concurrent reapers are safe.
func (r *LockRepository) ExpireStale(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&model.ResourceLock{}).
		Where("status = ? AND expires_at <= ?", string(entity.LockStatusActive), now).
		Update("status", string(entity.LockStatusExpired))
	if res.Error != nil {
		return 0, fmt.Errorf("%w: %s", errs.ErrDatabaseConnection, res.Error.Error())
	}
	return res.RowsAffected, nil
}

// DeleteTerminalBefore purges terminal records created before cutoff
func (r *LockRepository) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("status IN ? AND created_at < ?", []string{
			string(entity.LockStatusReleased),
			string(entity.LockStatusExpired),
			string(entity.LockStatusFailed),
		}, cutoff).
		Delete(&model.ResourceLock{})
	if res.Error != nil {
		return 0, fmt.Errorf("%w: %s", errs.ErrDatabaseConnection, res.Error.Error())
	}
	return res.RowsAffected, nil
}

func lockToModel(record *entity.LockRecord) *model.ResourceLock {
	return &model.ResourceLock{
		LockID:           record.LockID,
		ResourceID:       record.ResourceID,
		IdempotencyKey:   record.IdempotencyKey,
		OwnerID:          record.OwnerID,
		OwnerType:        string(record.OwnerType),
		Status:           string(record.Status),
		AcquiredAt:       record.AcquiredAt,
		ExpiresAt:        record.ExpiresAt,
		ReleasedAt:       record.ReleasedAt,
		OperationType:    string(record.OperationType),
		OperationPayload: []byte(record.OperationPayload),
		Result:           []byte(record.Result),
		ErrorMessage:     record.ErrorMessage,
		MaxRetries:       record.MaxRetries,
		TimeoutMs:        record.TimeoutMs,
	}
}

func lockToEntity(row *model.ResourceLock) *entity.LockRecord {
	return &entity.LockRecord{
		LockID:           row.LockID,
		ResourceID:       row.ResourceID,
		IdempotencyKey:   row.IdempotencyKey,
		OwnerID:          row.OwnerID,
		OwnerType:        entity.OwnerType(row.OwnerType),
		Status:           entity.LockStatus(row.Status),
		AcquiredAt:       row.AcquiredAt,
		ExpiresAt:        row.ExpiresAt,
		ReleasedAt:       row.ReleasedAt,
		OperationType:    entity.OperationType(row.OperationType),
		OperationPayload: json.RawMessage(row.OperationPayload),
		Result:           json.RawMessage(row.Result),
		ErrorMessage:     row.ErrorMessage,
		MaxRetries:       row.MaxRetries,
		TimeoutMs:        row.TimeoutMs,
	}
}

func locksToEntities(rows []model.ResourceLock) []*entity.LockRecord {
	records := make([]*entity.LockRecord, 0, len(rows))
	for i := range rows {
		records = append(records, lockToEntity(&rows[i]))
	}
	return records
}
