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

// QueueRepository implements queue-entry persistence using GORM
type QueueRepository struct {
	db              *gorm.DB
	logger          coreport.Logger
	errorClassifier *ErrorClassifier
}

// NewQueueRepository creates a new QueueRepository instance
func NewQueueRepository(db *gorm.DB, logger coreport.Logger) *QueueRepository {
	return &QueueRepository{
		db:              db,
		logger:          logger,
		errorClassifier: NewErrorClassifier(),
	}
}

// Create inserts a new pending queue entry
func (r *QueueRepository) Create(ctx context.Context, entry *entity.QueueEntry) error {
	row := queueToModel(entry)
	if err := r.db.WithContext(ctx).Create(row).Error; err != nil {
		if r.errorClassifier.IsDuplicateKeyError(err) {
			return errs.ErrConstraintViolation
		}
		r.logger.Error("Failed to insert queue entry", map[string]any{
			"resource_id": entry.ResourceID,
			"error":       err.Error(),
		})
		return fmt.Errorf("%w: %s", errs.ErrDatabaseConnection, err.Error())
	}
	return nil
}

// GetByIdempotencyKey returns the most recent entry for the key
func (r *QueueRepository) GetByIdempotencyKey(ctx context.Context, key string) (*entity.QueueEntry, error) {
	var row model.QueueEntry
	result := r.db.WithContext(ctx).
		Where("idempotency_key = ?", key).
		Order("id DESC").
		First(&row)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, errs.ErrQueueEntryNotFound
		}
		return nil, fmt.Errorf("%w: %s", errs.ErrDatabaseConnection, result.Error.Error())
	}
	return queueToEntity(&row), nil
}

// CountPending returns the number of pending entries for the resource
func (r *QueueRepository) CountPending(ctx context.Context, resourceID string) (int64, error) {
	var count int64
	result := r.db.WithContext(ctx).
		Model(&model.QueueEntry{}).
		Where("resource_id = ? AND status = ?", resourceID, string(entity.QueueStatusPending)).
		Count(&count)
	if result.Error != nil {
		return 0, fmt.Errorf("%w: %s", errs.ErrDatabaseConnection, result.Error.Error())
	}
	return count, nil
}

// CountPendingAhead returns the pending entries for the same resource that
// are ordered strictly before the given entry by (priority, queued_at)
func (r *QueueRepository) CountPendingAhead(ctx context.Context, entry *entity.QueueEntry) (int64, error) {
	var count int64
	result := r.db.WithContext(ctx).
		Model(&model.QueueEntry{}).
		Where("resource_id = ? AND status = ?", entry.ResourceID, string(entity.QueueStatusPending)).
		Where("(priority < ?) OR (priority = ? AND queued_at < ?)", entry.Priority, entry.Priority, entry.QueuedAt).
		Count(&count)
	if result.Error != nil {
		return 0, fmt.Errorf("%w: %s", errs.ErrDatabaseConnection, result.Error.Error())
	}
	return count, nil
}

// NextPending returns the single lowest-ordered pending entry for the resource
func (r *QueueRepository) NextPending(ctx context.Context, resourceID string) (*entity.QueueEntry, error) {
	var row model.QueueEntry
	result := r.db.WithContext(ctx).
		Where("resource_id = ? AND status = ?", resourceID, string(entity.QueueStatusPending)).
		Order("priority ASC, queued_at ASC").
		First(&row)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, errs.ErrQueueEntryNotFound
		}
		return nil, fmt.Errorf("%w: %s", errs.ErrDatabaseConnection, result.Error.Error())
	}
	return queueToEntity(&row), nil
}

// MarkProcessing transitions a pending entry to processing, guarded on the
// current status so a double promotion cannot occur
func (r *QueueRepository) MarkProcessing(ctx context.Context, queueID, lockID string, startedAt time.Time) error {
	res := r.db.WithContext(ctx).
		Model(&model.QueueEntry{}).
		Where("queue_id = ? AND status = ?", queueID, string(entity.QueueStatusPending)).
		Updates(map[string]any{
			"status":                string(entity.QueueStatusProcessing),
			"lock_id":               lockID,
			"processing_started_at": startedAt,
		})
	if res.Error != nil {
		return fmt.Errorf("%w: %s", errs.ErrDatabaseConnection, res.Error.Error())
	}
	if res.RowsAffected == 0 {
		return errs.ErrQueueEntryNotFound
	}
	return nil
}

// MarkStatus transitions an entry to the given status
func (r *QueueRepository) MarkStatus(ctx context.Context, queueID string, status entity.QueueStatus) error {
	res := r.db.WithContext(ctx).
		Model(&model.QueueEntry{}).
		Where("queue_id = ?", queueID).
		Update("status", string(status))
	if res.Error != nil {
		return fmt.Errorf("%w: %s", errs.ErrDatabaseConnection, res.Error.Error())
	}
	if res.RowsAffected == 0 {
		return errs.ErrQueueEntryNotFound
	}
	return nil
}

// ResourcesWithPending returns the distinct resource ids with pending entries
func (r *QueueRepository) ResourcesWithPending(ctx context.Context) ([]string, error) {
	var resources []string
	result := r.db.WithContext(ctx).
		Model(&model.QueueEntry{}).
		Where("status = ?", string(entity.QueueStatusPending)).
		Distinct("resource_id").
		Pluck("resource_id", &resources)
	if result.Error != nil {
		return nil, fmt.Errorf("%w: %s", errs.ErrDatabaseConnection, result.Error.Error())
	}
	return resources, nil
}

// DeleteTerminalBefore purges terminal entries created before cutoff
func (r *QueueRepository) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("status IN ? AND created_at < ?", []string{
			string(entity.QueueStatusCompleted),
			string(entity.QueueStatusFailed),
			string(entity.QueueStatusCancelled),
		}, cutoff).
		Delete(&model.QueueEntry{})
	if res.Error != nil {
		return 0, fmt.Errorf("%w: %s", errs.ErrDatabaseConnection, res.Error.Error())
	}
	return res.RowsAffected, nil
}

func queueToModel(entry *entity.QueueEntry) *model.QueueEntry {
	return &model.QueueEntry{
		QueueID:             entry.QueueID,
		LockID:              entry.LockID,
		ResourceID:          entry.ResourceID,
		Priority:            entry.Priority,
		OperationType:       string(entry.OperationType),
		OperationPayload:    []byte(entry.OperationPayload),
		IdempotencyKey:      entry.IdempotencyKey,
		Status:              string(entry.Status),
		OwnerID:             entry.OwnerID,
		OwnerType:           string(entry.OwnerType),
		QueuedAt:            entry.QueuedAt,
		ProcessingStartedAt: entry.ProcessingStartedAt,
	}
}

func queueToEntity(row *model.QueueEntry) *entity.QueueEntry {
	return &entity.QueueEntry{
		QueueID:             row.QueueID,
		LockID:              row.LockID,
		ResourceID:          row.ResourceID,
		Priority:            row.Priority,
		OperationType:       entity.OperationType(row.OperationType),
		OperationPayload:    json.RawMessage(row.OperationPayload),
		IdempotencyKey:      row.IdempotencyKey,
		Status:              entity.QueueStatus(row.Status),
		OwnerID:             row.OwnerID,
		OwnerType:           entity.OwnerType(row.OwnerType),
		QueuedAt:            row.QueuedAt,
		ProcessingStartedAt: row.ProcessingStartedAt,
	}
}
