package migration

import (
	coreport "github.com/amirhossein-jamali/trade-lock-manager/internal/domain/port/core"
	"gorm.io/gorm"
)

// AdvancedIndexManager manages PostgreSQL-specific advanced indexes
type AdvancedIndexManager struct {
	db     *gorm.DB
	logger coreport.Logger
}

// NewAdvancedIndexManager creates a new advanced index manager
func NewAdvancedIndexManager(db *gorm.DB, logger coreport.Logger) *AdvancedIndexManager {
	return &AdvancedIndexManager{
		db:     db,
		logger: logger,
	}
}

// CreateAdvancedIndexes creates advanced PostgreSQL indexes for better performance
func (m *AdvancedIndexManager) CreateAdvancedIndexes() error {
	m.logger.Info("Creating advanced PostgreSQL indexes", nil)

	// Partial unique index on idempotency_key over active rows. Concurrent
	// acquisitions for the same logical operation are arbitrated here: the
	// losing insert fails with a duplicate key violation.
	if err := m.db.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS idx_resource_locks_active_idempotency_key
		ON resource_locks (idempotency_key)
		WHERE status = 'active'
	`).Error; err != nil {
		m.logger.Error("Failed to create partial unique index on idempotency_key", map[string]any{
			"error": err.Error(),
		})
		return err
	}

	// Partial index on active rows per resource for contention checks
	if err := m.db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_resource_locks_active_resource
		ON resource_locks (resource_id, expires_at)
		WHERE status = 'active'
	`).Error; err != nil {
		m.logger.Error("Failed to create active resource partial index", map[string]any{
			"error": err.Error(),
		})
		return err
	}

	// Partial index on active rows per owner for admin force-release
	if err := m.db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_resource_locks_active_owner
		ON resource_locks (owner_id)
		WHERE status = 'active'
	`).Error; err != nil {
		m.logger.Error("Failed to create active owner partial index", map[string]any{
			"error": err.Error(),
		})
		return err
	}

	// Composite index serving queue promotion order and position counting
	if err := m.db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_queue_entries_promotion
		ON resource_queue_entries (resource_id, priority, queued_at)
		WHERE status = 'pending'
	`).Error; err != nil {
		m.logger.Error("Failed to create queue promotion composite index", map[string]any{
			"error": err.Error(),
		})
		return err
	}

	// Create BRIN index for created_at (more efficient for temporal data)
	if err := m.db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_resource_locks_created_at_brin
		ON resource_locks USING BRIN (created_at)
		WITH (pages_per_range = 32)
	`).Error; err != nil {
		m.logger.Error("Failed to create BRIN index on created_at", map[string]any{
			"error": err.Error(),
		})
		return err
	}

	// Create index on operation_type for admin filtering
	if err := m.db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_resource_locks_operation_type
		ON resource_locks (operation_type)
	`).Error; err != nil {
		m.logger.Error("Failed to create index on operation_type", map[string]any{
			"error": err.Error(),
		})
		return err
	}

	m.logger.Info("Advanced PostgreSQL indexes created successfully", nil)
	return nil
}

// CreatePerformanceTweaks applies PostgreSQL performance tweaks
func (m *AdvancedIndexManager) CreatePerformanceTweaks() error {
	m.logger.Info("Applying PostgreSQL performance tweaks", nil)

	// Set fillfactor for the lock table to reduce page splits under the
	// acquire/release update pattern
	if err := m.db.Exec(`
		ALTER TABLE resource_locks SET (fillfactor = 90)
	`).Error; err != nil {
		m.logger.Warn("Failed to set fillfactor for resource_locks table", map[string]any{
			"error": err.Error(),
		})
		// Don't return error as this is not critical
	}

	// Set statistics target for better query planning
	if err := m.db.Exec(`
		ALTER TABLE resource_locks ALTER COLUMN resource_id SET STATISTICS 1000
	`).Error; err != nil {
		m.logger.Warn("Failed to set statistics target for resource_id", map[string]any{
			"error": err.Error(),
		})
		// Don't return error as this is not critical
	}

	m.logger.Info("PostgreSQL performance tweaks applied successfully", nil)
	return nil
}
