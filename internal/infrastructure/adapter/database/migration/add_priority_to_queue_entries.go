package migration

import (
	"context"

	coreport "github.com/amirhossein-jamali/trade-lock-manager/internal/domain/port/core"
	"gorm.io/gorm"
)

// AddPriorityToQueueEntries is a migration that adds the priority column to
// resource_queue_entries and backfills existing rows with the default level
type AddPriorityToQueueEntries struct {
	db     *gorm.DB
	logger coreport.Logger
}

// NewAddPriorityToQueueEntries creates a new migration instance
func NewAddPriorityToQueueEntries(db *gorm.DB, logger coreport.Logger) *AddPriorityToQueueEntries {
	return &AddPriorityToQueueEntries{
		db:     db,
		logger: logger,
	}
}

// Run executes the migration
func (m *AddPriorityToQueueEntries) Run(ctx context.Context) error {
	m.logger.Info("Adding priority column to resource_queue_entries table", nil)

	// Check if the column already exists
	var hasPriority bool
	if err := m.checkColumnExists(&hasPriority); err != nil {
		return err
	}

	// Add priority column if it doesn't exist. Rows written before the
	// column existed queue at the default level.
	if !hasPriority {
		if err := m.db.Exec(`ALTER TABLE resource_queue_entries ADD COLUMN priority INTEGER NOT NULL DEFAULT 5`).Error; err != nil {
			m.logger.Error("Failed to add priority column", map[string]any{"error": err.Error()})
			return err
		}
	}

	m.logger.Info("Successfully added priority column to resource_queue_entries table", nil)
	return nil
}

// checkColumnExists checks if the column already exists in the table
func (m *AddPriorityToQueueEntries) checkColumnExists(hasPriority *bool) error {
	// For PostgreSQL
	var columns []struct {
		ColumnName string `gorm:"column:column_name"`
	}

	err := m.db.Raw(`
		SELECT column_name
		FROM information_schema.columns
		WHERE table_name = 'resource_queue_entries' AND column_name = 'priority'
	`).Scan(&columns).Error

	if err != nil {
		m.logger.Error("Failed to check column existence", map[string]any{"error": err.Error()})
		return err
	}

	for _, column := range columns {
		if column.ColumnName == "priority" {
			*hasPriority = true
		}
	}

	return nil
}
