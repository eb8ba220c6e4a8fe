package entity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestQueueStatusIsTerminal(t *testing.T) {
	assert.False(t, QueueStatusPending.IsTerminal())
	assert.False(t, QueueStatusProcessing.IsTerminal())
	assert.True(t, QueueStatusCompleted.IsTerminal())
	assert.True(t, QueueStatusFailed.IsTerminal())
	assert.True(t, QueueStatusCancelled.IsTerminal())
}

func TestQueueEntryOrderedBefore(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	urgent := &QueueEntry{Priority: 1, QueuedAt: base.Add(time.Minute)}
	early := &QueueEntry{Priority: 5, QueuedAt: base}
	late := &QueueEntry{Priority: 5, QueuedAt: base.Add(time.Second)}

	// Priority dominates arrival time.
	assert.True(t, urgent.OrderedBefore(early))
	assert.False(t, early.OrderedBefore(urgent))

	// FIFO within a priority.
	assert.True(t, early.OrderedBefore(late))
	assert.False(t, late.OrderedBefore(early))

	// An entry never orders before itself.
	assert.False(t, early.OrderedBefore(early))
}
