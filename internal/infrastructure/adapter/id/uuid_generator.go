package id

import (
	"github.com/amirhossein-jamali/trade-lock-manager/internal/domain/port/core"
	"github.com/google/uuid"
)

// UUIDGenerator implements the IDGenerator interface with random UUIDs
type UUIDGenerator struct{}

// NewUUIDGenerator creates a new UUID-based ID generator
func NewUUIDGenerator() core.IDGenerator {
	return &UUIDGenerator{}
}

// NewID returns a new random identifier
func (g *UUIDGenerator) NewID() string {
	return uuid.NewString()
}
