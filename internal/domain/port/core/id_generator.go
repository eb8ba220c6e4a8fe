package core

// IDGenerator produces opaque unique tokens for lock and queue identities.
// Implementations must be safe for concurrent use.
type IDGenerator interface {
	// NewID returns a new globally unique identifier
	NewID() string
}
