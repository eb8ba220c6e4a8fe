package core

import (
	"context"
	"time"
)

// TimeProvider abstracts clock access for the domain. Lock expiry is
// decided by comparing against this clock, so tests substitute a manual
// implementation to drive deadlines deterministically.
type TimeProvider interface {
	// Now returns the current time
	Now() time.Time
	// Since returns the time elapsed since t
	Since(t time.Time) time.Duration
	// Until returns the duration until t
	Until(t time.Time) time.Duration
	// WithTimeout returns a context canceled after the given timeout
	WithTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc)
	// WithDeadline returns a context canceled at the given instant
	WithDeadline(ctx context.Context, deadline time.Time) (context.Context, context.CancelFunc)
}
