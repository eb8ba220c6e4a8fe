package lock

import (
	"context"
	"errors"
	"sync"
	"time"

	coreport "github.com/amirhossein-jamali/trade-lock-manager/internal/domain/port/core"
	"github.com/amirhossein-jamali/trade-lock-manager/internal/domain/port/persistence"
)

const (
	// DefaultReaperInterval is the sweep cadence when none is configured
	DefaultReaperInterval = 5 * time.Minute

	// DefaultRetention is how long terminal records are kept before purge
	DefaultRetention = 24 * time.Hour
)

// Reaper performs eventual bookkeeping on the lock store: it transitions
// timed-out locks to expired, retries stuck queue promotions, and purges
// old terminal records. Correctness never depends on its cadence; the
// acquire and status paths filter on the deadline directly.
//
// Every sweep is an idempotent predicate update, so running reapers from
// multiple instances is safe.
type Reaper struct {
	uow          persistence.UnitOfWork
	manager      *Manager
	timeProvider coreport.TimeProvider
	logger       coreport.Logger

	interval  time.Duration
	retention time.Duration

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewReaper creates a reaper. Construction has no side effects: the sweep
// loop only runs between Start and Stop, and tests drive RunOnce directly.
func NewReaper(
	uow persistence.UnitOfWork,
	manager *Manager,
	timeProvider coreport.TimeProvider,
	logger coreport.Logger,
	interval time.Duration,
	retention time.Duration,
) *Reaper {
	if interval <= 0 {
		interval = DefaultReaperInterval
	}
	if retention <= 0 {
		retention = DefaultRetention
	}

	return &Reaper{
		uow:          uow,
		manager:      manager,
		timeProvider: timeProvider,
		logger:       logger,
		interval:     interval,
		retention:    retention,
	}
}

// Start launches the periodic sweep loop
func (r *Reaper) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return errors.New("reaper is already running")
	}
	r.running = true
	r.stopCh = make(chan struct{})
	r.doneCh = make(chan struct{})

	r.logger.Info("Starting expiry reaper", map[string]any{
		"interval":  r.interval.String(),
		"retention": r.retention.String(),
	})

	go r.loop(r.stopCh, r.doneCh)
	return nil
}

// Stop halts the sweep loop and waits for an in-flight sweep to finish
func (r *Reaper) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	stopCh, doneCh := r.stopCh, r.doneCh
	r.mu.Unlock()

	close(stopCh)
	<-doneCh
	r.logger.Info("Expiry reaper stopped", nil)
}

func (r *Reaper) loop(stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := r.RunOnce(context.Background()); err != nil {
				r.logger.Error("Reaper sweep failed", map[string]any{
					"error": err.Error(),
				})
			}
		case <-stopCh:
			return
		}
	}
}

// RunOnce performs a single sweep: expire stale locks, retry promotion for
// resources with pending waiters, then purge terminal records past the
// retention window. Exposed so tests and operators can run the reaper
// deterministically.
func (r *Reaper) RunOnce(ctx context.Context) error {
	now := r.timeProvider.Now()
	lockRepo := r.uow.GetLockRepository(ctx)
	queueRepo := r.uow.GetQueueRepository(ctx)

	var firstErr error

	expired, err := lockRepo.ExpireStale(ctx, now)
	if err != nil {
		r.logger.Error("Failed to expire stale locks", map[string]any{"error": err.Error()})
		firstErr = err
	} else if expired > 0 {
		r.logger.Info("Expired stale locks", map[string]any{"count": expired})
	}

	resources, err := queueRepo.ResourcesWithPending(ctx)
	if err != nil {
		r.logger.Error("Failed to list resources with pending waiters", map[string]any{"error": err.Error()})
		if firstErr == nil {
			firstErr = err
		}
	} else {
		for _, resourceID := range resources {
			if err := r.manager.ProcessQueueForResource(ctx, resourceID); err != nil {
				r.logger.Warn("Promotion retry failed during sweep", map[string]any{
					"resource_id": resourceID,
					"error":       err.Error(),
				})
				if firstErr == nil {
					firstErr = err
				}
			}
		}
	}

	cutoff := now.Add(-r.retention)

	locksPurged, err := lockRepo.DeleteTerminalBefore(ctx, cutoff)
	if err != nil {
		r.logger.Error("Failed to purge terminal lock records", map[string]any{"error": err.Error()})
		if firstErr == nil {
			firstErr = err
		}
	}

	entriesPurged, err := queueRepo.DeleteTerminalBefore(ctx, cutoff)
	if err != nil {
		r.logger.Error("Failed to purge terminal queue entries", map[string]any{"error": err.Error()})
		if firstErr == nil {
			firstErr = err
		}
	}

	if locksPurged > 0 || entriesPurged > 0 {
		r.logger.Info("Purged aged terminal records", map[string]any{
			"locks":         locksPurged,
			"queue_entries": entriesPurged,
			"cutoff":        cutoff,
		})
	}
	return firstErr
}
