package lock

import (
	"time"

	"github.com/amirhossein-jamali/trade-lock-manager/internal/domain/entity"
	coreport "github.com/amirhossein-jamali/trade-lock-manager/internal/domain/port/core"
	"github.com/amirhossein-jamali/trade-lock-manager/internal/domain/port/persistence"
)

// Config bundles the tunables of the lock service
type Config struct {
	// DefaultTimeout bounds lock activity when a request declares none
	DefaultTimeout time.Duration
	// DefaultMaxRetries is stored on records that declare no retry bound
	DefaultMaxRetries int
	// ReaperInterval is the background sweep cadence
	ReaperInterval time.Duration
	// Retention is how long terminal records survive before purge
	Retention time.Duration
}

// DefaultConfig returns the standard service tunables
func DefaultConfig() Config {
	return Config{
		DefaultTimeout:    DefaultLockTimeout,
		DefaultMaxRetries: DefaultMaxRetries,
		ReaperInterval:    DefaultReaperInterval,
		Retention:         DefaultRetention,
	}
}

// Service is the lock subsystem facade handed to callers. It is an explicit
// object constructed once at process startup and injected wherever needed;
// there is no ambient global instance.
type Service struct {
	*Manager
	reaper *Reaper
	logger coreport.Logger
}

// NewService wires the lock manager and its reaper over one lock store
func NewService(
	uow persistence.UnitOfWork,
	ids coreport.IDGenerator,
	timeProvider coreport.TimeProvider,
	logger coreport.Logger,
	cfg Config,
) *Service {
	manager := NewManager(uow, ids, timeProvider, logger, cfg.DefaultTimeout, cfg.DefaultMaxRetries)
	reaper := NewReaper(uow, manager, timeProvider, logger, cfg.ReaperInterval, cfg.Retention)

	return &Service{
		Manager: manager,
		reaper:  reaper,
		logger:  logger,
	}
}

// Start launches the background reaper. The host process owns the lifecycle.
func (s *Service) Start() error {
	return s.reaper.Start()
}

// Stop halts the background reaper
func (s *Service) Stop() {
	s.reaper.Stop()
}

// Reaper exposes the reaper for deterministic sweeps in tests and tooling
func (s *Service) Reaper() *Reaper {
	return s.reaper
}

// GenerateIdempotencyKey derives the deterministic fingerprint of a logical
// operation, for callers that want to precompute or log it
func (s *Service) GenerateIdempotencyKey(resourceID, ownerID string, payload entity.Payload) string {
	return s.Manager.deriver.DeriveKey(resourceID, ownerID, payload)
}
