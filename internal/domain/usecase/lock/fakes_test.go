package lock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/amirhossein-jamali/trade-lock-manager/internal/domain/entity"
	errs "github.com/amirhossein-jamali/trade-lock-manager/internal/domain/error"
	coreport "github.com/amirhossein-jamali/trade-lock-manager/internal/domain/port/core"
	"github.com/amirhossein-jamali/trade-lock-manager/internal/domain/port/persistence"
)

// manualClock is a TimeProvider whose time only moves when a test advances it
type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func newManualClock() *manualClock {
	return &manualClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *manualClock) Since(t time.Time) time.Duration { return c.Now().Sub(t) }
func (c *manualClock) Until(t time.Time) time.Duration { return t.Sub(c.Now()) }

// WithTimeout never fires on its own: deadlines in tests are decided by
// advancing the clock, not by the wall clock racing the test body.
func (c *manualClock) WithTimeout(ctx context.Context, _ time.Duration) (context.Context, context.CancelFunc) {
	return context.WithCancel(ctx)
}

func (c *manualClock) WithDeadline(ctx context.Context, _ time.Time) (context.Context, context.CancelFunc) {
	return context.WithCancel(ctx)
}

// seqIDGenerator hands out deterministic ids so tests can assert on them
type seqIDGenerator struct {
	mu sync.Mutex
	n  int
}

func (g *seqIDGenerator) NewID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("id-%04d", g.n)
}

// noopLogger discards everything; domain tests assert on state, not logs
type noopLogger struct{}

func (noopLogger) SetLevel(coreport.LogLevel)   {}
func (noopLogger) GetLevel() coreport.LogLevel  { return coreport.LogLevelError }
func (noopLogger) Debug(string, map[string]any) {}
func (noopLogger) Info(string, map[string]any)  {}
func (noopLogger) Warn(string, map[string]any)  {}
func (noopLogger) Error(string, map[string]any) {}
func (noopLogger) Flush() error                 { return nil }

// memoryStore is the shared backing state of the fake repositories. It
// enforces the same constraint the real store does: at most one lock row
// whose status is active may hold a given idempotency key.
type memoryStore struct {
	mu      sync.Mutex
	locks   []*entity.LockRecord
	entries []*entity.QueueEntry

	// beforeLockInsert runs once inside the next lock insert, before the
	// uniqueness check. Tests use it to emulate a concurrent transaction
	// committing a winner between the conflict check and the insert.
	beforeLockInsert func() *entity.LockRecord
}

func newMemoryStore() *memoryStore {
	return &memoryStore{}
}

// seedLock inserts a record directly, bypassing the repository
func (s *memoryStore) seedLock(record *entity.LockRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *record
	s.locks = append(s.locks, &cp)
}

// seedEntry inserts a queue entry directly, bypassing the repository
func (s *memoryStore) seedEntry(entry *entity.QueueEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *entry
	s.entries = append(s.entries, &cp)
}

// lockByID returns a copy of the stored record, or nil
func (s *memoryStore) lockByID(lockID string) *entity.LockRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range s.locks {
		if l.LockID == lockID {
			cp := *l
			return &cp
		}
	}
	return nil
}

// entryByID returns a copy of the stored queue entry, or nil
func (s *memoryStore) entryByID(queueID string) *entity.QueueEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entries {
		if e.QueueID == queueID {
			cp := *e
			return &cp
		}
	}
	return nil
}

func (s *memoryStore) lockCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.locks)
}

func (s *memoryStore) entryCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// fakeLockRepo implements persistence.LockRepository over memoryStore
type fakeLockRepo struct {
	store *memoryStore
}

func (r *fakeLockRepo) Create(_ context.Context, record *entity.LockRecord) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if hook := s.beforeLockInsert; hook != nil {
		s.beforeLockInsert = nil
		if winner := hook(); winner != nil {
			cp := *winner
			s.locks = append(s.locks, &cp)
		}
	}

	for _, l := range s.locks {
		if l.IdempotencyKey == record.IdempotencyKey && l.Status == entity.LockStatusActive {
			return errs.ErrDuplicateIdempotencyKey
		}
	}
	cp := *record
	s.locks = append(s.locks, &cp)
	return nil
}

func (r *fakeLockRepo) GetByLockID(_ context.Context, lockID string) (*entity.LockRecord, error) {
	if rec := r.store.lockByID(lockID); rec != nil {
		return rec, nil
	}
	return nil, errs.ErrLockNotFound
}

func (r *fakeLockRepo) GetByIdempotencyKey(_ context.Context, key string) (*entity.LockRecord, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.locks) - 1; i >= 0; i-- {
		if s.locks[i].IdempotencyKey == key {
			cp := *s.locks[i]
			return &cp, nil
		}
	}
	return nil, errs.ErrLockNotFound
}

func (r *fakeLockRepo) FindActiveByResource(_ context.Context, resourceID string, now time.Time) ([]*entity.LockRecord, error) {
	return r.findActive(func(l *entity.LockRecord) bool { return l.ResourceID == resourceID }, now), nil
}

func (r *fakeLockRepo) FindActiveByOwner(_ context.Context, ownerID string, now time.Time) ([]*entity.LockRecord, error) {
	return r.findActive(func(l *entity.LockRecord) bool { return l.OwnerID == ownerID }, now), nil
}

func (r *fakeLockRepo) FindActive(_ context.Context, now time.Time) ([]*entity.LockRecord, error) {
	return r.findActive(func(*entity.LockRecord) bool { return true }, now), nil
}

func (r *fakeLockRepo) findActive(match func(*entity.LockRecord) bool, now time.Time) []*entity.LockRecord {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*entity.LockRecord
	for _, l := range s.locks {
		if match(l) && l.Status == entity.LockStatusActive && l.ExpiresAt.After(now) {
			cp := *l
			out = append(out, &cp)
		}
	}
	return out
}

func (r *fakeLockRepo) Release(_ context.Context, lockID string, status entity.LockStatus, result json.RawMessage, errorMessage string, releasedAt time.Time) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range s.locks {
		if l.LockID != lockID {
			continue
		}
		if l.Status != entity.LockStatusActive {
			return errs.ErrLockNotActive
		}
		l.Status = status
		l.Result = append([]byte(nil), result...)
		l.ErrorMessage = errorMessage
		at := releasedAt
		l.ReleasedAt = &at
		return nil
	}
	return errs.ErrLockNotFound
}

func (r *fakeLockRepo) ExpireStale(_ context.Context, now time.Time) (int64, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, l := range s.locks {
		if l.Status == entity.LockStatusActive && !l.ExpiresAt.After(now) {
			l.Status = entity.LockStatusExpired
			n++
		}
	}
	return n, nil
}

func (r *fakeLockRepo) DeleteTerminalBefore(_ context.Context, cutoff time.Time) (int64, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	var kept []*entity.LockRecord
	var n int64
	for _, l := range s.locks {
		if l.Status.IsTerminal() && l.AcquiredAt.Before(cutoff) {
			n++
			continue
		}
		kept = append(kept, l)
	}
	s.locks = kept
	return n, nil
}

// fakeQueueRepo implements persistence.QueueRepository over memoryStore
type fakeQueueRepo struct {
	store *memoryStore
}

func (r *fakeQueueRepo) Create(_ context.Context, entry *entity.QueueEntry) error {
	r.store.seedEntry(entry)
	return nil
}

func (r *fakeQueueRepo) GetByIdempotencyKey(_ context.Context, key string) (*entity.QueueEntry, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.entries) - 1; i >= 0; i-- {
		if s.entries[i].IdempotencyKey == key {
			cp := *s.entries[i]
			return &cp, nil
		}
	}
	return nil, errs.ErrQueueEntryNotFound
}

func (r *fakeQueueRepo) CountPending(_ context.Context, resourceID string) (int64, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, e := range s.entries {
		if e.ResourceID == resourceID && e.Status == entity.QueueStatusPending {
			n++
		}
	}
	return n, nil
}

func (r *fakeQueueRepo) CountPendingAhead(_ context.Context, entry *entity.QueueEntry) (int64, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, e := range s.entries {
		if e.ResourceID == entry.ResourceID && e.Status == entity.QueueStatusPending && e.OrderedBefore(entry) {
			n++
		}
	}
	return n, nil
}

func (r *fakeQueueRepo) NextPending(_ context.Context, resourceID string) (*entity.QueueEntry, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	var head *entity.QueueEntry
	for _, e := range s.entries {
		if e.ResourceID != resourceID || e.Status != entity.QueueStatusPending {
			continue
		}
		if head == nil || e.OrderedBefore(head) {
			head = e
		}
	}
	if head == nil {
		return nil, errs.ErrQueueEntryNotFound
	}
	cp := *head
	return &cp, nil
}

func (r *fakeQueueRepo) MarkProcessing(_ context.Context, queueID, lockID string, startedAt time.Time) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entries {
		if e.QueueID == queueID && e.Status == entity.QueueStatusPending {
			e.Status = entity.QueueStatusProcessing
			e.LockID = lockID
			at := startedAt
			e.ProcessingStartedAt = &at
			return nil
		}
	}
	return errs.ErrQueueEntryNotFound
}

func (r *fakeQueueRepo) MarkStatus(_ context.Context, queueID string, status entity.QueueStatus) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entries {
		if e.QueueID == queueID {
			e.Status = status
			return nil
		}
	}
	return errs.ErrQueueEntryNotFound
}

func (r *fakeQueueRepo) ResourcesWithPending(_ context.Context) ([]string, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := map[string]bool{}
	var out []string
	for _, e := range s.entries {
		if e.Status == entity.QueueStatusPending && !seen[e.ResourceID] {
			seen[e.ResourceID] = true
			out = append(out, e.ResourceID)
		}
	}
	return out, nil
}

func (r *fakeQueueRepo) DeleteTerminalBefore(_ context.Context, cutoff time.Time) (int64, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	var kept []*entity.QueueEntry
	var n int64
	for _, e := range s.entries {
		if e.Status.IsTerminal() && e.QueuedAt.Before(cutoff) {
			n++
			continue
		}
		kept = append(kept, e)
	}
	s.entries = kept
	return n, nil
}

type txMarker struct{}

// fakeUnitOfWork serializes transactions with one mutex, emulating the
// serializable isolation the real store provides. The acquire path never
// mutates state before its terminal commit except through Create, which the
// uniqueness check rejects atomically, so rollback only ends the critical
// section.
type fakeUnitOfWork struct {
	store *memoryStore
	txMu  sync.Mutex
}

func newFakeUnitOfWork(store *memoryStore) *fakeUnitOfWork {
	return &fakeUnitOfWork{store: store}
}

func (u *fakeUnitOfWork) Begin(ctx context.Context) (context.Context, error) {
	u.txMu.Lock()
	return context.WithValue(ctx, txMarker{}, true), nil
}

func (u *fakeUnitOfWork) Commit(ctx context.Context) error {
	if ctx.Value(txMarker{}) == nil {
		return errors.New("no transaction in context")
	}
	u.txMu.Unlock()
	return nil
}

func (u *fakeUnitOfWork) Rollback(ctx context.Context) error {
	if ctx.Value(txMarker{}) == nil {
		return errors.New("no transaction in context")
	}
	u.txMu.Unlock()
	return nil
}

func (u *fakeUnitOfWork) GetLockRepository(context.Context) persistence.LockRepository {
	return &fakeLockRepo{store: u.store}
}

func (u *fakeUnitOfWork) GetQueueRepository(context.Context) persistence.QueueRepository {
	return &fakeQueueRepo{store: u.store}
}

// testHarness bundles a manager over the fake store with its clock and ids
type testHarness struct {
	manager *Manager
	store   *memoryStore
	clock   *manualClock
	ids     *seqIDGenerator
}

func newTestHarness() *testHarness {
	store := newMemoryStore()
	clock := newManualClock()
	ids := &seqIDGenerator{}
	manager := NewManager(newFakeUnitOfWork(store), ids, clock, noopLogger{}, 0, 0)
	return &testHarness{manager: manager, store: store, clock: clock, ids: ids}
}

// limitBuy builds a valid trade payload for the given quantity and price
func limitBuy(symbol, quantity, price string) *entity.TradePayload {
	return &entity.TradePayload{
		Symbol:    symbol,
		Side:      "buy",
		OrderType: "limit",
		Quantity:  quantity,
		Price:     price,
	}
}

// acquireReq builds a default acquire request for tests
func acquireReq(resourceID, ownerID string, payload entity.Payload) AcquireRequest {
	return AcquireRequest{
		ResourceID: resourceID,
		OwnerID:    ownerID,
		OwnerType:  entity.OwnerTypeUser,
		Payload:    payload,
	}
}
