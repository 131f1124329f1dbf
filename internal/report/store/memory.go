package store

import (
	"context"
	"fmt"
	"hash/fnv"
	"slices"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"freewalk/internal/geo"
	"freewalk/internal/outbox"
	"freewalk/internal/report/models"
	"freewalk/internal/report/service"
	id "freewalk/pkg/domain"
	"freewalk/pkg/platform/sentinel"
)

// Balances is the user balance book the in-memory store credits on commit.
type Balances interface {
	Balance(ctx context.Context, userID id.UserID) (int64, error)
	Credit(ctx context.Context, userID id.UserID, delta int64) (int64, error)
}

// numLockShards bounds the lock table. Distinct keys may share a shard, which
// only serializes more than needed.
const numLockShards = 256

const defaultLockTimeout = 2 * time.Second

// InMemory is a single-process violation store. Lock keys map onto sharded
// semaphores that honour context deadlines; a unit of work stages its writes
// and applies them under the data mutex only when fn succeeds.
type InMemory struct {
	shards      [numLockShards]chan struct{}
	lockTimeout time.Duration

	mu         sync.RWMutex
	violations map[id.ViolationID]models.Violation
	reports    map[id.ReportID]models.Report

	nextViolation atomic.Int64
	nextReport    atomic.Int64

	balances Balances
	outbox   outbox.Appender
}

type InMemoryOption func(*InMemory)

// WithLockTimeout bounds how long a unit of work waits for its keys.
func WithLockTimeout(d time.Duration) InMemoryOption {
	return func(s *InMemory) {
		if d > 0 {
			s.lockTimeout = d
		}
	}
}

func NewInMemory(balances Balances, events outbox.Appender, opts ...InMemoryOption) *InMemory {
	s := &InMemory{
		lockTimeout: defaultLockTimeout,
		violations:  make(map[id.ViolationID]models.Violation),
		reports:     make(map[id.ReportID]models.Report),
		balances:    balances,
		outbox:      events,
	}
	for i := range s.shards {
		s.shards[i] = make(chan struct{}, 1)
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RunInLock implements service.UnitOfWork.
func (s *InMemory) RunInLock(ctx context.Context, keys []string, fn func(ctx context.Context, tx service.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	tx := &memoryTx{store: s, held: make(map[int]bool), touched: make(map[id.ViolationID]time.Time), credits: make(map[id.UserID]int64)}
	defer tx.release()

	lockCtx, cancel := context.WithTimeout(ctx, s.lockTimeout)
	defer cancel()
	for _, shard := range shardsFor(keys) {
		if err := tx.acquire(ctx, lockCtx, shard); err != nil {
			return err
		}
	}
	tx.lockCtx = lockCtx

	if err := fn(ctx, tx); err != nil {
		return err
	}
	return tx.commit(ctx)
}

// Violation returns a committed violation.
func (s *InMemory) Violation(violationID id.ViolationID) (models.Violation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.violations[violationID]
	return v, ok
}

// Violations returns every committed violation ordered by id.
func (s *InMemory) Violations() []models.Violation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Violation, 0, len(s.violations))
	for _, v := range s.violations {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Reports returns every committed report ordered by id.
func (s *InMemory) Reports() []models.Report {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Report, 0, len(s.reports))
	for _, r := range s.reports {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func shardFor(key string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % numLockShards)
}

// shardsFor maps keys to distinct shards in ascending order so every unit of
// work acquires in the same global order.
func shardsFor(keys []string) []int {
	shards := make([]int, 0, len(keys))
	for _, k := range keys {
		shards = append(shards, shardFor(k))
	}
	slices.Sort(shards)
	return slices.Compact(shards)
}

// memoryTx stages writes until commit.
type memoryTx struct {
	store   *InMemory
	held    map[int]bool
	lockCtx context.Context

	inserted []models.Violation
	touched  map[id.ViolationID]time.Time
	reports  []models.Report
	credits  map[id.UserID]int64
	events   []outbox.Event
}

func (t *memoryTx) acquire(ctx, lockCtx context.Context, shard int) error {
	if t.held[shard] {
		return nil
	}
	select {
	case t.store.shards[shard] <- struct{}{}:
		t.held[shard] = true
		return nil
	case <-lockCtx.Done():
		if err := ctx.Err(); err != nil {
			return err
		}
		return fmt.Errorf("acquire lock shard %d: %w", shard, sentinel.ErrConflict)
	}
}

func (t *memoryTx) release() {
	for shard := range t.held {
		<-t.store.shards[shard]
	}
	t.held = nil
}

// view returns v as this unit of work sees it.
func (t *memoryTx) view(v models.Violation) models.Violation {
	if fresh, ok := t.touched[v.ID]; ok && fresh.After(v.FreshAt) {
		v.FreshAt = fresh
	}
	return v
}

func (t *memoryTx) all() []models.Violation {
	t.store.mu.RLock()
	out := make([]models.Violation, 0, len(t.store.violations)+len(t.inserted))
	for _, v := range t.store.violations {
		out = append(out, t.view(v))
	}
	t.store.mu.RUnlock()
	for _, v := range t.inserted {
		out = append(out, t.view(v))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (t *memoryTx) FindFreshByEntity(_ context.Context, category id.Category, entityRef string, freshSince time.Time) (*models.Violation, error) {
	for _, v := range t.all() {
		if v.Category == category && v.EntityRef == entityRef && !v.FreshAt.Before(freshSince) {
			return &v, nil
		}
	}
	return nil, nil
}

func (t *memoryTx) FindInBox(_ context.Context, category id.Category, box geo.BBox, freshSince *time.Time) ([]models.Violation, error) {
	var out []models.Violation
	for _, v := range t.all() {
		if v.Category != category || !box.Contains(v.Location) {
			continue
		}
		if freshSince != nil && v.FreshAt.Before(*freshSince) {
			continue
		}
		out = append(out, v)
	}
	return out, nil
}

func (t *memoryTx) InsertViolation(_ context.Context, v models.Violation) (id.ViolationID, error) {
	v.ID = id.ViolationID(t.store.nextViolation.Add(1))
	t.inserted = append(t.inserted, v)
	return v.ID, nil
}

func (t *memoryTx) TouchViolation(_ context.Context, violationID id.ViolationID, now time.Time) error {
	exists := slices.ContainsFunc(t.inserted, func(v models.Violation) bool { return v.ID == violationID })
	if !exists {
		t.store.mu.RLock()
		_, exists = t.store.violations[violationID]
		t.store.mu.RUnlock()
	}
	if !exists {
		return fmt.Errorf("touch violation %d: %w", violationID, sentinel.ErrNotFound)
	}
	if prev, ok := t.touched[violationID]; !ok || now.After(prev) {
		t.touched[violationID] = now
	}
	return nil
}

func (t *memoryTx) InsertReport(_ context.Context, r models.Report) (id.ReportID, error) {
	r.ID = id.ReportID(t.store.nextReport.Add(1))
	t.reports = append(t.reports, r)
	return r.ID, nil
}

// AddPoints holds the user's shard until commit so concurrent credits for the
// same user see each other's totals. The user shard is taken after the match
// shards; a hash collision that inverts that order ends in a lock timeout.
func (t *memoryTx) AddPoints(ctx context.Context, userID id.UserID, delta int64) (int64, error) {
	if err := t.acquire(ctx, t.lockCtx, shardFor("user|"+userID.String())); err != nil {
		return 0, err
	}
	balance, err := t.store.balances.Balance(ctx, userID)
	if err != nil {
		return 0, err
	}
	t.credits[userID] += delta
	return balance + t.credits[userID], nil
}

func (t *memoryTx) Append(_ context.Context, e outbox.Event) error {
	t.events = append(t.events, e)
	return nil
}

func (t *memoryTx) commit(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	t.store.mu.Lock()
	for _, v := range t.inserted {
		t.store.violations[v.ID] = t.view(v)
	}
	for violationID, fresh := range t.touched {
		if v, ok := t.store.violations[violationID]; ok && fresh.After(v.FreshAt) {
			v.FreshAt = fresh
			t.store.violations[violationID] = v
		}
	}
	for _, r := range t.reports {
		t.store.reports[r.ID] = r
	}
	t.store.mu.Unlock()

	for userID, delta := range t.credits {
		if _, err := t.store.balances.Credit(ctx, userID, delta); err != nil {
			return fmt.Errorf("credit user %s: %w", userID, err)
		}
	}
	if t.store.outbox != nil {
		for _, e := range t.events {
			if err := t.store.outbox.Append(ctx, e); err != nil {
				return fmt.Errorf("append outbox event: %w", err)
			}
		}
	}
	return nil
}
