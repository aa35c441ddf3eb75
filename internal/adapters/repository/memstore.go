package repository

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/marquee/tierlist/internal/domain/model"
	"github.com/marquee/tierlist/internal/domain/reclassify"
	"github.com/marquee/tierlist/internal/domain/tier"
	"github.com/marquee/tierlist/pkg/metrics"
)

// Snapshot is an immutable summary of the store, rebuilt periodically so
// stats readers never take the store lock.
type Snapshot struct {
	Users       int
	Items       int
	ItemsByTier map[tier.Tier]int
	TakenAt     time.Time
}

// collection is one user's tiers. Each slice is ordered by rank and every
// item's Rank equals its index.
type collection struct {
	tiers [tier.D + 1][]model.Item
	where map[string]tier.Tier
}

func newCollection() *collection {
	return &collection{where: make(map[string]tier.Tier)}
}

func (c *collection) size() int {
	return len(c.where)
}

func (c *collection) renumber(t tier.Tier) {
	for i := range c.tiers[t] {
		c.tiers[t][i].Rank = i
	}
}

func (c *collection) insert(it model.Item, t tier.Tier, rank int) model.Item {
	rank = max(0, min(rank, len(c.tiers[t])))
	it.Tier = t
	c.tiers[t] = slices.Insert(c.tiers[t], rank, it)
	c.where[it.ID] = t
	c.renumber(t)
	return c.tiers[t][rank]
}

func (c *collection) remove(id string) (model.Item, bool) {
	t, ok := c.where[id]
	if !ok {
		return model.Item{}, false
	}
	idx := slices.IndexFunc(c.tiers[t], func(it model.Item) bool { return it.ID == id })
	it := c.tiers[t][idx]
	c.tiers[t] = slices.Delete(c.tiers[t], idx, idx+1)
	delete(c.where, id)
	c.renumber(t)
	return it, true
}

func (c *collection) items() []model.Item {
	out := make([]model.Item, 0, c.size())
	for _, t := range tier.All() {
		out = append(out, c.tiers[t]...)
	}
	return out
}

// MemStore is an in-memory Store guarded by a single RWMutex.
type MemStore struct {
	mu               sync.RWMutex
	users            map[string]*collection
	snapshotInterval time.Duration

	snapshot atomic.Pointer[Snapshot]

	wg       sync.WaitGroup
	stopChan chan struct{}
	stopOnce sync.Once
}

var _ Store = (*MemStore)(nil)

// NewMemStore constructs a store and starts the snapshot goroutine, which
// runs until ctx is done or Close is called.
func NewMemStore(ctx context.Context, opts ...Option) *MemStore {
	s := &MemStore{
		users:            make(map[string]*collection),
		snapshotInterval: 5 * time.Second,
		stopChan:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.publishSnapshot()
	s.startPeriodicSnapshots(ctx)
	return s
}

func (s *MemStore) startPeriodicSnapshots(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.snapshotInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopChan:
				return
			case <-ticker.C:
				s.publishSnapshot()
			}
		}
	}()
}

func (s *MemStore) publishSnapshot() {
	snap := &Snapshot{ItemsByTier: make(map[tier.Tier]int, len(tier.All())), TakenAt: time.Now()}

	s.mu.RLock()
	for _, c := range s.users {
		if c.size() == 0 {
			continue
		}
		snap.Users++
		snap.Items += c.size()
		for _, t := range tier.All() {
			snap.ItemsByTier[t] += len(c.tiers[t])
		}
	}
	s.mu.RUnlock()

	s.snapshot.Store(snap)
	metrics.RecordRepositorySnapshot(snap.Items)
	metrics.UpdateRankedUsers(snap.Users)
}

// Stats returns the latest snapshot.
func (s *MemStore) Stats() Snapshot {
	return *s.snapshot.Load()
}

// Refresh rebuilds the snapshot immediately.
func (s *MemStore) Refresh() {
	s.publishSnapshot()
}

// Close stops the snapshot goroutine.
func (s *MemStore) Close() error {
	s.stopOnce.Do(func() { close(s.stopChan) })
	s.wg.Wait()
	return nil
}

func observe(op string, start time.Time) {
	metrics.RecordRepositoryOp(op, float64(time.Since(start).Microseconds())/1000)
}

// Items implements Store.
func (s *MemStore) Items(_ context.Context, userID string) ([]model.Item, error) {
	defer observe("items", time.Now())

	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.users[userID]
	if !ok {
		return []model.Item{}, nil
	}
	return c.items(), nil
}

// Tier implements Store.
func (s *MemStore) Tier(_ context.Context, userID string, t tier.Tier) ([]model.Item, error) {
	defer observe("tier", time.Now())
	if !t.Valid() {
		return nil, fmt.Errorf("%w: %d", tier.ErrUnknownTier, int(t))
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.users[userID]
	if !ok {
		return []model.Item{}, nil
	}
	return slices.Clone(c.tiers[t]), nil
}

// Get implements Store.
func (s *MemStore) Get(_ context.Context, userID, itemID string) (model.Item, error) {
	defer observe("get", time.Now())

	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.users[userID]
	if !ok {
		return model.Item{}, fmt.Errorf("%w: %s/%s", ErrNotFound, userID, itemID)
	}
	t, ok := c.where[itemID]
	if !ok {
		return model.Item{}, fmt.Errorf("%w: %s/%s", ErrNotFound, userID, itemID)
	}
	for _, it := range c.tiers[t] {
		if it.ID == itemID {
			return it, nil
		}
	}
	return model.Item{}, fmt.Errorf("%w: %s/%s", ErrNotFound, userID, itemID)
}

// Insert implements Store.
func (s *MemStore) Insert(_ context.Context, userID string, item model.Item, t tier.Tier, rank int) (model.Item, error) {
	defer observe("insert", time.Now())
	if userID == "" || item.ID == "" {
		return model.Item{}, ErrInvalidItem
	}
	if !t.Valid() {
		return model.Item{}, fmt.Errorf("%w: %d", tier.ErrUnknownTier, int(t))
	}
	item.Genres = slices.Clone(item.Genres)

	s.mu.Lock()
	c, ok := s.users[userID]
	if !ok {
		c = newCollection()
		s.users[userID] = c
	}
	if _, dup := c.where[item.ID]; dup {
		s.mu.Unlock()
		metrics.RecordErrorByComponent("repository", "duplicate")
		return model.Item{}, fmt.Errorf("%w: %s/%s", ErrDuplicate, userID, item.ID)
	}
	placed := c.insert(item, t, rank)
	s.mu.Unlock()

	metrics.UpdateRankedItems(s.total())
	return placed, nil
}

// Move implements Store.
func (s *MemStore) Move(_ context.Context, userID, itemID string, t tier.Tier, rank int) (model.Item, error) {
	defer observe("move", time.Now())
	if !t.Valid() {
		return model.Item{}, fmt.Errorf("%w: %d", tier.ErrUnknownTier, int(t))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.users[userID]
	if !ok {
		return model.Item{}, fmt.Errorf("%w: %s/%s", ErrNotFound, userID, itemID)
	}
	it, ok := c.remove(itemID)
	if !ok {
		metrics.RecordErrorByComponent("repository", "not_found")
		return model.Item{}, fmt.Errorf("%w: %s/%s", ErrNotFound, userID, itemID)
	}
	return c.insert(it, t, rank), nil
}

// Remove implements Store.
func (s *MemStore) Remove(_ context.Context, userID, itemID string) error {
	defer observe("remove", time.Now())

	s.mu.Lock()
	c, ok := s.users[userID]
	if ok {
		_, ok = c.remove(itemID)
	}
	if ok && c.size() == 0 {
		delete(s.users, userID)
	}
	s.mu.Unlock()

	if !ok {
		metrics.RecordErrorByComponent("repository", "not_found")
		return fmt.Errorf("%w: %s/%s", ErrNotFound, userID, itemID)
	}
	metrics.UpdateRankedItems(s.total())
	return nil
}

// Apply implements Store. Changes whose From no longer matches the stored
// tier were computed from a stale snapshot and are dropped.
func (s *MemStore) Apply(_ context.Context, userID string, changes []reclassify.Change) ([]reclassify.Change, error) {
	defer observe("apply", time.Now())

	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.users[userID]
	if !ok || len(changes) == 0 {
		return nil, nil
	}

	var live []reclassify.Change
	for _, ch := range changes {
		if t, ok := c.where[ch.ID]; ok && t == ch.From && ch.To.Valid() && ch.To != ch.From {
			live = append(live, ch)
		}
	}
	if len(live) == 0 {
		return nil, nil
	}

	next := newCollection()
	for _, it := range reclassify.Apply(c.items(), live) {
		next.tiers[it.Tier] = append(next.tiers[it.Tier], it)
		next.where[it.ID] = it.Tier
	}
	s.users[userID] = next
	return live, nil
}

// Count implements Store.
func (s *MemStore) Count(_ context.Context, userID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if c, ok := s.users[userID]; ok {
		return c.size()
	}
	return 0
}

// Users implements Store.
func (s *MemStore) Users(_ context.Context) []string {
	s.mu.RLock()
	out := make([]string, 0, len(s.users))
	for id, c := range s.users {
		if c.size() > 0 {
			out = append(out, id)
		}
	}
	s.mu.RUnlock()
	sort.Strings(out)
	return out
}

func (s *MemStore) total() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, c := range s.users {
		n += c.size()
	}
	return n
}
