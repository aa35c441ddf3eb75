// Package dedupe remembers client request ids so a repeated choice is applied
// at most once.
package dedupe

import (
	"context"
	"sync"
	"sync/atomic"
)

// Deduper records seen request ids.
type Deduper interface {
	// SeenAndRecord atomically checks if id was seen and records it if not.
	// Returns true if id was already seen, false if it was newly recorded.
	SeenAndRecord(ctx context.Context, id string) bool

	// Forget removes an id so the request can be retried. Used when a
	// recorded request failed before taking effect.
	Forget(ctx context.Context, id string)

	Size() int64
}

type slot struct {
	id   string
	live bool
}

// ringDeduper keeps at most maxSize ids in a ring and evicts the oldest
// first. With maxSize <= 0 it is an unbounded set.
type ringDeduper struct {
	mu      sync.Mutex
	seen    map[string]int // id -> ring slot, -1 when unbounded
	ring    []slot
	next    int
	maxSize int
	size    atomic.Int64
}

// NewInMemoryDeduper creates a new in-memory deduper with configuration options.
func NewInMemoryDeduper(opts ...Option) Deduper {
	d := &ringDeduper{
		maxSize: 50000,
	}
	for _, opt := range opts {
		opt(d)
	}

	d.seen = make(map[string]int)
	if d.maxSize > 0 {
		d.ring = make([]slot, d.maxSize)
	}
	return d
}

// SeenAndRecord implements Deduper.
func (d *ringDeduper) SeenAndRecord(_ context.Context, id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.seen[id]; ok {
		return true
	}

	if d.maxSize <= 0 {
		d.seen[id] = -1
		d.size.Add(1)
		return false
	}

	old := d.ring[d.next]
	if old.live {
		delete(d.seen, old.id)
		d.size.Add(-1)
	}
	d.ring[d.next] = slot{id: id, live: true}
	d.seen[id] = d.next
	d.next = (d.next + 1) % d.maxSize
	d.size.Add(1)
	return false
}

// Forget implements Deduper.
func (d *ringDeduper) Forget(_ context.Context, id string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	i, ok := d.seen[id]
	if !ok {
		return
	}
	delete(d.seen, id)
	if i >= 0 {
		d.ring[i] = slot{}
	}
	d.size.Add(-1)
}

// Size returns the number of ids currently remembered.
func (d *ringDeduper) Size() int64 {
	return d.size.Load()
}
