// Package sessioncache is a bounded write-behind cache over the durable
// session store. Reads hit memory, appends become visible immediately and
// are flushed to the store by a background worker pool.
package sessioncache

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/memtrail/memtrail/pkg/conversation"
	"github.com/memtrail/memtrail/pkg/logger"
	"github.com/memtrail/memtrail/pkg/sessionstore"
)

// Metrics receives cache and flusher events. The prometheus manager
// implements this; tests use the nop.
type Metrics interface {
	CacheHit()
	CacheMiss()
	CacheEviction()
	FlushRetry()
	FlushDropped()
}

// NopMetrics discards all events.
type NopMetrics struct{}

func (NopMetrics) CacheHit()      {}
func (NopMetrics) CacheMiss()     {}
func (NopMetrics) CacheEviction() {}
func (NopMetrics) FlushRetry()    {}
func (NopMetrics) FlushDropped()  {}

// Options configures the cache.
type Options struct {
	Capacity     int
	Workers      int
	RetryBudget  int
	RetryBackoff time.Duration
}

// entry is one cached session. The entry mutex guards the session's log
// independently of the cache-wide LRU mutex, so a slow read-through on one
// session never blocks the others.
type entry struct {
	sessionID string
	elem      *list.Element

	mu     sync.Mutex
	turns  []conversation.Turn
	loaded bool
}

// Cache is a bounded LRU of session logs with write-behind persistence.
// Evicting a session drops only its cached log; writes still queued for that
// session remain queued and a later read-through folds them back in.
type Cache struct {
	store   sessionstore.Store
	flusher *flusher
	log     logger.Logger
	metrics Metrics

	capacity int

	mu      sync.Mutex
	ll      *list.List // front is most recently used
	entries map[string]*entry
}

// New creates a cache over the given durable store.
func New(store sessionstore.Store, opts Options, log logger.Logger, m Metrics) *Cache {
	if m == nil {
		m = NopMetrics{}
	}
	if opts.Capacity <= 0 {
		opts.Capacity = 1
	}
	return &Cache{
		store:    store,
		flusher:  newFlusher(store, opts.Workers, opts.RetryBudget, opts.RetryBackoff, log, m),
		log:      log,
		metrics:  m,
		capacity: opts.Capacity,
		entries:  make(map[string]*entry),
		ll:       list.New(),
	}
}

// Get returns a copy of the session log, loading it from the store on a
// cache miss. Appended turns are visible before they are flushed.
func (c *Cache) Get(ctx context.Context, sessionID string) ([]conversation.Turn, error) {
	e := c.acquire(sessionID)

	e.mu.Lock()
	defer e.mu.Unlock()
	if err := c.ensureLoadedLocked(ctx, e); err != nil {
		return nil, err
	}

	out := make([]conversation.Turn, len(e.turns))
	copy(out, e.turns)
	return out, nil
}

// Append adds turns to the session log and schedules their durable write.
// The turns are readable from the cache immediately.
func (c *Cache) Append(ctx context.Context, sessionID string, turns ...conversation.Turn) error {
	if len(turns) == 0 {
		return nil
	}
	e := c.acquire(sessionID)

	e.mu.Lock()
	defer e.mu.Unlock()
	if err := c.ensureLoadedLocked(ctx, e); err != nil {
		return err
	}

	e.turns = append(e.turns, turns...)
	for _, turn := range turns {
		c.flusher.enqueue(sessionID, turn)
	}
	return nil
}

// Flush blocks until all queued writes have settled or ctx expires. A
// barrier for shutdown and tests, not part of the steady-state write path.
func (c *Cache) Flush(ctx context.Context) error {
	return c.flusher.flushWait(ctx)
}

// Close flushes and stops the worker pool.
func (c *Cache) Close(ctx context.Context) error {
	err := c.Flush(ctx)
	c.flusher.stop()
	return err
}

// Len returns the number of cached sessions.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// acquire returns the session's entry, creating it and evicting the least
// recently used session when the cache is full.
func (c *Cache) acquire(sessionID string) *entry {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[sessionID]; ok {
		c.ll.MoveToFront(e.elem)
		c.metrics.CacheHit()
		return e
	}
	c.metrics.CacheMiss()

	e := &entry{sessionID: sessionID}
	e.elem = c.ll.PushFront(e)
	c.entries[sessionID] = e

	for len(c.entries) > c.capacity {
		oldest := c.ll.Back()
		if oldest == nil || oldest == e.elem {
			break
		}
		victim := oldest.Value.(*entry)
		c.ll.Remove(oldest)
		delete(c.entries, victim.sessionID)
		c.metrics.CacheEviction()
		c.log.Debug("session evicted from cache", "session_id", victim.sessionID)
	}
	return e
}

// ensureLoadedLocked populates the entry from the store, folding in any
// turns still waiting in the flush queue. The queue is snapshotted before
// the load: a queued turn the flusher commits during the load then appears
// in both lists and the dedup drops the copy, whereas snapshotting after
// the load could miss it in both.
func (c *Cache) ensureLoadedLocked(ctx context.Context, e *entry) error {
	if e.loaded {
		return nil
	}
	pending := c.flusher.pending(e.sessionID)
	turns, err := c.store.Load(ctx, e.sessionID)
	if err != nil {
		return err
	}
	seen := make(map[string]struct{}, len(turns))
	for _, turn := range turns {
		seen[turn.ID] = struct{}{}
	}
	for _, turn := range pending {
		if _, dup := seen[turn.ID]; dup {
			continue
		}
		turns = append(turns, turn)
	}
	e.turns = turns
	e.loaded = true
	return nil
}
