package volcano

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/volcano-risk-service/internal/domain"
	"github.com/couchcryptid/volcano-risk-service/internal/observability"
)

const elevatedKey = "elevated"

// Source is the full upstream surface the cache decorates.
type Source interface {
	domain.StatusFeed
	Elevated(ctx context.Context) ([]domain.ElevatedVolcano, error)
}

// CachedFeed wraps a status source with in-memory LRU caches whose entries
// expire after a TTL. Only successful lookups are cached.
type CachedFeed struct {
	inner    Source
	status   *lruCache[domain.AuthoritativeStatus]
	elevated *lruCache[[]domain.ElevatedVolcano]
	metrics  *observability.Metrics
}

// NewCachedFeed creates a cache decorator around a status source.
func NewCachedFeed(inner Source, maxEntries int, ttl time.Duration, clock clockwork.Clock, metrics *observability.Metrics) *CachedFeed {
	return &CachedFeed{
		inner:    inner,
		status:   newLRUCache[domain.AuthoritativeStatus](maxEntries, ttl, clock),
		elevated: newLRUCache[[]domain.ElevatedVolcano](1, ttl, clock),
		metrics:  metrics,
	}
}

// Status returns the cached status for vnum or fetches it.
func (c *CachedFeed) Status(ctx context.Context, vnum string) (domain.AuthoritativeStatus, error) {
	if s, ok := c.status.get(vnum); ok {
		c.metrics.StatusCache.WithLabelValues("hit").Inc()
		return s, nil
	}
	c.metrics.StatusCache.WithLabelValues("miss").Inc()

	s, err := c.inner.Status(ctx, vnum)
	if err != nil {
		return s, err
	}
	c.status.put(vnum, s)
	return s, nil
}

// Elevated returns the cached elevated list or fetches it.
func (c *CachedFeed) Elevated(ctx context.Context) ([]domain.ElevatedVolcano, error) {
	if list, ok := c.elevated.get(elevatedKey); ok {
		return list, nil
	}
	list, err := c.inner.Elevated(ctx)
	if err != nil {
		return nil, err
	}
	c.elevated.put(elevatedKey, list)
	return list, nil
}

// lruCache is a thread-safe LRU cache with per-entry expiry.
type lruCache[V any] struct {
	maxEntries int
	ttl        time.Duration
	clock      clockwork.Clock
	mu         sync.Mutex
	entries    map[string]*entry[V]
	head       *entry[V] // most recently used
	tail       *entry[V] // least recently used
}

type entry[V any] struct {
	key       string
	value     V
	expiresAt time.Time
	prev      *entry[V]
	next      *entry[V]
}

func newLRUCache[V any](maxEntries int, ttl time.Duration, clock clockwork.Clock) *lruCache[V] {
	return &lruCache[V]{
		maxEntries: max(maxEntries, 1),
		ttl:        ttl,
		clock:      clock,
		entries:    make(map[string]*entry[V]),
	}
}

func (c *lruCache[V]) get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	e, ok := c.entries[key]
	if !ok {
		return zero, false
	}
	if !c.clock.Now().Before(e.expiresAt) {
		delete(c.entries, key)
		c.remove(e)
		return zero, false
	}
	c.moveToFront(e)
	return e.value, true
}

func (c *lruCache[V]) put(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	expiresAt := c.clock.Now().Add(c.ttl)
	if e, ok := c.entries[key]; ok {
		e.value = value
		e.expiresAt = expiresAt
		c.moveToFront(e)
		return
	}

	e := &entry[V]{key: key, value: value, expiresAt: expiresAt}
	c.entries[key] = e
	c.addToFront(e)

	if len(c.entries) > c.maxEntries {
		c.evictTail()
	}
}

func (c *lruCache[V]) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *lruCache[V]) moveToFront(e *entry[V]) {
	if e == c.head {
		return
	}
	c.remove(e)
	c.addToFront(e)
}

func (c *lruCache[V]) addToFront(e *entry[V]) {
	e.next = c.head
	e.prev = nil
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *lruCache[V]) remove(e *entry[V]) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
}

func (c *lruCache[V]) evictTail() {
	if c.tail == nil {
		return
	}
	delete(c.entries, c.tail.key)
	c.remove(c.tail)
}
