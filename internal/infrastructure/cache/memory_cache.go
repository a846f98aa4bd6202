package cache

import (
	"container/list"
	"sync"
	"time"

	"go.uber.org/zap"
)

type entry struct {
	key         string
	value       interface{}
	createdAt   time.Time
	ttl         time.Duration // 0 means no expiry
	accessCount int64
	lastAccess  time.Time
}

func (e *entry) expired(now time.Time) bool {
	return e.ttl > 0 && now.Sub(e.createdAt) > e.ttl
}

// Stats holds cache counters for observability.
type Stats struct {
	Hits        int64 `json:"hits"`
	Misses      int64 `json:"misses"`
	Evictions   int64 `json:"evictions"`
	Expirations int64 `json:"expirations"`
	Size        int   `json:"size"`
	MaxSize     int   `json:"max_size"`
}

// MemoryCache is a bounded TTL cache with LRU eviction. The recency list
// keeps the most-recently-used entry at the back; eviction pops the front.
// A background sweeper removes expired entries that are never read again.
type MemoryCache struct {
	mu      sync.Mutex
	items   map[string]*list.Element
	order   *list.List // *entry values, LRU at front
	maxSize int
	ttl     time.Duration

	hits        int64
	misses      int64
	evictions   int64
	expirations int64

	logger  *zap.Logger
	done    chan struct{}
	once    sync.Once
	timeNow func() time.Time // for testing
}

// New creates a cache bounded at maxSize entries. defaultTTL applies to
// Set calls that pass no explicit TTL; sweepEvery controls the background
// expiry scan (0 disables it).
func New(maxSize int, defaultTTL, sweepEvery time.Duration, logger *zap.Logger) *MemoryCache {
	c := &MemoryCache{
		items:   make(map[string]*list.Element),
		order:   list.New(),
		maxSize: maxSize,
		ttl:     defaultTTL,
		logger:  logger,
		done:    make(chan struct{}),
		timeNow: time.Now,
	}
	if sweepEvery > 0 {
		go c.sweepLoop(sweepEvery)
	}
	return c
}

// Get returns the value for key, bumping it to most-recently-used. An
// expired entry is removed and counted as an expiration, not a plain miss.
func (c *MemoryCache) Get(key string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		c.misses++
		return nil, false
	}

	e := el.Value.(*entry)
	now := c.timeNow()
	if e.expired(now) {
		c.removeElement(el)
		c.expirations++
		return nil, false
	}

	e.accessCount++
	e.lastAccess = now
	c.order.MoveToBack(el)
	c.hits++
	return e.value, true
}

// Set stores value under key with the default TTL.
func (c *MemoryCache) Set(key string, value interface{}) {
	c.SetWithTTL(key, value, c.ttl)
}

// SetWithTTL stores value under key. An existing entry for the key is
// replaced first; then LRU entries are evicted until the cache fits.
func (c *MemoryCache) SetWithTTL(key string, value interface{}, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		c.removeElement(el)
	}

	for c.order.Len() >= c.maxSize {
		oldest := c.order.Front()
		if oldest == nil {
			break
		}
		c.removeElement(oldest)
		c.evictions++
	}

	now := c.timeNow()
	e := &entry{
		key:        key,
		value:      value,
		createdAt:  now,
		ttl:        ttl,
		lastAccess: now,
	}
	c.items[key] = c.order.PushBack(e)
}

// Delete removes key if present.
func (c *MemoryCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[key]; ok {
		c.removeElement(el)
	}
}

// Len returns the current number of entries.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Stats returns a snapshot of the cache counters.
func (c *MemoryCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Hits:        c.hits,
		Misses:      c.misses,
		Evictions:   c.evictions,
		Expirations: c.expirations,
		Size:        c.order.Len(),
		MaxSize:     c.maxSize,
	}
}

// Close stops the background sweeper. Safe to call more than once.
func (c *MemoryCache) Close() {
	c.once.Do(func() { close(c.done) })
}

func (c *MemoryCache) removeElement(el *list.Element) {
	e := el.Value.(*entry)
	delete(c.items, e.key)
	c.order.Remove(el)
}

func (c *MemoryCache) sweepLoop(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.sweep()
		}
	}
}

// sweep removes all expired entries so unread stale entries do not leak.
func (c *MemoryCache) sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.timeNow()
	removed := 0
	for el := c.order.Front(); el != nil; {
		next := el.Next()
		if el.Value.(*entry).expired(now) {
			c.removeElement(el)
			c.expirations++
			removed++
		}
		el = next
	}
	if removed > 0 {
		c.logger.Debug("cache sweep removed expired entries",
			zap.Int("removed", removed),
			zap.Int("remaining", c.order.Len()))
	}
}
