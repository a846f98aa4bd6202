package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestCache(maxSize int, ttl time.Duration) (*MemoryCache, *time.Time) {
	now := time.Now()
	c := New(maxSize, ttl, 0, zap.NewNop())
	c.timeNow = func() time.Time { return now }
	return c, &now
}

func TestCache_SetGet(t *testing.T) {
	c, _ := newTestCache(10, time.Minute)
	defer c.Close()

	c.Set("AAPL", 150.0)
	v, ok := c.Get("AAPL")
	require.True(t, ok)
	assert.Equal(t, 150.0, v)

	_, ok = c.Get("MSFT")
	assert.False(t, ok)

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
}

func TestCache_TTLExpiryCountsAsExpiration(t *testing.T) {
	c, now := newTestCache(10, time.Minute)
	defer c.Close()

	c.SetWithTTL("k", "v", time.Second)
	v, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, "v", v)

	*now = now.Add(1100 * time.Millisecond)
	_, ok = c.Get("k")
	require.False(t, ok)

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Expirations)
	assert.Equal(t, int64(0), stats.Misses, "expired read is an expiration, not a miss")
	assert.Equal(t, 0, stats.Size)
}

func TestCache_LRUEviction(t *testing.T) {
	c, _ := newTestCache(3, time.Minute)
	defer c.Close()

	c.Set("a", 1)
	c.Set("b", 2)
	c.Set("c", 3)

	// Touch "a" so "b" becomes the least recently used.
	_, ok := c.Get("a")
	require.True(t, ok)

	c.Set("d", 4)

	_, ok = c.Get("b")
	assert.False(t, ok, "least recently used key should be evicted")
	_, ok = c.Get("a")
	assert.True(t, ok)
	_, ok = c.Get("d")
	assert.True(t, ok)

	assert.Equal(t, int64(1), c.Stats().Evictions)
}

func TestCache_SetReplacesExistingKey(t *testing.T) {
	c, _ := newTestCache(2, time.Minute)
	defer c.Close()

	c.Set("a", 1)
	c.Set("b", 2)
	c.Set("a", 10)

	// Replacing a key must not evict anything.
	assert.Equal(t, int64(0), c.Stats().Evictions)
	assert.Equal(t, 2, c.Len())

	v, _ := c.Get("a")
	assert.Equal(t, 10, v)
}

func TestCache_Delete(t *testing.T) {
	c, _ := newTestCache(10, time.Minute)
	defer c.Close()

	c.Set("a", 1)
	c.Delete("a")
	_, ok := c.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestCache_SweepRemovesUnreadExpired(t *testing.T) {
	c, now := newTestCache(10, time.Minute)
	defer c.Close()

	c.SetWithTTL("stale", 1, time.Second)
	c.SetWithTTL("fresh", 2, time.Hour)
	*now = now.Add(2 * time.Second)

	c.sweep()

	assert.Equal(t, 1, c.Len())
	assert.Equal(t, int64(1), c.Stats().Expirations)
	_, ok := c.Get("fresh")
	assert.True(t, ok)
}
