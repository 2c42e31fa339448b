package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLocalCacheSetGet(t *testing.T) {
	c := newLocalCache(8)

	c.set("a", []byte("one"), time.Minute, nil)

	value, found := c.get("a")
	assert.True(t, found)
	assert.Equal(t, []byte("one"), value)
}

func TestLocalCacheExpiry(t *testing.T) {
	c := newLocalCache(8)

	c.set("a", []byte("one"), 20*time.Millisecond, nil)
	time.Sleep(50 * time.Millisecond)

	_, found := c.get("a")
	assert.False(t, found)
	assert.Equal(t, 0, c.len())
}

func TestLocalCacheZeroTTLIgnored(t *testing.T) {
	c := newLocalCache(8)

	c.set("a", []byte("one"), 0, nil)

	_, found := c.get("a")
	assert.False(t, found)
}

func TestLocalCacheEvictsOldestWhenFull(t *testing.T) {
	c := newLocalCache(2)

	c.set("a", []byte("1"), time.Minute, nil)
	c.set("b", []byte("2"), time.Minute, nil)
	c.set("c", []byte("3"), time.Minute, nil)

	_, found := c.get("a")
	assert.False(t, found, "oldest entry should be evicted")

	_, found = c.get("b")
	assert.True(t, found)
	_, found = c.get("c")
	assert.True(t, found)
	assert.Equal(t, int64(1), c.evicted())
}

func TestLocalCachePrefersSweepingExpiredOverEviction(t *testing.T) {
	c := newLocalCache(2)

	c.set("a", []byte("1"), 10*time.Millisecond, nil)
	c.set("b", []byte("2"), time.Minute, nil)
	time.Sleep(30 * time.Millisecond)

	c.set("c", []byte("3"), time.Minute, nil)

	_, found := c.get("b")
	assert.True(t, found, "live entry should survive when an expired one can go instead")
	_, found = c.get("c")
	assert.True(t, found)
	assert.Equal(t, int64(0), c.evicted())
}

func TestLocalCacheReplaceExistingKey(t *testing.T) {
	c := newLocalCache(8)

	c.set("a", []byte("one"), time.Minute, nil)
	c.set("a", []byte("two"), time.Minute, nil)

	value, found := c.get("a")
	assert.True(t, found)
	assert.Equal(t, []byte("two"), value)
	assert.Equal(t, 1, c.len())
}

func TestLocalCacheDeleteByTag(t *testing.T) {
	c := newLocalCache(8)

	c.set("a", []byte("1"), time.Minute, []string{"grp"})
	c.set("b", []byte("2"), time.Minute, []string{"grp", "other"})
	c.set("c", []byte("3"), time.Minute, []string{"other"})

	removed := c.deleteByTag("grp")
	assert.Equal(t, 2, removed)

	_, found := c.get("a")
	assert.False(t, found)
	_, found = c.get("b")
	assert.False(t, found)
	_, found = c.get("c")
	assert.True(t, found)
}

func TestLocalCacheSweep(t *testing.T) {
	c := newLocalCache(8)

	c.set("a", []byte("1"), 10*time.Millisecond, nil)
	c.set("b", []byte("2"), time.Minute, nil)
	time.Sleep(30 * time.Millisecond)

	c.sweep()
	assert.Equal(t, 1, c.len())
}
