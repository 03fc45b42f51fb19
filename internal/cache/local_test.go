package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalCacheGetSet(t *testing.T) {
	ctx := context.Background()
	c := NewLocalCache(10, 0, nil)

	require.NoError(t, c.Set(ctx, "k1", []byte("v1"), time.Minute))

	value, found, err := c.Get(ctx, "k1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []byte("v1"), value)

	_, found, err = c.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestLocalCacheReturnsCopies(t *testing.T) {
	ctx := context.Background()
	c := NewLocalCache(10, 0, nil)
	require.NoError(t, c.Set(ctx, "k1", []byte("v1"), time.Minute))

	value, _, _ := c.Get(ctx, "k1")
	value[0] = 'X'

	again, _, _ := c.Get(ctx, "k1")
	assert.Equal(t, []byte("v1"), again)
}

func TestLocalCacheTTLExpiry(t *testing.T) {
	ctx := context.Background()
	c := NewLocalCache(10, 0, nil)
	require.NoError(t, c.Set(ctx, "k1", []byte("v1"), 10*time.Millisecond))

	time.Sleep(30 * time.Millisecond)

	_, found, err := c.Get(ctx, "k1")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, 0, c.Len())
}

// Filling a 100-entry cache with 150 entries must stay within the bound and
// keep the most recently written half.
func TestLocalCacheEvictionKeepsRecentEntries(t *testing.T) {
	ctx := context.Background()
	c := NewLocalCache(100, 0, nil)

	for i := 0; i < 150; i++ {
		key := fmt.Sprintf("key-%03d", i)
		require.NoError(t, c.Set(ctx, key, []byte("value"), time.Minute))
	}

	assert.LessOrEqual(t, c.Len(), 100)
	assert.Greater(t, c.Evictions(), int64(0))

	for i := 100; i < 150; i++ {
		key := fmt.Sprintf("key-%03d", i)
		_, found, err := c.Get(ctx, key)
		require.NoError(t, err)
		assert.True(t, found, "recently written %s should have survived eviction", key)
	}
}

func TestLocalCacheEvictsLeastRecentlyAccessed(t *testing.T) {
	ctx := context.Background()
	c := NewLocalCache(10, 0, nil)

	for i := 0; i < 10; i++ {
		require.NoError(t, c.Set(ctx, fmt.Sprintf("key-%d", i), []byte("v"), time.Minute))
	}
	// Touch the oldest entry so it is no longer the eviction candidate.
	_, found, err := c.Get(ctx, "key-0")
	require.NoError(t, err)
	require.True(t, found)

	require.NoError(t, c.Set(ctx, "key-new", []byte("v"), time.Minute))

	_, found, _ = c.Get(ctx, "key-0")
	assert.True(t, found, "recently accessed entry must survive")
	_, found, _ = c.Get(ctx, "key-1")
	assert.False(t, found, "least recently accessed entry must be evicted")
}

func TestLocalCacheMemoryBound(t *testing.T) {
	ctx := context.Background()
	c := NewLocalCache(0, 64, nil)

	require.NoError(t, c.Set(ctx, "a", make([]byte, 30), time.Minute))
	require.NoError(t, c.Set(ctx, "b", make([]byte, 30), time.Minute))
	// Third write exceeds the 64-byte budget and must trigger eviction.
	require.NoError(t, c.Set(ctx, "c", make([]byte, 30), time.Minute))

	assert.LessOrEqual(t, c.MemoryBytes(), int64(64))

	// A single value larger than the whole budget is skipped, not stored.
	require.NoError(t, c.Set(ctx, "huge", make([]byte, 100), time.Minute))
	_, found, _ := c.Get(ctx, "huge")
	assert.False(t, found)
}

func TestLocalCacheDeleteByPattern(t *testing.T) {
	ctx := context.Background()
	c := NewLocalCache(100, 0, nil)

	require.NoError(t, c.Set(ctx, "q:Users:a", []byte("v"), time.Minute))
	require.NoError(t, c.Set(ctx, "q:Users:b", []byte("v"), time.Minute))
	require.NoError(t, c.Set(ctx, "q:Orders:a", []byte("v"), time.Minute))

	require.NoError(t, c.DeleteByPattern(ctx, "q:Users:*"))

	assert.Equal(t, 1, c.Len())
	_, found, _ := c.Get(ctx, "q:Orders:a")
	assert.True(t, found)
}

func TestMatchPattern(t *testing.T) {
	tests := []struct {
		str     string
		pattern string
		want    bool
	}{
		{"anything", "*", true},
		{"q:Users:a", "q:Users:*", true},
		{"q:Orders:a", "q:Users:*", false},
		{"user-123", "*-123", true},
		{"user-456", "*-123", false},
		{"exact", "exact", true},
		{"exact", "other", false},
	}
	for _, tt := range tests {
		t.Run(tt.pattern+"/"+tt.str, func(t *testing.T) {
			assert.Equal(t, tt.want, matchPattern(tt.str, tt.pattern))
		})
	}
}
