package block_cache_test

import (
	"bytes"
	"testing"

	"garnet/internal/block"
	"garnet/internal/block_cache"
	"garnet/internal/common"

	"github.com/stretchr/testify/require"
)

func makeBlock(t *testing.T, key string) block.Block {
	t.Helper()
	var buf bytes.Buffer
	_, err := common.WriteEntry(&buf, &common.Entry{
		Type:  common.EntryTypePut,
		Key:   []byte(key),
		Value: []byte("v"),
	})
	require.NoError(t, err)
	b, err := block.NewBlock(buf.Bytes())
	require.NoError(t, err)
	return b
}

func TestPutAndGet(t *testing.T) {
	cache := block_cache.NewBlockCacheWithCapacity(4)

	b := makeBlock(t, "a")
	cache.Put(1, 0, b)

	got, ok := cache.Get(1, 0)
	require.True(t, ok)
	require.Equal(t, b, got)

	_, ok = cache.Get(1, 1)
	require.False(t, ok)
	_, ok = cache.Get(2, 0)
	require.False(t, ok)
}

func TestEvictsLeastRecentlyUsed(t *testing.T) {
	cache := block_cache.NewBlockCacheWithCapacity(2)

	cache.Put(1, 0, makeBlock(t, "a"))
	cache.Put(1, 1, makeBlock(t, "b"))

	// Touch (1,0) so (1,1) becomes the eviction candidate.
	_, ok := cache.Get(1, 0)
	require.True(t, ok)

	cache.Put(1, 2, makeBlock(t, "c"))

	_, ok = cache.Get(1, 1)
	require.False(t, ok, "least recently used block should be evicted")
	_, ok = cache.Get(1, 0)
	require.True(t, ok)
	_, ok = cache.Get(1, 2)
	require.True(t, ok)
}

func TestZeroCapacityDisablesCaching(t *testing.T) {
	cache := block_cache.NewBlockCacheWithCapacity(0)
	cache.Put(1, 0, makeBlock(t, "a"))

	_, ok := cache.Get(1, 0)
	require.False(t, ok)
}
