package block_cache

import (
	"container/list"
	"sync"

	"garnet/internal/block"
	"garnet/internal/common"
)

// DefaultCapacity is the default number of parsed blocks kept in memory.
const DefaultCapacity = 1024

type cacheKey struct {
	fileNo  common.FileNo
	blockNo common.BlockNo
}

type cacheEntry struct {
	key   cacheKey
	block block.Block
}

// lruCache keeps the most recently used parsed blocks, shared by all open
// SSTables so total memory stays bounded regardless of table count.
type lruCache struct {
	mu       sync.Mutex
	capacity int
	order    *list.List // front = most recently used
	items    map[cacheKey]*list.Element
}

var _ BlockCache = (*lruCache)(nil)

// NewBlockCache creates a cache holding up to DefaultCapacity blocks.
func NewBlockCache() BlockCache {
	return NewBlockCacheWithCapacity(DefaultCapacity)
}

// NewBlockCacheWithCapacity creates a cache holding up to capacity blocks.
// A capacity of zero or less disables caching.
func NewBlockCacheWithCapacity(capacity int) BlockCache {
	return &lruCache{
		capacity: capacity,
		order:    list.New(),
		items:    make(map[cacheKey]*list.Element),
	}
}

func (c *lruCache) Get(fileNo common.FileNo, blockNo common.BlockNo) (block.Block, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[cacheKey{fileNo, blockNo}]
	if !ok {
		return nil, false
	}
	c.order.MoveToFront(elem)
	return elem.Value.(*cacheEntry).block, true
}

func (c *lruCache) Put(fileNo common.FileNo, blockNo common.BlockNo, b block.Block) {
	if c.capacity <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	key := cacheKey{fileNo, blockNo}
	if elem, ok := c.items[key]; ok {
		elem.Value.(*cacheEntry).block = b
		c.order.MoveToFront(elem)
		return
	}

	c.items[key] = c.order.PushFront(&cacheEntry{key: key, block: b})
	if c.order.Len() > c.capacity {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.items, oldest.Value.(*cacheEntry).key)
	}
}
