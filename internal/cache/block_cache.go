package cache

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultBlockCacheEntries is the capacity used when none is configured.
// At the 4 KiB block size this bounds the cache at 4 MiB.
const DefaultBlockCacheEntries = 1024

// BlockCache caches block content keyed by block id.
// Callers must not mutate returned slices.
type BlockCache struct {
	lru     *lru.Cache[string, []byte]
	maxSize int
}

// NewBlockCache creates a block cache holding at most entries blocks.
// entries <= 0 returns a nil cache; all methods are no-ops on nil.
func NewBlockCache(entries int) *BlockCache {
	if entries <= 0 {
		return nil
	}
	c, err := lru.New[string, []byte](entries)
	if err != nil {
		// lru.New only fails on a non-positive size
		return nil
	}
	return &BlockCache{lru: c, maxSize: entries}
}

// Get returns cached content for id.
// Returns false on a miss or when caching is disabled (COWFS_CACHE=0).
func (c *BlockCache) Get(id string) ([]byte, bool) {
	if c == nil || Disabled {
		return nil, false
	}
	return c.lru.Get(id)
}

// Add stores content for id. No-op if caching is disabled.
func (c *BlockCache) Add(id string, data []byte) {
	if c == nil || Disabled {
		return
	}
	c.lru.Add(id, data)
}

// Remove evicts id, used when a block is deleted.
func (c *BlockCache) Remove(id string) {
	if c == nil {
		return
	}
	c.lru.Remove(id)
}

// Invalidate clears all entries from the cache.
func (c *BlockCache) Invalidate() {
	if c == nil {
		return
	}
	c.lru.Purge()
}

// BlockCacheStats reports cache occupancy.
type BlockCacheStats struct {
	Size    int
	MaxSize int
}

// Stats returns current cache statistics.
func (c *BlockCache) Stats() BlockCacheStats {
	if c == nil {
		return BlockCacheStats{}
	}
	return BlockCacheStats{
		Size:    c.lru.Len(),
		MaxSize: c.maxSize,
	}
}
