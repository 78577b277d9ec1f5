// This module implements cache sharding which distributes keys uniformly across cache shards. Since each thread-safe
// cache implementation has a mutex to avoid races between reads and writes, sharding helps by distributing the locks.
// In cases where there are multiple goroutines trying to read or write to the sharded cache, each goroutine can only
// lock the shard that their key belongs to and doesn't prevent other goroutines from accessing their intended keys.
// NOTE: each shard evicts on its own, so a sharded cache is bounded per shard, not globally.

package cache

import (
	"github.com/nobletooth/evicache/pkg/utils"
)

// Sharded is a cache implementation that distributes keys across multiple underlying cache instances (shards).
type Sharded[K comparable, V any] struct {
	shards []Layer[K, V]
	hash   func(key K) uint64 // Helps choose the shards index.
}

// NewSharded is the constructor for Sharded. It takes a cacheGenerator function, which is responsible for creating
// individual shard instances, and the desired number of shards (shardCount).
func NewSharded[K comparable, V any](cacheGenerator func() Layer[K, V], shardCount int) *Sharded[K, V] {
	// Ensure there is at least one shard.
	if shardCount <= 0 {
		utils.RaiseInvariant("shard", "non_positive_shard_count",
			"Invalid shard count has been given to sharded cache.", "shardCount", shardCount)
		shardCount = 1
	}
	shardedCache := &Sharded[K, V]{shards: make([]Layer[K, V], shardCount), hash: newKeyHasher[K]()}
	for i := range shardCount {
		shardedCache.shards[i] = cacheGenerator()
	}
	return shardedCache
}

// getShard determines which shard a given key belongs to.
func (c *Sharded[K, V]) getShard(key K) Layer[K, V] {
	return c.shards[c.hash(key)%uint64(len(c.shards))]
}

// Retrieve finds the appropriate shard for the key and retrieves the value from it.
func (c *Sharded[K, V]) Retrieve(key K) (V, bool /*found*/) {
	if isNil(key) {
		return *new(V), false
	}
	return c.getShard(key).Retrieve(key)
}

// Store finds the appropriate shard for the key and stores the key-value pair in it.
func (c *Sharded[K, V]) Store(key K, value V) /*evictionOccurred*/ bool {
	if isNil(key) {
		return false
	}
	return c.getShard(key).Store(key, value)
}

func (c *Sharded[K, V]) Delete(key K) bool {
	if isNil(key) {
		return false
	}
	return c.getShard(key).Delete(key)
}

// Keys aggregates the keys from all shards into a single slice, shard by shard.
func (c *Sharded[K, V]) Keys() []K {
	keys := make([]K, 0)
	for _, shard := range c.shards {
		keys = append(keys, shard.Keys()...)
	}
	return keys
}

func (c *Sharded[K, V]) Len() int {
	size := 0
	for _, shard := range c.shards {
		size += shard.Len()
	}
	return size
}

// Purge clears all items from the cache by calling Purge on every shard.
func (c *Sharded[K, V]) Purge() {
	for _, shard := range c.shards {
		shard.Purge()
	}
}
