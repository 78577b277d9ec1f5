// This module implements the capacity-bounded cache shared by every eviction policy.
// A Bounded cache holds at most `capacity` keys. Storing a new key into a full cache first evicts exactly one key, the
// one chosen by the policy's bookkeeper, announces it through the discard callback, and only then inserts the new key.
// Overwriting a key that is already cached never evicts.
//
// The map and the bookkeeper are guarded by a single mutex: Store and Retrieve are each one critical section, so the
// map key set and the bookkeeper key set are never observed out of sync.

package cache

import (
	"log/slog"
	"os"
	"slices"
	"sync"

	"github.com/nobletooth/evicache/pkg/utils"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MaxItems is the capacity of caches built with the zero-argument constructors.
const MaxItems = 4

var (
	cacheEvictions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cache_evictions_total",
		Help: "Total number of keys evicted from bounded caches.",
	}, []string{"policy"})
	cacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cache_lookups_total",
		Help: "Total number of bounded cache lookups.",
	}, []string{"policy", "status" /* hit | miss */})
	cacheReadmissions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cache_readmissions_total",
		Help: "Total number of stored keys that were probably evicted before.",
	}, []string{"policy"})
)

// Bounded is a thread-safe, fixed-capacity, in-memory cache with a pluggable eviction policy.
type Bounded[K comparable, V any] struct {
	policy   Policy
	capacity int // Maximum number of entries the cache can hold.
	items    map[K]V
	book     bookkeeper[K]   // Tracks the order / frequency of exactly the keys in `items`.
	ghosts   *ghostFilter[K] // Remembers discarded keys to detect readmissions.
	// onDiscard is an optional callback executed for every evicted entry, before the new key is inserted. It runs while
	// the cache lock is held, so it must not call any of the cache methods or else we'll be having a deadlock.
	onDiscard func(K, V)
	mux       sync.Mutex // Retrieve mutates bookkeeping too, so there's no read lock.
}

// New is the constructor for Bounded. An unknown policy falls back to LRU and a non-positive capacity falls back to
// one; both are reported as invariant violations.
func New[K comparable, V any](policy Policy, capacity int, onDiscard func(K, V)) *Bounded[K, V] {
	if capacity <= 0 {
		utils.RaiseInvariant("cache", "non_positive_cache_capacity",
			"Invalid capacity has been given to bounded cache.", "capacity", capacity)
		capacity = 1
	}
	book, err := newBookkeeper[K](policy)
	if err != nil {
		utils.RaiseInvariant("cache", "unknown_eviction_policy",
			"Unknown eviction policy has been given to bounded cache.", "policy", policy, "error", err)
		policy = LRU
		book, _ = newBookkeeper[K](policy)
	}
	return &Bounded[K, V]{
		policy:    policy,
		capacity:  capacity,
		items:     make(map[K]V, capacity),
		book:      book,
		ghosts:    newGhostFilter[K](capacity),
		onDiscard: onDiscard,
	}
}

// NewFIFO returns a MaxItems cache evicting the oldest inserted key; discards are printed to stdout.
func NewFIFO[K comparable, V any]() *Bounded[K, V] {
	return New(FIFO, MaxItems, PrintDiscards[K, V](os.Stdout))
}

// NewLIFO returns a MaxItems cache evicting the most recently (re)inserted key; discards are printed to stdout.
func NewLIFO[K comparable, V any]() *Bounded[K, V] {
	return New(LIFO, MaxItems, PrintDiscards[K, V](os.Stdout))
}

// NewLRU returns a MaxItems cache evicting the least recently used key; discards are printed to stdout.
func NewLRU[K comparable, V any]() *Bounded[K, V] {
	return New(LRU, MaxItems, PrintDiscards[K, V](os.Stdout))
}

// NewMRU returns a MaxItems cache evicting the most recently used key; discards are printed to stdout.
func NewMRU[K comparable, V any]() *Bounded[K, V] {
	return New(MRU, MaxItems, PrintDiscards[K, V](os.Stdout))
}

// NewLFU returns a MaxItems cache evicting the least frequently used key, least recently used first among ties;
// discards are printed to stdout.
func NewLFU[K comparable, V any]() *Bounded[K, V] {
	return New(LFU, MaxItems, PrintDiscards[K, V](os.Stdout))
}

// Policy returns the eviction policy of the cache.
func (c *Bounded[K, V]) Policy() Policy { return c.policy }

// Capacity returns the maximum number of entries the cache holds.
func (c *Bounded[K, V]) Capacity() int { return c.capacity }

// Store inserts or overwrites a key-value pair. A nil key or value is silently ignored. Storing a new key into a full
// cache evicts one key chosen by the policy and returns true.
func (c *Bounded[K, V]) Store(key K, value V) /*evictionOccurred*/ bool {
	if isNil(key) || isNil(value) {
		return false
	}

	c.mux.Lock()
	defer c.mux.Unlock()

	_, existed := c.items[key]
	evicted := false
	if !existed && len(c.items) >= c.capacity {
		evicted = c.evict()
	}
	if !existed && c.ghosts.mayContain(key) {
		cacheReadmissions.WithLabelValues(string(c.policy)).Inc()
	}
	c.items[key] = value
	c.book.stored(key, existed)

	if len(c.items) > c.capacity {
		utils.RaiseInvariant("cache", "capacity_exceeded",
			"Bounded cache holds more items than its capacity.",
			"policy", c.policy, "capacity", c.capacity, "size", len(c.items))
	}
	if c.book.len() != len(c.items) {
		utils.RaiseInvariant("cache", "bookkeeping_mismatch",
			"Bounded cache bookkeeping is out of sync with its items.",
			"policy", c.policy, "items", len(c.items), "bookkeeping", c.book.len())
	}
	return evicted
}

// evict removes the policy's victim from both the items and the bookkeeping, then announces it.
// Must be called with the lock held.
func (c *Bounded[K, V]) evict() bool {
	victim, found := c.book.victim()
	if !found {
		utils.RaiseInvariant("cache", "missing_eviction_victim",
			"Full bounded cache has no eviction victim.", "policy", c.policy, "size", len(c.items))
		return false
	}
	victimValue := c.items[victim]
	delete(c.items, victim)
	c.book.remove(victim)
	c.ghosts.add(victim)
	cacheEvictions.WithLabelValues(string(c.policy)).Inc()
	slog.Debug("Evicted key from bounded cache.", "policy", c.policy, "key", victim)
	if c.onDiscard != nil {
		c.onDiscard(victim, victimValue)
	}
	return true
}

// Retrieve returns the value stored for `key` and true, or the zero value and false if `key` is nil or absent.
// LRU, MRU and LFU caches count a successful lookup as a use of the key.
func (c *Bounded[K, V]) Retrieve(key K) (V, bool /*found*/) {
	if isNil(key) {
		return *new(V), false
	}

	c.mux.Lock()
	defer c.mux.Unlock()

	value, found := c.items[key]
	if !found {
		cacheLookups.WithLabelValues(string(c.policy), "miss").Inc()
		return *new(V), false
	}
	cacheLookups.WithLabelValues(string(c.policy), "hit").Inc()
	c.book.retrieved(key)
	return value, true
}

// Delete removes `key` from the cache. Deleting isn't an eviction, so nothing is announced.
func (c *Bounded[K, V]) Delete(key K) bool /*deleted*/ {
	if isNil(key) {
		return false
	}

	c.mux.Lock()
	defer c.mux.Unlock()

	if _, found := c.items[key]; !found {
		return false
	}
	delete(c.items, key)
	c.book.remove(key)
	return true
}

// Keys returns the cached keys in bookkeeping order: from head to tail of the insertion / recency order, or by
// ascending use count for LFU.
func (c *Bounded[K, V]) Keys() []K {
	c.mux.Lock()
	defer c.mux.Unlock()
	return slices.Collect(c.book.keys())
}

func (c *Bounded[K, V]) Len() int {
	c.mux.Lock()
	defer c.mux.Unlock()
	return len(c.items)
}

// Purge removes all items and forgets discarded keys; nothing is announced.
func (c *Bounded[K, V]) Purge() {
	c.mux.Lock()
	defer c.mux.Unlock()

	for key := range c.items {
		c.book.remove(key)
	}
	clear(c.items)
	c.ghosts.reset()
}
