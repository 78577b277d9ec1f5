// Evicache keeps key-value pairs in bounded in-memory caches. This module provides an interface on caching, making
// single caches, sharded caches and disabled caches have the same API.

package cache

import (
	"maps"
	"reflect"
	"slices"
	"sync"
)

// Layer defines the interface for a generic key-value cache. This allows different cache implementations
// (e.g., FIFO, LFU, simple map-based) to be used as shards within Sharded.
type Layer[K comparable, V any] interface {
	// Store inserts or overwrites a key-value pair. Nil keys or values are ignored. It returns true if an item was
	// evicted to make room for `key`.
	Store(key K, value V) bool
	// Retrieve returns value from cache for given key and a boolean indicating whether key was found.
	Retrieve(key K) (V, bool)
	// Delete removes `key` without announcing a discard. It returns true if the key was present.
	Delete(key K) bool
	Keys() []K // Returns a slice of all keys currently in the cache.
	Len() int  // Returns the number of keys currently in the cache.
	Purge()    // Removes all items from the cache.
}

var (
	_ Layer[int, int] = (*NoOp[int, int])(nil)
	_ Layer[int, int] = (*Unbounded[int, int])(nil)
	_ Layer[int, int] = (*Bounded[int, int])(nil)
	_ Layer[int, int] = (*Sharded[int, int])(nil)
)

// isNil reports whether `v` is a nil interface, pointer, map, slice, func or channel. These are the values a cache
// refuses to hold, both as keys and values.
func isNil[T any](v T) bool {
	value := any(v)
	if value == nil {
		return true
	}
	switch reflected := reflect.ValueOf(value); reflected.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.UnsafePointer:
		return reflected.IsNil()
	default:
		return false
	}
}

// NoOp is a cache layer that doesn't store any items.
// It is used when cache is disabled.
type NoOp[K comparable, V any] struct{}

// NewNoOp returns a no-operation cache layer that does not store any items.
func NewNoOp[K comparable, V any]() *NoOp[K, V] {
	return &NoOp[K, V]{}
}

// Retrieve always returns false, indicating the key is not found.
func (n *NoOp[K, V]) Retrieve(K) (V, bool) {
	return *new(V), false
}

// Store does nothing and always returns false, indicating no item was evicted.
func (n *NoOp[K, V]) Store(K, V) bool { return false }

func (n *NoOp[K, V]) Delete(K) bool { return false }
func (n *NoOp[K, V]) Keys() []K     { return nil }
func (n *NoOp[K, V]) Len() int      { return 0 }
func (n *NoOp[K, V]) Purge()        {}

// Unbounded is a thread-safe map-based cache without capacity nor eviction.
type Unbounded[K comparable, V any] struct {
	mux   sync.RWMutex
	items map[K]V
}

func NewUnbounded[K comparable, V any]() *Unbounded[K, V] {
	return &Unbounded[K, V]{items: make(map[K]V)}
}

func (u *Unbounded[K, V]) Store(key K, value V) bool {
	if isNil(key) || isNil(value) {
		return false
	}
	u.mux.Lock()
	defer u.mux.Unlock()
	u.items[key] = value
	return false
}

func (u *Unbounded[K, V]) Retrieve(key K) (V, bool /*found*/) {
	if isNil(key) {
		return *new(V), false
	}
	u.mux.RLock()
	defer u.mux.RUnlock()
	value, found := u.items[key]
	return value, found
}

func (u *Unbounded[K, V]) Delete(key K) bool {
	if isNil(key) {
		return false
	}
	u.mux.Lock()
	defer u.mux.Unlock()
	_, found := u.items[key]
	delete(u.items, key)
	return found
}

func (u *Unbounded[K, V]) Keys() []K {
	u.mux.RLock()
	defer u.mux.RUnlock()
	return slices.Collect(maps.Keys(u.items))
}

func (u *Unbounded[K, V]) Len() int {
	u.mux.RLock()
	defer u.mux.RUnlock()
	return len(u.items)
}

func (u *Unbounded[K, V]) Purge() {
	u.mux.Lock()
	defer u.mux.Unlock()
	clear(u.items)
}
