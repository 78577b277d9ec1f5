// Every bounded cache delegates the "which key goes" decision to a bookkeeper. A bookkeeper tracks the order or the
// frequency of the keys currently in the cache and is kept in exact correspondence with the cache key set: each
// cached key appears exactly once in the bookkeeper, and the bookkeeper knows no other key.
//
//   - FIFO: keys by first insertion; overwrites keep their place; evicts the oldest.
//   - LIFO: keys by (re)insertion; overwrites move to the back; evicts the newest.
//   - LRU : keys by last use (store or retrieve); evicts the least recently used.
//   - MRU : same order as LRU; evicts the most recently used.
//   - LFU : use counts plus per-count recency; evicts the least used, least recently used first on ties.

package cache

import (
	"fmt"
	"iter"
	"maps"
	"slices"
	"strings"
)

// Policy names an eviction strategy.
type Policy string

const (
	FIFO Policy = "fifo"
	LIFO Policy = "lifo"
	LRU  Policy = "lru"
	MRU  Policy = "mru"
	LFU  Policy = "lfu"
)

// Policies lists every supported eviction policy.
var Policies = []Policy{FIFO, LIFO, LRU, MRU, LFU}

// ParsePolicy converts a case-insensitive policy name to a Policy.
func ParsePolicy(name string) (Policy, error) {
	policy := Policy(strings.ToLower(strings.TrimSpace(name)))
	if !slices.Contains(Policies, policy) {
		return "", fmt.Errorf("unknown eviction policy %q; expected one of %v", name, Policies)
	}
	return policy, nil
}

// bookkeeper holds the auxiliary structure of one eviction policy.
type bookkeeper[K comparable] interface {
	// stored is called after `key` was inserted (existed=false) or overwritten (existed=true).
	stored(key K, existed bool)
	// retrieved is called after a successful lookup of `key`.
	retrieved(key K)
	// victim returns the key the policy would evict next, without removing it.
	victim() (K, bool /*found*/)
	remove(key K)
	keys() iter.Seq[K] // Keys in bookkeeping order.
	len() int
}

var (
	_ bookkeeper[string] = (*fifoBook[string])(nil)
	_ bookkeeper[string] = (*lifoBook[string])(nil)
	_ bookkeeper[string] = (*recencyBook[string])(nil)
	_ bookkeeper[string] = (*lfuBook[string])(nil)
)

func newBookkeeper[K comparable](policy Policy) (bookkeeper[K], error) {
	switch policy {
	case FIFO:
		return &fifoBook[K]{order: newKeyOrder[K]()}, nil
	case LIFO:
		return &lifoBook[K]{order: newKeyOrder[K]()}, nil
	case LRU:
		return &recencyBook[K]{order: newKeyOrder[K](), evictNewest: false}, nil
	case MRU:
		return &recencyBook[K]{order: newKeyOrder[K](), evictNewest: true}, nil
	case LFU:
		return newLFUBook[K](), nil
	default:
		return nil, fmt.Errorf("unknown eviction policy %q", policy)
	}
}

// fifoBook keeps keys by first insertion; the head is the oldest.
type fifoBook[K comparable] struct {
	order *keyOrder[K]
}

func (b *fifoBook[K]) stored(key K, _ bool) { b.order.appendNew(key) }
func (b *fifoBook[K]) retrieved(K)          {}
func (b *fifoBook[K]) victim() (K, bool)    { return b.order.front() }
func (b *fifoBook[K]) remove(key K)         { b.order.remove(key) }
func (b *fifoBook[K]) keys() iter.Seq[K]    { return b.order.all() }
func (b *fifoBook[K]) len() int             { return b.order.len() }

// lifoBook is a stack of keys; overwriting a key counts as pushing it again.
type lifoBook[K comparable] struct {
	order *keyOrder[K]
}

func (b *lifoBook[K]) stored(key K, _ bool) { b.order.pushBack(key) }
func (b *lifoBook[K]) retrieved(K)          {}
func (b *lifoBook[K]) victim() (K, bool)    { return b.order.back() }
func (b *lifoBook[K]) remove(key K)         { b.order.remove(key) }
func (b *lifoBook[K]) keys() iter.Seq[K]    { return b.order.all() }
func (b *lifoBook[K]) len() int             { return b.order.len() }

// recencyBook orders keys by last use, least recent at the head. LRU and MRU share it and only differ in which end
// they evict from.
type recencyBook[K comparable] struct {
	order       *keyOrder[K]
	evictNewest bool // MRU if true, LRU otherwise.
}

func (b *recencyBook[K]) stored(key K, _ bool) { b.order.pushBack(key) }
func (b *recencyBook[K]) retrieved(key K)      { b.order.pushBack(key) }
func (b *recencyBook[K]) remove(key K)         { b.order.remove(key) }
func (b *recencyBook[K]) keys() iter.Seq[K]    { return b.order.all() }
func (b *recencyBook[K]) len() int             { return b.order.len() }

func (b *recencyBook[K]) victim() (K, bool) {
	if b.evictNewest {
		return b.order.back()
	}
	return b.order.front()
}

// lfuBook counts uses per key. Keys sharing a count live in one recency list, so the head of the lowest-count list is
// the least recently used among the least frequently used keys. A key enters a list exactly when it is touched, which
// makes the per-count order equal to the global recency order restricted to that count.
type lfuBook[K comparable] struct {
	counts  map[K]int
	buckets map[ /*count*/ int]*keyOrder[K]
	minimum int // Lowest count with a non-empty bucket; may lag behind after remove, see victim.
}

func newLFUBook[K comparable]() *lfuBook[K] {
	return &lfuBook[K]{counts: make(map[K]int), buckets: make(map[int]*keyOrder[K])}
}

// touch increments the use count of `key` and makes it the most recent key of its new bucket.
func (b *lfuBook[K]) touch(key K) {
	count, exists := b.counts[key]
	if exists {
		bucket := b.buckets[count]
		bucket.remove(key)
		if bucket.len() == 0 {
			delete(b.buckets, count)
			if b.minimum == count {
				b.minimum = count + 1
			}
		}
	}
	count++
	b.counts[key] = count
	bucket, bucketExists := b.buckets[count]
	if !bucketExists {
		bucket = newKeyOrder[K]()
		b.buckets[count] = bucket
	}
	bucket.pushBack(key)
	if count == 1 {
		b.minimum = 1
	}
}

func (b *lfuBook[K]) stored(key K, _ bool) { b.touch(key) }

func (b *lfuBook[K]) retrieved(key K) {
	if _, exists := b.counts[key]; exists {
		b.touch(key)
	}
}

func (b *lfuBook[K]) victim() (K, bool) {
	if len(b.counts) == 0 {
		return *new(K), false
	}
	bucket, exists := b.buckets[b.minimum]
	if !exists { // The minimum bucket was emptied by remove; find the next lowest count.
		b.minimum = slices.Min(slices.Collect(maps.Keys(b.buckets)))
		bucket = b.buckets[b.minimum]
	}
	return bucket.front()
}

func (b *lfuBook[K]) remove(key K) {
	count, exists := b.counts[key]
	if !exists {
		return
	}
	delete(b.counts, key)
	bucket := b.buckets[count]
	bucket.remove(key)
	if bucket.len() == 0 {
		delete(b.buckets, count)
	}
}

// keys yields keys in eviction order: ascending use count, least recently used first within a count.
func (b *lfuBook[K]) keys() iter.Seq[K] {
	return func(yield func(K) bool) {
		for _, count := range slices.Sorted(maps.Keys(b.buckets)) {
			for key := range b.buckets[count].all() {
				if !yield(key) {
					return
				}
			}
		}
	}
}

func (b *lfuBook[K]) len() int {
	return len(b.counts)
}
