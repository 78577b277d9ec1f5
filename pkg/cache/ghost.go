// Bounded caches remember which keys they discarded in a bloom filter ("ghost" entries). Storing a key that was
// discarded before is a readmission: a high readmission rate means the capacity is too small for the working set or
// the policy fits the access pattern poorly.

package cache

import (
	"encoding/binary"

	"github.com/bits-and-blooms/bloom/v3"
)

const (
	ghostFalsePositiveRate = 0.01
	ghostMinimumSize       = 64
	ghostCapacityFactor    = 8 // Ghost filter remembers about this many discards per cache slot.
)

// ghostFilter is a probabilistic set of discarded keys. It isn't thread-safe; Bounded guards it with its own mutex.
type ghostFilter[K comparable] struct {
	filter   *bloom.BloomFilter
	hash     func(K) uint64
	size     uint // Estimated number of keys the filter holds before it's reset.
	absorbed uint // Keys added since the last reset.
}

func newGhostFilter[K comparable](cacheCapacity int) *ghostFilter[K] {
	size := uint(max(cacheCapacity*ghostCapacityFactor, ghostMinimumSize))
	return &ghostFilter[K]{
		filter: bloom.NewWithEstimates(size, ghostFalsePositiveRate),
		hash:   newKeyHasher[K](),
		size:   size,
	}
}

func (g *ghostFilter[K]) keyBytes(key K) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], g.hash(key))
	return b[:]
}

// add remembers a discarded key. Once the filter absorbed its estimated size it starts over, since an overfilled
// filter answers "maybe" for almost everything.
func (g *ghostFilter[K]) add(key K) {
	if g.absorbed >= g.size {
		g.filter.ClearAll()
		g.absorbed = 0
	}
	g.filter.Add(g.keyBytes(key))
	g.absorbed++
}

// mayContain reports whether `key` was probably discarded since the last reset.
func (g *ghostFilter[K]) mayContain(key K) bool {
	return g.filter.Test(g.keyBytes(key))
}

func (g *ghostFilter[K]) reset() {
	g.filter.ClearAll()
	g.absorbed = 0
}
