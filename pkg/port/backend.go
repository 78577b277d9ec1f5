package port

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"slices"
	"sync/atomic"

	"github.com/nobletooth/evicache/pkg/cache"
	"github.com/nobletooth/evicache/pkg/paging"
	"github.com/nobletooth/evicache/pkg/scan"
)

var (
	cacheEnabled  = flag.Bool("cache_enabled", true, "Enable the cache; a disabled cache stores nothing.")
	cacheBounded  = flag.Bool("cache_bounded", true,
		"Bound each cache shard by --cache_capacity; an unbounded cache never evicts and ignores --cache_policy.")
	cachePolicy   = flag.String("cache_policy", string(cache.LRU), "Eviction policy: fifo/lifo/lru/mru/lfu.")
	cacheCapacity = flag.Int("cache_capacity", cache.MaxItems,
		"The maximum number of keys each cache shard holds before evicting.")
	cacheShardCount = flag.Int("cache_shard_count", 1,
		"The number of cache shards; each shard evicts on its own.")
	discardOutput = flag.String("discard_output", "stdout",
		"Where 'DISCARD: <key>' announcements are written: stdout/stderr/none.")
	datasetFile = flag.String("dataset_file", "",
		"Optional CSV dataset served by the PAGE, HYPER, HYPERINDEX and DELROW commands.")
)

var errNoDataset = errors.New("no dataset configured; set --dataset_file")

// discardWriter resolves the --discard_output flag value.
func discardWriter(output string) (io.Writer, error) {
	switch output {
	case "stdout":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	case "none", "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown discard output %q; expected stdout/stderr/none", output)
	}
}

// CacheBackend is the cache served by Evicache ports, e.g. Redis. Thread-safety is provided by the cache layers.
type CacheBackend struct {
	layer     cache.Layer[string, string]
	policy    cache.Policy
	capacity  int
	discarded atomic.Int64   // Number of announced evictions.
	dataset   *paging.Dataset // Nil when no dataset is configured.
}

// NewCacheBackend creates a new CacheBackend according to the configured flags.
func NewCacheBackend() (*CacheBackend, error) {
	announcements, err := discardWriter(*discardOutput)
	if err != nil {
		return nil, err
	}
	return newCacheBackendWith(announcements)
}

// newCacheBackendWith creates a CacheBackend announcing discards to `announcements`; nil disables announcements.
func newCacheBackendWith(announcements io.Writer) (*CacheBackend, error) {
	policy, err := cache.ParsePolicy(*cachePolicy)
	if err != nil {
		return nil, fmt.Errorf("invalid --cache_policy: %w", err)
	}
	if *cacheCapacity <= 0 {
		return nil, fmt.Errorf("expected a positive --cache_capacity, got %d", *cacheCapacity)
	}

	backend := &CacheBackend{policy: policy, capacity: *cacheCapacity}
	if *datasetFile != "" {
		backend.dataset = paging.NewDataset(*datasetFile)
	}

	countDiscard := func(string, string) { backend.discarded.Add(1) }
	onDiscard := countDiscard
	if announcements != nil {
		onDiscard = cache.ChainDiscards(cache.PrintDiscards[string, string](announcements), countDiscard)
	}
	// newCache builds one cache shard according to configured flags.
	newCache := func() cache.Layer[string, string] {
		if !*cacheBounded {
			return cache.NewUnbounded[string, string]()
		}
		return cache.New(policy, *cacheCapacity, onDiscard)
	}

	switch {
	case !*cacheEnabled:
		backend.layer = cache.NewNoOp[string, string]()
	case *cacheShardCount > 1: // Sharded cache.
		backend.layer = cache.NewSharded(newCache, *cacheShardCount)
	default: // Single shard cache.
		backend.layer = newCache()
	}
	return backend, nil
}

// Get looks up the given `key`.
func (cb *CacheBackend) Get(key string) (string, bool /*found*/) {
	return cb.layer.Retrieve(key)
}

// Set stores `key`; it returns true if another key was evicted for it.
func (cb *CacheBackend) Set(key, value string) bool {
	return cb.layer.Store(key, value)
}

// Delete removes the given keys and returns how many were present.
func (cb *CacheBackend) Delete(keys ...string) int {
	deleted := 0
	for _, key := range keys {
		if cb.layer.Delete(key) {
			deleted++
		}
	}
	return deleted
}

// Exists counts how many of the given keys are cached, without counting as a use of the keys.
func (cb *CacheBackend) Exists(keys ...string) int {
	cached := cb.layer.Keys()
	count := 0
	for _, key := range keys {
		if slices.Contains(cached, key) {
			count++
		}
	}
	return count
}

// Keys returns the cached keys matching the glob `pattern`.
func (cb *CacheBackend) Keys(pattern string) []string {
	return slices.Collect(scan.MatchGlob(pattern, slices.Values(cb.layer.Keys())))
}

func (cb *CacheBackend) Len() int { return cb.layer.Len() }

func (cb *CacheBackend) Flush() { cb.layer.Purge() }

// Discarded returns the number of evictions announced so far.
func (cb *CacheBackend) Discarded() int64 { return cb.discarded.Load() }

// Page returns one page of the configured dataset.
func (cb *CacheBackend) Page(page, pageSize int) ([][]string, error) {
	if cb.dataset == nil {
		return nil, errNoDataset
	}
	return cb.dataset.GetPage(page, pageSize)
}

// Hyper returns one page of the configured dataset with its navigation metadata.
func (cb *CacheBackend) Hyper(page, pageSize int) (paging.Hyper, error) {
	if cb.dataset == nil {
		return paging.Hyper{}, errNoDataset
	}
	return cb.dataset.GetHyper(page, pageSize)
}

// HyperIndex returns up to `pageSize` rows of the configured dataset starting at `startIndex`, skipping deleted rows.
func (cb *CacheBackend) HyperIndex(startIndex, pageSize int) (paging.HyperIndex, error) {
	if cb.dataset == nil {
		return paging.HyperIndex{}, errNoDataset
	}
	return cb.dataset.GetHyperIndex(startIndex, pageSize)
}

// DeleteRow removes a row from the indexed view served by HyperIndex.
func (cb *CacheBackend) DeleteRow(index int) error {
	if cb.dataset == nil {
		return errNoDataset
	}
	return cb.dataset.DeleteIndex(index)
}
