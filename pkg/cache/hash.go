package cache

import (
	"encoding/binary"
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// newKeyHasher picks the hash function for keys of type K once, so that hot paths don't need a type switch.
func newKeyHasher[K comparable]() func(key K) uint64 {
	switch any(*new(K)).(type) {
	case string:
		return func(key K) uint64 {
			return xxhash.Sum64String(any(key).(string))
		}
	case int:
		return func(key K) uint64 {
			var b [8]byte
			// Since int's size is architecture-dependent, we should cast it to a fixed-size type before hashing.
			binary.LittleEndian.PutUint64(b[:], uint64(any(key).(int)))
			return xxhash.Sum64(b[:])
		}
	case uint:
		return func(key K) uint64 {
			var b [8]byte
			binary.LittleEndian.PutUint64(b[:], uint64(any(key).(uint)))
			return xxhash.Sum64(b[:])
		}
	case int32:
		return func(key K) uint64 {
			var b [4]byte
			binary.LittleEndian.PutUint32(b[:], uint32(any(key).(int32)))
			return xxhash.Sum64(b[:])
		}
	case uint32:
		return func(key K) uint64 {
			var b [4]byte
			binary.LittleEndian.PutUint32(b[:], any(key).(uint32))
			return xxhash.Sum64(b[:])
		}
	case int64:
		return func(key K) uint64 {
			var b [8]byte
			binary.LittleEndian.PutUint64(b[:], uint64(any(key).(int64)))
			return xxhash.Sum64(b[:])
		}
	case uint64:
		return func(key K) uint64 {
			var b [8]byte
			binary.LittleEndian.PutUint64(b[:], any(key).(uint64))
			return xxhash.Sum64(b[:])
		}
	case bool:
		return func(key K) uint64 {
			if any(key).(bool) {
				return xxhash.Sum64([]byte{1})
			}
			return xxhash.Sum64([]byte{0})
		}
	default:
		// Structs, arrays and interface keys are hashed through their Go-syntax representation. Slower, but works
		// for any comparable type.
		return func(key K) uint64 {
			return xxhash.Sum64String(fmt.Sprintf("%#v", key))
		}
	}
}
