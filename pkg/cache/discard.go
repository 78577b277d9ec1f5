package cache

import (
	"fmt"
	"io"
	"log/slog"
)

// PrintDiscards returns a discard callback writing one "DISCARD: <key>" line per evicted key to `w`. Downstream tools
// parse these lines, so the wording must not change.
func PrintDiscards[K comparable, V any](w io.Writer) func(K, V) {
	return func(key K, _ V) {
		if _, err := fmt.Fprintf(w, "DISCARD: %v\n", key); err != nil {
			slog.Warn("Failed to announce discarded key.", "key", key, "error", err)
		}
	}
}

// ChainDiscards returns a discard callback calling every non-nil callback in `callbacks` in order.
func ChainDiscards[K comparable, V any](callbacks ...func(K, V)) func(K, V) {
	return func(key K, value V) {
		for _, callback := range callbacks {
			if callback != nil {
				callback(key, value)
			}
		}
	}
}
