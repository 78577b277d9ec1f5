// The KEYS command filters cached keys with Redis-style glob patterns; the following module implements glob matching.
// Patterns and keys are both split on '/' and matched element by element, so `user/*` matches `user/1` but not
// `user/1/a`. A trailing `...` matches any number of remaining elements, and a bare `*` matches every key.

package scan

import (
	"iter"
	"strings"

	"v.io/v23/glob"
)

// matchAll is the pattern matching every key regardless of its '/' separators.
const matchAll = "*"

// matchElements reports whether every element of `segments` is matched by the corresponding element of `pattern`.
func matchElements(pattern *glob.Glob, segments []string) bool {
	for ; len(segments) > 0; segments = segments[1:] {
		if pattern.Len() == 0 {
			return pattern.Recursive()
		}
		if !pattern.Head().Match(segments[0]) {
			return false
		}
		pattern = pattern.Tail()
	}
	return pattern.Len() == 0
}

// MatchGlob yields the `keys` matching the given glob `pattern`. An invalid pattern matches nothing.
func MatchGlob(pattern string, keys iter.Seq[string]) iter.Seq[string] {
	if pattern == matchAll {
		pattern = "..."
	}
	parsedPattern, err := glob.Parse(pattern)
	if err != nil {
		return func(yield func(string) bool) {}
	}
	return func(yield func(string) bool) {
		for key := range keys {
			if matchElements(parsedPattern, strings.Split(key, "/")) {
				if !yield(key) {
					return
				}
			}
		}
	}
}
