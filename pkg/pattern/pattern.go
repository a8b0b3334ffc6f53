// Package pattern owns key-pattern matching for enumeration queries.
//
// The storage engine does not interpret pattern syntax itself: it consumes
// a Matcher for the "does this concrete key intersect this pattern" test
// and for extracting the longest literal prefix that bounds a filesystem
// walk. Glob is the default implementation, using doublestar globs where
// "**" spans path separators.
package pattern

import (
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Matcher is the pattern collaborator consumed by the storage engine.
type Matcher interface {
	// Intersects reports whether the concrete key matches the pattern.
	Intersects(key, pattern string) bool

	// LiteralPrefix returns the longest leading wildcard-free segment
	// path of the pattern ("" when the first segment already contains a
	// wildcard). It bounds directory traversal for narrow patterns.
	LiteralPrefix(pattern string) string
}

// Glob matches keys with doublestar glob patterns: '*' within a segment,
// '**' across segments, '?', character classes and alternates.
type Glob struct{}

var _ Matcher = Glob{}

// Intersects reports whether key matches the glob pattern. Malformed
// patterns match nothing.
func (Glob) Intersects(key, pattern string) bool {
	ok, err := doublestar.Match(pattern, key)
	return err == nil && ok
}

// LiteralPrefix cuts the pattern at the last '/' before its first
// wildcard character. A pattern without wildcards is its own prefix.
func (Glob) LiteralPrefix(pattern string) string {
	idx := strings.IndexAny(pattern, `*?[{\`)
	if idx < 0 {
		return pattern
	}
	slash := strings.LastIndex(pattern[:idx], "/")
	if slash < 0 {
		return ""
	}
	return pattern[:slash]
}
