// Package wildcard matches file names against shell-style masks such as
// "*.jpg" or "img_??.png".
package wildcard

import (
	"strings"

	"github.com/gobwas/glob"
	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize bounds the compiled patterns kept by New. Patterns come
// from request parameters, so the cache must not grow with client input.
const DefaultCacheSize = 256

// Matcher tests a name against a wildcard pattern.
type Matcher interface {
	Match(pattern, text string, caseInsensitive bool) bool
}

// GlobMatcher is a Matcher backed by gobwas/glob. The most recently used
// compiled patterns are kept since listings test the same few masks against
// every file.
type GlobMatcher struct {
	compiled *lru.Cache[string, glob.Glob]
}

// New returns a GlobMatcher caching up to DefaultCacheSize patterns.
func New() *GlobMatcher {
	return NewSize(DefaultCacheSize)
}

// NewSize returns a GlobMatcher caching up to size patterns.
func NewSize(size int) *GlobMatcher {
	if size < 1 {
		size = DefaultCacheSize
	}
	c, _ := lru.New[string, glob.Glob](size)
	return &GlobMatcher{compiled: c}
}

// Cached returns the number of compiled patterns currently held.
func (m *GlobMatcher) Cached() int {
	return m.compiled.Len()
}

// Match reports whether text matches pattern. '*' matches any run of
// characters except '/', '?' matches one character. A pattern that fails to
// compile never matches.
func (m *GlobMatcher) Match(pattern, text string, caseInsensitive bool) bool {
	if caseInsensitive {
		pattern = strings.ToLower(pattern)
		text = strings.ToLower(text)
	}
	g, err := m.compile(pattern)
	if err != nil {
		return false
	}
	return g.Match(text)
}

// MatchAny reports whether text matches at least one of the patterns.
func (m *GlobMatcher) MatchAny(patterns []string, text string, caseInsensitive bool) bool {
	for _, p := range patterns {
		if m.Match(p, text, caseInsensitive) {
			return true
		}
	}
	return false
}

func (m *GlobMatcher) compile(pattern string) (glob.Glob, error) {
	if g, ok := m.compiled.Get(pattern); ok {
		return g, nil
	}

	g, err := glob.Compile(pattern, '/')
	if err != nil {
		return nil, err
	}

	m.compiled.Add(pattern, g)
	return g, nil
}
