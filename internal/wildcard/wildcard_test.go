package wildcard

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGlobMatcher_Match(t *testing.T) {
	m := New()

	tests := []struct {
		pattern  string
		text     string
		caseFold bool
		want     bool
	}{
		{"*", "anything.txt", false, true},
		{"*.jpg", "photo.jpg", false, true},
		{"*.jpg", "photo.JPG", false, false},
		{"*.jpg", "photo.JPG", true, true},
		{"*.JPG", "photo.jpg", true, true},
		{"img_??.png", "img_01.png", false, true},
		{"img_??.png", "img_1.png", false, false},
		{"*", "dir/file", false, false},
		{"photo*", "photo_thumb.jpg", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.pattern+"|"+tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, m.Match(tt.pattern, tt.text, tt.caseFold))
		})
	}
}

func TestGlobMatcher_MatchAny(t *testing.T) {
	m := New()
	patterns := []string{"*.png", "*.gif"}

	assert.True(t, m.MatchAny(patterns, "a.gif", false))
	assert.False(t, m.MatchAny(patterns, "a.jpg", false))
	assert.False(t, m.MatchAny(nil, "a.jpg", false))
}

func TestGlobMatcher_CacheIsBounded(t *testing.T) {
	m := NewSize(4)
	for i := 0; i < 100; i++ {
		assert.False(t, m.Match(fmt.Sprintf("unique_%d_*", i), "photo.jpg", true))
	}
	assert.Equal(t, 4, m.Cached())

	// Evicted patterns still match after being recompiled.
	assert.True(t, m.Match("unique_0_*", "unique_0_x", false))
	assert.Equal(t, 4, m.Cached())
}
