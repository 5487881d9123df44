package natsort

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompare(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"img2", "img10", -1},
		{"img10", "img2", 1},
		{"a", "a", 0},
		{"2", "10", -1},
		{"10", "2", 1},
		{"", "", 0},
		{"", "a", -1},
		{"a", "", 1},
		{"ab", "abc", -1},
		{"abc", "ab", 1},
		{"a", "b", -1},
		{"B", "a", -1},
		{"007", "7", 0},
		{"img007", "img7", -1},
		{"1.05", "1.5", -1},
		{"1.5", "1.05", 1},
		{"photo 2", "photo2", 0},
		{"x100y", "x99y", 1},
		{"x99y", "x100y", -1},
		{"file1a", "file1b", -1},
	}

	for _, tt := range tests {
		t.Run(tt.a+"_vs_"+tt.b, func(t *testing.T) {
			assert.Equal(t, tt.want, Compare(tt.a, tt.b))
		})
	}
}

func TestCompare_Antisymmetric(t *testing.T) {
	names := []string{"img1.jpg", "img10.jpg", "img2.jpg", "a", "b10", "b9", "z", "0", "00", "file 3"}
	for _, a := range names {
		for _, b := range names {
			assert.Equal(t, -Compare(b, a), Compare(a, b), "%q vs %q", a, b)
		}
	}
}

func TestSortNatural(t *testing.T) {
	names := []string{"img10.png", "img1.png", "img2.png", "img20.png", "img3.png"}
	slices.SortFunc(names, Compare)
	assert.Equal(t, []string{"img1.png", "img2.png", "img3.png", "img10.png", "img20.png"}, names)
}

func TestLess(t *testing.T) {
	assert.True(t, Less("img2", "img10"))
	assert.False(t, Less("img10", "img2"))
	assert.False(t, Less("same", "same"))
}
