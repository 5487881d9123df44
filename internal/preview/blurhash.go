package preview

import (
	"fmt"
	"image"

	"github.com/buckket/go-blurhash"
)

// Hasher turns pixel data into a short placeholder token.
type Hasher interface {
	Encode(img image.Image) (string, error)
	Valid(token string) bool
}

// BlurHasher implements Hasher with the BlurHash algorithm.
type BlurHasher struct {
	XComponents int
	YComponents int
}

// NewBlurHasher returns the 4x3 component hasher the widget expects.
func NewBlurHasher() BlurHasher {
	return BlurHasher{XComponents: 4, YComponents: 3}
}

func (h BlurHasher) Encode(img image.Image) (string, error) {
	token, err := blurhash.Encode(h.XComponents, h.YComponents, img)
	if err != nil {
		return "", fmt.Errorf("blurhash: %w", err)
	}
	return token, nil
}

func (h BlurHasher) Valid(token string) bool {
	if len(token) < 6 {
		return false
	}
	x, y, err := blurhash.Components(token)
	if err != nil {
		return false
	}
	return len(token) == 4+2*x*y
}
