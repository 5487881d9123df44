package preview

import (
	"fmt"
	"math"
)

// TargetSize computes the preview box for an origW x origH image asked to fit
// reqW x reqH. A zero request dimension is derived from the original aspect
// ratio. The overflowing axis is then shrunk so the image fills the box
// without exceeding it.
func TargetSize(origW, origH, reqW, reqH int) (int, int, error) {
	if origW <= 0 || origH <= 0 {
		return 0, 0, fmt.Errorf("invalid image size %dx%d", origW, origH)
	}
	if reqW <= 0 && reqH <= 0 {
		return 0, 0, fmt.Errorf("preview width or height is required")
	}

	W, H := float64(origW), float64(origH)
	ratio := W / H

	w, h := float64(reqW), float64(reqH)
	switch {
	case reqW <= 0:
		w = math.Floor(h * ratio)
	case reqH <= 0:
		h = math.Floor(w * (H / W))
	}

	if ratio >= w/h {
		h = math.Floor(H * w / W)
	} else {
		w = math.Floor(W * h / H)
	}

	return max(int(w), 1), max(int(h), 1), nil
}
