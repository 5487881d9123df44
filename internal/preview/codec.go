package preview

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// Codec is the image decode/transform/encode capability the cache relies on.
type Codec interface {
	// Decode parses encoded image bytes.
	Decode(data []byte) (image.Image, error)
	// Orient applies the EXIF orientation stored in data to img.
	Orient(img image.Image, data []byte) image.Image
	// Resize scales img to exactly width x height.
	Resize(img image.Image, width, height int) image.Image
	// Checkerboard composites img over a tiled background so transparent
	// areas stay visible.
	Checkerboard(img image.Image, tile int) image.Image
	// Encode serializes img. Format is a file extension ("jpg", "png", ...).
	Encode(img image.Image, format string, quality int) ([]byte, error)
}

var (
	checkerBackground = color.NRGBA{R: 70, G: 20, B: 20, A: 255}
	checkerTileA      = color.NRGBA{R: 240, G: 240, B: 240, A: 255}
	checkerTileB      = color.NRGBA{R: 250, G: 250, B: 250, A: 255}
)

// ImagingCodec implements Codec with disintegration/imaging.
type ImagingCodec struct{}

// Decode decodes any registered format (jpeg, png, gif, bmp, tiff, webp).
func (ImagingCodec) Decode(data []byte) (image.Image, error) {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return img, nil
}

// Orient reads the EXIF orientation from data and applies it.
func (ImagingCodec) Orient(img image.Image, data []byte) image.Image {
	return applyOrientation(img, ReadOrientation(data))
}

// Resize scales with a Lanczos filter.
func (ImagingCodec) Resize(img image.Image, width, height int) image.Image {
	return imaging.Resize(img, width, height, imaging.Lanczos)
}

// Checkerboard paints alternating tiles over a dark red base and draws img on
// top at the origin.
func (ImagingCodec) Checkerboard(img image.Image, tile int) image.Image {
	b := img.Bounds()
	canvas := imaging.New(b.Dx(), b.Dy(), checkerBackground)
	if tile > 0 {
		for x := 0; x <= b.Dx()/tile; x++ {
			for y := 0; y <= b.Dy()/tile; y++ {
				c := checkerTileB
				if (x+y)%2 == 0 {
					c = checkerTileA
				}
				r := image.Rect(x*tile, y*tile, (x+1)*tile, (y+1)*tile)
				draw.Draw(canvas, r, &image.Uniform{C: c}, image.Point{}, draw.Src)
			}
		}
	}
	return imaging.Overlay(canvas, img, image.Pt(0, 0), 1.0)
}

// Encode writes img in the given format. WebP has no pure Go encoder, so webp
// targets are written as PNG.
func (ImagingCodec) Encode(img image.Image, format string, quality int) ([]byte, error) {
	var f imaging.Format
	switch format {
	case "jpg", "jpeg":
		f = imaging.JPEG
	case "png", "webp":
		f = imaging.PNG
	case "gif":
		f = imaging.GIF
	case "bmp":
		f = imaging.BMP
	case "tif", "tiff":
		f = imaging.TIFF
	default:
		return nil, fmt.Errorf("encode image: unsupported format %q", format)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, f, imaging.JPEGQuality(quality)); err != nil {
		return nil, fmt.Errorf("encode image: %w", err)
	}
	return buf.Bytes(), nil
}
